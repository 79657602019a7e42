package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/authz"
	"github.com/trezcool/campus/core/cohort"
)

const defaultUpcomingDays = 7

type cohortApi struct {
	svc      *cohort.Service
	validate *validator.Validate
}

// enrollTarget is the optional body of enroll/drop requests. Without user_id, the caller enrolls themself.
type enrollTarget struct {
	UserID string `json:"user_id"`
}

func registerCohortAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := cohortApi{
		svc:      deps.CohortSvc,
		validate: deps.Validate,
	}
	load := func(action authz.Action) echo.MiddlewareFunc { return loadCohort(api.svc, action) }

	cg := g.Group("/cohorts/:id", jwt)
	cg.GET("", api.retrieve, load(authz.ReadSchedule))
	cg.PATCH("/status", api.updateStatus, load(authz.ManageCohort))

	cg.POST("/enroll", api.enroll, load(authz.EnrollSelf))
	cg.DELETE("/enroll", api.drop, load(authz.EnrollSelf))
	cg.PATCH("/enrollments/:userId", api.updateEnrollment, load(authz.ManageCohort))

	cg.GET("/schedule", api.listSchedule, load(authz.ReadSchedule))
	cg.POST("/schedule", api.upsertSchedule, load(authz.WriteSchedule))
	cg.DELETE("/schedule/:moduleId", api.deleteSchedule, load(authz.WriteSchedule))
	cg.GET("/modules", api.moduleStatuses, load(authz.ReadSchedule))
	cg.GET("/modules/upcoming", api.upcomingUnlocks, load(authz.ReadSchedule))
	cg.GET("/lessons/:lessonId/access", api.lessonAccess, load(authz.ReadSchedule))

	cg.POST("/progress", api.recordProgress, load(authz.WriteProgress))
	cg.POST("/quiz-scores", api.recordQuizScore, load(authz.WriteProgress))
}

// targetUser resolves who an enrollment request is about and checks the caller may act for them.
func targetUser(ctx echo.Context) (string, error) {
	sub, err := getSubject(ctx)
	if err != nil {
		return "", err
	}
	var data enrollTarget
	if err = ctx.Bind(&data); err != nil {
		return "", errors.Wrap(err, "binding to enrollTarget")
	}
	userID := core.CleanString(data.UserID)
	if userID == "" || userID == sub.UserID {
		return sub.UserID, nil
	}
	if !authz.Can(sub, authz.EnrollOther, getCohortScope(ctx).resource(userID)) {
		return "", errHttpForbidden
	}
	return userID, nil
}

// isOverride reports whether the caller sees the cohort as its teacher.
func isOverride(ctx echo.Context) bool {
	sub, err := getSubject(ctx)
	return err == nil && authz.IsOwner(sub, getCohortScope(ctx).resource(""))
}

// Handlers

func (api *cohortApi) retrieve(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, getCohortScope(ctx).Detail)
}

func (api *cohortApi) updateStatus(ctx echo.Context) error {
	var data cohort.UpdateStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cht, err := api.svc.UpdateStatus(ctx.Request().Context(), ctx.Param("id"), cohort.Status(data.Status))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cht)
}

func (api *cohortApi) enroll(ctx echo.Context) error {
	userID, err := targetUser(ctx)
	if err != nil {
		return err
	}
	enr, err := api.svc.Enroll(ctx.Request().Context(), ctx.Param("id"), userID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *cohortApi) drop(ctx echo.Context) error {
	userID, err := targetUser(ctx)
	if err != nil {
		return err
	}
	enr, err := api.svc.Drop(ctx.Request().Context(), ctx.Param("id"), userID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *cohortApi) updateEnrollment(ctx echo.Context) error {
	var data cohort.UpdateEnrollmentStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEnrollmentStatus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	enr, err := api.svc.SetEnrollmentStatus(
		ctx.Request().Context(),
		ctx.Param("id"),
		ctx.Param("userId"),
		cohort.EnrollmentStatus(data.Status),
	)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *cohortApi) listSchedule(ctx echo.Context) error {
	schedules, err := api.svc.ListSchedule(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, schedules)
}

func (api *cohortApi) upsertSchedule(ctx echo.Context) error {
	var data cohort.NewSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchedule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sch, err := api.svc.UpsertSchedule(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *cohortApi) deleteSchedule(ctx echo.Context) error {
	if err := api.svc.DeleteSchedule(ctx.Request().Context(), ctx.Param("id"), ctx.Param("moduleId")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *cohortApi) moduleStatuses(ctx echo.Context) error {
	statuses, err := api.svc.ModuleStatuses(ctx.Request().Context(), ctx.Param("id"), core.NowFunc(), isOverride(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, statuses)
}

func (api *cohortApi) upcomingUnlocks(ctx echo.Context) error {
	days, err := intQueryParam(ctx, "days", defaultUpcomingDays)
	if err != nil {
		return err
	}
	within := time.Duration(days) * 24 * time.Hour
	upcoming, err := api.svc.UpcomingUnlocks(ctx.Request().Context(), ctx.Param("id"), core.NowFunc(), within)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, upcoming)
}

func (api *cohortApi) lessonAccess(ctx echo.Context) error {
	sub, err := getSubject(ctx)
	if err != nil {
		return err
	}
	acc, err := api.svc.CanAccessLesson(
		ctx.Request().Context(),
		ctx.Param("id"),
		ctx.Param("lessonId"),
		sub.UserID,
		core.NowFunc(),
		isOverride(ctx),
	)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *cohortApi) recordProgress(ctx echo.Context) error {
	sub, err := getSubject(ctx)
	if err != nil {
		return err
	}
	var data cohort.ProgressUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgressUpdate")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	enr, err := api.svc.RecordLessonProgress(ctx.Request().Context(), ctx.Param("id"), sub.UserID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *cohortApi) recordQuizScore(ctx echo.Context) error {
	sub, err := getSubject(ctx)
	if err != nil {
		return err
	}
	var data cohort.QuizScoreUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizScoreUpdate")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	enr, err := api.svc.RecordQuizScore(ctx.Request().Context(), ctx.Param("id"), sub.UserID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}
