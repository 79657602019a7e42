package echoapi

import (
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/authz"
	"github.com/trezcool/campus/core/submission"
)

const submissionFileField = "file"

var errMissingFile = core.NewValidationError(
	errors.New("missing file"),
	core.FieldError{Field: submissionFileField, Error: "this field is required"},
)

type submissionApi struct {
	svc *submission.Service
}

func registerSubmissionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := submissionApi{svc: deps.SubmissionSvc}

	ag := g.Group("/assignments/:id", jwt)
	ag.POST("/submit", api.create, rateLimit(deps.Limiter, "submit:", deps.Logger))
	ag.GET("/submissions", api.list)
}

// authorize checks the subject may perform action on the submissions of userID to the `:id` assignment.
func (api *submissionApi) authorize(ctx echo.Context, sub authz.Subject, action authz.Action, userID string) error {
	ownerID, err := api.svc.Owner(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if !authz.Can(sub, action, authz.Resource{OwnerID: ownerID, UserID: userID}) {
		return errHttpForbidden
	}
	return nil
}

// Handlers

func (api *submissionApi) create(ctx echo.Context) error {
	sub, err := getSubject(ctx)
	if err != nil {
		return err
	}
	if err = api.authorize(ctx, sub, authz.CreateSubmission, sub.UserID); err != nil {
		return err
	}

	fh, err := ctx.FormFile(submissionFileField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return errMissingFile
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form").SetInternal(err)
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer file.Close()

	created, err := api.svc.Create(ctx.Request().Context(), submission.NewSubmission{
		AssignmentID:  ctx.Param("id"),
		UserID:        sub.UserID,
		FileName:      filepath.Base(fh.Filename),
		FileSizeBytes: fh.Size,
		FileType:      fh.Header.Get(echo.HeaderContentType),
		Content:       file,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, created)
}

func (api *submissionApi) list(ctx echo.Context) error {
	sub, err := getSubject(ctx)
	if err != nil {
		return err
	}
	userID := ctx.QueryParam("user_id")
	if userID == "" {
		userID = sub.UserID
	}
	if err = api.authorize(ctx, sub, authz.ReadSubmissions, userID); err != nil {
		return err
	}
	subs, err := api.svc.List(ctx.Request().Context(), ctx.Param("id"), userID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, subs)
}
