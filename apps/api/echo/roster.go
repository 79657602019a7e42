package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core/authz"
	"github.com/trezcool/campus/core/cohort"
	"github.com/trezcool/campus/core/roster"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type rosterApi struct {
	svc *roster.Service
}

func registerRosterAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := rosterApi{svc: deps.RosterSvc}

	rg := g.Group("/cohorts/:id/roster", jwt)
	rg.GET("", api.query, loadCohort(deps.CohortSvc, authz.ReadRoster))
	rg.GET("/export", api.export, loadCohort(deps.CohortSvc, authz.ReadRoster))
	rg.POST("/refresh", api.refresh, loadCohort(deps.CohortSvc, authz.RefreshRoster))
}

func bindFilter(ctx echo.Context) roster.Filter {
	var ord Ordering
	ord.Bind(ctx)
	return roster.Filter{
		Status:    cohort.EnrollmentStatus(ctx.QueryParam("status")),
		Orderings: ord.Orderings,
	}
}

// Handlers

func (api *rosterApi) query(ctx echo.Context) error {
	rows, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), bindFilter(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *rosterApi) export(ctx echo.Context) error {
	buf, fname, err := api.svc.Export(ctx.Request().Context(), ctx.Param("id"), bindFilter(ctx))
	if err != nil {
		return errors.Wrap(err, "exporting roster")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+fname+`"`)
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (api *rosterApi) refresh(ctx echo.Context) error {
	cohortID := ctx.Param("id")
	reqCtx := ctx.Request().Context()
	if err := api.svc.Refresh(reqCtx, &cohortID); err != nil {
		return err
	}
	ref, err := api.svc.LastRefresh(reqCtx, cohortID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ref)
}
