package echoapi

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/authz"
	"github.com/trezcool/campus/core/cohort"
	"github.com/trezcool/campus/services/ratelimit"
)

const contextCohortKey = "cohort"

// cohortScope is the cohort targeted by a request, along with the owner of its course.
type cohortScope struct {
	cohort.Detail
	OwnerID string
}

func (cs cohortScope) resource(userID string) authz.Resource {
	return authz.Resource{OwnerID: cs.OwnerID, UserID: userID}
}

// requestTimeout bounds the context every handler works with.
func requestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if timeout <= 0 {
				return next(ctx)
			}
			reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), timeout)
			defer cancel()
			ctx.SetRequest(ctx.Request().WithContext(reqCtx))
			return next(ctx)
		}
	}
}

// adminMiddleware only lets admins holding one of roles (any admin when empty) through.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && hasAnyRole(claims.Roles, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func hasAnyRole(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// loadCohort resolves the `:id` cohort and the owner of its course, then checks the subject may perform action.
// Actions that target a specific user are re-checked by the handler.
func loadCohort(svc *cohort.Service, action authz.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sub, err := getSubject(ctx)
			if err != nil {
				return err
			}
			reqCtx := ctx.Request().Context()
			detail, err := svc.Get(reqCtx, ctx.Param("id"))
			if err != nil {
				return err
			}
			scope := cohortScope{Detail: detail}
			// a course missing from the catalog has no owner: only admins manage it
			if crs, err := svc.Course(reqCtx, detail.Cohort); err == nil {
				scope.OwnerID = crs.CreatedBy
			}
			if !authz.Can(sub, action, scope.resource("")) {
				return errHttpForbidden
			}
			ctx.Set(contextCohortKey, scope)
			return next(ctx)
		}
	}
}

func getCohortScope(ctx echo.Context) cohortScope {
	scope, _ := ctx.Get(contextCohortKey).(cohortScope)
	return scope
}

// rateLimit throttles each authenticated user on the routes it guards.
// The limiter failing lets the request through.
func rateLimit(limiter ratelimit.Limiter, prefix string, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if limiter == nil {
				return next(ctx)
			}
			sub, err := getSubject(ctx)
			if err != nil {
				return err
			}
			ok, err := limiter.Allow(ctx.Request().Context(), prefix+sub.UserID)
			if err != nil {
				logger.Warn("rate limiter unavailable", err, contextUser(ctx))
				return next(ctx)
			}
			if !ok {
				return errRateLimited
			}
			return next(ctx)
		}
	}
}
