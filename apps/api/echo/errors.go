package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")

	errRateLimited = core.NewAppError(core.KindRateLimited, "RateLimited", "too many requests, slow down")
)

var kindStatuses = map[core.ErrorKind]int{
	core.KindNotFound:    http.StatusNotFound,
	core.KindForbidden:   http.StatusForbidden,
	core.KindConflict:    http.StatusConflict,
	core.KindValidation:  http.StatusBadRequest,
	core.KindRateLimited: http.StatusTooManyRequests,
	core.KindInternal:    http.StatusInternalServerError,
}

func appErrorBody(appErr *core.AppError) echo.Map {
	body := echo.Map{}
	for k, v := range appErr.Details {
		body[k] = v
	}
	body["code"] = appErr.Code
	body["error"] = appErr.Message
	if appErr.SQLState != "" {
		body["sqlstate"] = appErr.SQLState
	}
	return body
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var body echo.Map

		if appErr, ok := core.AsAppError(err); ok {
			code = kindStatuses[appErr.Kind]
			body = appErrorBody(appErr)
			if appErr.Kind == core.KindInternal {
				logger.Error(appErr.Message, err, contextUser(ctx))
			}
			sendError(ctx, code, body)
			return
		}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				origErr = echo.NewHTTPError(http.StatusUnauthorized, origErr.Message)
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			body = echo.Map{"code": codeFromStatus(code), "error": origErr.Message}
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			body = echo.Map{"code": "ValidationError", "error": "invalid input", "fields": fldErrs}
		case *core.ValidationError:
			code = http.StatusBadRequest
			body = echo.Map{"code": "ValidationError", "error": origErr.Error()}
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				body["fields"] = fldErrs
			}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			body = echo.Map{"code": "Internal", "error": msg}
			logger.Error(msg, errors.Wrap(err, msg), contextUser(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			body["error"] = err.Error()
		}
		sendError(ctx, code, body)
	}
}

func codeFromStatus(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "NotFound"
	case http.StatusTooManyRequests:
		return "RateLimited"
	case http.StatusBadRequest:
		return "BadRequest"
	}
	return http.StatusText(code)
}

func sendError(ctx echo.Context, code int, body echo.Map) {
	if ctx.Response().Committed {
		return
	}
	var err error
	if ctx.Request().Method == http.MethodHead { // Issue #608
		err = ctx.NoContent(code)
	} else {
		err = ctx.JSON(code, body)
	}
	if err != nil {
		ctx.Echo().Logger.Error(err)
	}
}
