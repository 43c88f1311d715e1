package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tmalira/shule/core"
	"github.com/tmalira/shule/core/auth"
	"github.com/tmalira/shule/core/principal"
)

var (
	// token errors carry distinguishable messages on purpose
	errMissingToken = echo.NewHTTPError(http.StatusUnauthorized, "No token provided. Authorization denied.")
	errTokenExpired = echo.NewHTTPError(http.StatusUnauthorized, "Token expired. Please login again.")
	errInvalidToken = echo.NewHTTPError(http.StatusUnauthorized, "Invalid token. Authorization denied.")

	errUnauthenticated      = echo.NewHTTPError(http.StatusUnauthorized, "Principal not authenticated.")
	errForbidden            = echo.NewHTTPError(http.StatusForbidden, "Access denied. Insufficient permissions.")
	errHTTPNotFound         = echo.NewHTTPError(http.StatusNotFound, "Not found.")
	errInvalidCredentials   = echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials.")
	errAccountNotActive     = echo.NewHTTPError(http.StatusUnauthorized, "Account is not active.")
	errDuplicateEmail       = echo.NewHTTPError(http.StatusConflict, "Email already registered.")
	errWrongCurrentPassword = echo.NewHTTPError(http.StatusUnauthorized, "Current password is incorrect.")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that
// translates the domain error taxonomy to the JSON envelope.
// signalShutdown is called to gracefully stop the server whenever a
// core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message string
		var fldErrs map[string]string

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message, _ = origErr.Message.(string)
			if message == "" {
				message = http.StatusText(code)
			}
		case validator.ValidationErrors:
			fldErrs = make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = "Validation failed."
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = "Validation failed."
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			switch errors.Cause(err) {
			case principal.ErrEmailTaken:
				code, message = errDuplicateEmail.Code, errDuplicateEmail.Message.(string)
			case principal.ErrInvalidCredentials:
				code, message = errInvalidCredentials.Code, errInvalidCredentials.Message.(string)
			case principal.ErrAccountNotActive:
				code, message = errAccountNotActive.Code, errAccountNotActive.Message.(string)
			case principal.ErrInvalidCurrentPassword:
				code, message = errWrongCurrentPassword.Code, errWrongCurrentPassword.Message.(string)
			case principal.ErrNotFound:
				code, message = errHTTPNotFound.Code, errHTTPNotFound.Message.(string)
			case auth.ErrTokenExpired:
				code, message = errTokenExpired.Code, errTokenExpired.Message.(string)
			case auth.ErrInvalidToken:
				code, message = errInvalidToken.Code, errInvalidToken.Message.(string)
			default: // any other error is a server error
				code = http.StatusInternalServerError
				message = http.StatusText(http.StatusInternalServerError)

				var p principal.Principal
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					p.ID = claims.Subject
					p.Email = claims.Email
					p.Role = claims.Role
				}
				logger.Error(message, errors.Wrap(err, message), p)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}

		// send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead {
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, Response{Success: false, Message: message, Errors: errorsField(fldErrs)})
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func errorsField(fldErrs map[string]string) interface{} {
	if fldErrs == nil {
		return nil
	}
	return fldErrs
}
