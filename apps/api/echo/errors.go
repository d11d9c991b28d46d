package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
	"github.com/syaifulazham/techlympics/core/certificate"
	"github.com/syaifulazham/techlympics/core/event"
	"github.com/syaifulazham/techlympics/core/moodle"
	"github.com/syaifulazham/techlympics/core/participant"
	"github.com/syaifulazham/techlympics/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errInvalidSession       = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired agent session")
)

// domainErrors maps the domain errors that are not server errors to their HTTP status code.
var domainErrors = map[error]int{
	user.ErrNotFound:                 http.StatusNotFound,
	event.ErrNotFound:                http.StatusNotFound,
	participant.ErrNotFound:          http.StatusNotFound,
	attendance.ErrNotFound:           http.StatusNotFound,
	attendance.ErrEndpointNotFound:   http.StatusNotFound,
	attendance.ErrCodeNotFound:       http.StatusNotFound,
	attendance.ErrInvalidPasscode:    http.StatusUnauthorized,
	attendance.ErrDuplicateScan:      http.StatusTooManyRequests,
	attendance.ErrJobActive:          http.StatusConflict,
	attendance.ErrJobFinished:        http.StatusConflict,
	attendance.ErrJobNotFound:        http.StatusNotFound,
	certificate.ErrNotFound:          http.StatusNotFound,
	certificate.ErrTemplateNotFound:  http.StatusNotFound,
	certificate.ErrSerialNotFound:    http.StatusNotFound,
	certificate.ErrInvalidTargetType: http.StatusBadRequest,
	certificate.ErrInvalidSerial:     http.StatusBadRequest,
	moodle.ErrNotConfigured:          http.StatusServiceUnavailable,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *moodle.APIError:
			code = http.StatusBadGateway
			message = origErr.Error()
		default:
			if status, ok := domainErrors[cause]; ok {
				code = status
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
