package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// HTTPErrorHandler maps the error taxonomy onto HTTP responses:
// validation 422, permission 403, not found 404, transition conflicts and
// double judgment 409, unavailable collaborators 503. Anything unclassified
// is a 500 with the detail kept out of the body.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := map[string]interface{}{"error": "internal server error"}

		var ve *ValidationError
		var te *InvalidTransitionError
		var ue *UnavailableError
		var he *echo.HTTPError

		switch {
		case errors.As(err, &ve):
			code = http.StatusUnprocessableEntity
			body = map[string]interface{}{"error": "validation", "field": ve.Field, "reason": ve.Reason}
		case errors.Is(err, ErrPermissionDenied):
			code = http.StatusForbidden
			body = map[string]interface{}{"error": "permission denied"}
		case errors.Is(err, ErrNotFound):
			code = http.StatusNotFound
			body = map[string]interface{}{"error": "not found"}
		case errors.As(err, &te):
			code = http.StatusConflict
			body = map[string]interface{}{"error": "invalid transition", "from": te.From, "to": te.To}
		case errors.Is(err, ErrAlreadyJudged):
			code = http.StatusConflict
			body = map[string]interface{}{"error": "already judged"}
		case errors.As(err, &ue):
			code = http.StatusServiceUnavailable
			body = map[string]interface{}{"error": "unavailable", "service": ue.Service}
		case errors.As(err, &he):
			code = he.Code
			body = map[string]interface{}{"error": he.Message}
		default:
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}
