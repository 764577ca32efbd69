package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestUnavailableWrapping(t *testing.T) {
	inner := errors.New("dial tcp: refused")
	err := Unavailable("triage", inner)

	if !IsUnavailable(err) {
		t.Error("IsUnavailable = false")
	}
	if !errors.Is(err, inner) {
		t.Error("wrapped cause lost")
	}
	wrapped := fmt.Errorf("request opinion: %w", err)
	if !IsUnavailable(wrapped) {
		t.Error("IsUnavailable should see through fmt.Errorf wrapping")
	}
}

func TestHTTPErrorHandlerMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", Validation("reason", "is required"), http.StatusUnprocessableEntity},
		{"permission", ErrPermissionDenied, http.StatusForbidden},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"transition", &InvalidTransitionError{From: "pending", To: "completed"}, http.StatusConflict},
		{"already judged", ErrAlreadyJudged, http.StatusConflict},
		{"unavailable", Unavailable("cache", errors.New("down")), http.StatusServiceUnavailable},
		{"wrapped not found", fmt.Errorf("load record: %w", ErrNotFound), http.StatusNotFound},
		{"http error passthrough", echo.NewHTTPError(http.StatusUnauthorized, "auth_expired"), http.StatusUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	handler := HTTPErrorHandler(logger)
	e := echo.New()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler(tt.err, c)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}
