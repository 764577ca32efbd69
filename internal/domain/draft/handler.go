package draft

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/intake/internal/platform/apperr"
	"github.com/clinicore/intake/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.PUT("/drafts/:scope/:section", h.Save)
	api.GET("/drafts/:scope/:section", h.Peek)
	api.DELETE("/drafts/:scope/:section", h.Discard)
}

func (h *Handler) Save(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())

	// Oversized drafts are refused without buffering the whole body.
	body, err := io.ReadAll(http.MaxBytesReader(nil, c.Request().Body, maxPayloadBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperr.Validation("payload", "exceeds the draft size limit")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	snap, err := h.svc.Save(c.Request().Context(), session, c.Param("scope"), c.Param("section"), json.RawMessage(body))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) Peek(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())

	snap, err := h.svc.Peek(c.Request().Context(), session, c.Param("scope"), c.Param("section"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) Discard(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())

	if err := h.svc.Discard(c.Request().Context(), session, c.Param("scope"), c.Param("section")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
