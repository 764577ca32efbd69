package aifeedback

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/intake/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:id/ai-opinion", h.RequestOpinion, auth.RequireRole(auth.RoleDoctor))
	api.GET("/patients/:id/ai-opinion", h.GetOpinion)
	api.POST("/assessments/:patientId/ai-feedback", h.Judge, auth.RequireRole(auth.RoleDoctor))
}

func (h *Handler) RequestOpinion(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	view, err := h.svc.RequestOpinion(c.Request().Context(), session, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetOpinion(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	view, err := h.svc.GetOpinion(c.Request().Context(), session, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Judge(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var in JudgeInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.svc.Judge(c.Request().Context(), session, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}
