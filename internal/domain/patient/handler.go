package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/intake/internal/platform/auth"
	"github.com/clinicore/intake/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.CreateRecord, auth.RequireRole(auth.RoleAssistant))
	api.GET("/patients", h.ListRecords)
	api.GET("/patients/:id", h.GetRecord)
	api.PUT("/patients/:id", h.UpdateRecord)
	api.POST("/patients/:id/edit-request", h.SubmitEditRequest)
	api.GET("/patients/:id/edit-requests", h.ListEditRequests)
	api.POST("/patients/:id/edit-requests/:reqId/approve", h.ApproveEditRequest, auth.RequireRole(auth.RoleDoctor))
	api.POST("/patients/:id/edit-requests/:reqId/reject", h.RejectEditRequest, auth.RequireRole(auth.RoleDoctor))
	api.POST("/patients/:id/finalize", h.Finalize, auth.RequireRole(auth.RoleDoctor))
}

func (h *Handler) CreateRecord(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())

	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	rec, err := h.svc.CreateRecord(c.Request().Context(), session, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetRecord(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	rec, err := h.svc.GetRecord(c.Request().Context(), session, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRecords(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())
	p := pagination.FromContext(c)

	var status *Status
	if raw := c.QueryParam("status"); raw != "" {
		st := Status(raw)
		if !st.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		status = &st
	}

	var doctorID *uuid.UUID
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		doctorID = &id
	}

	records, total, err := h.svc.ListRecords(c.Request().Context(), session, doctorID, status, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, p.Limit, p.Offset))
}

type updateRequest struct {
	Changes Sections `json:"changes"`
	Reason  string   `json:"reason"`
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	outcome, err := h.svc.UpdateRecord(c.Request().Context(), session, id, req.Changes, req.Reason)
	if err != nil {
		return err
	}
	if outcome.EditRequest != nil {
		// The write was routed to approval, not applied.
		return c.JSON(http.StatusAccepted, outcome)
	}
	return c.JSON(http.StatusOK, outcome)
}

type editRequestBody struct {
	Reason  string   `json:"reason"`
	Changes Sections `json:"changes"`
}

func (h *Handler) SubmitEditRequest(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req editRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	er, err := h.svc.SubmitEditRequest(c.Request().Context(), session, id, req.Reason, req.Changes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, er)
}

func (h *Handler) ListEditRequests(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p := pagination.FromContext(c)

	reqs, total, err := h.svc.ListEditRequests(c.Request().Context(), session, id, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(reqs, total, p.Limit, p.Offset))
}

func (h *Handler) ApproveEditRequest(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	requestID, err := uuid.Parse(c.Param("reqId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request id")
	}

	rec, err := h.svc.ApproveEditRequest(c.Request().Context(), session, patientID, requestID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) RejectEditRequest(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	requestID, err := uuid.Parse(c.Param("reqId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request id")
	}

	if err := h.svc.RejectEditRequest(c.Request().Context(), session, patientID, requestID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Finalize(c echo.Context) error {
	session, _ := auth.SessionFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	rec, err := h.svc.Finalize(c.Request().Context(), session, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}
