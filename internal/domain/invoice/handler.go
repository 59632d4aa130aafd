package invoice

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleStaff))
	read.GET("/doctors/:doctor_id/invoice-counter", h.GetCounter)
}

// CounterResponse reports the last invoice number handed out for a doctor.
type CounterResponse struct {
	DoctorID string `json:"doctor_id"`
	Current  int64  `json:"current"`
}

func (h *Handler) GetCounter(c echo.Context) error {
	doctorID := c.Param("doctor_id")
	ctx := c.Request().Context()
	if !auth.CanAccessDoctor(ctx, doctorID) {
		return echo.NewHTTPError(http.StatusForbidden, "access to this doctor is not allowed")
	}

	n, err := h.svc.Current(ctx, doctorID)
	switch {
	case errors.Is(err, ErrInvalidDoctor):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrCounterUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "invoice counter unavailable")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, CounterResponse{DoctorID: doctorID, Current: n})
}
