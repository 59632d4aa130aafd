package report

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinic/internal/domain/visit"
	"github.com/clinicdesk/clinic/internal/platform/auth"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/reports", auth.RequireRole(auth.RoleDoctor, auth.RoleStaff))
	read.GET("/doctors/:doctor_id/summary", h.DoctorSummary)
}

// DoctorSummary serves the summary for one doctor. from and to accept a date
// or an RFC 3339 timestamp; a date-only to includes that whole day.
func (h *Handler) DoctorSummary(c echo.Context) error {
	from, err := parseBound(c.QueryParam("from"), false)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from: "+err.Error())
	}
	to, err := parseBound(c.QueryParam("to"), true)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to: "+err.Error())
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return echo.NewHTTPError(http.StatusBadRequest, "from must be before to")
	}

	sum, err := h.svc.DoctorSummary(c.Request().Context(), c.Param("doctor_id"), from, to)
	if err != nil {
		if errors.Is(err, visit.ErrForbidden) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

func parseBound(s string, upper bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		if upper {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
