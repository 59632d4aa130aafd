package visit

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinic/internal/domain/billing"
	"github.com/clinicdesk/clinic/internal/domain/invoice"
	"github.com/clinicdesk/clinic/internal/platform/auth"
	"github.com/clinicdesk/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Front desk and doctors share every read and billing route.
	desk := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleStaff))
	desk.POST("/appointments", h.CreateAppointment)
	desk.GET("/appointments", h.ListAppointments)
	desk.GET("/appointments/:id", h.GetAppointment)
	desk.GET("/appointments/:id/visits", h.ListVisits)
	desk.POST("/appointments/:id/visits", h.CreateVisit)
	desk.POST("/appointments/:id/visits/amount", h.CreateAmountVisit)
	desk.GET("/appointments/:id/visits/:visit_id", h.GetVisit)
	desk.PUT("/appointments/:id/visits/:visit_id", h.EditVisit)
	desk.PATCH("/appointments/:id/visits/:visit_id/payment", h.UpdateVisitPayment)
	desk.POST("/bill/preview", h.PreviewBill)

	// Removing a billed visit is left to doctors.
	desk.DELETE("/appointments/:id/visits/:visit_id", h.DeleteVisit, auth.RequireRole(auth.RoleDoctor))
}

// validationMessages are the user-facing texts for billing validation codes.
var validationMessages = map[string]string{
	billing.CodeEmptyServices:         "at least one service is required",
	billing.CodeCollectedExceedsFinal: "collected amount cannot exceed the final amount",
	billing.CodeNegativeServiceAmount: "service amounts cannot be negative",
	billing.CodeAmountOutOfRange:      "amounts cannot exceed 1000000000000",
}

// ValidationBody is the 422 response payload.
type ValidationBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpError maps service errors onto HTTP responses.
func httpError(err error) error {
	if ve, ok := billing.AsValidation(err); ok {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, ValidationBody{
			Code:    ve.Code,
			Message: validationMessages[ve.Code],
		})
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, invoice.ErrCounterUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "invoice counter unavailable, retry the request")
	case errors.Is(err, invoice.ErrInvalidDoctor):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Appointments --

func (h *Handler) CreateAppointment(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	p := pagination.FromContext(c)
	filter := ListFilter{
		DoctorID:  c.QueryParam("doctor_id"),
		PatientID: c.QueryParam("patient_id"),
	}
	items, total, err := h.svc.ListAppointments(c.Request().Context(), filter, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewPage(c, p, items, total))
}

// -- Visits --

func (h *Handler) CreateVisit(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in VisitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.CreateVisit(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) CreateAmountVisit(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in AmountVisitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.CreateAmountVisit(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) ListVisits(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	visits, err := h.svc.ListVisits(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, visits)
}

func (h *Handler) GetVisit(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	visitID, err := parseID(c, "visit_id")
	if err != nil {
		return err
	}
	v, err := h.svc.GetVisit(c.Request().Context(), id, visitID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) EditVisit(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	visitID, err := parseID(c, "visit_id")
	if err != nil {
		return err
	}
	var in VisitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.EditVisit(c.Request().Context(), id, visitID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) UpdateVisitPayment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	visitID, err := parseID(c, "visit_id")
	if err != nil {
		return err
	}
	var in PaymentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.UpdateVisitPayment(c.Request().Context(), id, visitID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) DeleteVisit(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	visitID, err := parseID(c, "visit_id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteVisit(c.Request().Context(), id, visitID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) PreviewBill(c echo.Context) error {
	var in VisitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	bill, err := h.svc.PreviewBill(in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, bill)
}
