package visit

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic/internal/domain/billing"
)

// Appointment is the aggregate root. Visits are owned by it and are only
// ever written back as a whole, guarded by Version.
type Appointment struct {
	ID          uuid.UUID  `json:"id"`
	DoctorID    string     `json:"doctor_id"`
	PatientID   string     `json:"patient_id"`
	Reason      string     `json:"reason,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Visits      []Visit    `json:"visits"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Visit is one billed encounter. Every amount and the status come from a
// single billing computation; none of them is patched on its own.
type Visit struct {
	ID              uuid.UUID            `json:"id"`
	InvoiceNumber   int64                `json:"invoice_number"`
	VisitDate       time.Time            `json:"visit_date"`
	Services        billing.ServiceList  `json:"services"`
	Discount        billing.DiscountSpec `json:"discount"`
	ServiceTotal    int64                `json:"service_total"`
	DiscountValue   int64                `json:"discount_value"`
	FinalAmount     int64                `json:"final_amount"`
	CollectedAmount int64                `json:"collected_amount"`
	RemainingAmount int64                `json:"remaining_amount"`
	Status          billing.Status       `json:"status"`
	PaymentType     billing.PaymentType  `json:"payment_type,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// Bill returns the stored billing figures.
func (v *Visit) Bill() *billing.BillResult {
	return &billing.BillResult{
		ServiceTotal:    v.ServiceTotal,
		DiscountValue:   v.DiscountValue,
		FinalAmount:     v.FinalAmount,
		CollectedAmount: v.CollectedAmount,
		RemainingAmount: v.RemainingAmount,
		Status:          v.Status,
		Discount:        v.Discount,
	}
}

func (v *Visit) applyBill(b *billing.BillResult) {
	v.ServiceTotal = b.ServiceTotal
	v.DiscountValue = b.DiscountValue
	v.FinalAmount = b.FinalAmount
	v.CollectedAmount = b.CollectedAmount
	v.RemainingAmount = b.RemainingAmount
	v.Status = b.Status
	v.Discount = b.Discount
}

func (v Visit) clone() Visit {
	v.Services = v.Services.Clone()
	return v
}

// visitIndex returns the position of the visit with id, or -1.
func (a *Appointment) visitIndex(id uuid.UUID) int {
	for i := range a.Visits {
		if a.Visits[i].ID == id {
			return i
		}
	}
	return -1
}

// cloneVisits returns a deep copy of the visit list so that a fetched
// snapshot is never mutated.
func (a *Appointment) cloneVisits() []Visit {
	out := make([]Visit, len(a.Visits))
	for i := range a.Visits {
		out[i] = a.Visits[i].clone()
	}
	return out
}

// VisitInput is the full set of caller-editable visit fields.
type VisitInput struct {
	VisitDate   *time.Time           `json:"visit_date"`
	Services    billing.ServiceList  `json:"services"`
	Discount    billing.DiscountSpec `json:"discount"`
	Collected   billing.Amount       `json:"collected"`
	PaymentType string               `json:"payment_type"`
	Notes       string               `json:"notes"`
}

// AmountVisitInput is the legacy single-amount visit.
type AmountVisitInput struct {
	VisitDate   *time.Time     `json:"visit_date"`
	Amount      billing.Amount `json:"amount"`
	PaymentType string         `json:"payment_type"`
	Notes       string         `json:"notes"`
}

// PaymentInput updates collection details. Nil fields keep the stored value.
type PaymentInput struct {
	Collected   *billing.Amount `json:"collected"`
	PaymentType *string         `json:"payment_type"`
	Notes       *string         `json:"notes"`
}

// ListFilter narrows appointment listings. Empty fields match everything.
type ListFilter struct {
	DoctorID  string
	PatientID string
}
