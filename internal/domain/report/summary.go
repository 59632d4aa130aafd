// Package report aggregates billed visits into financial summaries.
package report

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/clinicdesk/clinic/internal/domain/billing"
	"github.com/clinicdesk/clinic/internal/domain/visit"
)

// Summary totals the visits whose visit date falls in [From, To).
type Summary struct {
	DoctorID       string                 `json:"doctor_id,omitempty"`
	From           *time.Time             `json:"from,omitempty"`
	To             *time.Time             `json:"to,omitempty"`
	Visits         int                    `json:"visits"`
	ByStatus       map[billing.Status]int `json:"by_status"`
	ServiceTotal   int64                  `json:"service_total"`
	DiscountTotal  int64                  `json:"discount_total"`
	FinalTotal     int64                  `json:"final_total"`
	CollectedTotal int64                  `json:"collected_total"`
	RemainingTotal int64                  `json:"remaining_total"`
	ByPaymentType  map[string]int64       `json:"collected_by_payment_type"`
	FirstInvoice   int64                  `json:"first_invoice,omitempty"`
	LastInvoice    int64                  `json:"last_invoice,omitempty"`
	Outstanding    []OutstandingInvoice   `json:"outstanding"`
}

// OutstandingInvoice is a visit that still has money owed.
type OutstandingInvoice struct {
	InvoiceNumber   int64     `json:"invoice_number"`
	VisitDate       time.Time `json:"visit_date"`
	RemainingAmount int64     `json:"remaining_amount"`
}

// unspecifiedPayment groups collections recorded without a payment type.
const unspecifiedPayment = "Unspecified"

// Summarize totals visits dated in [from, to). A zero bound is open.
func Summarize(visits []visit.Visit, from, to time.Time) *Summary {
	in := lo.Filter(visits, func(v visit.Visit, _ int) bool {
		if !from.IsZero() && v.VisitDate.Before(from) {
			return false
		}
		if !to.IsZero() && !v.VisitDate.Before(to) {
			return false
		}
		return true
	})

	s := &Summary{
		Visits: len(in),
		ByStatus: map[billing.Status]int{
			billing.StatusPaid:    lo.CountBy(in, func(v visit.Visit) bool { return v.Status == billing.StatusPaid }),
			billing.StatusPartial: lo.CountBy(in, func(v visit.Visit) bool { return v.Status == billing.StatusPartial }),
			billing.StatusUnpaid:  lo.CountBy(in, func(v visit.Visit) bool { return v.Status == billing.StatusUnpaid }),
		},
		ServiceTotal:   lo.SumBy(in, func(v visit.Visit) int64 { return v.ServiceTotal }),
		DiscountTotal:  lo.SumBy(in, func(v visit.Visit) int64 { return v.DiscountValue }),
		FinalTotal:     lo.SumBy(in, func(v visit.Visit) int64 { return v.FinalAmount }),
		CollectedTotal: lo.SumBy(in, func(v visit.Visit) int64 { return v.CollectedAmount }),
		RemainingTotal: lo.SumBy(in, func(v visit.Visit) int64 { return v.RemainingAmount }),
		ByPaymentType:  map[string]int64{},
		Outstanding:    []OutstandingInvoice{},
	}
	if !from.IsZero() {
		s.From = &from
	}
	if !to.IsZero() {
		s.To = &to
	}

	byType := lo.GroupBy(in, func(v visit.Visit) string {
		if v.PaymentType == "" {
			return unspecifiedPayment
		}
		return string(v.PaymentType)
	})
	for pt, group := range byType {
		if sum := lo.SumBy(group, func(v visit.Visit) int64 { return v.CollectedAmount }); sum > 0 {
			s.ByPaymentType[pt] = sum
		}
	}

	if len(in) > 0 {
		numbers := lo.Map(in, func(v visit.Visit, _ int) int64 { return v.InvoiceNumber })
		s.FirstInvoice = lo.Min(numbers)
		s.LastInvoice = lo.Max(numbers)
	}

	owed := lo.Filter(in, func(v visit.Visit, _ int) bool { return v.RemainingAmount > 0 })
	for _, v := range owed {
		s.Outstanding = append(s.Outstanding, OutstandingInvoice{
			InvoiceNumber:   v.InvoiceNumber,
			VisitDate:       v.VisitDate,
			RemainingAmount: v.RemainingAmount,
		})
	}
	sort.Slice(s.Outstanding, func(i, j int) bool {
		return s.Outstanding[i].InvoiceNumber < s.Outstanding[j].InvoiceNumber
	})
	return s
}
