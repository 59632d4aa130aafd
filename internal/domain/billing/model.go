package billing

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Status is the payment state of a bill. It is always derived from the
// bill's amounts and is never set directly.
type Status string

const (
	StatusUnpaid  Status = "Unpaid"
	StatusPartial Status = "Partial"
	StatusPaid    Status = "Paid"
)

// StatusFor derives the status from the remaining and collected amounts.
// A bill with nothing remaining is Paid even when nothing was collected
// (fully discounted visits).
func StatusFor(remaining, collected int64) Status {
	switch {
	case remaining == 0:
		return StatusPaid
	case collected > 0:
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

type PaymentType string

const (
	PaymentCash  PaymentType = "Cash"
	PaymentCard  PaymentType = "Card"
	PaymentSBI   PaymentType = "SBI"
	PaymentICICI PaymentType = "ICICI"
	PaymentHDFC  PaymentType = "HDFC"
	PaymentOther PaymentType = "Other"
)

var paymentTypes = []PaymentType{
	PaymentCash, PaymentCard, PaymentSBI, PaymentICICI, PaymentHDFC, PaymentOther,
}

// ParsePaymentType matches s case-insensitively against the closed set of
// payment types. The second result is false for anything outside the set.
func ParsePaymentType(s string) (PaymentType, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, pt := range paymentTypes {
		if strings.EqualFold(string(pt), s) {
			return pt, true
		}
	}
	return "", false
}

// ServiceLine is one billed service on a visit.
type ServiceLine struct {
	ServiceID  *string `json:"service_id,omitempty"`
	Name       string  `json:"name"`
	UnitAmount Amount  `json:"unit_amount"`
}

// ServiceList is the ordered list of services billed on a visit. Any JSON
// value other than an array of service objects decodes to an empty list.
type ServiceList []ServiceLine

func (l *ServiceList) UnmarshalJSON(b []byte) error {
	*l = nil
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	lines := make(ServiceList, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		var line ServiceLine
		if len(item) == 0 || item[0] != '{' || json.Unmarshal(item, &line) != nil {
			return nil
		}
		lines = append(lines, line)
	}
	*l = lines
	return nil
}

// Clone returns a deep copy of the list.
func (l ServiceList) Clone() ServiceList {
	if l == nil {
		return nil
	}
	out := make(ServiceList, len(l))
	for i, s := range l {
		out[i] = s
		if s.ServiceID != nil {
			id := *s.ServiceID
			out[i].ServiceID = &id
		}
	}
	return out
}

// DiscountSpec is the discount exactly as the operator entered it. It is
// stored verbatim next to the applied (clamped) discount value.
type DiscountSpec struct {
	Raw       Amount `json:"raw"`
	IsPercent bool   `json:"is_percent"`
}

// BillResult holds the computed financial facts of a visit. All amounts are
// whole currency units.
type BillResult struct {
	ServiceTotal    int64        `json:"service_total"`
	DiscountValue   int64        `json:"discount_value"`
	FinalAmount     int64        `json:"final_amount"`
	CollectedAmount int64        `json:"collected_amount"`
	RemainingAmount int64        `json:"remaining_amount"`
	Status          Status       `json:"status"`
	Discount        DiscountSpec `json:"discount"`
}
