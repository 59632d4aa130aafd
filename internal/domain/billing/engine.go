package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountOnlyServiceName names the single line recorded for visits created
// through the amount-only path.
const AmountOnlyServiceName = "Consultation"

var hundred = decimal.NewFromInt(100)

// Calculator computes visit bills. The zero value is the permissive
// calculator: negative service amounts pass through the arithmetic.
type Calculator struct {
	RejectNegativeAmounts bool
}

var defaultCalculator Calculator

// ComputeBill computes a bill with the default calculator.
func ComputeBill(services ServiceList, discount DiscountSpec, collected Amount) (*BillResult, error) {
	return defaultCalculator.Compute(services, discount, collected)
}

// Compute derives totals, the applied discount, the final and remaining
// amounts and the payment status. It performs no I/O and is deterministic.
//
// The discount is clamped to [0, serviceTotal] and rounded half away from
// zero to whole units. A collected amount larger than the final amount is
// rejected with ErrCollectedExceedsFinal; negative collected input counts
// as zero. Any input or total whose magnitude exceeds MaxAmount fails with
// ErrAmountOutOfRange.
func (c Calculator) Compute(services ServiceList, discount DiscountSpec, collected Amount) (*BillResult, error) {
	if len(services) == 0 {
		return nil, ErrEmptyServices
	}
	if !inRange(discount.Raw.Decimal) || !inRange(collected.Decimal) {
		return nil, ErrAmountOutOfRange
	}

	sum := decimal.Zero
	for _, s := range services {
		if !inRange(s.UnitAmount.Decimal) {
			return nil, ErrAmountOutOfRange
		}
		if c.RejectNegativeAmounts && s.UnitAmount.IsNegative() {
			return nil, ErrNegativeServiceAmount
		}
		sum = sum.Add(s.UnitAmount.Decimal)
	}
	total := round0(sum)
	if !inRange(total) {
		return nil, ErrAmountOutOfRange
	}

	value := discount.Raw.Decimal
	if discount.IsPercent {
		value = total.Mul(value).Div(hundred)
	}
	value = round0(clamp(value, total))

	final := round0(total.Sub(value))

	received := decimal.Max(collected.Decimal, decimal.Zero)
	if received.GreaterThan(final) {
		return nil, ErrCollectedExceedsFinal
	}
	received = round0(received)
	remaining := round0(final.Sub(received))

	res := &BillResult{
		ServiceTotal:    total.IntPart(),
		DiscountValue:   value.IntPart(),
		FinalAmount:     final.IntPart(),
		CollectedAmount: received.IntPart(),
		RemainingAmount: remaining.IntPart(),
		Discount:        discount,
	}
	res.Status = StatusFor(res.RemainingAmount, res.CollectedAmount)
	return res, nil
}

// ComputeAmountOnly bills a single consultation line of the given amount
// with no discount and the full amount collected.
func (c Calculator) ComputeAmountOnly(amount Amount) (ServiceList, *BillResult, error) {
	if !inRange(amount.Decimal) {
		return nil, nil, ErrAmountOutOfRange
	}
	services := ServiceList{{Name: AmountOnlyServiceName, UnitAmount: amount}}
	final := Amount{round0(amount.Decimal)}
	bill, err := c.Compute(services, DiscountSpec{}, final)
	if err != nil {
		return nil, nil, err
	}
	return services, bill, nil
}

// Check verifies that r is consistent with services. It returns the first
// violated rule.
func (r *BillResult) Check(services ServiceList) error {
	sum := decimal.Zero
	for _, s := range services {
		sum = sum.Add(s.UnitAmount.Decimal)
	}
	if total := round0(sum).IntPart(); r.ServiceTotal != total {
		return fmt.Errorf("service total %d does not match services sum %d", r.ServiceTotal, total)
	}
	if r.DiscountValue < 0 || r.DiscountValue > r.ServiceTotal {
		return fmt.Errorf("discount %d outside [0, %d]", r.DiscountValue, r.ServiceTotal)
	}
	if r.FinalAmount != r.ServiceTotal-r.DiscountValue || r.FinalAmount < 0 {
		return fmt.Errorf("final amount %d inconsistent with total %d and discount %d",
			r.FinalAmount, r.ServiceTotal, r.DiscountValue)
	}
	if r.CollectedAmount < 0 || r.CollectedAmount > r.FinalAmount {
		return fmt.Errorf("collected %d outside [0, %d]", r.CollectedAmount, r.FinalAmount)
	}
	if r.RemainingAmount != r.FinalAmount-r.CollectedAmount {
		return fmt.Errorf("remaining %d != final %d - collected %d",
			r.RemainingAmount, r.FinalAmount, r.CollectedAmount)
	}
	if want := StatusFor(r.RemainingAmount, r.CollectedAmount); r.Status != want {
		return fmt.Errorf("status %s, want %s", r.Status, want)
	}
	return nil
}

// clamp bounds v to [0, max(upper, 0)].
func clamp(v, upper decimal.Decimal) decimal.Decimal {
	if upper.IsNegative() {
		upper = decimal.Zero
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(upper) {
		return upper
	}
	return v
}

func round0(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}
