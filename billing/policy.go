/*
Package billing implements tuition charging: the billing policy engine, the
charge ledger and the monthly charge generator.

PURPOSE:
  Turns "a student owes 300.00 a month from June" into concrete monthly
  Charges, and turns "paid on the 8th" into a discount, a late fee and a
  final amount.

KEY CONCEPTS IN THIS FILE (policy.go):
  - Policy: early-payment discount + late fee after a grace period
  - Evaluation: the outcome of applying a Policy to one payment
  - FeeEligible: months before enrollment never accrue late fees

EVALUATION RULES:
  delta = paymentDate - dueDate (days)
  delta <= 0 and |delta| <= DiscountDeadlineDays  -> discount = DiscountAmount
  delta >  GraceDays and charge is fee-eligible   -> fee = (delta - GraceDays) * LateFeePerDay
  final = max(0, original - discount + fee)

  Evaluate is pure: the same inputs always give the same Evaluation. Live
  payment processing and what-if previews both call it.

EXAMPLE:
  p := billing.Policy{DiscountAmount: d("10"), DiscountDeadlineDays: 5,
                      LateFeePerDay: d("2"), GraceDays: 30}
  ev := p.Evaluate(d("300"), due, &paidOn, true)

SEE ALSO:
  - ledger.go: applies Evaluations to stored charges
  - generator.go: decides which months are fee-eligible
  - factory/policy.go: JSON form of a Policy
*/
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/tuition-engine/school"
)

// =============================================================================
// POLICY
// =============================================================================

// Policy configures date-dependent adjustments.
type Policy struct {
	// DiscountAmount is the fixed discount for early or on-time payment.
	DiscountAmount decimal.Decimal

	// DiscountDeadlineDays: a payment made up to this many days before the
	// due date (or on it) still earns the discount.
	DiscountDeadlineDays int

	// LateFeePerDay is charged for each day late beyond the grace period.
	LateFeePerDay decimal.Decimal

	// GraceDays after the due date before late fees start.
	GraceDays int
}

// DefaultPolicy applies no discount and no late fee.
func DefaultPolicy() Policy {
	return Policy{DiscountAmount: decimal.Zero, LateFeePerDay: decimal.Zero}
}

// Validate rejects negative settings.
func (p Policy) Validate() error {
	if err := school.RequireNonNegative("discount_amount", p.DiscountAmount); err != nil {
		return err
	}
	if err := school.RequireNonNegative("late_fee_per_day", p.LateFeePerDay); err != nil {
		return err
	}
	if p.DiscountDeadlineDays < 0 {
		return school.Invalid("discount_deadline_days", "must not be negative")
	}
	if p.GraceDays < 0 {
		return school.Invalid("grace_days", "must not be negative")
	}
	return nil
}

// =============================================================================
// EVALUATION
// =============================================================================

// Evaluation is the result of applying a Policy to one payment.
type Evaluation struct {
	Final    decimal.Decimal
	Discount decimal.Decimal
	LateFee  decimal.Decimal
	DaysLate int // negative when paid early
	Note     string
}

const NoteAwaitingPayment = "awaiting payment"

// Evaluate computes discount, late fee and final amount for a payment on
// paymentDate of a charge due on dueDate. A nil paymentDate means the
// charge is still open.
func (p Policy) Evaluate(original decimal.Decimal, dueDate school.Date, paymentDate *school.Date, feeEligible bool) Evaluation {
	ev := Evaluation{
		Final:    original,
		Discount: decimal.Zero,
		LateFee:  decimal.Zero,
	}
	if paymentDate == nil {
		ev.Note = NoteAwaitingPayment
		return ev
	}

	delta := paymentDate.DaysSince(dueDate)
	ev.DaysLate = delta

	switch {
	case delta <= 0:
		if -delta <= p.DiscountDeadlineDays && p.DiscountAmount.IsPositive() {
			ev.Discount = p.DiscountAmount
			ev.Note = fmt.Sprintf("early payment discount (%d days before due date)", -delta)
		} else {
			ev.Note = "paid on time"
		}
	case !feeEligible:
		ev.Note = fmt.Sprintf("%d days late, exempt from late fee", delta)
	case delta > p.GraceDays:
		chargeable := delta - p.GraceDays
		ev.LateFee = p.LateFeePerDay.Mul(decimal.NewFromInt(int64(chargeable)))
		ev.Note = fmt.Sprintf("%d days late, late fee for %d days after grace", delta, chargeable)
	default:
		ev.Note = fmt.Sprintf("%d days late, within grace period", delta)
	}

	ev.Final = school.ComputeFinal(original, ev.Discount, ev.LateFee, decimal.Zero)
	return ev
}

// FeeEligible reports whether a charge for period may ever accrue a late
// fee for a student enrolled on enrollment: only months from the enrollment
// month onwards are eligible.
func FeeEligible(period school.Month, enrollment school.Date) bool {
	return !period.Before(enrollment.MonthOf())
}
