/*
ledger.go - Charge ledger: payments, cancellations, status recalculation

PURPOSE:
  Owns every mutation of a Charge after it has been generated. The ledger
  keeps the final-amount invariant and the fee-eligibility rule no matter
  which caller (API, scheduler, scenario loader) drives it.

CRITICAL INVARIANTS:
  1. final == max(0, original - discount + lateFee + other) after every write
  2. fee-ineligible charges never carry a late fee
  3. Paid charges change only through CancelPayment

STATE MACHINE:
  Pending --RecordPayment--> Paid --CancelPayment--> Pending
  Pending --RecalculateStatuses (due date passed)--> Overdue
  Overdue --RecordPayment--> Paid
  Pending/Overdue --Void--> Void

SEE ALSO:
  - policy.go: computes discount and late fee for Pay/Preview
  - school/store.go: TxStore used for every write
*/
package billing

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/school"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger applies payments to stored charges.
type Ledger struct {
	store school.TxStore
	log   *zap.Logger

	mu     sync.RWMutex
	policy Policy
}

func NewLedger(store school.TxStore, policy Policy, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, policy: policy, log: log.Named("ledger")}
}

// Policy returns the active billing policy.
func (l *Ledger) Policy() Policy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.policy
}

// SetPolicy replaces the active billing policy.
func (l *Ledger) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.policy = p
	l.mu.Unlock()
	l.log.Info("billing policy updated",
		zap.String("discount_amount", p.DiscountAmount.String()),
		zap.Int("discount_deadline_days", p.DiscountDeadlineDays),
		zap.String("late_fee_per_day", p.LateFeePerDay.String()),
		zap.Int("grace_days", p.GraceDays))
	return nil
}

// PaymentInput is an explicit payment with caller-chosen adjustments.
type PaymentInput struct {
	ChargeID    school.ChargeID
	PaymentDate school.Date
	Discount    decimal.Decimal
	LateFee     decimal.Decimal
	Other       decimal.Decimal
	Notes       string
}

// RecordPayment marks a charge as paid with the given adjustments.
func (l *Ledger) RecordPayment(ctx context.Context, in PaymentInput) (school.Charge, error) {
	if in.PaymentDate.IsZero() {
		return school.Charge{}, school.Invalid("payment_date", "required")
	}
	if err := school.RequireNonNegative("discount", in.Discount); err != nil {
		return school.Charge{}, err
	}
	if err := school.RequireNonNegative("late_fee", in.LateFee); err != nil {
		return school.Charge{}, err
	}

	var paid school.Charge
	err := l.store.WithTx(ctx, func(s school.Store) error {
		c, err := s.GetCharge(ctx, in.ChargeID)
		if err != nil {
			return school.Storage("get charge", err)
		}
		if err := checkPayable(c); err != nil {
			return err
		}
		if !c.FeeEligible && in.LateFee.IsPositive() {
			return school.Invalid("late_fee", "charge "+c.Period.String()+" is exempt from late fees")
		}

		c.Discount = in.Discount
		c.LateFee = in.LateFee
		c.Other = in.Other
		c.Recompute()
		c.Status = school.ChargePaid
		c.PaidOn = school.DatePtr(in.PaymentDate)
		c.Notes = in.Notes

		if err := s.UpdateCharge(ctx, c); err != nil {
			return school.Storage("update charge", err)
		}
		paid = c
		return nil
	})
	if err != nil {
		return school.Charge{}, err
	}

	l.log.Info("payment recorded",
		zap.Int64("charge_id", int64(paid.ID)),
		zap.Int64("student_id", int64(paid.StudentID)),
		zap.String("period", paid.Period.String()),
		zap.String("final", paid.Final.String()))
	return paid, nil
}

// Pay records a payment whose discount and late fee come from the active
// policy. other is an extra adjustment chosen by the operator.
func (l *Ledger) Pay(ctx context.Context, id school.ChargeID, paymentDate school.Date, other decimal.Decimal, notes string) (school.Charge, Evaluation, error) {
	c, err := l.store.GetCharge(ctx, id)
	if err != nil {
		return school.Charge{}, Evaluation{}, school.Storage("get charge", err)
	}
	if err := checkPayable(c); err != nil {
		return school.Charge{}, Evaluation{}, err
	}

	ev := l.Policy().Evaluate(c.Original, c.DueDate, &paymentDate, c.FeeEligible)
	if notes == "" {
		notes = ev.Note
	}
	paid, err := l.RecordPayment(ctx, PaymentInput{
		ChargeID:    id,
		PaymentDate: paymentDate,
		Discount:    ev.Discount,
		LateFee:     ev.LateFee,
		Other:       other,
		Notes:       notes,
	})
	return paid, ev, err
}

// Preview evaluates a hypothetical payment without writing anything.
func (l *Ledger) Preview(ctx context.Context, id school.ChargeID, paymentDate *school.Date) (Evaluation, error) {
	c, err := l.store.GetCharge(ctx, id)
	if err != nil {
		return Evaluation{}, school.Storage("get charge", err)
	}
	return l.Policy().Evaluate(c.Original, c.DueDate, paymentDate, c.FeeEligible), nil
}

// CancelPayment reverts a paid charge to Pending with zero adjustments.
func (l *Ledger) CancelPayment(ctx context.Context, id school.ChargeID) (school.Charge, error) {
	var reverted school.Charge
	err := l.store.WithTx(ctx, func(s school.Store) error {
		c, err := s.GetCharge(ctx, id)
		if err != nil {
			return school.Storage("get charge", err)
		}
		if c.Status != school.ChargePaid {
			return school.ErrNotPaid
		}

		c.Discount = decimal.Zero
		c.LateFee = decimal.Zero
		c.Other = decimal.Zero
		c.Final = c.Original
		c.Status = school.ChargePending
		c.PaidOn = nil
		c.Notes = ""

		if err := s.UpdateCharge(ctx, c); err != nil {
			return school.Storage("update charge", err)
		}
		reverted = c
		return nil
	})
	if err != nil {
		return school.Charge{}, err
	}

	l.log.Info("payment cancelled",
		zap.Int64("charge_id", int64(reverted.ID)),
		zap.String("period", reverted.Period.String()))
	return reverted, nil
}

// Void cancels an unpaid charge. It stays in the ledger for history but no
// longer counts as debt.
func (l *Ledger) Void(ctx context.Context, id school.ChargeID, notes string) (school.Charge, error) {
	var voided school.Charge
	err := l.store.WithTx(ctx, func(s school.Store) error {
		c, err := s.GetCharge(ctx, id)
		if err != nil {
			return school.Storage("get charge", err)
		}
		if err := checkPayable(c); err != nil {
			return err
		}
		c.Status = school.ChargeVoid
		if notes != "" {
			c.Notes = notes
		}
		if err := s.UpdateCharge(ctx, c); err != nil {
			return school.Storage("update charge", err)
		}
		voided = c
		return nil
	})
	if err != nil {
		return school.Charge{}, err
	}
	l.log.Info("charge voided", zap.Int64("charge_id", int64(voided.ID)))
	return voided, nil
}

// RecalculateStatuses flags pending charges whose due date is before asOf
// as Overdue. Returns how many changed; running it twice changes nothing
// the second time.
func (l *Ledger) RecalculateStatuses(ctx context.Context, asOf school.Date) (int, error) {
	changed := 0
	err := l.store.WithTx(ctx, func(s school.Store) error {
		changed = 0
		charges, err := s.ListCharges(ctx, school.ChargeFilter{
			Statuses:  []school.ChargeStatus{school.ChargePending},
			DueBefore: &asOf,
		})
		if err != nil {
			return school.Storage("list charges", err)
		}
		for _, c := range charges {
			if c.PaidOn != nil {
				continue
			}
			c.Status = school.ChargeOverdue
			if err := s.UpdateCharge(ctx, c); err != nil {
				return school.Storage("update charge", err)
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		l.log.Info("charges marked overdue", zap.Int("count", changed), zap.Stringer("as_of", asOf))
	}
	return changed, nil
}

// Charges lists charges matching f.
func (l *Ledger) Charges(ctx context.Context, f school.ChargeFilter) ([]school.Charge, error) {
	charges, err := l.store.ListCharges(ctx, f)
	if err != nil {
		return nil, school.Storage("list charges", err)
	}
	return charges, nil
}

func checkPayable(c school.Charge) error {
	switch c.Status {
	case school.ChargePending, school.ChargeOverdue:
		return nil
	case school.ChargePaid:
		return school.ErrAlreadyPaid
	case school.ChargeVoid:
		return school.ErrChargeVoid
	}
	return school.Invalid("status", "unknown charge status "+string(c.Status))
}
