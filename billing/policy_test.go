package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/school"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) school.Date {
	date, err := school.ParseDate("date", s)
	if err != nil {
		panic(err)
	}
	return date
}

func m(s string) decimal.Decimal {
	return school.MustMoney(s)
}

// standardPolicy: 10 off up to 5 days early, 2/day after 30 days of grace.
func standardPolicy() billing.Policy {
	return billing.Policy{
		DiscountAmount:       m("10"),
		DiscountDeadlineDays: 5,
		LateFeePerDay:        m("2"),
		GraceDays:            30,
	}
}

// =============================================================================
// EVALUATION TESTS
// =============================================================================

func TestEvaluate_Table(t *testing.T) {
	due := d("2025-06-10")
	tests := []struct {
		name        string
		paid        string
		feeEligible bool
		discount    string
		fee         string
		final       string
		daysLate    int
	}{
		{"two days early earns discount", "2025-06-08", true, "10", "0", "290", -2},
		{"on due date earns discount", "2025-06-10", true, "10", "0", "290", 0},
		{"five days early still earns discount", "2025-06-05", true, "10", "0", "290", -5},
		{"six days early is too early", "2025-06-04", true, "0", "0", "300", -6},
		{"late within grace", "2025-07-10", true, "0", "0", "300", 30},
		{"first day past grace", "2025-07-11", true, "0", "2", "302", 31},
		{"71 days late", "2025-08-20", true, "0", "82", "382", 71},
		{"71 days late but exempt", "2025-08-20", false, "0", "0", "300", 71},
		{"exempt early payment still discounted", "2025-06-08", false, "10", "0", "290", -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paid := d(tt.paid)
			ev := standardPolicy().Evaluate(m("300.00"), due, &paid, tt.feeEligible)

			assert.True(t, ev.Discount.Equal(m(tt.discount)), "discount %s", ev.Discount)
			assert.True(t, ev.LateFee.Equal(m(tt.fee)), "late fee %s", ev.LateFee)
			assert.True(t, ev.Final.Equal(m(tt.final)), "final %s", ev.Final)
			assert.Equal(t, tt.daysLate, ev.DaysLate)
			assert.NotEmpty(t, ev.Note)
		})
	}
}

func TestEvaluate_AwaitingPayment(t *testing.T) {
	// GIVEN: No payment date
	// WHEN: Evaluating
	ev := standardPolicy().Evaluate(m("300"), d("2025-06-10"), nil, true)

	// THEN: Original unchanged
	assert.True(t, ev.Final.Equal(m("300")))
	assert.True(t, ev.Discount.IsZero())
	assert.True(t, ev.LateFee.IsZero())
	assert.Equal(t, billing.NoteAwaitingPayment, ev.Note)
}

func TestEvaluate_DiscountLargerThanCharge_ClampsAtZero(t *testing.T) {
	p := standardPolicy()
	p.DiscountAmount = m("500")
	paid := d("2025-06-10")

	ev := p.Evaluate(m("300"), d("2025-06-10"), &paid, true)

	assert.True(t, ev.Final.IsZero())
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	paid := d("2025-08-20")
	first := standardPolicy().Evaluate(m("300"), d("2025-06-10"), &paid, true)
	for i := 0; i < 5; i++ {
		again := standardPolicy().Evaluate(m("300"), d("2025-06-10"), &paid, true)
		assert.Equal(t, first, again)
	}
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, standardPolicy().Validate())
	assert.NoError(t, billing.DefaultPolicy().Validate())

	bad := standardPolicy()
	bad.LateFeePerDay = m("-1")
	assert.ErrorIs(t, bad.Validate(), school.ErrValidation)

	bad = standardPolicy()
	bad.GraceDays = -3
	assert.ErrorIs(t, bad.Validate(), school.ErrValidation)
}

func TestFeeEligible(t *testing.T) {
	enrollment := d("2025-06-15")
	assert.False(t, billing.FeeEligible(school.NewMonth(2025, time.May), enrollment))
	assert.True(t, billing.FeeEligible(school.NewMonth(2025, time.June), enrollment))
	assert.True(t, billing.FeeEligible(school.NewMonth(2025, time.December), enrollment))
	assert.True(t, billing.FeeEligible(school.NewMonth(2026, time.January), enrollment))
}
