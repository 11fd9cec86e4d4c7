package transfer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/school"
	"github.com/warp/tuition-engine/store/memory"
	"github.com/warp/tuition-engine/transfer"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func d(s string) school.Date {
	date, err := school.ParseDate("date", s)
	if err != nil {
		panic(err)
	}
	return date
}

func m(s string) decimal.Decimal { return school.MustMoney(s) }

type world struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Memory
	engine *transfer.Engine
	ledger *billing.Ledger
}

func newWorld(t *testing.T) *world {
	store := memory.New()
	engine := transfer.NewEngine(store, zap.NewNop())
	engine.Today = func() school.Date { return d("2025-07-01") }
	engine.Now = func() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) }
	return &world{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		engine: engine,
		ledger: billing.NewLedger(store, billing.DefaultPolicy(), zap.NewNop()),
	}
}

func (w *world) class(name, year string) school.Class {
	w.t.Helper()
	c := school.Class{Name: name, SchoolYear: year, DueDay: 10}
	require.NoError(w.t, w.store.CreateClass(w.ctx, &c))
	return c
}

// enroll creates an active student with a contract and generates charges
// from the enrollment month onwards.
func (w *world) enroll(class school.Class, amount, enrollment string) school.Student {
	w.t.Helper()
	st := school.Student{
		Name:           "Bruno Costa",
		BirthDate:      d("2016-09-12"),
		Status:         school.StudentActive,
		ClassID:        class.ID,
		MonthlyAmount:  m(amount),
		EnrollmentDate: d(enrollment),
	}
	require.NoError(w.t, w.store.CreateStudent(w.ctx, &st))
	contract := school.Contract{
		StudentID: st.ID, ClassID: class.ID, SchoolYear: class.SchoolYear,
		MonthlyAmount: m(amount), StartDate: d(enrollment), Status: school.ContractActive,
	}
	require.NoError(w.t, w.store.CreateContract(w.ctx, &contract))

	gen := billing.NewGenerator(w.store, billing.PreEnrollmentSkip, zap.NewNop())
	_, err := gen.GenerateForStudent(w.ctx, st.ID)
	require.NoError(w.t, err)
	return st
}

func (w *world) charges(id school.StudentID, f school.ChargeFilter) []school.Charge {
	w.t.Helper()
	f.StudentID = id
	out, err := w.store.ListCharges(w.ctx, f)
	require.NoError(w.t, err)
	return out
}

func (w *world) student(id school.StudentID) school.Student {
	w.t.Helper()
	st, err := w.store.GetStudent(w.ctx, id)
	require.NoError(w.t, err)
	return st
}

func (w *world) history(id school.StudentID) []school.TransferEntry {
	w.t.Helper()
	h, err := w.engine.History(w.ctx, id)
	require.NoError(w.t, err)
	return h
}

func (w *world) activeContracts(id school.StudentID) []school.Contract {
	w.t.Helper()
	out, err := w.store.ListContracts(w.ctx, school.ContractFilter{StudentID: id, Status: school.ContractActive})
	require.NoError(w.t, err)
	return out
}

func (w *world) pay(c school.Charge, on string) {
	w.t.Helper()
	_, err := w.ledger.RecordPayment(w.ctx, billing.PaymentInput{ChargeID: c.ID, PaymentDate: d(on)})
	require.NoError(w.t, err)
}

// =============================================================================
// SAME YEAR
// =============================================================================

func TestSameYear_ChangesAmountOfUnpaidCharges(t *testing.T) {
	// GIVEN: Enrolled in May in class A (2025): 8 charges, 2 of them paid
	w := newWorld(t)
	a, b := w.class("A", "2025"), w.class("B", "2025")
	st := w.enroll(a, "300.00", "2025-05-01")
	all := w.charges(st.ID, school.ChargeFilter{})
	require.Len(t, all, 8)
	w.pay(all[0], "2025-05-10")
	w.pay(all[1], "2025-06-10")

	// WHEN: Moving to class B at 350.00
	res, err := w.engine.SameYear(w.ctx, transfer.SameYearRequest{
		StudentID: st.ID, FromClassID: a.ID, ToClassID: b.ID,
		ChangeAmount: true, NewAmount: m("350.00"), Reason: "schedule",
	})
	require.NoError(t, err)

	// THEN: 6 unpaid charges repriced, paid ones untouched, one history row
	assert.Equal(t, 6, res.ChargesUpdated)
	for _, c := range w.charges(st.ID, school.ChargeFilter{Unpaid: true}) {
		assert.True(t, c.Original.Equal(m("350")), c.Period.String())
		assert.True(t, c.Final.Equal(m("350")), c.Period.String())
	}
	for _, c := range w.charges(st.ID, school.ChargeFilter{Statuses: []school.ChargeStatus{school.ChargePaid}}) {
		assert.True(t, c.Final.Equal(m("300")), c.Period.String())
	}

	moved := w.student(st.ID)
	assert.Equal(t, b.ID, moved.ClassID)
	assert.True(t, moved.MonthlyAmount.Equal(m("350")))

	contracts := w.activeContracts(st.ID)
	require.Len(t, contracts, 1)
	assert.Equal(t, b.ID, contracts[0].ClassID)
	assert.True(t, contracts[0].MonthlyAmount.Equal(m("350")))

	h := w.history(st.ID)
	require.Len(t, h, 1)
	assert.Equal(t, school.TransferSameYear, h[0].Type)
	assert.True(t, h[0].AmountChanged)
	assert.True(t, h[0].PreviousAmount.Equal(m("300")))
	assert.True(t, h[0].NewAmount.Equal(m("350")))
	assert.Equal(t, "2025-07-01", h[0].TransferDate.String())
	assert.NotEmpty(t, h[0].OperationID)
	assert.Equal(t, res.Entry.OperationID, h[0].OperationID)
}

func TestSameYear_WithoutAmountChange_LeavesCharges(t *testing.T) {
	w := newWorld(t)
	a, b := w.class("A", "2025"), w.class("B", "2025")
	st := w.enroll(a, "300", "2025-05-01")
	before := w.charges(st.ID, school.ChargeFilter{})

	res, err := w.engine.SameYear(w.ctx, transfer.SameYearRequest{StudentID: st.ID, FromClassID: a.ID, ToClassID: b.ID})
	require.NoError(t, err)

	assert.Zero(t, res.ChargesUpdated)
	assert.Equal(t, before, w.charges(st.ID, school.ChargeFilter{}))
	assert.False(t, w.history(st.ID)[0].AmountChanged)
}

func TestSameYear_PreservesAdjustments(t *testing.T) {
	// GIVEN: An unpaid charge carrying a manual other-adjustment
	w := newWorld(t)
	a, b := w.class("A", "2025"), w.class("B", "2025")
	st := w.enroll(a, "300", "2025-11-01")
	nov := w.charges(st.ID, school.ChargeFilter{})[0]
	nov.Other = m("-20")
	nov.Recompute()
	require.NoError(t, w.store.UpdateCharge(w.ctx, nov))

	// WHEN: Repricing to 350
	_, err := w.engine.SameYear(w.ctx, transfer.SameYearRequest{
		StudentID: st.ID, FromClassID: a.ID, ToClassID: b.ID, ChangeAmount: true, NewAmount: m("350"),
	})
	require.NoError(t, err)

	// THEN: final = 350 - 20
	got, err := w.store.GetCharge(w.ctx, nov.ID)
	require.NoError(t, err)
	assert.True(t, got.Other.Equal(m("-20")))
	assert.True(t, got.Final.Equal(m("330")))
}

func TestSameYear_Preconditions(t *testing.T) {
	w := newWorld(t)
	a, b, c := w.class("A", "2025"), w.class("B", "2025"), w.class("C", "2026")
	st := w.enroll(a, "300", "2025-05-01")

	tests := []struct {
		name string
		req  transfer.SameYearRequest
		want error
	}{
		{"same class", transfer.SameYearRequest{StudentID: st.ID, FromClassID: a.ID, ToClassID: a.ID}, school.ErrValidation},
		{"wrong source", transfer.SameYearRequest{StudentID: st.ID, FromClassID: b.ID, ToClassID: a.ID}, school.ErrWrongSourceClass},
		{"cross-year", transfer.SameYearRequest{StudentID: st.ID, FromClassID: a.ID, ToClassID: c.ID}, school.ErrWrongTransferType},
		{"negative amount", transfer.SameYearRequest{StudentID: st.ID, FromClassID: a.ID, ToClassID: b.ID, ChangeAmount: true, NewAmount: m("-1")}, school.ErrValidation},
		{"unknown student", transfer.SameYearRequest{StudentID: 999, FromClassID: a.ID, ToClassID: b.ID}, school.ErrNotFound},
		{"unknown class", transfer.SameYearRequest{StudentID: st.ID, FromClassID: a.ID, ToClassID: 999}, school.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.engine.SameYear(w.ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, w.history(st.ID))
}

func TestSameYear_WrongType_NamesDetectedType(t *testing.T) {
	w := newWorld(t)
	a, c := w.class("A", "2025"), w.class("C", "2026")
	st := w.enroll(a, "300", "2025-05-01")

	_, err := w.engine.SameYear(w.ctx, transfer.SameYearRequest{StudentID: st.ID, FromClassID: a.ID, ToClassID: c.ID})

	var wrong *school.WrongTransferTypeError
	require.True(t, errors.As(err, &wrong))
	assert.Equal(t, school.TransferNewYear, wrong.Detected)
	assert.Equal(t, "2026", wrong.ToYear)
}

func TestSameYear_InactiveStudent(t *testing.T) {
	w := newWorld(t)
	a, b := w.class("A", "2025"), w.class("B", "2025")
	st := w.enroll(a, "300", "2025-05-01")
	_, err := w.engine.Deactivate(w.ctx, transfer.DeactivateRequest{StudentID: st.ID})
	require.NoError(t, err)

	_, err = w.engine.SameYear(w.ctx, transfer.SameYearRequest{StudentID: st.ID, FromClassID: a.ID, ToClassID: b.ID})

	assert.ErrorIs(t, err, school.ErrStudentInactive)
}

// =============================================================================
// NEW YEAR
// =============================================================================

func TestNewYear_PromotesAndPreservesDebt(t *testing.T) {
	// GIVEN: Enrolled October 2025: 3 unpaid 2025 charges
	w := newWorld(t)
	a, c := w.class("A", "2025"), w.class("C", "2026")
	st := w.enroll(a, "300", "2025-10-01")
	old := w.charges(st.ID, school.ChargeFilter{Year: 2025})
	require.Len(t, old, 3)
	oldContract := w.activeContracts(st.ID)[0]

	// WHEN: Promoting to class C (2026) at 400.00
	res, err := w.engine.NewYear(w.ctx, transfer.NewYearRequest{
		StudentID: st.ID, FromClassID: a.ID, ToClassID: c.ID, NewContractAmount: m("400.00"),
	})
	require.NoError(t, err)

	// THEN: 10 new charges 2026-03..12 at 400, the 3 old ones untouched
	assert.Equal(t, 10, res.ChargesGenerated)
	assert.Equal(t, 3, res.PendingsPreserved)
	assert.Equal(t, 1, res.ClosedContracts)

	newCharges := w.charges(st.ID, school.ChargeFilter{Year: 2026})
	require.Len(t, newCharges, 10)
	assert.Equal(t, "2026-03", newCharges[0].Period.String())
	for _, ch := range newCharges {
		assert.True(t, ch.Original.Equal(m("400")))
		assert.True(t, ch.FeeEligible)
		require.NotNil(t, ch.ContractID)
		assert.Equal(t, res.ContractID, *ch.ContractID)
	}
	assert.Equal(t, old, w.charges(st.ID, school.ChargeFilter{Year: 2025}))

	closed, err := w.store.GetContract(w.ctx, oldContract.ID)
	require.NoError(t, err)
	assert.Equal(t, school.ContractClosed, closed.Status)
	require.NotNil(t, closed.EndDate)
	assert.Equal(t, "2025-07-01", closed.EndDate.String())

	active := w.activeContracts(st.ID)
	require.Len(t, active, 1)
	assert.Equal(t, "2026", active[0].SchoolYear)
	assert.Equal(t, c.ID, active[0].ClassID)

	promoted := w.student(st.ID)
	assert.Equal(t, c.ID, promoted.ClassID)
	assert.True(t, promoted.MonthlyAmount.Equal(m("400")))

	h := w.history(st.ID)
	require.Len(t, h, 1)
	assert.Equal(t, school.TransferNewYear, h[0].Type)
	assert.Equal(t, "2025", h[0].FromSchoolYear)
	assert.Equal(t, "2026", h[0].ToSchoolYear)
}

func TestNewYear_SameYearClasses_WrongType(t *testing.T) {
	w := newWorld(t)
	a, b := w.class("A", "2025"), w.class("B", "2025")
	st := w.enroll(a, "300", "2025-05-01")

	_, err := w.engine.NewYear(w.ctx, transfer.NewYearRequest{
		StudentID: st.ID, FromClassID: a.ID, ToClassID: b.ID, NewContractAmount: m("300"),
	})

	assert.ErrorIs(t, err, school.ErrWrongTransferType)
	assert.Len(t, w.activeContracts(st.ID), 1)
	assert.Empty(t, w.history(st.ID))
}

func TestNewYear_KeepsPreEnrollmentExemption(t *testing.T) {
	// GIVEN: Charges generated with bill-exempt pre-enrollment months
	w := newWorld(t)
	a, c := w.class("A", "2025"), w.class("C", "2026")
	st := school.Student{
		Name: "Clara", Status: school.StudentActive, ClassID: a.ID,
		MonthlyAmount: m("300"), EnrollmentDate: d("2025-06-01"),
	}
	require.NoError(t, w.store.CreateStudent(w.ctx, &st))
	_, err := billing.NewGenerator(w.store, billing.PreEnrollmentBillExempt, zap.NewNop()).GenerateForStudent(w.ctx, st.ID)
	require.NoError(t, err)

	// WHEN: Promoting
	_, err = w.engine.NewYear(w.ctx, transfer.NewYearRequest{
		StudentID: st.ID, FromClassID: a.ID, ToClassID: c.ID, NewContractAmount: m("300"),
	})
	require.NoError(t, err)

	// THEN: January..May 2025 are still fee-exempt
	for _, ch := range w.charges(st.ID, school.ChargeFilter{Year: 2025}) {
		assert.Equal(t, ch.Period.Month >= time.June, ch.FeeEligible, ch.Period.String())
	}
}

// =============================================================================
// DEACTIVATION / REACTIVATION
// =============================================================================

func TestDeactivate_KeepsDebtAndReportsIt(t *testing.T) {
	// GIVEN: Two unpaid charges totalling 600.00
	w := newWorld(t)
	a := w.class("A", "2025")
	st := w.enroll(a, "300.00", "2025-11-01")
	before := w.charges(st.ID, school.ChargeFilter{})
	require.Len(t, before, 2)

	// WHEN: Deactivating
	res, err := w.engine.Deactivate(w.ctx, transfer.DeactivateRequest{StudentID: st.ID, Reason: "moved away"})
	require.NoError(t, err)

	// THEN: Outstanding reported, charges unchanged
	assert.Equal(t, 2, res.OutstandingCount)
	assert.Equal(t, "600.00", res.OutstandingTotal.StringFixed(2))
	assert.Equal(t, before, w.charges(st.ID, school.ChargeFilter{}))

	got := w.student(st.ID)
	assert.Equal(t, school.StudentInactive, got.Status)
	require.NotNil(t, got.DeactivatedOn)
	assert.Equal(t, "2025-07-01", got.DeactivatedOn.String())
	assert.Equal(t, "moved away", got.DeactivationReason)
	assert.Empty(t, w.activeContracts(st.ID))

	inactive, err := w.engine.ListInactiveStudents(w.ctx)
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, st.ID, inactive[0].Student.ID)
	assert.Equal(t, 2, inactive[0].PendingCount)
	assert.Equal(t, "600.00", inactive[0].PendingValue.StringFixed(2))

	h := w.history(st.ID)
	require.Len(t, h, 1)
	assert.Equal(t, school.TransferDeactivation, h[0].Type)
	assert.Nil(t, h[0].ToClassID)
}

func TestDeactivate_AlreadyInactive(t *testing.T) {
	w := newWorld(t)
	st := w.enroll(w.class("A", "2025"), "300", "2025-11-01")
	_, err := w.engine.Deactivate(w.ctx, transfer.DeactivateRequest{StudentID: st.ID})
	require.NoError(t, err)

	_, err = w.engine.Deactivate(w.ctx, transfer.DeactivateRequest{StudentID: st.ID})

	assert.ErrorIs(t, err, school.ErrAlreadyInactive)
	assert.Len(t, w.history(st.ID), 1)
}

func TestReactivate_AlreadyActive(t *testing.T) {
	w := newWorld(t)
	a := w.class("A", "2025")
	st := w.enroll(a, "300", "2025-11-01")

	_, err := w.engine.Reactivate(w.ctx, transfer.ReactivateRequest{StudentID: st.ID, ToClassID: a.ID, NewMonthlyAmount: m("300")})

	assert.ErrorIs(t, err, school.ErrAlreadyActive)
}

func TestDeactivateReactivate_RoundTrip(t *testing.T) {
	// GIVEN: An active student with charges, one of them paid
	w := newWorld(t)
	a := w.class("A", "2025")
	st := w.enroll(a, "300.00", "2025-05-01")
	w.pay(w.charges(st.ID, school.ChargeFilter{})[0], "2025-05-09")
	chargesBefore := w.charges(st.ID, school.ChargeFilter{})
	contractsBefore, err := w.store.ListContracts(w.ctx, school.ContractFilter{StudentID: st.ID})
	require.NoError(t, err)

	// WHEN: Deactivating and reactivating into the same class at the same amount
	_, err = w.engine.Deactivate(w.ctx, transfer.DeactivateRequest{StudentID: st.ID, Reason: "travel"})
	require.NoError(t, err)
	res, err := w.engine.Reactivate(w.ctx, transfer.ReactivateRequest{
		StudentID: st.ID, ToClassID: a.ID, NewMonthlyAmount: m("300.00"), Reason: "back",
	})
	require.NoError(t, err)

	// THEN: Active again, charges byte-identical, one more contract, two history rows
	got := w.student(st.ID)
	assert.Equal(t, school.StudentActive, got.Status)
	assert.Equal(t, a.ID, got.ClassID)
	assert.Nil(t, got.DeactivatedOn)
	assert.Empty(t, got.DeactivationReason)

	assert.Equal(t, chargesBefore, w.charges(st.ID, school.ChargeFilter{}))

	contractsAfter, err := w.store.ListContracts(w.ctx, school.ContractFilter{StudentID: st.ID})
	require.NoError(t, err)
	assert.Len(t, contractsAfter, len(contractsBefore)+1)
	active := w.activeContracts(st.ID)
	require.Len(t, active, 1)
	assert.Equal(t, res.ContractID, active[0].ID)

	h := w.history(st.ID)
	require.Len(t, h, 2)
	assert.Equal(t, school.TransferDeactivation, h[0].Type)
	assert.Equal(t, school.TransferReactivation, h[1].Type)
	assert.Nil(t, h[1].FromClassID)
	require.NotNil(t, h[1].ToClassID)
	assert.Equal(t, a.ID, *h[1].ToClassID)
	assert.False(t, h[1].AmountChanged)
	assert.NotEqual(t, h[0].OperationID, h[1].OperationID)
}

// =============================================================================
// AUTO-DETECTION
// =============================================================================

func TestTransfer_DispatchesOnSchoolYear(t *testing.T) {
	w := newWorld(t)
	a, b, c := w.class("A", "2025"), w.class("B", "2025"), w.class("C", "2026")
	st := w.enroll(a, "300", "2025-10-01")

	same, err := w.engine.Transfer(w.ctx, transfer.TransferRequest{StudentID: st.ID, ToClassID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, school.TransferSameYear, same.Type)
	require.NotNil(t, same.SameYear)
	assert.Nil(t, same.NewYear)

	next, err := w.engine.Transfer(w.ctx, transfer.TransferRequest{StudentID: st.ID, ToClassID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, school.TransferNewYear, next.Type)
	require.NotNil(t, next.NewYear)
	// Without ChangeAmount the current amount carries over.
	assert.True(t, w.student(st.ID).MonthlyAmount.Equal(m("300")))
	assert.Equal(t, 10, next.NewYear.ChargesGenerated)
}

// =============================================================================
// ATOMICITY
// =============================================================================

// failingStore fails the history append, the last write of every transfer.
type failingStore struct {
	*memory.Memory
}

func (f failingStore) WithTx(ctx context.Context, fn func(school.Store) error) error {
	return f.Memory.WithTx(ctx, func(s school.Store) error {
		return fn(failingHistory{Store: s})
	})
}

type failingHistory struct {
	school.Store
}

var errDiskFull = errors.New("disk full")

func (failingHistory) AppendTransfer(context.Context, *school.TransferEntry) error {
	return errDiskFull
}

func TestTransfers_RollBackOnStorageFailure(t *testing.T) {
	w := newWorld(t)
	a, b, c := w.class("A", "2025"), w.class("B", "2025"), w.class("C", "2026")
	st := w.enroll(a, "300", "2025-05-01")
	broken := transfer.NewEngine(failingStore{w.store}, zap.NewNop())

	snapshot := func() (school.Student, []school.Charge, []school.Contract) {
		contracts, err := w.store.ListContracts(w.ctx, school.ContractFilter{StudentID: st.ID})
		require.NoError(t, err)
		return w.student(st.ID), w.charges(st.ID, school.ChargeFilter{}), contracts
	}
	student0, charges0, contracts0 := snapshot()

	ops := map[string]func() error{
		"same year": func() error {
			_, err := broken.SameYear(w.ctx, transfer.SameYearRequest{
				StudentID: st.ID, FromClassID: a.ID, ToClassID: b.ID, ChangeAmount: true, NewAmount: m("350"),
			})
			return err
		},
		"new year": func() error {
			_, err := broken.NewYear(w.ctx, transfer.NewYearRequest{
				StudentID: st.ID, FromClassID: a.ID, ToClassID: c.ID, NewContractAmount: m("400"),
			})
			return err
		},
		"deactivate": func() error {
			_, err := broken.Deactivate(w.ctx, transfer.DeactivateRequest{StudentID: st.ID})
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			assert.ErrorIs(t, err, school.ErrStorage)
			assert.ErrorIs(t, err, errDiskFull)

			student1, charges1, contracts1 := snapshot()
			assert.Equal(t, student0, student1)
			assert.Equal(t, charges0, charges1)
			assert.Equal(t, contracts0, contracts1)
			assert.Empty(t, w.history(st.ID))
		})
	}
}

// brokenReads fails every student and class lookup with a backend error.
type brokenReads struct {
	*memory.Memory
}

func (b brokenReads) WithTx(ctx context.Context, fn func(school.Store) error) error {
	return b.Memory.WithTx(ctx, func(s school.Store) error {
		return fn(brokenLookups{Store: s})
	})
}

func (brokenReads) GetStudent(context.Context, school.StudentID) (school.Student, error) {
	return school.Student{}, errDiskFull
}

func (brokenReads) GetClass(context.Context, school.ClassID) (school.Class, error) {
	return school.Class{}, errDiskFull
}

type brokenLookups struct {
	school.Store
}

func (brokenLookups) GetStudent(context.Context, school.StudentID) (school.Student, error) {
	return school.Student{}, errDiskFull
}

func (brokenLookups) GetClass(context.Context, school.ClassID) (school.Class, error) {
	return school.Class{}, errDiskFull
}

func TestTransfers_LookupFailuresAreStorageErrors(t *testing.T) {
	w := newWorld(t)
	a, b := w.class("A", "2025"), w.class("B", "2025")
	st := w.enroll(a, "300", "2025-05-01")
	broken := transfer.NewEngine(brokenReads{w.store}, zap.NewNop())

	ops := map[string]func() error{
		"same year": func() error {
			_, err := broken.SameYear(w.ctx, transfer.SameYearRequest{StudentID: st.ID, FromClassID: a.ID, ToClassID: b.ID})
			return err
		},
		"deactivate": func() error {
			_, err := broken.Deactivate(w.ctx, transfer.DeactivateRequest{StudentID: st.ID})
			return err
		},
		"reactivate": func() error {
			_, err := broken.Reactivate(w.ctx, transfer.ReactivateRequest{StudentID: st.ID, ToClassID: b.ID, NewMonthlyAmount: m("300")})
			return err
		},
		"transfer": func() error {
			_, err := broken.Transfer(w.ctx, transfer.TransferRequest{StudentID: st.ID, ToClassID: b.ID})
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			assert.ErrorIs(t, err, school.ErrStorage)
			assert.ErrorIs(t, err, errDiskFull)
			assert.False(t, school.IsNotFound(err))
		})
	}
}

func TestNewYear_MissingAmount_UsesClassDefault(t *testing.T) {
	// GIVEN: A 2026 class with a 420.00 default, and one without
	w := newWorld(t)
	a := w.class("A", "2025")
	bare := w.class("Bare", "2026")
	def := m("420")
	priced := school.Class{Name: "Priced", SchoolYear: "2026", DueDay: 10, DefaultMonthlyAmount: &def}
	require.NoError(t, w.store.CreateClass(w.ctx, &priced))
	st := w.enroll(a, "300", "2025-05-01")

	// WHEN: Promoting without an amount into the class with no default
	_, err := w.engine.NewYear(w.ctx, transfer.NewYearRequest{StudentID: st.ID, FromClassID: a.ID, ToClassID: bare.ID})

	// THEN: Rejected and nothing written
	assert.ErrorIs(t, err, school.ErrValidation)
	assert.Empty(t, w.history(st.ID))
	assert.Empty(t, w.charges(st.ID, school.ChargeFilter{Year: 2026}))

	// WHEN: Promoting without an amount into the priced class
	res, err := w.engine.NewYear(w.ctx, transfer.NewYearRequest{StudentID: st.ID, FromClassID: a.ID, ToClassID: priced.ID})
	require.NoError(t, err)

	// THEN: The contract, the student and the new charges use the default
	assert.True(t, res.Entry.NewAmount.Equal(m("420")))
	assert.True(t, w.student(st.ID).MonthlyAmount.Equal(m("420")))
	next := w.charges(st.ID, school.ChargeFilter{Year: 2026})
	require.Len(t, next, 10)
	for _, c := range next {
		assert.True(t, c.Original.Equal(m("420")), c.Period.String())
	}
}

func TestReactivate_MissingAmount(t *testing.T) {
	w := newWorld(t)
	a := w.class("A", "2025")
	def := m("350")
	priced := school.Class{Name: "Priced", SchoolYear: "2025", DueDay: 10, DefaultMonthlyAmount: &def}
	require.NoError(t, w.store.CreateClass(w.ctx, &priced))
	st := w.enroll(a, "300", "2025-05-01")
	_, err := w.engine.Deactivate(w.ctx, transfer.DeactivateRequest{StudentID: st.ID})
	require.NoError(t, err)

	_, err = w.engine.Reactivate(w.ctx, transfer.ReactivateRequest{StudentID: st.ID, ToClassID: a.ID})
	assert.ErrorIs(t, err, school.ErrValidation)
	assert.Equal(t, school.StudentInactive, w.student(st.ID).Status)

	res, err := w.engine.Reactivate(w.ctx, transfer.ReactivateRequest{StudentID: st.ID, ToClassID: priced.ID})
	require.NoError(t, err)
	assert.True(t, res.Entry.NewAmount.Equal(m("350")))
	assert.True(t, w.student(st.ID).MonthlyAmount.Equal(m("350")))
}
