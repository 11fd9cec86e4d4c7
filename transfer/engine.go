/*
Package transfer moves students between classes and school years, and in
and out of the active roster, without losing financial history.

PURPOSE:
  One state machine over a student's (status, class, contract) triple:

    Active@X --SameYear--> Active@Y      (same school-year label)
    Active@X --NewYear---> Active@Z      (different school-year label)
    Active@X --Deactivate--> Inactive
    Inactive --Reactivate--> Active@W

CRITICAL INVARIANTS:
  1. ATOMIC: each operation runs in one TxStore.WithTx; any failure rolls
     back the student, contract, charge and history writes together.
  2. AUDITED: each operation appends exactly one TransferEntry.
  3. DEBT SURVIVES: unpaid charges are never deleted, zeroed or cancelled by
     a transfer. NewYear and Deactivate leave them untouched.
  4. ONE CONTRACT: an active student has exactly one Active contract for
     the school year of their class.

TYPE DETECTION:
  SameYear vs NewYear is decided by comparing the school-year labels of the
  source and destination classes. Calling the wrong one fails with a
  WrongTransferTypeError naming the right one; Transfer() dispatches
  automatically.

SEE ALSO:
  - validate.go: dry-run checks with warnings
  - report.go: inactive students and their outstanding debt
  - billing/generator.go: NewYearCharges
*/
package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/school"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store school.TxStore
	log   *zap.Logger

	// Today returns the transfer date. Replaceable in tests.
	Today func() school.Date
	// Now stamps history rows.
	Now func() time.Time
}

func NewEngine(store school.TxStore, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store: store,
		log:   log.Named("transfer"),
		Today: school.Today,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// Classify returns SameYear when both classes share a school-year label and
// NewYear otherwise.
func Classify(from, to school.Class) school.TransferType {
	if from.SchoolYear == to.SchoolYear {
		return school.TransferSameYear
	}
	return school.TransferNewYear
}

// =============================================================================
// REQUESTS / RESULTS
// =============================================================================

type SameYearRequest struct {
	StudentID    school.StudentID
	FromClassID  school.ClassID
	ToClassID    school.ClassID
	ChangeAmount bool
	NewAmount    decimal.Decimal
	Reason       string
	Notes        string
}

type SameYearResult struct {
	Entry          school.TransferEntry
	ChargesUpdated int
}

type NewYearRequest struct {
	StudentID         school.StudentID
	FromClassID       school.ClassID
	ToClassID         school.ClassID
	NewContractAmount decimal.Decimal
	Reason            string
	Notes             string
}

type NewYearResult struct {
	Entry             school.TransferEntry
	ContractID        school.ContractID
	ClosedContracts   int
	ChargesGenerated  int
	PendingsPreserved int
}

type DeactivateRequest struct {
	StudentID school.StudentID
	Reason    string
	Notes     string
}

type DeactivateResult struct {
	Entry            school.TransferEntry
	OutstandingCount int
	OutstandingTotal decimal.Decimal
}

type ReactivateRequest struct {
	StudentID        school.StudentID
	ToClassID        school.ClassID
	NewMonthlyAmount decimal.Decimal
	Reason           string
	Notes            string
}

type ReactivateResult struct {
	Entry      school.TransferEntry
	ContractID school.ContractID
}

// TransferRequest is the auto-detecting form of SameYear/NewYear. Amount is
// the new monthly amount: for a same-year move it is applied only when
// ChangeAmount is set; for a new-year move it is the new contract amount.
type TransferRequest struct {
	StudentID    school.StudentID
	ToClassID    school.ClassID
	ChangeAmount bool
	Amount       decimal.Decimal
	Reason       string
	Notes        string
}

// TransferResult carries whichever result the detected type produced.
type TransferResult struct {
	Type     school.TransferType
	SameYear *SameYearResult
	NewYear  *NewYearResult
}

// =============================================================================
// SAME YEAR
// =============================================================================

// SameYear moves an active student to another class of the same school
// year, optionally repricing the unpaid charges of that year.
func (e *Engine) SameYear(ctx context.Context, req SameYearRequest) (SameYearResult, error) {
	if req.FromClassID == req.ToClassID {
		return SameYearResult{}, school.Invalid("to_class_id", "target class is the current class")
	}
	if req.ChangeAmount {
		if err := school.RequireNonNegative("new_amount", req.NewAmount); err != nil {
			return SameYearResult{}, err
		}
	}

	var res SameYearResult
	err := e.store.WithTx(ctx, func(s school.Store) error {
		res = SameYearResult{}
		st, from, to, err := e.loadMove(ctx, s, req.StudentID, req.FromClassID, req.ToClassID)
		if err != nil {
			return err
		}
		if detected := Classify(from, to); detected != school.TransferSameYear {
			return &school.WrongTransferTypeError{
				Requested: school.TransferSameYear, Detected: detected,
				FromYear: from.SchoolYear, ToYear: to.SchoolYear,
			}
		}

		previous := st.MonthlyAmount
		amountChanged := req.ChangeAmount && !req.NewAmount.Equal(previous)

		st.ClassID = to.ID
		if req.ChangeAmount {
			st.MonthlyAmount = req.NewAmount
		}
		if err := s.UpdateStudent(ctx, st); err != nil {
			return school.Storage("update student", err)
		}

		contract, err := activeContract(ctx, s, st.ID, from.SchoolYear)
		if err != nil {
			return err
		}
		if contract != nil {
			contract.ClassID = to.ID
			contract.MonthlyAmount = st.MonthlyAmount
			if err := s.UpdateContract(ctx, *contract); err != nil {
				return school.Storage("update contract", err)
			}
		}

		if req.ChangeAmount {
			res.ChargesUpdated, err = reprice(ctx, s, st.ID, from.SchoolYear, req.NewAmount)
			if err != nil {
				return err
			}
		}

		res.Entry, err = e.appendHistory(ctx, s, school.TransferEntry{
			StudentID:      st.ID,
			FromClassID:    classRef(from.ID),
			ToClassID:      classRef(to.ID),
			Type:           school.TransferSameYear,
			FromSchoolYear: from.SchoolYear,
			ToSchoolYear:   to.SchoolYear,
			PreviousAmount: previous,
			NewAmount:      st.MonthlyAmount,
			AmountChanged:  amountChanged,
			Reason:         req.Reason,
			Notes:          req.Notes,
		})
		return err
	})
	if err != nil {
		e.log.Warn("same-year transfer failed", zap.Int64("student_id", int64(req.StudentID)), zap.Error(err))
		return SameYearResult{}, err
	}

	e.log.Info("same-year transfer",
		zap.String("operation_id", res.Entry.OperationID),
		zap.Int64("student_id", int64(req.StudentID)),
		zap.Int64("from_class", int64(req.FromClassID)),
		zap.Int64("to_class", int64(req.ToClassID)),
		zap.Int("charges_updated", res.ChargesUpdated))
	return res, nil
}

// reprice rewrites original (and final) of the unpaid charges of a school
// year. Discount, late fee and other adjustments are kept.
func reprice(ctx context.Context, s school.Store, id school.StudentID, schoolYear string, amount decimal.Decimal) (int, error) {
	filter := school.ChargeFilter{StudentID: id, Unpaid: true}
	if year, err := school.SchoolYearNumber(schoolYear); err == nil {
		filter.Year = year
	}
	charges, err := s.ListCharges(ctx, filter)
	if err != nil {
		return 0, school.Storage("list charges", err)
	}
	updated := 0
	for _, c := range charges {
		if c.Original.Equal(amount) {
			continue
		}
		c.Original = amount
		c.Recompute()
		if err := s.UpdateCharge(ctx, c); err != nil {
			return 0, school.Storage("update charge", err)
		}
		updated++
	}
	return updated, nil
}

// =============================================================================
// NEW YEAR
// =============================================================================

// NewYear promotes an active student into a class of another school year:
// the old contract closes, a new one opens and the new year's charges are
// generated. Unpaid charges of earlier years are left as they are.
func (e *Engine) NewYear(ctx context.Context, req NewYearRequest) (NewYearResult, error) {
	if req.FromClassID == req.ToClassID {
		return NewYearResult{}, school.Invalid("to_class_id", "target class is the current class")
	}
	if err := school.RequireNonNegative("new_contract_amount", req.NewContractAmount); err != nil {
		return NewYearResult{}, err
	}

	var res NewYearResult
	err := e.store.WithTx(ctx, func(s school.Store) error {
		res = NewYearResult{}
		st, from, to, err := e.loadMove(ctx, s, req.StudentID, req.FromClassID, req.ToClassID)
		if err != nil {
			return err
		}
		if detected := Classify(from, to); detected != school.TransferNewYear {
			return &school.WrongTransferTypeError{
				Requested: school.TransferNewYear, Detected: detected,
				FromYear: from.SchoolYear, ToYear: to.SchoolYear,
			}
		}
		amount, err := contractAmount("new_contract_amount", req.NewContractAmount, to)
		if err != nil {
			return err
		}
		today := e.Today()

		pending, err := s.ListCharges(ctx, school.ChargeFilter{StudentID: st.ID, Unpaid: true})
		if err != nil {
			return school.Storage("list charges", err)
		}
		res.PendingsPreserved = len(pending)

		res.ClosedContracts, err = closeActiveContracts(ctx, s, st.ID, today)
		if err != nil {
			return err
		}
		contract := school.Contract{
			StudentID:     st.ID,
			ClassID:       to.ID,
			SchoolYear:    to.SchoolYear,
			MonthlyAmount: amount,
			StartDate:     today,
			Status:        school.ContractActive,
		}
		if err := s.CreateContract(ctx, &contract); err != nil {
			return school.Storage("create contract", err)
		}
		res.ContractID = contract.ID

		previous := st.MonthlyAmount
		st.ClassID = to.ID
		st.MonthlyAmount = amount
		if err := s.UpdateStudent(ctx, st); err != nil {
			return school.Storage("update student", err)
		}

		res.ChargesGenerated, err = billing.NewYearCharges(ctx, s, st.ID, contract.ID, to.SchoolYear, amount)
		if err != nil {
			return err
		}

		res.Entry, err = e.appendHistory(ctx, s, school.TransferEntry{
			StudentID:      st.ID,
			FromClassID:    classRef(from.ID),
			ToClassID:      classRef(to.ID),
			Type:           school.TransferNewYear,
			FromSchoolYear: from.SchoolYear,
			ToSchoolYear:   to.SchoolYear,
			PreviousAmount: previous,
			NewAmount:      amount,
			AmountChanged:  !previous.Equal(amount),
			Reason:         req.Reason,
			Notes:          req.Notes,
		})
		return err
	})
	if err != nil {
		e.log.Warn("new-year transfer failed", zap.Int64("student_id", int64(req.StudentID)), zap.Error(err))
		return NewYearResult{}, err
	}

	e.log.Info("new-year transfer",
		zap.String("operation_id", res.Entry.OperationID),
		zap.Int64("student_id", int64(req.StudentID)),
		zap.String("from_year", res.Entry.FromSchoolYear),
		zap.String("to_year", res.Entry.ToSchoolYear),
		zap.Int("charges_generated", res.ChargesGenerated),
		zap.Int("pendings_preserved", res.PendingsPreserved))
	return res, nil
}

// =============================================================================
// DEACTIVATION / REACTIVATION
// =============================================================================

// Deactivate takes a student off the active roster. Unpaid charges stay
// exactly as they are and remain queryable as outstanding debt.
func (e *Engine) Deactivate(ctx context.Context, req DeactivateRequest) (DeactivateResult, error) {
	var res DeactivateResult
	err := e.store.WithTx(ctx, func(s school.Store) error {
		res = DeactivateResult{}
		st, err := s.GetStudent(ctx, req.StudentID)
		if err != nil {
			return school.Storage("get student", err)
		}
		if !st.IsActive() {
			return school.ErrAlreadyInactive
		}
		class, err := s.GetClass(ctx, st.ClassID)
		if err != nil {
			return school.Storage("get class", err)
		}
		today := e.Today()

		st.Status = school.StudentInactive
		st.DeactivatedOn = school.DatePtr(today)
		st.DeactivationReason = req.Reason
		if err := s.UpdateStudent(ctx, st); err != nil {
			return school.Storage("update student", err)
		}
		if _, err := closeActiveContracts(ctx, s, st.ID, today); err != nil {
			return err
		}

		outstanding, err := s.ListCharges(ctx, school.ChargeFilter{StudentID: st.ID, Unpaid: true})
		if err != nil {
			return school.Storage("list charges", err)
		}
		res.OutstandingCount = len(outstanding)
		res.OutstandingTotal = school.SumFinal(outstanding)

		res.Entry, err = e.appendHistory(ctx, s, school.TransferEntry{
			StudentID:      st.ID,
			FromClassID:    classRef(class.ID),
			Type:           school.TransferDeactivation,
			FromSchoolYear: class.SchoolYear,
			PreviousAmount: st.MonthlyAmount,
			NewAmount:      st.MonthlyAmount,
			Reason:         req.Reason,
			Notes:          req.Notes,
		})
		return err
	})
	if err != nil {
		e.log.Warn("deactivation failed", zap.Int64("student_id", int64(req.StudentID)), zap.Error(err))
		return DeactivateResult{}, err
	}

	e.log.Info("student deactivated",
		zap.String("operation_id", res.Entry.OperationID),
		zap.Int64("student_id", int64(req.StudentID)),
		zap.Int("outstanding_count", res.OutstandingCount),
		zap.String("outstanding_total", res.OutstandingTotal.String()))
	return res, nil
}

// Reactivate brings an inactive student back into a class with a fresh
// contract. Old charges are not regenerated or touched.
func (e *Engine) Reactivate(ctx context.Context, req ReactivateRequest) (ReactivateResult, error) {
	if err := school.RequireNonNegative("new_monthly_amount", req.NewMonthlyAmount); err != nil {
		return ReactivateResult{}, err
	}

	var res ReactivateResult
	err := e.store.WithTx(ctx, func(s school.Store) error {
		res = ReactivateResult{}
		st, err := s.GetStudent(ctx, req.StudentID)
		if err != nil {
			return school.Storage("get student", err)
		}
		if st.IsActive() {
			return school.ErrAlreadyActive
		}
		to, err := s.GetClass(ctx, req.ToClassID)
		if err != nil {
			return school.Storage("get class", err)
		}
		amount, err := contractAmount("new_monthly_amount", req.NewMonthlyAmount, to)
		if err != nil {
			return err
		}
		today := e.Today()

		if _, err := closeActiveContracts(ctx, s, st.ID, today); err != nil {
			return err
		}
		contract := school.Contract{
			StudentID:     st.ID,
			ClassID:       to.ID,
			SchoolYear:    to.SchoolYear,
			MonthlyAmount: amount,
			StartDate:     today,
			Status:        school.ContractActive,
		}
		if err := s.CreateContract(ctx, &contract); err != nil {
			return school.Storage("create contract", err)
		}
		res.ContractID = contract.ID

		previous := st.MonthlyAmount
		st.Status = school.StudentActive
		st.ClassID = to.ID
		st.MonthlyAmount = amount
		st.DeactivatedOn = nil
		st.DeactivationReason = ""
		if err := s.UpdateStudent(ctx, st); err != nil {
			return school.Storage("update student", err)
		}

		res.Entry, err = e.appendHistory(ctx, s, school.TransferEntry{
			StudentID:      st.ID,
			ToClassID:      classRef(to.ID),
			Type:           school.TransferReactivation,
			ToSchoolYear:   to.SchoolYear,
			PreviousAmount: previous,
			NewAmount:      amount,
			AmountChanged:  !previous.Equal(amount),
			Reason:         req.Reason,
			Notes:          req.Notes,
		})
		return err
	})
	if err != nil {
		e.log.Warn("reactivation failed", zap.Int64("student_id", int64(req.StudentID)), zap.Error(err))
		return ReactivateResult{}, err
	}

	e.log.Info("student reactivated",
		zap.String("operation_id", res.Entry.OperationID),
		zap.Int64("student_id", int64(req.StudentID)),
		zap.Int64("class_id", int64(req.ToClassID)),
		zap.Int64("contract_id", int64(res.ContractID)))
	return res, nil
}

// =============================================================================
// AUTO-DETECTING TRANSFER
// =============================================================================

// Transfer moves an active student to ToClassID, choosing SameYear or
// NewYear from the school-year labels.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	st, err := e.store.GetStudent(ctx, req.StudentID)
	if err != nil {
		return TransferResult{}, school.Storage("get student", err)
	}
	from, err := e.store.GetClass(ctx, st.ClassID)
	if err != nil {
		return TransferResult{}, school.Storage("get class", err)
	}
	to, err := e.store.GetClass(ctx, req.ToClassID)
	if err != nil {
		return TransferResult{}, school.Storage("get class", err)
	}

	switch t := Classify(from, to); t {
	case school.TransferSameYear:
		r, err := e.SameYear(ctx, SameYearRequest{
			StudentID: req.StudentID, FromClassID: from.ID, ToClassID: to.ID,
			ChangeAmount: req.ChangeAmount, NewAmount: req.Amount,
			Reason: req.Reason, Notes: req.Notes,
		})
		if err != nil {
			return TransferResult{}, err
		}
		return TransferResult{Type: t, SameYear: &r}, nil
	case school.TransferNewYear:
		amount := req.Amount
		if !req.ChangeAmount {
			amount = st.MonthlyAmount
		}
		r, err := e.NewYear(ctx, NewYearRequest{
			StudentID: req.StudentID, FromClassID: from.ID, ToClassID: to.ID,
			NewContractAmount: amount, Reason: req.Reason, Notes: req.Notes,
		})
		if err != nil {
			return TransferResult{}, err
		}
		return TransferResult{Type: t, NewYear: &r}, nil
	default:
		return TransferResult{}, school.Invalid("type", "unsupported transfer type "+string(t))
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// loadMove loads and checks the common preconditions of a class move.
func (e *Engine) loadMove(ctx context.Context, s school.Store, id school.StudentID, fromID, toID school.ClassID) (school.Student, school.Class, school.Class, error) {
	st, err := s.GetStudent(ctx, id)
	if err != nil {
		return school.Student{}, school.Class{}, school.Class{}, school.Storage("get student", err)
	}
	if !st.IsActive() {
		return school.Student{}, school.Class{}, school.Class{}, school.ErrStudentInactive
	}
	if st.ClassID != fromID {
		return school.Student{}, school.Class{}, school.Class{}, school.ErrWrongSourceClass
	}
	from, err := s.GetClass(ctx, fromID)
	if err != nil {
		return school.Student{}, school.Class{}, school.Class{}, school.Storage("get class", err)
	}
	to, err := s.GetClass(ctx, toID)
	if err != nil {
		return school.Student{}, school.Class{}, school.Class{}, school.Storage("get class", err)
	}
	return st, from, to, nil
}

func (e *Engine) appendHistory(ctx context.Context, s school.Store, entry school.TransferEntry) (school.TransferEntry, error) {
	entry.OperationID = uuid.NewString()
	entry.TransferDate = e.Today()
	entry.Timestamp = e.Now()
	if err := s.AppendTransfer(ctx, &entry); err != nil {
		return school.TransferEntry{}, school.Storage("append transfer", err)
	}
	return entry, nil
}

func activeContract(ctx context.Context, s school.Store, id school.StudentID, schoolYear string) (*school.Contract, error) {
	contracts, err := s.ListContracts(ctx, school.ContractFilter{
		StudentID: id, SchoolYear: schoolYear, Status: school.ContractActive,
	})
	if err != nil {
		return nil, school.Storage("list contracts", err)
	}
	if len(contracts) == 0 {
		return nil, nil
	}
	return &contracts[0], nil
}

func closeActiveContracts(ctx context.Context, s school.Store, id school.StudentID, on school.Date) (int, error) {
	contracts, err := s.ListContracts(ctx, school.ContractFilter{StudentID: id, Status: school.ContractActive})
	if err != nil {
		return 0, school.Storage("list contracts", err)
	}
	for _, c := range contracts {
		c.Status = school.ContractClosed
		c.EndDate = school.DatePtr(on)
		if err := s.UpdateContract(ctx, c); err != nil {
			return 0, school.Storage("update contract", err)
		}
	}
	return len(contracts), nil
}

// contractAmount is the requested amount, or the class default when the
// request leaves it at zero.
func contractAmount(field string, requested decimal.Decimal, class school.Class) (decimal.Decimal, error) {
	if requested.IsPositive() {
		return requested, nil
	}
	if class.DefaultMonthlyAmount != nil && class.DefaultMonthlyAmount.IsPositive() {
		return *class.DefaultMonthlyAmount, nil
	}
	return decimal.Zero, school.Invalid(field, "required when the target class has no default monthly amount")
}

func classRef(id school.ClassID) *school.ClassID { return &id }
