/*
generator.go - Monthly charge generation

PURPOSE:
  Derives the set of monthly Charges a student owes for a school year.
  Generation happens once at enrollment (GenerateForStudent) and again for
  each cross-year promotion (GenerateForNewYearContract).

ENROLLMENT POLICY (GenerateForStudent):
  m = enrollment month, y = school year
  m == 1       -> months 1..12 of y, all fee-eligible
  m  > 1       -> months m..12 fee-eligible, and months 1..m-1 billed as
                  Pending but fee-eligible=false for good

  PreEnrollmentSkip turns the second branch into "months m..12 only".

NEW-YEAR POLICY (GenerateForNewYearContract, GenerateForContract):
  months 3..12 of the new school year, fee-eligible, existing periods skipped.
  GenerateForContract takes year and amount from an active contract; it is
  how a reactivation into another school year gets billed.

DUE DATES:
  class due day (default 10) clamped to the month's last day (31 -> Feb 28).

SEE ALSO:
  - policy.go: FeeEligible rule
  - transfer/engine.go: calls NewYearCharges inside its own transaction
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/school"
)

// PreEnrollmentPolicy decides what happens to months before enrollment.
type PreEnrollmentPolicy string

const (
	// PreEnrollmentBillExempt bills them as Pending but never fee-eligible.
	PreEnrollmentBillExempt PreEnrollmentPolicy = "bill_exempt"
	// PreEnrollmentSkip does not generate them at all.
	PreEnrollmentSkip PreEnrollmentPolicy = "skip"
)

func (p PreEnrollmentPolicy) Valid() bool {
	switch p {
	case PreEnrollmentBillExempt, PreEnrollmentSkip:
		return true
	}
	return false
}

// AcademicStartMonth is the first month billed after a new-year promotion.
const AcademicStartMonth = time.March

// =============================================================================
// GENERATOR
// =============================================================================

type Generator struct {
	store         school.TxStore
	preEnrollment PreEnrollmentPolicy
	log           *zap.Logger
}

func NewGenerator(store school.TxStore, preEnrollment PreEnrollmentPolicy, log *zap.Logger) *Generator {
	if !preEnrollment.Valid() {
		preEnrollment = PreEnrollmentBillExempt
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{store: store, preEnrollment: preEnrollment, log: log.Named("generator")}
}

// GenerateResult reports a generation batch.
type GenerateResult struct {
	ChargesCreated int
	Exempt         int // of which fee-ineligible
}

// GenerateForStudent creates the student's charges for the school year of
// their class. It fails with ErrAlreadyGenerated if the student has any
// charge at all.
func (g *Generator) GenerateForStudent(ctx context.Context, id school.StudentID) (GenerateResult, error) {
	var res GenerateResult
	err := g.store.WithTx(ctx, func(s school.Store) error {
		var err error
		res, err = g.EnrollmentCharges(ctx, s, id)
		return err
	})
	if err != nil {
		return GenerateResult{}, err
	}
	g.log.Info("charges generated",
		zap.Int64("student_id", int64(id)),
		zap.Int("created", res.ChargesCreated),
		zap.Int("exempt", res.Exempt))
	return res, nil
}

// EnrollmentCharges is GenerateForStudent against a caller-owned store,
// typically the tx-scoped store of an enrollment.
func (g *Generator) EnrollmentCharges(ctx context.Context, s school.Store, id school.StudentID) (GenerateResult, error) {
	st, err := s.GetStudent(ctx, id)
	if err != nil {
		return GenerateResult{}, school.Storage("get student", err)
	}
	existing, err := s.ListCharges(ctx, school.ChargeFilter{StudentID: id})
	if err != nil {
		return GenerateResult{}, school.Storage("list charges", err)
	}
	if len(existing) > 0 {
		return GenerateResult{}, school.ErrAlreadyGenerated
	}

	class, err := s.GetClass(ctx, st.ClassID)
	if err != nil {
		return GenerateResult{}, school.Storage("get class", err)
	}
	year, err := school.SchoolYearNumber(class.SchoolYear)
	if err != nil {
		return GenerateResult{}, err
	}
	amount, err := monthlyAmount(st, class)
	if err != nil {
		return GenerateResult{}, err
	}
	if st.EnrollmentDate.IsZero() {
		return GenerateResult{}, school.Invalid("enrollment_date", "required")
	}
	if st.EnrollmentDate.Year() > year {
		return GenerateResult{}, school.Invalid("enrollment_date", "enrollment is after school year "+class.SchoolYear)
	}

	// Enrolling before the school year starts counts as January.
	enrollment := st.EnrollmentDate
	if enrollment.Year() < year {
		enrollment = school.NewDate(year, time.January, 1)
	}

	contractID, err := activeContractID(ctx, s, id, class.SchoolYear)
	if err != nil {
		return GenerateResult{}, err
	}

	var res GenerateResult
	for _, period := range school.MonthsOfYear(year, time.January, time.December) {
		eligible := FeeEligible(period, enrollment)
		if !eligible && g.preEnrollment == PreEnrollmentSkip {
			continue
		}
		c := newCharge(id, contractID, period, amount, class.EffectiveDueDay(), eligible)
		if err := s.CreateCharge(ctx, &c); err != nil {
			return GenerateResult{}, school.Storage("create charge", err)
		}
		res.ChargesCreated++
		if !eligible {
			res.Exempt++
		}
	}
	return res, nil
}

// GenerateForNewYearContract creates charges for the academic months of
// schoolYear, skipping periods the student already has.
func (g *Generator) GenerateForNewYearContract(ctx context.Context, studentID school.StudentID, contractID school.ContractID, schoolYear string, amount decimal.Decimal) (int, error) {
	var created int
	err := g.store.WithTx(ctx, func(s school.Store) error {
		var err error
		created, err = NewYearCharges(ctx, s, studentID, contractID, schoolYear, amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	g.log.Info("new-year charges generated",
		zap.Int64("student_id", int64(studentID)),
		zap.String("school_year", schoolYear),
		zap.Int("created", created))
	return created, nil
}

// GenerateForContract bills an active contract that enrollment never
// billed, such as one opened by a reactivation into another school year.
// Year and amount come from the contract.
func (g *Generator) GenerateForContract(ctx context.Context, studentID school.StudentID, contractID school.ContractID) (int, error) {
	contract, err := g.store.GetContract(ctx, contractID)
	if err != nil {
		return 0, school.Storage("get contract", err)
	}
	if contract.StudentID != studentID {
		return 0, school.NotFound("contract", int64(contractID))
	}
	if contract.Status != school.ContractActive {
		return 0, school.ErrContractClosed
	}
	return g.GenerateForNewYearContract(ctx, studentID, contractID, contract.SchoolYear, contract.MonthlyAmount)
}

// NewYearCharges generates months 3..12 of schoolYear against s. The due
// day comes from the contract's class.
func NewYearCharges(ctx context.Context, s school.Store, studentID school.StudentID, contractID school.ContractID, schoolYear string, amount decimal.Decimal) (int, error) {
	if err := school.RequireNonNegative("monthly_amount", amount); err != nil {
		return 0, err
	}
	year, err := school.SchoolYearNumber(schoolYear)
	if err != nil {
		return 0, err
	}
	contract, err := s.GetContract(ctx, contractID)
	if err != nil {
		return 0, school.Storage("get contract", err)
	}
	class, err := s.GetClass(ctx, contract.ClassID)
	if err != nil {
		return 0, school.Storage("get class", err)
	}

	existing, err := s.ListCharges(ctx, school.ChargeFilter{StudentID: studentID, Year: year})
	if err != nil {
		return 0, school.Storage("list charges", err)
	}
	have := make(map[school.Month]bool, len(existing))
	for _, c := range existing {
		have[c.Period] = true
	}

	created := 0
	for _, period := range school.MonthsOfYear(year, AcademicStartMonth, time.December) {
		if have[period] {
			continue
		}
		c := newCharge(studentID, &contractID, period, amount, class.EffectiveDueDay(), true)
		if err := s.CreateCharge(ctx, &c); err != nil {
			return 0, school.Storage("create charge", err)
		}
		created++
	}
	return created, nil
}

func newCharge(studentID school.StudentID, contractID *school.ContractID, period school.Month, amount decimal.Decimal, dueDay int, eligible bool) school.Charge {
	return school.Charge{
		StudentID:   studentID,
		ContractID:  contractID,
		Period:      period,
		Original:    amount,
		Discount:    decimal.Zero,
		LateFee:     decimal.Zero,
		Other:       decimal.Zero,
		Final:       amount,
		DueDate:     period.DueDate(dueDay),
		Status:      school.ChargePending,
		FeeEligible: eligible,
	}
}

// monthlyAmount prefers the student's agreed amount over the class default.
func monthlyAmount(st school.Student, class school.Class) (decimal.Decimal, error) {
	if st.MonthlyAmount.IsPositive() {
		return st.MonthlyAmount, nil
	}
	if class.DefaultMonthlyAmount != nil && class.DefaultMonthlyAmount.IsPositive() {
		return *class.DefaultMonthlyAmount, nil
	}
	return decimal.Zero, school.Invalid("monthly_amount", "neither the student nor the class defines a monthly amount")
}

func activeContractID(ctx context.Context, s school.Store, id school.StudentID, year string) (*school.ContractID, error) {
	contracts, err := s.ListContracts(ctx, school.ContractFilter{
		StudentID:  id,
		SchoolYear: year,
		Status:     school.ContractActive,
	})
	if err != nil {
		return nil, school.Storage("list contracts", err)
	}
	if len(contracts) == 0 {
		return nil, nil
	}
	cid := contracts[0].ID
	return &cid, nil
}
