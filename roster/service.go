/*
Package roster manages classes and enrollment: the records the billing and
transfer engines operate on.

PURPOSE:
  Create and maintain classes, enroll students (student + contract +
  optional charge batch in one transaction) and edit personal details.
  Class membership and monthly amounts change only through the transfer
  engine once a student exists.

CLASS RULES:
  - A class referenced by any contract or transfer history row keeps its
    school-year label and due day; UpdateClass refuses with ErrClassInUse.
  - A class with active students (ErrClassHasStudents), or one referenced
    as above (ErrClassInUse), cannot be deleted.

SEE ALSO:
  - billing/generator.go: EnrollmentCharges
  - transfer/engine.go: every later change to class, amount or status
*/
package roster

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/school"
)

type Service struct {
	store     school.TxStore
	generator *billing.Generator
	log       *zap.Logger
}

func NewService(store school.TxStore, generator *billing.Generator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, generator: generator, log: log.Named("roster")}
}

// =============================================================================
// CLASSES
// =============================================================================

func (s *Service) CreateClass(ctx context.Context, c school.Class) (school.Class, error) {
	if err := validateClass(c); err != nil {
		return school.Class{}, err
	}
	if err := s.store.CreateClass(ctx, &c); err != nil {
		return school.Class{}, school.Storage("create class", err)
	}
	s.log.Info("class created", zap.Int64("class_id", int64(c.ID)), zap.String("school_year", c.SchoolYear))
	return c, nil
}

func (s *Service) GetClass(ctx context.Context, id school.ClassID) (school.Class, error) {
	c, err := s.store.GetClass(ctx, id)
	return c, school.Storage("get class", err)
}

func (s *Service) ListClasses(ctx context.Context) ([]school.Class, error) {
	classes, err := s.store.ListClasses(ctx)
	if err != nil {
		return nil, school.Storage("list classes", err)
	}
	return classes, nil
}

// UpdateClass replaces a class. Name, grade and default amount may always
// change; the school year and due day are frozen once the class is referenced.
func (s *Service) UpdateClass(ctx context.Context, c school.Class) (school.Class, error) {
	if err := validateClass(c); err != nil {
		return school.Class{}, err
	}
	err := s.store.WithTx(ctx, func(tx school.Store) error {
		current, err := tx.GetClass(ctx, c.ID)
		if err != nil {
			return school.Storage("get class", err)
		}
		if current.SchoolYear != c.SchoolYear || current.EffectiveDueDay() != c.EffectiveDueDay() {
			used, err := referenced(ctx, tx, c.ID)
			if err != nil {
				return err
			}
			if used {
				return school.ErrClassInUse
			}
		}
		if err := tx.UpdateClass(ctx, c); err != nil {
			return school.Storage("update class", err)
		}
		return nil
	})
	if err != nil {
		return school.Class{}, err
	}
	return c, nil
}

func (s *Service) DeleteClass(ctx context.Context, id school.ClassID) error {
	return s.store.WithTx(ctx, func(tx school.Store) error {
		if _, err := tx.GetClass(ctx, id); err != nil {
			return school.Storage("get class", err)
		}
		students, err := tx.ListStudents(ctx, school.StudentFilter{ClassID: id, Status: school.StudentActive})
		if err != nil {
			return school.Storage("list students", err)
		}
		if len(students) > 0 {
			return school.ErrClassHasStudents
		}
		used, err := referenced(ctx, tx, id)
		if err != nil {
			return err
		}
		if used {
			return school.ErrClassInUse
		}
		assigned, err := tx.ListStudents(ctx, school.StudentFilter{ClassID: id})
		if err != nil {
			return school.Storage("list students", err)
		}
		if len(assigned) > 0 {
			return school.ErrClassInUse
		}
		if err := tx.DeleteClass(ctx, id); err != nil {
			return school.Storage("delete class", err)
		}
		return nil
	})
}

// referenced reports whether a contract or a transfer history row names
// the class. History rows outlive contracts that moved on to another class.
func referenced(ctx context.Context, tx school.Store, id school.ClassID) (bool, error) {
	contracts, err := tx.ListContracts(ctx, school.ContractFilter{ClassID: id})
	if err != nil {
		return false, school.Storage("list contracts", err)
	}
	if len(contracts) > 0 {
		return true, nil
	}
	moves, err := tx.ListTransfers(ctx, school.TransferFilter{ClassID: id})
	if err != nil {
		return false, school.Storage("list transfers", err)
	}
	return len(moves) > 0, nil
}

func validateClass(c school.Class) error {
	if strings.TrimSpace(c.Name) == "" {
		return school.Invalid("name", "required")
	}
	if _, err := school.SchoolYearNumber(c.SchoolYear); err != nil {
		return err
	}
	if c.DueDay < 0 || c.DueDay > 31 {
		return school.Invalid("due_day", "must be between 1 and 31, or 0 for the default")
	}
	if c.DefaultMonthlyAmount != nil {
		if err := school.RequireNonNegative("default_monthly_amount", *c.DefaultMonthlyAmount); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// ENROLLMENT
// =============================================================================

type EnrollRequest struct {
	Name           string
	BirthDate      school.Date
	ClassID        school.ClassID
	MonthlyAmount  decimal.Decimal // zero takes the class default
	EnrollmentDate school.Date
	// GenerateCharges creates the school year's charges in the same
	// transaction.
	GenerateCharges bool
}

type EnrollResult struct {
	Student        school.Student
	ContractID     school.ContractID
	ChargesCreated int
}

// Enroll creates an active student with an active contract for the class's
// school year.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (EnrollResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return EnrollResult{}, school.Invalid("name", "required")
	}
	if req.EnrollmentDate.IsZero() {
		return EnrollResult{}, school.Invalid("enrollment_date", "required")
	}
	if err := school.RequireNonNegative("monthly_amount", req.MonthlyAmount); err != nil {
		return EnrollResult{}, err
	}

	var res EnrollResult
	err := s.store.WithTx(ctx, func(tx school.Store) error {
		res = EnrollResult{}
		class, err := tx.GetClass(ctx, req.ClassID)
		if err != nil {
			return school.Storage("get class", err)
		}
		amount := req.MonthlyAmount
		if amount.IsZero() && class.DefaultMonthlyAmount != nil {
			amount = *class.DefaultMonthlyAmount
		}

		st := school.Student{
			Name:           strings.TrimSpace(req.Name),
			BirthDate:      req.BirthDate,
			Status:         school.StudentActive,
			ClassID:        class.ID,
			MonthlyAmount:  amount,
			EnrollmentDate: req.EnrollmentDate,
		}
		if err := tx.CreateStudent(ctx, &st); err != nil {
			return school.Storage("create student", err)
		}
		contract := school.Contract{
			StudentID:     st.ID,
			ClassID:       class.ID,
			SchoolYear:    class.SchoolYear,
			MonthlyAmount: amount,
			StartDate:     req.EnrollmentDate,
			Status:        school.ContractActive,
		}
		if err := tx.CreateContract(ctx, &contract); err != nil {
			return school.Storage("create contract", err)
		}
		res.Student = st
		res.ContractID = contract.ID

		if req.GenerateCharges {
			gen, err := s.generator.EnrollmentCharges(ctx, tx, st.ID)
			if err != nil {
				return err
			}
			res.ChargesCreated = gen.ChargesCreated
		}
		return nil
	})
	if err != nil {
		s.log.Warn("enrollment failed", zap.String("name", req.Name), zap.Error(err))
		return EnrollResult{}, err
	}

	s.log.Info("student enrolled",
		zap.Int64("student_id", int64(res.Student.ID)),
		zap.Int64("class_id", int64(req.ClassID)),
		zap.Int("charges_created", res.ChargesCreated))
	return res, nil
}

// =============================================================================
// STUDENTS
// =============================================================================

func (s *Service) GetStudent(ctx context.Context, id school.StudentID) (school.Student, error) {
	st, err := s.store.GetStudent(ctx, id)
	return st, school.Storage("get student", err)
}

func (s *Service) ListStudents(ctx context.Context, f school.StudentFilter) ([]school.Student, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, school.Invalid("status", "unknown student status "+string(f.Status))
	}
	students, err := s.store.ListStudents(ctx, f)
	if err != nil {
		return nil, school.Storage("list students", err)
	}
	return students, nil
}

// UpdateStudentDetails changes name and birth date only.
func (s *Service) UpdateStudentDetails(ctx context.Context, id school.StudentID, name string, birthDate school.Date) (school.Student, error) {
	if strings.TrimSpace(name) == "" {
		return school.Student{}, school.Invalid("name", "required")
	}
	var updated school.Student
	err := s.store.WithTx(ctx, func(tx school.Store) error {
		st, err := tx.GetStudent(ctx, id)
		if err != nil {
			return school.Storage("get student", err)
		}
		st.Name = strings.TrimSpace(name)
		st.BirthDate = birthDate
		if err := tx.UpdateStudent(ctx, st); err != nil {
			return school.Storage("update student", err)
		}
		updated = st
		return nil
	})
	return updated, err
}

// Contracts lists a student's contracts, oldest first.
func (s *Service) Contracts(ctx context.Context, id school.StudentID) ([]school.Contract, error) {
	if _, err := s.store.GetStudent(ctx, id); err != nil {
		return nil, school.Storage("get student", err)
	}
	contracts, err := s.store.ListContracts(ctx, school.ContractFilter{StudentID: id})
	if err != nil {
		return nil, school.Storage("list contracts", err)
	}
	return contracts, nil
}
