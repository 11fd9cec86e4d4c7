package transfer

import (
	"context"
	"fmt"

	"github.com/warp/tuition-engine/school"
)

// ValidationReport is the dry-run outcome of a transfer operation. Errors
// block execution; Warnings only inform.
type ValidationReport struct {
	Valid        bool                `json:"valid"`
	Errors       []string            `json:"errors"`
	Warnings     []string            `json:"warnings"`
	DetectedType school.TransferType `json:"detected_type,omitempty"`
}

func (r *ValidationReport) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationReport) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks whether op could run for the student without writing
// anything. targetClassID is required for every op except deactivation.
// The returned error is reserved for storage failures; missing records and
// broken preconditions land in the report.
func (e *Engine) Validate(ctx context.Context, studentID school.StudentID, targetClassID *school.ClassID, op school.TransferType) (ValidationReport, error) {
	report := ValidationReport{Errors: []string{}, Warnings: []string{}}
	if !op.Valid() {
		report.fail("unknown operation %q", op)
		return report, nil
	}

	st, err := e.store.GetStudent(ctx, studentID)
	if err != nil {
		if school.IsNotFound(err) {
			report.fail("student %d not found", studentID)
			return report, nil
		}
		return ValidationReport{}, school.Storage("get student", err)
	}

	switch op {
	case school.TransferDeactivation:
		if !st.IsActive() {
			report.fail("student is already inactive")
		}
	case school.TransferReactivation:
		if st.IsActive() {
			report.fail("student is already active")
		}
	default:
		if !st.IsActive() {
			report.fail("student is inactive; reactivate instead")
		}
	}

	if op != school.TransferDeactivation {
		if err := e.validateTarget(ctx, &report, st, targetClassID, op); err != nil {
			return ValidationReport{}, err
		}
	}

	unpaid, err := e.store.ListCharges(ctx, school.ChargeFilter{StudentID: st.ID, Unpaid: true})
	if err != nil {
		return ValidationReport{}, school.Storage("list charges", err)
	}
	if len(unpaid) > 0 {
		report.warn("student has %d unpaid charges totalling %s", len(unpaid), school.SumFinal(unpaid).StringFixed(2))
	}

	report.Valid = len(report.Errors) == 0
	return report, nil
}

func (e *Engine) validateTarget(ctx context.Context, report *ValidationReport, st school.Student, targetClassID *school.ClassID, op school.TransferType) error {
	if targetClassID == nil {
		report.fail("target class is required")
		return nil
	}
	to, err := e.store.GetClass(ctx, *targetClassID)
	if err != nil {
		if school.IsNotFound(err) {
			report.fail("class %d not found", *targetClassID)
			return nil
		}
		return school.Storage("get class", err)
	}
	if op == school.TransferReactivation {
		return nil
	}
	if to.ID == st.ClassID {
		report.fail("target class is the current class")
		return nil
	}

	from, err := e.store.GetClass(ctx, st.ClassID)
	if err != nil {
		if school.IsNotFound(err) {
			report.fail("current class %d not found", st.ClassID)
			return nil
		}
		return school.Storage("get class", err)
	}

	detected := Classify(from, to)
	report.DetectedType = detected
	if detected != op {
		report.fail("%q -> %q is a %s transfer, not %s", from.SchoolYear, to.SchoolYear, detected, op)
	}
	if detected == school.TransferNewYear {
		fromYear, ferr := school.SchoolYearNumber(from.SchoolYear)
		toYear, terr := school.SchoolYearNumber(to.SchoolYear)
		if ferr == nil && terr == nil && toYear < fromYear {
			report.warn("target school year %s is before the current %s", to.SchoolYear, from.SchoolYear)
		}
	}
	return nil
}
