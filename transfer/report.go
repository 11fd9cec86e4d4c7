package transfer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/school"
)

// InactiveStudent is an inactive student with the debt still on their name.
type InactiveStudent struct {
	Student      school.Student  `json:"student"`
	PendingCount int             `json:"pending_count"`
	PendingValue decimal.Decimal `json:"pending_value"`
}

// ListInactiveStudents reports every inactive student and their unpaid
// charges, ordered by student id.
func (e *Engine) ListInactiveStudents(ctx context.Context) ([]InactiveStudent, error) {
	students, err := e.store.ListStudents(ctx, school.StudentFilter{Status: school.StudentInactive})
	if err != nil {
		return nil, school.Storage("list students", err)
	}
	out := make([]InactiveStudent, 0, len(students))
	for _, st := range students {
		unpaid, err := e.store.ListCharges(ctx, school.ChargeFilter{StudentID: st.ID, Unpaid: true})
		if err != nil {
			return nil, school.Storage("list charges", err)
		}
		out = append(out, InactiveStudent{
			Student:      st,
			PendingCount: len(unpaid),
			PendingValue: school.SumFinal(unpaid),
		})
	}
	return out, nil
}

// History returns the student's transfer history, oldest first.
func (e *Engine) History(ctx context.Context, id school.StudentID) ([]school.TransferEntry, error) {
	if _, err := e.store.GetStudent(ctx, id); err != nil {
		return nil, school.Storage("get student", err)
	}
	entries, err := e.store.ListTransfers(ctx, school.TransferFilter{StudentID: id})
	if err != nil {
		return nil, school.Storage("list transfers", err)
	}
	return entries, nil
}
