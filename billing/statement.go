/*
statement.go - Student account statement

PURPOSE:
  Summarizes a student's charges for one school year. This answers "how
  much does this family owe?" without the caller adding up charges.

KEY INSIGHT:
  The statement is computed for a YEAR, not stored. Charges are the source
  of truth; recomputing from them can never drift.

STATEMENT COMPONENTS:
  Billed:       sum of Original over non-void charges
  Discounts:    discounts granted on paid charges
  LateFees:     late fees collected on paid charges
  Paid:         sum of Final over paid charges
  Outstanding:  sum of Final over pending and overdue charges
  PastDue:      the part of Outstanding whose due date is before AsOf

  Voided charges are counted but never contribute money.

SEE ALSO:
  - ledger.go: the writes that change these numbers
  - transfer/report.go: outstanding debt of inactive students
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/school"
)

// Statement is a student's billing position for one school year as of a date.
type Statement struct {
	StudentID school.StudentID
	Year      int
	AsOf      school.Date

	Billed      decimal.Decimal
	Discounts   decimal.Decimal
	LateFees    decimal.Decimal
	Paid        decimal.Decimal
	Outstanding decimal.Decimal
	PastDue     decimal.Decimal

	PaidCount        int
	OutstandingCount int
	PastDueCount     int
	VoidCount        int

	// NextDue is the earliest unpaid charge not yet past due.
	NextDue *school.Charge
}

// Summarize builds a statement from charges that all belong to one student
// and year. charges must be ordered by period.
func Summarize(studentID school.StudentID, year int, charges []school.Charge, asOf school.Date) Statement {
	st := Statement{
		StudentID:   studentID,
		Year:        year,
		AsOf:        asOf,
		Billed:      decimal.Zero,
		Discounts:   decimal.Zero,
		LateFees:    decimal.Zero,
		Paid:        decimal.Zero,
		Outstanding: decimal.Zero,
		PastDue:     decimal.Zero,
	}
	for i := range charges {
		c := charges[i]
		switch c.Status {
		case school.ChargeVoid:
			st.VoidCount++
			continue
		case school.ChargePaid:
			st.PaidCount++
			st.Paid = st.Paid.Add(c.Final)
			st.Discounts = st.Discounts.Add(c.Discount)
			st.LateFees = st.LateFees.Add(c.LateFee)
		case school.ChargePending, school.ChargeOverdue:
			st.OutstandingCount++
			st.Outstanding = st.Outstanding.Add(c.Final)
			if c.DueDate.Before(asOf) {
				st.PastDueCount++
				st.PastDue = st.PastDue.Add(c.Final)
			} else if st.NextDue == nil {
				st.NextDue = &c
			}
		}
		st.Billed = st.Billed.Add(c.Original)
	}
	return st
}

// Statement loads the student's charges for year and summarizes them.
func (l *Ledger) Statement(ctx context.Context, id school.StudentID, year int, asOf school.Date) (Statement, error) {
	if _, err := l.store.GetStudent(ctx, id); err != nil {
		return Statement{}, school.Storage("get student", err)
	}
	charges, err := l.store.ListCharges(ctx, school.ChargeFilter{StudentID: id, Year: year})
	if err != nil {
		return Statement{}, school.Storage("list charges", err)
	}
	return Summarize(id, year, charges, asOf), nil
}
