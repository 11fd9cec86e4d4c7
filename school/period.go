package school

import (
	"fmt"
	"strconv"
	"time"
)

// =============================================================================
// MONTH - Reference period of a charge
// =============================================================================

// Month identifies a billing period. Its text form is YYYY-MM and a student
// has at most one charge per Month.
type Month struct {
	Year  int
	Month time.Month
}

func NewMonth(year int, month time.Month) Month { return Month{Year: year, Month: month} }

// ParseMonth parses YYYY-MM.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, &ValidationError{Field: "period", Message: "malformed period " + s + " (use YYYY-MM)"}
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

func (m Month) Equal(o Month) bool { return m.Year == o.Year && m.Month == o.Month }

// First returns the first day of the month.
func (m Month) First() Date { return NewDate(m.Year, m.Month, 1) }

// Last returns the last day of the month.
func (m Month) Last() Date {
	t := time.Date(m.Year, m.Month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return DateOf(t)
}

// DueDate returns day-of-month `day` within m, clamped to the month's last day.
func (m Month) DueDate(day int) Date {
	if day < 1 {
		day = 1
	}
	last := m.Last()
	if day > last.Day() {
		return last
	}
	return NewDate(m.Year, m.Month, day)
}

// MonthsOfYear returns the months from..to (inclusive) of year.
func MonthsOfYear(year int, from, to time.Month) []Month {
	var months []Month
	for mo := from; mo <= to; mo++ {
		months = append(months, Month{Year: year, Month: mo})
	}
	return months
}

// SchoolYearNumber interprets a school-year label such as "2025" as a year.
func SchoolYearNumber(label string) (int, error) {
	y, err := strconv.Atoi(label)
	if err != nil || y < 1900 || y > 9999 {
		return 0, &ValidationError{Field: "school_year", Message: fmt.Sprintf("school year %q is not a calendar year", label)}
	}
	return y, nil
}
