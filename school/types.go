/*
Package school defines the records shared by the billing and transfer engines.

PURPOSE:
  Holds the data model of the tuition system (students, classes, financial
  contracts, monthly charges, transfer history) together with the storage
  contract every persistence backend implements. The engines in billing/ and
  transfer/ only ever talk to these types.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: int64 newtypes so a ChargeID can't be passed as a StudentID
  - Closed enums: StudentStatus, ContractStatus, ChargeStatus, TransferType
  - Records: Student, Class, Contract, Charge, TransferEntry

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float64
  2. Closed sets: every enum has Valid() and is matched exhaustively
  3. History: TransferEntry rows are append-only
  4. Calendar dates: Date carries no time-of-day (see time.go)

SEE ALSO:
  - money.go: final-amount arithmetic
  - period.go: reference months (YYYY-MM)
  - store.go: Store / TxStore interfaces
  - errors.go: error taxonomy
*/
package school

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID int64
type ClassID int64
type ContractID int64
type ChargeID int64
type TransferID int64

// =============================================================================
// ENUMS
// =============================================================================

type StudentStatus string

const (
	StudentActive   StudentStatus = "active"
	StudentInactive StudentStatus = "inactive"
)

func (s StudentStatus) Valid() bool {
	switch s {
	case StudentActive, StudentInactive:
		return true
	}
	return false
}

type ContractStatus string

const (
	ContractActive ContractStatus = "active"
	ContractClosed ContractStatus = "closed"
)

func (s ContractStatus) Valid() bool {
	switch s {
	case ContractActive, ContractClosed:
		return true
	}
	return false
}

type ChargeStatus string

const (
	ChargePending ChargeStatus = "pending"
	ChargePaid    ChargeStatus = "paid"
	ChargeOverdue ChargeStatus = "overdue"
	ChargeVoid    ChargeStatus = "void"
)

func (s ChargeStatus) Valid() bool {
	switch s {
	case ChargePending, ChargePaid, ChargeOverdue, ChargeVoid:
		return true
	}
	return false
}

// Unpaid reports whether the charge still counts as outstanding debt.
func (s ChargeStatus) Unpaid() bool {
	switch s {
	case ChargePending, ChargeOverdue:
		return true
	case ChargePaid, ChargeVoid:
		return false
	}
	return false
}

// UnpaidStatuses is the status set used by outstanding-debt queries.
var UnpaidStatuses = []ChargeStatus{ChargePending, ChargeOverdue}

type TransferType string

const (
	TransferSameYear     TransferType = "same_year"
	TransferNewYear      TransferType = "new_year"
	TransferDeactivation TransferType = "deactivation"
	TransferReactivation TransferType = "reactivation"
)

func (t TransferType) Valid() bool {
	switch t {
	case TransferSameYear, TransferNewYear, TransferDeactivation, TransferReactivation:
		return true
	}
	return false
}

// ParseTransferType accepts the stored form ("same_year").
func ParseTransferType(s string) (TransferType, error) {
	t := TransferType(s)
	if !t.Valid() {
		return "", &ValidationError{Field: "type", Message: "unknown transfer type " + s}
	}
	return t, nil
}

// =============================================================================
// RECORDS
// =============================================================================

// Student is a pupil enrolled in the school.
//
// INVARIANTS:
//   - Status == StudentInactive  <=>  DeactivatedOn != nil
//   - Status == StudentActive    =>   ClassID references an existing Class
type Student struct {
	ID                 StudentID
	Name               string
	BirthDate          Date
	Status             StudentStatus
	ClassID            ClassID
	MonthlyAmount      decimal.Decimal
	EnrollmentDate     Date
	DeactivatedOn      *Date
	DeactivationReason string
}

func (s Student) IsActive() bool { return s.Status == StudentActive }

// DefaultDueDay is the day of month charges fall due when a class sets none.
const DefaultDueDay = 10

// Class is one offering (e.g. "5th grade A") within a school year.
type Class struct {
	ID                   ClassID
	Name                 string
	Grade                string
	SchoolYear           string
	DefaultMonthlyAmount *decimal.Decimal
	DueDay               int
}

// EffectiveDueDay returns DueDay or DefaultDueDay when unset.
func (c Class) EffectiveDueDay() int {
	if c.DueDay <= 0 {
		return DefaultDueDay
	}
	return c.DueDay
}

// Contract is a student's billing agreement for one school year.
// At most one Active contract exists per (student, school year).
type Contract struct {
	ID            ContractID
	StudentID     StudentID
	ClassID       ClassID
	SchoolYear    string
	MonthlyAmount decimal.Decimal
	StartDate     Date
	EndDate       *Date
	Status        ContractStatus
}

// Charge is one month's tuition obligation.
//
// INVARIANT: Final == max(0, Original - Discount + LateFee + Other).
// Charges with FeeEligible == false never carry a late fee.
type Charge struct {
	ID          ChargeID
	StudentID   StudentID
	ContractID  *ContractID // legacy rows may lack it
	Period      Month
	Original    decimal.Decimal
	Discount    decimal.Decimal
	LateFee     decimal.Decimal
	Other       decimal.Decimal
	Final       decimal.Decimal
	DueDate     Date
	PaidOn      *Date
	Status      ChargeStatus
	FeeEligible bool
	Notes       string
}

// Recompute refreshes Final from the components.
func (c *Charge) Recompute() {
	c.Final = ComputeFinal(c.Original, c.Discount, c.LateFee, c.Other)
}

// TransferEntry is one row of the append-only transfer history.
type TransferEntry struct {
	ID             TransferID
	OperationID    string
	StudentID      StudentID
	FromClassID    *ClassID
	ToClassID      *ClassID
	Type           TransferType
	FromSchoolYear string
	ToSchoolYear   string
	PreviousAmount decimal.Decimal
	NewAmount      decimal.Decimal
	AmountChanged  bool
	TransferDate   Date
	Reason         string
	Notes          string
	Timestamp      time.Time
}
