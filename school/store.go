/*
store.go - Persistence contract for students, classes, contracts, charges
and transfer history

PURPOSE:
  Defines the interface between the engines and the database. Engines never
  hold a connection themselves; a Store instance is injected.

KEY INTERFACES:
  Store:   CRUD + predicate queries for the five record types
  TxStore: Store plus WithTx for all-or-nothing multi-row writes

ATOMICITY:
  Every transfer, generation batch and enrollment runs inside WithTx. If
  the callback returns an error, every write made through the tx-scoped
  Store is rolled back - student, contract, charges and history alike.

HISTORY:
  TransferEntry has AppendTransfer and ListTransfers only. No update, no
  delete.

IMPLEMENTATIONS:
  - store/sqlite: SQLite via database/sql
  - store/memory: in-memory, snapshot/restore rollback (tests, demos)
*/
package school

import "context"

// =============================================================================
// FILTERS - Query-by-predicate
// =============================================================================

// StudentFilter selects students. Zero fields match everything.
type StudentFilter struct {
	Status  StudentStatus
	ClassID ClassID
}

func (f StudentFilter) Match(s Student) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.ClassID != 0 && s.ClassID != f.ClassID {
		return false
	}
	return true
}

// ContractFilter selects contracts.
type ContractFilter struct {
	StudentID  StudentID
	ClassID    ClassID
	SchoolYear string
	Status     ContractStatus
}

func (f ContractFilter) Match(c Contract) bool {
	if f.StudentID != 0 && c.StudentID != f.StudentID {
		return false
	}
	if f.ClassID != 0 && c.ClassID != f.ClassID {
		return false
	}
	if f.SchoolYear != "" && c.SchoolYear != f.SchoolYear {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}

// ChargeFilter selects charges.
type ChargeFilter struct {
	StudentID StudentID
	Statuses  []ChargeStatus
	Year      int   // period year, 0 = any
	DueBefore *Date // due date strictly before
	Unpaid    bool  // shorthand for Statuses = UnpaidStatuses
}

func (f ChargeFilter) Match(c Charge) bool {
	if f.StudentID != 0 && c.StudentID != f.StudentID {
		return false
	}
	statuses := f.Statuses
	if f.Unpaid {
		statuses = UnpaidStatuses
	}
	if len(statuses) > 0 {
		found := false
		for _, s := range statuses {
			if c.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Year != 0 && c.Period.Year != f.Year {
		return false
	}
	if f.DueBefore != nil && !c.DueDate.Before(*f.DueBefore) {
		return false
	}
	return true
}

// TransferFilter selects history rows. ClassID matches either side of
// the move.
type TransferFilter struct {
	StudentID StudentID
	ClassID   ClassID
	Type      TransferType
}

func (f TransferFilter) Match(e TransferEntry) bool {
	if f.StudentID != 0 && e.StudentID != f.StudentID {
		return false
	}
	if f.ClassID != 0 && !refersTo(e.FromClassID, f.ClassID) && !refersTo(e.ToClassID, f.ClassID) {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return true
}

func refersTo(ref *ClassID, id ClassID) bool { return ref != nil && *ref == id }

// =============================================================================
// STORE
// =============================================================================

// Store persists the school records. Get* return a *NotFoundError when the
// id does not exist. Create* assign the ID on the passed record. List*
// results are ordered by id (charges by period).
type Store interface {
	CreateClass(ctx context.Context, c *Class) error
	GetClass(ctx context.Context, id ClassID) (Class, error)
	UpdateClass(ctx context.Context, c Class) error
	DeleteClass(ctx context.Context, id ClassID) error
	ListClasses(ctx context.Context) ([]Class, error)

	CreateStudent(ctx context.Context, s *Student) error
	GetStudent(ctx context.Context, id StudentID) (Student, error)
	UpdateStudent(ctx context.Context, s Student) error
	ListStudents(ctx context.Context, f StudentFilter) ([]Student, error)

	CreateContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, id ContractID) (Contract, error)
	UpdateContract(ctx context.Context, c Contract) error
	ListContracts(ctx context.Context, f ContractFilter) ([]Contract, error)

	// CreateCharge returns ErrDuplicatePeriod if (student, period) exists.
	CreateCharge(ctx context.Context, c *Charge) error
	GetCharge(ctx context.Context, id ChargeID) (Charge, error)
	UpdateCharge(ctx context.Context, c Charge) error
	ListCharges(ctx context.Context, f ChargeFilter) ([]Charge, error)

	// AppendTransfer is the only write on the history.
	AppendTransfer(ctx context.Context, e *TransferEntry) error
	ListTransfers(ctx context.Context, f TransferFilter) ([]TransferEntry, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
