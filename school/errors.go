/*
errors.go - Error taxonomy for the billing and transfer engines

PURPOSE:
  Every failure the engines report belongs to one of five kinds. Callers
  branch on the kind with errors.Is and render the message; nothing in the
  engines decides how an error is shown.

ERROR KINDS:
  ErrNotFound          referenced student/class/charge/contract missing
  ErrInvalidState      preconditions violated (already paid, already inactive...)
  ErrWrongTransferType same-year vs new-year request disagrees with year labels
  ErrValidation        malformed input (negative amounts, same source/target)
  ErrStorage           the store failed; the whole operation was rolled back

USAGE:
  if errors.Is(err, school.ErrAlreadyPaid) { ... }     // specific state
  if errors.Is(err, school.ErrInvalidState) { ... }    // any state error

SEE ALSO:
  - api/handlers.go: maps kinds to HTTP status codes
*/
package school

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrWrongTransferType = errors.New("wrong transfer type")
	ErrValidation        = errors.New("validation failed")
	ErrStorage           = errors.New("storage failure")
)

// State errors. Each one matches ErrInvalidState too.
var (
	ErrAlreadyInactive  = fmt.Errorf("%w: student already inactive", ErrInvalidState)
	ErrAlreadyActive    = fmt.Errorf("%w: student already active", ErrInvalidState)
	ErrStudentInactive  = fmt.Errorf("%w: student is inactive", ErrInvalidState)
	ErrAlreadyPaid      = fmt.Errorf("%w: charge already paid", ErrInvalidState)
	ErrNotPaid          = fmt.Errorf("%w: charge is not paid", ErrInvalidState)
	ErrChargeVoid       = fmt.Errorf("%w: charge is void", ErrInvalidState)
	ErrAlreadyGenerated = fmt.Errorf("%w: charges already generated for student", ErrInvalidState)
	ErrClassInUse       = fmt.Errorf("%w: class is referenced by contracts or transfer history", ErrInvalidState)
	ErrClassHasStudents = fmt.Errorf("%w: class has active students", ErrInvalidState)
	ErrWrongSourceClass = fmt.Errorf("%w: student is not in the source class", ErrInvalidState)
	ErrContractClosed   = fmt.Errorf("%w: contract is closed", ErrInvalidState)
)

// ErrDuplicatePeriod is returned by stores when a student already has a
// charge for the period.
var ErrDuplicatePeriod = fmt.Errorf("%w: duplicate charge period", ErrValidation)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "student", "class", "contract", "charge"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(kind string, id int64) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ValidationError is a structural input problem on one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// WrongTransferTypeError says which operation the year labels call for.
type WrongTransferTypeError struct {
	Requested TransferType
	Detected  TransferType
	FromYear  string
	ToYear    string
}

func (e *WrongTransferTypeError) Error() string {
	return fmt.Sprintf("wrong transfer type: requested %s but %q -> %q is a %s transfer",
		e.Requested, e.FromYear, e.ToYear, e.Detected)
}

func (e *WrongTransferTypeError) Unwrap() error { return ErrWrongTransferType }

// StorageError wraps a backend failure. It matches ErrStorage and still
// exposes the driver error through Unwrap.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError unless it already carries a kind.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidState) || errors.Is(err, ErrWrongTransferType) ||
		errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError returns true if retrying with corrected input can succeed.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrWrongTransferType) ||
		errors.Is(err, ErrNotFound)
}
