/*
Package sqlite provides a SQLite-backed implementation of school.TxStore.

PURPOSE:
  Persists classes, students, contracts, charges and the transfer history
  using SQLite. The same schema ports to PostgreSQL with minor dialect
  changes.

INTERFACES IMPLEMENTED:
  school.Store:   CRUD and predicate queries
  school.TxStore: WithTx for all-or-nothing engine operations

KEY TABLES:
  classes:          class offerings, one school-year label each
  students:         roster, active or inactive
  contracts:        one billing agreement per student and school year
  charges:          monthly tuition, UNIQUE(student_id, period)
  transfer_history: append-only audit trail, no UPDATE or DELETE issued
  settings:         key/value configuration (billing policy JSON)

ENCODING:
  dates   TEXT "2006-01-02" (NULL when unset)
  periods TEXT "2006-01"
  money   TEXT decimal strings via shopspring/decimal's Valuer/Scanner

TRANSACTIONS:
  The pool is capped at one connection so a write transaction serialises
  every other caller, in-memory databases included. Inside WithTx every
  read and write goes through the *sql.Tx; a nested WithTx joins the
  outer transaction.

WAL MODE:
  File databases are opened with WAL and foreign keys on.

USAGE:
  store, err := sqlite.New("./data/tuition.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - school/store.go: interface definitions
  - store/memory: in-memory implementation for tests and demos
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/school"
)

// querier is the subset of *sql.DB and *sql.Tx the store needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements school.TxStore using SQLite.
type Store struct {
	db   *sql.DB
	q    querier
	inTx bool
}

var _ school.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS classes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		grade TEXT NOT NULL DEFAULT '',
		school_year TEXT NOT NULL,
		default_monthly_amount TEXT,
		due_day INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		birth_date TEXT,
		status TEXT NOT NULL CHECK (status IN ('active', 'inactive')),
		class_id INTEGER NOT NULL REFERENCES classes(id),
		monthly_amount TEXT NOT NULL,
		enrollment_date TEXT,
		deactivated_on TEXT,
		deactivation_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_students_status ON students(status);
	CREATE INDEX IF NOT EXISTS idx_students_class ON students(class_id);

	CREATE TABLE IF NOT EXISTS contracts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id INTEGER NOT NULL REFERENCES students(id),
		class_id INTEGER NOT NULL REFERENCES classes(id),
		school_year TEXT NOT NULL,
		monthly_amount TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		status TEXT NOT NULL CHECK (status IN ('active', 'closed'))
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_student ON contracts(student_id, status);
	CREATE INDEX IF NOT EXISTS idx_contracts_class ON contracts(class_id);

	-- CRITICAL: one charge per student and month
	CREATE TABLE IF NOT EXISTS charges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id INTEGER NOT NULL REFERENCES students(id),
		contract_id INTEGER REFERENCES contracts(id),
		period TEXT NOT NULL,
		original TEXT NOT NULL,
		discount TEXT NOT NULL,
		late_fee TEXT NOT NULL,
		other TEXT NOT NULL,
		final TEXT NOT NULL,
		due_date TEXT NOT NULL,
		paid_on TEXT,
		status TEXT NOT NULL CHECK (status IN ('pending', 'paid', 'overdue', 'void')),
		fee_eligible INTEGER NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		UNIQUE (student_id, period)
	);

	-- Overdue recalculation and outstanding-debt queries (hot path)
	CREATE INDEX IF NOT EXISTS idx_charges_status_due ON charges(status, due_date);

	-- Append-only audit trail
	CREATE TABLE IF NOT EXISTS transfer_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id TEXT NOT NULL UNIQUE,
		student_id INTEGER NOT NULL REFERENCES students(id),
		from_class_id INTEGER,
		to_class_id INTEGER,
		transfer_type TEXT NOT NULL,
		from_school_year TEXT NOT NULL DEFAULT '',
		to_school_year TEXT NOT NULL DEFAULT '',
		previous_amount TEXT NOT NULL,
		new_amount TEXT NOT NULL,
		amount_changed INTEGER NOT NULL,
		transfer_date TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transfer_history_student ON transfer_history(student_id, id);
	CREATE INDEX IF NOT EXISTS idx_transfer_history_from_class ON transfer_history(from_class_id);
	CREATE INDEX IF NOT EXISTS idx_transfer_history_to_class ON transfer_history(to_class_id);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (school.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store school.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return school.Storage("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Store{db: s.db, q: sqlTx, inTx: true}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return school.Storage("commit", err)
	}
	return nil
}

// =============================================================================
// CLASSES
// =============================================================================

const classColumns = `id, name, grade, school_year, default_monthly_amount, due_day`

func (s *Store) CreateClass(ctx context.Context, c *school.Class) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO classes (name, grade, school_year, default_monthly_amount, due_day)
		VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Grade, c.SchoolYear, nullDecimal(c.DefaultMonthlyAmount), c.DueDay,
	)
	if err != nil {
		return fmt.Errorf("failed to insert class: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = school.ClassID(id)
	return nil
}

func (s *Store) GetClass(ctx context.Context, id school.ClassID) (school.Class, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+classColumns+" FROM classes WHERE id = ?", id)
	c, err := scanClass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return school.Class{}, school.NotFound("class", int64(id))
	}
	return c, err
}

func (s *Store) UpdateClass(ctx context.Context, c school.Class) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE classes SET name = ?, grade = ?, school_year = ?, default_monthly_amount = ?, due_day = ?
		WHERE id = ?`,
		c.Name, c.Grade, c.SchoolYear, nullDecimal(c.DefaultMonthlyAmount), c.DueDay, c.ID,
	)
	return affectedOne(res, err, "class", int64(c.ID))
}

func (s *Store) DeleteClass(ctx context.Context, id school.ClassID) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM classes WHERE id = ?", id)
	return affectedOne(res, err, "class", int64(id))
}

func (s *Store) ListClasses(ctx context.Context) ([]school.Class, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+classColumns+" FROM classes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer rows.Close()

	var classes []school.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func scanClass(row scanner) (school.Class, error) {
	var (
		c   school.Class
		def decimal.NullDecimal
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Grade, &c.SchoolYear, &def, &c.DueDay); err != nil {
		return c, err
	}
	if def.Valid {
		c.DefaultMonthlyAmount = &def.Decimal
	}
	return c, nil
}

// =============================================================================
// STUDENTS
// =============================================================================

const studentColumns = `id, name, birth_date, status, class_id, monthly_amount,
	enrollment_date, deactivated_on, deactivation_reason`

func (s *Store) CreateStudent(ctx context.Context, st *school.Student) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO students (name, birth_date, status, class_id, monthly_amount,
		                      enrollment_date, deactivated_on, deactivation_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.Name, dateValue(st.BirthDate), st.Status, st.ClassID, st.MonthlyAmount,
		dateValue(st.EnrollmentDate), nullDate(st.DeactivatedOn), st.DeactivationReason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert student: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	st.ID = school.StudentID(id)
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id school.StudentID) (school.Student, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ?", id)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return school.Student{}, school.NotFound("student", int64(id))
	}
	return st, err
}

func (s *Store) UpdateStudent(ctx context.Context, st school.Student) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE students SET name = ?, birth_date = ?, status = ?, class_id = ?, monthly_amount = ?,
		       enrollment_date = ?, deactivated_on = ?, deactivation_reason = ?
		WHERE id = ?`,
		st.Name, dateValue(st.BirthDate), st.Status, st.ClassID, st.MonthlyAmount,
		dateValue(st.EnrollmentDate), nullDate(st.DeactivatedOn), st.DeactivationReason, st.ID,
	)
	return affectedOne(res, err, "student", int64(st.ID))
}

func (s *Store) ListStudents(ctx context.Context, f school.StudentFilter) ([]school.Student, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.ClassID != 0 {
		w.add("class_id = ?", f.ClassID)
	}

	rows, err := s.q.QueryContext(ctx, "SELECT "+studentColumns+" FROM students"+w.String()+" ORDER BY id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var students []school.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func scanStudent(row scanner) (school.Student, error) {
	var (
		st                             school.Student
		birth, enrollment, deactivated sql.NullString
	)
	err := row.Scan(&st.ID, &st.Name, &birth, &st.Status, &st.ClassID, &st.MonthlyAmount,
		&enrollment, &deactivated, &st.DeactivationReason)
	if err != nil {
		return st, err
	}
	st.BirthDate = parseDate(birth)
	st.EnrollmentDate = parseDate(enrollment)
	st.DeactivatedOn = parseDatePtr(deactivated)
	return st, nil
}

// =============================================================================
// CONTRACTS
// =============================================================================

const contractColumns = `id, student_id, class_id, school_year, monthly_amount, start_date, end_date, status`

func (s *Store) CreateContract(ctx context.Context, c *school.Contract) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO contracts (student_id, class_id, school_year, monthly_amount, start_date, end_date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.StudentID, c.ClassID, c.SchoolYear, c.MonthlyAmount, dateValue(c.StartDate), nullDate(c.EndDate), c.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = school.ContractID(id)
	return nil
}

func (s *Store) GetContract(ctx context.Context, id school.ContractID) (school.Contract, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+contractColumns+" FROM contracts WHERE id = ?", id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return school.Contract{}, school.NotFound("contract", int64(id))
	}
	return c, err
}

func (s *Store) UpdateContract(ctx context.Context, c school.Contract) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE contracts SET student_id = ?, class_id = ?, school_year = ?, monthly_amount = ?,
		       start_date = ?, end_date = ?, status = ?
		WHERE id = ?`,
		c.StudentID, c.ClassID, c.SchoolYear, c.MonthlyAmount, dateValue(c.StartDate), nullDate(c.EndDate), c.Status, c.ID,
	)
	return affectedOne(res, err, "contract", int64(c.ID))
}

func (s *Store) ListContracts(ctx context.Context, f school.ContractFilter) ([]school.Contract, error) {
	var w where
	if f.StudentID != 0 {
		w.add("student_id = ?", f.StudentID)
	}
	if f.ClassID != 0 {
		w.add("class_id = ?", f.ClassID)
	}
	if f.SchoolYear != "" {
		w.add("school_year = ?", f.SchoolYear)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}

	rows, err := s.q.QueryContext(ctx, "SELECT "+contractColumns+" FROM contracts"+w.String()+" ORDER BY id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []school.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func scanContract(row scanner) (school.Contract, error) {
	var (
		c          school.Contract
		start, end sql.NullString
	)
	err := row.Scan(&c.ID, &c.StudentID, &c.ClassID, &c.SchoolYear, &c.MonthlyAmount, &start, &end, &c.Status)
	if err != nil {
		return c, err
	}
	c.StartDate = parseDate(start)
	c.EndDate = parseDatePtr(end)
	return c, nil
}

// =============================================================================
// CHARGES
// =============================================================================

const chargeColumns = `id, student_id, contract_id, period, original, discount, late_fee, other, final,
	due_date, paid_on, status, fee_eligible, notes`

func (s *Store) CreateCharge(ctx context.Context, c *school.Charge) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO charges (student_id, contract_id, period, original, discount, late_fee, other, final,
		                     due_date, paid_on, status, fee_eligible, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.StudentID, nullContract(c.ContractID), c.Period.String(),
		c.Original, c.Discount, c.LateFee, c.Other, c.Final,
		dateValue(c.DueDate), nullDate(c.PaidOn), c.Status, c.FeeEligible, c.Notes,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return school.ErrDuplicatePeriod
		}
		return fmt.Errorf("failed to insert charge: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = school.ChargeID(id)
	return nil
}

func (s *Store) GetCharge(ctx context.Context, id school.ChargeID) (school.Charge, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+chargeColumns+" FROM charges WHERE id = ?", id)
	c, err := scanCharge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return school.Charge{}, school.NotFound("charge", int64(id))
	}
	return c, err
}

func (s *Store) UpdateCharge(ctx context.Context, c school.Charge) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE charges SET student_id = ?, contract_id = ?, period = ?, original = ?, discount = ?,
		       late_fee = ?, other = ?, final = ?, due_date = ?, paid_on = ?, status = ?,
		       fee_eligible = ?, notes = ?
		WHERE id = ?`,
		c.StudentID, nullContract(c.ContractID), c.Period.String(), c.Original, c.Discount,
		c.LateFee, c.Other, c.Final, dateValue(c.DueDate), nullDate(c.PaidOn), c.Status,
		c.FeeEligible, c.Notes, c.ID,
	)
	if isUniqueConstraintError(err) {
		return school.ErrDuplicatePeriod
	}
	return affectedOne(res, err, "charge", int64(c.ID))
}

func (s *Store) ListCharges(ctx context.Context, f school.ChargeFilter) ([]school.Charge, error) {
	var w where
	if f.StudentID != 0 {
		w.add("student_id = ?", f.StudentID)
	}
	statuses := f.Statuses
	if f.Unpaid {
		statuses = school.UnpaidStatuses
	}
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		args := make([]any, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args[i] = st
		}
		w.add("status IN ("+strings.Join(marks, ", ")+")", args...)
	}
	if f.Year != 0 {
		w.add("period LIKE ?", fmt.Sprintf("%04d-%%", f.Year))
	}
	if f.DueBefore != nil {
		w.add("due_date < ?", f.DueBefore.String())
	}

	rows, err := s.q.QueryContext(ctx, "SELECT "+chargeColumns+" FROM charges"+w.String()+" ORDER BY student_id, period", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges: %w", err)
	}
	defer rows.Close()

	var charges []school.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

func scanCharge(row scanner) (school.Charge, error) {
	var (
		c           school.Charge
		contractID  sql.NullInt64
		period      string
		due, paidOn sql.NullString
	)
	err := row.Scan(&c.ID, &c.StudentID, &contractID, &period,
		&c.Original, &c.Discount, &c.LateFee, &c.Other, &c.Final,
		&due, &paidOn, &c.Status, &c.FeeEligible, &c.Notes)
	if err != nil {
		return c, err
	}
	if contractID.Valid {
		id := school.ContractID(contractID.Int64)
		c.ContractID = &id
	}
	if c.Period, err = school.ParseMonth(period); err != nil {
		return c, fmt.Errorf("charge %d: %w", c.ID, err)
	}
	c.DueDate = parseDate(due)
	c.PaidOn = parseDatePtr(paidOn)
	return c, nil
}

// =============================================================================
// TRANSFER HISTORY (append-only)
// =============================================================================

const transferColumns = `id, operation_id, student_id, from_class_id, to_class_id, transfer_type,
	from_school_year, to_school_year, previous_amount, new_amount, amount_changed,
	transfer_date, reason, notes, created_at`

func (s *Store) AppendTransfer(ctx context.Context, e *school.TransferEntry) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO transfer_history (operation_id, student_id, from_class_id, to_class_id, transfer_type,
		       from_school_year, to_school_year, previous_amount, new_amount, amount_changed,
		       transfer_date, reason, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OperationID, e.StudentID, nullClass(e.FromClassID), nullClass(e.ToClassID), e.Type,
		e.FromSchoolYear, e.ToSchoolYear, e.PreviousAmount, e.NewAmount, e.AmountChanged,
		dateValue(e.TransferDate), e.Reason, e.Notes, e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append transfer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = school.TransferID(id)
	return nil
}

func (s *Store) ListTransfers(ctx context.Context, f school.TransferFilter) ([]school.TransferEntry, error) {
	var w where
	if f.StudentID != 0 {
		w.add("student_id = ?", f.StudentID)
	}
	if f.ClassID != 0 {
		w.add("(from_class_id = ? OR to_class_id = ?)", f.ClassID, f.ClassID)
	}
	if f.Type != "" {
		w.add("transfer_type = ?", f.Type)
	}

	rows, err := s.q.QueryContext(ctx, "SELECT "+transferColumns+" FROM transfer_history"+w.String()+" ORDER BY id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer history: %w", err)
	}
	defer rows.Close()

	var entries []school.TransferEntry
	for rows.Next() {
		var (
			e         school.TransferEntry
			from, to  sql.NullInt64
			date      sql.NullString
			createdAt string
		)
		err := rows.Scan(&e.ID, &e.OperationID, &e.StudentID, &from, &to, &e.Type,
			&e.FromSchoolYear, &e.ToSchoolYear, &e.PreviousAmount, &e.NewAmount, &e.AmountChanged,
			&date, &e.Reason, &e.Notes, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		e.FromClassID = classPtr(from)
		e.ToClassID = classPtr(to)
		e.TransferDate = parseDate(date)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SETTINGS
// =============================================================================

// SaveSetting upserts a configuration value.
func (s *Store) SaveSetting(ctx context.Context, key, value string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetSetting returns the stored value and whether the key exists.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.q.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo). Settings survive.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(tx school.Store) error {
		q := tx.(*Store).q
		tables := []string{"transfer_history", "charges", "contracts", "students", "classes"}
		for _, table := range tables {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		_, err := q.ExecContext(ctx, "DELETE FROM sqlite_sequence")
		return err
	})
}

type scanner interface {
	Scan(dest ...any) error
}

// where accumulates AND-ed predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func affectedOne(res sql.Result, err error, kind string, id int64) error {
	if err != nil {
		return fmt.Errorf("failed to write %s %d: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return school.NotFound(kind, id)
	}
	return nil
}

func dateValue(d school.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDate(d *school.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return dateValue(*d)
}

func parseDate(s sql.NullString) school.Date {
	if !s.Valid || s.String == "" {
		return school.Date{}
	}
	d, err := school.ParseDate("date", s.String)
	if err != nil {
		return school.Date{}
	}
	return d
}

func parseDatePtr(s sql.NullString) *school.Date {
	d := parseDate(s)
	if d.IsZero() {
		return nil
	}
	return &d
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullContract(id *school.ContractID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func nullClass(id *school.ClassID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func classPtr(n sql.NullInt64) *school.ClassID {
	if !n.Valid {
		return nil
	}
	id := school.ClassID(n.Int64)
	return &id
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
