/*
Package sqlite provides a SQLite-backed implementation of the ledger store.

INTERFACES IMPLEMENTED:
  ledger.TxStore:  students, billings, payments, catalog, soft deletes
  ledger.AuditLog: append-only audit trail

SOFT DELETES:
  Billings and payments are never erased. Delete moves the row into
  deleted_billings / deleted_payments together with the reason, inside one
  SQL transaction.

KEY TABLES:
  students:          live student state; promotion history and clearance
                     history are JSON columns (append-only by convention)
  billings:          debit line items
  payments:          credits; term is NULL when the payment carries none
  deleted_billings:  trash with reason
  deleted_payments:  trash with reason
  bursaries, services: catalog
  audit_log:         who did what

CONCURRENCY:
  Uses sync.RWMutex plus a single pooled connection, so ":memory:"
  databases behave like one database across calls.

USAGE:
  store, err := sqlite.New("./data/fees.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  mgr := ledger.NewManager(store, store, logger, cfg)
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/fees-ledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ ledger.TxStore  = (*Store)(nil)
	_ ledger.AuditLog = (*Store)(nil)
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		semester TEXT NOT NULL,
		previous_balance TEXT NOT NULL DEFAULT '0',
		bursary TEXT NOT NULL DEFAULT 'none',
		services_json TEXT,
		requirements_json TEXT,
		promotion_history_json TEXT,
		account_status TEXT NOT NULL DEFAULT '',
		clearance_history_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS billings (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		term TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT,
		amount TEXT NOT NULL,
		is_brought_forward INTEGER,
		date TEXT NOT NULL
	);

	-- Hot path: every reconciliation loads one student's billings
	CREATE INDEX IF NOT EXISTS idx_billings_student_term
		ON billings(student_id, term);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		term TEXT,
		amount TEXT NOT NULL,
		method TEXT,
		allocations_json TEXT,
		reference TEXT,
		status TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		description TEXT,
		date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_student
		ON payments(student_id);
	CREATE INDEX IF NOT EXISTS idx_payments_reference
		ON payments(reference) WHERE reference IS NOT NULL AND reference != '';

	CREATE TABLE IF NOT EXISTS deleted_billings (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		record_json TEXT NOT NULL,
		reason TEXT NOT NULL,
		deleted_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deleted_payments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		record_json TEXT NOT NULL,
		reason TEXT NOT NULL,
		deleted_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bursaries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		amount TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		category TEXT NOT NULL,
		message TEXT NOT NULL,
		actor TEXT,
		student_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_student
		ON audit_log(student_id, timestamp DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears every table. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{
		"students", "billings", "payments", "deleted_billings",
		"deleted_payments", "bursaries", "services", "audit_log",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every operation against the open sql.Tx. It never touches
// the parent's mutex, which WithTx already holds.
type txStore struct {
	q queryer
}

func (t *txStore) GetStudent(ctx context.Context, id ledger.StudentID) (*ledger.Student, error) {
	return getStudent(ctx, t.q, id)
}
func (t *txStore) ListStudents(ctx context.Context) ([]ledger.Student, error) {
	return listStudents(ctx, t.q)
}
func (t *txStore) SaveStudent(ctx context.Context, st ledger.Student) error {
	return saveStudent(ctx, t.q, st)
}
func (t *txStore) ListBillings(ctx context.Context, id ledger.StudentID) ([]ledger.Billing, error) {
	return listBillings(ctx, t.q, id)
}
func (t *txStore) GetBilling(ctx context.Context, id ledger.BillingID) (*ledger.Billing, error) {
	return getBilling(ctx, t.q, id)
}
func (t *txStore) AddBilling(ctx context.Context, b ledger.Billing) error {
	return addBilling(ctx, t.q, b)
}
func (t *txStore) DeleteBilling(ctx context.Context, id ledger.BillingID, reason string, at time.Time) error {
	return deleteBilling(ctx, t.q, id, reason, at)
}
func (t *txStore) ListDeletedBillings(ctx context.Context, id ledger.StudentID) ([]ledger.DeletedBilling, error) {
	return listDeletedBillings(ctx, t.q, id)
}
func (t *txStore) ListPayments(ctx context.Context, id ledger.StudentID) ([]ledger.Payment, error) {
	return listPayments(ctx, t.q, id)
}
func (t *txStore) GetPayment(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	return getPayment(ctx, t.q, id)
}
func (t *txStore) AddPayment(ctx context.Context, p ledger.Payment) error {
	return addPayment(ctx, t.q, p)
}
func (t *txStore) DeletePayment(ctx context.Context, id ledger.PaymentID, reason string, at time.Time) error {
	return deletePayment(ctx, t.q, id, reason, at)
}
func (t *txStore) ListDeletedPayments(ctx context.Context, id ledger.StudentID) ([]ledger.DeletedPayment, error) {
	return listDeletedPayments(ctx, t.q, id)
}
func (t *txStore) ListBursaries(ctx context.Context) ([]ledger.Bursary, error) {
	return listBursaries(ctx, t.q)
}
func (t *txStore) SaveBursary(ctx context.Context, b ledger.Bursary) error {
	return saveBursary(ctx, t.q, b)
}
func (t *txStore) ListServices(ctx context.Context) ([]ledger.Service, error) {
	return listServices(ctx, t.q)
}
func (t *txStore) SaveService(ctx context.Context, sv ledger.Service) error {
	return saveService(ctx, t.q, sv)
}
func (t *txStore) LogAction(ctx context.Context, e ledger.AuditEntry) error {
	return logAction(ctx, t.q, e)
}
func (t *txStore) ListActions(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	return listActions(ctx, t.q, f)
}

// =============================================================================
// STUDENT STORE
// =============================================================================

func (s *Store) GetStudent(ctx context.Context, id ledger.StudentID) (*ledger.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getStudent(ctx, s.db, id)
}

func (s *Store) ListStudents(ctx context.Context) ([]ledger.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listStudents(ctx, s.db)
}

// SaveStudent creates or replaces a student.
func (s *Store) SaveStudent(ctx context.Context, st ledger.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveStudent(ctx, s.db, st)
}

const studentColumns = `id, name, semester, previous_balance, bursary, services_json,
	requirements_json, promotion_history_json, account_status, clearance_history_json, created_at`

func getStudent(ctx context.Context, q queryer, id ledger.StudentID) (*ledger.Student, error) {
	row := q.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ?", id)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrStudentNotFound
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func listStudents(ctx context.Context, q queryer) ([]ledger.Student, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var students []ledger.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, *st)
	}
	return students, rows.Err()
}

func saveStudent(ctx context.Context, q queryer, st ledger.Student) error {
	services, _ := json.Marshal(st.Services)
	requirements, _ := json.Marshal(st.Requirements)
	history, _ := json.Marshal(st.PromotionHistory)
	clearance, _ := json.Marshal(st.ClearanceHistory)
	createdAt := st.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO students (` + studentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			semester = excluded.semester,
			previous_balance = excluded.previous_balance,
			bursary = excluded.bursary,
			services_json = excluded.services_json,
			requirements_json = excluded.requirements_json,
			promotion_history_json = excluded.promotion_history_json,
			account_status = excluded.account_status,
			clearance_history_json = excluded.clearance_history_json
	`
	_, err := q.ExecContext(ctx, query,
		st.ID, st.Name, st.Semester, st.PreviousBalance.String(), string(st.BursaryOrNone()),
		string(services), string(requirements), string(history),
		st.AccountStatus, string(clearance), formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (*ledger.Student, error) {
	var (
		st                                     ledger.Student
		prevBal, bursary, status, createdAt    string
		services, requirements, history, clear sql.NullString
	)
	if err := row.Scan(&st.ID, &st.Name, &st.Semester, &prevBal, &bursary, &services,
		&requirements, &history, &status, &clear, &createdAt); err != nil {
		return nil, err
	}
	st.PreviousBalance = ledger.Money(prevBal)
	st.Bursary = ledger.BursaryID(bursary)
	st.AccountStatus = ledger.AccountStatus(status)
	st.CreatedAt = parseTime(createdAt)
	if err := unmarshalNullable(services, &st.Services); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(requirements, &st.Requirements); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(history, &st.PromotionHistory); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(clear, &st.ClearanceHistory); err != nil {
		return nil, err
	}
	return &st, nil
}

// =============================================================================
// BILLING STORE
// =============================================================================

func (s *Store) ListBillings(ctx context.Context, id ledger.StudentID) ([]ledger.Billing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBillings(ctx, s.db, id)
}

func (s *Store) GetBilling(ctx context.Context, id ledger.BillingID) (*ledger.Billing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBilling(ctx, s.db, id)
}

func (s *Store) AddBilling(ctx context.Context, b ledger.Billing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addBilling(ctx, s.db, b)
}

// DeleteBilling moves a billing to the trash atomically.
func (s *Store) DeleteBilling(ctx context.Context, id ledger.BillingID, reason string, at time.Time) error {
	return s.WithTx(ctx, func(st ledger.Store) error {
		return st.DeleteBilling(ctx, id, reason, at)
	})
}

func (s *Store) ListDeletedBillings(ctx context.Context, id ledger.StudentID) ([]ledger.DeletedBilling, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDeletedBillings(ctx, s.db, id)
}

const billingColumns = `id, student_id, term, type, description, amount, is_brought_forward, date`

func listBillings(ctx context.Context, q queryer, id ledger.StudentID) ([]ledger.Billing, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+billingColumns+" FROM billings WHERE student_id = ? ORDER BY date ASC, id ASC", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query billings: %w", err)
	}
	defer rows.Close()

	var billings []ledger.Billing
	for rows.Next() {
		b, err := scanBilling(rows)
		if err != nil {
			return nil, err
		}
		billings = append(billings, b)
	}
	return billings, rows.Err()
}

func getBilling(ctx context.Context, q queryer, id ledger.BillingID) (*ledger.Billing, error) {
	b, err := scanBilling(q.QueryRowContext(ctx, "SELECT "+billingColumns+" FROM billings WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrBillingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func addBilling(ctx context.Context, q queryer, b ledger.Billing) error {
	var bf sql.NullBool
	if b.IsBroughtForward != nil {
		bf = sql.NullBool{Bool: *b.IsBroughtForward, Valid: true}
	}
	_, err := q.ExecContext(ctx,
		"INSERT INTO billings ("+billingColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		b.ID, b.StudentID, b.Term, string(b.Type), b.Description, b.Amount.String(), bf, formatTime(b.Date),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateID
		}
		return fmt.Errorf("failed to add billing: %w", err)
	}
	return nil
}

func deleteBilling(ctx context.Context, q queryer, id ledger.BillingID, reason string, at time.Time) error {
	b, err := getBilling(ctx, q, id)
	if err != nil {
		return err
	}
	record, err := json.Marshal(billingRecord(*b))
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx,
		"INSERT INTO deleted_billings (id, student_id, record_json, reason, deleted_at) VALUES (?, ?, ?, ?, ?)",
		b.ID, b.StudentID, string(record), reason, formatTime(at),
	); err != nil {
		return fmt.Errorf("failed to trash billing: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM billings WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove billing: %w", err)
	}
	return nil
}

func listDeletedBillings(ctx context.Context, q queryer, id ledger.StudentID) ([]ledger.DeletedBilling, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT record_json, reason, deleted_at FROM deleted_billings WHERE student_id = ? ORDER BY deleted_at DESC", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query deleted billings: %w", err)
	}
	defer rows.Close()

	var out []ledger.DeletedBilling
	for rows.Next() {
		var record, reason, deletedAt string
		if err := rows.Scan(&record, &reason, &deletedAt); err != nil {
			return nil, err
		}
		var br billingJSON
		if err := json.Unmarshal([]byte(record), &br); err != nil {
			return nil, err
		}
		out = append(out, ledger.DeletedBilling{Billing: br.toBilling(), Reason: reason, DeletedAt: parseTime(deletedAt)})
	}
	return out, rows.Err()
}

func scanBilling(row scanner) (ledger.Billing, error) {
	var (
		b                 ledger.Billing
		typ, amount, date string
		description       sql.NullString
		bf                sql.NullBool
	)
	if err := row.Scan(&b.ID, &b.StudentID, &b.Term, &typ, &description, &amount, &bf, &date); err != nil {
		return b, err
	}
	b.Type = ledger.BillingType(typ)
	b.Description = description.String
	b.Amount = ledger.Money(amount)
	if bf.Valid {
		b.IsBroughtForward = ledger.Flag(bf.Bool)
	}
	b.Date = parseTime(date)
	return b, nil
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (s *Store) ListPayments(ctx context.Context, id ledger.StudentID) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPayments(ctx, s.db, id)
}

func (s *Store) GetPayment(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPayment(ctx, s.db, id)
}

func (s *Store) AddPayment(ctx context.Context, p ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addPayment(ctx, s.db, p)
}

// DeletePayment moves a payment to the trash atomically.
func (s *Store) DeletePayment(ctx context.Context, id ledger.PaymentID, reason string, at time.Time) error {
	return s.WithTx(ctx, func(st ledger.Store) error {
		return st.DeletePayment(ctx, id, reason, at)
	})
}

func (s *Store) ListDeletedPayments(ctx context.Context, id ledger.StudentID) ([]ledger.DeletedPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDeletedPayments(ctx, s.db, id)
}

const paymentColumns = `id, student_id, term, amount, method, allocations_json, reference,
	status, type, description, date`

func listPayments(ctx context.Context, q queryer, id ledger.StudentID) ([]ledger.Payment, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE student_id = ? ORDER BY date ASC, id ASC", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func getPayment(ctx context.Context, q queryer, id ledger.PaymentID) (*ledger.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func addPayment(ctx context.Context, q queryer, p ledger.Payment) error {
	var term sql.NullString
	if p.HasTerm() {
		term = sql.NullString{String: *p.Term, Valid: true}
	}
	allocations, err := json.Marshal(p.Allocations)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO payments ("+paymentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.StudentID, term, p.Amount.String(), p.Method, string(allocations), p.Reference,
		string(p.Status), string(p.Type), p.Description, formatTime(p.Date),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateID
		}
		return fmt.Errorf("failed to add payment: %w", err)
	}
	return nil
}

func deletePayment(ctx context.Context, q queryer, id ledger.PaymentID, reason string, at time.Time) error {
	p, err := getPayment(ctx, q, id)
	if err != nil {
		return err
	}
	record, err := json.Marshal(paymentRecord(*p))
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx,
		"INSERT INTO deleted_payments (id, student_id, record_json, reason, deleted_at) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.StudentID, string(record), reason, formatTime(at),
	); err != nil {
		return fmt.Errorf("failed to trash payment: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove payment: %w", err)
	}
	return nil
}

func listDeletedPayments(ctx context.Context, q queryer, id ledger.StudentID) ([]ledger.DeletedPayment, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT record_json, reason, deleted_at FROM deleted_payments WHERE student_id = ? ORDER BY deleted_at DESC", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query deleted payments: %w", err)
	}
	defer rows.Close()

	var out []ledger.DeletedPayment
	for rows.Next() {
		var record, reason, deletedAt string
		if err := rows.Scan(&record, &reason, &deletedAt); err != nil {
			return nil, err
		}
		var pr paymentJSON
		if err := json.Unmarshal([]byte(record), &pr); err != nil {
			return nil, err
		}
		out = append(out, ledger.DeletedPayment{Payment: pr.toPayment(), Reason: reason, DeletedAt: parseTime(deletedAt)})
	}
	return out, rows.Err()
}

func scanPayment(row scanner) (ledger.Payment, error) {
	var (
		p                               ledger.Payment
		amount, status, typ, date       string
		term, method, allocs, ref, desc sql.NullString
	)
	if err := row.Scan(&p.ID, &p.StudentID, &term, &amount, &method, &allocs, &ref,
		&status, &typ, &desc, &date); err != nil {
		return p, err
	}
	if term.Valid {
		p.Term = ledger.TermRef(term.String)
	}
	p.Amount = ledger.Money(amount)
	p.Method = method.String
	p.Reference = ref.String
	p.Status = ledger.PaymentStatus(status)
	p.Type = ledger.PaymentType(typ)
	p.Description = desc.String
	p.Date = parseTime(date)
	if err := unmarshalNullable(allocs, &p.Allocations); err != nil {
		return p, err
	}
	return p, nil
}

// =============================================================================
// CATALOG STORE
// =============================================================================

func (s *Store) ListBursaries(ctx context.Context) ([]ledger.Bursary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBursaries(ctx, s.db)
}

func (s *Store) SaveBursary(ctx context.Context, b ledger.Bursary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBursary(ctx, s.db, b)
}

func (s *Store) ListServices(ctx context.Context) ([]ledger.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listServices(ctx, s.db)
}

func (s *Store) SaveService(ctx context.Context, sv ledger.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveService(ctx, s.db, sv)
}

func listBursaries(ctx context.Context, q queryer) ([]ledger.Bursary, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name, value FROM bursaries ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query bursaries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Bursary
	for rows.Next() {
		var b ledger.Bursary
		var value string
		if err := rows.Scan(&b.ID, &b.Name, &value); err != nil {
			return nil, err
		}
		b.Value = ledger.Money(value)
		out = append(out, b)
	}
	return out, rows.Err()
}

func saveBursary(ctx context.Context, q queryer, b ledger.Bursary) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO bursaries (id, name, value) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, value = excluded.value`,
		b.ID, b.Name, b.Value.String())
	return err
}

func listServices(ctx context.Context, q queryer) ([]ledger.Service, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name, amount FROM services ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	var out []ledger.Service
	for rows.Next() {
		var sv ledger.Service
		var amount string
		if err := rows.Scan(&sv.ID, &sv.Name, &amount); err != nil {
			return nil, err
		}
		sv.Amount = ledger.Money(amount)
		out = append(out, sv)
	}
	return out, rows.Err()
}

func saveService(ctx context.Context, q queryer, sv ledger.Service) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO services (id, name, amount) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, amount = excluded.amount`,
		sv.ID, sv.Name, sv.Amount.String())
	return err
}

// =============================================================================
// AUDIT LOG (ledger.AuditLog interface)
// =============================================================================

func (s *Store) LogAction(ctx context.Context, e ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return logAction(ctx, s.db, e)
}

func (s *Store) ListActions(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActions(ctx, s.db, f)
}

func logAction(ctx context.Context, q queryer, e ledger.AuditEntry) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO audit_log (id, timestamp, category, message, actor, student_id) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, formatTime(e.Timestamp), string(e.Category), e.Message, e.Actor, string(e.StudentID))
	if err != nil {
		return fmt.Errorf("failed to log action: %w", err)
	}
	return nil
}

func listActions(ctx context.Context, q queryer, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.StudentID != nil {
		where = append(where, "student_id = ?")
		args = append(args, string(*f.StudentID))
	}
	if f.Category != nil {
		where = append(where, "category = ?")
		args = append(args, string(*f.Category))
	}
	query := "SELECT id, timestamp, category, message, actor, student_id FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []ledger.AuditEntry
	for rows.Next() {
		var (
			e                ledger.AuditEntry
			ts, cat          string
			actor, studentID sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &cat, &e.Message, &actor, &studentID); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		e.Category = ledger.AuditCategory(cat)
		e.Actor = actor.String
		e.StudentID = ledger.StudentID(studentID.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// TRASH RECORD ENCODING
// =============================================================================

type billingJSON struct {
	ID               string `json:"id"`
	StudentID        string `json:"student_id"`
	Term             string `json:"term"`
	Type             string `json:"type"`
	Description      string `json:"description"`
	Amount           string `json:"amount"`
	IsBroughtForward *bool  `json:"is_brought_forward,omitempty"`
	Date             string `json:"date"`
}

func billingRecord(b ledger.Billing) billingJSON {
	return billingJSON{
		ID: string(b.ID), StudentID: string(b.StudentID), Term: b.Term, Type: string(b.Type),
		Description: b.Description, Amount: b.Amount.String(), IsBroughtForward: b.IsBroughtForward,
		Date: formatTime(b.Date),
	}
}

func (r billingJSON) toBilling() ledger.Billing {
	return ledger.Billing{
		ID: ledger.BillingID(r.ID), StudentID: ledger.StudentID(r.StudentID), Term: r.Term,
		Type: ledger.BillingType(r.Type), Description: r.Description, Amount: ledger.Money(r.Amount),
		IsBroughtForward: r.IsBroughtForward, Date: parseTime(r.Date),
	}
}

type paymentJSON struct {
	ID          string                     `json:"id"`
	StudentID   string                     `json:"student_id"`
	Term        *string                    `json:"term,omitempty"`
	Amount      string                     `json:"amount"`
	Method      string                     `json:"method"`
	Allocations map[string]decimal.Decimal `json:"allocations,omitempty"`
	Reference   string                     `json:"reference"`
	Status      string                     `json:"status"`
	Type        string                     `json:"type"`
	Description string                     `json:"description"`
	Date        string                     `json:"date"`
}

func paymentRecord(p ledger.Payment) paymentJSON {
	return paymentJSON{
		ID: string(p.ID), StudentID: string(p.StudentID), Term: p.Term, Amount: p.Amount.String(),
		Method: p.Method, Allocations: p.Allocations, Reference: p.Reference, Status: string(p.Status),
		Type: string(p.Type), Description: p.Description, Date: formatTime(p.Date),
	}
}

func (r paymentJSON) toPayment() ledger.Payment {
	return ledger.Payment{
		ID: ledger.PaymentID(r.ID), StudentID: ledger.StudentID(r.StudentID), Term: r.Term,
		Amount: ledger.Money(r.Amount), Method: r.Method, Allocations: r.Allocations,
		Reference: r.Reference, Status: ledger.PaymentStatus(r.Status), Type: ledger.PaymentType(r.Type),
		Description: r.Description, Date: parseTime(r.Date),
	}
}

// Helper functions

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func unmarshalNullable(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(s.String), v); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY") ||
		strings.Contains(err.Error(), "duplicate key"))
}
