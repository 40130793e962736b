/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Calculators never reach into storage. The Manager loads plain slices
  through these interfaces, hands them to the pure calculators, and writes
  new records back.

SOFT DELETES:
  Billings and payments are never physically erased. DeleteBilling and
  DeletePayment move the record into a trash collection together with the
  reason. Promotion records live inside the student and are append-only.

ATOMICITY:
  TxStore.WithTx runs a function against a transactional view. Either every
  write inside fn lands or none does, so a reader never sees a payment
  without its paired status or audit update.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	GetStudent(ctx context.Context, id StudentID) (*Student, error)
	ListStudents(ctx context.Context) ([]Student, error)
	// SaveStudent creates or replaces a student.
	SaveStudent(ctx context.Context, s Student) error

	ListBillings(ctx context.Context, studentID StudentID) ([]Billing, error)
	GetBilling(ctx context.Context, id BillingID) (*Billing, error)
	AddBilling(ctx context.Context, b Billing) error
	DeleteBilling(ctx context.Context, id BillingID, reason string, at time.Time) error
	ListDeletedBillings(ctx context.Context, studentID StudentID) ([]DeletedBilling, error)

	ListPayments(ctx context.Context, studentID StudentID) ([]Payment, error)
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	AddPayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, id PaymentID, reason string, at time.Time) error
	ListDeletedPayments(ctx context.Context, studentID StudentID) ([]DeletedPayment, error)

	ListBursaries(ctx context.Context) ([]Bursary, error)
	SaveBursary(ctx context.Context, b Bursary) error
	ListServices(ctx context.Context) ([]Service, error)
	SaveService(ctx context.Context, s Service) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the view is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Who did what, append-only
// =============================================================================

type AuditCategory string

const (
	AuditCorrection   AuditCategory = "balance_fix"
	AuditStatusChange AuditCategory = "status_change"
	AuditPromotion    AuditCategory = "promotion"
	AuditDelete       AuditCategory = "delete"
	AuditPayment      AuditCategory = "payment"
	AuditBilling      AuditCategory = "billing"
)

type AuditEntry struct {
	ID        string
	Timestamp time.Time
	Category  AuditCategory
	Message   string
	Actor     string
	StudentID StudentID
}

type AuditLog interface {
	LogAction(ctx context.Context, entry AuditEntry) error
	ListActions(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	StudentID *StudentID
	Category  *AuditCategory
	Limit     int
}
