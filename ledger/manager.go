/*
manager.go - Orchestration over the store

PURPOSE:
  The calculators in this package are pure. Manager is the layer that
  loads a student's records from a Store, feeds them to the calculators,
  and writes new records back atomically.

ATOMICITY:
  Every mutating method runs inside TxStore.WithTx. The ledger write, the
  student update and the audit entry land together or not at all. When the
  transactional view also implements AuditLog the entry is written through
  it; otherwise the manager's AuditLog is used after the view succeeds.

LOGGING:
  Every mutation is logged with structured fields (student, amount, reason,
  actor). Reads are not logged.
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ManagerConfig tunes status coloring and integrity checks.
type ManagerConfig struct {
	ProbationThreshold decimal.Decimal
	AccountGroups      AccountGroups
}

type Manager struct {
	store  TxStore
	audit  AuditLog
	log    *zap.Logger
	config ManagerConfig

	// Now is replaceable in tests.
	Now func() time.Time
}

// NewManager wires a manager. A nil logger is replaced with a no-op logger.
func NewManager(store TxStore, audit AuditLog, logger *zap.Logger, cfg ManagerConfig) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProbationThreshold.IsZero() {
		cfg.ProbationThreshold = DefaultProbationThreshold
	}
	return &Manager{
		store:  store,
		audit:  audit,
		log:    logger,
		config: cfg,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the underlying store for read-only listings.
func (m *Manager) Store() TxStore { return m.store }

// =============================================================================
// LOADING
// =============================================================================

// Records is everything the calculators need for one student.
type Records struct {
	Student   *Student
	Billings  []Billing
	Payments  []Payment
	Bursaries []Bursary
	Services  []Service
}

func (m *Manager) load(ctx context.Context, st Store, id StudentID) (*Records, error) {
	student, err := st.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	billings, err := st.ListBillings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list billings: %w", err)
	}
	payments, err := st.ListPayments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	bursaries, err := st.ListBursaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bursaries: %w", err)
	}
	services, err := st.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return &Records{
		Student:   student,
		Billings:  billings,
		Payments:  payments,
		Bursaries: bursaries,
		Services:  services,
	}, nil
}

// Load returns a student's records.
func (m *Manager) Load(ctx context.Context, id StudentID) (*Records, error) {
	return m.load(ctx, m.store, id)
}

// =============================================================================
// READS
// =============================================================================

// Summary is what a student's ledger page shows.
type Summary struct {
	View         TermView
	Balance      TermBalance
	Outstanding  decimal.Decimal
	TotalBilled  decimal.Decimal
	Clearance    ClearanceInputs
	ClearancePct decimal.Decimal
	Status       AccountStatus
	Color        StatusColor
	Warnings     []IntegrityWarning
}

// Summarize reconciles the requested term. Clearance always reflects the
// live term, whatever term is requested.
func (m *Manager) Summarize(ctx context.Context, id StudentID, term string) (*Summary, error) {
	recs, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := ResolveView(recs.Student, term)
	bal := Reconcile(id, recs.Billings, recs.Payments, recs.Bursaries, view)
	clr := ClearanceBreakdown(recs.Student, recs.Billings, recs.Payments, recs.Bursaries)
	pct := clr.Percentage()

	return &Summary{
		View:         view,
		Balance:      bal,
		Outstanding:  bal.Outstanding(),
		TotalBilled:  bal.TotalBilled(),
		Clearance:    clr,
		ClearancePct: pct,
		Status:       recs.Student.AccountStatus,
		Color:        ColorFor(recs.Student.AccountStatus, pct, m.config.ProbationThreshold),
		Warnings:     CheckIntegrity(recs.Student, recs.Billings, recs.Payments, m.config.AccountGroups),
	}, nil
}

// Statement builds the term statement for a student.
func (m *Manager) Statement(ctx context.Context, id StudentID, term string) (*Statement, error) {
	recs, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	st := BuildStatement(id, recs.Billings, recs.Payments, recs.Bursaries, ResolveView(recs.Student, term))
	return &st, nil
}

// Integrity returns consistency warnings for every student.
func (m *Manager) Integrity(ctx context.Context) ([]IntegrityWarning, error) {
	students, err := m.store.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	var out []IntegrityWarning
	for i := range students {
		recs, err := m.Load(ctx, students[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, CheckIntegrity(recs.Student, recs.Billings, recs.Payments, m.config.AccountGroups)...)
	}
	return out, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Enroll creates a student. The status history starts empty.
func (m *Manager) Enroll(ctx context.Context, st Student, actor string) (*Student, error) {
	if strings.TrimSpace(string(st.ID)) == "" {
		st.ID = StudentID(uuid.NewString())
	}
	if strings.TrimSpace(st.Semester) == "" {
		return nil, &ValidationError{Field: "semester", Message: "required"}
	}
	if st.Bursary == "" {
		st.Bursary = NoBursary
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = m.Now()
	}

	err := m.store.WithTx(ctx, func(tx Store) error {
		if existing, err := tx.GetStudent(ctx, st.ID); err == nil && existing != nil {
			return ErrDuplicateID
		}
		if err := tx.SaveStudent(ctx, st); err != nil {
			return err
		}
		return m.logAction(ctx, tx, AuditEntry{
			Category: AuditBilling, Actor: actor, StudentID: st.ID,
			Message: fmt.Sprintf("enrolled %s into %s", st.Name, st.Semester),
		})
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("student enrolled", zap.String("student_id", string(st.ID)), zap.String("semester", st.Semester))
	return &st, nil
}

// CorrectionRequest asks for the student's outstanding balance in Term to
// become TargetBalance.
type CorrectionRequest struct {
	StudentID     StudentID
	Term          string
	TargetBalance string
	Reason        string
	Actor         string
}

// ApplyCorrection plans and persists a single adjustment record.
func (m *Manager) ApplyCorrection(ctx context.Context, req CorrectionRequest) (*CorrectionRecord, error) {
	target, err := ParseTargetBalance(req.TargetBalance)
	if err != nil {
		return nil, err
	}

	var rec CorrectionRecord
	err = m.store.WithTx(ctx, func(tx Store) error {
		recs, err := m.load(ctx, tx, req.StudentID)
		if err != nil {
			return err
		}
		view := ResolveView(recs.Student, req.Term)
		current := ComputeOutstanding(req.StudentID, recs.Billings, recs.Payments, recs.Bursaries, view)

		plan, err := PlanCorrection(current, target, req.Reason)
		if err != nil {
			return err
		}
		rec = plan.Materialize(req.StudentID, view.TargetTerm, m.Now())
		if rec.Payment != nil {
			err = tx.AddPayment(ctx, *rec.Payment)
		} else {
			err = tx.AddBilling(ctx, *rec.Billing)
		}
		if err != nil {
			return err
		}
		return m.logAction(ctx, tx, AuditEntry{
			Category: AuditCorrection, Actor: req.Actor, StudentID: req.StudentID,
			Message: fmt.Sprintf("%s of %s in %s (balance %s → %s): %s",
				plan.Kind, plan.Amount, view.TargetTerm, current, target, plan.Description),
		})
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("balance corrected",
		zap.String("student_id", string(req.StudentID)),
		zap.String("kind", string(rec.Correction.Kind)),
		zap.String("amount", rec.Correction.Amount.String()),
		zap.String("reason", rec.Correction.Description),
		zap.String("actor", req.Actor),
	)
	return &rec, nil
}

// ChangeStatus records a manual account-status transition.
func (m *Manager) ChangeStatus(ctx context.Context, id StudentID, to AccountStatus, reason, actor string) (*StatusChange, error) {
	var change StatusChange
	err := m.store.WithTx(ctx, func(tx Store) error {
		student, err := tx.GetStudent(ctx, id)
		if err != nil {
			return err
		}
		from := student.AccountStatus
		next, c, err := TransitionStatus(*student, to, reason, actor, m.Now())
		if err != nil {
			return err
		}
		change = c
		if err := tx.SaveStudent(ctx, next); err != nil {
			return err
		}
		return m.logAction(ctx, tx, AuditEntry{
			Category: AuditStatusChange, Actor: actor, StudentID: id,
			Message: fmt.Sprintf("status %q → %q: %s", from, to, c.Reason),
		})
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("account status changed",
		zap.String("student_id", string(id)),
		zap.String("status", string(to)),
		zap.String("actor", actor),
	)
	return &change, nil
}

// PromoteStudent moves a student to the next term, freezing the current one.
func (m *Manager) PromoteStudent(ctx context.Context, id StudentID, toSemester, actor string, resetRequirements bool) (*PromotionOutput, error) {
	var out PromotionOutput
	err := m.store.WithTx(ctx, func(tx Store) error {
		recs, err := m.load(ctx, tx, id)
		if err != nil {
			return err
		}
		out, err = Promote(PromotionInput{
			Student:           *recs.Student,
			ToSemester:        toSemester,
			Billings:          recs.Billings,
			Payments:          recs.Payments,
			Bursaries:         recs.Bursaries,
			At:                m.Now(),
			ResetRequirements: resetRequirements,
		})
		if err != nil {
			return err
		}
		if err := tx.SaveStudent(ctx, out.Student); err != nil {
			return err
		}
		return m.logAction(ctx, tx, AuditEntry{
			Category: AuditPromotion, Actor: actor, StudentID: id,
			Message: fmt.Sprintf("promoted %s → %s carrying %s",
				out.Record.FromSemester, out.Record.ToSemester, out.Record.PreviousBalance),
		})
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("student promoted",
		zap.String("student_id", string(id)),
		zap.String("from", out.Record.FromSemester),
		zap.String("to", out.Record.ToSemester),
		zap.String("carried", out.Record.PreviousBalance.String()),
	)
	return &out, nil
}

// AddBilling validates and stores a billing. An empty term means the
// student's current term.
func (m *Manager) AddBilling(ctx context.Context, b Billing, actor string) (*Billing, error) {
	if !b.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if b.Type == "" {
		b.Type = BillingTuition
	}
	if b.ID == "" {
		b.ID = BillingID(uuid.NewString())
	}
	if b.Date.IsZero() {
		b.Date = m.Now()
	}

	err := m.store.WithTx(ctx, func(tx Store) error {
		student, err := tx.GetStudent(ctx, b.StudentID)
		if err != nil {
			return err
		}
		if b.Term == "" || b.Term == CurrentTerm {
			b.Term = student.Semester
		}
		if err := tx.AddBilling(ctx, b); err != nil {
			return err
		}
		return m.logAction(ctx, tx, AuditEntry{
			Category: AuditBilling, Actor: actor, StudentID: b.StudentID,
			Message: fmt.Sprintf("billed %s (%s) in %s", b.Amount, b.Type, b.Term),
		})
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("billing added", zap.String("student_id", string(b.StudentID)), zap.String("amount", b.Amount.String()))
	return &b, nil
}

// RecordPayment validates and stores a payment.
func (m *Manager) RecordPayment(ctx context.Context, p Payment, actor string) (*Payment, error) {
	if err := validatePayment(p); err != nil {
		return nil, err
	}
	p = m.normalizePayment(p)

	err := m.store.WithTx(ctx, func(tx Store) error {
		student, err := tx.GetStudent(ctx, p.StudentID)
		if err != nil {
			return err
		}
		p = pinPaymentTerm(p, student)
		if err := tx.AddPayment(ctx, p); err != nil {
			return err
		}
		return m.logAction(ctx, tx, AuditEntry{
			Category: AuditPayment, Actor: actor, StudentID: p.StudentID,
			Message: fmt.Sprintf("received %s via %s (ref %s)", p.Amount, p.Method, p.Reference),
		})
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("payment recorded", zap.String("student_id", string(p.StudentID)), zap.String("amount", p.Amount.String()))
	return &p, nil
}

// ReplacePayment resolves a sync conflict: the old payment goes to the
// trash and the replacement is added, in one transaction.
func (m *Manager) ReplacePayment(ctx context.Context, id PaymentID, replacement Payment, reason, actor string) (*Payment, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	if err := validatePayment(replacement); err != nil {
		return nil, err
	}
	replacement = m.normalizePayment(replacement)

	err := m.store.WithTx(ctx, func(tx Store) error {
		old, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if replacement.StudentID != old.StudentID {
			return &ValidationError{Field: "student_id", Message: "replacement must belong to the same student"}
		}
		student, err := tx.GetStudent(ctx, old.StudentID)
		if err != nil {
			return err
		}
		replacement = pinPaymentTerm(replacement, student)
		if err := tx.DeletePayment(ctx, id, reason, m.Now()); err != nil {
			return err
		}
		if err := tx.AddPayment(ctx, replacement); err != nil {
			return err
		}
		return m.logAction(ctx, tx, AuditEntry{
			Category: AuditPayment, Actor: actor, StudentID: old.StudentID,
			Message: fmt.Sprintf("replaced payment %s (%s) with %s (%s): %s",
				old.ID, old.Amount, replacement.ID, replacement.Amount, reason),
		})
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("payment replaced", zap.String("old_id", string(id)), zap.String("new_id", string(replacement.ID)))
	return &replacement, nil
}

// DeleteBilling moves a billing to the trash.
func (m *Manager) DeleteBilling(ctx context.Context, id BillingID, reason, actor string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	err := m.store.WithTx(ctx, func(tx Store) error {
		b, err := tx.GetBilling(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteBilling(ctx, id, reason, m.Now()); err != nil {
			return err
		}
		return m.logAction(ctx, tx, AuditEntry{
			Category: AuditDelete, Actor: actor, StudentID: b.StudentID,
			Message: fmt.Sprintf("deleted billing %s (%s %s): %s", b.ID, b.Type, b.Amount, reason),
		})
	})
	if err != nil {
		return err
	}
	m.log.Info("billing deleted", zap.String("billing_id", string(id)), zap.String("reason", reason))
	return nil
}

// DeletePayment moves a payment to the trash.
func (m *Manager) DeletePayment(ctx context.Context, id PaymentID, reason, actor string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	err := m.store.WithTx(ctx, func(tx Store) error {
		p, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, id, reason, m.Now()); err != nil {
			return err
		}
		return m.logAction(ctx, tx, AuditEntry{
			Category: AuditDelete, Actor: actor, StudentID: p.StudentID,
			Message: fmt.Sprintf("deleted payment %s (%s): %s", p.ID, p.Amount, reason),
		})
	})
	if err != nil {
		return err
	}
	m.log.Info("payment deleted", zap.String("payment_id", string(id)), zap.String("reason", reason))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func validatePayment(p Payment) error {
	if p.StudentID == "" {
		return &ValidationError{Field: "student_id", Message: "required"}
	}
	if !p.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	for key, a := range p.Allocations {
		if a.IsNegative() {
			return &ValidationError{Field: "allocations." + key, Message: "must not be negative"}
		}
	}
	return nil
}

// pinPaymentTerm stamps a term-less payment with the student's current term,
// so a later promotion cannot move it into the next term.
func pinPaymentTerm(p Payment, student *Student) Payment {
	if !p.HasTerm() {
		p.Term = TermRef(student.Semester)
	}
	return p
}

func (m *Manager) normalizePayment(p Payment) Payment {
	if p.ID == "" {
		p.ID = PaymentID(uuid.NewString())
	}
	if p.Status == "" {
		p.Status = PaymentApproved
	}
	if p.Date.IsZero() {
		p.Date = m.Now()
	}
	return p
}

// logAction writes through the transactional view when it can audit,
// so the entry commits or rolls back with the ledger write.
func (m *Manager) logAction(ctx context.Context, tx Store, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.Now()
	}
	if al, ok := tx.(AuditLog); ok {
		return al.LogAction(ctx, entry)
	}
	if m.audit == nil {
		return nil
	}
	return m.audit.LogAction(ctx, entry)
}
