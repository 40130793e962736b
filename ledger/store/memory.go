// Package store provides in-memory ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/fees-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	state *state
}

// state is everything the store holds. Transactions snapshot and restore it.
type state struct {
	students        map[ledger.StudentID]ledger.Student
	billings        []ledger.Billing
	payments        []ledger.Payment
	deletedBillings []ledger.DeletedBilling
	deletedPayments []ledger.DeletedPayment
	bursaries       map[ledger.BursaryID]ledger.Bursary
	services        map[ledger.ServiceID]ledger.Service
	audit           []ledger.AuditEntry
}

func newState() *state {
	return &state{
		students:  make(map[ledger.StudentID]ledger.Student),
		bursaries: make(map[ledger.BursaryID]ledger.Bursary),
		services:  make(map[ledger.ServiceID]ledger.Service),
	}
}

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

var (
	_ ledger.TxStore  = (*Memory)(nil)
	_ ledger.AuditLog = (*Memory)(nil)
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

func (m *Memory) GetStudent(ctx context.Context, id ledger.StudentID) (*ledger.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getStudent(id)
}

func (m *Memory) ListStudents(ctx context.Context) ([]ledger.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listStudents(), nil
}

func (m *Memory) SaveStudent(ctx context.Context, s ledger.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.saveStudent(s)
	return nil
}

func (m *Memory) ListBillings(ctx context.Context, id ledger.StudentID) ([]ledger.Billing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listBillings(id), nil
}

func (m *Memory) GetBilling(ctx context.Context, id ledger.BillingID) (*ledger.Billing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getBilling(id)
}

func (m *Memory) AddBilling(ctx context.Context, b ledger.Billing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.addBilling(b)
}

func (m *Memory) DeleteBilling(ctx context.Context, id ledger.BillingID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.deleteBilling(id, reason, at)
}

func (m *Memory) ListDeletedBillings(ctx context.Context, id ledger.StudentID) ([]ledger.DeletedBilling, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listDeletedBillings(id), nil
}

func (m *Memory) ListPayments(ctx context.Context, id ledger.StudentID) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listPayments(id), nil
}

func (m *Memory) GetPayment(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getPayment(id)
}

func (m *Memory) AddPayment(ctx context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.addPayment(p)
}

func (m *Memory) DeletePayment(ctx context.Context, id ledger.PaymentID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.deletePayment(id, reason, at)
}

func (m *Memory) ListDeletedPayments(ctx context.Context, id ledger.StudentID) ([]ledger.DeletedPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listDeletedPayments(id), nil
}

func (m *Memory) ListBursaries(ctx context.Context) ([]ledger.Bursary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listBursaries(), nil
}

func (m *Memory) SaveBursary(ctx context.Context, b ledger.Bursary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.bursaries[b.ID] = b
	return nil
}

func (m *Memory) ListServices(ctx context.Context) ([]ledger.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listServices(), nil
}

func (m *Memory) SaveService(ctx context.Context, s ledger.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.services[s.ID] = s
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) LogAction(ctx context.Context, e ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.audit = append(m.state.audit, e)
	return nil
}

func (m *Memory) ListActions(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listActions(f), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot that is restored
// unless fn returns nil. A panic in fn also restores it.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	committed := false
	defer func() {
		if !committed {
			m.state = snapshot
		}
	}()

	if err := fn(&txView{s: m.state}); err != nil {
		return err
	}
	committed = true
	return nil
}

// Reset drops all data.
func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newState()
	return nil
}

// txView operates on state while WithTx holds the lock.
type txView struct {
	s *state
}

func (v *txView) GetStudent(_ context.Context, id ledger.StudentID) (*ledger.Student, error) {
	return v.s.getStudent(id)
}
func (v *txView) ListStudents(_ context.Context) ([]ledger.Student, error) {
	return v.s.listStudents(), nil
}
func (v *txView) SaveStudent(_ context.Context, st ledger.Student) error {
	v.s.saveStudent(st)
	return nil
}
func (v *txView) ListBillings(_ context.Context, id ledger.StudentID) ([]ledger.Billing, error) {
	return v.s.listBillings(id), nil
}
func (v *txView) GetBilling(_ context.Context, id ledger.BillingID) (*ledger.Billing, error) {
	return v.s.getBilling(id)
}
func (v *txView) AddBilling(_ context.Context, b ledger.Billing) error {
	return v.s.addBilling(b)
}
func (v *txView) DeleteBilling(_ context.Context, id ledger.BillingID, reason string, at time.Time) error {
	return v.s.deleteBilling(id, reason, at)
}
func (v *txView) ListDeletedBillings(_ context.Context, id ledger.StudentID) ([]ledger.DeletedBilling, error) {
	return v.s.listDeletedBillings(id), nil
}
func (v *txView) ListPayments(_ context.Context, id ledger.StudentID) ([]ledger.Payment, error) {
	return v.s.listPayments(id), nil
}
func (v *txView) GetPayment(_ context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	return v.s.getPayment(id)
}
func (v *txView) AddPayment(_ context.Context, p ledger.Payment) error {
	return v.s.addPayment(p)
}
func (v *txView) DeletePayment(_ context.Context, id ledger.PaymentID, reason string, at time.Time) error {
	return v.s.deletePayment(id, reason, at)
}
func (v *txView) ListDeletedPayments(_ context.Context, id ledger.StudentID) ([]ledger.DeletedPayment, error) {
	return v.s.listDeletedPayments(id), nil
}
func (v *txView) ListBursaries(_ context.Context) ([]ledger.Bursary, error) {
	return v.s.listBursaries(), nil
}
func (v *txView) SaveBursary(_ context.Context, b ledger.Bursary) error {
	v.s.bursaries[b.ID] = b
	return nil
}
func (v *txView) ListServices(_ context.Context) ([]ledger.Service, error) {
	return v.s.listServices(), nil
}
func (v *txView) SaveService(_ context.Context, sv ledger.Service) error {
	v.s.services[sv.ID] = sv
	return nil
}
func (v *txView) LogAction(_ context.Context, e ledger.AuditEntry) error {
	v.s.audit = append(v.s.audit, e)
	return nil
}
func (v *txView) ListActions(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	return v.s.listActions(f), nil
}

// =============================================================================
// STATE OPERATIONS - callers hold the lock
// =============================================================================

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.students {
		c.students[k] = v.Clone()
	}
	for k, v := range s.bursaries {
		c.bursaries[k] = v
	}
	for k, v := range s.services {
		c.services[k] = v
	}
	c.billings = append([]ledger.Billing(nil), s.billings...)
	c.payments = append([]ledger.Payment(nil), s.payments...)
	c.deletedBillings = append([]ledger.DeletedBilling(nil), s.deletedBillings...)
	c.deletedPayments = append([]ledger.DeletedPayment(nil), s.deletedPayments...)
	c.audit = append([]ledger.AuditEntry(nil), s.audit...)
	return c
}

func (s *state) getStudent(id ledger.StudentID) (*ledger.Student, error) {
	st, ok := s.students[id]
	if !ok {
		return nil, ledger.ErrStudentNotFound
	}
	c := st.Clone()
	return &c, nil
}

func (s *state) listStudents() []ledger.Student {
	out := make([]ledger.Student, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *state) saveStudent(st ledger.Student) {
	s.students[st.ID] = st.Clone()
}

func (s *state) listBillings(id ledger.StudentID) []ledger.Billing {
	var out []ledger.Billing
	for _, b := range s.billings {
		if b.StudentID == id {
			out = append(out, b)
		}
	}
	return out
}

func (s *state) getBilling(id ledger.BillingID) (*ledger.Billing, error) {
	for _, b := range s.billings {
		if b.ID == id {
			c := b
			return &c, nil
		}
	}
	return nil, ledger.ErrBillingNotFound
}

func (s *state) addBilling(b ledger.Billing) error {
	if _, err := s.getBilling(b.ID); err == nil {
		return ledger.ErrDuplicateID
	}
	s.billings = append(s.billings, b)
	return nil
}

func (s *state) deleteBilling(id ledger.BillingID, reason string, at time.Time) error {
	for i, b := range s.billings {
		if b.ID == id {
			s.deletedBillings = append(s.deletedBillings, ledger.DeletedBilling{Billing: b, Reason: reason, DeletedAt: at})
			s.billings = append(s.billings[:i:i], s.billings[i+1:]...)
			return nil
		}
	}
	return ledger.ErrBillingNotFound
}

func (s *state) listDeletedBillings(id ledger.StudentID) []ledger.DeletedBilling {
	var out []ledger.DeletedBilling
	for _, d := range s.deletedBillings {
		if d.Billing.StudentID == id {
			out = append(out, d)
		}
	}
	return out
}

func (s *state) listPayments(id ledger.StudentID) []ledger.Payment {
	var out []ledger.Payment
	for _, p := range s.payments {
		if p.StudentID == id {
			out = append(out, p)
		}
	}
	return out
}

func (s *state) getPayment(id ledger.PaymentID) (*ledger.Payment, error) {
	for _, p := range s.payments {
		if p.ID == id {
			c := p
			return &c, nil
		}
	}
	return nil, ledger.ErrPaymentNotFound
}

func (s *state) addPayment(p ledger.Payment) error {
	if _, err := s.getPayment(p.ID); err == nil {
		return ledger.ErrDuplicateID
	}
	s.payments = append(s.payments, p)
	return nil
}

func (s *state) deletePayment(id ledger.PaymentID, reason string, at time.Time) error {
	for i, p := range s.payments {
		if p.ID == id {
			s.deletedPayments = append(s.deletedPayments, ledger.DeletedPayment{Payment: p, Reason: reason, DeletedAt: at})
			s.payments = append(s.payments[:i:i], s.payments[i+1:]...)
			return nil
		}
	}
	return ledger.ErrPaymentNotFound
}

func (s *state) listDeletedPayments(id ledger.StudentID) []ledger.DeletedPayment {
	var out []ledger.DeletedPayment
	for _, d := range s.deletedPayments {
		if d.Payment.StudentID == id {
			out = append(out, d)
		}
	}
	return out
}

func (s *state) listBursaries() []ledger.Bursary {
	out := make([]ledger.Bursary, 0, len(s.bursaries))
	for _, b := range s.bursaries {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) listServices() []ledger.Service {
	out := make([]ledger.Service, 0, len(s.services))
	for _, sv := range s.services {
		out = append(out, sv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) listActions(f ledger.AuditFilter) []ledger.AuditEntry {
	var out []ledger.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if f.StudentID != nil && e.StudentID != *f.StudentID {
			continue
		}
		if f.Category != nil && e.Category != *f.Category {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}
