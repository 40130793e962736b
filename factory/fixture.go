/*
Package factory converts JSON ledger fixtures into ledger records.

PURPOSE:
  Demo scenarios, tests and bulk imports describe a whole ledger in one JSON
  document: the bursary and service catalog plus students with their
  billings, payments and promotion history. The factory validates the
  document and produces ledger types ready to be saved.

JSON SCHEMA:
  {
    "bursaries": [{"id": "half", "name": "Half Bursary", "value": "100000"}],
    "services":  [{"id": "bus", "name": "Bus", "amount": "30000"}],
    "students": [
      {
        "id": "s1",
        "name": "Amina",
        "semester": "Term 2",
        "previous_balance": "150000",
        "bursary": "half",
        "services": ["bus"],
        "requirements": [{"name": "Ream", "required": 2, "brought": 1}],
        "account_status": "",
        "promotion_history": [
          {"from_semester": "Term 1", "to_semester": "Term 2",
           "previous_balance": "150000", "initial_previous_balance": "0",
           "bursary_snapshot": "none", "promoted_at": "2024-04-30"}
        ],
        "billings": [
          {"term": "Term 2", "type": "Tuition", "amount": "400000", "date": "2024-05-02"}
        ],
        "payments": [
          {"term": "Term 2", "amount": "200000", "method": "Bank",
           "allocations": {"Tuition": "200000"}, "date": "2024-05-10"}
        ]
      }
    ]
  }

  Amounts accept JSON numbers or strings. Dates accept YYYY-MM-DD or
  RFC 3339. Missing record IDs are derived from the student ID.

VALIDATION:
  Struct tags checked with go-playground/validator. Amounts are checked by
  hand because the validator cannot compare decimals.

USAGE:
  f := factory.NewLedgerFactory()
  fx, err := f.ParseLedger(jsonString)
  err = fx.Seed(ctx, store)
*/
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/fees-ledger/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// LedgerJSON is the JSON representation of a whole ledger.
type LedgerJSON struct {
	Bursaries []BursaryJSON `json:"bursaries" validate:"dive"`
	Services  []ServiceJSON `json:"services" validate:"dive"`
	Students  []StudentJSON `json:"students" validate:"dive"`
}

type BursaryJSON struct {
	ID    string          `json:"id" validate:"required"`
	Name  string          `json:"name" validate:"required"`
	Value decimal.Decimal `json:"value"`
}

type ServiceJSON struct {
	ID     string          `json:"id" validate:"required"`
	Name   string          `json:"name" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type StudentJSON struct {
	ID               string               `json:"id" validate:"required"`
	Name             string               `json:"name" validate:"required"`
	Semester         string               `json:"semester" validate:"required"`
	PreviousBalance  decimal.Decimal      `json:"previous_balance"`
	Bursary          string               `json:"bursary,omitempty"`
	Services         []string             `json:"services,omitempty"`
	Requirements     []ledger.Requirement `json:"requirements,omitempty" validate:"dive"`
	AccountStatus    string               `json:"account_status,omitempty" validate:"omitempty,oneof=clearance probation defaulter"`
	PromotionHistory []PromotionJSON      `json:"promotion_history,omitempty" validate:"dive"`
	Billings         []BillingJSON        `json:"billings,omitempty" validate:"dive"`
	Payments         []PaymentJSON        `json:"payments,omitempty" validate:"dive"`
}

type PromotionJSON struct {
	FromSemester           string               `json:"from_semester" validate:"required"`
	ToSemester             string               `json:"to_semester" validate:"required,nefield=FromSemester"`
	PreviousBalance        decimal.Decimal      `json:"previous_balance"`
	InitialPreviousBalance *decimal.Decimal     `json:"initial_previous_balance,omitempty"`
	BursarySnapshot        string               `json:"bursary_snapshot,omitempty"`
	ServicesSnapshot       []string             `json:"services_snapshot,omitempty"`
	RequirementsSnapshot   []ledger.Requirement `json:"requirements_snapshot,omitempty"`
	PromotedAt             string               `json:"promoted_at,omitempty"`
}

type BillingJSON struct {
	ID               string          `json:"id,omitempty"`
	Term             string          `json:"term" validate:"required"`
	Type             string          `json:"type,omitempty"`
	Description      string          `json:"description,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	IsBroughtForward *bool           `json:"is_brought_forward,omitempty"`
	Date             string          `json:"date,omitempty"`
}

type PaymentJSON struct {
	ID          string                     `json:"id,omitempty"`
	Term        *string                    `json:"term,omitempty"`
	Amount      decimal.Decimal            `json:"amount"`
	Method      string                     `json:"method" validate:"required"`
	Allocations map[string]decimal.Decimal `json:"allocations,omitempty"`
	Reference   string                     `json:"reference,omitempty"`
	Status      string                     `json:"status,omitempty" validate:"omitempty,oneof=pending approved rejected"`
	Type        string                     `json:"type,omitempty" validate:"omitempty,oneof=adjustment"`
	Description string                     `json:"description,omitempty"`
	Date        string                     `json:"date,omitempty"`
}

// =============================================================================
// FIXTURE
// =============================================================================

// Fixture is a parsed ledger, ready to be seeded into a store.
type Fixture struct {
	Students  []ledger.Student
	Billings  []ledger.Billing
	Payments  []ledger.Payment
	Bursaries []ledger.Bursary
	Services  []ledger.Service
}

// Seed writes every record of the fixture inside one transaction.
func (fx *Fixture) Seed(ctx context.Context, st ledger.TxStore) error {
	return st.WithTx(ctx, func(tx ledger.Store) error {
		for _, b := range fx.Bursaries {
			if err := tx.SaveBursary(ctx, b); err != nil {
				return fmt.Errorf("seed bursary %s: %w", b.ID, err)
			}
		}
		for _, s := range fx.Services {
			if err := tx.SaveService(ctx, s); err != nil {
				return fmt.Errorf("seed service %s: %w", s.ID, err)
			}
		}
		for _, s := range fx.Students {
			if err := tx.SaveStudent(ctx, s); err != nil {
				return fmt.Errorf("seed student %s: %w", s.ID, err)
			}
		}
		for _, b := range fx.Billings {
			if err := tx.AddBilling(ctx, b); err != nil {
				return fmt.Errorf("seed billing %s: %w", b.ID, err)
			}
		}
		for _, p := range fx.Payments {
			if err := tx.AddPayment(ctx, p); err != nil {
				return fmt.Errorf("seed payment %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// =============================================================================
// LEDGER FACTORY
// =============================================================================

// LedgerFactory converts JSON ledgers to ledger records.
type LedgerFactory struct {
	validate *validator.Validate

	// Now stamps records that carry no date.
	Now func() time.Time
}

// NewLedgerFactory creates a new ledger factory.
func NewLedgerFactory() *LedgerFactory {
	return &LedgerFactory{
		validate: validator.New(),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// ParseLedger parses a JSON string into a Fixture.
func (f *LedgerFactory) ParseLedger(jsonStr string) (*Fixture, error) {
	var lj LedgerJSON
	if err := json.Unmarshal([]byte(jsonStr), &lj); err != nil {
		return nil, fmt.Errorf("failed to parse ledger JSON: %w", err)
	}
	return f.FromJSON(lj)
}

// FromJSON validates lj and converts it to ledger records.
func (f *LedgerFactory) FromJSON(lj LedgerJSON) (*Fixture, error) {
	if err := f.validate.Struct(lj); err != nil {
		return nil, validationError(err)
	}
	if err := checkAmounts(lj); err != nil {
		return nil, err
	}

	fx := &Fixture{}
	for _, b := range lj.Bursaries {
		fx.Bursaries = append(fx.Bursaries, ledger.Bursary{ID: ledger.BursaryID(b.ID), Name: b.Name, Value: b.Value})
	}
	for _, s := range lj.Services {
		fx.Services = append(fx.Services, ledger.Service{ID: ledger.ServiceID(s.ID), Name: s.Name, Amount: s.Amount})
	}

	seen := make(map[string]bool)
	for _, sj := range lj.Students {
		if seen[sj.ID] {
			return nil, fmt.Errorf("student %s: %w", sj.ID, ledger.ErrDuplicateID)
		}
		seen[sj.ID] = true

		student, err := f.student(sj)
		if err != nil {
			return nil, fmt.Errorf("student %s: %w", sj.ID, err)
		}
		fx.Students = append(fx.Students, student)

		for i, bj := range sj.Billings {
			b, err := f.billing(student.ID, i, bj)
			if err != nil {
				return nil, fmt.Errorf("student %s billing %d: %w", sj.ID, i, err)
			}
			fx.Billings = append(fx.Billings, b)
		}
		for i, pj := range sj.Payments {
			p, err := f.payment(student.ID, i, pj)
			if err != nil {
				return nil, fmt.Errorf("student %s payment %d: %w", sj.ID, i, err)
			}
			fx.Payments = append(fx.Payments, p)
		}
	}
	return fx, nil
}

func (f *LedgerFactory) student(sj StudentJSON) (ledger.Student, error) {
	s := ledger.Student{
		ID:              ledger.StudentID(sj.ID),
		Name:            sj.Name,
		Semester:        sj.Semester,
		PreviousBalance: sj.PreviousBalance,
		Bursary:         ledger.BursaryID(sj.Bursary),
		Services:        serviceIDs(sj.Services),
		Requirements:    append([]ledger.Requirement(nil), sj.Requirements...),
		AccountStatus:   ledger.AccountStatus(sj.AccountStatus),
		CreatedAt:       f.Now(),
	}
	s.Bursary = s.BursaryOrNone()

	for i, pj := range sj.PromotionHistory {
		at, err := parseDate(pj.PromotedAt, f.Now)
		if err != nil {
			return s, fmt.Errorf("promotion %d: %w", i, err)
		}
		rec := ledger.PromotionRecord{
			FromSemester:           pj.FromSemester,
			ToSemester:             pj.ToSemester,
			PreviousBalance:        pj.PreviousBalance,
			InitialPreviousBalance: pj.InitialPreviousBalance,
			BursarySnapshot:        ledger.BursaryID(pj.BursarySnapshot),
			ServicesSnapshot:       serviceIDs(pj.ServicesSnapshot),
			RequirementsSnapshot:   append([]ledger.Requirement(nil), pj.RequirementsSnapshot...),
			PromotedAt:             at,
		}
		if rec.BursarySnapshot == "" {
			rec.BursarySnapshot = ledger.NoBursary
		}
		s.PromotionHistory = append(s.PromotionHistory, rec)
	}
	return s, nil
}

func (f *LedgerFactory) billing(studentID ledger.StudentID, i int, bj BillingJSON) (ledger.Billing, error) {
	date, err := parseDate(bj.Date, f.Now)
	if err != nil {
		return ledger.Billing{}, err
	}
	b := ledger.Billing{
		ID:               ledger.BillingID(bj.ID),
		StudentID:        studentID,
		Term:             bj.Term,
		Type:             ledger.BillingType(bj.Type),
		Description:      bj.Description,
		Amount:           bj.Amount,
		IsBroughtForward: bj.IsBroughtForward,
		Date:             date,
	}
	if b.ID == "" {
		b.ID = ledger.BillingID(fmt.Sprintf("%s-bill-%d", studentID, i+1))
	}
	if b.Type == "" {
		b.Type = ledger.BillingTuition
	}
	return b, nil
}

func (f *LedgerFactory) payment(studentID ledger.StudentID, i int, pj PaymentJSON) (ledger.Payment, error) {
	date, err := parseDate(pj.Date, f.Now)
	if err != nil {
		return ledger.Payment{}, err
	}
	p := ledger.Payment{
		ID:          ledger.PaymentID(pj.ID),
		StudentID:   studentID,
		Term:        pj.Term,
		Amount:      pj.Amount,
		Method:      pj.Method,
		Allocations: pj.Allocations,
		Reference:   pj.Reference,
		Status:      ledger.PaymentStatus(pj.Status),
		Type:        ledger.PaymentType(pj.Type),
		Description: pj.Description,
		Date:        date,
	}
	if p.ID == "" {
		p.ID = ledger.PaymentID(fmt.Sprintf("%s-pay-%d", studentID, i+1))
	}
	if p.Status == "" {
		p.Status = ledger.PaymentApproved
	}
	return p, nil
}

// checkAmounts enforces the sign rules the validator cannot express.
func checkAmounts(lj LedgerJSON) error {
	for _, s := range lj.Students {
		for i, b := range s.Billings {
			if !b.Amount.IsPositive() {
				return &ledger.ValidationError{
					Field:   fmt.Sprintf("students[%s].billings[%d].amount", s.ID, i),
					Message: "must be positive",
				}
			}
		}
		for i, p := range s.Payments {
			if !p.Amount.IsPositive() {
				return &ledger.ValidationError{
					Field:   fmt.Sprintf("students[%s].payments[%d].amount", s.ID, i),
					Message: "must be positive",
				}
			}
		}
	}
	for _, b := range lj.Bursaries {
		if b.Value.IsNegative() {
			return &ledger.ValidationError{Field: "bursaries[" + b.ID + "].value", Message: "must not be negative"}
		}
	}
	return nil
}

// validationError converts the first validator failure into a
// ledger.ValidationError.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ledger.ValidationError{
			Field:   strings.TrimPrefix(fe.Namespace(), "LedgerJSON."),
			Message: "failed " + fe.Tag(),
		}
	}
	return &ledger.ValidationError{Field: "ledger", Message: err.Error()}
}

func serviceIDs(ids []string) []ledger.ServiceID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]ledger.ServiceID, len(ids))
	for i, id := range ids {
		out[i] = ledger.ServiceID(id)
	}
	return out
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty means now.
func parseDate(s string, now func() time.Time) (time.Time, error) {
	if s == "" {
		return now(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q", s)}
	}
	return t, nil
}
