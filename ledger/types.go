/*
Package ledger provides the student financial ledger reconciliation engine.

PURPOSE:
  Given a student's billings, payments, bursaries and promotion history,
  this package answers three questions:
    1. What does the student owe right now (outstanding balance)?
    2. How much of the current term's tuition is cleared (clearance %)?
    3. What did any historical term look like (term view snapshot)?

KEY CONCEPTS IN THIS FILE (types.go):
  - Student: enrollment record with current term and promotion history
  - Billing: a debit line item (tuition, service, adjustment, brought-forward)
  - Payment: a credit, optionally split into named allocations
  - Bursary: flat discount applied to a term's tuition-bearing total
  - PromotionRecord: frozen snapshot taken when a student changes term

DESIGN PRINCIPLES:
  1. Precision: every amount is a decimal.Decimal
  2. Purity: calculators take plain slices and return plain values
  3. Explicit optionality: absent fields are pointers, never zero-value guesses
  4. Additive corrections: fixes create new records, history is never edited

SEE ALSO:
  - arrears.go: brought-forward detection shared by every calculator
  - view.go: historical term resolution
  - balance.go: outstanding balance
  - clearance.go: tuition clearance percentage
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type BillingID string
type PaymentID string
type BursaryID string
type ServiceID string

// NoBursary marks a student without a bursary.
const NoBursary BursaryID = "none"

// CurrentTerm is the sentinel a caller passes to view the live term.
const CurrentTerm = "Current"

// =============================================================================
// STUDENT
// =============================================================================

type AccountStatus string

const (
	StatusUnset     AccountStatus = ""
	StatusClearance AccountStatus = "clearance"
	StatusProbation AccountStatus = "probation"
	StatusDefaulter AccountStatus = "defaulter"
)

// Valid reports whether s is one of the three explicit statuses.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusClearance, StatusProbation, StatusDefaulter:
		return true
	}
	return false
}

// Requirement is a physical item a student must bring for the term.
type Requirement struct {
	Name     string `json:"name"`
	Required int    `json:"required"`
	Brought  int    `json:"brought"`
	Color    string `json:"color,omitempty"`
}

// StatusChange is one entry of the append-only clearance history.
type StatusChange struct {
	Date     time.Time     `json:"date"`
	Status   AccountStatus `json:"status"`
	Reason   string        `json:"reason"`
	User     string        `json:"user"`
	IsManual bool          `json:"is_manual"`
}

type Student struct {
	ID              StudentID
	Name            string
	Semester        string
	PreviousBalance decimal.Decimal
	Bursary         BursaryID
	Services        []ServiceID
	Requirements    []Requirement

	// Ordered oldest first. Entries are never edited once appended.
	PromotionHistory []PromotionRecord

	AccountStatus    AccountStatus
	ClearanceHistory []StatusChange

	CreatedAt time.Time
}

// BursaryOrNone normalizes an empty bursary reference to NoBursary.
func (s Student) BursaryOrNone() BursaryID {
	if s.Bursary == "" {
		return NoBursary
	}
	return s.Bursary
}

// Clone returns a deep copy so callers can mutate without aliasing history.
func (s Student) Clone() Student {
	c := s
	c.Services = append([]ServiceID(nil), s.Services...)
	c.Requirements = append([]Requirement(nil), s.Requirements...)
	c.ClearanceHistory = append([]StatusChange(nil), s.ClearanceHistory...)
	c.PromotionHistory = make([]PromotionRecord, len(s.PromotionHistory))
	for i, p := range s.PromotionHistory {
		c.PromotionHistory[i] = p.clone()
	}
	if len(s.PromotionHistory) == 0 {
		c.PromotionHistory = nil
	}
	return c
}

// =============================================================================
// PROMOTION HISTORY - Frozen snapshot at term transition
// =============================================================================

// PromotionRecord freezes a student's state at the moment they moved from
// FromSemester to ToSemester.
//
// INVARIANTS:
//   - at most one record has ToSemester == t for any term t
//   - at most one record has FromSemester == t for any term t
//   - immutable once appended
type PromotionRecord struct {
	FromSemester string `json:"from_semester"`
	ToSemester   string `json:"to_semester"`

	// Balance the student started ToSemester with.
	PreviousBalance decimal.Decimal `json:"previous_balance"`

	// What FromSemester itself started with. Older records may lack it.
	InitialPreviousBalance *decimal.Decimal `json:"initial_previous_balance,omitempty"`

	BursarySnapshot      BursaryID     `json:"bursary_snapshot"`
	ServicesSnapshot     []ServiceID   `json:"services_snapshot"`
	RequirementsSnapshot []Requirement `json:"requirements_snapshot"`

	PromotedAt time.Time `json:"promoted_at"`
}

func (p PromotionRecord) clone() PromotionRecord {
	c := p
	c.ServicesSnapshot = append([]ServiceID(nil), p.ServicesSnapshot...)
	c.RequirementsSnapshot = append([]Requirement(nil), p.RequirementsSnapshot...)
	if p.InitialPreviousBalance != nil {
		v := *p.InitialPreviousBalance
		c.InitialPreviousBalance = &v
	}
	return c
}

// =============================================================================
// BILLING - Debit line item
// =============================================================================

type BillingType string

const (
	BillingTuition        BillingType = "Tuition"
	BillingService        BillingType = "Service"
	BillingAdjustment     BillingType = "Adjustment"
	BillingBroughtForward BillingType = "Brought Forward"
)

type Billing struct {
	ID          BillingID
	StudentID   StudentID
	Term        string
	Type        BillingType
	Description string
	Amount      decimal.Decimal

	// Authoritative when set. When nil, Type and Description are classified
	// by text (see IsBroughtForwardBilling).
	IsBroughtForward *bool

	Date time.Time
}

// DeletedBilling is a billing moved to the trash with its reason.
type DeletedBilling struct {
	Billing   Billing
	Reason    string
	DeletedAt time.Time
}

// =============================================================================
// PAYMENT - Credit transaction
// =============================================================================

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

type PaymentType string

const (
	PaymentRegular    PaymentType = ""
	PaymentAdjustment PaymentType = "adjustment"
)

// MethodAdjustment is the method recorded on correction credits.
const MethodAdjustment = "Adjustment"

type Payment struct {
	ID        PaymentID
	StudentID StudentID

	// nil means the payment carries no term; see paymentInTerm.
	Term *string

	Amount      decimal.Decimal
	Method      string
	Allocations map[string]decimal.Decimal
	Reference   string
	Status      PaymentStatus
	Type        PaymentType
	Description string
	Date        time.Time
}

// Counts reports whether the payment contributes to balances.
// Rejected payments never do.
func (p Payment) Counts() bool {
	return p.Status != PaymentRejected
}

// HasTerm reports whether the payment names a term.
func (p Payment) HasTerm() bool {
	return p.Term != nil && *p.Term != ""
}

// DeletedPayment is a payment moved to the trash with its reason.
type DeletedPayment struct {
	Payment   Payment
	Reason    string
	DeletedAt time.Time
}

// =============================================================================
// CATALOG
// =============================================================================

type Bursary struct {
	ID    BursaryID
	Name  string
	Value decimal.Decimal
}

type Service struct {
	ID     ServiceID
	Name   string
	Amount decimal.Decimal
}

// =============================================================================
// HELPERS
// =============================================================================

// TermRef returns a pointer to term, for Payment.Term.
func TermRef(term string) *string {
	return &term
}

// Flag returns a pointer to b, for Billing.IsBroughtForward.
func Flag(b bool) *bool {
	return &b
}

// DecimalRef returns a pointer to d, for PromotionRecord.InitialPreviousBalance.
func DecimalRef(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// Money parses a decimal literal, returning zero on malformed input.
// Intended for fixtures and tests.
func Money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
