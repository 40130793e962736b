/*
correction.go - Target-balance fixes

PURPOSE:
  An administrator states "this student should owe X". The planner turns
  the gap between the computed balance and X into exactly one new ledger
  record. Nothing existing is edited.

  diff = target - current
  diff < 0  → credit: a Payment (type adjustment, method Adjustment)
  diff > 0  → debit:  a Billing (type Adjustment, not brought-forward)
  diff == 0 → rejected with ErrNothingToCorrect

  The debit explicitly sets IsBroughtForward=false so the reason text can
  never be classified as arrears and zero the term's starting balance.
*/
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CorrectionKind string

const (
	CorrectionCredit CorrectionKind = "credit"
	CorrectionDebit  CorrectionKind = "debit"
)

// Correction is a planned, not yet persisted, balance fix.
type Correction struct {
	Kind        CorrectionKind  `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// PlanCorrection computes the single adjustment that moves current to target.
func PlanCorrection(current, target decimal.Decimal, reason string) (Correction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Correction{}, ErrReasonRequired
	}

	diff := target.Sub(current)
	switch diff.Sign() {
	case 0:
		return Correction{}, ErrNothingToCorrect
	case -1:
		return Correction{Kind: CorrectionCredit, Amount: diff.Abs(), Description: reason}, nil
	default:
		return Correction{Kind: CorrectionDebit, Amount: diff, Description: reason}, nil
	}
}

// ParseTargetBalance parses a user-entered target balance.
func ParseTargetBalance(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrTargetRequired
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "target_balance", Message: "not a number"}
	}
	return d, nil
}

// CorrectionRecord is the materialized ledger entry for a Correction.
// Exactly one of Billing and Payment is set.
type CorrectionRecord struct {
	Correction Correction
	Billing    *Billing
	Payment    *Payment
}

// Materialize builds the ledger record for studentID in term.
func (c Correction) Materialize(studentID StudentID, term string, at time.Time) CorrectionRecord {
	rec := CorrectionRecord{Correction: c}
	switch c.Kind {
	case CorrectionCredit:
		rec.Payment = &Payment{
			ID:          PaymentID("adj-" + uuid.NewString()),
			StudentID:   studentID,
			Term:        TermRef(term),
			Amount:      c.Amount,
			Method:      MethodAdjustment,
			Allocations: map[string]decimal.Decimal{},
			Reference:   "BALANCE-FIX",
			Status:      PaymentApproved,
			Type:        PaymentAdjustment,
			Description: c.Description,
			Date:        at,
		}
	case CorrectionDebit:
		rec.Billing = &Billing{
			ID:               BillingID("adj-" + uuid.NewString()),
			StudentID:        studentID,
			Term:             term,
			Type:             BillingAdjustment,
			Description:      c.Description,
			Amount:           c.Amount,
			IsBroughtForward: Flag(false),
			Date:             at,
		}
	}
	return rec
}
