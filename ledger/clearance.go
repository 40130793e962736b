/*
clearance.go - Tuition clearance percentage

PURPOSE:
  A status metric, not a historical report: it always evaluates the
  student's live term, whichever term a caller happens to be viewing.

ALGORITHM:
  billed  = Σ current-term billings that are Tuition or brought-forward
            (service billings are excluded)
  bursary = value of the student's live bursary
  paid    = Σ over current-term or term-less payments of
              - allocations keyed "tuition" or arrears-like, when allocated
              - the full amount, when not allocated
  prev    = 0 if ANY of the student's billings (all terms) is brought-forward,
            else the current view's starting balance
  denom   = billed + prev - bursary

  denom <= 0 → 100 (nothing to clear)
  else       → clamp(paid / denom * 100, 0, 100)
*/
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
)

// ClearanceInputs is the breakdown behind a clearance percentage.
type ClearanceInputs struct {
	TotalTargetBilled decimal.Decimal
	EffectivePrev     decimal.Decimal
	BursaryValue      decimal.Decimal
	TotalTuitionPaid  decimal.Decimal
}

// Denominator is the tuition obligation the payments are measured against.
func (c ClearanceInputs) Denominator() decimal.Decimal {
	return c.TotalTargetBilled.Add(c.EffectivePrev).Sub(c.BursaryValue)
}

// Percentage returns the clamped clearance percentage.
func (c ClearanceInputs) Percentage() decimal.Decimal {
	denom := c.Denominator()
	if !denom.IsPositive() {
		return hundred
	}
	pct := c.TotalTuitionPaid.Div(denom).Mul(hundred)
	return clamp(pct, decimal.Zero, hundred)
}

// ClearanceBreakdown computes the inputs for student's live term.
func ClearanceBreakdown(student *Student, billings []Billing, payments []Payment, bursaries []Bursary) ClearanceInputs {
	if student == nil {
		return ClearanceInputs{}
	}
	term := student.Semester

	billed := decimal.Zero
	var own []Billing
	for _, b := range billings {
		if b.StudentID != student.ID {
			continue
		}
		own = append(own, b)
		if b.Term != term {
			continue
		}
		// Flag first: an explicit IsBroughtForward=false overrides the text match.
		if b.Type == BillingTuition || IsBroughtForwardBilling(b) {
			billed = billed.Add(b.Amount)
		}
	}

	paid := decimal.Zero
	for _, p := range payments {
		if p.StudentID != student.ID || !p.Counts() {
			continue
		}
		if p.HasTerm() && *p.Term != term {
			continue
		}
		paid = paid.Add(tuitionPortion(p))
	}

	prev := ResolveView(student, CurrentTerm).StartPrevBal
	if HasBroughtForwardBill(own) {
		prev = decimal.Zero
	}

	return ClearanceInputs{
		TotalTargetBilled: billed,
		EffectivePrev:     prev,
		BursaryValue:      BursaryValue(bursaries, student.BursaryOrNone()),
		TotalTuitionPaid:  paid,
	}
}

// ComputeClearancePct returns the live-term clearance percentage in [0, 100].
func ComputeClearancePct(student *Student, billings []Billing, payments []Payment, bursaries []Bursary) decimal.Decimal {
	return ClearanceBreakdown(student, billings, payments, bursaries).Percentage()
}

// tuitionPortion is the part of p that pays tuition or arrears.
func tuitionPortion(p Payment) decimal.Decimal {
	if len(p.Allocations) == 0 {
		return p.Amount
	}
	sum := decimal.Zero
	for key, amount := range p.Allocations {
		if IsTuitionAllocation(key) {
			sum = sum.Add(amount)
		}
	}
	return sum
}

// IsTuitionAllocation reports whether an allocation key pays tuition or arrears.
func IsTuitionAllocation(key string) bool {
	return strings.Contains(strings.ToLower(key), "tuition") || IsArrearsItem(key)
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
