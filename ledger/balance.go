/*
balance.go - Term balance reconciliation

PURPOSE:
  Combines a term's billings, its starting balance, the bursary in effect
  and the term's payments into an outstanding figure.

FORMULA:
  effectivePrev = hasBFBill ? 0 : view.StartPrevBal
  Outstanding   = (totalBillings + effectivePrev) - bursary - totalPayments
  TotalBilled   = (totalBillings + effectivePrev) - bursary

  A negative Outstanding is a credit balance (the student overpaid).

TERM MATCHING:
  Billings match on Term == view.TargetTerm.
  Payments match on Term == view.TargetTerm, or carry no term while the
  view is current. Rejected payments are ignored.

SEE ALSO:
  - arrears.go: hasBFBill
  - clearance.go: the tuition-only variant
*/
package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// TERM BALANCE - Reconciliation breakdown for one term
// =============================================================================

// TermBalance is the reconciled breakdown for one student and one term.
type TermBalance struct {
	StudentID  StudentID
	TargetTerm string

	TotalBillings         decimal.Decimal
	HasBroughtForwardBill bool
	EffectivePrev         decimal.Decimal
	BursaryValue          decimal.Decimal
	TotalPayments         decimal.Decimal
}

// TotalBilled is what the student was charged for the term, net of bursary.
func (b TermBalance) TotalBilled() decimal.Decimal {
	return b.TotalBillings.Add(b.EffectivePrev).Sub(b.BursaryValue)
}

// Outstanding is what remains owed. Negative means credit.
func (b TermBalance) Outstanding() decimal.Decimal {
	return b.TotalBilled().Sub(b.TotalPayments)
}

// Reconcile computes the full breakdown for studentID against view.
func Reconcile(studentID StudentID, billings []Billing, payments []Payment, bursaries []Bursary, view TermView) TermBalance {
	termBillings := billingsForTerm(studentID, billings, view.TargetTerm)

	total := decimal.Zero
	for _, b := range termBillings {
		total = total.Add(b.Amount)
	}

	paid := decimal.Zero
	for _, p := range payments {
		if p.StudentID != studentID || !p.Counts() {
			continue
		}
		if paymentInTerm(p, view.TargetTerm, view.IsCurrent) {
			paid = paid.Add(p.Amount)
		}
	}

	hasBF := HasBroughtForwardBill(termBillings)
	prev := view.StartPrevBal
	if hasBF {
		prev = decimal.Zero
	}

	return TermBalance{
		StudentID:             studentID,
		TargetTerm:            view.TargetTerm,
		TotalBillings:         total,
		HasBroughtForwardBill: hasBF,
		EffectivePrev:         prev,
		BursaryValue:          BursaryValue(bursaries, view.BursaryID),
		TotalPayments:         paid,
	}
}

// ComputeOutstanding returns the signed outstanding balance for the view.
func ComputeOutstanding(studentID StudentID, billings []Billing, payments []Payment, bursaries []Bursary, view TermView) decimal.Decimal {
	return Reconcile(studentID, billings, payments, bursaries, view).Outstanding()
}

// ComputeTotalBilling returns the term's billed total, ignoring payments.
func ComputeTotalBilling(studentID StudentID, billings []Billing, bursaries []Bursary, view TermView) decimal.Decimal {
	return Reconcile(studentID, billings, nil, bursaries, view).TotalBilled()
}

// BursaryValue looks up the bursary's value. NoBursary, empty and unknown
// IDs are worth zero.
func BursaryValue(bursaries []Bursary, id BursaryID) decimal.Decimal {
	if id == "" || id == NoBursary {
		return decimal.Zero
	}
	for _, b := range bursaries {
		if b.ID == id {
			return b.Value
		}
	}
	return decimal.Zero
}

func billingsForTerm(studentID StudentID, billings []Billing, term string) []Billing {
	var out []Billing
	for _, b := range billings {
		if b.StudentID == studentID && b.Term == term {
			out = append(out, b)
		}
	}
	return out
}

// paymentInTerm decides whether p belongs to term. A payment without a term
// belongs to whichever term is current, so it only matches current views.
// An empty term string is treated the same as no term.
func paymentInTerm(p Payment, term string, isCurrent bool) bool {
	if !p.HasTerm() {
		return isCurrent
	}
	return *p.Term == term
}
