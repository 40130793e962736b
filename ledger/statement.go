/*
statement.go - Chronological term statement

PURPOSE:
  Lists a term's billings and payments with a running balance. When the
  term's starting balance is not carried by a billing, a display-only
  BroughtForwardRow is placed first so the running balance adds up.

ROW VARIANTS:
  StatementRow is a closed interface: BillingRow, PaymentRow and
  BroughtForwardRow are its only implementations. Only the first two map to
  stored records (RecordID returns ok=false for BroughtForwardRow), so a
  synthetic row can never be passed to a delete or persisted.
*/
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StatementRow is one line of a term statement.
type StatementRow interface {
	RowDate() time.Time
	Debit() decimal.Decimal
	Credit() decimal.Decimal
	Label() string
	statementRow()
}

type BillingRow struct{ Billing Billing }
type PaymentRow struct{ Payment Payment }

// BroughtForwardRow is display-only. It has no stored counterpart.
type BroughtForwardRow struct {
	Term   string
	Amount decimal.Decimal
}

func (r BillingRow) RowDate() time.Time      { return r.Billing.Date }
func (r BillingRow) Debit() decimal.Decimal  { return r.Billing.Amount }
func (r BillingRow) Credit() decimal.Decimal { return decimal.Zero }
func (r BillingRow) Label() string {
	if r.Billing.Description != "" {
		return r.Billing.Description
	}
	return string(r.Billing.Type)
}
func (BillingRow) statementRow() {}

func (r PaymentRow) RowDate() time.Time      { return r.Payment.Date }
func (r PaymentRow) Debit() decimal.Decimal  { return decimal.Zero }
func (r PaymentRow) Credit() decimal.Decimal { return r.Payment.Amount }
func (r PaymentRow) Label() string {
	if r.Payment.Description != "" {
		return r.Payment.Description
	}
	return "Payment (" + r.Payment.Method + ")"
}
func (PaymentRow) statementRow() {}

func (r BroughtForwardRow) RowDate() time.Time      { return time.Time{} }
func (r BroughtForwardRow) Debit() decimal.Decimal  { return r.Amount }
func (r BroughtForwardRow) Credit() decimal.Decimal { return decimal.Zero }
func (r BroughtForwardRow) Label() string           { return "Balance B/F" }
func (BroughtForwardRow) statementRow()             {}

// RecordID returns the stored record behind row. ok is false for
// display-only rows.
func RecordID(row StatementRow) (id string, ok bool) {
	switch r := row.(type) {
	case BillingRow:
		return string(r.Billing.ID), true
	case PaymentRow:
		return string(r.Payment.ID), true
	default:
		return "", false
	}
}

// StatementLine pairs a row with the balance after it.
type StatementLine struct {
	Row            StatementRow
	RunningBalance decimal.Decimal
}

// Statement is a term's rows plus the bursary line applied at the end.
type Statement struct {
	View    TermView
	Lines   []StatementLine
	Bursary decimal.Decimal
	Closing decimal.Decimal
}

// BuildStatement lists the term's records for the view. The closing balance
// always equals ComputeOutstanding for the same inputs.
func BuildStatement(studentID StudentID, billings []Billing, payments []Payment, bursaries []Bursary, view TermView) Statement {
	bal := Reconcile(studentID, billings, payments, bursaries, view)

	var rows []StatementRow
	for _, b := range billingsForTerm(studentID, billings, view.TargetTerm) {
		rows = append(rows, BillingRow{Billing: b})
	}
	for _, p := range payments {
		if p.StudentID == studentID && p.Counts() && paymentInTerm(p, view.TargetTerm, view.IsCurrent) {
			rows = append(rows, PaymentRow{Payment: p})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].RowDate().Before(rows[j].RowDate())
	})

	if !bal.EffectivePrev.IsZero() {
		rows = append([]StatementRow{BroughtForwardRow{Term: view.TargetTerm, Amount: bal.EffectivePrev}}, rows...)
	}

	running := decimal.Zero
	lines := make([]StatementLine, 0, len(rows))
	for _, r := range rows {
		running = running.Add(r.Debit()).Sub(r.Credit())
		lines = append(lines, StatementLine{Row: r, RunningBalance: running})
	}

	return Statement{
		View:    view,
		Lines:   lines,
		Bursary: bal.BursaryValue,
		Closing: running.Sub(bal.BursaryValue),
	}
}
