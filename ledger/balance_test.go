package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var feb5 = time.Date(2024, time.February, 5, 0, 0, 0, 0, time.UTC)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, money(want).Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

func tuition(id BillingID, term, amount string) Billing {
	return Billing{ID: id, StudentID: "s1", Term: term, Type: BillingTuition, Amount: money(amount), Date: feb5}
}

func payment(id PaymentID, term *string, amount string) Payment {
	return Payment{ID: id, StudentID: "s1", Term: term, Amount: money(amount), Method: "Bank", Status: PaymentApproved, Date: feb5}
}

func carryInStudent() *Student {
	return &Student{ID: "s1", Name: "Amina", Semester: "Term 1", PreviousBalance: money("50000"), Bursary: NoBursary}
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestComputeOutstanding_ManualCarryIn(t *testing.T) {
	// GIVEN: previous balance 50,000, no BF bill, tuition 200,000, paid 100,000 (no allocations)
	s := carryInStudent()
	billings := []Billing{tuition("b1", "Term 1", "200000")}
	payments := []Payment{payment("p1", TermRef("Term 1"), "100000")}

	// WHEN
	view := ResolveView(s, CurrentTerm)
	bal := Reconcile(s.ID, billings, payments, nil, view)

	// THEN: (200,000 + 50,000) - 0 - 100,000
	assert.False(t, bal.HasBroughtForwardBill)
	assertMoney(t, "50000", bal.EffectivePrev)
	assertMoney(t, "150000", bal.Outstanding())
	assertMoney(t, "150000", ComputeOutstanding(s.ID, billings, payments, nil, view))
	assertMoney(t, "250000", ComputeTotalBilling(s.ID, billings, nil, view))
}

func TestComputeOutstanding_BroughtForwardBillReplacesManualValue(t *testing.T) {
	// GIVEN: the same student, but the 50,000 is also billed as a flagged BF item
	s := carryInStudent()
	bf := Billing{ID: "b2", StudentID: "s1", Term: "Term 1", Type: BillingTuition,
		Description: "Carried over", Amount: money("50000"), IsBroughtForward: Flag(true), Date: feb5}
	billings := []Billing{tuition("b1", "Term 1", "200000"), bf}
	payments := []Payment{payment("p1", TermRef("Term 1"), "100000")}

	// WHEN
	bal := Reconcile(s.ID, billings, payments, nil, ResolveView(s, CurrentTerm))

	// THEN: the manual value is not added on top of the bill
	assert.True(t, bal.HasBroughtForwardBill)
	assert.True(t, bal.EffectivePrev.IsZero())
	assertMoney(t, "250000", bal.TotalBillings)
	assertMoney(t, "150000", bal.Outstanding())
}

func TestComputeOutstanding_TextMatchedBroughtForward(t *testing.T) {
	// GIVEN: an unflagged bill whose description reads "Balance B/F"
	s := carryInStudent()
	billings := []Billing{
		tuition("b1", "Term 1", "200000"),
		{ID: "b2", StudentID: "s1", Term: "Term 1", Type: BillingTuition, Description: "Balance B/F", Amount: money("50000")},
	}

	// WHEN
	bal := Reconcile(s.ID, billings, nil, nil, ResolveView(s, CurrentTerm))

	// THEN
	assert.True(t, bal.HasBroughtForwardBill)
	assertMoney(t, "250000", bal.Outstanding())
}

func TestComputeOutstanding_FlagFalseOverridesText(t *testing.T) {
	// GIVEN: a correction debit whose reason mentions "previous"
	s := carryInStudent()
	billings := []Billing{
		tuition("b1", "Term 1", "200000"),
		{ID: "b2", StudentID: "s1", Term: "Term 1", Type: BillingAdjustment,
			Description: "previous waiver reversed", Amount: money("10000"), IsBroughtForward: Flag(false)},
	}

	// WHEN
	bal := Reconcile(s.ID, billings, nil, nil, ResolveView(s, CurrentTerm))

	// THEN: the previous balance still counts
	assert.False(t, bal.HasBroughtForwardBill)
	assertMoney(t, "260000", bal.Outstanding())
}

func TestComputeOutstanding_PaymentTermMatching(t *testing.T) {
	s := carryInStudent()
	s.PreviousBalance = decimal.Zero
	s.PromotionHistory = []PromotionRecord{{FromSemester: "Term 0", ToSemester: "Term 1", PreviousBalance: decimal.Zero}}
	billings := []Billing{tuition("b1", "Term 1", "200000"), tuition("b0", "Term 0", "100000")}
	payments := []Payment{
		payment("p1", nil, "30000"),               // no term: current only
		payment("p2", TermRef(""), "5000"),        // empty term behaves like no term
		payment("p3", TermRef("Term 0"), "40000"), // historical term
		payment("p4", TermRef("Term 1"), "20000"),
	}

	t.Run("current view counts term-less payments", func(t *testing.T) {
		bal := Reconcile(s.ID, billings, payments, nil, ResolveView(s, CurrentTerm))
		assertMoney(t, "55000", bal.TotalPayments)
		assertMoney(t, "145000", bal.Outstanding())
	})

	t.Run("historical view ignores term-less payments", func(t *testing.T) {
		bal := Reconcile(s.ID, billings, payments, nil, ResolveView(s, "Term 0"))
		assertMoney(t, "40000", bal.TotalPayments)
		assertMoney(t, "60000", bal.Outstanding())
	})
}

func TestComputeOutstanding_IgnoresOtherStudentsAndRejectedPayments(t *testing.T) {
	s := carryInStudent()
	s.PreviousBalance = decimal.Zero
	other := tuition("bx", "Term 1", "999999")
	other.StudentID = "s2"
	rejected := payment("p2", TermRef("Term 1"), "50000")
	rejected.Status = PaymentRejected
	pending := payment("p3", TermRef("Term 1"), "10000")
	pending.Status = PaymentPending

	bal := Reconcile(s.ID,
		[]Billing{tuition("b1", "Term 1", "200000"), other},
		[]Payment{rejected, pending},
		nil, ResolveView(s, CurrentTerm))

	assertMoney(t, "200000", bal.TotalBillings)
	assertMoney(t, "10000", bal.TotalPayments)
}

func TestComputeOutstanding_BursaryAndCreditBalance(t *testing.T) {
	// GIVEN: a bursary worth 100,000 and an overpayment
	s := carryInStudent()
	s.PreviousBalance = decimal.Zero
	s.Bursary = "half"
	bursaries := []Bursary{{ID: "half", Name: "Half", Value: money("100000")}}

	// WHEN
	bal := Reconcile(s.ID,
		[]Billing{tuition("b1", "Term 1", "200000")},
		[]Payment{payment("p1", TermRef("Term 1"), "150000")},
		bursaries, ResolveView(s, CurrentTerm))

	// THEN: negative outstanding is a credit
	assertMoney(t, "100000", bal.BursaryValue)
	assertMoney(t, "100000", bal.TotalBilled())
	assertMoney(t, "-50000", bal.Outstanding())
}

func TestBursaryValue_NoneAndUnknown(t *testing.T) {
	bursaries := []Bursary{{ID: "half", Value: money("100000")}}
	assert.True(t, BursaryValue(bursaries, NoBursary).IsZero())
	assert.True(t, BursaryValue(bursaries, "").IsZero())
	assert.True(t, BursaryValue(bursaries, "missing").IsZero())
	assertMoney(t, "100000", BursaryValue(bursaries, "half"))
}

func TestComputeOutstanding_NilStudentView(t *testing.T) {
	view := ResolveView(nil, CurrentTerm)
	assert.True(t, ComputeOutstanding("s1", nil, nil, nil, view).IsZero())
}
