package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGroups = AccountGroups{
	"Cash":         {"Cash"},
	"Bank":         {"Bank", "Bank Transfer", "Cheque"},
	"Mobile Money": {"Mobile Money", "MTN", "Airtel"},
}

func codes(warnings []IntegrityWarning) []WarningCode {
	out := make([]WarningCode, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, w.Code)
	}
	return out
}

func TestAccountGroups_GroupFor(t *testing.T) {
	g, ok := testGroups.GroupFor("mtn")
	assert.True(t, ok)
	assert.Equal(t, "Mobile Money", g)

	_, ok = testGroups.GroupFor("Crypto")
	assert.False(t, ok)
}

func TestCheckIntegrity_Clean(t *testing.T) {
	s := carryInStudent()
	p := payment("p1", TermRef("Term 1"), "100")
	p.Allocations = map[string]decimal.Decimal{"Tuition": money("100.5")} // within tolerance
	adj := payment("p2", nil, "50")
	adj.Method = MethodAdjustment
	adj.Type = PaymentAdjustment

	warnings := CheckIntegrity(s, []Billing{tuition("b1", "Term 1", "100")}, []Payment{p, adj}, testGroups)

	assert.Empty(t, warnings)
}

func TestCheckIntegrity_ReportsEveryIssue(t *testing.T) {
	// GIVEN: an unknown method, drifting allocations, two BF bills and a stray term
	s := carryInStudent()
	crypto := payment("p1", TermRef("Term 1"), "10000")
	crypto.Method = "Crypto"
	drift := payment("p2", TermRef("Term 1"), "60000")
	drift.Allocations = map[string]decimal.Decimal{"Tuition": money("40000")}
	stray := payment("p3", TermRef("Term 9"), "1000")
	billings := []Billing{
		{ID: "b1", StudentID: "s1", Term: "Term 1", Type: BillingBroughtForward, Amount: money("1")},
		{ID: "b2", StudentID: "s1", Term: "Term 1", Type: BillingTuition, Description: "Balance B/F", Amount: money("1")},
	}

	// WHEN
	warnings := CheckIntegrity(s, billings, []Payment{crypto, drift, stray}, testGroups)

	// THEN
	require.Len(t, warnings, 4)
	assert.ElementsMatch(t, []WarningCode{
		WarnUnknownMethod, WarnAllocationMismatch, WarnPaymentTermUnknown, WarnMultipleBroughtFwd,
	}, codes(warnings))
	for _, w := range warnings {
		assert.Equal(t, StudentID("s1"), w.StudentID)
		assert.NotEmpty(t, w.Message)
	}
}

func TestCheckIntegrity_NoGroupsSkipsMethodCheck(t *testing.T) {
	s := carryInStudent()
	p := payment("p1", nil, "1")
	p.Method = "Barter"
	assert.Empty(t, CheckIntegrity(s, nil, []Payment{p}, nil))
	assert.Nil(t, CheckIntegrity(nil, nil, []Payment{p}, testGroups))
}
