package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INTEGRITY WARNINGS - Non-fatal data consistency findings
// =============================================================================

type WarningCode string

const (
	WarnUnknownMethod      WarningCode = "unknown_payment_method"
	WarnAllocationMismatch WarningCode = "allocation_mismatch"
	WarnMultipleBroughtFwd WarningCode = "multiple_brought_forward"
	WarnPaymentTermUnknown WarningCode = "payment_term_unknown"
)

// AllocationTolerance is how far allocations may drift from the payment amount.
var AllocationTolerance = decimal.NewFromInt(1)

type IntegrityWarning struct {
	Code      WarningCode `json:"code"`
	StudentID StudentID   `json:"student_id"`
	RecordID  string      `json:"record_id,omitempty"`
	Message   string      `json:"message"`
}

// AccountGroups maps an account group name to the payment methods it covers.
type AccountGroups map[string][]string

// GroupFor returns the group a method belongs to, matched case-insensitively.
func (g AccountGroups) GroupFor(method string) (string, bool) {
	for name, methods := range g {
		for _, m := range methods {
			if strings.EqualFold(m, method) {
				return name, true
			}
		}
	}
	return "", false
}

// CheckIntegrity reports consistency warnings for one student. It never
// blocks computation; callers show the warnings next to the totals.
// Adjustment credits are exempt from the method check.
func CheckIntegrity(student *Student, billings []Billing, payments []Payment, groups AccountGroups) []IntegrityWarning {
	if student == nil {
		return nil
	}
	var warnings []IntegrityWarning
	attended := AttendedTerms(student)

	for _, p := range payments {
		if p.StudentID != student.ID {
			continue
		}
		if p.Type != PaymentAdjustment && len(groups) > 0 {
			if _, ok := groups.GroupFor(p.Method); !ok {
				warnings = append(warnings, IntegrityWarning{
					Code: WarnUnknownMethod, StudentID: student.ID, RecordID: string(p.ID),
					Message: fmt.Sprintf("payment method %q matches no account group", p.Method),
				})
			}
		}
		if len(p.Allocations) > 0 {
			sum := decimal.Zero
			for _, a := range p.Allocations {
				sum = sum.Add(a)
			}
			if sum.Sub(p.Amount).Abs().GreaterThan(AllocationTolerance) {
				warnings = append(warnings, IntegrityWarning{
					Code: WarnAllocationMismatch, StudentID: student.ID, RecordID: string(p.ID),
					Message: fmt.Sprintf("allocations total %s but payment is %s", sum, p.Amount),
				})
			}
		}
		if p.HasTerm() && !attended[*p.Term] {
			warnings = append(warnings, IntegrityWarning{
				Code: WarnPaymentTermUnknown, StudentID: student.ID, RecordID: string(p.ID),
				Message: fmt.Sprintf("payment references term %q the student never attended", *p.Term),
			})
		}
	}

	bfPerTerm := make(map[string]int)
	for _, b := range billings {
		if b.StudentID == student.ID && IsBroughtForwardBilling(b) {
			bfPerTerm[b.Term]++
		}
	}
	terms := make([]string, 0, len(bfPerTerm))
	for t := range bfPerTerm {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	for _, t := range terms {
		if n := bfPerTerm[t]; n > 1 {
			warnings = append(warnings, IntegrityWarning{
				Code: WarnMultipleBroughtFwd, StudentID: student.ID,
				Message: fmt.Sprintf("term %q has %d brought-forward bills", t, n),
			})
		}
	}

	return warnings
}
