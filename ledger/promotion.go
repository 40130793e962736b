package ledger

import (
	"strings"
	"time"
)

// =============================================================================
// PROMOTION - Freeze the term, open the next one
// =============================================================================

// PromotionInput contains inputs for promoting a student.
type PromotionInput struct {
	Student    Student
	ToSemester string
	Billings   []Billing
	Payments   []Payment
	Bursaries  []Bursary
	At         time.Time

	// ResetRequirements clears Brought counts for the new term.
	ResetRequirements bool
}

// PromotionOutput contains the promoted student and the frozen record.
type PromotionOutput struct {
	Student Student
	Record  PromotionRecord
	// ClosingBalance is the outstanding balance carried into ToSemester.
	ClosingBalance TermBalance
}

// Promote closes the student's current term by:
// 1. Reconciling the current term
// 2. Freezing bursary, services and requirements into a PromotionRecord
// 3. Appending the record and moving the student to ToSemester
//
// The input student is not modified. Existing records are never recomputed.
func Promote(input PromotionInput) (PromotionOutput, error) {
	to := strings.TrimSpace(input.ToSemester)
	s := input.Student
	if to == "" || to == CurrentTerm {
		return PromotionOutput{}, &ValidationError{Field: "to_semester", Message: "required"}
	}
	if to == s.Semester {
		return PromotionOutput{}, ErrInvalidPromotion
	}
	if AttendedTerms(&s)[to] {
		return PromotionOutput{}, ErrInvalidPromotion
	}

	view := ResolveView(&s, CurrentTerm)
	closing := Reconcile(s.ID, input.Billings, input.Payments, input.Bursaries, view)

	record := PromotionRecord{
		FromSemester:           s.Semester,
		ToSemester:             to,
		PreviousBalance:        closing.Outstanding(),
		InitialPreviousBalance: DecimalRef(view.StartPrevBal),
		BursarySnapshot:        view.BursaryID,
		ServicesSnapshot:       append([]ServiceID(nil), view.ServiceIDs...),
		RequirementsSnapshot:   append([]Requirement(nil), view.Requirements...),
		PromotedAt:             input.At,
	}

	next := s.Clone()
	next.PromotionHistory = append(next.PromotionHistory, record.clone())
	next.Semester = to
	next.PreviousBalance = record.PreviousBalance
	if input.ResetRequirements {
		for i := range next.Requirements {
			next.Requirements[i].Brought = 0
		}
	}

	return PromotionOutput{Student: next, Record: record, ClosingBalance: closing}, nil
}
