/*
view.go - Term view resolution

PURPOSE:
  Projects a student onto a requested term. For the live term the student's
  own fields apply; for a term the student has since left, the snapshot
  frozen at promotion time applies. The projection is pure: it never
  mutates the student and returns copies of every slice.

STARTING BALANCE RESOLUTION (first match wins):
  1. promotion record with ToSemester == term    → its PreviousBalance
  2. term is current                              → student.PreviousBalance
  3. promotion record with FromSemester == term  → its InitialPreviousBalance
  4. otherwise                                    → 0

SNAPSHOT RESOLUTION:
  If a record with FromSemester == term exists, bursary, services and
  requirements come from it; otherwise from the live student.
*/
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// HistoricalSuffix is appended to historical term labels in term pickers.
const HistoricalSuffix = " (Hist)"

// TermView is the consistent context a term is reconciled against.
type TermView struct {
	IsCurrent    bool
	TargetTerm   string
	StartPrevBal decimal.Decimal
	Requirements []Requirement
	BursaryID    BursaryID
	ServiceIDs   []ServiceID
}

// ResolveView projects student onto requestedTerm.
// A nil student yields an empty context rather than an error.
func ResolveView(student *Student, requestedTerm string) TermView {
	if student == nil {
		return TermView{BursaryID: NoBursary, StartPrevBal: decimal.Zero}
	}

	term := normalizeTerm(requestedTerm)
	isCurrent := term == CurrentTerm || term == student.Semester
	target := term
	if isCurrent {
		target = student.Semester
	}

	into := promotionInto(student, target)
	outOf := promotionOutOf(student, target)

	view := TermView{
		IsCurrent:    isCurrent,
		TargetTerm:   target,
		StartPrevBal: decimal.Zero,
	}

	switch {
	case into != nil:
		view.StartPrevBal = into.PreviousBalance
	case isCurrent:
		view.StartPrevBal = student.PreviousBalance
	case outOf != nil && outOf.InitialPreviousBalance != nil:
		view.StartPrevBal = *outOf.InitialPreviousBalance
	}

	if outOf != nil {
		view.BursaryID = outOf.BursarySnapshot
		view.ServiceIDs = append([]ServiceID(nil), outOf.ServicesSnapshot...)
		view.Requirements = append([]Requirement(nil), outOf.RequirementsSnapshot...)
	} else {
		view.BursaryID = student.Bursary
		view.ServiceIDs = append([]ServiceID(nil), student.Services...)
		view.Requirements = append([]Requirement(nil), student.Requirements...)
	}
	if view.BursaryID == "" {
		view.BursaryID = NoBursary
	}

	return view
}

// normalizeTerm accepts "", "Current", a bare term or a "(Hist)" label.
func normalizeTerm(requested string) string {
	t := strings.TrimSpace(requested)
	if t == "" {
		return CurrentTerm
	}
	return strings.TrimSpace(strings.TrimSuffix(t, HistoricalSuffix))
}

func promotionInto(s *Student, term string) *PromotionRecord {
	for i := range s.PromotionHistory {
		if s.PromotionHistory[i].ToSemester == term {
			return &s.PromotionHistory[i]
		}
	}
	return nil
}

func promotionOutOf(s *Student, term string) *PromotionRecord {
	for i := range s.PromotionHistory {
		if s.PromotionHistory[i].FromSemester == term {
			return &s.PromotionHistory[i]
		}
	}
	return nil
}

// =============================================================================
// TERM OPTIONS - What a term picker offers
// =============================================================================

type TermOption struct {
	Value      string `json:"value"`
	Label      string `json:"label"`
	Historical bool   `json:"historical"`
}

// TermOptions lists the live term first, then every term the student has
// left, most recent first.
func TermOptions(student *Student) []TermOption {
	if student == nil {
		return nil
	}
	opts := []TermOption{{Value: CurrentTerm, Label: student.Semester}}
	seen := map[string]bool{student.Semester: true}
	for i := len(student.PromotionHistory) - 1; i >= 0; i-- {
		from := student.PromotionHistory[i].FromSemester
		if from == "" || seen[from] {
			continue
		}
		seen[from] = true
		opts = append(opts, TermOption{Value: from, Label: from + HistoricalSuffix, Historical: true})
	}
	return opts
}

// AttendedTerms returns every term the student has been enrolled in.
func AttendedTerms(student *Student) map[string]bool {
	terms := make(map[string]bool)
	if student == nil {
		return terms
	}
	terms[student.Semester] = true
	for _, p := range student.PromotionHistory {
		terms[p.FromSemester] = true
		terms[p.ToSemester] = true
	}
	return terms
}
