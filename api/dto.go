/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Amounts travel as
  decimal strings ("150000.50") and are never converted to float.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  h.decode, which unmarshals and validates in one step. Domain rules
  (reason required, target differs from balance) stay in the ledger
  package so every caller gets them.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/fixture.go: LedgerJSON used by scenarios
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/fees-ledger/ledger"
)

// =============================================================================
// STUDENTS
// =============================================================================

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID               string                   `json:"id"`
	Name             string                   `json:"name"`
	Semester         string                   `json:"semester"`
	PreviousBalance  decimal.Decimal          `json:"previous_balance"`
	Bursary          string                   `json:"bursary"`
	Services         []ledger.ServiceID       `json:"services"`
	Requirements     []ledger.Requirement     `json:"requirements"`
	AccountStatus    string                   `json:"account_status"`
	PromotionHistory []ledger.PromotionRecord `json:"promotion_history"`
	ClearanceHistory []ledger.StatusChange    `json:"clearance_history"`
	CreatedAt        time.Time                `json:"created_at"`
}

// CreateStudentRequest is the request to enroll a student.
type CreateStudentRequest struct {
	ID              string               `json:"id"`
	Name            string               `json:"name" validate:"required"`
	Semester        string               `json:"semester" validate:"required"`
	PreviousBalance decimal.Decimal      `json:"previous_balance"`
	Bursary         string               `json:"bursary"`
	Services        []string             `json:"services"`
	Requirements    []ledger.Requirement `json:"requirements" validate:"dive"`
	Actor           string               `json:"actor"`
}

// TermViewDTO is the resolved context for one term.
type TermViewDTO struct {
	IsCurrent    bool                 `json:"is_current"`
	TargetTerm   string               `json:"target_term"`
	StartPrevBal decimal.Decimal      `json:"start_prev_bal"`
	Requirements []ledger.Requirement `json:"requirements"`
	BursaryID    string               `json:"bursary_id"`
	ServiceIDs   []ledger.ServiceID   `json:"service_ids"`
}

// BalanceDTO is the reconciliation breakdown.
type BalanceDTO struct {
	TotalBillings         decimal.Decimal `json:"total_billings"`
	HasBroughtForwardBill bool            `json:"has_brought_forward_bill"`
	EffectivePrev         decimal.Decimal `json:"effective_prev"`
	BursaryValue          decimal.Decimal `json:"bursary_value"`
	TotalPayments         decimal.Decimal `json:"total_payments"`
}

// ClearanceDTO is the tuition-only breakdown for the live term.
type ClearanceDTO struct {
	TotalTargetBilled decimal.Decimal `json:"total_target_billed"`
	EffectivePrev     decimal.Decimal `json:"effective_prev"`
	BursaryValue      decimal.Decimal `json:"bursary_value"`
	TotalTuitionPaid  decimal.Decimal `json:"total_tuition_paid"`
	Denominator       decimal.Decimal `json:"denominator"`
	Percentage        decimal.Decimal `json:"percentage"`
}

// SummaryDTO is what a student's ledger page shows.
type SummaryDTO struct {
	StudentID   string                    `json:"student_id"`
	View        TermViewDTO               `json:"view"`
	Balance     BalanceDTO                `json:"balance"`
	TotalBilled decimal.Decimal           `json:"total_billed"`
	Outstanding decimal.Decimal           `json:"outstanding"`
	Clearance   ClearanceDTO              `json:"clearance"`
	Status      string                    `json:"status"`
	Color       string                    `json:"color"`
	Warnings    []ledger.IntegrityWarning `json:"warnings"`
}

// =============================================================================
// STATEMENT
// =============================================================================

// StatementLineDTO is one row of a term statement. RecordID is empty for
// display-only rows.
type StatementLineDTO struct {
	Kind           string          `json:"kind"` // billing, payment, brought_forward
	RecordID       string          `json:"record_id,omitempty"`
	Synthetic      bool            `json:"synthetic"`
	Date           *time.Time      `json:"date,omitempty"`
	Label          string          `json:"label"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// StatementDTO is a term statement.
type StatementDTO struct {
	View    TermViewDTO        `json:"view"`
	Lines   []StatementLineDTO `json:"lines"`
	Bursary decimal.Decimal    `json:"bursary"`
	Closing decimal.Decimal    `json:"closing"`
}

// =============================================================================
// BILLINGS & PAYMENTS
// =============================================================================

// BillingDTO represents a billing in API responses.
type BillingDTO struct {
	ID               string          `json:"id"`
	StudentID        string          `json:"student_id"`
	Term             string          `json:"term"`
	Type             string          `json:"type"`
	Description      string          `json:"description,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	IsBroughtForward *bool           `json:"is_brought_forward,omitempty"`
	Date             time.Time       `json:"date"`
}

// AddBillingRequest is the request to bill a student.
type AddBillingRequest struct {
	ID               string          `json:"id"`
	Term             string          `json:"term"`
	Type             string          `json:"type" validate:"omitempty,oneof=Tuition Service Adjustment 'Brought Forward'"`
	Description      string          `json:"description"`
	Amount           decimal.Decimal `json:"amount"`
	IsBroughtForward *bool           `json:"is_brought_forward"`
	Date             string          `json:"date"`
	Actor            string          `json:"actor"`
}

// PaymentDTO represents a payment in API responses.
type PaymentDTO struct {
	ID          string                     `json:"id"`
	StudentID   string                     `json:"student_id"`
	Term        *string                    `json:"term,omitempty"`
	Amount      decimal.Decimal            `json:"amount"`
	Method      string                     `json:"method"`
	Allocations map[string]decimal.Decimal `json:"allocations,omitempty"`
	Reference   string                     `json:"reference,omitempty"`
	Status      string                     `json:"status"`
	Type        string                     `json:"type,omitempty"`
	Description string                     `json:"description,omitempty"`
	Date        time.Time                  `json:"date"`
}

// RecordPaymentRequest is the request to record a payment.
type RecordPaymentRequest struct {
	ID          string                     `json:"id"`
	Term        *string                    `json:"term"`
	Amount      decimal.Decimal            `json:"amount"`
	Method      string                     `json:"method" validate:"required"`
	Allocations map[string]decimal.Decimal `json:"allocations"`
	Reference   string                     `json:"reference"`
	Status      string                     `json:"status" validate:"omitempty,oneof=pending approved rejected"`
	Description string                     `json:"description"`
	Date        string                     `json:"date"`
	Actor       string                     `json:"actor"`
}

// ReplacePaymentRequest resolves a sync conflict.
type ReplacePaymentRequest struct {
	StudentID string               `json:"student_id" validate:"required"`
	Payment   RecordPaymentRequest `json:"payment"`
	Reason    string               `json:"reason"`
	Actor     string               `json:"actor"`
}

// DeleteRequest carries the reason for a soft delete.
type DeleteRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// TrashDTO lists a student's soft-deleted records.
type TrashDTO struct {
	Billings []DeletedBillingDTO `json:"billings"`
	Payments []DeletedPaymentDTO `json:"payments"`
}

type DeletedBillingDTO struct {
	Billing   BillingDTO `json:"billing"`
	Reason    string     `json:"reason"`
	DeletedAt time.Time  `json:"deleted_at"`
}

type DeletedPaymentDTO struct {
	Payment   PaymentDTO `json:"payment"`
	Reason    string     `json:"reason"`
	DeletedAt time.Time  `json:"deleted_at"`
}

// =============================================================================
// CORRECTIONS, STATUS, PROMOTION
// =============================================================================

// CorrectionRequest asks for the term balance to become TargetBalance.
// TargetBalance is a string so an empty field is distinguishable from zero.
type CorrectionRequest struct {
	Term          string `json:"term"`
	TargetBalance string `json:"target_balance"`
	Reason        string `json:"reason"`
	Actor         string `json:"actor"`
}

// CorrectionDTO is the single record a correction produced.
type CorrectionDTO struct {
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Billing     *BillingDTO     `json:"billing,omitempty"`
	Payment     *PaymentDTO     `json:"payment,omitempty"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// StatusChangeRequest is a manual account-status transition.
type StatusChangeRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// PromoteRequest moves a student to the next term.
type PromoteRequest struct {
	ToSemester        string `json:"to_semester" validate:"required"`
	ResetRequirements bool   `json:"reset_requirements"`
	Actor             string `json:"actor"`
}

// PromotionDTO is the outcome of a promotion.
type PromotionDTO struct {
	Student        StudentDTO             `json:"student"`
	Record         ledger.PromotionRecord `json:"record"`
	ClosingBalance decimal.Decimal        `json:"closing_balance"`
}

// =============================================================================
// CATALOG & AUDIT
// =============================================================================

type BursaryDTO struct {
	ID    string          `json:"id" validate:"required"`
	Name  string          `json:"name" validate:"required"`
	Value decimal.Decimal `json:"value"`
}

type ServiceDTO struct {
	ID     string          `json:"id" validate:"required"`
	Name   string          `json:"name" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type AuditEntryDTO struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Actor     string    `json:"actor,omitempty"`
	StudentID string    `json:"student_id,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toStudentDTO(s ledger.Student) StudentDTO {
	dto := StudentDTO{
		ID:               string(s.ID),
		Name:             s.Name,
		Semester:         s.Semester,
		PreviousBalance:  s.PreviousBalance,
		Bursary:          string(s.BursaryOrNone()),
		Services:         s.Services,
		Requirements:     s.Requirements,
		AccountStatus:    string(s.AccountStatus),
		PromotionHistory: s.PromotionHistory,
		ClearanceHistory: s.ClearanceHistory,
		CreatedAt:        s.CreatedAt,
	}
	if dto.Services == nil {
		dto.Services = []ledger.ServiceID{}
	}
	if dto.Requirements == nil {
		dto.Requirements = []ledger.Requirement{}
	}
	if dto.PromotionHistory == nil {
		dto.PromotionHistory = []ledger.PromotionRecord{}
	}
	if dto.ClearanceHistory == nil {
		dto.ClearanceHistory = []ledger.StatusChange{}
	}
	return dto
}

func toViewDTO(v ledger.TermView) TermViewDTO {
	dto := TermViewDTO{
		IsCurrent:    v.IsCurrent,
		TargetTerm:   v.TargetTerm,
		StartPrevBal: v.StartPrevBal,
		Requirements: v.Requirements,
		BursaryID:    string(v.BursaryID),
		ServiceIDs:   v.ServiceIDs,
	}
	if dto.Requirements == nil {
		dto.Requirements = []ledger.Requirement{}
	}
	if dto.ServiceIDs == nil {
		dto.ServiceIDs = []ledger.ServiceID{}
	}
	return dto
}

func toSummaryDTO(id ledger.StudentID, s *ledger.Summary) SummaryDTO {
	warnings := s.Warnings
	if warnings == nil {
		warnings = []ledger.IntegrityWarning{}
	}
	return SummaryDTO{
		StudentID: string(id),
		View:      toViewDTO(s.View),
		Balance: BalanceDTO{
			TotalBillings:         s.Balance.TotalBillings,
			HasBroughtForwardBill: s.Balance.HasBroughtForwardBill,
			EffectivePrev:         s.Balance.EffectivePrev,
			BursaryValue:          s.Balance.BursaryValue,
			TotalPayments:         s.Balance.TotalPayments,
		},
		TotalBilled: s.TotalBilled,
		Outstanding: s.Outstanding,
		Clearance: ClearanceDTO{
			TotalTargetBilled: s.Clearance.TotalTargetBilled,
			EffectivePrev:     s.Clearance.EffectivePrev,
			BursaryValue:      s.Clearance.BursaryValue,
			TotalTuitionPaid:  s.Clearance.TotalTuitionPaid,
			Denominator:       s.Clearance.Denominator(),
			Percentage:        s.ClearancePct,
		},
		Status:   string(s.Status),
		Color:    string(s.Color),
		Warnings: warnings,
	}
}

func toStatementDTO(st *ledger.Statement) StatementDTO {
	dto := StatementDTO{
		View:    toViewDTO(st.View),
		Lines:   make([]StatementLineDTO, 0, len(st.Lines)),
		Bursary: st.Bursary,
		Closing: st.Closing,
	}
	for _, l := range st.Lines {
		line := StatementLineDTO{
			Label:          l.Row.Label(),
			Debit:          l.Row.Debit(),
			Credit:         l.Row.Credit(),
			RunningBalance: l.RunningBalance,
		}
		switch l.Row.(type) {
		case ledger.BillingRow:
			line.Kind = "billing"
		case ledger.PaymentRow:
			line.Kind = "payment"
		case ledger.BroughtForwardRow:
			line.Kind = "brought_forward"
		}
		if id, ok := ledger.RecordID(l.Row); ok {
			line.RecordID = id
		} else {
			line.Synthetic = true
		}
		if d := l.Row.RowDate(); !d.IsZero() {
			line.Date = &d
		}
		dto.Lines = append(dto.Lines, line)
	}
	return dto
}

func toBillingDTO(b ledger.Billing) BillingDTO {
	return BillingDTO{
		ID:               string(b.ID),
		StudentID:        string(b.StudentID),
		Term:             b.Term,
		Type:             string(b.Type),
		Description:      b.Description,
		Amount:           b.Amount,
		IsBroughtForward: b.IsBroughtForward,
		Date:             b.Date,
	}
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          string(p.ID),
		StudentID:   string(p.StudentID),
		Term:        p.Term,
		Amount:      p.Amount,
		Method:      p.Method,
		Allocations: p.Allocations,
		Reference:   p.Reference,
		Status:      string(p.Status),
		Type:        string(p.Type),
		Description: p.Description,
		Date:        p.Date,
	}
}

func toAuditDTO(e ledger.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Category:  string(e.Category),
		Message:   e.Message,
		Actor:     e.Actor,
		StudentID: string(e.StudentID),
	}
}
