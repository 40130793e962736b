/*
handlers.go - HTTP API handlers for the fees ledger

PURPOSE:
  Exposes the reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to ledger.Manager.

ENDPOINTS:
  Students:
    GET    /api/students                       List students
    POST   /api/students                       Enroll a student
    GET    /api/students/{id}                  Student details
    GET    /api/students/{id}/terms            Term picker options
    GET    /api/students/{id}/view?term=       Resolved term context
    GET    /api/students/{id}/summary?term=    Outstanding, total billed, clearance
    GET    /api/students/{id}/statement?term=  Chronological rows
    GET    /api/students/{id}/trash            Soft-deleted records

  Ledger writes:
    POST   /api/students/{id}/billings         Bill a student
    POST   /api/students/{id}/payments         Record a payment
    POST   /api/students/{id}/corrections      Target-balance fix
    POST   /api/students/{id}/status           Manual status change
    POST   /api/students/{id}/promote          Promote to the next term
    DELETE /api/billings/{id}                  Soft delete, reason in body
    DELETE /api/payments/{id}                  Soft delete, reason in body
    PUT    /api/payments/{id}                  Replace a payment

  Catalog & reports:
    GET/POST /api/bursaries, /api/services
    GET    /api/audit?student_id=&category=&limit=
    GET    /api/integrity

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, missing reason, nothing to correct
  - 404: Student, billing or payment not found
  - 409: Duplicate record ID
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The actor recorded in the audit log is taken from the
  request body, then the X-Actor header, then "system".

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/fees-ledger/factory"
	"github.com/warp/fees-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the storage the API runs on. Both the SQLite store and the
// in-memory store satisfy it.
type Backend interface {
	ledger.TxStore
	ledger.AuditLog
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Backend
	Manager *ledger.Manager
	Factory *factory.LedgerFactory

	validate *validator.Validate
	log      *zap.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store.
func NewHandler(store Backend, cfg ledger.ManagerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:    store,
		Manager:  ledger.NewManager(store, store, logger.Named("ledger"), cfg),
		Factory:  factory.NewLedgerFactory(),
		validate: validator.New(),
		log:      logger.Named("api"),
	}
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns all students.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to list students", err)
		return
	}
	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = toStudentDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStudent enrolls a student.
// POST /api/students
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if !h.decode(w, r, &req) {
		return
	}

	services := make([]ledger.ServiceID, len(req.Services))
	for i, s := range req.Services {
		services[i] = ledger.ServiceID(s)
	}
	student, err := h.Manager.Enroll(r.Context(), ledger.Student{
		ID:              ledger.StudentID(req.ID),
		Name:            req.Name,
		Semester:        req.Semester,
		PreviousBalance: req.PreviousBalance,
		Bursary:         ledger.BursaryID(req.Bursary),
		Services:        services,
		Requirements:    req.Requirements,
	}, actorOf(r, req.Actor))
	if err != nil {
		h.writeLedgerError(w, "Failed to create student", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(*student))
}

// GetStudent returns one student.
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	student, err := h.Store.GetStudent(r.Context(), studentID(r))
	if err != nil {
		h.writeLedgerError(w, "Failed to get student", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*student))
}

// GetTermOptions lists "Current" plus every historical term.
// GET /api/students/{id}/terms
func (h *Handler) GetTermOptions(w http.ResponseWriter, r *http.Request) {
	student, err := h.Store.GetStudent(r.Context(), studentID(r))
	if err != nil {
		h.writeLedgerError(w, "Failed to get student", err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.TermOptions(student))
}

// GetView resolves the requested term.
// GET /api/students/{id}/view?term=Year%201%20(Hist)
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	student, err := h.Store.GetStudent(r.Context(), studentID(r))
	if err != nil {
		h.writeLedgerError(w, "Failed to get student", err)
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(ledger.ResolveView(student, termParam(r))))
}

// GetSummary returns the reconciled balance and clearance.
// GET /api/students/{id}/summary?term=
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id := studentID(r)
	summary, err := h.Manager.Summarize(r.Context(), id, termParam(r))
	if err != nil {
		h.writeLedgerError(w, "Failed to summarize ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(id, summary))
}

// GetStatement returns the term statement.
// GET /api/students/{id}/statement?term=
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.Manager.Statement(r.Context(), studentID(r), termParam(r))
	if err != nil {
		h.writeLedgerError(w, "Failed to build statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// GetTrash lists a student's soft-deleted billings and payments.
// GET /api/students/{id}/trash
func (h *Handler) GetTrash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := studentID(r)
	if _, err := h.Store.GetStudent(ctx, id); err != nil {
		h.writeLedgerError(w, "Failed to get student", err)
		return
	}
	billings, err := h.Store.ListDeletedBillings(ctx, id)
	if err != nil {
		h.writeLedgerError(w, "Failed to list deleted billings", err)
		return
	}
	payments, err := h.Store.ListDeletedPayments(ctx, id)
	if err != nil {
		h.writeLedgerError(w, "Failed to list deleted payments", err)
		return
	}

	dto := TrashDTO{
		Billings: make([]DeletedBillingDTO, len(billings)),
		Payments: make([]DeletedPaymentDTO, len(payments)),
	}
	for i, b := range billings {
		dto.Billings[i] = DeletedBillingDTO{Billing: toBillingDTO(b.Billing), Reason: b.Reason, DeletedAt: b.DeletedAt}
	}
	for i, p := range payments {
		dto.Payments[i] = DeletedPaymentDTO{Payment: toPaymentDTO(p.Payment), Reason: p.Reason, DeletedAt: p.DeletedAt}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// LEDGER WRITE HANDLERS
// =============================================================================

// AddBilling bills a student. An empty term bills the current term.
// POST /api/students/{id}/billings
func (h *Handler) AddBilling(w http.ResponseWriter, r *http.Request) {
	var req AddBillingRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.writeLedgerError(w, "Invalid date", err)
		return
	}

	b, err := h.Manager.AddBilling(r.Context(), ledger.Billing{
		ID:               ledger.BillingID(req.ID),
		StudentID:        studentID(r),
		Term:             req.Term,
		Type:             ledger.BillingType(req.Type),
		Description:      req.Description,
		Amount:           req.Amount,
		IsBroughtForward: req.IsBroughtForward,
		Date:             date,
	}, actorOf(r, req.Actor))
	if err != nil {
		h.writeLedgerError(w, "Failed to add billing", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillingDTO(*b))
}

// RecordPayment records a payment for a student.
// POST /api/students/{id}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := paymentFromRequest(studentID(r), req)
	if err != nil {
		h.writeLedgerError(w, "Invalid payment", err)
		return
	}

	saved, err := h.Manager.RecordPayment(r.Context(), p, actorOf(r, req.Actor))
	if err != nil {
		h.writeLedgerError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*saved))
}

// ApplyCorrection forces the term balance to a target with one adjustment.
// POST /api/students/{id}/corrections
func (h *Handler) ApplyCorrection(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := studentID(r)

	rec, err := h.Manager.ApplyCorrection(ctx, ledger.CorrectionRequest{
		StudentID:     id,
		Term:          req.Term,
		TargetBalance: req.TargetBalance,
		Reason:        req.Reason,
		Actor:         actorOf(r, req.Actor),
	})
	if err != nil {
		h.writeLedgerError(w, "Failed to apply correction", err)
		return
	}

	dto := CorrectionDTO{
		Kind:        string(rec.Correction.Kind),
		Amount:      rec.Correction.Amount,
		Description: rec.Correction.Description,
	}
	if rec.Billing != nil {
		b := toBillingDTO(*rec.Billing)
		dto.Billing = &b
	}
	if rec.Payment != nil {
		p := toPaymentDTO(*rec.Payment)
		dto.Payment = &p
	}
	if summary, err := h.Manager.Summarize(ctx, id, req.Term); err == nil {
		dto.Outstanding = summary.Outstanding
	}
	writeJSON(w, http.StatusCreated, dto)
}

// ChangeStatus records a manual account-status transition.
// POST /api/students/{id}/status
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusChangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	change, err := h.Manager.ChangeStatus(r.Context(), studentID(r),
		ledger.AccountStatus(req.Status), req.Reason, actorOf(r, req.Actor))
	if err != nil {
		h.writeLedgerError(w, "Failed to change status", err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// PromoteStudent freezes the current term and opens the next one.
// POST /api/students/{id}/promote
func (h *Handler) PromoteStudent(w http.ResponseWriter, r *http.Request) {
	var req PromoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.Manager.PromoteStudent(r.Context(), studentID(r), req.ToSemester,
		actorOf(r, req.Actor), req.ResetRequirements)
	if err != nil {
		h.writeLedgerError(w, "Failed to promote student", err)
		return
	}
	writeJSON(w, http.StatusOK, PromotionDTO{
		Student:        toStudentDTO(out.Student),
		Record:         out.Record,
		ClosingBalance: out.ClosingBalance.Outstanding(),
	})
}

// DeleteBilling moves a billing to the trash.
// DELETE /api/billings/{id}
func (h *Handler) DeleteBilling(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := ledger.BillingID(chi.URLParam(r, "id"))
	if err := h.Manager.DeleteBilling(r.Context(), id, req.Reason, actorOf(r, req.Actor)); err != nil {
		h.writeLedgerError(w, "Failed to delete billing", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": string(id)})
}

// DeletePayment moves a payment to the trash.
// DELETE /api/payments/{id}
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := ledger.PaymentID(chi.URLParam(r, "id"))
	if err := h.Manager.DeletePayment(r.Context(), id, req.Reason, actorOf(r, req.Actor)); err != nil {
		h.writeLedgerError(w, "Failed to delete payment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": string(id)})
}

// ReplacePayment trashes a payment and records its replacement atomically.
// PUT /api/payments/{id}
func (h *Handler) ReplacePayment(w http.ResponseWriter, r *http.Request) {
	var req ReplacePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := paymentFromRequest(ledger.StudentID(req.StudentID), req.Payment)
	if err != nil {
		h.writeLedgerError(w, "Invalid payment", err)
		return
	}
	saved, err := h.Manager.ReplacePayment(r.Context(), ledger.PaymentID(chi.URLParam(r, "id")),
		p, req.Reason, actorOf(r, req.Actor))
	if err != nil {
		h.writeLedgerError(w, "Failed to replace payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*saved))
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

func (h *Handler) ListBursaries(w http.ResponseWriter, r *http.Request) {
	bursaries, err := h.Store.ListBursaries(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to list bursaries", err)
		return
	}
	dtos := make([]BursaryDTO, len(bursaries))
	for i, b := range bursaries {
		dtos[i] = BursaryDTO{ID: string(b.ID), Name: b.Name, Value: b.Value}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveBursary(w http.ResponseWriter, r *http.Request) {
	var req BursaryDTO
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == string(ledger.NoBursary) {
		h.writeLedgerError(w, "Invalid bursary", &ledger.ValidationError{Field: "id", Message: "\"none\" is reserved"})
		return
	}
	if req.Value.IsNegative() {
		h.writeLedgerError(w, "Invalid bursary", &ledger.ValidationError{Field: "value", Message: "must not be negative"})
		return
	}
	if err := h.Store.SaveBursary(r.Context(), ledger.Bursary{ID: ledger.BursaryID(req.ID), Name: req.Name, Value: req.Value}); err != nil {
		h.writeLedgerError(w, "Failed to save bursary", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Store.ListServices(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to list services", err)
		return
	}
	dtos := make([]ServiceDTO, len(services))
	for i, s := range services {
		dtos[i] = ServiceDTO{ID: string(s.ID), Name: s.Name, Amount: s.Amount}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveService(w http.ResponseWriter, r *http.Request) {
	var req ServiceDTO
	if !h.decode(w, r, &req) {
		return
	}
	if req.Amount.IsNegative() {
		h.writeLedgerError(w, "Invalid service", &ledger.ValidationError{Field: "amount", Message: "must not be negative"})
		return
	}
	if err := h.Store.SaveService(r.Context(), ledger.Service{ID: ledger.ServiceID(req.ID), Name: req.Name, Amount: req.Amount}); err != nil {
		h.writeLedgerError(w, "Failed to save service", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// ListAudit returns audit entries, newest first.
// GET /api/audit?student_id=s1&category=balance_fix&limit=50
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.AuditFilter{Limit: 100}
	if v := q.Get("student_id"); v != "" {
		id := ledger.StudentID(v)
		filter.StudentID = &id
	}
	if v := q.Get("category"); v != "" {
		cat := ledger.AuditCategory(v)
		filter.Category = &cat
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	entries, err := h.Store.ListActions(r.Context(), filter)
	if err != nil {
		h.writeLedgerError(w, "Failed to list audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetIntegrity runs the integrity checks over every student.
// GET /api/integrity
func (h *Handler) GetIntegrity(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.Manager.Integrity(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to check integrity", err)
		return
	}
	if warnings == nil {
		warnings = []ledger.IntegrityWarning{}
	}
	writeJSON(w, http.StatusOK, warnings)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode unmarshals and validates the request body. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid JSON", err)
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeError(w, http.StatusBadRequest, "Validation failed",
				&ledger.ValidationError{Field: fe.Field(), Message: "failed " + fe.Tag()})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeLedgerError maps ledger errors to HTTP statuses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.log.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func studentID(r *http.Request) ledger.StudentID {
	return ledger.StudentID(chi.URLParam(r, "id"))
}

func termParam(r *http.Request) string {
	return r.URL.Query().Get("term")
}

func actorOf(r *http.Request, fromBody string) string {
	if a := strings.TrimSpace(fromBody); a != "" {
		return a
	}
	if a := strings.TrimSpace(r.Header.Get("X-Actor")); a != "" {
		return a
	}
	return "system"
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty returns the zero time,
// which the manager replaces with now.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: "date", Message: "expected YYYY-MM-DD or RFC 3339"}
	}
	return t, nil
}

func paymentFromRequest(id ledger.StudentID, req RecordPaymentRequest) (ledger.Payment, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return ledger.Payment{}, err
	}
	return ledger.Payment{
		ID:          ledger.PaymentID(req.ID),
		StudentID:   id,
		Term:        req.Term,
		Amount:      req.Amount,
		Method:      req.Method,
		Allocations: req.Allocations,
		Reference:   req.Reference,
		Status:      ledger.PaymentStatus(req.Status),
		Description: req.Description,
		Date:        date,
	}, nil
}
