/*
handlers_test.go - HTTP tests for the ledger API

Tests for:
- Summary, view and statement reads over a loaded scenario
- Ledger writes (billing, payment, correction, status, promotion)
- Soft deletes and payment replacement
- Error mapping (400 / 404 / 409)
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fees-ledger/ledger"
	"github.com/warp/fees-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testGroups = ledger.AccountGroups{
	"Cash":         {"Cash"},
	"Bank":         {"Bank", "Bank Transfer", "Cheque"},
	"Mobile Money": {"Mobile Money", "MTN", "Airtel"},
}

type testAPI struct {
	h      *Handler
	router *chi.Mux
	store  *store.Memory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mem := store.NewMemory()
	h := NewHandler(mem, ledger.ManagerConfig{AccountGroups: testGroups}, nil)
	return &testAPI{h: h, router: NewRouter(h, nil), store: mem}
}

func (a *testAPI) load(t *testing.T, scenarioID string) {
	t.Helper()
	require.NoError(t, a.h.loadScenario(context.Background(), scenarioID))
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "bursar")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// =============================================================================
// READS
// =============================================================================

func TestGetSummary_ManualCarryIn(t *testing.T) {
	// GIVEN
	a := newTestAPI(t)
	a.load(t, "manual-carry-in")

	// WHEN
	rec := a.do(t, http.MethodGet, "/api/students/stu-001/summary", nil)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decodeAs[SummaryDTO](t, rec)
	assertDecimal(t, "150000", sum.Outstanding)
	assertDecimal(t, "250000", sum.TotalBilled)
	assertDecimal(t, "50000", sum.Balance.EffectivePrev)
	assert.False(t, sum.Balance.HasBroughtForwardBill)
	assert.Equal(t, "red", sum.Color)
	assert.NotNil(t, sum.Warnings)
}

func TestGetSummary_BroughtForward(t *testing.T) {
	a := newTestAPI(t)
	a.load(t, "brought-forward")

	sum := decodeAs[SummaryDTO](t, a.do(t, http.MethodGet, "/api/students/stu-002/summary", nil))

	assert.True(t, sum.Balance.HasBroughtForwardBill)
	assert.True(t, sum.Balance.EffectivePrev.IsZero())
	assertDecimal(t, "150000", sum.Outstanding)
}

func TestGetSummary_TuitionClearance(t *testing.T) {
	a := newTestAPI(t)
	a.load(t, "tuition-clearance")

	sum := decodeAs[SummaryDTO](t, a.do(t, http.MethodGet, "/api/students/stu-004/summary", nil))

	assertDecimal(t, "100", sum.Clearance.Percentage)
	assertDecimal(t, "200000", sum.Clearance.TotalTuitionPaid)
	assert.Equal(t, "green", sum.Color)
	assert.True(t, sum.Outstanding.IsZero())
}

func TestHistoricalTerm(t *testing.T) {
	// GIVEN: a student promoted from Year 1 to Year 2
	a := newTestAPI(t)
	a.load(t, "historical-term")

	// WHEN: the term picker and the historical view are requested
	opts := decodeAs[[]ledger.TermOption](t, a.do(t, http.MethodGet, "/api/students/stu-005/terms", nil))
	view := decodeAs[TermViewDTO](t, a.do(t, http.MethodGet, "/api/students/stu-005/view?term=Year%201%20(Hist)", nil))
	live := decodeAs[TermViewDTO](t, a.do(t, http.MethodGet, "/api/students/stu-005/view", nil))
	hist := decodeAs[SummaryDTO](t, a.do(t, http.MethodGet, "/api/students/stu-005/summary?term=Year%201", nil))

	// THEN
	require.Len(t, opts, 2)
	assert.Equal(t, "Year 1 (Hist)", opts[1].Label)

	assert.False(t, view.IsCurrent)
	assert.Equal(t, "half", view.BursaryID)
	require.Len(t, view.Requirements, 2)
	assert.Equal(t, "Ream of Paper", view.Requirements[0].Name)

	assert.True(t, live.IsCurrent)
	assert.Equal(t, "sports", live.BursaryID)
	require.Len(t, live.Requirements, 1)
	assert.Equal(t, "Lab Coat", live.Requirements[0].Name)

	assert.True(t, hist.Outstanding.IsZero())
	assertDecimal(t, "100000", hist.Balance.BursaryValue)
}

func TestGetStatement_SyntheticRow(t *testing.T) {
	a := newTestAPI(t)
	a.load(t, "manual-carry-in")

	st := decodeAs[StatementDTO](t, a.do(t, http.MethodGet, "/api/students/stu-001/statement", nil))

	require.Len(t, st.Lines, 3)
	assert.Equal(t, "brought_forward", st.Lines[0].Kind)
	assert.True(t, st.Lines[0].Synthetic)
	assert.Empty(t, st.Lines[0].RecordID)
	assert.Nil(t, st.Lines[0].Date)
	assert.Equal(t, "bill-001", st.Lines[1].RecordID)
	assert.Equal(t, "pay-001", st.Lines[2].RecordID)
	assertDecimal(t, "150000", st.Closing)
}

func TestGetStudent_NotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/students/ghost/summary", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "Failed to summarize ledger", resp.Error)
}

// =============================================================================
// WRITES
// =============================================================================

func TestCreateStudentAndBill(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/students", CreateStudentRequest{
		ID: "stu-100", Name: "Joan", Semester: "Term 1", PreviousBalance: decimal.NewFromInt(1000),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	student := decodeAs[StudentDTO](t, rec)
	assert.Equal(t, "none", student.Bursary)
	assert.NotNil(t, student.PromotionHistory)

	rec = a.do(t, http.MethodPost, "/api/students", CreateStudentRequest{ID: "stu-100", Name: "Joan", Semester: "Term 1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/students", CreateStudentRequest{Name: "No term"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/students/stu-100/billings", AddBillingRequest{
		Amount: decimal.NewFromInt(5000), Description: "Lab fees", Date: "2024-02-05",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bill := decodeAs[BillingDTO](t, rec)
	assert.Equal(t, "Term 1", bill.Term)
	assert.Equal(t, "Tuition", bill.Type)

	rec = a.do(t, http.MethodPost, "/api/students/stu-100/billings", AddBillingRequest{
		Amount: decimal.NewFromInt(1), Type: "Penalty",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sum := decodeAs[SummaryDTO](t, a.do(t, http.MethodGet, "/api/students/stu-100/summary", nil))
	assertDecimal(t, "6000", sum.Outstanding)
}

func TestRecordPayment(t *testing.T) {
	a := newTestAPI(t)
	a.load(t, "manual-carry-in")

	rec := a.do(t, http.MethodPost, "/api/students/stu-001/payments", RecordPaymentRequest{
		Amount: decimal.NewFromInt(50000), Method: "MTN", Reference: "MM-77",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeAs[PaymentDTO](t, rec)
	assert.Equal(t, "approved", p.Status)
	require.NotNil(t, p.Term)
	assert.Equal(t, "Term 1", *p.Term, "a term-less payment is pinned to the current term")

	rec = a.do(t, http.MethodPost, "/api/students/stu-001/payments", RecordPaymentRequest{Amount: decimal.NewFromInt(1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "method is required")

	rec = a.do(t, http.MethodPost, "/api/students/stu-001/payments", RecordPaymentRequest{Amount: decimal.NewFromInt(1), Method: "Cash", Date: "yesterday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sum := decodeAs[SummaryDTO](t, a.do(t, http.MethodGet, "/api/students/stu-001/summary", nil))
	assertDecimal(t, "100000", sum.Outstanding)
}

func TestApplyCorrection(t *testing.T) {
	// GIVEN: outstanding 150,000
	a := newTestAPI(t)
	a.load(t, "manual-carry-in")

	// WHEN: the balance is fixed to 0
	rec := a.do(t, http.MethodPost, "/api/students/stu-001/corrections", CorrectionRequest{
		Term: "Current", TargetBalance: "0", Reason: "Waiver",
	})

	// THEN: one adjustment credit, outstanding 0, audited under the header actor
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dto := decodeAs[CorrectionDTO](t, rec)
	assert.Equal(t, "credit", dto.Kind)
	assertDecimal(t, "150000", dto.Amount)
	require.NotNil(t, dto.Payment)
	assert.Equal(t, "BALANCE-FIX", dto.Payment.Reference)
	assert.Nil(t, dto.Billing)
	assert.True(t, dto.Outstanding.IsZero())

	entries := decodeAs[[]AuditEntryDTO](t, a.do(t, http.MethodGet, "/api/audit?category=balance_fix", nil))
	require.Len(t, entries, 1)
	assert.Equal(t, "bursar", entries[0].Actor)

	// Repeating the same target is rejected.
	rec = a.do(t, http.MethodPost, "/api/students/stu-001/corrections", CorrectionRequest{TargetBalance: "0", Reason: "Again"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/students/stu-001/corrections", CorrectionRequest{TargetBalance: "10"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason is required")
}

func TestChangeStatus(t *testing.T) {
	a := newTestAPI(t)
	a.load(t, "manual-carry-in")

	rec := a.do(t, http.MethodPost, "/api/students/stu-001/status", StatusChangeRequest{Status: "clearance", Reason: "Director approval"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sum := decodeAs[SummaryDTO](t, a.do(t, http.MethodGet, "/api/students/stu-001/summary", nil))
	assert.Equal(t, "clearance", sum.Status)
	assert.Equal(t, "green", sum.Color)

	rec = a.do(t, http.MethodPost, "/api/students/stu-001/status", StatusChangeRequest{Status: "expelled", Reason: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/students/stu-001/status", StatusChangeRequest{Status: "defaulter"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPromoteStudent(t *testing.T) {
	a := newTestAPI(t)
	a.load(t, "manual-carry-in")

	rec := a.do(t, http.MethodPost, "/api/students/stu-001/promote", PromoteRequest{ToSemester: "Term 2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeAs[PromotionDTO](t, rec)
	assert.Equal(t, "Term 2", out.Student.Semester)
	assertDecimal(t, "150000", out.ClosingBalance)

	hist := decodeAs[SummaryDTO](t, a.do(t, http.MethodGet, "/api/students/stu-001/summary?term=Term%201%20(Hist)", nil))
	assertDecimal(t, "150000", hist.Outstanding)

	rec = a.do(t, http.MethodPost, "/api/students/stu-001/promote", PromoteRequest{ToSemester: "Term 2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAndTrash(t *testing.T) {
	a := newTestAPI(t)
	a.load(t, "manual-carry-in")

	rec := a.do(t, http.MethodDelete, "/api/payments/pay-001", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty body has no reason")

	rec = a.do(t, http.MethodDelete, "/api/payments/pay-001", DeleteRequest{Reason: "bounced"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodDelete, "/api/billings/bill-404", DeleteRequest{Reason: "typo"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	trash := decodeAs[TrashDTO](t, a.do(t, http.MethodGet, "/api/students/stu-001/trash", nil))
	require.Len(t, trash.Payments, 1)
	assert.Equal(t, "bounced", trash.Payments[0].Reason)
	assert.Empty(t, trash.Billings)

	sum := decodeAs[SummaryDTO](t, a.do(t, http.MethodGet, "/api/students/stu-001/summary", nil))
	assertDecimal(t, "250000", sum.Outstanding)
}

func TestReplacePayment(t *testing.T) {
	a := newTestAPI(t)
	a.load(t, "manual-carry-in")
	term := "Term 1"

	rec := a.do(t, http.MethodPut, "/api/payments/pay-001", ReplacePaymentRequest{
		StudentID: "stu-001",
		Payment:   RecordPaymentRequest{ID: "pay-001b", Term: &term, Amount: decimal.NewFromInt(120000), Method: "Bank"},
		Reason:    "amount mistyped",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decodeAs[SummaryDTO](t, a.do(t, http.MethodGet, "/api/students/stu-001/summary", nil))
	assertDecimal(t, "130000", sum.Outstanding)

	rec = a.do(t, http.MethodPut, "/api/payments/pay-001b", ReplacePaymentRequest{
		StudentID: "stu-999",
		Payment:   RecordPaymentRequest{Amount: decimal.NewFromInt(1), Method: "Bank"},
		Reason:    "wrong student",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CATALOG & REPORTS
// =============================================================================

func TestCatalog(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/bursaries", BursaryDTO{ID: "half", Name: "Half", Value: decimal.NewFromInt(100000)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = a.do(t, http.MethodPost, "/api/bursaries", BursaryDTO{ID: "none", Name: "None"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/api/bursaries", BursaryDTO{ID: "neg", Name: "Neg", Value: decimal.NewFromInt(-1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/services", ServiceDTO{ID: "bus", Name: "Bus", Amount: decimal.NewFromInt(30000)})
	require.Equal(t, http.StatusCreated, rec.Code)

	bursaries := decodeAs[[]BursaryDTO](t, a.do(t, http.MethodGet, "/api/bursaries", nil))
	require.Len(t, bursaries, 1)
	services := decodeAs[[]ServiceDTO](t, a.do(t, http.MethodGet, "/api/services", nil))
	require.Len(t, services, 1)
}

func TestGetIntegrity(t *testing.T) {
	a := newTestAPI(t)

	empty := decodeAs[[]ledger.IntegrityWarning](t, a.do(t, http.MethodGet, "/api/integrity", nil))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	a.load(t, "integrity-issues")
	warnings := decodeAs[[]ledger.IntegrityWarning](t, a.do(t, http.MethodGet, "/api/integrity", nil))

	codes := make([]ledger.WarningCode, len(warnings))
	for i, w := range warnings {
		codes[i] = w.Code
	}
	assert.ElementsMatch(t, []ledger.WarningCode{
		ledger.WarnUnknownMethod,
		ledger.WarnAllocationMismatch,
		ledger.WarnMultipleBroughtFwd,
		ledger.WarnPaymentTermUnknown,
	}, codes)
}

func TestListAudit_Filters(t *testing.T) {
	a := newTestAPI(t)
	a.load(t, "balance-fix")

	entries := decodeAs[[]AuditEntryDTO](t, a.do(t, http.MethodGet, "/api/audit?student_id=stu-003", nil))
	require.Len(t, entries, 1)
	assert.Equal(t, "balance_fix", entries[0].Category)
	assert.Equal(t, "scenario", entries[0].Actor)

	rec := a.do(t, http.MethodGet, "/api/audit?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
