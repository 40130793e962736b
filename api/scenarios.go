/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built ledgers that populate the store with data
	demonstrating specific reconciliation behaviors. Each scenario is a
	factory.LedgerJSON document, optionally followed by a manager action.

AVAILABLE SCENARIOS:

	manual-carry-in:    Previous balance carried in by hand, no BF bill
	brought-forward:    BF bill present, manual previous balance ignored
	balance-fix:        Carry-in ledger corrected to a zero target
	tuition-clearance:  Service billing and allocation excluded from clearance
	historical-term:    Promoted student, Year 1 snapshot vs live Year 2
	integrity-issues:   Unknown payment method, allocation drift, duplicate BF

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Parse the scenario fixture via factory.LedgerFactory
 3. Seed bursaries, services, students, billings, payments in one tx
 4. Run the scenario's follow-up action, if any

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "balance-fix"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: route handlers
  - factory/fixture.go: ledger JSON schema
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/fees-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	fixture string
	after   func(ctx context.Context, h *Handler) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "manual-carry-in",
			Name:        "Manual Carry-In",
			Description: "Previous balance 50,000 entered by hand, tuition 200,000, paid 100,000. Outstanding 150,000.",
		},
		fixture: `{
		  "students": [{
		    "id": "stu-001", "name": "Amina Nakato", "semester": "Term 1", "previous_balance": "50000",
		    "billings": [{"id": "bill-001", "term": "Term 1", "type": "Tuition", "amount": "200000", "date": "2024-02-05"}],
		    "payments": [{"id": "pay-001", "term": "Term 1", "amount": "100000", "method": "Bank", "reference": "BK-1001", "date": "2024-02-20"}]
		  }]
		}`,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "brought-forward",
			Name:        "Brought-Forward Bill",
			Description: "The 50,000 carry-in is billed as a flagged BF item. The manual field is ignored, outstanding stays 150,000.",
		},
		fixture: `{
		  "students": [{
		    "id": "stu-002", "name": "Brian Okello", "semester": "Term 1", "previous_balance": "50000",
		    "billings": [
		      {"id": "bill-002", "term": "Term 1", "type": "Tuition", "amount": "200000", "date": "2024-02-05"},
		      {"id": "bill-003", "term": "Term 1", "type": "Tuition", "description": "Arrears from last year",
		       "amount": "50000", "is_brought_forward": true, "date": "2024-02-05"}
		    ],
		    "payments": [{"id": "pay-002", "term": "Term 1", "amount": "100000", "method": "Cash", "date": "2024-02-21"}]
		  }]
		}`,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "balance-fix",
			Name:        "Balance Fix",
			Description: "Outstanding 150,000 corrected to 0 with reason \"Waiver\". One adjustment credit is created.",
		},
		fixture: `{
		  "students": [{
		    "id": "stu-003", "name": "Grace Atim", "semester": "Term 1", "previous_balance": "50000",
		    "billings": [{"id": "bill-004", "term": "Term 1", "type": "Tuition", "amount": "200000", "date": "2024-02-05"}],
		    "payments": [{"id": "pay-003", "amount": "100000", "method": "Mobile Money", "date": "2024-02-22"}]
		  }]
		}`,
		after: func(ctx context.Context, h *Handler) error {
			_, err := h.Manager.ApplyCorrection(ctx, ledger.CorrectionRequest{
				StudentID:     "stu-003",
				Term:          ledger.CurrentTerm,
				TargetBalance: "0",
				Reason:        "Waiver",
				Actor:         "scenario",
			})
			return err
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "tuition-clearance",
			Name:        "Tuition-Only Clearance",
			Description: "Tuition 200,000 and a 30,000 bus service. The payment's service allocation does not count toward clearance, which is 100%.",
		},
		fixture: `{
		  "services": [{"id": "bus", "name": "School Bus", "amount": "30000"}],
		  "students": [{
		    "id": "stu-004", "name": "David Mugisha", "semester": "Term 2", "services": ["bus"],
		    "billings": [
		      {"id": "bill-005", "term": "Term 2", "type": "Tuition", "amount": "200000", "date": "2024-05-06"},
		      {"id": "bill-006", "term": "Term 2", "type": "Service", "description": "School Bus", "amount": "30000", "date": "2024-05-06"}
		    ],
		    "payments": [{
		      "id": "pay-004", "term": "Term 2", "amount": "230000", "method": "Bank",
		      "allocations": {"Tuition": "200000", "School Bus": "30000"}, "date": "2024-05-15"
		    }]
		  }]
		}`,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "historical-term",
			Name:        "Historical Term",
			Description: "Student promoted from Year 1 to Year 2. Viewing \"Year 1 (Hist)\" shows the frozen Year 1 requirements and bursary.",
		},
		fixture: `{
		  "bursaries": [
		    {"id": "half", "name": "Half Bursary", "value": "100000"},
		    {"id": "sports", "name": "Sports Bursary", "value": "50000"}
		  ],
		  "students": [{
		    "id": "stu-005", "name": "Esther Namubiru", "semester": "Year 2", "previous_balance": "0", "bursary": "sports",
		    "requirements": [{"name": "Lab Coat", "required": 1, "brought": 0}],
		    "promotion_history": [{
		      "from_semester": "Year 1", "to_semester": "Year 2",
		      "previous_balance": "0", "initial_previous_balance": "0",
		      "bursary_snapshot": "half",
		      "requirements_snapshot": [{"name": "Ream of Paper", "required": 2, "brought": 2}, {"name": "Broom", "required": 1, "brought": 1}],
		      "promoted_at": "2024-12-01"
		    }],
		    "billings": [
		      {"id": "bill-007", "term": "Year 1", "type": "Tuition", "amount": "400000", "date": "2024-02-01"},
		      {"id": "bill-008", "term": "Year 2", "type": "Tuition", "amount": "450000", "date": "2025-02-01"}
		    ],
		    "payments": [
		      {"id": "pay-005", "term": "Year 1", "amount": "300000", "method": "Bank", "date": "2024-03-01"},
		      {"id": "pay-006", "term": "Year 2", "amount": "100000", "method": "Bank", "date": "2025-02-10"}
		    ]
		  }]
		}`,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "integrity-issues",
			Name:        "Integrity Issues",
			Description: "Unknown payment method, allocations that drift from the amount, two BF bills in one term, and a payment for a term never attended.",
		},
		fixture: `{
		  "students": [{
		    "id": "stu-006", "name": "Felix Ssemakula", "semester": "Term 3",
		    "billings": [
		      {"id": "bill-009", "term": "Term 3", "type": "Tuition", "amount": "200000", "date": "2024-09-02"},
		      {"id": "bill-010", "term": "Term 3", "type": "Brought Forward", "amount": "20000", "date": "2024-09-02"},
		      {"id": "bill-011", "term": "Term 3", "type": "Tuition", "description": "Balance B/F", "amount": "20000", "date": "2024-09-03"}
		    ],
		    "payments": [
		      {"id": "pay-007", "term": "Term 3", "amount": "50000", "method": "Crypto", "date": "2024-09-10"},
		      {"id": "pay-008", "term": "Term 3", "amount": "60000", "method": "Cash",
		       "allocations": {"Tuition": "40000"}, "date": "2024-09-11"},
		      {"id": "pay-009", "term": "Term 9", "amount": "10000", "method": "Cash", "date": "2024-09-12"}
		    ]
		  }]
		}`,
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s.ScenarioDTO)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if ledger.IsNotFound(err) || ledger.IsClientError(err) {
			h.writeLedgerError(w, "Unknown scenario", err)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears every record.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// loadScenario is shared by the HTTP handler and tests.
func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var sc *scenario
	for i := range scenarios {
		if scenarios[i].ID == id {
			sc = &scenarios[i]
			break
		}
	}
	if sc == nil {
		return &ledger.ValidationError{Field: "scenario_id", Message: fmt.Sprintf("unknown scenario %q", id)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	fx, err := h.Factory.ParseLedger(sc.fixture)
	if err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}
	if err := fx.Seed(ctx, h.Store); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if sc.after != nil {
		if err := sc.after(ctx, h); err != nil {
			return fmt.Errorf("follow-up: %w", err)
		}
	}

	h.currentScenario = id
	h.log.Info("scenario loaded", zap.String("scenario", id), zap.Int("students", len(fx.Students)))
	return nil
}
