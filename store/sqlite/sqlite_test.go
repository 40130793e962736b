package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fees-ledger/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var feb5 = time.Date(2024, time.February, 5, 8, 30, 0, 0, time.UTC)

func TestStudentRoundTrip(t *testing.T) {
	// GIVEN: a student with every JSON column populated
	s := newTestStore(t)
	ctx := context.Background()
	in := ledger.Student{
		ID:              "stu-005",
		Name:            "Wanjiru",
		Semester:        "Year 2",
		PreviousBalance: ledger.Money("200000"),
		Bursary:         "sports",
		Services:        []ledger.ServiceID{"bus"},
		Requirements:    []ledger.Requirement{{Name: "Lab Coat", Required: 1}},
		PromotionHistory: []ledger.PromotionRecord{{
			FromSemester:           "Year 1",
			ToSemester:             "Year 2",
			PreviousBalance:        ledger.Money("200000"),
			InitialPreviousBalance: ledger.DecimalRef(ledger.Money("0")),
			BursarySnapshot:        "half",
			RequirementsSnapshot:   []ledger.Requirement{{Name: "Broom", Required: 1, Brought: 1}},
			PromotedAt:             feb5,
		}},
		AccountStatus:    ledger.StatusProbation,
		ClearanceHistory: []ledger.StatusChange{{Date: feb5, Status: ledger.StatusProbation, Reason: "plan", User: "head", IsManual: true}},
		CreatedAt:        feb5,
	}

	// WHEN
	require.NoError(t, s.SaveStudent(ctx, in))
	out, err := s.GetStudent(ctx, "stu-005")

	// THEN
	require.NoError(t, err)
	assert.Equal(t, in.Name, out.Name)
	assert.True(t, in.PreviousBalance.Equal(out.PreviousBalance))
	assert.Equal(t, in.Services, out.Services)
	assert.Equal(t, in.Requirements, out.Requirements)
	require.Len(t, out.PromotionHistory, 1)
	rec := out.PromotionHistory[0]
	assert.Equal(t, ledger.BursaryID("half"), rec.BursarySnapshot)
	require.NotNil(t, rec.InitialPreviousBalance)
	assert.True(t, rec.InitialPreviousBalance.IsZero())
	assert.True(t, rec.PromotedAt.Equal(feb5))
	require.Len(t, out.ClearanceHistory, 1)
	assert.Equal(t, "plan", out.ClearanceHistory[0].Reason)
	assert.True(t, out.CreatedAt.Equal(feb5))

	// The historical view survives persistence.
	view := ledger.ResolveView(out, "Year 1 (Hist)")
	assert.Equal(t, ledger.BursaryID("half"), view.BursaryID)
}

func TestSaveStudentUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveStudent(ctx, ledger.Student{ID: "s1", Name: "A", Semester: "T1"}))
	require.NoError(t, s.SaveStudent(ctx, ledger.Student{ID: "s1", Name: "A", Semester: "T2"}))

	list, err := s.ListStudents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "T2", list[0].Semester)
	assert.Equal(t, ledger.NoBursary, list[0].Bursary)

	_, err = s.GetStudent(ctx, "ghost")
	assert.ErrorIs(t, err, ledger.ErrStudentNotFound)
}

func TestBillingFlagIsTriState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddBilling(ctx, ledger.Billing{ID: "b1", StudentID: "s1", Term: "T1", Type: ledger.BillingTuition, Amount: ledger.Money("1"), Date: feb5}))
	require.NoError(t, s.AddBilling(ctx, ledger.Billing{ID: "b2", StudentID: "s1", Term: "T1", Type: ledger.BillingAdjustment, Description: "Arrears fix", Amount: ledger.Money("2"), IsBroughtForward: ledger.Flag(false), Date: feb5}))
	require.NoError(t, s.AddBilling(ctx, ledger.Billing{ID: "b3", StudentID: "s1", Term: "T1", Type: ledger.BillingTuition, Amount: ledger.Money("3"), IsBroughtForward: ledger.Flag(true), Date: feb5}))

	billings, err := s.ListBillings(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, billings, 3)

	byID := map[ledger.BillingID]ledger.Billing{}
	for _, b := range billings {
		byID[b.ID] = b
	}
	assert.Nil(t, byID["b1"].IsBroughtForward)
	require.NotNil(t, byID["b2"].IsBroughtForward)
	assert.False(t, *byID["b2"].IsBroughtForward)
	require.NotNil(t, byID["b3"].IsBroughtForward)
	assert.True(t, *byID["b3"].IsBroughtForward)

	assert.ErrorIs(t, s.AddBilling(ctx, ledger.Billing{ID: "b1", StudentID: "s1", Term: "T1", Amount: ledger.Money("1")}), ledger.ErrDuplicateID)
}

func TestPaymentTermAndAllocations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddPayment(ctx, ledger.Payment{
		ID: "p1", StudentID: "s1", Amount: ledger.Money("230000"), Method: "Bank", Status: ledger.PaymentApproved, Date: feb5,
		Allocations: map[string]decimal.Decimal{"Tuition": ledger.Money("200000"), "School Bus": ledger.Money("30000")},
	}))
	require.NoError(t, s.AddPayment(ctx, ledger.Payment{
		ID: "p2", StudentID: "s1", Term: ledger.TermRef(""), Amount: ledger.Money("1"), Status: ledger.PaymentApproved, Date: feb5,
	}))
	require.NoError(t, s.AddPayment(ctx, ledger.Payment{
		ID: "p3", StudentID: "s1", Term: ledger.TermRef("T1"), Amount: ledger.Money("1"), Status: ledger.PaymentPending, Date: feb5,
	}))

	p1, err := s.GetPayment(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, p1.Term)
	assert.True(t, p1.Allocations["Tuition"].Equal(ledger.Money("200000")))

	p2, err := s.GetPayment(ctx, "p2")
	require.NoError(t, err)
	assert.Nil(t, p2.Term, "an empty term is stored as no term")

	p3, err := s.GetPayment(ctx, "p3")
	require.NoError(t, err)
	require.NotNil(t, p3.Term)
	assert.Equal(t, "T1", *p3.Term)
	assert.Equal(t, ledger.PaymentPending, p3.Status)

	_, err = s.GetPayment(ctx, "ghost")
	assert.ErrorIs(t, err, ledger.ErrPaymentNotFound)
}

func TestSoftDeleteKeepsRecordAndReason(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddPayment(ctx, ledger.Payment{ID: "p1", StudentID: "s1", Term: ledger.TermRef("T1"), Amount: ledger.Money("500"), Method: "Cash", Status: ledger.PaymentApproved, Date: feb5}))
	require.NoError(t, s.AddBilling(ctx, ledger.Billing{ID: "b1", StudentID: "s1", Term: "T1", Type: ledger.BillingTuition, Amount: ledger.Money("900"), IsBroughtForward: ledger.Flag(true), Date: feb5}))

	require.NoError(t, s.DeletePayment(ctx, "p1", "bounced", feb5))
	require.NoError(t, s.DeleteBilling(ctx, "b1", "double billed", feb5))
	assert.ErrorIs(t, s.DeletePayment(ctx, "p1", "again", feb5), ledger.ErrPaymentNotFound)

	payments, err := s.ListPayments(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, payments)

	trashP, err := s.ListDeletedPayments(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, trashP, 1)
	assert.Equal(t, "bounced", trashP[0].Reason)
	assert.True(t, trashP[0].Payment.Amount.Equal(ledger.Money("500")))
	require.NotNil(t, trashP[0].Payment.Term)
	assert.Equal(t, "T1", *trashP[0].Payment.Term)

	trashB, err := s.ListDeletedBillings(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, trashB, 1)
	require.NotNil(t, trashB[0].Billing.IsBroughtForward)
	assert.True(t, *trashB[0].Billing.IsBroughtForward)
	assert.True(t, trashB[0].DeletedAt.Equal(feb5))
}

func TestWithTxRollback(t *testing.T) {
	// GIVEN: a transaction that writes a payment and an audit entry, then fails
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	// WHEN
	err := s.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.AddPayment(ctx, ledger.Payment{ID: "p1", StudentID: "s1", Amount: ledger.Money("1"), Status: ledger.PaymentApproved, Date: feb5}); err != nil {
			return err
		}
		if err := tx.(ledger.AuditLog).LogAction(ctx, ledger.AuditEntry{ID: "a1", Timestamp: feb5, Category: ledger.AuditPayment, Message: "x", StudentID: "s1"}); err != nil {
			return err
		}
		return boom
	})

	// THEN
	assert.ErrorIs(t, err, boom)
	payments, err := s.ListPayments(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, payments)
	entries, err := s.ListActions(ctx, ledger.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManagerOverSQLite(t *testing.T) {
	// GIVEN: the manual carry-in scenario persisted in SQLite
	s := newTestStore(t)
	ctx := context.Background()
	m := ledger.NewManager(s, s, nil, ledger.ManagerConfig{})
	_, err := m.Enroll(ctx, ledger.Student{ID: "stu-001", Name: "Amina", Semester: "Term 1", PreviousBalance: ledger.Money("50000")}, "registrar")
	require.NoError(t, err)
	_, err = m.AddBilling(ctx, ledger.Billing{ID: "bill-001", StudentID: "stu-001", Amount: ledger.Money("200000")}, "bursar")
	require.NoError(t, err)
	_, err = m.RecordPayment(ctx, ledger.Payment{ID: "pay-001", StudentID: "stu-001", Amount: ledger.Money("100000"), Method: "Bank"}, "bursar")
	require.NoError(t, err)

	// WHEN: the balance is fixed to zero
	_, err = m.ApplyCorrection(ctx, ledger.CorrectionRequest{StudentID: "stu-001", TargetBalance: "0", Reason: "Waiver", Actor: "head"})
	require.NoError(t, err)

	// THEN
	sum, err := m.Summarize(ctx, "stu-001", ledger.CurrentTerm)
	require.NoError(t, err)
	assert.True(t, sum.Outstanding.IsZero())

	sid := ledger.StudentID("stu-001")
	entries, err := s.ListActions(ctx, ledger.AuditFilter{StudentID: &sid, Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.AuditCorrection, entries[0].Category)
}

func TestCatalogAndReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveBursary(ctx, ledger.Bursary{ID: "half", Name: "Half", Value: ledger.Money("100000")}))
	require.NoError(t, s.SaveBursary(ctx, ledger.Bursary{ID: "half", Name: "Half", Value: ledger.Money("120000")}))
	require.NoError(t, s.SaveService(ctx, ledger.Service{ID: "bus", Name: "School Bus", Amount: ledger.Money("30000")}))

	bursaries, err := s.ListBursaries(ctx)
	require.NoError(t, err)
	require.Len(t, bursaries, 1)
	assert.True(t, bursaries[0].Value.Equal(ledger.Money("120000")))

	services, err := s.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)

	require.NoError(t, s.Reset(ctx))
	bursaries, err = s.ListBursaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, bursaries)
}
