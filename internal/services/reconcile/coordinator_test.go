package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocworks/sepa-billing/internal/adapters/logger"
	"github.com/assocworks/sepa-billing/internal/adapters/memory"
	"github.com/assocworks/sepa-billing/internal/config"
	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/services/guard"
	"github.com/assocworks/sepa-billing/internal/services/lockkeeper"
	"github.com/assocworks/sepa-billing/internal/services/matcher"
	"github.com/assocworks/sepa-billing/internal/services/payment"
	"github.com/assocworks/sepa-billing/internal/services/period"
	"github.com/assocworks/sepa-billing/internal/services/reconcile"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

type fixture struct {
	store *memory.Store
	locks *lockkeeper.LockService
	coord *reconcile.Coordinator
}

func newFixture() *fixture {
	store := memory.NewStore()
	log := logger.NewNop()
	clock := timeutil.FixedClock{Instant: time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)}
	db := memory.NewDB()

	cfg := config.Matcher{
		Tolerance:      decimal.NewFromFloat(0.02),
		DateWindowDays: 5,
		MaxCandidates:  32,
		MaxSubsets:     16,
	}
	registry := period.NewRegistry(store.Invoices(),
		[]string{"membership", "subscription", "contribution"}, log)
	g := guard.New(registry, store.Invoices(), store.Batches(), store.Mandates(), config.GuardModeStrict, log)
	m := matcher.New(store.Batches(), cfg, log)
	poster := payment.NewPoster(store.Invoices(), store.Payments(), cfg.Tolerance, clock, log)
	locks := lockkeeper.NewLockService(time.Minute, clock)
	executor := lockkeeper.NewExecutor(db, store.Idempotency(), clock, log)

	return &fixture{
		store: store,
		locks: locks,
		coord: reconcile.NewCoordinator(db, store.BankTransactions(), store.Batches(),
			m, g, poster, locks, executor, log),
	}
}

// seedCollectable creates an open invoice plus a submitted single-line batch
// collecting it
func (f *fixture) seedCollectable(invoiceID, memberID, batchID string, date time.Time, amount float64) {
	a := decimal.NewFromFloat(amount)
	start := timeutil.Date(date.Year(), date.Month(), 1)
	end := start.AddDate(0, 1, -1)
	f.store.SeedInvoice(&models.Invoice{
		ID:          invoiceID,
		MemberID:    memberID,
		PostingDate: start,
		GrandTotal:  a,
		Outstanding: a,
		Status:      models.InvoiceStatusSubmitted,
		PeriodStart: &start,
		PeriodEnd:   &end,
		ItemKind:    models.ItemKindMembership,
	})
	f.store.SeedBatch(&models.DirectDebitBatch{
		ID:          batchID,
		BatchDate:   date,
		Status:      models.BatchStatusSubmitted,
		Type:        models.CollectionTypeRecurring,
		TotalAmount: a,
		Lines: []models.BatchLine{
			{InvoiceID: invoiceID, MemberID: memberID, Amount: a},
		},
	})
	f.seedMandate(memberID)
}

func (f *fixture) seedMandate(memberID string) {
	f.store.SeedMandate(&models.Mandate{
		ID:          "MND-" + memberID,
		MemberID:    memberID,
		IBAN:        "DE02120300000000202051",
		Status:      models.MandateStatusActive,
		UsedForDues: true,
		SignedAt:    timeutil.Date(2025, time.June, 1),
	})
}

func (f *fixture) seedBankTx(id string, date time.Time, deposit float64) {
	f.store.SeedBankTransaction(&models.BankTransaction{
		ID:      id,
		Date:    date,
		Deposit: decimal.NewFromFloat(deposit),
	})
}

func TestExecuteExactMatchApplied(t *testing.T) {
	f := newFixture()
	day := timeutil.Date(2026, time.March, 2)
	f.seedCollectable("INV-1", "MEM-1", "B1", day, 50)
	f.seedBankTx("BT-1", day, 50)

	outcome, err := f.coord.Execute(context.Background(), "BT-1", reconcile.ModeConservative)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.False(t, outcome.RequiresReview)
	assert.Equal(t, "exact", outcome.Kind)
	assert.Equal(t, []string{"B1"}, outcome.BatchIDs)
	require.Len(t, outcome.PaymentIDs, 1)

	inv, err := f.store.Invoices().GetByID(context.Background(), nil, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, inv.Status)
	assert.True(t, inv.Outstanding.IsZero())

	batch, err := f.store.Batches().GetByID(context.Background(), nil, "B1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusProcessed, batch.Status)

	bankTx, err := f.store.BankTransactions().GetByID(context.Background(), nil, "BT-1")
	require.NoError(t, err)
	assert.True(t, bankTx.IsMatchedTo("B1"))
}

func TestExecuteExactMatchMultiLineBatch(t *testing.T) {
	f := newFixture()
	day := timeutil.Date(2026, time.March, 2)
	amounts := map[string]float64{"INV-1": 25, "INV-2": 30, "INV-3": 20}
	batch := &models.DirectDebitBatch{
		ID: "B1", BatchDate: day,
		Status: models.BatchStatusSubmitted,
		Type:   models.CollectionTypeRecurring,
	}
	for _, id := range []string{"INV-1", "INV-2", "INV-3"} {
		a := decimal.NewFromFloat(amounts[id])
		memberID := "MEM-" + id
		start := timeutil.Date(2026, time.March, 1)
		end := timeutil.Date(2026, time.March, 31)
		f.store.SeedInvoice(&models.Invoice{
			ID: id, MemberID: memberID, PostingDate: start,
			GrandTotal: a, Outstanding: a,
			Status: models.InvoiceStatusSubmitted,
			PeriodStart: &start, PeriodEnd: &end,
			ItemKind: models.ItemKindMembership,
		})
		batch.Lines = append(batch.Lines, models.BatchLine{
			InvoiceID: id, MemberID: memberID, Amount: a,
		})
		batch.TotalAmount = batch.TotalAmount.Add(a)
		f.seedMandate(memberID)
	}
	f.store.SeedBatch(batch)
	f.seedBankTx("BT-1", day, 75)

	outcome, err := f.coord.Execute(context.Background(), "BT-1", reconcile.ModeConservative)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, "exact", outcome.Kind)
	assert.Len(t, outcome.PaymentIDs, 3)

	// One payment per line under the same transaction and batch
	for id := range amounts {
		inv, err := f.store.Invoices().GetByID(context.Background(), nil, id)
		require.NoError(t, err)
		assert.Equal(t, models.InvoiceStatusPaid, inv.Status, id)
		assert.True(t, inv.Outstanding.IsZero(), id)
	}
}

func TestExecuteReplaysStoredOutcome(t *testing.T) {
	f := newFixture()
	day := timeutil.Date(2026, time.March, 2)
	f.seedCollectable("INV-1", "MEM-1", "B1", day, 50)
	f.seedBankTx("BT-1", day, 50)

	first, err := f.coord.Execute(context.Background(), "BT-1", reconcile.ModeConservative)
	require.NoError(t, err)

	second, err := f.coord.Execute(context.Background(), "BT-1", reconcile.ModeConservative)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// No second payment was posted
	payments, err := f.store.Payments().ListActiveByInvoice(context.Background(), nil, "INV-1", models.PaymentKindReceive)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestExecuteConservativeSendsSplitToReview(t *testing.T) {
	f := newFixture()
	day := timeutil.Date(2026, time.March, 2)
	f.seedCollectable("INV-1", "MEM-1", "B1", day, 50)
	f.seedCollectable("INV-2", "MEM-2", "B2", day, 40)
	f.seedBankTx("BT-1", day, 90)

	outcome, err := f.coord.Execute(context.Background(), "BT-1", reconcile.ModeConservative)
	require.NoError(t, err)
	assert.False(t, outcome.Applied)
	assert.True(t, outcome.RequiresReview)
	require.NotEmpty(t, outcome.Candidates)
	assert.Equal(t, "split", outcome.Candidates[0].Kind)
	assert.Empty(t, outcome.PaymentIDs)

	inv, err := f.store.Invoices().GetByID(context.Background(), nil, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSubmitted, inv.Status)
}

func TestExecuteAggressiveAppliesSplit(t *testing.T) {
	f := newFixture()
	day := timeutil.Date(2026, time.March, 2)
	f.seedCollectable("INV-1", "MEM-1", "B1", day, 50)
	f.seedCollectable("INV-2", "MEM-2", "B2", day, 40)
	f.seedBankTx("BT-1", day, 90)

	outcome, err := f.coord.Execute(context.Background(), "BT-1", reconcile.ModeAggressive)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, "split", outcome.Kind)
	assert.ElementsMatch(t, []string{"B1", "B2"}, outcome.BatchIDs)
	assert.Len(t, outcome.PaymentIDs, 2)

	for _, batchID := range []string{"B1", "B2"} {
		batch, err := f.store.Batches().GetByID(context.Background(), nil, batchID)
		require.NoError(t, err)
		assert.Equal(t, models.BatchStatusProcessed, batch.Status)
	}
}

func TestExecutePartialLeavesBatchOpen(t *testing.T) {
	f := newFixture()
	day := timeutil.Date(2026, time.March, 2)
	a30 := decimal.NewFromInt(30)
	a20 := decimal.NewFromInt(20)
	start := timeutil.Date(2026, time.March, 1)
	end := timeutil.Date(2026, time.March, 31)
	f.store.SeedInvoice(&models.Invoice{
		ID: "INV-1", MemberID: "MEM-1", PostingDate: start,
		GrandTotal: a30, Outstanding: a30,
		Status: models.InvoiceStatusSubmitted,
		PeriodStart: &start, PeriodEnd: &end,
		ItemKind: models.ItemKindMembership,
	})
	f.store.SeedInvoice(&models.Invoice{
		ID: "INV-2", MemberID: "MEM-2", PostingDate: start,
		GrandTotal: a20, Outstanding: a20,
		Status: models.InvoiceStatusSubmitted,
		PeriodStart: &start, PeriodEnd: &end,
		ItemKind: models.ItemKindMembership,
	})
	f.store.SeedBatch(&models.DirectDebitBatch{
		ID: "B1", BatchDate: day,
		Status:      models.BatchStatusSubmitted,
		Type:        models.CollectionTypeRecurring,
		TotalAmount: a30.Add(a20),
		Lines: []models.BatchLine{
			{InvoiceID: "INV-1", MemberID: "MEM-1", Amount: a30},
			{InvoiceID: "INV-2", MemberID: "MEM-2", Amount: a20},
		},
	})
	f.seedMandate("MEM-1")
	f.seedMandate("MEM-2")
	f.seedBankTx("BT-1", day, 30)

	outcome, err := f.coord.Execute(context.Background(), "BT-1", reconcile.ModeAggressive)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, "partial", outcome.Kind)
	assert.Len(t, outcome.PaymentIDs, 1)
	assert.Equal(t, []string{"INV-2"}, outcome.ResidualLines)

	// Only the collected line was paid and the batch stays open for the rest
	inv1, err := f.store.Invoices().GetByID(context.Background(), nil, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, inv1.Status)

	inv2, err := f.store.Invoices().GetByID(context.Background(), nil, "INV-2")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSubmitted, inv2.Status)
	assert.True(t, inv2.Outstanding.Equal(a20))

	batch, err := f.store.Batches().GetByID(context.Background(), nil, "B1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusSubmitted, batch.Status)
}

func TestExecuteNoCandidatesRequiresReview(t *testing.T) {
	f := newFixture()
	f.seedBankTx("BT-1", timeutil.Date(2026, time.March, 2), 123.45)

	outcome, err := f.coord.Execute(context.Background(), "BT-1", reconcile.ModeAggressive)
	require.NoError(t, err)
	assert.False(t, outcome.Applied)
	assert.True(t, outcome.RequiresReview)
	assert.Empty(t, outcome.Candidates)
}

func TestExecuteUnknownTransaction(t *testing.T) {
	f := newFixture()

	_, err := f.coord.Execute(context.Background(), "BT-MISSING", reconcile.ModeConservative)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeTransactionNotFound, domain.GetErrorCode(err))
}

func TestExecuteLockedTransactionFailsFast(t *testing.T) {
	f := newFixture()
	day := timeutil.Date(2026, time.March, 2)
	f.seedCollectable("INV-1", "MEM-1", "B1", day, 50)
	f.seedBankTx("BT-1", day, 50)

	require.True(t, f.locks.Acquire("bank_tx", "BT-1"))
	defer f.locks.Release("bank_tx", "BT-1")

	_, err := f.coord.Execute(context.Background(), "BT-1", reconcile.ModeConservative)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeBusyRetryLater, domain.GetErrorCode(err))

	// Nothing was posted while the lock was held
	payments, err := f.store.Payments().ListActiveByInvoice(context.Background(), nil, "INV-1", models.PaymentKindReceive)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestProcessPendingContinuesPastHumanReview(t *testing.T) {
	f := newFixture()
	mar1 := timeutil.Date(2026, time.March, 1)
	mar2 := timeutil.Date(2026, time.March, 2)

	// Two indistinguishable batches make BT-A ambiguous; BT-B is clean.
	f.seedCollectable("INV-1", "MEM-1", "B1", mar1, 50)
	f.seedCollectable("INV-2", "MEM-2", "B2", mar1, 50)
	f.seedCollectable("INV-3", "MEM-3", "B3", mar2, 70)
	f.seedBankTx("BT-A", mar1, 50)
	f.seedBankTx("BT-B", mar2, 70)

	outcomes, err := f.coord.ProcessPending(context.Background(), reconcile.ModeConservative, 10)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "BT-B", outcomes[0].BankTransactionID)
	assert.True(t, outcomes[0].Applied)

	// The ambiguous transaction is untouched and will show up again
	pending, err := f.store.BankTransactions().ListUnreconciled(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "BT-A", pending[0].ID)
}

func TestProcessPendingHonoursLimit(t *testing.T) {
	f := newFixture()
	mar1 := timeutil.Date(2026, time.March, 1)
	mar2 := timeutil.Date(2026, time.March, 2)
	f.seedCollectable("INV-1", "MEM-1", "B1", mar1, 50)
	f.seedCollectable("INV-2", "MEM-2", "B2", mar2, 70)
	f.seedBankTx("BT-1", mar1, 50)
	f.seedBankTx("BT-2", mar2, 70)

	outcomes, err := f.coord.ProcessPending(context.Background(), reconcile.ModeConservative, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "BT-1", outcomes[0].BankTransactionID, "earliest date goes first")
}
