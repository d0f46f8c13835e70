package guard_test

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
	"github.com/assocworks/sepa-billing/internal/services/period"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

func newGuard(store *memory.Store, mode config.GuardMode) *guard.Guard {
	log := logger.NewNop()
	registry := period.NewRegistry(store.Invoices(),
		[]string{"membership", "subscription", "contribution"}, log)
	return guard.New(registry, store.Invoices(), store.Batches(), store.Mandates(), mode, log)
}

func seedInvoice(store *memory.Store, id, memberID string, start, end time.Time) *models.Invoice {
	inv := &models.Invoice{
		ID:          id,
		MemberID:    memberID,
		CustomerID:  "CUST-" + memberID,
		PostingDate: start,
		GrandTotal:  decimal.NewFromInt(50),
		Outstanding: decimal.NewFromInt(50),
		Status:      models.InvoiceStatusSubmitted,
		PeriodStart: &start,
		PeriodEnd:   &end,
		ItemKind:    models.ItemKindMembership,
	}
	store.SeedInvoice(inv)
	return inv
}

func TestValidateBeforeCreateStrict(t *testing.T) {
	store := memory.NewStore()
	seedInvoice(store, "INV-1", "MEM-1",
		timeutil.Date(2026, time.January, 1), timeutil.Date(2026, time.January, 31))
	g := newGuard(store, config.GuardModeStrict)

	result, err := g.ValidateBeforeCreate(context.Background(), nil, "MEM-1",
		timeutil.Date(2026, time.January, 15), timeutil.Date(2026, time.February, 14))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodePeriodDuplicate, domain.GetErrorCode(err))
	require.NotNil(t, result)
	assert.True(t, result.HasOverlap)

	var dErr *domain.DomainError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "INV-1", dErr.Details["conflicting_invoice"])
	assert.Equal(t, "partial_end", dErr.Details["relation"])
}

func TestValidateBeforeCreateWarnAllows(t *testing.T) {
	store := memory.NewStore()
	seedInvoice(store, "INV-1", "MEM-1",
		timeutil.Date(2026, time.January, 1), timeutil.Date(2026, time.January, 31))
	g := newGuard(store, config.GuardModeWarn)

	result, err := g.ValidateBeforeCreate(context.Background(), nil, "MEM-1",
		timeutil.Date(2026, time.January, 15), timeutil.Date(2026, time.February, 14))
	require.NoError(t, err)
	assert.True(t, result.HasOverlap)
	require.Len(t, result.Conflicts, 1)
}

func TestValidateBeforeCreateCleanPeriod(t *testing.T) {
	store := memory.NewStore()
	seedInvoice(store, "INV-1", "MEM-1",
		timeutil.Date(2026, time.January, 1), timeutil.Date(2026, time.January, 31))
	g := newGuard(store, config.GuardModeStrict)

	result, err := g.ValidateBeforeCreate(context.Background(), nil, "MEM-1",
		timeutil.Date(2026, time.February, 1), timeutil.Date(2026, time.February, 28))
	require.NoError(t, err)
	assert.False(t, result.HasOverlap)
}

func seedMandate(store *memory.Store, memberID string) {
	store.SeedMandate(&models.Mandate{
		ID:          "MND-" + memberID,
		MemberID:    memberID,
		IBAN:        "DE02120300000000202051",
		Status:      models.MandateStatusActive,
		UsedForDues: true,
		SignedAt:    timeutil.Date(2025, time.June, 1),
	})
}

func TestValidateBatchAssembly(t *testing.T) {
	store := memory.NewStore()
	// MEM-1 has two invoices covering the same month; the batch line
	// references one of them and must flag the other.
	seedInvoice(store, "INV-1", "MEM-1",
		timeutil.Date(2026, time.January, 1), timeutil.Date(2026, time.January, 31))
	seedInvoice(store, "INV-2", "MEM-1",
		timeutil.Date(2026, time.January, 1), timeutil.Date(2026, time.January, 31))
	// MEM-2 is clean
	seedInvoice(store, "INV-3", "MEM-2",
		timeutil.Date(2026, time.January, 1), timeutil.Date(2026, time.January, 31))
	seedMandate(store, "MEM-1")
	seedMandate(store, "MEM-2")

	store.SeedBatch(&models.DirectDebitBatch{
		ID:        "DDB-1",
		BatchDate: timeutil.Date(2026, time.February, 1),
		Status:    models.BatchStatusDraft,
		Type:      models.CollectionTypeRecurring,
		Lines: []models.BatchLine{
			{InvoiceID: "INV-1", MemberID: "MEM-1", Amount: decimal.NewFromInt(50)},
			{InvoiceID: "INV-3", MemberID: "MEM-2", Amount: decimal.NewFromInt(50)},
		},
	})

	g := newGuard(store, config.GuardModeStrict)
	report, err := g.ValidateBatchAssembly(context.Background(), nil, "DDB-1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeBatchPeriodConflicts, domain.GetErrorCode(err))

	require.NotNil(t, report)
	assert.Equal(t, 2, report.Checked)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "INV-1", report.Conflicts[0].InvoiceID)
	require.Len(t, report.Conflicts[0].Conflicts, 1)
	assert.Equal(t, "INV-2", report.Conflicts[0].Conflicts[0].InvoiceID)
}

func TestValidateBatchAssemblyWarnReturnsReport(t *testing.T) {
	store := memory.NewStore()
	seedInvoice(store, "INV-1", "MEM-1",
		timeutil.Date(2026, time.January, 1), timeutil.Date(2026, time.January, 31))
	seedInvoice(store, "INV-2", "MEM-1",
		timeutil.Date(2026, time.January, 1), timeutil.Date(2026, time.January, 31))
	seedMandate(store, "MEM-1")
	store.SeedBatch(&models.DirectDebitBatch{
		ID:        "DDB-1",
		BatchDate: timeutil.Date(2026, time.February, 1),
		Status:    models.BatchStatusDraft,
		Lines: []models.BatchLine{
			{InvoiceID: "INV-1", MemberID: "MEM-1", Amount: decimal.NewFromInt(50)},
		},
	})

	g := newGuard(store, config.GuardModeWarn)
	report, err := g.ValidateBatchAssembly(context.Background(), nil, "DDB-1")
	require.NoError(t, err)
	assert.True(t, report.HasConflicts())
}

func TestValidateBatchAssemblyRequiresActiveMandate(t *testing.T) {
	store := memory.NewStore()
	seedInvoice(store, "INV-1", "MEM-1",
		timeutil.Date(2026, time.January, 1), timeutil.Date(2026, time.January, 31))
	store.SeedMandate(&models.Mandate{
		ID:       "MND-MEM-1",
		MemberID: "MEM-1",
		IBAN:     "DE02120300000000202051",
		Status:   models.MandateStatusRevoked,
		SignedAt: timeutil.Date(2025, time.June, 1),
	})
	store.SeedBatch(&models.DirectDebitBatch{
		ID:        "DDB-1",
		BatchDate: timeutil.Date(2026, time.February, 1),
		Status:    models.BatchStatusDraft,
		Lines: []models.BatchLine{
			{InvoiceID: "INV-1", MemberID: "MEM-1", Amount: decimal.NewFromInt(50)},
		},
	})

	g := newGuard(store, config.GuardModeWarn)
	_, err := g.ValidateBatchAssembly(context.Background(), nil, "DDB-1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeMandateNotActive, domain.GetErrorCode(err))

	var dErr *domain.DomainError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "MEM-1", dErr.Details["member_id"])
}

func TestValidateBatchAssemblyUnknownBatch(t *testing.T) {
	g := newGuard(memory.NewStore(), config.GuardModeStrict)

	_, err := g.ValidateBatchAssembly(context.Background(), nil, "DDB-404")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeBatchNotFound, domain.GetErrorCode(err))
}

func TestEnsureInvoicePeriodFields(t *testing.T) {
	store := memory.NewStore()
	inv := &models.Invoice{
		ID:          "INV-1",
		MemberID:    "MEM-1",
		PostingDate: timeutil.Date(2026, time.February, 17),
		Status:      models.InvoiceStatusSubmitted,
		ItemKind:    models.ItemKindMembership,
	}
	store.SeedInvoice(inv)
	g := newGuard(store, config.GuardModeStrict)

	require.NoError(t, g.EnsureInvoicePeriodFields(context.Background(), nil, inv))
	require.NotNil(t, inv.PeriodStart)
	assert.Equal(t, timeutil.Date(2026, time.February, 1), *inv.PeriodStart)
	assert.Equal(t, timeutil.Date(2026, time.February, 28), *inv.PeriodEnd)
	assert.Equal(t, "standard", inv.MembershipType)

	stored, err := store.Invoices().GetByID(context.Background(), nil, "INV-1")
	require.NoError(t, err)
	assert.True(t, stored.HasPeriod())

	// Second pass leaves the backfilled period alone
	before := *inv.PeriodStart
	require.NoError(t, g.EnsureInvoicePeriodFields(context.Background(), nil, inv))
	assert.Equal(t, before, *inv.PeriodStart)
}

func TestEnsureInvoicePeriodFieldsSkipsNonMembership(t *testing.T) {
	store := memory.NewStore()
	inv := &models.Invoice{
		ID:          "INV-1",
		MemberID:    "MEM-1",
		PostingDate: timeutil.Date(2026, time.February, 17),
		Status:      models.InvoiceStatusSubmitted,
		ItemKind:    models.ItemKindOther,
		Description: "Merchandise order",
	}
	store.SeedInvoice(inv)
	g := newGuard(store, config.GuardModeStrict)

	require.NoError(t, g.EnsureInvoicePeriodFields(context.Background(), nil, inv))
	assert.Nil(t, inv.PeriodStart)
}
