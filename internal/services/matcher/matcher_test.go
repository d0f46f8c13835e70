package matcher_test

import (
	"context"
	"fmt"
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
	"github.com/assocworks/sepa-billing/internal/services/matcher"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

func matcherConfig() config.Matcher {
	return config.Matcher{
		Tolerance:      decimal.NewFromFloat(0.02),
		DateWindowDays: 5,
		MaxCandidates:  32,
		MaxSubsets:     16,
	}
}

func newMatcher(store *memory.Store, cfg config.Matcher) *matcher.Matcher {
	return matcher.New(store.Batches(), cfg, logger.NewNop())
}

// seedBatch creates a submitted batch with one line per amount
func seedBatch(store *memory.Store, id string, date time.Time, amounts ...float64) {
	batch := &models.DirectDebitBatch{
		ID:        id,
		BatchDate: date,
		Status:    models.BatchStatusSubmitted,
		Type:      models.CollectionTypeRecurring,
	}
	for i, amount := range amounts {
		a := decimal.NewFromFloat(amount)
		batch.Lines = append(batch.Lines, models.BatchLine{
			InvoiceID: fmt.Sprintf("%s-INV-%d", id, i+1),
			MemberID:  fmt.Sprintf("%s-MEM-%d", id, i+1),
			Amount:    a,
		})
		batch.TotalAmount = batch.TotalAmount.Add(a)
	}
	batch.EntryCount = len(batch.Lines)
	store.SeedBatch(batch)
}

func bankTx(id string, date time.Time, deposit float64) *models.BankTransaction {
	return &models.BankTransaction{
		ID:      id,
		Date:    date,
		Deposit: decimal.NewFromFloat(deposit),
	}
}

func TestFindExactMatch(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.March, 2)
	seedBatch(store, "B1", day, 50, 50, 50)

	m := newMatcher(store, matcherConfig())
	candidates, err := m.Find(context.Background(), nil, bankTx("BT1", day, 150))
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, matcher.KindExact, candidates[0].Kind)
	assert.Equal(t, []string{"B1"}, candidates[0].BatchIDs)
	assert.Equal(t, 1.0, candidates[0].Confidence)
}

func TestFindExactWithinTolerance(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.March, 2)
	seedBatch(store, "B1", day, 100.01)

	m := newMatcher(store, matcherConfig())
	candidates, err := m.Find(context.Background(), nil, bankTx("BT1", day, 100))
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, matcher.KindExact, candidates[0].Kind)
}

func TestFindConfidenceDecreasesWithDistance(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.March, 2)
	seedBatch(store, "B1", day.AddDate(0, 0, -3), 150)

	m := newMatcher(store, matcherConfig())
	candidates, err := m.Find(context.Background(), nil, bankTx("BT1", day, 150))
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, matcher.KindExact, candidates[0].Kind)
	assert.Less(t, candidates[0].Confidence, 1.0)
	assert.Greater(t, candidates[0].Confidence, 0.0)
}

func TestFindIgnoresBatchesOutsideWindow(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.March, 10)
	seedBatch(store, "B1", day.AddDate(0, 0, -6), 150)

	m := newMatcher(store, matcherConfig())
	candidates, err := m.Find(context.Background(), nil, bankTx("BT1", day, 150))
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFindIgnoresNonCollectableBatches(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.March, 2)
	store.SeedBatch(&models.DirectDebitBatch{
		ID:          "B1",
		BatchDate:   day,
		TotalAmount: decimal.NewFromInt(150),
		Status:      models.BatchStatusDraft,
		Lines:       []models.BatchLine{{InvoiceID: "INV-1", Amount: decimal.NewFromInt(150)}},
	})

	m := newMatcher(store, matcherConfig())
	candidates, err := m.Find(context.Background(), nil, bankTx("BT1", day, 150))
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFindSplitAcrossBatches(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.March, 2)
	// 50+40+60 and 50+100 both sum to the deposit
	seedBatch(store, "B2", day, 50)
	seedBatch(store, "B3", day, 40)
	seedBatch(store, "B4", day, 60)
	seedBatch(store, "B5", day, 100)

	m := newMatcher(store, matcherConfig())
	candidates, err := m.Find(context.Background(), nil, bankTx("BT1", day, 150))
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	var found [][]string
	for _, c := range candidates {
		assert.Equal(t, matcher.KindSplit, c.Kind)
		found = append(found, c.BatchIDs)
	}
	assert.Contains(t, found, []string{"B2", "B3", "B4"})
	assert.Contains(t, found, []string{"B2", "B5"})

	// Fewer collected lines ranks first among equal confidence
	assert.Equal(t, []string{"B2", "B5"}, candidates[0].BatchIDs)
	assert.Equal(t, 1.0, candidates[0].Confidence)
}

func TestFindSplitRankedByLineCount(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.February, 1)
	seedBatch(store, "B2", day, 50)
	seedBatch(store, "B3", day, 75)
	seedBatch(store, "B4", day, 25)
	seedBatch(store, "B5", day, 100)

	m := newMatcher(store, matcherConfig())
	candidates, err := m.Find(context.Background(), nil, bankTx("BT2", day, 150))
	require.NoError(t, err)

	// Both {B2,B5} and {B2,B3,B4} sum to the deposit at confidence 1.0;
	// the two-batch combination collects fewer lines and ranks first.
	require.Len(t, candidates, 2)
	assert.Equal(t, matcher.KindSplit, candidates[0].Kind)
	assert.Equal(t, []string{"B2", "B5"}, candidates[0].BatchIDs)
	assert.Equal(t, []string{"B2", "B3", "B4"}, candidates[1].BatchIDs)
	assert.Equal(t, 1.0, candidates[0].Confidence)
	assert.Equal(t, 1.0, candidates[1].Confidence)
}

func TestFindExactBatchNotCountedAgainstSplitBound(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.March, 2)
	seedBatch(store, "B1", day, 100)
	seedBatch(store, "B2", day, 60)
	seedBatch(store, "B3", day, 40)
	seedBatch(store, "B4", day, 70)

	cfg := matcherConfig()
	cfg.MaxCandidates = 3
	m := newMatcher(store, cfg)

	// Four batches in the window, but B1 is consumed as an exact match and
	// only the remaining three enter the split search.
	candidates, err := m.Find(context.Background(), nil, bankTx("BT1", day, 100))
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, matcher.KindExact, candidates[0].Kind)
	assert.Equal(t, []string{"B1"}, candidates[0].BatchIDs)
	assert.Equal(t, matcher.KindSplit, candidates[1].Kind)
	assert.Equal(t, []string{"B2", "B3"}, candidates[1].BatchIDs)
}

func TestFindPartialCollection(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.March, 2)
	seedBatch(store, "B1", day, 30, 20, 50)

	m := newMatcher(store, matcherConfig())
	candidates, err := m.Find(context.Background(), nil, bankTx("BT1", day, 50))
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// The single covering line beats the two-line combination
	first := candidates[0]
	assert.Equal(t, matcher.KindPartial, first.Kind)
	assert.Equal(t, []string{"B1-INV-3"}, first.LineInvoiceIDs)
	assert.ElementsMatch(t, []string{"B1-INV-1", "B1-INV-2"}, first.ResidualInvoiceIDs)

	second := candidates[1]
	assert.ElementsMatch(t, []string{"B1-INV-1", "B1-INV-2"}, second.LineInvoiceIDs)
	assert.Equal(t, []string{"B1-INV-3"}, second.ResidualInvoiceIDs)
}

func TestFindAmbiguousMatch(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.March, 2)
	seedBatch(store, "B1", day, 150)
	seedBatch(store, "B2", day, 150)

	m := newMatcher(store, matcherConfig())
	_, err := m.Find(context.Background(), nil, bankTx("BT1", day, 150))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeAmbiguousMatch, domain.GetErrorCode(err))
	assert.True(t, domain.IsHumanReview(err))
}

func TestFindSearchSpaceTooLarge(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.March, 2)
	for i := 0; i < 5; i++ {
		seedBatch(store, fmt.Sprintf("B%d", i+1), day, 10+float64(i))
	}

	cfg := matcherConfig()
	cfg.MaxCandidates = 3
	m := newMatcher(store, cfg)

	_, err := m.Find(context.Background(), nil, bankTx("BT1", day, 999))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeSearchSpaceTooLarge, domain.GetErrorCode(err))
	assert.True(t, domain.IsHumanReview(err))
}

func TestFindNoCandidates(t *testing.T) {
	store := memory.NewStore()
	day := timeutil.Date(2026, time.March, 2)
	seedBatch(store, "B1", day, 75)

	m := newMatcher(store, matcherConfig())
	candidates, err := m.Find(context.Background(), nil, bankTx("BT1", day, 200))
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
