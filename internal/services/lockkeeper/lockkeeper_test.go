package lockkeeper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocworks/sepa-billing/internal/adapters/logger"
	"github.com/assocworks/sepa-billing/internal/adapters/memory"
	"github.com/assocworks/sepa-billing/internal/services/lockkeeper"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

func TestLockAcquireRelease(t *testing.T) {
	clock := timeutil.FixedClock{Instant: time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)}
	locks := lockkeeper.NewLockService(5*time.Minute, clock)

	require.True(t, locks.Acquire("bank_tx", "BT1"))
	assert.False(t, locks.Acquire("bank_tx", "BT1"), "second holder must fail while held")
	assert.True(t, locks.Acquire("bank_tx", "BT2"), "other resources stay available")

	locks.Release("bank_tx", "BT1")
	assert.True(t, locks.Acquire("bank_tx", "BT1"))
}

func TestLockExpiresAfterTTL(t *testing.T) {
	start := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	clock := &tickingClock{now: start}
	locks := lockkeeper.NewLockService(5*time.Minute, clock)

	require.True(t, locks.Acquire("bank_tx", "BT1"))
	clock.now = start.Add(4 * time.Minute)
	assert.False(t, locks.Acquire("bank_tx", "BT1"))

	// A crashed holder is reclaimed once the TTL lapses
	clock.now = start.Add(5*time.Minute + time.Second)
	assert.True(t, locks.Acquire("bank_tx", "BT1"))
}

// tickingClock lets tests move time forward
type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time   { return c.now }
func (c *tickingClock) Today() time.Time { return timeutil.DateOf(c.now) }

func TestKeyIsStable(t *testing.T) {
	a := lockkeeper.Key("bank_tx", "BT1", "reconcile")
	b := lockkeeper.Key("bank_tx", "BT1", "reconcile")
	c := lockkeeper.Key("bank_tx", "BT2", "reconcile")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	// Part boundaries matter: ("ab","c") differs from ("a","bc")
	assert.NotEqual(t, lockkeeper.Key("ab", "c"), lockkeeper.Key("a", "bc"))
}

func TestExecuteRunsOnceAndReplays(t *testing.T) {
	store := memory.NewStore()
	clock := timeutil.FixedClock{Instant: time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)}
	executor := lockkeeper.NewExecutor(memory.NewDB(), store.Idempotency(), clock, logger.NewNop())

	calls := 0
	fn := func(ctx context.Context, tx pgx.Tx) ([]byte, error) {
		calls++
		return []byte(`{"applied":true}`), nil
	}

	key := lockkeeper.Key("bank_tx", "BT1", "reconcile")
	first, replayed, err := executor.Execute(context.Background(), key, fn)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 1, calls)

	second, replayed, err := executor.Execute(context.Background(), key, fn)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, 1, calls, "operation must not run again")
	assert.Equal(t, first, second, "replay returns the stored result verbatim")
}

func TestExecuteFailedRunLeavesNoRecord(t *testing.T) {
	store := memory.NewStore()
	clock := timeutil.FixedClock{Instant: time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)}
	executor := lockkeeper.NewExecutor(memory.NewDB(), store.Idempotency(), clock, logger.NewNop())

	key := lockkeeper.Key("bank_tx", "BT1", "reconcile")
	boom := errors.New("gateway exploded")

	_, _, err := executor.Execute(context.Background(), key,
		func(ctx context.Context, tx pgx.Tx) ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	// A later attempt runs the operation for real
	result, replayed, err := executor.Execute(context.Background(), key,
		func(ctx context.Context, tx pgx.Tx) ([]byte, error) { return []byte("ok"), nil })
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, []byte("ok"), result)
}
