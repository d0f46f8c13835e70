package lockkeeper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

// Key derives a stable idempotency digest from resource ids and an action
// name. The same inputs always produce the same key.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Executor runs operations at most once per key. The first completion's
// result is persisted in the same transaction as the operation's side
// effects; replays return it verbatim without running the operation again.
type Executor struct {
	db     ports.DBPort
	repo   ports.IdempotencyRepository
	clock  timeutil.Clock
	logger ports.Logger
}

// NewExecutor creates an idempotent executor
func NewExecutor(db ports.DBPort, repo ports.IdempotencyRepository, clock timeutil.Clock, logger ports.Logger) *Executor {
	return &Executor{db: db, repo: repo, clock: clock, logger: logger}
}

// Execute returns the stored result when key has already completed;
// otherwise it runs fn inside a transaction, persists the result under key
// in that same transaction, and returns it. replayed reports which path
// was taken.
func (e *Executor) Execute(ctx context.Context, key string, fn func(ctx context.Context, tx pgx.Tx) ([]byte, error)) (result []byte, replayed bool, err error) {
	existing, err := e.repo.Get(ctx, nil, key)
	if err != nil {
		return nil, false, domain.WrapError(domain.ErrorCodeDatabaseError, "load idempotency record", err)
	}
	if existing != nil {
		e.logger.Info("replaying stored result for idempotency key",
			ports.String("key", key))
		return existing.Result, true, nil
	}

	err = e.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		out, fnErr := fn(ctx, tx)
		if fnErr != nil {
			return fnErr
		}
		record := &models.IdempotencyRecord{
			Key:         key,
			Result:      out,
			CompletedAt: e.clock.Now(),
		}
		if putErr := e.repo.Put(ctx, tx, record); putErr != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "persist idempotency record", putErr)
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, false, nil
}
