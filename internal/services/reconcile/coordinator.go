package reconcile

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
	"github.com/assocworks/sepa-billing/internal/services/guard"
	"github.com/assocworks/sepa-billing/internal/services/lockkeeper"
	"github.com/assocworks/sepa-billing/internal/services/matcher"
	"github.com/assocworks/sepa-billing/internal/services/payment"
	"github.com/assocworks/sepa-billing/pkg/observability"
)

// Mode selects how much the coordinator applies without human approval
type Mode string

const (
	// ModeConservative auto-applies only same-day exact matches; split and
	// partial candidates go back to the operator.
	ModeConservative Mode = "conservative"
	// ModeAggressive applies the top candidate when it is unique.
	ModeAggressive Mode = "aggressive"
)

// CandidateSummary mirrors a matcher candidate for the outcome report
type CandidateSummary struct {
	Kind       string   `json:"kind"`
	BatchIDs   []string `json:"batch_ids"`
	LineIDs    []string `json:"line_ids,omitempty"`
	Confidence float64  `json:"confidence"`
	Residuals  []string `json:"residual_lines,omitempty"`
}

// Outcome is the recorded result of one reconciliation attempt. It is the
// payload stored under the idempotency key, so replays return it verbatim.
type Outcome struct {
	BankTransactionID string             `json:"bank_transaction_id"`
	Applied           bool               `json:"applied"`
	RequiresReview    bool               `json:"requires_review"`
	Kind              string             `json:"kind,omitempty"`
	BatchIDs          []string           `json:"batch_ids,omitempty"`
	PaymentIDs        []string           `json:"payment_ids,omitempty"`
	ResidualLines     []string           `json:"residual_lines,omitempty"`
	Candidates        []CandidateSummary `json:"candidates,omitempty"`
}

// Coordinator is the top-level reconciliation entry point: it serialises
// work per bank transaction, asks the matcher for a plan, re-validates
// membership periods, and posts payments line by line.
type Coordinator struct {
	db       ports.DBPort
	bankTxs  ports.BankTransactionRepository
	batches  ports.BatchRepository
	matcher  *matcher.Matcher
	guard    *guard.Guard
	poster   *payment.Poster
	locks    *lockkeeper.LockService
	executor *lockkeeper.Executor
	logger   ports.Logger
}

// NewCoordinator wires the reconciliation pipeline
func NewCoordinator(
	db ports.DBPort,
	bankTxs ports.BankTransactionRepository,
	batches ports.BatchRepository,
	m *matcher.Matcher,
	g *guard.Guard,
	poster *payment.Poster,
	locks *lockkeeper.LockService,
	executor *lockkeeper.Executor,
	logger ports.Logger,
) *Coordinator {
	return &Coordinator{
		db:       db,
		bankTxs:  bankTxs,
		batches:  batches,
		matcher:  m,
		guard:    g,
		poster:   poster,
		locks:    locks,
		executor: executor,
		logger:   logger,
	}
}

// Execute reconciles one bank transaction. Concurrent attempts on the same
// transaction fail fast with BusyRetryLater; completed attempts replay the
// stored outcome without posting anything twice.
func (c *Coordinator) Execute(ctx context.Context, bankTransactionID string, mode Mode) (*Outcome, error) {
	if !c.locks.Acquire("bank_tx", bankTransactionID) {
		return nil, domain.ErrBusyRetryLater.WithDetail("bank_transaction", bankTransactionID)
	}
	defer c.locks.Release("bank_tx", bankTransactionID)

	key := lockkeeper.Key("bank_tx", bankTransactionID, "reconcile")
	raw, replayed, err := c.executor.Execute(ctx, key, func(ctx context.Context, tx pgx.Tx) ([]byte, error) {
		outcome, err := c.reconcile(ctx, tx, bankTransactionID, mode)
		if err != nil {
			return nil, err
		}
		return json.Marshal(outcome)
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		c.logger.Info("reconciliation replayed from stored outcome",
			ports.String("bank_transaction", bankTransactionID))
	}

	var outcome Outcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "decode stored outcome", err)
	}
	return &outcome, nil
}

func (c *Coordinator) reconcile(ctx context.Context, tx ports.DBTX, bankTransactionID string, mode Mode) (*Outcome, error) {
	bankTx, err := c.bankTxs.GetByID(ctx, tx, bankTransactionID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "load bank transaction", err)
	}
	if bankTx == nil {
		return nil, domain.ErrTransactionNotFound.WithDetail("bank_transaction", bankTransactionID)
	}

	candidates, err := c.matcher.Find(ctx, tx, bankTx)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{BankTransactionID: bankTransactionID}
	for _, cand := range candidates {
		outcome.Candidates = append(outcome.Candidates, CandidateSummary{
			Kind:       string(cand.Kind),
			BatchIDs:   cand.BatchIDs,
			LineIDs:    cand.LineInvoiceIDs,
			Confidence: cand.Confidence,
			Residuals:  cand.ResidualInvoiceIDs,
		})
	}
	if len(candidates) == 0 {
		observability.RecordMatchOutcome("none")
		outcome.RequiresReview = true
		return outcome, nil
	}

	selected := candidates[0]
	if mode == ModeConservative && (selected.Kind != matcher.KindExact || selected.Confidence < 1.0) {
		observability.RecordMatchOutcome("review")
		outcome.RequiresReview = true
		return outcome, nil
	}
	observability.RecordMatchOutcome(string(selected.Kind))

	if err := c.apply(ctx, tx, bankTx, &selected, outcome); err != nil {
		return nil, err
	}
	outcome.Applied = true
	outcome.Kind = string(selected.Kind)
	outcome.BatchIDs = selected.BatchIDs
	outcome.ResidualLines = selected.ResidualInvoiceIDs
	return outcome, nil
}

// apply posts one payment per matched line under the invoicing guard's
// preconditions, then records the batch on the bank transaction
func (c *Coordinator) apply(ctx context.Context, tx ports.DBTX, bankTx *models.BankTransaction, cand *matcher.Candidate, outcome *Outcome) error {
	selectedLines := map[string]bool{}
	for _, id := range cand.LineInvoiceIDs {
		selectedLines[id] = true
	}

	for _, batchID := range cand.BatchIDs {
		// Period conflicts discovered this late abort the whole plan.
		if _, err := c.guard.ValidateBatchAssembly(ctx, tx, batchID); err != nil {
			return err
		}

		batch, err := c.batches.GetByID(ctx, tx, batchID)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "load batch", err)
		}
		if batch == nil {
			return domain.ErrBatchNotFound.WithDetail("batch_id", batchID)
		}
		if !batch.IsCollectable() {
			return domain.ErrBatchNotCollectable.
				WithDetail("batch_id", batchID).
				WithDetail("status", string(batch.Status))
		}

		for _, line := range batch.Lines {
			if cand.Kind == matcher.KindPartial && !selectedLines[line.InvoiceID] {
				continue
			}
			posted, err := c.poster.Post(ctx, tx, payment.PostRequest{
				InvoiceID:         line.InvoiceID,
				Amount:            line.Amount,
				BankTransactionID: bankTx.ID,
				BatchID:           batchID,
				IdempotencyKey:    lockkeeper.Key("bank_tx", bankTx.ID, "batch", batchID, "invoice", line.InvoiceID),
			})
			if err != nil {
				if domain.IsDuplicatePrevention(err) {
					observability.RecordDuplicateRefused(string(domain.GetErrorCode(err)))
				}
				return err
			}
			observability.RecordPaymentPosted(string(models.PaymentKindReceive))
			outcome.PaymentIDs = append(outcome.PaymentIDs, posted.ID)
		}

		if err := c.bankTxs.AddMatchedBatch(ctx, tx, bankTx.ID, batchID); err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "record matched batch", err)
		}
		if cand.Kind != matcher.KindPartial {
			if err := c.batches.UpdateStatus(ctx, tx, batchID, models.BatchStatusProcessed); err != nil {
				return domain.WrapError(domain.ErrorCodeDatabaseError, "mark batch processed", err)
			}
		}
	}
	return nil
}

// ProcessPending reconciles unreconciled transactions in ascending
// (date, id) order. A delayed earlier-dated transaction is still processed
// on the next run; already-posted payments never move.
func (c *Coordinator) ProcessPending(ctx context.Context, mode Mode, limit int) ([]*Outcome, error) {
	pending, err := c.bankTxs.ListUnreconciled(ctx, nil, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list unreconciled transactions", err)
	}

	var outcomes []*Outcome
	for _, tx := range pending {
		outcome, err := c.Execute(ctx, tx.ID, mode)
		if err != nil {
			// Human-review and duplicate-prevention errors stop this
			// transaction, not the sweep.
			if domain.IsHumanReview(err) || domain.IsDuplicatePrevention(err) {
				c.logger.Warn("transaction needs operator attention",
					ports.String("bank_transaction", tx.ID),
					ports.Err(err))
				continue
			}
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
