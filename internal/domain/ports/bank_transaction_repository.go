package ports

import (
	"context"

	"github.com/assocworks/sepa-billing/internal/domain/models"
)

// BankTransactionRepository defines the interface to the bank transaction
// source. Re-delivery of the same transaction is expected and harmless.
type BankTransactionRepository interface {
	// GetByID retrieves a bank transaction by its id, or nil when absent
	GetByID(ctx context.Context, db DBTX, id string) (*models.BankTransaction, error)

	// ListUnreconciled returns transactions without matched batches,
	// ordered ascending by (date, id)
	ListUnreconciled(ctx context.Context, db DBTX, limit int) ([]*models.BankTransaction, error)

	// AddMatchedBatch records that a batch has been reconciled against the
	// transaction. Adding the same batch twice is a no-op.
	AddMatchedBatch(ctx context.Context, tx DBTX, transactionID, batchID string) error
}

// MandateRepository is the read-only lookup into the SEPA mandate store
type MandateRepository interface {
	// GetActiveByMember returns the member's active mandate, or nil
	GetActiveByMember(ctx context.Context, db DBTX, memberID string) (*models.Mandate, error)
}
