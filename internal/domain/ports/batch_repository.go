package ports

import (
	"context"
	"time"

	"github.com/assocworks/sepa-billing/internal/domain/models"
)

// BatchRepository defines the interface to the direct-debit batch store
type BatchRepository interface {
	// Create persists a batch and its lines atomically
	Create(ctx context.Context, tx DBTX, batch *models.DirectDebitBatch) error

	// GetByID retrieves a batch with its lines, or nil when absent
	GetByID(ctx context.Context, db DBTX, id string) (*models.DirectDebitBatch, error)

	// ListCollectable returns submitted/processed batches whose batch date
	// falls inside [from, to], oldest first
	ListCollectable(ctx context.Context, db DBTX, from, to time.Time) ([]*models.DirectDebitBatch, error)

	// UpdateStatus transitions the batch status
	UpdateStatus(ctx context.Context, tx DBTX, id string, status models.BatchStatus) error
}
