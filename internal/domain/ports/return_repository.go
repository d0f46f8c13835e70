package ports

import (
	"context"

	"github.com/assocworks/sepa-billing/internal/domain/models"
)

// ReturnRepository persists return-file rows
type ReturnRepository interface {
	// Create persists one return record
	Create(ctx context.Context, tx DBTX, record *models.ReturnRecord) error

	// ExistsByFileHash reports whether any record carries the file hash
	ExistsByFileHash(ctx context.Context, db DBTX, hash string) (bool, error)

	// ListByFileHash returns all records of one processed file
	ListByFileHash(ctx context.Context, db DBTX, hash string) ([]*models.ReturnRecord, error)
}

// IdempotencyRepository persists first-completion results keyed by digest
type IdempotencyRepository interface {
	// Get returns the record for key, or nil when absent
	Get(ctx context.Context, db DBTX, key string) (*models.IdempotencyRecord, error)

	// Put persists the record. Must run inside the same transaction as the
	// side effects the result describes.
	Put(ctx context.Context, tx DBTX, record *models.IdempotencyRecord) error
}
