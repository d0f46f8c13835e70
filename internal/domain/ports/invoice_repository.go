package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/assocworks/sepa-billing/internal/domain/models"
)

// InvoiceRepository defines the interface to the invoice store
type InvoiceRepository interface {
	// Create persists a new invoice in draft
	Create(ctx context.Context, tx DBTX, invoice *models.Invoice) error

	// GetByID retrieves an invoice by its id, or nil when absent
	GetByID(ctx context.Context, db DBTX, id string) (*models.Invoice, error)

	// ListMembershipByMember returns the member's non-cancelled membership
	// invoices. Used by the period registry for overlap checks.
	ListMembershipByMember(ctx context.Context, db DBTX, memberID string) ([]*models.Invoice, error)

	// UpdatePeriodFields backfills period_start/period_end and the
	// membership type on an existing invoice
	UpdatePeriodFields(ctx context.Context, tx DBTX, id string, start, end time.Time, membershipType string) error

	// UpdateOutstanding sets the remaining amount and resulting status
	UpdateOutstanding(ctx context.Context, tx DBTX, id string, outstanding decimal.Decimal, status models.InvoiceStatus) error
}
