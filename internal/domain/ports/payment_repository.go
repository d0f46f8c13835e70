package ports

import (
	"context"

	"github.com/assocworks/sepa-billing/internal/domain/models"
)

// PaymentRepository defines the interface to the payment store.
// The store enforces uniqueness of (bank_transaction_id, batch_id, kind)
// among non-cancelled payments; Create surfaces a violation as
// domain.ErrDuplicatePayment.
type PaymentRepository interface {
	// Create persists a new payment with its allocations
	Create(ctx context.Context, tx DBTX, payment *models.Payment) error

	// GetByID retrieves a payment by its id, or nil when absent
	GetByID(ctx context.Context, db DBTX, id string) (*models.Payment, error)

	// Submit transitions a draft payment to submitted
	Submit(ctx context.Context, tx DBTX, id string) error

	// Cancel transitions a payment to cancelled
	Cancel(ctx context.Context, tx DBTX, id string) error

	// ListActiveByInvoice returns non-cancelled payments of the given kind
	// with an allocation against the invoice
	ListActiveByInvoice(ctx context.Context, db DBTX, invoiceID string, kind models.PaymentKind) ([]*models.Payment, error)

	// ListActiveByMember returns non-cancelled payments of the given kind
	// allocated to any invoice of the member. Used by the return-file
	// processor when a return row omits the invoice reference.
	ListActiveByMember(ctx context.Context, db DBTX, memberID string, kind models.PaymentKind) ([]*models.Payment, error)

	// GetReversalOf returns the non-cancelled refund that reverses the
	// given payment, or nil when none exists
	GetReversalOf(ctx context.Context, db DBTX, originalPaymentID string) (*models.Payment, error)
}
