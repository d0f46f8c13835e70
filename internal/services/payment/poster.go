package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

// PostRequest carries the context of one payment posting
type PostRequest struct {
	InvoiceID         string
	Amount            decimal.Decimal
	BankTransactionID string
	BatchID           string
	IdempotencyKey    string
}

// Poster creates payment entries with pre-posting duplicate checks.
// Together with the payment store's uniqueness constraint on
// (bank_transaction_id, batch_id, kind) it makes double-posting impossible
// regardless of interleaving.
type Poster struct {
	invoices  ports.InvoiceRepository
	payments  ports.PaymentRepository
	tolerance decimal.Decimal
	clock     timeutil.Clock
	logger    ports.Logger
}

// NewPoster creates a payment poster
func NewPoster(invoices ports.InvoiceRepository, payments ports.PaymentRepository, tolerance decimal.Decimal, clock timeutil.Clock, logger ports.Logger) *Poster {
	return &Poster{
		invoices:  invoices,
		payments:  payments,
		tolerance: tolerance,
		clock:     clock,
		logger:    logger,
	}
}

// Tolerance returns the configured monetary equality margin
func (p *Poster) Tolerance() decimal.Decimal {
	return p.tolerance
}

// coveredAmount sums what active receive payments already allocate to the
// invoice
func (p *Poster) coveredAmount(ctx context.Context, db ports.DBTX, invoiceID string) (decimal.Decimal, error) {
	existing, err := p.payments.ListActiveByInvoice(ctx, db, invoiceID, models.PaymentKindReceive)
	if err != nil {
		return decimal.Zero, domain.WrapError(domain.ErrorCodeDatabaseError, "list payments for invoice", err)
	}
	covered := decimal.Zero
	for _, pay := range existing {
		covered = covered.Add(pay.AllocatedTo(invoiceID))
	}
	return covered, nil
}

// Post creates and submits a receive payment allocated to one invoice.
// Fails with AlreadyFullyPaid when the invoice is covered, WouldOverpay
// when the posting would exceed the grand total, and DuplicatePayment when
// the (bank transaction, batch, kind) tuple already exists.
func (p *Poster) Post(ctx context.Context, tx ports.DBTX, req PostRequest) (*models.Payment, error) {
	invoice, err := p.invoices.GetByID(ctx, tx, req.InvoiceID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "load invoice", err)
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound.WithDetail("invoice_id", req.InvoiceID)
	}

	already, err := p.coveredAmount(ctx, tx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if already.GreaterThanOrEqual(invoice.GrandTotal.Sub(p.tolerance)) {
		return nil, domain.ErrAlreadyFullyPaid.
			WithDetail("invoice_id", req.InvoiceID).
			WithDetail("grand_total", invoice.GrandTotal.String()).
			WithDetail("covered", already.String())
	}
	if already.Add(req.Amount).GreaterThan(invoice.GrandTotal.Add(p.tolerance)) {
		return nil, domain.ErrWouldOverpay.
			WithDetail("invoice_id", req.InvoiceID).
			WithDetail("grand_total", invoice.GrandTotal.String()).
			WithDetail("covered", already.String()).
			WithDetail("amount", req.Amount.String())
	}

	now := p.clock.Now()
	entry := &models.Payment{
		ID:                uuid.New().String(),
		Kind:              models.PaymentKindReceive,
		Amount:            req.Amount,
		PostingDate:       p.clock.Today(),
		BankTransactionID: req.BankTransactionID,
		BatchID:           req.BatchID,
		Allocations:       []models.Allocation{{InvoiceID: req.InvoiceID, Amount: req.Amount}},
		IdempotencyKey:    req.IdempotencyKey,
		Status:            models.PaymentStatusDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := p.payments.Create(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := p.payments.Submit(ctx, tx, entry.ID); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "submit payment", err)
	}
	entry.Status = models.PaymentStatusSubmitted

	covered := already.Add(req.Amount)
	outstanding := invoice.GrandTotal.Sub(covered)
	status := invoice.Status
	if outstanding.Abs().LessThanOrEqual(p.tolerance) {
		outstanding = decimal.Zero
		status = models.InvoiceStatusPaid
	}
	if err := p.invoices.UpdateOutstanding(ctx, tx, invoice.ID, outstanding, status); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "update invoice outstanding", err)
	}

	p.logger.Info("payment posted",
		ports.String("payment_id", entry.ID),
		ports.String("invoice_id", invoice.ID),
		ports.String("amount", req.Amount.String()),
		ports.String("bank_transaction", req.BankTransactionID),
		ports.String("batch", req.BatchID))
	return entry, nil
}

// PostReversal creates a refund payment mirroring the original's
// allocations and reopens the affected invoices. Fails with
// OriginalNotFound, AlreadyReversed, or ReversalSupersededByFreshPayment
// when a newer successful payment exists for the same invoice.
func (p *Poster) PostReversal(ctx context.Context, tx ports.DBTX, originalPaymentID, reasonCode string) (*models.Payment, error) {
	original, err := p.payments.GetByID(ctx, tx, originalPaymentID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "load original payment", err)
	}
	if original == nil || !original.IsActive() || original.Kind != models.PaymentKindReceive {
		return nil, domain.ErrOriginalNotFound.WithDetail("payment_id", originalPaymentID)
	}

	existing, err := p.payments.GetReversalOf(ctx, tx, originalPaymentID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "look up prior reversal", err)
	}
	if existing != nil {
		return nil, domain.ErrAlreadyReversed.
			WithDetail("payment_id", originalPaymentID).
			WithDetail("reversal_payment_id", existing.ID)
	}

	// A collection that failed and was then successfully re-collected must
	// not be reversed; the fresh payment wins.
	for _, alloc := range original.Allocations {
		peers, err := p.payments.ListActiveByInvoice(ctx, tx, alloc.InvoiceID, models.PaymentKindReceive)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list payments for invoice", err)
		}
		for _, peer := range peers {
			if peer.ID != original.ID && peer.CreatedAt.After(original.CreatedAt) {
				return nil, domain.ErrReversalSuperseded.
					WithDetail("payment_id", originalPaymentID).
					WithDetail("superseding_payment_id", peer.ID).
					WithDetail("invoice_id", alloc.InvoiceID)
			}
		}
	}

	now := p.clock.Now()
	reversal := &models.Payment{
		ID:                uuid.New().String(),
		Kind:              models.PaymentKindRefund,
		Amount:            original.Amount,
		PostingDate:       p.clock.Today(),
		BankTransactionID: original.BankTransactionID,
		BatchID:           original.BatchID,
		Allocations:       append([]models.Allocation(nil), original.Allocations...),
		Status:            models.PaymentStatusDraft,
		ReversalOf:        original.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := p.payments.Create(ctx, tx, reversal); err != nil {
		return nil, err
	}
	if err := p.payments.Submit(ctx, tx, reversal.ID); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "submit reversal", err)
	}
	reversal.Status = models.PaymentStatusSubmitted

	for _, alloc := range reversal.Allocations {
		invoice, err := p.invoices.GetByID(ctx, tx, alloc.InvoiceID)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "load invoice", err)
		}
		if invoice == nil {
			return nil, domain.ErrInvoiceNotFound.WithDetail("invoice_id", alloc.InvoiceID)
		}
		outstanding := invoice.Outstanding.Add(alloc.Amount)
		if err := p.invoices.UpdateOutstanding(ctx, tx, invoice.ID, outstanding, models.InvoiceStatusUnpaid); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "reopen invoice", err)
		}
	}

	p.logger.Info("payment reversed",
		ports.String("original_payment_id", original.ID),
		ports.String("reversal_payment_id", reversal.ID),
		ports.String("reason_code", reasonCode))
	return reversal, nil
}
