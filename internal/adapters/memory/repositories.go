package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

// InvoiceRepository is the in-memory invoice store
type InvoiceRepository struct{ s *Store }

func (s *Store) Invoices() *InvoiceRepository { return &InvoiceRepository{s: s} }

func (r *InvoiceRepository) Create(ctx context.Context, tx ports.DBTX, invoice *models.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if inv, ok := r.s.invoices[id]; ok {
		return cloneInvoice(inv), nil
	}
	return nil, nil
}

func (r *InvoiceRepository) ListMembershipByMember(ctx context.Context, db ports.DBTX, memberID string) ([]*models.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Invoice
	for _, id := range sortedIDs(r.s.invoices) {
		inv := r.s.invoices[id]
		if inv.MemberID == memberID && inv.Status != models.InvoiceStatusCancelled {
			out = append(out, cloneInvoice(inv))
		}
	}
	return out, nil
}

func (r *InvoiceRepository) UpdatePeriodFields(ctx context.Context, tx ports.DBTX, id string, start, end time.Time, membershipType string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return domain.ErrInvoiceNotFound.WithDetail("invoice_id", id)
	}
	s, e := timeutil.DateOf(start), timeutil.DateOf(end)
	inv.PeriodStart = &s
	inv.PeriodEnd = &e
	inv.MembershipType = membershipType
	return nil
}

func (r *InvoiceRepository) UpdateOutstanding(ctx context.Context, tx ports.DBTX, id string, outstanding decimal.Decimal, status models.InvoiceStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return domain.ErrInvoiceNotFound.WithDetail("invoice_id", id)
	}
	inv.Outstanding = outstanding
	inv.Status = status
	return nil
}

// BatchRepository is the in-memory direct-debit batch store
type BatchRepository struct{ s *Store }

func (s *Store) Batches() *BatchRepository { return &BatchRepository{s: s} }

func (r *BatchRepository) Create(ctx context.Context, tx ports.DBTX, batch *models.DirectDebitBatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.batches[batch.ID] = cloneBatch(batch)
	return nil
}

func (r *BatchRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.DirectDebitBatch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if b, ok := r.s.batches[id]; ok {
		return cloneBatch(b), nil
	}
	return nil, nil
}

func (r *BatchRepository) ListCollectable(ctx context.Context, db ports.DBTX, from, to time.Time) ([]*models.DirectDebitBatch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.DirectDebitBatch
	for _, id := range sortedIDs(r.s.batches) {
		b := r.s.batches[id]
		if !b.IsCollectable() {
			continue
		}
		d := timeutil.DateOf(b.BatchDate)
		if d.Before(timeutil.DateOf(from)) || d.After(timeutil.DateOf(to)) {
			continue
		}
		out = append(out, cloneBatch(b))
	}
	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].BatchDate.Equal(out[b].BatchDate) {
			return out[a].BatchDate.Before(out[b].BatchDate)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (r *BatchRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, status models.BatchStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return domain.ErrBatchNotFound.WithDetail("batch_id", id)
	}
	b.Status = status
	return nil
}

// PaymentRepository is the in-memory payment store. Create enforces the
// uniqueness of (bank_transaction_id, batch_id, kind) among non-cancelled
// payments, as the real storage layer does.
type PaymentRepository struct{ s *Store }

func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s: s} }

func (r *PaymentRepository) Create(ctx context.Context, tx ports.DBTX, payment *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.payments {
		if existing.Status == models.PaymentStatusCancelled {
			continue
		}
		if existing.BankTransactionID == payment.BankTransactionID &&
			existing.BatchID == payment.BatchID &&
			existing.Kind == payment.Kind &&
			samePrimaryInvoice(existing, payment) {
			return domain.ErrDuplicatePayment.
				WithDetail("bank_transaction", payment.BankTransactionID).
				WithDetail("batch_id", payment.BatchID).
				WithDetail("existing_payment_id", existing.ID)
		}
	}
	r.s.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if p, ok := r.s.payments[id]; ok {
		return clonePayment(p), nil
	}
	return nil, nil
}

func (r *PaymentRepository) Submit(ctx context.Context, tx ports.DBTX, id string) error {
	return r.setStatus(id, models.PaymentStatusSubmitted)
}

func (r *PaymentRepository) Cancel(ctx context.Context, tx ports.DBTX, id string) error {
	return r.setStatus(id, models.PaymentStatusCancelled)
}

func (r *PaymentRepository) setStatus(id string, status models.PaymentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return domain.ErrPaymentNotFound.WithDetail("payment_id", id)
	}
	p.Status = status
	return nil
}

func (r *PaymentRepository) ListActiveByInvoice(ctx context.Context, db ports.DBTX, invoiceID string, kind models.PaymentKind) ([]*models.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Payment
	for _, id := range sortedIDs(r.s.payments) {
		p := r.s.payments[id]
		if p.Kind != kind || !p.IsActive() {
			continue
		}
		if !p.AllocatedTo(invoiceID).IsZero() {
			out = append(out, clonePayment(p))
		}
	}
	return out, nil
}

func (r *PaymentRepository) ListActiveByMember(ctx context.Context, db ports.DBTX, memberID string, kind models.PaymentKind) ([]*models.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Payment
	for _, id := range sortedIDs(r.s.payments) {
		p := r.s.payments[id]
		if p.Kind != kind || !p.IsActive() {
			continue
		}
		for _, alloc := range p.Allocations {
			inv, ok := r.s.invoices[alloc.InvoiceID]
			if ok && inv.MemberID == memberID {
				out = append(out, clonePayment(p))
				break
			}
		}
	}
	return out, nil
}

func (r *PaymentRepository) GetReversalOf(ctx context.Context, db ports.DBTX, originalPaymentID string) (*models.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, id := range sortedIDs(r.s.payments) {
		p := r.s.payments[id]
		if p.Kind == models.PaymentKindRefund && p.IsActive() && p.ReversalOf == originalPaymentID {
			return clonePayment(p), nil
		}
	}
	return nil, nil
}

// samePrimaryInvoice keeps the uniqueness check per collected invoice so a
// split across several lines of one batch can post one payment per line
func samePrimaryInvoice(a, b *models.Payment) bool {
	if len(a.Allocations) == 0 || len(b.Allocations) == 0 {
		return true
	}
	return a.Allocations[0].InvoiceID == b.Allocations[0].InvoiceID
}

// BankTransactionRepository is the in-memory bank transaction source
type BankTransactionRepository struct{ s *Store }

func (s *Store) BankTransactions() *BankTransactionRepository {
	return &BankTransactionRepository{s: s}
}

func (r *BankTransactionRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.BankTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if tx, ok := r.s.bankTxs[id]; ok {
		return cloneBankTx(tx), nil
	}
	return nil, nil
}

func (r *BankTransactionRepository) ListUnreconciled(ctx context.Context, db ports.DBTX, limit int) ([]*models.BankTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.BankTransaction
	for _, id := range sortedIDs(r.s.bankTxs) {
		tx := r.s.bankTxs[id]
		if len(tx.MatchedBatchIDs) == 0 {
			out = append(out, cloneBankTx(tx))
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].Date.Equal(out[b].Date) {
			return out[a].Date.Before(out[b].Date)
		}
		return out[a].ID < out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *BankTransactionRepository) AddMatchedBatch(ctx context.Context, tx ports.DBTX, transactionID, batchID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	bankTx, ok := r.s.bankTxs[transactionID]
	if !ok {
		return domain.ErrTransactionNotFound.WithDetail("bank_transaction", transactionID)
	}
	for _, id := range bankTx.MatchedBatchIDs {
		if id == batchID {
			return nil
		}
	}
	bankTx.MatchedBatchIDs = append(bankTx.MatchedBatchIDs, batchID)
	return nil
}

// MandateRepository is the in-memory mandate lookup
type MandateRepository struct{ s *Store }

func (s *Store) Mandates() *MandateRepository { return &MandateRepository{s: s} }

func (r *MandateRepository) GetActiveByMember(ctx context.Context, db ports.DBTX, memberID string) (*models.Mandate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, id := range sortedIDs(r.s.mandates) {
		m := r.s.mandates[id]
		if m.MemberID == memberID && m.IsActive() {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

// ReturnRepository is the in-memory return record store
type ReturnRepository struct{ s *Store }

func (s *Store) Returns() *ReturnRepository { return &ReturnRepository{s: s} }

func (r *ReturnRepository) Create(ctx context.Context, tx ports.DBTX, record *models.ReturnRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copied := *record
	r.s.returns[record.ID] = &copied
	return nil
}

func (r *ReturnRepository) ExistsByFileHash(ctx context.Context, db ports.DBTX, hash string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rec := range r.s.returns {
		if rec.ReturnFileHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (r *ReturnRepository) ListByFileHash(ctx context.Context, db ports.DBTX, hash string) ([]*models.ReturnRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.ReturnRecord
	for _, id := range sortedIDs(r.s.returns) {
		rec := r.s.returns[id]
		if rec.ReturnFileHash == hash {
			copied := *rec
			out = append(out, &copied)
		}
	}
	return out, nil
}

// IdempotencyRepository is the in-memory idempotency record store
type IdempotencyRepository struct{ s *Store }

func (s *Store) Idempotency() *IdempotencyRepository { return &IdempotencyRepository{s: s} }

func (r *IdempotencyRepository) Get(ctx context.Context, db ports.DBTX, key string) (*models.IdempotencyRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if rec, ok := r.s.idem[key]; ok {
		copied := *rec
		copied.Result = append([]byte(nil), rec.Result...)
		return &copied, nil
	}
	return nil, nil
}

func (r *IdempotencyRepository) Put(ctx context.Context, tx ports.DBTX, record *models.IdempotencyRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copied := *record
	copied.Result = append([]byte(nil), record.Result...)
	r.s.idem[record.Key] = &copied
	return nil
}
