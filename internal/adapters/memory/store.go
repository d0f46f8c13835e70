package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assocworks/sepa-billing/internal/domain/models"
)

// Store is an in-memory implementation of every repository port. It backs
// the tests and the CLI dry-run mode; the process-local mutex stands in
// for the database's transaction isolation.
type Store struct {
	mu       sync.RWMutex
	invoices map[string]*models.Invoice
	batches  map[string]*models.DirectDebitBatch
	payments map[string]*models.Payment
	bankTxs  map[string]*models.BankTransaction
	mandates map[string]*models.Mandate
	returns  map[string]*models.ReturnRecord
	idem     map[string]*models.IdempotencyRecord
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		invoices: make(map[string]*models.Invoice),
		batches:  make(map[string]*models.DirectDebitBatch),
		payments: make(map[string]*models.Payment),
		bankTxs:  make(map[string]*models.BankTransaction),
		mandates: make(map[string]*models.Mandate),
		returns:  make(map[string]*models.ReturnRecord),
		idem:     make(map[string]*models.IdempotencyRecord),
	}
}

// Seed helpers. Used by tests and the dry-run loader.

func (s *Store) SeedInvoice(inv *models.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[inv.ID] = cloneInvoice(inv)
}

func (s *Store) SeedBatch(b *models.DirectDebitBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = cloneBatch(b)
}

func (s *Store) SeedBankTransaction(tx *models.BankTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bankTxs[tx.ID] = cloneBankTx(tx)
}

func (s *Store) SeedMandate(m *models.Mandate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	s.mandates[m.ID] = &copied
}

// DB implements ports.DBPort for the in-memory store. There is no real
// transaction; fn runs under the store's own locking with a nil pgx.Tx,
// which every memory repository ignores.
type DB struct{}

// NewDB creates the in-memory DB port
func NewDB() *DB {
	return &DB{}
}

func (d *DB) GetDB() *pgxpool.Pool { return nil }

func (d *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

func (d *DB) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

// clone helpers keep callers from mutating stored state through returned
// pointers

func cloneInvoice(in *models.Invoice) *models.Invoice {
	out := *in
	if in.PeriodStart != nil {
		v := *in.PeriodStart
		out.PeriodStart = &v
	}
	if in.PeriodEnd != nil {
		v := *in.PeriodEnd
		out.PeriodEnd = &v
	}
	return &out
}

func cloneBatch(in *models.DirectDebitBatch) *models.DirectDebitBatch {
	out := *in
	out.Lines = append([]models.BatchLine(nil), in.Lines...)
	return &out
}

func cloneBankTx(in *models.BankTransaction) *models.BankTransaction {
	out := *in
	out.MatchedBatchIDs = append([]string(nil), in.MatchedBatchIDs...)
	return &out
}

func clonePayment(in *models.Payment) *models.Payment {
	out := *in
	out.Allocations = append([]models.Allocation(nil), in.Allocations...)
	return &out
}

func sortedIDs[T any](m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
