package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
)

// BankTransactionRepository implements ports.BankTransactionRepository
// for PostgreSQL
type BankTransactionRepository struct {
	db     ports.DBPort
	logger ports.Logger
}

// NewBankTransactionRepository creates a new PostgreSQL bank transaction
// repository
func NewBankTransactionRepository(db ports.DBPort, logger ports.Logger) *BankTransactionRepository {
	return &BankTransactionRepository{db: db, logger: logger}
}

func (r *BankTransactionRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.BankTransaction, error) {
	q := querier(r.db, db)

	row := q.QueryRow(ctx, `
		SELECT id, date, description, deposit, bank_account, created_at, updated_at
		FROM bank_transactions WHERE id = $1`, id)
	txn, err := scanBankTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to get bank transaction", err)
	}

	if err := r.loadMatches(ctx, q, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *BankTransactionRepository) ListUnreconciled(ctx context.Context, db ports.DBTX, limit int) ([]*models.BankTransaction, error) {
	q := querier(r.db, db)

	rows, err := q.Query(ctx, `
		SELECT id, date, description, deposit, bank_account, created_at, updated_at
		FROM bank_transactions t
		WHERE NOT EXISTS (
			SELECT 1 FROM bank_transaction_matches m WHERE m.transaction_id = t.id)
		ORDER BY date, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to list unreconciled transactions", err)
	}
	defer rows.Close()

	var txns []*models.BankTransaction
	for rows.Next() {
		txn, err := scanBankTransaction(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to scan bank transaction", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func (r *BankTransactionRepository) AddMatchedBatch(ctx context.Context, tx ports.DBTX, transactionID, batchID string) error {
	q := querier(r.db, tx)

	_, err := q.Exec(ctx, `
		INSERT INTO bank_transaction_matches (transaction_id, batch_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (transaction_id, batch_id) DO NOTHING`,
		transactionID, batchID)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to record matched batch", err)
	}
	return nil
}

func (r *BankTransactionRepository) loadMatches(ctx context.Context, q ports.DBTX, txn *models.BankTransaction) error {
	rows, err := q.Query(ctx, `
		SELECT batch_id FROM bank_transaction_matches
		WHERE transaction_id = $1 ORDER BY batch_id`, txn.ID)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to load matched batches", err)
	}
	defer rows.Close()

	for rows.Next() {
		var batchID string
		if err := rows.Scan(&batchID); err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to scan matched batch", err)
		}
		txn.MatchedBatchIDs = append(txn.MatchedBatchIDs, batchID)
	}
	return rows.Err()
}

func scanBankTransaction(row pgx.Row) (*models.BankTransaction, error) {
	var (
		txn     models.BankTransaction
		deposit pgtype.Numeric
	)
	err := row.Scan(&txn.ID, &txn.Date, &txn.Description, &deposit,
		&txn.BankAccount, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if txn.Deposit, err = decimalFromNumeric(deposit); err != nil {
		return nil, err
	}
	return &txn, nil
}

// MandateRepository implements ports.MandateRepository for PostgreSQL
type MandateRepository struct {
	db     ports.DBPort
	logger ports.Logger
}

// NewMandateRepository creates a new PostgreSQL mandate repository
func NewMandateRepository(db ports.DBPort, logger ports.Logger) *MandateRepository {
	return &MandateRepository{db: db, logger: logger}
}

func (r *MandateRepository) GetActiveByMember(ctx context.Context, db ports.DBTX, memberID string) (*models.Mandate, error) {
	q := querier(r.db, db)

	row := q.QueryRow(ctx, `
		SELECT id, member_id, iban, status, used_for_dues, used_for_donations, signed_at, created_at
		FROM mandates
		WHERE member_id = $1 AND status = $2
		ORDER BY signed_at DESC
		LIMIT 1`,
		memberID, string(models.MandateStatusActive))

	var (
		mandate models.Mandate
		status  string
	)
	err := row.Scan(&mandate.ID, &mandate.MemberID, &mandate.IBAN, &status,
		&mandate.UsedForDues, &mandate.UsedForDonations, &mandate.SignedAt,
		&mandate.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to get mandate", err)
	}
	mandate.Status = models.MandateStatus(status)
	return &mandate, nil
}
