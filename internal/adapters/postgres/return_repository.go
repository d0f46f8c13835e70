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

// ReturnRepository implements ports.ReturnRepository for PostgreSQL
type ReturnRepository struct {
	db     ports.DBPort
	logger ports.Logger
}

// NewReturnRepository creates a new PostgreSQL return repository
func NewReturnRepository(db ports.DBPort, logger ports.Logger) *ReturnRepository {
	return &ReturnRepository{db: db, logger: logger}
}

func (r *ReturnRepository) Create(ctx context.Context, tx ports.DBTX, record *models.ReturnRecord) error {
	q := querier(r.db, tx)

	amount, err := numericFromDecimal(record.Amount)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "invalid return amount", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO return_records
			(id, return_file_hash, member_id, invoice_id, amount, reason_code,
			 reason_text, reversal_payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		record.ID, record.ReturnFileHash, record.MemberID,
		nullText(record.InvoiceID), amount, record.ReasonCode,
		nullText(record.ReasonText), nullText(record.ReversalPaymentID))
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to create return record", err)
	}
	return nil
}

func (r *ReturnRepository) ExistsByFileHash(ctx context.Context, db ports.DBTX, hash string) (bool, error) {
	q := querier(r.db, db)

	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM return_records WHERE return_file_hash = $1)`,
		hash).Scan(&exists)
	if err != nil {
		return false, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to check file hash", err)
	}
	return exists, nil
}

func (r *ReturnRepository) ListByFileHash(ctx context.Context, db ports.DBTX, hash string) ([]*models.ReturnRecord, error) {
	q := querier(r.db, db)

	rows, err := q.Query(ctx, `
		SELECT id, return_file_hash, member_id, invoice_id, amount, reason_code,
			reason_text, reversal_payment_id, created_at
		FROM return_records
		WHERE return_file_hash = $1
		ORDER BY created_at, id`, hash)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to list return records", err)
	}
	defer rows.Close()

	var records []*models.ReturnRecord
	for rows.Next() {
		var (
			record                        models.ReturnRecord
			amount                        pgtype.Numeric
			invoiceID, reason, reversalID pgtype.Text
		)
		if err := rows.Scan(&record.ID, &record.ReturnFileHash, &record.MemberID,
			&invoiceID, &amount, &record.ReasonCode, &reason, &reversalID,
			&record.CreatedAt); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to scan return record", err)
		}
		if record.Amount, err = decimalFromNumeric(amount); err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "invalid stored return amount", err)
		}
		record.InvoiceID = textValue(invoiceID)
		record.ReasonText = textValue(reason)
		record.ReversalPaymentID = textValue(reversalID)
		records = append(records, &record)
	}
	return records, rows.Err()
}

// IdempotencyRepository implements ports.IdempotencyRepository for PostgreSQL
type IdempotencyRepository struct {
	db     ports.DBPort
	logger ports.Logger
}

// NewIdempotencyRepository creates a new PostgreSQL idempotency repository
func NewIdempotencyRepository(db ports.DBPort, logger ports.Logger) *IdempotencyRepository {
	return &IdempotencyRepository{db: db, logger: logger}
}

func (r *IdempotencyRepository) Get(ctx context.Context, db ports.DBTX, key string) (*models.IdempotencyRecord, error) {
	q := querier(r.db, db)

	var record models.IdempotencyRecord
	err := q.QueryRow(ctx, `
		SELECT key, result, completed_at FROM idempotency_records WHERE key = $1`,
		key).Scan(&record.Key, &record.Result, &record.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to get idempotency record", err)
	}
	return &record, nil
}

func (r *IdempotencyRepository) Put(ctx context.Context, tx ports.DBTX, record *models.IdempotencyRecord) error {
	q := querier(r.db, tx)

	_, err := q.Exec(ctx, `
		INSERT INTO idempotency_records (key, result, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO NOTHING`,
		record.Key, record.Result, record.CompletedAt)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to store idempotency record", err)
	}
	return nil
}
