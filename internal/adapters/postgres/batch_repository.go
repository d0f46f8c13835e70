package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
)

// BatchRepository implements ports.BatchRepository for PostgreSQL
type BatchRepository struct {
	db     ports.DBPort
	logger ports.Logger
}

// NewBatchRepository creates a new PostgreSQL batch repository
func NewBatchRepository(db ports.DBPort, logger ports.Logger) *BatchRepository {
	return &BatchRepository{db: db, logger: logger}
}

func (r *BatchRepository) Create(ctx context.Context, tx ports.DBTX, batch *models.DirectDebitBatch) error {
	q := querier(r.db, tx)

	total, err := numericFromDecimal(batch.TotalAmount)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "invalid batch total", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO direct_debit_batches
			(id, batch_date, total_amount, entry_count, status, collection_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		batch.ID, batch.BatchDate, total, len(batch.Lines),
		string(batch.Status), string(batch.Type))
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to create batch", err)
	}

	for i, line := range batch.Lines {
		amount, err := numericFromDecimal(line.Amount)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeInternalError, "invalid line amount", err)
		}
		_, err = q.Exec(ctx, `
			INSERT INTO direct_debit_batch_lines
				(batch_id, position, invoice_id, customer_id, member_id, mandate_id, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			batch.ID, i, line.InvoiceID, line.CustomerID, line.MemberID, line.MandateID, amount)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to create batch line", err)
		}
	}
	return nil
}

func (r *BatchRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.DirectDebitBatch, error) {
	q := querier(r.db, db)

	row := q.QueryRow(ctx, `
		SELECT id, batch_date, total_amount, entry_count, status, collection_type, created_at, updated_at
		FROM direct_debit_batches WHERE id = $1`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to get batch", err)
	}

	if err := r.loadLines(ctx, q, []*models.DirectDebitBatch{batch}); err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *BatchRepository) ListCollectable(ctx context.Context, db ports.DBTX, from, to time.Time) ([]*models.DirectDebitBatch, error) {
	q := querier(r.db, db)

	rows, err := q.Query(ctx, `
		SELECT id, batch_date, total_amount, entry_count, status, collection_type, created_at, updated_at
		FROM direct_debit_batches
		WHERE status IN ($1, $2) AND batch_date BETWEEN $3 AND $4
		ORDER BY batch_date, id`,
		string(models.BatchStatusSubmitted), string(models.BatchStatusProcessed), from, to)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to list collectable batches", err)
	}
	defer rows.Close()

	var batches []*models.DirectDebitBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to scan batch", err)
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to read batches", err)
	}

	if err := r.loadLines(ctx, q, batches); err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *BatchRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, status models.BatchStatus) error {
	q := querier(r.db, tx)

	tag, err := q.Exec(ctx, `
		UPDATE direct_debit_batches SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to update batch status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBatchNotFound
	}
	return nil
}

// loadLines attaches line sets to the given batches in one query
func (r *BatchRepository) loadLines(ctx context.Context, q ports.DBTX, batches []*models.DirectDebitBatch) error {
	if len(batches) == 0 {
		return nil
	}
	byID := make(map[string]*models.DirectDebitBatch, len(batches))
	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT batch_id, invoice_id, customer_id, member_id, mandate_id, amount
		FROM direct_debit_batch_lines
		WHERE batch_id = ANY($1)
		ORDER BY batch_id, position`, ids)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to load batch lines", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			batchID string
			line    models.BatchLine
			amount  pgtype.Numeric
		)
		if err := rows.Scan(&batchID, &line.InvoiceID, &line.CustomerID,
			&line.MemberID, &line.MandateID, &amount); err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to scan batch line", err)
		}
		if line.Amount, err = decimalFromNumeric(amount); err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "invalid stored line amount", err)
		}
		if batch, ok := byID[batchID]; ok {
			batch.Lines = append(batch.Lines, line)
		}
	}
	return rows.Err()
}

func scanBatch(row pgx.Row) (*models.DirectDebitBatch, error) {
	var (
		batch         models.DirectDebitBatch
		total         pgtype.Numeric
		status, cType string
	)
	err := row.Scan(&batch.ID, &batch.BatchDate, &total, &batch.EntryCount,
		&status, &cType, &batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if batch.TotalAmount, err = decimalFromNumeric(total); err != nil {
		return nil, err
	}
	batch.Status = models.BatchStatus(status)
	batch.Type = models.CollectionType(cType)
	return &batch, nil
}
