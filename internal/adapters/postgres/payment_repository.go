package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaks
const uniqueViolation = "23505"

// PaymentRepository implements ports.PaymentRepository for PostgreSQL.
// A partial unique index over (bank_transaction_id, batch_id, kind,
// primary_invoice_id) where status <> 'cancelled' backs the duplicate
// prevention; violations surface as domain.ErrDuplicatePayment.
type PaymentRepository struct {
	db     ports.DBPort
	logger ports.Logger
}

// NewPaymentRepository creates a new PostgreSQL payment repository
func NewPaymentRepository(db ports.DBPort, logger ports.Logger) *PaymentRepository {
	return &PaymentRepository{db: db, logger: logger}
}

const paymentColumns = `id, kind, amount, posting_date, bank_transaction_id,
	batch_id, idempotency_key, status, reversal_of, created_at, updated_at`

func (r *PaymentRepository) Create(ctx context.Context, tx ports.DBTX, payment *models.Payment) error {
	q := querier(r.db, tx)

	amount, err := numericFromDecimal(payment.Amount)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "invalid payment amount", err)
	}

	primaryInvoice := ""
	if len(payment.Allocations) > 0 {
		primaryInvoice = payment.Allocations[0].InvoiceID
	}

	_, err = q.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`, primary_invoice_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now(), $10)`,
		payment.ID, string(payment.Kind), amount, payment.PostingDate,
		nullText(payment.BankTransactionID), nullText(payment.BatchID),
		nullText(payment.IdempotencyKey), string(payment.Status),
		nullText(payment.ReversalOf), nullText(primaryInvoice))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicatePayment
		}
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to create payment", err)
	}

	for _, alloc := range payment.Allocations {
		allocated, err := numericFromDecimal(alloc.Amount)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeInternalError, "invalid allocation amount", err)
		}
		_, err = q.Exec(ctx, `
			INSERT INTO payment_allocations (payment_id, invoice_id, amount)
			VALUES ($1, $2, $3)`,
			payment.ID, alloc.InvoiceID, allocated)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to create allocation", err)
		}
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Payment, error) {
	q := querier(r.db, db)

	row := q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	payment, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to get payment", err)
	}

	if err := r.loadAllocations(ctx, q, []*models.Payment{payment}); err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *PaymentRepository) Submit(ctx context.Context, tx ports.DBTX, id string) error {
	return r.setStatus(ctx, tx, id, models.PaymentStatusSubmitted)
}

func (r *PaymentRepository) Cancel(ctx context.Context, tx ports.DBTX, id string) error {
	return r.setStatus(ctx, tx, id, models.PaymentStatusCancelled)
}

func (r *PaymentRepository) setStatus(ctx context.Context, tx ports.DBTX, id string, status models.PaymentStatus) error {
	q := querier(r.db, tx)

	tag, err := q.Exec(ctx, `
		UPDATE payments SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to update payment status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) ListActiveByInvoice(ctx context.Context, db ports.DBTX, invoiceID string, kind models.PaymentKind) ([]*models.Payment, error) {
	q := querier(r.db, db)

	rows, err := q.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE kind = $1 AND status <> $2
		  AND id IN (SELECT payment_id FROM payment_allocations WHERE invoice_id = $3)
		ORDER BY posting_date, id`,
		string(kind), string(models.PaymentStatusCancelled), invoiceID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to list payments by invoice", err)
	}
	return r.collect(ctx, q, rows)
}

func (r *PaymentRepository) ListActiveByMember(ctx context.Context, db ports.DBTX, memberID string, kind models.PaymentKind) ([]*models.Payment, error) {
	q := querier(r.db, db)

	rows, err := q.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE kind = $1 AND status <> $2
		  AND id IN (
			SELECT pa.payment_id
			FROM payment_allocations pa
			JOIN invoices i ON i.id = pa.invoice_id
			WHERE i.member_id = $3)
		ORDER BY posting_date, id`,
		string(kind), string(models.PaymentStatusCancelled), memberID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to list payments by member", err)
	}
	return r.collect(ctx, q, rows)
}

func (r *PaymentRepository) GetReversalOf(ctx context.Context, db ports.DBTX, originalPaymentID string) (*models.Payment, error) {
	q := querier(r.db, db)

	row := q.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE reversal_of = $1 AND kind = $2 AND status <> $3
		LIMIT 1`,
		originalPaymentID, string(models.PaymentKindRefund), string(models.PaymentStatusCancelled))
	payment, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to look up reversal", err)
	}

	if err := r.loadAllocations(ctx, q, []*models.Payment{payment}); err != nil {
		return nil, err
	}
	return payment, nil
}

// collect drains rows into payments and attaches their allocations
func (r *PaymentRepository) collect(ctx context.Context, q ports.DBTX, rows pgx.Rows) ([]*models.Payment, error) {
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to scan payment", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to read payments", err)
	}
	rows.Close()

	if err := r.loadAllocations(ctx, q, payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *PaymentRepository) loadAllocations(ctx context.Context, q ports.DBTX, payments []*models.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	byID := make(map[string]*models.Payment, len(payments))
	ids := make([]string, 0, len(payments))
	for _, p := range payments {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT payment_id, invoice_id, amount
		FROM payment_allocations
		WHERE payment_id = ANY($1)
		ORDER BY payment_id, invoice_id`, ids)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to load allocations", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			paymentID string
			alloc     models.Allocation
			amount    pgtype.Numeric
		)
		if err := rows.Scan(&paymentID, &alloc.InvoiceID, &amount); err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to scan allocation", err)
		}
		if alloc.Amount, err = decimalFromNumeric(amount); err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "invalid stored allocation amount", err)
		}
		if payment, ok := byID[paymentID]; ok {
			payment.Allocations = append(payment.Allocations, alloc)
		}
	}
	return rows.Err()
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var (
		payment                    models.Payment
		amount                     pgtype.Numeric
		kind, status               string
		bankTx, batchID            pgtype.Text
		idempotencyKey, reversalOf pgtype.Text
	)
	err := row.Scan(&payment.ID, &kind, &amount, &payment.PostingDate,
		&bankTx, &batchID, &idempotencyKey, &status, &reversalOf,
		&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if payment.Amount, err = decimalFromNumeric(amount); err != nil {
		return nil, err
	}
	payment.Kind = models.PaymentKind(kind)
	payment.Status = models.PaymentStatus(status)
	payment.BankTransactionID = textValue(bankTx)
	payment.BatchID = textValue(batchID)
	payment.IdempotencyKey = textValue(idempotencyKey)
	payment.ReversalOf = textValue(reversalOf)
	return &payment, nil
}
