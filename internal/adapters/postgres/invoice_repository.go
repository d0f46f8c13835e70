package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
)

// InvoiceRepository implements ports.InvoiceRepository for PostgreSQL
type InvoiceRepository struct {
	db     ports.DBPort
	logger ports.Logger
}

// NewInvoiceRepository creates a new PostgreSQL invoice repository
func NewInvoiceRepository(db ports.DBPort, logger ports.Logger) *InvoiceRepository {
	return &InvoiceRepository{db: db, logger: logger}
}

const invoiceColumns = `id, member_id, customer_id, posting_date, grand_total,
	outstanding, status, period_start, period_end, item_kind, subscription_id,
	membership_type, description, created_at, updated_at`

func (r *InvoiceRepository) Create(ctx context.Context, tx ports.DBTX, invoice *models.Invoice) error {
	q := querier(r.db, tx)

	grandTotal, err := numericFromDecimal(invoice.GrandTotal)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "invalid grand total", err)
	}
	outstanding, err := numericFromDecimal(invoice.Outstanding)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "invalid outstanding amount", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())`,
		invoice.ID, invoice.MemberID, invoice.CustomerID, invoice.PostingDate,
		grandTotal, outstanding, string(invoice.Status),
		nullDate(invoice.PeriodStart), nullDate(invoice.PeriodEnd),
		string(invoice.ItemKind), nullText(invoice.SubscriptionID),
		nullText(invoice.MembershipType), invoice.Description)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to create invoice", err)
	}
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Invoice, error) {
	q := querier(r.db, db)

	row := q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	invoice, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to get invoice", err)
	}
	return invoice, nil
}

func (r *InvoiceRepository) ListMembershipByMember(ctx context.Context, db ports.DBTX, memberID string) ([]*models.Invoice, error) {
	q := querier(r.db, db)

	rows, err := q.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE member_id = $1 AND item_kind = $2 AND status <> $3
		ORDER BY posting_date, id`,
		memberID, string(models.ItemKindMembership), string(models.InvoiceStatusCancelled))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to list membership invoices", err)
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to scan invoice", err)
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

func (r *InvoiceRepository) UpdatePeriodFields(ctx context.Context, tx ports.DBTX, id string, start, end time.Time, membershipType string) error {
	q := querier(r.db, tx)

	tag, err := q.Exec(ctx, `
		UPDATE invoices
		SET period_start = $2, period_end = $3, membership_type = $4, updated_at = now()
		WHERE id = $1`,
		id, start, end, nullText(membershipType))
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to update period fields", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

func (r *InvoiceRepository) UpdateOutstanding(ctx context.Context, tx ports.DBTX, id string, outstanding decimal.Decimal, status models.InvoiceStatus) error {
	q := querier(r.db, tx)

	amount, err := numericFromDecimal(outstanding)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "invalid outstanding amount", err)
	}

	tag, err := q.Exec(ctx, `
		UPDATE invoices
		SET outstanding = $2, status = $3, updated_at = now()
		WHERE id = $1`,
		id, amount, string(status))
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "failed to update outstanding", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var (
		invoice                  models.Invoice
		grandTotal, outstanding  pgtype.Numeric
		periodStart, periodEnd   pgtype.Date
		status, itemKind         string
		subscription, membership pgtype.Text
	)
	err := row.Scan(&invoice.ID, &invoice.MemberID, &invoice.CustomerID,
		&invoice.PostingDate, &grandTotal, &outstanding, &status,
		&periodStart, &periodEnd, &itemKind, &subscription, &membership,
		&invoice.Description, &invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if invoice.GrandTotal, err = decimalFromNumeric(grandTotal); err != nil {
		return nil, err
	}
	if invoice.Outstanding, err = decimalFromNumeric(outstanding); err != nil {
		return nil, err
	}
	invoice.Status = models.InvoiceStatus(status)
	invoice.ItemKind = models.ItemKind(itemKind)
	invoice.PeriodStart = dateValue(periodStart)
	invoice.PeriodEnd = dateValue(periodEnd)
	invoice.SubscriptionID = textValue(subscription)
	invoice.MembershipType = textValue(membership)
	return &invoice, nil
}
