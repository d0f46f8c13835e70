package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/assocworks/sepa-billing/internal/domain/ports"
)

// querier picks the transaction when one is supplied, the pool otherwise
func querier(db ports.DBPort, tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return db.GetDB()
}

// numericFromDecimal converts a decimal amount to pgtype.Numeric
func numericFromDecimal(d decimal.Decimal) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return n, nil
}

// decimalFromNumeric converts a pgtype.Numeric back to a decimal amount
func decimalFromNumeric(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	v, err := n.Value()
	if err != nil {
		return decimal.Zero, err
	}
	s, ok := v.(string)
	if !ok {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// nullText converts a string to pgtype.Text, treating empty as NULL
func nullText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// textValue unwraps a nullable text column to a plain string
func textValue(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// nullDate converts an optional date to pgtype.Date
func nullDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

// dateValue unwraps a nullable date column
func dateValue(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}
