package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReturnRecord documents one failed collection row from a bank return file.
// ReturnFileHash is the SHA-256 of the raw file; the processor refuses to
// reprocess a hash it has seen.
type ReturnRecord struct {
	ID                string
	ReturnFileHash    string
	MemberID          string
	InvoiceID         string
	Amount            decimal.Decimal
	ReasonCode        string
	ReasonText        string
	ReversalPaymentID string
	CreatedAt         time.Time
}
