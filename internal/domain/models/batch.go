package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus represents the lifecycle state of a direct-debit batch
type BatchStatus string

const (
	BatchStatusDraft     BatchStatus = "draft"
	BatchStatusSubmitted BatchStatus = "submitted"
	BatchStatusProcessed BatchStatus = "processed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// CollectionType marks a batch as first-ever or recurring collection
type CollectionType string

const (
	CollectionTypeFirst     CollectionType = "FRST"
	CollectionTypeRecurring CollectionType = "RCUR"
)

// BatchLine is one direct-debit instruction inside a batch
type BatchLine struct {
	InvoiceID  string
	CustomerID string
	MemberID   string
	MandateID  string
	Amount     decimal.Decimal
}

// DirectDebitBatch is a bundle of collection instructions submitted to the
// bank as one unit. Once submitted the line set is frozen.
type DirectDebitBatch struct {
	ID          string
	BatchDate   time.Time
	TotalAmount decimal.Decimal
	EntryCount  int
	Status      BatchStatus
	Type        CollectionType
	Lines       []BatchLine
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsCollectable returns true for batches a bank credit can legitimately
// reconcile against
func (b *DirectDebitBatch) IsCollectable() bool {
	return b.Status == BatchStatusSubmitted || b.Status == BatchStatusProcessed
}

// LineTotal sums the line amounts. Valid batches keep TotalAmount equal to it.
func (b *DirectDebitBatch) LineTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range b.Lines {
		total = total.Add(line.Amount)
	}
	return total
}

// LineFor returns the line collecting the given invoice, or nil
func (b *DirectDebitBatch) LineFor(invoiceID string) *BatchLine {
	for i := range b.Lines {
		if b.Lines[i].InvoiceID == invoiceID {
			return &b.Lines[i]
		}
	}
	return nil
}
