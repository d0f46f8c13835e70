package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentKind distinguishes money received from money returned
type PaymentKind string

const (
	PaymentKindReceive PaymentKind = "receive"
	PaymentKindRefund  PaymentKind = "refund"
)

// PaymentStatus represents the lifecycle state of a payment entry
type PaymentStatus string

const (
	PaymentStatusDraft     PaymentStatus = "draft"
	PaymentStatusSubmitted PaymentStatus = "submitted"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Allocation ties part of a payment to one invoice
type Allocation struct {
	InvoiceID string
	Amount    decimal.Decimal
}

// Payment is a posted payment entry. The tuple
// (BankTransactionID, BatchID, Kind) is unique among non-cancelled payments;
// the storage layer enforces it.
type Payment struct {
	ID                string
	Kind              PaymentKind
	Amount            decimal.Decimal
	PostingDate       time.Time
	BankTransactionID string
	BatchID           string
	Allocations       []Allocation
	IdempotencyKey    string
	Status            PaymentStatus
	ReversalOf        string // original payment id when Kind is refund
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AllocatedTotal sums the allocation amounts. A valid payment keeps Amount
// equal to it.
func (p *Payment) AllocatedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// AllocatedTo returns the amount this payment allocates to the invoice
func (p *Payment) AllocatedTo(invoiceID string) decimal.Decimal {
	for _, a := range p.Allocations {
		if a.InvoiceID == invoiceID {
			return a.Amount
		}
	}
	return decimal.Zero
}

// IsActive returns true for payments that count toward invoice coverage
func (p *Payment) IsActive() bool {
	return p.Status != PaymentStatusCancelled
}
