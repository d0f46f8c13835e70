package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSubmitted InvoiceStatus = "submitted"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusUnpaid    InvoiceStatus = "unpaid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// ItemKind distinguishes membership invoices from everything else
type ItemKind string

const (
	ItemKindMembership ItemKind = "membership"
	ItemKindOther      ItemKind = "other"
)

// Invoice represents a sales invoice as seen by the reconciliation core.
// Period fields are set for membership invoices only; for other item kinds
// they stay nil.
type Invoice struct {
	ID             string
	MemberID       string
	CustomerID     string
	PostingDate    time.Time
	GrandTotal     decimal.Decimal
	Outstanding    decimal.Decimal
	Status         InvoiceStatus
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	ItemKind       ItemKind
	SubscriptionID string
	MembershipType string
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsMembership returns true for membership-period invoices
func (i *Invoice) IsMembership() bool {
	return i.ItemKind == ItemKindMembership
}

// IsOpen returns true while the invoice can still receive payments
func (i *Invoice) IsOpen() bool {
	switch i.Status {
	case InvoiceStatusSubmitted, InvoiceStatusUnpaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// HasPeriod reports whether both period bounds are set
func (i *Invoice) HasPeriod() bool {
	return i.PeriodStart != nil && i.PeriodEnd != nil
}
