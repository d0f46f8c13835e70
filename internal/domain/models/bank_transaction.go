package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankTransaction is an inbound credit on the organisation's bank account.
// Deposit is never negative; debits arrive through return files instead.
type BankTransaction struct {
	ID              string
	Date            time.Time
	Description     string
	Deposit         decimal.Decimal
	BankAccount     string
	MatchedBatchIDs []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsMatchedTo reports whether the batch has already been recorded against
// this transaction
func (t *BankTransaction) IsMatchedTo(batchID string) bool {
	for _, id := range t.MatchedBatchIDs {
		if id == batchID {
			return true
		}
	}
	return false
}
