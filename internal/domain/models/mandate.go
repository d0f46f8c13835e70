package models

import "time"

// MandateStatus represents the state of a SEPA mandate
type MandateStatus string

const (
	MandateStatusActive  MandateStatus = "active"
	MandateStatusRevoked MandateStatus = "revoked"
)

// Mandate is a standing authorisation from a member permitting direct
// debits from one bank account
type Mandate struct {
	ID               string
	MemberID         string
	IBAN             string
	Status           MandateStatus
	UsedForDues      bool
	UsedForDonations bool
	SignedAt         time.Time
	CreatedAt        time.Time
}

// IsActive returns true while the mandate authorises new collections
func (m *Mandate) IsActive() bool {
	return m.Status == MandateStatusActive
}

// Member identity as the core sees it. The member record itself lives in
// the CRM; the core only carries ids and a display name for diagnostics.
type Member struct {
	ID          string
	DisplayName string
}
