package models

import "time"

// BillingFrequency is how often a membership is invoiced
type BillingFrequency string

const (
	FrequencyMonthly   BillingFrequency = "monthly"
	FrequencyQuarterly BillingFrequency = "quarterly"
	FrequencyYearly    BillingFrequency = "yearly"
)

// BillingPeriod is one closed calendar interval a membership invoice covers.
// Derived, never persisted.
type BillingPeriod struct {
	MemberID    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Frequency   BillingFrequency
}

// Months returns the calendar length of one period at this frequency
func (f BillingFrequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencyYearly:
		return 12
	}
	return 0
}

// PeriodsPerYear returns how many periods cover a 12-month horizon
func (f BillingFrequency) PeriodsPerYear() int {
	if m := f.Months(); m > 0 {
		return 12 / m
	}
	return 0
}
