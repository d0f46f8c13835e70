package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	matchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_match_outcomes_total",
			Help: "Reconciliation outcomes by kind (exact, split, partial, review, none)",
		},
		[]string{"kind"},
	)

	paymentsPostedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_posted_total",
			Help: "Payments posted by kind (receive, refund)",
		},
		[]string{"kind"},
	)

	duplicatesRefusedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicate_postings_refused_total",
			Help: "Postings refused by the duplicate-prevention checks",
		},
		[]string{"code"},
	)

	returnRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "return_file_rows_total",
			Help: "Return file rows by result (reversed, skipped)",
		},
		[]string{"result"},
	)
)

// RecordMatchOutcome counts one reconciliation outcome
func RecordMatchOutcome(kind string) {
	matchOutcomesTotal.WithLabelValues(kind).Inc()
}

// RecordPaymentPosted counts one posted payment
func RecordPaymentPosted(kind string) {
	paymentsPostedTotal.WithLabelValues(kind).Inc()
}

// RecordDuplicateRefused counts one refused duplicate posting
func RecordDuplicateRefused(code string) {
	duplicatesRefusedTotal.WithLabelValues(code).Inc()
}

// RecordReturnRow counts one processed return-file row
func RecordReturnRow(result string) {
	returnRowsTotal.WithLabelValues(result).Inc()
}
