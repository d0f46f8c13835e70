package matcher

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/assocworks/sepa-billing/internal/config"
	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

// Kind is the reconciliation outcome shape
type Kind string

const (
	KindExact   Kind = "exact"   // one batch, full amount
	KindSplit   Kind = "split"   // bank consolidated several batches
	KindPartial Kind = "partial" // one batch, subset of its lines
)

// Candidate is one way the bank transaction can reconcile. Lines and
// residuals are identified by invoice id; ResidualInvoiceIDs of a partial
// candidate are the unmatched lines, the usual suspects for a return file.
type Candidate struct {
	Kind               Kind
	BatchIDs           []string
	LineInvoiceIDs     []string
	Confidence         float64
	ResidualInvoiceIDs []string

	// tie-break metadata
	dateDistance int
	lineCount    int
	oldestBatch  string // batch date, ISO formatted for ordering
}

// Matcher finds the legitimate batch or line subsets whose amounts and
// dates reconcile with a bank transaction. Read-only; it never mutates.
type Matcher struct {
	batches ports.BatchRepository
	cfg     config.Matcher
	logger  ports.Logger
}

// New creates a reconciliation matcher
func New(batches ports.BatchRepository, cfg config.Matcher, logger ports.Logger) *Matcher {
	return &Matcher{batches: batches, cfg: cfg, logger: logger}
}

// Find returns candidates ordered best first. It fails with
// SearchSpaceTooLarge when the subset search exceeds the configured bounds
// and with AmbiguousMatch when two candidates remain indistinguishable
// after all tie-break rules.
func (m *Matcher) Find(ctx context.Context, db ports.DBTX, tx *models.BankTransaction) ([]Candidate, error) {
	date := timeutil.DateOf(tx.Date)
	from := date.AddDate(0, 0, -m.cfg.DateWindowDays)
	to := date.AddDate(0, 0, m.cfg.DateWindowDays)

	window, err := m.batches.ListCollectable(ctx, db, from, to)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list collectable batches", err)
	}

	var candidates []Candidate

	// Step 1: exact batch totals.
	var inexact []*models.DirectDebitBatch
	for _, b := range window {
		if withinTolerance(b.TotalAmount, tx.Deposit, m.cfg.Tolerance) {
			candidates = append(candidates, m.exactCandidate(b, tx))
		} else {
			inexact = append(inexact, b)
		}
	}

	// Step 2: the bank consolidated several batches into one credit.
	// Batches already consumed as exact candidates cannot appear in a
	// multi-batch sum, so the search runs over the Step 1 remainder.
	split, err := m.splitCandidates(inexact, tx)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, split...)

	// Step 3: one batch partially collected; match subsets of its lines.
	partial, err := m.partialCandidates(inexact, tx)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, partial...)

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return lessCandidate(&candidates[a], &candidates[b])
	})
	if len(candidates) > 1 && tied(&candidates[0], &candidates[1]) {
		return nil, domain.ErrAmbiguousMatch.
			WithDetail("bank_transaction", tx.ID).
			WithDetail("candidates", len(candidates)).
			WithDetail("first", strings.Join(candidates[0].BatchIDs, ",")).
			WithDetail("second", strings.Join(candidates[1].BatchIDs, ","))
	}
	return candidates, nil
}

func (m *Matcher) exactCandidate(b *models.DirectDebitBatch, tx *models.BankTransaction) Candidate {
	dist := timeutil.AbsDays(b.BatchDate, tx.Date)
	return Candidate{
		Kind:         KindExact,
		BatchIDs:     []string{b.ID},
		Confidence:   m.confidence(dist),
		dateDistance: dist,
		lineCount:    len(b.Lines),
		oldestBatch:  b.BatchDate.Format("2006-01-02"),
	}
}

// confidence is 1.0 for a same-day match and decreases linearly across the
// date window
func (m *Matcher) confidence(distanceDays int) float64 {
	span := m.cfg.DateWindowDays + 1
	if distanceDays >= span {
		return 0
	}
	return float64(span-distanceDays) / float64(span)
}

func (m *Matcher) splitCandidates(batches []*models.DirectDebitBatch, tx *models.BankTransaction) ([]Candidate, error) {
	if len(batches) < 2 {
		return nil, nil
	}
	if len(batches) > m.cfg.MaxCandidates {
		return nil, domain.ErrSearchSpaceTooLarge.
			WithDetail("bank_transaction", tx.ID).
			WithDetail("candidate_batches", len(batches)).
			WithDetail("max_candidates", m.cfg.MaxCandidates)
	}

	amounts := make([]decimal.Decimal, len(batches))
	for i, b := range batches {
		amounts[i] = b.TotalAmount
	}
	subsets, truncated := subsetSums(amounts, tx.Deposit, m.cfg.Tolerance, 2, m.cfg.MaxSubsets)
	if truncated {
		return nil, domain.ErrSearchSpaceTooLarge.
			WithDetail("bank_transaction", tx.ID).
			WithDetail("max_subsets", m.cfg.MaxSubsets)
	}

	candidates := make([]Candidate, 0, len(subsets))
	for _, subset := range subsets {
		c := Candidate{Kind: KindSplit, Confidence: 1}
		worst := 0
		oldest := ""
		for _, idx := range subset {
			b := batches[idx]
			c.BatchIDs = append(c.BatchIDs, b.ID)
			c.lineCount += len(b.Lines)
			dist := timeutil.AbsDays(b.BatchDate, tx.Date)
			if dist > worst {
				worst = dist
			}
			if d := b.BatchDate.Format("2006-01-02"); oldest == "" || d < oldest {
				oldest = d
			}
		}
		c.dateDistance = worst
		c.Confidence = m.confidence(worst)
		c.oldestBatch = oldest
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (m *Matcher) partialCandidates(batches []*models.DirectDebitBatch, tx *models.BankTransaction) ([]Candidate, error) {
	var candidates []Candidate
	for _, b := range batches {
		// A partial collection is a proper subset; the full batch was
		// handled in step 1.
		if len(b.Lines) < 2 || b.TotalAmount.LessThan(tx.Deposit.Sub(m.cfg.Tolerance)) {
			continue
		}
		amounts := make([]decimal.Decimal, len(b.Lines))
		for i, line := range b.Lines {
			amounts[i] = line.Amount
		}
		subsets, truncated := subsetSums(amounts, tx.Deposit, m.cfg.Tolerance, 1, m.cfg.MaxSubsets)
		if truncated {
			return nil, domain.ErrSearchSpaceTooLarge.
				WithDetail("bank_transaction", tx.ID).
				WithDetail("batch_id", b.ID).
				WithDetail("max_subsets", m.cfg.MaxSubsets)
		}
		dist := timeutil.AbsDays(b.BatchDate, tx.Date)
		for _, subset := range subsets {
			if len(subset) == len(b.Lines) {
				continue
			}
			picked := make(map[int]bool, len(subset))
			for _, idx := range subset {
				picked[idx] = true
			}
			c := Candidate{
				Kind:         KindPartial,
				BatchIDs:     []string{b.ID},
				Confidence:   m.confidence(dist),
				dateDistance: dist,
				lineCount:    len(subset),
				oldestBatch:  b.BatchDate.Format("2006-01-02"),
			}
			for i, line := range b.Lines {
				if picked[i] {
					c.LineInvoiceIDs = append(c.LineInvoiceIDs, line.InvoiceID)
				} else {
					c.ResidualInvoiceIDs = append(c.ResidualInvoiceIDs, line.InvoiceID)
				}
			}
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// kindRank orders exact before split before partial among equal confidence
func kindRank(k Kind) int {
	switch k {
	case KindExact:
		return 0
	case KindSplit:
		return 1
	default:
		return 2
	}
}

func lessCandidate(a, b *Candidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if kindRank(a.Kind) != kindRank(b.Kind) {
		return kindRank(a.Kind) < kindRank(b.Kind)
	}
	// Same-day matches beat matches further out in the window.
	if a.dateDistance != b.dateDistance {
		return a.dateDistance < b.dateDistance
	}
	if a.lineCount != b.lineCount {
		return a.lineCount < b.lineCount
	}
	return a.oldestBatch < b.oldestBatch
}

// tied reports whether both candidates compare equal under every tie-break
// rule; such pairs are ambiguous rather than silently resolved
func tied(a, b *Candidate) bool {
	return a.Confidence == b.Confidence &&
		kindRank(a.Kind) == kindRank(b.Kind) &&
		a.dateDistance == b.dateDistance &&
		a.lineCount == b.lineCount &&
		a.oldestBatch == b.oldestBatch
}
