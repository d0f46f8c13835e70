package period

import (
	"context"
	"strings"
	"time"

	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

// Relation classifies how a candidate period relates to an existing one
type Relation string

const (
	RelationNone         Relation = "none"
	RelationExact        Relation = "exact"
	RelationContained    Relation = "contained"
	RelationContains     Relation = "contains"
	RelationPartialEnd   Relation = "partial_end"
	RelationPartialStart Relation = "partial_start"
)

// Conflict names one existing invoice whose period overlaps the candidate
type Conflict struct {
	InvoiceID     string
	Relation      Relation
	ExistingStart time.Time
	ExistingEnd   time.Time
}

// CheckResult reports the overlap verdict for one candidate period
type CheckResult struct {
	HasOverlap bool
	Conflicts  []Conflict
}

// Registry answers whether a member already holds a membership invoice
// covering an overlapping period. Read-only; it never mutates.
type Registry struct {
	invoices ports.InvoiceRepository
	tokens   []string
	logger   ports.Logger
}

// NewRegistry creates a period registry. tokens are the configured
// case-insensitive substrings that mark a line as a membership line.
func NewRegistry(invoices ports.InvoiceRepository, tokens []string, logger ports.Logger) *Registry {
	lowered := make([]string, len(tokens))
	for i, t := range tokens {
		lowered[i] = strings.ToLower(t)
	}
	return &Registry{invoices: invoices, tokens: lowered, logger: logger}
}

// Overlaps reports whether two closed day intervals intersect.
// Adjacent intervals (aEnd+1 == bStart) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !timeutil.DateOf(aStart).After(timeutil.DateOf(bEnd)) &&
		!timeutil.DateOf(bStart).After(timeutil.DateOf(aEnd))
}

// Classify returns the relation of candidate [s, e] to existing [es, ee]
func Classify(s, e, es, ee time.Time) Relation {
	s, e = timeutil.DateOf(s), timeutil.DateOf(e)
	es, ee = timeutil.DateOf(es), timeutil.DateOf(ee)

	if !Overlaps(s, e, es, ee) {
		return RelationNone
	}
	switch {
	case s.Equal(es) && e.Equal(ee):
		return RelationExact
	case !es.After(s) && !e.After(ee):
		return RelationContained
	case !s.After(es) && !ee.After(e):
		return RelationContains
	case s.Before(es) && !es.After(e) && e.Before(ee):
		return RelationPartialEnd
	default:
		return RelationPartialStart
	}
}

// Check reports every existing membership invoice of the member whose
// period overlaps [s, e]. Side-effect free.
func (r *Registry) Check(ctx context.Context, db ports.DBTX, memberID string, s, e time.Time) (*CheckResult, error) {
	if timeutil.DateOf(s).After(timeutil.DateOf(e)) {
		return nil, domain.ErrInvalidInterval.
			WithDetail("member_id", memberID).
			WithDetail("period_start", s.Format("2006-01-02")).
			WithDetail("period_end", e.Format("2006-01-02"))
	}

	existing, err := r.invoices.ListMembershipByMember(ctx, db, memberID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list membership invoices", err)
	}

	result := &CheckResult{}
	for _, inv := range existing {
		if inv.Status == models.InvoiceStatusCancelled {
			continue
		}
		if !r.IsMembershipInvoice(inv) {
			continue
		}
		es, ee := EffectivePeriod(inv)
		// Relation is reported from the existing invoice's point of view:
		// partial_end means the existing period ends inside the candidate.
		rel := Classify(es, ee, s, e)
		if rel == RelationNone {
			continue
		}
		result.HasOverlap = true
		result.Conflicts = append(result.Conflicts, Conflict{
			InvoiceID:     inv.ID,
			Relation:      rel,
			ExistingStart: es,
			ExistingEnd:   ee,
		})
	}
	return result, nil
}

// IsMembershipInvoice reports whether the invoice counts as a membership
// line: either typed as such, or its description matches a configured token
func (r *Registry) IsMembershipInvoice(inv *models.Invoice) bool {
	if inv.ItemKind == models.ItemKindMembership {
		return true
	}
	desc := strings.ToLower(inv.Description)
	for _, token := range r.tokens {
		if strings.Contains(desc, token) {
			return true
		}
	}
	return false
}

// EffectivePeriod returns the invoice's coverage interval, falling back to
// the posting date's enclosing month when the period fields are unset
func EffectivePeriod(inv *models.Invoice) (time.Time, time.Time) {
	if inv.HasPeriod() {
		return timeutil.DateOf(*inv.PeriodStart), timeutil.DateOf(*inv.PeriodEnd)
	}
	return timeutil.FirstOfMonth(inv.PostingDate), timeutil.LastOfMonth(inv.PostingDate)
}
