package guard

import (
	"context"
	"time"

	"github.com/assocworks/sepa-billing/internal/config"
	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
	"github.com/assocworks/sepa-billing/internal/services/period"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

// defaultMembershipType is backfilled onto invoices that predate period
// tracking
const defaultMembershipType = "standard"

// LineConflict reports the overlaps found for one batch line
type LineConflict struct {
	InvoiceID string
	MemberID  string
	Conflicts []period.Conflict
}

// BatchReport is the outcome of validating one batch assembly
type BatchReport struct {
	BatchID   string
	Checked   int
	Conflicts []LineConflict
}

// HasConflicts reports whether any line failed the period check
func (r *BatchReport) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// Guard is the two-layer defence against double invoicing: it validates
// membership periods before an invoice is created and again before a batch
// is assembled, because invoices may be created by paths outside this
// service's control.
type Guard struct {
	registry *period.Registry
	invoices ports.InvoiceRepository
	batches  ports.BatchRepository
	mandates ports.MandateRepository
	mode     config.GuardMode
	logger   ports.Logger
}

// New creates an invoicing guard
func New(registry *period.Registry, invoices ports.InvoiceRepository, batches ports.BatchRepository, mandates ports.MandateRepository, mode config.GuardMode, logger ports.Logger) *Guard {
	return &Guard{
		registry: registry,
		invoices: invoices,
		batches:  batches,
		mandates: mandates,
		mode:     mode,
		logger:   logger,
	}
}

// Mode returns the configured overlap handling mode
func (g *Guard) Mode() config.GuardMode {
	return g.mode
}

// ValidateBeforeCreate must run before any membership invoice is created.
// In strict mode an overlap fails with PeriodDuplicate naming the first
// conflicting invoice; in warn mode the overlap is logged and the annotated
// result returned to the caller.
func (g *Guard) ValidateBeforeCreate(ctx context.Context, db ports.DBTX, memberID string, s, e time.Time) (*period.CheckResult, error) {
	result, err := g.registry.Check(ctx, db, memberID, s, e)
	if err != nil {
		return nil, err
	}
	if !result.HasOverlap {
		return result, nil
	}

	first := result.Conflicts[0]
	if g.mode == config.GuardModeStrict {
		return result, domain.ErrPeriodDuplicate.
			WithDetail("member_id", memberID).
			WithDetail("conflicting_invoice", first.InvoiceID).
			WithDetail("relation", string(first.Relation)).
			WithDetail("existing_period_start", first.ExistingStart.Format("2006-01-02")).
			WithDetail("existing_period_end", first.ExistingEnd.Format("2006-01-02"))
	}

	g.logger.Warn("membership period overlap allowed in warn mode",
		ports.String("member_id", memberID),
		ports.String("conflicting_invoice", first.InvoiceID),
		ports.String("relation", string(first.Relation)),
		ports.Date("period_start", s),
		ports.Date("period_end", e))
	return result, nil
}

// ValidateBatchAssembly checks that every line's member holds an active
// mandate and re-checks every membership line against the period registry.
// The report lists all period conflicts; in strict mode a conflicted batch
// fails with BatchHasPeriodConflicts. A missing mandate fails in either
// mode.
func (g *Guard) ValidateBatchAssembly(ctx context.Context, db ports.DBTX, batchID string) (*BatchReport, error) {
	batch, err := g.batches.GetByID(ctx, db, batchID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "load batch", err)
	}
	if batch == nil {
		return nil, domain.ErrBatchNotFound.WithDetail("batch_id", batchID)
	}

	report := &BatchReport{BatchID: batchID}
	mandateChecked := map[string]bool{}
	for _, line := range batch.Lines {
		if line.MemberID != "" && !mandateChecked[line.MemberID] {
			mandate, err := g.mandates.GetActiveByMember(ctx, db, line.MemberID)
			if err != nil {
				return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "load mandate", err)
			}
			if mandate == nil {
				return report, domain.ErrMandateNotActive.
					WithDetail("batch_id", batchID).
					WithDetail("member_id", line.MemberID).
					WithDetail("invoice_id", line.InvoiceID)
			}
			mandateChecked[line.MemberID] = true
		}

		invoice, err := g.invoices.GetByID(ctx, db, line.InvoiceID)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "load invoice", err)
		}
		if invoice == nil {
			return nil, domain.ErrInvoiceNotFound.
				WithDetail("invoice_id", line.InvoiceID).
				WithDetail("batch_id", batchID)
		}
		if !g.registry.IsMembershipInvoice(invoice) {
			continue
		}

		report.Checked++
		s, e := period.EffectivePeriod(invoice)
		result, err := g.registry.Check(ctx, db, invoice.MemberID, s, e)
		if err != nil {
			return nil, err
		}

		// The invoice trivially overlaps itself; the conflict we care
		// about is any other invoice covering the same days.
		var others []period.Conflict
		for _, c := range result.Conflicts {
			if c.InvoiceID != invoice.ID {
				others = append(others, c)
			}
		}
		if len(others) > 0 {
			report.Conflicts = append(report.Conflicts, LineConflict{
				InvoiceID: invoice.ID,
				MemberID:  invoice.MemberID,
				Conflicts: others,
			})
		}
	}

	if report.HasConflicts() && g.mode == config.GuardModeStrict {
		return report, domain.ErrBatchPeriodConflicts.
			WithDetail("batch_id", batchID).
			WithDetail("conflicted_lines", len(report.Conflicts))
	}
	if report.HasConflicts() {
		g.logger.Warn("batch assembled with period conflicts in warn mode",
			ports.String("batch_id", batchID),
			ports.Int("conflicted_lines", len(report.Conflicts)))
	}
	return report, nil
}

// EnsureInvoicePeriodFields backfills period_start/period_end on a
// membership invoice that predates period tracking. Idempotent: invoices
// that already carry a period are left untouched.
func (g *Guard) EnsureInvoicePeriodFields(ctx context.Context, tx ports.DBTX, invoice *models.Invoice) error {
	if !g.registry.IsMembershipInvoice(invoice) || invoice.HasPeriod() {
		return nil
	}

	start := timeutil.FirstOfMonth(invoice.PostingDate)
	end := timeutil.LastOfMonth(invoice.PostingDate)
	membershipType := invoice.MembershipType
	if membershipType == "" {
		membershipType = defaultMembershipType
	}

	if err := g.invoices.UpdatePeriodFields(ctx, tx, invoice.ID, start, end, membershipType); err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "backfill period fields", err)
	}
	invoice.PeriodStart = &start
	invoice.PeriodEnd = &end
	invoice.MembershipType = membershipType

	g.logger.Info("backfilled invoice period fields",
		ports.String("invoice_id", invoice.ID),
		ports.Date("period_start", start),
		ports.Date("period_end", end))
	return nil
}
