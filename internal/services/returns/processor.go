package returns

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/domain/ports"
	"github.com/assocworks/sepa-billing/internal/services/payment"
	"github.com/assocworks/sepa-billing/pkg/observability"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

// Row is one parsed return-file entry
type Row struct {
	MemberID   string
	InvoiceID  string
	Amount     decimal.Decimal
	ReasonText string
	ReasonCode string
}

// Report summarises one processing run
type Report struct {
	FileHash string
	Reversed int
	Skipped  int
	Records  []*models.ReturnRecord
}

// Processor handles bank return files: failed collections that need their
// payments reversed. Idempotent per file via the SHA-256 content hash, and
// all-or-nothing per row.
type Processor struct {
	db       ports.DBPort
	payments ports.PaymentRepository
	returns  ports.ReturnRepository
	poster   *payment.Poster
	clock    timeutil.Clock
	logger   ports.Logger
}

// NewProcessor creates a return-file processor
func NewProcessor(db ports.DBPort, payments ports.PaymentRepository, returns ports.ReturnRepository, poster *payment.Poster, clock timeutil.Clock, logger ports.Logger) *Processor {
	return &Processor{
		db:       db,
		payments: payments,
		returns:  returns,
		poster:   poster,
		clock:    clock,
		logger:   logger,
	}
}

// Process parses and applies a return file. A file whose hash has been seen
// before fails with ReturnFileAlreadyProcessed and changes nothing.
func (p *Processor) Process(ctx context.Context, fileBytes []byte) (*Report, error) {
	sum := sha256.Sum256(fileBytes)
	hash := hex.EncodeToString(sum[:])

	seen, err := p.returns.ExistsByFileHash(ctx, nil, hash)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "check return file hash", err)
	}
	if seen {
		return nil, domain.ErrReturnFileProcessed.WithDetail("file_hash", hash)
	}

	rows, err := ParseRows(fileBytes)
	if err != nil {
		return nil, err
	}

	report := &Report{FileHash: hash}
	for i, row := range rows {
		if err := p.processRow(ctx, hash, row, report); err != nil {
			return nil, domain.WrapError(domain.GetErrorCode(err), fmt.Sprintf("return row %d", i+1), err)
		}
	}

	p.logger.Info("return file processed",
		ports.String("file_hash", hash),
		ports.Int("rows", len(rows)),
		ports.Int("reversed", report.Reversed),
		ports.Int("skipped", report.Skipped))
	return report, nil
}

// processRow reverses one failed collection inside its own transaction
func (p *Processor) processRow(ctx context.Context, hash string, row Row, report *Report) error {
	return p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		original, err := p.locatePayment(ctx, tx, row)
		if err != nil {
			return err
		}
		if original == nil {
			p.logger.Warn("no payment matches return row, skipping",
				ports.String("member_id", row.MemberID),
				ports.String("invoice_id", row.InvoiceID),
				ports.String("amount", row.Amount.String()))
			report.Skipped++
			observability.RecordReturnRow("skipped")
			return nil
		}

		// A reversal posted by an earlier run (or by hand) makes this row a
		// notice, not a failure.
		prior, err := p.payments.GetReversalOf(ctx, tx, original.ID)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "look up prior reversal", err)
		}
		reversalID := ""
		if prior != nil {
			p.logger.Info("reversal already posted for return row, skipping",
				ports.String("payment_id", original.ID),
				ports.String("reversal_payment_id", prior.ID))
			report.Skipped++
			observability.RecordReturnRow("skipped")
			reversalID = prior.ID
		} else {
			reversal, err := p.poster.PostReversal(ctx, tx, original.ID, row.ReasonCode)
			if err != nil {
				return err
			}
			report.Reversed++
			observability.RecordReturnRow("reversed")
			observability.RecordPaymentPosted("refund")
			reversalID = reversal.ID
		}

		record := &models.ReturnRecord{
			ID:                uuid.New().String(),
			ReturnFileHash:    hash,
			MemberID:          row.MemberID,
			InvoiceID:         row.InvoiceID,
			Amount:            row.Amount,
			ReasonCode:        row.ReasonCode,
			ReasonText:        row.ReasonText,
			ReversalPaymentID: reversalID,
			CreatedAt:         p.clock.Now(),
		}
		if err := p.returns.Create(ctx, tx, record); err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "persist return record", err)
		}
		report.Records = append(report.Records, record)
		return nil
	})
}

// locatePayment finds the non-cancelled receive payment matching the row by
// (member, invoice, amount within tolerance)
func (p *Processor) locatePayment(ctx context.Context, tx ports.DBTX, row Row) (*models.Payment, error) {
	var (
		candidates []*models.Payment
		err        error
	)
	if row.InvoiceID != "" {
		candidates, err = p.payments.ListActiveByInvoice(ctx, tx, row.InvoiceID, models.PaymentKindReceive)
	} else {
		candidates, err = p.payments.ListActiveByMember(ctx, tx, row.MemberID, models.PaymentKindReceive)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "locate payment for return row", err)
	}

	var found *models.Payment
	for _, c := range candidates {
		amount := c.Amount
		if row.InvoiceID != "" {
			amount = c.AllocatedTo(row.InvoiceID)
		}
		if amount.Sub(row.Amount).Abs().LessThanOrEqual(p.poster.Tolerance()) {
			// Prefer the most recent matching payment.
			if found == nil || c.CreatedAt.After(found.CreatedAt) {
				found = c
			}
		}
	}
	return found, nil
}

// expected return-file columns, normalised to lower case without
// separators
var columnAliases = map[string]string{
	"memberid":     "member_id",
	"invoice":      "invoice",
	"invoiceid":    "invoice",
	"amount":       "amount",
	"returnreason": "reason",
	"reason":       "reason",
	"returncode":   "code",
	"reasoncode":   "code",
	"code":         "code",
}

// ParseRows parses the CSV payload of a return file
func ParseRows(fileBytes []byte) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(fileBytes))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeReturnFileMalformed, "read header", err)
	}
	index := map[string]int{}
	for i, col := range header {
		normal := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(col)))
		if name, ok := columnAliases[normal]; ok {
			index[name] = i
		}
	}
	for _, required := range []string{"member_id", "amount", "code"} {
		if _, ok := index[required]; !ok {
			return nil, domain.ErrReturnFileMalformed.WithDetail("missing_column", required)
		}
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeReturnFileMalformed, "read row", err)
		}
		cell := func(name string) string {
			if i, ok := index[name]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}
		amount, err := decimal.NewFromString(cell("amount"))
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeReturnFileMalformed, fmt.Sprintf("parse amount %q", cell("amount")), err)
		}
		rows = append(rows, Row{
			MemberID:   cell("member_id"),
			InvoiceID:  cell("invoice"),
			Amount:     amount,
			ReasonText: cell("reason"),
			ReasonCode: cell("code"),
		})
	}
	return rows, nil
}
