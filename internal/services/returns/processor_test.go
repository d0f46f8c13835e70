package returns_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocworks/sepa-billing/internal/adapters/logger"
	"github.com/assocworks/sepa-billing/internal/adapters/memory"
	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/services/payment"
	"github.com/assocworks/sepa-billing/internal/services/returns"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

func newProcessor(store *memory.Store) *returns.Processor {
	log := logger.NewNop()
	clock := timeutil.FixedClock{Instant: time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC)}
	poster := payment.NewPoster(store.Invoices(), store.Payments(),
		decimal.NewFromFloat(0.02), clock, log)
	return returns.NewProcessor(memory.NewDB(), store.Payments(), store.Returns(), poster, clock, log)
}

// seedPaidInvoice creates an invoice fully covered by one posted payment
func seedPaidInvoice(t *testing.T, store *memory.Store, invoiceID, memberID string, amount float64) {
	t.Helper()
	total := decimal.NewFromFloat(amount)
	store.SeedInvoice(&models.Invoice{
		ID:          invoiceID,
		MemberID:    memberID,
		PostingDate: timeutil.Date(2026, time.February, 1),
		GrandTotal:  total,
		Outstanding: total,
		Status:      models.InvoiceStatusSubmitted,
		ItemKind:    models.ItemKindMembership,
	})

	log := logger.NewNop()
	clock := timeutil.FixedClock{Instant: time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)}
	poster := payment.NewPoster(store.Invoices(), store.Payments(),
		decimal.NewFromFloat(0.02), clock, log)
	_, err := poster.Post(context.Background(), nil, payment.PostRequest{
		InvoiceID:         invoiceID,
		Amount:            total,
		BankTransactionID: "BT-" + invoiceID,
		BatchID:           "B-" + invoiceID,
	})
	require.NoError(t, err)
}

func TestProcessReversesFailedCollections(t *testing.T) {
	store := memory.NewStore()
	seedPaidInvoice(t, store, "INV-1", "MEM-1", 50)
	seedPaidInvoice(t, store, "INV-2", "MEM-2", 30)
	processor := newProcessor(store)

	file := []byte("member_id,invoice,amount,reason,code\n" +
		"MEM-1,INV-1,50.00,insufficient funds,AM04\n")

	report, err := processor.Process(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reversed)
	assert.Equal(t, 0, report.Skipped)
	require.Len(t, report.Records, 1)
	assert.NotEmpty(t, report.Records[0].ReversalPaymentID)
	assert.Equal(t, "AM04", report.Records[0].ReasonCode)

	// The failed invoice reopened; the unrelated one stayed paid
	inv1, err := store.Invoices().GetByID(context.Background(), nil, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusUnpaid, inv1.Status)
	assert.True(t, inv1.Outstanding.Equal(decimal.NewFromInt(50)))

	inv2, err := store.Invoices().GetByID(context.Background(), nil, "INV-2")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, inv2.Status)
}

func TestProcessSameFileTwice(t *testing.T) {
	store := memory.NewStore()
	seedPaidInvoice(t, store, "INV-1", "MEM-1", 50)
	processor := newProcessor(store)

	file := []byte("member_id,invoice,amount,reason,code\n" +
		"MEM-1,INV-1,50.00,insufficient funds,AM04\n")

	_, err := processor.Process(context.Background(), file)
	require.NoError(t, err)

	_, err = processor.Process(context.Background(), file)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeReturnFileProcessed, domain.GetErrorCode(err))

	// The invoice was reversed exactly once
	inv, err := store.Invoices().GetByID(context.Background(), nil, "INV-1")
	require.NoError(t, err)
	assert.True(t, inv.Outstanding.Equal(decimal.NewFromInt(50)))
}

func TestProcessSkipsAlreadyReversedRow(t *testing.T) {
	store := memory.NewStore()
	seedPaidInvoice(t, store, "INV-1", "MEM-1", 50)
	processor := newProcessor(store)

	// Same failed collection reported in two differently-formatted files
	first := []byte("member_id,invoice,amount,reason,code\n" +
		"MEM-1,INV-1,50.00,insufficient funds,AM04\n")
	second := []byte("member_id,invoice,amount,reason,code\n" +
		"MEM-1,INV-1,50.00,account closed,AC04\n")

	_, err := processor.Process(context.Background(), first)
	require.NoError(t, err)

	report, err := processor.Process(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Reversed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Records, 1)
	assert.NotEmpty(t, report.Records[0].ReversalPaymentID,
		"the notice still references the prior reversal")
}

func TestProcessRowWithoutInvoiceFallsBackToMember(t *testing.T) {
	store := memory.NewStore()
	seedPaidInvoice(t, store, "INV-1", "MEM-1", 50)
	processor := newProcessor(store)

	file := []byte("member_id,amount,code\nMEM-1,50.00,AM04\n")

	report, err := processor.Process(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reversed)
}

func TestProcessUnmatchableRowIsSkipped(t *testing.T) {
	store := memory.NewStore()
	seedPaidInvoice(t, store, "INV-1", "MEM-1", 50)
	processor := newProcessor(store)

	file := []byte("member_id,invoice,amount,reason,code\n" +
		"MEM-9,INV-9,12.34,unknown,AM04\n")

	report, err := processor.Process(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Reversed)
	assert.Equal(t, 1, report.Skipped)
}

func TestProcessMalformedFiles(t *testing.T) {
	processor := newProcessor(memory.NewStore())

	tests := []struct {
		name string
		file string
	}{
		{"missing required column", "invoice,amount,reason\nINV-1,50.00,x\n"},
		{"unparseable amount", "member_id,amount,code\nMEM-1,fifty,AM04\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := processor.Process(context.Background(), []byte(tt.file))
			require.Error(t, err)
			assert.Equal(t, domain.ErrorCodeReturnFileMalformed, domain.GetErrorCode(err))
		})
	}
}

func TestParseRowsHeaderAliases(t *testing.T) {
	file := []byte("Member_ID,Invoice-ID,Amount,Return Reason,Return_Code\n" +
		"MEM-1,INV-1,50.00,insufficient funds,AM04\n")

	rows, err := returns.ParseRows(file)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "MEM-1", rows[0].MemberID)
	assert.Equal(t, "INV-1", rows[0].InvoiceID)
	assert.Equal(t, "AM04", rows[0].ReasonCode)
	assert.Equal(t, "insufficient funds", rows[0].ReasonText)
	assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(50)))
}
