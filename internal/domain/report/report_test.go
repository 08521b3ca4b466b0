package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/classifier"
	"github.com/FACorreiaa/statement-importer/internal/domain/import/repository"
)

type fakeLister struct {
	txs    []repository.StoredTransaction
	err    error
	filter repository.Filter
}

func (f *fakeLister) List(_ context.Context, _ uuid.UUID, filter repository.Filter) ([]repository.StoredTransaction, error) {
	f.filter = filter
	return f.txs, f.err
}

func stored(at time.Time, amount, category, description string) repository.StoredTransaction {
	return repository.StoredTransaction{
		Transaction: classifier.Transaction{
			TransactionDate:  at,
			Amount:           decimal.RequireFromString(amount),
			Currency:         "₽",
			CashSource:       "Тинькофф",
			Category:         category,
			Description:      description,
			TransactionType:  "expense",
			TransactionClass: "card",
			PDFType:          "tbank_card",
			ImportID:         3,
		},
	}
}

func sample() []repository.StoredTransaction {
	at := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	transfer := stored(at.Add(2*time.Hour), "-1000", "Переводы", "Перевод между счетами")
	target := "1000 ₽"
	transfer.TargetAmount = &target
	return []repository.StoredTransaction{
		stored(at, "-349.90", "Еда", "PYATEROCHKA 1234"),
		stored(at.Add(time.Hour), "-57", "Транспорт", "МЕТРОПОЛИТЕН"),
		stored(at.Add(90*time.Minute), "-100.10", "Еда", "PEREKRESTOK"),
		transfer,
	}
}

func newExporter(l Lister) *Exporter {
	msk := time.FixedZone("MSK", 3*60*60)
	return New(l, msk, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{" XLSX ", FormatXLSX, false},
		{"pdf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExport_CSV(t *testing.T) {
	lister := &fakeLister{txs: sample()}
	filter := repository.Filter{Category: "Еда", ImportID: 3}

	var buf bytes.Buffer
	summary, err := newExporter(lister).Export(context.Background(), uuid.New(), filter, FormatCSV, &buf)
	require.NoError(t, err)
	assert.Equal(t, filter, lister.filter)
	assert.Equal(t, 4, summary.Rows)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "date,amount,currency,cash_source,category"))
	assert.Contains(t, lines[1], "2024-02-01 12:30,-349.90,RUB,")
	assert.Contains(t, lines[4], "1000 ₽")
}

func TestExport_Totals(t *testing.T) {
	summary, err := newExporter(&fakeLister{txs: sample()}).Export(context.Background(), uuid.New(), repository.Filter{}, FormatCSV, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "-1507.00", summary.Totals["RUB"].String())
	require.Len(t, summary.ByCategory, 3)
	assert.Equal(t, "Еда", summary.ByCategory[0].Category)
	assert.Equal(t, "-450.00", summary.ByCategory[0].Total.String())
}

func TestExport_XLSX(t *testing.T) {
	var buf bytes.Buffer
	_, err := newExporter(&fakeLister{txs: sample()}).Export(context.Background(), uuid.New(), repository.Filter{}, FormatXLSX, &buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{transactionsSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(transactionsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "МЕТРОПОЛИТЕН", rows[2][5])

	totals, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Total", "RUB", "-1507.00"}, totals[len(totals)-1])
}

func TestExport_Errors(t *testing.T) {
	boom := errors.New("db down")
	_, err := newExporter(&fakeLister{err: boom}).Export(context.Background(), uuid.New(), repository.Filter{}, FormatCSV, io.Discard)
	assert.ErrorIs(t, err, boom)

	_, err = newExporter(&fakeLister{}).Export(context.Background(), uuid.New(), repository.Filter{}, Format("pdf"), io.Discard)
	assert.ErrorIs(t, err, ErrFormat)
}
