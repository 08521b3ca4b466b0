// Package report exports stored transactions as CSV or XLSX.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-importer/pkg/money"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrFormat is returned for an unknown export format.
var ErrFormat = errors.New("unsupported export format")

// ParseFormat accepts "csv" or "xlsx" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrFormat, s)
}

// Lister reads stored transactions. Both repository stores implement it.
type Lister interface {
	List(ctx context.Context, userID uuid.UUID, f repository.Filter) ([]repository.StoredTransaction, error)
}

// Row is one exported transaction.
type Row struct {
	Date             string `csv:"date"`
	Amount           string `csv:"amount"`
	Currency         string `csv:"currency"`
	CashSource       string `csv:"cash_source"`
	Category         string `csv:"category"`
	Description      string `csv:"description"`
	Counterparty     string `csv:"counterparty"`
	CheckNum         string `csv:"check_num"`
	Type             string `csv:"transaction_type"`
	Class            string `csv:"transaction_class"`
	TargetAmount     string `csv:"target_amount"`
	TargetCashSource string `csv:"target_cash_source"`
	PDFType          string `csv:"pdf_type"`
	ImportID         int64  `csv:"import_id"`

	money *money.Money `csv:"-"`
}

// CategoryTotal sums one category in one currency.
type CategoryTotal struct {
	Category string
	Total    *money.Money
}

// Summary describes a finished export.
type Summary struct {
	Rows       int
	Totals     money.Totals
	ByCategory []CategoryTotal
}

const dateLayout = "2006-01-02 15:04"

// Exporter writes filtered transactions for one user.
type Exporter struct {
	store  Lister
	loc    *time.Location
	logger *slog.Logger
}

// New creates an exporter. Dates are rendered in loc.
func New(store Lister, loc *time.Location, logger *slog.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{store: store, loc: loc, logger: logger}
}

// Export writes the user's transactions matching filter to w.
func (e *Exporter) Export(ctx context.Context, userID uuid.UUID, filter repository.Filter, format Format, w io.Writer) (Summary, error) {
	txs, err := e.store.List(ctx, userID, filter)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list transactions: %w", err)
	}

	rows := e.Rows(txs)
	summary := summarize(rows)

	switch format {
	case FormatCSV:
		err = writeCSV(w, rows)
	case FormatXLSX:
		err = writeXLSX(w, rows, summary)
	default:
		err = fmt.Errorf("%w: %q", ErrFormat, format)
	}
	if err != nil {
		return Summary{}, err
	}

	e.logger.Info("transactions exported",
		slog.String("user_id", userID.String()),
		slog.String("format", string(format)),
		slog.Int("rows", summary.Rows),
	)
	return summary, nil
}

// Rows converts stored transactions to export rows.
func (e *Exporter) Rows(txs []repository.StoredTransaction) []Row {
	rows := make([]Row, 0, len(txs))
	for _, tx := range txs {
		m := money.FromDecimal(tx.Amount, tx.Currency)
		rows = append(rows, Row{
			Date:             tx.TransactionDate.In(e.loc).Format(dateLayout),
			Amount:           m.String(),
			Currency:         m.Currency(),
			CashSource:       tx.CashSource,
			Category:         tx.Category,
			Description:      tx.Description,
			Counterparty:     tx.Counterparty,
			CheckNum:         tx.CheckNum,
			Type:             tx.TransactionType,
			Class:            tx.TransactionClass,
			TargetAmount:     deref(tx.TargetAmount),
			TargetCashSource: deref(tx.TargetCashSource),
			PDFType:          tx.PDFType,
			ImportID:         tx.ImportID,
			money:            m,
		})
	}
	return rows
}

func summarize(rows []Row) Summary {
	s := Summary{Rows: len(rows), Totals: money.Totals{}}
	byCat := map[string]money.Totals{}
	for _, r := range rows {
		d := r.money.Decimal()
		s.Totals.Add(d, r.Currency)
		if byCat[r.Category] == nil {
			byCat[r.Category] = money.Totals{}
		}
		byCat[r.Category].Add(d, r.Currency)
	}

	cats := make([]string, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		for _, code := range byCat[c].Codes() {
			s.ByCategory = append(s.ByCategory, CategoryTotal{Category: c, Total: byCat[c][code]})
		}
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
