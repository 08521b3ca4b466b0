package service

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/classifier"
	"github.com/FACorreiaa/statement-importer/internal/domain/import/repository"
)

// duplicatePreview caps how many duplicates are written to the log.
const duplicatePreview = 5

// IngestOptions controls one batch.
type IngestOptions struct {
	// BypassDuplicateCheck treats every candidate as new. Meant for bulk backfills.
	BypassDuplicateCheck bool
}

// Duplicate identifies a candidate that matched a stored transaction.
type Duplicate struct {
	TransactionDate time.Time
	CashSource      string
	Amount          decimal.Decimal
	Description     string
}

// IngestStats reports one batch.
type IngestStats struct {
	New           int
	Duplicates    int
	DuplicateList []Duplicate
	ImportID      int64
}

// Ingest stores one import batch for userID: oldest first, one shared import
// id, duplicates on (date, cash source, amount) skipped. The batch commits or
// rolls back as a whole; a transient store failure is retried once.
func (s *ImportService) Ingest(ctx context.Context, userID uuid.UUID, txs []classifier.Transaction, opts IngestOptions) (IngestStats, error) {
	var stats IngestStats
	err := s.step(ctx, StageIngest, func(ctx context.Context, span trace.Span) error {
		backoff := retry.WithMaxRetries(1, retry.NewConstant(s.retryDelay))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			var err error
			stats, err = s.ingestOnce(ctx, userID, txs, opts)
			if err != nil && ctx.Err() == nil && repository.Transient(err) {
				s.logger.Warn("transient store failure, retrying batch", slog.Any("error", err))
				return retry.RetryableError(err)
			}
			return err
		})
		span.SetAttributes(
			attribute.Int64("import_id", stats.ImportID),
			attribute.Int("new", stats.New),
			attribute.Int("duplicates", stats.Duplicates),
		)
		return err
	})
	if err != nil {
		return IngestStats{}, err
	}

	s.metrics.Ingested(stats.New, stats.Duplicates)
	s.logDuplicates(userID, stats)
	return stats, nil
}

func (s *ImportService) ingestOnce(ctx context.Context, userID uuid.UUID, txs []classifier.Transaction, opts IngestOptions) (IngestStats, error) {
	sorted := slices.Clone(txs)
	slices.SortStableFunc(sorted, func(a, b classifier.Transaction) int {
		return a.TransactionDate.Compare(b.TransactionDate)
	})

	var stats IngestStats
	err := s.store.InBatch(ctx, userID, func(ctx context.Context, b repository.Batch) error {
		id, err := b.AllocateImportID(ctx)
		if err != nil {
			return err
		}

		createdAt := s.now()
		staged := make([]repository.NewTransaction, 0, len(sorted))
		var dups []Duplicate
		for _, tx := range sorted {
			if !opts.BypassDuplicateCheck {
				dup, err := b.FindDuplicate(ctx, userID, tx.TransactionDate, tx.CashSource, tx.Amount)
				if err != nil {
					return err
				}
				if dup {
					dups = append(dups, Duplicate{
						TransactionDate: tx.TransactionDate,
						CashSource:      tx.CashSource,
						Amount:          tx.Amount,
						Description:     tx.Description,
					})
					continue
				}
			}
			tx.ImportID = id
			staged = append(staged, repository.NewTransaction{Transaction: tx, UserID: userID, CreatedAt: createdAt})
		}

		if err := b.BulkInsert(ctx, staged); err != nil {
			return err
		}
		stats = IngestStats{New: len(staged), Duplicates: len(dups), DuplicateList: dups, ImportID: id}
		return nil
	})
	return stats, err
}

func (s *ImportService) logDuplicates(userID uuid.UUID, stats IngestStats) {
	if stats.Duplicates == 0 {
		return
	}
	preview := stats.DuplicateList[:min(duplicatePreview, len(stats.DuplicateList))]
	attrs := make([]any, 0, len(preview))
	for i, d := range preview {
		attrs = append(attrs, slog.Group(
			"dup_"+strconv.Itoa(i+1),
			slog.Time("date", d.TransactionDate),
			slog.String("cash_source", d.CashSource),
			slog.String("amount", d.Amount.String()),
		))
	}
	s.logger.Info("duplicate transactions skipped",
		slog.String("user_id", userID.String()),
		slog.Int64("import_id", stats.ImportID),
		slog.Int("duplicates", stats.Duplicates),
		slog.Group("preview", attrs...),
	)
}
