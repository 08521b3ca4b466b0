package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/classifier"
	"github.com/FACorreiaa/statement-importer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

// ImportRequest describes one statement import.
type ImportRequest struct {
	UserID uuid.UUID
	Path   string
	// Overrides is the free-text per-import settings block, see classifier.ParseOverrides.
	Overrides            string
	BypassDuplicateCheck bool
}

// ImportResult summarizes a processed statement.
type ImportResult struct {
	Type         string
	Ambiguous    []string
	Normalize    normalizer.Stats
	Dropped      int
	Transactions []classifier.Transaction
	Ingest       IngestStats
	Persisted    bool
}

// ImportFile runs the whole pipeline for one document on its own goroutine.
// When ctx ends first the caller gets ErrTimeout (or the context error) and
// whatever the goroutine was doing is abandoned; an open store batch is
// rolled back by the cancelled context.
func (s *ImportService) ImportFile(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	return s.runAsync(ctx, req, true)
}

// DryRun runs detection through classification without touching the store.
func (s *ImportService) DryRun(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	return s.runAsync(ctx, req, false)
}

type outcome struct {
	res *ImportResult
	err error
}

func (s *ImportService) runAsync(ctx context.Context, req ImportRequest, persist bool) (*ImportResult, error) {
	var reached atomic.Value
	reached.Store(StageDetect)

	done := make(chan outcome, 1)
	go func() {
		res, err := s.run(ctx, req, persist, &reached)
		done <- outcome{res: res, err: err}
	}()

	return s.await(ctx, req, done, &reached)
}

// await waits for the pipeline goroutine or ctx. A result that is already
// waiting when ctx ends wins, so a committed batch is never reported as timed out.
func (s *ImportService) await(ctx context.Context, req ImportRequest, done <-chan outcome, reached *atomic.Value) (*ImportResult, error) {
	select {
	case o := <-done:
		s.recordDocument(o.err)
		return o.res, o.err
	case <-ctx.Done():
		select {
		case o := <-done:
			s.recordDocument(o.err)
			return o.res, o.err
		default:
		}
		stage := reached.Load().(Stage)
		err := &StageError{Stage: stage, Err: ctx.Err()}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err.Err = fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		s.logger.Warn("import abandoned",
			slog.String("path", req.Path),
			slog.String("stage", string(stage)),
			slog.Any("error", ctx.Err()),
		)
		s.recordDocument(err)
		return nil, err
	}
}

func (s *ImportService) run(ctx context.Context, req ImportRequest, persist bool, reached *atomic.Value) (*ImportResult, error) {
	overrides, err := classifier.ParseOverrides(req.Overrides)
	if err != nil {
		return nil, &StageError{Stage: StageClassify, Err: err}
	}
	cfg, err := s.config()
	if err != nil {
		return nil, &StageError{Stage: StageDetect, Err: err}
	}

	rows, det, err := s.detectAndExtract(ctx, cfg, req.Path, func(st Stage) { reached.Store(st) })
	if err != nil {
		return nil, err
	}
	res := &ImportResult{Type: det.Tag, Ambiguous: det.Ambiguous}

	reached.Store(StageNormalize)
	records, stats, err := s.normalize(ctx, cfg, rows, det.Tag)
	if err != nil {
		return nil, err
	}
	res.Normalize = stats

	reached.Store(StageClassify)
	classified, err := s.classify(ctx, cfg, records, det.Tag, overrides)
	if err != nil {
		return nil, err
	}
	res.Dropped = classified.Dropped
	res.Transactions = classified.Transactions

	if !persist {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageIngest, Err: err}
	}

	reached.Store(StageIngest)
	res.Ingest, err = s.Ingest(ctx, req.UserID, classified.Transactions, IngestOptions{
		BypassDuplicateCheck: req.BypassDuplicateCheck,
	})
	if err != nil {
		return nil, err
	}
	res.Persisted = true

	s.logger.Info("statement imported",
		slog.String("user_id", req.UserID.String()),
		slog.String("type", res.Type),
		slog.Int64("import_id", res.Ingest.ImportID),
		slog.Int("new", res.Ingest.New),
		slog.Int("duplicates", res.Ingest.Duplicates),
		slog.Int("dropped", res.Dropped),
	)
	return res, nil
}

func (s *ImportService) recordDocument(err error) {
	if err == nil {
		s.metrics.Document(string(StageIngest), "ok")
		return
	}
	var se *StageError
	if errors.As(err, &se) {
		s.metrics.Document(string(se.Stage), "failed")
		return
	}
	s.metrics.Document("unknown", "failed")
}

// Summary renders the one-line, user-facing outcome of an import.
func Summary(res *ImportResult, err error) string {
	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			return fmt.Sprintf("Import failed: %v", err)
		}
		switch {
		case errors.Is(err, ErrTimeout):
			return fmt.Sprintf("Import timed out during the %s stage.", se.Stage)
		case errors.Is(err, patterns.ErrConfig):
			return fmt.Sprintf("Import failed at the %s stage: the pattern configuration is invalid.", se.Stage)
		default:
			return fmt.Sprintf("Import failed at the %s stage: %v", se.Stage, se.Err)
		}
	}

	var b strings.Builder
	if res.Persisted {
		fmt.Fprintf(&b, "Imported %d new transaction(s), skipped %d duplicate(s)", res.Ingest.New, res.Ingest.Duplicates)
	} else {
		fmt.Fprintf(&b, "Recognized %d transaction(s)", len(res.Transactions))
	}
	fmt.Fprintf(&b, " from a %s statement", res.Type)
	if skipped := res.Dropped + res.Normalize.Truncated + res.Normalize.Malformed; skipped > 0 {
		fmt.Fprintf(&b, "; %d row(s) could not be read", skipped)
	}
	b.WriteString(".")
	return b.String()
}
