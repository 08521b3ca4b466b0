// Package service provides the import orchestration logic: detect and extract,
// normalize, classify and ingest one statement per call.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/classifier"
	"github.com/FACorreiaa/statement-importer/internal/domain/import/detector"
	"github.com/FACorreiaa/statement-importer/internal/domain/import/extractor"
	"github.com/FACorreiaa/statement-importer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
	"github.com/FACorreiaa/statement-importer/pkg/metrics"
)

// Stage names a pipeline step.
type Stage string

const (
	StageDetect    Stage = "detect"
	StageExtract   Stage = "extract"
	StageNormalize Stage = "normalize"
	StageClassify  Stage = "classify"
	StageIngest    Stage = "ingest"
)

var (
	// ErrUnknownType is returned when a type tag is not in the loaded pattern config.
	ErrUnknownType = errors.New("unknown statement type tag")
	// ErrTimeout is returned by ImportFile when its context expires first.
	ErrTimeout = errors.New("import timed out")
)

// StageError names the step a document failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PatternSource hands out the current pattern config. *patterns.Cache implements it.
type PatternSource interface {
	Get(path string) (*patterns.Config, error)
}

// PDFExtractor reads statement files. *extractor.Extractor implements it.
type PDFExtractor interface {
	FirstPageText(path string) (string, error)
	Extract(path string, layout *patterns.TypeLayout) ([]extractor.Row, error)
}

// Options tune an ImportService.
type Options struct {
	PatternPath string
	Location    *time.Location
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
	// RetryDelay is the pause before the single retry of a transient store failure.
	RetryDelay time.Duration
}

// ImportService orchestrates the statement pipeline
type ImportService struct {
	patterns    PatternSource
	patternPath string
	extractor   PDFExtractor
	detector    *detector.Detector
	store       repository.Store
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	loc         *time.Location
	retryDelay  time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu         sync.Mutex
	classified *patterns.Config
	classifier *classifier.Classifier
}

// NewImportService creates a new import service
func NewImportService(src PatternSource, ext PDFExtractor, store repository.Store, opts Options, logger *slog.Logger) *ImportService {
	s := &ImportService{
		patterns:    src,
		patternPath: opts.PatternPath,
		extractor:   ext,
		detector:    detector.New(logger),
		store:       store,
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
		loc:         opts.Location,
		retryDelay:  opts.RetryDelay,
		now:         time.Now,
		logger:      logger,
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/FACorreiaa/statement-importer/import")
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.retryDelay <= 0 {
		s.retryDelay = 100 * time.Millisecond
	}
	return s
}

func (s *ImportService) config() (*patterns.Config, error) {
	cfg, err := s.patterns.Get(s.patternPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern config: %w", err)
	}
	return cfg, nil
}

// classifierFor reuses the compiled classifier while the config snapshot is unchanged.
func (s *ImportService) classifierFor(cfg *patterns.Config) *classifier.Classifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.classified != cfg {
		s.classified = cfg
		s.classifier = classifier.New(cfg, s.logger).WithLocation(s.loc)
	}
	return s.classifier
}

func layoutFor(cfg *patterns.Config, tag string) (*patterns.TypeLayout, error) {
	layout, ok := cfg.Type(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	return layout, nil
}

// step runs fn inside a span, times it and wraps a failure in a StageError.
func (s *ImportService) step(ctx context.Context, stage Stage, fn func(ctx context.Context, span trace.Span) error) error {
	ctx, span := s.tracer.Start(ctx, "import."+string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx, span)
	s.metrics.ObserveStage(string(stage), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var se *StageError
		if errors.As(err, &se) {
			return err
		}
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// DetectAndExtract identifies the statement type from the first page and
// extracts the rows of the whole document.
func (s *ImportService) DetectAndExtract(ctx context.Context, path string) ([]extractor.Row, string, error) {
	cfg, err := s.config()
	if err != nil {
		return nil, "", &StageError{Stage: StageDetect, Err: err}
	}
	rows, det, err := s.detectAndExtract(ctx, cfg, path, func(Stage) {})
	return rows, det.Tag, err
}

func (s *ImportService) detectAndExtract(ctx context.Context, cfg *patterns.Config, path string, mark func(Stage)) ([]extractor.Row, detector.Result, error) {
	var det detector.Result
	err := s.step(ctx, StageDetect, func(_ context.Context, span trace.Span) error {
		text, err := s.extractor.FirstPageText(path)
		if err != nil {
			return &StageError{Stage: StageExtract, Err: err}
		}
		det, err = s.detector.Detect(text, cfg)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String("statement.type", det.Tag))
		return nil
	})
	if err != nil {
		return nil, det, err
	}
	if err := ctx.Err(); err != nil {
		return nil, det, &StageError{Stage: StageExtract, Err: err}
	}

	layout, err := layoutFor(cfg, det.Tag)
	if err != nil {
		return nil, det, &StageError{Stage: StageDetect, Err: err}
	}

	mark(StageExtract)
	var rows []extractor.Row
	err = s.step(ctx, StageExtract, func(_ context.Context, span trace.Span) error {
		var err error
		rows, err = s.extractor.Extract(path, layout)
		span.SetAttributes(attribute.Int("rows", len(rows)))
		return err
	})
	if err != nil {
		return nil, det, err
	}
	return rows, det, nil
}

// Normalize rebuilds logical records from raw rows of the given type.
func (s *ImportService) Normalize(ctx context.Context, rows []extractor.Row, tag string) ([]normalizer.Record, normalizer.Stats, error) {
	cfg, err := s.config()
	if err != nil {
		return nil, normalizer.Stats{}, &StageError{Stage: StageNormalize, Err: err}
	}
	return s.normalize(ctx, cfg, rows, tag)
}

func (s *ImportService) normalize(ctx context.Context, cfg *patterns.Config, rows []extractor.Row, tag string) ([]normalizer.Record, normalizer.Stats, error) {
	var (
		records []normalizer.Record
		stats   normalizer.Stats
	)
	err := s.step(ctx, StageNormalize, func(_ context.Context, span trace.Span) error {
		layout, err := layoutFor(cfg, tag)
		if err != nil {
			return err
		}
		records, stats, err = normalizer.Normalize(rows, layout)
		span.SetAttributes(
			attribute.Int("records", stats.Records),
			attribute.Int("truncated", stats.Truncated),
		)
		return err
	})
	if err != nil {
		return nil, stats, err
	}

	s.metrics.Dropped("truncated", stats.Truncated)
	s.metrics.Dropped("malformed", stats.Malformed)
	if stats.Truncated > 0 || stats.Malformed > 0 || stats.Orphaned > 0 {
		s.logger.Warn("records skipped during normalization",
			slog.String("type", tag),
			slog.Int("truncated", stats.Truncated),
			slog.Int("malformed", stats.Malformed),
			slog.Int("orphaned", stats.Orphaned),
		)
	}
	return records, stats, nil
}

// Classify maps records of the given type onto transactions. Unparseable rows
// are dropped and counted, never returned as an error.
func (s *ImportService) Classify(ctx context.Context, records []normalizer.Record, tag string, overrides []classifier.Override) (classifier.Result, error) {
	cfg, err := s.config()
	if err != nil {
		return classifier.Result{}, &StageError{Stage: StageClassify, Err: err}
	}
	return s.classify(ctx, cfg, records, tag, overrides)
}

func (s *ImportService) classify(ctx context.Context, cfg *patterns.Config, records []normalizer.Record, tag string, overrides []classifier.Override) (classifier.Result, error) {
	var res classifier.Result
	err := s.step(ctx, StageClassify, func(_ context.Context, span trace.Span) error {
		layout, err := layoutFor(cfg, tag)
		if err != nil {
			return err
		}
		res = s.classifierFor(cfg).Classify(records, layout, overrides)
		span.SetAttributes(
			attribute.Int("transactions", len(res.Transactions)),
			attribute.Int("dropped", res.Dropped),
		)
		return nil
	})
	if err != nil {
		return res, err
	}

	s.metrics.Dropped("parse", res.Dropped)
	if res.Dropped > 0 {
		s.logger.Info("rows dropped during classification",
			slog.String("type", tag),
			slog.Int("dropped", res.Dropped),
		)
	}
	return res, nil
}
