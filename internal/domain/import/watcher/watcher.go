// Package watcher imports statements dropped into a per-user inbox directory:
// <inbox>/<user-id>/*.pdf. Each file is copied to a private temp file, imported
// under a per-document timeout, archived with its outcome and removed from the
// inbox. A one-line summary per document goes to the configured writer.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/service"
	"github.com/FACorreiaa/statement-importer/pkg/storage"
)

// OverridesFile holds the per-user import settings inside the user's inbox.
const OverridesFile = "overrides.txt"

// Importer runs one document through the pipeline. *service.ImportService implements it.
type Importer interface {
	ImportFile(ctx context.Context, req service.ImportRequest) (*service.ImportResult, error)
}

// Config controls polling.
type Config struct {
	InboxDir string
	// Timeout bounds each document.
	Timeout time.Duration
	// PerMinute caps documents started per minute across all users; 0 disables the cap.
	PerMinute            int
	BypassDuplicateCheck bool
}

// Report counts one poll.
type Report struct {
	Processed int
	Imported  int
	Failed    int
}

// Watcher polls the inbox.
type Watcher struct {
	cfg      Config
	importer Importer
	archive  storage.Storage
	limiter  *rate.Limiter
	out      io.Writer
	logger   *slog.Logger
}

// New creates a watcher. Summaries are written to out.
func New(cfg Config, importer Importer, archive storage.Storage, out io.Writer, logger *slog.Logger) *Watcher {
	limit := rate.Inf
	burst := 1
	if cfg.PerMinute > 0 {
		limit = rate.Limit(float64(cfg.PerMinute) / 60)
		burst = cfg.PerMinute
	}
	return &Watcher{
		cfg:      cfg,
		importer: importer,
		archive:  archive,
		limiter:  rate.NewLimiter(limit, burst),
		out:      out,
		logger:   logger,
	}
}

// Poll processes every statement currently in the inbox.
func (w *Watcher) Poll(ctx context.Context) (Report, error) {
	var report Report

	users, err := os.ReadDir(w.cfg.InboxDir)
	if err != nil {
		return report, fmt.Errorf("failed to read inbox: %w", err)
	}

	for _, entry := range users {
		if !entry.IsDir() {
			continue
		}
		userID, err := uuid.Parse(entry.Name())
		if err != nil {
			w.logger.Debug("ignoring inbox entry", slog.String("name", entry.Name()))
			continue
		}

		dir := filepath.Join(w.cfg.InboxDir, entry.Name())
		files, err := statements(dir)
		if err != nil {
			w.logger.Warn("failed to list user inbox", slog.String("user_id", userID.String()), slog.Any("error", err))
			continue
		}
		if len(files) == 0 {
			continue
		}
		overrides := w.readOverrides(dir)

		for _, path := range files {
			if err := w.limiter.Wait(ctx); err != nil {
				return report, err
			}
			ok := w.process(ctx, userID, path, overrides)
			report.Processed++
			if ok {
				report.Imported++
			} else {
				report.Failed++
			}
		}
	}
	return report, nil
}

func (w *Watcher) process(ctx context.Context, userID uuid.UUID, path, overrides string) bool {
	name := filepath.Base(path)
	logger := w.logger.With(slog.String("user_id", userID.String()), slog.String("file", name))

	tmp, err := stage(path)
	if err != nil {
		logger.Error("failed to stage statement", slog.Any("error", err))
		return false
	}
	defer os.Remove(tmp)

	docCtx := ctx
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		docCtx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	res, importErr := w.importer.ImportFile(docCtx, service.ImportRequest{
		UserID:               userID,
		Path:                 tmp,
		Overrides:            overrides,
		BypassDuplicateCheck: w.cfg.BypassDuplicateCheck,
	})
	summary := service.Summary(res, importErr)
	fmt.Fprintf(w.out, "%s: %s\n", name, summary)

	meta := storage.Meta{Outcome: storage.OutcomeImported, Summary: summary}
	if importErr != nil {
		meta.Outcome = storage.OutcomeFailed
		logger.Warn("statement import failed", slog.Any("error", importErr))
	} else {
		meta.Type = res.Type
		meta.ImportID = res.Ingest.ImportID
	}

	if err := w.archiveAndRemove(ctx, userID, path, meta); err != nil {
		logger.Error("failed to archive statement", slog.Any("error", err))
	}
	return importErr == nil
}

func (w *Watcher) archiveAndRemove(ctx context.Context, userID uuid.UUID, path string, meta storage.Meta) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	_, err = w.archive.Archive(ctx, userID, filepath.Base(path), f, meta)
	f.Close()
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// stage copies the inbox file to a temp file the pipeline can read while the
// inbox copy may still be replaced.
func stage(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "statement-*.pdf")
	if err != nil {
		return "", err
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func statements(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (w *Watcher) readOverrides(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, OverridesFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("failed to read overrides", slog.String("dir", dir), slog.Any("error", err))
		}
		return ""
	}
	return string(data)
}
