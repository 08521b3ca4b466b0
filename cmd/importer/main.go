// Command importer loads PDF bank statements into the transaction store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-importer/internal/domain/import/service"
	"github.com/FACorreiaa/statement-importer/internal/domain/import/watcher"
	"github.com/FACorreiaa/statement-importer/internal/domain/report"
	"github.com/FACorreiaa/statement-importer/pkg/config"
	"github.com/FACorreiaa/statement-importer/pkg/cron"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Observability.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[2:]
	switch os.Args[1] {
	case "import":
		err = runImport(ctx, cfg, logger, args, true)
	case "detect":
		err = runImport(ctx, cfg, logger, args, false)
	case "export":
		err = runExport(ctx, cfg, logger, args)
	case "migrate":
		err = runMigrate(ctx, cfg, logger)
	case "watch":
		err = runWatch(ctx, cfg, logger)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement importer")
	fmt.Println("\nUsage:")
	fmt.Println("  importer <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import    Import a PDF statement for a user")
	fmt.Println("  detect    Detect, extract and classify a PDF without storing it")
	fmt.Println("  export    Export stored transactions as CSV or XLSX")
	fmt.Println("  migrate   Apply database migrations")
	fmt.Println("  watch     Poll the inbox directory on a schedule")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'importer <command> -h' for more information on a command.")
}

func runImport(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string, persist bool) error {
	name := "import"
	if !persist {
		name = "detect"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	userFlag := fs.String("user", "", "user id (uuid)")
	file := fs.String("file", "", "path to the PDF statement")
	overridesFile := fs.String("overrides", "", "file with per-import settings (field: value per line)")
	bypass := fs.Bool("bypass-duplicates", cfg.Import.BypassDuplicateCheck, "insert rows even if they look like duplicates")
	fs.Parse(args)

	if *file == "" {
		return errors.New("-file is required")
	}
	userID := uuid.Nil
	if persist || *userFlag != "" {
		id, err := uuid.Parse(*userFlag)
		if err != nil {
			return fmt.Errorf("-user must be a uuid: %w", err)
		}
		userID = id
	}

	var overrides string
	if *overridesFile != "" {
		data, err := os.ReadFile(*overridesFile)
		if err != nil {
			return fmt.Errorf("failed to read overrides: %w", err)
		}
		overrides = string(data)
	}

	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	ctx, cancel := context.WithTimeout(ctx, cfg.Import.Timeout)
	defer cancel()

	req := service.ImportRequest{
		UserID:               userID,
		Path:                 *file,
		Overrides:            overrides,
		BypassDuplicateCheck: *bypass,
	}
	var res *service.ImportResult
	if persist {
		res, err = deps.ImportService.ImportFile(ctx, req)
	} else {
		res, err = deps.ImportService.DryRun(ctx, req)
	}
	fmt.Println(service.Summary(res, err))
	if err != nil {
		return err
	}

	if !persist {
		for _, tx := range res.Transactions {
			fmt.Printf("%s  %12s %s  %-24s %s\n",
				tx.TransactionDate.In(deps.Location).Format("2006-01-02 15:04"),
				tx.Amount.StringFixed(2), tx.Currency, tx.Category, tx.Description)
		}
	}
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	userFlag := fs.String("user", "", "user id (uuid)")
	formatFlag := fs.String("format", "csv", "csv or xlsx")
	out := fs.String("out", "", "output file (defaults to stdout)")
	from := fs.String("from", "", "first day, YYYY-MM-DD")
	to := fs.String("to", "", "day after the last one, YYYY-MM-DD")
	category := fs.String("category", "", "only this category")
	importID := fs.String("import-id", "", "only this import batch")
	fs.Parse(args)

	userID, err := uuid.Parse(*userFlag)
	if err != nil {
		return fmt.Errorf("-user must be a uuid: %w", err)
	}
	format, err := report.ParseFormat(*formatFlag)
	if err != nil {
		return err
	}

	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	filter := repository.Filter{Category: *category}
	if filter.From, err = parseDay(*from, deps.Location); err != nil {
		return err
	}
	if filter.To, err = parseDay(*to, deps.Location); err != nil {
		return err
	}
	if *importID != "" {
		if filter.ImportID, err = strconv.ParseInt(*importID, 10, 64); err != nil {
			return fmt.Errorf("-import-id must be a number: %w", err)
		}
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	summary, err := deps.Exporter.Export(ctx, userID, filter, format, w)
	if err != nil {
		return err
	}
	for _, code := range summary.Totals.Codes() {
		fmt.Fprintf(os.Stderr, "%d transaction(s), total %s %s\n", summary.Rows, summary.Totals[code].String(), code)
	}
	return nil
}

func runMigrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	deps.Cleanup()
	fmt.Println("Migrations applied.")
	return nil
}

func runWatch(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	w := watcher.New(watcher.Config{
		InboxDir:             cfg.Watch.InboxDir,
		Timeout:              cfg.Import.Timeout,
		PerMinute:            cfg.Watch.PerMinute,
		BypassDuplicateCheck: cfg.Import.BypassDuplicateCheck,
	}, deps.ImportService, deps.Archive, os.Stdout, logger)

	scheduler := cron.NewScheduler(logger)
	if err := scheduler.Add(cron.Job{
		Name: "poll-inbox",
		Spec: cfg.Watch.Schedule,
		Run: func(ctx context.Context) error {
			rep, err := w.Poll(ctx)
			if rep.Processed > 0 {
				logger.Info("inbox polled",
					slog.Int("processed", rep.Processed),
					slog.Int("imported", rep.Imported),
					slog.Int("failed", rep.Failed),
				)
			}
			return err
		},
	}); err != nil {
		return err
	}
	if err := scheduler.Add(cron.Job{
		Name:    "prune-archive",
		Spec:    cfg.Watch.PruneSchedule,
		Timeout: 10 * time.Minute,
		Run: func(ctx context.Context) error {
			removed, err := deps.Archive.Prune(ctx, time.Now().Add(-cfg.Storage.Retention))
			logger.Info("archive pruned", slog.Int("removed", removed))
			return err
		},
	}); err != nil {
		return err
	}

	var srv *http.Server
	if cfg.Observability.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", deps.Metrics.Handler())
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Observability.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	scheduler.Start()
	logger.Info("watching inbox", slog.String("dir", cfg.Watch.InboxDir), slog.String("schedule", cfg.Watch.Schedule))

	<-ctx.Done()
	<-scheduler.Stop().Done()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	return nil
}

func parseDay(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
