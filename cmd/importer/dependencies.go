package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/extractor"
	"github.com/FACorreiaa/statement-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-importer/internal/domain/import/service"
	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
	"github.com/FACorreiaa/statement-importer/internal/domain/report"
	"github.com/FACorreiaa/statement-importer/pkg/config"
	"github.com/FACorreiaa/statement-importer/pkg/db"
	"github.com/FACorreiaa/statement-importer/pkg/metrics"
	"github.com/FACorreiaa/statement-importer/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config   *config.Config
	DB       *db.DB
	Logger   *slog.Logger
	Location *time.Location

	Store         repository.Store
	Patterns      *patterns.Cache
	Metrics       *metrics.Metrics
	ImportService *service.ImportService
	Exporter      *report.Exporter
	Archive       storage.Storage
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	loc, err := cfg.Import.Location()
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Location: loc,
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	logger.Debug("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase opens the configured store and runs migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := db.New(db.Config{
		Driver:          d.Config.Database.Driver,
		DSN:             d.Config.Database.DSN(),
		MaxConns:        int32(d.Config.Database.MaxConns),
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(ctx); err != nil {
		d.DB.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (d *Dependencies) initRepositories() {
	if d.DB.Driver() == db.DriverSQLite {
		d.Store = repository.NewSQLiteStore(d.DB.SQL)
	} else {
		d.Store = repository.NewPostgresStore(d.DB.Pool)
	}
}

func (d *Dependencies) initServices() error {
	d.Patterns = patterns.NewCache(time.Minute, d.Logger)
	d.Metrics = metrics.New()

	d.ImportService = service.NewImportService(
		d.Patterns,
		extractor.New(d.Logger),
		d.Store,
		service.Options{
			PatternPath: d.Config.Import.PatternFile,
			Location:    d.Location,
			Metrics:     d.Metrics,
		},
		d.Logger,
	)

	d.Exporter = report.New(d.Store, d.Location, d.Logger)

	archive, err := storage.New(&storage.Config{LocalPath: d.Config.Storage.Path})
	if err != nil {
		return fmt.Errorf("failed to init archive: %w", err)
	}
	d.Archive = archive
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
}
