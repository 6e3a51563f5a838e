package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"markercompare/internal/blob"
	"markercompare/internal/compare"
	"markercompare/internal/config"
	"markercompare/internal/grid"
	"markercompare/internal/intake"
	"markercompare/internal/legacy"
	"markercompare/internal/logging"
	"markercompare/internal/metrics"
	"markercompare/internal/persistence"
	"markercompare/internal/repository"
)

// app holds the wired services for one command run.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Prometheus
	store    persistence.Store
	archive  blob.Store
	repo     *repository.Repository
	engine   *compare.Engine
	ingestor *intake.Ingestor
	importer *legacy.Importer
}

type globalFlags struct {
	configPath string
	verbose    bool
	storage    string
}

func openApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.storage != "" {
		cfg.Storage.Driver = persistence.Driver(flags.storage)
	}
	cfg.Logging.Verbose = flags.verbose
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	store, err := persistence.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	archive, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	rec := metrics.NewPrometheus("")
	codec := grid.New(grid.Options{
		Spacer:       cfg.Grid.Spacer,
		QuoteNumeric: cfg.Grid.QuoteNumeric,
		FillerRows:   cfg.Grid.FillerRows,
	})
	repo := repository.New(store, repository.Options{
		Codec:      codec,
		Logger:     log.Named("repository"),
		Metrics:    rec,
		SkipTables: cfg.SkipTables,
	})
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: rec,
		store:   store,
		archive: archive,
		repo:    repo,
		engine: compare.New(repo, compare.Options{
			Catalog:      codec.Catalog(),
			SkipUncalled: cfg.Compare.SkipUncalled,
			Logger:       log.Named("compare"),
			Metrics:      rec,
		}),
		ingestor: intake.NewIngestor(repo, intake.Options{
			Archive: archive,
			Logger:  log.Named("intake"),
			Metrics: rec,
		}),
		importer: legacy.NewImporter(store, log.Named("legacy")),
	}
	log.Debug("services ready",
		zap.String("storage", string(store.Driver())),
		zap.String("blob", string(archive.Driver())))
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if c, ok := a.archive.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.store.Close())
	_ = a.log.Sync()
	return errors.Join(errs...)
}
