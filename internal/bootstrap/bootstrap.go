// Package bootstrap assembles the record store, remote client, artifact
// storage and coordinator from configuration. Both binaries share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"studio/internal/adapter/repo"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/lifecycle"
	"studio/internal/notify"
	"studio/internal/providers/genapi"
	"studio/internal/records"
	"studio/internal/storage"
)

// Runtime is a fully wired core.
type Runtime struct {
	Config      *infra.Config
	Records     *records.Store
	Files       *storage.FileStore
	Events      *notify.Queue
	Redis       *notify.RedisSink
	Coordinator *lifecycle.Coordinator

	closers []func() error
}

// Build wires every component described by cfg. The caller owns the returned
// Runtime and must Close it.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = rt.closeResources()
		}
	}()

	repository, err := rt.openRepository(ctx, logger)
	if err != nil {
		return nil, err
	}

	rt.Events = notify.NewQueue(notify.QueueOptions{Logger: logger})
	var sink notify.Sink = rt.Events
	if cfg.RedisAddr != "" {
		rs, err := notify.NewRedisSink(ctx, cfg.RedisAddr, cfg.RedisChannel, logger)
		if err != nil {
			return nil, err
		}
		rt.Redis = rs
		rt.closers = append(rt.closers, rs.Close)
		sink = notify.Multi{rt.Events, rs}
	}
	rt.Records = records.NewStore(records.Options{Repository: repository, Sink: sink, Logger: logger})

	vocab, err := genapi.LoadVocabulary(cfg.StatusVocabularyFile)
	if err != nil {
		return nil, err
	}
	client := genapi.NewClient(genapi.Options{
		BaseURL:        cfg.APIBaseURL,
		Logger:         logger,
		RequestTimeout: cfg.APITimeout,
		Vocabulary:     vocab,
	})

	rt.Files, err = storage.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	downloader, err := storage.NewDownloader(storage.DownloaderOptions{Store: rt.Files, Logger: logger})
	if err != nil {
		return nil, err
	}

	rt.Coordinator, err = lifecycle.NewCoordinator(lifecycle.Options{
		Store:              rt.Records,
		API:                client,
		Files:              rt.Files,
		Downloader:         downloader,
		Thumbnailer:        storage.NewThumbnailer(rt.Files, cfg.ThumbnailWidth),
		Logger:             logger,
		PollInterval:       cfg.PollInterval,
		PollMaxDuration:    cfg.PollMaxDuration,
		StallAfterAttempts: cfg.StallAfterAttempts,
	})
	if err != nil {
		return nil, err
	}

	infra.OrDiscard(logger).Info().
		Str("driver", cfg.DatabaseDriver).
		Str("data_dir", rt.Files.BasePath()).
		Str("api_base_url", client.BaseURL()).
		Bool("redis", rt.Redis != nil).
		Msg("bootstrap: core ready")
	ok = true
	return rt, nil
}

func (rt *Runtime) openRepository(ctx context.Context, logger *infra.Logger) (domain.GenerationRepository, error) {
	cfg := rt.Config
	switch cfg.DatabaseDriver {
	case infra.DriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		pg := repo.NewGenerationRepositoryPG(infra.NewSQLRunner(pool, *infra.OrDiscard(logger)))
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: migrate postgres: %w", err)
		}
		return pg, nil
	default:
		path := cfg.DatabaseURL
		if path == "" {
			path = filepath.Join(cfg.DataDir, "studio.db")
		}
		db, err := infra.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		lite, err := repo.NewGenerationRepositorySQLite(ctx, db)
		if err != nil {
			return nil, err
		}
		return lite, nil
	}
}

// Close stops every poller, then releases the database and Redis client.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Coordinator != nil {
		if err := rt.Coordinator.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("bootstrap: stop pollers: %w", err))
		}
	}
	if err := rt.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (rt *Runtime) closeResources() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
