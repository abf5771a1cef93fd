package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/config"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/db"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/embedding"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/engine"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/logger"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/scheduler"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/service"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/telemetry"
	"github.com/rs/zerolog"
)

const serviceName = "meshmem"

// runtime holds the components shared by every command.
type runtime struct {
	cfg       config.Config
	logger    zerolog.Logger
	telemetry *telemetry.Provider
	engine    *engine.Engine
	store     *db.Store // nil when storage is disabled
	service   *service.Service
}

type runtimeOptions struct {
	// metrics is off for commands without an HTTP listener
	metrics bool
}

func newRuntime(ctx context.Context, cfg config.Config, opts runtimeOptions) (*runtime, error) {
	log, err := logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}

	tp, err := telemetry.Init(telemetry.Options{
		ServiceName: serviceName,
		Metrics:     opts.metrics && !cfg.Metrics.Disabled,
		Traces:      cfg.Metrics.Traces,
	})
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(
		engine.WithLogger(log),
		engine.WithMeter(tp.Meter(serviceName)),
		engine.WithTracer(tp.Tracer(serviceName)),
	)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	rt := &runtime{
		cfg:       cfg,
		logger:    log,
		telemetry: tp,
		engine:    eng,
	}

	if !cfg.Storage.Disabled {
		store, err := db.NewStore(cfg.Storage.DuckDBPath)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		rt.store = store

		n, err := store.Hydrate(ctx, eng)
		if err != nil {
			// no final persist here; it would overwrite the snapshot that failed to load
			_ = store.Close()
			_ = tp.Shutdown(ctx)
			return nil, err
		}
		log.Info().Int("records", n).Str("path", cfg.Storage.DuckDBPath).Msg("Hydrated engine from snapshot")
	}

	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithConsolidationOptions(cfg.ConsolidationOptions()),
	}
	if !cfg.Embedding.Disabled {
		svcOpts = append(svcOpts,
			service.WithEmbedder(embedding.NewClient(
				cfg.Embedding.URL,
				cfg.Embedding.Model,
				embedding.WithTimeout(cfg.Embedding.Timeout),
				embedding.WithMaxRetries(cfg.Embedding.MaxRetries),
				embedding.WithLogger(log),
			)),
			service.WithEmbedTimeout(cfg.Embedding.Timeout),
		)
	}
	rt.service = service.New(eng, svcOpts...)

	log.Info().
		Bool("storage", rt.store != nil).
		Bool("embedding", !cfg.Embedding.Disabled).
		Str("ollama", cfg.Embedding.URL).
		Str("model", cfg.Embedding.Model).
		Msg("Memory engine ready")
	return rt, nil
}

// persist snapshots the engine when storage is enabled.
func (rt *runtime) persist(ctx context.Context) error {
	if rt.store == nil {
		return nil
	}
	start := time.Now()
	if err := rt.store.Persist(ctx, rt.engine); err != nil {
		return err
	}
	rt.logger.Debug().Dur("elapsed", time.Since(start)).Msg("Snapshot persisted")
	return nil
}

// ping backs the /ready check.
func (rt *runtime) ping(ctx context.Context) error {
	if rt.store == nil {
		return nil
	}
	return rt.store.Ping(ctx)
}

// newScheduler registers the consolidation and snapshot jobs that are enabled.
func (rt *runtime) newScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(rt.logger)
	if !rt.cfg.Consolidation.Disabled && rt.cfg.Consolidation.Schedule != "" {
		job := scheduler.ConsolidationJob(rt.engine, rt.cfg.ConsolidationOptions())
		if err := sched.Add("consolidation", rt.cfg.Consolidation.Schedule, job); err != nil {
			return nil, err
		}
	}
	if rt.store != nil && rt.cfg.Storage.SnapshotInterval != "" {
		if err := sched.Add("snapshot", rt.cfg.Storage.SnapshotInterval, rt.persist); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// close writes a final snapshot and releases the store and telemetry.
func (rt *runtime) close(ctx context.Context) error {
	var errs []error
	if rt.store != nil {
		errs = append(errs, rt.persist(ctx))
		errs = append(errs, rt.store.Close())
	}
	errs = append(errs, rt.telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}
