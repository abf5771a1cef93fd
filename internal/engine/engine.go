// Package engine implements the memory and recall strategy engine: an
// in-process episodic store that ranks records under five recall strategies,
// consolidates or prunes them, and tracks which strategy performs best.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/phoenixvc/cognitive-mesh-sub011/internal/engine"

// StorePort is the record CRUD surface.
type StorePort interface {
	Store(ctx context.Context, rec *models.MemoryRecord) (*models.MemoryRecord, error)
	Get(ctx context.Context, id string) (*models.MemoryRecord, error)
	Update(ctx context.Context, rec *models.MemoryRecord) (*models.MemoryRecord, error)
	Patch(ctx context.Context, id string, fn func(rec *models.MemoryRecord)) (*models.MemoryRecord, error)
	Delete(ctx context.Context, id string) bool
	Statistics(ctx context.Context) models.Statistics
}

// RecallPort ranks and returns records.
type RecallPort interface {
	Recall(ctx context.Context, q models.RecallQuery) (*models.RecallResult, error)
	RecallByTags(ctx context.Context, tags []string, maxResults int) ([]*models.MemoryRecord, error)
	RecallRecent(ctx context.Context, count int) []*models.MemoryRecord
}

// ConsolidationPort promotes and prunes records.
type ConsolidationPort interface {
	Consolidate(ctx context.Context, opts ConsolidationOptions) (*models.ConsolidationResult, error)
}

// AdaptationPort tracks strategy outcomes.
type AdaptationPort interface {
	RecordPerformance(ctx context.Context, strategy models.RecallStrategy, relevance, latencyMs float64, wasHit bool) (models.StrategyPerformance, error)
	GetBestStrategy(ctx context.Context) models.RecallStrategy
}

// Engine implements all four ports over one shared record set.
type Engine struct {
	records *shardedMap
	perf    *performanceTable
	logger  zerolog.Logger
	now     func() time.Time
	tracer  trace.Tracer
	metrics *engineMetrics
}

var (
	_ StorePort         = (*Engine)(nil)
	_ RecallPort        = (*Engine)(nil)
	_ ConsolidationPort = (*Engine)(nil)
	_ AdaptationPort    = (*Engine)(nil)
)

// Option configures an Engine.
type Option func(*config)

type config struct {
	logger zerolog.Logger
	now    func() time.Time
	meter  metric.Meter
	tracer trace.Tracer
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithMeter sets the meter used for engine instruments.
func WithMeter(m metric.Meter) Option {
	return func(c *config) { c.meter = m }
}

// WithTracer sets the tracer used for recall and consolidation spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

// New creates an empty engine.
func New(opts ...Option) (*Engine, error) {
	cfg := config{
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.meter == nil {
		cfg.meter = otel.Meter(instrumentationName)
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(instrumentationName)
	}

	m, err := newEngineMetrics(cfg.meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine metrics: %w", err)
	}

	e := &Engine{
		records: newShardedMap(),
		perf:    newPerformanceTable(),
		logger:  cfg.logger.With().Str("component", "memory_engine").Logger(),
		now:     cfg.now,
		tracer:  cfg.tracer,
		metrics: m,
	}
	e.logger.Debug().Msg("Engine initialized")
	return e, nil
}
