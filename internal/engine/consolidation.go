package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConsolidationOptions controls a consolidation sweep.
type ConsolidationOptions struct {
	AccessCountThreshold int           `json:"access_count_threshold" yaml:"access_count_threshold"`
	ImportanceThreshold  float64       `json:"importance_threshold" yaml:"importance_threshold"`
	PruneAge             time.Duration `json:"prune_age" yaml:"prune_age"`
}

// DefaultConsolidationOptions promotes records accessed at least 3 times with
// importance >= 0.5 and prunes never-accessed records older than 30 days.
func DefaultConsolidationOptions() ConsolidationOptions {
	return ConsolidationOptions{
		AccessCountThreshold: 3,
		ImportanceThreshold:  0.5,
		PruneAge:             30 * 24 * time.Hour,
	}
}

// Validate rejects negative thresholds and ages.
func (o ConsolidationOptions) Validate() error {
	if o.AccessCountThreshold < 0 {
		return fmt.Errorf("access count threshold must not be negative: %w", ErrInvalidArgument)
	}
	if math.IsNaN(o.ImportanceThreshold) || o.ImportanceThreshold < 0 {
		return fmt.Errorf("importance threshold must not be negative: %w", ErrInvalidArgument)
	}
	if o.PruneAge < 0 {
		return fmt.Errorf("prune age must not be negative: %w", ErrInvalidArgument)
	}
	return nil
}

func (o ConsolidationOptions) promotable(rec *models.MemoryRecord) bool {
	return !rec.Consolidated &&
		rec.AccessCount >= o.AccessCountThreshold &&
		rec.Importance >= o.ImportanceThreshold
}

func prunable(rec *models.MemoryRecord, cutoff time.Time) bool {
	return !rec.Consolidated && rec.AccessCount == 0 && rec.CreatedAt.Before(cutoff)
}

// Consolidate sweeps a point-in-time snapshot of the records. Each record is
// checked against one rule: promote, else prune, else retain. Both rules are
// re-checked against the live record before being applied.
func (e *Engine) Consolidate(ctx context.Context, opts ConsolidationOptions) (*models.ConsolidationResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "engine.Consolidate", trace.WithAttributes(
		attribute.Int("access_count_threshold", opts.AccessCountThreshold),
		attribute.Float64("importance_threshold", opts.ImportanceThreshold),
		attribute.String("prune_age", opts.PruneAge.String()),
	))
	defer span.End()

	start := time.Now()
	cutoff := e.now().Add(-opts.PruneAge)
	res := &models.ConsolidationResult{}

	for _, rec := range e.records.snapshot() {
		switch {
		case opts.promotable(rec):
			promoted := false
			_, found := e.records.mutate(rec.ID, func(live *models.MemoryRecord) {
				if opts.promotable(live) {
					live.Consolidated = true
					promoted = true
				}
			})
			switch {
			case !found:
			case promoted:
				res.Promoted++
			default:
				res.Retained++
			}
		case prunable(rec, cutoff):
			removed, found := e.records.removeIf(rec.ID, func(live *models.MemoryRecord) bool {
				return prunable(live, cutoff)
			})
			switch {
			case removed:
				res.Pruned++
			case found:
				res.Retained++
			}
		default:
			res.Retained++
		}
	}

	res.Duration = time.Since(start)
	e.metrics.recordConsolidation(ctx, res)
	span.SetAttributes(
		attribute.Int("promoted", res.Promoted),
		attribute.Int("pruned", res.Pruned),
		attribute.Int("retained", res.Retained),
	)

	e.logger.Info().
		Int("promoted", res.Promoted).
		Int("pruned", res.Pruned).
		Int("retained", res.Retained).
		Dur("duration", res.Duration).
		Msg("Consolidation sweep completed")
	return res, nil
}
