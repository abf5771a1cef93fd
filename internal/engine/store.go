package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
)

// Store adds a new record. It fails with ErrDuplicateKey rather than
// overwriting; callers must use Update to replace an existing record.
func (e *Engine) Store(ctx context.Context, rec *models.MemoryRecord) (*models.MemoryRecord, error) {
	if rec == nil {
		return nil, fmt.Errorf("record is nil: %w", ErrInvalidArgument)
	}
	if err := validateRecord(rec); err != nil {
		return nil, err
	}

	stored := rec.Clone()
	stored.Importance = clamp01(stored.Importance)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = e.now()
	}
	stored.LastAccessedAt = stored.CreatedAt
	stored.AccessCount = 0
	stored.Consolidated = false

	if !e.records.insert(stored) {
		e.logger.Debug().Str("method", "Store").Str("id", rec.ID).Msg("duplicate id rejected")
		return nil, fmt.Errorf("failed to store record %q: %w", rec.ID, ErrDuplicateKey)
	}
	e.metrics.records.Add(ctx, 1)

	e.logger.Debug().
		Str("method", "Store").
		Str("id", stored.ID).
		Int("tags", len(stored.Tags)).
		Bool("hasEmbedding", len(stored.Embedding) > 0).
		Float64("importance", stored.Importance).
		Msg("record stored")
	return stored.Clone(), nil
}

// Get returns a copy of the record with the given id.
func (e *Engine) Get(ctx context.Context, id string) (*models.MemoryRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("record id is required: %w", ErrInvalidArgument)
	}
	rec, ok := e.records.get(id)
	if !ok {
		return nil, fmt.Errorf("record %q: %w", id, ErrNotFound)
	}
	return rec, nil
}

// Update replaces an existing record. CreatedAt is immutable and a
// consolidated record stays consolidated.
func (e *Engine) Update(ctx context.Context, rec *models.MemoryRecord) (*models.MemoryRecord, error) {
	if rec == nil {
		return nil, fmt.Errorf("record is nil: %w", ErrInvalidArgument)
	}
	if err := validateRecord(rec); err != nil {
		return nil, err
	}

	next := rec.Clone()
	next.Importance = clamp01(next.Importance)
	if next.AccessCount < 0 {
		next.AccessCount = 0
	}

	updated, ok := e.records.replace(rec.ID, func(cur *models.MemoryRecord) *models.MemoryRecord {
		next.CreatedAt = cur.CreatedAt
		next.Consolidated = next.Consolidated || cur.Consolidated
		if next.LastAccessedAt.IsZero() {
			next.LastAccessedAt = cur.LastAccessedAt
		}
		return next
	})
	if !ok {
		return nil, fmt.Errorf("failed to update record %q: %w", rec.ID, ErrNotFound)
	}

	e.logger.Debug().Str("method", "Update").Str("id", rec.ID).Msg("record updated")
	return updated, nil
}

// Patch applies fn to the live record under its shard lock, so access
// bookkeeping from concurrent recalls is never overwritten. fn sees a copy;
// ID, CreatedAt, AccessCount, LastAccessedAt and Consolidated are restored
// after it runs.
func (e *Engine) Patch(ctx context.Context, id string, fn func(rec *models.MemoryRecord)) (*models.MemoryRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("record id is required: %w", ErrInvalidArgument)
	}
	if fn == nil {
		return nil, fmt.Errorf("patch function is nil: %w", ErrInvalidArgument)
	}

	var invalid error
	patched, ok := e.records.mutate(id, func(live *models.MemoryRecord) {
		next := live.Clone()
		fn(next)
		if !finiteVector(next.Embedding) {
			invalid = fmt.Errorf("embedding of %q has non-finite values: %w", id, ErrInvalidArgument)
			return
		}
		next.ID = live.ID
		next.CreatedAt = live.CreatedAt
		next.AccessCount = live.AccessCount
		next.LastAccessedAt = live.LastAccessedAt
		next.Consolidated = live.Consolidated
		next.Importance = clamp01(next.Importance)
		*live = *next
	})
	if !ok {
		return nil, fmt.Errorf("failed to patch record %q: %w", id, ErrNotFound)
	}
	if invalid != nil {
		return nil, invalid
	}

	e.logger.Debug().Str("method", "Patch").Str("id", id).Msg("record patched")
	return patched, nil
}

// Delete removes a record and reports whether it existed.
func (e *Engine) Delete(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	removed := e.records.remove(id)
	if removed {
		e.metrics.records.Add(ctx, -1)
	}
	e.logger.Debug().Str("method", "Delete").Str("id", id).Bool("removed", removed).Msg("called")
	return removed
}

// Statistics summarizes the record population and strategy performance.
func (e *Engine) Statistics(ctx context.Context) models.Statistics {
	stats := models.Statistics{
		StrategyPerformance: e.perf.snapshot(),
	}
	var importance float64
	for _, rec := range e.records.snapshot() {
		stats.TotalRecords++
		if rec.Consolidated {
			stats.ConsolidatedCount++
		}
		importance += rec.Importance
	}
	if stats.TotalRecords > 0 {
		stats.AvgImportance = importance / float64(stats.TotalRecords)
	}
	return stats
}

// Snapshot returns copies of all records in insertion order.
func (e *Engine) Snapshot() []*models.MemoryRecord {
	return e.records.snapshot()
}

// Restore loads previously persisted records as-is, keeping their timestamps
// and access counters. Records whose id is already present are skipped.
func (e *Engine) Restore(ctx context.Context, recs []*models.MemoryRecord) int {
	loaded := 0
	for _, rec := range recs {
		if rec == nil || rec.ID == "" {
			continue
		}
		c := rec.Clone()
		c.Importance = clamp01(c.Importance)
		if c.LastAccessedAt.IsZero() {
			c.LastAccessedAt = c.CreatedAt
		}
		if e.records.insert(c) {
			loaded++
		}
	}
	e.metrics.records.Add(ctx, int64(loaded))
	e.logger.Info().Int("loaded", loaded).Int("offered", len(recs)).Msg("records restored")
	return loaded
}

func validateRecord(rec *models.MemoryRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("record id is required: %w", ErrInvalidArgument)
	}
	if !finiteVector(rec.Embedding) {
		return fmt.Errorf("embedding of %q has non-finite values: %w", rec.ID, ErrInvalidArgument)
	}
	return nil
}
