package db

import (
	"context"
	"fmt"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
)

// SnapshotSource is the engine side of a save.
type SnapshotSource interface {
	Snapshot() []*models.MemoryRecord
	PerformanceSnapshot() []models.StrategyPerformance
}

// SnapshotSink is the engine side of a load.
type SnapshotSink interface {
	Restore(ctx context.Context, recs []*models.MemoryRecord) int
	RestorePerformance(perf []models.StrategyPerformance)
}

// Persist writes the current state of src.
func (s *Store) Persist(ctx context.Context, src SnapshotSource) error {
	if err := s.SaveSnapshot(ctx, src.Snapshot(), src.PerformanceSnapshot()); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}

// Hydrate loads the last persisted snapshot into dst and returns the number
// of records restored.
func (s *Store) Hydrate(ctx context.Context, dst SnapshotSink) (int, error) {
	recs, err := s.LoadRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load records: %w", err)
	}
	perf, err := s.LoadPerformance(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load strategy performance: %w", err)
	}
	n := dst.Restore(ctx, recs)
	dst.RestorePerformance(perf)
	return n, nil
}
