package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
)

func TestRecordPerformance(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	samples := []struct {
		relevance, latency float64
		hit                bool
	}{
		{0.9, 10, true},
		{0.6, 20, false},
		{0.3, 30, true},
	}
	var got models.StrategyPerformance
	for _, s := range samples {
		var err error
		got, err = e.RecordPerformance(ctx, models.StrategyFuzzy, s.relevance, s.latency, s.hit)
		if err != nil {
			t.Fatalf("RecordPerformance failed: %v", err)
		}
	}

	if got.SampleCount != 3 {
		t.Errorf("Expected 3 samples, got %d", got.SampleCount)
	}
	if !approx(got.AvgRelevance, 0.6) {
		t.Errorf("Expected avg relevance 0.6, got %f", got.AvgRelevance)
	}
	if !approx(got.AvgLatencyMs, 20) {
		t.Errorf("Expected avg latency 20, got %f", got.AvgLatencyMs)
	}
	if !approx(got.HitRate, 2.0/3.0) {
		t.Errorf("Expected hit rate 0.667, got %f", got.HitRate)
	}

	t.Run("clamps inputs", func(t *testing.T) {
		p, err := e.RecordPerformance(ctx, models.StrategyExact, 7, -5, true)
		if err != nil {
			t.Fatalf("RecordPerformance failed: %v", err)
		}
		if p.AvgRelevance != 1 || p.AvgLatencyMs != 0 {
			t.Errorf("Expected clamped relevance 1 and latency 0, got %+v", p)
		}
	})

	t.Run("unknown strategy", func(t *testing.T) {
		if _, err := e.RecordPerformance(ctx, "magic", 0.5, 1, true); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestGetBestStrategy(t *testing.T) {
	ctx := context.Background()

	record := func(t *testing.T, e *Engine, s models.RecallStrategy, relevance, latency float64, hit bool) {
		t.Helper()
		if _, err := e.RecordPerformance(ctx, s, relevance, latency, hit); err != nil {
			t.Fatalf("RecordPerformance failed: %v", err)
		}
	}

	t.Run("defaults to hybrid", func(t *testing.T) {
		e, _ := setupTestEngine(t)
		if got := e.GetBestStrategy(ctx); got != models.StrategyHybrid {
			t.Errorf("Expected hybrid, got %s", got)
		}
	})

	t.Run("highest hit rate wins", func(t *testing.T) {
		e, _ := setupTestEngine(t)
		record(t, e, models.StrategyExact, 0.5, 5, true)
		record(t, e, models.StrategyExact, 0.5, 5, true)
		record(t, e, models.StrategyExact, 0.5, 5, false)
		record(t, e, models.StrategySemantic, 0.5, 5, true)
		record(t, e, models.StrategySemantic, 0.5, 5, true)
		if got := e.GetBestStrategy(ctx); got != models.StrategySemantic {
			t.Errorf("Expected semantic, got %s", got)
		}
	})

	t.Run("relevance breaks hit rate ties", func(t *testing.T) {
		e, _ := setupTestEngine(t)
		record(t, e, models.StrategyFuzzy, 0.4, 5, true)
		record(t, e, models.StrategyTemporal, 0.8, 50, true)
		if got := e.GetBestStrategy(ctx); got != models.StrategyTemporal {
			t.Errorf("Expected temporal, got %s", got)
		}
	})

	t.Run("latency breaks remaining ties", func(t *testing.T) {
		e, _ := setupTestEngine(t)
		record(t, e, models.StrategyExact, 0.7, 40, true)
		record(t, e, models.StrategyFuzzy, 0.7, 10, true)
		if got := e.GetBestStrategy(ctx); got != models.StrategyFuzzy {
			t.Errorf("Expected fuzzy, got %s", got)
		}
	})
}

func TestPerformanceSnapshotRestore(t *testing.T) {
	src, _ := setupTestEngine(t)
	ctx := context.Background()
	if _, err := src.RecordPerformance(ctx, models.StrategyTemporal, 0.9, 3, true); err != nil {
		t.Fatalf("RecordPerformance failed: %v", err)
	}
	if _, err := src.RecordPerformance(ctx, models.StrategyExact, 0.1, 3, false); err != nil {
		t.Fatalf("RecordPerformance failed: %v", err)
	}

	snap := src.PerformanceSnapshot()
	if len(snap) != 2 || snap[0].Strategy != models.StrategyExact || snap[1].Strategy != models.StrategyTemporal {
		t.Fatalf("Unexpected snapshot %+v", snap)
	}

	dst, _ := setupTestEngine(t)
	dst.RestorePerformance(append(snap, models.StrategyPerformance{Strategy: "bogus", SampleCount: 4}))
	if got := dst.GetBestStrategy(ctx); got != models.StrategyTemporal {
		t.Errorf("Expected temporal after restore, got %s", got)
	}

	p, err := dst.RecordPerformance(ctx, models.StrategyTemporal, 0.5, 3, true)
	if err != nil {
		t.Fatalf("RecordPerformance failed: %v", err)
	}
	if p.SampleCount != 2 || !approx(p.AvgRelevance, 0.7) {
		t.Errorf("Restored averages not continued: %+v", p)
	}
}
