package db

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/engine"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir() + "/test.duckdb")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewStore(t *testing.T) {
	tmpFile := t.TempDir() + "/test.duckdb"

	store, err := NewStore(tmpFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(tmpFile); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	t.Run("reopens existing file", func(t *testing.T) {
		store.Close()
		again, err := NewStore(tmpFile)
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		again.Close()
	})
}

func TestSaveLoadRecords(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	created := time.Now().Add(-48 * time.Hour).Truncate(time.Microsecond)
	accessed := time.Now().Add(-time.Hour).Truncate(time.Microsecond)
	embedding := make([]float64, 16)
	for i := range embedding {
		embedding[i] = float64(i) * 0.125
	}

	recs := []*models.MemoryRecord{
		{
			ID:             "full",
			Content:        "Full content",
			Embedding:      embedding,
			Tags:           []string{"tag1", "tag2", "tag3"},
			Importance:     0.75,
			CreatedAt:      created,
			LastAccessedAt: accessed,
			AccessCount:    4,
			Consolidated:   true,
			Metadata:       map[string]string{"source": "test", "owner": "ops"},
		},
		{
			ID:             "bare",
			Content:        "No optional fields",
			CreatedAt:      created,
			LastAccessedAt: created,
		},
	}

	if err := store.SaveRecords(ctx, recs); err != nil {
		t.Fatalf("SaveRecords failed: %v", err)
	}

	t.Run("preserves all fields on round-trip", func(t *testing.T) {
		loaded, err := store.LoadRecords(ctx)
		if err != nil {
			t.Fatalf("LoadRecords failed: %v", err)
		}
		if len(loaded) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(loaded))
		}

		got := loaded[0]
		if got.ID != "full" || got.Content != "Full content" {
			t.Errorf("Unexpected record %+v", got)
		}
		if len(got.Tags) != 3 || got.Tags[0] != "tag1" || got.Tags[2] != "tag3" {
			t.Errorf("Tags mismatch: %v", got.Tags)
		}
		if len(got.Embedding) != 16 || got.Embedding[5] != 0.625 {
			t.Errorf("Embedding mismatch: %v", got.Embedding)
		}
		if got.Importance != 0.75 || got.AccessCount != 4 || !got.Consolidated {
			t.Errorf("Scalar fields mismatch: %+v", got)
		}
		if !got.CreatedAt.Equal(created) || !got.LastAccessedAt.Equal(accessed) {
			t.Errorf("Timestamps mismatch: %v %v", got.CreatedAt, got.LastAccessedAt)
		}
		if got.Metadata["source"] != "test" || got.Metadata["owner"] != "ops" {
			t.Errorf("Metadata mismatch: %v", got.Metadata)
		}

		bare := loaded[1]
		if bare.ID != "bare" || bare.Tags != nil || bare.Embedding != nil || bare.Metadata != nil {
			t.Errorf("Expected nil optional fields, got %+v", bare)
		}
	})

	t.Run("save replaces previous snapshot", func(t *testing.T) {
		if err := store.SaveRecords(ctx, recs[1:]); err != nil {
			t.Fatalf("SaveRecords failed: %v", err)
		}
		loaded, err := store.LoadRecords(ctx)
		if err != nil {
			t.Fatalf("LoadRecords failed: %v", err)
		}
		if len(loaded) != 1 || loaded[0].ID != "bare" {
			t.Errorf("Expected only bare record, got %d", len(loaded))
		}
	})

	t.Run("unencodable embedding fails and keeps snapshot", func(t *testing.T) {
		bad := &models.MemoryRecord{ID: "nan", Embedding: []float64{1, math.NaN()}, CreatedAt: created, LastAccessedAt: created}
		if err := store.SaveRecords(ctx, []*models.MemoryRecord{bad}); err == nil {
			t.Fatal("Expected error for NaN embedding")
		}
		loaded, err := store.LoadRecords(ctx)
		if err != nil {
			t.Fatalf("LoadRecords failed: %v", err)
		}
		if len(loaded) != 1 || loaded[0].ID != "bare" {
			t.Errorf("Expected previous snapshot intact, got %d records", len(loaded))
		}
	})
}

func TestSaveLoadPerformance(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	perf := []models.StrategyPerformance{
		{Strategy: models.StrategyExact, SampleCount: 3, AvgRelevance: 0.5, AvgLatencyMs: 12.5, HitRate: 2.0 / 3.0},
		{Strategy: models.StrategyHybrid, SampleCount: 1, AvgRelevance: 0.9, AvgLatencyMs: 3, HitRate: 1},
	}
	if err := store.SavePerformance(ctx, perf); err != nil {
		t.Fatalf("SavePerformance failed: %v", err)
	}

	loaded, err := store.LoadPerformance(ctx)
	if err != nil {
		t.Fatalf("LoadPerformance failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(loaded))
	}
	if loaded[0] != perf[0] || loaded[1] != perf[1] {
		t.Errorf("Round-trip mismatch: %+v", loaded)
	}

	if err := store.SavePerformance(ctx, nil); err != nil {
		t.Fatalf("SavePerformance(nil) failed: %v", err)
	}
	if loaded, _ := store.LoadPerformance(ctx); len(loaded) != 0 {
		t.Errorf("Expected empty table, got %d rows", len(loaded))
	}
}

func TestPersistHydrate(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	src, err := engine.New()
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	for _, id := range []string{"first", "second", "third"} {
		if _, err := src.Store(ctx, &models.MemoryRecord{ID: id, Content: id + " memory", Tags: []string{id}}); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
	}
	if _, err := src.Recall(ctx, models.RecallQuery{QueryText: "second", Strategy: models.StrategyExact}); err != nil {
		t.Fatalf("Recall failed: %v", err)
	}
	if _, err := src.RecordPerformance(ctx, models.StrategySemantic, 0.8, 4, true); err != nil {
		t.Fatalf("RecordPerformance failed: %v", err)
	}

	if err := store.Persist(ctx, src); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	dst, err := engine.New()
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	n, err := store.Hydrate(ctx, dst)
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 restored records, got %d", n)
	}

	snap := dst.Snapshot()
	if snap[0].ID != "first" || snap[1].ID != "second" || snap[2].ID != "third" {
		t.Errorf("Insertion order not preserved")
	}
	second, err := dst.Get(ctx, "second")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if second.AccessCount != 1 {
		t.Errorf("Expected access count 1, got %d", second.AccessCount)
	}
	if got := dst.GetBestStrategy(ctx); got != models.StrategySemantic {
		t.Errorf("Expected semantic after hydrate, got %s", got)
	}
}
