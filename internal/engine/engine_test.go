package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
	"github.com/rs/zerolog"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// setupTestEngine creates an engine with a controllable clock
func setupTestEngine(t *testing.T) (*Engine, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e, err := New(WithLogger(zerolog.Nop()), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return e, clock
}

func mustStore(t *testing.T, e *Engine, rec *models.MemoryRecord) *models.MemoryRecord {
	t.Helper()
	stored, err := e.Store(context.Background(), rec)
	if err != nil {
		t.Fatalf("Store(%q) failed: %v", rec.ID, err)
	}
	return stored
}

func TestStoreAndGet(t *testing.T) {
	e, clock := setupTestEngine(t)
	ctx := context.Background()

	t.Run("stores with defaults", func(t *testing.T) {
		in := &models.MemoryRecord{
			ID:          "r1",
			Content:     "the quick brown fox",
			Tags:        []string{"animal"},
			Importance:  1.7,
			AccessCount: 9,
		}
		stored := mustStore(t, e, in)

		if stored.Importance != 1 {
			t.Errorf("Expected importance clamped to 1, got %f", stored.Importance)
		}
		if !stored.CreatedAt.Equal(clock.Now()) {
			t.Errorf("Expected CreatedAt %v, got %v", clock.Now(), stored.CreatedAt)
		}
		if !stored.LastAccessedAt.Equal(stored.CreatedAt) {
			t.Errorf("Expected LastAccessedAt to equal CreatedAt")
		}
		if stored.AccessCount != 0 {
			t.Errorf("Expected AccessCount 0, got %d", stored.AccessCount)
		}
		if in.Importance != 1.7 {
			t.Errorf("Caller's record was modified")
		}
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		_, err := e.Store(ctx, &models.MemoryRecord{ID: "r1", Content: "other"})
		if !errors.Is(err, ErrDuplicateKey) {
			t.Fatalf("Expected ErrDuplicateKey, got %v", err)
		}
		got, err := e.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Content != "the quick brown fox" {
			t.Errorf("Duplicate store overwrote content: %q", got.Content)
		}
	})

	t.Run("rejects empty id", func(t *testing.T) {
		if _, err := e.Store(ctx, &models.MemoryRecord{Content: "x"}); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument, got %v", err)
		}
		if _, err := e.Store(ctx, nil); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument for nil record, got %v", err)
		}
	})

	t.Run("get returns copies", func(t *testing.T) {
		got, _ := e.Get(ctx, "r1")
		got.Tags[0] = "mutated"
		again, _ := e.Get(ctx, "r1")
		if again.Tags[0] != "animal" {
			t.Errorf("Engine state leaked through Get: %v", again.Tags)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		if _, err := e.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestUpdate(t *testing.T) {
	e, clock := setupTestEngine(t)
	ctx := context.Background()

	created := mustStore(t, e, &models.MemoryRecord{ID: "u1", Content: "draft", Importance: 0.4})
	clock.Advance(time.Hour)

	t.Run("replaces content and keeps created time", func(t *testing.T) {
		updated, err := e.Update(ctx, &models.MemoryRecord{
			ID:         "u1",
			Content:    "final",
			Importance: 0.9,
			CreatedAt:  clock.Now().Add(-365 * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated.Content != "final" || updated.Importance != 0.9 {
			t.Errorf("Unexpected updated record: %+v", updated)
		}
		if !updated.CreatedAt.Equal(created.CreatedAt) {
			t.Errorf("CreatedAt changed from %v to %v", created.CreatedAt, updated.CreatedAt)
		}
	})

	t.Run("does not clear consolidated", func(t *testing.T) {
		if _, err := e.Update(ctx, &models.MemoryRecord{ID: "u1", Content: "x", Consolidated: true}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		updated, err := e.Update(ctx, &models.MemoryRecord{ID: "u1", Content: "y", Consolidated: false})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if !updated.Consolidated {
			t.Error("Update reverted consolidated flag")
		}
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := e.Update(ctx, &models.MemoryRecord{ID: "ghost"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestPatch(t *testing.T) {
	e, clock := setupTestEngine(t)
	ctx := context.Background()

	created := mustStore(t, e, &models.MemoryRecord{ID: "p1", Content: "needle", Importance: 0.2})
	clock.Advance(time.Minute)
	if _, err := e.Recall(ctx, models.RecallQuery{QueryText: "needle", Strategy: models.StrategyExact}); err != nil {
		t.Fatalf("Recall failed: %v", err)
	}

	t.Run("applies fields and keeps bookkeeping", func(t *testing.T) {
		patched, err := e.Patch(ctx, "p1", func(rec *models.MemoryRecord) {
			rec.Importance = 1.7
			rec.Tags = []string{"found"}
			rec.AccessCount = 0
			rec.CreatedAt = time.Time{}
			rec.ID = "other"
		})
		if err != nil {
			t.Fatalf("Patch failed: %v", err)
		}
		if patched.ID != "p1" || patched.Importance != 1 || len(patched.Tags) != 1 {
			t.Errorf("Unexpected patched record %+v", patched)
		}
		if patched.AccessCount != 1 || !patched.LastAccessedAt.Equal(clock.Now()) {
			t.Errorf("Access bookkeeping lost: count %d, last %v", patched.AccessCount, patched.LastAccessedAt)
		}
		if !patched.CreatedAt.Equal(created.CreatedAt) {
			t.Errorf("CreatedAt changed to %v", patched.CreatedAt)
		}
		if _, err := e.Get(ctx, "other"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Patch must not rename records, got %v", err)
		}
	})

	t.Run("rejects non-finite embedding", func(t *testing.T) {
		_, err := e.Patch(ctx, "p1", func(rec *models.MemoryRecord) {
			rec.Embedding = []float64{math.Inf(1)}
			rec.Content = "changed"
		})
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument, got %v", err)
		}
		got, _ := e.Get(ctx, "p1")
		if got.Content != "needle" || got.Embedding != nil {
			t.Errorf("Rejected patch leaked into record: %+v", got)
		}
	})

	t.Run("missing record", func(t *testing.T) {
		if _, err := e.Patch(ctx, "ghost", func(*models.MemoryRecord) {}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("nil function", func(t *testing.T) {
		if _, err := e.Patch(ctx, "p1", nil); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestNonFiniteEmbeddings(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()
	mustStore(t, e, &models.MemoryRecord{ID: "ok", Content: "fine", Embedding: []float64{1, 0}})

	t.Run("store", func(t *testing.T) {
		_, err := e.Store(ctx, &models.MemoryRecord{ID: "nan", Embedding: []float64{math.NaN(), 1}})
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument, got %v", err)
		}
		if _, err := e.Get(ctx, "nan"); !errors.Is(err, ErrNotFound) {
			t.Error("Rejected record was stored")
		}
	})

	t.Run("update", func(t *testing.T) {
		_, err := e.Update(ctx, &models.MemoryRecord{ID: "ok", Embedding: []float64{math.Inf(-1)}})
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("recall query", func(t *testing.T) {
		_, err := e.Recall(ctx, models.RecallQuery{QueryEmbedding: []float64{math.NaN()}, Strategy: models.StrategySemantic})
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()
	mustStore(t, e, &models.MemoryRecord{ID: "d1", Content: "bye"})

	if !e.Delete(ctx, "d1") {
		t.Error("Expected first delete to report true")
	}
	if e.Delete(ctx, "d1") {
		t.Error("Expected second delete to report false")
	}
	if _, err := e.Get(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestStatistics(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	stats := e.Statistics(ctx)
	if stats.TotalRecords != 0 || stats.AvgImportance != 0 {
		t.Errorf("Expected empty statistics, got %+v", stats)
	}

	mustStore(t, e, &models.MemoryRecord{ID: "s1", Importance: 0.2})
	mustStore(t, e, &models.MemoryRecord{ID: "s2", Importance: 0.6})
	if _, err := e.Update(ctx, &models.MemoryRecord{ID: "s2", Importance: 0.6, Consolidated: true}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := e.RecordPerformance(ctx, models.StrategyFuzzy, 0.5, 10, true); err != nil {
		t.Fatalf("RecordPerformance failed: %v", err)
	}

	stats = e.Statistics(ctx)
	if stats.TotalRecords != 2 {
		t.Errorf("Expected 2 records, got %d", stats.TotalRecords)
	}
	if stats.ConsolidatedCount != 1 {
		t.Errorf("Expected 1 consolidated, got %d", stats.ConsolidatedCount)
	}
	if !approx(stats.AvgImportance, 0.4) {
		t.Errorf("Expected avg importance 0.4, got %f", stats.AvgImportance)
	}
	if stats.StrategyPerformance[models.StrategyFuzzy].SampleCount != 1 {
		t.Errorf("Expected fuzzy performance in statistics, got %+v", stats.StrategyPerformance)
	}
}

func TestSnapshotRestore(t *testing.T) {
	src, clock := setupTestEngine(t)
	ctx := context.Background()
	mustStore(t, src, &models.MemoryRecord{ID: "a", Content: "first"})
	mustStore(t, src, &models.MemoryRecord{ID: "b", Content: "second"})
	if _, err := src.Recall(ctx, models.RecallQuery{QueryText: "first", Strategy: models.StrategyExact}); err != nil {
		t.Fatalf("Recall failed: %v", err)
	}

	snap := src.Snapshot()
	if len(snap) != 2 || snap[0].ID != "a" || snap[1].ID != "b" {
		t.Fatalf("Expected snapshot in insertion order, got %v", snap)
	}

	dst, _ := setupTestEngine(t)
	mustStore(t, dst, &models.MemoryRecord{ID: "b", Content: "already here"})
	if n := dst.Restore(ctx, snap); n != 1 {
		t.Errorf("Expected 1 restored record, got %d", n)
	}
	got, err := dst.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AccessCount != 1 || !got.LastAccessedAt.Equal(clock.Now()) {
		t.Errorf("Restore did not keep access stats: %+v", got)
	}
	if b, _ := dst.Get(ctx, "b"); b.Content != "already here" {
		t.Errorf("Restore overwrote an existing record: %q", b.Content)
	}
}

func TestConcurrentAccess(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				if _, err := e.Store(ctx, &models.MemoryRecord{ID: id, Content: "shared topic " + id, Importance: 0.5}); err != nil {
					t.Errorf("Store(%s) failed: %v", id, err)
					return
				}
				if _, err := e.Recall(ctx, models.RecallQuery{QueryText: "shared topic", Strategy: models.StrategyExact, MaxResults: 5}); err != nil {
					t.Errorf("Recall failed: %v", err)
					return
				}
				_ = e.RecallRecent(ctx, 3)
				if _, err := e.RecordPerformance(ctx, models.StrategyExact, 0.5, 1, i%2 == 0); err != nil {
					t.Errorf("RecordPerformance failed: %v", err)
					return
				}
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			if _, err := e.Consolidate(ctx, DefaultConsolidationOptions()); err != nil {
				t.Errorf("Consolidate failed: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if got := e.Statistics(ctx).TotalRecords; got != workers*perWorker {
		t.Errorf("Expected %d records, got %d", workers*perWorker, got)
	}
	perf := e.PerformanceSnapshot()
	if len(perf) != 1 || perf[0].SampleCount != workers*perWorker {
		t.Errorf("Expected %d exact samples, got %+v", workers*perWorker, perf)
	}
}
