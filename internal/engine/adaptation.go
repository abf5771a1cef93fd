package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
)

// performanceTable keeps running means per strategy instead of full history.
type performanceTable struct {
	mu    sync.RWMutex
	stats map[models.RecallStrategy]*models.StrategyPerformance
}

func newPerformanceTable() *performanceTable {
	return &performanceTable{stats: make(map[models.RecallStrategy]*models.StrategyPerformance)}
}

func (t *performanceTable) record(strategy models.RecallStrategy, relevance, latencyMs float64, wasHit bool) models.StrategyPerformance {
	hit := 0.0
	if wasHit {
		hit = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.stats[strategy]
	if !ok {
		p = &models.StrategyPerformance{Strategy: strategy}
		t.stats[strategy] = p
	}
	n := float64(p.SampleCount)
	p.AvgRelevance = (p.AvgRelevance*n + relevance) / (n + 1)
	p.AvgLatencyMs = (p.AvgLatencyMs*n + latencyMs) / (n + 1)
	p.HitRate = (p.HitRate*n + hit) / (n + 1)
	p.SampleCount++
	return *p
}

func (t *performanceTable) snapshot() map[models.RecallStrategy]models.StrategyPerformance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[models.RecallStrategy]models.StrategyPerformance, len(t.stats))
	for k, v := range t.stats {
		out[k] = *v
	}
	return out
}

func (t *performanceTable) restore(perf []models.StrategyPerformance) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range perf {
		if !p.Strategy.Valid() || p.SampleCount <= 0 {
			continue
		}
		c := p
		t.stats[p.Strategy] = &c
	}
}

// better reports whether a outranks b: higher hit rate, then higher average
// relevance, then lower average latency.
func better(a, b models.StrategyPerformance) bool {
	if a.HitRate != b.HitRate {
		return a.HitRate > b.HitRate
	}
	if a.AvgRelevance != b.AvgRelevance {
		return a.AvgRelevance > b.AvgRelevance
	}
	return a.AvgLatencyMs < b.AvgLatencyMs
}

// RecordPerformance folds one recall outcome into the strategy's running averages.
func (e *Engine) RecordPerformance(ctx context.Context, strategy models.RecallStrategy, relevance, latencyMs float64, wasHit bool) (models.StrategyPerformance, error) {
	if !strategy.Valid() {
		return models.StrategyPerformance{}, fmt.Errorf("unknown strategy %q: %w", strategy, ErrInvalidArgument)
	}
	if math.IsNaN(relevance) || math.IsNaN(latencyMs) || math.IsInf(latencyMs, 0) {
		return models.StrategyPerformance{}, fmt.Errorf("relevance and latency must be numeric: %w", ErrInvalidArgument)
	}

	p := e.perf.record(strategy, clamp01(relevance), math.Max(0, latencyMs), wasHit)
	e.logger.Debug().
		Str("strategy", string(strategy)).
		Int("samples", p.SampleCount).
		Float64("hitRate", p.HitRate).
		Float64("avgRelevance", p.AvgRelevance).
		Float64("avgLatencyMs", p.AvgLatencyMs).
		Msg("RecordPerformance")
	return p, nil
}

// GetBestStrategy returns the strategy with the best recorded outcomes, or
// Hybrid when nothing has been recorded yet.
func (e *Engine) GetBestStrategy(ctx context.Context) models.RecallStrategy {
	stats := e.perf.snapshot()
	best := models.StrategyHybrid
	var bestPerf *models.StrategyPerformance
	for _, s := range models.AllStrategies() {
		p, ok := stats[s]
		if !ok || p.SampleCount == 0 {
			continue
		}
		if bestPerf == nil || better(p, *bestPerf) {
			best = s
			bestPerf = &p
		}
	}
	return best
}

// PerformanceSnapshot returns a copy of the per-strategy statistics.
func (e *Engine) PerformanceSnapshot() []models.StrategyPerformance {
	stats := e.perf.snapshot()
	out := make([]models.StrategyPerformance, 0, len(stats))
	for _, s := range models.AllStrategies() {
		if p, ok := stats[s]; ok {
			out = append(out, p)
		}
	}
	return out
}

// RestorePerformance reloads persisted per-strategy statistics.
func (e *Engine) RestorePerformance(perf []models.StrategyPerformance) {
	e.perf.restore(perf)
}
