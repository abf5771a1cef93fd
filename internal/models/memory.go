package models

import (
	"fmt"
	"strings"
	"time"
)

// RecallStrategy selects how recall candidates are scored
type RecallStrategy string

const (
	StrategyExact    RecallStrategy = "exact"
	StrategyFuzzy    RecallStrategy = "fuzzy"
	StrategySemantic RecallStrategy = "semantic"
	StrategyTemporal RecallStrategy = "temporal"
	StrategyHybrid   RecallStrategy = "hybrid"
)

// AllStrategies returns every recall strategy in declaration order
func AllStrategies() []RecallStrategy {
	return []RecallStrategy{StrategyExact, StrategyFuzzy, StrategySemantic, StrategyTemporal, StrategyHybrid}
}

// Valid reports whether s is a known strategy
func (s RecallStrategy) Valid() bool {
	switch s {
	case StrategyExact, StrategyFuzzy, StrategySemantic, StrategyTemporal, StrategyHybrid:
		return true
	}
	return false
}

// ParseStrategy parses a strategy name case-insensitively. An empty name yields Hybrid.
func ParseStrategy(name string) (RecallStrategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return StrategyHybrid, nil
	}
	s := RecallStrategy(name)
	if !s.Valid() {
		return "", fmt.Errorf("unknown recall strategy %q", name)
	}
	return s, nil
}

// MemoryRecord represents a single episodic memory unit
type MemoryRecord struct {
	ID             string            `json:"id"`
	Content        string            `json:"content"`
	Embedding      []float64         `json:"embedding,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	Importance     float64           `json:"importance"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	AccessCount    int               `json:"access_count"`
	Consolidated   bool              `json:"consolidated"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the record
func (r *MemoryRecord) Clone() *MemoryRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Embedding != nil {
		c.Embedding = append([]float64(nil), r.Embedding...)
	}
	if r.Tags != nil {
		c.Tags = append([]string(nil), r.Tags...)
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// TimeWindow restricts recall candidates by creation time. Zero bounds are open.
type TimeWindow struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the window (inclusive)
func (w *TimeWindow) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

const (
	DefaultMaxResults = 10
)

// RecallQuery defines parameters for a recall request
type RecallQuery struct {
	QueryText      string         `json:"query_text"`
	QueryEmbedding []float64      `json:"query_embedding,omitempty"`
	Strategy       RecallStrategy `json:"strategy,omitempty"`
	MaxResults     int            `json:"max_results,omitempty"`
	MinRelevance   float64        `json:"min_relevance,omitempty"`
	TimeWindow     *TimeWindow    `json:"time_window,omitempty"`
}

// Normalize fills in defaults for unset fields
func (q *RecallQuery) Normalize() {
	if q.Strategy == "" {
		q.Strategy = StrategyHybrid
	}
	if q.MaxResults == 0 {
		q.MaxResults = DefaultMaxResults
	}
}

// RecallResult is the envelope returned by a recall
type RecallResult struct {
	Records         []*MemoryRecord    `json:"records"`
	Strategy        RecallStrategy     `json:"strategy"`
	Duration        time.Duration      `json:"duration"`
	TotalCandidates int                `json:"total_candidates"`
	Scores          map[string]float64 `json:"scores"`
}

// StrategyPerformance holds running statistics for one strategy
type StrategyPerformance struct {
	Strategy     RecallStrategy `json:"strategy"`
	SampleCount  int            `json:"sample_count"`
	AvgRelevance float64        `json:"avg_relevance"`
	AvgLatencyMs float64        `json:"avg_latency_ms"`
	HitRate      float64        `json:"hit_rate"`
}

// ConsolidationResult reports the outcome of a consolidation sweep
type ConsolidationResult struct {
	Promoted int           `json:"promoted"`
	Pruned   int           `json:"pruned"`
	Retained int           `json:"retained"`
	Duration time.Duration `json:"duration"`
}

// Statistics summarizes the record population
type Statistics struct {
	TotalRecords        int                                    `json:"total_records"`
	ConsolidatedCount   int                                    `json:"consolidated_count"`
	AvgImportance       float64                                `json:"avg_importance"`
	StrategyPerformance map[RecallStrategy]StrategyPerformance `json:"strategy_performance"`
}
