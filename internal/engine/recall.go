package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type scoredRecord struct {
	rec   *models.MemoryRecord
	score float64
}

func validateQuery(q models.RecallQuery) error {
	if !q.Strategy.Valid() {
		return fmt.Errorf("unknown strategy %q: %w", q.Strategy, ErrInvalidArgument)
	}
	if q.MaxResults < 0 {
		return fmt.Errorf("max results must not be negative: %w", ErrInvalidArgument)
	}
	if math.IsNaN(q.MinRelevance) || q.MinRelevance < 0 || q.MinRelevance > 1 {
		return fmt.Errorf("min relevance must be within [0,1]: %w", ErrInvalidArgument)
	}
	switch q.Strategy {
	case models.StrategyExact, models.StrategyFuzzy:
		if strings.TrimSpace(q.QueryText) == "" {
			return fmt.Errorf("query text is required for %s recall: %w", q.Strategy, ErrInvalidArgument)
		}
	case models.StrategySemantic:
		if len(q.QueryEmbedding) == 0 {
			return fmt.Errorf("query embedding is required for semantic recall: %w", ErrInvalidArgument)
		}
	}
	if !finiteVector(q.QueryEmbedding) {
		return fmt.Errorf("query embedding has non-finite values: %w", ErrInvalidArgument)
	}
	if q.TimeWindow != nil && !q.TimeWindow.Start.IsZero() && !q.TimeWindow.End.IsZero() &&
		q.TimeWindow.End.Before(q.TimeWindow.Start) {
		return fmt.Errorf("time window ends before it starts: %w", ErrInvalidArgument)
	}
	return nil
}

// Recall scores the candidate set under the query's strategy and returns the
// best matches. Returned records have their access statistics bumped.
func (e *Engine) Recall(ctx context.Context, q models.RecallQuery) (*models.RecallResult, error) {
	q.Normalize()
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "engine.Recall", trace.WithAttributes(
		attribute.String("strategy", string(q.Strategy)),
		attribute.Int("max_results", q.MaxResults),
	))
	defer span.End()

	start := time.Now()
	now := e.now()

	candidates := lo.Filter(e.records.snapshot(), func(rec *models.MemoryRecord, _ int) bool {
		return q.TimeWindow.Contains(rec.CreatedAt)
	})

	result := &models.RecallResult{
		Records:         []*models.MemoryRecord{},
		Strategy:        q.Strategy,
		TotalCandidates: len(candidates),
		Scores:          map[string]float64{},
	}
	if len(candidates) == 0 {
		result.Duration = time.Since(start)
		e.metrics.recordRecall(ctx, q.Strategy, float64(result.Duration.Microseconds())/1000, 0)
		e.logger.Debug().Str("strategy", string(q.Strategy)).Msg("Recall: empty candidate set")
		return result, nil
	}

	sc := newScorer(q, candidates, now)
	ranked := make([]scoredRecord, 0, len(candidates))
	for _, rec := range candidates {
		score, keep := sc.score(q.Strategy, rec)
		if !keep {
			continue
		}
		score = clamp01(score)
		if score < q.MinRelevance {
			continue
		}
		ranked = append(ranked, scoredRecord{rec: rec, score: score})
	}

	// stable sort keeps candidate order for equal scores
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > q.MaxResults {
		ranked = ranked[:q.MaxResults]
	}

	for _, sr := range ranked {
		touched, ok := e.touch(sr.rec.ID, now)
		if !ok {
			// deleted since the snapshot
			continue
		}
		result.Records = append(result.Records, touched)
		result.Scores[touched.ID] = sr.score
	}

	result.Duration = time.Since(start)
	e.metrics.recordRecall(ctx, q.Strategy, float64(result.Duration.Microseconds())/1000, len(result.Records))
	span.SetAttributes(
		attribute.Int("candidates", result.TotalCandidates),
		attribute.Int("results", len(result.Records)),
	)

	e.logger.Debug().
		Str("strategy", string(q.Strategy)).
		Int("candidates", result.TotalCandidates).
		Int("scored", len(ranked)).
		Int("returning", len(result.Records)).
		Dur("duration", result.Duration).
		Msg("Recall: completed")
	return result, nil
}

// RecallByTags ranks records by the number of matching tags, then by
// importance. Tag comparison is case-insensitive.
func (e *Engine) RecallByTags(ctx context.Context, tags []string, maxResults int) ([]*models.MemoryRecord, error) {
	wanted := lo.Uniq(lo.FilterMap(tags, func(tag string, _ int) (string, bool) {
		t := normalizeTag(tag)
		return t, t != ""
	}))
	if len(wanted) == 0 {
		return nil, fmt.Errorf("at least one tag is required: %w", ErrInvalidArgument)
	}
	if maxResults <= 0 {
		maxResults = models.DefaultMaxResults
	}

	wantedSet := lo.SliceToMap(wanted, func(t string) (string, struct{}) {
		return t, struct{}{}
	})

	type tagMatch struct {
		rec     *models.MemoryRecord
		matches int
	}
	var matched []tagMatch
	for _, rec := range e.records.snapshot() {
		n := lo.CountBy(lo.Uniq(lo.Map(rec.Tags, func(t string, _ int) string {
			return normalizeTag(t)
		})), func(t string) bool {
			_, ok := wantedSet[t]
			return ok
		})
		if n > 0 {
			matched = append(matched, tagMatch{rec: rec, matches: n})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].matches != matched[j].matches {
			return matched[i].matches > matched[j].matches
		}
		return matched[i].rec.Importance > matched[j].rec.Importance
	})
	if len(matched) > maxResults {
		matched = matched[:maxResults]
	}

	now := e.now()
	out := make([]*models.MemoryRecord, 0, len(matched))
	for _, m := range matched {
		if touched, ok := e.touch(m.rec.ID, now); ok {
			out = append(out, touched)
		}
	}

	e.logger.Debug().
		Strs("tags", wanted).
		Int("matched", len(matched)).
		Int("returning", len(out)).
		Msg("RecallByTags: completed")
	return out, nil
}

// RecallRecent returns the most recently used records without touching their
// access statistics.
func (e *Engine) RecallRecent(ctx context.Context, count int) []*models.MemoryRecord {
	if count <= 0 {
		return []*models.MemoryRecord{}
	}
	recs := e.records.snapshot()
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].LastAccessedAt.Equal(recs[j].LastAccessedAt) {
			return recs[i].LastAccessedAt.After(recs[j].LastAccessedAt)
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	if len(recs) > count {
		recs = recs[:count]
	}
	return recs
}

// touch records a recall hit on the live record.
func (e *Engine) touch(id string, now time.Time) (*models.MemoryRecord, bool) {
	return e.records.mutate(id, func(rec *models.MemoryRecord) {
		rec.AccessCount++
		rec.LastAccessedAt = now
	})
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
