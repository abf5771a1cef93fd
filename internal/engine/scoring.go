package engine

import (
	"strings"
	"time"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
)

// Hybrid weights. They are not renormalized when a record lacks a signal.
const (
	weightExact    = 0.30
	weightFuzzy    = 0.25
	weightSemantic = 0.30
	weightTemporal = 0.15
)

const (
	scoreExactContent = 1.0
	scoreExactTag     = 0.9
	scoreSubstring    = 0.7
)

// scorer holds the per-query state shared by every candidate.
type scorer struct {
	text      string
	embedding []float64
	now       time.Time
	minAge    time.Duration
	ageRange  time.Duration
}

func newScorer(q models.RecallQuery, candidates []*models.MemoryRecord, now time.Time) *scorer {
	s := &scorer{
		text:      strings.ToLower(q.QueryText),
		embedding: q.QueryEmbedding,
		now:       now,
	}
	if len(candidates) == 0 {
		return s
	}
	minAge, maxAge := now.Sub(candidates[0].CreatedAt).Abs(), now.Sub(candidates[0].CreatedAt).Abs()
	for _, c := range candidates[1:] {
		age := now.Sub(c.CreatedAt).Abs()
		minAge = min(minAge, age)
		maxAge = max(maxAge, age)
	}
	s.minAge = minAge
	s.ageRange = maxAge - minAge
	return s
}

// score returns the relevance of rec under strategy and whether the record
// stays in the result set. Only exact misses and records without a comparable
// embedding drop out here; everything else is left to minRelevance.
func (s *scorer) score(strategy models.RecallStrategy, rec *models.MemoryRecord) (float64, bool) {
	switch strategy {
	case models.StrategyExact:
		v := s.exact(rec)
		return v, v > 0
	case models.StrategyFuzzy:
		return s.fuzzy(rec), true
	case models.StrategySemantic:
		v, ok := s.semantic(rec)
		return v, ok
	case models.StrategyTemporal:
		return s.temporal(rec), true
	case models.StrategyHybrid:
		return s.hybrid(rec), true
	}
	return 0, false
}

func (s *scorer) exact(rec *models.MemoryRecord) float64 {
	if s.text == "" {
		return 0
	}
	content := strings.ToLower(rec.Content)
	if content == s.text {
		return scoreExactContent
	}
	for _, tag := range rec.Tags {
		if strings.ToLower(tag) == s.text {
			return scoreExactTag
		}
	}
	if strings.Contains(content, s.text) {
		return scoreSubstring
	}
	return 0
}

func (s *scorer) fuzzy(rec *models.MemoryRecord) float64 {
	if s.text == "" {
		return 0
	}
	return FuzzySimilarity(s.text, rec.Content)
}

// semantic rescales cosine similarity from [-1,1] to [0,1]. Records or
// queries without an embedding are excluded.
func (s *scorer) semantic(rec *models.MemoryRecord) (float64, bool) {
	if len(s.embedding) == 0 || len(rec.Embedding) == 0 {
		return 0, false
	}
	return clamp01((CosineSimilarity(s.embedding, rec.Embedding) + 1) / 2), true
}

// temporal is 1 for the newest candidate and 0 for the oldest, linear between.
func (s *scorer) temporal(rec *models.MemoryRecord) float64 {
	divisor := s.ageRange.Seconds()
	if divisor == 0 {
		divisor = 1
	}
	age := s.now.Sub(rec.CreatedAt).Abs() - s.minAge
	return clamp01(1 - age.Seconds()/divisor)
}

func (s *scorer) hybrid(rec *models.MemoryRecord) float64 {
	semantic, _ := s.semantic(rec)
	return clamp01(weightExact*s.exact(rec) +
		weightFuzzy*s.fuzzy(rec) +
		weightSemantic*semantic +
		weightTemporal*s.temporal(rec))
}
