// Package service adapts host requests (REST and MCP) to the engine ports.
// It owns id assignment, timestamp parsing and embedding of text that
// arrives without a vector.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/embedding"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/engine"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// StrategyBest asks the service to use the adaptation port's recommendation.
const StrategyBest = "best"

const defaultImportance = 0.5

// Engine is everything the hosts need from the memory engine.
type Engine interface {
	engine.StorePort
	engine.RecallPort
	engine.ConsolidationPort
	engine.AdaptationPort
}

// Service is shared by the REST and MCP hosts.
type Service struct {
	engine        Engine
	embedder      embedding.Embedder
	embedTimeout  time.Duration
	consolidation engine.ConsolidationOptions
	logger        zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEmbedder enables embedding of content and query text. A nil embedder
// leaves embedding disabled.
func WithEmbedder(e embedding.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// WithEmbedTimeout bounds each embedding call.
func WithEmbedTimeout(d time.Duration) Option {
	return func(s *Service) { s.embedTimeout = d }
}

// WithConsolidationOptions sets the defaults used when a consolidate request
// omits a threshold.
func WithConsolidationOptions(o engine.ConsolidationOptions) Option {
	return func(s *Service) { s.consolidation = o }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New wraps eng.
func New(eng Engine, opts ...Option) *Service {
	s := &Service{
		engine:        eng,
		embedTimeout:  5 * time.Second,
		consolidation: engine.DefaultConsolidationOptions(),
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "service").Logger()
	return s
}

// StoreInput is a request to create a record.
type StoreInput struct {
	ID         string            `json:"id,omitempty"`
	Content    string            `json:"content"`
	Embedding  []float64         `json:"embedding,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Importance *float64          `json:"importance,omitempty"`
	CreatedAt  string            `json:"created_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Store creates a record, assigning a UUID when no id is given. The second
// return value reports whether an embedding was generated for it.
func (s *Service) Store(ctx context.Context, in StoreInput) (*models.MemoryRecord, bool, error) {
	if strings.TrimSpace(in.Content) == "" && len(in.Embedding) == 0 {
		return nil, false, fmt.Errorf("content or embedding is required: %w", engine.ErrInvalidArgument)
	}

	createdAt, err := parseTime("created_at", in.CreatedAt)
	if err != nil {
		return nil, false, err
	}

	rec := &models.MemoryRecord{
		ID:         in.ID,
		Content:    in.Content,
		Embedding:  in.Embedding,
		Tags:       cleanTags(in.Tags),
		Importance: lo.FromPtrOr(in.Importance, defaultImportance),
		CreatedAt:  createdAt,
		Metadata:   in.Metadata,
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	embedded := false
	if len(rec.Embedding) == 0 && rec.Content != "" {
		if vec := s.embed(ctx, rec.Content); vec != nil {
			rec.Embedding = vec
			embedded = true
		}
	}

	stored, err := s.engine.Store(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	return stored, embedded, nil
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, id string) (*models.MemoryRecord, error) {
	return s.engine.Get(ctx, id)
}

// UpdateInput carries the fields to change; nil fields are left as they are.
type UpdateInput struct {
	Content    *string            `json:"content,omitempty"`
	Embedding  *[]float64         `json:"embedding,omitempty"`
	Tags       *[]string          `json:"tags,omitempty"`
	Importance *float64           `json:"importance,omitempty"`
	Metadata   *map[string]string `json:"metadata,omitempty"`
}

// Update applies in to the current record. Changing content without
// supplying a new embedding re-embeds the record. The embedding is generated
// first; the field changes then land in one engine patch.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.MemoryRecord, error) {
	var reembedded []float64
	reembed := false
	if in.Content != nil && in.Embedding == nil {
		cur, err := s.engine.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if *in.Content != cur.Content {
			reembed = true
			reembedded = s.embed(ctx, *in.Content)
		}
	}

	return s.engine.Patch(ctx, id, func(rec *models.MemoryRecord) {
		if in.Content != nil {
			rec.Content = *in.Content
		}
		if reembed {
			rec.Embedding = reembedded
		}
		if in.Embedding != nil {
			rec.Embedding = *in.Embedding
		}
		if in.Tags != nil {
			rec.Tags = cleanTags(*in.Tags)
		}
		if in.Importance != nil {
			rec.Importance = *in.Importance
		}
		if in.Metadata != nil {
			rec.Metadata = *in.Metadata
		}
	})
}

// Delete removes a record and reports whether it existed.
func (s *Service) Delete(ctx context.Context, id string) bool {
	return s.engine.Delete(ctx, id)
}

// Statistics summarizes the engine.
func (s *Service) Statistics(ctx context.Context) models.Statistics {
	return s.engine.Statistics(ctx)
}

// RecallInput is a host-level recall request. Strategy may be empty (hybrid),
// a strategy name, or "best".
type RecallInput struct {
	QueryText      string    `json:"query_text"`
	QueryEmbedding []float64 `json:"query_embedding,omitempty"`
	Strategy       string    `json:"strategy,omitempty"`
	MaxResults     int       `json:"max_results,omitempty"`
	MinRelevance   float64   `json:"min_relevance,omitempty"`
	After          string    `json:"after,omitempty"`
	Before         string    `json:"before,omitempty"`
}

// Recall resolves the strategy, embeds the query text when the strategy can
// use a vector and runs the recall.
func (s *Service) Recall(ctx context.Context, in RecallInput) (*models.RecallResult, error) {
	strategy, err := s.resolveStrategy(ctx, in.Strategy)
	if err != nil {
		return nil, err
	}

	q := models.RecallQuery{
		QueryText:      in.QueryText,
		QueryEmbedding: in.QueryEmbedding,
		Strategy:       strategy,
		MaxResults:     in.MaxResults,
		MinRelevance:   in.MinRelevance,
	}

	after, err := parseTime("after", in.After)
	if err != nil {
		return nil, err
	}
	before, err := parseTime("before", in.Before)
	if err != nil {
		return nil, err
	}
	if !after.IsZero() || !before.IsZero() {
		q.TimeWindow = &models.TimeWindow{Start: after, End: before}
	}

	usesVector := strategy == models.StrategySemantic || strategy == models.StrategyHybrid
	if usesVector && len(q.QueryEmbedding) == 0 && q.QueryText != "" {
		q.QueryEmbedding = s.embed(ctx, q.QueryText)
	}

	return s.engine.Recall(ctx, q)
}

// RecallByTags ranks records by matching tags.
func (s *Service) RecallByTags(ctx context.Context, tags []string, maxResults int) ([]*models.MemoryRecord, error) {
	return s.engine.RecallByTags(ctx, tags, maxResults)
}

// RecallRecent lists recently used records without touching them.
func (s *Service) RecallRecent(ctx context.Context, count int) []*models.MemoryRecord {
	return s.engine.RecallRecent(ctx, count)
}

// ConsolidateInput overrides the configured consolidation thresholds.
// PruneAge accepts Go durations and a day suffix such as "30d".
type ConsolidateInput struct {
	AccessCountThreshold *int     `json:"access_count_threshold,omitempty"`
	ImportanceThreshold  *float64 `json:"importance_threshold,omitempty"`
	PruneAge             string   `json:"prune_age,omitempty"`
}

// Consolidate runs a sweep with the configured defaults overlaid by in.
func (s *Service) Consolidate(ctx context.Context, in ConsolidateInput) (*models.ConsolidationResult, error) {
	opts := s.consolidation
	if in.AccessCountThreshold != nil {
		opts.AccessCountThreshold = *in.AccessCountThreshold
	}
	if in.ImportanceThreshold != nil {
		opts.ImportanceThreshold = *in.ImportanceThreshold
	}
	if in.PruneAge != "" {
		age, err := ParseAge(in.PruneAge)
		if err != nil {
			return nil, err
		}
		opts.PruneAge = age
	}
	return s.engine.Consolidate(ctx, opts)
}

// PerformanceInput reports the outcome of one recall.
type PerformanceInput struct {
	Relevance float64 `json:"relevance"`
	LatencyMs float64 `json:"latency_ms"`
	WasHit    bool    `json:"was_hit"`
}

// RecordPerformance feeds one outcome to the adaptation port.
func (s *Service) RecordPerformance(ctx context.Context, strategy string, in PerformanceInput) (models.StrategyPerformance, error) {
	st, err := models.ParseStrategy(strategy)
	if err != nil || strings.TrimSpace(strategy) == "" {
		return models.StrategyPerformance{}, fmt.Errorf("unknown strategy %q: %w", strategy, engine.ErrInvalidArgument)
	}
	return s.engine.RecordPerformance(ctx, st, in.Relevance, in.LatencyMs, in.WasHit)
}

// BestStrategy returns the recommended strategy.
func (s *Service) BestStrategy(ctx context.Context) models.RecallStrategy {
	return s.engine.GetBestStrategy(ctx)
}

func (s *Service) resolveStrategy(ctx context.Context, name string) (models.RecallStrategy, error) {
	if strings.EqualFold(strings.TrimSpace(name), StrategyBest) {
		return s.engine.GetBestStrategy(ctx), nil
	}
	st, err := models.ParseStrategy(name)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, engine.ErrInvalidArgument)
	}
	return st, nil
}

// embed returns nil when embedding is disabled or fails; callers store or
// query without a vector in that case.
func (s *Service) embed(ctx context.Context, text string) []float64 {
	if s.embedder == nil || text == "" {
		return nil
	}
	// detached so a cancelled client request does not abort the embedding
	embedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.embedTimeout)
	defer cancel()

	vec, err := s.embedder.Generate(embedCtx, text)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to generate embedding")
		return nil
	}
	s.logger.Debug().Int("dims", len(vec)).Msg("Generated embedding")
	return vec
}

func parseTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s format, use ISO 8601: %w", field, engine.ErrInvalidArgument)
	}
	return t, nil
}

// ParseAge parses a Go duration or a whole number of days ("30d").
func ParseAge(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid age %q: %w", value, engine.ErrInvalidArgument)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid age %q: %w", value, engine.ErrInvalidArgument)
	}
	return d, nil
}

func cleanTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	return lo.Uniq(lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		t = strings.TrimSpace(t)
		return t, t != ""
	}))
}
