package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
)

var recordColumns = []string{
	"seq", "id", "content", "embedding", "tags", "importance",
	"created_at", "last_accessed_at", "access_count", "consolidated", "metadata",
}

var performanceColumns = []string{
	"strategy", "sample_count", "avg_relevance", "avg_latency_ms", "hit_rate", "saved_at",
}

// Store persists engine snapshots in DuckDB
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the DuckDB file at dbPath
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize sets up the schema. Tables carry no primary key because a
// snapshot replaces their contents inside one transaction; id uniqueness is
// enforced by the engine.
func (s *Store) initialize() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memory_records (
			seq BIGINT NOT NULL,
			id VARCHAR NOT NULL,
			content TEXT NOT NULL,
			embedding DOUBLE[],
			tags VARCHAR[],
			importance DOUBLE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			last_accessed_at TIMESTAMPTZ NOT NULL,
			access_count INTEGER NOT NULL,
			consolidated BOOLEAN NOT NULL,
			metadata JSON
		);

		CREATE TABLE IF NOT EXISTS strategy_performance (
			strategy VARCHAR NOT NULL,
			sample_count INTEGER NOT NULL,
			avg_relevance DOUBLE NOT NULL,
			avg_latency_ms DOUBLE NOT NULL,
			hit_rate DOUBLE NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// SaveRecords replaces the persisted record set
func (s *Store) SaveRecords(ctx context.Context, recs []*models.MemoryRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return saveRecords(ctx, tx, recs)
	})
}

// SavePerformance replaces the persisted strategy statistics
func (s *Store) SavePerformance(ctx context.Context, perf []models.StrategyPerformance) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return savePerformance(ctx, tx, perf)
	})
}

// SaveSnapshot writes records and strategy statistics atomically
func (s *Store) SaveSnapshot(ctx context.Context, recs []*models.MemoryRecord, perf []models.StrategyPerformance) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := saveRecords(ctx, tx, recs); err != nil {
			return err
		}
		return savePerformance(ctx, tx, perf)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func saveRecords(ctx context.Context, tx *sql.Tx, recs []*models.MemoryRecord) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM memory_records"); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	for i, rec := range recs {
		// Lists and metadata go in as JSON text and are cast by DuckDB
		tagsJSON, err := jsonColumn(rec.Tags, len(rec.Tags))
		if err != nil {
			return fmt.Errorf("failed to encode tags of %q: %w", rec.ID, err)
		}
		embeddingJSON, err := jsonColumn(rec.Embedding, len(rec.Embedding))
		if err != nil {
			return fmt.Errorf("failed to encode embedding of %q: %w", rec.ID, err)
		}
		metadataJSON, err := jsonColumn(rec.Metadata, len(rec.Metadata))
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %q: %w", rec.ID, err)
		}

		query, args, err := sq.Insert("memory_records").
			Columns(recordColumns...).
			Values(i, rec.ID, rec.Content, embeddingJSON, tagsJSON, rec.Importance,
				rec.CreatedAt, rec.LastAccessedAt, rec.AccessCount, rec.Consolidated, metadataJSON).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
	}
	return nil
}

// jsonColumn encodes v as JSON text, or NULL when it has no elements.
func jsonColumn(v interface{}, n int) (interface{}, error) {
	if n == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func savePerformance(ctx context.Context, tx *sql.Tx, perf []models.StrategyPerformance) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM strategy_performance"); err != nil {
		return fmt.Errorf("failed to clear strategy performance: %w", err)
	}
	if len(perf) == 0 {
		return nil
	}

	now := time.Now()
	insert := sq.Insert("strategy_performance").Columns(performanceColumns...)
	for _, p := range perf {
		insert = insert.Values(string(p.Strategy), p.SampleCount, p.AvgRelevance, p.AvgLatencyMs, p.HitRate, now)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert strategy performance: %w", err)
	}
	return nil
}

// LoadRecords returns the persisted records in their original order
func (s *Store) LoadRecords(ctx context.Context) ([]*models.MemoryRecord, error) {
	query, args, err := sq.Select(recordColumns...).
		From("memory_records").
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var recs []*models.MemoryRecord
	for rows.Next() {
		var rec models.MemoryRecord
		var seq int64
		var tagsRaw, embeddingRaw, metadataRaw interface{}

		err := rows.Scan(
			&seq, &rec.ID, &rec.Content, &embeddingRaw, &tagsRaw, &rec.Importance,
			&rec.CreatedAt, &rec.LastAccessedAt, &rec.AccessCount, &rec.Consolidated, &metadataRaw,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec.Tags = parseTags(tagsRaw)
		rec.Embedding = parseEmbedding(embeddingRaw)
		rec.Metadata = parseMetadata(metadataRaw)
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// LoadPerformance returns the persisted strategy statistics
func (s *Store) LoadPerformance(ctx context.Context) ([]models.StrategyPerformance, error) {
	query, args, err := sq.Select("strategy", "sample_count", "avg_relevance", "avg_latency_ms", "hit_rate").
		From("strategy_performance").
		OrderBy("strategy").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy performance: %w", err)
	}
	defer rows.Close()

	var perf []models.StrategyPerformance
	for rows.Next() {
		var p models.StrategyPerformance
		var strategy string
		if err := rows.Scan(&strategy, &p.SampleCount, &p.AvgRelevance, &p.AvgLatencyMs, &p.HitRate); err != nil {
			return nil, fmt.Errorf("failed to scan strategy performance: %w", err)
		}
		p.Strategy = models.RecallStrategy(strategy)
		perf = append(perf, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perf, nil
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DuckDB returns VARCHAR[] as []interface{}
func parseTags(raw interface{}) []string {
	switch v := raw.(type) {
	case []interface{}:
		tags := make([]string, 0, len(v))
		for _, tag := range v {
			if s, ok := tag.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	case []string:
		return v
	}
	return nil
}

// DuckDB returns DOUBLE[] as []interface{} with float64 elements
func parseEmbedding(raw interface{}) []float64 {
	switch v := raw.(type) {
	case []interface{}:
		out := make([]float64, len(v))
		for i, val := range v {
			switch f := val.(type) {
			case float64:
				out[i] = f
			case float32:
				out[i] = float64(f)
			}
		}
		return out
	case []float64:
		return v
	}
	return nil
}

// JSON columns come back either decoded or as text
func parseMetadata(raw interface{}) map[string]string {
	var decoded map[string]interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		decoded = v
	case string:
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil
		}
	case []byte:
		if err := json.Unmarshal(v, &decoded); err != nil {
			return nil
		}
	default:
		return nil
	}

	out := make(map[string]string, len(decoded))
	for k, val := range decoded {
		if s, ok := val.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
