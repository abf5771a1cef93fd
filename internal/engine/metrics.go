package engine

import (
	"context"
	"fmt"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type engineMetrics struct {
	recalls       metric.Int64Counter
	recallLatency metric.Float64Histogram
	recallResults metric.Int64Histogram
	records       metric.Int64UpDownCounter
	consolidated  metric.Int64Counter
}

func newEngineMetrics(meter metric.Meter) (*engineMetrics, error) {
	recalls, err := meter.Int64Counter(
		"meshmem.recall.requests",
		metric.WithDescription("Total number of recall requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create recall counter: %w", err)
	}

	recallLatency, err := meter.Float64Histogram(
		"meshmem.recall.latency",
		metric.WithDescription("Recall scoring latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create recall latency histogram: %w", err)
	}

	recallResults, err := meter.Int64Histogram(
		"meshmem.recall.results",
		metric.WithDescription("Records returned per recall"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create recall results histogram: %w", err)
	}

	records, err := meter.Int64UpDownCounter(
		"meshmem.records",
		metric.WithDescription("Records currently held by the engine"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create records counter: %w", err)
	}

	consolidated, err := meter.Int64Counter(
		"meshmem.consolidation.records",
		metric.WithDescription("Records promoted or pruned by consolidation"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consolidation counter: %w", err)
	}

	return &engineMetrics{
		recalls:       recalls,
		recallLatency: recallLatency,
		recallResults: recallResults,
		records:       records,
		consolidated:  consolidated,
	}, nil
}

func (m *engineMetrics) recordRecall(ctx context.Context, strategy models.RecallStrategy, latencyMs float64, results int) {
	attrs := metric.WithAttributes(attribute.String("strategy", string(strategy)))
	m.recalls.Add(ctx, 1, attrs)
	m.recallLatency.Record(ctx, latencyMs, attrs)
	m.recallResults.Record(ctx, int64(results), attrs)
}

func (m *engineMetrics) recordConsolidation(ctx context.Context, res *models.ConsolidationResult) {
	m.consolidated.Add(ctx, int64(res.Promoted), metric.WithAttributes(attribute.String("outcome", "promoted")))
	m.consolidated.Add(ctx, int64(res.Pruned), metric.WithAttributes(attribute.String("outcome", "pruned")))
	m.records.Add(ctx, -int64(res.Pruned))
}
