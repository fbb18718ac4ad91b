package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// APIMetrics holds the operation metrics shared by the GraphQL and REST surfaces.
// A nil *APIMetrics is valid and records nothing.
type APIMetrics struct {
	operationDuration metric.Float64Histogram
	operationCounter  metric.Int64Counter
	errorCounter      metric.Int64Counter
	activeRequests    metric.Int64UpDownCounter
	resultsCount      metric.Int64Histogram
	batchParentCount  metric.Int64Histogram
	batchResultRows   metric.Int64Histogram
	batchQueriesSaved metric.Int64Counter
	batchSkipped      metric.Int64Counter
	hookDuration      metric.Float64Histogram
}

// InitAPIMetrics creates the instruments on the global meter provider.
func InitAPIMetrics() (*APIMetrics, error) {
	meter := otel.Meter("autoapi")

	operationDuration, err := meter.Float64Histogram(
		"autoapi.operation.duration",
		metric.WithDescription("Duration of entity operations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	operationCounter, err := meter.Int64Counter(
		"autoapi.operations.total",
		metric.WithDescription("Total number of entity operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"autoapi.errors.total",
		metric.WithDescription("Total number of failed entity operations by error kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"autoapi.requests.active",
		metric.WithDescription("Number of in-flight API requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	resultsCount, err := meter.Int64Histogram(
		"autoapi.results.count",
		metric.WithDescription("Number of rows returned by an operation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create results count histogram: %w", err)
	}

	batchParentCount, err := meter.Int64Histogram(
		"autoapi.batch.parent_count",
		metric.WithDescription("Number of parent keys included in a relation batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch parent count histogram: %w", err)
	}

	batchResultRows, err := meter.Int64Histogram(
		"autoapi.batch.result_rows",
		metric.WithDescription("Number of rows returned by a relation batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch result rows histogram: %w", err)
	}

	batchQueriesSaved, err := meter.Int64Counter(
		"autoapi.batch.queries_saved",
		metric.WithDescription("Number of per-parent queries avoided by batching"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch queries saved counter: %w", err)
	}

	batchSkipped, err := meter.Int64Counter(
		"autoapi.batch.skipped",
		metric.WithDescription("Number of relation batches that needed no query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch skipped counter: %w", err)
	}

	hookDuration, err := meter.Float64Histogram(
		"autoapi.hook.duration",
		metric.WithDescription("Duration of hook stages in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hook duration histogram: %w", err)
	}

	return &APIMetrics{
		operationDuration: operationDuration,
		operationCounter:  operationCounter,
		errorCounter:      errorCounter,
		activeRequests:    activeRequests,
		resultsCount:      resultsCount,
		batchParentCount:  batchParentCount,
		batchResultRows:   batchResultRows,
		batchQueriesSaved: batchQueriesSaved,
		batchSkipped:      batchSkipped,
		hookDuration:      hookDuration,
	}, nil
}

// RecordOperation records one entity operation with its duration and outcome.
// errorKind is empty on success.
func (m *APIMetrics) RecordOperation(ctx context.Context, entityName, operation string, duration time.Duration, errorKind string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("entity", entityName),
		attribute.String("operation", operation),
		attribute.Bool("has_errors", errorKind != ""),
	}
	m.operationDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.operationCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if errorKind != "" {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("kind", errorKind),
		))
	}
}

// RecordResultsCount records the number of rows an operation returned.
func (m *APIMetrics) RecordResultsCount(ctx context.Context, count int64, operation string) {
	if m == nil {
		return
	}
	m.resultsCount.Record(ctx, count, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

func (m *APIMetrics) RecordBatchParentCount(ctx context.Context, count int64, relationType string) {
	if m == nil {
		return
	}
	m.batchParentCount.Record(ctx, count, metric.WithAttributes(
		attribute.String("relation_type", relationType),
	))
}

func (m *APIMetrics) RecordBatchResultRows(ctx context.Context, count int64, relationType string) {
	if m == nil {
		return
	}
	m.batchResultRows.Record(ctx, count, metric.WithAttributes(
		attribute.String("relation_type", relationType),
	))
}

func (m *APIMetrics) RecordBatchQueriesSaved(ctx context.Context, count int64, relationType string) {
	if m == nil || count <= 0 {
		return
	}
	m.batchQueriesSaved.Add(ctx, count, metric.WithAttributes(
		attribute.String("relation_type", relationType),
	))
}

func (m *APIMetrics) RecordBatchSkipped(ctx context.Context, relationType, reason string) {
	if m == nil {
		return
	}
	m.batchSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation_type", relationType),
		attribute.String("reason", reason),
	))
}

// RecordHook records the time spent in one hook stage.
func (m *APIMetrics) RecordHook(ctx context.Context, stage string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.hookDuration.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("failed", failed),
	))
}

// IncrementActiveRequests increments the in-flight request counter.
func (m *APIMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the in-flight request counter.
func (m *APIMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes the API metrics and logs the outcome.
func InitMetrics(logger *slog.Logger) (*APIMetrics, error) {
	metrics, err := InitAPIMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize API metrics: %w", err)
	}

	logger.Info("API metrics initialized")
	return metrics, nil
}
