package observability

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all engine metrics
type Metrics struct {
	meter metric.Meter

	// Counters
	sessionsTotal           metric.Int64Counter
	roundsTotal             metric.Int64Counter
	decisionsTotal          metric.Int64Counter
	decisionRetriesTotal    metric.Int64Counter
	forcedFinalizesTotal    metric.Int64Counter
	searchQueriesTotal      metric.Int64Counter
	documentsPooledTotal    metric.Int64Counter
	readsTotal              metric.Int64Counter
	auditWriteFailuresTotal metric.Int64Counter

	// Histograms
	sessionDuration  metric.Float64Histogram
	decisionDuration metric.Float64Histogram
	queryDuration    metric.Float64Histogram
	readDuration     metric.Float64Histogram

	// Gauge backing value; read from the exporter's collection goroutine.
	activeSessions     metric.Int64ObservableGauge
	activeSessionCount atomic.Int64
}

// NewMetrics creates and initializes all metrics
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{
		meter: meter,
	}

	var err error

	m.sessionsTotal, err = meter.Int64Counter(
		"research_sessions_total",
		metric.WithDescription("Total number of research sessions started"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.roundsTotal, err = meter.Int64Counter(
		"controller_rounds_total",
		metric.WithDescription("Total number of controller rounds executed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.decisionsTotal, err = meter.Int64Counter(
		"controller_decisions_total",
		metric.WithDescription("Total number of validated controller decisions by action"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.decisionRetriesTotal, err = meter.Int64Counter(
		"decision_retries_total",
		metric.WithDescription("Total number of corrective decision retries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.forcedFinalizesTotal, err = meter.Int64Counter(
		"forced_finalizes_total",
		metric.WithDescription("Total number of sessions finalized by round budget exhaustion"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.searchQueriesTotal, err = meter.Int64Counter(
		"search_queries_total",
		metric.WithDescription("Total number of search queries issued, by status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.documentsPooledTotal, err = meter.Int64Counter(
		"documents_pooled_total",
		metric.WithDescription("Total number of documents added to session pools"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.readsTotal, err = meter.Int64Counter(
		"document_reads_total",
		metric.WithDescription("Total number of document reads, by status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.auditWriteFailuresTotal, err = meter.Int64Counter(
		"audit_write_failures_total",
		metric.WithDescription("Total number of audit records that failed to persist"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.sessionDuration, err = meter.Float64Histogram(
		"session_duration_seconds",
		metric.WithDescription("Duration of research sessions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.decisionDuration, err = meter.Float64Histogram(
		"decision_duration_seconds",
		metric.WithDescription("Duration of decision-maker calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.queryDuration, err = meter.Float64Histogram(
		"search_query_duration_seconds",
		metric.WithDescription("Duration of individual search queries in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.readDuration, err = meter.Float64Histogram(
		"document_read_duration_seconds",
		metric.WithDescription("Duration of individual document reads in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.activeSessions, err = meter.Int64ObservableGauge(
		"active_sessions",
		metric.WithDescription("Number of sessions currently running"),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.activeSessionCount.Load())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSessionStart records the start of a research session
func (m *Metrics) RecordSessionStart(ctx context.Context, source string) {
	m.sessionsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
		),
	)
	m.activeSessionCount.Add(1)
}

// RecordSessionComplete records completion of a research session
func (m *Metrics) RecordSessionComplete(ctx context.Context, duration time.Duration, outcome string) {
	m.sessionDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("outcome", outcome),
		),
	)
	m.activeSessionCount.Add(-1)
}

// RecordRound records one completed controller round
func (m *Metrics) RecordRound(ctx context.Context, action string) {
	m.roundsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
		),
	)
}

// RecordDecision records a validated decision and its acquisition latency
func (m *Metrics) RecordDecision(ctx context.Context, action string, duration time.Duration) {
	m.decisionsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
		),
	)
	m.decisionDuration.Record(ctx, duration.Seconds())
}

// RecordDecisionRetry records a corrective retry after a Parse/Schema failure
func (m *Metrics) RecordDecisionRetry(ctx context.Context, reason string) {
	m.decisionRetriesTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("reason", reason),
		),
	)
}

// RecordForcedFinalize records a round-budget forced finalization
func (m *Metrics) RecordForcedFinalize(ctx context.Context) {
	m.forcedFinalizesTotal.Add(ctx, 1)
}

// RecordSearchQuery records one search query and its duration
func (m *Metrics) RecordSearchQuery(ctx context.Context, duration time.Duration, status string) {
	m.searchQueriesTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
	m.queryDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
}

// RecordDocumentsPooled records documents added to the session pool
func (m *Metrics) RecordDocumentsPooled(ctx context.Context, count int) {
	if count > 0 {
		m.documentsPooledTotal.Add(ctx, int64(count))
	}
}

// RecordRead records one document read and its duration
func (m *Metrics) RecordRead(ctx context.Context, duration time.Duration, status string) {
	m.readsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
	m.readDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
}

// RecordAuditWriteFailure records an audit record that could not be persisted
func (m *Metrics) RecordAuditWriteFailure(ctx context.Context) {
	m.auditWriteFailuresTotal.Add(ctx, 1)
}
