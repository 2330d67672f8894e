package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentRound wraps one controller round with a span.
func (t *Telemetry) InstrumentRound(ctx context.Context, roundIndex int, stage string, fn func(context.Context) error) error {
	ctx, span := t.StartSpan(ctx, fmt.Sprintf("engine.round.%d", roundIndex),
		trace.WithAttributes(
			attribute.Int("round.index", roundIndex),
			attribute.String("round.stage", stage),
		),
	)
	defer span.End()

	startTime := time.Now()
	err := fn(ctx)
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(
		attribute.Float64("duration.seconds", duration.Seconds()),
	)

	return err
}

// InstrumentDecisionCall wraps a decision-maker call with a span.
func (t *Telemetry) InstrumentDecisionCall(ctx context.Context, stage string, attempt int, fn func(context.Context) error) error {
	ctx, span := t.StartSpan(ctx, "decision.obtain",
		trace.WithAttributes(
			attribute.String("decision.stage", stage),
			attribute.Int("decision.attempt", attempt),
		),
	)
	defer span.End()

	startTime := time.Now()
	err := fn(ctx)
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(
		attribute.Float64("duration.seconds", duration.Seconds()),
	)

	return err
}

// InstrumentSearchQuery wraps one fan-out search query with a span.
func (t *Telemetry) InstrumentSearchQuery(ctx context.Context, queryIndex int, freshness string, fn func(context.Context) (hits int, err error)) error {
	ctx, span := t.StartSpan(ctx, "search.query",
		trace.WithAttributes(
			attribute.Int("query.index", queryIndex),
			attribute.String("query.freshness", freshness),
		),
	)
	defer span.End()

	hits, err := fn(ctx)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Int("query.hits", hits))
	}

	return err
}

// InstrumentRead wraps one document read with a span. Synthetic failure
// reports still end the span cleanly; only the failure itself is recorded.
func (t *Telemetry) InstrumentRead(ctx context.Context, docID string, fn func(context.Context) error) error {
	ctx, span := t.StartSpan(ctx, "reader.read",
		trace.WithAttributes(
			attribute.String("doc.id", docID),
		),
	)
	defer span.End()

	startTime := time.Now()
	err := fn(ctx)
	duration := time.Since(startTime)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(
		attribute.String("read.status", status),
		attribute.Float64("read.duration_seconds", duration.Seconds()),
	)

	return err
}
