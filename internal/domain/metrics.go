package domain

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce    sync.Once
	fetchedCounter otelmetric.Int64Counter
	persistCounter otelmetric.Int64Counter
	tagCounter     otelmetric.Int64Counter
	runDuration    otelmetric.Float64Histogram
	metricsInitErr error
)

func initIndexerMetrics() {
	meter := otel.Meter("indexer")
	var err error
	fetchedCounter, err = meter.Int64Counter("indexer.casts.fetched")
	if err != nil {
		metricsInitErr = err
		return
	}
	persistCounter, err = meter.Int64Counter("indexer.casts.persisted")
	if err != nil {
		metricsInitErr = err
		return
	}
	tagCounter, err = meter.Int64Counter("indexer.tags.persisted")
	if err != nil {
		metricsInitErr = err
		return
	}
	runDuration, err = meter.Float64Histogram("indexer.run.duration", otelmetric.WithUnit("s"))
	if err != nil {
		metricsInitErr = err
	}
}

func recordRun(ctx context.Context, r *RunReport) {
	metricsOnce.Do(initIndexerMetrics)
	if metricsInitErr != nil {
		return
	}

	status := "ok"
	if r.Failed() {
		status = "error"
	}

	fetchedCounter.Add(ctx, int64(r.Fetched))
	persistCounter.Add(ctx, int64(r.Persisted))
	tagCounter.Add(ctx, int64(r.ExplicitTags), otelmetric.WithAttributes(attribute.String("kind", "explicit")))
	tagCounter.Add(ctx, int64(r.ImplicitTags), otelmetric.WithAttributes(attribute.String("kind", "implicit")))
	tagCounter.Add(ctx, int64(r.SuggestedTags), otelmetric.WithAttributes(attribute.String("kind", "suggested")))
	runDuration.Record(ctx, r.Duration.Seconds(), otelmetric.WithAttributes(attribute.String("status", status)))
}
