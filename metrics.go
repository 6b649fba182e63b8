package eventqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records event queue metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordOffer records an offer attempt and its outcome.
	RecordOffer(ctx context.Context, extended bool, words int, err error)

	// RecordWake records an attempt to resume the parked consumer.
	RecordWake(ctx context.Context, err error)

	// RecordDispatch records one event handed to a handler.
	RecordDispatch(ctx context.Context, typ uint8, extended bool, duration time.Duration, err error)

	// RecordDrain records payload bytes the handler left unread.
	RecordDrain(ctx context.Context, typ uint8, bytes int, err error)
}

type otelMetrics struct {
	offers       metric.Int64Counter
	offeredWords metric.Int64Counter
	wakes        metric.Int64Counter
	dispatches   metric.Int64Counter
	dispatchTime metric.Float64Histogram
	drained      metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventqueue")

	offers, err := meter.Int64Counter("eventqueue.offers",
		metric.WithDescription("Number of offered events by kind and result"),
	)
	if err != nil {
		return nil, err
	}

	offeredWords, err := meter.Int64Counter("eventqueue.offered_words",
		metric.WithDescription("Number of words queued by successful offers"),
	)
	if err != nil {
		return nil, err
	}

	wakes, err := meter.Int64Counter("eventqueue.wakes",
		metric.WithDescription("Number of attempts to resume the parked consumer"),
	)
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter("eventqueue.dispatches",
		metric.WithDescription("Number of events dispatched to handlers"),
	)
	if err != nil {
		return nil, err
	}

	dispatchTime, err := meter.Float64Histogram("eventqueue.dispatch.latency_ms",
		metric.WithDescription("Handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	drained, err := meter.Int64Counter("eventqueue.drained_bytes",
		metric.WithDescription("Extended payload bytes discarded after the handler returned"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		offers:       offers,
		offeredWords: offeredWords,
		wakes:        wakes,
		dispatches:   dispatches,
		dispatchTime: dispatchTime,
		drained:      drained,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *otelMetrics) RecordOffer(ctx context.Context, extended bool, words int, err error) {
	attrs := metric.WithAttributes(
		attribute.Bool("extended", extended),
		attribute.String("result", result(err)),
	)
	m.offers.Add(ctx, 1, attrs)
	if err == nil {
		m.offeredWords.Add(ctx, int64(words), metric.WithAttributes(attribute.Bool("extended", extended)))
	}
}

func (m *otelMetrics) RecordWake(ctx context.Context, err error) {
	m.wakes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result(err))))
}

func (m *otelMetrics) RecordDispatch(ctx context.Context, typ uint8, extended bool, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.Int("type", int(typ)),
		attribute.Bool("extended", extended),
		attribute.String("result", result(err)),
	)
	m.dispatches.Add(ctx, 1, attrs)
	m.dispatchTime.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (m *otelMetrics) RecordDrain(ctx context.Context, typ uint8, bytes int, err error) {
	m.drained.Add(ctx, int64(bytes), metric.WithAttributes(
		attribute.Int("type", int(typ)),
		attribute.String("result", result(err)),
	))
}

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordOffer(_ context.Context, _ bool, _ int, _ error) {}

func (NoopMetrics) RecordWake(_ context.Context, _ error) {}

func (NoopMetrics) RecordDispatch(_ context.Context, _ uint8, _ bool, _ time.Duration, _ error) {}

func (NoopMetrics) RecordDrain(_ context.Context, _ uint8, _ int, _ error) {}
