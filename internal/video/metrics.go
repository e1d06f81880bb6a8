package video

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const videoInstrumentationName = "github.com/fyrsmithlabs/vidaudit/internal/video"

// Metrics holds extraction metrics.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	duration metric.Float64Histogram
	frames   metric.Int64Counter
	events   metric.Int64Counter
	errors   metric.Int64Counter
}

// NewMetrics creates a Metrics instance for event extraction.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(videoInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"vidaudit.video.extraction_duration_seconds",
		metric.WithDescription("Wall time spent extracting events from one source."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.frames, err = m.meter.Int64Counter(
		"vidaudit.video.frames_sampled_total",
		metric.WithDescription("Frames scored after stride sampling, by source."),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		m.logger.Warn("failed to create frames counter", zap.Error(err))
	}

	m.events, err = m.meter.Int64Counter(
		"vidaudit.video.events_detected_total",
		metric.WithDescription("Merged event windows emitted, by source and kind."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		m.logger.Warn("failed to create events counter", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"vidaudit.video.errors_total",
		metric.WithDescription("Extraction failures by source."),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordExtraction records the outcome of one source extraction pass.
func (m *Metrics) RecordExtraction(ctx context.Context, source string, duration time.Duration, sampled, events int, err error) {
	attrs := []attribute.KeyValue{attribute.String("source", source)}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if m.frames != nil {
		m.frames.Add(ctx, int64(sampled), metric.WithAttributes(attrs...))
	}
	if m.events != nil {
		m.events.Add(ctx, int64(events), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
