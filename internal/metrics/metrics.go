// Package metrics instruments the pipeline with OpenTelemetry counters and
// histograms. Without a configured SDK the global meter is a no-op, so the
// instruments cost nothing in default builds.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "talkback"

// Metrics bundles the pipeline instruments.
type Metrics struct {
	parsed     metric.Int64Counter
	enqueued   metric.Int64Counter
	played     metric.Int64Counter
	errored    metric.Int64Counter
	cacheHits  metric.Int64Counter
	cacheMiss  metric.Int64Counter
	synthesis  metric.Float64Histogram
	playback   metric.Float64Histogram
	queueDepth metric.Int64ObservableGauge
}

// New creates the instrument set and registers the queue depth callback.
func New(queueSize func() int) (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}

	var err error
	if m.parsed, err = meter.Int64Counter("talkback.messages.parsed",
		metric.WithDescription("Messages extracted from session logs")); err != nil {
		return nil, err
	}
	if m.enqueued, err = meter.Int64Counter("talkback.messages.enqueued",
		metric.WithDescription("Messages accepted into the playback queue")); err != nil {
		return nil, err
	}
	if m.played, err = meter.Int64Counter("talkback.messages.played",
		metric.WithDescription("Messages played to completion")); err != nil {
		return nil, err
	}
	if m.errored, err = meter.Int64Counter("talkback.messages.errored",
		metric.WithDescription("Messages that failed synthesis or playback")); err != nil {
		return nil, err
	}
	if m.cacheHits, err = meter.Int64Counter("talkback.cache.hits",
		metric.WithDescription("Audio cache hits")); err != nil {
		return nil, err
	}
	if m.cacheMiss, err = meter.Int64Counter("talkback.cache.misses",
		metric.WithDescription("Audio cache misses")); err != nil {
		return nil, err
	}
	if m.synthesis, err = meter.Float64Histogram("talkback.synthesis.duration",
		metric.WithDescription("Speech synthesis duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.playback, err = meter.Float64Histogram("talkback.playback.duration",
		metric.WithDescription("End-to-end playback duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	if queueSize != nil {
		m.queueDepth, err = meter.Int64ObservableGauge("talkback.queue.depth",
			metric.WithDescription("Pending items in the playback queue"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(queueSize()))
				return nil
			}))
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Noop returns a Metrics whose instruments come from the global (by default
// no-op) meter, without a queue depth callback.
func Noop() *Metrics {
	m, _ := New(nil)
	return m
}

func profileAttr(profileID string) metric.AddOption {
	return metric.WithAttributes(attribute.String("profile", profileID))
}

// Parsed counts extracted messages.
func (m *Metrics) Parsed(ctx context.Context, profileID string, n int) {
	m.parsed.Add(ctx, int64(n), profileAttr(profileID))
}

// Enqueued counts queue admissions.
func (m *Metrics) Enqueued(ctx context.Context, profileID string) {
	m.enqueued.Add(ctx, 1, profileAttr(profileID))
}

// Played records a completed playback and its duration.
func (m *Metrics) Played(ctx context.Context, profileID string, elapsed time.Duration) {
	m.played.Add(ctx, 1, profileAttr(profileID))
	m.playback.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("profile", profileID)))
}

// Errored counts failed playbacks.
func (m *Metrics) Errored(ctx context.Context, profileID string) {
	m.errored.Add(ctx, 1, profileAttr(profileID))
}

// CacheHit counts artifacts served from the cache.
func (m *Metrics) CacheHit(ctx context.Context, profileID string) {
	m.cacheHits.Add(ctx, 1, profileAttr(profileID))
}

// CacheMiss counts synthesis calls the cache could not avoid.
func (m *Metrics) CacheMiss(ctx context.Context, profileID string) {
	m.cacheMiss.Add(ctx, 1, profileAttr(profileID))
}

// Synthesized records one provider round trip.
func (m *Metrics) Synthesized(ctx context.Context, profileID string, elapsed time.Duration) {
	m.synthesis.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("profile", profileID)))
}
