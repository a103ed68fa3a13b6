// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	Regenerations        prometheus.Counter
	RegenerationFailures *prometheus.CounterVec // label: class
	ResolveBatches       prometheus.Counter
	TracksResolved       prometheus.Counter
	CommentaryRenders    *prometheus.CounterVec // labels: kind, result
	TrackPlays           prometheus.Counter
	TrackSkips           prometheus.Counter
	StatsDropped         prometheus.Counter

	// Histograms (seconds)
	RegenerationDuration prometheus.Observer
	SynthesisDuration    prometheus.Observer

	// Gauges
	ActiveSessions prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		Regenerations = promauto.NewCounter(prometheus.CounterOpts{Name: "dj_regenerations_total", Help: "Number of regeneration cycles started"})
		RegenerationFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "dj_regeneration_failures_total", Help: "Regeneration cycles that ended without injecting tracks"}, []string{"class"})
		ResolveBatches = promauto.NewCounter(prometheus.CounterOpts{Name: "dj_resolve_batches_total", Help: "Number of resolution batches executed"})
		TracksResolved = promauto.NewCounter(prometheus.CounterOpts{Name: "dj_tracks_resolved_total", Help: "Number of candidates resolved to playable tracks"})
		CommentaryRenders = promauto.NewCounterVec(prometheus.CounterOpts{Name: "dj_commentary_total", Help: "Synthetic audio renders by kind and result"}, []string{"kind", "result"})
		TrackPlays = promauto.NewCounter(prometheus.CounterOpts{Name: "dj_track_plays_total", Help: "Regular tracks that finished without a skip"})
		TrackSkips = promauto.NewCounter(prometheus.CounterOpts{Name: "dj_track_skips_total", Help: "Regular tracks skipped by a listener"})
		StatsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "dj_stats_dropped_total", Help: "Statistics increments dropped because the recorder queue was full"})
		RegenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "dj_regeneration_duration_seconds", Help: "Regeneration cycle duration seconds", Buckets: prometheus.DefBuckets})
		SynthesisDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "dj_synthesis_duration_seconds", Help: "Speech synthesis + transcode duration seconds", Buckets: prometheus.DefBuckets})
		ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{Name: "dj_active_sessions", Help: "Current number of live DJ sessions"})
	})
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncRegeneration counts a started cycle.
func IncRegeneration() { inc(Regenerations) }

// IncRegenerationFailure counts a cycle that ended without injection, labelled by error class.
func IncRegenerationFailure(class string) {
	if RegenerationFailures != nil {
		RegenerationFailures.WithLabelValues(class).Inc()
	}
}

// IncResolveBatch counts one resolution batch.
func IncResolveBatch() { inc(ResolveBatches) }

// AddTracksResolved adds n resolved tracks.
func AddTracksResolved(n int) {
	if TracksResolved != nil && n > 0 {
		TracksResolved.Add(float64(n))
	}
}

// IncCommentary records a synthetic render outcome ("ok" or "error").
func IncCommentary(kind, result string) {
	if CommentaryRenders != nil {
		CommentaryRenders.WithLabelValues(kind, result).Inc()
	}
}

func IncTrackPlay()    { inc(TrackPlays) }
func IncTrackSkip()    { inc(TrackSkips) }
func IncStatsDropped() { inc(StatsDropped) }

// SetActiveSessions records the live session count.
func SetActiveSessions(n int) {
	if ActiveSessions != nil {
		ActiveSessions.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
