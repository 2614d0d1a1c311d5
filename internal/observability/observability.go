package observability

import (
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// NewLogger builds a slog.Logger writing to w. format is "json" or "text";
// level is one of debug, info, warn, error (default info).
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Metrics holds the Prometheus collectors for analysis runs.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec   // labels: action, outcome={ok,skipped,error}
	RunDuration   *prometheus.HistogramVec // labels: action
	RowsProcessed prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.RunsTotal, m.RunDuration, m.RowsProcessed)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build many.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climalyzer",
			Name:      "runs_total",
			Help:      "Analysis runs by action and outcome.",
		}, []string{"action", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "climalyzer",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete load-clean-analyze run.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"action"}),
		RowsProcessed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climalyzer",
			Name:      "rows_processed",
			Help:      "Rows remaining after cleaning, per run.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}),
	}
}
