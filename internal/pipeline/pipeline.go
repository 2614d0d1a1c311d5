package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/climalyzer/internal/dataset"
	"github.com/KaramelBytes/climalyzer/internal/history"
	"github.com/KaramelBytes/climalyzer/internal/model"
	"github.com/KaramelBytes/climalyzer/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Action selects the analysis to run.
type Action string

const (
	ActionPredict   Action = "predict"
	ActionCluster   Action = "cluster"
	ActionAnomalies Action = "anomalies"
	// ActionAll runs every analysis on the same features.
	ActionAll Action = "all"
)

var (
	// ErrUnknownAction is returned for an unrecognized action name.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInsufficientData wraps load and schema failures.
	ErrInsufficientData = errors.New("not enough data or columns missing")
	// ErrNoTarget means no target was given and none could be detected.
	ErrNoTarget = errors.New("could not detect target column")
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionPredict, ActionCluster, ActionAnomalies, ActionAll:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q (use predict, cluster, anomalies or all)", ErrUnknownAction, s)
}

// Settings are the algorithm hyperparameters.
type Settings struct {
	LearningRate  float64
	Iterations    int
	Clusters      int
	ClusterRounds int
	WindowSize    int
	Threshold     float64
}

// DefaultSettings mirrors the command line defaults.
func DefaultSettings() Settings {
	return Settings{
		LearningRate:  0.001,
		Iterations:    model.DefaultIterations,
		Clusters:      3,
		ClusterRounds: model.DefaultClusterRounds,
		WindowSize:    model.DefaultWindow,
		Threshold:     model.DefaultThreshold,
	}
}

// Request describes one run. An empty Target is detected from the file name
// and columns.
type Request struct {
	Path   string
	Target string
	Action Action
}

// Recorder persists run metadata.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Runner executes load, clean, extract and the requested analysis.
type Runner struct {
	settings Settings
	loadOpt  dataset.Options
	logger   *slog.Logger
	metrics  *observability.Metrics
	recorder Recorder
	clock    clockwork.Clock
	rand     *rand.Rand
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics enables Prometheus accounting.
func WithMetrics(m *observability.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithRecorder records every run.
func WithRecorder(rec Recorder) Option { return func(r *Runner) { r.recorder = rec } }

// WithClock overrides the time source.
func WithClock(c clockwork.Clock) Option { return func(r *Runner) { r.clock = c } }

// WithRand fixes the random source used for initial centroids.
func WithRand(rnd *rand.Rand) Option { return func(r *Runner) { r.rand = rnd } }

// WithLoadOptions overrides how files are parsed.
func WithLoadOptions(o dataset.Options) Option { return func(r *Runner) { r.loadOpt = o } }

// New creates a Runner. A nil logger discards logs.
func New(settings Settings, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Runner{
		settings: settings,
		loadOpt:  dataset.DefaultOptions(),
		logger:   logger,
		clock:    clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Settings returns the runner's hyperparameters.
func (r *Runner) Settings() Settings { return r.settings }

// Run executes req. Load and schema failures return ErrInsufficientData
// wrapping a dataset.ErrUnavailable reason. A skipped fit is not an error: the
// Result carries Prediction.Skipped instead.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := r.clock.Now()
	res := &Result{
		ID:        uuid.NewString(),
		File:      filepath.Base(req.Path),
		Target:    req.Target,
		Action:    req.Action,
		CreatedAt: start,
		Settings:  r.settings,
	}
	err := r.run(res, req)
	res.Duration = r.clock.Since(start)
	r.observe(ctx, res, err)
	if err != nil {
		return res, err
	}
	return res, nil
}

func (r *Runner) run(res *Result, req Request) error {
	if _, err := ParseAction(string(req.Action)); err != nil {
		return err
	}
	if res.Target == "" {
		raw, err := dataset.Load(req.Path, "", r.loadOpt)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInsufficientData, err)
		}
		target, ok := dataset.DetectTarget(req.Path, raw.Columns())
		if !ok {
			return ErrNoTarget
		}
		res.Target = target
		r.logger.Info("detected target column", "file", res.File, "target", target)
	}

	tbl, err := dataset.Load(req.Path, res.Target, r.loadOpt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientData, err)
	}
	res.Columns = tbl.Columns()
	if len(tbl.Skipped) > 0 {
		r.logger.Warn("skipped non-numeric columns", "file", res.File, "columns", tbl.Skipped)
	}
	res.Clean = dataset.Clean(tbl, res.Target)
	if res.Clean.TargetMissing {
		r.logger.Warn("target column not found; no normalization", "target", res.Target)
	}
	if res.Clean.Degenerate {
		r.logger.Warn("target column has zero or undefined deviation", "target", res.Target, "std", res.Clean.Std)
	}

	feats, err := dataset.Extract(tbl, res.Target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientData, err)
	}
	res.Rows = feats.Len()
	res.FeatureColumns = feats.Columns
	res.X = dataset.Standardize(feats.X)
	res.Y = feats.Y
	res.Time = timeAxis(feats)

	switch req.Action {
	case ActionPredict:
		res.Prediction = r.predict(res)
	case ActionCluster:
		res.Clusters, err = r.cluster(res)
	case ActionAnomalies:
		res.Anomalies, err = r.anomalies(res)
	case ActionAll:
		res.Prediction = r.predict(res)
		if res.Clusters, err = r.cluster(res); err != nil {
			return err
		}
		res.Anomalies, err = r.anomalies(res)
	}
	return err
}

// timeAxis converts raw (year[, month]) rows to fractional years.
func timeAxis(f dataset.Features) []float64 {
	out := make([]float64, len(f.X))
	for i, row := range f.X {
		out[i] = row[0]
		if len(row) > 1 {
			out[i] += (row[1] - 1) / 12
		}
	}
	return out
}

func (r *Runner) predict(res *Result) *PredictionResult {
	p := model.NewTrendPredictor(r.settings.LearningRate, r.settings.Iterations)
	if err := p.Fit(res.X, res.Y); err != nil {
		r.logger.Warn("prediction skipped", "file", res.File, "error", err)
		return &PredictionResult{Skipped: true, Reason: err.Error()}
	}
	pred, err := p.Predict(res.X)
	if err != nil {
		return &PredictionResult{Skipped: true, Reason: err.Error()}
	}
	params, _ := p.Params()
	return &PredictionResult{Weights: params.Weights, Bias: params.Bias, Predictions: pred}
}

func (r *Runner) cluster(res *Result) (*ClusterResult, error) {
	k := r.settings.Clusters
	a, err := model.AssignClusters(res.X, k, model.ClusterOptions{Rounds: r.settings.ClusterRounds, Rand: r.rand})
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	if a.EmptyClusters > 0 {
		r.logger.Warn("empty clusters during assignment", "file", res.File, "count", a.EmptyClusters)
	}
	return &ClusterResult{K: k, Labels: a.Labels, Sizes: a.Sizes(k), EmptyClusters: a.EmptyClusters}, nil
}

func (r *Runner) anomalies(res *Result) (*AnomalyResult, error) {
	mask, err := model.FlagAnomalies(res.Y, r.settings.WindowSize, r.settings.Threshold)
	if err != nil {
		return nil, fmt.Errorf("anomalies: %w", err)
	}
	return &AnomalyResult{
		Window:    r.settings.WindowSize,
		Threshold: r.settings.Threshold,
		Mask:      mask,
		Indices:   model.Indices(mask),
	}, nil
}

func (r *Runner) observe(ctx context.Context, res *Result, err error) {
	outcome := res.Outcome(err)
	action := string(res.Action)
	if err != nil {
		r.logger.Error("run failed", "id", res.ID, "file", res.File, "action", action, "error", err)
	} else {
		r.logger.Info("run complete", "id", res.ID, "file", res.File, "action", action,
			"target", res.Target, "rows", res.Rows, "outcome", outcome, "duration", res.Duration)
	}
	if r.metrics != nil {
		r.metrics.RunsTotal.WithLabelValues(action, outcome).Inc()
		r.metrics.RunDuration.WithLabelValues(action).Observe(res.Duration.Seconds())
		if err == nil {
			r.metrics.RowsProcessed.Observe(float64(res.Rows))
		}
	}
	if r.recorder != nil {
		run := history.Run{
			ID:        res.ID,
			File:      res.File,
			Target:    res.Target,
			Action:    action,
			Rows:      res.Rows,
			Outcome:   outcome,
			Duration:  res.Duration,
			CreatedAt: res.CreatedAt,
		}
		if err != nil {
			run.Error = err.Error()
		}
		if rerr := r.recorder.Record(ctx, run); rerr != nil {
			r.logger.Warn("record run failed", "id", res.ID, "error", rerr)
		}
	}
}

// Result is everything a run produced, ready for reports and charts.
type Result struct {
	ID        string
	File      string
	Target    string
	Action    Action
	CreatedAt time.Time
	Duration  time.Duration
	Settings  Settings

	Columns        []string
	Clean          dataset.CleanReport
	Rows           int
	FeatureColumns []string
	// X is the standardized feature matrix the algorithms saw.
	X [][]float64
	Y []float64
	// Time is the fractional year of each row, for charts.
	Time []float64

	Prediction *PredictionResult
	Clusters   *ClusterResult
	Anomalies  *AnomalyResult
}

// Outcome classifies the run for metrics and history.
func (res *Result) Outcome(err error) string {
	switch {
	case err != nil:
		return history.OutcomeError
	case res.Prediction != nil && res.Prediction.Skipped:
		return history.OutcomeSkipped
	default:
		return history.OutcomeOK
	}
}

// PredictionResult holds the trend fit.
type PredictionResult struct {
	Skipped     bool
	Reason      string
	Weights     []float64
	Bias        float64
	Predictions []float64
}

// ClusterResult holds cluster labels.
type ClusterResult struct {
	K             int
	Labels        []int
	Sizes         []int
	EmptyClusters int
}

// AnomalyResult holds the anomaly mask.
type AnomalyResult struct {
	Window    int
	Threshold float64
	Mask      []bool
	Indices   []int
}
