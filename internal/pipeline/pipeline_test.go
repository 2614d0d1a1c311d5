package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/climalyzer/internal/dataset"
	"github.com/KaramelBytes/climalyzer/internal/history"
	"github.com/KaramelBytes/climalyzer/internal/observability"
	"github.com/KaramelBytes/climalyzer/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockRecorder struct {
	runs []history.Run
	err  error
}

func (m *mockRecorder) Record(_ context.Context, run history.Run) error {
	m.runs = append(m.runs, run)
	return m.err
}

// --- helpers ---

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// monthlySeries writes years*12 rows of year,month,value with a warming trend
// and one sentinel row.
func monthlySeries(t *testing.T, name string, years int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("# monthly anomalies\nYear, Month, Value\n")
	for y := 0; y < years; y++ {
		for m := 1; m <= 12; m++ {
			v := 0.02*float64(y*12+m) + 0.1*float64(m%3)
			if y == 1 && m == 6 {
				v = dataset.Sentinel
			}
			fmt.Fprintf(&b, "%d,%d,%.3f\n", 1990+y, m, v)
		}
	}
	return writeFile(t, name, b.String())
}

func newRunner(opts ...pipeline.Option) *pipeline.Runner {
	s := pipeline.DefaultSettings()
	s.LearningRate = 0.05
	opts = append([]pipeline.Option{pipeline.WithRand(rand.New(rand.NewPCG(1, 1)))}, opts...)
	return pipeline.New(s, nil, opts...)
}

// --- tests ---

func TestParseAction(t *testing.T) {
	for _, s := range []string{"predict", "CLUSTER", " anomalies ", "all"} {
		_, err := pipeline.ParseAction(s)
		assert.NoError(t, err, s)
	}
	_, err := pipeline.ParseAction("forecast")
	assert.ErrorIs(t, err, pipeline.ErrUnknownAction)
}

func TestRunner_Predict(t *testing.T) {
	path := monthlySeries(t, "global_temp.csv", 4)
	rec := &mockRecorder{}
	metrics := observability.NewMetricsForTesting()
	fixed := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)

	r := newRunner(pipeline.WithRecorder(rec), pipeline.WithMetrics(metrics), pipeline.WithClock(clockwork.NewFakeClockAt(fixed)))
	res, err := r.Run(context.Background(), pipeline.Request{Path: path, Target: "temperature", Action: pipeline.ActionPredict})
	require.NoError(t, err)

	assert.Equal(t, "global_temp.csv", res.File)
	assert.Equal(t, fixed, res.CreatedAt)
	assert.Equal(t, []string{"year", "month"}, res.FeatureColumns)
	assert.Equal(t, 1, res.Clean.SentinelsReplaced)
	assert.Equal(t, 47, res.Rows)
	require.NotNil(t, res.Prediction)
	assert.False(t, res.Prediction.Skipped)
	assert.Len(t, res.Prediction.Predictions, res.Rows)
	assert.Len(t, res.Prediction.Weights, 2)
	assert.Greater(t, res.Prediction.Weights[0], 0.0)
	assert.Nil(t, res.Clusters)
	assert.Nil(t, res.Anomalies)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, res.ID, rec.runs[0].ID)
	assert.Equal(t, history.OutcomeOK, rec.runs[0].Outcome)
	assert.Equal(t, "temperature", rec.runs[0].Target)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("predict", "ok")), 0)
}

func TestRunner_AllActions(t *testing.T) {
	path := monthlySeries(t, "temps.csv", 3)
	res, err := newRunner().Run(context.Background(), pipeline.Request{Path: path, Target: "temperature", Action: pipeline.ActionAll})
	require.NoError(t, err)

	require.NotNil(t, res.Prediction)
	require.NotNil(t, res.Clusters)
	require.NotNil(t, res.Anomalies)
	assert.Len(t, res.Clusters.Labels, res.Rows)
	assert.Equal(t, 3, res.Clusters.K)
	total := 0
	for _, n := range res.Clusters.Sizes {
		total += n
	}
	assert.Equal(t, res.Rows, total)
	assert.Len(t, res.Anomalies.Mask, res.Rows)
	assert.Equal(t, 3, res.Anomalies.Window)
}

func TestRunner_DetectsTarget(t *testing.T) {
	path := monthlySeries(t, "precip_monthly.csv", 2)
	res, err := newRunner().Run(context.Background(), pipeline.Request{Path: path, Action: pipeline.ActionAnomalies})
	require.NoError(t, err)
	assert.Equal(t, "precipitation", res.Target)
	assert.Contains(t, res.Columns, "precipitation")
}

func TestRunner_NoTargetDetected(t *testing.T) {
	path := writeFile(t, "data.csv", "year,reading\n2000,1\n2001,2\n")
	rec := &mockRecorder{}
	_, err := newRunner(pipeline.WithRecorder(rec)).Run(context.Background(), pipeline.Request{Path: path, Action: pipeline.ActionPredict})
	assert.ErrorIs(t, err, pipeline.ErrNoTarget)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, history.OutcomeError, rec.runs[0].Outcome)
}

func TestRunner_MissingYearIsInsufficient(t *testing.T) {
	path := writeFile(t, "temp.csv", "month,value\n1,2\n2,3\n")
	res, err := newRunner().Run(context.Background(), pipeline.Request{Path: path, Target: "temperature", Action: pipeline.ActionCluster})
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrInsufficientData)
	assert.ErrorIs(t, err, dataset.ErrUnavailable)
	require.NotNil(t, res)
	assert.Zero(t, res.Rows)
}

func TestRunner_MissingFileIsInsufficient(t *testing.T) {
	_, err := newRunner().Run(context.Background(), pipeline.Request{
		Path: filepath.Join(t.TempDir(), "nope.csv"), Target: "temperature", Action: pipeline.ActionPredict,
	})
	assert.ErrorIs(t, err, pipeline.ErrInsufficientData)
}

func TestRunner_SingleYearSkipsPrediction(t *testing.T) {
	// A constant year column standardizes to NaN, so the fit is skipped.
	path := writeFile(t, "temp.csv", "year,value\n2000,1\n2000,2\n2000,4\n")
	rec := &mockRecorder{}
	res, err := newRunner(pipeline.WithRecorder(rec)).Run(context.Background(), pipeline.Request{Path: path, Target: "temperature", Action: pipeline.ActionPredict})
	require.NoError(t, err)
	require.NotNil(t, res.Prediction)
	assert.True(t, res.Prediction.Skipped)
	assert.NotEmpty(t, res.Prediction.Reason)
	assert.Nil(t, res.Prediction.Predictions)
	assert.Equal(t, history.OutcomeSkipped, rec.runs[0].Outcome)
}

func TestRunner_TooFewRowsForClusters(t *testing.T) {
	path := writeFile(t, "temp.csv", "year,value\n2000,1\n2001,2\n")
	_, err := newRunner().Run(context.Background(), pipeline.Request{Path: path, Target: "temperature", Action: pipeline.ActionCluster})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster")
}

func TestRunner_UnknownAction(t *testing.T) {
	path := monthlySeries(t, "temp.csv", 1)
	_, err := newRunner().Run(context.Background(), pipeline.Request{Path: path, Target: "temperature", Action: "forecast"})
	assert.ErrorIs(t, err, pipeline.ErrUnknownAction)
}

func TestRunner_RecorderFailureDoesNotFailRun(t *testing.T) {
	path := monthlySeries(t, "temp.csv", 2)
	rec := &mockRecorder{err: errors.New("disk full")}
	_, err := newRunner(pipeline.WithRecorder(rec)).Run(context.Background(), pipeline.Request{Path: path, Target: "temperature", Action: pipeline.ActionPredict})
	require.NoError(t, err)
	assert.Len(t, rec.runs, 1)
}

func TestRunner_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newRunner().Run(ctx, pipeline.Request{Path: "x.csv", Target: "t", Action: pipeline.ActionPredict})
	assert.ErrorIs(t, err, context.Canceled)
}
