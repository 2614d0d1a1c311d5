// Package plot draws run results as PNG charts with gonum/plot.
package plot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/KaramelBytes/climalyzer/internal/pipeline"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("not enough data to plot")

// Default image size.
var (
	Width  = 10 * vg.Inch
	Height = 5 * vg.Inch
)

// Trend plots actual values and predictions against time. A nil or short
// time axis falls back to the row index.
func Trend(time, actual, predicted []float64) (*plot.Plot, error) {
	if len(actual) == 0 || len(predicted) == 0 {
		return nil, ErrNoData
	}
	if len(actual) != len(predicted) {
		return nil, fmt.Errorf("trend: %d actual values but %d predictions", len(actual), len(predicted))
	}
	xs := axis(time, len(actual))
	actPoints, predPoints := xys(xs, actual), xys(xs, predicted)
	if len(actPoints) == 0 || len(predPoints) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = "Climate trend over time"
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "Normalized value"
	p.Add(plotter.NewGrid())

	act, actPts, err := plotter.NewLinePoints(actPoints)
	if err != nil {
		return nil, fmt.Errorf("trend actual: %w", err)
	}
	act.Color = plotutil.Color(0)
	actPts.Color = plotutil.Color(0)
	actPts.Shape = draw.CircleGlyph{}

	pred, predPts, err := plotter.NewLinePoints(predPoints)
	if err != nil {
		return nil, fmt.Errorf("trend predicted: %w", err)
	}
	pred.Color = plotutil.Color(1)
	pred.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}
	predPts.Color = plotutil.Color(1)
	predPts.Shape = draw.CrossGlyph{}

	p.Add(act, actPts, pred, predPts)
	p.Legend.Add("Actual", act, actPts)
	p.Legend.Add("Predicted", pred, predPts)
	return p, nil
}

// Clusters scatters the first two feature columns coloured by label. A single
// feature column is drawn against zero.
func Clusters(x [][]float64, labels []int) (*plot.Plot, error) {
	if len(x) == 0 || len(labels) == 0 {
		return nil, ErrNoData
	}
	if len(x) != len(labels) {
		return nil, fmt.Errorf("clusters: %d rows but %d labels", len(x), len(labels))
	}
	groups := map[int]plotter.XYs{}
	maxLabel := 0
	for i, row := range x {
		pt := plotter.XY{X: row[0]}
		if len(row) > 1 {
			pt.Y = row[1]
		}
		if !finite(pt.X) || !finite(pt.Y) {
			continue
		}
		groups[labels[i]] = append(groups[labels[i]], pt)
		maxLabel = max(maxLabel, labels[i])
	}
	if len(groups) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = "Clustered data"
	p.X.Label.Text = "Feature 1"
	p.Y.Label.Text = "Feature 2"
	for l := 0; l <= maxLabel; l++ {
		pts, ok := groups[l]
		if !ok {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", l, err)
		}
		s.Color = plotutil.Color(l)
		s.Shape = draw.CircleGlyph{}
		s.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("Cluster %d", l), s)
	}
	return p, nil
}

// Anomalies plots the series with flagged points marked in red.
func Anomalies(time, series []float64, mask []bool) (*plot.Plot, error) {
	if len(series) == 0 || len(mask) == 0 {
		return nil, ErrNoData
	}
	if len(series) != len(mask) {
		return nil, fmt.Errorf("anomalies: %d values but %d flags", len(series), len(mask))
	}
	p := plot.New()
	p.Title.Text = "Anomaly detection in time series"
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Normalized value"
	p.Add(plotter.NewGrid())

	xs := axis(time, len(series))
	pts := xys(xs, series)
	if len(pts) == 0 {
		return nil, ErrNoData
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("anomaly series: %w", err)
	}
	line.Color = plotutil.Color(0)
	p.Add(line)
	p.Legend.Add("Time series", line)

	var flagged plotter.XYs
	for i, m := range mask {
		if m && finite(xs[i]) && finite(series[i]) {
			flagged = append(flagged, plotter.XY{X: xs[i], Y: series[i]})
		}
	}
	if len(flagged) > 0 {
		s, err := plotter.NewScatter(flagged)
		if err != nil {
			return nil, fmt.Errorf("anomaly points: %w", err)
		}
		s.Color = plotutil.Color(1)
		s.Shape = draw.CircleGlyph{}
		s.Radius = vg.Points(4)
		p.Add(s)
		p.Legend.Add("Anomalies", s)
	}
	return p, nil
}

// ForResult picks the chart for the run's action. For "all" it draws the trend
// when a prediction exists, else the anomalies.
func ForResult(res *pipeline.Result) (*plot.Plot, error) {
	switch {
	case res.Action == pipeline.ActionCluster && res.Clusters != nil:
		return Clusters(res.X, res.Clusters.Labels)
	case res.Action == pipeline.ActionAnomalies && res.Anomalies != nil:
		return Anomalies(res.Time, res.Y, res.Anomalies.Mask)
	case res.Prediction != nil && !res.Prediction.Skipped:
		return Trend(res.Time, res.Y, res.Prediction.Predictions)
	case res.Anomalies != nil:
		return Anomalies(res.Time, res.Y, res.Anomalies.Mask)
	}
	return nil, ErrNoData
}

// Save writes p as an image; the format follows the file extension.
func Save(p *plot.Plot, path string) error {
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

// PNG encodes p as PNG bytes.
func PNG(p *plot.Plot) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(p, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes p as PNG to w.
func Write(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return fmt.Errorf("encode plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write plot: %w", err)
	}
	return nil
}

func axis(time []float64, n int) []float64 {
	if len(time) == n {
		return time
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	return xs
}

func xys(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(ys))
	for i := range ys {
		if finite(xs[i]) && finite(ys[i]) {
			pts = append(pts, plotter.XY{X: xs[i], Y: ys[i]})
		}
	}
	return pts
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
