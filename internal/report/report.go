package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/KaramelBytes/climalyzer/internal/pipeline"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PreviewRows caps how many per-row values a section lists.
const PreviewRows = 10

// Markdown renders a run result as plain sectioned Markdown.
func Markdown(res *pipeline.Result) string {
	var b strings.Builder
	b.WriteString("[RUN SUMMARY]\n")
	b.WriteString(fmt.Sprintf("Run: %s\n", res.ID))
	b.WriteString(fmt.Sprintf("File: %s\n", res.File))
	b.WriteString(fmt.Sprintf("Action: %s\n", res.Action))
	b.WriteString(fmt.Sprintf("Target: %s\n", res.Target))
	b.WriteString(fmt.Sprintf("Rows: %d\n", res.Rows))
	if len(res.FeatureColumns) > 0 {
		b.WriteString(fmt.Sprintf("Features: %s\n", strings.Join(res.FeatureColumns, ", ")))
	}
	if !res.CreatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Started: %s (took %s)\n", res.CreatedAt.UTC().Format("2006-01-02 15:04:05Z"), res.Duration.Round(time.Microsecond)))
	}
	b.WriteString("\n")

	b.WriteString("[CLEANING]\n")
	c := res.Clean
	b.WriteString(fmt.Sprintf("- sentinels replaced: %d\n", c.SentinelsReplaced))
	b.WriteString(fmt.Sprintf("- rows dropped: %d (kept %d)\n", c.RowsDropped, c.RowsKept))
	switch {
	case c.TargetMissing:
		b.WriteString(fmt.Sprintf("- target %q not found; values left unnormalized\n", res.Target))
	case c.Degenerate:
		b.WriteString(fmt.Sprintf("- target std is %.4g; normalized values are not finite\n", c.Std))
	case c.Normalized:
		b.WriteString(fmt.Sprintf("- target normalized (mean %.4g, std %.4g)\n", c.Mean, c.Std))
	}
	if len(res.Y) > 0 {
		b.WriteString(fmt.Sprintf("- target range after cleaning: %.4g to %.4g, std %.4g\n",
			floats.Min(res.Y), floats.Max(res.Y), stat.StdDev(res.Y, nil)))
	}
	b.WriteString("\n")

	if p := res.Prediction; p != nil {
		writePrediction(&b, res, p)
	}
	if cl := res.Clusters; cl != nil {
		writeClusters(&b, cl)
	}
	if a := res.Anomalies; a != nil {
		writeAnomalies(&b, res, a)
	}
	return b.String()
}

func writePrediction(b *strings.Builder, res *pipeline.Result, p *pipeline.PredictionResult) {
	b.WriteString("[TREND PREDICTION]\n")
	if p.Skipped {
		b.WriteString(fmt.Sprintf("Skipped: %s\n\n", p.Reason))
		return
	}
	b.WriteString(fmt.Sprintf("Settings: learning rate %g, %d iterations\n", res.Settings.LearningRate, res.Settings.Iterations))
	for i, w := range p.Weights {
		name := fmt.Sprintf("x%d", i)
		if i < len(res.FeatureColumns) {
			name = res.FeatureColumns[i]
		}
		b.WriteString(fmt.Sprintf("- weight[%s]: %.4f\n", name, w))
	}
	b.WriteString(fmt.Sprintf("- bias: %.4f\n", p.Bias))
	if len(p.Predictions) == len(res.Y) && len(res.Y) > 0 {
		b.WriteString(fmt.Sprintf("- RMSE: %.4f\n", rmse(p.Predictions, res.Y)))
	}
	b.WriteString("\n| # | actual | predicted |\n|---|---|---|\n")
	for i := 0; i < len(p.Predictions) && i < PreviewRows; i++ {
		actual := math.NaN()
		if i < len(res.Y) {
			actual = res.Y[i]
		}
		b.WriteString(fmt.Sprintf("| %d | %.4f | %.4f |\n", i, actual, p.Predictions[i]))
	}
	b.WriteString("\n")
}

func writeClusters(b *strings.Builder, cl *pipeline.ClusterResult) {
	b.WriteString("[CLUSTERS]\n")
	b.WriteString(fmt.Sprintf("k=%d\n", cl.K))
	for i, n := range cl.Sizes {
		b.WriteString(fmt.Sprintf("- cluster %d: %d rows\n", i, n))
	}
	if cl.EmptyClusters > 0 {
		b.WriteString(fmt.Sprintf("⚠ %d empty cluster rounds; some centroids were undefined\n", cl.EmptyClusters))
	}
	n := min(len(cl.Labels), PreviewRows)
	b.WriteString(fmt.Sprintf("First labels: %s\n\n", joinInts(cl.Labels[:n])))
}

func writeAnomalies(b *strings.Builder, res *pipeline.Result, a *pipeline.AnomalyResult) {
	b.WriteString("[ANOMALIES]\n")
	b.WriteString(fmt.Sprintf("Window: %d, threshold: %g std\n", a.Window, a.Threshold))
	b.WriteString(fmt.Sprintf("Flagged: %d of %d\n", len(a.Indices), len(a.Mask)))
	for i, idx := range a.Indices {
		if i == PreviewRows {
			b.WriteString(fmt.Sprintf("- ... %d more\n", len(a.Indices)-PreviewRows))
			break
		}
		if idx < len(res.Y) {
			b.WriteString(fmt.Sprintf("- row %d: %.4f\n", idx, res.Y[idx]))
		}
	}
	b.WriteString("\n")
}

func rmse(pred, actual []float64) float64 {
	return floats.Distance(pred, actual, 2) / math.Sqrt(float64(len(pred)))
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
