package report

import (
	"encoding/json"
	"math"
	"time"

	"github.com/KaramelBytes/climalyzer/internal/dataset"
	"github.com/KaramelBytes/climalyzer/internal/pipeline"
	"github.com/KaramelBytes/climalyzer/internal/utils"
)

// Summary is the JSON form of a run result. Non-finite numbers encode as null.
type Summary struct {
	ID             string             `json:"id"`
	File           string             `json:"file"`
	Target         string             `json:"target"`
	Action         string             `json:"action"`
	CreatedAt      time.Time          `json:"created_at"`
	DurationMs     float64            `json:"duration_ms"`
	Rows           int                `json:"rows"`
	FeatureColumns []string           `json:"feature_columns"`
	Clean          CleanSummary       `json:"clean"`
	Values         []number           `json:"values"`
	Prediction     *PredictionSummary `json:"prediction,omitempty"`
	Clusters       *ClusterSummary    `json:"clusters,omitempty"`
	Anomalies      *AnomalySummary    `json:"anomalies,omitempty"`
}

// CleanSummary is the JSON view of the cleaning step.
type CleanSummary struct {
	SentinelsReplaced int    `json:"sentinels_replaced"`
	RowsDropped       int    `json:"rows_dropped"`
	Normalized        bool   `json:"normalized"`
	TargetMissing     bool   `json:"target_missing"`
	Degenerate        bool   `json:"degenerate"`
	Mean              number `json:"mean"`
	Std               number `json:"std"`
}

// PredictionSummary is the JSON view of the trend fit.
type PredictionSummary struct {
	Skipped     bool     `json:"skipped"`
	Reason      string   `json:"reason,omitempty"`
	Weights     []number `json:"weights,omitempty"`
	Bias        number   `json:"bias"`
	Predictions []number `json:"predictions,omitempty"`
}

// ClusterSummary is the JSON view of cluster labels.
type ClusterSummary struct {
	K             int   `json:"k"`
	Labels        []int `json:"labels"`
	Sizes         []int `json:"sizes"`
	EmptyClusters int   `json:"empty_clusters"`
}

// AnomalySummary is the JSON view of the anomaly mask.
type AnomalySummary struct {
	Window    int     `json:"window"`
	Threshold float64 `json:"threshold"`
	Mask      []bool  `json:"mask"`
	Indices   []int   `json:"indices"`
}

// NewSummary converts a run result for JSON encoding.
func NewSummary(res *pipeline.Result) Summary {
	out := Summary{
		ID:             res.ID,
		File:           res.File,
		Target:         res.Target,
		Action:         string(res.Action),
		CreatedAt:      res.CreatedAt,
		DurationMs:     float64(res.Duration.Microseconds()) / 1000,
		Rows:           res.Rows,
		FeatureColumns: res.FeatureColumns,
		Clean:          newCleanSummary(res.Clean),
		Values:         numbers(res.Y),
	}
	if p := res.Prediction; p != nil {
		out.Prediction = &PredictionSummary{
			Skipped:     p.Skipped,
			Reason:      p.Reason,
			Weights:     numbers(p.Weights),
			Bias:        number(p.Bias),
			Predictions: numbers(p.Predictions),
		}
	}
	if c := res.Clusters; c != nil {
		out.Clusters = &ClusterSummary{K: c.K, Labels: c.Labels, Sizes: c.Sizes, EmptyClusters: c.EmptyClusters}
	}
	if a := res.Anomalies; a != nil {
		out.Anomalies = &AnomalySummary{Window: a.Window, Threshold: a.Threshold, Mask: a.Mask, Indices: a.Indices}
		if out.Anomalies.Indices == nil {
			out.Anomalies.Indices = []int{}
		}
	}
	return out
}

func newCleanSummary(c dataset.CleanReport) CleanSummary {
	return CleanSummary{
		SentinelsReplaced: c.SentinelsReplaced,
		RowsDropped:       c.RowsDropped,
		Normalized:        c.Normalized,
		TargetMissing:     c.TargetMissing,
		Degenerate:        c.Degenerate,
		Mean:              number(c.Mean),
		Std:               number(c.Std),
	}
}

// JSON encodes the run result as indented JSON.
func JSON(res *pipeline.Result) ([]byte, error) {
	return utils.PrettyJSON(NewSummary(res))
}

// number marshals non-finite values as null.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func numbers(v []float64) []number {
	if v == nil {
		return nil
	}
	out := make([]number, len(v))
	for i, f := range v {
		out[i] = number(f)
	}
	return out
}
