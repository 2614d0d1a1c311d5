package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Defaults used by the command line and web front ends.
const (
	DefaultWindow    = 3
	DefaultThreshold = 1.5
)

// ErrInvalidWindow is returned when the window is outside [1, len(series)].
var ErrInvalidWindow = errors.New("window size out of range")

// MovingAverage returns the simple moving average over every full window of
// series, so the result has len(series)-window+1 elements.
func MovingAverage(series []float64, window int) ([]float64, error) {
	if window < 1 || window > len(series) {
		return nil, fmt.Errorf("%w: window=%d with %d points", ErrInvalidWindow, window, len(series))
	}
	out := make([]float64, len(series)-window+1)
	w := float64(window)
	for i := range out {
		out[i] = floats.Sum(series[i:i+window]) / w
	}
	return out, nil
}

// PadLeft repeats the first element of avg until it has length n.
func PadLeft(avg []float64, n int) []float64 {
	if len(avg) == 0 || len(avg) >= n {
		return avg
	}
	out := make([]float64, n)
	lead := n - len(avg)
	for i := 0; i < lead; i++ {
		out[i] = avg[0]
	}
	copy(out[lead:], avg)
	return out
}

// FlagAnomalies marks point i when |series[i] - avg[i]| exceeds threshold times
// the population standard deviation of the whole series, where avg is the
// moving average edge-padded back to the series length.
func FlagAnomalies(series []float64, window int, threshold float64) ([]bool, error) {
	avg, err := MovingAverage(series, window)
	if err != nil {
		return nil, err
	}
	padded := PadLeft(avg, len(series))
	limit := threshold * stat.PopStdDev(series, nil)
	mask := make([]bool, len(series))
	for i, v := range series {
		mask[i] = math.Abs(v-padded[i]) > limit
	}
	return mask, nil
}

// Indices returns the positions of true entries in mask.
func Indices(mask []bool) []int {
	out := []int{}
	for i, m := range mask {
		if m {
			out = append(out, i)
		}
	}
	return out
}
