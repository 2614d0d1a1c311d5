package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// DefaultClusterRounds is the fixed number of assign/update rounds.
const DefaultClusterRounds = 10

// ErrInvalidK is returned when k is outside [1, rows].
var ErrInvalidK = errors.New("cluster count out of range")

// ClusterOptions tunes AssignClusters.
type ClusterOptions struct {
	// Rounds defaults to DefaultClusterRounds when <= 0.
	Rounds int
	// Rand picks the initial centroids. Nil uses the global source.
	Rand *rand.Rand
}

// Assignment is the outcome of AssignClusters.
type Assignment struct {
	// Labels holds one cluster index in [0, k) per input row.
	Labels []int
	// EmptyClusters counts (round, cluster) pairs that received no rows. Each
	// one leaves that centroid undefined (NaN) for the following round.
	EmptyClusters int
}

// Sizes returns the number of rows per label.
func (a Assignment) Sizes(k int) []int {
	sizes := make([]int, k)
	for _, l := range a.Labels {
		if l >= 0 && l < k {
			sizes[l]++
		}
	}
	return sizes
}

// AssignClusters partitions the rows of x into k groups. Initial centroids are
// k distinct rows drawn uniformly at random; then, for a fixed number of
// rounds, every row takes the label of its nearest centroid (Euclidean, first
// minimum wins) and each centroid moves to the mean of its rows.
//
// A centroid with no rows becomes the mean of an empty set, which is NaN in
// every coordinate. The first NaN distance wins the nearest search outright,
// so in the following round every row moves to the first empty cluster.
func AssignClusters(x [][]float64, k int, opt ClusterOptions) (Assignment, error) {
	if k < 1 || k > len(x) {
		return Assignment{}, fmt.Errorf("%w: k=%d with %d rows", ErrInvalidK, k, len(x))
	}
	dim, err := shape(x)
	if err != nil {
		return Assignment{}, err
	}
	rounds := opt.Rounds
	if rounds <= 0 {
		rounds = DefaultClusterRounds
	}
	perm := rand.Perm
	if opt.Rand != nil {
		perm = opt.Rand.Perm
	}

	centroids := make([][]float64, k)
	for c, idx := range perm(len(x))[:k] {
		centroids[c] = append([]float64(nil), x[idx]...)
	}

	out := Assignment{Labels: make([]int, len(x))}
	for round := 0; round < rounds; round++ {
		for i, row := range x {
			out.Labels[i] = nearest(row, centroids)
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, row := range x {
			floats.Add(sums[out.Labels[i]], row)
			counts[out.Labels[i]]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				out.EmptyClusters++
			}
			n := float64(counts[c])
			for j := range sums[c] {
				centroids[c][j] = sums[c][j] / n
			}
		}
	}
	return out, nil
}

// nearest returns the index of the closest centroid. A NaN distance takes
// precedence over any number, first one wins.
func nearest(row []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		d := floats.Distance(row, centroid, 2)
		if math.IsNaN(d) {
			return c
		}
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
