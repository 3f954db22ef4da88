// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"fmt"
	"math/rand"
)

// fit is the result of one k-means restart.
type fit struct {
	labels     []int
	centroids  [][]float64
	inertia    float64
	iterations int
	converged  bool
}

// Cluster partitions the matrix rows with seeded k-means.
//
// # Description
//
// Runs cfg.Restarts independent k-means++ initializations and keeps
// the fit with the lowest inertia. Each restart derives its RNG from
// cfg.Seed, so identical inputs always produce identical outcomes.
// The effective cluster count is min(cfg.K, rows).
//
// Fewer than three rows cannot be clustered meaningfully; the outcome
// is then a single cluster holding everything, marked Degenerate so
// callers can present it differently.
//
// Assignment ties go to the lower-indexed centroid. A restart that
// still reassigns rows at the iteration cap is kept as a soft success
// with Converged=false.
//
// # Inputs
//
//   - m: Feature matrix from BuildFeatures. Not mutated.
//   - cfg: Engine settings; zero Seed/Restarts/MaxIterations fall
//     back to defaults. cfg.K must be at least 1.
//
// # Outputs
//
//   - *ClusterOutcome: The winning partition.
//   - error: ErrClustering-wrapped for an empty matrix, cfg.K < 1, or
//     non-finite matrix values.
func Cluster(m *FeatureMatrix, cfg ClusterConfig) (*ClusterOutcome, error) {
	if m == nil || m.Rows() == 0 || m.Cols() == 0 {
		return nil, fmt.Errorf("%w: empty feature matrix", ErrClustering)
	}
	if cfg.K < 1 {
		return nil, fmt.Errorf("%w: requested cluster count %d is below 1", ErrClustering, cfg.K)
	}
	for i := range m.Data {
		for j, v := range m.Data[i] {
			if !isFinite(v) {
				return nil, fmt.Errorf("%w: non-finite value for run %s in column %s",
					ErrClustering, m.RunIDs[i], m.Columns[j])
			}
		}
	}

	defaults := DefaultClusterConfig()
	seed := cfg.Seed
	if seed == 0 {
		seed = defaults.Seed
	}
	restarts := cfg.Restarts
	if restarts <= 0 {
		restarts = defaults.Restarts
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaults.MaxIterations
	}

	n := m.Rows()
	if n < 3 {
		return degenerateOutcome(m), nil
	}

	k := cfg.K
	if k > n {
		k = n
	}

	var best *fit
	for r := 0; r < restarts; r++ {
		rng := rand.New(rand.NewSource(seed + int64(r)))
		f := kmeansOnce(m.Data, k, maxIterations, rng)
		if best == nil || f.inertia < best.inertia {
			best = f
		}
	}

	sizes := make([]int, k)
	assignments := make(map[string]int, n)
	for i, label := range best.labels {
		sizes[label]++
		assignments[m.RunIDs[i]] = label
	}

	return &ClusterOutcome{
		K:           k,
		Labels:      best.labels,
		Assignments: assignments,
		Centroids:   best.centroids,
		Sizes:       sizes,
		Inertia:     best.inertia,
		Iterations:  best.iterations,
		Converged:   best.converged,
	}, nil
}

// degenerateOutcome places every run in one cluster centered on the
// column means.
func degenerateOutcome(m *FeatureMatrix) *ClusterOutcome {
	n, cols := m.Rows(), m.Cols()

	centroid := make([]float64, cols)
	for j := 0; j < cols; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += m.Data[i][j]
		}
		centroid[j] = sum / float64(n)
	}

	var inertia float64
	for i := 0; i < n; i++ {
		inertia += squaredDistance(m.Data[i], centroid)
	}

	assignments := make(map[string]int, n)
	for _, id := range m.RunIDs {
		assignments[id] = 0
	}

	return &ClusterOutcome{
		K:           1,
		Labels:      make([]int, n),
		Assignments: assignments,
		Centroids:   [][]float64{centroid},
		Sizes:       []int{n},
		Inertia:     inertia,
		Converged:   true,
		Degenerate:  true,
	}
}

// kmeansOnce runs one full k-means fit from a fresh initialization.
func kmeansOnce(data [][]float64, k, maxIterations int, rng *rand.Rand) *fit {
	centroids := initCentroids(data, k, rng)

	labels := make([]int, len(data))
	for i := range labels {
		labels[i] = -1
	}

	converged := false
	iterations := 0
	for iter := 1; iter <= maxIterations; iter++ {
		iterations = iter

		changed := assignRows(data, centroids, labels)
		if repairEmptyClusters(data, centroids, labels, k) {
			changed = true
		}
		if !changed {
			converged = true
			break
		}
		updateCentroids(data, centroids, labels, k)
	}

	var inertia float64
	for i, row := range data {
		inertia += squaredDistance(row, centroids[labels[i]])
	}

	return &fit{
		labels:     labels,
		centroids:  centroids,
		inertia:    inertia,
		iterations: iterations,
		converged:  converged,
	}
}

// initCentroids seeds k centroids with the k-means++ scheme: the
// first is a random row, each next is drawn with probability
// proportional to its squared distance from the nearest chosen
// centroid.
func initCentroids(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	n, cols := len(data), len(data[0])

	centroids := make([][]float64, k)
	for c := range centroids {
		centroids[c] = make([]float64, cols)
	}
	copy(centroids[0], data[rng.Intn(n)])

	minDist := make([]float64, n)
	for i := range data {
		minDist[i] = squaredDistance(data[i], centroids[0])
	}

	for c := 1; c < k; c++ {
		var total float64
		for _, d := range minDist {
			total += d
		}

		var idx int
		if total == 0 {
			// Every row coincides with a chosen centroid.
			idx = rng.Intn(n)
		} else {
			target := rng.Float64() * total
			cum := 0.0
			idx = n - 1
			for i, d := range minDist {
				cum += d
				if cum >= target {
					idx = i
					break
				}
			}
		}
		copy(centroids[c], data[idx])

		for i := range data {
			if d := squaredDistance(data[i], centroids[c]); d < minDist[i] {
				minDist[i] = d
			}
		}
	}
	return centroids
}

// assignRows moves each row to its nearest centroid and reports
// whether any assignment changed. Strict less-than keeps equidistant
// rows on the lower-indexed centroid.
func assignRows(data [][]float64, centroids [][]float64, labels []int) bool {
	changed := false
	for i, row := range data {
		bestLabel := 0
		bestDist := squaredDistance(row, centroids[0])
		for c := 1; c < len(centroids); c++ {
			if d := squaredDistance(row, centroids[c]); d < bestDist {
				bestDist = d
				bestLabel = c
			}
		}
		if labels[i] != bestLabel {
			labels[i] = bestLabel
			changed = true
		}
	}
	return changed
}

// repairEmptyClusters relocates each empty cluster's centroid onto the
// row currently farthest from its assigned centroid, stealing only
// from clusters with more than one member.
func repairEmptyClusters(data [][]float64, centroids [][]float64, labels []int, k int) bool {
	sizes := make([]int, k)
	for _, label := range labels {
		sizes[label]++
	}

	repaired := false
	for c := 0; c < k; c++ {
		if sizes[c] > 0 {
			continue
		}

		worst := -1
		worstDist := -1.0
		for i, row := range data {
			if sizes[labels[i]] <= 1 {
				continue
			}
			if d := squaredDistance(row, centroids[labels[i]]); d > worstDist {
				worstDist = d
				worst = i
			}
		}
		if worst < 0 {
			continue
		}

		sizes[labels[worst]]--
		labels[worst] = c
		sizes[c] = 1
		copy(centroids[c], data[worst])
		repaired = true
	}
	return repaired
}

// updateCentroids recomputes each centroid as the mean of its members.
func updateCentroids(data [][]float64, centroids [][]float64, labels []int, k int) {
	cols := len(data[0])
	counts := make([]int, k)
	for c := range centroids {
		for j := range centroids[c] {
			centroids[c][j] = 0
		}
	}
	for i, row := range data {
		c := labels[i]
		counts[c]++
		for j := 0; j < cols; j++ {
			centroids[c][j] += row[j]
		}
	}
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue
		}
		for j := 0; j < cols; j++ {
			centroids[c][j] /= float64(counts[c])
		}
	}
}
