// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

// matrixOf builds a matrix directly for engine tests, with identity
// standardization stats so Denormalize is a no-op.
func matrixOf(data [][]float64) *FeatureMatrix {
	rows := len(data)
	cols := 0
	if rows > 0 {
		cols = len(data[0])
	}

	ids := make([]string, rows)
	for i := range ids {
		ids[i] = fmt.Sprintf("run-%d", i)
	}
	names := make([]string, cols)
	means := make([]float64, cols)
	stds := make([]float64, cols)
	for j := range names {
		names[j] = fmt.Sprintf("f%d", j)
		stds[j] = 1
	}

	imputed := make([][]bool, rows)
	for i := range imputed {
		imputed[i] = make([]bool, cols)
	}

	return &FeatureMatrix{
		RunIDs:  ids,
		Columns: names,
		Data:    data,
		Means:   means,
		Stds:    stds,
		Imputed: imputed,
	}
}

// twoBlobs returns 8 points in two well-separated groups of four.
func twoBlobs() *FeatureMatrix {
	return matrixOf([][]float64{
		{0, 0}, {0.1, 0}, {0, 0.1}, {0.2, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1}, {9.9, 10},
	})
}

// ============================================================================
// Validation
// ============================================================================

func TestCluster_EmptyMatrix(t *testing.T) {
	if _, err := Cluster(nil, DefaultClusterConfig()); !errors.Is(err, ErrClustering) {
		t.Errorf("nil matrix: error = %v, want ErrClustering", err)
	}
	if _, err := Cluster(matrixOf(nil), DefaultClusterConfig()); !errors.Is(err, ErrClustering) {
		t.Errorf("zero rows: error = %v, want ErrClustering", err)
	}
}

func TestCluster_KBelowOne(t *testing.T) {
	m := twoBlobs()
	for _, k := range []int{0, -1} {
		cfg := DefaultClusterConfig()
		cfg.K = k
		if _, err := Cluster(m, cfg); !errors.Is(err, ErrClustering) {
			t.Errorf("K=%d: error = %v, want ErrClustering", k, err)
		}
	}
}

func TestCluster_NonFiniteValues(t *testing.T) {
	m := matrixOf([][]float64{{1, 2}, {3, math.NaN()}, {5, 6}})
	if _, err := Cluster(m, DefaultClusterConfig()); !errors.Is(err, ErrClustering) {
		t.Errorf("NaN cell: error = %v, want ErrClustering", err)
	}

	m = matrixOf([][]float64{{1, 2}, {3, 4}, {math.Inf(-1), 6}})
	if _, err := Cluster(m, DefaultClusterConfig()); !errors.Is(err, ErrClustering) {
		t.Errorf("Inf cell: error = %v, want ErrClustering", err)
	}
}

// ============================================================================
// Degenerate and capped outcomes
// ============================================================================

func TestCluster_FewerThanThreeRunsIsDegenerate(t *testing.T) {
	m := matrixOf([][]float64{{0, 0}, {10, 10}})

	out, err := Cluster(m, DefaultClusterConfig())
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}

	if !out.Degenerate {
		t.Error("two runs must produce a degenerate outcome")
	}
	if out.K != 1 {
		t.Errorf("K = %d, want 1", out.K)
	}
	for i, label := range out.Labels {
		if label != 0 {
			t.Errorf("label[%d] = %d, want 0", i, label)
		}
	}
	if out.Sizes[0] != 2 {
		t.Errorf("Sizes[0] = %d, want 2", out.Sizes[0])
	}
	if !out.Converged {
		t.Error("degenerate outcome is trivially converged")
	}
}

func TestCluster_KCappedAtRowCount(t *testing.T) {
	m := matrixOf([][]float64{{0}, {1}, {2}, {3}})
	cfg := DefaultClusterConfig()
	cfg.K = 10

	out, err := Cluster(m, cfg)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if out.K != 4 {
		t.Errorf("K = %d, want 4 (capped at rows)", out.K)
	}
	for label, size := range out.Sizes {
		if size != 1 {
			t.Errorf("Sizes[%d] = %d, want 1 when every row is its own cluster", label, size)
		}
	}
	if out.Inertia > 1e-9 {
		t.Errorf("Inertia = %v, want ~0 with singleton clusters", out.Inertia)
	}
}

// ============================================================================
// Fitting behavior
// ============================================================================

func TestCluster_SeparatesObviousGroups(t *testing.T) {
	m := twoBlobs()
	cfg := DefaultClusterConfig()
	cfg.K = 2

	out, err := Cluster(m, cfg)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}

	first := out.Labels[0]
	for i := 1; i < 4; i++ {
		if out.Labels[i] != first {
			t.Errorf("row %d split from its blob: labels = %v", i, out.Labels)
		}
	}
	second := out.Labels[4]
	if second == first {
		t.Fatalf("blobs merged: labels = %v", out.Labels)
	}
	for i := 5; i < 8; i++ {
		if out.Labels[i] != second {
			t.Errorf("row %d split from its blob: labels = %v", i, out.Labels)
		}
	}
	if !out.Converged {
		t.Error("well-separated blobs should converge")
	}
}

func TestCluster_DeterministicForSeed(t *testing.T) {
	m := twoBlobs()
	cfg := DefaultClusterConfig()
	cfg.K = 2
	cfg.Seed = 7

	a, err := Cluster(m, cfg)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	b, err := Cluster(m, cfg)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}

	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			t.Fatalf("labels differ between identical fits: %v vs %v", a.Labels, b.Labels)
		}
	}
	if a.Inertia != b.Inertia {
		t.Errorf("inertia differs: %v vs %v", a.Inertia, b.Inertia)
	}
	if a.Iterations != b.Iterations {
		t.Errorf("iterations differ: %d vs %d", a.Iterations, b.Iterations)
	}
}

func TestCluster_AssignmentsMatchLabels(t *testing.T) {
	m := twoBlobs()
	cfg := DefaultClusterConfig()
	cfg.K = 2

	out, err := Cluster(m, cfg)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}

	if len(out.Assignments) != len(m.RunIDs) {
		t.Fatalf("Assignments has %d entries, want %d", len(out.Assignments), len(m.RunIDs))
	}
	for i, id := range m.RunIDs {
		if out.Assignments[id] != out.Labels[i] {
			t.Errorf("Assignments[%s] = %d, labels[%d] = %d", id, out.Assignments[id], i, out.Labels[i])
		}
	}
}

func TestCluster_SizesSumToRows(t *testing.T) {
	m := twoBlobs()
	cfg := DefaultClusterConfig()
	cfg.K = 3

	out, err := Cluster(m, cfg)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}

	total := 0
	for _, s := range out.Sizes {
		total += s
	}
	if total != m.Rows() {
		t.Errorf("sizes sum to %d, want %d", total, m.Rows())
	}
	for label, size := range out.Sizes {
		if size == 0 {
			t.Errorf("cluster %d is empty; repair should prevent empty clusters", label)
		}
	}
}

func TestAssignRows_TieGoesToLowerCentroid(t *testing.T) {
	data := [][]float64{{0}}
	centroids := [][]float64{{-1}, {1}}
	labels := []int{-1}

	assignRows(data, centroids, labels)
	if labels[0] != 0 {
		t.Errorf("equidistant row assigned to %d, want lower-indexed 0", labels[0])
	}
}

func TestCluster_IdenticalPoints(t *testing.T) {
	m := matrixOf([][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}})
	cfg := DefaultClusterConfig()
	cfg.K = 2

	out, err := Cluster(m, cfg)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if out.K != 2 {
		t.Fatalf("K = %d, want 2", out.K)
	}
	for label, size := range out.Sizes {
		if size == 0 {
			t.Errorf("cluster %d empty on identical points; repair should fill it", label)
		}
	}
	if out.Inertia != 0 {
		t.Errorf("Inertia = %v, want 0 for identical points", out.Inertia)
	}
}
