// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis groups experiment runs by behavior.
//
// The pipeline has three stages. BuildFeatures flattens heterogeneous
// runs into a standardized numeric matrix. Cluster partitions the
// matrix rows with seeded k-means. Interpret turns the raw partition
// into ranked, human-oriented cluster summaries with outliers and the
// config features that most distinguish each cluster.
//
// All three stages are deterministic for a given input and seed, and
// none of them mutate their inputs.
package analysis

import (
	"math"
	"strings"
)

// ConfigColumnPrefix marks feature columns derived from run config
// rather than logged metrics.
const ConfigColumnPrefix = "config_"

// OtherBucket is the one-hot column value that collects categorical
// values rarer than the MaxCategorical most frequent ones.
const OtherBucket = "__other__"

// Aggregation selects how a metric series collapses to one scalar.
type Aggregation string

const (
	// AggLast takes the final logged value. The default: for training
	// curves the last value is the run's end state.
	AggLast Aggregation = "last"

	// AggMax takes the series maximum.
	AggMax Aggregation = "max"

	// AggMin takes the series minimum.
	AggMin Aggregation = "min"

	// AggMean takes the arithmetic mean of the series.
	AggMean Aggregation = "mean"
)

// Valid reports whether the aggregation is one of the known modes.
func (a Aggregation) Valid() bool {
	switch a {
	case AggLast, AggMax, AggMin, AggMean:
		return true
	}
	return false
}

// FeatureConfig configures feature extraction.
type FeatureConfig struct {
	// Aggregation collapses each metric series to a scalar.
	// Default: AggLast
	Aggregation Aggregation `json:"aggregation,omitempty"`

	// MaxCategorical bounds the one-hot columns per categorical config
	// key; rarer values collapse into the OtherBucket column.
	// Default: 8
	MaxCategorical int `json:"max_categorical,omitempty"`

	// EncodeCategorical controls whether string config values are
	// one-hot encoded at all. When false they are dropped.
	EncodeCategorical bool `json:"encode_categorical,omitempty"`
}

// DefaultFeatureConfig returns the stock feature extraction settings.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		Aggregation:       AggLast,
		MaxCategorical:    8,
		EncodeCategorical: true,
	}
}

// FeatureMatrix is the standardized numeric view of a set of runs.
//
// Rows follow the input run order; columns are sorted by name. Every
// column has mean 0 and standard deviation 1 except zero-variance
// columns, which are all zeros. The pre-standardization column
// statistics are retained so display layers can convert standardized
// values back to raw units.
type FeatureMatrix struct {
	// RunIDs holds the run ID for each row.
	RunIDs []string `json:"run_ids"`

	// Columns holds the feature name for each column, sorted.
	Columns []string `json:"columns"`

	// Data is the standardized matrix, row-major:
	// Data[row][col] for RunIDs[row] x Columns[col].
	Data [][]float64 `json:"data"`

	// Means holds the post-imputation, pre-standardization mean of
	// each column.
	Means []float64 `json:"means"`

	// Stds holds the pre-standardization population standard
	// deviation of each column; zero for constant columns.
	Stds []float64 `json:"stds"`

	// Imputed flags cells whose raw value was absent and filled with
	// the column mean. Same shape as Data.
	Imputed [][]bool `json:"imputed"`
}

// Rows returns the number of runs in the matrix.
func (m *FeatureMatrix) Rows() int { return len(m.Data) }

// Cols returns the number of feature columns.
func (m *FeatureMatrix) Cols() int { return len(m.Columns) }

// ColumnIndex returns the index of the named column, or -1.
func (m *FeatureMatrix) ColumnIndex(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Denormalize converts a standardized value in the given column back
// to raw units.
func (m *FeatureMatrix) Denormalize(col int, z float64) float64 {
	return z*m.Stds[col] + m.Means[col]
}

// IsConfigColumn reports whether the column derives from run config.
func IsConfigColumn(name string) bool {
	return strings.HasPrefix(name, ConfigColumnPrefix)
}

// ClusterConfig configures the k-means engine.
type ClusterConfig struct {
	// K is the requested number of clusters. The effective count is
	// capped at the number of rows. Must be at least 1.
	K int `json:"k"`

	// Seed drives centroid initialization. Each restart derives its
	// own RNG from Seed so the whole fit is reproducible.
	// Default: 42
	Seed int64 `json:"seed,omitempty"`

	// Restarts is the number of independent initializations; the fit
	// with the lowest inertia wins. Default: 10
	Restarts int `json:"restarts,omitempty"`

	// MaxIterations caps the assign/update loop per restart. Hitting
	// the cap is a soft success recorded as Converged=false.
	// Default: 300
	MaxIterations int `json:"max_iterations,omitempty"`
}

// DefaultClusterConfig returns the stock clustering settings.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		K:             3,
		Seed:          42,
		Restarts:      10,
		MaxIterations: 300,
	}
}

// ClusterOutcome is the partition produced by Cluster.
type ClusterOutcome struct {
	// K is the effective cluster count after capping at the row count.
	K int `json:"k"`

	// Labels assigns each matrix row to a cluster in [0, K).
	Labels []int `json:"labels"`

	// Assignments maps run ID to cluster label.
	Assignments map[string]int `json:"assignments"`

	// Centroids holds the cluster centers in standardized feature
	// space, indexed by label.
	Centroids [][]float64 `json:"centroids"`

	// Sizes holds the member count per cluster, indexed by label.
	Sizes []int `json:"sizes"`

	// Inertia is the sum of squared distances of rows to their
	// centroid; lower is tighter.
	Inertia float64 `json:"inertia"`

	// Iterations is the number of assign/update rounds of the winning
	// restart.
	Iterations int `json:"iterations"`

	// Converged is false when the winning restart stopped at the
	// iteration cap instead of a fixed point.
	Converged bool `json:"converged"`

	// Degenerate marks the single-cluster fallback used when there
	// are too few runs to cluster meaningfully.
	Degenerate bool `json:"degenerate"`
}

// InterpretConfig configures cluster interpretation.
type InterpretConfig struct {
	// PrimaryMetric is the metric column used to rank clusters.
	// Default: "accuracy"
	PrimaryMetric string `json:"primary_metric,omitempty"`

	// HigherIsBetter gives the ranking direction for PrimaryMetric.
	// Default: true
	HigherIsBetter bool `json:"higher_is_better"`

	// OutlierMultiple flags a member as an outlier when its distance
	// to the centroid exceeds this multiple of the cluster's mean
	// intra-cluster distance. Default: 2.0
	OutlierMultiple float64 `json:"outlier_multiple,omitempty"`

	// TopFeatures is how many deviating config features to report per
	// cluster. Default: 3
	TopFeatures int `json:"top_features,omitempty"`
}

// DefaultInterpretConfig returns the stock interpretation settings.
func DefaultInterpretConfig() InterpretConfig {
	return InterpretConfig{
		PrimaryMetric:   "accuracy",
		HigherIsBetter:  true,
		OutlierMultiple: 2.0,
		TopFeatures:     3,
	}
}

// FeatureDeviation describes one config feature that sets a cluster
// apart from the population.
type FeatureDeviation struct {
	// Name is the feature column name.
	Name string `json:"name"`

	// Deviation is the cluster mean minus the global mean, in
	// standardized units. Sign tells the direction.
	Deviation float64 `json:"deviation"`

	// ClusterMean is the within-cluster mean in raw units.
	ClusterMean float64 `json:"cluster_mean"`

	// GlobalMean is the population mean in raw units.
	GlobalMean float64 `json:"global_mean"`
}

// Outlier is a run unusually far from its cluster's centroid.
// Informational: outliers stay members of their cluster.
type Outlier struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// Cluster is the label of the cluster the run belongs to.
	Cluster int `json:"cluster"`

	// Distance is the run's distance to the centroid in standardized
	// feature space.
	Distance float64 `json:"distance"`

	// MeanDistance is the cluster's mean intra-cluster distance.
	MeanDistance float64 `json:"mean_distance"`
}

// ClusterSummary is the interpreted view of one cluster.
type ClusterSummary struct {
	// Label is the engine-assigned cluster label.
	Label int `json:"label"`

	// Rank is the 1-based position after ranking by the primary
	// metric.
	Rank int `json:"rank"`

	// Size is the member count.
	Size int `json:"size"`

	// RunIDs lists the member runs in matrix row order.
	RunIDs []string `json:"run_ids"`

	// MetricMean is the cluster's mean of the primary metric in raw
	// units.
	MetricMean float64 `json:"metric_mean"`

	// TopFeatures lists the most deviating config features.
	TopFeatures []FeatureDeviation `json:"top_features,omitempty"`

	// Characteristics are rule-based human-readable tags such as
	// "high accuracy".
	Characteristics []string `json:"characteristics,omitempty"`
}

// Interpretation is the complete interpreted clustering.
type Interpretation struct {
	// Clusters is ordered best-first by the primary metric.
	Clusters []ClusterSummary `json:"clusters"`

	// Outliers lists unusual members across all clusters.
	Outliers []Outlier `json:"outliers,omitempty"`

	// PrimaryMetric echoes the ranking metric.
	PrimaryMetric string `json:"primary_metric"`

	// Degenerate mirrors ClusterOutcome.Degenerate.
	Degenerate bool `json:"degenerate"`
}

// euclidean returns the distance between two equal-length vectors.
func euclidean(a, b []float64) float64 {
	return math.Sqrt(squaredDistance(a, b))
}

// squaredDistance returns the squared Euclidean distance. Comparisons
// use this form to avoid the sqrt.
func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
