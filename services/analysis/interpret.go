// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"math"
	"sort"
)

// Interpret ranks and annotates a clustering outcome.
//
// # Description
//
// For each cluster it computes the mean of the primary metric in raw
// units, the config features whose cluster mean deviates most from
// the population, rule-based characteristic tags, and the members
// sitting unusually far from the centroid. Clusters are then ordered
// best-first by the primary metric; ties prefer the larger cluster,
// then the lower label, so the ordering never depends on engine label
// numbering.
//
// Interpret is a pure function: it reads the matrix and outcome and
// mutates neither. Calling it twice yields identical results.
//
// # Inputs
//
//   - m: The matrix the outcome was fit on.
//   - outcome: Partition from Cluster.
//   - cfg: Ranking and reporting settings. An empty PrimaryMetric
//     falls back to "accuracy" ranked descending; when the metric is
//     set explicitly, HigherIsBetter is honored as given.
//
// # Outputs
//
//   - *Interpretation: Ranked summaries plus outliers.
func Interpret(m *FeatureMatrix, outcome *ClusterOutcome, cfg InterpretConfig) *Interpretation {
	defaults := DefaultInterpretConfig()
	primaryMetric := cfg.PrimaryMetric
	higherIsBetter := cfg.HigherIsBetter
	if primaryMetric == "" {
		primaryMetric = defaults.PrimaryMetric
		higherIsBetter = defaults.HigherIsBetter
	}
	outlierMultiple := cfg.OutlierMultiple
	if outlierMultiple <= 0 {
		outlierMultiple = defaults.OutlierMultiple
	}
	topFeatures := cfg.TopFeatures
	if topFeatures <= 0 {
		topFeatures = defaults.TopFeatures
	}

	metricCol := m.ColumnIndex(primaryMetric)

	members := make([][]int, outcome.K)
	for i, label := range outcome.Labels {
		members[label] = append(members[label], i)
	}

	summaries := make([]ClusterSummary, 0, outcome.K)
	var outliers []Outlier
	for c := 0; c < outcome.K; c++ {
		rows := members[c]

		ids := make([]string, len(rows))
		for i, row := range rows {
			ids[i] = m.RunIDs[row]
		}

		var metricMean float64
		if metricCol >= 0 {
			metricMean = m.Denormalize(metricCol, columnMean(m, rows, metricCol))
		}

		summaries = append(summaries, ClusterSummary{
			Label:           c,
			Size:            len(rows),
			RunIDs:          ids,
			MetricMean:      metricMean,
			TopFeatures:     deviatingFeatures(m, rows, topFeatures),
			Characteristics: characteristics(m, rows),
		})

		outliers = append(outliers, clusterOutliers(m, outcome, c, rows, outlierMultiple)...)
	}

	// Best first; ties prefer the larger cluster, then the lower
	// label, making the order independent of label numbering.
	sort.SliceStable(summaries, func(a, b int) bool {
		sa, sb := summaries[a], summaries[b]
		if sa.MetricMean != sb.MetricMean {
			if higherIsBetter {
				return sa.MetricMean > sb.MetricMean
			}
			return sa.MetricMean < sb.MetricMean
		}
		if sa.Size != sb.Size {
			return sa.Size > sb.Size
		}
		return sa.Label < sb.Label
	})
	for i := range summaries {
		summaries[i].Rank = i + 1
	}

	return &Interpretation{
		Clusters:      summaries,
		Outliers:      outliers,
		PrimaryMetric: primaryMetric,
		Degenerate:    outcome.Degenerate,
	}
}

// deviatingFeatures returns the config columns whose cluster mean is
// farthest from the population mean, in standardized units. The
// population mean of a standardized column is zero, so the deviation
// is simply the cluster mean of the column.
func deviatingFeatures(m *FeatureMatrix, rows []int, limit int) []FeatureDeviation {
	type scored struct {
		col int
		dev float64
	}

	var candidates []scored
	for j, name := range m.Columns {
		if !IsConfigColumn(name) {
			continue
		}
		dev := columnMean(m, rows, j)
		if dev == 0 {
			continue
		}
		candidates = append(candidates, scored{col: j, dev: dev})
	}

	sort.Slice(candidates, func(a, b int) bool {
		da, db := math.Abs(candidates[a].dev), math.Abs(candidates[b].dev)
		if da != db {
			return da > db
		}
		return m.Columns[candidates[a].col] < m.Columns[candidates[b].col]
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]FeatureDeviation, len(candidates))
	for i, cand := range candidates {
		result[i] = FeatureDeviation{
			Name:        m.Columns[cand.col],
			Deviation:   cand.dev,
			ClusterMean: m.Denormalize(cand.col, cand.dev),
			GlobalMean:  m.Means[cand.col],
		}
	}
	return result
}

// characteristics applies the rule-based tags to a cluster's raw-unit
// means when the relevant features exist.
func characteristics(m *FeatureMatrix, rows []int) []string {
	var tags []string

	if v, ok := clusterRawMean(m, rows, "accuracy"); ok {
		switch {
		case v > 0.9:
			tags = append(tags, "high accuracy")
		case v < 0.7:
			tags = append(tags, "low accuracy")
		}
	}
	if v, ok := clusterRawMean(m, rows, "loss"); ok {
		switch {
		case v < 0.1:
			tags = append(tags, "low loss")
		case v > 0.5:
			tags = append(tags, "high loss")
		}
	}
	if v, ok := clusterRawMean(m, rows, ConfigColumnPrefix+"learning_rate"); ok {
		switch {
		case v > 0.01:
			tags = append(tags, "high learning rate")
		case v < 0.0001:
			tags = append(tags, "very low learning rate")
		}
	}
	return tags
}

// clusterOutliers flags members whose distance to the centroid
// exceeds the multiple of the cluster's mean intra-cluster distance.
func clusterOutliers(m *FeatureMatrix, outcome *ClusterOutcome, label int, rows []int, multiple float64) []Outlier {
	if len(rows) == 0 {
		return nil
	}

	centroid := outcome.Centroids[label]
	dists := make([]float64, len(rows))
	var total float64
	for i, row := range rows {
		dists[i] = euclidean(m.Data[row], centroid)
		total += dists[i]
	}
	meanDist := total / float64(len(rows))
	threshold := multiple * meanDist

	var result []Outlier
	for i, row := range rows {
		if dists[i] > threshold && meanDist > 0 {
			result = append(result, Outlier{
				RunID:        m.RunIDs[row],
				Cluster:      label,
				Distance:     dists[i],
				MeanDistance: meanDist,
			})
		}
	}
	return result
}

// columnMean averages the standardized column over the given rows.
func columnMean(m *FeatureMatrix, rows []int, col int) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, row := range rows {
		sum += m.Data[row][col]
	}
	return sum / float64(len(rows))
}

// clusterRawMean returns the cluster mean of the named column in raw
// units, if the column exists.
func clusterRawMean(m *FeatureMatrix, rows []int, name string) (float64, bool) {
	col := m.ColumnIndex(name)
	if col < 0 {
		return 0, false
	}
	return m.Denormalize(col, columnMean(m, rows, col)), true
}
