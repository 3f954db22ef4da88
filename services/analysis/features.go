// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/runlens-ai/runlens/pkg/runs"
)

// cell is one raw feature value before imputation.
type cell struct {
	value   float64
	present bool
}

// BuildFeatures flattens runs into a standardized feature matrix.
//
// # Description
//
// The feature universe is the union of all metric names (each series
// collapsed to a scalar by cfg.Aggregation) and all config keys.
// Numeric and boolean config values become "config_<key>" columns;
// string values are one-hot encoded into "config_<key>=<value>"
// columns bounded by cfg.MaxCategorical, with rarer values pooled in
// the OtherBucket column. Cells a run has no value for are imputed
// with the column mean and flagged in the Imputed matrix. Finally
// every column is standardized to mean 0, stddev 1; zero-variance
// columns become all zeros.
//
// Rows keep the input run order and columns are sorted by name, so
// the same runs always produce the same matrix.
//
// # Inputs
//
//   - rs: Runs to featurize. Not mutated.
//   - cfg: Extraction settings; zero fields fall back to defaults
//     except EncodeCategorical, which is honored as given.
//
// # Outputs
//
//   - *FeatureMatrix: The standardized matrix.
//   - error: ErrValidation-wrapped when rs is empty, the aggregation
//     is unknown, or no usable feature columns remain.
func BuildFeatures(rs []runs.Run, cfg FeatureConfig) (*FeatureMatrix, error) {
	if len(rs) == 0 {
		return nil, fmt.Errorf("%w: no runs to featurize", ErrValidation)
	}

	agg := cfg.Aggregation
	if agg == "" {
		agg = AggLast
	}
	if !agg.Valid() {
		return nil, fmt.Errorf("%w: unknown aggregation %q", ErrValidation, agg)
	}
	maxCategorical := cfg.MaxCategorical
	if maxCategorical <= 0 {
		maxCategorical = DefaultFeatureConfig().MaxCategorical
	}

	columns := make(map[string][]cell)
	collectMetricColumns(columns, rs, agg)
	collectConfigColumns(columns, rs, maxCategorical, cfg.EncodeCategorical)

	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: runs yield no usable features", ErrValidation)
	}

	n := len(rs)
	data := make([][]float64, n)
	imputed := make([][]bool, n)
	for i := range data {
		data[i] = make([]float64, len(names))
		imputed[i] = make([]bool, len(names))
	}
	means := make([]float64, len(names))
	stds := make([]float64, len(names))

	for j, name := range names {
		cells := columns[name]

		var sum float64
		var count int
		for _, c := range cells {
			if c.present {
				sum += c.value
				count++
			}
		}
		var imputeValue float64
		if count > 0 {
			imputeValue = sum / float64(count)
		}

		for i, c := range cells {
			if c.present {
				data[i][j] = c.value
			} else {
				data[i][j] = imputeValue
				imputed[i][j] = true
			}
		}

		means[j], stds[j] = standardizeColumn(data, j)
	}

	ids := make([]string, n)
	for i := range rs {
		ids[i] = rs[i].ID
	}

	return &FeatureMatrix{
		RunIDs:  ids,
		Columns: names,
		Data:    data,
		Means:   means,
		Stds:    stds,
		Imputed: imputed,
	}, nil
}

// collectMetricColumns adds one column per metric name in the union.
func collectMetricColumns(columns map[string][]cell, rs []runs.Run, agg Aggregation) {
	names := make(map[string]bool)
	for _, r := range rs {
		for name := range r.Metrics {
			names[name] = true
		}
	}

	for name := range names {
		cells := make([]cell, len(rs))
		for i := range rs {
			if v, ok := collapse(rs[i].Metrics[name], agg); ok {
				cells[i] = cell{value: v, present: true}
			}
		}
		columns[name] = cells
	}
}

// collectConfigColumns adds columns for every config key. A key with
// any string value anywhere is treated as categorical; otherwise its
// numeric and boolean values form a single column.
func collectConfigColumns(columns map[string][]cell, rs []runs.Run, maxCategorical int, encodeCategorical bool) {
	keys := make(map[string]bool)
	for _, r := range rs {
		for k := range r.Config {
			keys[k] = true
		}
	}

	for key := range keys {
		categorical := false
		for _, r := range rs {
			v, ok := r.Config[key]
			if ok && v.Kind == runs.KindString {
				categorical = true
				break
			}
		}

		if categorical {
			if encodeCategorical {
				addOneHotColumns(columns, rs, key, maxCategorical)
			}
			continue
		}

		cells := make([]cell, len(rs))
		for i := range rs {
			v, ok := rs[i].Config[key]
			if !ok || v.Kind == runs.KindMissing {
				continue
			}
			if f, ok := v.Float(); ok && isFinite(f) {
				cells[i] = cell{value: f, present: true}
			}
		}
		columns[ConfigColumnPrefix+key] = cells
	}
}

// addOneHotColumns encodes a categorical key as indicator columns for
// its most frequent values. Runs that have the key score 0/1 across
// all indicators; runs without the key are left absent so the usual
// imputation applies.
func addOneHotColumns(columns map[string][]cell, rs []runs.Run, key string, maxCategorical int) {
	labels := make([]string, len(rs))
	has := make([]bool, len(rs))
	freq := make(map[string]int)
	for i := range rs {
		v, ok := rs[i].Config[key]
		if !ok || v.Kind == runs.KindMissing {
			continue
		}
		s := v.String()
		labels[i] = s
		has[i] = true
		freq[s]++
	}

	values := make([]string, 0, len(freq))
	for s := range freq {
		values = append(values, s)
	}
	// Most frequent first; ties alphabetical so the cut is stable.
	sort.Slice(values, func(a, b int) bool {
		if freq[values[a]] != freq[values[b]] {
			return freq[values[a]] > freq[values[b]]
		}
		return values[a] < values[b]
	})

	top := values
	overflow := false
	if len(values) > maxCategorical {
		top = values[:maxCategorical]
		overflow = true
	}
	topSet := make(map[string]bool, len(top))
	for _, s := range top {
		topSet[s] = true
	}

	for _, s := range top {
		cells := make([]cell, len(rs))
		for i := range rs {
			if !has[i] {
				continue
			}
			cells[i].present = true
			if labels[i] == s {
				cells[i].value = 1
			}
		}
		columns[oneHotColumn(key, s)] = cells
	}

	if overflow {
		cells := make([]cell, len(rs))
		for i := range rs {
			if !has[i] {
				continue
			}
			cells[i].present = true
			if !topSet[labels[i]] {
				cells[i].value = 1
			}
		}
		columns[oneHotColumn(key, OtherBucket)] = cells
	}
}

// collapse reduces a metric series to one scalar. Non-finite samples
// are ignored; a series with no finite samples is absent. AggLast
// takes the last finite value so a curve that diverged to NaN still
// reports its final real measurement.
func collapse(series []float64, agg Aggregation) (float64, bool) {
	switch agg {
	case AggLast:
		for i := len(series) - 1; i >= 0; i-- {
			if isFinite(series[i]) {
				return series[i], true
			}
		}
		return 0, false

	case AggMax:
		best, found := 0.0, false
		for _, v := range series {
			if isFinite(v) && (!found || v > best) {
				best, found = v, true
			}
		}
		return best, found

	case AggMin:
		best, found := 0.0, false
		for _, v := range series {
			if isFinite(v) && (!found || v < best) {
				best, found = v, true
			}
		}
		return best, found

	case AggMean:
		var sum float64
		var count int
		for _, v := range series {
			if isFinite(v) {
				sum += v
				count++
			}
		}
		if count == 0 {
			return 0, false
		}
		return sum / float64(count), true
	}
	return 0, false
}

// standardizeColumn rescales column j to mean 0, stddev 1 in place and
// returns the raw mean and population stddev. Zero-variance columns
// become all zeros.
func standardizeColumn(data [][]float64, j int) (mean, std float64) {
	n := float64(len(data))

	var total float64
	for i := range data {
		total += data[i][j]
	}
	mean = total / n

	var variance float64
	for i := range data {
		d := data[i][j] - mean
		variance += d * d
	}
	std = math.Sqrt(variance / n)

	if std == 0 {
		for i := range data {
			data[i][j] = 0
		}
		return mean, std
	}
	for i := range data {
		data[i][j] = (data[i][j] - mean) / std
	}
	return mean, std
}

func oneHotColumn(key, value string) string {
	return ConfigColumnPrefix + key + "=" + value
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
