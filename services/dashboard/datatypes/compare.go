// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Side-by-side run comparison types for POST /v1/runs/compare.
package datatypes

import (
	"sort"

	"github.com/runlens-ai/runlens/pkg/runs"
)

// unsetMarker renders a config key a run does not have, distinct from
// an empty string value.
const unsetMarker = "-"

// CompareRequest names 2-10 runs of one project to compare.
type CompareRequest struct {
	Entity  string   `json:"entity" validate:"required,entity"`
	Project string   `json:"project" validate:"required,project"`
	RunIDs  []string `json:"run_ids" validate:"required,min=2,max=10,dive,runid"`
}

// Validate checks the request against the field rules.
func (r *CompareRequest) Validate() error {
	return dashValidate.Struct(r)
}

// ConfigDelta is one config key whose value differs across the
// compared runs. Values aligns with the response's run order.
type ConfigDelta struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// MetricDelta is one metric's final value across the compared runs,
// aligned with the response's run order. A nil entry means the run
// never logged that metric.
type MetricDelta struct {
	Name   string     `json:"name"`
	Values []*float64 `json:"values"`
}

// CompareResponse is the side-by-side view of the compared runs.
// ConfigDiff lists only the keys that actually differ; identical
// config is noise in a comparison.
type CompareResponse struct {
	Runs       []runs.Run    `json:"runs"`
	ConfigDiff []ConfigDelta `json:"config_diff"`
	MetricDiff []MetricDelta `json:"metric_diff"`
}

// NewCompareResponse builds the comparison view over the fetched runs.
func NewCompareResponse(rs []runs.Run) *CompareResponse {
	return &CompareResponse{
		Runs:       rs,
		ConfigDiff: buildConfigDiff(rs),
		MetricDiff: buildMetricDiff(rs),
	}
}

// buildConfigDiff collects config keys with at least two distinct
// values across the runs, sorted by key.
func buildConfigDiff(rs []runs.Run) []ConfigDelta {
	keys := make(map[string]struct{})
	for _, r := range rs {
		for k := range r.Config {
			keys[k] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	deltas := make([]ConfigDelta, 0, len(sorted))
	for _, key := range sorted {
		values := make([]string, len(rs))
		differs := false
		for i, r := range rs {
			if v, ok := r.Config[key]; ok {
				values[i] = v.String()
			} else {
				values[i] = unsetMarker
			}
			if i > 0 && values[i] != values[0] {
				differs = true
			}
		}
		if differs {
			deltas = append(deltas, ConfigDelta{Key: key, Values: values})
		}
	}
	return deltas
}

// buildMetricDiff collects the final value of every metric any run
// logged, sorted by name. Unlike config, identical metrics are kept:
// equal outcomes are exactly what a comparison needs to show.
func buildMetricDiff(rs []runs.Run) []MetricDelta {
	names := make(map[string]struct{})
	for _, r := range rs {
		for name := range r.Metrics {
			names[name] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	deltas := make([]MetricDelta, 0, len(sorted))
	for _, name := range sorted {
		values := make([]*float64, len(rs))
		for i := range rs {
			if v, ok := rs[i].LastMetric(name); ok {
				value := v
				values[i] = &value
			}
		}
		deltas = append(deltas, MetricDelta{Name: name, Values: values})
	}
	return deltas
}
