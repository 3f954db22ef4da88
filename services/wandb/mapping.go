// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package wandb

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/runlens-ai/runlens/pkg/runs"
)

// --- Tracking API Wire Structs ---

type apiRun struct {
	ID        string                     `json:"id"`
	Name      string                     `json:"name"`
	State     string                     `json:"state"`
	CreatedAt time.Time                  `json:"created_at"`
	Runtime   float64                    `json:"runtime"`
	Commit    string                     `json:"commit"`
	Tags      []string                   `json:"tags"`
	Summary   map[string]json.RawMessage `json:"summary"`
	Config    map[string]json.RawMessage `json:"config"`
}

type apiRunList struct {
	Runs []apiRun `json:"runs"`
}

type apiHistory struct {
	History []map[string]json.RawMessage `json:"history"`
}

type apiArtifactList struct {
	Artifacts []Artifact `json:"artifacts"`
}

// Artifact is one versioned file bundle attached to a run.
type Artifact struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// mapState translates tracking-service states; the API reports
// terminal success as "finished".
func mapState(s string) runs.State {
	if s == "finished" {
		return runs.StateCompleted
	}
	return runs.State(s)
}

// toRun converts a wire run into the shared model. Summary keys with
// a leading underscore are service-internal and skipped, as are
// non-numeric summary values. Each summary metric lands as a
// single-element series holding the last logged value.
func toRun(a apiRun) runs.Run {
	r := runs.Run{
		ID:             a.ID,
		Name:           a.Name,
		State:          mapState(a.State),
		CreatedAt:      a.CreatedAt,
		RuntimeSeconds: a.Runtime,
		Commit:         a.Commit,
		Tags:           a.Tags,
		Metrics:        make(map[string][]float64, len(a.Summary)),
		Config:         make(map[string]runs.Value, len(a.Config)),
	}

	for key, raw := range a.Summary {
		if strings.HasPrefix(key, "_") {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		r.Metrics[key] = []float64{f}
	}

	for key, raw := range a.Config {
		if v, ok := decodeConfigValue(raw); ok {
			r.Config[key] = v
		}
	}

	return r
}

// decodeConfigValue decodes one config entry into the Value union.
// The API wraps some entries as {"value": ..., "desc": ...}; those
// are unwrapped first.
func decodeConfigValue(raw json.RawMessage) (runs.Value, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err == nil && wrapper.Value != nil {
			trimmed = wrapper.Value
		}
	}

	var v runs.Value
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return runs.Value{}, false
	}
	return v, true
}

// historySeries flattens sampled history rows into per-metric series,
// preserving row order. When metrics is empty every non-underscore
// key found in the rows is collected. Rows missing a metric or
// holding a non-numeric value contribute nothing to that series.
func historySeries(rows []map[string]json.RawMessage, metrics []string) map[string][]float64 {
	series := make(map[string][]float64)

	wanted := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		wanted[m] = true
	}

	for _, row := range rows {
		for key, raw := range row {
			if strings.HasPrefix(key, "_") {
				continue
			}
			if len(metrics) > 0 && !wanted[key] {
				continue
			}
			var f float64
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			series[key] = append(series[key], f)
		}
	}

	return series
}
