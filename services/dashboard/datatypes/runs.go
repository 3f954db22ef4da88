// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Response types for the run browsing endpoints.
package datatypes

import "github.com/runlens-ai/runlens/pkg/runs"

// RunListResponse is the body of GET /v1/runs.
type RunListResponse struct {
	Entity  string     `json:"entity"`
	Project string     `json:"project"`
	Count   int        `json:"count"`
	Runs    []runs.Run `json:"runs"`
}

// HistoryResponse is the body of GET /v1/runs/:id/history. Metrics
// maps metric name to its sampled series.
type HistoryResponse struct {
	RunID   string               `json:"run_id"`
	Metrics map[string][]float64 `json:"metrics"`
}
