// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// MaxExportSamples caps how many history steps one export request may
// pull per metric.
const MaxExportSamples = 2000

// ExportHistoryRequest asks for one run's metric histories to be
// written to InfluxDB. Empty Metrics exports every metric the run
// logged; Samples zero falls back to the tracking client's default.
type ExportHistoryRequest struct {
	Entity  string   `json:"entity" validate:"required,entity"`
	Project string   `json:"project" validate:"required,project"`
	RunID   string   `json:"run_id" validate:"required,runid"`
	Metrics []string `json:"metrics" validate:"omitempty,dive,metricname"`
	Samples int      `json:"samples" validate:"gte=0,lte=2000"`
}

// Validate checks the request against the field rules.
func (r *ExportHistoryRequest) Validate() error {
	return dashValidate.Struct(r)
}

// ExportHistoryResponse reports where the history landed.
type ExportHistoryResponse struct {
	RunID         string `json:"run_id"`
	Measurement   string `json:"measurement"`
	Bucket        string `json:"bucket"`
	PointsWritten int    `json:"points_written"`
}
