// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/runlens-ai/runlens/services/analysis"
)

// =============================================================================
// AnalyzeRequest Validation Tests
// =============================================================================

func TestAnalyzeRequest_Validate_Success(t *testing.T) {
	req := &AnalyzeRequest{
		Entity:  "runlens",
		Project: "mnist-baseline",
	}
	req.EnsureDefaults()

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestAnalyzeRequest_Validate_MissingEntity(t *testing.T) {
	req := &AnalyzeRequest{
		Project: "mnist-baseline",
	}
	req.EnsureDefaults()

	if err := req.Validate(); err == nil {
		t.Error("expected error for missing entity, got nil")
	}
}

func TestAnalyzeRequest_Validate_MissingProject(t *testing.T) {
	req := &AnalyzeRequest{
		Entity: "runlens",
	}
	req.EnsureDefaults()

	if err := req.Validate(); err == nil {
		t.Error("expected error for missing project, got nil")
	}
}

func TestAnalyzeRequest_Validate_PathTraversalEntity(t *testing.T) {
	req := &AnalyzeRequest{
		Entity:  "../etc",
		Project: "mnist-baseline",
	}
	req.EnsureDefaults()

	if err := req.Validate(); err == nil {
		t.Error("expected error for path traversal in entity, got nil")
	}
}

func TestAnalyzeRequest_Validate_InvalidRequestID(t *testing.T) {
	req := &AnalyzeRequest{
		RequestID: "not-a-uuid",
		Entity:    "runlens",
		Project:   "mnist-baseline",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for invalid request_id, got nil")
	}
}

func TestAnalyzeRequest_Validate_LimitOverCap(t *testing.T) {
	req := &AnalyzeRequest{
		Entity:  "runlens",
		Project: "mnist-baseline",
		Limit:   MaxRunsPerRequest + 1,
	}

	if err := req.Validate(); err == nil {
		t.Errorf("expected error for limit %d (cap is %d), got nil",
			req.Limit, MaxRunsPerRequest)
	}
}

func TestAnalyzeRequest_Validate_ExactlyMaxLimit(t *testing.T) {
	req := &AnalyzeRequest{
		Entity:  "runlens",
		Project: "mnist-baseline",
		Limit:   MaxRunsPerRequest,
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected limit at cap to be valid, got error: %v", err)
	}
}

func TestAnalyzeRequest_Validate_KOverCap(t *testing.T) {
	req := &AnalyzeRequest{
		Entity:  "runlens",
		Project: "mnist-baseline",
		K:       MaxClusterCount + 1,
	}

	if err := req.Validate(); err == nil {
		t.Errorf("expected error for k %d (cap is %d), got nil",
			req.K, MaxClusterCount)
	}
}

func TestAnalyzeRequest_Validate_BadAggregation(t *testing.T) {
	req := &AnalyzeRequest{
		Entity:      "runlens",
		Project:     "mnist-baseline",
		Aggregation: "median",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for unknown aggregation, got nil")
	}
}

func TestAnalyzeRequest_Validate_BadSelectedRunID(t *testing.T) {
	req := &AnalyzeRequest{
		Entity:        "runlens",
		Project:       "mnist-baseline",
		SelectedRunID: "run; DROP TABLE runs",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for invalid selected_run_id, got nil")
	}
}

func TestAnalyzeRequest_Validate_BadMetricName(t *testing.T) {
	req := &AnalyzeRequest{
		Entity:        "runlens",
		Project:       "mnist-baseline",
		PrimaryMetric: "val/acc\nrm -rf",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for invalid primary_metric, got nil")
	}
}

// =============================================================================
// AnalyzeRequest Defaults Tests
// =============================================================================

func TestAnalyzeRequest_EnsureDefaults(t *testing.T) {
	req := &AnalyzeRequest{
		Entity:  "runlens",
		Project: "mnist-baseline",
	}
	req.EnsureDefaults()

	if req.RequestID == "" {
		t.Error("expected request_id to be generated")
	}
	if req.Limit != 50 {
		t.Errorf("expected default limit 50, got %d", req.Limit)
	}
	if req.K != analysis.DefaultClusterConfig().K {
		t.Errorf("expected default k %d, got %d",
			analysis.DefaultClusterConfig().K, req.K)
	}
	if req.PrimaryMetric != analysis.DefaultInterpretConfig().PrimaryMetric {
		t.Errorf("unexpected default primary_metric %q", req.PrimaryMetric)
	}
	if req.Aggregation != string(analysis.AggLast) {
		t.Errorf("expected default aggregation %q, got %q",
			analysis.AggLast, req.Aggregation)
	}
}

func TestAnalyzeRequest_EnsureDefaults_PreservesExplicitValues(t *testing.T) {
	req := &AnalyzeRequest{
		RequestID:     "550e8400-e29b-41d4-a716-446655440000",
		Entity:        "runlens",
		Project:       "mnist-baseline",
		Limit:         120,
		K:             5,
		PrimaryMetric: "val/loss",
		Aggregation:   "min",
	}
	req.EnsureDefaults()

	if req.RequestID != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("request_id overwritten: %q", req.RequestID)
	}
	if req.Limit != 120 || req.K != 5 {
		t.Errorf("explicit limit/k overwritten: %d/%d", req.Limit, req.K)
	}
	if req.PrimaryMetric != "val/loss" || req.Aggregation != "min" {
		t.Errorf("explicit metric settings overwritten: %q/%q",
			req.PrimaryMetric, req.Aggregation)
	}
}

func TestAnalyzeRequest_EnsureDefaults_GeneratesUniqueIDs(t *testing.T) {
	a := &AnalyzeRequest{Entity: "runlens", Project: "p"}
	b := &AnalyzeRequest{Entity: "runlens", Project: "p"}
	a.EnsureDefaults()
	b.EnsureDefaults()

	if a.RequestID == b.RequestID {
		t.Error("expected distinct generated request IDs")
	}
}

// =============================================================================
// Config Converter Tests
// =============================================================================

func TestAnalyzeRequest_ClusterConfig(t *testing.T) {
	req := &AnalyzeRequest{
		Entity:  "runlens",
		Project: "mnist-baseline",
		K:       7,
		Seed:    99,
	}

	cfg := req.ClusterConfig()
	if cfg.K != 7 {
		t.Errorf("expected k 7, got %d", cfg.K)
	}
	if cfg.Seed != 99 {
		t.Errorf("expected seed 99, got %d", cfg.Seed)
	}
	if cfg.Restarts != analysis.DefaultClusterConfig().Restarts {
		t.Errorf("expected default restarts, got %d", cfg.Restarts)
	}
}

func TestAnalyzeRequest_ClusterConfig_ZeroKeepsDefaults(t *testing.T) {
	req := &AnalyzeRequest{Entity: "runlens", Project: "mnist-baseline"}

	cfg := req.ClusterConfig()
	def := analysis.DefaultClusterConfig()
	if cfg.K != def.K || cfg.Seed != def.Seed {
		t.Errorf("expected defaults %d/%d, got %d/%d",
			def.K, def.Seed, cfg.K, cfg.Seed)
	}
}

func TestAnalyzeRequest_InterpretConfig_ExplicitFalseSurvives(t *testing.T) {
	falsy := false
	req := &AnalyzeRequest{
		Entity:         "runlens",
		Project:        "mnist-baseline",
		PrimaryMetric:  "val/loss",
		HigherIsBetter: &falsy,
	}

	cfg := req.InterpretConfig()
	if cfg.PrimaryMetric != "val/loss" {
		t.Errorf("expected primary metric val/loss, got %q", cfg.PrimaryMetric)
	}
	if cfg.HigherIsBetter {
		t.Error("explicit higher_is_better=false was lost")
	}
}

func TestAnalyzeRequest_InterpretConfig_NilPointerKeepsDefault(t *testing.T) {
	req := &AnalyzeRequest{Entity: "runlens", Project: "mnist-baseline"}

	cfg := req.InterpretConfig()
	if !cfg.HigherIsBetter {
		t.Error("expected default higher_is_better=true")
	}
}

func TestAnalyzeRequest_FeatureConfig_Aggregation(t *testing.T) {
	req := &AnalyzeRequest{
		Entity:      "runlens",
		Project:     "mnist-baseline",
		Aggregation: "mean",
	}

	cfg := req.FeatureConfig()
	if cfg.Aggregation != analysis.AggMean {
		t.Errorf("expected mean aggregation, got %q", cfg.Aggregation)
	}
}

func TestAnalyzeRequest_ListOptions(t *testing.T) {
	req := &AnalyzeRequest{Entity: "runlens", Project: "mnist-baseline", Limit: 25}

	if got := req.ListOptions().Limit; got != 25 {
		t.Errorf("expected list limit 25, got %d", got)
	}
}

// =============================================================================
// AnalyzeResponse Tests
// =============================================================================

func TestNewAnalyzeResponse(t *testing.T) {
	resp := NewAnalyzeResponse("550e8400-e29b-41d4-a716-446655440000", "runlens", "mnist-baseline")

	if resp.RequestID != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("unexpected request_id %q", resp.RequestID)
	}
	if resp.Entity != "runlens" || resp.Project != "mnist-baseline" {
		t.Errorf("unexpected scope %q/%q", resp.Entity, resp.Project)
	}
	if resp.Timestamp == 0 {
		t.Error("expected timestamp to be set")
	}
}
