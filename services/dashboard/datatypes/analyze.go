// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request and response types for the
// dashboard service.
//
// This file contains the clustering analysis types used by both the
// synchronous POST /v1/analyze endpoint and the websocket variant.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/runlens-ai/runlens/pkg/validation"
	"github.com/runlens-ai/runlens/services/analysis"
	"github.com/runlens-ai/runlens/services/insights"
	"github.com/runlens-ai/runlens/services/wandb"
)

// =============================================================================
// Request Limits
// =============================================================================

const (
	// MaxRunsPerRequest caps how many runs one analysis may fetch.
	// Feature building is O(runs x columns) and the matrix is held in
	// memory, so unbounded requests are rejected up front.
	MaxRunsPerRequest = 500

	// MaxClusterCount caps the requested k.
	MaxClusterCount = 20

	// MaxGoalBytes caps the free-text goal on suggestion requests.
	MaxGoalBytes = 2 * 1024 // 2KB
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// dashValidate is the validator instance for dashboard datatypes.
// Initialized in init() with custom validators that delegate to
// pkg/validation, so request fields obey the same identifier rules as
// every other boundary.
var dashValidate *validator.Validate

func init() {
	dashValidate = validator.New()

	_ = dashValidate.RegisterValidation("entity", validateEntityField)
	_ = dashValidate.RegisterValidation("project", validateProjectField)
	_ = dashValidate.RegisterValidation("runid", validateRunIDField)
	_ = dashValidate.RegisterValidation("metricname", validateMetricField)
	_ = dashValidate.RegisterValidation("commitsha", validateCommitField)
	_ = dashValidate.RegisterValidation("maxgoalbytes", validateMaxGoalBytes)
}

func validateEntityField(fl validator.FieldLevel) bool {
	return validation.ValidateEntity(fl.Field().String()) == nil
}

func validateProjectField(fl validator.FieldLevel) bool {
	return validation.ValidateProject(fl.Field().String()) == nil
}

func validateRunIDField(fl validator.FieldLevel) bool {
	return validation.ValidateRunID(fl.Field().String()) == nil
}

func validateMetricField(fl validator.FieldLevel) bool {
	return validation.ValidateMetricName(fl.Field().String()) == nil
}

func validateCommitField(fl validator.FieldLevel) bool {
	return validation.ValidateCommitSHA(fl.Field().String()) == nil
}

// validateMaxGoalBytes checks byte length, not rune count, so large
// payloads cannot slip past the limit as multi-byte text.
func validateMaxGoalBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxGoalBytes
}

// =============================================================================
// Analyze Request
// =============================================================================

// AnalyzeRequest is the body of a clustering analysis request.
//
// # Description
//
// Names the project to analyze and the pipeline knobs. Everything but
// entity and project is optional; EnsureDefaults fills the rest with
// the stock pipeline settings, so the minimal request is:
//
//	{"entity": "runlens", "project": "mnist"}
//
// # Fields
//
//   - RequestID: Optional client-supplied UUID v4 for correlation;
//     generated server-side when absent.
//   - Entity / Project: Required. The tracking-server project to fetch.
//   - Limit: Max runs to fetch (default 50, cap 500).
//   - K: Requested cluster count (default 3, cap 20). The engine still
//     caps the effective k at the number of runs.
//   - Seed: Clustering seed for reproducible partitions (default 42).
//   - PrimaryMetric: Metric used to rank clusters (default "accuracy").
//   - HigherIsBetter: Ranking direction for PrimaryMetric. Pointer so
//     an explicit false survives JSON decoding (default true).
//   - Aggregation: How metric series collapse to scalars
//     ("last", "max", "min", "mean"; default "last").
//   - SelectedRunID: Optional run to call out in LLM analysis.
//   - WithInsights: Ask for LLM interpretation alongside the numeric
//     result. Ignored when no LLM backend is configured.
//
// # Validation
//
// Identifier fields run through pkg/validation via custom validators,
// which rejects path traversal and injection shapes before any
// identifier reaches the tracking client.
type AnalyzeRequest struct {
	RequestID      string `json:"request_id" validate:"omitempty,uuid4"`
	Entity         string `json:"entity" validate:"required,entity"`
	Project        string `json:"project" validate:"required,project"`
	Limit          int    `json:"limit" validate:"gte=0,lte=500"`
	K              int    `json:"k" validate:"gte=0,lte=20"`
	Seed           int64  `json:"seed" validate:"gte=0"`
	PrimaryMetric  string `json:"primary_metric" validate:"omitempty,metricname"`
	HigherIsBetter *bool  `json:"higher_is_better"`
	Aggregation    string `json:"aggregation" validate:"omitempty,oneof=last max min mean"`
	SelectedRunID  string `json:"selected_run_id" validate:"omitempty,runid"`
	WithInsights   bool   `json:"with_insights"`
}

// Validate checks the request against the field rules.
func (r *AnalyzeRequest) Validate() error {
	return dashValidate.Struct(r)
}

// EnsureDefaults populates defaults for optional fields. Call before
// Validate so defaulted values are validated too.
func (r *AnalyzeRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Limit == 0 {
		r.Limit = 50
	}
	if r.K == 0 {
		r.K = analysis.DefaultClusterConfig().K
	}
	if r.PrimaryMetric == "" {
		r.PrimaryMetric = analysis.DefaultInterpretConfig().PrimaryMetric
	}
	if r.Aggregation == "" {
		r.Aggregation = string(analysis.AggLast)
	}
}

// ListOptions converts the request to tracking-client list options.
func (r *AnalyzeRequest) ListOptions() wandb.ListOptions {
	return wandb.ListOptions{Limit: r.Limit}
}

// FeatureConfig converts the request to feature extraction settings.
func (r *AnalyzeRequest) FeatureConfig() analysis.FeatureConfig {
	cfg := analysis.DefaultFeatureConfig()
	if r.Aggregation != "" {
		cfg.Aggregation = analysis.Aggregation(r.Aggregation)
	}
	return cfg
}

// ClusterConfig converts the request to engine settings.
func (r *AnalyzeRequest) ClusterConfig() analysis.ClusterConfig {
	cfg := analysis.DefaultClusterConfig()
	if r.K > 0 {
		cfg.K = r.K
	}
	if r.Seed > 0 {
		cfg.Seed = r.Seed
	}
	return cfg
}

// InterpretConfig converts the request to interpretation settings.
func (r *AnalyzeRequest) InterpretConfig() analysis.InterpretConfig {
	cfg := analysis.DefaultInterpretConfig()
	if r.PrimaryMetric != "" {
		cfg.PrimaryMetric = r.PrimaryMetric
	}
	if r.HigherIsBetter != nil {
		cfg.HigherIsBetter = *r.HigherIsBetter
	}
	return cfg
}

// =============================================================================
// Analyze Response
// =============================================================================

// AnalyzeResponse is the result of one clustering analysis.
//
// Outcome carries the raw partition, Interpretation the ranked
// human-oriented view. Insights is present only when the request asked
// for it and an LLM backend is configured.
type AnalyzeResponse struct {
	RequestID        string                   `json:"request_id"`
	Timestamp        int64                    `json:"timestamp"`
	Entity           string                   `json:"entity"`
	Project          string                   `json:"project"`
	RunCount         int                      `json:"run_count"`
	Columns          []string                 `json:"columns"`
	Outcome          *analysis.ClusterOutcome `json:"outcome"`
	Interpretation   *analysis.Interpretation `json:"interpretation"`
	Insights         *insights.Analysis       `json:"insights,omitempty"`
	ProcessingTimeMs int64                    `json:"processing_time_ms"`
}

// NewAnalyzeResponse starts a response correlated to the request.
func NewAnalyzeResponse(requestID, entity, project string) *AnalyzeResponse {
	return &AnalyzeResponse{
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Entity:    entity,
		Project:   project,
	}
}

// =============================================================================
// Websocket Progress
// =============================================================================

// Progress stage names sent over the analysis websocket, in pipeline
// order.
const (
	StageFetch     = "fetch"
	StageFeatures  = "features"
	StageCluster   = "cluster"
	StageInterpret = "interpret"
	StageInsights  = "insights"
	StageComplete  = "complete"
	StageError     = "error"
)

// AnalysisProgress is one websocket progress frame. The final frame is
// either StageComplete with Result set or StageError with Error set.
type AnalysisProgress struct {
	Stage   string           `json:"stage"`
	Message string           `json:"message,omitempty"`
	Percent int              `json:"percent"`
	Error   string           `json:"error,omitempty"`
	Result  *AnalyzeResponse `json:"result,omitempty"`
}
