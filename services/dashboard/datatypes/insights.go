// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Request and response types for the LLM insight endpoints. These
// routes are registered only when an LLM backend is configured.
package datatypes

import (
	"github.com/runlens-ai/runlens/services/gitdiff"
	"github.com/runlens-ai/runlens/services/insights"
)

// SuggestRequest asks for follow-up experiment suggestions derived
// from the project's clustering. Goal steers the suggestions; empty
// defaults to "improve performance".
type SuggestRequest struct {
	Entity         string `json:"entity" validate:"required,entity"`
	Project        string `json:"project" validate:"required,project"`
	Limit          int    `json:"limit" validate:"gte=0,lte=500"`
	K              int    `json:"k" validate:"gte=0,lte=20"`
	PrimaryMetric  string `json:"primary_metric" validate:"omitempty,metricname"`
	HigherIsBetter *bool  `json:"higher_is_better"`
	Goal           string `json:"goal" validate:"omitempty,maxgoalbytes"`
}

// Validate checks the request against the field rules.
func (r *SuggestRequest) Validate() error {
	return dashValidate.Struct(r)
}

// AnalyzeRequest converts the suggestion request into the pipeline
// request its clustering pass runs with.
func (r *SuggestRequest) AnalyzeRequest() *AnalyzeRequest {
	req := &AnalyzeRequest{
		Entity:         r.Entity,
		Project:        r.Project,
		Limit:          r.Limit,
		K:              r.K,
		PrimaryMetric:  r.PrimaryMetric,
		HigherIsBetter: r.HigherIsBetter,
	}
	req.EnsureDefaults()
	return req
}

// SuggestResponse lists concrete next experiments.
type SuggestResponse struct {
	Goal        string   `json:"goal"`
	Suggestions []string `json:"suggestions"`
}

// InsightCompareRequest asks the model to explain the difference
// between two runs. When WithCodeDiff is set and both runs carry
// commits, the diff between those commits is included in the prompt
// (requires a configured local repository).
type InsightCompareRequest struct {
	Entity       string `json:"entity" validate:"required,entity"`
	Project      string `json:"project" validate:"required,project"`
	Run1ID       string `json:"run1_id" validate:"required,runid"`
	Run2ID       string `json:"run2_id" validate:"required,runid"`
	WithCodeDiff bool   `json:"with_code_diff"`
}

// Validate checks the request against the field rules.
func (r *InsightCompareRequest) Validate() error {
	return dashValidate.Struct(r)
}

// InsightCompareResponse pairs the model's comparison with the diff
// stats it saw, when code context was requested and available.
type InsightCompareResponse struct {
	Comparison *insights.RunComparison `json:"comparison"`
	Diff       *gitdiff.Diff           `json:"diff,omitempty"`
}

// ReviewRequest asks the model to relate one commit's changes to the
// metric movement between a run before it and a run after it.
type ReviewRequest struct {
	Entity      string `json:"entity" validate:"required,entity"`
	Project     string `json:"project" validate:"required,project"`
	CommitSHA   string `json:"commit_sha" validate:"required,commitsha"`
	BeforeRunID string `json:"before_run_id" validate:"required,runid"`
	AfterRunID  string `json:"after_run_id" validate:"required,runid"`
}

// Validate checks the request against the field rules.
func (r *ReviewRequest) Validate() error {
	return dashValidate.Struct(r)
}

// ReviewResponse pairs the model's causation read with the commit
// whose diff it reviewed.
type ReviewResponse struct {
	Commit *gitdiff.CommitDiff  `json:"commit"`
	Impact *insights.CodeImpact `json:"impact"`
}
