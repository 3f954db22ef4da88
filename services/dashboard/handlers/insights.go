// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/runlens-ai/runlens/pkg/extensions"
	"github.com/runlens-ai/runlens/pkg/runs"
	"github.com/runlens-ai/runlens/services/dashboard/datatypes"
	"github.com/runlens-ai/runlens/services/dashboard/middleware"
	"github.com/runlens-ai/runlens/services/dashboard/observability"
	"github.com/runlens-ai/runlens/services/gitdiff"
	"github.com/runlens-ai/runlens/services/insights"
	"github.com/runlens-ai/runlens/services/wandb"
)

var insightsTracer = otel.Tracer("runlens.dashboard.handlers")

// HandleSuggest clusters the project and asks the model for concrete
// follow-up experiments. The clustering pass reuses the analysis
// pipeline without its own insight stage.
//
// POST /v1/insights/suggest
func HandleSuggest(wb *wandb.Client, analyzer *insights.Analyzer, audit extensions.AuditLogger) gin.HandlerFunc {
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	return func(c *gin.Context) {
		ctx, span := insightsTracer.Start(c.Request.Context(), "HandleSuggest")
		defer span.End()

		var req datatypes.SuggestRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			abortWithError(c, observability.EndpointInsights,
				errValidationf("invalid request body"))
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, observability.EndpointInsights, errValidation(err))
			return
		}

		resp, err := runAnalysis(ctx, wb, nil, req.AnalyzeRequest(), nil)
		if err != nil {
			span.RecordError(err)
			slog.Error("suggestion clustering failed",
				"entity", req.Entity, "project", req.Project, "error", err)
			abortWithError(c, observability.EndpointInsights, err)
			return
		}

		suggestions, err := analyzer.SuggestExperiments(ctx, resp.Interpretation, req.Goal)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordInsight("suggest", err == nil)
		}
		auditInsight(ctx, audit, c, "insight.generate", "suggest",
			req.Entity+"/"+req.Project, err)
		if err != nil {
			span.RecordError(err)
			slog.Error("experiment suggestion failed",
				"entity", req.Entity, "project", req.Project, "error", err)
			abortWithError(c, observability.EndpointInsights, err)
			return
		}

		goal := req.Goal
		if goal == "" {
			goal = "improve performance"
		}
		recordSuccess(observability.EndpointInsights)
		c.JSON(http.StatusOK, datatypes.SuggestResponse{
			Goal:        goal,
			Suggestions: suggestions,
		})
	}
}

// HandleInsightCompare asks the model to explain the performance gap
// between two runs. With WithCodeDiff set and a local repository
// configured, the diff between the runs' commits goes into the prompt
// and its file stats come back in the response.
//
// POST /v1/insights/compare
func HandleInsightCompare(wb *wandb.Client, analyzer *insights.Analyzer,
	repo *gitdiff.Repo, audit extensions.AuditLogger) gin.HandlerFunc {

	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	return func(c *gin.Context) {
		ctx, span := insightsTracer.Start(c.Request.Context(), "HandleInsightCompare")
		defer span.End()

		var req datatypes.InsightCompareRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			abortWithError(c, observability.EndpointInsights,
				errValidationf("invalid request body"))
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, observability.EndpointInsights, errValidation(err))
			return
		}

		rs, err := wb.CompareRuns(ctx, req.Entity, req.Project,
			[]string{req.Run1ID, req.Run2ID})
		if err != nil {
			span.RecordError(err)
			slog.Error("run fetch for comparison failed",
				"run1", req.Run1ID, "run2", req.Run2ID, "error", err)
			abortWithError(c, observability.EndpointInsights, err)
			return
		}

		var diff *gitdiff.Diff
		codeDiff := ""
		if req.WithCodeDiff && repo != nil && rs[0].Commit != "" && rs[1].Commit != "" {
			diff, err = repo.DiffBetween(ctx, rs[0].Commit, rs[1].Commit)
			if err != nil {
				// Code context is optional; the metric comparison
				// stands on its own.
				slog.Warn("code diff unavailable for comparison",
					"base", rs[0].Commit, "head", rs[1].Commit, "error", err)
				diff = nil
			} else {
				codeDiff = diff.Raw
				diff.Raw = ""
			}
		}

		comparison, err := analyzer.CompareRuns(ctx, rs[0], rs[1], codeDiff)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordInsight("compare", err == nil)
		}
		auditInsight(ctx, audit, c, "insight.generate", "compare",
			req.Run1ID+","+req.Run2ID, err)
		if err != nil {
			span.RecordError(err)
			slog.Error("run comparison failed",
				"run1", req.Run1ID, "run2", req.Run2ID, "error", err)
			abortWithError(c, observability.EndpointInsights, err)
			return
		}

		recordSuccess(observability.EndpointInsights)
		c.JSON(http.StatusOK, datatypes.InsightCompareResponse{
			Comparison: comparison,
			Diff:       diff,
		})
	}
}

// HandleReview relates one commit's code changes to the metric
// movement between a run before it and a run after it.
//
// POST /v1/insights/review
func HandleReview(wb *wandb.Client, analyzer *insights.Analyzer,
	repo *gitdiff.Repo, audit extensions.AuditLogger) gin.HandlerFunc {

	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	return func(c *gin.Context) {
		ctx, span := insightsTracer.Start(c.Request.Context(), "HandleReview")
		defer span.End()

		var req datatypes.ReviewRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			abortWithError(c, observability.EndpointInsights,
				errValidationf("invalid request body"))
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, observability.EndpointInsights, errValidation(err))
			return
		}

		commit, err := repo.CommitDiff(ctx, req.CommitSHA)
		if err != nil {
			span.RecordError(err)
			slog.Error("commit diff failed", "sha", req.CommitSHA, "error", err)
			abortWithError(c, observability.EndpointInsights, err)
			return
		}

		rs, err := wb.CompareRuns(ctx, req.Entity, req.Project,
			[]string{req.BeforeRunID, req.AfterRunID})
		if err != nil {
			span.RecordError(err)
			slog.Error("run fetch for review failed",
				"before", req.BeforeRunID, "after", req.AfterRunID, "error", err)
			abortWithError(c, observability.EndpointInsights, err)
			return
		}

		impact, err := analyzer.ReviewCodeChanges(ctx, commit.Raw,
			lastMetrics(rs[0]), lastMetrics(rs[1]))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordInsight("review", err == nil)
		}
		auditInsight(ctx, audit, c, "insight.review", "review", req.CommitSHA, err)
		if err != nil {
			span.RecordError(err)
			slog.Error("code review failed", "sha", req.CommitSHA, "error", err)
			abortWithError(c, observability.EndpointInsights, err)
			return
		}

		commit.Raw = ""
		recordSuccess(observability.EndpointInsights)
		c.JSON(http.StatusOK, datatypes.ReviewResponse{
			Commit: commit,
			Impact: impact,
		})
	}
}

// lastMetrics flattens a run's metric histories to their final values.
func lastMetrics(r runs.Run) map[string]float64 {
	out := make(map[string]float64, len(r.Metrics))
	for _, name := range r.MetricNames() {
		if v, ok := r.LastMetric(name); ok {
			out[name] = v
		}
	}
	return out
}

// auditInsight records one LLM insight call in the audit trail.
func auditInsight(ctx context.Context, audit extensions.AuditLogger,
	c *gin.Context, eventType, kind, resource string, err error) {

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	audit.Log(ctx, extensions.AuditEvent{
		EventType:    eventType,
		UserID:       middleware.UserID(c),
		Action:       kind,
		ResourceType: "insight",
		ResourceID:   resource,
		Outcome:      outcome,
	})
}
