// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/runlens-ai/runlens/pkg/extensions"
	"github.com/runlens-ai/runlens/pkg/runs"
	"github.com/runlens-ai/runlens/services/analysis"
	"github.com/runlens-ai/runlens/services/dashboard/datatypes"
	"github.com/runlens-ai/runlens/services/dashboard/middleware"
	"github.com/runlens-ai/runlens/services/dashboard/observability"
	"github.com/runlens-ai/runlens/services/insights"
	"github.com/runlens-ai/runlens/services/wandb"
)

var analyzeTracer = otel.Tracer("runlens.dashboard.handlers")

// progressFunc receives pipeline stage updates. The websocket handler
// forwards them to the client; the synchronous handler passes nil.
type progressFunc func(stage, message string, percent int)

// HandleAnalyze runs the full clustering pipeline synchronously:
// fetch runs, build features, cluster, interpret, and optionally ask
// the LLM for insights.
//
// POST /v1/analyze
func HandleAnalyze(wb *wandb.Client, analyzer *insights.Analyzer, audit extensions.AuditLogger) gin.HandlerFunc {
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	return func(c *gin.Context) {
		ctx, span := analyzeTracer.Start(c.Request.Context(), "HandleAnalyze")
		defer span.End()
		start := time.Now()

		var req datatypes.AnalyzeRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			abortWithError(c, observability.EndpointAnalyze,
				errValidationf("invalid request body"))
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			abortWithError(c, observability.EndpointAnalyze, errValidation(err))
			return
		}

		resp, err := runAnalysis(ctx, wb, analyzer, &req, nil)
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		audit.Log(ctx, extensions.AuditEvent{
			EventType:    "analysis.cluster",
			UserID:       middleware.UserID(c),
			Action:       "analyze",
			ResourceType: "project",
			ResourceID:   req.Entity + "/" + req.Project,
			Outcome:      outcome,
			Metadata: extensions.NewMetadata().
				Set("request_id", req.RequestID).
				Set("k", req.K),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("analysis failed",
				"entity", req.Entity, "project", req.Project,
				"request_id", req.RequestID, "error", err)
			abortWithError(c, observability.EndpointAnalyze, err)
			return
		}

		resp.ProcessingTimeMs = time.Since(start).Milliseconds()
		observeStage("total", start)
		recordSuccess(observability.EndpointAnalyze)
		slog.Info("analysis complete",
			"entity", req.Entity, "project", req.Project,
			"request_id", req.RequestID, "runs", resp.RunCount,
			"k", resp.Outcome.K, "degenerate", resp.Outcome.Degenerate,
			"elapsed_ms", resp.ProcessingTimeMs)
		c.JSON(http.StatusOK, resp)
	}
}

// runAnalysis executes the clustering pipeline for one validated
// request. Shared by the synchronous and websocket handlers.
//
// Stage latencies land in the analysis_stage_seconds histogram and
// each stage reports through progress before it starts. An insight
// failure degrades the response rather than failing it: the numeric
// result is complete without the LLM.
func runAnalysis(ctx context.Context, wb *wandb.Client, analyzer *insights.Analyzer,
	req *datatypes.AnalyzeRequest, progress progressFunc) (*datatypes.AnalyzeResponse, error) {

	ctx, span := analyzeTracer.Start(ctx, "runAnalysis",
		trace.WithAttributes(
			attribute.String("entity", req.Entity),
			attribute.String("project", req.Project),
			attribute.Int("k", req.K),
		),
	)
	defer span.End()

	if progress == nil {
		progress = func(string, string, int) {}
	}
	resp := datatypes.NewAnalyzeResponse(req.RequestID, req.Entity, req.Project)

	progress(datatypes.StageFetch, "fetching runs", 5)
	stageStart := time.Now()
	rs, err := wb.ListRuns(ctx, req.Entity, req.Project, req.ListOptions())
	observeStage("fetch", stageStart)
	if err != nil {
		return nil, fmt.Errorf("fetch runs: %w", err)
	}
	if len(rs) == 0 {
		return nil, fmt.Errorf("%w: project %s/%s has no runs",
			analysis.ErrValidation, req.Entity, req.Project)
	}
	resp.RunCount = len(rs)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRunsFetched(observability.EndpointAnalyze, len(rs))
	}

	progress(datatypes.StageFeatures, "building feature matrix for "+strconv.Itoa(len(rs))+" runs", 30)
	stageStart = time.Now()
	matrix, err := analysis.BuildFeatures(rs, req.FeatureConfig())
	observeStage("features", stageStart)
	if err != nil {
		recordAnalysisStatus("error")
		return nil, fmt.Errorf("build features: %w", err)
	}
	resp.Columns = matrix.Columns

	progress(datatypes.StageCluster, "clustering", 55)
	stageStart = time.Now()
	outcome, err := analysis.Cluster(matrix, req.ClusterConfig())
	observeStage("cluster", stageStart)
	if err != nil {
		recordAnalysisStatus("error")
		return nil, fmt.Errorf("cluster: %w", err)
	}
	resp.Outcome = outcome

	progress(datatypes.StageInterpret, "interpreting clusters", 80)
	stageStart = time.Now()
	resp.Interpretation = analysis.Interpret(matrix, outcome, req.InterpretConfig())
	observeStage("interpret", stageStart)

	if req.WithInsights && analyzer != nil {
		progress(datatypes.StageInsights, "generating insights", 90)
		stageStart = time.Now()
		meta := insights.ProjectMeta{
			Entity:      req.Entity,
			Project:     req.Project,
			SelectedRun: findRun(rs, req.SelectedRunID),
		}
		ins, insErr := analyzer.AnalyzeClusters(ctx, resp.Interpretation, meta)
		observeStage("insights", stageStart)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordInsight("analyze", insErr == nil)
		}
		if insErr != nil {
			slog.Warn("insight generation failed, returning numeric result only",
				"request_id", req.RequestID, "error", insErr)
		} else {
			resp.Insights = ins
		}
	}

	switch {
	case outcome.Degenerate:
		span.AddEvent("degenerate", trace.WithAttributes(
			attribute.Int("effective_k", outcome.K),
		))
		recordAnalysisStatus("degenerate")
	default:
		recordAnalysisStatus("success")
	}
	return resp, nil
}

// recordAnalysisStatus counts one analysis outcome.
func recordAnalysisStatus(status string) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordAnalysis(status)
	}
}

// findRun returns the run with the given ID, or nil. An ID not in the
// fetched set yields nil: the selected-run callout is best effort.
func findRun(rs []runs.Run, id string) *runs.Run {
	if id == "" {
		return nil
	}
	for i := range rs {
		if rs[i].ID == id {
			return &rs[i]
		}
	}
	return nil
}
