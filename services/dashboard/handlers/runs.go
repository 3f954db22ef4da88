// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/runlens-ai/runlens/pkg/validation"
	"github.com/runlens-ai/runlens/services/dashboard/datatypes"
	"github.com/runlens-ai/runlens/services/dashboard/observability"
	"github.com/runlens-ai/runlens/services/wandb"
)

var runsTracer = otel.Tracer("runlens.dashboard.handlers")

// projectScope pulls the entity/project query parameters and validates
// them. Writes the 400 response itself and reports ok=false when the
// request is unusable.
func projectScope(c *gin.Context, endpoint observability.Endpoint) (entity, project string, ok bool) {
	entity = c.Query("entity")
	project = c.Query("project")
	if err := validation.ValidateRunPath(entity, project); err != nil {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, false)
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return entity, project, true
}

// ListRuns returns a project's runs with summary metrics and config.
//
// GET /v1/runs?entity=<e>&project=<p>&limit=<n>
func ListRuns(wb *wandb.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := runsTracer.Start(c.Request.Context(), "ListRuns")
		defer span.End()

		entity, project, ok := projectScope(c, observability.EndpointRuns)
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if limit < 0 || limit > datatypes.MaxRunsPerRequest {
			abortWithError(c, observability.EndpointRuns,
				errValidationf("limit must be between 0 and %d", datatypes.MaxRunsPerRequest))
			return
		}

		rs, err := wb.ListRuns(ctx, entity, project, wandb.ListOptions{Limit: limit})
		if err != nil {
			span.RecordError(err)
			slog.Error("run listing failed", "entity", entity, "project", project, "error", err)
			abortWithError(c, observability.EndpointRuns, err)
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRunsFetched(observability.EndpointRuns, len(rs))
		}
		recordSuccess(observability.EndpointRuns)
		c.JSON(http.StatusOK, datatypes.RunListResponse{
			Entity:  entity,
			Project: project,
			Count:   len(rs),
			Runs:    rs,
		})
	}
}

// GetRun returns a single run.
//
// GET /v1/runs/:id?entity=<e>&project=<p>
func GetRun(wb *wandb.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := runsTracer.Start(c.Request.Context(), "GetRun")
		defer span.End()

		entity, project, ok := projectScope(c, observability.EndpointRunDetail)
		if !ok {
			return
		}
		runID, err := validation.SanitizeRunID(c.Param("id"))
		if err != nil {
			abortWithError(c, observability.EndpointRunDetail, errValidation(err))
			return
		}

		run, err := wb.GetRun(ctx, entity, project, runID)
		if err != nil {
			span.RecordError(err)
			slog.Error("run fetch failed", "run_id", runID, "error", err)
			abortWithError(c, observability.EndpointRunDetail, err)
			return
		}

		recordSuccess(observability.EndpointRunDetail)
		c.JSON(http.StatusOK, run)
	}
}

// GetRunHistory returns sampled metric series for a run.
//
// GET /v1/runs/:id/history?entity=<e>&project=<p>&metrics=a,b&samples=<n>
func GetRunHistory(wb *wandb.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := runsTracer.Start(c.Request.Context(), "GetRunHistory")
		defer span.End()

		entity, project, ok := projectScope(c, observability.EndpointRunHistory)
		if !ok {
			return
		}
		runID, err := validation.SanitizeRunID(c.Param("id"))
		if err != nil {
			abortWithError(c, observability.EndpointRunHistory, errValidation(err))
			return
		}

		metrics := splitMetrics(c.Query("metrics"))
		for _, m := range metrics {
			if err := validation.ValidateMetricName(m); err != nil {
				abortWithError(c, observability.EndpointRunHistory, errValidation(err))
				return
			}
		}
		samples, _ := strconv.Atoi(c.DefaultQuery("samples", "0"))

		series, err := wb.GetRunHistory(ctx, entity, project, runID, metrics, samples)
		if err != nil {
			span.RecordError(err)
			slog.Error("history fetch failed", "run_id", runID, "error", err)
			abortWithError(c, observability.EndpointRunHistory, err)
			return
		}

		recordSuccess(observability.EndpointRunHistory)
		c.JSON(http.StatusOK, datatypes.HistoryResponse{
			RunID:   runID,
			Metrics: series,
		})
	}
}

// CompareRuns returns a side-by-side view of 2-10 runs: the runs
// themselves, the config keys that differ, and final metric values.
//
// POST /v1/runs/compare
func CompareRuns(wb *wandb.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := runsTracer.Start(c.Request.Context(), "CompareRuns")
		defer span.End()

		var req datatypes.CompareRequest
		if err := c.BindJSON(&req); err != nil {
			abortWithError(c, observability.EndpointCompare,
				errValidationf("invalid request body"))
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, observability.EndpointCompare, errValidation(err))
			return
		}

		rs, err := wb.CompareRuns(ctx, req.Entity, req.Project, req.RunIDs)
		if err != nil {
			span.RecordError(err)
			slog.Error("run comparison failed", "run_ids", req.RunIDs, "error", err)
			abortWithError(c, observability.EndpointCompare, err)
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRunsFetched(observability.EndpointCompare, len(rs))
		}
		recordSuccess(observability.EndpointCompare)
		c.JSON(http.StatusOK, datatypes.NewCompareResponse(rs))
	}
}

// splitMetrics parses the comma-separated metrics query parameter.
func splitMetrics(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
