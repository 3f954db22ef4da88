// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runlens-ai/runlens/pkg/extensions"
	"github.com/runlens-ai/runlens/services/dashboard/handlers"
	"github.com/runlens-ai/runlens/services/dashboard/middleware"
	"github.com/runlens-ai/runlens/services/dashboard/observability"
	"github.com/runlens-ai/runlens/services/gitdiff"
	"github.com/runlens-ai/runlens/services/insights"
	"github.com/runlens-ai/runlens/services/wandb"
)

// SetupRoutes wires the dashboard API. Nil optional dependencies
// drop their routes: no analyzer means no insight endpoints, no
// repository means no diff or review, no Influx target means no
// export.
func SetupRoutes(router *gin.Engine, wb *wandb.Client, analyzer *insights.Analyzer,
	repo *gitdiff.Repo, influx *handlers.InfluxConfig, opts extensions.ServiceOptions) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group; everything under it is authenticated and
	// rate limited.
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.AuthProvider, opts.AuditLogger))
	v1.Use(middleware.RateLimitMiddleware(observability.EndpointAPI, 0, 0))
	{
		v1.POST("/analyze", handlers.HandleAnalyze(wb, analyzer, opts.AuditLogger))
		v1.GET("/analyze/ws", handlers.HandleAnalyzeWebSocket(wb, analyzer))

		// Run browsing routes
		runs := v1.Group("/runs")
		{
			runs.GET("", handlers.ListRuns(wb))
			runs.POST("/compare", handlers.CompareRuns(wb))
			runs.GET("/:id", handlers.GetRun(wb))
			runs.GET("/:id/history", handlers.GetRunHistory(wb))
		}

		// LLM insight routes
		if analyzer != nil {
			insight := v1.Group("/insights")
			{
				insight.POST("/suggest", handlers.HandleSuggest(wb, analyzer, opts.AuditLogger))
				insight.POST("/compare", handlers.HandleInsightCompare(wb, analyzer, repo, opts.AuditLogger))
				if repo != nil {
					insight.POST("/review", handlers.HandleReview(wb, analyzer, repo, opts.AuditLogger))
				}
			}
		}

		if repo != nil {
			v1.GET("/diff/:sha", handlers.HandleCommitDiff(repo))
		}

		if influx != nil {
			v1.POST("/export/history", handlers.HandleExportHistory(wb, influx, opts.AuditLogger))
		}
	}
}
