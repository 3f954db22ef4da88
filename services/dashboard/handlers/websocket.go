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

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/runlens-ai/runlens/services/dashboard/datatypes"
	"github.com/runlens-ai/runlens/services/dashboard/observability"
	"github.com/runlens-ai/runlens/services/insights"
	"github.com/runlens-ai/runlens/services/wandb"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// 1MB buffers; analysis frames are small but insight payloads can
	// run to a few hundred KB on large projects.
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleAnalyzeWebSocket streams the clustering pipeline over a
// websocket. Each JSON message from the client is one analysis
// request; the server answers with a sequence of progress frames and
// a final frame carrying the full result (or an error frame).
//
// GET /v1/analyze/ws
func HandleAnalyzeWebSocket(wb *wandb.Client, analyzer *insights.Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("Analysis websocket client connected")

		if m := observability.DefaultMetrics; m != nil {
			m.StreamStarted(observability.EndpointAnalyzeWS)
			defer m.StreamEnded(observability.EndpointAnalyzeWS)
		}

		for {
			var req datatypes.AnalyzeRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Analysis websocket client disconnected", "error", err.Error())
				break
			}
			ctx := c.Request.Context()

			req.EnsureDefaults()
			if err := req.Validate(); err != nil {
				recordStreamFailure(errValidation(err))
				if sendJSON(ws, datatypes.AnalysisProgress{
					Stage: datatypes.StageError,
					Error: err.Error(),
				}) != nil {
					return
				}
				continue
			}

			progress := func(stage, message string, percent int) {
				// A lost progress frame is not fatal; the final frame
				// decides the outcome.
				_ = sendJSON(ws, datatypes.AnalysisProgress{
					Stage:   stage,
					Message: message,
					Percent: percent,
				})
			}

			resp, err := runAnalysis(ctx, wb, analyzer, &req, progress)
			if err != nil {
				recordStreamFailure(err)
				slog.Error("streamed analysis failed",
					"entity", req.Entity, "project", req.Project,
					"request_id", req.RequestID, "error", err)
				if sendJSON(ws, datatypes.AnalysisProgress{
					Stage: datatypes.StageError,
					Error: err.Error(),
				}) != nil {
					return
				}
				continue
			}

			recordSuccess(observability.EndpointAnalyzeWS)
			if sendJSON(ws, datatypes.AnalysisProgress{
				Stage:   datatypes.StageComplete,
				Message: "analysis complete",
				Percent: 100,
				Result:  resp,
			}) != nil {
				return
			}
		}
	}
}

// recordStreamFailure counts one failed websocket analysis using the
// same error classification as the HTTP handlers.
func recordStreamFailure(err error) {
	if m := observability.DefaultMetrics; m != nil {
		_, code := statusFromError(err)
		m.RecordRequest(observability.EndpointAnalyzeWS, false)
		m.RecordError(observability.EndpointAnalyzeWS, code)
	}
}
