// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.opentelemetry.io/otel"

	"github.com/runlens-ai/runlens/pkg/extensions"
	"github.com/runlens-ai/runlens/services/dashboard/datatypes"
	"github.com/runlens-ai/runlens/services/dashboard/middleware"
	"github.com/runlens-ai/runlens/services/dashboard/observability"
	"github.com/runlens-ai/runlens/services/wandb"
)

var exportTracer = otel.Tracer("runlens.dashboard.handlers")

// historyMeasurement is the measurement exported run histories land in.
const historyMeasurement = "run_history"

// InfluxConfig carries the InfluxDB target for history exports. A nil
// config disables the export route.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// WriteAPI overrides the per-request client when set. Tests
	// inject a mock here.
	WriteAPI api.WriteAPIBlocking
}

// InfluxConfigFromEnv builds the export target from INFLUXDB_*
// variables. Returns nil when INFLUXDB_URL is unset.
func InfluxConfigFromEnv() *InfluxConfig {
	url := os.Getenv("INFLUXDB_URL")
	if url == "" {
		return nil
	}
	cfg := &InfluxConfig{
		URL:    url,
		Token:  os.Getenv("INFLUXDB_TOKEN"),
		Org:    os.Getenv("INFLUXDB_ORG"),
		Bucket: os.Getenv("INFLUXDB_BUCKET"),
	}
	if cfg.Org == "" {
		cfg.Org = "runlens"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "runlens-metrics"
	}
	return cfg
}

// writer returns the blocking write API and a release function. The
// per-request client keeps the dashboard connectionless between
// exports; injected WriteAPIs skip client setup entirely.
func (cfg *InfluxConfig) writer() (api.WriteAPIBlocking, func()) {
	if cfg.WriteAPI != nil {
		return cfg.WriteAPI, func() {}
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return client.WriteAPIBlocking(cfg.Org, cfg.Bucket), client.Close
}

// HandleExportHistory writes one run's metric histories to InfluxDB,
// one point per history step tagged with entity, project, and run and
// one field per metric.
//
// POST /v1/export/history
func HandleExportHistory(wb *wandb.Client, influx *InfluxConfig, audit extensions.AuditLogger) gin.HandlerFunc {
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	return func(c *gin.Context) {
		ctx, span := exportTracer.Start(c.Request.Context(), "HandleExportHistory")
		defer span.End()

		var req datatypes.ExportHistoryRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			abortWithError(c, observability.EndpointExport,
				errValidationf("invalid request body"))
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, observability.EndpointExport, errValidation(err))
			return
		}

		run, err := wb.GetRun(ctx, req.Entity, req.Project, req.RunID)
		if err != nil {
			span.RecordError(err)
			slog.Error("run fetch for export failed", "run_id", req.RunID, "error", err)
			abortWithError(c, observability.EndpointExport, err)
			return
		}
		history, err := wb.GetRunHistory(ctx, req.Entity, req.Project,
			req.RunID, req.Metrics, req.Samples)
		if err != nil {
			span.RecordError(err)
			slog.Error("history fetch for export failed", "run_id", req.RunID, "error", err)
			abortWithError(c, observability.EndpointExport, err)
			return
		}

		points := historyPoints(req, run.CreatedAt, history)
		if len(points) > 0 {
			writeAPI, release := influx.writer()
			defer release()
			if err := writeAPI.WritePoint(ctx, points...); err != nil {
				span.RecordError(err)
				slog.Error("InfluxDB write failed",
					"run_id", req.RunID, "points", len(points), "error", err)
				abortWithError(c, observability.EndpointExport,
					fmt.Errorf("influxdb write: %w", err))
				return
			}
		}

		audit.Log(ctx, extensions.AuditEvent{
			EventType:    "export.report",
			UserID:       middleware.UserID(c),
			Action:       "export_history",
			ResourceType: "run",
			ResourceID:   req.RunID,
			Outcome:      "success",
			Metadata: extensions.NewMetadata().
				Set("points", len(points)).
				Set("bucket", influx.Bucket),
		})
		recordSuccess(observability.EndpointExport)
		slog.Info("run history exported",
			"run_id", req.RunID, "points", len(points), "bucket", influx.Bucket)
		c.JSON(http.StatusOK, datatypes.ExportHistoryResponse{
			RunID:         req.RunID,
			Measurement:   historyMeasurement,
			Bucket:        influx.Bucket,
			PointsWritten: len(points),
		})
	}
}

// historyPoints converts metric histories into line-protocol points.
// History samples carry no timestamps of their own, so steps are laid
// out one second apart from the run's start time. Metrics shorter than
// the longest history simply stop contributing fields.
func historyPoints(req datatypes.ExportHistoryRequest, createdAt time.Time,
	history map[string][]float64) []*write.Point {

	base := createdAt
	if base.IsZero() {
		base = time.Now()
	}
	steps := 0
	for _, series := range history {
		if len(series) > steps {
			steps = len(series)
		}
	}

	tags := map[string]string{
		"entity":  req.Entity,
		"project": req.Project,
		"run_id":  req.RunID,
	}
	points := make([]*write.Point, 0, steps)
	for i := 0; i < steps; i++ {
		fields := make(map[string]interface{})
		for name, series := range history {
			if i < len(series) {
				fields[name] = series[i]
			}
		}
		points = append(points, influxdb2.NewPoint(
			historyMeasurement,
			tags,
			fields,
			base.Add(time.Duration(i)*time.Second),
		))
	}
	return points
}
