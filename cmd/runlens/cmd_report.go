// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/runlens-ai/runlens/cmd/runlens/config"
	"github.com/runlens-ai/runlens/cmd/runlens/gcs"
	"github.com/runlens-ai/runlens/pkg/ux"
	"github.com/runlens-ai/runlens/services/dashboard/datatypes"
	"github.com/runlens-ai/runlens/services/wandb"
)

// runReport runs the full analysis and writes the result to a JSON
// file, optionally archiving it to a GCS bucket. The file uses the
// same shape as the dashboard's analyze response, so anything that
// consumes the API can consume an archived report.
func runReport(cmd *cobra.Command, args []string) {
	start := time.Now()
	ctx := context.Background()

	entity, project, err := resolveProject()
	if err != nil {
		OutputError(jsonOutput, "Cannot build a report", err)
		os.Exit(CLIExitError)
	}

	fcfg, ccfg, icfg, err := pipelineSettings()
	if err != nil {
		OutputError(jsonOutput, "Invalid settings", err)
		os.Exit(CLIExitError)
	}

	exec := buildExecutor()
	tracker := buildTracker(exec)

	spin := ux.NewSpinner(fmt.Sprintf("Analyzing %s/%s", entity, project))
	spin.Start()
	rs, err := tracker.ListRuns(ctx, entity, project, wandb.ListOptions{Limit: runLimit})
	if err != nil {
		spin.StopWithError("Fetch failed")
		OutputError(jsonOutput, "Could not list runs", err)
		os.Exit(CLIExitError)
	}

	matrix, outcome, interp, err := runClusterPipeline(rs, fcfg, ccfg, icfg)
	if err != nil {
		spin.StopWithError("Analysis failed")
		OutputError(jsonOutput, "Analysis failed", err)
		os.Exit(CLIExitError)
	}

	response := datatypes.NewAnalyzeResponse(uuid.New().String(), entity, project)
	response.RunCount = matrix.Rows()
	response.Columns = matrix.Columns
	response.Outcome = outcome
	response.Interpretation = interp
	if withInsights || config.Global.Insights.Enabled {
		spin.UpdateMessage("Generating insights")
		response.Insights = generateInsights(ctx, exec, interp, entity, project)
	}
	response.ProcessingTimeMs = time.Since(start).Milliseconds()
	spin.Stop()

	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		OutputError(jsonOutput, "Could not encode the report", err)
		os.Exit(CLIExitError)
	}
	if err := os.WriteFile(reportOutPath, data, 0644); err != nil {
		OutputError(jsonOutput, "Could not write the report", err)
		os.Exit(CLIExitError)
	}
	ux.Success(fmt.Sprintf("Report written to %s (%d runs, %d clusters)",
		reportOutPath, response.RunCount, len(interp.Clusters)))

	// Optional archive; the local file already exists, so a failed
	// upload warns instead of failing the command.
	bucket := gcsBucket
	if bucket == "" {
		bucket = config.Global.Archive.Bucket
	}
	if bucket != "" {
		archiveToGCS(ctx, bucket, reportOutPath)
	}
}

// archiveToGCS uploads the report under a dated object path.
func archiveToGCS(ctx context.Context, bucket, localPath string) {
	client, err := gcs.NewClient(ctx, config.Global.Archive.ProjectID, bucket, config.Global.Archive.SAKeyPath)
	if err != nil {
		ux.Warning(fmt.Sprintf("Archive skipped: %v", err))
		return
	}
	prefix := config.Global.Archive.Prefix
	if prefix == "" {
		prefix = "reports"
	}
	url, err := client.ArchiveReport(ctx, localPath, prefix)
	if err != nil {
		ux.Warning(fmt.Sprintf("Archive failed: %v", err))
		return
	}
	ux.Success(fmt.Sprintf("Report archived to %s", url))
}
