// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/runlens-ai/runlens/cmd/runlens/config"
	"github.com/runlens-ai/runlens/pkg/ux"
	"github.com/runlens-ai/runlens/services/wandb"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runAnalyze executes the analyze command.
//
// # Description
//
// Fetches the most recent runs for the selected W&B project, converts
// them into a standardized feature matrix, clusters the matrix with
// k-means, and interprets the partition: clusters ranked by the
// primary metric, the hyperparameters that set each cluster apart,
// and runs that sit unusually far from their centroid. With
// --insights an LLM turns the numeric result into prose.
//
// # Inputs
//
//   - cmd: Cobra command (unused)
//   - args: None
//
// # Outputs
//
// Prints a styled report to stdout, or the full numeric result as
// JSON with --json. Exits with appropriate code.
//
// # Exit Codes
//
//	0 - Clustering produced a meaningful partition
//	1 - Clustering completed but the partition is degenerate
//	2 - Error (no project selected, fetch failure, too few runs)
func runAnalyze(cmd *cobra.Command, args []string) {
	start := time.Now()
	ctx := context.Background()

	entity, project, err := resolveProject()
	if err != nil {
		OutputError(jsonOutput, "Cannot analyze", err)
		os.Exit(CLIExitError)
	}

	fcfg, ccfg, icfg, err := pipelineSettings()
	if err != nil {
		OutputError(jsonOutput, "Invalid settings", err)
		os.Exit(CLIExitError)
	}

	exec := buildExecutor()
	tracker := buildTracker(exec)

	// Fetch
	spin := ux.NewSpinner(fmt.Sprintf("Fetching up to %d runs from %s/%s", runLimit, entity, project))
	spin.Start()
	rs, err := tracker.ListRuns(ctx, entity, project, wandb.ListOptions{Limit: runLimit})
	if err != nil {
		spin.StopWithError("Fetch failed")
		OutputError(jsonOutput, "Could not list runs", err)
		os.Exit(CLIExitError)
	}

	// Cluster and interpret
	spin.UpdateMessage(fmt.Sprintf("Clustering %d runs (k=%d)", len(rs), ccfg.K))
	matrix, outcome, interp, err := runClusterPipeline(rs, fcfg, ccfg, icfg)
	if err != nil {
		spin.StopWithError("Analysis failed")
		OutputError(jsonOutput, "Analysis failed", err)
		os.Exit(CLIExitError)
	}
	spin.StopWithSuccess(fmt.Sprintf("Clustered %d runs into %d groups", len(rs), outcome.K))

	report := &AnalyzeReport{
		Entity:         entity,
		Project:        project,
		RunCount:       matrix.Rows(),
		Columns:        matrix.Columns,
		Outcome:        outcome,
		Interpretation: interp,
	}

	// Optional LLM pass; failures warn and continue
	if withInsights || config.Global.Insights.Enabled {
		insightSpin := ux.NewSpinner("Generating insights")
		insightSpin.Start()
		report.Insights = generateInsights(ctx, exec, interp, entity, project)
		if report.Insights != nil {
			insightSpin.StopWithSuccess("Insights ready")
		} else {
			insightSpin.StopWithWarning("Continuing without insights")
		}
	}

	// Output results
	if jsonOutput {
		os.Exit(outputAnalyzeJSON(start, report))
	}
	renderClusterReport(report)
	ux.Tip("Add --json for the full numeric result, or --insights for an LLM summary")

	if interp.Degenerate {
		os.Exit(CLIExitFindings)
	}
	os.Exit(CLIExitSuccess)
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

// outputAnalyzeJSON emits the command envelope and maps a degenerate
// partition onto the findings exit code.
func outputAnalyzeJSON(start time.Time, report *AnalyzeReport) int {
	if code := OutputResult("analyze", start, report); code != CLIExitSuccess {
		return code
	}
	if report.Interpretation.Degenerate {
		return CLIExitFindings
	}
	return CLIExitSuccess
}
