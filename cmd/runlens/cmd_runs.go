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

	"github.com/runlens-ai/runlens/pkg/ux"
	"github.com/runlens-ai/runlens/services/dashboard/datatypes"
	"github.com/runlens-ai/runlens/services/wandb"
)

// runRunsList lists the most recent runs of the selected project.
func runRunsList(cmd *cobra.Command, args []string) {
	start := time.Now()
	ctx := context.Background()

	entity, project, err := resolveProject()
	if err != nil {
		OutputError(jsonOutput, "Cannot list runs", err)
		os.Exit(CLIExitError)
	}

	tracker := buildTracker(buildExecutor())
	rs, err := tracker.ListRuns(ctx, entity, project, wandb.ListOptions{Limit: runLimit})
	if err != nil {
		OutputError(jsonOutput, "Could not list runs", err)
		os.Exit(CLIExitError)
	}

	if jsonOutput {
		os.Exit(OutputResult("runs list", start, RunListResult{
			Entity:  entity,
			Project: project,
			Runs:    rs,
			Count:   len(rs),
		}))
	}

	ux.Title(fmt.Sprintf("%s/%s", entity, project))
	headers := []string{"ID", "NAME", "STATE", "CREATED", "RUNTIME"}
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		created := "-"
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{r.ID, r.Name, string(r.State), created, formatRuntime(r.RuntimeSeconds)})
	}
	fmt.Println(ux.RenderTable(headers, rows))
	ux.Info(fmt.Sprintf("%d runs", len(rs)))
}

// runRunsCompare shows config and final metrics side by side for the
// named runs. Only differing config keys appear; identical metrics
// stay visible since equal outcomes are part of the answer.
func runRunsCompare(cmd *cobra.Command, args []string) {
	start := time.Now()
	ctx := context.Background()

	entity, project, err := resolveProject()
	if err != nil {
		OutputError(jsonOutput, "Cannot compare runs", err)
		os.Exit(CLIExitError)
	}

	tracker := buildTracker(buildExecutor())
	rs, err := tracker.CompareRuns(ctx, entity, project, args)
	if err != nil {
		OutputError(jsonOutput, "Could not fetch the runs", err)
		os.Exit(CLIExitError)
	}
	comparison := datatypes.NewCompareResponse(rs)

	if jsonOutput {
		os.Exit(OutputResult("runs compare", start, comparison))
	}

	ux.Title(fmt.Sprintf("Comparing %d runs in %s/%s", len(rs), entity, project))

	headers := append([]string{"METRIC"}, runColumnHeaders(comparison)...)
	rows := make([][]string, 0, len(comparison.MetricDiff))
	for _, delta := range comparison.MetricDiff {
		row := []string{delta.Name}
		for _, v := range delta.Values {
			if v == nil {
				row = append(row, "-")
			} else {
				row = append(row, formatMetric(*v))
			}
		}
		rows = append(rows, row)
	}
	fmt.Println(ux.Rule("Final metrics"))
	fmt.Println(ux.RenderTable(headers, rows))

	if len(comparison.ConfigDiff) == 0 {
		ux.Info("The runs share an identical config")
	} else {
		cHeaders := append([]string{"CONFIG"}, runColumnHeaders(comparison)...)
		cRows := make([][]string, 0, len(comparison.ConfigDiff))
		for _, delta := range comparison.ConfigDiff {
			cRows = append(cRows, append([]string{delta.Key}, delta.Values...))
		}
		fmt.Println(ux.Rule("Config differences"))
		fmt.Println(ux.RenderTable(cHeaders, cRows))
	}
}

// runColumnHeaders returns one column header per compared run,
// preferring the display name over the opaque run ID.
func runColumnHeaders(c *datatypes.CompareResponse) []string {
	headers := make([]string, 0, len(c.Runs))
	for _, r := range c.Runs {
		name := r.Name
		if name == "" {
			name = r.ID
		}
		headers = append(headers, name)
	}
	return headers
}
