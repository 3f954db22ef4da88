// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/runlens-ai/runlens/pkg/runs"
	"github.com/runlens-ai/runlens/pkg/ux"
	"github.com/runlens-ai/runlens/services/analysis"
)

// runDemo clusters a synthetic project so the pipeline can be tried
// without a tracking server or an API key. The generator plants three
// performance tiers, so with the defaults the report should show
// clearly separated groups.
func runDemo(cmd *cobra.Command, args []string) {
	start := time.Now()

	rs := runs.GenerateDemo(demoRuns, demoSeed)

	ccfg := analysis.DefaultClusterConfig()
	ccfg.K = demoClusters
	ccfg.Seed = demoSeed

	matrix, outcome, interp, err := runClusterPipeline(rs, analysis.DefaultFeatureConfig(), ccfg, analysis.DefaultInterpretConfig())
	if err != nil {
		OutputError(jsonOutput, "Demo failed", err)
		os.Exit(CLIExitError)
	}

	report := &AnalyzeReport{
		RunCount:       matrix.Rows(),
		Columns:        matrix.Columns,
		Outcome:        outcome,
		Interpretation: interp,
	}

	if jsonOutput {
		os.Exit(OutputResult("demo", start, report))
	}

	ux.Info(fmt.Sprintf("Generated %d synthetic runs (seed %d)", len(rs), demoSeed))
	renderClusterReport(report)
	ux.Tip("Point analyze at a real project with --entity and --project")
}
