// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"

	"github.com/runlens-ai/runlens/cmd/runlens/config"
	"github.com/runlens-ai/runlens/pkg/ux"
	"github.com/spf13/cobra"
)

// Version is stamped by the release build via -ldflags.
var Version = "dev"

// --- Global Command Variables ---
var (
	entityFlag       string
	projectFlag      string
	runLimit         int
	clusterCount     int
	primaryMetric    string
	metricDirection  string // "max" or "min"
	clusterSeed      int64
	aggregationMode  string
	withInsights     bool
	jsonOutput       bool
	demoRuns         int
	demoClusters     int
	demoSeed         int64
	diffRepoPath     string
	reportOutPath    string
	gcsBucket        string
	initInteractive  bool
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "runlens",
		Short: "A cli to cluster and explain ML training runs",
		Long: `Runlens fetches training runs from your tracking server, groups
				them by hyperparameters and outcomes, and explains what separates
				your best runs from the rest.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
			if err := config.Load(); err != nil {
				log.Fatalf("Error loading the runlens config: %v", err)
			}
		},
	}

	// --- Analysis ---
	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Fetch runs from the tracking server, cluster them, and explain the groups",
		Run:   runAnalyze, // Defined in cmd_analyze.go
	}

	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Cluster synthetic runs to preview the analysis pipeline offline",
		Run:   runDemo, // Defined in cmd_demo.go
	}

	// --- Run Browsing ---
	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Browse runs on the tracking server",
	}
	runsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List recent runs for a project",
		Run:   runRunsList, // Defined in cmd_runs.go
	}
	runsCompareCmd = &cobra.Command{
		Use:   "compare [run_id...]",
		Short: "Compare config and final metrics across runs",
		Args:  cobra.MinimumNArgs(2),
		Run:   runRunsCompare, // Defined in cmd_runs.go
	}

	// --- Code Diff ---
	diffCmd = &cobra.Command{
		Use:   "diff [sha]",
		Short: "Summarize the code change behind a commit",
		Args:  cobra.ExactArgs(1),
		Run:   runDiff, // Defined in cmd_diff.go
	}

	// --- Report / Archive ---
	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Write the full analysis report as JSON, optionally archiving to GCS",
		Run:   runReport, // Defined in cmd_report.go
	}

	// --- Config ---
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the default config file and show the active settings",
		Run:   runInitConfig, // Defined in cmd_init.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the runlens version",
		Run:   runVersion, // Defined in cmd_init.go
	}
)

// init runs when the Go program starts
func init() {
	// Global UX personality flag
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&entityFlag, "entity", "", "Tracking entity (team or user); falls back to the config file")
	analyzeCmd.Flags().StringVar(&projectFlag, "project", "", "Tracking project; falls back to the config file")
	analyzeCmd.Flags().IntVarP(&clusterCount, "clusters", "k", 0, "Number of clusters (default from config, usually 3)")
	analyzeCmd.Flags().StringVar(&primaryMetric, "metric", "", "Metric used to rank clusters (e.g. accuracy, loss)")
	analyzeCmd.Flags().StringVar(&metricDirection, "direction", "", "Whether higher or lower metric values win: 'max' or 'min'")
	analyzeCmd.Flags().Int64Var(&clusterSeed, "seed", 0, "Clustering seed for reproducible partitions (default from config)")
	analyzeCmd.Flags().IntVar(&runLimit, "limit", 50, "Maximum runs to fetch")
	analyzeCmd.Flags().StringVar(&aggregationMode, "aggregation", "", "Metric series aggregation: last, max, min, or mean")
	analyzeCmd.Flags().BoolVar(&withInsights, "insights", false, "Ask the configured LLM to explain the clusters")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON for scripting")

	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().IntVarP(&demoRuns, "runs", "n", 20, "Number of synthetic runs to generate")
	demoCmd.Flags().IntVarP(&demoClusters, "clusters", "k", 3, "Number of clusters")
	demoCmd.Flags().Int64Var(&demoSeed, "seed", 42, "Generator and clustering seed")
	demoCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON for scripting")

	// run browsing commands
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsListCmd.Flags().StringVar(&entityFlag, "entity", "", "Tracking entity; falls back to the config file")
	runsListCmd.Flags().StringVar(&projectFlag, "project", "", "Tracking project; falls back to the config file")
	runsListCmd.Flags().IntVar(&runLimit, "limit", 50, "Maximum runs to list")
	runsListCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON for scripting")
	runsCmd.AddCommand(runsCompareCmd)
	runsCompareCmd.Flags().StringVar(&entityFlag, "entity", "", "Tracking entity; falls back to the config file")
	runsCompareCmd.Flags().StringVar(&projectFlag, "project", "", "Tracking project; falls back to the config file")
	runsCompareCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON for scripting")

	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVar(&diffRepoPath, "repo", ".", "Path to the git repository")
	diffCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON for scripting")

	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&entityFlag, "entity", "", "Tracking entity; falls back to the config file")
	reportCmd.Flags().StringVar(&projectFlag, "project", "", "Tracking project; falls back to the config file")
	reportCmd.Flags().IntVarP(&clusterCount, "clusters", "k", 0, "Number of clusters (default from config)")
	reportCmd.Flags().Int64Var(&clusterSeed, "seed", 0, "Clustering seed (default from config)")
	reportCmd.Flags().IntVar(&runLimit, "limit", 50, "Maximum runs to fetch")
	reportCmd.Flags().BoolVar(&withInsights, "insights", false, "Include LLM-generated insights in the report")
	reportCmd.Flags().StringVarP(&reportOutPath, "out", "o", "report.json", "Output filename")
	reportCmd.Flags().StringVar(&gcsBucket, "gcs-bucket", "", "Archive the report to this GCS bucket (default from config)")

	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Walk through the common settings and save them")
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON for scripting")
}
