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
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/runlens-ai/runlens/cmd/runlens/config"
	"github.com/runlens-ai/runlens/pkg/ratelimit"
	"github.com/runlens-ai/runlens/pkg/resilience"
	"github.com/runlens-ai/runlens/pkg/runs"
	"github.com/runlens-ai/runlens/pkg/ux"
	"github.com/runlens-ai/runlens/services/analysis"
	"github.com/runlens-ai/runlens/services/insights"
	"github.com/runlens-ai/runlens/services/llm"
	"github.com/runlens-ai/runlens/services/wandb"
)

// resolveProject returns the tracking entity and project, preferring
// the command flags over the config file.
func resolveProject() (string, string, error) {
	entity := entityFlag
	if entity == "" {
		entity = config.Global.Tracking.Entity
	}
	project := projectFlag
	if project == "" {
		project = config.Global.Tracking.Project
	}
	if entity == "" || project == "" {
		return "", "", fmt.Errorf("no tracking project selected: pass --entity and --project, " +
			"or set tracking.entity and tracking.project in the config file")
	}
	return entity, project, nil
}

// buildExecutor assembles the shared retry executor for outbound
// calls. Per-service rates come from the config file; services
// without an entry use the fallback rate.
func buildExecutor() *resilience.Executor {
	limits := map[string]ratelimit.Limit{}
	if config.Global.Limits.WandbPerMinute > 0 {
		limits[ratelimit.ServiceWandb] = ratelimit.PerMinute(config.Global.Limits.WandbPerMinute)
	}
	if config.Global.Limits.AnthropicPerMinute > 0 {
		limits[ratelimit.ServiceAnthropic] = ratelimit.PerMinute(config.Global.Limits.AnthropicPerMinute)
	}
	fallback := config.Global.Limits.FallbackPerMinute
	if fallback <= 0 {
		fallback = 100
	}
	registry := ratelimit.NewRegistry(ratelimit.PerMinute(fallback), limits)

	retry := resilience.DefaultConfig()
	if config.Global.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = config.Global.Retry.MaxAttempts
	}
	if config.Global.Retry.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(config.Global.Retry.InitialBackoffMs) * time.Millisecond
	}
	if config.Global.Retry.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(config.Global.Retry.MaxBackoffMs) * time.Millisecond
	}
	if config.Global.Retry.BackoffFactor > 0 {
		retry.BackoffFactor = config.Global.Retry.BackoffFactor
	}
	return resilience.NewExecutor(registry, retry)
}

// buildTracker builds the W&B client with the retry executor wired
// in. The API key comes from whichever env var the config names.
func buildTracker(exec *resilience.Executor) *wandb.Client {
	apiKey := ""
	if envVar := config.Global.Tracking.APIKeyEnv; envVar != "" {
		apiKey = os.Getenv(envVar)
	}
	return wandb.NewClient(wandb.Config{
		BaseURL:  config.Global.Tracking.BaseURL,
		APIKey:   apiKey,
		Executor: exec,
	})
}

// pipelineSettings merges the command flags over the config file
// defaults for the feature, cluster, and interpret stages. A zero
// flag value means "not set on the command line".
func pipelineSettings() (analysis.FeatureConfig, analysis.ClusterConfig, analysis.InterpretConfig, error) {
	fcfg := analysis.DefaultFeatureConfig()
	if aggregationMode != "" {
		fcfg.Aggregation = analysis.Aggregation(aggregationMode)
		if !fcfg.Aggregation.Valid() {
			return fcfg, analysis.ClusterConfig{}, analysis.InterpretConfig{},
				fmt.Errorf("invalid aggregation %q (want last, max, min, or mean)", aggregationMode)
		}
	}

	ccfg := analysis.DefaultClusterConfig()
	if config.Global.Cluster.K > 0 {
		ccfg.K = config.Global.Cluster.K
	}
	if config.Global.Cluster.Seed != 0 {
		ccfg.Seed = config.Global.Cluster.Seed
	}
	if config.Global.Cluster.Restarts > 0 {
		ccfg.Restarts = config.Global.Cluster.Restarts
	}
	if config.Global.Cluster.MaxIterations > 0 {
		ccfg.MaxIterations = config.Global.Cluster.MaxIterations
	}
	if clusterCount > 0 {
		ccfg.K = clusterCount
	}
	if clusterSeed != 0 {
		ccfg.Seed = clusterSeed
	}

	icfg := analysis.DefaultInterpretConfig()
	if config.Global.Cluster.PrimaryMetric != "" {
		icfg.PrimaryMetric = config.Global.Cluster.PrimaryMetric
	}
	if primaryMetric != "" {
		icfg.PrimaryMetric = primaryMetric
	}
	direction := config.Global.Cluster.Direction
	if metricDirection != "" {
		direction = metricDirection
	}
	icfg.HigherIsBetter = !strings.EqualFold(direction, "min")

	return fcfg, ccfg, icfg, nil
}

// runClusterPipeline drives features, clustering, and interpretation
// over one set of runs.
func runClusterPipeline(rs []runs.Run, fcfg analysis.FeatureConfig, ccfg analysis.ClusterConfig, icfg analysis.InterpretConfig) (*analysis.FeatureMatrix, *analysis.ClusterOutcome, *analysis.Interpretation, error) {
	matrix, err := analysis.BuildFeatures(rs, fcfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("feature extraction failed: %w", err)
	}
	outcome, err := analysis.Cluster(matrix, ccfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("clustering failed: %w", err)
	}
	interp := analysis.Interpret(matrix, outcome, icfg)
	return matrix, outcome, interp, nil
}

// applyLLMEnv pushes the config file's llm section into the env vars
// the backends read. Variables already set in the environment win.
func applyLLMEnv() {
	llmCfg := config.Global.LLM
	setIfUnset("LLM_BACKEND", llmCfg.Type)
	switch strings.ToLower(llmCfg.Type) {
	case llm.BackendAnthropic, "":
		setIfUnset("ANTHROPIC_MODEL", llmCfg.Model)
		setIfUnset("ANTHROPIC_BASE_URL", llmCfg.BaseURL)
	case llm.BackendOpenAI:
		setIfUnset("OPENAI_MODEL", llmCfg.Model)
		setIfUnset("OPENAI_BASE_URL", llmCfg.BaseURL)
	case llm.BackendOllama:
		setIfUnset("OLLAMA_MODEL", llmCfg.Model)
		setIfUnset("OLLAMA_BASE_URL", llmCfg.BaseURL)
	}
}

func setIfUnset(key, value string) {
	if value == "" || os.Getenv(key) != "" {
		return
	}
	if err := os.Setenv(key, value); err != nil {
		ux.Warning(fmt.Sprintf("Could not set %s: %v", key, err))
	}
}

// generateInsights runs the LLM analyzer over an interpretation.
// Failures degrade to a warning so the numeric result still lands.
func generateInsights(ctx context.Context, exec *resilience.Executor, interp *analysis.Interpretation, entity, project string) *insights.Analysis {
	applyLLMEnv()
	client, service, err := llm.NewFromEnv()
	if err != nil {
		ux.Warning(fmt.Sprintf("Insights skipped: %v", err))
		return nil
	}
	analyzer, err := insights.NewAnalyzer(insights.Config{
		Client:   client,
		Service:  service,
		Executor: exec,
	})
	if err != nil {
		ux.Warning(fmt.Sprintf("Insights skipped: %v", err))
		return nil
	}
	result, err := analyzer.AnalyzeClusters(ctx, interp, insights.ProjectMeta{Entity: entity, Project: project})
	if err != nil {
		ux.Warning(fmt.Sprintf("Insight generation failed: %v", err))
		return nil
	}
	return result
}

// renderClusterReport prints the styled clustering report: the ranked
// cluster table, per-cluster deviating features, outliers, and any
// LLM insights.
func renderClusterReport(report *AnalyzeReport) {
	interp := report.Interpretation
	if report.Entity != "" {
		ux.Title(fmt.Sprintf("%s/%s", report.Entity, report.Project))
	} else {
		ux.Title("Run clustering")
	}
	if interp.Degenerate {
		ux.Warning("Clustering is degenerate: the runs are too few or too similar to separate")
	}

	fmt.Println(ux.Rule("Clusters"))
	headers := []string{"RANK", "SIZE", strings.ToUpper(interp.PrimaryMetric), "CHARACTERISTICS"}
	rows := make([][]string, 0, len(interp.Clusters))
	for _, c := range interp.Clusters {
		rows = append(rows, []string{
			strconv.Itoa(c.Rank),
			strconv.Itoa(c.Size),
			formatMetric(c.MetricMean),
			strings.Join(c.Characteristics, ", "),
		})
	}
	fmt.Println(ux.RenderTable(headers, rows))

	for _, c := range interp.Clusters {
		if len(c.TopFeatures) == 0 {
			continue
		}
		ux.Info(fmt.Sprintf("%s Cluster #%d (%s) stands out on:",
			ux.IconCluster.Render(), c.Rank, memberPreview(c.RunIDs, 3)))
		for _, f := range c.TopFeatures {
			direction := "above"
			if f.Deviation < 0 {
				direction = "below"
			}
			ux.Info(fmt.Sprintf("  %s %s: %.1f sd %s average (%s vs %s)",
				ux.IconDelta.Render(), f.Name, math.Abs(f.Deviation), direction,
				formatMetric(f.ClusterMean), formatMetric(f.GlobalMean)))
		}
	}

	if len(interp.Outliers) > 0 {
		fmt.Println(ux.Rule("Outliers"))
		oHeaders := []string{"RUN", "CLUSTER", "DISTANCE", "CLUSTER MEAN"}
		oRows := make([][]string, 0, len(interp.Outliers))
		for _, o := range interp.Outliers {
			oRows = append(oRows, []string{
				o.RunID,
				strconv.Itoa(o.Cluster),
				formatMetric(o.Distance),
				formatMetric(o.MeanDistance),
			})
		}
		fmt.Println(ux.RenderTable(oHeaders, oRows))
	}

	if report.Insights != nil {
		fmt.Println(ux.Rule("Insights"))
		if report.Insights.Summary != "" {
			ux.Info(report.Insights.Summary)
		}
		for _, finding := range report.Insights.KeyFindings {
			ux.Info(fmt.Sprintf("  %s %s", ux.IconBullet.Render(), finding))
		}
		for _, rec := range report.Insights.Recommendations {
			ux.Info(fmt.Sprintf("  %s %s", ux.IconArrow.Render(), rec))
		}
	}

	ux.Summary(report.RunCount, len(interp.Clusters), len(interp.Outliers))
}

// memberPreview shows the first few run IDs of a cluster.
func memberPreview(ids []string, max int) string {
	if len(ids) <= max {
		return strings.Join(ids, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(ids[:max], ", "), len(ids)-max)
}

// formatMetric renders a float with four decimals, trimming trailing
// zeros so integer-ish values stay short.
func formatMetric(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// formatRuntime renders a runtime in seconds as 2h05m, 5m30s, or 42s.
func formatRuntime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
