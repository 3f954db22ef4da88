// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package insights

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/runlens-ai/runlens/pkg/runs"
	"github.com/runlens-ai/runlens/services/analysis"
)

// maxPromptRunIDs bounds how many member run IDs a single cluster
// contributes to a prompt.
const maxPromptRunIDs = 20

// --- Prompt Views ---

// clusterView is the JSON shape a cluster takes inside a prompt.
type clusterView struct {
	Rank            int           `json:"rank"`
	Cluster         int           `json:"cluster"`
	Size            int           `json:"size"`
	MetricMean      float64       `json:"metric_mean"`
	Characteristics []string      `json:"characteristics,omitempty"`
	Features        []featureView `json:"distinguishing_features,omitempty"`
	RunIDs          []string      `json:"run_ids"`
}

type featureView struct {
	Name        string  `json:"name"`
	ClusterMean float64 `json:"cluster_mean"`
	GlobalMean  float64 `json:"global_mean"`
}

type outlierView struct {
	RunID             string  `json:"run_id"`
	Cluster           int     `json:"cluster"`
	TimesMeanDistance float64 `json:"times_mean_distance"`
}

// runView is the JSON shape a run takes inside a prompt: metadata,
// config, and the final value of each metric series.
type runView struct {
	ID             string                `json:"id"`
	Name           string                `json:"name,omitempty"`
	State          string                `json:"state"`
	RuntimeSeconds float64               `json:"runtime_seconds,omitempty"`
	Commit         string                `json:"commit,omitempty"`
	Config         map[string]runs.Value `json:"config"`
	FinalMetrics   map[string]float64    `json:"final_metrics"`
}

func viewClusters(interp *analysis.Interpretation) []clusterView {
	views := make([]clusterView, 0, len(interp.Clusters))
	for _, c := range interp.Clusters {
		ids := c.RunIDs
		if len(ids) > maxPromptRunIDs {
			ids = ids[:maxPromptRunIDs]
		}
		features := make([]featureView, 0, len(c.TopFeatures))
		for _, f := range c.TopFeatures {
			features = append(features, featureView{
				Name:        f.Name,
				ClusterMean: f.ClusterMean,
				GlobalMean:  f.GlobalMean,
			})
		}
		views = append(views, clusterView{
			Rank:            c.Rank,
			Cluster:         c.Label,
			Size:            c.Size,
			MetricMean:      c.MetricMean,
			Characteristics: c.Characteristics,
			Features:        features,
			RunIDs:          ids,
		})
	}
	return views
}

func viewOutliers(interp *analysis.Interpretation) []outlierView {
	views := make([]outlierView, 0, len(interp.Outliers))
	for _, o := range interp.Outliers {
		ratio := 0.0
		if o.MeanDistance > 0 {
			ratio = o.Distance / o.MeanDistance
		}
		views = append(views, outlierView{
			RunID:             o.RunID,
			Cluster:           o.Cluster,
			TimesMeanDistance: ratio,
		})
	}
	return views
}

func viewRun(r runs.Run) runView {
	finals := make(map[string]float64, len(r.Metrics))
	for _, name := range r.MetricNames() {
		if v, ok := r.LastMetric(name); ok {
			finals[name] = v
		}
	}
	return runView{
		ID:             r.ID,
		Name:           r.Name,
		State:          string(r.State),
		RuntimeSeconds: r.RuntimeSeconds,
		Commit:         r.Commit,
		Config:         r.Config,
		FinalMetrics:   finals,
	}
}

func promptJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding prompt data: %w", err)
	}
	return string(data), nil
}

// --- Prompt Builders ---

func clusterPrompt(interp *analysis.Interpretation, meta ProjectMeta) (string, error) {
	clusters, err := promptJSON(viewClusters(interp))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are an AI research assistant analyzing machine learning experiments.\n\n")
	if meta.Entity != "" || meta.Project != "" {
		fmt.Fprintf(&b, "## Project:\n%s/%s\n\n", meta.Entity, meta.Project)
	}
	fmt.Fprintf(&b, "## Ranked Clusters (by %s):\n%s\n\n", interp.PrimaryMetric, clusters)

	if len(interp.Outliers) > 0 {
		outliers, err := promptJSON(viewOutliers(interp))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "## Outliers:\n%s\n\n", outliers)
	}
	if meta.SelectedRun != nil {
		selected, err := promptJSON(viewRun(*meta.SelectedRun))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "## Selected Run Details:\n%s\n\n", selected)
	}

	b.WriteString(`Analyze these experiment clusters. Respond in JSON format:
{
    "summary": "One paragraph overview of the experiment landscape",
    "insights": ["Specific observations about what separates the clusters"],
    "recommendations": ["Concrete configuration changes to try next"],
    "key_findings": ["The most important takeaways"]
}

Focus on:
1. Performance differences between clusters
2. Configuration parameters that impact results
3. Convergence patterns
4. Actionable next steps`)
	return b.String(), nil
}

func comparePrompt(run1, run2 runs.Run, codeDiff string) (string, error) {
	v1, err := promptJSON(viewRun(run1))
	if err != nil {
		return "", err
	}
	v2, err := promptJSON(viewRun(run2))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are an ML engineer comparing two experiment runs.\n\n")
	fmt.Fprintf(&b, "## Run 1 (%s):\n%s\n\n", run1.ID, v1)
	fmt.Fprintf(&b, "## Run 2 (%s):\n%s\n\n", run2.ID, v2)
	if codeDiff != "" {
		diff, truncated := fitDiffToBudget(codeDiff)
		fmt.Fprintf(&b, "## Code Changes:\n```diff\n%s\n```\n", diff)
		if truncated {
			b.WriteString("(diff truncated)\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(`Explain why these runs performed differently. Respond in JSON format:
{
    "performance_difference": "Summary of how the results differ",
    "config_differences": ["Configuration changes between the runs"],
    "likely_causes": ["Most probable reasons for the difference"],
    "recommendation": "What to do with this information"
}`)
	return b.String(), nil
}

func suggestPrompt(interp *analysis.Interpretation, goal string) (string, error) {
	clusters, err := promptJSON(viewClusters(interp))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are an ML research advisor planning the next round of experiments.\n\n")
	fmt.Fprintf(&b, "## Goal:\n%s\n\n", goal)
	fmt.Fprintf(&b, "## Current Results (clusters ranked by %s):\n%s\n\n", interp.PrimaryMetric, clusters)
	b.WriteString(`Suggest 3-5 concrete experiments to run next. Each suggestion names
the parameter to change and the value to try. Respond with a JSON array
of suggestion strings:
["suggestion 1", "suggestion 2", "suggestion 3"]`)
	return b.String(), nil
}

func reviewPrompt(codeDiff string, truncated bool, before, after map[string]float64) (string, error) {
	beforeJSON, err := promptJSON(before)
	if err != nil {
		return "", err
	}
	afterJSON, err := promptJSON(after)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are reviewing a code change alongside its training results.\n\n")
	fmt.Fprintf(&b, "## Metrics Before:\n%s\n\n", beforeJSON)
	fmt.Fprintf(&b, "## Metrics After:\n%s\n\n", afterJSON)
	fmt.Fprintf(&b, "## Code Changes:\n```diff\n%s\n```\n", codeDiff)
	if truncated {
		b.WriteString("(diff truncated)\n")
	}
	b.WriteString("\n")

	b.WriteString(`Relate the code change to the metric movement. Respond in JSON format:
{
    "impact_summary": "One sentence on the overall impact",
    "metric_changes": ["Per-metric before/after movements that matter"],
    "code_explanation": "What the code change does",
    "causation_analysis": "Whether the code change plausibly caused the metric movement"
}`)
	return b.String(), nil
}
