// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package insights turns clustering output into natural-language
// analysis through an LLM backend.
//
// Models are asked for strict JSON but do not always comply, so every
// response goes through a tolerant extractor: the first '{' to the
// last '}' (or '[' to ']' for lists) is parsed, and anything
// unparseable degrades to a text-only result instead of an error.
// All generation calls run through the resilience executor under the
// backend's service name.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/runlens-ai/runlens/pkg/extensions"
	"github.com/runlens-ai/runlens/pkg/resilience"
	"github.com/runlens-ai/runlens/pkg/runs"
	"github.com/runlens-ai/runlens/services/analysis"
	"github.com/runlens-ai/runlens/services/llm"
)

// Analysis is the structured result of a cluster analysis.
type Analysis struct {
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
	KeyFindings     []string `json:"key_findings"`
}

// RunComparison explains the differences between two runs.
type RunComparison struct {
	PerformanceDifference string   `json:"performance_difference"`
	ConfigDifferences     []string `json:"config_differences"`
	LikelyCauses          []string `json:"likely_causes"`
	Recommendation        string   `json:"recommendation"`
}

// CodeImpact relates a code change to observed metric movement.
type CodeImpact struct {
	ImpactSummary     string   `json:"impact_summary"`
	MetricChanges     []string `json:"metric_changes"`
	CodeExplanation   string   `json:"code_explanation"`
	CausationAnalysis string   `json:"causation_analysis"`
}

// ProjectMeta gives the model context about where the runs came from.
// SelectedRun, when set, is called out for focused analysis.
type ProjectMeta struct {
	Entity      string
	Project     string
	SelectedRun *runs.Run
}

// Config collects analyzer dependencies.
type Config struct {
	Client   llm.LLMClient        // required
	Service  string               // resilience service name, default "anthropic"
	Executor *resilience.Executor // nil gets the default retry policy
	Filter   extensions.PromptFilter
	Logger   *slog.Logger
}

// Analyzer generates insights over clustered runs. Safe for
// concurrent use.
type Analyzer struct {
	client  llm.LLMClient
	service string
	exec    *resilience.Executor
	filter  extensions.PromptFilter
	logger  *slog.Logger
}

func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	service := cfg.Service
	if service == "" {
		service = llm.BackendAnthropic
	}
	exec := cfg.Executor
	if exec == nil {
		exec = resilience.NewExecutor(nil, resilience.DefaultConfig())
	}
	filter := cfg.Filter
	if filter == nil {
		filter = &extensions.NopPromptFilter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		client:  cfg.Client,
		service: service,
		exec:    exec,
		filter:  filter,
		logger:  logger,
	}, nil
}

// AnalyzeClusters asks the model for a structured read on the ranked
// clusters. Responses that are not valid JSON degrade to a text-only
// Analysis rather than failing.
func (a *Analyzer) AnalyzeClusters(ctx context.Context, interp *analysis.Interpretation, meta ProjectMeta) (*Analysis, error) {
	if interp == nil || len(interp.Clusters) == 0 {
		return nil, fmt.Errorf("no clusters to analyze")
	}

	prompt, err := clusterPrompt(interp, meta)
	if err != nil {
		return nil, err
	}

	raw, err := a.generate(ctx, prompt, llm.GenerationParams{MaxTokens: llm.Int(2000)})
	if err != nil {
		return nil, err
	}

	out := parseAnalysis(raw)
	a.logger.Info("cluster analysis generated",
		"clusters", len(interp.Clusters),
		"insights", len(out.Insights),
		"structured", out.Summary != truncate(raw, 200))
	return out, nil
}

// CompareRuns explains the differences between two runs, optionally
// in light of the code diff between their commits.
func (a *Analyzer) CompareRuns(ctx context.Context, run1, run2 runs.Run, codeDiff string) (*RunComparison, error) {
	prompt, err := comparePrompt(run1, run2, codeDiff)
	if err != nil {
		return nil, err
	}

	raw, err := a.generate(ctx, prompt, llm.GenerationParams{MaxTokens: llm.Int(1500)})
	if err != nil {
		return nil, err
	}

	var out RunComparison
	if obj, ok := extractJSONObject(raw); ok {
		if json.Unmarshal([]byte(obj), &out) == nil {
			return &out, nil
		}
	}
	// Text fallback keeps the response usable.
	out.PerformanceDifference = truncate(raw, 200)
	out.LikelyCauses = []string{raw}
	return &out, nil
}

// SuggestExperiments asks for 3-5 concrete follow-up experiments.
// An empty goal defaults to "improve performance".
func (a *Analyzer) SuggestExperiments(ctx context.Context, interp *analysis.Interpretation, goal string) ([]string, error) {
	if interp == nil || len(interp.Clusters) == 0 {
		return nil, fmt.Errorf("no results to suggest from")
	}
	if goal == "" {
		goal = "improve performance"
	}

	prompt, err := suggestPrompt(interp, goal)
	if err != nil {
		return nil, err
	}

	raw, err := a.generate(ctx, prompt, llm.GenerationParams{MaxTokens: llm.Int(1000)})
	if err != nil {
		return nil, err
	}

	if arr, ok := extractJSONArray(raw); ok {
		var suggestions []string
		if json.Unmarshal([]byte(arr), &suggestions) == nil && len(suggestions) > 0 {
			return suggestions, nil
		}
	}
	return []string{raw}, nil
}

// ReviewCodeChanges analyzes how a commit's diff relates to metric
// movement between two runs. Long diffs are chunked and truncated to
// a prompt budget before being sent.
func (a *Analyzer) ReviewCodeChanges(ctx context.Context, codeDiff string, before, after map[string]float64) (*CodeImpact, error) {
	if strings.TrimSpace(codeDiff) == "" {
		return nil, fmt.Errorf("empty code diff")
	}

	trimmed, truncated := fitDiffToBudget(codeDiff)
	if truncated {
		a.logger.Debug("diff truncated for prompt budget",
			"original_length", len(codeDiff), "prompt_length", len(trimmed))
	}

	prompt, err := reviewPrompt(trimmed, truncated, before, after)
	if err != nil {
		return nil, err
	}

	raw, err := a.generate(ctx, prompt, llm.GenerationParams{MaxTokens: llm.Int(1500)})
	if err != nil {
		return nil, err
	}

	var out CodeImpact
	if obj, ok := extractJSONObject(raw); ok {
		if json.Unmarshal([]byte(obj), &out) == nil {
			return &out, nil
		}
	}
	out.ImpactSummary = truncate(raw, 200)
	out.CausationAnalysis = raw
	return &out, nil
}

// generate runs one model call through the prompt filter and the
// resilience executor. Run configs can carry credentials, so the
// outbound prompt is filtered before it leaves the process.
func (a *Analyzer) generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	filtered, err := a.filter.FilterPrompt(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("filter prompt: %w", err)
	}
	if filtered.WasBlocked {
		return "", fmt.Errorf("%s: %w", filtered.BlockReason, extensions.ErrPromptBlocked)
	}
	if filtered.WasModified {
		a.logger.Debug("prompt redacted", "detections", len(filtered.Detections))
	}

	var out string
	err = a.exec.Execute(ctx, a.service, func(ctx context.Context) error {
		text, err := a.client.Generate(ctx, filtered.Filtered, params)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		return "", err
	}

	response, err := a.filter.FilterResponse(ctx, out)
	if err != nil {
		return "", fmt.Errorf("filter response: %w", err)
	}
	return response.Filtered, nil
}
