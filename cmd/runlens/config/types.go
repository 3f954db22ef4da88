// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

type RunlensConfig struct {
	// Tracking: where runs come from
	Tracking TrackingConfig `yaml:"tracking"`

	// LLM: backend used for the insight commands
	LLM LLMConfig `yaml:"llm"`

	// Cluster: default clustering and ranking settings
	Cluster ClusterConfig `yaml:"cluster"`

	// Insights: toggle for LLM-generated analysis
	Insights InsightsConfig `yaml:"insights"`

	// Retry: outbound call retry policy
	Retry RetryConfig `yaml:"retry"`

	// Limits: per-service request rates
	Limits LimitsConfig `yaml:"limits"`

	// Archive: optional GCS destination for reports
	Archive ArchiveConfig `yaml:"archive"`
}

type TrackingConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"` // empty uses WANDB_BASE_URL or the production API
	Entity    string `yaml:"entity"`             // e.g. research-team
	Project   string `yaml:"project"`            // e.g. vision-transformers
	APIKeyEnv string `yaml:"api_key_env"`        // env var holding the API key
}

type LLMConfig struct {
	// Backend can be "anthropic", "openai", or "ollama".
	Type    string `yaml:"type"`
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type ClusterConfig struct {
	K             int    `yaml:"k"`              // e.g. 3
	Restarts      int    `yaml:"restarts"`       // e.g. 10
	MaxIterations int    `yaml:"max_iterations"` // e.g. 300
	Seed          int64  `yaml:"seed"`           // e.g. 42
	PrimaryMetric string `yaml:"primary_metric"` // e.g. accuracy
	Direction     string `yaml:"direction"`      // "max" or "min"
}

type InsightsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`       // e.g. 3
	InitialBackoffMs int     `yaml:"initial_backoff_ms"` // e.g. 2000
	MaxBackoffMs     int     `yaml:"max_backoff_ms"`     // e.g. 10000
	BackoffFactor    float64 `yaml:"backoff_factor"`     // e.g. 2.0
}

type LimitsConfig struct {
	WandbPerMinute     float64 `yaml:"wandb_per_minute"`     // e.g. 60
	AnthropicPerMinute float64 `yaml:"anthropic_per_minute"` // e.g. 50
	FallbackPerMinute  float64 `yaml:"fallback_per_minute"`  // e.g. 100
}

type ArchiveConfig struct {
	ProjectID string `yaml:"project_id,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	SAKeyPath string `yaml:"sa_key_path,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

func DefaultConfig() RunlensConfig {
	return RunlensConfig{
		Tracking: TrackingConfig{
			APIKeyEnv: "WANDB_API_KEY",
		},
		LLM: LLMConfig{
			Type: "anthropic",
		},
		Cluster: ClusterConfig{
			K:             3,
			Restarts:      10,
			MaxIterations: 300,
			Seed:          42,
			PrimaryMetric: "accuracy",
			Direction:     "max",
		},
		Insights: InsightsConfig{Enabled: false},
		Retry: RetryConfig{
			MaxAttempts:      3,
			InitialBackoffMs: 2000,
			MaxBackoffMs:     10000,
			BackoffFactor:    2.0,
		},
		Limits: LimitsConfig{
			WandbPerMinute:     60,
			AnthropicPerMinute: 50,
			FallbackPerMinute:  100,
		},
		Archive: ArchiveConfig{
			Prefix: "reports",
		},
	}
}
