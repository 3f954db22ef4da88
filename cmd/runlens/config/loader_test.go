// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	// Create a temp directory
	tempDir, err := os.MkdirTemp("", "runlens-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configPath := filepath.Join(tempDir, ".runlens", "runlens.yaml")

	// Create the config
	err = createDefault(configPath)
	if err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	// Verify the file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	// Read and verify the config
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg RunlensConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	// Verify some defaults
	if cfg.LLM.Type != "anthropic" {
		t.Errorf("LLM.Type = %q, want %q", cfg.LLM.Type, "anthropic")
	}
	if cfg.Cluster.K != 3 {
		t.Errorf("Cluster.K = %d, want 3", cfg.Cluster.K)
	}
	if cfg.Cluster.PrimaryMetric != "accuracy" {
		t.Errorf("Cluster.PrimaryMetric = %q, want %q", cfg.Cluster.PrimaryMetric, "accuracy")
	}
	if cfg.Tracking.APIKeyEnv != "WANDB_API_KEY" {
		t.Errorf("Tracking.APIKeyEnv = %q, want %q", cfg.Tracking.APIKeyEnv, "WANDB_API_KEY")
	}
}

// TestCreateDefault_DirectoryCreation verifies directory is created.
func TestCreateDefault_DirectoryCreation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "runlens-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	// Use a nested path
	configPath := filepath.Join(tempDir, "deep", "nested", "path", "runlens.yaml")

	err = createDefault(configPath)
	if err != nil {
		t.Fatalf("createDefault() failed with nested path: %v", err)
	}

	// Verify the directories were created
	dirPath := filepath.Dir(configPath)
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		t.Fatal("nested directories were not created")
	}
}

// TestDefaultConfig verifies the stock settings are internally coherent.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Cluster.Direction != "max" {
		t.Errorf("Cluster.Direction = %q, want %q", cfg.Cluster.Direction, "max")
	}
	if cfg.Cluster.Seed != 42 {
		t.Errorf("Cluster.Seed = %d, want 42", cfg.Cluster.Seed)
	}
	if cfg.Cluster.Restarts != 10 {
		t.Errorf("Cluster.Restarts = %d, want 10", cfg.Cluster.Restarts)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BackoffFactor != 2.0 {
		t.Errorf("Retry.BackoffFactor = %v, want 2.0", cfg.Retry.BackoffFactor)
	}
	if cfg.Limits.WandbPerMinute != 60 {
		t.Errorf("Limits.WandbPerMinute = %v, want 60", cfg.Limits.WandbPerMinute)
	}
	if cfg.Limits.AnthropicPerMinute != 50 {
		t.Errorf("Limits.AnthropicPerMinute = %v, want 50", cfg.Limits.AnthropicPerMinute)
	}
	if cfg.Insights.Enabled {
		t.Error("Insights.Enabled should default to false")
	}
	if cfg.Archive.Prefix != "reports" {
		t.Errorf("Archive.Prefix = %q, want %q", cfg.Archive.Prefix, "reports")
	}
}

// TestSave_WritesGlobal verifies Save persists the Global config to the
// config path.
func TestSave_WritesGlobal(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "runlens-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	// Point the config path at the temp dir for the duration.
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tempDir)
	defer os.Setenv("HOME", origHome)

	origGlobal := Global
	defer func() { Global = origGlobal }()

	Global = DefaultConfig()
	Global.Tracking.Entity = "research-team"
	Global.Cluster.K = 5

	if err := Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	path, err := Path()
	if err != nil {
		t.Fatalf("Path() failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}

	var got RunlensConfig
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to parse saved config: %v", err)
	}
	if got.Tracking.Entity != "research-team" {
		t.Errorf("Tracking.Entity = %q, want %q", got.Tracking.Entity, "research-team")
	}
	if got.Cluster.K != 5 {
		t.Errorf("Cluster.K = %d, want 5", got.Cluster.K)
	}
}

// TestConfigRoundTrip verifies a config survives marshal/unmarshal with
// edits intact.
func TestConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracking.Entity = "research-team"
	cfg.Tracking.Project = "vision-transformers"
	cfg.Insights.Enabled = true
	cfg.Archive.Bucket = "runlens-archive"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var got RunlensConfig
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got.Tracking.Entity != "research-team" {
		t.Errorf("Tracking.Entity = %q, want %q", got.Tracking.Entity, "research-team")
	}
	if got.Tracking.Project != "vision-transformers" {
		t.Errorf("Tracking.Project = %q, want %q", got.Tracking.Project, "vision-transformers")
	}
	if !got.Insights.Enabled {
		t.Error("Insights.Enabled did not survive the round trip")
	}
	if got.Archive.Bucket != "runlens-archive" {
		t.Errorf("Archive.Bucket = %q, want %q", got.Archive.Bucket, "runlens-archive")
	}
}
