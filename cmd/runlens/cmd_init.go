// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/runlens-ai/runlens/cmd/runlens/config"
	"github.com/runlens-ai/runlens/pkg/ux"
)

// runInitConfig shows where the config file lives and what it
// currently says. With --interactive it first walks through the common
// settings and saves the answers. The file itself was already created
// by the config loader on first run, so this command is idempotent.
func runInitConfig(cmd *cobra.Command, args []string) {
	path, err := config.Path()
	if err != nil {
		OutputError(jsonOutput, "Cannot determine the config path", err)
		os.Exit(CLIExitError)
	}

	if initInteractive {
		if err := runInitWizard(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				ux.Info("Setup cancelled, config unchanged")
				return
			}
			OutputError(jsonOutput, "Interactive setup failed", err)
			os.Exit(CLIExitError)
		}
	}

	ux.Success(fmt.Sprintf("Config ready at %s", path))

	cfg := config.Global
	ux.KeyValue("tracking.entity", orUnset(cfg.Tracking.Entity))
	ux.KeyValue("tracking.project", orUnset(cfg.Tracking.Project))
	ux.KeyValue("tracking.api_key_env", cfg.Tracking.APIKeyEnv)
	ux.KeyValue("llm.type", cfg.LLM.Type)
	ux.KeyValue("cluster.k", strconv.Itoa(cfg.Cluster.K))
	ux.KeyValue("cluster.primary_metric", cfg.Cluster.PrimaryMetric)
	ux.KeyValue("cluster.direction", cfg.Cluster.Direction)
	ux.KeyValue("insights.enabled", strconv.FormatBool(cfg.Insights.Enabled))
	if cfg.Archive.Bucket != "" {
		ux.KeyValue("archive.bucket", cfg.Archive.Bucket)
	}

	if !initInteractive {
		ux.Tip("Run 'runlens init -i' for guided setup, or edit the file directly")
	}
}

// runInitWizard collects the common settings in one form and writes
// the answers back to the config file. The environment variable named
// for the API key is recorded, never the key itself.
func runInitWizard() error {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("interactive setup needs a terminal; edit the config file instead")
	}

	cfg := &config.Global
	kStr := strconv.Itoa(cfg.Cluster.K)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Tracking entity").
				Description("The team or username that owns your projects").
				Placeholder("research-team").
				Value(&cfg.Tracking.Entity),
			huh.NewInput().
				Title("Tracking project").
				Placeholder("vision-transformers").
				Value(&cfg.Tracking.Project),
			huh.NewInput().
				Title("API key environment variable").
				Description("The key is read from this variable at runtime").
				Value(&cfg.Tracking.APIKeyEnv),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("LLM backend").
				Options(huh.NewOptions("anthropic", "openai", "ollama")...).
				Value(&cfg.LLM.Type),
			huh.NewConfirm().
				Title("Generate LLM insights by default?").
				Value(&cfg.Insights.Enabled),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Cluster count (k)").
				Validate(validateClusterCount).
				Value(&kStr),
			huh.NewInput().
				Title("Primary metric").
				Description("The summary metric used to rank clusters").
				Value(&cfg.Cluster.PrimaryMetric),
			huh.NewSelect[string]().
				Title("Metric direction").
				Options(
					huh.NewOption("higher is better", "max"),
					huh.NewOption("lower is better", "min"),
				).
				Value(&cfg.Cluster.Direction),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Cluster.K, _ = strconv.Atoi(strings.TrimSpace(kStr))
	return config.Save()
}

func validateClusterCount(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("enter a positive whole number")
	}
	return nil
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// runVersion prints the CLI version baked in at build time.
func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		os.Exit(OutputResult("version", time.Now(), VersionResult{Version: Version}))
	}
	fmt.Printf("runlens version %s\n", Version)
}
