// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/runlens-ai/runlens/pkg/runs"
	"github.com/runlens-ai/runlens/services/analysis"
	"github.com/runlens-ai/runlens/services/insights"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed but the result needs attention
	CLIExitError    = 2 // Operation failed
)

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string      `json:"api_version"`
	Command    string      `json:"command"`
	Timestamp  time.Time   `json:"timestamp"`
	DurationMs int64       `json:"duration_ms"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// OutputJSON writes structured data as JSON to stdout.
//
// # Inputs
//
//   - data: The data to encode. Must be JSON-serializable.
//   - compact: If true, output without indentation.
//
// # Outputs
//
//   - error: Non-nil if encoding fails.
func OutputJSON(data interface{}, compact bool) error {
	encoder := json.NewEncoder(os.Stdout)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// OutputError writes an error in the appropriate format.
//
// # Inputs
//
//   - jsonMode: If true, output as JSON to stdout.
//   - msg: Human-readable error message.
//   - err: The underlying error.
func OutputError(jsonMode bool, msg string, err error) {
	if jsonMode {
		result := CommandResult{
			APIVersion: "1.0",
			Timestamp:  time.Now(),
			Success:    false,
			Error:      fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	}
}

// OutputResult wraps data in a CommandResult and writes it as JSON.
//
// # Inputs
//
//   - cmd: Command name for metadata.
//   - start: Start time for duration calculation.
//   - data: The data to output.
//
// # Outputs
//
//   - int: The exit code to use.
func OutputResult(cmd string, start time.Time, data interface{}) int {
	result := CommandResult{
		APIVersion: "1.0",
		Command:    cmd,
		Timestamp:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    true,
		Data:       data,
	}
	if err := OutputJSON(result, false); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return CLIExitError
	}
	return CLIExitSuccess
}

// AnalyzeReport holds analyze/demo output.
type AnalyzeReport struct {
	Entity         string                   `json:"entity,omitempty"`
	Project        string                   `json:"project,omitempty"`
	RunCount       int                      `json:"run_count"`
	Columns        []string                 `json:"columns"`
	Outcome        *analysis.ClusterOutcome `json:"outcome"`
	Interpretation *analysis.Interpretation `json:"interpretation"`
	Insights       *insights.Analysis       `json:"insights,omitempty"`
}

// RunListResult holds runs list output.
type RunListResult struct {
	Entity  string     `json:"entity"`
	Project string     `json:"project"`
	Runs    []runs.Run `json:"runs"`
	Count   int        `json:"count"`
}

// VersionResult holds version output.
type VersionResult struct {
	Version string `json:"version"`
}
