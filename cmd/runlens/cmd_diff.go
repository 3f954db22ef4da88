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
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/runlens-ai/runlens/pkg/ux"
	"github.com/runlens-ai/runlens/services/gitdiff"
)

// runDiff summarizes the code change behind one commit, so a metric
// jump between runs can be tied back to what actually changed.
func runDiff(cmd *cobra.Command, args []string) {
	start := time.Now()
	ctx := context.Background()
	sha := args[0]

	repo, err := gitdiff.NewRepo(diffRepoPath)
	if err != nil {
		OutputError(jsonOutput, "Cannot open the repository", err)
		os.Exit(CLIExitError)
	}

	commit, err := repo.CommitDiff(ctx, sha)
	if err != nil {
		OutputError(jsonOutput, "Could not read the commit", err)
		os.Exit(CLIExitError)
	}

	if jsonOutput {
		os.Exit(OutputResult("diff", start, commit))
	}

	ux.Title(fmt.Sprintf("Commit %s", shortSHA(commit.SHA)))
	if commit.Author != "" {
		ux.KeyValue("author", commit.Author)
	}
	if !commit.AuthoredAt.IsZero() {
		ux.KeyValue("date", commit.AuthoredAt.Format("2006-01-02 15:04"))
	}
	if commit.Message != "" {
		ux.KeyValue("message", firstLine(commit.Message))
	}

	headers := []string{"FILE", "STATUS", "+", "-"}
	rows := make([][]string, 0, len(commit.Files))
	for _, f := range commit.Files {
		path := f.Path
		if f.Status == gitdiff.StatusRenamed && f.OldPath != "" {
			path = fmt.Sprintf("%s %s %s", f.OldPath, ux.IconArrow, f.Path)
		}
		rows = append(rows, []string{
			path,
			string(f.Status),
			strconv.Itoa(f.Added),
			strconv.Itoa(f.Removed),
		})
	}
	fmt.Println(ux.RenderTable(headers, rows))
	ux.Info(fmt.Sprintf("%d files changed, +%d -%d", len(commit.Files), commit.Added, commit.Removed))
}

// shortSHA abbreviates a full commit hash for display.
func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

// firstLine returns the subject line of a commit message.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
