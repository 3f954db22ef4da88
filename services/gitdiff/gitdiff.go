// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gitdiff reads commit diffs from a local repository so runs
// can be compared by the code they were launched from.
//
// All repository access goes through the git executable; commit
// identifiers are validated before they reach argv. Diffs are parsed
// into per-file change stats for display and fed raw to the insight
// layer.
package gitdiff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/runlens-ai/runlens/pkg/validation"
)

// gitTimeout bounds a single git subprocess.
const gitTimeout = 30 * time.Second

var (
	// ErrNotARepository marks a directory that is not inside a git
	// work tree.
	ErrNotARepository = errors.New("not a git repository")

	// ErrCommitNotFound marks a revision the repository does not have.
	ErrCommitNotFound = errors.New("commit not found")
)

// ChangeStatus classifies what happened to a file in a diff.
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "added"
	StatusModified ChangeStatus = "modified"
	StatusDeleted  ChangeStatus = "deleted"
	StatusRenamed  ChangeStatus = "renamed"
)

// FileChange is one file's contribution to a diff.
type FileChange struct {
	// Path is the file path after the change.
	Path string `json:"path"`

	// OldPath is the pre-rename path; empty unless Status is renamed.
	OldPath string `json:"old_path,omitempty"`

	Status  ChangeStatus `json:"status"`
	Added   int          `json:"added"`
	Removed int          `json:"removed"`
}

// Diff is a parsed unified diff with per-file stats and totals.
type Diff struct {
	Files   []FileChange `json:"files"`
	Added   int          `json:"added"`
	Removed int          `json:"removed"`

	// Raw is the unified diff text as git produced it.
	Raw string `json:"raw,omitempty"`
}

// CommitDiff is a commit's metadata plus its first-parent diff.
type CommitDiff struct {
	SHA        string    `json:"sha"`
	Author     string    `json:"author,omitempty"`
	AuthoredAt time.Time `json:"authored_at,omitempty"`
	Message    string    `json:"message,omitempty"`
	Diff
}

// Repo is a handle on one local git repository. Safe for concurrent
// use; every operation is an independent subprocess.
type Repo struct {
	root string
}

// NewRepo opens the repository containing dir. The handle is rooted at
// the work tree's top level regardless of which subdirectory was
// given.
func NewRepo(dir string) (*Repo, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("git executable not found: %w", err)
	}
	r := &Repo{root: dir}
	out, err := r.git(context.Background(), "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, err
	}
	r.root = strings.TrimSpace(out)
	return r, nil
}

// Root returns the repository's top-level directory.
func (r *Repo) Root() string { return r.root }

// CommitDiff returns the commit's metadata and its diff against the
// first parent. Root commits diff against the empty tree.
func (r *Repo) CommitDiff(ctx context.Context, sha string) (*CommitDiff, error) {
	if err := validation.ValidateCommitSHA(sha); err != nil {
		return nil, err
	}

	meta, err := r.git(ctx, "show", "-s", "--format=%H%x00%an%x00%aI%x00%B", sha)
	if err != nil {
		return nil, err
	}
	out := &CommitDiff{}
	if parts := strings.SplitN(meta, "\x00", 4); len(parts) == 4 {
		out.SHA = parts[0]
		out.Author = parts[1]
		if at, err := time.Parse(time.RFC3339, parts[2]); err == nil {
			out.AuthoredAt = at
		}
		out.Message = strings.TrimSpace(parts[3])
	}

	raw, err := r.git(ctx, "diff", "-M", sha+"^", sha)
	if errors.Is(err, ErrCommitNotFound) {
		// No parent: this is a root commit.
		raw, err = r.git(ctx, "show", "--format=", "--patch", sha)
	}
	if err != nil {
		return nil, err
	}

	diff, err := buildDiff(raw)
	if err != nil {
		return nil, err
	}
	out.Diff = diff
	return out, nil
}

// DiffBetween returns the diff from base to head.
func (r *Repo) DiffBetween(ctx context.Context, base, head string) (*Diff, error) {
	if err := validation.ValidateCommitSHA(base); err != nil {
		return nil, err
	}
	if err := validation.ValidateCommitSHA(head); err != nil {
		return nil, err
	}

	raw, err := r.git(ctx, "diff", "-M", base, head)
	if err != nil {
		return nil, err
	}
	diff, err := buildDiff(raw)
	if err != nil {
		return nil, err
	}
	return &diff, nil
}

// ChangedFiles lists the paths touched between base and head.
func (r *Repo) ChangedFiles(ctx context.Context, base, head string) ([]string, error) {
	if err := validation.ValidateCommitSHA(base); err != nil {
		return nil, err
	}
	if err := validation.ValidateCommitSHA(head); err != nil {
		return nil, err
	}

	out, err := r.git(ctx, "diff", "--name-only", base, head)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// CommitMessage returns the commit's full message.
func (r *Repo) CommitMessage(ctx context.Context, sha string) (string, error) {
	if err := validation.ValidateCommitSHA(sha); err != nil {
		return "", err
	}
	out, err := r.git(ctx, "show", "-s", "--format=%B", sha)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// git runs one git subprocess rooted at the repository.
func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	full := append([]string{"-C", r.root}, args...)
	cmd := exec.CommandContext(cmdCtx, "git", full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if cmdCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("git %s: timed out after %s", args[0], gitTimeout)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", classifyGitError(args[0], stderr.String(), err)
	}
	return stdout.String(), nil
}

// classifyGitError maps git stderr onto the package sentinels.
func classifyGitError(op, stderr string, err error) error {
	msg := strings.ToLower(stderr)
	switch {
	case strings.Contains(msg, "not a git repository"):
		return fmt.Errorf("git %s: %w", op, ErrNotARepository)
	case strings.Contains(msg, "unknown revision"),
		strings.Contains(msg, "bad revision"),
		strings.Contains(msg, "bad object"),
		strings.Contains(msg, "ambiguous argument"):
		return fmt.Errorf("git %s: %w", op, ErrCommitNotFound)
	}
	return fmt.Errorf("git %s: %w: %s", op, err, strings.TrimSpace(stderr))
}
