// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gitdiff

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_FiresOnCommit(t *testing.T) {
	requireGit(t)

	dir := initRepo(t)
	commitFile(t, dir, "train.py", "lr = 0.01\n", "initial")

	fired := make(chan struct{}, 1)
	w, err := NewWatcher(dir, 50*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Start(ctx)

	// Give the event loop time to register its watches.
	time.Sleep(200 * time.Millisecond)

	commitFile(t, dir, "train.py", "lr = 0.001\n", "tune")

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not fire after a commit")
	}
}

func TestWatcher_RequiresCallback(t *testing.T) {
	if _, err := NewWatcher(t.TempDir(), 0, nil); err == nil {
		t.Error("expected error for nil callback")
	}
}

func TestNewWatcher_NotARepository(t *testing.T) {
	_, err := NewWatcher(t.TempDir(), 0, func() {})
	if !errors.Is(err, ErrNotARepository) {
		t.Errorf("error = %v, want ErrNotARepository", err)
	}
}

func TestResolveGitDir_Worktree(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real", ".git", "worktrees", "feature")
	gitFile := filepath.Join(dir, ".git")
	if err := os.WriteFile(gitFile, []byte("gitdir: "+target+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := resolveGitDir(dir)
	if err != nil {
		t.Fatalf("resolveGitDir: %v", err)
	}
	if got != target {
		t.Errorf("gitdir = %s, want %s", got, target)
	}
}

func TestResolveGitDir_Directory(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	if err := os.MkdirAll(gitDir, 0o750); err != nil {
		t.Fatal(err)
	}

	got, err := resolveGitDir(dir)
	if err != nil {
		t.Fatalf("resolveGitDir: %v", err)
	}
	if got != gitDir {
		t.Errorf("gitdir = %s, want %s", got, gitDir)
	}
}
