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
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last
// filesystem event before firing. Commits touch several files under
// .git in quick succession.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a repository's .git directory for new commits and
// branch switches.
//
// # Description
//
// Detects when HEAD or a branch ref changes (a commit, a checkout, a
// pull from another terminal) and invokes the callback once per burst
// of events. The dashboard uses this to invalidate cached diffs and
// re-run code attribution.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type Watcher struct {
	gitDir   string
	debounce time.Duration
	onChange func()
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the repository rooted at repoRoot.
//
// # Inputs
//
//   - repoRoot: Path to the work tree (the directory holding .git).
//   - debounce: Quiet period before the callback fires; <= 0 uses
//     DefaultDebounce.
//   - onChange: Required callback invoked after each event burst.
func NewWatcher(repoRoot string, debounce time.Duration, onChange func()) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("onChange callback is required")
	}
	gitDir, err := resolveGitDir(repoRoot)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		gitDir:   gitDir,
		debounce: debounce,
		onChange: onChange,
		watcher:  fw,
	}, nil
}

// Start begins watching. Blocks until the context is cancelled, so it
// should be run in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	headPath := filepath.Join(w.gitDir, "HEAD")
	if err := w.watcher.Add(headPath); err != nil {
		slog.Warn("Failed to watch .git/HEAD",
			"path", headPath,
			"error", err)
	}

	// Branch refs update on every commit.
	refsPath := filepath.Join(w.gitDir, "refs", "heads")
	if _, err := os.Stat(refsPath); err == nil {
		if err := w.watcher.Add(refsPath); err != nil {
			slog.Debug("Failed to watch refs/heads",
				"path", refsPath,
				"error", err)
		}
	}

	// packed-refs rewrites after git gc.
	packedRefs := filepath.Join(w.gitDir, "packed-refs")
	if _, err := os.Stat(packedRefs); err == nil {
		if err := w.watcher.Add(packedRefs); err != nil {
			slog.Debug("Failed to watch packed-refs",
				"path", packedRefs,
				"error", err)
		}
	}

	slog.Debug("Started watching git refs",
		"git_dir", w.gitDir,
		"debounce", w.debounce)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Git watcher error",
				"error", err)

		case <-ctx.Done():
			slog.Debug("Git watcher stopping")
			w.cancelPending()
			return
		}
	}
}

// handleEvent schedules the debounced callback for relevant events.
// Ref updates land as atomic renames, so creates and renames count as
// much as writes.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	// Lock files churn on every git operation without meaning a ref
	// changed.
	if strings.HasSuffix(event.Name, ".lock") {
		return
	}

	slog.Debug("Git ref changed",
		"path", event.Name,
		"op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Stop stops the watcher and releases resources. Safe to call more
// than once.
func (w *Watcher) Stop() error {
	w.cancelPending()
	return w.watcher.Close()
}

// resolveGitDir finds the actual .git directory for a work tree.
// Worktrees have a .git file pointing at the real directory instead of
// the directory itself.
func resolveGitDir(repoRoot string) (string, error) {
	gitPath := filepath.Join(repoRoot, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return "", ErrNotARepository
	}
	if info.IsDir() {
		return gitPath, nil
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(content))
	const prefix = "gitdir: "
	if !strings.HasPrefix(line, prefix) {
		return "", os.ErrInvalid
	}
	return strings.TrimPrefix(line, prefix), nil
}
