// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Tests for commit diff reading. Parse tests run everywhere; tests
// that need a real repository skip when git is not installed.
package gitdiff

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
)

// --- Helpers ---

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test",
		"GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=Test",
		"GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	return dir
}

func commitFile(t *testing.T, dir, name, content, message string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", message)
	return runGit(t, dir, "rev-parse", "HEAD")
}

func findFile(t *testing.T, files []FileChange, path string) FileChange {
	t.Helper()
	for _, f := range files {
		if f.Path == path {
			return f
		}
	}
	t.Fatalf("no change for %s in %+v", path, files)
	return FileChange{}
}

// --- Diff Parsing ---

const sampleDiff = `diff --git a/train.py b/train.py
index 83db48f..bf269f4 100644
--- a/train.py
+++ b/train.py
@@ -1,3 +1,4 @@
 import torch
-lr = 0.01
+lr = 0.001
+warmup = 100
 epochs = 10
diff --git a/model.py b/model.py
new file mode 100644
index 0000000..9ae3bc4
--- /dev/null
+++ b/model.py
@@ -0,0 +1,2 @@
+import torch.nn as nn
+model = nn.Linear(4, 2)
`

func TestBuildDiff_Stats(t *testing.T) {
	got, err := buildDiff(sampleDiff)
	if err != nil {
		t.Fatalf("buildDiff: %v", err)
	}

	if len(got.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(got.Files))
	}
	train := findFile(t, got.Files, "train.py")
	if train.Status != StatusModified || train.Added != 2 || train.Removed != 1 {
		t.Errorf("train.py = %+v, want modified +2 -1", train)
	}
	model := findFile(t, got.Files, "model.py")
	if model.Status != StatusAdded || model.Added != 2 || model.Removed != 0 {
		t.Errorf("model.py = %+v, want added +2 -0", model)
	}
	if got.Added != 4 || got.Removed != 1 {
		t.Errorf("totals = +%d -%d, want +4 -1", got.Added, got.Removed)
	}
	if got.Raw != sampleDiff {
		t.Error("raw diff should be preserved")
	}
}

const renameDiff = `diff --git a/old_name.py b/new_name.py
similarity index 90%
rename from old_name.py
rename to new_name.py
index 1234567..89abcde 100644
--- a/old_name.py
+++ b/new_name.py
@@ -1,2 +1,2 @@
 import torch
-x = 1
+x = 2
diff --git a/scratch.py b/scratch.py
deleted file mode 100644
index 9ae3bc4..0000000
--- a/scratch.py
+++ /dev/null
@@ -1 +0,0 @@
-print("bye")
`

func TestBuildDiff_RenameAndDelete(t *testing.T) {
	got, err := buildDiff(renameDiff)
	if err != nil {
		t.Fatalf("buildDiff: %v", err)
	}

	renamed := findFile(t, got.Files, "new_name.py")
	if renamed.Status != StatusRenamed {
		t.Errorf("status = %s, want renamed", renamed.Status)
	}
	if renamed.OldPath != "old_name.py" {
		t.Errorf("OldPath = %q, want old_name.py", renamed.OldPath)
	}
	deleted := findFile(t, got.Files, "scratch.py")
	if deleted.Status != StatusDeleted || deleted.Removed != 1 {
		t.Errorf("scratch.py = %+v, want deleted -1", deleted)
	}
}

func TestBuildDiff_Empty(t *testing.T) {
	got, err := buildDiff("")
	if err != nil {
		t.Fatalf("buildDiff: %v", err)
	}
	if len(got.Files) != 0 || got.Added != 0 || got.Removed != 0 {
		t.Errorf("empty diff produced %+v", got)
	}
}

// --- Repository Operations ---

func TestNewRepo_NotARepository(t *testing.T) {
	requireGit(t)

	_, err := NewRepo(t.TempDir())
	if !errors.Is(err, ErrNotARepository) {
		t.Errorf("error = %v, want ErrNotARepository", err)
	}
}

func TestNewRepo_ResolvesTopLevel(t *testing.T) {
	requireGit(t)

	dir := initRepo(t)
	sub := filepath.Join(dir, "src", "models")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}

	repo, err := NewRepo(sub)
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}

	wantRoot, _ := filepath.EvalSymlinks(dir)
	gotRoot, _ := filepath.EvalSymlinks(repo.Root())
	if gotRoot != wantRoot {
		t.Errorf("Root() = %s, want %s", gotRoot, wantRoot)
	}
}

func TestCommitDiff_RootCommit(t *testing.T) {
	requireGit(t)

	dir := initRepo(t)
	sha := commitFile(t, dir, "train.py", "lr = 0.01\nepochs = 10\n", "initial training script")

	repo, err := NewRepo(dir)
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	got, err := repo.CommitDiff(context.Background(), sha)
	if err != nil {
		t.Fatalf("CommitDiff: %v", err)
	}

	if got.SHA != sha {
		t.Errorf("SHA = %s, want %s", got.SHA, sha)
	}
	if got.Message != "initial training script" {
		t.Errorf("Message = %q", got.Message)
	}
	if got.Author != "Test" {
		t.Errorf("Author = %q, want Test", got.Author)
	}
	if got.AuthoredAt.IsZero() {
		t.Error("AuthoredAt should be set")
	}

	change := findFile(t, got.Files, "train.py")
	if change.Status != StatusAdded || change.Added != 2 {
		t.Errorf("train.py = %+v, want added +2", change)
	}
}

func TestCommitDiff_TracksChanges(t *testing.T) {
	requireGit(t)

	dir := initRepo(t)
	commitFile(t, dir, "train.py", "lr = 0.01\n", "initial")
	if err := os.WriteFile(filepath.Join(dir, "model.py"), []byte("import torch\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	second := commitFile(t, dir, "train.py", "lr = 0.001\n", "lower learning rate")

	repo, err := NewRepo(dir)
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	got, err := repo.CommitDiff(context.Background(), second)
	if err != nil {
		t.Fatalf("CommitDiff: %v", err)
	}

	if len(got.Files) != 2 {
		t.Fatalf("files = %d, want 2: %+v", len(got.Files), got.Files)
	}
	train := findFile(t, got.Files, "train.py")
	if train.Status != StatusModified || train.Added != 1 || train.Removed != 1 {
		t.Errorf("train.py = %+v, want modified +1 -1", train)
	}
	model := findFile(t, got.Files, "model.py")
	if model.Status != StatusAdded || model.Added != 1 {
		t.Errorf("model.py = %+v, want added +1", model)
	}
}

func TestCommitDiff_UnknownCommit(t *testing.T) {
	requireGit(t)

	dir := initRepo(t)
	commitFile(t, dir, "train.py", "lr = 0.01\n", "initial")

	repo, err := NewRepo(dir)
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	_, err = repo.CommitDiff(context.Background(), "deadbeefcafe")
	if !errors.Is(err, ErrCommitNotFound) {
		t.Errorf("error = %v, want ErrCommitNotFound", err)
	}
}

func TestCommitDiff_RejectsInvalidSHA(t *testing.T) {
	requireGit(t)

	dir := initRepo(t)
	commitFile(t, dir, "train.py", "x = 1\n", "initial")

	repo, err := NewRepo(dir)
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	for _, sha := range []string{"--help", "HEAD", "main", "abc"} {
		if _, err := repo.CommitDiff(context.Background(), sha); err == nil {
			t.Errorf("CommitDiff(%q) should reject the identifier", sha)
		}
	}
}

func TestDiffBetween(t *testing.T) {
	requireGit(t)

	dir := initRepo(t)
	first := commitFile(t, dir, "train.py", "lr = 0.01\n", "initial")
	second := commitFile(t, dir, "train.py", "lr = 0.001\nwarmup = 100\n", "tune")

	repo, err := NewRepo(dir)
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	got, err := repo.DiffBetween(context.Background(), first, second)
	if err != nil {
		t.Fatalf("DiffBetween: %v", err)
	}

	if got.Added != 2 || got.Removed != 1 {
		t.Errorf("totals = +%d -%d, want +2 -1", got.Added, got.Removed)
	}
	if !strings.Contains(got.Raw, "diff --git") {
		t.Error("raw diff should carry the git diff text")
	}
}

func TestChangedFiles(t *testing.T) {
	requireGit(t)

	dir := initRepo(t)
	first := commitFile(t, dir, "train.py", "lr = 0.01\n", "initial")
	if err := os.WriteFile(filepath.Join(dir, "model.py"), []byte("import torch\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	second := commitFile(t, dir, "train.py", "lr = 0.001\n", "tune")

	repo, err := NewRepo(dir)
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	got, err := repo.ChangedFiles(context.Background(), first, second)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}

	sort.Strings(got)
	want := []string{"model.py", "train.py"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("files = %v, want %v", got, want)
	}
}

func TestCommitMessage(t *testing.T) {
	requireGit(t)

	dir := initRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "train.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "tune dropout", "-m", "raises validation accuracy by two points")
	sha := runGit(t, dir, "rev-parse", "HEAD")

	repo, err := NewRepo(dir)
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	got, err := repo.CommitMessage(context.Background(), sha)
	if err != nil {
		t.Fatalf("CommitMessage: %v", err)
	}

	if !strings.HasPrefix(got, "tune dropout") {
		t.Errorf("message = %q, want subject first", got)
	}
	if !strings.Contains(got, "raises validation accuracy") {
		t.Errorf("message = %q, want body included", got)
	}
}
