// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gitdiff

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// buildDiff parses raw unified diff text into per-file stats.
func buildDiff(raw string) (Diff, error) {
	out := Diff{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(raw)).ReadAllFiles()
	if err != nil {
		return Diff{}, fmt.Errorf("parsing diff: %w", err)
	}

	out.Files = make([]FileChange, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		change := fileChange(fd)
		out.Added += change.Added
		out.Removed += change.Removed
		out.Files = append(out.Files, change)
	}
	return out, nil
}

// fileChange flattens one parsed file diff into a FileChange.
func fileChange(fd *diff.FileDiff) FileChange {
	orig := stripDiffPrefix(fd.OrigName)
	next := stripDiffPrefix(fd.NewName)

	var change FileChange
	switch {
	case fd.OrigName == "/dev/null":
		change.Status = StatusAdded
		change.Path = next
	case fd.NewName == "/dev/null":
		change.Status = StatusDeleted
		change.Path = orig
	case orig != next:
		change.Status = StatusRenamed
		change.Path = next
		change.OldPath = orig
	default:
		change.Status = StatusModified
		change.Path = next
	}

	for _, hunk := range fd.Hunks {
		for _, line := range strings.Split(string(hunk.Body), "\n") {
			switch {
			case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
				change.Added++
			case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
				change.Removed++
			}
		}
	}
	return change
}

// stripDiffPrefix removes the a/ or b/ prefix git puts on diff paths.
func stripDiffPrefix(name string) string {
	name = strings.TrimPrefix(name, "a/")
	return strings.TrimPrefix(name, "b/")
}
