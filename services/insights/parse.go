// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package insights

import (
	"encoding/json"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Diff budget for a single prompt. Oversized diffs are re-split at
// hunk boundaries and cut to this many bytes.
const (
	diffPromptBudget = 12000
	diffChunkSize    = 4000
	diffChunkOverlap = 200
)

// diffSeparators orders split points from whole-file boundaries down
// to single lines, so truncation lands between hunks instead of
// mid-line.
var diffSeparators = []string{"\ndiff --git ", "\n@@ ", "\n", " ", ""}

// parseAnalysis decodes a model response into an Analysis. Responses
// wrapped in prose still parse as long as they carry a JSON object;
// everything else becomes a text-only Analysis.
func parseAnalysis(raw string) *Analysis {
	if obj, ok := extractJSONObject(raw); ok {
		var out Analysis
		if json.Unmarshal([]byte(obj), &out) == nil {
			return &out
		}
	}
	return &Analysis{
		Summary:  truncate(raw, 200),
		Insights: []string{raw},
	}
}

// extractJSONObject returns the substring from the first '{' to the
// last '}'. Models habitually wrap JSON in commentary.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// extractJSONArray returns the substring from the first '[' to the
// last ']'.
func extractJSONArray(s string) (string, bool) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// fitDiffToBudget returns a prompt-sized view of the diff and whether
// anything was cut. Diffs over budget are split recursively at file
// and hunk boundaries and reassembled until the budget is spent.
func fitDiffToBudget(diff string) (string, bool) {
	if len(diff) <= diffPromptBudget {
		return diff, false
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(diffChunkSize),
		textsplitter.WithChunkOverlap(diffChunkOverlap),
		textsplitter.WithSeparators(diffSeparators),
	)
	chunks, err := splitter.SplitText(diff)
	if err != nil || len(chunks) == 0 {
		return diff[:diffPromptBudget], true
	}

	var b strings.Builder
	for _, chunk := range chunks {
		if b.Len()+len(chunk) > diffPromptBudget {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n...\n")
		}
		b.WriteString(chunk)
	}
	if b.Len() == 0 {
		return diff[:diffPromptBudget], true
	}
	return b.String(), true
}
