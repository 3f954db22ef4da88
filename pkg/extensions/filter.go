// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
	"regexp"
)

// ErrPromptBlocked is returned when a filter rejects a prompt outright.
// Implementations should wrap this error with the reason.
var ErrPromptBlocked = errors.New("prompt blocked by filter")

// FilterResult is the outcome of one filter pass.
type FilterResult struct {
	// Original is the input text before filtering.
	Original string

	// Filtered is the text after redaction. Equals Original when
	// WasModified is false.
	Filtered string

	// WasModified indicates whether anything was redacted.
	WasModified bool

	// WasBlocked indicates the text was rejected entirely. When true,
	// Filtered must not be used and the caller should surface
	// ErrPromptBlocked.
	WasBlocked bool

	// BlockReason explains the rejection when WasBlocked is set.
	BlockReason string

	// Detections lists what the filter found, one entry per pattern.
	Detections []Detection
}

// Detection summarizes the matches of one filter pattern.
type Detection struct {
	// Type names the pattern: "api_key_field", "openai_key",
	// "aws_access_key", "github_token", "bearer_header".
	Type string

	// Action is what was done: "redacted" or "blocked".
	Action string

	// Count is how many matches the pattern produced.
	Count int
}

// PromptFilter transforms text crossing the LLM boundary.
//
// Run configs fetched from the tracking server regularly contain API
// keys, tokens, and credential paths. When those configs are embedded
// in analysis prompts, the filter keeps them from reaching a hosted
// model. Responses are filtered too in case the model echoes a secret
// back.
//
// Implementations must be safe for concurrent use.
//
// The local default is NopPromptFilter (no transformation).
// RedactingPromptFilter masks common secret shapes and is what the
// dashboard installs when RUNLENS_REDACT_PROMPTS is enabled.
type PromptFilter interface {
	// FilterPrompt processes a prompt before it is sent to the LLM.
	//
	// A WasBlocked result means the caller must not send the prompt
	// and should return ErrPromptBlocked.
	FilterPrompt(ctx context.Context, prompt string) (*FilterResult, error)

	// FilterResponse processes an LLM response before it is parsed or
	// returned to the user.
	FilterResponse(ctx context.Context, response string) (*FilterResult, error)
}

// NopPromptFilter passes text through unchanged. The default for
// local deployments talking to a local model.
//
// Thread-safe: no mutable state.
type NopPromptFilter struct{}

// FilterPrompt returns the prompt unchanged.
func (f *NopPromptFilter) FilterPrompt(ctx context.Context, prompt string) (*FilterResult, error) {
	return &FilterResult{Original: prompt, Filtered: prompt}, nil
}

// FilterResponse returns the response unchanged.
func (f *NopPromptFilter) FilterResponse(ctx context.Context, response string) (*FilterResult, error) {
	return &FilterResult{Original: response, Filtered: response}, nil
}

// =============================================================================
// Redacting Filter
// =============================================================================

// redactedPlaceholder replaces every matched secret.
const redactedPlaceholder = "[REDACTED]"

// secretPattern pairs a pattern name with its regexp and replacement
// template.
type secretPattern struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

// secretPatterns are the shapes the redacting filter masks.
//
// Bare hex strings are deliberately NOT matched: commit SHAs are
// 40-char hex and must survive into comparison prompts. A hex API key
// is still caught when it sits under a credential-named config field.
var secretPatterns = []secretPattern{
	{
		// JSON fields whose key names a credential: "api_key": "...".
		name:        "api_key_field",
		re:          regexp.MustCompile(`(?i)("[\w.-]*(?:api[_-]?key|token|secret|passw(?:or)?d|credential)[\w.-]*"\s*:\s*")([^"]+)(")`),
		replacement: "${1}" + redactedPlaceholder + "${3}",
	},
	{
		name:        "openai_key",
		re:          regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`),
		replacement: redactedPlaceholder,
	},
	{
		name:        "aws_access_key",
		re:          regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		replacement: redactedPlaceholder,
	},
	{
		name:        "github_token",
		re:          regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
		replacement: redactedPlaceholder,
	},
	{
		name:        "bearer_header",
		re:          regexp.MustCompile(`(?i)\b(bearer\s+)[A-Za-z0-9._~+/=-]{16,}`),
		replacement: "${1}" + redactedPlaceholder,
	},
}

// RedactingPromptFilter masks credential-shaped substrings in prompts
// and responses. It never blocks; WasBlocked is always false.
//
// Thread-safe: patterns are compiled once and immutable.
type RedactingPromptFilter struct{}

// NewRedactingPromptFilter returns a filter with the default pattern
// set.
func NewRedactingPromptFilter() *RedactingPromptFilter {
	return &RedactingPromptFilter{}
}

// FilterPrompt redacts secrets from the prompt.
func (f *RedactingPromptFilter) FilterPrompt(ctx context.Context, prompt string) (*FilterResult, error) {
	return f.redact(prompt), nil
}

// FilterResponse redacts secrets from the response.
func (f *RedactingPromptFilter) FilterResponse(ctx context.Context, response string) (*FilterResult, error) {
	return f.redact(response), nil
}

func (f *RedactingPromptFilter) redact(text string) *FilterResult {
	result := &FilterResult{
		Original: text,
		Filtered: text,
	}
	for _, pattern := range secretPatterns {
		matches := pattern.re.FindAllStringIndex(result.Filtered, -1)
		if len(matches) == 0 {
			continue
		}
		result.Filtered = pattern.re.ReplaceAllString(result.Filtered, pattern.replacement)
		result.WasModified = true
		result.Detections = append(result.Detections, Detection{
			Type:   pattern.name,
			Action: "redacted",
			Count:  len(matches),
		})
	}
	return result
}

// Compile-time interface compliance checks.
var (
	_ PromptFilter = (*NopPromptFilter)(nil)
	_ PromptFilter = (*RedactingPromptFilter)(nil)
)
