// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for identifiers used in
// URLs, cache keys, and subprocess calls.
//
// Entity, project, and run identifiers come from user input and are
// interpolated into request paths and badger keys. Validating them up
// front prevents path traversal and malformed upstream requests.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches tracking-service identifiers: entities,
// projects, and run IDs. Leading alphanumeric, then letters, digits,
// dots, hyphens, underscores. Max length: 100 characters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,99}$`)

// metricPattern additionally allows slashes for namespaced metric
// names like "train/loss".
var metricPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._/\-]{0,99}$`)

// shaPattern matches full or abbreviated hex commit identifiers.
var shaPattern = regexp.MustCompile(`^[0-9a-fA-F]{4,64}$`)

func validateIdentifier(kind, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if !identifierPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q (must be 1-100 alphanumeric chars, dots, hyphens, or underscores)", kind, value)
	}
	return nil
}

// ValidateEntity validates a tracking-service entity (user or team)
// name before it is used in a request path.
//
// Example:
//
//	if err := validation.ValidateEntity(entity); err != nil {
//	    return nil, err
//	}
func ValidateEntity(entity string) error {
	return validateIdentifier("entity", entity)
}

// ValidateProject validates a project name.
func ValidateProject(project string) error {
	return validateIdentifier("project", project)
}

// ValidateRunID validates a run identifier.
func ValidateRunID(runID string) error {
	return validateIdentifier("run id", runID)
}

// ValidateRunPath validates an entity/project pair in one call.
// Returns the first validation failure.
func ValidateRunPath(entity, project string) error {
	if err := ValidateEntity(entity); err != nil {
		return err
	}
	return ValidateProject(project)
}

// ValidateMetricName validates a metric name used in history queries.
// Metric names may be namespaced with slashes ("train/loss").
func ValidateMetricName(metric string) error {
	if metric == "" {
		return fmt.Errorf("metric name cannot be empty")
	}
	if !metricPattern.MatchString(metric) {
		return fmt.Errorf("invalid metric name: %q", metric)
	}
	return nil
}

// ValidateCommitSHA validates a git commit identifier before it is
// passed to a git subprocess. Accepts abbreviated (>=4 hex chars) and
// full SHA-1/SHA-256 forms.
func ValidateCommitSHA(sha string) error {
	if sha == "" {
		return fmt.Errorf("commit sha cannot be empty")
	}
	if !shaPattern.MatchString(sha) {
		return fmt.Errorf("invalid commit sha: %q", sha)
	}
	return nil
}

// SanitizeRunID normalizes and validates a run identifier.
// Returns the trimmed run ID if valid.
//
//	id, err := validation.SanitizeRunID(userInput)
//	if err != nil {
//	    return err
//	}
func SanitizeRunID(runID string) (string, error) {
	normalized := strings.TrimSpace(runID)
	if err := ValidateRunID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
