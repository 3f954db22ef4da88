// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent records one security- or data-relevant action.
//
// # Event Categories
//
// Events are categorized by type for filtering and alerting:
//   - Authentication: "auth.failed", "auth.denied"
//   - Data access: "data.runs", "data.history", "data.diff"
//   - Analysis: "analysis.cluster", "analysis.compare"
//   - Insights: "insight.generate", "insight.review"
//   - Export: "export.report"
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    "analysis.cluster",
//	    Timestamp:    time.Now().UTC(),
//	    UserID:       authInfo.UserID,
//	    Action:       "analyze",
//	    ResourceType: "project",
//	    ResourceID:   "runlens/mnist",
//	    Outcome:      "success",
//	    Metadata: Metadata{
//	        "runs": 48,
//	        "k":    3,
//	    },
//	}
type AuditEvent struct {
	// EventType categorizes the event, formatted "category.action".
	EventType string

	// Timestamp is when the event occurred (UTC). Implementations set
	// it to time.Now().UTC() when zero.
	Timestamp time.Time

	// UserID identifies who performed the action. Use "system" for
	// automated actions, "anonymous" when unknown.
	UserID string

	// Action is the operation attempted: "read", "analyze",
	// "generate", "export".
	Action string

	// ResourceType categorizes the resource: "run", "project",
	// "analysis", "insight", "diff", "report".
	ResourceType string

	// ResourceID names the specific resource instance (optional).
	ResourceID string

	// Outcome is "success", "failure", "blocked", or "error".
	Outcome string

	// Metadata holds event-specific details. Common keys: "error",
	// "client_ip", "duration_ms", "runs", "k", "backend".
	Metadata Metadata
}

// AuditFilter selects audit events for a Query. Zero-value fields are
// not applied; set fields combine with AND.
type AuditFilter struct {
	// EventTypes limits results to the listed types.
	EventTypes []string

	// UserID limits results to one user's events.
	UserID string

	// StartTime is the earliest timestamp to include (inclusive).
	StartTime time.Time

	// EndTime is the latest timestamp to include (exclusive).
	EndTime time.Time

	// ResourceType limits results to one resource category.
	ResourceType string

	// ResourceID limits results to one resource instance.
	ResourceID string

	// Outcome limits results to one outcome value.
	Outcome string

	// Limit caps the number of results; zero means the
	// implementation default.
	Limit int

	// Offset skips results for pagination.
	Offset int
}

// AuditLogger records audit events.
//
// Implementations must be safe for concurrent use and should return
// from Log quickly; the dashboard calls it on the request path.
//
// The local default is NopAuditLogger. SlogAuditLogger writes events
// to the structured log, which is enough for a single workstation.
// Hosted deployments can ship events to a SIEM or database instead.
type AuditLogger interface {
	// Log records one event. Implementations set Timestamp when zero.
	Log(ctx context.Context, event AuditEvent) error

	// Query returns events matching the filter, newest first.
	// Write-only implementations return an empty slice.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush persists buffered events; call before shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events. The default for local
// single-user deployments where no audit trail is wanted.
//
// Thread-safe: no mutable state.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

// Query returns an empty slice; nothing is stored.
func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush is a no-op.
func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// SlogAuditLogger writes events to a slog.Logger at Info level with a
// fixed "audit" message and the event fields as attributes. It is
// write-only: Query always returns empty.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger wraps logger; a nil logger uses slog.Default().
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger}
}

// Log writes the event as one structured log line.
func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	attrs := []any{
		"event_type", event.EventType,
		"event_time", event.Timestamp,
		"user_id", event.UserID,
		"action", event.Action,
		"resource_type", event.ResourceType,
		"resource_id", event.ResourceID,
		"outcome", event.Outcome,
	}
	for key, value := range event.Metadata {
		attrs = append(attrs, key, value)
	}
	l.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

// Query returns an empty slice; the log stream is the record.
func (l *SlogAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush is a no-op; slog writes are synchronous.
func (l *SlogAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// Compile-time interface compliance checks.
var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
