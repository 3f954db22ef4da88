// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable seams of the runlens
// dashboard: authentication, authorization, audit logging, and prompt
// filtering.
//
// The local single-user build uses no-op defaults for everything, so
// the dashboard works out of the box on localhost with no setup.
// Shared or hosted deployments swap in real implementations without
// touching the core packages.
//
// # Extension Categories
//
//   - auth.go: bearer-token validation and authorization
//     (AuthProvider, AuthzProvider, TokenAuthProvider)
//   - audit.go: audit trail for analyses and data access
//     (AuditLogger, SlogAuditLogger)
//   - filter.go: secret redaction on LLM prompts and responses
//     (PromptFilter, RedactingPromptFilter)
//
// # Usage
//
// Local default:
//
//	opts := extensions.DefaultOptions()
//
// Shared deployment:
//
//	provider, err := extensions.NewTokenAuthProviderFromEnv()
//	if err != nil {
//	    return err
//	}
//	opts := extensions.DefaultOptions().
//	    WithAuth(provider).
//	    WithAudit(extensions.NewSlogAuditLogger(logger))
//
// # Thread Safety
//
// All implementations must be safe for concurrent use; the dashboard
// calls them from request handlers.
package extensions

// ServiceOptions groups the extension points a service accepts.
//
// All fields are optional: DefaultOptions fills each with a no-op, and
// services treat a nil field as the corresponding no-op.
type ServiceOptions struct {
	// AuthProvider validates bearer tokens.
	// Default: NopAuthProvider (every token maps to a local admin).
	AuthProvider AuthProvider

	// AuthzProvider checks whether a caller may perform an action.
	// Default: NopAuthzProvider (everything allowed).
	AuthzProvider AuthzProvider

	// AuditLogger records analyses, data access, and auth failures.
	// Default: NopAuditLogger (events discarded).
	AuditLogger AuditLogger

	// PromptFilter redacts secrets from LLM prompts and responses.
	// Default: NopPromptFilter (text passes through unchanged).
	PromptFilter PromptFilter
}

// DefaultOptions returns ServiceOptions with no-op defaults, the
// configuration of the local single-user build.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:  &NopAuthProvider{},
		AuthzProvider: &NopAuthzProvider{},
		AuditLogger:   &NopAuditLogger{},
		PromptFilter:  &NopPromptFilter{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
// Useful for fluent configuration.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithFilter returns a copy of opts with the given PromptFilter.
func (opts ServiceOptions) WithFilter(filter PromptFilter) ServiceOptions {
	opts.PromptFilter = filter
	return opts
}
