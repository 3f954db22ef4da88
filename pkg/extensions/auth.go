// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnauthorized is returned when a token is missing, malformed, or
// fails validation. The dashboard middleware translates it to HTTP 401.
//
// Implementations should wrap this error so callers can classify with
// errors.Is:
//
//	return nil, fmt.Errorf("token expired: %w", ErrUnauthorized)
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo describes an authenticated caller.
//
// The dashboard middleware stores AuthInfo in the request context after
// a successful Validate, and handlers read it back to attribute audit
// events and scope queries.
//
// Example:
//
//	info := &AuthInfo{
//	    UserID: "researcher-1",
//	    Email:  "researcher@lab.example",
//	    Roles:  []string{"user"},
//	}
type AuthInfo struct {
	// UserID uniquely identifies the caller. Required.
	UserID string

	// Email is the caller's email address, if the provider knows it.
	Email string

	// Roles lists the caller's role names (e.g., "admin", "user",
	// "viewer"). Authorization decisions key off these.
	Roles []string

	// Metadata holds provider-specific attributes (team, token label,
	// identity-provider claims) for logging and audit.
	Metadata Metadata
}

// HasRole reports whether the caller holds the named role.
//
// Matching is exact and case-sensitive.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates bearer tokens for the dashboard API.
//
// Implementations must be safe for concurrent use; the middleware calls
// Validate on every authenticated request.
//
// # Local Behavior
//
// The default NopAuthProvider accepts every token and returns a local
// admin identity. This fits the single-user deployment where the
// dashboard binds to localhost.
//
// # Shared Deployments
//
// Set RUNLENS_API_TOKENS and install a TokenAuthProvider to require a
// known bearer token per caller. Hosted deployments can supply their
// own implementation backed by an identity provider.
type AuthProvider interface {
	// Validate checks the token and returns the caller's identity.
	//
	// Returns an error wrapping ErrUnauthorized when the token is
	// invalid; any other error indicates a provider failure (and is
	// also treated as a denial by the middleware).
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest describes an action to authorize.
//
// Example:
//
//	req := AuthzRequest{
//	    User:         authInfo,
//	    Action:       "analyze",
//	    ResourceType: "project",
//	    ResourceID:   "runlens/mnist",
//	}
type AuthzRequest struct {
	// User is the authenticated caller.
	User *AuthInfo

	// Action is the operation being attempted.
	// Common values: "read", "analyze", "generate", "export".
	Action string

	// ResourceType categorizes the target: "run", "project",
	// "analysis", "insight", "diff", "report".
	ResourceType string

	// ResourceID names the specific resource, when there is one.
	ResourceID string
}

// AuthzProvider decides whether an authenticated caller may perform an
// action. Implementations must be safe for concurrent use.
type AuthzProvider interface {
	// Authorize returns nil to allow the request, or an error wrapping
	// ErrUnauthorized to deny it.
	Authorize(ctx context.Context, req AuthzRequest) error
}

// =============================================================================
// No-op Implementations (local single-user default)
// =============================================================================

// NopAuthProvider accepts every token and returns a local admin
// identity. This is the default for localhost deployments.
//
// Thread-safe: no mutable state.
type NopAuthProvider struct{}

// Validate always succeeds with UserID "local-user" and the admin role.
func (p *NopAuthProvider) Validate(ctx context.Context, token string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

// NopAuthzProvider allows every action.
//
// Thread-safe: no mutable state.
type NopAuthzProvider struct{}

// Authorize always returns nil.
func (p *NopAuthzProvider) Authorize(ctx context.Context, req AuthzRequest) error {
	return nil
}

// =============================================================================
// Static Token Provider
// =============================================================================

// TokenAuthProvider validates bearer tokens against a static set.
//
// Tokens are stored as SHA-256 digests, so the provider never holds
// plaintext secrets after construction and lookups do not leak token
// prefixes through comparison timing.
//
// Build one from explicit tokens:
//
//	provider := extensions.NewTokenAuthProvider(map[string]extensions.AuthInfo{
//	    "s3cret-token": {UserID: "alice", Roles: []string{"user"}},
//	})
//
// or from the environment (see NewTokenAuthProviderFromEnv).
type TokenAuthProvider struct {
	// byDigest maps hex(SHA-256(token)) to the identity it grants.
	byDigest map[string]AuthInfo
}

// NewTokenAuthProvider builds a provider from plaintext tokens mapped
// to the identity each grants. The plaintext keys are hashed
// immediately and not retained.
func NewTokenAuthProvider(tokens map[string]AuthInfo) *TokenAuthProvider {
	p := &TokenAuthProvider{byDigest: make(map[string]AuthInfo, len(tokens))}
	for token, info := range tokens {
		p.byDigest[hashToken(token)] = info
	}
	return p
}

// NewTokenAuthProviderFromEnv builds a provider from the
// RUNLENS_API_TOKENS environment variable.
//
// The value is a comma-separated list of entries, each either
// "user:token" or a bare "token" (which authenticates as "api-client").
// All identities receive the "user" role.
//
//	RUNLENS_API_TOKENS="alice:tok-a1,bob:tok-b2,tok-shared"
//
// Returns an error when the variable is unset, empty, or contains an
// entry with an empty user or token.
func NewTokenAuthProviderFromEnv() (*TokenAuthProvider, error) {
	raw := strings.TrimSpace(os.Getenv("RUNLENS_API_TOKENS"))
	if raw == "" {
		return nil, errors.New("RUNLENS_API_TOKENS is not set")
	}

	tokens := make(map[string]AuthInfo)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		user := "api-client"
		token := entry
		if idx := strings.IndexByte(entry, ':'); idx >= 0 {
			user = strings.TrimSpace(entry[:idx])
			token = strings.TrimSpace(entry[idx+1:])
		}
		if user == "" || token == "" {
			return nil, fmt.Errorf("malformed RUNLENS_API_TOKENS entry %q", entry)
		}

		tokens[token] = AuthInfo{
			UserID: user,
			Roles:  []string{"user"},
		}
	}
	if len(tokens) == 0 {
		return nil, errors.New("RUNLENS_API_TOKENS contains no tokens")
	}
	return NewTokenAuthProvider(tokens), nil
}

// Validate hashes the presented token and looks it up.
func (p *TokenAuthProvider) Validate(ctx context.Context, token string) (*AuthInfo, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", ErrUnauthorized)
	}
	info, ok := p.byDigest[hashToken(token)]
	if !ok {
		return nil, fmt.Errorf("unknown token: %w", ErrUnauthorized)
	}
	// Copy so callers cannot mutate the provider's table.
	out := info
	out.Roles = append([]string(nil), info.Roles...)
	return &out, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Compile-time interface compliance checks.
var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthProvider  = (*TokenAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)
