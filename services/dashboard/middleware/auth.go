// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the dashboard service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it with the configured AuthProvider, and stores the
// resulting AuthInfo in the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AuthInfo in context
//	           │
//	           ▼
//	       Handler (retrieves via GetAuthInfo)
//
// # Local Behavior
//
// With the default NopAuthProvider every request authenticates as
// "local-user" with admin privileges, so a laptop deployment needs no
// auth setup. Setting RUNLENS_API_TOKENS swaps in the token provider
// and rejected requests also produce an "auth.failed" audit event.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/runlens-ai/runlens/pkg/extensions"
)

// =============================================================================
// Context Keys
// =============================================================================

// authInfoKey is the context key for storing AuthInfo.
// Using a dedicated key prevents collisions with other context values.
const authInfoKey = "runlens_auth_info"

// =============================================================================
// Context Helpers
// =============================================================================

// SetAuthInfo stores the authenticated user info in the Gin context.
// Called by AuthMiddleware after successful authentication; handlers
// read it back via GetAuthInfo. Request-scoped, so concurrent requests
// never see each other's identity.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated user info from the Gin
// context. Returns nil when the request was not authenticated or the
// stored value has the wrong type.
//
// Example:
//
//	func (h *handler) Analyze(c *gin.Context) {
//	    user := middleware.GetAuthInfo(c)
//	    // user.UserID feeds the audit trail
//	}
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// UserID returns the authenticated user's ID, or "anonymous" when the
// request carries no identity. Handlers use it to stamp audit events.
func UserID(c *gin.Context) string {
	if info := GetAuthInfo(c); info != nil && info.UserID != "" {
		return info.UserID
	}
	return "anonymous"
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// # Description
//
// Extracts the bearer token from the Authorization header, validates it
// with the provider, and stores the resulting AuthInfo in the context.
// Validation failures abort with 401; failures wrapping
// extensions.ErrUnauthorized report "unauthorized", anything else
// (provider outage, network) reports "authentication failed" without
// leaking the cause.
//
// A rejected request is also recorded on the audit logger as an
// "auth.failed" event. Pass nil to skip audit logging.
//
// # Token Extraction
//
// Expects "Authorization: Bearer <token>". A missing or malformed
// header yields an empty token, which NopAuthProvider accepts and
// TokenAuthProvider rejects.
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.AuthMiddleware(opts.AuthProvider, opts.AuditLogger))
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func AuthMiddleware(provider extensions.AuthProvider, audit extensions.AuditLogger) gin.HandlerFunc {
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			audit.Log(c.Request.Context(), extensions.AuditEvent{
				EventType: "auth.failed",
				Action:    c.Request.Method + " " + c.FullPath(),
				Outcome:   "denied",
			})
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			// Provider failures are indistinguishable from bad tokens
			// to the client.
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken extracts the token from the Authorization header.
// Returns empty string when the header is missing or not a Bearer
// scheme. The scheme is case-insensitive per RFC 7235 and surrounding
// whitespace is trimmed from the token.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
