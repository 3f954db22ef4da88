// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the dashboard's HTTP endpoints: run
// browsing, the clustering analysis pipeline, LLM insights, commit
// diffs, and metric-history export.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runlens-ai/runlens/pkg/extensions"
	"github.com/runlens-ai/runlens/pkg/resilience"
	"github.com/runlens-ai/runlens/services/analysis"
	"github.com/runlens-ai/runlens/services/dashboard/observability"
	"github.com/runlens-ai/runlens/services/gitdiff"
)

// errBadRequest marks caller mistakes detected at the HTTP boundary:
// unparseable bodies, failed field validation, out-of-range knobs.
var errBadRequest = errors.New("invalid request")

// errValidation wraps a validation failure so it maps to 400.
func errValidation(err error) error {
	return fmt.Errorf("%w: %s", errBadRequest, err)
}

// errValidationf builds a 400-mapped error from a format string.
func errValidationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "dashboard",
	})
}

// statusFromError maps a pipeline or upstream error to an HTTP status
// and a metrics error code. The mapping mirrors the error taxonomy:
// caller mistakes are 4xx, upstream trouble is 5xx, and transient
// exhaustion surfaces as a gateway failure rather than leaking retry
// internals.
func statusFromError(err error) (int, observability.ErrorCode) {
	var exhausted *resilience.ExhaustedError

	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, analysis.ErrValidation):
		return http.StatusBadRequest, observability.ErrorCodeValidation
	case errors.Is(err, analysis.ErrClustering):
		return http.StatusUnprocessableEntity, observability.ErrorCodeValidation
	case errors.Is(err, extensions.ErrPromptBlocked):
		return http.StatusUnprocessableEntity, observability.ErrorCodeValidation
	case errors.Is(err, resilience.ErrNotFound),
		errors.Is(err, gitdiff.ErrCommitNotFound):
		return http.StatusNotFound, observability.ErrorCodeNotFound
	case errors.Is(err, resilience.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, observability.ErrorCodeTimeout
	case errors.Is(err, resilience.ErrAuthentication),
		errors.Is(err, resilience.ErrRateLimited),
		errors.Is(err, resilience.ErrConnection),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.As(err, &exhausted):
		return http.StatusBadGateway, observability.ErrorCodeUpstream
	case errors.Is(err, gitdiff.ErrNotARepository):
		return http.StatusInternalServerError, observability.ErrorCodeGitError
	default:
		return http.StatusInternalServerError, observability.ErrorCodeInternal
	}
}

// abortWithError writes the error response and records request and
// error metrics under the given endpoint.
func abortWithError(c *gin.Context, endpoint observability.Endpoint, err error) {
	status, code := statusFromError(err)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, false)
		m.RecordError(endpoint, code)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// recordSuccess counts one successful request on the endpoint.
func recordSuccess(endpoint observability.Endpoint) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, true)
	}
}

// observeStage records one pipeline stage's elapsed time.
func observeStage(stage string, start time.Time) {
	if m := observability.DefaultMetrics; m != nil {
		m.ObserveStage(stage, time.Since(start).Seconds())
	}
}
