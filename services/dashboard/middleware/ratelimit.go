// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/runlens-ai/runlens/services/dashboard/observability"
)

// Inbound limiter defaults. Analysis requests fan out into
// tracking-server calls, so the cap here is deliberately lower than
// the outbound budget in pkg/ratelimit.
const (
	// DefaultRequestsPerSecond is the sustained inbound request rate.
	DefaultRequestsPerSecond = 20

	// DefaultBurst is how many requests may arrive back to back before
	// the sustained rate applies.
	DefaultBurst = 40
)

// RateLimitMiddleware creates a Gin middleware that caps the inbound
// request rate with a shared token bucket.
//
// # Description
//
// Every request reserves one token. When the bucket is empty the
// request is rejected with 429 and a Retry-After header derived from
// the reservation delay, and the rejection is counted on the
// rate_limited_total metric under the given endpoint label.
//
// The bucket is shared across all clients. The dashboard fronts a
// single tracking server, so the resource being protected is global;
// per-client fairness is not a goal here.
//
// # Inputs
//
//   - endpoint: Metrics label for rejections.
//   - rps: Sustained requests per second. Zero or negative selects
//     DefaultRequestsPerSecond.
//   - burst: Bucket capacity. Zero or negative selects DefaultBurst.
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.RateLimitMiddleware(observability.EndpointRuns, 0, 0))
//
// # Thread Safety
//
// Thread-safe. rate.Limiter handles its own locking.
func RateLimitMiddleware(endpoint observability.Endpoint, rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		reservation := limiter.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			// Return the token; the client is told to come back, not
			// queued.
			reservation.Cancel()

			seconds := int(math.Ceil(delay.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))

			if m := observability.DefaultMetrics; m != nil {
				m.RecordRateLimited(endpoint)
			}

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": seconds,
			})
			return
		}

		c.Next()
	}
}
