// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"context"
	"errors"
	"net"
)

// transienter is implemented by errors that carry their own retry
// classification. Service clients can mark bespoke error types this
// way instead of wrapping a sentinel.
type transienter interface {
	Transient() bool
}

// IsTransient reports whether another attempt could plausibly succeed.
//
// Classification order:
//  1. The terminal sentinels (ErrAuthentication, ErrNotFound) win even
//     when an error chain also matches a transient condition.
//  2. The transient sentinels (ErrConnection, ErrTimeout,
//     ErrRateLimited) and a deadline blown on a single attempt.
//  3. An error implementing Transient() decides for itself.
//  4. net.Error timeouts from the transport layer.
//
// Anything unrecognized is terminal: retrying an unknown failure mode
// burns rate budget against an outcome we cannot reason about.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var t transienter
	if errors.As(err, &t) {
		return t.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
