// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package wandb

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/runlens-ai/runlens/pkg/resilience"
)

// statusError maps an HTTP status from the tracking API onto the
// resilience error taxonomy so the executor can tell transient
// failures from terminal ones. body is a short excerpt for logs.
func statusError(status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("tracking api status %d: %w", status, resilience.ErrAuthentication)
	case status == http.StatusNotFound:
		return fmt.Errorf("tracking api status %d: %w", status, resilience.ErrNotFound)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("tracking api status %d: %w", status, resilience.ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("tracking api status %d (%s): %w", status, body, resilience.ErrConnection)
	default:
		return fmt.Errorf("tracking api returned unexpected status %d: %s", status, body)
	}
}

// transportError maps client-side transport failures. Timeouts become
// ErrTimeout, everything else ErrConnection; both are transient.
func transportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("tracking api request: %v: %w", err, resilience.ErrTimeout)
	}
	return fmt.Errorf("tracking api request: %v: %w", err, resilience.ErrConnection)
}
