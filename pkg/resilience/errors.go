// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying external-call failures. Service clients
// wrap their transport and status-code failures in one of these so the
// executor can decide whether another attempt is worth making.
var (
	// ErrConnection marks failures to reach the service at all.
	// Transient.
	ErrConnection = errors.New("connection failed")

	// ErrTimeout marks a single attempt exceeding its time budget.
	// Transient.
	ErrTimeout = errors.New("request timed out")

	// ErrRateLimited marks an explicit throttle response from the
	// service. Transient.
	ErrRateLimited = errors.New("rate limited by service")

	// ErrAuthentication marks rejected credentials. Terminal: retrying
	// with the same credentials cannot succeed.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotFound marks a missing resource. Terminal.
	ErrNotFound = errors.New("resource not found")

	// ErrCircuitOpen is returned when the optional circuit breaker is
	// rejecting calls to a service.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ExhaustedError reports that every allowed attempt against a service
// failed with a transient error. It is distinct from a terminal error:
// the last underlying failure was retryable, there were just no
// attempts left.
type ExhaustedError struct {
	// Service is the logical service name the attempts were made
	// against.
	Service string

	// Attempts is the total number of attempts made.
	Attempts int

	// Err is the error from the final attempt.
	Err error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
