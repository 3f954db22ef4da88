// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

// Metadata stores arbitrary key-value pairs attached to auth identities
// and audit events.
//
// Common keys: "client_ip", "token_label", "team", "duration_ms",
// "error".
//
// Metadata is NOT thread-safe; do not share one instance across
// goroutines without synchronization.
//
// Example:
//
//	meta := extensions.NewMetadata().
//	    Set("client_ip", clientIP).
//	    Set("duration_ms", elapsed.Milliseconds())
type Metadata map[string]any

// NewMetadata creates an empty Metadata instance.
func NewMetadata() Metadata {
	return make(Metadata)
}

// Set adds or updates a key and returns the Metadata for chaining.
func (m Metadata) Set(key string, value any) Metadata {
	m[key] = value
	return m
}

// Get returns the value for key and whether it exists.
func (m Metadata) Get(key string) (any, bool) {
	value, ok := m[key]
	return value, ok
}

// GetString returns the value for key when it is a string.
func (m Metadata) GetString(key string) (string, bool) {
	value, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// GetInt returns the value for key when it is an int.
func (m Metadata) GetInt(key string) (int, bool) {
	value, ok := m[key]
	if !ok {
		return 0, false
	}
	n, ok := value.(int)
	return n, ok
}

// GetBool returns the value for key when it is a bool.
func (m Metadata) GetBool(key string) (bool, bool) {
	value, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := value.(bool)
	return b, ok
}

// Clone returns a shallow copy. A nil receiver yields nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge copies other's entries into m, overwriting existing keys, and
// returns m for chaining.
func (m Metadata) Merge(other Metadata) Metadata {
	for k, v := range other {
		m[k] = v
	}
	return m
}
