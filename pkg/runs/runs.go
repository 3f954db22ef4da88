// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package runs defines the experiment run model shared by the fetch
// client, the analysis engine, and the dashboard.
//
// A Run is an immutable snapshot of one training execution: metric
// series keyed by arbitrary metric names, a config map keyed by
// arbitrary hyperparameter names, and a handful of metadata fields.
// Config values are schema-less at the source, so they are modeled as
// a tagged union (Value) rather than interface{}. The analysis
// feature builder is the single place where that union collapses into
// numeric columns.
package runs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// =============================================================================
// Run State
// =============================================================================

// State is the lifecycle state of a run as reported by the tracking
// service.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCrashed   State = "crashed"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateRunning, StateCompleted, StateFailed, StateCrashed:
		return true
	}
	return false
}

// =============================================================================
// Config Values
// =============================================================================

// ValueKind discriminates the union arms of Value.
type ValueKind int

const (
	// KindMissing marks a value that was absent or null at the source.
	KindMissing ValueKind = iota

	// KindNumber is any numeric value (ints and floats collapse here).
	KindNumber

	// KindString is free-form text.
	KindString

	// KindBool is a boolean flag.
	KindBool
)

// String returns the kind name for logs and error messages.
func (k ValueKind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the config value kinds a tracking
// service can emit. Exactly one arm is meaningful, selected by Kind.
// The zero value is the missing value.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
	Bool bool
}

// Number builds a numeric Value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Text builds a string Value.
func Text(s string) Value { return Value{Kind: KindString, Str: s} }

// Boolean builds a bool Value.
func Boolean(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Missing is the absent value.
func Missing() Value { return Value{Kind: KindMissing} }

// Float returns the numeric form of the value and whether one exists.
// Bools convert to 0/1; strings and missing values do not convert.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// String renders the value for display.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// UnmarshalJSON maps JSON types onto value kinds. Arrays and objects
// have no natural column encoding; they are kept as their compact JSON
// text so nothing is silently lost.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decoding config value: %w", err)
	}

	switch t := raw.(type) {
	case nil:
		*v = Missing()
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			*v = Text(t.String())
			return nil
		}
		*v = Number(f)
	case string:
		*v = Text(t)
	case bool:
		*v = Boolean(t)
	default:
		*v = Text(string(data))
	}
	return nil
}

// MarshalJSON emits the native JSON form of the value.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindString:
		return json.Marshal(v.Str)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// =============================================================================
// Run
// =============================================================================

// Run is one logged experiment execution. Runs are snapshots: nothing
// downstream mutates a Run, only derives data from it.
type Run struct {
	// ID is the tracking service's unique run identifier.
	ID string `json:"id"`

	// Name is the human-readable run name, possibly empty.
	Name string `json:"name,omitempty"`

	// State is the lifecycle state at fetch time.
	State State `json:"state"`

	// CreatedAt is when the run started; zero when unknown.
	CreatedAt time.Time `json:"created_at,omitempty"`

	// RuntimeSeconds is the wall-clock duration; zero when unknown.
	RuntimeSeconds float64 `json:"runtime_seconds,omitempty"`

	// Commit is the source revision the run was launched from,
	// possibly empty.
	Commit string `json:"commit,omitempty"`

	// Tags are free-form labels from the tracking service.
	Tags []string `json:"tags,omitempty"`

	// Metrics maps metric name to the ordered series of values logged
	// over training steps. Summary-only fetches hold single-element
	// series (the last logged value).
	Metrics map[string][]float64 `json:"metrics"`

	// Config maps hyperparameter name to its value.
	Config map[string]Value `json:"config"`
}

// LastMetric returns the final logged value of the named metric and
// whether the run has that metric at all.
func (r *Run) LastMetric(name string) (float64, bool) {
	series, ok := r.Metrics[name]
	if !ok || len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// MetricNames returns the run's metric names sorted ascending.
func (r *Run) MetricNames() []string {
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

