// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"strings"
	"testing"
)

// Spinner tests run in machine mode so no terminal program is spawned.

// =============================================================================
// Construction Tests
// =============================================================================

func TestNewSpinner(t *testing.T) {
	s := NewSpinner("loading runs")
	if s == nil {
		t.Fatal("expected non-nil spinner")
	}
	if s.message != "loading runs" {
		t.Errorf("expected message 'loading runs', got %q", s.message)
	}
	if s.spinType != SpinnerDots {
		t.Errorf("expected default SpinnerDots, got %v", s.spinType)
	}
}

func TestSpinner_WithType(t *testing.T) {
	s := NewSpinner("working").WithType(SpinnerPulse)
	if s.spinType != SpinnerPulse {
		t.Errorf("expected SpinnerPulse, got %v", s.spinType)
	}
}

// =============================================================================
// Plain Mode Tests
// =============================================================================

func TestSpinner_Start_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	s := NewSpinner("fetching history")
	output := captureStdout(func() {
		s.Start()
	})
	defer s.Stop()

	if output != "PROGRESS: fetching history\n" {
		t.Errorf("expected plain progress line, got %q", output)
	}
}

func TestSpinner_Start_Idempotent(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	s := NewSpinner("fetching")
	output := captureStdout(func() {
		s.Start()
		s.Start()
		s.Start()
	})
	defer s.Stop()

	if strings.Count(output, "PROGRESS:") != 1 {
		t.Errorf("expected a single progress line, got %q", output)
	}
}

func TestSpinner_Stop_WithoutStart(t *testing.T) {
	s := NewSpinner("never started")
	// Should not panic
	s.Stop()
	s.Stop()
}

func TestSpinner_UpdateMessage_Plain(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	s := NewSpinner("step 1")
	output := captureStdout(func() {
		s.Start()
		s.UpdateMessage("step 2")
		s.Stop()
	})

	if !strings.Contains(output, "PROGRESS: step 1") {
		t.Errorf("expected initial progress line, got %q", output)
	}
	if !strings.Contains(output, "PROGRESS: step 2") {
		t.Errorf("expected updated progress line, got %q", output)
	}
}

func TestSpinner_UpdateMessage_BeforeStart(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	s := NewSpinner("initial")
	output := captureStdout(func() {
		s.UpdateMessage("changed")
	})

	if output != "" {
		t.Errorf("expected no output before start, got %q", output)
	}
	if s.message != "changed" {
		t.Errorf("expected stored message to update, got %q", s.message)
	}
}

// =============================================================================
// StopWith Tests
// =============================================================================

func TestSpinner_StopWithSuccess(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	s := NewSpinner("analyzing")
	output := captureStdout(func() {
		s.Start()
		s.StopWithSuccess("analysis complete")
	})

	if !strings.Contains(output, "OK: analysis complete") {
		t.Errorf("expected success line, got %q", output)
	}
}

func TestSpinner_StopWithError(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	s := NewSpinner("analyzing")
	var stderr string
	captureStdout(func() {
		s.Start()
		stderr = captureStderr(func() {
			s.StopWithError("analysis failed")
		})
	})

	if stderr != "ERROR: analysis failed\n" {
		t.Errorf("expected error line on stderr, got %q", stderr)
	}
}

func TestSpinner_StopWithWarning(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	s := NewSpinner("analyzing")
	var stderr string
	captureStdout(func() {
		s.Start()
		stderr = captureStderr(func() {
			s.StopWithWarning("partial results")
		})
	})

	if stderr != "WARN: partial results\n" {
		t.Errorf("expected warning line on stderr, got %q", stderr)
	}
}

// =============================================================================
// WithSpinner Tests
// =============================================================================

func TestWithSpinner_Success(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	called := false
	var err error
	output := captureStdout(func() {
		err = WithSpinner("building features", func() error {
			called = true
			return nil
		})
	})

	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if !called {
		t.Error("expected function to be called")
	}
	if !strings.Contains(output, "OK: building features") {
		t.Errorf("expected success line, got %q", output)
	}
}

func TestWithSpinner_Error(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	wantErr := errors.New("no runs found")
	var err error
	stderr := captureStderr(func() {
		captureStdout(func() {
			err = WithSpinner("fetching runs", func() error {
				return wantErr
			})
		})
	})

	if !errors.Is(err, wantErr) {
		t.Errorf("expected original error returned, got %v", err)
	}
	if !strings.Contains(stderr, "fetching runs") || !strings.Contains(stderr, "no runs found") {
		t.Errorf("expected error detail on stderr, got %q", stderr)
	}
}

// =============================================================================
// SpinnerType Tests
// =============================================================================

func TestSpinnerType_Frames(t *testing.T) {
	for _, st := range []SpinnerType{SpinnerDots, SpinnerLine, SpinnerPoints, SpinnerPulse} {
		frames := st.frames()
		if len(frames.Frames) == 0 {
			t.Errorf("expected non-empty frames for type %v", st)
		}
		if frames.FPS <= 0 {
			t.Errorf("expected positive FPS for type %v", st)
		}
	}
}
