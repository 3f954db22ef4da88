// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"
	"testing"
)

// =============================================================================
// RenderTable Tests
// =============================================================================

func TestRenderTable_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	out := RenderTable(
		[]string{"CLUSTER", "SIZE", "MEAN"},
		[][]string{
			{"high performers", "7", "0.941"},
			{"baseline", "10", "0.872"},
		},
	)

	expected := "CLUSTER\tSIZE\tMEAN\nhigh performers\t7\t0.941\nbaseline\t10\t0.872"
	if out != expected {
		t.Errorf("expected tab-separated output, got %q", out)
	}
}

func TestRenderTable_MachineMode_NoRows(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	out := RenderTable([]string{"ID", "STATE"}, nil)
	if out != "ID\tSTATE" {
		t.Errorf("expected header-only output, got %q", out)
	}
}

func TestRenderTable_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	out := RenderTable(
		[]string{"RUN", "ACCURACY"},
		[][]string{{"run-001", "0.91"}},
	)

	if !strings.Contains(out, "RUN") {
		t.Errorf("expected header in output, got %q", out)
	}
	if !strings.Contains(out, "run-001") {
		t.Errorf("expected row data in output, got %q", out)
	}
	if !strings.Contains(out, "─") {
		t.Errorf("expected border characters in output, got %q", out)
	}
}

func TestRenderTable_FullMode_PreservesAllRows(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	rows := [][]string{
		{"a", "1"},
		{"b", "2"},
		{"c", "3"},
	}
	out := RenderTable([]string{"K", "V"}, rows)

	for _, row := range rows {
		if !strings.Contains(out, row[0]) {
			t.Errorf("expected row %q in output", row[0])
		}
	}
}

// =============================================================================
// Rule Tests
// =============================================================================

func TestRule_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	out := Rule("Clusters")
	if out != "== Clusters ==" {
		t.Errorf("expected '== Clusters ==', got %q", out)
	}
}

func TestRule_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	out := Rule("Clusters")
	if !strings.Contains(out, "Clusters") {
		t.Errorf("expected label in output, got %q", out)
	}
	if !strings.Contains(out, "───") {
		t.Errorf("expected divider characters in output, got %q", out)
	}
}

func TestRule_FullMode_LongLabel(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	label := strings.Repeat("x", 80)
	out := Rule(label)
	if !strings.Contains(out, label) {
		t.Errorf("expected long label preserved in output")
	}
}
