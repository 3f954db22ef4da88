// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RenderTable renders headers and rows as a bordered table. In machine
// mode, output degrades to tab-separated lines so it stays greppable.
func RenderTable(headers []string, rows [][]string) string {
	if GetPersonality().Level == PersonalityMachine {
		var b strings.Builder
		b.WriteString(strings.Join(headers, "\t"))
		b.WriteByte('\n')
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
		return strings.TrimRight(b.String(), "\n")
	}

	headerStyle := lipgloss.NewStyle().Foreground(ColorVioletBright).Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorGraphite)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

// Rule renders a section divider with an embedded label.
func Rule(label string) string {
	if GetPersonality().Level == PersonalityMachine {
		return "== " + label + " =="
	}
	tail := 44 - lipgloss.Width(label)
	if tail < 3 {
		tail = 3
	}
	return Styles.Muted.Render("───") + " " + Styles.Subtitle.Render(label) + " " + Styles.Muted.Render(strings.Repeat("─", tail))
}
