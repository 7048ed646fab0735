// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package format renders run and step listings as terminal tables,
// colourised with lipgloss when stdout is a TTY and plain otherwise.
package format

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var statusStyles = map[string]lipgloss.Style{
	"COMPLETED":             lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	"RUNNING":               lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
	"PENDING":               lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	"FAILED":                lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	"ERROR":                 lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	"TERMINATED_TIME_LIMIT": lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	"SKIPPED":               lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250"))

// Status renders status colourised by its value when isTTY, otherwise
// returns it unchanged.
func Status(status string, isTTY bool) string {
	if !isTTY {
		return status
	}
	if style, ok := statusStyles[status]; ok {
		return style.Render(status)
	}
	return status
}

// Table renders rows under headers as a column-aligned table. Column
// widths are computed from the widest cell (header or value) in each
// column; statusCol, if >= 0, has its cell colourised via Status before
// being padded, so ANSI codes never affect alignment width.
func Table(headers []string, rows [][]string, statusCol int, isTTY bool) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, header bool) {
		for i, cell := range cells {
			padded := cell + strings.Repeat(" ", widths[i]-len(cell))
			if header && isTTY {
				padded = headerStyle.Render(padded)
			} else if !header && i == statusCol {
				padded = Status(cell, isTTY) + strings.Repeat(" ", widths[i]-len(cell))
			}
			b.WriteString(padded)
			if i < len(cells)-1 {
				b.WriteString("  ")
			}
		}
		b.WriteString("\n")
	}

	writeRow(headers, true)
	for _, row := range rows {
		writeRow(row, false)
	}
	return b.String()
}
