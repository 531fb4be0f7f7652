package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/cg-ch/cycoach/pkg/types"
)

// Colors for the results table
const (
	colorBorder = "#30363d"
	colorHeader = "#58a6ff"
	colorScore  = "#3fb950"
	colorMuted  = "#8b949e"
)

// tableSnippetChars bounds the snippet column
const tableSnippetChars = 80

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorHeader)).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	scoreStyle  = cellStyle.Foreground(lipgloss.Color(colorScore))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)).Italic(true)
)

// renderResults draws a Score | File | Snippet table
func renderResults(results []types.SearchResult) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(colorBorder))).
		Headers("Score", "File", "Snippet").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return scoreStyle
			default:
				return cellStyle
			}
		})

	for i := range results {
		t.Row(
			fmt.Sprintf("%.4f", results[i].Score),
			results[i].Path,
			oneLine(results[i].Snippet(tableSnippetChars)),
		)
	}

	return t.String()
}

// oneLine collapses whitespace runs so a snippet fits one table row
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
