package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table is a small static table for the list, history and doctor commands.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string

	// rowStyles overrides the body style for individual rows, keyed by
	// row index. Used to color failed runs and warnings.
	rowStyles map[int]lipgloss.Style
}

// NewTable creates a Table with the given title and headers.
func NewTable(title string, headers ...string) *Table {
	return &Table{
		Title:     title,
		Headers:   headers,
		Rows:      make([][]string, 0),
		rowStyles: make(map[int]lipgloss.Style),
	}
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// AddStyledRow appends a row rendered with the given style.
func (t *Table) AddStyledRow(style lipgloss.Style, cells ...string) {
	t.rowStyles[len(t.Rows)] = style
	t.Rows = append(t.Rows, cells)
}

// View renders the table.
func (t *Table) View(styles Styles) string {
	if len(t.Rows) == 0 {
		return ""
	}

	var sb strings.Builder

	if t.Title != "" {
		sb.WriteString(styles.Title.Render(t.Title))
		sb.WriteString("\n")
	}

	colWidths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		colWidths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(colWidths) {
				if w := lipgloss.Width(cell); w > colWidths[i] {
					colWidths[i] = w
				}
			}
		}
	}
	for i := range colWidths {
		colWidths[i] += 2
	}

	headerStyle := styles.Bold.Padding(0, 1)
	sepStyle := styles.Muted

	for i, h := range t.Headers {
		sb.WriteString(headerStyle.Width(colWidths[i]).Render(h))
		if i < len(t.Headers)-1 {
			sb.WriteString(sepStyle.Render("|"))
		}
	}
	sb.WriteString("\n")

	totalWidth := len(t.Headers) - 1
	for _, w := range colWidths {
		totalWidth += w
	}
	sb.WriteString(sepStyle.Render(strings.Repeat("-", totalWidth)) + "\n")

	for rowIdx, row := range t.Rows {
		base := styles.Body
		if override, ok := t.rowStyles[rowIdx]; ok {
			base = override
		}
		rowStyle := base.Padding(0, 1)
		for i, cell := range row {
			if i < len(colWidths) {
				sb.WriteString(rowStyle.Width(colWidths[i]).Render(cell))
				if i < len(row)-1 {
					sb.WriteString(sepStyle.Render("|"))
				}
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
