package logger

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

type Table struct {
	headers     []string
	rows        [][]string
	columnWidth []int
	out         io.Writer
}

func NewTable(headers []string, out io.Writer) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}

	return &Table{
		headers:     headers,
		columnWidth: widths,
		out:         out,
	}
}

// AddRow appends a row, padding or truncating it to the header width.
func (t *Table) AddRow(cells ...string) {
	if len(cells) > len(t.headers) {
		cells = cells[:len(t.headers)]
	} else if len(cells) < len(t.headers) {
		padded := make([]string, len(t.headers))
		copy(padded, cells)
		cells = padded
	}

	for i, cell := range cells {
		if n := utf8.RuneCountInString(cell); n > t.columnWidth[i] {
			t.columnWidth[i] = n
		}
	}

	t.rows = append(t.rows, cells)
}

func (t *Table) border(left, mid, right string) string {
	parts := make([]string, len(t.columnWidth))
	for i, width := range t.columnWidth {
		parts[i] = strings.Repeat("─", width+2)
	}
	return left + strings.Join(parts, mid) + right
}

func (t *Table) line(cells []string) string {
	var sb strings.Builder
	sb.WriteString("│")
	for i, cell := range cells {
		pad := t.columnWidth[i] - utf8.RuneCountInString(cell)
		sb.WriteString(" " + cell + strings.Repeat(" ", pad) + " │")
	}
	return sb.String()
}

func (t *Table) String() string {
	var sb strings.Builder

	sb.WriteString(t.border("┌", "┬", "┐") + "\n")
	sb.WriteString(t.line(t.headers) + "\n")
	sb.WriteString(t.border("├", "┼", "┤") + "\n")
	for _, row := range t.rows {
		sb.WriteString(t.line(row) + "\n")
	}
	sb.WriteString(t.border("└", "┴", "┘"))

	return sb.String()
}

func (t *Table) Print() {
	fmt.Fprintln(t.out, t.String())
}
