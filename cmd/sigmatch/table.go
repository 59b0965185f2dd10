package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// maxCellWidth caps a table cell's display width.
const maxCellWidth = 48

// writeTable prints rows as space-aligned columns. Widths are measured in
// terminal cells so CJK titles and emoji line up.
func writeTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	cells := make([][]string, 0, len(rows)+1)
	for _, row := range append([][]string{header}, rows...) {
		line := make([]string, len(header))
		for i := range header {
			if i < len(row) {
				line[i] = runewidth.Truncate(strings.ReplaceAll(row[i], "\n", " "), maxCellWidth, "…")
			}
			widths[i] = max(widths[i], runewidth.StringWidth(line[i]))
		}
		cells = append(cells, line)
	}

	for _, line := range cells {
		var sb strings.Builder
		for i, cell := range line {
			if i == len(line)-1 {
				sb.WriteString(cell)
				break
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
			sb.WriteString("  ")
		}
		fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
	}
}
