// Package table normalizes table geometry independently of source syntax,
// maps border idioms between LaTeX and Typst and keeps the coverage record
// of how faithfully table features were carried across.
package table

import (
	"strings"

	"texbridge/internal/ast"
)

// Slot is one grid position. Cell is nil for positions no cell covers.
// Origin is set on the top-left position of a cell.
type Slot struct {
	Cell   *ast.TableCell
	Row    int
	Col    int
	Origin bool
}

// Layout places the cells of a normalized table on a grid. Each cell takes
// the first free position of its row, skipping positions covered by a
// rowspan from above. Columns grow when a row overflows.
func Layout(t *ast.Table) [][]Slot {
	cols := t.Columns
	grid := make([][]Slot, len(t.Rows))
	for r := range grid {
		grid[r] = make([]Slot, cols)
		for c := range grid[r] {
			grid[r][c] = Slot{Row: r, Col: c}
		}
	}

	grow := func(n int) {
		for n > cols {
			for r := range grid {
				grid[r] = append(grid[r], Slot{Row: r, Col: cols})
			}
			cols++
		}
	}

	for r, row := range t.Rows {
		col := 0
		for _, cell := range row.Cells {
			for col < cols && grid[r][col].Cell != nil {
				col++
			}
			cs, rs := cell.Span()
			grow(col + cs)
			if r+rs > len(grid) {
				rs = len(grid) - r
			}
			for dr := 0; dr < rs; dr++ {
				for dc := 0; dc < cs; dc++ {
					grid[r+dr][col+dc].Cell = cell
				}
			}
			grid[r][col].Origin = true
			col += cs
		}
	}

	if cols > t.Columns {
		t.Columns = cols
	}
	return grid
}

// Normalize turns a table read in LaTeX order, where rows carry empty
// placeholder cells under a rowspan, into the canonical form where a row
// lists only the cells that start in it. It also settles the column count
// and clamps spans that run past the table.
func Normalize(t *ast.Table) {
	width := len(t.ColAlign)
	for _, row := range t.Rows {
		n := 0
		for _, c := range row.Cells {
			cs, _ := c.Span()
			n += cs
		}
		if n > width {
			width = n
		}
	}
	if t.Columns < width {
		t.Columns = width
	}

	// covered[c] counts the rows still covered by a rowspan in column c.
	covered := make([]int, t.Columns)
	for r, row := range t.Rows {
		kept := row.Cells[:0]
		col := 0
		for _, cell := range row.Cells {
			cs, rs := cell.Span()
			if col < t.Columns && covered[col] > 0 && placeholder(cell, covered, col, cs) {
				col += cs
				continue
			}
			if col+cs > t.Columns {
				cs = t.Columns - col
				if cs < 1 {
					cs = 1
				}
				cell.Colspan = cs
			}
			if remaining := len(t.Rows) - r; rs > remaining {
				cell.Rowspan = remaining
				rs = remaining
			}
			for dc := 0; dc < cs && col+dc < t.Columns; dc++ {
				if rs > covered[col+dc] {
					covered[col+dc] = rs
				}
			}
			kept = append(kept, cell)
			col += cs
		}
		row.Cells = kept
		for c := range covered {
			if covered[c] > 0 {
				covered[c]--
			}
		}
	}
	for len(t.ColAlign) < t.Columns {
		t.ColAlign = append(t.ColAlign, ast.AlignDefault)
	}
}

// placeholder reports whether cell is an empty filler sitting entirely on
// positions covered by an earlier rowspan.
func placeholder(cell *ast.TableCell, covered []int, col, cs int) bool {
	if strings.TrimSpace(ast.PlainText(cell.Content)) != "" {
		return false
	}
	for dc := 0; dc < cs; dc++ {
		if col+dc >= len(covered) || covered[col+dc] == 0 {
			return false
		}
	}
	return true
}

// Shape returns the row and column counts and every spanning cell in
// row-major order. Two tables with equal shapes have the same geometry.
func Shape(t *ast.Table) (rows, cols int, spans []Span) {
	grid := Layout(t)
	for r := range grid {
		for c := range grid[r] {
			s := grid[r][c]
			if !s.Origin {
				continue
			}
			cs, rs := s.Cell.Span()
			if cs > 1 || rs > 1 {
				spans = append(spans, Span{Row: r, Col: c, Colspan: cs, Rowspan: rs})
			}
		}
	}
	return len(t.Rows), t.Columns, spans
}

// Span locates a spanning cell.
type Span struct {
	Row, Col         int
	Colspan, Rowspan int
}
