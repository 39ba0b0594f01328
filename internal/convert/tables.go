package convert

import (
	"fmt"
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/graphics"
	"texbridge/internal/loss"
	"texbridge/internal/table"
)

// table converts cell content and fills and records what the table used in
// the coverage record. A table with any approximated feature gets one
// table-approximation loss.
func (c *Converter) table(t *ast.Table) ([]ast.Node, error) {
	if !c.opts.Features.Tables {
		return c.disabled(t, "tables"), nil
	}
	c.coverage.Tables++

	out := &ast.Table{
		Columns:  t.Columns,
		ColAlign: append([]ast.Align(nil), t.ColAlign...),
		VRules:   append([]int(nil), t.VRules...),
		Border:   t.Border,
	}
	var approx []string
	note := func(f table.Feature, ok bool, what string) {
		if ok {
			c.coverage.Mapped(f)
			return
		}
		c.coverage.Approximated(f)
		approx = append(approx, what)
	}

	for _, a := range t.ColAlign {
		if a != ast.AlignDefault {
			note(table.FeatureAlign, true, "")
		}
	}
	if len(t.VRules) > 0 || t.Border == ast.BorderGrid {
		note(table.FeatureStroke, true, "")
	}

	for _, row := range t.Rows {
		r := &ast.TableRow{Header: row.Header, RulesAbove: c.rules(row.RulesAbove, note)}
		for _, cell := range row.Cells {
			content, err := c.nodes(cell.Content)
			if err != nil {
				return nil, err
			}
			nc := &ast.TableCell{Content: content, Colspan: cell.Colspan, Rowspan: cell.Rowspan, Align: cell.Align}
			if cs, rs := cell.Span(); cs > 1 || rs > 1 {
				note(table.FeatureSpan, true, "")
			}
			if cell.Align != ast.AlignDefault {
				note(table.FeatureAlign, true, "")
			}
			if cell.Fill != "" {
				fill, ok := c.fill(cell.Fill)
				note(table.FeatureFill, ok, "fill "+cell.Fill)
				nc.Fill = fill
			}
			r.Cells = append(r.Cells, nc)
		}
		out.Rows = append(out.Rows, r)
	}
	out.RulesBelow = c.rules(t.RulesBelow, note)

	if len(approx) == 0 {
		return []ast.Node{out}, nil
	}
	out.LossID = t.LossID
	if out.LossID == 0 {
		rows, cols, _ := table.Shape(out)
		out.LossID = c.record(loss.TableApproximation, "table",
			"approximated: "+strings.Join(approx, ", "),
			fmt.Sprintf("%dx%d table", rows, cols), "table")
	}
	return c.marked(out.LossID, true, out), nil
}

func (c *Converter) rules(in []ast.Rule, note func(table.Feature, bool, string)) []ast.Rule {
	if in == nil {
		return nil
	}
	out := make([]ast.Rule, len(in))
	for i, r := range in {
		note(table.FeatureRule, !r.Approx, "rule weight")
		out[i] = ast.Rule{Kind: r.Kind, From: r.From, To: r.To}
	}
	return out
}

// fill maps a cell background color between xcolor and Typst syntax. Colors
// outside the shared names are dropped.
func (c *Converter) fill(v string) (string, bool) {
	if c.toTypst() {
		return graphics.TypstColor(strings.TrimSpace(v))
	}
	return graphics.XColor(v)
}
