package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texbridge/internal/ast"
)

func cell(text string) *ast.TableCell {
	if text == "" {
		return &ast.TableCell{}
	}
	return &ast.TableCell{Content: []ast.Node{&ast.Text{Value: text}}}
}

func span(text string, cols, rows int) *ast.TableCell {
	c := cell(text)
	c.Colspan, c.Rowspan = cols, rows
	return c
}

func rows(cells ...[]*ast.TableCell) []*ast.TableRow {
	out := make([]*ast.TableRow, len(cells))
	for i, cs := range cells {
		out[i] = &ast.TableRow{Cells: cs}
	}
	return out
}

func TestNormalizeDropsRowspanPlaceholders(t *testing.T) {
	tbl := &ast.Table{
		ColAlign: []ast.Align{ast.AlignLeft, ast.AlignLeft, ast.AlignLeft},
		Rows: rows(
			[]*ast.TableCell{span("A", 1, 2), cell("B"), cell("C")},
			[]*ast.TableCell{cell(""), cell("D"), cell("E")},
			[]*ast.TableCell{cell("F"), cell("G"), cell("H")},
		),
	}
	Normalize(tbl)

	assert.Equal(t, 3, tbl.Columns)
	assert.Len(t, tbl.Rows[1].Cells, 2)
	assert.Len(t, tbl.Rows[2].Cells, 3)

	grid := Layout(tbl)
	assert.Same(t, tbl.Rows[0].Cells[0], grid[1][0].Cell)
	assert.False(t, grid[1][0].Origin)
	assert.Equal(t, "D", ast.PlainText(grid[1][1].Cell.Content))
}

func TestNormalizeKeepsContentUnderSpan(t *testing.T) {
	tbl := &ast.Table{
		Rows: rows(
			[]*ast.TableCell{span("A", 1, 2), cell("B")},
			[]*ast.TableCell{cell("x"), cell("C")},
		),
	}
	Normalize(tbl)
	assert.Len(t, tbl.Rows[1].Cells, 2)
}

func TestNormalizeClampsSpans(t *testing.T) {
	tbl := &ast.Table{
		ColAlign: []ast.Align{ast.AlignLeft, ast.AlignLeft},
		Rows: rows(
			[]*ast.TableCell{span("A", 1, 5), cell("B")},
		),
	}
	Normalize(tbl)
	assert.Equal(t, 1, tbl.Rows[0].Cells[0].Rowspan)
}

func TestLayoutColspan(t *testing.T) {
	tbl := &ast.Table{
		Columns: 3,
		Rows: rows(
			[]*ast.TableCell{span("wide", 2, 1), cell("c")},
			[]*ast.TableCell{cell("a"), cell("b"), cell("c")},
			[]*ast.TableCell{cell("a"), cell("b"), cell("c")},
		),
	}
	r, c, spans := Shape(tbl)
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	require.Len(t, spans, 1)
	assert.Equal(t, Span{Row: 0, Col: 0, Colspan: 2, Rowspan: 1}, spans[0])
}

func TestLayoutGrowsColumns(t *testing.T) {
	tbl := &ast.Table{Columns: 1, Rows: rows([]*ast.TableCell{cell("a"), cell("b")})}
	grid := Layout(tbl)
	assert.Equal(t, 2, tbl.Columns)
	assert.Len(t, grid[0], 2)
}

func TestClassify(t *testing.T) {
	ruled := &ast.Table{Columns: 2, Rows: rows([]*ast.TableCell{cell("a"), cell("b")}, []*ast.TableCell{cell("c"), cell("d")})}
	ruled.Rows[0].RulesAbove = []ast.Rule{{Kind: ast.RuleTop}}
	ruled.Rows[1].RulesAbove = []ast.Rule{{Kind: ast.RuleMid}, {Kind: ast.RulePartial, From: 1, To: 2}}
	ruled.RulesBelow = []ast.Rule{{Kind: ast.RuleBottom}}
	assert.Equal(t, ast.BorderRuled, Classify(ruled))

	grid := &ast.Table{Columns: 2, Rows: rows([]*ast.TableCell{cell("a"), cell("b")})}
	ApplyGrid(grid)
	assert.Equal(t, ast.BorderGrid, Classify(grid))

	custom := &ast.Table{Columns: 2, Rows: rows([]*ast.TableCell{cell("a"), cell("b")})}
	custom.Rows[0].RulesAbove = []ast.Rule{{Kind: ast.RuleFull}}
	assert.Equal(t, ast.BorderCustom, Classify(custom))

	plain := &ast.Table{Columns: 1, Rows: rows([]*ast.TableCell{cell("a")})}
	assert.Equal(t, ast.BorderNone, Classify(plain))
}

func TestRuleStrokeRoundTrip(t *testing.T) {
	k, ok := RuleFromStroke(RuleStroke(ast.RuleTop), false, true, false)
	assert.True(t, ok)
	assert.Equal(t, ast.RuleTop, k)

	k, ok = RuleFromStroke(RuleStroke(ast.RuleBottom), false, false, true)
	assert.True(t, ok)
	assert.Equal(t, ast.RuleBottom, k)

	k, ok = RuleFromStroke(RuleStroke(ast.RuleMid), false, false, false)
	assert.True(t, ok)
	assert.Equal(t, ast.RuleMid, k)

	_, ok = RuleFromStroke("2pt", false, false, false)
	assert.False(t, ok)
}

func TestAlignHelpers(t *testing.T) {
	for _, letter := range []byte("lcr") {
		a, ok := AlignFromSpec(letter)
		require.True(t, ok)
		assert.Equal(t, string(letter), SpecLetter(a))
	}
	a, ok := AlignFromName("center")
	assert.True(t, ok)
	assert.Equal(t, ast.AlignCenter, a)
}

func TestCoverage(t *testing.T) {
	c := NewCoverage()
	assert.Equal(t, 1.0, c.Confidence())

	c.Mapped(FeatureSpan)
	c.Mapped(FeatureRule)
	c.Mapped(FeatureRule)
	c.Approximated(FeatureStroke)
	assert.Equal(t, Count{Mapped: 1}, c.Get(FeatureSpan))
	assert.InDelta(t, 0.75, c.Confidence(), 1e-9)

	other := NewCoverage()
	other.Tables = 2
	other.Approximated(FeatureSpan)
	c.Merge(other)
	assert.Equal(t, 2, c.Tables)
	assert.Equal(t, Count{Mapped: 1, Approximated: 1}, c.Get(FeatureSpan))
	assert.Equal(t, []Feature{FeatureRule, FeatureSpan, FeatureStroke}, c.FeatureNames())
}
