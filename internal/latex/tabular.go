package latex

import (
	"strconv"
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/table"
)

// tabular builds a table from a column spec and the body of a tabular
// environment.
func (p *parser) tabular(spec, body []Token) *ast.Table {
	t := &ast.Table{}
	columnSpec(spec, t)

	var (
		row       = &ast.TableRow{}
		rowFill   string
		cell      []Token
		cells     [][]Token
		rowBroken bool
	)
	rowStarted := func() bool {
		return len(cells) > 0 || len(trimSpaceTokens(cell)) > 0
	}
	endRow := func() {
		cells = append(cells, cell)
		for _, c := range cells {
			tc := p.tableCell(c)
			if tc.Fill == "" {
				tc.Fill = rowFill
			}
			row.Cells = append(row.Cells, tc)
		}
		t.Rows = append(t.Rows, row)
		row, rowFill, cell, cells = &ast.TableRow{}, "", nil, nil
	}

	bp := p.sub(body)
	braces, envs := 0, 0
	for !bp.eof() {
		tok := bp.toks[bp.pos]
		top := braces == 0 && envs == 0
		switch {
		case tok.Kind == BeginGroup:
			braces++
		case tok.Kind == EndGroup:
			braces--
		case tok.Is("begin"):
			envs++
		case tok.Is("end"):
			envs--
		}
		if !top || tok.Kind == BeginGroup {
			cell = append(cell, tok)
			bp.pos++
			continue
		}

		switch {
		case tok.Kind == AlignTab:
			bp.pos++
			cells = append(cells, cell)
			cell = nil
		case tok.Is(`\`) || tok.Is("tabularnewline"):
			bp.pos++
			bp.star()
			bp.optional()
			endRow()
			rowBroken = true
		case tok.Kind == Command && isRule(tok.Text) && !rowStarted():
			bp.pos++
			row.RulesAbove = append(row.RulesAbove, bp.rule(tok.Text)...)
		case tok.Is("rowcolor") && !rowStarted():
			bp.pos++
			bp.optional()
			c, _ := bp.group()
			rowFill = plainName(c)
		case tok.Is("addlinespace"):
			bp.pos++
			bp.optional()
		default:
			cell = append(cell, tok)
			bp.pos++
		}
	}
	if rowStarted() {
		endRow()
	} else if rowBroken || len(t.Rows) == 0 {
		t.RulesBelow = row.RulesAbove
	}

	markHeader(t)
	table.Normalize(t)
	t.Border = table.Classify(t)
	return t
}

func isRule(name string) bool {
	switch name {
	case "hline", "toprule", "midrule", "bottomrule", "cline", "cmidrule":
		return true
	}
	return false
}

// rule reads the arguments of a rule command.
func (p *parser) rule(name string) []ast.Rule {
	switch name {
	case "hline":
		return []ast.Rule{{Kind: ast.RuleFull}}
	case "toprule":
		p.optional()
		return []ast.Rule{{Kind: ast.RuleTop}}
	case "midrule":
		p.optional()
		return []ast.Rule{{Kind: ast.RuleMid}}
	case "bottomrule":
		p.optional()
		return []ast.Rule{{Kind: ast.RuleBottom}}
	}
	// \cline{a-b} and \cmidrule[w](trim){a-b}
	p.optional()
	p.skipSpaces()
	if t, ok := p.peek(); ok && t.IsChar("(") {
		for !p.eof() && !p.toks[p.pos].IsChar(")") {
			p.pos++
		}
		p.pos++
	}
	arg, _ := p.group()
	from, to, ok := parseRange(plainName(arg))
	if !ok {
		return nil
	}
	return []ast.Rule{{Kind: ast.RulePartial, From: from, To: to}}
}

func parseRange(s string) (from, to int, ok bool) {
	a, b, found := strings.Cut(s, "-")
	if !found {
		b = a
	}
	from, err1 := strconv.Atoi(strings.TrimSpace(a))
	to, err2 := strconv.Atoi(strings.TrimSpace(b))
	if err1 != nil || err2 != nil || from < 1 || to < from {
		return 0, 0, false
	}
	return from, to, true
}

// columnSpec reads alignments and vertical rules from a column spec.
func columnSpec(spec []Token, t *ast.Table) {
	sp := &parser{toks: spec}
	for !sp.eof() {
		tok := sp.toks[sp.pos]
		sp.pos++
		if tok.Kind != Char {
			continue
		}
		switch tok.Text {
		case "|":
			t.VRules = append(t.VRules, len(t.ColAlign))
		case "l", "c", "r", "X":
			a, _ := table.AlignFromSpec(tok.Text[0])
			t.ColAlign = append(t.ColAlign, a)
		case "p", "m", "b":
			sp.group()
			a, _ := table.AlignFromSpec(tok.Text[0])
			t.ColAlign = append(t.ColAlign, a)
		case "@", "!", ">", "<":
			sp.group()
		case "*":
			n, _ := sp.group()
			inner, _ := sp.group()
			count, err := strconv.Atoi(strings.TrimSpace(plainName(n)))
			if err != nil {
				continue
			}
			for i := 0; i < count; i++ {
				columnSpec(inner, t)
			}
		}
	}
	t.Columns = len(t.ColAlign)
}

// tableCell parses one cell, unwrapping \multicolumn, \multirow and \cellcolor.
func (p *parser) tableCell(toks []Token) *ast.TableCell {
	c := &ast.TableCell{}
	toks = trimSpaceTokens(toks)
	for {
		cp := p.sub(toks)
		cp.skipSpaces()
		t, ok := cp.peek()
		if !ok || t.Kind != Command {
			break
		}
		cp.pos++
		switch t.Text {
		case "multicolumn":
			n, _ := cp.group()
			spec, _ := cp.group()
			content, _ := cp.group()
			c.Colspan = atoiDefault(plainName(n), 1)
			for _, ch := range plainName(spec) {
				if ch >= 128 {
					continue
				}
				if a, ok := table.AlignFromSpec(byte(ch)); ok {
					c.Align = a
					break
				}
			}
			toks = trimSpaceTokens(content)
			continue
		case "multirow":
			n, _ := cp.group()
			cp.optional()
			cp.group()
			content, _ := cp.group()
			rs := atoiDefault(plainName(n), 1)
			if rs < 0 {
				rs = -rs
			}
			c.Rowspan = rs
			toks = trimSpaceTokens(content)
			continue
		case "cellcolor":
			cp.optional()
			color, _ := cp.group()
			c.Fill = plainName(color)
			toks = trimSpaceTokens(cp.toks[cp.pos:])
			continue
		}
		break
	}
	c.Content = trimInline(p.inlines(toks))
	return c
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n == 0 {
		return def
	}
	return n
}

// markHeader flags the rows above the first mid rule of a ruled table.
func markHeader(t *ast.Table) {
	if len(t.Rows) == 0 {
		return
	}
	top := false
	for _, r := range t.Rows[0].RulesAbove {
		if r.Kind == ast.RuleTop {
			top = true
		}
	}
	if !top {
		return
	}
	for i, row := range t.Rows {
		for _, r := range row.RulesAbove {
			if r.Kind == ast.RuleMid && i > 0 {
				for _, h := range t.Rows[:i] {
					h.Header = true
				}
				return
			}
		}
	}
}
