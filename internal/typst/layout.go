package typst

import (
	"strconv"
	"strings"

	"texbridge/internal/ast"
)

func equationPattern(l *ast.Layout) string {
	if l != nil {
		switch l.EquationWithin {
		case "section":
			return "(1.1)"
		case "subsection":
			return "(1.1.1)"
		}
	}
	return "(1)"
}

// layoutRules renders the page, text and paragraph setup as set rules.
func layoutRules(l *ast.Layout) []string {
	var rules []string
	var page []string
	if l.Paper != "" {
		page = append(page, "paper: "+Quote(l.Paper))
	}
	if m := margin(l.Margin); m != "" {
		page = append(page, "margin: "+m)
	}
	if l.Columns >= 2 {
		page = append(page, "columns: "+strconv.Itoa(l.Columns))
	}
	if len(page) > 0 {
		rules = append(rules, "#set page("+strings.Join(page, ", ")+")")
	}

	var text []string
	if l.FontSize != "" {
		text = append(text, "size: "+l.FontSize)
	}
	if l.Font != "" {
		text = append(text, "font: "+Quote(l.Font))
	}
	if len(text) > 0 {
		rules = append(rules, "#set text("+strings.Join(text, ", ")+")")
	}

	var par []string
	if l.Ragged {
		par = append(par, "justify: false")
	}
	if l.ParIndent != "" {
		par = append(par, "first-line-indent: "+l.ParIndent)
	}
	if len(par) > 0 {
		rules = append(rules, "#set par("+strings.Join(par, ", ")+")")
	}
	return rules
}

func margin(m ast.Margin) string {
	if m.Left == "" && m.Right == "" && m.Top == "" && m.Bottom == "" {
		return m.All
	}
	var parts []string
	for _, kv := range [][2]string{{"left", m.Left}, {"right", m.Right}, {"top", m.Top}, {"bottom", m.Bottom}, {"rest", m.All}} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+": "+kv[1])
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
