package latex

import (
	"strings"

	"texbridge/internal/ast"
)

func (st *state) layoutOf() *ast.Layout {
	if st.layout == nil {
		st.layout = &ast.Layout{}
	}
	return st.layout
}

// layoutCommand reads the document class, page geometry and equation
// numbering commands of a preamble. It reports whether name was one of them.
func (p *parser) layoutCommand(name string) bool {
	switch name {
	case "documentclass":
		opt, _ := p.optional()
		arg, _ := p.group()
		l := p.st.layoutOf()
		l.Class = plainName(arg)
		for _, o := range splitKeys(plainName(opt)) {
			classOption(l, o)
		}
	case "usepackage":
		opt, _ := p.optional()
		arg, _ := p.group()
		for _, pkg := range splitKeys(plainName(arg)) {
			switch pkg {
			case "geometry":
				geometryOptions(p.st.layoutOf(), plainName(opt))
			case "natbib":
				p.st.layoutOf().Natbib = true
			case "amsthm":
				p.st.layoutOf().Theorems = true
			}
		}
	case "geometry":
		arg, _ := p.group()
		geometryOptions(p.st.layoutOf(), plainName(arg))
	case "numberwithin":
		counter, _ := p.group()
		within, _ := p.group()
		if plainName(counter) == "equation" {
			p.st.layoutOf().EquationWithin = plainName(within)
		}
	default:
		return false
	}
	return true
}

func classOption(l *ast.Layout, o string) {
	switch o {
	case "10pt", "11pt", "12pt":
		l.FontSize = o
	case "a4paper":
		l.Paper = "a4"
	case "letterpaper":
		l.Paper = "us-letter"
	case "twocolumn":
		l.Columns = 2
	case "onecolumn":
		l.Columns = 1
	default:
		l.ClassOptions = append(l.ClassOptions, o)
	}
}

func geometryOptions(l *ast.Layout, opts string) {
	for _, kv := range splitKeys(opts) {
		key, val, _ := strings.Cut(kv, "=")
		switch key {
		case "margin":
			l.Margin.All = val
		case "left", "lmargin", "inner":
			l.Margin.Left = val
		case "right", "rmargin", "outer":
			l.Margin.Right = val
		case "top", "tmargin":
			l.Margin.Top = val
		case "bottom", "bmargin":
			l.Margin.Bottom = val
		case "hmargin":
			l.Margin.Left, l.Margin.Right = val, val
		case "vmargin":
			l.Margin.Top, l.Margin.Bottom = val, val
		case "a4paper":
			l.Paper = "a4"
		case "letterpaper":
			l.Paper = "us-letter"
		case "twocolumn":
			l.Columns = 2
		}
	}
}
