package convert

import (
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/latex"
	"texbridge/internal/loss"
	"texbridge/internal/symbols"
	"texbridge/internal/typst"
)

// blackboard are the Typst shorthand names for number sets.
var blackboard = map[string]string{"RR": "R", "NN": "N", "ZZ": "Z", "QQ": "Q", "CC": "C"}

// mathToLaTeX rewrites a Typst-flavored formula for the LaTeX writer.
func (c *Converter) mathToLaTeX(nodes []ast.MathNode) []ast.MathNode {
	if nodes == nil {
		return nil
	}
	out := make([]ast.MathNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, c.mathNodeToLaTeX(n)...)
	}
	return out
}

func (c *Converter) mathNodeToLaTeX(n ast.MathNode) []ast.MathNode {
	one := func(n ast.MathNode) []ast.MathNode { return []ast.MathNode{n} }

	switch n := n.(type) {
	case *ast.MathAtom:
		if n.Kind != ast.AtomSymbol {
			return one(&ast.MathAtom{Kind: n.Kind, Text: n.Text})
		}
		return c.symbolToLaTeX(n.Text)
	case *ast.MathCall:
		return c.callToLaTeX(n)
	case *ast.MathFrac:
		return one(&ast.MathFrac{Num: c.mathToLaTeX(n.Num), Den: c.mathToLaTeX(n.Den)})
	case *ast.MathScript:
		return one(&ast.MathScript{
			Base: single(c.mathNodeToLaTeX(n.Base)),
			Sub:  c.mathToLaTeX(n.Sub),
			Sup:  c.mathToLaTeX(n.Sup),
		})
	case *ast.MathGroup:
		return one(&ast.MathGroup{Children: c.mathToLaTeX(n.Children)})
	case *ast.MathFenced:
		body := c.mathToLaTeX(n.Body)
		if strings.Contains("([{", n.Open) && n.Open != "" {
			// plain brackets need no \left..\right
			out := append([]ast.MathNode{&ast.MathAtom{Kind: ast.AtomOp, Text: n.Open}}, body...)
			if n.Close != "" {
				out = append(out, &ast.MathAtom{Kind: ast.AtomOp, Text: n.Close})
			}
			return out
		}
		return one(&ast.MathFenced{Open: c.latexDelim(n.Open), Close: c.latexDelim(n.Close), Body: body})
	case *ast.MathText:
		return one(&ast.MathText{Text: n.Text})
	case *ast.MathMatrix:
		return one(&ast.MathMatrix{Env: n.Env, Delim: n.Delim, Rows: c.rowsToLaTeX(n.Rows)})
	case *ast.MathAlign:
		return one(&ast.MathAlign{})
	case *ast.MathNewline:
		return one(&ast.MathNewline{})
	case *ast.MathRaw:
		id := n.LossID
		if id == 0 {
			id = c.record(loss.UnsupportedValue, "", "embedded code kept as text", n.Text, "math")
		}
		return c.latexMarked(id, &ast.MathText{Text: strings.TrimPrefix(n.Text, "#")})
	}
	return nil
}

func (c *Converter) rowsToLaTeX(rows [][][]ast.MathNode) [][][]ast.MathNode {
	out := make([][][]ast.MathNode, len(rows))
	for i, row := range rows {
		out[i] = make([][]ast.MathNode, len(row))
		for j, cell := range row {
			out[i][j] = c.mathToLaTeX(cell)
		}
	}
	return out
}

// latexMarked prepends the marker comment for id to formula nodes.
func (c *Converter) latexMarked(id int, nodes ...ast.MathNode) []ast.MathNode {
	if m := c.marker(id); m != "" {
		return append([]ast.MathNode{&ast.MathRaw{Text: "% " + m + "\n", LossID: id}}, nodes...)
	}
	return nodes
}

func (c *Converter) symbolToLaTeX(name string) []ast.MathNode {
	if letter, ok := blackboard[name]; ok {
		return []ast.MathNode{&ast.MathCall{Name: "mathbb", Args: [][]ast.MathNode{{&ast.MathAtom{Kind: ast.AtomIdent, Text: letter}}}}}
	}
	switch name {
	case "dots":
		return []ast.MathNode{ast.Sym("ldots")}
	case "oo":
		return []ast.MathNode{ast.Sym("infty")}
	case "colon.eq":
		return []ast.MathNode{&ast.MathAtom{Kind: ast.AtomOp, Text: ":="}}
	}
	if e := c.symbolEntry(name); e != nil {
		return []ast.MathNode{ast.Sym(e.LaTeX)}
	}
	id := c.record(loss.UnknownCommand, name, "symbol has no LaTeX equivalent", name, "math")
	return c.latexMarked(id, &ast.MathRaw{Text: `\mathrm{` + latex.EscapeText(name) + "}"})
}

// symbolEntry returns the plain symbol entry for a Typst name.
func (c *Converter) symbolEntry(name string) *symbols.Entry {
	for _, e := range c.syms.AllFromTypst(name) {
		if e.Arity == 0 && e.Strategy != symbols.Custom {
			return e
		}
	}
	return nil
}

// latexDelim maps a Typst fence delimiter to a \left/\right delimiter.
func (c *Converter) latexDelim(d string) string {
	switch d {
	case "", "(", ")", "[", "]", "{", "}", "|", "/":
		return d
	case "<":
		return `\langle`
	case ">":
		return `\rangle`
	case "bar.v":
		return "|"
	case "bar.v.double", "||":
		return `\|`
	}
	if e := c.symbolEntry(d); e != nil {
		if e.LaTeX == "{" || e.LaTeX == "}" {
			return e.LaTeX
		}
		return `\` + e.LaTeX
	}
	c.record(loss.UnsupportedValue, d, "delimiter has no LaTeX equivalent", d, "math")
	return ""
}

// callArgs separates positional and named arguments.
func callArgs(n *ast.MathCall) (pos [][]ast.MathNode, named map[string][]ast.MathNode, order []string) {
	named = make(map[string][]ast.MathNode)
	for i, a := range n.Args {
		if name := n.ArgName(i); name != "" {
			named[name] = a
			order = append(order, name)
			continue
		}
		pos = append(pos, a)
	}
	return pos, named, order
}

func (c *Converter) callToLaTeX(n *ast.MathCall) []ast.MathNode {
	pos, named, order := callArgs(n)
	arg := func(i int) []ast.MathNode {
		if i < len(pos) {
			return c.mathToLaTeX(pos[i])
		}
		return []ast.MathNode{}
	}
	src := typst.MathString([]ast.MathNode{n})
	unused := func(known ...string) {
		for _, k := range order {
			if !contains(known, k) {
				c.record(loss.UnsupportedValue, n.Name+"."+k, "argument has no LaTeX equivalent", src, "math")
			}
		}
	}

	switch n.Name {
	case "frac":
		unused()
		return []ast.MathNode{&ast.MathFrac{Num: arg(0), Den: arg(1)}}
	case "attach":
		unused("t", "b", "tr", "br", "tl", "bl")
		return c.attach(single(arg(0)), named)
	case "op":
		unused("limits")
		text := mathPlain(pos)
		limits := false
		if v, ok := named["limits"]; ok {
			limits = strings.Contains(typst.MathString(v), "true")
		}
		return []ast.MathNode{&ast.MathCall{
			Name: "operatorname",
			Star: limits,
			Args: [][]ast.MathNode{{&ast.MathRaw{Text: latex.EscapeText(text)}}},
		}}
	case "lr":
		unused("size")
		return []ast.MathNode{c.lr(pos)}
	case "vec":
		unused("delim")
		m := &ast.MathMatrix{Env: "pmatrix", Delim: "("}
		for i := range pos {
			m.Rows = append(m.Rows, [][]ast.MathNode{arg(i)})
		}
		return []ast.MathNode{m}
	}

	entries := c.syms.AllFromTypst(n.Name)
	var e *symbols.Entry
	for _, cand := range entries {
		if cand.Arity == len(pos) {
			e = cand
			break
		}
	}
	if e == nil && len(entries) > 0 {
		e = entries[0]
	}
	if e == nil {
		id := c.record(loss.UnknownCommand, n.Name, "function has no LaTeX equivalent", src, "math")
		out := []ast.MathNode{&ast.MathCall{Name: "operatorname", Args: [][]ast.MathNode{{&ast.MathRaw{Text: latex.EscapeText(n.Name)}}}}}
		return c.latexMarked(id, append(out, c.argList(pos)...)...)
	}

	switch {
	case e.Strategy == symbols.Custom && e.Custom == "fence":
		unused("size")
		return []ast.MathNode{&ast.MathFenced{Open: `\` + e.Open, Close: `\` + e.Close, Body: arg(0)}}
	case e.Strategy == symbols.Custom && e.Custom == "radical":
		unused()
		if len(pos) >= 2 {
			return []ast.MathNode{&ast.MathCall{Name: "sqrt", Opt: arg(0), Args: [][]ast.MathNode{arg(1)}}}
		}
		return []ast.MathNode{&ast.MathCall{Name: "sqrt", Args: [][]ast.MathNode{arg(0)}}}
	case e.Strategy == symbols.Custom && e.Custom == "text":
		unused()
		return []ast.MathNode{&ast.MathText{Text: mathPlain(pos)}}
	case e.Arity == 0:
		// a symbol applied like a function: sin(x)
		unused()
		return append([]ast.MathNode{ast.Sym(e.LaTeX)}, c.argList(pos)...)
	}

	unused()
	call := &ast.MathCall{Name: e.LaTeX}
	for i := 0; i < e.Arity; i++ {
		a := arg(i)
		if e.Kind == "font" {
			a = unwrapText(a)
		}
		call.Args = append(call.Args, a)
	}
	return []ast.MathNode{call}
}

// argList writes arguments as a parenthesized, comma-separated list.
func (c *Converter) argList(pos [][]ast.MathNode) []ast.MathNode {
	out := []ast.MathNode{&ast.MathAtom{Kind: ast.AtomOp, Text: "("}}
	for i, a := range pos {
		if i > 0 {
			out = append(out, &ast.MathAtom{Kind: ast.AtomPunct, Text: ","})
		}
		out = append(out, c.mathToLaTeX(a)...)
	}
	return append(out, &ast.MathAtom{Kind: ast.AtomOp, Text: ")"})
}

// unwrapText turns quoted text inside a font command into escaped letters,
// so upright("d") becomes \mathrm{d} rather than \mathrm{\text{d}}.
func unwrapText(nodes []ast.MathNode) []ast.MathNode {
	out := make([]ast.MathNode, len(nodes))
	for i, n := range nodes {
		if t, ok := n.(*ast.MathText); ok {
			out[i] = &ast.MathRaw{Text: latex.EscapeText(t.Text)}
			continue
		}
		out[i] = n
	}
	return out
}

// attach maps Typst's attach: limits above and below become \overset and
// \underset, corner scripts become ordinary scripts.
func (c *Converter) attach(base ast.MathNode, named map[string][]ast.MathNode) []ast.MathNode {
	get := func(k string) []ast.MathNode {
		if v, ok := named[k]; ok {
			return c.mathToLaTeX(v)
		}
		return nil
	}
	if t := get("t"); t != nil {
		base = &ast.MathCall{Name: "overset", Args: [][]ast.MathNode{t, {base}}}
	}
	if b := get("b"); b != nil {
		base = &ast.MathCall{Name: "underset", Args: [][]ast.MathNode{b, {base}}}
	}
	var out []ast.MathNode
	if tl, bl := get("tl"), get("bl"); tl != nil || bl != nil {
		out = append(out, &ast.MathScript{Base: &ast.MathGroup{}, Sup: tl, Sub: bl})
	}
	if tr, br := get("tr"), get("br"); tr != nil || br != nil {
		base = &ast.MathScript{Base: base, Sup: tr, Sub: br}
	}
	return append(out, base)
}

// lr maps lr(...): its body is a bracket group or a delimited sequence.
func (c *Converter) lr(pos [][]ast.MathNode) ast.MathNode {
	var body []ast.MathNode
	if len(pos) > 0 {
		body = pos[0]
	}
	if len(body) == 1 {
		if f, ok := body[0].(*ast.MathFenced); ok {
			return &ast.MathFenced{Open: c.latexDelim(f.Open), Close: c.latexDelim(f.Close), Body: c.mathToLaTeX(f.Body)}
		}
	}
	delimOf := func(n ast.MathNode) (string, bool) {
		a, ok := n.(*ast.MathAtom)
		if !ok || (a.Kind != ast.AtomOp && a.Kind != ast.AtomSymbol) {
			return "", false
		}
		return a.Text, true
	}
	if len(body) >= 2 {
		open, ok1 := delimOf(body[0])
		close, ok2 := delimOf(body[len(body)-1])
		if ok1 && ok2 {
			return &ast.MathFenced{Open: c.latexDelim(open), Close: c.latexDelim(close), Body: c.mathToLaTeX(body[1 : len(body)-1])}
		}
	}
	return &ast.MathFenced{Body: c.mathToLaTeX(body)}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
