package convert

import (
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/latex"
	"texbridge/internal/loss"
	"texbridge/internal/symbols"
	"texbridge/internal/typst"
)

// mathToTypst rewrites a LaTeX-flavored formula for the Typst writer.
func (c *Converter) mathToTypst(nodes []ast.MathNode) []ast.MathNode {
	if nodes == nil {
		return nil
	}
	out := make([]ast.MathNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, c.mathNodeToTypst(n)...)
	}
	return pairBrackets(out)
}

func (c *Converter) mathOneToTypst(n ast.MathNode) ast.MathNode {
	return single(c.mathNodeToTypst(n))
}

// single wraps several nodes in a group so they stand in one position.
func single(nodes []ast.MathNode) ast.MathNode {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return &ast.MathGroup{Children: nodes}
}

func (c *Converter) mathNodeToTypst(n ast.MathNode) []ast.MathNode {
	one := func(n ast.MathNode) []ast.MathNode { return []ast.MathNode{n} }

	switch n := n.(type) {
	case *ast.MathAtom:
		if n.Kind != ast.AtomSymbol {
			return one(&ast.MathAtom{Kind: n.Kind, Text: n.Text})
		}
		if e, ok := c.syms.FromLaTeX(n.Text); ok && e.Arity == 0 {
			return one(ast.Sym(e.Typst))
		}
		id := c.record(loss.UnknownCommand, `\`+n.Text, "symbol has no Typst equivalent", `\`+n.Text, "math")
		return one(c.typstMathRaw(`\`+n.Text, id))
	case *ast.MathCall:
		return one(c.callToTypst(n))
	case *ast.MathFrac:
		return one(&ast.MathFrac{Num: c.mathToTypst(n.Num), Den: c.mathToTypst(n.Den), Slash: n.Slash})
	case *ast.MathScript:
		return one(&ast.MathScript{Base: c.mathOneToTypst(n.Base), Sub: c.mathToTypst(n.Sub), Sup: c.mathToTypst(n.Sup)})
	case *ast.MathGroup:
		return one(&ast.MathGroup{Children: c.mathToTypst(n.Children)})
	case *ast.MathFenced:
		return one(&ast.MathFenced{Open: c.typstDelim(n.Open), Close: c.typstDelim(n.Close), Body: c.mathToTypst(n.Body)})
	case *ast.MathText:
		return one(&ast.MathText{Text: n.Text})
	case *ast.MathMatrix:
		return one(&ast.MathMatrix{Env: n.Env, Delim: n.Delim, Rows: c.rowsToTypst(n.Rows)})
	case *ast.MathAlign:
		return one(&ast.MathAlign{})
	case *ast.MathNewline:
		return one(&ast.MathNewline{})
	case *ast.MathRaw:
		id := n.LossID
		if id == 0 {
			kind, name := loss.UnsupportedFeature, "math"
			if strings.HasPrefix(n.Text, `\begin{`) {
				kind = loss.UnknownEnvironment
				name, _, _ = strings.Cut(strings.TrimPrefix(n.Text, `\begin{`), "}")
			}
			id = c.record(kind, name, "math construct has no Typst equivalent", n.Text, "math")
		}
		return one(c.typstMathRaw(n.Text, id))
	}
	return nil
}

func (c *Converter) rowsToTypst(rows [][][]ast.MathNode) [][][]ast.MathNode {
	out := make([][][]ast.MathNode, len(rows))
	for i, row := range rows {
		out[i] = make([][]ast.MathNode, len(row))
		for j, cell := range row {
			out[i][j] = c.mathToTypst(cell)
		}
	}
	return out
}

// typstMathRaw keeps LaTeX math source as a quoted string in a Typst
// formula, behind its marker.
func (c *Converter) typstMathRaw(src string, id int) ast.MathNode {
	text := typst.Quote(src)
	if m := c.marker(id); m != "" {
		text = "/* " + m + " */ " + text
	}
	return &ast.MathRaw{Text: text, LossID: id}
}

func (c *Converter) callToTypst(n *ast.MathCall) ast.MathNode {
	if n.LossID != 0 {
		return c.typstMathRaw(latex.MathString([]ast.MathNode{n}), n.LossID)
	}
	e, ok := c.syms.FromLaTeX(n.Name)
	if !ok || e.Arity == 0 {
		src := latex.MathString([]ast.MathNode{n})
		id := c.record(loss.UnknownCommand, `\`+n.Name, "command has no Typst equivalent", src, "math")
		return c.typstMathRaw(src, id)
	}
	args := make([][]ast.MathNode, len(n.Args))
	for i, a := range n.Args {
		args[i] = c.mathToTypst(a)
	}
	arg := func(i int) []ast.MathNode {
		if i < len(args) {
			return args[i]
		}
		return []ast.MathNode{}
	}

	switch e.Strategy {
	case symbols.Custom:
		switch e.Custom {
		case "fraction":
			return &ast.MathFrac{Num: arg(0), Den: arg(1)}
		case "radical":
			if n.Opt == nil {
				return &ast.MathCall{Name: "sqrt", Args: [][]ast.MathNode{arg(0)}}
			}
			return &ast.MathCall{Name: "root", Args: [][]ast.MathNode{c.mathToTypst(n.Opt), arg(0)}}
		case "text":
			return &ast.MathText{Text: mathPlain(n.Args)}
		case "operatorname":
			call := &ast.MathCall{Name: "op", Args: [][]ast.MathNode{{&ast.MathText{Text: mathPlain(n.Args)}}}}
			if n.Star {
				call.Args = append(call.Args, []ast.MathNode{&ast.MathRaw{Text: "#true"}})
				call.Names = []string{"", "limits"}
			}
			return call
		}
	case symbols.Reorder:
		call := &ast.MathCall{Name: e.Typst}
		for _, idx := range e.Order {
			call.Args = append(call.Args, arg(idx))
		}
		for _, name := range e.Names {
			if name != "" {
				call.Names = e.Names
				break
			}
		}
		return call
	}
	if n.Opt != nil {
		c.record(loss.UnsupportedValue, `\`+n.Name, "optional argument dropped", latex.MathString([]ast.MathNode{n}), "math")
	}
	return &ast.MathCall{Name: e.Typst, Args: args[:min(len(args), e.Arity)]}
}

// mathPlain flattens arguments that hold text into a plain string.
func mathPlain(args [][]ast.MathNode) string {
	var sb strings.Builder
	for _, a := range args {
		for _, n := range a {
			switch n := n.(type) {
			case *ast.MathText:
				sb.WriteString(n.Text)
			case *ast.MathAtom:
				sb.WriteString(n.Text)
			case *ast.MathGroup:
				sb.WriteString(mathPlain([][]ast.MathNode{n.Children}))
			}
		}
	}
	return sb.String()
}

// typstDelim maps a \left/\right delimiter. "" means none.
func (c *Converter) typstDelim(d string) string {
	switch d {
	case "", ".":
		return ""
	case `\{`:
		return "{"
	case `\}`:
		return "}"
	case "<":
		return "angle.l"
	case ">":
		return "angle.r"
	case `\|`:
		return "bar.v.double"
	case `\vert`, `\lvert`, `\rvert`:
		return "|"
	}
	if strings.HasPrefix(d, `\`) {
		if e, ok := c.syms.FromLaTeX(d[1:]); ok && e.Arity == 0 {
			return e.Typst
		}
		c.record(loss.UnsupportedValue, d, "delimiter has no Typst equivalent", d, "math")
		return ""
	}
	return d
}

// pairBrackets groups matching bracket atoms into fenced nodes, so the
// Typst writer emits a bracket pair instead of escaped characters.
// Unmatched brackets stay atoms.
func pairBrackets(nodes []ast.MathNode) []ast.MathNode {
	out := make([]ast.MathNode, 0, len(nodes))
	var stack []int
	for _, n := range nodes {
		a, ok := n.(*ast.MathAtom)
		if !ok || a.Kind != ast.AtomOp {
			out = append(out, n)
			continue
		}
		switch a.Text {
		case "(", "[":
			stack = append(stack, len(out))
			out = append(out, n)
		case ")", "]":
			if len(stack) == 0 {
				out = append(out, n)
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			open := out[start].(*ast.MathAtom).Text
			body := append([]ast.MathNode{}, out[start+1:]...)
			out = append(out[:start], &ast.MathFenced{Open: open, Close: a.Text, Body: body})
		default:
			out = append(out, n)
		}
	}
	return out
}
