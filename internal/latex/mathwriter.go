package latex

import (
	"strings"

	"texbridge/internal/ast"
)

// MathString renders a LaTeX-flavored formula tree.
func MathString(nodes []ast.MathNode) string {
	w := &writer{}
	w.math(nodes)
	return w.sb.String()
}

func (w *writer) math(nodes []ast.MathNode) {
	var prev ast.MathNode
	for _, n := range nodes {
		if n == nil {
			continue
		}
		s := mathNode(n)
		if s == "" {
			continue
		}
		if prev != nil {
			if sep := mathSeparator(prev, n); sep != "" {
				w.write(sep)
			} else if endsWithWord(w.sb.String()) && startsWithLetter(s) {
				w.write(" ")
			}
		}
		w.write(s)
		prev = n
	}
}

// mathSeparator decides the spacing between two formula nodes.
func mathSeparator(prev, next ast.MathNode) string {
	if _, ok := next.(*ast.MathNewline); ok {
		return " "
	}
	if _, ok := prev.(*ast.MathNewline); ok {
		return ""
	}
	if a, ok := next.(*ast.MathAtom); ok && a.Kind == ast.AtomPunct {
		return ""
	}
	if tight(prev, true) || tight(next, false) {
		return ""
	}
	return " "
}

// tight reports whether no space belongs on the inner side of n.
func tight(n ast.MathNode, left bool) bool {
	a, ok := n.(*ast.MathAtom)
	if !ok || a.Kind != ast.AtomOp {
		return false
	}
	switch a.Text {
	case "(", "[":
		return left
	case ")", "]", "'", "!":
		return !left
	}
	return false
}

func mathNode(n ast.MathNode) string {
	switch n := n.(type) {
	case *ast.MathAtom:
		switch n.Kind {
		case ast.AtomSymbol:
			return `\` + n.Text
		case ast.AtomOp:
			return escapeMathOp(n.Text)
		}
		return n.Text
	case *ast.MathCall:
		var sb strings.Builder
		sb.WriteString(`\` + n.Name)
		if n.Star {
			sb.WriteString("*")
		}
		if n.Opt != nil {
			sb.WriteString("[" + MathString(n.Opt) + "]")
		}
		for _, a := range n.Args {
			sb.WriteString("{" + MathString(a) + "}")
		}
		return sb.String()
	case *ast.MathFrac:
		return `\frac{` + MathString(n.Num) + "}{" + MathString(n.Den) + "}"
	case *ast.MathScript:
		var sb strings.Builder
		base := mathNode(n.Base)
		if _, ok := n.Base.(*ast.MathScript); ok {
			base = "{" + base + "}"
		}
		sb.WriteString(base)
		if n.Sub != nil {
			sb.WriteString("_" + scriptArg(n.Sub))
		}
		if n.Sup != nil {
			sb.WriteString("^" + scriptArg(n.Sup))
		}
		return sb.String()
	case *ast.MathGroup:
		return "{" + MathString(n.Children) + "}"
	case *ast.MathFenced:
		open, close := n.Open, n.Close
		if open == "" {
			open = "."
		}
		if close == "" {
			close = "."
		}
		return `\left` + fenceDelim(open) + " " + MathString(n.Body) + ` \right` + fenceDelim(close)
	case *ast.MathText:
		return `\text{` + EscapeText(n.Text) + "}"
	case *ast.MathMatrix:
		return matrixString(n)
	case *ast.MathAlign:
		return "&"
	case *ast.MathNewline:
		return `\\`
	case *ast.MathRaw:
		return n.Text
	}
	return ""
}

// fenceDelim separates a control-word delimiter from what follows.
func fenceDelim(d string) string {
	if d == "{" || d == "}" {
		return `\` + d
	}
	return d
}

func escapeMathOp(s string) string {
	switch s {
	case "%", "#", "$", "{", "}", "&", "_":
		return `\` + s
	case "~":
		return `\sim`
	}
	return s
}

func scriptArg(nodes []ast.MathNode) string {
	if len(nodes) == 1 {
		if a, ok := nodes[0].(*ast.MathAtom); ok && len([]rune(a.Text)) == 1 && a.Kind != ast.AtomSymbol {
			return a.Text
		}
	}
	return "{" + MathString(nodes) + "}"
}

func matrixString(m *ast.MathMatrix) string {
	env := m.Env
	if env == "" {
		env = MatrixEnvironment(m.Delim)
	}
	var sb strings.Builder
	sb.WriteString(`\begin{` + env + "}")
	if env == "array" {
		cols := 0
		for _, row := range m.Rows {
			if len(row) > cols {
				cols = len(row)
			}
		}
		sb.WriteString("{" + strings.Repeat("c", cols) + "}")
	}
	sb.WriteString("\n")
	for i, row := range m.Rows {
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = MathString(c)
		}
		sb.WriteString("  " + strings.Join(cells, " & "))
		if i < len(m.Rows)-1 {
			sb.WriteString(` \\`)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(`\end{` + env + "}")
	return sb.String()
}
