package typst

import (
	"strings"
	"unicode/utf8"

	"texbridge/internal/ast"
)

// alignedEnvs are matrix environments written as bare rows.
var alignedEnvs = map[string]bool{
	"aligned": true, "align": true, "gathered": true, "gather": true, "split": true,
	"alignat": true, "eqnarray": true, "multline": true,
}

// MathString renders a Typst-flavored formula tree.
func MathString(nodes []ast.MathNode) string {
	return mathSeq(nodes, false)
}

// mathSeq joins nodes with spaces. Inside call arguments top-level commas
// and semicolons are escaped.
func mathSeq(nodes []ast.MathNode, inArg bool) string {
	var sb strings.Builder
	var prev ast.MathNode
	for _, n := range nodes {
		if n == nil {
			continue
		}
		s := mathNode(n, inArg)
		if s == "" {
			continue
		}
		if prev != nil && !tightBefore(n) {
			sb.WriteByte(' ')
		}
		sb.WriteString(s)
		prev = n
	}
	return sb.String()
}

func tightBefore(n ast.MathNode) bool {
	a, ok := n.(*ast.MathAtom)
	if !ok {
		return false
	}
	switch {
	case a.Kind == ast.AtomPunct:
		return a.Text != ":"
	case a.Kind == ast.AtomOp:
		return a.Text == "'" || a.Text == "!"
	}
	return false
}

func mathNode(n ast.MathNode, inArg bool) string {
	switch n := n.(type) {
	case *ast.MathAtom:
		return atom(n, inArg)
	case *ast.MathCall:
		return call(n)
	case *ast.MathFrac:
		if n.Slash || (ast.IsSimpleOperand(n.Num) && ast.IsSimpleOperand(n.Den)) {
			return slashOperand(n.Num) + "/" + slashOperand(n.Den)
		}
		return "frac(" + mathSeq(n.Num, true) + ", " + mathSeq(n.Den, true) + ")"
	case *ast.MathScript:
		var sb strings.Builder
		sb.WriteString(scriptBase(n.Base))
		if n.Sub != nil {
			sb.WriteString("_" + scriptOperand(n.Sub))
		}
		if n.Sup != nil {
			sb.WriteString("^" + scriptOperand(n.Sup))
		}
		return sb.String()
	case *ast.MathGroup:
		return mathSeq(n.Children, inArg)
	case *ast.MathFenced:
		return fenced(n)
	case *ast.MathText:
		return mathText(n.Text)
	case *ast.MathMatrix:
		return matrix(n)
	case *ast.MathAlign:
		return "&"
	case *ast.MathNewline:
		return `\`
	case *ast.MathRaw:
		return n.Text
	}
	return ""
}

func atom(a *ast.MathAtom, inArg bool) string {
	switch a.Kind {
	case ast.AtomIdent:
		if utf8.RuneCountInString(a.Text) > 1 {
			return mathText(a.Text)
		}
		return a.Text
	case ast.AtomSymbol, ast.AtomNumber:
		return a.Text
	case ast.AtomPunct:
		if inArg && (a.Text == "," || a.Text == ";") {
			return `\` + a.Text
		}
		return a.Text
	}
	return escapeMathOp(a.Text)
}

func escapeMathOp(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '/', '_', '^', '#', '$', '&', '"', '\\', '(', ')', '[', ']', '{', '}':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func mathText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func call(c *ast.MathCall) string {
	args := make([]string, 0, len(c.Args)+1)
	for i, a := range c.Args {
		s := mathSeq(a, true)
		if name := c.ArgName(i); name != "" {
			s = name + ": " + s
		}
		args = append(args, s)
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

// slashOperand parenthesizes operands that would not bind as one unit.
func slashOperand(nodes []ast.MathNode) string {
	if ast.IsSimpleOperand(nodes) {
		return mathSeq(nodes, false)
	}
	return "(" + mathSeq(nodes, false) + ")"
}

func scriptBase(n ast.MathNode) string {
	switch b := n.(type) {
	case *ast.MathGroup:
		if len(b.Children) == 0 {
			return `""`
		}
		if len(b.Children) == 1 {
			return scriptBase(b.Children[0])
		}
		return "(" + mathSeq(b.Children, false) + ")"
	case *ast.MathFrac, *ast.MathScript:
		return "(" + mathNode(n, false) + ")"
	}
	return mathNode(n, false)
}

func scriptOperand(nodes []ast.MathNode) string {
	if len(nodes) == 1 {
		switch n := nodes[0].(type) {
		case *ast.MathAtom:
			if n.Kind != ast.AtomPunct {
				return atom(n, false)
			}
		case *ast.MathCall, *ast.MathText:
			return mathNode(n, false)
		case *ast.MathGroup:
			return scriptOperand(n.Children)
		}
	}
	return "(" + mathSeq(nodes, false) + ")"
}

func isBracket(open, close string) bool {
	return strings.Contains("([{", open) && open != "" && (close == "" || strings.Contains(")]}", close))
}

func fenced(f *ast.MathFenced) string {
	body := mathSeq(f.Body, false)
	if isBracket(f.Open, f.Close) {
		if f.Close == "" {
			return `\` + f.Open + " " + body
		}
		return f.Open + body + f.Close
	}
	var parts []string
	if f.Open != "" {
		parts = append(parts, delim(f.Open))
	}
	if body != "" {
		parts = append(parts, body)
	}
	if f.Close != "" {
		parts = append(parts, delim(f.Close))
	}
	return "lr(" + strings.Join(parts, " ") + ")"
}

// delim writes a fence delimiter: a symbol name or a delimiter character.
func delim(d string) string {
	if utf8.RuneCountInString(d) == 1 && !isASCIILetter(d[0]) {
		switch d {
		case "|", "<", ">":
			return d
		}
		return escapeMathOp(d)
	}
	return d
}

func matrix(m *ast.MathMatrix) string {
	rows := make([]string, len(m.Rows))
	switch {
	case m.Env == "cases":
		for i, row := range m.Rows {
			rows[i] = cells(row, " & ")
		}
		return "cases(" + strings.Join(rows, ", ") + ")"
	case alignedEnvs[m.Env]:
		for i, row := range m.Rows {
			rows[i] = joinCells(row, " & ", false)
		}
		return strings.Join(rows, ` \ `)
	}
	for i, row := range m.Rows {
		rows[i] = cells(row, ", ")
	}
	prefix := ""
	switch m.Delim {
	case "(":
	case "":
		prefix = "delim: #none, "
	default:
		prefix = "delim: " + mathText(m.Delim) + ", "
	}
	return "mat(" + prefix + strings.Join(rows, "; ") + ")"
}

func cells(row [][]ast.MathNode, sep string) string {
	return joinCells(row, sep, true)
}

func joinCells(row [][]ast.MathNode, sep string, inArg bool) string {
	parts := make([]string, len(row))
	for i, c := range row {
		parts[i] = mathSeq(c, inArg)
	}
	return strings.Join(parts, sep)
}
