package typst

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"texbridge/internal/ast"
)

// shorthands maps math shorthand sequences to symbol names, longest first.
var shorthands = []struct{ seq, name string }{
	{"<==>", "arrow.l.r.double.long"},
	{"<=>", "arrow.l.r.double"},
	{"==>", "arrow.r.double.long"},
	{"-->", "arrow.r.long"},
	{"<--", "arrow.l.long"},
	{"|->", "arrow.r.bar"},
	{"<->", "arrow.l.r"},
	{"...", "dots.h"},
	{"->", "arrow.r"},
	{"<-", "arrow.l"},
	{"=>", "arrow.r.double"},
	{"<=", "lt.eq"},
	{">=", "gt.eq"},
	{"!=", "eq.not"},
	{":=", "colon.eq"},
	{"<<", "lt.double"},
	{">>", "gt.double"},
	{"||", "bar.v.double"},
}

// Shorthand returns the shorthand sequence for a symbol name, if any.
func Shorthand(name string) (string, bool) {
	for _, s := range shorthands {
		if s.name == name {
			return s.seq, true
		}
	}
	return "", false
}

type mathParser struct {
	src string
	pos int
}

func parseMath(src string) []ast.MathNode {
	m := &mathParser{src: src}
	return m.seq(nil)
}

// ParseMath reads a formula without its dollar delimiters.
func ParseMath(src string) []ast.MathNode { return parseMath(src) }

func (m *mathParser) eof() bool { return m.pos >= len(m.src) }

func (m *mathParser) peek() byte {
	if m.eof() {
		return 0
	}
	return m.src[m.pos]
}

func (m *mathParser) peekAt(off int) byte {
	if m.pos+off >= len(m.src) {
		return 0
	}
	return m.src[m.pos+off]
}

func (m *mathParser) skipSpace() {
	for !m.eof() {
		switch {
		case m.peek() == ' ' || m.peek() == '\t' || m.peek() == '\n' || m.peek() == '\r':
			m.pos++
		case strings.HasPrefix(m.src[m.pos:], "//"):
			for !m.eof() && m.peek() != '\n' {
				m.pos++
			}
		case strings.HasPrefix(m.src[m.pos:], "/*"):
			end := strings.Index(m.src[m.pos:], "*/")
			if end < 0 {
				m.pos = len(m.src)
			} else {
				m.pos += end + 2
			}
		default:
			return
		}
	}
}

func isCloser(c byte) bool { return c == ')' || c == ']' || c == '}' }

// seq reads nodes until stop reports true or the input ends. Scripts and
// slash fractions bind to the node before them.
func (m *mathParser) seq(stop func() bool) []ast.MathNode {
	var out []ast.MathNode
	for {
		m.skipSpace()
		if m.eof() || (stop != nil && stop()) {
			return out
		}
		switch m.peek() {
		case '_', '^':
			c := m.peek()
			m.pos++
			out = attachScript(out, c, m.scriptArg())
			continue
		case '/':
			m.pos++
			if len(out) == 0 {
				out = append(out, &ast.MathAtom{Kind: ast.AtomOp, Text: "/"})
				continue
			}
			num := unwrapParens(out[len(out)-1])
			den := unwrapParens(m.unit())
			out[len(out)-1] = &ast.MathFrac{Num: num, Den: den, Slash: true}
			continue
		}
		if n := m.primary(); n != nil {
			out = append(out, n)
		}
	}
}

func attachScript(out []ast.MathNode, c byte, arg []ast.MathNode) []ast.MathNode {
	var base ast.MathNode = &ast.MathGroup{}
	if len(out) > 0 {
		base = out[len(out)-1]
		out = out[:len(out)-1]
	}
	s, ok := base.(*ast.MathScript)
	if !ok || (c == '_' && s.Sub != nil) || (c == '^' && s.Sup != nil) {
		s = &ast.MathScript{Base: base}
	}
	if c == '_' {
		s.Sub = arg
	} else {
		s.Sup = arg
	}
	return append(out, s)
}

func (m *mathParser) scriptArg() []ast.MathNode {
	m.skipSpace()
	n := m.primary()
	if n == nil {
		return []ast.MathNode{}
	}
	return unwrapParens(n)
}

// unit reads one node with its scripts, as a fraction denominator.
func (m *mathParser) unit() ast.MathNode {
	m.skipSpace()
	n := m.primary()
	if n == nil {
		return &ast.MathGroup{}
	}
	out := []ast.MathNode{n}
	for m.peek() == '_' || m.peek() == '^' {
		c := m.peek()
		m.pos++
		out = attachScript(out, c, m.scriptArg())
	}
	return out[0]
}

// unwrapParens strips the parentheses Typst drops around fraction operands
// and script arguments.
func unwrapParens(n ast.MathNode) []ast.MathNode {
	if f, ok := n.(*ast.MathFenced); ok && f.Open == "(" && f.Close == ")" {
		return f.Body
	}
	return []ast.MathNode{n}
}

func (m *mathParser) primary() ast.MathNode {
	c := m.peek()
	rest := m.src[m.pos:]

	for _, s := range shorthands {
		if strings.HasPrefix(rest, s.seq) {
			m.pos += len(s.seq)
			return ast.Sym(s.name)
		}
	}

	switch {
	case c >= '0' && c <= '9':
		start := m.pos
		for m.peek() >= '0' && m.peek() <= '9' {
			m.pos++
		}
		if m.peek() == '.' && m.peekAt(1) >= '0' && m.peekAt(1) <= '9' {
			m.pos++
			for m.peek() >= '0' && m.peek() <= '9' {
				m.pos++
			}
		}
		return &ast.MathAtom{Kind: ast.AtomNumber, Text: m.src[start:m.pos]}
	case c == '"':
		return &ast.MathText{Text: m.text()}
	case c == '\\':
		next := m.peekAt(1)
		if next == 0 || next == ' ' || next == '\n' || next == '\t' {
			m.pos++
			return &ast.MathNewline{}
		}
		m.pos++
		r, size := utf8.DecodeRuneInString(m.src[m.pos:])
		m.pos += size
		if r == ',' || r == ';' {
			return &ast.MathAtom{Kind: ast.AtomPunct, Text: string(r)}
		}
		return &ast.MathAtom{Kind: ast.AtomOp, Text: string(r)}
	case c == '&':
		m.pos++
		return &ast.MathAlign{}
	case c == '#':
		return m.code()
	case c == '(' || c == '[' || c == '{':
		return m.fenced()
	case isCloser(c):
		m.pos++
		return &ast.MathAtom{Kind: ast.AtomOp, Text: string(c)}
	case c == ',' || c == ';':
		m.pos++
		return &ast.MathAtom{Kind: ast.AtomPunct, Text: string(c)}
	}

	r, size := utf8.DecodeRuneInString(rest)
	if !unicode.IsLetter(r) {
		m.pos += size
		return &ast.MathAtom{Kind: ast.AtomOp, Text: string(r)}
	}
	if size > 1 || !isASCIILetter(m.peekAt(1)) {
		m.pos += size
		return &ast.MathAtom{Kind: ast.AtomIdent, Text: string(r)}
	}

	name := m.name()
	if m.peek() == '(' {
		return m.call(name)
	}
	return ast.Sym(name)
}

func isASCIILetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

// name reads a multi-letter identifier with its dotted modifiers.
func (m *mathParser) name() string {
	start := m.pos
	for isASCIILetter(m.peek()) {
		m.pos++
	}
	for m.peek() == '.' && isASCIILetter(m.peekAt(1)) {
		m.pos++
		for isASCIILetter(m.peek()) {
			m.pos++
		}
	}
	return m.src[start:m.pos]
}

func (m *mathParser) text() string {
	var sb strings.Builder
	m.pos++
	for !m.eof() && m.peek() != '"' {
		if m.peek() == '\\' && m.peekAt(1) != 0 {
			m.pos++
		}
		sb.WriteByte(m.peek())
		m.pos++
	}
	m.pos++
	return sb.String()
}

// code reads an embedded #expression and keeps it as source.
func (m *mathParser) code() ast.MathNode {
	p := &parser{src: m.src, pos: m.pos + 1}
	p.postfix(p.primary(), m.pos+1)
	if p.pos <= m.pos+1 {
		p.pos = m.pos + 1
	}
	text := m.src[m.pos:p.pos]
	m.pos = p.pos
	return &ast.MathRaw{Text: text}
}

// fenced reads a bracketed group. Any closer ends it, so half-open
// intervals like [0, 1) keep their delimiters.
func (m *mathParser) fenced() ast.MathNode {
	open := string(m.peek())
	m.pos++
	body := m.seq(func() bool { return isCloser(m.peek()) })
	f := &ast.MathFenced{Open: open, Body: body}
	if !m.eof() {
		f.Close = string(m.peek())
		m.pos++
	}
	return f
}

// call reads name(args). Commas separate arguments and semicolons rows;
// mat and cases become matrices.
func (m *mathParser) call(name string) ast.MathNode {
	m.pos++
	type arg struct {
		name  string
		nodes []ast.MathNode
	}
	var (
		args []arg
		rows [][][]ast.MathNode
		row  [][]ast.MathNode
	)
	for {
		m.skipSpace()
		a := arg{name: m.argName()}
		a.nodes = m.seq(func() bool {
			c := m.peek()
			return c == ',' || c == ';' || isCloser(c)
		})
		c := m.peek()
		if a.name != "" || len(a.nodes) > 0 || c == ',' || c == ';' {
			args = append(args, a)
			if a.name == "" {
				row = append(row, a.nodes)
			}
		}
		if !m.eof() {
			m.pos++
		}
		if c == ';' {
			rows = append(rows, row)
			row = nil
			continue
		}
		if c != ',' {
			break
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	switch name {
	case "mat":
		mat := &ast.MathMatrix{Delim: "(", Rows: rows}
		for _, a := range args {
			if a.name == "delim" {
				mat.Delim = delimValue(a.nodes)
			}
		}
		return mat
	case "cases":
		cs := &ast.MathMatrix{Env: "cases", Delim: "{"}
		for _, a := range args {
			if a.name == "" {
				cs.Rows = append(cs.Rows, splitAlign(a.nodes))
			}
		}
		return cs
	}

	c := &ast.MathCall{Name: name}
	named := false
	for _, a := range args {
		c.Args = append(c.Args, a.nodes)
		c.Names = append(c.Names, a.name)
		named = named || a.name != ""
	}
	if !named {
		c.Names = nil
	}
	return c
}

// argName reads `name:` at the start of an argument.
func (m *mathParser) argName() string {
	save := m.pos
	for isASCIILetter(m.peek()) {
		m.pos++
	}
	if m.pos > save && m.peek() == ':' && m.peekAt(1) != '=' {
		name := m.src[save:m.pos]
		m.pos++
		return name
	}
	m.pos = save
	return ""
}

func delimValue(nodes []ast.MathNode) string {
	if len(nodes) == 1 {
		switch n := nodes[0].(type) {
		case *ast.MathText:
			return n.Text
		case *ast.MathRaw:
			if n.Text == "#none" {
				return ""
			}
		}
	}
	return "("
}

func splitAlign(nodes []ast.MathNode) [][]ast.MathNode {
	cells := [][]ast.MathNode{{}}
	for _, n := range nodes {
		if _, ok := n.(*ast.MathAlign); ok {
			cells = append(cells, []ast.MathNode{})
			continue
		}
		cells[len(cells)-1] = append(cells[len(cells)-1], n)
	}
	return cells
}
