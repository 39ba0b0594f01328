package latex

import (
	"strings"
	"unicode"

	"texbridge/internal/ast"
)

// mathParser builds a formula tree from the tokens of one math span.
type mathParser struct {
	toks  []Token
	pos   int
	st    *state
	label string
}

// parseMath parses a formula and returns its body together with the first
// \label found in it.
func (st *state) parseMath(toks []Token) ([]ast.MathNode, string) {
	m := &mathParser{toks: toks, st: st}
	body := m.seq(nil)
	return body, m.label
}

func (m *mathParser) sub(toks []Token) []ast.MathNode {
	s := &mathParser{toks: toks, st: m.st}
	body := s.seq(nil)
	if m.label == "" {
		m.label = s.label
	}
	return body
}

func (m *mathParser) eof() bool { return m.pos >= len(m.toks) }

func (m *mathParser) skipSpaces() {
	for !m.eof() && (m.toks[m.pos].Kind == Space || m.toks[m.pos].Kind == ParBreak) {
		m.pos++
	}
}

// arg reads one argument: a brace group or a single token.
func (m *mathParser) arg() ([]Token, bool) {
	m.skipSpaces()
	if m.eof() || m.toks[m.pos].Kind == EndGroup {
		return nil, false
	}
	t := m.toks[m.pos]
	m.pos++
	if t.Kind != BeginGroup {
		return []Token{t}, true
	}
	start, depth := m.pos, 0
	for ; m.pos < len(m.toks); m.pos++ {
		switch m.toks[m.pos].Kind {
		case BeginGroup:
			depth++
		case EndGroup:
			if depth == 0 {
				inner := m.toks[start:m.pos]
				m.pos++
				return inner, true
			}
			depth--
		}
	}
	return m.toks[start:], true
}

func (m *mathParser) optional() ([]Token, bool) {
	p := &parser{toks: m.toks, pos: m.pos}
	opt, ok := p.optional()
	if ok {
		m.pos = p.pos
	}
	return opt, ok
}

func (m *mathParser) star() bool {
	if !m.eof() && m.toks[m.pos].IsChar("*") {
		m.pos++
		return true
	}
	return false
}

// seq parses nodes until stop reports true or the input ends.
func (m *mathParser) seq(stop func(Token) bool) []ast.MathNode {
	var out []ast.MathNode
	for !m.eof() {
		t := m.toks[m.pos]
		if stop != nil && stop(t) {
			break
		}
		switch t.Kind {
		case Space, ParBreak, MathShift, EndGroup:
			m.pos++
		case Superscript, Subscript:
			m.pos++
			out = m.script(out, t.Kind == Superscript)
		default:
			if n := m.one(); n != nil {
				out = append(out, n)
			}
		}
	}
	return out
}

// one parses a single node at the current position; nil for tokens that
// produce nothing.
func (m *mathParser) one() ast.MathNode {
	t := m.toks[m.pos]
	m.pos++
	switch t.Kind {
	case Char:
		return m.char(t)
	case BeginGroup:
		m.pos--
		inner, _ := m.arg()
		return &ast.MathGroup{Children: m.sub(inner)}
	case AlignTab:
		return &ast.MathAlign{}
	case Active:
		return ast.Sym(" ")
	case Param:
		return &ast.MathAtom{Kind: ast.AtomOp, Text: t.Text}
	case Verbatim:
		return &ast.MathRaw{Text: verbatimSource(t), LossID: t.LossID}
	case Command:
		return m.command(t)
	}
	return nil
}

func (m *mathParser) char(t Token) ast.MathNode {
	r := []rune(t.Text)[0]
	switch {
	case unicode.IsDigit(r):
		var sb strings.Builder
		sb.WriteString(t.Text)
		for !m.eof() {
			n := m.toks[m.pos]
			if n.Kind != Char {
				break
			}
			c := []rune(n.Text)[0]
			if unicode.IsDigit(c) {
				sb.WriteString(n.Text)
				m.pos++
				continue
			}
			if c == '.' && m.pos+1 < len(m.toks) && m.toks[m.pos+1].Kind == Char && isDigit(m.toks[m.pos+1].Text) {
				sb.WriteString(".")
				m.pos++
				continue
			}
			break
		}
		return &ast.MathAtom{Kind: ast.AtomNumber, Text: sb.String()}
	case unicode.IsLetter(r):
		return &ast.MathAtom{Kind: ast.AtomIdent, Text: t.Text}
	case r == ',' || r == ';':
		return &ast.MathAtom{Kind: ast.AtomPunct, Text: t.Text}
	}
	return &ast.MathAtom{Kind: ast.AtomOp, Text: t.Text}
}

func isDigit(s string) bool {
	return s != "" && unicode.IsDigit([]rune(s)[0])
}

// script attaches a sub- or superscript to the last node of out.
func (m *mathParser) script(out []ast.MathNode, sup bool) []ast.MathNode {
	var arg []ast.MathNode
	m.skipSpaces()
	if !m.eof() {
		if m.toks[m.pos].Kind == BeginGroup {
			inner, _ := m.arg()
			arg = m.sub(inner)
		} else if n := m.one(); n != nil {
			arg = []ast.MathNode{n}
		}
	}
	if arg == nil {
		arg = []ast.MathNode{}
	}

	var s *ast.MathScript
	if len(out) > 0 {
		if prev, ok := out[len(out)-1].(*ast.MathScript); ok && (sup && prev.Sup == nil || !sup && prev.Sub == nil) {
			s = prev
		} else {
			s = &ast.MathScript{Base: out[len(out)-1]}
			out[len(out)-1] = s
		}
	} else {
		s = &ast.MathScript{Base: &ast.MathGroup{}}
		out = append(out, s)
	}
	if sup {
		s.Sup = arg
	} else {
		s.Sub = arg
	}
	return out
}

func (m *mathParser) command(t Token) ast.MathNode {
	name := t.Text
	switch name {
	case `\`:
		m.star()
		m.optional()
		return &ast.MathNewline{}
	case "label":
		key, _ := m.arg()
		if m.label == "" {
			m.label = plainName(key)
		}
		return nil
	case "left":
		return m.fenced()
	case "right", "middle":
		// unbalanced; keep the delimiter as an ordinary symbol
		return m.delimiter()
	case "begin":
		return m.environment()
	case "end":
		m.arg()
		return nil
	case "hline":
		return nil
	case "text", "textrm", "mbox", "hbox", "textup", "textnormal", "textit", "textbf", "textsf", "texttt", "mathnormal":
		arg, _ := m.arg()
		return &ast.MathText{Text: mathPlainText(m.st, arg)}
	case "operatorname":
		star := m.star()
		arg, _ := m.arg()
		return &ast.MathCall{Name: name, Star: star, Args: [][]ast.MathNode{m.sub(arg)}}
	}

	if _, ok := ignoredCommands[name]; ok {
		return nil
	}
	if e, ok := m.st.syms.FromLaTeX(name); ok {
		if e.Arity == 0 {
			return ast.Sym(name)
		}
		call := &ast.MathCall{Name: name}
		if e.Optional {
			if opt, ok := m.optional(); ok {
				call.Opt = m.sub(opt)
			}
		}
		for i := 0; i < e.Arity; i++ {
			arg, _ := m.arg()
			call.Args = append(call.Args, m.sub(arg))
		}
		return call
	}
	if s, ok := m.st.syms.TextSymbol(name); ok {
		return &ast.MathAtom{Kind: ast.AtomOp, Text: s}
	}

	call := &ast.MathCall{Name: name, LossID: t.LossID}
	call.Star = m.star()
	if !m.eof() && m.toks[m.pos].IsChar("[") {
		if opt, ok := m.optional(); ok {
			call.Opt = m.sub(opt)
		}
	}
	for !m.eof() && m.toks[m.pos].Kind == BeginGroup {
		arg, _ := m.arg()
		call.Args = append(call.Args, m.sub(arg))
	}
	return call
}

// delimiter reads the delimiter after \left, \right or \middle.
func (m *mathParser) delimiter() ast.MathNode {
	d := m.delimiterText()
	if d == "" || d == "." {
		return nil
	}
	if strings.HasPrefix(d, `\`) {
		return ast.Sym(d[1:])
	}
	return &ast.MathAtom{Kind: ast.AtomOp, Text: d}
}

func (m *mathParser) delimiterText() string {
	m.skipSpaces()
	if m.eof() {
		return ""
	}
	t := m.toks[m.pos]
	m.pos++
	switch t.Kind {
	case Command:
		return `\` + t.Text
	case Char:
		return t.Text
	}
	m.pos--
	return ""
}

// fenced parses \left<d> .. \right<d>.
func (m *mathParser) fenced() ast.MathNode {
	f := &ast.MathFenced{Open: m.delimiterText()}
	// nested pairs are consumed by the recursive call
	f.Body = m.seq(func(t Token) bool { return t.Is("right") })
	if !m.eof() && m.toks[m.pos].Is("right") {
		m.pos++
		f.Close = m.delimiterText()
	}
	return f
}

// environment parses a matrix-like environment nested in math.
func (m *mathParser) environment() ast.MathNode {
	nameToks, _ := m.arg()
	env := plainName(nameToks)
	p := &parser{toks: m.toks, pos: m.pos}
	body := p.collectEnv(env)
	m.pos = p.pos

	delim, ok := MatrixDelim(env)
	if !ok {
		src := `\begin{` + env + `}` + Detokenize(body) + `\end{` + env + `}`
		return &ast.MathRaw{Text: src}
	}
	if env == "array" {
		bp := &parser{toks: body}
		bp.group()
		body = body[bp.pos:]
	}
	mat := &ast.MathMatrix{Env: env, Delim: delim}
	for _, row := range splitRows(body) {
		var cells [][]ast.MathNode
		for _, cell := range splitCells(row) {
			cells = append(cells, m.sub(cell))
		}
		mat.Rows = append(mat.Rows, cells)
	}
	return mat
}

// splitRows splits tokens at top-level \\.
func splitRows(toks []Token) [][]Token {
	var rows [][]Token
	start := 0
	walkTopLevel(toks, func(i int, t Token) {
		if t.Is(`\`) {
			rows = append(rows, toks[start:i])
			start = i + 1
		}
	})
	if rest := trimSpaceTokens(toks[start:]); len(rest) > 0 {
		rows = append(rows, toks[start:])
	}
	return rows
}

// splitCells splits a row at top-level &.
func splitCells(toks []Token) [][]Token {
	var cells [][]Token
	start := 0
	walkTopLevel(toks, func(i int, t Token) {
		if t.Kind == AlignTab {
			cells = append(cells, toks[start:i])
			start = i + 1
		}
	})
	return append(cells, toks[start:])
}

// walkTopLevel calls fn for every token outside groups and nested
// environments.
func walkTopLevel(toks []Token, fn func(int, Token)) {
	braces, envs := 0, 0
	for i, t := range toks {
		switch {
		case t.Kind == BeginGroup:
			braces++
		case t.Kind == EndGroup:
			braces--
		case t.Is("begin"):
			envs++
		case t.Is("end"):
			envs--
		case braces == 0 && envs == 0:
			fn(i, t)
		}
	}
}

// mathPlainText renders the argument of \text as plain text.
func mathPlainText(st *state, toks []Token) string {
	var sb strings.Builder
	for _, t := range toks {
		switch t.Kind {
		case Char, AlignTab, Superscript, Subscript, MathShift:
			sb.WriteString(t.Text)
		case Space, Active, ParBreak:
			sb.WriteString(" ")
		case Command:
			if s, ok := st.syms.TextSymbol(t.Text); ok {
				sb.WriteString(s)
			}
		}
	}
	return quoteReplacer.Replace(sb.String())
}
