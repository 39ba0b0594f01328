// Package typst reads Typst source into the shared document tree and writes
// the tree back out as Typst markup. The parser is tolerant: it never fails,
// and code it cannot read becomes a BadExpr for the evaluator to keep opaque.
package typst

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"texbridge/internal/ast"
	"texbridge/internal/logger"
)

// ParseOptions controls Parse.
type ParseOptions struct {
	// MathOnly reads the whole input as one formula.
	MathOnly bool
}

// Parse reads Typst source into a raw tree. Script constructs stay as
// LetBinding, ForLoop, Conditional and Interp nodes for the evaluator.
func Parse(src string, opts ParseOptions) *ast.Document {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	if opts.MathOnly {
		body := strings.TrimSpace(src)
		if len(body) >= 2 && body[0] == '$' && body[len(body)-1] == '$' {
			body = body[1 : len(body)-1]
		}
		return &ast.Document{Children: []ast.Node{
			&ast.Math{Display: true, Body: parseMath(body)},
		}}
	}

	p := &parser{src: src}
	doc := &ast.Document{Children: blocks(p.items(nil))}
	logger.Debug("typst parsed", logger.Int("blocks", len(doc.Children)), logger.Int("bytes", len(src)))
	return doc
}

type parser struct {
	src string
	pos int
	// nl > 0 inside parentheses, where code may span lines.
	nl int
}

type item struct {
	n   ast.Node
	par bool
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.peekAt(0) }

func (p *parser) peekAt(off int) byte {
	if p.pos+off >= len(p.src) || p.pos+off < 0 {
		return 0
	}
	return p.src[p.pos+off]
}

func (p *parser) hasPrefix(s string) bool { return strings.HasPrefix(p.src[p.pos:], s) }

// lineStart reports whether only blanks precede pos on its line.
func (p *parser) lineStart(pos int) bool {
	for i := pos - 1; i >= 0; i-- {
		switch p.src[i] {
		case '\n':
			return true
		case ' ', '\t':
		default:
			return false
		}
	}
	return true
}

// restBlank reports whether the rest of the line holds only blanks, a
// statement separator and an optional trailing label.
func (p *parser) restBlank() bool {
	rest := p.src[p.pos:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), ";"))
	if rest == "" {
		return true
	}
	if rest[0] == '<' && rest[len(rest)-1] == '>' && validLabel(rest[1:len(rest)-1]) {
		return true
	}
	return strings.HasPrefix(rest, "//")
}

// blankLineAhead reports whether pos sits on a newline followed by a blank line.
func (p *parser) blankLineAhead() bool {
	if p.peek() != '\n' {
		return false
	}
	for i := p.pos + 1; i < len(p.src); i++ {
		switch p.src[i] {
		case ' ', '\t', '\r':
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

// items parses markup until stop reports true at bracket depth zero.
func (p *parser) items(stop func(*parser) bool) []item {
	var (
		out   []item
		text  strings.Builder
		depth int
	)
	flush := func() {
		if text.Len() > 0 {
			out = append(out, item{n: &ast.Text{Value: text.String()}})
			text.Reset()
		}
	}
	emit := func(n ast.Node) {
		flush()
		if n != nil {
			out = append(out, item{n: n})
		}
	}

	for !p.eof() {
		if depth == 0 && stop != nil && stop(p) {
			break
		}
		if p.pos == 0 || p.src[p.pos-1] == '\n' {
			if n, ok := p.blockMarker(); ok {
				emit(n)
				continue
			}
		}
		c := p.peek()
		switch c {
		case '\n':
			if p.blankLineAhead() {
				for !p.eof() && (p.peek() == '\n' || p.peek() == ' ' || p.peek() == '\t') {
					p.pos++
				}
				flush()
				out = append(out, item{par: true})
				continue
			}
			p.pos++
			text.WriteByte(' ')
		case '\\':
			if r, ok := p.escape(); ok {
				text.WriteString(r)
			} else {
				emit(&ast.LineBreak{})
			}
		case '~':
			p.pos++
			text.WriteString("\u00a0")
		case '*', '_':
			if !p.wordBoundary() {
				p.pos++
				text.WriteByte(c)
				continue
			}
			emit(p.emphasis(c, stop))
		case '`':
			emit(p.raw())
		case '$':
			emit(p.math())
		case '#':
			start := p.pos
			n := p.embedded()
			if n == nil {
				p.pos = start + 1
				text.WriteByte('#')
				continue
			}
			emit(n)
		case '@':
			if p.wordBoundary() {
				if n := p.ref(); n != nil {
					emit(n)
					continue
				}
			}
			p.pos++
			text.WriteByte('@')
		case '<':
			key, ok := p.label()
			if !ok {
				p.pos++
				text.WriteByte('<')
				continue
			}
			flush()
			if !attachLabel(out, key) {
				out = append(out, item{n: &ast.Label{Key: key}})
			}
		case '/':
			if p.hasPrefix("//") || p.hasPrefix("/*") {
				p.comment()
				continue
			}
			p.pos++
			text.WriteByte('/')
		case '[':
			depth++
			p.pos++
			text.WriteByte('[')
		case ']':
			if depth > 0 {
				depth--
			}
			p.pos++
			text.WriteByte(']')
		case 'h':
			if (p.hasPrefix("https://") || p.hasPrefix("http://")) && p.wordBoundary() {
				emit(p.autolink())
				continue
			}
			p.pos++
			text.WriteByte(c)
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			p.pos += size
			text.WriteRune(r)
		}
	}
	flush()
	return out
}

// attachLabel sets key on the last labellable item, skipping blanks.
func attachLabel(out []item, key string) bool {
	for i := len(out) - 1; i >= 0; i-- {
		switch n := out[i].n.(type) {
		case *ast.Text:
			if strings.TrimSpace(n.Value) == "" {
				continue
			}
		case *ast.Math:
			if n.Display && n.Label == "" {
				n.Label = key
				return true
			}
		case *ast.Interp:
			if n.Label == "" {
				n.Label = key
				return true
			}
		}
		return false
	}
	return false
}

// wordBoundary reports whether the character before pos does not continue a word.
func (p *parser) wordBoundary() bool {
	if p.pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(p.src[:p.pos])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// escape reads a backslash escape. It returns false for a line break.
func (p *parser) escape() (string, bool) {
	next := p.peekAt(1)
	switch {
	case next == 0 || next == ' ' || next == '\t' || next == '\n':
		p.pos++
		for p.peek() == ' ' || p.peek() == '\t' {
			p.pos++
		}
		return "", false
	case next == 'u' && p.peekAt(2) == '{':
		end := strings.IndexByte(p.src[p.pos:], '}')
		if end > 0 {
			if r, ok := hexRune(p.src[p.pos+3 : p.pos+end]); ok {
				p.pos += end + 1
				return string(r), true
			}
		}
	}
	p.pos++
	r, size := utf8.DecodeRuneInString(p.src[p.pos:])
	p.pos += size
	return string(r), true
}

func hexRune(s string) (rune, bool) {
	var r rune
	if s == "" || len(s) > 6 {
		return 0, false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			r = r*16 + c - '0'
		case c >= 'a' && c <= 'f':
			r = r*16 + c - 'a' + 10
		case c >= 'A' && c <= 'F':
			r = r*16 + c - 'A' + 10
		default:
			return 0, false
		}
	}
	return r, true
}

func (p *parser) emphasis(delim byte, outer func(*parser) bool) ast.Node {
	p.pos++
	inner := p.items(func(q *parser) bool {
		return q.peek() == delim || q.blankLineAhead() || (outer != nil && outer(q))
	})
	if p.peek() == delim {
		p.pos++
	}
	content := inlines(inner)
	if delim == '*' {
		return &ast.Strong{Content: content}
	}
	return &ast.Emph{Content: content}
}

// raw reads `code`, ``, or a fenced ```lang block.
func (p *parser) raw() ast.Node {
	n := 0
	for p.peekAt(n) == '`' {
		n++
	}
	p.pos += n
	if n == 2 {
		return &ast.Code{}
	}
	if n < 3 {
		end := strings.IndexByte(p.src[p.pos:], '`')
		if end < 0 {
			end = len(p.src) - p.pos
		}
		text := p.src[p.pos : p.pos+end]
		p.pos = min(len(p.src), p.pos+end+1)
		return &ast.Code{Text: text}
	}

	fence := strings.Repeat("`", n)
	lang := ""
	for !p.eof() && isIdentChar(p.peek()) {
		lang += string(p.peek())
		p.pos++
	}
	end := strings.Index(p.src[p.pos:], fence)
	if end < 0 {
		end = len(p.src) - p.pos
	}
	body := p.src[p.pos : p.pos+end]
	p.pos = min(len(p.src), p.pos+end+n)
	if !strings.Contains(body, "\n") {
		if strings.TrimSpace(body) == "" {
			return &ast.Code{Text: lang}
		}
		return &ast.Code{Text: strings.TrimSpace(body)}
	}
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimRight(body, " \t")
	body = strings.TrimSuffix(body, "\n")
	return &ast.CodeBlock{Lang: lang, Text: dedent(body)}
}

func dedent(s string) string {
	lines := strings.Split(s, "\n")
	indent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	if indent <= 0 {
		return s
	}
	for i, l := range lines {
		if len(l) >= indent {
			lines[i] = l[indent:]
		} else {
			lines[i] = strings.TrimLeft(l, " \t")
		}
	}
	return strings.Join(lines, "\n")
}

// math reads $...$. Whitespace just inside both dollars makes it display math.
func (p *parser) math() ast.Node {
	p.pos++
	start := p.pos
	for !p.eof() && p.peek() != '$' {
		switch p.peek() {
		case '\\':
			p.pos += 2
		case '"':
			p.pos++
			for !p.eof() && p.peek() != '"' {
				if p.peek() == '\\' {
					p.pos++
				}
				p.pos++
			}
			p.pos++
		default:
			p.pos++
		}
	}
	end := min(p.pos, len(p.src))
	body := p.src[start:end]
	p.pos = min(len(p.src), end+1)
	display := len(body) > 0 && isSpace(body[0]) && isSpace(body[len(body)-1])
	return &ast.Math{Display: display, Body: parseMath(body)}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' }

// ref reads @key with an optional [supplement], which is dropped.
func (p *parser) ref() ast.Node {
	i := p.pos + 1
	for i < len(p.src) && isLabelChar(p.src[i]) {
		i++
	}
	for i > p.pos+1 && (p.src[i-1] == '.' || p.src[i-1] == ':') {
		i--
	}
	if i == p.pos+1 {
		return nil
	}
	key := p.src[p.pos+1 : i]
	p.pos = i
	if p.peek() == '[' {
		p.contentBlock()
	}
	return &ast.Ref{Key: key}
}

// label reads <key>.
func (p *parser) label() (string, bool) {
	end := strings.IndexByte(p.src[p.pos:], '>')
	if end < 2 {
		return "", false
	}
	key := p.src[p.pos+1 : p.pos+end]
	if !validLabel(key) {
		return "", false
	}
	p.pos += end + 1
	return key, true
}

func validLabel(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		if !isLabelChar(key[i]) {
			return false
		}
	}
	return true
}

func isLabelChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '-' || c == ':' || c == '.'
}

func (p *parser) comment() {
	if p.hasPrefix("//") {
		for !p.eof() && p.peek() != '\n' {
			p.pos++
		}
		return
	}
	depth := 0
	for !p.eof() {
		switch {
		case p.hasPrefix("/*"):
			depth++
			p.pos += 2
		case p.hasPrefix("*/"):
			depth--
			p.pos += 2
			if depth == 0 {
				return
			}
		default:
			p.pos++
		}
	}
}

func (p *parser) autolink() ast.Node {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c <= ' ' || c == '<' || c == '>' || c == '"' || c == ']' || c == ')' {
			break
		}
		p.pos++
	}
	for p.pos > start && strings.ContainsRune(".,;:!?", rune(p.src[p.pos-1])) {
		p.pos--
	}
	return &ast.Link{URL: p.src[start:p.pos]}
}

// blockMarker reads a heading or list item starting at the beginning of a line.
func (p *parser) blockMarker() (ast.Node, bool) {
	start := p.pos
	for p.peek() == ' ' || p.peek() == '\t' {
		p.pos++
	}
	indent := p.pos - start
	switch c := p.peek(); {
	case c == '=':
		level := 0
		for p.peekAt(level) == '=' {
			level++
		}
		if next := p.peekAt(level); next == ' ' || next == '\t' {
			p.pos += level
			return p.heading(level), true
		}
	case (c == '-' || c == '+' || c == '/') && (p.peekAt(1) == ' ' || p.peekAt(1) == '\t'):
		if c == '-' && p.hasPrefix("- -") {
			break
		}
		p.pos += 2
		return p.listItem(indent, c), true
	case c >= '0' && c <= '9':
		n := 0
		for p.peekAt(n) >= '0' && p.peekAt(n) <= '9' {
			n++
		}
		if p.peekAt(n) == '.' && (p.peekAt(n+1) == ' ' || p.peekAt(n+1) == '\t') {
			p.pos += n + 2
			return p.listItem(indent, '+'), true
		}
	}
	p.pos = start
	return nil, false
}

func (p *parser) heading(level int) ast.Node {
	inner := p.items(func(q *parser) bool { return q.peek() == '\n' })
	h := &ast.Heading{Level: level}
	content := trimInline(inlines(inner))
	if n := len(content); n > 0 {
		if l, ok := content[n-1].(*ast.Label); ok {
			h.Label = l.Key
			content = trimInline(content[:n-1])
		}
	}
	h.Content = content
	return h
}

// listItem reads one item whose marker sits at column indent. Continuation
// lines are indented deeper than the marker.
func (p *parser) listItem(indent int, marker byte) ast.Node {
	var body strings.Builder
	body.WriteString(p.lineRest())
	for p.peek() == '\n' {
		next := p.pos + 1
		j := next
		for j < len(p.src) && p.src[j] == '\n' {
			j++
		}
		k := j
		for k < len(p.src) && (p.src[k] == ' ' || p.src[k] == '\t') {
			k++
		}
		if k >= len(p.src) || k-j <= indent || p.src[k] == '\n' {
			break
		}
		body.WriteString(strings.Repeat("\n", j-next+1))
		p.pos = j + min(k-j, indent+2)
		body.WriteString(p.lineRest())
	}

	sub := &parser{src: body.String()}
	li := &ast.ListItem{}
	if marker == '/' {
		term := sub.items(func(q *parser) bool { return q.peek() == ':' || q.peek() == '\n' })
		li.Term = trimInline(inlines(term))
		if sub.peek() == ':' {
			sub.pos++
		}
	}
	li.Children = blocks(sub.items(nil))
	return &ast.List{Ordered: marker == '+', Items: []*ast.ListItem{li}}
}

// lineRest consumes up to the end of the current line, extending across
// lines while brackets are open. It stops before an unmatched ']'.
func (p *parser) lineRest() string {
	start := p.pos
	depth := 0
	for !p.eof() {
		switch p.peek() {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			if depth == 0 {
				return p.src[start:p.pos]
			}
			depth--
		case '\n':
			if depth <= 0 {
				return p.src[start:p.pos]
			}
		case '\\':
			p.pos++
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

// contentBlock reads [markup].
func (p *parser) contentBlock() *ast.ContentExpr {
	start := p.pos
	p.pos++
	nl := p.nl
	p.nl = 0
	inner := p.items(func(q *parser) bool { return q.peek() == ']' })
	p.nl = nl
	if p.peek() == ']' {
		p.pos++
	}
	return &ast.ContentExpr{Nodes: content(inner), Source: p.src[start:p.pos]}
}

// content keeps inline-only markup inline, spaces included.
func content(items []item) []ast.Node {
	for _, it := range items {
		if it.par || ast.IsBlock(it.n) {
			return blocks(items)
		}
	}
	return inlines(items)
}

// blocks groups items into block nodes, wrapping inline runs in paragraphs.
// Adjacent lists of the same kind merge.
func blocks(items []item) []ast.Node {
	var out []ast.Node
	var para []ast.Node
	flush := func() {
		if c := trimInline(para); len(c) > 0 {
			out = append(out, &ast.Paragraph{Content: c})
		}
		para = nil
	}
	for _, it := range items {
		switch {
		case it.par:
			flush()
		case ast.IsBlock(it.n):
			flush()
			if l, ok := it.n.(*ast.List); ok && len(out) > 0 {
				if prev, ok := out[len(out)-1].(*ast.List); ok && sameKind(prev, l) {
					prev.Items = append(prev.Items, l.Items...)
					continue
				}
			}
			out = append(out, it.n)
		default:
			para = append(para, it.n)
		}
	}
	flush()
	return out
}

func sameKind(a, b *ast.List) bool {
	desc := func(l *ast.List) bool { return len(l.Items) > 0 && l.Items[0].Term != nil }
	return a.Ordered == b.Ordered && desc(a) == desc(b)
}

func inlines(items []item) []ast.Node {
	var out []ast.Node
	for _, it := range items {
		if it.par {
			out = append(out, &ast.Text{Value: " "})
			continue
		}
		out = append(out, it.n)
	}
	return mergeText(out)
}

func trimInline(nodes []ast.Node) []ast.Node {
	nodes = mergeText(nodes)
	for len(nodes) > 0 {
		t, ok := nodes[0].(*ast.Text)
		if !ok {
			break
		}
		t.Value = strings.TrimLeft(t.Value, " \n\t")
		if t.Value != "" {
			break
		}
		nodes = nodes[1:]
	}
	for len(nodes) > 0 {
		t, ok := nodes[len(nodes)-1].(*ast.Text)
		if !ok {
			break
		}
		t.Value = strings.TrimRight(t.Value, " \n\t")
		if t.Value != "" {
			break
		}
		nodes = nodes[:len(nodes)-1]
	}
	return nodes
}

func mergeText(nodes []ast.Node) []ast.Node {
	var out []ast.Node
	for _, n := range nodes {
		t, ok := n.(*ast.Text)
		if !ok {
			out = append(out, n)
			continue
		}
		if len(out) > 0 {
			if prev, ok := out[len(out)-1].(*ast.Text); ok {
				prev.Value = collapseSpaces(prev.Value + t.Value)
				continue
			}
		}
		out = append(out, &ast.Text{Value: collapseSpaces(t.Value)})
	}
	return out
}

func collapseSpaces(s string) string {
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}
