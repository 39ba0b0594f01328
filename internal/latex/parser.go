package latex

import (
	"strconv"
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/logger"
	"texbridge/internal/symbols"
	"texbridge/internal/types"
)

// ParseOptions configures Parse.
type ParseOptions struct {
	// Symbols resolves math and text symbols. Nil means symbols.Default().
	Symbols *symbols.Table
	// MathOnly parses the whole input as one formula.
	MathOnly bool
	// Source is the text toks were read from. When set, drawing
	// environments keep their original layout.
	Source string
}

// Parse builds a document tree from a macro-free token stream. It never
// fails: constructs it has no structure for become Command, Environment or
// Opaque nodes carrying the loss id already set on their tokens.
func Parse(toks []Token, opts ParseOptions) *ast.Document {
	if opts.Symbols == nil {
		opts.Symbols = symbols.Default()
	}
	st := &state{syms: opts.Symbols, src: opts.Source}
	doc := &ast.Document{}

	if opts.MathOnly {
		toks = trimMathShift(trimSpaceTokens(toks))
		body, _ := st.parseMath(toks)
		doc.Children = []ast.Node{&ast.Math{Body: body}}
		return doc
	}

	body := toks
	if begin, end, ok := documentBody(toks); ok {
		// the preamble only contributes metadata
		pre := &parser{toks: toks[:begin], st: st}
		pre.items(nil)
		body = toks[begin:end]
	}
	p := &parser{toks: body, st: st}
	doc.Children = blocks(p.items(nil))
	doc.Meta = st.meta
	doc.Layout = st.layout

	logger.Debug("latex parsed", logger.Int("tokens", len(toks)), logger.Int("blocks", len(doc.Children)))
	return doc
}

// HasDocument reports whether toks contain a \begin{document}.
func HasDocument(toks []Token) bool {
	_, _, ok := documentBody(toks)
	return ok
}

// documentBody locates the tokens between \begin{document} and \end{document}.
func documentBody(toks []Token) (begin, end int, ok bool) {
	begin = -1
	for i := 0; i < len(toks); i++ {
		if toks[i].Is("begin") && envNameAt(toks, i+1) == "document" {
			begin = skipGroupAt(toks, i+1)
			break
		}
	}
	if begin < 0 {
		return 0, 0, false
	}
	end = len(toks)
	for i := begin; i < len(toks); i++ {
		if toks[i].Is("end") && envNameAt(toks, i+1) == "document" {
			end = i
			break
		}
	}
	return begin, end, true
}

// envNameAt reads a {name} group starting at i.
func envNameAt(toks []Token, i int) string {
	if i >= len(toks) || toks[i].Kind != BeginGroup {
		return ""
	}
	var sb strings.Builder
	for j := i + 1; j < len(toks); j++ {
		switch toks[j].Kind {
		case EndGroup:
			return sb.String()
		case Char:
			sb.WriteString(toks[j].Text)
		case Space:
		default:
			return ""
		}
	}
	return ""
}

// skipGroupAt returns the index after the group starting at i.
func skipGroupAt(toks []Token, i int) int {
	depth := 0
	for j := i; j < len(toks); j++ {
		switch toks[j].Kind {
		case BeginGroup:
			depth++
		case EndGroup:
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return len(toks)
}

// state is shared by the parser of a document and its sub-parsers.
type state struct {
	syms     *symbols.Table
	src      string
	meta     ast.Meta
	layout   *ast.Layout
	bibStyle string
	bibs     []*ast.Bibliography
	bibFiles []string
	figures  []*ast.Figure
}

type parser struct {
	toks []Token
	pos  int
	st   *state
}

func (p *parser) sub(toks []Token) *parser {
	return &parser{toks: toks, st: p.st}
}

// item is a parsed node or a paragraph break.
type item struct {
	n   ast.Node
	par bool
}

func (p *parser) eof() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() (Token, bool) {
	if p.eof() {
		return Token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) skipSpaces() {
	for !p.eof() && p.toks[p.pos].Kind == Space {
		p.pos++
	}
}

// group reads a mandatory argument: a brace group or a single token.
func (p *parser) group() ([]Token, bool) {
	p.skipSpaces()
	t, ok := p.peek()
	if !ok || t.Kind == EndGroup {
		return nil, false
	}
	p.pos++
	if t.Kind != BeginGroup {
		return []Token{t}, true
	}
	start := p.pos
	depth := 0
	for ; p.pos < len(p.toks); p.pos++ {
		switch p.toks[p.pos].Kind {
		case BeginGroup:
			depth++
		case EndGroup:
			if depth == 0 {
				inner := p.toks[start:p.pos]
				p.pos++
				return inner, true
			}
			depth--
		}
	}
	return p.toks[start:], true
}

// adjacentGroup reads a brace group only if one follows immediately.
func (p *parser) adjacentGroup() ([]Token, bool) {
	t, ok := p.peek()
	if !ok || t.Kind != BeginGroup {
		return nil, false
	}
	return p.group()
}

// optional reads a [..] argument if one follows.
func (p *parser) optional() ([]Token, bool) {
	save := p.pos
	p.skipSpaces()
	t, ok := p.peek()
	if !ok || !t.IsChar("[") {
		p.pos = save
		return nil, false
	}
	p.pos++
	start := p.pos
	braces, brackets := 0, 0
	for ; p.pos < len(p.toks); p.pos++ {
		t := p.toks[p.pos]
		switch {
		case t.Kind == BeginGroup:
			braces++
		case t.Kind == EndGroup:
			braces--
		case braces == 0 && t.IsChar("["):
			brackets++
		case braces == 0 && t.IsChar("]"):
			if brackets == 0 {
				inner := p.toks[start:p.pos]
				p.pos++
				return inner, true
			}
			brackets--
		}
	}
	p.pos = save
	return nil, false
}

func (p *parser) star() bool {
	if t, ok := p.peek(); ok && t.IsChar("*") {
		p.pos++
		return true
	}
	return false
}

// atEnd reports whether the parser stands on \end{name}.
func (p *parser) atEnd(name string) bool {
	t, ok := p.peek()
	return ok && t.Is("end") && envNameAt(p.toks, p.pos+1) == name
}

func (p *parser) consumeEnd(name string) {
	if p.atEnd(name) {
		p.pos = skipGroupAt(p.toks, p.pos+1)
	}
}

// collectEnv returns the raw tokens up to the matching \end{name} and
// consumes that \end.
func (p *parser) collectEnv(name string) []Token {
	start := p.pos
	depth := 0
	for ; p.pos < len(p.toks); p.pos++ {
		t := p.toks[p.pos]
		if t.Is("begin") && envNameAt(p.toks, p.pos+1) == name {
			depth++
		} else if t.Is("end") && envNameAt(p.toks, p.pos+1) == name {
			if depth == 0 {
				body := p.toks[start:p.pos]
				p.consumeEnd(name)
				return body
			}
			depth--
		}
	}
	return p.toks[start:]
}

// rawBody returns the source text of an environment body whose first token
// is at index open. The body is detokenized when there is no source or the
// tokens no longer match it, as after macro expansion.
func (p *parser) rawBody(open int, body []Token) string {
	end := open + len(body)
	src := p.st.src
	if src == "" || open == 0 || end >= len(p.toks) || p.toks[open-1].Kind != EndGroup {
		return Detokenize(body)
	}
	from, to := p.toks[open-1].Pos+1, p.toks[end].Pos
	if from < 0 || from > to || to > len(src) {
		return Detokenize(body)
	}
	raw := src[from:to]
	if !sameTokens(Tokenize(raw), body) {
		return Detokenize(body)
	}
	return raw
}

func sameTokens(a, b []Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Kind != y.Kind || x.Text != y.Text || x.Name != y.Name || x.Opt != y.Opt || x.Num != y.Num {
			return false
		}
	}
	return true
}

func (p *parser) inlines(toks []Token) []ast.Node {
	return inlines(p.sub(toks).items(nil))
}

// items parses until stop reports true or the input ends.
func (p *parser) items(stop func(*parser) bool) []item {
	var out []item
	text := func(s string) { out = append(out, item{n: &ast.Text{Value: s}}) }

	for !p.eof() {
		if stop != nil && stop(p) {
			break
		}
		t := p.toks[p.pos]
		switch t.Kind {
		case ParBreak:
			p.pos++
			out = append(out, item{par: true})
		case Space:
			p.pos++
			text(" ")
		case Char:
			p.pos++
			text(t.Text)
		case Active:
			p.pos++
			text("\u00a0")
		case AlignTab, Superscript, Subscript:
			p.pos++
			text(t.Text)
		case Param:
			p.pos++
			text(t.Text)
		case EndGroup:
			p.pos++
		case BeginGroup:
			inner, _ := p.group()
			out = append(out, p.groupItems(inner)...)
		case MathShift:
			p.pos++
			out = append(out, item{n: p.dollarMath(t.Text == "$$")})
		case Verbatim:
			p.pos++
			if n := p.verbatim(t); n != nil {
				out = append(out, item{n: n})
			}
		case Command:
			out = append(out, p.command(t)...)
		}
	}
	return out
}

// groupItems parses a brace group; a leading font declaration wraps the rest
// of the group.
func (p *parser) groupItems(inner []Token) []item {
	sp := p.sub(inner)
	sp.skipSpaces()
	if t, ok := sp.peek(); ok && t.Kind == Command {
		if kind, ok := declarations[t.Text]; ok {
			sp.pos++
			content := inlines(sp.items(nil))
			return []item{{n: wrapDeclaration(kind, content)}}
		}
	}
	sp.pos = 0
	return sp.items(nil)
}

func wrapDeclaration(kind string, content []ast.Node) ast.Node {
	switch kind {
	case "strong":
		return &ast.Strong{Content: content}
	case "emph":
		return &ast.Emph{Content: content}
	}
	return &ast.Code{Text: ast.PlainText(content)}
}

func (p *parser) verbatim(t Token) ast.Node {
	switch t.Name {
	case "verb":
		return &ast.Code{Text: t.Text}
	case "if":
		return &ast.Opaque{Kind: "conditional", Lang: types.LangLaTeX, Source: t.Text, Reason: "undecidable conditional", LossID: t.LossID}
	case "def":
		return &ast.Opaque{Kind: "definition", Lang: types.LangLaTeX, Source: t.Text, Reason: "unsupported definition", LossID: t.LossID}
	case "comment":
		return nil
	}
	return &ast.CodeBlock{Lang: codeLang(t.Name, t.Opt), Text: strings.TrimSuffix(t.Text, "\n")}
}

// codeLang extracts the language of a listing from its options.
func codeLang(env, opt string) string {
	switch env {
	case "minted":
		if i := strings.LastIndex(opt, "{"); i >= 0 {
			return strings.TrimSuffix(opt[i+1:], "}")
		}
	case "lstlisting":
		for _, kv := range strings.Split(strings.Trim(opt, "[]"), ",") {
			k, v, ok := strings.Cut(kv, "=")
			if ok && strings.TrimSpace(k) == "language" {
				return strings.ToLower(strings.TrimSpace(v))
			}
		}
	}
	return ""
}

func (p *parser) dollarMath(display bool) ast.Node {
	start := p.pos
	for ; p.pos < len(p.toks); p.pos++ {
		t := p.toks[p.pos]
		if t.Kind == MathShift && (t.Text == "$$") == display {
			body, label := p.st.parseMath(p.toks[start:p.pos])
			p.pos++
			return &ast.Math{Display: display, Label: label, Body: body}
		}
	}
	body, label := p.st.parseMath(p.toks[start:])
	return &ast.Math{Display: display, Label: label, Body: body}
}

// bracketMath reads \( .. \) or \[ .. \].
func (p *parser) bracketMath(closer string, display bool) ast.Node {
	start := p.pos
	for ; p.pos < len(p.toks); p.pos++ {
		if p.toks[p.pos].Is(closer) {
			body, label := p.st.parseMath(p.toks[start:p.pos])
			p.pos++
			return &ast.Math{Display: display, Label: label, Body: body}
		}
	}
	body, label := p.st.parseMath(p.toks[start:])
	return &ast.Math{Display: display, Label: label, Body: body}
}

func (p *parser) command(t Token) []item {
	p.pos++
	name := t.Text
	one := func(n ast.Node) []item { return []item{{n: n}} }

	if level, ok := headingLevels[name]; ok {
		return one(p.heading(level))
	}
	if refCommands[name] {
		key, _ := p.group()
		return one(&ast.Ref{Key: plainName(key), Kind: name})
	}
	if mode, ok := citeModes[name]; ok {
		p.star()
		p.optional()
		p.optional()
		keys, _ := p.group()
		return one(&ast.Cite{Keys: splitKeys(plainName(keys)), Mode: mode})
	}

	switch name {
	case `\`, "newline", "linebreak":
		p.star()
		p.optional()
		return one(&ast.LineBreak{})
	case "(":
		return one(p.bracketMath(")", false))
	case "[":
		return one(p.bracketMath("]", true))
	case "par":
		return []item{{par: true}}
	case "begin":
		return p.environment()
	case "end":
		p.group()
		return nil
	case "textbf":
		arg, _ := p.group()
		return one(&ast.Strong{Content: p.inlines(arg)})
	case "textit", "emph":
		arg, _ := p.group()
		return one(&ast.Emph{Content: p.inlines(arg)})
	case "underline":
		arg, _ := p.group()
		return one(&ast.Underline{Content: p.inlines(arg)})
	case "texttt":
		arg, _ := p.group()
		return one(&ast.Code{Text: ast.PlainText(p.inlines(arg))})
	case "textsc", "textsf", "textrm", "textup", "textmd", "textnormal", "text", "mbox", "hbox":
		arg, _ := p.group()
		return p.sub(arg).items(nil)
	case "href":
		url, _ := p.group()
		arg, _ := p.group()
		return one(&ast.Link{URL: Detokenize(url), Content: p.inlines(arg)})
	case "url":
		url, _ := p.group()
		return one(&ast.Link{URL: Detokenize(url)})
	case "footnote", "thanks":
		p.optional()
		arg, _ := p.group()
		return one(&ast.Footnote{Content: p.inlines(arg)})
	case "and":
		return one(&ast.Text{Value: ", "})
	case "includegraphics":
		p.star()
		opt, _ := p.optional()
		path, _ := p.group()
		return one(imageNode(Detokenize(opt), Detokenize(path)))
	case "label":
		key, _ := p.group()
		k := plainName(key)
		if n := len(p.st.figures); n > 0 && p.st.figures[n-1].Label == "" {
			p.st.figures[n-1].Label = k
			return nil
		}
		return one(&ast.Label{Key: k})
	case "caption":
		p.optional()
		arg, _ := p.group()
		content := p.inlines(arg)
		if n := len(p.st.figures); n > 0 {
			p.st.figures[n-1].Caption = content
			return nil
		}
		return one(&ast.Emph{Content: content})
	case "item", "bibitem":
		p.optional()
		if name == "bibitem" {
			p.group()
		}
		return nil
	case "vspace", "hspace":
		p.star()
		arg, _ := p.group()
		return one(&ast.Space{Vertical: name == "vspace", Length: strings.TrimSpace(Detokenize(arg))})
	case "newpage", "clearpage", "cleardoublepage", "pagebreak":
		p.optional()
		return one(&ast.PageBreak{})
	case "title", "author", "date":
		p.optional()
		arg, _ := p.group()
		content := trimInline(p.inlines(arg))
		if content == nil {
			content = []ast.Node{}
		}
		switch name {
		case "title":
			p.st.meta.Title = content
		case "author":
			p.st.meta.Author = content
		default:
			p.st.meta.Date = content
		}
		return nil
	case "maketitle":
		return nil
	case "bibliographystyle":
		arg, _ := p.group()
		p.st.bibStyle = plainName(arg)
		for _, b := range p.st.bibs {
			b.Style = p.st.bibStyle
		}
		return nil
	case "bibliography":
		arg, _ := p.group()
		b := &ast.Bibliography{Files: splitKeys(plainName(arg)), Style: p.st.bibStyle}
		p.st.bibs = append(p.st.bibs, b)
		return one(b)
	case "addbibresource":
		p.optional()
		arg, _ := p.group()
		p.st.bibFiles = append(p.st.bibFiles, plainName(arg))
		return nil
	case "printbibliography":
		p.optional()
		if len(p.st.bibFiles) == 0 {
			return nil
		}
		b := &ast.Bibliography{Files: p.st.bibFiles, Style: p.st.bibStyle}
		p.st.bibs = append(p.st.bibs, b)
		return one(b)
	case " ":
		return one(&ast.Text{Value: " "})
	case "-", "/", "@":
		return nil
	}

	if p.layoutCommand(name) {
		return nil
	}
	if n, ok := ignoredCommands[name]; ok {
		p.star()
		p.optional()
		for i := 0; i < n; i++ {
			p.group()
		}
		return nil
	}
	if _, ok := declarations[name]; ok {
		return nil
	}
	if s, ok := p.st.syms.TextSymbol(name); ok {
		return one(&ast.Text{Value: s})
	}
	if e, ok := p.st.syms.FromLaTeX(name); ok && e.Arity == 0 {
		if e.Kind == "space" {
			return one(&ast.Text{Value: " "})
		}
		return one(&ast.Math{Body: []ast.MathNode{ast.Sym(name)}})
	}
	return one(p.unknownCommand(t))
}

// unknownCommand keeps a command with the arguments that directly follow it.
func (p *parser) unknownCommand(t Token) *ast.Command {
	start := p.pos - 1
	c := &ast.Command{Name: t.Text, LossID: t.LossID}
	if p.star() {
		c.Name += "*"
	}
	if t, ok := p.peek(); ok && t.IsChar("[") {
		if opt, ok := p.optional(); ok {
			c.Opt = p.inlines(opt)
		}
	}
	for {
		arg, ok := p.adjacentGroup()
		if !ok {
			break
		}
		c.Args = append(c.Args, p.inlines(arg))
	}
	c.Source = Detokenize(p.toks[start:p.pos])
	return c
}

func (p *parser) heading(level int) ast.Node {
	star := p.star()
	p.optional()
	arg, _ := p.group()
	h := &ast.Heading{Level: level, Numbered: !star, Content: trimInline(p.inlines(arg))}
	save := p.pos
	p.skipSpaces()
	if t, ok := p.peek(); ok && t.Is("label") {
		p.pos++
		key, _ := p.group()
		h.Label = plainName(key)
	} else {
		p.pos = save
	}
	return h
}

func (p *parser) environment() []item {
	nameToks, _ := p.group()
	env := plainName(nameToks)
	one := func(n ast.Node) []item { return []item{{n: n}} }

	switch {
	case env == "document":
		its := p.items(func(p *parser) bool { return p.atEnd("document") })
		p.consumeEnd(env)
		return its
	case listEnvironments[env]:
		return one(p.list(env))
	case env == "quote" || env == "quotation" || env == "verse":
		its := p.items(func(p *parser) bool { return p.atEnd(env) })
		p.consumeEnd(env)
		return one(&ast.Quote{Children: blocks(its)})
	case IsMathEnvironment(env):
		if strings.HasPrefix(env, "alignat") {
			p.group()
		}
		body, label := p.st.parseMath(p.collectEnv(env))
		display := env != "math"
		numbered := display && !strings.HasSuffix(env, "*") && env != "displaymath"
		return one(&ast.Math{Display: display, Env: env, Numbered: numbered, Label: label, Body: body})
	case env == "figure" || env == "figure*" || env == "table" || env == "table*" || env == "wrapfigure":
		return one(p.figure(env))
	case tableEnvironments[env]:
		if env != "tabular" && env != "longtable" {
			p.group()
		}
		p.optional()
		spec, _ := p.group()
		return one(p.tabular(spec, p.collectEnv(env)))
	case env == "center" || env == "flushleft" || env == "flushright":
		its := p.items(func(p *parser) bool { return p.atEnd(env) })
		p.consumeEnd(env)
		return append(append([]item{{par: true}}, its...), item{par: true})
	case env == "tikzpicture":
		open := p.pos
		body := p.rawBody(open, p.collectEnv(env))
		return one(&ast.Graphic{Lang: types.LangLaTeX, Source: `\begin{tikzpicture}` + body + `\end{tikzpicture}`})
	case IsRawEnvironment(env):
		open := p.pos
		body := p.rawBody(open, p.collectEnv(env))
		src := `\begin{` + env + `}` + body + `\end{` + env + `}`
		return one(&ast.Opaque{Kind: "environment", Lang: types.LangLaTeX, Source: src, Reason: "drawing code", Block: true})
	case env == "thebibliography":
		p.group()
		return one(p.thebibliography())
	}

	e := &ast.Environment{Name: env}
	for {
		if opt, ok := p.optional(); ok {
			e.Args = append(e.Args, "["+Detokenize(opt)+"]")
			continue
		}
		arg, ok := p.adjacentGroup()
		if !ok {
			break
		}
		e.Args = append(e.Args, Detokenize(arg))
	}
	its := p.items(func(p *parser) bool { return p.atEnd(env) })
	p.consumeEnd(env)
	e.Children = blocks(its)
	return one(e)
}

func (p *parser) list(env string) *ast.List {
	l := &ast.List{Ordered: env == "enumerate"}
	p.optional()
	for !p.eof() && !p.atEnd(env) {
		t := p.toks[p.pos]
		if !t.Is("item") {
			p.pos++
			continue
		}
		p.pos++
		it := &ast.ListItem{}
		if term, ok := p.optional(); ok {
			it.Term = trimInline(p.inlines(term))
		}
		its := p.items(func(p *parser) bool {
			t := p.toks[p.pos]
			return t.Is("item") || p.atEnd(env)
		})
		it.Children = blocks(its)
		l.Items = append(l.Items, it)
	}
	p.consumeEnd(env)
	return l
}

func (p *parser) figure(env string) ast.Node {
	fig := &ast.Figure{}
	if env == "wrapfigure" {
		p.optional()
		p.group()
		p.group()
	} else if opt, ok := p.optional(); ok {
		fig.Placement = Detokenize(opt)
	}
	p.st.figures = append(p.st.figures, fig)
	its := p.items(func(p *parser) bool { return p.atEnd(env) })
	p.st.figures = p.st.figures[:len(p.st.figures)-1]
	p.consumeEnd(env)

	body := blocks(its)
	if len(body) == 1 {
		if para, ok := body[0].(*ast.Paragraph); ok {
			body = para.Content
		}
	}
	fig.Body = body
	return fig
}

func (p *parser) thebibliography() ast.Node {
	b := &ast.Bibliography{}
	for !p.eof() && !p.atEnd("thebibliography") {
		if !p.toks[p.pos].Is("bibitem") {
			p.pos++
			continue
		}
		p.pos++
		p.optional()
		key, _ := p.group()
		its := p.items(func(p *parser) bool {
			return p.toks[p.pos].Is("bibitem") || p.atEnd("thebibliography")
		})
		b.Entries = append(b.Entries, &ast.BibEntry{Key: plainName(key), Content: trimInline(inlines(its))})
	}
	p.consumeEnd("thebibliography")
	return b
}

func imageNode(opts, path string) *ast.Image {
	img := &ast.Image{Path: strings.TrimSpace(path)}
	for _, kv := range strings.Split(opts, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "width":
			img.Width = NormalizeLength(v)
		case "height":
			img.Height = NormalizeLength(v)
		}
	}
	return img
}

// NormalizeLength turns a LaTeX length into the tree's form: a factor of
// the text width becomes a percentage, other lengths keep their unit.
func NormalizeLength(v string) string {
	v = strings.TrimSpace(v)
	for _, ref := range []string{`\textwidth`, `\linewidth`, `\columnwidth`} {
		if !strings.HasSuffix(v, ref) {
			continue
		}
		factor := strings.TrimSpace(strings.TrimSuffix(v, ref))
		if factor == "" {
			return "100%"
		}
		f, err := strconv.ParseFloat(factor, 64)
		if err != nil {
			return v
		}
		return strconv.FormatFloat(f*100, 'f', -1, 64) + "%"
	}
	return v
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// blocks groups items into block nodes, wrapping inline runs in paragraphs.
func blocks(items []item) []ast.Node {
	var out []ast.Node
	var para []ast.Node
	flush := func() {
		if content := trimInline(para); len(content) > 0 {
			out = append(out, &ast.Paragraph{Content: content})
		}
		para = nil
	}
	for _, it := range items {
		switch {
		case it.par:
			flush()
		case ast.IsBlock(it.n):
			flush()
			out = append(out, it.n)
		default:
			para = append(para, it.n)
		}
	}
	flush()
	return out
}

// inlines flattens items into inline content; paragraph breaks become spaces.
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

// trimInline merges adjacent text and trims surrounding whitespace.
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

var quoteReplacer = strings.NewReplacer("``", "“", "''", "”")

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
		out = append(out, &ast.Text{Value: t.Value})
	}
	for _, n := range out {
		if t, ok := n.(*ast.Text); ok {
			t.Value = quoteReplacer.Replace(t.Value)
		}
	}
	return out
}

func collapseSpaces(s string) string {
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}

func trimSpaceTokens(toks []Token) []Token {
	for len(toks) > 0 && (toks[0].Kind == Space || toks[0].Kind == ParBreak) {
		toks = toks[1:]
	}
	for len(toks) > 0 && (toks[len(toks)-1].Kind == Space || toks[len(toks)-1].Kind == ParBreak) {
		toks = toks[:len(toks)-1]
	}
	return toks
}

func trimMathShift(toks []Token) []Token {
	if len(toks) >= 2 && toks[0].Kind == MathShift && toks[len(toks)-1].Kind == MathShift {
		return toks[1 : len(toks)-1]
	}
	if len(toks) >= 2 && (toks[0].Is("[") && toks[len(toks)-1].Is("]") || toks[0].Is("(") && toks[len(toks)-1].Is(")")) {
		return toks[1 : len(toks)-1]
	}
	return toks
}

// plainName renders tokens as plain text, as used for keys and names.
func plainName(toks []Token) string {
	var sb strings.Builder
	for _, t := range toks {
		switch t.Kind {
		case Space:
		case Command:
			sb.WriteString(`\` + t.Text)
		default:
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}
