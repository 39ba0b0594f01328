package typst

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"texbridge/internal/ast"
	"texbridge/internal/table"
)

// CetzImport is the package import emitted for documents with drawings.
const CetzImport = `#import "@preview/cetz:0.3.4"`

// WriteOptions configures Write.
type WriteOptions struct {
	// MathOnly writes the body of the first formula without delimiters.
	MathOnly bool
}

// Write renders a Typst-flavored tree as Typst source. Raw and MathRaw text
// is emitted verbatim.
func Write(doc *ast.Document, opts WriteOptions) string {
	if opts.MathOnly {
		for _, n := range doc.Children {
			if m, ok := n.(*ast.Math); ok {
				return strings.TrimSpace(MathString(m.Body))
			}
		}
		return ""
	}

	w := &writer{}
	w.scan(doc)

	var parts []string
	var rules []string
	if w.cetz {
		rules = append(rules, CetzImport)
	}
	if w.numberedHeadings {
		rules = append(rules, `#set heading(numbering: "1.")`)
	}
	if w.numberedMath {
		rules = append(rules, `#set math.equation(numbering: `+Quote(equationPattern(doc.Layout))+`)`)
	}
	if doc.Layout != nil {
		rules = append(rules, layoutRules(doc.Layout)...)
	}
	if len(rules) > 0 {
		parts = append(parts, strings.Join(rules, "\n"))
	}
	if !doc.Meta.Empty() {
		parts = append(parts, w.meta(doc.Meta))
	}
	if body := w.blocks(doc.Children); body != "" {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n\n") + "\n"
}

type writer struct {
	cetz             bool
	numberedHeadings bool
	numberedMath     bool
}

func (w *writer) scan(doc *ast.Document) {
	ast.Walk(doc, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Heading:
			w.numberedHeadings = w.numberedHeadings || n.Numbered
		case *ast.Math:
			w.numberedMath = w.numberedMath || (n.Display && n.Numbered)
		case *ast.Graphic:
			w.cetz = true
		}
		return true
	})
}

// meta writes the document set rule and a centered title block.
func (w *writer) meta(m ast.Meta) string {
	var args []string
	if m.Title != nil {
		args = append(args, "title: "+Quote(ast.PlainText(m.Title)))
	}
	if m.Author != nil {
		args = append(args, "author: "+Quote(ast.PlainText(m.Author)))
	}
	var sb strings.Builder
	if len(args) > 0 {
		sb.WriteString("#set document(" + strings.Join(args, ", ") + ")\n\n")
	}
	var lines []string
	if m.Title != nil {
		lines = append(lines, "#text(1.6em)[*"+w.inline(m.Title)+"*]")
	}
	if m.Author != nil {
		lines = append(lines, w.inline(m.Author))
	}
	if m.Date != nil {
		lines = append(lines, w.inline(m.Date))
	}
	sb.WriteString("#align(center)[\n  " + strings.Join(lines, " \\\n  ") + "\n]")
	return sb.String()
}

func (w *writer) blocks(nodes []ast.Node) string {
	var parts []string
	var para []ast.Node
	flush := func() {
		if len(para) > 0 {
			if s := strings.TrimSpace(w.inline(para)); s != "" {
				parts = append(parts, s)
			}
			para = nil
		}
	}
	for _, n := range nodes {
		if !ast.IsBlock(n) {
			para = append(para, n)
			continue
		}
		flush()
		if s := w.block(n); s != "" {
			parts = append(parts, s)
		}
	}
	flush()
	return strings.Join(parts, "\n\n")
}

func (w *writer) block(n ast.Node) string {
	switch n := n.(type) {
	case *ast.Heading:
		return w.heading(n)
	case *ast.Paragraph:
		return strings.TrimSpace(w.inline(n.Content))
	case *ast.List:
		return w.list(n)
	case *ast.ListItem:
		return w.list(&ast.List{Items: []*ast.ListItem{n}})
	case *ast.Quote:
		return "#quote(block: true)[\n" + indent(w.blocks(n.Children)) + "\n]"
	case *ast.CodeBlock:
		fence := "```"
		for strings.Contains(n.Text, fence) {
			fence += "`"
		}
		return fence + n.Lang + "\n" + n.Text + "\n" + fence
	case *ast.Math:
		return w.displayMath(n)
	case *ast.Table:
		return "#" + w.table(n)
	case *ast.Figure:
		return w.figure(n)
	case *ast.Bibliography:
		return w.bibliography(n)
	case *ast.BibEntry:
		return w.bibliography(&ast.Bibliography{Entries: []*ast.BibEntry{n}})
	case *ast.PageBreak:
		return "#pagebreak()"
	case *ast.Space:
		return "#v(" + n.Length + ")"
	case *ast.Graphic:
		return n.Source
	case *ast.Raw:
		return n.Text
	case *ast.Opaque:
		return n.Source
	case *ast.Environment:
		return w.blocks(n.Children)
	case *ast.LetBinding:
		return n.Source
	case *ast.ForLoop:
		return n.Source
	case *ast.Conditional:
		return n.Source
	case *ast.Interp:
		return n.Source
	}
	return ""
}

func (w *writer) heading(h *ast.Heading) string {
	label := ""
	if h.Label != "" {
		label = " <" + h.Label + ">"
	}
	content := strings.TrimSpace(w.inline(h.Content))
	if !h.Numbered && w.numberedHeadings {
		return fmt.Sprintf("#heading(level: %d, numbering: none)[%s]%s", h.Level, content, label)
	}
	return strings.Repeat("=", max(h.Level, 1)) + " " + content + label
}

func (w *writer) list(l *ast.List) string {
	var lines []string
	for _, it := range l.Items {
		marker := "- "
		switch {
		case it.Term != nil:
			marker = "/ " + strings.TrimSpace(w.inline(it.Term)) + ": "
		case l.Ordered:
			marker = "+ "
		}
		body := w.blocks(it.Children)
		lines = append(lines, marker+indentRest(body))
	}
	return strings.Join(lines, "\n")
}

// indentRest indents every line but the first by two spaces.
func indentRest(s string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = "  " + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

func indent(s string) string {
	if s == "" {
		return s
	}
	return "  " + indentRest(s)
}

func (w *writer) displayMath(m *ast.Math) string {
	body := MathString(m.Body)
	label := ""
	if m.Label != "" {
		label = " <" + m.Label + ">"
	}
	if !m.Display {
		return "$" + body + "$" + label
	}
	if !m.Numbered && w.numberedMath {
		return "#math.equation(block: true, numbering: none, $ " + body + " $)" + label
	}
	return "$ " + body + " $" + label
}

// table renders the table call without the leading '#'.
func (w *writer) table(t *ast.Table) string {
	var args []string
	grid := table.Layout(t)
	cols := t.Columns
	if cols == 0 {
		cols = 1
	}
	args = append(args, "columns: "+strconv.Itoa(cols))
	if alignSet(t.ColAlign) {
		names := make([]string, len(t.ColAlign))
		for i, a := range t.ColAlign {
			names[i] = alignName(a)
		}
		if len(names) == 1 {
			args = append(args, "align: "+names[0])
		} else {
			args = append(args, "align: ("+strings.Join(names, ", ")+")")
		}
	}

	strokes := t.Border != ast.BorderGrid
	if strokes {
		args = append(args, "stroke: none")
		for _, x := range t.VRules {
			args = append(args, fmt.Sprintf("table.vline(x: %d)", x))
		}
	}

	var (
		header   []string
		inHeader bool
	)
	closeHeader := func() {
		if inHeader {
			args = append(args, "table.header("+strings.Join(header, ", ")+")")
			header, inHeader = nil, false
		}
	}
	for r, row := range t.Rows {
		var rules []string
		if strokes {
			rules = w.hlines(row.RulesAbove)
		}
		var cells []string
		for c := 0; c < len(grid[r]); c++ {
			slot := grid[r][c]
			if slot.Cell == nil || !slot.Origin {
				continue
			}
			cells = append(cells, w.cell(slot.Cell, columnAlign(t, c)))
		}
		line := strings.Join(cells, ", ")
		switch {
		case row.Header && !inHeader:
			args = append(args, rules...)
			inHeader = true
			header = append(header, line)
		case row.Header:
			header = append(header, append(rules, line)...)
		default:
			closeHeader()
			args = append(args, rules...)
			if line != "" {
				args = append(args, line)
			}
		}
	}
	closeHeader()
	if strokes {
		args = append(args, w.hlines(t.RulesBelow)...)
	}
	return "table(\n  " + strings.Join(args, ",\n  ") + ",\n)"
}

func alignSet(aligns []ast.Align) bool {
	for _, a := range aligns {
		if a != ast.AlignDefault {
			return true
		}
	}
	return false
}

func columnAlign(t *ast.Table, c int) ast.Align {
	if c < len(t.ColAlign) {
		return t.ColAlign[c]
	}
	return ast.AlignDefault
}

func alignName(a ast.Align) string {
	if a == ast.AlignDefault {
		return "auto"
	}
	return a.String()
}

func (w *writer) hlines(rules []ast.Rule) []string {
	var out []string
	for _, r := range rules {
		var args []string
		if r.Kind == ast.RulePartial {
			args = append(args, fmt.Sprintf("start: %d", r.From-1), fmt.Sprintf("end: %d", r.To))
		}
		if s := table.RuleStroke(r.Kind); s != "" && r.Kind != ast.RulePartial {
			args = append(args, "stroke: "+s)
		}
		out = append(out, "table.hline("+strings.Join(args, ", ")+")")
	}
	return out
}

func (w *writer) cell(c *ast.TableCell, colAlign ast.Align) string {
	content := "[" + strings.TrimSpace(w.cellContent(c.Content)) + "]"
	var args []string
	cs, rs := c.Span()
	if cs > 1 {
		args = append(args, "colspan: "+strconv.Itoa(cs))
	}
	if rs > 1 {
		args = append(args, "rowspan: "+strconv.Itoa(rs))
	}
	if c.Align != ast.AlignDefault && c.Align != colAlign {
		args = append(args, "align: "+c.Align.String())
	}
	if c.Fill != "" {
		args = append(args, "fill: "+c.Fill)
	}
	if len(args) == 0 {
		return content
	}
	return "table.cell(" + strings.Join(args, ", ") + ")" + content
}

func (w *writer) cellContent(nodes []ast.Node) string {
	for _, n := range nodes {
		if ast.IsBlock(n) {
			return w.blocks(nodes)
		}
	}
	return w.inline(nodes)
}

func (w *writer) figure(f *ast.Figure) string {
	var body string
	switch {
	case len(f.Body) == 1 && isImage(f.Body[0]):
		body = w.image(imageOf(f.Body[0]))
	case len(f.Body) == 1 && isTable(f.Body[0]):
		body = w.table(f.Body[0].(*ast.Table))
	default:
		body = "[\n" + indent(w.blocks(f.Body)) + "\n]"
	}
	args := []string{body}
	if f.Caption != nil {
		args = append(args, "caption: ["+strings.TrimSpace(w.inline(f.Caption))+"]")
	}
	switch f.Placement {
	case "top", "bottom", "auto":
		args = append(args, "placement: "+f.Placement)
	}
	out := "#figure(\n  " + indentRest(strings.Join(args, ",\n")) + ",\n)"
	if f.Label != "" {
		out += " <" + f.Label + ">"
	}
	return out
}

func isImage(n ast.Node) bool { return imageOf(n) != nil }

func imageOf(n ast.Node) *ast.Image {
	switch n := n.(type) {
	case *ast.Image:
		return n
	case *ast.Paragraph:
		if len(n.Content) == 1 {
			img, _ := n.Content[0].(*ast.Image)
			return img
		}
	}
	return nil
}

func isTable(n ast.Node) bool {
	_, ok := n.(*ast.Table)
	return ok
}

// image renders the image call without the leading '#'.
func (w *writer) image(img *ast.Image) string {
	args := []string{Quote(img.Path)}
	if validLength(img.Width) {
		args = append(args, "width: "+img.Width)
	}
	if validLength(img.Height) {
		args = append(args, "height: "+img.Height)
	}
	return "image(" + strings.Join(args, ", ") + ")"
}

// validLength reports whether v is a Typst length or ratio literal.
func validLength(v string) bool {
	if v == "" {
		return false
	}
	i := 0
	for i < len(v) && (v[i] >= '0' && v[i] <= '9' || v[i] == '.') {
		i++
	}
	if i == 0 {
		return false
	}
	switch v[i:] {
	case "%", "pt", "mm", "cm", "in", "em", "fr":
		return true
	}
	return false
}

// ValidLength reports whether v can be written as a Typst length.
func ValidLength(v string) bool { return validLength(v) }

func (w *writer) bibliography(b *ast.Bibliography) string {
	if len(b.Entries) > 0 {
		var lines []string
		for _, e := range b.Entries {
			lines = append(lines, "- ["+e.Key+"] "+strings.TrimSpace(w.inline(e.Content)))
		}
		return strings.Join(lines, "\n")
	}
	files := make([]string, len(b.Files))
	for i, f := range b.Files {
		files[i] = Quote(f)
	}
	arg := ""
	switch len(files) {
	case 0:
		arg = `"refs.bib"`
	case 1:
		arg = files[0]
	default:
		arg = "(" + strings.Join(files, ", ") + ")"
	}
	if b.Style != "" {
		arg += ", style: " + Quote(b.Style)
	}
	return "#bibliography(" + arg + ")"
}

// inline renders inline content. Strong and emphasis fall back to the
// function form when a delimiter would touch a word.
func (w *writer) inline(nodes []ast.Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = w.inlineNode(n)
	}
	for i, n := range nodes {
		var fn string
		switch n.(type) {
		case *ast.Strong:
			fn = "strong"
		case *ast.Emph:
			fn = "emph"
		case *ast.Ref, *ast.Cite:
			if i+1 < len(parts) && extendsLabel(parts[i+1]) {
				parts[i] = w.refCall(n)
			}
			continue
		default:
			continue
		}
		if (i > 0 && endsWord(parts[i-1])) || (i+1 < len(parts) && startsWord(parts[i+1])) {
			parts[i] = "#" + fn + "[" + parts[i][1:len(parts[i])-1] + "]"
		}
	}

	var sb strings.Builder
	lineStart := true
	for i, s := range parts {
		if _, ok := nodes[i].(*ast.Text); ok && lineStart {
			s = escapeLineStart(s)
		}
		sb.WriteString(s)
		if s != "" {
			lineStart = strings.HasSuffix(s, "\n")
		}
	}
	return sb.String()
}

func endsWord(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func startsWord(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// extendsLabel reports whether text after @key would be read as part of the key.
func extendsLabel(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if c == '.' || c == ':' {
		return len(s) > 1 && isLabelChar(s[1])
	}
	return isLabelChar(c)
}

func (w *writer) refCall(n ast.Node) string {
	switch n := n.(type) {
	case *ast.Ref:
		return "#ref(<" + n.Key + ">)"
	case *ast.Cite:
		var calls []string
		for _, k := range n.Keys {
			calls = append(calls, w.citeCall(k, n.Mode))
		}
		return strings.Join(calls, "")
	}
	return ""
}

func (w *writer) citeCall(key, mode string) string {
	switch mode {
	case "t":
		return "#cite(<" + key + ">, form: \"prose\")"
	case "n":
		return "#cite(<" + key + ">, form: none)"
	}
	return "#cite(<" + key + ">)"
}

func (w *writer) inlineNode(n ast.Node) string {
	switch n := n.(type) {
	case *ast.Text:
		return EscapeText(n.Value)
	case *ast.Strong:
		return "*" + w.inline(n.Content) + "*"
	case *ast.Emph:
		return "_" + w.inline(n.Content) + "_"
	case *ast.Underline:
		return "#underline[" + w.inline(n.Content) + "]"
	case *ast.Code:
		if strings.ContainsAny(n.Text, "`\n") || n.Text == "" {
			return "#raw(" + Quote(n.Text) + ")"
		}
		return "`" + n.Text + "`"
	case *ast.Link:
		if len(n.Content) == 0 || ast.PlainText(n.Content) == n.URL {
			return "#link(" + Quote(n.URL) + ")"
		}
		return "#link(" + Quote(n.URL) + ")[" + w.inline(n.Content) + "]"
	case *ast.Footnote:
		return "#footnote[" + strings.TrimSpace(w.inline(n.Content)) + "]"
	case *ast.LineBreak:
		return " \\\n"
	case *ast.Space:
		if n.Vertical {
			return "#v(" + n.Length + ")"
		}
		return "#h(" + n.Length + ")"
	case *ast.Math:
		if n.Display {
			return w.displayMath(n)
		}
		return "$" + MathString(n.Body) + "$"
	case *ast.Ref:
		return "@" + n.Key
	case *ast.Cite:
		switch n.Mode {
		case "t", "n":
			return w.refCall(n)
		}
		refs := make([]string, len(n.Keys))
		for i, k := range n.Keys {
			refs[i] = "@" + k
		}
		return strings.Join(refs, " ")
	case *ast.Label:
		return "<" + n.Key + ">"
	case *ast.Image:
		return "#" + w.image(n)
	case *ast.Raw:
		return n.Text
	case *ast.Opaque:
		return n.Source
	case *ast.Command:
		return n.Source
	case *ast.Interp:
		return n.Source
	case *ast.ForLoop:
		return n.Source
	case *ast.Conditional:
		return n.Source
	case *ast.PageBreak:
		return "#pagebreak()"
	}
	if ast.IsBlock(n) {
		return w.block(n)
	}
	return ""
}

// EscapeText escapes markup characters in plain text.
func EscapeText(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		next := byte(0)
		if i+1 < len(s) {
			next = s[i+1]
		}
		switch {
		case c == '\\' || c == '*' || c == '_' || c == '`' || c == '#' || c == '$' || c == '[' || c == ']' || c == '~':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case (c == '@' || c == '<') && isLabelChar(next):
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '/' && (next == '/' || next == '*'):
			sb.WriteString(`\/`)
		case c == '\n':
			sb.WriteByte(' ')
		case strings.HasPrefix(s[i:], "\u00a0"):
			sb.WriteByte('~')
			i += len("\u00a0") - 1
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// escapeLineStart protects text that would read as a heading or list marker.
func escapeLineStart(s string) string {
	switch {
	case strings.HasPrefix(s, "="), strings.HasPrefix(s, "- "), strings.HasPrefix(s, "+ "), strings.HasPrefix(s, "/ "):
		return `\` + s
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && strings.HasPrefix(s[i:], ". ") {
		return s[:i] + `\` + s[i:]
	}
	return s
}

// Quote renders s as a Typst string literal.
func Quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
