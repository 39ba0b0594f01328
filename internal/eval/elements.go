package eval

import (
	"sort"
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/table"
)

// builder turns the arguments of an element call into a value.
type builder func(e *Evaluator, a *Args) Value

var builders map[string]builder

func init() {
	builders = map[string]builder{
		"heading":       (*Evaluator).heading,
		"figure":        (*Evaluator).figure,
		"image":         (*Evaluator).image,
		"table":         (*Evaluator).table,
		"table.cell":    element("table.cell"),
		"table.hline":   element("table.hline"),
		"table.vline":   element("table.vline"),
		"table.header":  element("table.header"),
		"table.footer":  element("table.footer"),
		"link":          (*Evaluator).link,
		"footnote":      inline(func(c []ast.Node) ast.Node { return &ast.Footnote{Content: c} }),
		"strong":        inline(func(c []ast.Node) ast.Node { return &ast.Strong{Content: c} }),
		"emph":          inline(func(c []ast.Node) ast.Node { return &ast.Emph{Content: c} }),
		"underline":     inline(func(c []ast.Node) ast.Node { return &ast.Underline{Content: c} }),
		"cite":          (*Evaluator).cite,
		"ref":           (*Evaluator).ref,
		"bibliography":  (*Evaluator).bibliography,
		"v":             spacing(true),
		"h":             spacing(false),
		"pagebreak":     func(*Evaluator, *Args) Value { return Content{&ast.PageBreak{}} },
		"linebreak":     func(*Evaluator, *Args) Value { return Content{&ast.LineBreak{}} },
		"parbreak":      func(*Evaluator, *Args) Value { return None{} },
		"raw":           (*Evaluator).raw,
		"quote":         (*Evaluator).quote,
		"math.equation": (*Evaluator).equation,
		"label":         (*Evaluator).label,
		"align":         passthrough,
		"text":          passthrough,
		"box":           passthrough,
		"block":         passthrough,
		"pad":           passthrough,
		"smallcaps":     passthrough,
		"highlight":     passthrough,
	}
}

func (e *Evaluator) build(name string, a *Args) Value {
	b, ok := builders[name]
	if !ok {
		return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "unknown element " + name}
	}
	return b(e, a)
}

// element keeps the arguments of a sub-element for its parent to read.
func element(name string) builder {
	return func(_ *Evaluator, a *Args) Value { return &Element{Name: name, Args: a} }
}

func inline(wrap func([]ast.Node) ast.Node) builder {
	return func(_ *Evaluator, a *Args) Value {
		body, u := bodyArg(a, 0)
		if u != nil {
			return u
		}
		return Content{wrap(Inline(body))}
	}
}

func spacing(vertical bool) builder {
	return func(_ *Evaluator, a *Args) Value {
		v, _ := a.positional(0)
		l, ok := lengthOf(v)
		if !ok {
			return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "spacing amount is not a length"}
		}
		return Content{&ast.Space{Vertical: vertical, Length: l}}
	}
}

// passthrough keeps the body of a styling or layout wrapper and drops the
// styling.
func passthrough(_ *Evaluator, a *Args) Value {
	if len(a.Pos) == 0 {
		return None{}
	}
	body, u := bodyArg(a, len(a.Pos)-1)
	if u != nil {
		return u
	}
	return Content(body)
}

// bodyArg reads positional argument i as content.
func bodyArg(a *Args, i int) ([]ast.Node, *Unresolved) {
	v, ok := a.positional(i)
	if !ok {
		return nil, nil
	}
	nodes, ok := contentOf(v)
	if !ok {
		if u, isU := v.(*Unresolved); isU {
			return nil, &Unresolved{Kind: u.Kind, Source: a.Source, Reason: u.Reason}
		}
		return nil, &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "expected content, found " + v.typeName()}
	}
	return nodes, nil
}

// contentOf converts a value that can stand for markup.
func contentOf(v Value) ([]ast.Node, bool) {
	switch v := v.(type) {
	case Content:
		return []ast.Node(v), true
	case None:
		return nil, true
	case String, Number, Bool:
		return []ast.Node{&ast.Text{Value: Display(v)}}, true
	case Symbol:
		return []ast.Node{&ast.Text{Value: string(v)}}, true
	}
	return nil, false
}

func stringOf(v Value) (string, bool) {
	switch v := v.(type) {
	case String:
		return string(v), true
	case Content:
		return ast.PlainText(v), true
	}
	return "", false
}

// lengthOf reads a length argument back as source text. auto reads as
// the empty length.
func lengthOf(v Value) (string, bool) {
	switch v := v.(type) {
	case *Unresolved:
		if v.Reason == reasonLength || v.Kind == OpaqueValue && v.Source != "" && isLengthExpr(v.Source) {
			return v.Source, true
		}
	case Symbol:
		if v == "auto" {
			return "", true
		}
	case Number:
		if v.F == 0 {
			return "0pt", true
		}
	}
	return "", false
}

// isLengthExpr accepts sums such as "1em + 2pt" built from lengths.
func isLengthExpr(s string) bool {
	for _, part := range strings.Fields(s) {
		if part == "+" || part == "-" {
			continue
		}
		if part == "" || part[0] < '0' || part[0] > '9' {
			return false
		}
	}
	return s != ""
}

// numbering reads a numbering argument: none switches numbering off, any
// pattern switches it on.
func numbering(a *Args) (on, set bool) {
	v, ok := a.Named("numbering")
	if !ok {
		return false, false
	}
	switch v.(type) {
	case None:
		return false, true
	case Symbol:
		return false, false
	}
	return true, true
}

func intArg(a *Args, name string) (int, bool) {
	v, ok := a.Named(name)
	if !ok {
		return 0, false
	}
	n, ok := v.(Number)
	if !ok || !n.Int {
		return 0, false
	}
	return int(n.F), true
}

func (e *Evaluator) heading(a *Args) Value {
	body, u := bodyArg(a, 0)
	if u != nil {
		return u
	}
	h := &ast.Heading{Level: 1, Numbered: e.st.headingNumbered, Content: Inline(body)}
	if n, ok := intArg(a, "level"); ok && n > 0 {
		h.Level = n
	}
	if on, set := numbering(a); set {
		h.Numbered = on
	}
	return Content{h}
}

func (e *Evaluator) figure(a *Args) Value {
	body, u := bodyArg(a, 0)
	if u != nil {
		return u
	}
	f := &ast.Figure{Body: Blockify(body)}
	if v, ok := a.Named("caption"); ok {
		c, ok := contentOf(v)
		if !ok {
			return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "caption is " + v.typeName()}
		}
		f.Caption = Trim(Inline(c))
	}
	if v, ok := a.Named("placement"); ok {
		if s, ok := v.(Symbol); ok && s != "auto" {
			f.Placement = string(s)
		}
	}
	return Content{f}
}

func (e *Evaluator) image(a *Args) Value {
	v, _ := a.positional(0)
	path, ok := v.(String)
	if !ok {
		return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "image path is not a string"}
	}
	img := &ast.Image{Path: string(path)}
	if v, ok := a.Named("width"); ok {
		img.Width, _ = lengthOf(v)
	}
	if v, ok := a.Named("height"); ok {
		img.Height, _ = lengthOf(v)
	}
	return Content{img}
}

func (e *Evaluator) link(a *Args) Value {
	v, _ := a.positional(0)
	url, ok := v.(String)
	if !ok {
		return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "link target is not a string"}
	}
	body, u := bodyArg(a, 1)
	if u != nil {
		return u
	}
	return Content{&ast.Link{URL: string(url), Content: Inline(body)}}
}

func (e *Evaluator) cite(a *Args) Value {
	c := &ast.Cite{}
	for _, v := range a.Pos {
		if l, ok := v.(Label); ok {
			c.Keys = append(c.Keys, string(l))
		}
	}
	if len(c.Keys) == 0 {
		return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "cite without a label"}
	}
	if v, ok := a.Named("form"); ok {
		switch v := v.(type) {
		case None:
			c.Mode = "n"
		case String:
			if v == "prose" || v == "author" {
				c.Mode = "t"
			}
		}
	}
	return Content{c}
}

func (e *Evaluator) ref(a *Args) Value {
	v, _ := a.positional(0)
	l, ok := v.(Label)
	if !ok {
		return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "ref target is not a label"}
	}
	return Content{&ast.Ref{Key: string(l), Kind: "ref"}}
}

func (e *Evaluator) bibliography(a *Args) Value {
	b := &ast.Bibliography{}
	v, _ := a.positional(0)
	switch v := v.(type) {
	case String:
		b.Files = []string{string(v)}
	case Array:
		for _, it := range v {
			if s, ok := it.(String); ok {
				b.Files = append(b.Files, string(s))
			}
		}
	default:
		return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "bibliography source is not a path"}
	}
	if v, ok := a.Named("style"); ok {
		b.Style, _ = stringOf(v)
	}
	return Content{b}
}

func (e *Evaluator) raw(a *Args) Value {
	v, _ := a.positional(0)
	text, ok := v.(String)
	if !ok {
		return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "raw text is not a string"}
	}
	lang := ""
	if v, ok := a.Named("lang"); ok {
		lang, _ = stringOf(v)
	}
	if v, ok := a.Named("block"); ok && v == Bool(true) {
		return Content{&ast.CodeBlock{Lang: lang, Text: string(text)}}
	}
	return Content{&ast.Code{Text: string(text)}}
}

func (e *Evaluator) quote(a *Args) Value {
	body, u := bodyArg(a, len(a.Pos)-1)
	if u != nil {
		return u
	}
	if v, ok := a.Named("block"); ok && v == Bool(true) {
		return Content{&ast.Quote{Children: Blockify(body)}}
	}
	out := Content{&ast.Text{Value: "“"}}
	out = append(out, Inline(body)...)
	return append(out, &ast.Text{Value: "”"})
}

func (e *Evaluator) label(a *Args) Value {
	v, _ := a.positional(0)
	s, ok := v.(String)
	if !ok {
		return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "label name is not a string"}
	}
	return Label(s)
}

func (e *Evaluator) equation(a *Args) Value {
	body, u := bodyArg(a, 0)
	if u != nil {
		return u
	}
	var m *ast.Math
	for _, n := range body {
		if mm, ok := n.(*ast.Math); ok {
			c := *mm
			m = &c
			break
		}
	}
	if m == nil {
		return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: "equation body is not math"}
	}
	if v, ok := a.Named("block"); ok {
		m.Display = v == Bool(true)
	}
	m.Numbered = m.Display && e.st.mathNumbered
	if on, set := numbering(a); set {
		m.Numbered = m.Display && on
	}
	return Content{m}
}

// setRule applies #set document, heading and math.equation. Top-level page,
// text, par and bibliography rules go to the document layout. Other targets
// stay as opaque rules.
func (e *Evaluator) setRule(n *ast.Interp) []ast.Node {
	call, ok := n.Expr.(*ast.CallExpr)
	if !ok {
		return e.opaque(&Unresolved{Kind: OpaqueSet, Reason: "conditional set rule"}, n.Source, n.Block)
	}
	target := exprSource(call.Callee)
	switch target {
	case "document":
		a := e.args(call)
		if v, ok := a.Named("title"); ok {
			if c, ok := contentOf(v); ok && len(c) > 0 {
				e.meta.Title = Trim(Inline(c))
			}
		}
		if v, ok := a.Named("author"); ok {
			e.meta.Author = authors(v)
		}
		if v, ok := a.Named("date"); ok {
			if c, ok := contentOf(v); ok && len(c) > 0 {
				e.meta.Date = Trim(Inline(c))
			}
		}
		return nil
	case "heading":
		if on, set := numbering(e.args(call)); set {
			e.st.headingNumbered = on
			return nil
		}
	case "math.equation":
		a := e.args(call)
		if on, set := numbering(a); set {
			e.st.mathNumbered = on
			if within := equationWithin(a); on && within != "" && e.scope.Depth() == 1 {
				e.layoutOf().EquationWithin = within
			}
			return nil
		}
	case "page", "text", "par", "bibliography":
		if e.scope.Depth() == 1 && e.pageRule(target, e.args(call)) {
			return nil
		}
	}
	return e.opaque(&Unresolved{Kind: OpaqueSet, Reason: "set " + target}, n.Source, n.Block)
}

func authors(v Value) []ast.Node {
	switch v := v.(type) {
	case Array:
		var names []string
		for _, it := range v {
			if d, ok := it.(*Dict); ok {
				it, _ = d.Get("name")
			}
			if s, ok := stringOf(it); ok {
				names = append(names, s)
			}
		}
		if len(names) == 0 {
			return nil
		}
		return []ast.Node{&ast.Text{Value: strings.Join(names, ", ")}}
	}
	if c, ok := contentOf(v); ok && len(c) > 0 {
		return Trim(Inline(c))
	}
	return nil
}

// pendingRule is an hline waiting for the final row count.
type pendingRule struct {
	y        int
	stroke   string
	partial  bool
	from, to int
}

// tableBuilder places table children the way Typst auto-places cells:
// row-major into the first free slot, skipping slots taken by spans.
type tableBuilder struct {
	t        *ast.Table
	taken    map[[2]int]bool
	row, col int
	lastRow  int
	rules    []pendingRule
}

func (e *Evaluator) table(a *Args) Value {
	t := &ast.Table{Columns: columnsOf(a)}
	tb := &tableBuilder{t: t, taken: make(map[[2]int]bool), lastRow: -1}
	tb.alignments(a)
	for _, v := range a.Pos {
		if u := tb.add(v, false); u != nil {
			return u
		}
	}
	tb.finish()

	stroke, hasStroke := a.Named("stroke")
	if _, none := stroke.(None); hasStroke && none {
		t.Border = table.Classify(t)
	} else {
		table.ApplyGrid(t)
	}
	return Content{t}
}

func columnsOf(a *Args) int {
	v, ok := a.Named("columns")
	if !ok {
		return 1
	}
	switch v := v.(type) {
	case Number:
		if v.Int && v.F > 0 {
			return int(v.F)
		}
	case Array:
		if len(v) > 0 {
			return len(v)
		}
	}
	return 1
}

func (tb *tableBuilder) alignments(a *Args) {
	v, ok := a.Named("align")
	if !ok {
		return
	}
	set := func(i int, v Value) {
		s, ok := v.(Symbol)
		if !ok {
			return
		}
		al, ok := table.AlignFromName(string(s))
		if !ok {
			return
		}
		for len(tb.t.ColAlign) <= i {
			tb.t.ColAlign = append(tb.t.ColAlign, ast.AlignDefault)
		}
		tb.t.ColAlign[i] = al
	}
	switch v := v.(type) {
	case Array:
		for i, it := range v {
			set(i, it)
		}
	case Symbol:
		for i := 0; i < tb.t.Columns; i++ {
			set(i, v)
		}
	}
}

// add places one table child. header marks the rows it lands in.
func (tb *tableBuilder) add(v Value, header bool) *Unresolved {
	switch v := v.(type) {
	case *Element:
		switch v.Name {
		case "table.cell":
			cell, u := tableCell(v.Args)
			if u != nil {
				return u
			}
			tb.place(cell, header)
		case "table.header", "table.footer":
			for _, it := range v.Args.Pos {
				if u := tb.add(it, v.Name == "table.header"); u != nil {
					return u
				}
			}
		case "table.hline":
			tb.hline(v.Args)
		case "table.vline":
			tb.vline(v.Args)
		default:
			return &Unresolved{Kind: OpaqueValue, Source: v.Args.Source, Reason: v.Name + " inside table"}
		}
		return nil
	case *Unresolved:
		return v
	}
	c, ok := contentOf(v)
	if !ok {
		return &Unresolved{Kind: OpaqueValue, Reason: "table cell is " + v.typeName()}
	}
	tb.place(&ast.TableCell{Content: Trim(Inline(c))}, header)
	return nil
}

func tableCell(a *Args) (*ast.TableCell, *Unresolved) {
	body, u := bodyArg(a, 0)
	if u != nil {
		return nil, u
	}
	cell := &ast.TableCell{Content: Trim(Inline(body))}
	if n, ok := intArg(a, "colspan"); ok && n > 1 {
		cell.Colspan = n
	}
	if n, ok := intArg(a, "rowspan"); ok && n > 1 {
		cell.Rowspan = n
	}
	if v, ok := a.Named("align"); ok {
		if s, ok := v.(Symbol); ok {
			cell.Align, _ = table.AlignFromName(string(s))
		}
	}
	if v, ok := a.Named("fill"); ok {
		switch v := v.(type) {
		case *Unresolved:
			cell.Fill = v.Source
		case String:
			cell.Fill = string(v)
		}
	}
	return cell, nil
}

func (tb *tableBuilder) place(cell *ast.TableCell, header bool) {
	cols := tb.t.Columns
	for tb.taken[[2]int{tb.row, tb.col}] || tb.col >= cols {
		tb.col++
		if tb.col >= cols {
			tb.col = 0
			tb.row++
		}
	}
	cs, rs := cell.Span()
	if tb.col+cs > cols {
		cs = cols - tb.col
		cell.Colspan = cs
	}
	for dr := 0; dr < rs; dr++ {
		for dc := 0; dc < cs; dc++ {
			tb.taken[[2]int{tb.row + dr, tb.col + dc}] = true
		}
	}
	for len(tb.t.Rows) <= tb.row {
		tb.t.Rows = append(tb.t.Rows, &ast.TableRow{})
	}
	r := tb.t.Rows[tb.row]
	r.Cells = append(r.Cells, cell)
	if header {
		r.Header = true
	}
	tb.lastRow = tb.row
	tb.col += cs
}

func (tb *tableBuilder) hline(a *Args) {
	pr := pendingRule{y: tb.lastRow + 1}
	if y, ok := intArg(a, "y"); ok {
		pr.y = y
	}
	if v, ok := a.Named("stroke"); ok {
		if _, none := v.(None); none {
			return
		}
		pr.stroke, _ = lengthOf(v)
		if pr.stroke == "" {
			if u, isU := v.(*Unresolved); isU {
				pr.stroke = u.Source
			}
		}
	}
	start, hasStart := intArg(a, "start")
	end, hasEnd := intArg(a, "end")
	if hasStart && start > 0 || hasEnd && end < tb.t.Columns {
		pr.partial = true
		pr.from = start + 1
		pr.to = tb.t.Columns
		if hasEnd {
			pr.to = end
		}
	}
	tb.rules = append(tb.rules, pr)
}

func (tb *tableBuilder) vline(a *Args) {
	x := tb.col
	if n, ok := intArg(a, "x"); ok {
		x = n
	}
	for _, v := range tb.t.VRules {
		if v == x {
			return
		}
	}
	tb.t.VRules = append(tb.t.VRules, x)
	sort.Ints(tb.t.VRules)
}

// finish resolves pending rules against the final row count. Weights
// outside the booktabs idiom keep their position and are marked approximate.
func (tb *tableBuilder) finish() {
	t := tb.t
	for len(t.ColAlign) > 0 && len(t.ColAlign) < t.Columns {
		t.ColAlign = append(t.ColAlign, t.ColAlign[len(t.ColAlign)-1])
	}
	n := len(t.Rows)
	for _, pr := range tb.rules {
		kind, mapped := table.RuleFromStroke(pr.stroke, pr.partial, pr.y == 0, pr.y >= n)
		r := ast.Rule{Kind: kind, Approx: !mapped}
		if pr.partial {
			r.From, r.To = pr.from, pr.to
		}
		if pr.y >= n {
			t.RulesBelow = append(t.RulesBelow, r)
			continue
		}
		if pr.y < 0 {
			pr.y = 0
		}
		t.Rows[pr.y].RulesAbove = append(t.Rows[pr.y].RulesAbove, r)
	}
}
