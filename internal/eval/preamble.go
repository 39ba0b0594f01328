package eval

import (
	"sort"
	"strings"

	"texbridge/internal/ast"
)

func (e *Evaluator) layoutOf() *ast.Layout {
	if e.layout == nil {
		e.layout = &ast.Layout{}
	}
	return e.layout
}

// pageRule reads a top-level #set page, text, par or bibliography into the
// document layout. It reports whether every argument was understood.
func (e *Evaluator) pageRule(target string, a *Args) bool {
	names := a.Names()
	if len(names) == 0 || len(a.Pos) > 0 {
		return false
	}
	l := e.layoutOf()
	all := true
	for _, name := range names {
		v, _ := a.Named(name)
		if !setting(l, target+"."+name, v) {
			all = false
		}
	}
	return all
}

func setting(l *ast.Layout, key string, v Value) bool {
	switch key {
	case "page.paper":
		s, ok := v.(String)
		if ok {
			l.Paper = string(s)
		}
		return ok
	case "page.margin":
		return marginOf(v, &l.Margin)
	case "page.columns":
		n, ok := v.(Number)
		if !ok || !n.Int || n.F < 1 {
			return false
		}
		l.Columns = int(n.F)
		return true
	case "page.numbering":
		_, ok := v.(String)
		return ok
	case "text.size":
		s, ok := lengthOf(v)
		if !ok || s == "" {
			return false
		}
		l.FontSize = s
		return true
	case "text.font":
		switch v := v.(type) {
		case String:
			l.Font = string(v)
			return true
		case Array:
			if len(v) > 0 {
				if s, ok := v[0].(String); ok {
					l.Font = string(s)
					return true
				}
			}
		}
		return false
	case "text.lang":
		return v == String("en")
	case "par.justify":
		b, ok := v.(Bool)
		if ok {
			l.Ragged = !bool(b)
		}
		return ok
	case "par.first-line-indent":
		s, ok := lengthOf(v)
		if ok {
			l.ParIndent = s
		}
		return ok
	case "bibliography.style":
		s, ok := v.(String)
		if ok {
			l.BibStyle = string(s)
			l.Natbib = l.Natbib || authorYear(string(s))
		}
		return ok
	}
	return false
}

func marginOf(v Value, m *ast.Margin) bool {
	if s, ok := lengthOf(v); ok && s != "" {
		m.All = s
		return true
	}
	d, ok := v.(*Dict)
	if !ok {
		return false
	}
	for _, k := range d.Keys() {
		val, _ := d.Get(k)
		s, ok := lengthOf(val)
		if !ok || s == "" {
			return false
		}
		switch k {
		case "x":
			m.Left, m.Right = s, s
		case "y":
			m.Top, m.Bottom = s, s
		case "left", "inside":
			m.Left = s
		case "right", "outside":
			m.Right = s
		case "top":
			m.Top = s
		case "bottom":
			m.Bottom = s
		case "rest":
			m.All = s
		default:
			return false
		}
	}
	return true
}

func authorYear(style string) bool {
	s := strings.ToLower(style)
	for _, k := range []string{"author", "year", "apa", "chicago", "harvard"} {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// equationWithin maps a numbering pattern such as "(1.1)" to the sectioning
// level equation numbers restart at.
func equationWithin(a *Args) string {
	v, ok := a.Named("numbering")
	if !ok {
		return ""
	}
	s, ok := v.(String)
	if !ok {
		return ""
	}
	switch n := strings.Count(string(s), "."); {
	case n >= 2:
		return "subsection"
	case n == 1:
		return "section"
	}
	return ""
}

// Metadata argument names accepted by templates, in lookup order.
var (
	titleKeys    = []string{"title", "paper-title"}
	authorKeys   = []string{"author", "authors", "name", "by"}
	dateKeys     = []string{"date", "year"}
	abstractKeys = []string{"abstract", "summary"}
	keywordKeys  = []string{"keywords", "index-terms"}
)

// template reads #show: name.with(..) as a document template. The template
// name picks the output class and the named arguments fill the metadata.
func (e *Evaluator) template(n *ast.Interp) bool {
	call, ok := n.Expr.(*ast.CallExpr)
	if !ok {
		return false
	}
	fe, ok := call.Callee.(*ast.FieldExpr)
	if !ok || fe.Field != "with" {
		return false
	}
	a := e.args(call)
	if len(a.Names()) == 0 {
		return false
	}
	l := e.layoutOf()
	l.Template = exprSource(fe.X)

	used := make(map[string]bool)
	pick := func(keys []string) (Value, bool) {
		for _, k := range keys {
			if v, ok := a.Named(k); ok {
				used[k] = true
				return v, true
			}
		}
		return nil, false
	}
	if v, ok := pick(titleKeys); ok && e.meta.Title == nil {
		if c, ok := contentOf(v); ok && len(c) > 0 {
			e.meta.Title = Trim(Inline(c))
		}
	}
	if v, ok := pick(authorKeys); ok && e.meta.Author == nil {
		e.meta.Author = authors(v)
	}
	if v, ok := pick(dateKeys); ok && e.meta.Date == nil {
		if c, ok := contentOf(v); ok && len(c) > 0 {
			e.meta.Date = Trim(Inline(c))
		}
	}
	if v, ok := pick(abstractKeys); ok {
		if c, ok := contentOf(v); ok && len(c) > 0 {
			e.meta.Abstract = Blockify(c)
		}
	}
	if v, ok := pick(keywordKeys); ok {
		e.meta.Keywords = keywords(v)
	}

	var ignored []string
	for _, k := range a.Names() {
		if !used[k] {
			ignored = append(ignored, k)
		}
	}
	if len(ignored) > 0 {
		sort.Strings(ignored)
		e.tracker.Warn("template %s: arguments ignored: %s", l.Template, strings.Join(ignored, ", "))
	}
	return true
}

func keywords(v Value) []string {
	switch v := v.(type) {
	case Array:
		var out []string
		for _, it := range v {
			if s, ok := stringOf(it); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	s, ok := stringOf(v)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// theorem builds a theorem-like environment from an unbound call such as
// #lemma[..]. The last positional argument is the body.
func (e *Evaluator) theorem(name string, a *Args) Value {
	if len(a.Pos) == 0 {
		return &Unresolved{Kind: OpaqueValue, Source: a.Source, Reason: name + " without a body"}
	}
	body, u := bodyArg(a, len(a.Pos)-1)
	if u != nil {
		return u
	}
	e.layoutOf().Theorems = true
	return Content{&ast.Environment{Name: name, Children: Blockify(body)}}
}
