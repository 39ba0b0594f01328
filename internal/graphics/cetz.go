package graphics

import (
	"fmt"
	"strconv"
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/typst"
)

// ReadCeTZ reads a `#cetz.canvas({...})` call, or a bare canvas body.
func ReadCeTZ(src string) (*Picture, error) {
	body := strings.TrimSpace(src)
	body = strings.TrimPrefix(body, "#")
	if strings.HasPrefix(body, "cetz.canvas") || strings.HasPrefix(body, "canvas") {
		open := strings.Index(body, "{")
		close := strings.LastIndex(body, "}")
		if open < 0 || close < open {
			return nil, fmt.Errorf("canvas has no body")
		}
		body = body[open+1 : close]
	}
	pic := &Picture{}
	r := &cetzReader{pic: pic}
	for _, stmt := range splitCode(body) {
		r.statement(stmt)
	}
	return pic, nil
}

type cetzReader struct {
	pic *Picture
}

// splitCode splits a code block body at top-level newlines and semicolons.
func splitCode(src string) []string {
	var out []string
	depth, start := 0, 0
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '/':
			if strings.HasPrefix(src[i:], "//") {
				end := strings.IndexByte(src[i:], '\n')
				if end < 0 {
					end = len(src) - i
				}
				src = src[:i] + strings.Repeat(" ", end) + src[i+end:]
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '\n', ';':
			if depth == 0 {
				out = append(out, src[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, src[start:])
	var stmts []string
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func (r *cetzReader) unsupported(name, src string) {
	r.pic.Items = append(r.pic.Items, &Unsupported{Name: name, Source: src})
}

func (r *cetzReader) statement(stmt string) {
	if strings.HasPrefix(stmt, "import ") {
		return
	}
	x := typst.ParseExpr(stmt)
	call, ok := x.(*ast.CallExpr)
	if !ok || len(call.Source) != len(stmt) {
		r.unsupported(firstWord(stmt), stmt)
		return
	}
	name := calleeName(call.Callee)
	var items []Item
	var fail string
	switch name {
	case "line":
		items, fail = r.line(call)
	case "bezier":
		items, fail = r.bezier(call)
	case "arc":
		items, fail = r.arc(call)
	case "circle":
		items, fail = r.circle(call)
	case "rect":
		items, fail = r.rect(call)
	case "content":
		items, fail = r.content(call)
	case "merge-path":
		items, fail = r.mergePath(call)
	case "scale":
		if len(call.Args) == 1 {
			if v, ok := number(call.Args[0].Value); ok {
				r.pic.Scale = v
				return
			}
		}
		fail = "scale"
	default:
		r.unsupported(name, stmt)
		return
	}
	if fail != "" {
		r.unsupported(name+" "+fail, stmt)
		return
	}
	r.pic.Items = append(r.pic.Items, items...)
}

func calleeName(x ast.Expr) string {
	switch x := x.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.FieldExpr:
		return x.Field
	}
	return "?"
}

// split separates positional arguments from named ones.
func split(call *ast.CallExpr) ([]ast.Expr, map[string]ast.Expr, []string) {
	var pos []ast.Expr
	named := map[string]ast.Expr{}
	var order []string
	for _, a := range call.Args {
		if a.Name == "" {
			pos = append(pos, a.Value)
			continue
		}
		named[a.Name] = a.Value
		order = append(order, a.Name)
	}
	return pos, named, order
}

// style reads the stroke, fill and mark arguments. It returns the names of
// arguments it could not map.
func (r *cetzReader) style(named map[string]ast.Expr, order []string, skip ...string) (Style, []string) {
	st := Style{Draw: true}
	var bad []string
	for _, k := range order {
		if contains(skip, k) {
			continue
		}
		v := named[k]
		ok := true
		switch k {
		case "stroke":
			ok = st.stroke(v)
		case "fill":
			if _, none := v.(*ast.NoneLit); none {
				st.Fill = ""
			} else {
				st.Fill, ok = colorOf(v)
			}
		case "mark":
			ok = st.mark(v)
		default:
			ok = false
		}
		if !ok {
			bad = append(bad, k)
		}
	}
	return st, bad
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func (st *Style) stroke(v ast.Expr) bool {
	switch v := v.(type) {
	case *ast.NoneLit:
		st.Draw = false
		return true
	case *ast.NumberLit:
		w, ok := strokeWidth(v)
		st.Width = w
		return ok
	case *ast.BinaryExpr:
		if v.Op != "+" {
			return false
		}
		return st.stroke(v.Left) && st.stroke(v.Right)
	case *ast.DictExpr:
		for i, k := range v.Keys {
			ok := true
			switch k {
			case "paint":
				st.Color, ok = colorOf(v.Values[i])
			case "thickness":
				n, isNum := v.Values[i].(*ast.NumberLit)
				if ok = isNum; ok {
					st.Width, ok = strokeWidth(n)
				}
			case "dash":
				s, isStr := v.Values[i].(*ast.StringLit)
				ok = isStr && (s.Value == "dashed" || s.Value == "dotted")
				if ok {
					st.Dash = s.Value
				}
			default:
				ok = false
			}
			if !ok {
				return false
			}
		}
		return true
	}
	c, ok := colorOf(v)
	st.Color = c
	return ok
}

func strokeWidth(n *ast.NumberLit) (string, bool) {
	if n.Unit != "pt" && n.Unit != "mm" && n.Unit != "cm" {
		return "", false
	}
	return n.Text, true
}

func (st *Style) mark(v ast.Expr) bool {
	d, ok := v.(*ast.DictExpr)
	if !ok {
		return false
	}
	start, end := false, false
	for i, k := range d.Keys {
		if _, ok := d.Values[i].(*ast.StringLit); !ok {
			return false
		}
		switch k {
		case "start":
			start = true
		case "end":
			end = true
		default:
			return false
		}
	}
	switch {
	case start && end:
		st.Arrow = "<->"
	case start:
		st.Arrow = "<-"
	case end:
		st.Arrow = "->"
	}
	return true
}

// colorOf reads a named color, optionally lightened: red.lighten(80%)
// is xcolor's red!20.
func colorOf(v ast.Expr) (string, bool) {
	switch v := v.(type) {
	case *ast.Ident:
		return v.Name, colors[v.Name]
	case *ast.CallExpr:
		f, ok := v.Callee.(*ast.FieldExpr)
		if !ok || f.Field != "lighten" || len(v.Args) != 1 {
			return "", false
		}
		base, ok := f.X.(*ast.Ident)
		pct, isNum := v.Args[0].Value.(*ast.NumberLit)
		if !ok || !isNum || pct.Unit != "%" || !colors[base.Name] {
			return "", false
		}
		return base.Name + "!" + strconv.Itoa(100-int(pct.Value)), true
	}
	return "", false
}

// number reads a plain or negated numeric literal.
func number(x ast.Expr) (float64, bool) {
	switch x := x.(type) {
	case *ast.NumberLit:
		f, ok := lengthUnits[x.Unit]
		return x.Value * f, ok
	case *ast.UnaryExpr:
		if x.Op == "-" {
			v, ok := number(x.X)
			return -v, ok
		}
	}
	return 0, false
}

func angle(x ast.Expr) (float64, bool) {
	switch x := x.(type) {
	case *ast.NumberLit:
		if x.Unit == "deg" {
			return x.Value, true
		}
	case *ast.UnaryExpr:
		if x.Op == "-" {
			v, ok := angle(x.X)
			return -v, ok
		}
	}
	return 0, false
}

// point reads (x, y), (angle, radius), "name", "name.anchor" or
// (rel: (x, y)).
func point(x ast.Expr) (Point, bool) {
	switch x := x.(type) {
	case *ast.ArrayExpr:
		if len(x.Items) == 0 {
			// () is the current position
			return Point{Rel: RelMove}, true
		}
		if len(x.Items) != 2 {
			return Point{}, false
		}
		if a, ok := angle(x.Items[0]); ok {
			r, ok := number(x.Items[1])
			return Point{Kind: PointPolar, Angle: a, Radius: r}, ok
		}
		px, ok1 := number(x.Items[0])
		py, ok2 := number(x.Items[1])
		return At(px, py), ok1 && ok2
	case *ast.StringLit:
		name, anchor, _ := strings.Cut(x.Value, ".")
		return Point{Kind: PointNamed, Name: name, Anchor: strings.ReplaceAll(anchor, "-", " ")}, name != ""
	case *ast.DictExpr:
		rel := RelMove
		var p Point
		ok := false
		for i, k := range x.Keys {
			switch k {
			case "rel":
				p, ok = point(x.Values[i])
				ok = ok && p.Kind != PointNamed
			case "update":
				b, isBool := x.Values[i].(*ast.BoolLit)
				if !isBool {
					return Point{}, false
				}
				if !b.Value {
					rel = RelStay
				}
			default:
				return Point{}, false
			}
		}
		p.Rel = rel
		return p, ok
	}
	return Point{}, false
}

func points(xs []ast.Expr, tr *tracker) ([]Point, bool) {
	out := make([]Point, 0, len(xs))
	for _, x := range xs {
		p, ok := point(x)
		if !ok {
			return nil, false
		}
		out = append(out, tr.resolve(p))
	}
	return out, true
}

func closed(named map[string]ast.Expr) (bool, bool) {
	v, ok := named["close"]
	if !ok {
		return false, true
	}
	b, ok := v.(*ast.BoolLit)
	return ok && b.Value, ok
}

func (r *cetzReader) options(bad []string) []Item {
	var items []Item
	for _, k := range bad {
		items = append(items, &Unsupported{Name: "option " + k, Source: k})
	}
	return items
}

// corner reads ((), "-|", p) and ((), "|-", p).
func corner(x ast.Expr) (SegmentKind, ast.Expr, bool) {
	arr, ok := x.(*ast.ArrayExpr)
	if !ok || len(arr.Items) != 3 {
		return 0, nil, false
	}
	prev, ok := arr.Items[0].(*ast.ArrayExpr)
	op, isStr := arr.Items[1].(*ast.StringLit)
	if !ok || len(prev.Items) != 0 || !isStr {
		return 0, nil, false
	}
	switch op.Value {
	case "-|":
		return SegHV, arr.Items[2], true
	case "|-":
		return SegVH, arr.Items[2], true
	}
	return 0, nil, false
}

func (r *cetzReader) line(call *ast.CallExpr) ([]Item, string) {
	pos, named, order := split(call)
	if len(pos) < 2 {
		return nil, "coordinate"
	}
	var tr tracker
	start, ok := point(pos[0])
	if !ok {
		return nil, "coordinate"
	}
	p := &Path{Start: tr.resolve(start)}
	skip := false
	for _, x := range pos[1:] {
		kind, target, isCorner := corner(x)
		if !isCorner {
			kind, target = SegLine, x
		}
		q, ok := point(target)
		if !ok {
			return nil, "coordinate"
		}
		q = tr.resolve(q)
		if skip && kind == SegLine && q == lastPoint(p) {
			// the point after a corner repeats its target
			skip = false
			continue
		}
		skip = isCorner
		p.Segments = append(p.Segments, Segment{Kind: kind, To: q})
	}
	cl, ok := closed(named)
	if !ok {
		return nil, "close"
	}
	if cl {
		p.Segments = append(p.Segments, Segment{Kind: SegClose})
	}
	st, bad := r.style(named, order, "close", "name")
	p.Style = st
	return append(r.options(bad), p), ""
}

func (r *cetzReader) bezier(call *ast.CallExpr) ([]Item, string) {
	pos, named, order := split(call)
	if len(pos) < 3 || len(pos) > 4 {
		return nil, "coordinate"
	}
	var tr tracker
	pts, ok := points(pos, &tr)
	if !ok {
		return nil, "coordinate"
	}
	st, bad := r.style(named, order, "name")
	p := &Path{Style: st, Start: pts[0]}
	p.Segments = []Segment{{Kind: SegCurve, To: pts[1], Ctrl: pts[2:]}}
	return append(r.options(bad), p), ""
}

func (r *cetzReader) arc(call *ast.CallExpr) ([]Item, string) {
	pos, named, order := split(call)
	if len(pos) != 1 {
		return nil, "coordinate"
	}
	start, ok := point(pos[0])
	if !ok {
		return nil, "coordinate"
	}
	seg := Segment{Kind: SegArc}
	var have int
	for _, k := range []string{"start", "stop", "radius"} {
		v, present := named[k]
		if !present {
			continue
		}
		var ok bool
		switch k {
		case "start":
			seg.Start, ok = angle(v)
		case "stop":
			seg.End, ok = angle(v)
		case "radius":
			seg.Radius, ok = number(v)
		}
		if !ok {
			return nil, k
		}
		have++
	}
	if have != 3 {
		return nil, "angles"
	}
	st, bad := r.style(named, order, "start", "stop", "radius", "name")
	p := &Path{Style: st, Start: start, Segments: []Segment{seg}}
	return append(r.options(bad), p), ""
}

func (r *cetzReader) circle(call *ast.CallExpr) ([]Item, string) {
	pos, named, order := split(call)
	if len(pos) != 1 {
		return nil, "coordinate"
	}
	c, ok := point(pos[0])
	if !ok {
		return nil, "coordinate"
	}
	radius := 1.0
	if v, present := named["radius"]; present {
		if radius, ok = number(v); !ok {
			return nil, "radius"
		}
	}
	st, bad := r.style(named, order, "radius", "name")
	p := &Path{Style: st, Start: c, Segments: []Segment{{Kind: SegCircle, Radius: radius}}}
	return append(r.options(bad), p), ""
}

func (r *cetzReader) rect(call *ast.CallExpr) ([]Item, string) {
	pos, named, order := split(call)
	var tr tracker
	pts, ok := points(pos, &tr)
	if !ok || len(pts) != 2 {
		return nil, "coordinate"
	}
	st, bad := r.style(named, order, "name")
	p := &Path{Style: st, Start: pts[0], Segments: []Segment{{Kind: SegRect, To: pts[1]}}}
	return append(r.options(bad), p), ""
}

func (r *cetzReader) content(call *ast.CallExpr) ([]Item, string) {
	pos, named, _ := split(call)
	if len(pos) != 2 {
		return nil, "arguments"
	}
	at, ok := point(pos[0])
	if !ok {
		return nil, "coordinate"
	}
	body, ok := pos[1].(*ast.ContentExpr)
	if !ok {
		return nil, "body"
	}
	text := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(body.Source, "["), "]"))
	name := ""
	if v, present := named["name"]; present {
		s, ok := v.(*ast.StringLit)
		if !ok {
			return nil, "name"
		}
		name = s.Value
	}
	if text == "" && name != "" {
		return []Item{&Coordinate{Name: name, At: at}}, ""
	}
	n := &Node{At: at, Name: name, Text: text}
	if v, present := named["anchor"]; present {
		s, ok := v.(*ast.StringLit)
		if !ok || !anchors[strings.ReplaceAll(s.Value, "-", " ")] {
			return nil, "anchor"
		}
		n.Anchor = strings.ReplaceAll(s.Value, "-", " ")
	}
	return []Item{n}, ""
}

// mergePath joins the paths of a merge-path body into one path.
func (r *cetzReader) mergePath(call *ast.CallExpr) ([]Item, string) {
	pos, named, order := split(call)
	if len(pos) != 1 {
		return nil, "body"
	}
	inner := &cetzReader{pic: &Picture{}}
	switch body := pos[0].(type) {
	case *ast.CodeExpr:
		for _, stmt := range splitCode(strings.TrimSuffix(strings.TrimPrefix(body.Source, "{"), "}")) {
			inner.statement(stmt)
		}
	case *ast.CallExpr:
		inner.statement(body.Source)
	default:
		return nil, "body"
	}
	var merged *Path
	for _, it := range inner.pic.Items {
		p, ok := it.(*Path)
		if !ok {
			return nil, "body"
		}
		if merged == nil {
			merged = &Path{Start: p.Start}
		} else if p.Start != lastPoint(merged) {
			merged.Segments = append(merged.Segments, Segment{Kind: SegLine, To: p.Start})
		}
		merged.Segments = append(merged.Segments, p.Segments...)
	}
	if merged == nil {
		return nil, "body"
	}
	cl, ok := closed(named)
	if !ok {
		return nil, "close"
	}
	if cl {
		merged.Segments = append(merged.Segments, Segment{Kind: SegClose})
	}
	st, bad := r.style(named, order, "close", "name")
	merged.Style = st
	return append(r.options(bad), merged), ""
}

func lastPoint(p *Path) Point {
	for i := len(p.Segments) - 1; i >= 0; i-- {
		switch p.Segments[i].Kind {
		case SegLine, SegHV, SegVH, SegCurve, SegRect:
			return p.Segments[i].To
		}
	}
	return p.Start
}

// XColor converts a Typst color expression, a name or name.lighten(P%),
// into xcolor syntax.
func XColor(expr string) (string, bool) {
	return colorOf(typst.ParseExpr(strings.TrimSpace(expr)))
}
