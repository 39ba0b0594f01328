package graphics

import (
	"fmt"
	"strconv"
	"strings"
)

// EmitOptions configures the emitters. Text converts node text into the
// target markup; nil keeps it unchanged.
type EmitOptions struct {
	Text func(string) string
}

func (o EmitOptions) text(s string) string {
	if o.Text == nil {
		return s
	}
	return o.Text(s)
}

// EmitCeTZ writes pic as a CeTZ canvas.
func EmitCeTZ(pic *Picture, opts EmitOptions) string {
	var sb strings.Builder
	sb.WriteString("#cetz.canvas({\n")
	sb.WriteString("  import cetz.draw: *\n")
	if pic.Scale != 0 && pic.Scale != 1 {
		fmt.Fprintf(&sb, "  scale(%s)\n", num(pic.Scale))
	}
	for _, it := range pic.Items {
		for _, line := range cetzItem(it, opts) {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("})")
	return sb.String()
}

func cetzPoint(p Point) string {
	var s string
	switch p.Kind {
	case PointNamed:
		if p.Anchor != "" {
			return strconv.Quote(p.Name + "." + strings.ReplaceAll(p.Anchor, " ", "-"))
		}
		return strconv.Quote(p.Name)
	case PointPolar:
		s = "(" + num(p.Angle) + "deg, " + num(p.Radius) + ")"
	default:
		s = "(" + num(p.X) + ", " + num(p.Y) + ")"
	}
	switch p.Rel {
	case RelMove:
		return "(rel: " + s + ")"
	case RelStay:
		return "(rel: " + s + ", update: false)"
	}
	return s
}

// cetzColor writes xcolor's red!20 as red.lighten(80%).
func cetzColor(c string) string {
	name, tint, _ := splitTint(c)
	if tint < 0 || tint == 100 {
		return name
	}
	return name + ".lighten(" + strconv.Itoa(100-tint) + "%)"
}

func cetzStyle(st Style) []string {
	var args []string
	var stroke []string
	if st.Color != "" {
		stroke = append(stroke, "paint: "+cetzColor(st.Color))
	}
	if st.Width != "" {
		stroke = append(stroke, "thickness: "+st.Width)
	}
	if st.Dash != "" {
		stroke = append(stroke, "dash: "+strconv.Quote(st.Dash))
	}
	switch {
	case !st.Draw:
		args = append(args, "stroke: none")
	case len(stroke) == 1 && st.Dash == "":
		_, v, _ := strings.Cut(stroke[0], ": ")
		args = append(args, "stroke: "+v)
	case len(stroke) > 0:
		args = append(args, "stroke: ("+strings.Join(stroke, ", ")+")")
	}
	if st.Fill != "" {
		args = append(args, "fill: "+cetzColor(st.Fill))
	}
	switch st.Arrow {
	case "->":
		args = append(args, `mark: (end: ">")`)
	case "<-":
		args = append(args, `mark: (start: ">")`)
	case "<->":
		args = append(args, `mark: (start: ">", end: ">")`)
	}
	return args
}

func call(name string, args ...string) string {
	return name + "(" + strings.Join(args, ", ") + ")"
}

func cetzItem(it Item, opts EmitOptions) []string {
	switch it := it.(type) {
	case *Path:
		return cetzPath(it, opts)
	case *Node:
		return []string{cetzNode(it, cetzPoint(it.At), opts)}
	case *Coordinate:
		return []string{call("content", cetzPoint(it.At), "[]", "name: "+strconv.Quote(it.Name))}
	case *Unsupported:
		return commented("// ", it)
	}
	return nil
}

func commented(prefix string, u *Unsupported) []string {
	var out []string
	if u.Marker != "" {
		out = append(out, prefix+u.Marker)
	}
	for _, l := range strings.Split(strings.TrimSpace(u.Source), "\n") {
		out = append(out, prefix+strings.TrimSpace(l))
	}
	return out
}

func cetzNode(n *Node, at string, opts EmitOptions) string {
	body := opts.text(n.Text)
	if n.Style.Color != "" {
		body = "#text(fill: " + cetzColor(n.Style.Color) + ")[" + body + "]"
	}
	args := []string{at, "[" + body + "]"}
	if n.Anchor != "" {
		args = append(args, "anchor: "+strconv.Quote(strings.ReplaceAll(n.Anchor, " ", "-")))
	}
	if n.Name != "" {
		args = append(args, "name: "+strconv.Quote(n.Name))
	}
	return call("content", args...)
}

// cetzPath splits a path into CeTZ elements. Consecutive straight segments
// share one line element; a filled path of several elements is wrapped in
// merge-path so the fill covers the whole outline.
func cetzPath(p *Path, opts EmitOptions) []string {
	var (
		elems  []string
		labels []string
		run    []string
		closed bool
	)
	cur := cetzPoint(p.Start)
	flush := func() {
		if len(run) > 1 {
			args := run
			if closed {
				args = append(args, "close: true")
			}
			elems = append(elems, call("line", args...))
		}
		run, closed = nil, false
	}
	label := func(n *Node, pos string) {
		if n == nil {
			return
		}
		labels = append(labels, cetzNode(n, pos, opts))
	}
	label(p.Label, cur)
	for _, seg := range p.Segments {
		switch seg.Kind {
		case SegLine, SegHV, SegVH:
			if len(run) == 0 {
				run = []string{cur}
			}
			to := cetzPoint(seg.To)
			switch seg.Kind {
			case SegHV:
				run = append(run, `((), "-|", `+to+")")
			case SegVH:
				run = append(run, `((), "|-", `+to+")")
			}
			run = append(run, to)
			cur = to
		case SegClose:
			if len(run) == 0 {
				run = []string{cur}
				run = append(run, cetzPoint(p.Start))
			}
			closed = true
			flush()
			cur = cetzPoint(p.Start)
		case SegCurve:
			flush()
			to := cetzPoint(seg.To)
			args := []string{cur, to}
			for _, c := range seg.Ctrl {
				args = append(args, cetzPoint(c))
			}
			elems = append(elems, call("bezier", args...))
			cur = to
		case SegArc:
			flush()
			elems = append(elems, call("arc", cur,
				"start: "+num(seg.Start)+"deg", "stop: "+num(seg.End)+"deg", "radius: "+num(seg.Radius)))
			cur = "()"
		case SegCircle:
			flush()
			elems = append(elems, call("circle", cur, "radius: "+num(seg.Radius)))
		case SegRect:
			flush()
			to := cetzPoint(seg.To)
			elems = append(elems, call("rect", cur, to))
			cur = to
		}
		label(seg.Label, cur)
	}
	flush()

	style := cetzStyle(p.Style)
	var out []string
	switch {
	case len(elems) == 0:
	case len(elems) == 1 || p.Style.Fill == "":
		for _, e := range elems {
			if len(style) > 0 {
				e = strings.TrimSuffix(e, ")") + ", " + strings.Join(style, ", ") + ")"
			}
			out = append(out, e)
		}
	default:
		out = append(out, "merge-path({")
		for _, e := range elems {
			out = append(out, "  "+e)
		}
		out = append(out, "}, "+strings.Join(style, ", ")+")")
	}
	return append(out, labels...)
}

// EmitTikZ writes pic as a tikzpicture environment.
func EmitTikZ(pic *Picture, opts EmitOptions) string {
	var sb strings.Builder
	sb.WriteString(`\begin{tikzpicture}`)
	if pic.Scale != 0 && pic.Scale != 1 {
		sb.WriteString("[scale=" + num(pic.Scale) + "]")
	}
	sb.WriteByte('\n')
	for _, it := range pic.Items {
		for _, line := range tikzItem(it, opts) {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	sb.WriteString(`\end{tikzpicture}`)
	return sb.String()
}

func tikzPoint(p Point) string {
	var s string
	switch p.Kind {
	case PointNamed:
		s = p.Name
		if p.Anchor != "" {
			s += "." + p.Anchor
		}
		s = "(" + s + ")"
	case PointPolar:
		s = "(" + num(p.Angle) + ":" + num(p.Radius) + ")"
	default:
		s = "(" + num(p.X) + "," + num(p.Y) + ")"
	}
	switch p.Rel {
	case RelMove:
		return "++" + s
	case RelStay:
		return "+" + s
	}
	return s
}

func tikzOptions(opts []string) string {
	if len(opts) == 0 {
		return ""
	}
	return "[" + strings.Join(opts, ", ") + "]"
}

func tikzItem(it Item, opts EmitOptions) []string {
	switch it := it.(type) {
	case *Path:
		return []string{tikzPath(it, opts)}
	case *Node:
		s := `\node` + tikzOptions(nodeOptions(it))
		if it.Name != "" {
			s += " (" + it.Name + ")"
		}
		return []string{s + " at " + tikzPoint(it.At) + " {" + opts.text(it.Text) + "};"}
	case *Coordinate:
		return []string{`\coordinate (` + it.Name + ") at " + tikzPoint(it.At) + ";"}
	case *Unsupported:
		return commented("% ", it)
	}
	return nil
}

func nodeOptions(n *Node) []string {
	var out []string
	if n.Anchor != "" {
		if pos, ok := positionOf(n.Anchor); ok {
			out = append(out, pos)
		} else {
			out = append(out, "anchor="+n.Anchor)
		}
	}
	if n.Style.Color != "" {
		out = append(out, n.Style.Color)
	}
	return out
}

func tikzPath(p *Path, opts EmitOptions) string {
	st := p.Style
	var cmd string
	var o []string
	if st.Arrow != "" {
		o = append(o, st.Arrow)
	}
	if st.Width != "" {
		if name, ok := thicknessName(st.Width); ok {
			o = append(o, name)
		} else {
			o = append(o, "line width="+st.Width)
		}
	}
	if st.Dash != "" {
		o = append(o, st.Dash)
	}
	switch {
	case st.Fill != "" && st.Draw:
		cmd = `\filldraw`
		o = append(o, "fill="+st.Fill)
		if st.Color != "" {
			o = append(o, "draw="+st.Color)
		}
	case st.Fill != "":
		cmd = `\fill`
		o = append(o, "fill="+st.Fill)
	case st.Draw:
		cmd = `\draw`
		if st.Color != "" {
			o = append(o, st.Color)
		}
	default:
		cmd = `\path`
	}

	var sb strings.Builder
	sb.WriteString(cmd + tikzOptions(o) + " " + tikzPoint(p.Start))
	label := func(n *Node) {
		if n == nil {
			return
		}
		sb.WriteString(" node" + tikzOptions(nodeOptions(n)))
		if n.Name != "" {
			sb.WriteString(" (" + n.Name + ")")
		}
		sb.WriteString(" {" + opts.text(n.Text) + "}")
	}
	label(p.Label)
	for _, seg := range p.Segments {
		switch seg.Kind {
		case SegLine:
			sb.WriteString(" -- " + tikzPoint(seg.To))
		case SegHV:
			sb.WriteString(" -| " + tikzPoint(seg.To))
		case SegVH:
			sb.WriteString(" |- " + tikzPoint(seg.To))
		case SegClose:
			sb.WriteString(" -- cycle")
		case SegCurve:
			sb.WriteString(" .. controls ")
			for i, c := range seg.Ctrl {
				if i > 0 {
					sb.WriteString(" and ")
				}
				sb.WriteString(tikzPoint(c))
			}
			sb.WriteString(" .. " + tikzPoint(seg.To))
		case SegArc:
			sb.WriteString(" arc (" + num(seg.Start) + ":" + num(seg.End) + ":" + num(seg.Radius) + ")")
		case SegCircle:
			sb.WriteString(" circle (" + num(seg.Radius) + ")")
		case SegRect:
			sb.WriteString(" rectangle " + tikzPoint(seg.To))
		}
		label(seg.Label)
	}
	sb.WriteByte(';')
	return sb.String()
}
