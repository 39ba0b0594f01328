package graphics

import (
	"fmt"
	"strconv"
	"strings"
)

// ReadTikZ reads a tikzpicture environment, or a bare list of TikZ
// statements.
func ReadTikZ(src string) (*Picture, error) {
	body := strings.TrimSpace(src)
	pic := &Picture{}
	if strings.HasPrefix(body, `\begin{tikzpicture}`) {
		body = strings.TrimPrefix(body, `\begin{tikzpicture}`)
		end := strings.LastIndex(body, `\end{tikzpicture}`)
		if end < 0 {
			return nil, fmt.Errorf("tikzpicture is not closed")
		}
		body = body[:end]
		s := &scanner{src: body}
		s.skipSpace()
		if s.peek() == '[' {
			opts, _ := s.group('[', ']')
			readPictureOptions(pic, opts)
		}
		body = body[s.pos:]
	}
	for _, stmt := range splitStatements(body) {
		readTikZStatement(pic, stmt)
	}
	return pic, nil
}

func readPictureOptions(pic *Picture, opts string) {
	for _, o := range splitOptions(opts) {
		k, v, _ := strings.Cut(o, "=")
		k = strings.TrimSpace(k)
		if k == "scale" {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				pic.Scale = f
				continue
			}
		}
		pic.Items = append(pic.Items, &Unsupported{Name: "option " + k, Source: "[" + o + "]"})
	}
}

// splitStatements splits TikZ code at top-level semicolons and drops
// comments.
func splitStatements(src string) []string {
	var out []string
	var sb strings.Builder
	depth := 0
	flush := func() {
		if s := strings.TrimSpace(sb.String()); s != "" {
			out = append(out, s)
		}
		sb.Reset()
	}
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			sb.WriteByte(c)
			sb.WriteByte(src[i+1])
			i++
			continue
		case c == '%':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			sb.WriteByte(' ')
			continue
		case c == '{' || c == '[' || c == '(':
			depth++
		case c == '}' || c == ']' || c == ')':
			depth--
		case c == ';' && depth <= 0:
			flush()
			depth = 0
			continue
		}
		sb.WriteByte(c)
	}
	flush()
	return out
}

func readTikZStatement(pic *Picture, stmt string) {
	s := &scanner{src: stmt}
	cmd := ""
	if s.peek() == '\\' {
		s.pos++
		cmd = s.word()
	}
	var items []Item
	var ok bool
	switch cmd {
	case "draw", "fill", "filldraw", "path":
		items, ok = readPath(cmd, s)
	case "node":
		var n *Node
		n, items, ok = readNode(s, true)
		if ok {
			items = append(items, n)
		}
	case "coordinate":
		items, ok = readCoordinate(s)
	default:
		name := `\` + cmd
		if cmd == "" {
			name = firstWord(stmt)
		}
		pic.Items = append(pic.Items, &Unsupported{Name: name, Source: stmt + ";"})
		return
	}
	if !ok {
		pic.Items = append(pic.Items, &Unsupported{Name: `\` + cmd + " " + s.failed, Source: stmt + ";"})
		return
	}
	pic.Items = append(pic.Items, items...)
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return s
}

// scanner walks one TikZ statement.
type scanner struct {
	src    string
	pos    int
	failed string // what stopped a failed read
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) skipSpace() {
	for !s.eof() && strings.IndexByte(" \t\r\n", s.peek()) >= 0 {
		s.pos++
	}
}

func (s *scanner) has(prefix string) bool {
	return strings.HasPrefix(s.src[s.pos:], prefix)
}

// keyword consumes w when it is followed by a non-letter.
func (s *scanner) keyword(w string) bool {
	if !s.has(w) {
		return false
	}
	end := s.pos + len(w)
	if end < len(s.src) && isLetter(s.src[end]) {
		return false
	}
	s.pos = end
	return true
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

func (s *scanner) word() string {
	start := s.pos
	for !s.eof() && isLetter(s.peek()) {
		s.pos++
	}
	return s.src[start:s.pos]
}

// group reads a balanced group starting at the current open delimiter and
// returns its inner text.
func (s *scanner) group(open, close byte) (string, bool) {
	if s.peek() != open {
		return "", false
	}
	start := s.pos + 1
	depth := 0
	for ; s.pos < len(s.src); s.pos++ {
		switch s.src[s.pos] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				s.pos++
				return s.src[start : s.pos-1], true
			}
		}
	}
	return s.src[start:], false
}

// point reads (..), +(..) or ++(..).
func (s *scanner) point() (Point, bool) {
	s.skipSpace()
	rel := Absolute
	switch {
	case s.has("++"):
		rel = RelMove
		s.pos += 2
	case s.has("+"):
		rel = RelStay
		s.pos++
	}
	s.skipSpace()
	inner, ok := s.group('(', ')')
	if !ok {
		return Point{}, false
	}
	p, ok := parsePoint(inner)
	p.Rel = rel
	return p, ok
}

func (s *scanner) atPoint() bool {
	s.skipSpace()
	return s.peek() == '(' || s.has("+(") || s.has("++(")
}

func parsePoint(inner string) (Point, bool) {
	inner = strings.TrimSpace(inner)
	if strings.HasPrefix(inner, "$") {
		return Point{}, false
	}
	if x, y, ok := strings.Cut(inner, ","); ok {
		xv, ok1 := parseLength(x)
		yv, ok2 := parseLength(y)
		return At(xv, yv), ok1 && ok2
	}
	if a, r, ok := strings.Cut(inner, ":"); ok {
		av, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		rv, ok2 := parseLength(r)
		return Point{Kind: PointPolar, Angle: av, Radius: rv}, err == nil && ok2
	}
	if inner == "" {
		return Point{}, false
	}
	name, anchor, _ := strings.Cut(inner, ".")
	return Point{Kind: PointNamed, Name: strings.TrimSpace(name), Anchor: strings.TrimSpace(anchor)}, true
}

// lengthUnits converts units to centimeters.
var lengthUnits = map[string]float64{
	"":   1,
	"cm": 1,
	"mm": 0.1,
	"in": 2.54,
	"pt": 2.54 / 72.27,
	"bp": 2.54 / 72,
}

// parseLength reads a number with an optional unit, in centimeters.
func parseLength(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.' || s[i] == '-' || s[i] == '+') {
		i++
	}
	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, false
	}
	f, ok := lengthUnits[strings.TrimSpace(s[i:])]
	return v * f, ok
}

// splitOptions splits an option list at top-level commas.
func splitOptions(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	var opts []string
	for _, o := range out {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}
	return opts
}

var arrowOptions = map[string]string{
	"->": "->", "<-": "<-", "<->": "<->",
	"-stealth": "->", "-latex": "->", "-Latex": "->", "-{Stealth}": "->", "-{Latex}": "->", "-to": "->",
	"stealth-": "<-", "latex-": "<-", "Latex-": "<-",
	"stealth-stealth": "<->", "latex-latex": "<->", "Latex-Latex": "<->",
}

// applyOption updates st for one TikZ option. fillCmd is set for \fill and
// \filldraw, where a bare color also names the fill.
func (st *Style) applyOption(opt string, fillCmd bool) bool {
	if a, ok := arrowOptions[opt]; ok {
		st.Arrow = a
		return true
	}
	if w, ok := thicknessWidth(opt); ok {
		st.Width = w
		return true
	}
	switch opt {
	case "dashed", "dotted":
		st.Dash = opt
		return true
	case "draw":
		st.Draw = true
		return true
	}
	if validColor(opt) {
		st.Color = opt
		if fillCmd {
			st.Fill = opt
		}
		return true
	}
	k, v, ok := strings.Cut(opt, "=")
	if !ok {
		return false
	}
	k, v = strings.TrimSpace(k), strings.TrimSpace(v)
	switch k {
	case "line width":
		if _, ok := parseLength(v); !ok {
			return false
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			v += "pt"
		}
		st.Width = v
		return true
	case "draw":
		if v == "none" {
			st.Draw = false
			return true
		}
		st.Draw = true
		st.Color = v
		return validColor(v)
	case "fill":
		if v == "none" {
			st.Fill = ""
			return true
		}
		st.Fill = v
		return validColor(v)
	case "color":
		st.Color = v
		return validColor(v)
	}
	return false
}

// positions maps TikZ node placement keys to the anchor they imply.
var positions = map[string]string{
	"above":       "south",
	"below":       "north",
	"left":        "east",
	"right":       "west",
	"above left":  "south east",
	"above right": "south west",
	"below left":  "north east",
	"below right": "north west",
}

func positionOf(anchor string) (string, bool) {
	for p, a := range positions {
		if a == anchor {
			return p, true
		}
	}
	return "", false
}

var anchors = map[string]bool{
	"north": true, "south": true, "east": true, "west": true, "center": true,
	"north east": true, "north west": true, "south east": true, "south west": true,
}

func readPath(cmd string, s *scanner) ([]Item, bool) {
	st := Style{}
	switch cmd {
	case "draw":
		st.Draw = true
	case "fill":
		st.Fill = "black"
	case "filldraw":
		st.Draw = true
		st.Fill = "black"
	}
	fillCmd := cmd == "fill" || cmd == "filldraw"

	var items []Item
	s.skipSpace()
	if opts, ok := s.group('[', ']'); ok {
		for _, o := range splitOptions(opts) {
			if !st.applyOption(o, fillCmd) {
				items = append(items, &Unsupported{Name: "option " + o, Source: "[" + o + "]"})
			}
		}
	}

	var (
		path *Path
		tr   tracker
	)
	flush := func() {
		if path != nil {
			items = append(items, path)
			path = nil
		}
	}
	current := func() Point { return tr.cur }
	for {
		s.skipSpace()
		if s.eof() {
			break
		}
		switch {
		case s.atPoint():
			p, ok := s.point()
			if !ok {
				s.failed = "coordinate"
				return nil, false
			}
			flush()
			path = &Path{Style: st, Start: tr.resolve(p)}
			continue
		case path == nil:
			if s.keyword("node") {
				n, extra, ok := readNode(s, false)
				if !ok {
					return nil, false
				}
				items = append(items, extra...)
				items = append(items, n)
				continue
			}
			s.failed = firstWord(s.src[s.pos:])
			return nil, false
		}

		seg, ok := readSegment(s, &tr, current)
		if !ok {
			return nil, false
		}
		if seg == nil {
			// inline node or coordinate
			n, extra, ok := readInline(s, current())
			if !ok {
				return nil, false
			}
			items = append(items, extra...)
			switch n := n.(type) {
			case *Node:
				if len(path.Segments) == 0 {
					path.Label = n
				} else {
					path.Segments[len(path.Segments)-1].Label = n
				}
			case *Coordinate:
				items = append(items, n)
			}
			continue
		}
		path.Segments = append(path.Segments, *seg)
	}
	flush()
	return items, true
}

// readSegment reads one path operation. It returns nil without failing when
// the next operation is an inline node or coordinate.
func readSegment(s *scanner, tr *tracker, current func() Point) (*Segment, bool) {
	target := func(kind SegmentKind) (*Segment, bool) {
		p, ok := s.point()
		if !ok {
			s.failed = "coordinate"
			return nil, false
		}
		return &Segment{Kind: kind, To: tr.resolve(p)}, true
	}
	switch {
	case s.has("--"):
		s.pos += 2
		if s.skipSpace(); s.keyword("cycle") {
			return &Segment{Kind: SegClose}, true
		}
		return target(SegLine)
	case s.has("-|"):
		s.pos += 2
		return target(SegHV)
	case s.has("|-"):
		s.pos += 2
		return target(SegVH)
	case s.has(".."):
		s.pos += 2
		s.skipSpace()
		if !s.keyword("controls") {
			s.failed = ".."
			return nil, false
		}
		c1, ok := s.point()
		if !ok {
			s.failed = "controls"
			return nil, false
		}
		var c2 *Point
		if s.skipSpace(); s.keyword("and") {
			p, ok := s.point()
			if !ok {
				s.failed = "controls"
				return nil, false
			}
			c2 = &p
		}
		s.skipSpace()
		if !s.has("..") {
			s.failed = "controls"
			return nil, false
		}
		s.pos += 2
		p, ok := s.point()
		if !ok {
			s.failed = "controls"
			return nil, false
		}
		// the first control is relative to the start, the second to the end
		seg := &Segment{Kind: SegCurve}
		start := *tr
		seg.Ctrl = append(seg.Ctrl, start.resolve(c1))
		seg.To = tr.resolve(p)
		if c2 != nil {
			end := tracker{cur: seg.To, known: tr.known}
			seg.Ctrl = append(seg.Ctrl, end.resolve(*c2))
		}
		return seg, true
	case s.keyword("cycle"):
		return &Segment{Kind: SegClose}, true
	case s.keyword("rectangle"):
		return target(SegRect)
	case s.keyword("circle"):
		return readCircle(s)
	case s.keyword("arc"):
		return readArc(s, tr)
	case s.has("node") || s.has("coordinate"):
		return nil, true
	}
	s.failed = firstWord(s.src[s.pos:])
	return nil, false
}

func readCircle(s *scanner) (*Segment, bool) {
	s.skipSpace()
	seg := &Segment{Kind: SegCircle}
	var ok bool
	switch s.peek() {
	case '(':
		inner, _ := s.group('(', ')')
		seg.Radius, ok = parseLength(inner)
	case '[':
		inner, _ := s.group('[', ']')
		for _, o := range splitOptions(inner) {
			k, v, _ := strings.Cut(o, "=")
			if strings.TrimSpace(k) == "radius" {
				seg.Radius, ok = parseLength(v)
			}
		}
	}
	if !ok {
		s.failed = "circle"
	}
	return seg, ok
}

func readArc(s *scanner, tr *tracker) (*Segment, bool) {
	s.skipSpace()
	seg := &Segment{Kind: SegArc}
	ok := false
	switch s.peek() {
	case '(':
		inner, _ := s.group('(', ')')
		parts := strings.Split(inner, ":")
		if len(parts) == 3 {
			a, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			b, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			r, ok3 := parseLength(parts[2])
			seg.Start, seg.End, seg.Radius = a, b, r
			ok = err1 == nil && err2 == nil && ok3
		}
	case '[':
		inner, _ := s.group('[', ']')
		found := 0
		for _, o := range splitOptions(inner) {
			k, v, _ := strings.Cut(o, "=")
			var err error
			switch strings.TrimSpace(k) {
			case "start angle":
				seg.Start, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
			case "end angle":
				seg.End, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
			case "radius":
				var rok bool
				if seg.Radius, rok = parseLength(v); !rok {
					err = fmt.Errorf("bad radius")
				}
			default:
				err = fmt.Errorf("unknown arc option")
			}
			if err == nil {
				found++
			}
		}
		ok = found == 3
	}
	if !ok {
		s.failed = "arc"
		return nil, false
	}
	if x, y, known := tr.cur.XY(); known && tr.known {
		ex, ey := arcEnd(x, y, seg.Start, seg.End, seg.Radius)
		tr.cur = At(ex, ey)
	} else {
		tr.known = false
	}
	return seg, true
}

// readInline reads `node ...` or `coordinate (name)` inside a path.
func readInline(s *scanner, at Point) (Item, []Item, bool) {
	if s.keyword("coordinate") {
		s.skipSpace()
		name, ok := s.group('(', ')')
		if !ok {
			s.failed = "coordinate"
			return nil, nil, false
		}
		return &Coordinate{Name: strings.TrimSpace(name), At: at}, nil, true
	}
	if !s.keyword("node") {
		s.failed = firstWord(s.src[s.pos:])
		return nil, nil, false
	}
	n, extra, ok := readNode(s, false)
	if ok {
		n.At = at
	}
	return n, extra, ok
}

// readNode reads the part of a node after the `node` keyword. withAt
// allows an `at (point)` clause.
func readNode(s *scanner, withAt bool) (*Node, []Item, bool) {
	n := &Node{}
	var extra []Item
	for {
		s.skipSpace()
		switch {
		case s.peek() == '[':
			opts, _ := s.group('[', ']')
			for _, o := range splitOptions(opts) {
				if !n.applyOption(o) {
					extra = append(extra, &Unsupported{Name: "option " + o, Source: "[" + o + "]"})
				}
			}
		case s.peek() == '(':
			name, _ := s.group('(', ')')
			n.Name = strings.TrimSpace(name)
		case withAt && s.keyword("at"):
			p, ok := s.point()
			if !ok {
				s.failed = "at"
				return nil, nil, false
			}
			n.At = p
		case s.peek() == '{':
			text, _ := s.group('{', '}')
			n.Text = strings.TrimSpace(text)
			return n, extra, true
		default:
			s.failed = "node"
			return nil, nil, false
		}
	}
}

func (n *Node) applyOption(opt string) bool {
	if a, ok := positions[opt]; ok {
		n.Anchor = a
		return true
	}
	if k, v, ok := strings.Cut(opt, "="); ok && strings.TrimSpace(k) == "anchor" {
		v = strings.TrimSpace(v)
		n.Anchor = v
		return anchors[v]
	}
	if validColor(opt) {
		n.Style.Color = opt
		return true
	}
	return false
}

func readCoordinate(s *scanner) ([]Item, bool) {
	s.skipSpace()
	name, ok := s.group('(', ')')
	if !ok {
		s.failed = "coordinate"
		return nil, false
	}
	c := &Coordinate{Name: strings.TrimSpace(name)}
	if s.skipSpace(); s.keyword("at") {
		p, ok := s.point()
		if !ok {
			s.failed = "at"
			return nil, false
		}
		c.At = p
	}
	return []Item{c}, true
}
