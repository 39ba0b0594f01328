// Package graphics converts vector drawings between TikZ and CeTZ through a
// small language-neutral picture model. Only the coordinate and path subset
// both languages share is modeled; anything else is kept as an Unsupported
// item so the caller can account for it.
package graphics

import (
	"math"
	"strconv"
	"strings"
)

// Picture is a drawing. Coordinates are in centimeters, the default unit
// of both TikZ and CeTZ.
type Picture struct {
	Scale float64 // 0 means 1
	Items []Item
}

// Item is a drawing statement: *Path, *Node, *Coordinate or *Unsupported.
type Item interface{ item() }

// PointKind selects how a point is written.
type PointKind int

const (
	PointXY PointKind = iota
	PointPolar
	PointNamed
)

// Relative marks points written relative to the current position.
type Relative int

const (
	Absolute Relative = iota
	RelMove           // TikZ ++, CeTZ (rel: ...)
	RelStay           // TikZ +, CeTZ (rel: ..., update: false)
)

// Point is a coordinate. Angle is in degrees. Anchor uses TikZ spelling
// ("north east").
type Point struct {
	Kind   PointKind
	X, Y   float64
	Angle  float64
	Radius float64
	Name   string
	Anchor string
	Rel    Relative
}

// XY returns the point in Cartesian form when it does not depend on a
// named node.
func (p Point) XY() (x, y float64, ok bool) {
	switch p.Kind {
	case PointXY:
		return p.X, p.Y, true
	case PointPolar:
		rad := p.Angle * math.Pi / 180
		return p.Radius * math.Cos(rad), p.Radius * math.Sin(rad), true
	}
	return 0, 0, false
}

// At returns an absolute Cartesian point.
func At(x, y float64) Point { return Point{Kind: PointXY, X: x, Y: y} }

// SegmentKind is a path operation.
type SegmentKind int

const (
	SegLine   SegmentKind = iota // --
	SegHV                        // -|
	SegVH                        // |-
	SegCurve                     // .. controls .. and ..
	SegArc                       // arc
	SegCircle                    // circle
	SegRect                      // rectangle
	SegClose                     // cycle
)

// Segment is one path operation from the current position. Start, End and
// Radius describe arcs; Radius also sizes circles.
type Segment struct {
	Kind   SegmentKind
	To     Point
	Ctrl   []Point
	Start  float64
	End    float64
	Radius float64
	// Label is an inline node placed at the end of the segment.
	Label *Node
}

// Style is the drawing state of a path or node. Colors use xcolor syntax:
// a name with an optional tint ("blue!20").
type Style struct {
	Draw  bool
	Color string
	Fill  string
	Width string
	Dash  string // dashed, dotted
	Arrow string // ->, <-, <->
}

// Path is a \draw, \fill, \filldraw or \path statement.
type Path struct {
	Style    Style
	Start    Point
	Segments []Segment
	// Label is an inline node at the start point.
	Label *Node
}

// Node is a text label. Anchor is the side of the text that sits on At.
type Node struct {
	At     Point
	Name   string
	Text   string
	Anchor string
	Style  Style
}

// Coordinate names a point.
type Coordinate struct {
	Name string
	At   Point
}

// Unsupported is a statement or option outside the modeled subset. The
// caller sets Marker to an inline loss marker body when it records a loss.
type Unsupported struct {
	Name   string
	Source string
	Marker string
}

func (*Path) item()        {}
func (*Node) item()        {}
func (*Coordinate) item()  {}
func (*Unsupported) item() {}

// Unsupported returns the unsupported items of p in order.
func (p *Picture) Unsupported() []*Unsupported {
	var out []*Unsupported
	for _, it := range p.Items {
		if u, ok := it.(*Unsupported); ok {
			out = append(out, u)
		}
	}
	return out
}

// num formats a coordinate without floating point noise.
func num(v float64) string {
	v = math.Round(v*10000) / 10000
	if v == 0 {
		v = 0 // no negative zero
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// tracker follows the current position along a path so relative points
// can be resolved.
type tracker struct {
	cur   Point
	known bool
}

// resolve turns p into an absolute point when the current position is
// known and moves the current position as the point demands.
func (t *tracker) resolve(p Point) Point {
	if p.Rel == Absolute {
		t.cur = p
		_, _, t.known = p.XY()
		if p.Kind == PointNamed {
			t.known = false
		}
		return p
	}
	if !t.known {
		return p
	}
	cx, cy, _ := t.cur.XY()
	dx, dy, _ := p.XY()
	abs := At(cx+dx, cy+dy)
	if p.Rel == RelMove {
		t.cur = abs
	}
	return abs
}

// arcEnd returns the end point of an arc that starts at (x, y).
func arcEnd(x, y, start, end, r float64) (float64, float64) {
	s, e := start*math.Pi/180, end*math.Pi/180
	cx, cy := x-r*math.Cos(s), y-r*math.Sin(s)
	return cx + r*math.Cos(e), cy + r*math.Sin(e)
}

// thicknesses maps TikZ line width keywords to their widths.
var thicknesses = []struct{ name, width string }{
	{"ultra thin", "0.1pt"},
	{"very thin", "0.2pt"},
	{"thin", "0.4pt"},
	{"semithick", "0.6pt"},
	{"thick", "0.8pt"},
	{"very thick", "1.2pt"},
	{"ultra thick", "1.6pt"},
}

func thicknessWidth(name string) (string, bool) {
	for _, t := range thicknesses {
		if t.name == name {
			return t.width, true
		}
	}
	return "", false
}

func thicknessName(width string) (string, bool) {
	for _, t := range thicknesses {
		if t.width == width {
			return t.name, true
		}
	}
	return "", false
}

// colors are the named colors TikZ (xcolor) and Typst share.
var colors = map[string]bool{
	"black": true, "white": true, "gray": true, "red": true, "green": true, "blue": true,
	"yellow": true, "orange": true, "purple": true, "teal": true, "lime": true, "olive": true,
}

// validColor reports whether c is a shared color name with an optional
// tint percentage.
func validColor(c string) bool {
	name, tint, ok := splitTint(c)
	if !ok || !colors[name] {
		return false
	}
	return tint <= 100
}

// splitTint splits "blue!20" into its name and percentage, -1 when there
// is no tint.
func splitTint(c string) (string, int, bool) {
	name, pct, found := strings.Cut(c, "!")
	if !found {
		return c, -1, true
	}
	n, err := strconv.Atoi(pct)
	if err != nil {
		return "", 0, false
	}
	return name, n, true
}

// TypstColor converts an xcolor name with an optional tint into a Typst
// color expression. Only the shared color names convert.
func TypstColor(c string) (string, bool) {
	if !validColor(c) {
		return "", false
	}
	return cetzColor(c), true
}
