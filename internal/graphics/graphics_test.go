package graphics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTikZToCeTZ(t *testing.T) {
	src := `\begin{tikzpicture}
  \draw[->, thick] (0,0) -- (2,0) node[right] {$x$};
  \draw (0,0) circle (1);
\end{tikzpicture}`
	pic, err := ReadTikZ(src)
	require.NoError(t, err)
	require.Len(t, pic.Items, 2)
	assert.Empty(t, pic.Unsupported())

	want := `#cetz.canvas({
  import cetz.draw: *
  line((0, 0), (2, 0), stroke: 0.8pt, mark: (end: ">"))
  content((2, 0), [$x$], anchor: "west")
  circle((0, 0), radius: 1)
})`
	assert.Equal(t, want, EmitCeTZ(pic, EmitOptions{}))
}

func TestTikZFillTint(t *testing.T) {
	pic, err := ReadTikZ(`\fill[blue!20] (0,0) rectangle (1,1);`)
	require.NoError(t, err)

	out := EmitCeTZ(pic, EmitOptions{})
	assert.Contains(t, out, "rect((0, 0), (1, 1), stroke: none, fill: blue.lighten(80%))")

	back, err := ReadCeTZ(out)
	require.NoError(t, err)
	assert.Equal(t, "\\begin{tikzpicture}\n  \\fill[fill=blue!20] (0,0) rectangle (1,1);\n\\end{tikzpicture}",
		EmitTikZ(back, EmitOptions{}))
}

func TestTikZUnsupported(t *testing.T) {
	src := `\begin{tikzpicture}
\draw[help lines] (0,0) grid (2,2);
\foreach \x in {0,1} { \draw (\x,0) -- (\x,1); }
\end{tikzpicture}`
	pic, err := ReadTikZ(src)
	require.NoError(t, err)

	bad := pic.Unsupported()
	require.Len(t, bad, 2)
	assert.Equal(t, `\draw grid`, bad[0].Name)
	assert.Equal(t, `\foreach`, bad[1].Name)

	bad[0].Marker = "texbridge:loss:1 graphics-primitive"
	out := EmitCeTZ(pic, EmitOptions{})
	assert.Contains(t, out, "  // texbridge:loss:1 graphics-primitive\n  // \\draw[help lines] (0,0) grid (2,2);\n")
	assert.Contains(t, out, "// \\foreach")
}

func TestTikZNotClosed(t *testing.T) {
	_, err := ReadTikZ(`\begin{tikzpicture} \draw (0,0) -- (1,1);`)
	assert.Error(t, err)
}

func TestTikZRelativePoints(t *testing.T) {
	pic, err := ReadTikZ(`\draw (1,1) -- ++(1,0) -- +(0,1) -- ++(0,2);`)
	require.NoError(t, err)
	require.Len(t, pic.Items, 1)

	p := pic.Items[0].(*Path)
	var got []Point
	for _, s := range p.Segments {
		got = append(got, s.To)
	}
	assert.Equal(t, []Point{At(2, 1), At(2, 2), At(2, 3)}, got)
}

func TestTikZRelativeUnknownStart(t *testing.T) {
	pic, err := ReadTikZ(`\draw (a) -- ++(1,0);`)
	require.NoError(t, err)

	p := pic.Items[0].(*Path)
	assert.Equal(t, Point{Kind: PointNamed, Name: "a"}, p.Start)
	assert.Equal(t, RelMove, p.Segments[0].To.Rel)
	assert.Contains(t, EmitCeTZ(pic, EmitOptions{}), `line("a", (rel: (1, 0)))`)
}

func TestTikZArc(t *testing.T) {
	pic, err := ReadTikZ(`\draw (1,0) arc (0:90:1) -- (0,0);`)
	require.NoError(t, err)

	p := pic.Items[0].(*Path)
	require.Len(t, p.Segments, 2)
	arc := p.Segments[0]
	assert.Equal(t, SegArc, arc.Kind)
	assert.Equal(t, 0.0, arc.Start)
	assert.Equal(t, 90.0, arc.End)
	assert.Equal(t, 1.0, arc.Radius)

	out := EmitCeTZ(pic, EmitOptions{})
	assert.Contains(t, out, "  arc((1, 0), start: 0deg, stop: 90deg, radius: 1)\n  line((), (0, 0))\n")
}

func TestTikZPictureScale(t *testing.T) {
	pic, err := ReadTikZ(`\begin{tikzpicture}[scale=2, every node/.style={draw}]
\draw (0,0) -- (1,0);
\end{tikzpicture}`)
	require.NoError(t, err)
	assert.Equal(t, 2.0, pic.Scale)

	bad := pic.Unsupported()
	require.Len(t, bad, 1)
	assert.Equal(t, "option every node/.style", bad[0].Name)
	assert.Contains(t, EmitCeTZ(pic, EmitOptions{}), "  scale(2)\n")
}

func TestReadCeTZ(t *testing.T) {
	src := `#cetz.canvas({
  import cetz.draw: *
  line((0, 0), (1, 0), (1, 1), close: true, stroke: (paint: red, dash: "dashed"))
  bezier((0, 0), (2, 0), (1, 1))
  content((1, 1), [top], anchor: "south", name: "t")
  grid((0, 0), (2, 2))
})`
	pic, err := ReadCeTZ(src)
	require.NoError(t, err)
	require.Len(t, pic.Items, 4)

	line := pic.Items[0].(*Path)
	assert.Equal(t, Style{Draw: true, Color: "red", Dash: "dashed"}, line.Style)
	require.Len(t, line.Segments, 3)
	assert.Equal(t, SegClose, line.Segments[2].Kind)

	curve := pic.Items[1].(*Path)
	assert.Equal(t, []Point{At(1, 1)}, curve.Segments[0].Ctrl)

	node := pic.Items[2].(*Node)
	assert.Equal(t, "top", node.Text)
	assert.Equal(t, "south", node.Anchor)
	assert.Equal(t, "t", node.Name)

	assert.Equal(t, "grid", pic.Items[3].(*Unsupported).Name)

	want := `\begin{tikzpicture}
  \draw[dashed, red] (0,0) -- (1,0) -- (1,1) -- cycle;
  \draw (0,0) .. controls (1,1) .. (2,0);
  \node[above] (t) at (1,1) {top};
  % grid((0, 0), (2, 2))
\end{tikzpicture}`
	assert.Equal(t, want, EmitTikZ(pic, EmitOptions{}))
}

func TestCeTZPoints(t *testing.T) {
	pic, err := ReadCeTZ(`line((30deg, 2), "a.north-east", (rel: (1, 0), update: false))`)
	require.NoError(t, err)
	require.Len(t, pic.Items, 1)

	p := pic.Items[0].(*Path)
	assert.Equal(t, Point{Kind: PointPolar, Angle: 30, Radius: 2}, p.Start)
	assert.Equal(t, Point{Kind: PointNamed, Name: "a", Anchor: "north east"}, p.Segments[0].To)
	assert.Equal(t, Point{Kind: PointXY, X: 1, Rel: RelStay}, p.Segments[1].To)
	assert.Equal(t, `\draw (30:2) -- (a.north east) -- +(1,0);`, tikzPath(p, EmitOptions{}))
}

func TestCeTZMergePath(t *testing.T) {
	src := `merge-path({
  line((0, 0), (1, 0))
  arc((1, 0), start: 0deg, stop: 90deg, radius: 1)
}, fill: green, close: true)`
	pic, err := ReadCeTZ(src)
	require.NoError(t, err)
	require.Len(t, pic.Items, 1)

	p := pic.Items[0].(*Path)
	assert.Equal(t, "green", p.Style.Fill)
	kinds := make([]SegmentKind, 0, len(p.Segments))
	for _, s := range p.Segments {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []SegmentKind{SegLine, SegArc, SegClose}, kinds)

	out := EmitCeTZ(pic, EmitOptions{})
	assert.Contains(t, out, "merge-path({\n")
	assert.Contains(t, out, "}, fill: green)")
}

func TestCornerRoundTrip(t *testing.T) {
	src := "\\begin{tikzpicture}\n  \\draw (0,0) -| (2,1);\n\\end{tikzpicture}"
	pic, err := ReadTikZ(src)
	require.NoError(t, err)

	cetz := EmitCeTZ(pic, EmitOptions{})
	assert.Contains(t, cetz, `line((0, 0), ((), "-|", (2, 1)), (2, 1))`)

	back, err := ReadCeTZ(cetz)
	require.NoError(t, err)
	assert.Equal(t, src, EmitTikZ(back, EmitOptions{}))
}

func TestEmitText(t *testing.T) {
	pic := &Picture{Items: []Item{&Node{At: At(0, 0), Text: "a"}}}
	opts := EmitOptions{Text: strings.ToUpper}
	assert.Contains(t, EmitCeTZ(pic, opts), "content((0, 0), [A])")
	assert.Contains(t, EmitTikZ(pic, opts), `\node at (0,0) {A};`)
}
