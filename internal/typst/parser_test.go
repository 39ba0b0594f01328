package typst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texbridge/internal/ast"
)

func parse(src string) *ast.Document { return Parse(src, ParseOptions{}) }

func TestParseHeadingAndEmphasis(t *testing.T) {
	doc := parse("= Intro <sec:intro>\n\nSome *bold* and _it_ text.\n")
	require.Len(t, doc.Children, 2)

	h := doc.Children[0].(*ast.Heading)
	assert.Equal(t, 1, h.Level)
	assert.Equal(t, "sec:intro", h.Label)
	assert.Equal(t, "Intro", ast.PlainText(h.Content))

	p := doc.Children[1].(*ast.Paragraph)
	require.Len(t, p.Content, 5)
	assert.IsType(t, &ast.Strong{}, p.Content[1])
	assert.IsType(t, &ast.Emph{}, p.Content[3])
	assert.Equal(t, " text.", p.Content[4].(*ast.Text).Value)
}

func TestParseLists(t *testing.T) {
	doc := parse("- one\n- two\n  - nested\n+ first\n/ Term: def\n")
	require.Len(t, doc.Children, 3)

	bullets := doc.Children[0].(*ast.List)
	assert.False(t, bullets.Ordered)
	require.Len(t, bullets.Items, 2)
	second := bullets.Items[1].Children
	require.Len(t, second, 2)
	assert.Equal(t, "two", ast.PlainText([]ast.Node{second[0]}))
	assert.IsType(t, &ast.List{}, second[1])

	ordered := doc.Children[1].(*ast.List)
	assert.True(t, ordered.Ordered)

	desc := doc.Children[2].(*ast.List)
	require.Len(t, desc.Items, 1)
	assert.Equal(t, "Term", ast.PlainText(desc.Items[0].Term))
	assert.Equal(t, "def", ast.PlainText(desc.Items[0].Children))
}

func TestParseRefAndEmail(t *testing.T) {
	doc := parse("see @fig:cat. or mail a@b.com")
	p := doc.Children[0].(*ast.Paragraph)
	require.Len(t, p.Content, 3)
	assert.Equal(t, &ast.Ref{Key: "fig:cat"}, p.Content[1])
	assert.Equal(t, ". or mail a@b.com", p.Content[2].(*ast.Text).Value)
}

func TestParseDisplayMathLabel(t *testing.T) {
	doc := parse("$ 1/2 + alpha_i^2 $ <eq:a>\n")
	require.Len(t, doc.Children, 1)
	m := doc.Children[0].(*ast.Math)
	assert.True(t, m.Display)
	assert.Equal(t, "eq:a", m.Label)
	require.Len(t, m.Body, 3)

	frac := m.Body[0].(*ast.MathFrac)
	assert.True(t, frac.Slash)
	s := m.Body[2].(*ast.MathScript)
	assert.Equal(t, ast.Sym("alpha"), s.Base)
	assert.Len(t, s.Sub, 1)
	assert.Len(t, s.Sup, 1)
}

func TestParseInlineMath(t *testing.T) {
	doc := parse("where $x$ holds")
	p := doc.Children[0].(*ast.Paragraph)
	m := p.Content[1].(*ast.Math)
	assert.False(t, m.Display)
}

func TestParseMathConstructs(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		check func(t *testing.T, nodes []ast.MathNode)
	}{
		{
			name: "shorthands",
			src:  "a -> b != c",
			check: func(t *testing.T, nodes []ast.MathNode) {
				require.Len(t, nodes, 5)
				assert.Equal(t, ast.Sym("arrow.r"), nodes[1])
				assert.Equal(t, ast.Sym("eq.not"), nodes[3])
			},
		},
		{
			name: "matrix",
			src:  "mat(1, 2; 3, 4)",
			check: func(t *testing.T, nodes []ast.MathNode) {
				m := nodes[0].(*ast.MathMatrix)
				assert.Equal(t, "(", m.Delim)
				require.Len(t, m.Rows, 2)
				assert.Len(t, m.Rows[1], 2)
			},
		},
		{
			name: "matrix delimiter",
			src:  `mat(delim: "[", a, b)`,
			check: func(t *testing.T, nodes []ast.MathNode) {
				m := nodes[0].(*ast.MathMatrix)
				assert.Equal(t, "[", m.Delim)
				require.Len(t, m.Rows, 1)
				assert.Len(t, m.Rows[0], 2)
			},
		},
		{
			name: "cases",
			src:  `cases(x & "if" x > 0, 0 & "else")`,
			check: func(t *testing.T, nodes []ast.MathNode) {
				m := nodes[0].(*ast.MathMatrix)
				assert.Equal(t, "cases", m.Env)
				require.Len(t, m.Rows, 2)
				assert.Len(t, m.Rows[0], 2)
			},
		},
		{
			name: "call",
			src:  "frac(a + b, c)",
			check: func(t *testing.T, nodes []ast.MathNode) {
				c := nodes[0].(*ast.MathCall)
				assert.Equal(t, "frac", c.Name)
				require.Len(t, c.Args, 2)
				assert.Len(t, c.Args[0], 3)
				assert.Nil(t, c.Names)
			},
		},
		{
			name: "half-open interval",
			src:  "[0, 1)",
			check: func(t *testing.T, nodes []ast.MathNode) {
				f := nodes[0].(*ast.MathFenced)
				assert.Equal(t, "[", f.Open)
				assert.Equal(t, ")", f.Close)
			},
		},
		{
			name: "parenthesized script",
			src:  "x_(i j)",
			check: func(t *testing.T, nodes []ast.MathNode) {
				s := nodes[0].(*ast.MathScript)
				assert.Len(t, s.Sub, 2)
			},
		},
		{
			name: "embedded code",
			src:  "x + #n",
			check: func(t *testing.T, nodes []ast.MathNode) {
				assert.Equal(t, &ast.MathRaw{Text: "#n"}, nodes[2])
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ParseMath(tt.src))
		})
	}
}

func TestParseScripting(t *testing.T) {
	doc := parse("#let n = 3\n#for i in range(n) [Item #i]\n")
	require.Len(t, doc.Children, 2)

	lb := doc.Children[0].(*ast.LetBinding)
	assert.Equal(t, "n", lb.Name)
	assert.Nil(t, lb.Params)
	num := lb.Value.(*ast.NumberLit)
	assert.Equal(t, 3.0, num.Value)
	assert.True(t, num.Int)

	loop := doc.Children[1].(*ast.ForLoop)
	assert.True(t, loop.Block)
	assert.Equal(t, []string{"i"}, loop.Pattern)
	call := loop.Iter.(*ast.CallExpr)
	assert.Equal(t, &ast.Ident{Name: "range"}, call.Callee)
	body := loop.Body.(*ast.ContentExpr)
	require.Len(t, body.Nodes, 2)
	interp := body.Nodes[1].(*ast.Interp)
	assert.False(t, interp.Block)
	assert.Equal(t, &ast.Ident{Name: "i"}, interp.Expr)
}

func TestParseFunctionDefinition(t *testing.T) {
	doc := parse("#let greet(name) = [Hello #name]\n")
	lb := doc.Children[0].(*ast.LetBinding)
	assert.Equal(t, []string{"name"}, lb.Params)
	assert.IsType(t, &ast.ContentExpr{}, lb.Value)
}

func TestParseConditional(t *testing.T) {
	doc := parse("#if n > 2 [big] else if n > 1 [mid] else [small]\n")
	c := doc.Children[0].(*ast.Conditional)
	assert.True(t, c.Block)
	require.Len(t, c.Branches, 2)
	cond := c.Branches[0].Cond.(*ast.BinaryExpr)
	assert.Equal(t, ">", cond.Op)
	assert.NotNil(t, c.Else)
}

func TestParseFigureLabel(t *testing.T) {
	src := "#figure(\n  image(\"a.png\", width: 50%),\n  caption: [A cat],\n) <fig:cat>\n"
	doc := parse(src)
	require.Len(t, doc.Children, 1)
	in := doc.Children[0].(*ast.Interp)
	assert.True(t, in.Block)
	assert.Equal(t, "fig:cat", in.Label)

	call := in.Expr.(*ast.CallExpr)
	assert.Equal(t, &ast.Ident{Name: "figure"}, call.Callee)
	require.Len(t, call.Args, 2)
	assert.Equal(t, "caption", call.Args[1].Name)

	img := call.Args[0].Value.(*ast.CallExpr)
	width := img.Args[1].Value.(*ast.NumberLit)
	assert.Equal(t, "%", width.Unit)
	assert.Equal(t, 50.0, width.Value)
}

func TestParseRules(t *testing.T) {
	doc := parse("#set document(title: \"T\")\n#show heading: set text(red)\n")
	require.Len(t, doc.Children, 2)
	set := doc.Children[0].(*ast.Interp)
	assert.Equal(t, "set", set.Keyword)
	call := set.Expr.(*ast.CallExpr)
	assert.Equal(t, &ast.Ident{Name: "document"}, call.Callee)

	show := doc.Children[1].(*ast.Interp)
	assert.Equal(t, "show", show.Keyword)
	assert.IsType(t, &ast.BadExpr{}, show.Expr)
}

func TestParseTemplateShowRule(t *testing.T) {
	doc := parse("#show: ieee.with(\n  title: [A],\n  authors: (\"X\",),\n)\n\n= Intro\n")
	require.Len(t, doc.Children, 2)
	show := doc.Children[0].(*ast.Interp)
	assert.Equal(t, "show", show.Keyword)
	call, ok := show.Expr.(*ast.CallExpr)
	require.True(t, ok, "got %T", show.Expr)
	assert.Equal(t, &ast.FieldExpr{X: &ast.Ident{Name: "ieee"}, Field: "with"}, call.Callee)
	require.Len(t, call.Args, 2)
	assert.Equal(t, "title", call.Args[0].Name)
	assert.Equal(t, "authors", call.Args[1].Name)
	assert.IsType(t, &ast.Heading{}, doc.Children[1])
}

func TestParseCodeBlock(t *testing.T) {
	doc := parse("#{ let x = 1; x }\n")
	in := doc.Children[0].(*ast.Interp)
	assert.IsType(t, &ast.CodeExpr{}, in.Expr)

	doc = parse("#{ 1 + 2 }\n")
	in = doc.Children[0].(*ast.Interp)
	assert.IsType(t, &ast.BinaryExpr{}, in.Expr)
}

func TestParseRawAndComments(t *testing.T) {
	doc := parse("```go\nfmt.Println()\n```\n\ntext // comment\n/* block */ more `x`\n")
	require.Len(t, doc.Children, 2)
	cb := doc.Children[0].(*ast.CodeBlock)
	assert.Equal(t, "go", cb.Lang)
	assert.Equal(t, "fmt.Println()", cb.Text)

	p := doc.Children[1].(*ast.Paragraph)
	assert.Equal(t, "text more x", ast.PlainText(p.Content))
}

func TestParseMathOnly(t *testing.T) {
	doc := Parse("$x^2$", ParseOptions{MathOnly: true})
	require.Len(t, doc.Children, 1)
	m := doc.Children[0].(*ast.Math)
	assert.True(t, m.Display)
	assert.IsType(t, &ast.MathScript{}, m.Body[0])
}
