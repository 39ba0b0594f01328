package convert

import (
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/graphics"
	"texbridge/internal/latex"
	"texbridge/internal/loss"
	"texbridge/internal/types"
	"texbridge/internal/typst"
)

// graphic translates a drawing through the picture model. Statements
// outside the model stay in the output as comments, one loss each.
func (c *Converter) graphic(g *ast.Graphic) []ast.Node {
	if g.Lang == c.target() {
		return []ast.Node{&ast.Graphic{Lang: g.Lang, Source: g.Source}}
	}
	if !c.opts.Features.Graphics {
		id := c.record(loss.UnsupportedFeature, "graphics", "graphics mapping is disabled", g.Source, "graphics")
		return c.passthrough(g.Source, true, id)
	}

	var (
		pic *graphics.Picture
		err error
	)
	if g.Lang == types.LangLaTeX {
		pic, err = graphics.ReadTikZ(g.Source)
	} else {
		pic, err = graphics.ReadCeTZ(strings.TrimPrefix(strings.TrimSpace(g.Source), "#"))
	}
	if err != nil {
		id := c.record(loss.GraphicsPrimitive, "picture", err.Error(), g.Source, "graphics")
		return c.passthrough(g.Source, true, id)
	}

	for _, u := range pic.Unsupported() {
		id := c.record(loss.GraphicsPrimitive, u.Name, "drawing statement kept as a comment", u.Source, "graphics")
		u.Marker = c.marker(id)
	}
	opts := graphics.EmitOptions{Text: c.fragment}
	if c.toTypst() {
		return []ast.Node{&ast.Graphic{Lang: types.LangTypst, Source: graphics.EmitCeTZ(pic, opts)}}
	}
	return []ast.Node{&ast.Graphic{Lang: types.LangLaTeX, Source: graphics.EmitTikZ(pic, opts)}}
}

// fragment converts a short piece of inline markup, such as node text in a
// drawing. It falls back to the input when the piece does not convert.
func (c *Converter) fragment(s string) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	var doc *ast.Document
	if c.toTypst() {
		doc = latex.Parse(latex.Tokenize(s), latex.ParseOptions{Symbols: c.syms, Source: s})
	} else {
		doc = typst.Parse(s, typst.ParseOptions{})
	}
	out, err := c.nodes(doc.Children)
	if err != nil {
		return s
	}
	if len(out) == 1 {
		if p, ok := out[0].(*ast.Paragraph); ok {
			out = p.Content
		}
	}
	res := &ast.Document{Children: out}
	if c.toTypst() {
		return strings.TrimSpace(typst.Write(res, typst.WriteOptions{}))
	}
	return strings.TrimSpace(latex.Write(res, latex.WriteOptions{Fragment: true}))
}
