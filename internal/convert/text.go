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

func (c *Converter) math(m *ast.Math) ast.Node {
	out := &ast.Math{Display: m.Display, Env: m.Env, Numbered: m.Numbered, Label: m.Label}
	if c.toTypst() {
		out.Body = c.mathToTypst(m.Body)
		return out
	}
	out.Body = c.mathToLaTeX(m.Body)
	if m.Display && out.Env == "" && multiline(out.Body) {
		out.Env = "align"
	}
	return out
}

// multiline reports whether a formula has top-level alignment points or
// line breaks, which need an align environment in LaTeX.
func multiline(body []ast.MathNode) bool {
	for _, n := range body {
		switch n.(type) {
		case *ast.MathAlign, *ast.MathNewline:
			return true
		}
	}
	return false
}

func (c *Converter) image(n *ast.Image) ast.Node {
	img := &ast.Image{Path: n.Path, Width: n.Width, Height: n.Height}
	if !c.toTypst() {
		return img
	}
	img.Width = c.imageLength(n, n.Width)
	img.Height = c.imageLength(n, n.Height)
	return img
}

func (c *Converter) imageLength(n *ast.Image, v string) string {
	if v == "" || typst.ValidLength(v) {
		return v
	}
	c.record(loss.UnsupportedValue, "length", "image size has no Typst equivalent and was dropped", v, n.Path)
	return ""
}

func (c *Converter) figure(f *ast.Figure) ([]ast.Node, error) {
	body, err := c.nodes(f.Body)
	if err != nil {
		return nil, err
	}
	caption, err := c.nodes(f.Caption)
	if err != nil {
		return nil, err
	}
	out := &ast.Figure{Body: body, Caption: caption, Label: f.Label}
	if c.toTypst() {
		out.Placement = typstPlacement(f.Placement)
	} else {
		out.Placement = latexPlacement(f.Placement)
	}
	return []ast.Node{out}, nil
}

// typstPlacement maps a LaTeX float specifier. "here" placements stay in
// the flow, which is Typst's default.
func typstPlacement(spec string) string {
	spec = strings.Trim(spec, "!")
	top, bottom := strings.Contains(spec, "t"), strings.Contains(spec, "b")
	switch {
	case top && bottom:
		return "auto"
	case top && !strings.ContainsAny(spec, "hHp"):
		return "top"
	case bottom && !strings.ContainsAny(spec, "hHp"):
		return "bottom"
	case top || bottom:
		return "auto"
	}
	return ""
}

func latexPlacement(p string) string {
	switch p {
	case "top":
		return "t"
	case "bottom":
		return "b"
	case "auto":
		return "tbp"
	}
	return ""
}

func (c *Converter) space(n *ast.Space) []ast.Node {
	out := &ast.Space{Vertical: n.Vertical}
	if c.toTypst() {
		v, ok := typstLength(n.Length)
		if !ok {
			id := c.record(loss.UnsupportedValue, "length", "spacing approximated as 1em", n.Length, "space")
			return c.marked(id, n.Vertical, &ast.Space{Vertical: n.Vertical, Length: "1em"})
		}
		out.Length = v
		return []ast.Node{out}
	}
	v, ok := latexLength(n.Length)
	if !ok {
		id := c.record(loss.UnsupportedValue, "length", "spacing approximated as 1em", n.Length, "space")
		return c.marked(id, n.Vertical, &ast.Space{Vertical: n.Vertical, Length: "1em"})
	}
	out.Length = v
	return []ast.Node{out}
}

// typstLength maps a LaTeX length. Rubber lengths become fractions.
func typstLength(v string) (string, bool) {
	v = strings.TrimSpace(v)
	switch v {
	case `\fill`, `\stretch{1}`, `\hfill`, `\vfill`:
		return "1fr", true
	}
	v = latex.NormalizeLength(v)
	if !typst.ValidLength(strings.TrimPrefix(v, "-")) {
		return "", false
	}
	return v, true
}

// latexLength maps a Typst length. The writer turns percentages into
// fractions of the line width.
func latexLength(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "1fr" {
		return `\fill`, true
	}
	if strings.HasSuffix(v, "fr") {
		return "", false
	}
	if !typst.ValidLength(strings.TrimPrefix(v, "-")) {
		return "", false
	}
	return latex.DenormalizeLength(v), true
}

// Bibliography styles with a counterpart in the other language.
var (
	typstStyles = map[string]string{
		"plain":    "ieee",
		"unsrt":    "ieee",
		"ieeetr":   "ieee",
		"abbrv":    "ieee",
		"IEEEtran": "ieee",
		"alpha":    "alphanumeric",
		"apalike":  "apa",
		"plainnat": "chicago-author-date",
	}
	latexStyles = map[string]string{
		"ieee":                "ieeetr",
		"alphanumeric":        "alpha",
		"apa":                 "apalike",
		"chicago-author-date": "plainnat",
	}
)

func (c *Converter) bibliography(b *ast.Bibliography) ([]ast.Node, error) {
	out := &ast.Bibliography{}
	var pre []ast.Node
	for _, f := range b.Files {
		if c.toTypst() {
			if !strings.Contains(f, ".") {
				f += ".bib"
			}
		} else {
			f = strings.TrimSuffix(f, ".bib")
		}
		out.Files = append(out.Files, f)
	}

	if b.Style != "" {
		styles := latexStyles
		if c.toTypst() {
			styles = typstStyles
		}
		if s, ok := styles[b.Style]; ok {
			out.Style = s
		} else {
			id := c.record(loss.UnsupportedValue, "bibliography style", "style has no counterpart and was dropped", b.Style, "bibliography")
			pre = c.marked(id, true)
		}
	}

	if len(b.Entries) > 0 {
		if c.toTypst() {
			id := c.record(loss.UnsupportedFeature, "thebibliography",
				"inline bibliography entries become a plain list", "", "bibliography")
			pre = append(pre, c.marked(id, true)...)
		}
		for _, e := range b.Entries {
			content, err := c.nodes(e.Content)
			if err != nil {
				return nil, err
			}
			out.Entries = append(out.Entries, &ast.BibEntry{Key: e.Key, Content: content})
		}
	}
	return append(pre, out), nil
}

func (c *Converter) ref(r *ast.Ref) ([]ast.Node, error) {
	if !c.opts.Features.References {
		return c.disabled(r, "references"), nil
	}
	if c.toTypst() {
		if r.Kind == "pageref" {
			return []ast.Node{&ast.Raw{Lang: types.LangTypst, Text: `#ref(<` + r.Key + `>, form: "page")`}}, nil
		}
		return []ast.Node{&ast.Ref{Key: r.Key}}, nil
	}

	// Typst uses @key for labels and bibliography entries alike.
	switch kind, ok := c.labels[r.Key]; {
	case ok && kind == "equation":
		return []ast.Node{&ast.Ref{Key: r.Key, Kind: "eqref"}}, nil
	case ok:
		return []ast.Node{&ast.Ref{Key: r.Key, Kind: "ref"}}, nil
	case c.hasBib:
		return []ast.Node{&ast.Cite{Keys: []string{r.Key}}}, nil
	}
	return []ast.Node{&ast.Ref{Key: r.Key, Kind: "ref"}}, nil
}

func (c *Converter) cite(n *ast.Cite) ([]ast.Node, error) {
	if !c.opts.Features.References {
		return c.disabled(n, "references"), nil
	}
	keys := make([]string, len(n.Keys))
	copy(keys, n.Keys)
	return []ast.Node{&ast.Cite{Keys: keys, Mode: n.Mode}}, nil
}

// disabled carries a node of a switched-off feature through as source.
func (c *Converter) disabled(n ast.Node, feature string) []ast.Node {
	src := c.sourceText(n)
	id := c.record(loss.UnsupportedFeature, feature, feature+" mapping is disabled", src, feature)
	return c.passthrough(src, ast.IsBlock(n), id)
}

// plain concatenates the text of inline nodes.
func plain(nodes []ast.Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		switch n := n.(type) {
		case *ast.Text:
			sb.WriteString(n.Value)
		case *ast.Strong:
			sb.WriteString(plain(n.Content))
		case *ast.Emph:
			sb.WriteString(plain(n.Content))
		case *ast.Code:
			sb.WriteString(n.Text)
		}
	}
	return sb.String()
}

func (c *Converter) command(n *ast.Command) ([]ast.Node, error) {
	switch n.Name {
	case "tableofcontents":
		return []ast.Node{&ast.Raw{Lang: types.LangTypst, Text: "#outline()", Block: true}}, nil
	case "today":
		return []ast.Node{&ast.Raw{Lang: types.LangTypst, Text: `#datetime.today().display()`}}, nil
	case "textcolor":
		if len(n.Args) == 2 {
			content, err := c.nodes(n.Args[1])
			if err != nil {
				return nil, err
			}
			if color, ok := graphics.TypstColor(strings.TrimSpace(plain(n.Args[0]))); ok {
				out := []ast.Node{&ast.Raw{Lang: types.LangTypst, Text: "#text(fill: " + color + ")["}}
				out = append(out, content...)
				return append(out, &ast.Raw{Lang: types.LangTypst, Text: "]"}), nil
			}
			id := c.record(loss.UnsupportedValue, "textcolor", "color has no Typst equivalent", n.Source, "text")
			return c.marked(id, false, content...), nil
		}
	}

	id := n.LossID
	if id == 0 {
		kind := loss.UnknownCommand
		msg := "command has no Typst equivalent"
		if latex.IsStructural(n.Name) || c.syms.KnownLaTeX(n.Name) {
			kind, msg = loss.UnsupportedFeature, "command is not supported in this position"
		}
		id = c.record(kind, `\`+n.Name, msg, n.Source, "text")
	}
	if len(n.Args) > 0 {
		content, err := c.nodes(n.Args[len(n.Args)-1])
		if err != nil {
			return nil, err
		}
		return c.marked(id, false, content...), nil
	}
	src := n.Source
	if src == "" {
		src = `\` + n.Name
	}
	return c.passthrough(src, false, id), nil
}

// theorem keeps a theorem-like environment of a Typst tree for amsthm.
func (c *Converter) theorem(e *ast.Environment) ([]ast.Node, error) {
	children, err := c.nodes(e.Children)
	if err != nil {
		return nil, err
	}
	return []ast.Node{&ast.Environment{Name: e.Name, Children: children}}, nil
}

func (c *Converter) environment(e *ast.Environment) ([]ast.Node, error) {
	children, err := c.nodes(e.Children)
	if err != nil {
		return nil, err
	}
	if e.Name == "abstract" {
		h := &ast.Heading{Level: 1, Content: []ast.Node{&ast.Text{Value: "Abstract"}}}
		return append([]ast.Node{h}, children...), nil
	}
	id := e.LossID
	if id == 0 {
		id = c.record(loss.UnknownEnvironment, e.Name, "environment has no Typst equivalent; its content is kept",
			`\begin{`+e.Name+`}`, "text")
	}
	return c.marked(id, true, children...), nil
}
