// Package convert maps a normalized document tree from one language's
// conventions to the other's. The LaTeX front end yields LaTeX-flavored
// trees (symbol atoms named after LaTeX commands, xcolor fills, raw
// lengths) and the Typst front end Typst-flavored ones; Convert rewrites
// every node into the flavor the target writer expects and records a loss
// wherever it cannot do so faithfully.
package convert

import (
	"errors"
	"fmt"
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/eval"
	"texbridge/internal/latex"
	"texbridge/internal/logger"
	"texbridge/internal/loss"
	"texbridge/internal/symbols"
	"texbridge/internal/table"
	"texbridge/internal/types"
	"texbridge/internal/typst"
)

// ErrInvalidTree is returned for trees that break the structural rules of
// the document model.
var ErrInvalidTree = errors.New("invalid document tree")

// Features switches optional mappings. A disabled feature is carried
// through as marked source text.
type Features struct {
	Tables     bool
	Graphics   bool
	References bool
}

// AllFeatures enables every optional mapping.
func AllFeatures() Features {
	return Features{Tables: true, Graphics: true, References: true}
}

// ParseFeatures reads feature names. An empty list enables everything.
func ParseFeatures(names []string) (Features, error) {
	if len(names) == 0 {
		return AllFeatures(), nil
	}
	var f Features
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "tables":
			f.Tables = true
		case "graphics":
			f.Graphics = true
		case "references", "refs":
			f.References = true
		case "":
		default:
			return f, fmt.Errorf("unknown feature %q", n)
		}
	}
	return f, nil
}

// Options configures a Converter.
type Options struct {
	Direction types.Direction
	Features  Features
	// LossComments emits a marker comment in the output next to each loss.
	LossComments bool
}

// Converter rewrites one document. It is not safe for concurrent use.
type Converter struct {
	syms     *symbols.Table
	tracker  *loss.Tracker
	opts     Options
	coverage *table.Coverage

	// labels maps every label key in the source to what carries it.
	labels map[string]string
	hasBib bool
}

// New returns a converter that records into tracker.
func New(syms *symbols.Table, tracker *loss.Tracker, opts Options) *Converter {
	if syms == nil {
		syms = symbols.Default()
	}
	if tracker == nil {
		tracker = loss.NewTracker()
	}
	return &Converter{
		syms:     syms,
		tracker:  tracker,
		opts:     opts,
		coverage: table.NewCoverage(),
		labels:   make(map[string]string),
	}
}

// Coverage returns the table coverage record of the conversions so far.
func (c *Converter) Coverage() *table.Coverage {
	return c.coverage
}

// Convert returns the target-flavored tree for doc. doc is not modified.
func (c *Converter) Convert(doc *ast.Document) (*ast.Document, error) {
	if !c.opts.Direction.Valid() {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidTree, c.opts.Direction)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidTree)
	}
	before := c.tracker.Len()
	c.scan(doc)

	out := &ast.Document{Layout: c.layout(doc.Layout)}
	out.Meta.Keywords = append([]string(nil), doc.Meta.Keywords...)
	var err error
	if out.Meta.Title, err = c.nodes(doc.Meta.Title); err != nil {
		return nil, err
	}
	if out.Meta.Author, err = c.nodes(doc.Meta.Author); err != nil {
		return nil, err
	}
	if out.Meta.Date, err = c.nodes(doc.Meta.Date); err != nil {
		return nil, err
	}
	if out.Meta.Abstract, err = c.nodes(doc.Meta.Abstract); err != nil {
		return nil, err
	}
	if out.Children, err = c.nodes(doc.Children); err != nil {
		return nil, err
	}
	logger.Debug("document converted",
		logger.String("direction", string(c.opts.Direction)),
		logger.Int("blocks", len(out.Children)),
		logger.Int("losses", c.tracker.Len()-before))
	return out, nil
}

// scan collects label keys and whether the document has a bibliography,
// which decide how Typst references map to LaTeX.
func (c *Converter) scan(doc *ast.Document) {
	ast.Walk(doc, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Heading:
			c.label(n.Label, "heading")
		case *ast.Math:
			c.label(n.Label, "equation")
		case *ast.Figure:
			c.label(n.Label, "figure")
		case *ast.Label:
			c.label(n.Key, "label")
		case *ast.Interp:
			c.label(n.Label, "label")
		case *ast.Bibliography:
			c.hasBib = true
		}
		return true
	})
}

func (c *Converter) label(key, kind string) {
	if key == "" {
		return
	}
	if _, ok := c.labels[key]; !ok {
		c.labels[key] = kind
	}
}

func (c *Converter) toTypst() bool {
	return c.opts.Direction == types.LaTeXToTypst
}

func (c *Converter) source() types.Lang { return c.opts.Direction.Source() }

func (c *Converter) target() types.Lang { return c.opts.Direction.Target() }

// nodes converts a node list. A non-nil empty input stays non-nil, since
// writers tell absent content from empty content.
func (c *Converter) nodes(in []ast.Node) ([]ast.Node, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]ast.Node, 0, len(in))
	for _, n := range in {
		conv, err := c.node(n)
		if err != nil {
			return nil, err
		}
		out = append(out, conv...)
	}
	return out, nil
}

func (c *Converter) node(n ast.Node) ([]ast.Node, error) {
	one := func(n ast.Node) ([]ast.Node, error) { return []ast.Node{n}, nil }

	switch n := n.(type) {
	case nil:
		return nil, nil
	case *ast.Document:
		return nil, fmt.Errorf("%w: nested document", ErrInvalidTree)
	case *ast.ListItem:
		return nil, fmt.Errorf("%w: list item outside a list", ErrInvalidTree)
	case *ast.Heading:
		content, err := c.nodes(n.Content)
		if err != nil {
			return nil, err
		}
		return one(&ast.Heading{Level: n.Level, Numbered: n.Numbered, Label: n.Label, Content: content})
	case *ast.Paragraph:
		content, err := c.nodes(n.Content)
		if err != nil {
			return nil, err
		}
		return one(&ast.Paragraph{Content: content})
	case *ast.List:
		return c.list(n)
	case *ast.Quote:
		children, err := c.nodes(n.Children)
		if err != nil {
			return nil, err
		}
		return one(&ast.Quote{Children: children})
	case *ast.Strong:
		content, err := c.nodes(n.Content)
		if err != nil {
			return nil, err
		}
		return one(&ast.Strong{Content: content})
	case *ast.Emph:
		content, err := c.nodes(n.Content)
		if err != nil {
			return nil, err
		}
		return one(&ast.Emph{Content: content})
	case *ast.Underline:
		content, err := c.nodes(n.Content)
		if err != nil {
			return nil, err
		}
		return one(&ast.Underline{Content: content})
	case *ast.Footnote:
		content, err := c.nodes(n.Content)
		if err != nil {
			return nil, err
		}
		return one(&ast.Footnote{Content: content})
	case *ast.Link:
		content, err := c.nodes(n.Content)
		if err != nil {
			return nil, err
		}
		return one(&ast.Link{URL: n.URL, Content: content})
	case *ast.Text:
		return one(&ast.Text{Value: n.Value})
	case *ast.Code:
		return one(&ast.Code{Text: n.Text})
	case *ast.CodeBlock:
		return one(&ast.CodeBlock{Lang: n.Lang, Text: n.Text})
	case *ast.LineBreak:
		return one(&ast.LineBreak{})
	case *ast.PageBreak:
		return one(&ast.PageBreak{})
	case *ast.Label:
		return one(&ast.Label{Key: n.Key})
	case *ast.Image:
		return one(c.image(n))
	case *ast.Math:
		return one(c.math(n))
	case *ast.Figure:
		return c.figure(n)
	case *ast.Table:
		return c.table(n)
	case *ast.Ref:
		return c.ref(n)
	case *ast.Cite:
		return c.cite(n)
	case *ast.Bibliography:
		return c.bibliography(n)
	case *ast.BibEntry:
		content, err := c.nodes(n.Content)
		if err != nil {
			return nil, err
		}
		return one(&ast.BibEntry{Key: n.Key, Content: content})
	case *ast.Space:
		return c.space(n), nil
	case *ast.Graphic:
		return c.graphic(n), nil
	case *ast.Raw:
		return c.raw(n), nil
	case *ast.Opaque:
		return c.opaque(n), nil
	case *ast.Command:
		if !c.toTypst() {
			return nil, fmt.Errorf("%w: LaTeX command %q in a Typst tree", ErrInvalidTree, n.Name)
		}
		return c.command(n)
	case *ast.Environment:
		if !c.toTypst() {
			if !ast.IsTheorem(n.Name) {
				return nil, fmt.Errorf("%w: LaTeX environment %q in a Typst tree", ErrInvalidTree, n.Name)
			}
			return c.theorem(n)
		}
		return c.environment(n)
	case *ast.LetBinding:
		return c.script(n, n.Source, true)
	case *ast.ForLoop:
		return c.script(n, n.Source, n.Block)
	case *ast.Conditional:
		return c.script(n, n.Source, n.Block)
	case *ast.Interp:
		return c.script(n, n.Source, n.Block)
	}
	return nil, fmt.Errorf("%w: unexpected node %T", ErrInvalidTree, n)
}

func (c *Converter) list(l *ast.List) ([]ast.Node, error) {
	out := &ast.List{Ordered: l.Ordered, Closed: l.Closed, Items: make([]*ast.ListItem, 0, len(l.Items))}
	for _, it := range l.Items {
		if it == nil {
			return nil, fmt.Errorf("%w: nil list item", ErrInvalidTree)
		}
		term, err := c.nodes(it.Term)
		if err != nil {
			return nil, err
		}
		children, err := c.nodes(it.Children)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, &ast.ListItem{Term: term, Children: children})
	}
	return []ast.Node{out}, nil
}

// script handles Typst scripting the evaluator left in the tree. Script
// nodes only exist in Typst trees.
func (c *Converter) script(n ast.Node, src string, block bool) ([]ast.Node, error) {
	if c.toTypst() {
		return nil, fmt.Errorf("%w: Typst script node %T in a LaTeX tree", ErrInvalidTree, n)
	}
	id := c.record(loss.CodeBlock, "", "Typst code has no LaTeX equivalent", src, "script")
	return c.passthrough(src, block, id), nil
}

// record adds a loss for this conversion.
func (c *Converter) record(kind loss.Kind, name, message, snippet, context string) int {
	return c.tracker.Record(kind, name, message, snippet, context)
}

// marker returns the comment body for loss id, "" when comments are off.
func (c *Converter) marker(id int) string {
	if !c.opts.LossComments || id == 0 {
		return ""
	}
	r, ok := c.tracker.Get(id)
	if !ok {
		return ""
	}
	return loss.MarkerText(r)
}

// markerNode returns the target-language comment for loss id, or nil.
func (c *Converter) markerNode(id int, block bool) ast.Node {
	m := c.marker(id)
	if m == "" {
		return nil
	}
	if c.toTypst() {
		return &ast.Raw{Lang: types.LangTypst, Text: "/* " + m + " */", Block: block}
	}
	if block {
		return &ast.Raw{Lang: types.LangLaTeX, Text: "% " + m, Block: true}
	}
	return &ast.Raw{Lang: types.LangLaTeX, Text: "% " + m + "\n"}
}

// marked prepends the marker for id to nodes.
func (c *Converter) marked(id int, block bool, nodes ...ast.Node) []ast.Node {
	if m := c.markerNode(id, block); m != nil {
		return append([]ast.Node{m}, nodes...)
	}
	return nodes
}

// passthrough carries source text of the other language into the output:
// a fenced or commented block, or inline code.
func (c *Converter) passthrough(src string, block bool, id int) []ast.Node {
	src = strings.TrimSpace(src)
	if !block {
		return c.marked(id, false, &ast.Code{Text: src})
	}
	if c.toTypst() {
		return c.marked(id, true, &ast.CodeBlock{Lang: "latex", Text: src})
	}
	var sb strings.Builder
	if m := c.marker(id); m != "" {
		sb.WriteString("% " + m + "\n")
	}
	for i, line := range strings.Split(src, "\n") {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("% " + line)
	}
	return []ast.Node{&ast.Raw{Lang: types.LangLaTeX, Text: sb.String(), Block: true}}
}

// sourceText renders n back in the source language for a passthrough.
func (c *Converter) sourceText(n ast.Node) string {
	doc := &ast.Document{Children: []ast.Node{n}}
	if c.toTypst() {
		return strings.TrimSpace(latex.Write(doc, latex.WriteOptions{Fragment: true}))
	}
	return strings.TrimSpace(typst.Write(doc, typst.WriteOptions{}))
}

func (c *Converter) raw(n *ast.Raw) []ast.Node {
	if n.Lang == c.target() {
		return []ast.Node{&ast.Raw{Lang: n.Lang, Text: n.Text, Block: n.Block}}
	}
	id := c.record(loss.Other, "raw", "verbatim source of the other language", n.Text, "raw")
	return c.passthrough(n.Text, n.Block, id)
}

func (c *Converter) opaque(n *ast.Opaque) []ast.Node {
	id := n.LossID
	if id == 0 {
		id = c.record(c.opaqueKind(n), n.Kind, n.Reason, n.Source, string(c.source()))
	}
	if n.Lang == c.target() {
		return c.marked(id, n.Block, &ast.Raw{Lang: n.Lang, Text: n.Source, Block: n.Block})
	}
	src := n.Source
	if n.Lang == types.LangTypst && !n.Block {
		src = strings.TrimPrefix(src, "#")
	}
	return c.passthrough(src, n.Block, id)
}

func (c *Converter) opaqueKind(n *ast.Opaque) loss.Kind {
	if n.Lang == types.LangTypst {
		return eval.LossKind(n.Kind)
	}
	switch n.Kind {
	case "conditional":
		return loss.UnresolvedConditional
	case "environment":
		return loss.GraphicsPrimitive
	}
	return loss.UnsupportedFeature
}
