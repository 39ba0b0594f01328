// Package eval statically resolves the scripting subset of Typst: literal
// bindings, bounded loops, decidable conditionals and interpolation. What
// it cannot resolve is kept as opaque nodes carrying the original source.
package eval

import (
	"fmt"
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/logger"
	"texbridge/internal/loss"
	"texbridge/internal/types"
	"texbridge/internal/typst"
)

const (
	DefaultMaxIterations = 1000
	// maxCallDepth bounds user function recursion.
	maxCallDepth = 64
)

// Opaque kinds produced by the evaluator. Loops, conditionals and values
// carry their loss id; the converter records the rest when it emits them.
const (
	OpaqueValue       = "value"
	OpaqueLoop        = "loop"
	OpaqueConditional = "conditional"
	OpaqueCode        = "code"
	OpaqueClosure     = "closure"
	OpaqueMethod      = "method"
	OpaqueCalc        = "calc"
	OpaquePlace       = "place"
	OpaqueSpread      = "spread"
	OpaqueCounter     = "counter"
	OpaqueShow        = "show"
	OpaqueSet         = "set"
	OpaqueImport      = "import"
	OpaqueInclude     = "include"
)

// LossKind maps an opaque kind to the loss recorded when it reaches output.
func LossKind(kind string) loss.Kind {
	switch kind {
	case OpaqueCode, OpaqueClosure, OpaqueMethod, OpaqueCalc:
		return loss.CodeBlock
	case OpaqueLoop:
		return loss.LoopBoundExceeded
	case OpaqueConditional:
		return loss.UnresolvedConditional
	case OpaqueValue, OpaqueCounter:
		return loss.UnsupportedValue
	}
	return loss.UnsupportedFeature
}

// Config bounds evaluation.
type Config struct {
	MaxIterations int
}

// state is what set rules change. It follows block scoping.
type state struct {
	headingNumbered bool
	mathNumbered    bool
}

// Evaluator resolves one document. It is not safe for concurrent use.
type Evaluator struct {
	tracker *loss.Tracker
	cfg     Config
	scope   *Scope
	st      state
	meta    ast.Meta
	layout  *ast.Layout
	depth   int
}

// New returns an evaluator that records into tracker.
func New(tracker *loss.Tracker, cfg Config) *Evaluator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if tracker == nil {
		tracker = loss.NewTracker()
	}
	return &Evaluator{tracker: tracker, cfg: cfg, scope: NewScope()}
}

// Resolve returns the normalized tree for a raw Typst document. The input
// tree is not modified.
func (e *Evaluator) Resolve(doc *ast.Document) *ast.Document {
	before := e.tracker.Len()
	children := e.dropTitleBlock(e.blocks(doc.Children))
	out := &ast.Document{Meta: e.meta, Layout: e.layout, Children: children}
	logger.Debug("typst evaluated",
		logger.Int("blocks", len(out.Children)),
		logger.Int("losses", e.tracker.Len()-before))
	return out
}

// block resolves nodes in a fresh scope, as a content block does.
func (e *Evaluator) block(nodes []ast.Node) []ast.Node {
	e.scope.Push()
	saved := e.st
	defer func() {
		e.scope.Pop()
		e.st = saved
	}()
	return e.seq(nodes)
}

// blocks resolves nodes in the current scope and lays them out as blocks.
func (e *Evaluator) blocks(nodes []ast.Node) []ast.Node {
	return Blockify(e.seq(nodes))
}

func (e *Evaluator) seq(nodes []ast.Node) []ast.Node {
	var out []ast.Node
	for _, n := range nodes {
		out = append(out, e.node(n)...)
	}
	return out
}

func (e *Evaluator) node(n ast.Node) []ast.Node {
	switch n := n.(type) {
	case *ast.LetBinding:
		e.let(n)
		return nil
	case *ast.ForLoop:
		return e.loop(n)
	case *ast.Conditional:
		return e.conditional(n)
	case *ast.Interp:
		return e.interp(n)
	case *ast.Text:
		return []ast.Node{&ast.Text{Value: n.Value}}
	case *ast.Paragraph:
		return splitParagraph(e.seq(n.Content))
	case *ast.Heading:
		return []ast.Node{&ast.Heading{
			Level:    n.Level,
			Numbered: e.st.headingNumbered,
			Label:    n.Label,
			Content:  Inline(e.seq(n.Content)),
		}}
	case *ast.List:
		l := &ast.List{Ordered: n.Ordered}
		for _, it := range n.Items {
			item := &ast.ListItem{Children: e.blocks(it.Children)}
			if it.Term != nil {
				item.Term = Inline(e.seq(it.Term))
			}
			l.Items = append(l.Items, item)
		}
		return []ast.Node{l}
	case *ast.ListItem:
		return e.node(&ast.List{Items: []*ast.ListItem{n}})
	case *ast.Quote:
		return []ast.Node{&ast.Quote{Children: e.blocks(n.Children)}}
	case *ast.Strong:
		return []ast.Node{&ast.Strong{Content: Inline(e.seq(n.Content))}}
	case *ast.Emph:
		return []ast.Node{&ast.Emph{Content: Inline(e.seq(n.Content))}}
	case *ast.Underline:
		return []ast.Node{&ast.Underline{Content: Inline(e.seq(n.Content))}}
	case *ast.Link:
		return []ast.Node{&ast.Link{URL: n.URL, Content: Inline(e.seq(n.Content))}}
	case *ast.Footnote:
		return []ast.Node{&ast.Footnote{Content: Inline(e.seq(n.Content))}}
	case *ast.Math:
		m := *n
		m.Body = e.math(n.Body)
		m.Numbered = n.Display && e.st.mathNumbered
		return []ast.Node{&m}
	}
	return []ast.Node{n}
}

func (e *Evaluator) let(n *ast.LetBinding) {
	if n.Params != nil {
		f := &Func{Name: n.Name, Params: n.Params, Body: n.Value, Scope: e.scope.snapshot()}
		f.Scope.define(n.Name, f)
		e.scope.Define(n.Name, f)
		return
	}
	e.scope.Define(n.Name, e.eval(n.Value))
}

// loop unrolls a for loop. Past MaxIterations the rest stays opaque with a
// loop-bound-exceeded loss.
func (e *Evaluator) loop(n *ast.ForLoop) []ast.Node {
	iter := e.eval(n.Iter)
	if u, ok := iter.(*Unresolved); ok {
		return e.opaque(u, n.Source, n.Block)
	}
	seq, ok := iterate(iter, len(n.Pattern))
	if !ok {
		return e.opaque(&Unresolved{Kind: OpaqueValue, Reason: "cannot iterate over " + iter.typeName()}, n.Source, n.Block)
	}

	count := seq.Len()
	limit := min(count, e.cfg.MaxIterations)
	var iterations [][]ast.Node
	for i := 0; i < limit; i++ {
		vals := seq.At(i)
		e.scope.Push()
		saved := e.st
		for j, name := range n.Pattern {
			if j < len(vals) {
				e.scope.Define(name, vals[j])
			}
		}
		iterations = append(iterations, e.body(n.Body))
		e.st = saved
		e.scope.Pop()
	}

	var out []ast.Node
	if n.Block {
		out = loopBlocks(iterations)
	} else {
		for _, it := range iterations {
			out = append(out, it...)
		}
	}
	if count > limit {
		id := e.tracker.Record(loss.LoopBoundExceeded, "for",
			fmt.Sprintf("unrolled %d of %d iterations", limit, count), n.Source, string(types.LangTypst))
		out = append(out, &ast.Opaque{
			Kind:   OpaqueLoop,
			Lang:   types.LangTypst,
			Source: n.Source,
			Reason: fmt.Sprintf("iterations %d..%d not unrolled", limit, count-1),
			Block:  n.Block,
			LossID: id,
		})
	}
	return out
}

// loopBlocks lays out the iterations of a block-level loop. When every
// iteration yields inline content only, each becomes one list item.
func loopBlocks(iterations [][]ast.Node) []ast.Node {
	allInline := true
	for _, it := range iterations {
		for _, n := range it {
			if ast.IsBlock(n) {
				allInline = false
			}
		}
	}
	if !allInline {
		var out []ast.Node
		for _, it := range iterations {
			out = append(out, it...)
		}
		out = Blockify(out)
		for _, n := range out {
			if l, ok := n.(*ast.List); ok {
				l.Closed = true
			}
		}
		return out
	}
	list := &ast.List{Closed: true}
	for _, it := range iterations {
		content := Trim(it)
		if len(content) == 0 {
			continue
		}
		list.Items = append(list.Items, &ast.ListItem{Children: []ast.Node{&ast.Paragraph{Content: content}}})
	}
	if len(list.Items) == 0 {
		return nil
	}
	return []ast.Node{list}
}

// body resolves a loop or branch body in the current frame.
func (e *Evaluator) body(x ast.Expr) []ast.Node {
	switch x := x.(type) {
	case *ast.ContentExpr:
		return e.seq(x.Nodes)
	case nil:
		return nil
	}
	return e.nodesOf(e.eval(x), "", false)
}

// conditional picks the branch whose condition holds. A condition that
// does not reduce to a bool keeps the whole construct opaque.
func (e *Evaluator) conditional(n *ast.Conditional) []ast.Node {
	for _, br := range n.Branches {
		cond := e.eval(br.Cond)
		b, ok := cond.(Bool)
		if !ok {
			reason := "condition is " + cond.typeName()
			if u, isU := cond.(*Unresolved); isU && u.Reason != "" {
				reason = "condition depends on " + u.Reason
			}
			id := e.tracker.Record(loss.UnresolvedConditional, "if", reason, n.Source, string(types.LangTypst))
			return []ast.Node{&ast.Opaque{
				Kind:   OpaqueConditional,
				Lang:   types.LangTypst,
				Source: n.Source,
				Reason: reason,
				Block:  n.Block,
				LossID: id,
			}}
		}
		if b {
			return e.branch(br.Body, n.Block)
		}
	}
	if n.Else != nil {
		return e.branch(n.Else, n.Block)
	}
	return nil
}

func (e *Evaluator) branch(x ast.Expr, block bool) []ast.Node {
	e.scope.Push()
	saved := e.st
	defer func() {
		e.scope.Pop()
		e.st = saved
	}()
	if block {
		return Blockify(e.body(x))
	}
	return e.body(x)
}

// interp resolves an embedded expression or rule.
func (e *Evaluator) interp(n *ast.Interp) []ast.Node {
	switch n.Keyword {
	case "set":
		return e.setRule(n)
	case "show":
		if e.scope.Depth() == 1 && e.template(n) {
			return nil
		}
		return e.opaque(&Unresolved{Kind: OpaqueShow, Reason: "show rule"}, n.Source, n.Block)
	case "import":
		if strings.Contains(n.Source, "@preview/cetz") {
			return nil
		}
		return e.opaque(&Unresolved{Kind: OpaqueImport, Reason: "module import"}, n.Source, n.Block)
	case "include":
		return e.opaque(&Unresolved{Kind: OpaqueInclude, Reason: "file include"}, n.Source, n.Block)
	}
	return e.nodesOf(e.eval(n.Expr), n.Source, n.Block, n.Label)
}

// nodesOf turns a value into markup. label, when given, is attached to the
// element the value produced.
func (e *Evaluator) nodesOf(v Value, source string, block bool, label ...string) []ast.Node {
	var out []ast.Node
	switch v := v.(type) {
	case None:
	case Content:
		out = append(out, v...)
	case Label:
		out = append(out, &ast.Label{Key: string(v)})
	case *Unresolved:
		return e.opaque(v, source, block)
	case *Func, *Element:
		return e.opaque(&Unresolved{Kind: OpaqueValue, Reason: v.typeName() + " cannot be shown"}, source, block)
	default:
		out = append(out, &ast.Text{Value: Display(v)})
	}
	if len(label) > 0 && label[0] != "" {
		out = attachLabel(out, label[0])
	}
	return out
}

// opaque keeps a construct as source. Values the evaluator could not
// compute are recorded here; constructs are recorded by the converter.
func (e *Evaluator) opaque(u *Unresolved, source string, block bool) []ast.Node {
	if source == "" {
		source = u.Source
	}
	o := &ast.Opaque{Kind: u.Kind, Lang: types.LangTypst, Source: source, Reason: u.Reason, Block: block}
	if u.Kind == OpaqueValue || u.Kind == OpaqueCounter {
		o.LossID = e.tracker.Record(loss.UnsupportedValue, u.Kind, u.Reason, source, string(types.LangTypst))
	}
	return []ast.Node{o}
}

// attachLabel gives the label to the first labellable element of nodes, or
// appends it as a Label node.
func attachLabel(nodes []ast.Node, key string) []ast.Node {
	for i, n := range nodes {
		switch n := n.(type) {
		case *ast.Figure:
			if n.Label == "" {
				n.Label = key
				return nodes
			}
		case *ast.Heading:
			if n.Label == "" {
				n.Label = key
				return nodes
			}
		case *ast.Math:
			if n.Display && n.Label == "" {
				n.Label = key
				return nodes
			}
		case *ast.Table:
			nodes[i] = &ast.Figure{Body: []ast.Node{n}, Label: key}
			return nodes
		}
	}
	return append(nodes, &ast.Label{Key: key})
}

// math resolves #expressions embedded in a formula. Numbers, strings and
// math content are spliced in; anything else stays raw with a loss.
func (e *Evaluator) math(body []ast.MathNode) []ast.MathNode {
	out := make([]ast.MathNode, 0, len(body))
	for _, n := range body {
		out = append(out, e.mathNode(n))
	}
	return out
}

func (e *Evaluator) mathNode(n ast.MathNode) ast.MathNode {
	switch n := n.(type) {
	case *ast.MathRaw:
		if !strings.HasPrefix(n.Text, "#") || n.LossID != 0 {
			return n
		}
		return e.mathCode(n)
	case *ast.MathScript:
		s := &ast.MathScript{Base: e.mathNode(n.Base)}
		if n.Sub != nil {
			s.Sub = e.math(n.Sub)
		}
		if n.Sup != nil {
			s.Sup = e.math(n.Sup)
		}
		return s
	case *ast.MathFrac:
		return &ast.MathFrac{Num: e.math(n.Num), Den: e.math(n.Den), Slash: n.Slash}
	case *ast.MathGroup:
		return &ast.MathGroup{Children: e.math(n.Children)}
	case *ast.MathFenced:
		return &ast.MathFenced{Open: n.Open, Close: n.Close, Body: e.math(n.Body)}
	case *ast.MathCall:
		c := *n
		c.Args = make([][]ast.MathNode, len(n.Args))
		for i, a := range n.Args {
			c.Args[i] = e.math(a)
		}
		return &c
	case *ast.MathMatrix:
		m := &ast.MathMatrix{Env: n.Env, Delim: n.Delim, Rows: make([][][]ast.MathNode, len(n.Rows))}
		for i, row := range n.Rows {
			m.Rows[i] = make([][]ast.MathNode, len(row))
			for j, cell := range row {
				m.Rows[i][j] = e.math(cell)
			}
		}
		return m
	}
	return n
}

func (e *Evaluator) mathCode(n *ast.MathRaw) ast.MathNode {
	v := e.eval(typst.ParseExpr(n.Text[1:]))
	switch v := v.(type) {
	case Number:
		return &ast.MathAtom{Kind: ast.AtomNumber, Text: formatNumber(v)}
	case String:
		return &ast.MathText{Text: string(v)}
	case Content:
		if len(v) == 1 {
			if m, ok := v[0].(*ast.Math); ok {
				return &ast.MathGroup{Children: m.Body}
			}
		}
		return &ast.MathText{Text: ast.PlainText(v)}
	}
	reason := "cannot embed " + v.typeName() + " in math"
	if u, ok := v.(*Unresolved); ok && u.Reason != "" {
		reason = u.Reason
	}
	id := e.tracker.Record(loss.UnsupportedValue, "math-code", reason, n.Text, string(types.LangTypst))
	return &ast.MathRaw{Text: n.Text, LossID: id}
}

// dropTitleBlock removes the centered title block that mirrors the
// document metadata, filling author and date from it when unset.
func (e *Evaluator) dropTitleBlock(nodes []ast.Node) []ast.Node {
	if e.meta.Title == nil {
		return nodes
	}
	title := strings.TrimSpace(ast.PlainText(e.meta.Title))
	for i, n := range nodes {
		p, ok := n.(*ast.Paragraph)
		if !ok {
			continue
		}
		lines := splitLines(p.Content)
		if len(lines) == 0 || strings.TrimSpace(ast.PlainText(lines[0])) != title {
			continue
		}
		if len(lines) > 1 && e.meta.Author == nil {
			e.meta.Author = Trim(lines[1])
		}
		if len(lines) > 2 && e.meta.Date == nil {
			e.meta.Date = Trim(lines[2])
		}
		out := append([]ast.Node{}, nodes[:i]...)
		return append(out, nodes[i+1:]...)
	}
	return nodes
}

func splitLines(nodes []ast.Node) [][]ast.Node {
	var lines [][]ast.Node
	var cur []ast.Node
	for _, n := range nodes {
		if _, ok := n.(*ast.LineBreak); ok {
			lines = append(lines, cur)
			cur = nil
			continue
		}
		cur = append(cur, n)
	}
	return append(lines, cur)
}
