package eval

import (
	"strings"

	"texbridge/internal/ast"
)

// Blockify lays out resolved nodes as blocks: inline runs become
// paragraphs and adjacent lists of the same kind merge unless one of them is
// closed.
func Blockify(nodes []ast.Node) []ast.Node {
	var out []ast.Node
	var run []ast.Node
	flush := func() {
		if c := Trim(run); len(c) > 0 {
			out = append(out, &ast.Paragraph{Content: c})
		}
		run = nil
	}
	for _, n := range nodes {
		if !ast.IsBlock(n) {
			run = append(run, n)
			continue
		}
		flush()
		if l, ok := n.(*ast.List); ok && len(out) > 0 {
			if prev, ok := out[len(out)-1].(*ast.List); ok && sameList(prev, l) {
				prev.Items = append(prev.Items, l.Items...)
				continue
			}
		}
		out = append(out, n)
	}
	flush()
	return out
}

func sameList(a, b *ast.List) bool {
	desc := func(l *ast.List) bool { return len(l.Items) > 0 && l.Items[0].Term != nil }
	return !a.Closed && !b.Closed && a.Ordered == b.Ordered && desc(a) == desc(b)
}

// splitParagraph wraps resolved paragraph content, lifting out any blocks
// an interpolation produced.
func splitParagraph(content []ast.Node) []ast.Node {
	for _, n := range content {
		if ast.IsBlock(n) {
			return Blockify(content)
		}
	}
	if c := Trim(content); len(c) > 0 {
		return []ast.Node{&ast.Paragraph{Content: c}}
	}
	return nil
}

// Inline flattens resolved nodes to inline content. Paragraph boundaries
// become spaces.
func Inline(nodes []ast.Node) []ast.Node {
	var out []ast.Node
	for i, n := range nodes {
		p, ok := n.(*ast.Paragraph)
		if !ok {
			out = append(out, n)
			continue
		}
		if i > 0 {
			out = append(out, &ast.Text{Value: " "})
		}
		out = append(out, p.Content...)
	}
	return mergeText(out)
}

// Trim merges adjacent text and strips surrounding whitespace.
func Trim(nodes []ast.Node) []ast.Node {
	nodes = mergeText(nodes)
	for len(nodes) > 0 {
		t, ok := nodes[0].(*ast.Text)
		if !ok {
			break
		}
		if v := strings.TrimLeft(t.Value, " \t\n"); v != "" {
			nodes[0] = &ast.Text{Value: v}
			break
		}
		nodes = nodes[1:]
	}
	for len(nodes) > 0 {
		t, ok := nodes[len(nodes)-1].(*ast.Text)
		if !ok {
			break
		}
		if v := strings.TrimRight(t.Value, " \t\n"); v != "" {
			nodes[len(nodes)-1] = &ast.Text{Value: v}
			break
		}
		nodes = nodes[:len(nodes)-1]
	}
	return nodes
}

func mergeText(nodes []ast.Node) []ast.Node {
	out := make([]ast.Node, 0, len(nodes))
	for _, n := range nodes {
		t, ok := n.(*ast.Text)
		if !ok {
			out = append(out, n)
			continue
		}
		if len(out) > 0 {
			if prev, ok := out[len(out)-1].(*ast.Text); ok {
				out[len(out)-1] = &ast.Text{Value: prev.Value + t.Value}
				continue
			}
		}
		out = append(out, t)
	}
	return out
}
