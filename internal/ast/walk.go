package ast

import "strings"

// Walk traverses n depth-first in document order. fn is called for every
// node; returning false skips that node's children. Content blocks nested in
// script expressions are visited too.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *Document:
		walkAll(n.Meta.Title, fn)
		walkAll(n.Meta.Author, fn)
		walkAll(n.Meta.Date, fn)
		walkAll(n.Meta.Abstract, fn)
		walkAll(n.Children, fn)
	case *Heading:
		walkAll(n.Content, fn)
	case *Paragraph:
		walkAll(n.Content, fn)
	case *List:
		for _, item := range n.Items {
			Walk(item, fn)
		}
	case *ListItem:
		walkAll(n.Term, fn)
		walkAll(n.Children, fn)
	case *Quote:
		walkAll(n.Children, fn)
	case *Table:
		for _, row := range n.Rows {
			for _, cell := range row.Cells {
				walkAll(cell.Content, fn)
			}
		}
	case *Figure:
		walkAll(n.Body, fn)
		walkAll(n.Caption, fn)
	case *BibEntry:
		walkAll(n.Content, fn)
	case *Bibliography:
		for _, e := range n.Entries {
			Walk(e, fn)
		}
	case *Strong:
		walkAll(n.Content, fn)
	case *Emph:
		walkAll(n.Content, fn)
	case *Underline:
		walkAll(n.Content, fn)
	case *Link:
		walkAll(n.Content, fn)
	case *Footnote:
		walkAll(n.Content, fn)
	case *Command:
		walkAll(n.Opt, fn)
		for _, arg := range n.Args {
			walkAll(arg, fn)
		}
	case *Environment:
		walkAll(n.Children, fn)
	case *LetBinding:
		walkExpr(n.Value, fn)
	case *ForLoop:
		walkExpr(n.Body, fn)
	case *Conditional:
		for _, b := range n.Branches {
			walkExpr(b.Body, fn)
		}
		walkExpr(n.Else, fn)
	case *Interp:
		walkExpr(n.Expr, fn)
	}
}

func walkAll(nodes []Node, fn func(Node) bool) {
	for _, c := range nodes {
		Walk(c, fn)
	}
}

func walkExpr(e Expr, fn func(Node) bool) {
	switch e := e.(type) {
	case *ContentExpr:
		walkAll(e.Nodes, fn)
	case *CallExpr:
		for _, a := range e.Args {
			walkExpr(a.Value, fn)
		}
	case *ArrayExpr:
		for _, it := range e.Items {
			walkExpr(it, fn)
		}
	case *DictExpr:
		for _, v := range e.Values {
			walkExpr(v, fn)
		}
	}
}

// WalkMath traverses a formula depth-first.
func WalkMath(nodes []MathNode, fn func(MathNode)) {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		fn(n)
		switch n := n.(type) {
		case *MathCall:
			WalkMath(n.Opt, fn)
			for _, a := range n.Args {
				WalkMath(a, fn)
			}
		case *MathFrac:
			WalkMath(n.Num, fn)
			WalkMath(n.Den, fn)
		case *MathScript:
			WalkMath([]MathNode{n.Base}, fn)
			WalkMath(n.Sub, fn)
			WalkMath(n.Sup, fn)
		case *MathGroup:
			WalkMath(n.Children, fn)
		case *MathFenced:
			WalkMath(n.Body, fn)
		case *MathMatrix:
			for _, row := range n.Rows {
				for _, cell := range row {
					WalkMath(cell, fn)
				}
			}
		}
	}
}

// PlainText flattens inline content to its literal text.
func PlainText(nodes []Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		Walk(n, func(c Node) bool {
			switch c := c.(type) {
			case *Text:
				sb.WriteString(c.Value)
			case *Code:
				sb.WriteString(c.Text)
			case *LineBreak:
				sb.WriteString(" ")
			case *Ref:
				sb.WriteString(c.Key)
			case *Opaque:
				sb.WriteString(c.Source)
			case *Raw:
				sb.WriteString(c.Text)
			}
			return true
		})
	}
	return sb.String()
}
