// Package analysis computes conversion metrics: structural counters from a
// document tree, plus loss-marker and parse-error counts from target text.
package analysis

import (
	"texbridge/internal/ast"
	"texbridge/internal/eval"
	"texbridge/internal/latex"
	"texbridge/internal/logger"
	"texbridge/internal/loss"
	"texbridge/internal/macro"
	"texbridge/internal/types"
	"texbridge/internal/typst"
	"texbridge/internal/validator"
)

// Collect counts the structural nodes of doc. Marker and parse-error counts
// stay zero.
func Collect(doc *ast.Document) loss.Metrics {
	var m loss.Metrics
	if doc == nil {
		return m
	}
	label := func(key string) {
		if key != "" {
			m.Labels++
		}
	}
	ast.Walk(doc, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Heading:
			m.Headings++
			label(n.Label)
		case *ast.Math:
			if n.Display {
				m.Equations++
			}
			label(n.Label)
		case *ast.Figure:
			m.Figures++
			label(n.Label)
		case *ast.Table:
			m.Tables++
		case *ast.Cite:
			m.Cites++
		case *ast.Ref:
			m.Refs++
		case *ast.Label:
			label(n.Key)
		case *ast.Interp:
			label(n.Label)
		case *ast.ListItem:
			m.ListItems++
		}
		return true
	})
	return m
}

// Measure re-parses text written in lang and returns its full metrics.
func Measure(lang types.Lang, text string) loss.Metrics {
	m := Collect(Parse(lang, text))
	m.LossMarkers = loss.CountMarkers(text)
	m.ParseErrors = validator.CountErrors(lang, text)
	logger.Debug("metrics measured",
		logger.String("lang", string(lang)),
		logger.Int("headings", m.Headings),
		logger.Int("lossMarkers", m.LossMarkers),
		logger.Int("parseErrors", m.ParseErrors))
	return m
}

// Parse reads text into a resolved tree: LaTeX macros are expanded and
// Typst scripting is evaluated. Losses found on the way are discarded.
func Parse(lang types.Lang, text string) *ast.Document {
	scratch := loss.NewTracker()
	switch lang {
	case types.LangLaTeX:
		toks := macro.NewEngine(nil, scratch, macro.Config{}).Expand(latex.Tokenize(text))
		return latex.Parse(toks, latex.ParseOptions{Source: text})
	case types.LangTypst:
		return eval.New(scratch, eval.Config{}).Resolve(typst.Parse(text, typst.ParseOptions{}))
	}
	return &ast.Document{}
}
