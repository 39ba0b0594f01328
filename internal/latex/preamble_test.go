package latex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texbridge/internal/ast"
)

func TestWritePageSetup(t *testing.T) {
	doc := &ast.Document{
		Layout: &ast.Layout{
			Paper:          "a4",
			Margin:         ast.Margin{All: "2cm"},
			FontSize:       "11pt",
			Columns:        2,
			Ragged:         true,
			ParIndent:      "0pt",
			EquationWithin: "section",
			Theorems:       true,
			Natbib:         true,
		},
		Children: []ast.Node{
			&ast.Heading{Level: 1, Numbered: true, Content: []ast.Node{&ast.Text{Value: "A"}}},
			&ast.Environment{Name: "lemma", Children: []ast.Node{&ast.Paragraph{Content: []ast.Node{&ast.Text{Value: "True."}}}}},
		},
	}
	got := Write(doc, WriteOptions{})

	assert.True(t, strings.HasPrefix(got, "\\documentclass[11pt,a4paper,twocolumn]{article}\n"), got)
	for _, want := range []string{
		`\usepackage[margin=2cm]{geometry}`,
		`\usepackage{amsthm}`,
		`\usepackage{natbib}`,
		"\\numberwithin{equation}{section}\n",
		"\\newtheorem{theorem}{Theorem}[section]\n",
		"\\newtheorem{lemma}[theorem]{Lemma}\n",
		"\\theoremstyle{definition}\n\\newtheorem{definition}[theorem]{Definition}\n",
		"\\setlength{\\parindent}{0pt}\n",
		"\\AtBeginDocument{\\raggedright}\n",
		"\\begin{lemma}\nTrue.\n\\end{lemma}",
	} {
		assert.Contains(t, got, want)
	}
	assert.Less(t, strings.Index(got, `\newtheorem`), strings.Index(got, `\begin{document}`))
}

func TestWriteTemplateFrontMatter(t *testing.T) {
	doc := &ast.Document{
		Meta: ast.Meta{
			Title:    []ast.Node{&ast.Text{Value: "A Study"}},
			Abstract: []ast.Node{&ast.Paragraph{Content: []ast.Node{&ast.Text{Value: "We study things."}}}},
			Keywords: []string{"graphs", "trees & forests"},
		},
		Layout: &ast.Layout{Template: "charged-ieee", Margin: ast.Margin{All: "1in"}},
		Children: []ast.Node{
			&ast.Paragraph{Content: []ast.Node{&ast.Text{Value: "Body."}}},
		},
	}
	got := Write(doc, WriteOptions{})

	assert.True(t, strings.HasPrefix(got, "\\documentclass[conference]{IEEEtran}\n"), got)
	assert.NotContains(t, got, "geometry")
	assert.Contains(t, got, "\\maketitle\n\\begin{abstract}\nWe study things.\n\\end{abstract}\n")
	assert.Contains(t, got, "\\begin{IEEEkeywords}\ngraphs, trees \\& forests\n\\end{IEEEkeywords}\n")
	assert.Less(t, strings.Index(got, `\end{IEEEkeywords}`), strings.Index(got, "Body."))

	doc.Layout = &ast.Layout{Template: "project"}
	got = Write(doc, WriteOptions{})
	assert.True(t, strings.HasPrefix(got, "\\documentclass{article}\n"), got)
	assert.Contains(t, got, "\\paragraph{Keywords} graphs, trees \\& forests\n")

	frag := Write(doc, WriteOptions{Fragment: true})
	assert.Contains(t, frag, "\\maketitle\n\\begin{abstract}")
	assert.NotContains(t, frag, `\documentclass`)
}

func TestTemplateFor(t *testing.T) {
	tests := []struct {
		name  string
		class string
		known bool
	}{
		{"ieee", "IEEEtran", true},
		{"charged-ieee", "IEEEtran", true},
		{"acmart", "acmart", true},
		{"springer-lncs", "llncs", true},
		{"elsearticle", "elsarticle", true},
		{"tpl.thesis", "report", true},
		{"project", "article", false},
		{"conf", "article", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, known := TemplateFor(tt.name)
			assert.Equal(t, tt.class, tpl.Class)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestGeometryOptions(t *testing.T) {
	assert.Equal(t, "", geometry(ast.Margin{}))
	assert.Equal(t, "margin=2cm", geometry(ast.Margin{All: "2cm"}))
	assert.Equal(t, "left=1in,right=1in,top=2cm,bottom=2cm",
		geometry(ast.Margin{All: "2cm", Left: "1in", Right: "1in"}))
	assert.Equal(t, "top=3cm", geometry(ast.Margin{Top: "3cm"}))
}

func TestSizeAndPaperOptions(t *testing.T) {
	assert.Equal(t, "11pt", sizeOption("11pt"))
	assert.Equal(t, "10pt", sizeOption("10.1pt"))
	assert.Equal(t, "", sizeOption("9pt"))
	assert.Equal(t, "", sizeOption("1.2em"))
	assert.Equal(t, "letterpaper", paperOption("us-letter"))
	assert.Equal(t, "a4paper", paperOption("a4"))
	assert.Equal(t, "", paperOption("a5"))
}

func TestParseDocumentClassAndGeometry(t *testing.T) {
	src := `\documentclass[11pt,a4paper,twocolumn,draft]{article}
\usepackage[left=1in, right=1in]{geometry}
\usepackage{amsthm,natbib}
\numberwithin{equation}{section}
\begin{document}
Hi
\end{document}
`
	doc := Parse(Tokenize(src), ParseOptions{Source: src})
	require.NotNil(t, doc.Layout)
	l := doc.Layout
	assert.Equal(t, "article", l.Class)
	assert.Equal(t, []string{"draft"}, l.ClassOptions)
	assert.Equal(t, "11pt", l.FontSize)
	assert.Equal(t, "a4", l.Paper)
	assert.Equal(t, 2, l.Columns)
	assert.Equal(t, ast.Margin{Left: "1in", Right: "1in"}, l.Margin)
	assert.True(t, l.Theorems)
	assert.True(t, l.Natbib)
	assert.Equal(t, "section", l.EquationWithin)
	assert.Equal(t, "Hi", ast.PlainText(doc.Children))

	plain := Parse(Tokenize("\\usepackage{hyperref}\nHi\n"), ParseOptions{})
	assert.Nil(t, plain.Layout)
}
