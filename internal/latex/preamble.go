package latex

import (
	"fmt"
	"strconv"
	"strings"

	"texbridge/internal/ast"
)

// Template is the document class standing in for a Typst template.
type Template struct {
	Class   string
	Options []string
}

// templates are matched against the words of a template function name.
var templates = []struct {
	prefix string
	t      Template
}{
	{"ieee", Template{Class: "IEEEtran", Options: []string{"conference"}}},
	{"acm", Template{Class: "acmart", Options: []string{"sigconf"}}},
	{"lncs", Template{Class: "llncs"}},
	{"llncs", Template{Class: "llncs"}},
	{"springer", Template{Class: "llncs"}},
	{"elsevier", Template{Class: "elsarticle"}},
	{"elsarticle", Template{Class: "elsarticle"}},
	{"elsearticle", Template{Class: "elsarticle"}},
	{"ams", Template{Class: "amsart"}},
	{"thesis", Template{Class: "report"}},
	{"book", Template{Class: "book"}},
}

// TemplateFor maps a template function name such as "charged-ieee" to a
// document class. Unknown names get article and false.
func TemplateFor(name string) (Template, bool) {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r < 'a' || r > 'z'
	})
	for _, e := range templates {
		for _, w := range words {
			if strings.HasPrefix(w, e.prefix) {
				return e.t, true
			}
		}
	}
	return Template{Class: "article"}, false
}

var articleLike = map[string]bool{
	"article": true, "report": true, "book": true, "amsart": true,
	"extarticle": true, "scrartcl": true, "scrreprt": true, "scrbook": true,
}

// ArticleLike reports whether class lays out pages the plain way, so page
// geometry applies to it.
func ArticleLike(class string) bool { return articleLike[class] }

// documentClass picks the class line for a layout.
func documentClass(l *ast.Layout) (string, []string) {
	class := "article"
	var opts []string
	switch {
	case l.Template != "":
		t, _ := TemplateFor(l.Template)
		class = t.Class
		opts = append(opts, t.Options...)
	case l.Class != "":
		class = l.Class
		opts = append(opts, l.ClassOptions...)
	}
	add := func(o string) {
		for _, have := range opts {
			if have == o {
				return
			}
		}
		opts = append(opts, o)
	}
	if o := sizeOption(l.FontSize); o != "" {
		add(o)
	}
	if o := paperOption(l.Paper); o != "" {
		add(o)
	}
	if l.Columns >= 2 {
		add("twocolumn")
	}
	return class, opts
}

func sizeOption(size string) string {
	num, ok := strings.CutSuffix(size, "pt")
	if !ok {
		return ""
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return ""
	}
	for _, pt := range []float64{10, 11, 12} {
		if f > pt-0.2 && f < pt+0.2 {
			return fmt.Sprintf("%gpt", pt)
		}
	}
	return ""
}

func paperOption(paper string) string {
	switch strings.ToLower(paper) {
	case "a4", "a4paper":
		return "a4paper"
	case "us-letter", "letter", "letterpaper":
		return "letterpaper"
	}
	return ""
}

// geometry returns the geometry package options for m.
func geometry(m ast.Margin) string {
	side := func(s string) string {
		if s == "" {
			return m.All
		}
		return s
	}
	l, r, t, b := side(m.Left), side(m.Right), side(m.Top), side(m.Bottom)
	if l == r && r == t && t == b {
		if l == "" {
			return ""
		}
		return "margin=" + l
	}
	var opts []string
	for _, kv := range [][2]string{{"left", l}, {"right", r}, {"top", t}, {"bottom", b}} {
		if kv[1] != "" {
			opts = append(opts, kv[0]+"="+kv[1])
		}
	}
	return strings.Join(opts, ",")
}

// layoutPackages adds the packages a layout needs to need.
func layoutPackages(l *ast.Layout, class string, need map[string]string) {
	if ArticleLike(class) {
		if g := geometry(l.Margin); g != "" {
			need["geometry"] = g
		}
	}
	if l.Natbib {
		need["natbib"] = ""
	}
	if l.Theorems {
		need["amsthm"] = ""
	}
}

// settings writes the preamble lines after the packages.
func settings(l *ast.Layout, headings bool) string {
	var sb strings.Builder
	if l.Font != "" {
		sb.WriteString("\\usepackage{iftex}\n\\ifPDFTeX\n\\else\n\\usepackage{fontspec}\n")
		sb.WriteString("\\setmainfont{" + EscapeText(l.Font) + "}\n\\fi\n")
	}
	if l.EquationWithin != "" {
		sb.WriteString("\\numberwithin{equation}{" + l.EquationWithin + "}\n")
	}
	if l.Theorems {
		sb.WriteString(theoremDefinitions(l, headings))
	}
	if l.ParIndent != "" {
		sb.WriteString("\\setlength{\\parindent}{" + l.ParIndent + "}\n")
	}
	if l.Ragged {
		sb.WriteString("\\AtBeginDocument{\\raggedright}\n")
	}
	return sb.String()
}

func theoremDefinitions(l *ast.Layout, headings bool) string {
	within := l.EquationWithin
	if within == "" && headings {
		within = "section"
	}
	var sb strings.Builder
	sb.WriteString("\\theoremstyle{plain}\n")
	if within != "" {
		sb.WriteString("\\newtheorem{theorem}{Theorem}[" + within + "]\n")
	} else {
		sb.WriteString("\\newtheorem{theorem}{Theorem}\n")
	}
	for _, group := range []struct {
		style string
		names []string
	}{
		{"", []string{"lemma", "corollary", "proposition", "claim", "axiom"}},
		{"definition", []string{"definition", "example"}},
		{"remark", []string{"remark"}},
	} {
		if group.style != "" {
			sb.WriteString("\\theoremstyle{" + group.style + "}\n")
		}
		for _, name := range group.names {
			title := strings.ToUpper(name[:1]) + name[1:]
			sb.WriteString("\\newtheorem{" + name + "}[theorem]{" + title + "}\n")
		}
	}
	return sb.String()
}

// frontMatter writes the abstract and keywords that follow \maketitle.
func frontMatter(m ast.Meta, class string) string {
	var sb strings.Builder
	if m.Abstract != nil {
		aw := &writer{}
		aw.blocks(m.Abstract)
		text := strings.TrimSpace(aw.sb.String())
		if class == "book" {
			sb.WriteString("\\chapter*{Abstract}\n" + text + "\n")
		} else {
			sb.WriteString("\\begin{abstract}\n" + text + "\n\\end{abstract}\n")
		}
	}
	if len(m.Keywords) > 0 {
		words := make([]string, len(m.Keywords))
		for i, k := range m.Keywords {
			words[i] = EscapeText(k)
		}
		if class == "IEEEtran" {
			sb.WriteString("\\begin{IEEEkeywords}\n" + strings.Join(words, ", ") + "\n\\end{IEEEkeywords}\n")
		} else {
			sb.WriteString("\\paragraph{Keywords} " + strings.Join(words, ", ") + "\n")
		}
	}
	return sb.String()
}
