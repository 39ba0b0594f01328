package convert

import (
	"regexp"

	"texbridge/internal/ast"
	"texbridge/internal/latex"
)

// plainLength matches lengths both languages read the same way.
var plainLength = regexp.MustCompile(`^\d*\.?\d+(pt|mm|cm|in|em)$`)

// layout carries the page setup across. Lengths the other language cannot
// read are dropped with a warning.
func (c *Converter) layout(l *ast.Layout) *ast.Layout {
	if l == nil {
		return nil
	}
	out := *l
	out.ClassOptions = append([]string(nil), l.ClassOptions...)
	for _, f := range []struct {
		what string
		v    *string
	}{
		{"margin", &out.Margin.All},
		{"left margin", &out.Margin.Left},
		{"right margin", &out.Margin.Right},
		{"top margin", &out.Margin.Top},
		{"bottom margin", &out.Margin.Bottom},
		{"font size", &out.FontSize},
		{"paragraph indent", &out.ParIndent},
	} {
		if *f.v != "" && !plainLength.MatchString(*f.v) {
			c.tracker.Warn("%s %q dropped: not a plain length", f.what, *f.v)
			*f.v = ""
		}
	}

	if c.toTypst() {
		if l.Class != "" && !latex.ArticleLike(l.Class) {
			c.tracker.Warn("document class %s has no Typst template; only its page setup is kept", l.Class)
		}
		return &out
	}
	if l.Template != "" {
		if _, known := latex.TemplateFor(l.Template); !known {
			c.tracker.Warn("template %s has no LaTeX class; article is used", l.Template)
		}
	}
	return &out
}
