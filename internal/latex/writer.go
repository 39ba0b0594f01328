package latex

import (
	"fmt"
	"sort"
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/table"
)

// WriteOptions configures Write.
type WriteOptions struct {
	// Fragment omits the \documentclass preamble and document environment.
	Fragment bool
	// MathOnly writes the body of the first formula without delimiters.
	MathOnly bool
}

// Write renders a LaTeX-flavored tree as LaTeX source. Raw and MathRaw text
// is emitted verbatim.
func Write(doc *ast.Document, opts WriteOptions) string {
	w := &writer{}
	if opts.MathOnly {
		for _, n := range doc.Children {
			if m, ok := n.(*ast.Math); ok {
				w.math(m.Body)
				break
			}
		}
		return strings.TrimSpace(w.sb.String())
	}

	w.blocks(doc.Children)
	body := strings.TrimSpace(w.sb.String())

	layout := doc.Layout
	if layout == nil {
		layout = &ast.Layout{}
	}
	class, classOpts := documentClass(layout)

	if opts.Fragment {
		if !doc.Meta.Empty() {
			head := w.meta(doc.Meta) + "\n\\maketitle\n" + frontMatter(doc.Meta, class)
			return strings.TrimSpace(head+"\n"+body) + "\n"
		}
		if front := frontMatter(doc.Meta, class); front != "" {
			return strings.TrimSpace(front+"\n"+body) + "\n"
		}
		return body + "\n"
	}

	var out strings.Builder
	if len(classOpts) > 0 {
		fmt.Fprintf(&out, "\\documentclass[%s]{%s}\n", strings.Join(classOpts, ","), class)
	} else {
		fmt.Fprintf(&out, "\\documentclass{%s}\n", class)
	}
	for _, pkg := range packages(doc, class) {
		out.WriteString(pkg)
		out.WriteString("\n")
	}
	out.WriteString(settings(layout, hasHeadings(doc)))
	if !doc.Meta.Empty() {
		out.WriteString("\n")
		out.WriteString(w.meta(doc.Meta))
	}
	out.WriteString("\n\\begin{document}\n")
	if !doc.Meta.Empty() {
		out.WriteString("\\maketitle\n")
	}
	out.WriteString(frontMatter(doc.Meta, class))
	out.WriteString("\n")
	out.WriteString(body)
	out.WriteString("\n\n\\end{document}\n")
	return out.String()
}

func hasHeadings(doc *ast.Document) bool {
	found := false
	ast.Walk(doc, func(n ast.Node) bool {
		if _, ok := n.(*ast.Heading); ok {
			found = true
		}
		return !found
	})
	return found
}

// packages returns the \usepackage lines the tree and its layout need.
func packages(doc *ast.Document, class string) []string {
	need := map[string]string{"amsmath": "", "amssymb": ""}
	if doc.Layout != nil {
		layoutPackages(doc.Layout, class, need)
	}
	ast.Walk(doc, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Image:
			need["graphicx"] = ""
		case *ast.Link, *ast.Ref:
			need["hyperref"] = ""
		case *ast.Underline:
			need["ulem"] = "normalem"
		case *ast.CodeBlock:
			if n.Lang != "" {
				need["listings"] = ""
			}
		case *ast.Graphic:
			need["tikz"] = ""
		case *ast.Table:
			if n.Border == ast.BorderRuled {
				need["booktabs"] = ""
			}
			for _, row := range n.Rows {
				for _, c := range row.Cells {
					if c.Rowspan > 1 {
						need["multirow"] = ""
					}
					if c.Fill != "" {
						need["xcolor"] = "table"
					}
				}
			}
		case *ast.Cite:
			if n.Mode == "p" || n.Mode == "t" {
				need["natbib"] = ""
			}
		}
		return true
	})
	names := make([]string, 0, len(need))
	for name := range need {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, name := range names {
		if opt := need[name]; opt != "" {
			lines[i] = fmt.Sprintf(`\usepackage[%s]{%s}`, opt, name)
		} else {
			lines[i] = fmt.Sprintf(`\usepackage{%s}`, name)
		}
	}
	return lines
}

type writer struct {
	sb strings.Builder
}

func (w *writer) write(s string) { w.sb.WriteString(s) }

func (w *writer) meta(m ast.Meta) string {
	var sb strings.Builder
	field := func(cmd string, content []ast.Node) {
		if content == nil {
			return
		}
		sb.WriteString(`\` + cmd + "{" + inlineString(content) + "}\n")
	}
	field("title", m.Title)
	field("author", m.Author)
	field("date", m.Date)
	return sb.String()
}

// inlineString renders inline content with a throwaway writer.
func inlineString(nodes []ast.Node) string {
	w := &writer{}
	w.inlines(nodes)
	return w.sb.String()
}

func (w *writer) blocks(nodes []ast.Node) {
	var run []ast.Node
	flush := func() {
		if len(run) > 0 {
			w.inlines(run)
			w.write("\n\n")
			run = nil
		}
	}
	for _, n := range nodes {
		if !ast.IsBlock(n) {
			run = append(run, n)
			continue
		}
		flush()
		w.block(n)
		w.write("\n\n")
	}
	flush()
}

func (w *writer) block(n ast.Node) {
	switch n := n.(type) {
	case *ast.Heading:
		cmd := HeadingCommand(n.Level)
		if !n.Numbered {
			cmd += "*"
		}
		w.write(`\` + cmd + "{")
		w.inlines(n.Content)
		w.write("}")
		if n.Label != "" {
			w.write(`\label{` + n.Label + "}")
		}
	case *ast.Paragraph:
		w.inlines(n.Content)
	case *ast.List:
		w.list(n)
	case *ast.ListItem:
		w.blocks(n.Children)
	case *ast.Quote:
		w.write("\\begin{quote}\n")
		w.blocks(n.Children)
		w.trimTrailing()
		w.write("\n\\end{quote}")
	case *ast.CodeBlock:
		if n.Lang != "" {
			w.write(`\begin{lstlisting}[language=` + n.Lang + "]\n" + n.Text + "\n\\end{lstlisting}")
		} else {
			w.write("\\begin{verbatim}\n" + n.Text + "\n\\end{verbatim}")
		}
	case *ast.Math:
		w.displayMath(n)
	case *ast.Table:
		w.table(n)
	case *ast.Figure:
		w.figure(n)
	case *ast.Bibliography:
		w.bibliography(n)
	case *ast.BibEntry:
		w.write(`\bibitem{` + n.Key + "} ")
		w.inlines(n.Content)
	case *ast.PageBreak:
		w.write(`\newpage`)
	case *ast.Space:
		w.write(`\vspace{` + n.Length + "}")
	case *ast.Graphic:
		w.write(n.Source)
	case *ast.Raw:
		w.write(n.Text)
	case *ast.Opaque:
		w.write(n.Source)
	case *ast.Environment:
		w.write(`\begin{` + n.Name + "}")
		for _, a := range n.Args {
			if strings.HasPrefix(a, "[") {
				w.write(a)
			} else {
				w.write("{" + a + "}")
			}
		}
		w.write("\n")
		w.blocks(n.Children)
		w.trimTrailing()
		w.write("\n\\end{" + n.Name + "}")
	}
}

// trimTrailing drops trailing newlines written by blocks.
func (w *writer) trimTrailing() {
	s := strings.TrimRight(w.sb.String(), "\n")
	w.sb.Reset()
	w.sb.WriteString(s)
}

func (w *writer) list(l *ast.List) {
	env := "itemize"
	switch {
	case l.Ordered:
		env = "enumerate"
	case len(l.Items) > 0 && l.Items[0].Term != nil:
		env = "description"
	}
	w.write(`\begin{` + env + "}\n")
	for _, it := range l.Items {
		w.write(`  \item`)
		if it.Term != nil {
			w.write("[")
			w.inlines(it.Term)
			w.write("]")
		}
		w.write(" ")
		w.blocks(it.Children)
		w.trimTrailing()
		w.write("\n")
	}
	w.write(`\end{` + env + "}")
}

func (w *writer) displayMath(m *ast.Math) {
	env := m.Env
	if env == "" || env == "math" || env == "displaymath" {
		if m.Numbered || m.Label != "" {
			env = "equation"
		} else {
			env = "equation*"
		}
	}
	if !m.Numbered && !strings.HasSuffix(env, "*") {
		env += "*"
	}
	w.write(`\begin{` + env + "}\n")
	w.math(m.Body)
	if m.Label != "" {
		w.write(` \label{` + m.Label + "}")
	}
	w.write("\n\\end{" + env + "}")
}

func (w *writer) figure(f *ast.Figure) {
	env := "figure"
	for _, n := range f.Body {
		if _, ok := n.(*ast.Table); ok {
			env = "table"
		}
	}
	w.write(`\begin{` + env + "}")
	if f.Placement != "" {
		w.write("[" + f.Placement + "]")
	}
	w.write("\n\\centering\n")
	w.blocks(f.Body)
	w.trimTrailing()
	if f.Caption != nil {
		w.write("\n\\caption{")
		w.inlines(f.Caption)
		w.write("}")
	}
	if f.Label != "" {
		w.write(`\label{` + f.Label + "}")
	}
	w.write("\n\\end{" + env + "}")
}

func (w *writer) bibliography(b *ast.Bibliography) {
	if len(b.Entries) > 0 {
		w.write("\\begin{thebibliography}{99}\n")
		for _, e := range b.Entries {
			w.write(`\bibitem{` + e.Key + "} ")
			w.inlines(e.Content)
			w.write("\n")
		}
		w.write(`\end{thebibliography}`)
		return
	}
	if b.Style != "" {
		w.write(`\bibliographystyle{` + b.Style + "}\n")
	}
	w.write(`\bibliography{` + strings.Join(b.Files, ",") + "}")
}

func (w *writer) table(t *ast.Table) {
	var spec strings.Builder
	vr := map[int]bool{}
	for _, c := range t.VRules {
		vr[c] = true
	}
	for c := 0; c < t.Columns; c++ {
		if vr[c] {
			spec.WriteString("|")
		}
		a := ast.AlignDefault
		if c < len(t.ColAlign) {
			a = t.ColAlign[c]
		}
		spec.WriteString(table.SpecLetter(a))
	}
	if vr[t.Columns] {
		spec.WriteString("|")
	}

	w.write(`\begin{tabular}{` + spec.String() + "}\n")
	grid := table.Layout(t)
	for r, row := range t.Rows {
		w.rules(row.RulesAbove)
		var cells []string
		for c := 0; c < t.Columns; {
			s := grid[r][c]
			if s.Cell == nil {
				cells = append(cells, "")
				c++
				continue
			}
			cs, _ := s.Cell.Span()
			switch {
			case s.Origin:
				cells = append(cells, w.cell(t, s.Cell, c))
			case cs > 1:
				// row covered by a rowspan from above
				cells = append(cells, `\multicolumn{`+fmt.Sprint(cs)+"}{c}{}")
			default:
				cells = append(cells, "")
			}
			c += cs
		}
		w.write("  " + strings.Join(cells, " & ") + ` \\` + "\n")
	}
	w.rules(t.RulesBelow)
	w.write(`\end{tabular}`)
}

func (w *writer) cell(t *ast.Table, c *ast.TableCell, col int) string {
	content := inlineString(c.Content)
	if c.Fill != "" {
		content = `\cellcolor{` + c.Fill + "}" + content
	}
	cs, rs := c.Span()
	if rs > 1 {
		content = `\multirow{` + fmt.Sprint(rs) + "}{*}{" + content + "}"
	}
	colAlign := ast.AlignDefault
	if col < len(t.ColAlign) {
		colAlign = t.ColAlign[col]
	}
	if cs > 1 || (c.Align != ast.AlignDefault && c.Align != colAlign) {
		a := c.Align
		if a == ast.AlignDefault {
			a = colAlign
		}
		content = `\multicolumn{` + fmt.Sprint(cs) + "}{" + table.SpecLetter(a) + "}{" + content + "}"
	}
	return content
}

func (w *writer) rules(rules []ast.Rule) {
	for _, r := range rules {
		switch r.Kind {
		case ast.RuleFull:
			w.write("  \\hline\n")
		case ast.RuleTop:
			w.write("  \\toprule\n")
		case ast.RuleMid:
			w.write("  \\midrule\n")
		case ast.RuleBottom:
			w.write("  \\bottomrule\n")
		case ast.RulePartial:
			w.write(fmt.Sprintf("  \\cmidrule{%d-%d}\n", r.From, r.To))
		}
	}
}

func (w *writer) inlines(nodes []ast.Node) {
	for _, n := range nodes {
		w.inline(n)
	}
}

func (w *writer) inline(n ast.Node) {
	switch n := n.(type) {
	case *ast.Text:
		w.write(EscapeText(n.Value))
	case *ast.Strong:
		w.wrap(`\textbf{`, n.Content)
	case *ast.Emph:
		w.wrap(`\emph{`, n.Content)
	case *ast.Underline:
		w.wrap(`\underline{`, n.Content)
	case *ast.Code:
		w.write(verbInline(n.Text))
	case *ast.Link:
		if n.Content == nil {
			w.write(`\url{` + n.URL + "}")
			return
		}
		w.write(`\href{` + n.URL + "}{")
		w.inlines(n.Content)
		w.write("}")
	case *ast.Footnote:
		w.wrap(`\footnote{`, n.Content)
	case *ast.LineBreak:
		w.write(`\\` + "\n")
	case *ast.Space:
		if n.Vertical {
			w.write(`\vspace{` + n.Length + "}")
		} else {
			w.write(`\hspace{` + n.Length + "}")
		}
	case *ast.Math:
		if n.Display {
			w.displayMath(n)
			return
		}
		w.write("$")
		w.math(n.Body)
		w.write("$")
	case *ast.Ref:
		kind := n.Kind
		if kind == "" {
			kind = "ref"
		}
		w.write(`\` + kind + "{" + n.Key + "}")
	case *ast.Cite:
		cmd := "cite"
		switch n.Mode {
		case "p":
			cmd = "citep"
		case "t":
			cmd = "citet"
		case "n":
			cmd = "nocite"
		}
		w.write(`\` + cmd + "{" + strings.Join(n.Keys, ",") + "}")
	case *ast.Label:
		w.write(`\label{` + n.Key + "}")
	case *ast.Image:
		var opts []string
		if n.Width != "" {
			opts = append(opts, "width="+DenormalizeLength(n.Width))
		}
		if n.Height != "" {
			opts = append(opts, "height="+DenormalizeLength(n.Height))
		}
		w.write(`\includegraphics`)
		if len(opts) > 0 {
			w.write("[" + strings.Join(opts, ",") + "]")
		}
		w.write("{" + n.Path + "}")
	case *ast.Raw:
		w.write(n.Text)
	case *ast.Opaque:
		w.write(n.Source)
	case *ast.Command:
		if n.Source != "" {
			w.write(n.Source)
			return
		}
		w.write(`\` + n.Name)
		if n.Opt != nil {
			w.write("[")
			w.inlines(n.Opt)
			w.write("]")
		}
		for _, a := range n.Args {
			w.wrap("{", a)
		}
	case *ast.PageBreak:
		w.write(`\newpage `)
	default:
		if ast.IsBlock(n) {
			w.block(n)
		}
	}
}

func (w *writer) wrap(open string, content []ast.Node) {
	w.write(open)
	w.inlines(content)
	w.write("}")
}

// DenormalizeLength turns a percentage back into a fraction of \linewidth.
func DenormalizeLength(v string) string {
	if strings.HasSuffix(v, "%") {
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSuffix(v, "%"), "%g", &f); err == nil {
			return fmt.Sprintf("%g", f/100) + `\linewidth`
		}
	}
	return v
}

var textEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	"{", `\{`,
	"}", `\}`,
	"%", `\%`,
	"&", `\&`,
	"$", `\$`,
	"#", `\#`,
	"_", `\_`,
	"^", `\textasciicircum{}`,
	"~", `\textasciitilde{}`,
	"\u00a0", "~",
)

// EscapeText escapes LaTeX special characters in plain text.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// verbInline renders inline code with \verb or \texttt when no delimiter fits.
func verbInline(s string) string {
	for _, d := range []string{"|", "!", "+", "@", "="} {
		if !strings.Contains(s, d) && !strings.Contains(s, "\n") {
			return `\verb` + d + s + d
		}
	}
	return `\texttt{` + EscapeText(s) + "}"
}
