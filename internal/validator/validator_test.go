package validator

import (
	"strings"
	"testing"

	"texbridge/internal/types"
)

// =============================================================================
// LaTeX
// =============================================================================

func TestValidateLaTeX(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errors  int
		typ     string
	}{
		{"empty", "", 0, ""},
		{"valid document", "\\documentclass{article}\n\\begin{document}\nHello $x^{2}$.\n\\end{document}\n", 0, ""},
		{"escaped braces", `a \{ b \} c`, 0, ""},
		{"escaped dollar", `costs \$5`, 0, ""},
		{"comment ignored", "a % { $ \\begin{x}\nb", 0, ""},
		{"escaped percent", `50\% {x}`, 0, ""},
		{"line break bracket", `a \\[2pt] b`, 0, ""},
		{"verb", `\verb|{$| done`, 0, ""},
		{"verbatim body", "\\begin{verbatim}\n{ $ \\end{itemize}\n\\end{verbatim}", 0, ""},
		{"display math", `$$ x $$ and \[ y \] and \( z \)`, 0, ""},
		{"unclosed brace", `\textbf{a`, 1, "brace"},
		{"extra brace", `a}`, 1, "brace"},
		{"unclosed inline math", `a $x`, 1, "math"},
		{"unclosed display math", `\[ x`, 1, "math"},
		{"stray close", `x \)`, 1, "math"},
		{"unclosed environment", "\\begin{itemize}\n\\item a", 1, "environment"},
		{"stray end", `\end{itemize}`, 1, "environment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(types.LangLaTeX, tt.content)
			if len(res.Errors) != tt.errors {
				t.Fatalf("expected %d errors, got %d: %v", tt.errors, len(res.Errors), res.Errors)
			}
			if res.IsValid != (tt.errors == 0) {
				t.Errorf("IsValid = %v", res.IsValid)
			}
			if tt.typ != "" && res.Errors[0].Type != tt.typ {
				t.Errorf("expected type %q, got %q", tt.typ, res.Errors[0].Type)
			}
		})
	}
}

func TestValidateLaTeXPositions(t *testing.T) {
	res := Validate(types.LangLaTeX, "line one\nab {c\n")
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", res.Errors)
	}
	e := res.Errors[0]
	if e.Line != 2 || e.Column != 4 {
		t.Errorf("expected line 2 column 4, got line %d column %d", e.Line, e.Column)
	}
	if e.String() != "line 2, column 4: unmatched opening brace '{'" {
		t.Errorf("unexpected message %q", e.String())
	}
}

func TestValidateLaTeXInterleavedEnvironments(t *testing.T) {
	content := "\\begin{figure}\n\\begin{center}\n\\end{figure}"
	res := Validate(types.LangLaTeX, content)
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", res.Errors)
	}
	if !strings.Contains(res.Errors[0].Message, `\begin{center}`) {
		t.Errorf("expected the center environment to be reported, got %q", res.Errors[0].Message)
	}
}

// =============================================================================
// Typst
// =============================================================================

func TestValidateTypst(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errors  int
		typ     string
	}{
		{"empty", "", 0, ""},
		{"markup", "= Title\nSome *bold* text (with a paren.\n", 0, ""},
		{"function call", `#text(fill: red)[hi] and #link("https://example.com")[x]`, 0, ""},
		{"code block", "#{\n  let x = (1, 2)\n  x.len()\n}", 0, ""},
		{"math", `$ [0, 1) + f(x) $`, 0, ""},
		{"math string", `$ "a ) b" + x $`, 0, ""},
		{"raw block", "```latex\n\\begin{x}{\n```", 0, ""},
		{"inline raw", "use `#f(` here", 0, ""},
		{"comments", "// ( [\n/* ] */ text", 0, ""},
		{"url", "see https://example.com/a", 0, ""},
		{"escaped", `a \$ b \] c`, 0, ""},
		{"canvas", "#cetz.canvas({\n  import cetz.draw: *\n  line((0, 0), (1, 1), stroke: red)\n})", 0, ""},
		{"unclosed math", `$ x + y`, 1, "math"},
		{"unclosed call", `#text(fill: red`, 1, "bracket"},
		{"stray bracket", `a ] b`, 1, "bracket"},
		{"mismatched", `#f(a]`, 2, "bracket"},
		{"unclosed string", `#f("abc)`, 1, "string"},
		{"unclosed raw", "```\ncode", 1, "raw"},
		{"unclosed comment", "/* x", 1, "comment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(types.LangTypst, tt.content)
			if len(res.Errors) != tt.errors {
				t.Fatalf("expected %d errors, got %d: %v", tt.errors, len(res.Errors), res.Errors)
			}
			if tt.typ != "" && res.Errors[0].Type != tt.typ {
				t.Errorf("expected type %q, got %q", tt.typ, res.Errors[0].Type)
			}
		})
	}
}

func TestValidateUnknownLanguage(t *testing.T) {
	res := Validate(types.Lang("markdown"), "x")
	if res.IsValid || len(res.Errors) != 1 || res.Errors[0].Type != "language" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCountErrors(t *testing.T) {
	if n := CountErrors(types.LangLaTeX, `{{`); n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
	if n := CountErrors(types.LangTypst, `#f(`); n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
}

// =============================================================================
// Lint
// =============================================================================

func TestLintLaTeX(t *testing.T) {
	content := `\newcommand{\R}{\mathbb{R}}
\newcommand{\R}{\mathbf{R}}
\begin{document}
See \ref{missing} and \ref{sec}.
\section{A}\label{sec}
\end{document}
trailing`
	res := Lint(types.LangLaTeX, content)
	if !res.Valid {
		t.Fatalf("expected valid, got %v", res.Issues)
	}

	var messages []string
	for _, issue := range res.Issues {
		if issue.Severity != "warning" {
			t.Errorf("expected warnings only, got %+v", issue)
		}
		messages = append(messages, issue.Message)
	}
	joined := strings.Join(messages, "\n")
	for _, want := range []string{
		`\R defined more than once`,
		`Missing \documentclass`,
		`Content after \end{document}`,
		`undefined label "missing"`,
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in %q", want, joined)
		}
	}
	if strings.Contains(joined, `"sec"`) {
		t.Errorf("defined label reported: %q", joined)
	}
	if !strings.HasPrefix(res.Summary, "⚠") {
		t.Errorf("unexpected summary %q", res.Summary)
	}
}

func TestLintTypst(t *testing.T) {
	content := "=Broken\n== Fine <sec>\nSee @sec and @nope, mail me at a@b.org.\n"
	res := Lint(types.LangTypst, content)

	if len(res.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", res.Issues)
	}
	if res.Issues[0].Line != 1 || !strings.Contains(res.Issues[0].Message, "heading") {
		t.Errorf("unexpected first issue %+v", res.Issues[0])
	}
	if !strings.Contains(res.Issues[1].Message, `"nope"`) {
		t.Errorf("unexpected second issue %+v", res.Issues[1])
	}
}

func TestLintErrorsFailSummary(t *testing.T) {
	res := Lint(types.LangTypst, "#f(")
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if res.Summary != "✗ Validation failed: 1 error(s), 0 warning(s)" {
		t.Errorf("unexpected summary %q", res.Summary)
	}
}

func TestFormatIssues(t *testing.T) {
	issues := []Issue{
		{Severity: "error", Line: 3, Message: "Extra closing brace", Details: "column 2 (brace)"},
		{Severity: "warning", Message: "Content after \\end{document}"},
	}
	got := FormatIssues(issues)
	want := "✗ [ERROR] Extra closing brace (line: 3)\n  Details: column 2 (brace)\n⚠ [WARNING] Content after \\end{document}"
	if got != want {
		t.Errorf("FormatIssues() =\n%s\nwant\n%s", got, want)
	}
	if FormatIssues(nil) != "No issues found" {
		t.Error("expected empty message")
	}
}
