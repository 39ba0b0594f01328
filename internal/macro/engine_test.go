package macro

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texbridge/internal/latex"
	"texbridge/internal/loss"
)

func expand(t *testing.T, src string, cfg Config) (string, *loss.Tracker, []latex.Token) {
	t.Helper()
	tr := loss.NewTracker()
	out := NewEngine(NewTable(), tr, cfg).Expand(latex.Tokenize(src))
	return latex.Detokenize(out), tr, out
}

func TestExpand_Basics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no macros", `a $x$ b`, `a $x$ b`},
		{"zero params", `\newcommand{\R}{\mathbb{R}}$x\in\R$`, `$x\in\mathbb{R}$`},
		{"bare name form", `\newcommand\half{\frac12}\half`, `\frac12`},
		{"params", `\newcommand{\pair}[2]{(#1,#2)}\pair{a}{b}`, `(a,b)`},
		{"single token args", `\newcommand{\pair}[2]{(#1,#2)}\pair ab`, `(a,b)`},
		{"default used", `\newcommand{\v}[2][x]{#1_#2}\v{1}`, `x_1`},
		{"default overridden", `\newcommand{\v}[2][x]{#1_#2}\v[y]{1}`, `y_1`},
		{"nested", `\newcommand{\a}{A}\newcommand{\b}{[\a]}\b`, `[A]`},
		{"def", `\def\sq#1{#1^2}\sq{x}`, `x^2`},
		{"operator", `\DeclareMathOperator{\Tr}{Tr}$\Tr A$`, `$\operatorname{Tr}A$`},
		{"operator star", `\DeclareMathOperator*{\argmax}{arg\,max}\argmax`, `\operatorname*{arg\,max}`},
		{"environment", `\newenvironment{note}{\textbf{Note:} }{\par}\begin{note}hi\end{note}`, `\textbf{Note:} hi\par`},
		{"builtin environment untouched", `\begin{itemize}\item x\end{itemize}`, `\begin{itemize}\item x\end{itemize}`},
		{"iftrue", `\iftrue Y\else N\fi`, `Y`},
		{"iffalse", `\iffalse Y\else N\fi`, `N`},
		{"newif", `\newif\ifdraft\drafttrue\ifdraft D\else F\fi`, `D`},
		{"nested ifs", `\iftrue\iffalse a\else b\fi\else c\fi`, `b`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tr, _ := expand(t, tt.src, Config{})
			assert.Equal(t, tt.want, got)
			assert.Zero(t, tr.Len(), "unexpected losses: %+v", tr.Records())
		})
	}
}

func TestExpand_IfMmodeFollowsMode(t *testing.T) {
	src := `\newcommand{\R}{\ifmmode R\else T\fi}$\R$ \R \[\R\] \begin{equation}\R\end{equation} $\text{\R}$`
	got, tr, _ := expand(t, src, Config{})
	assert.Equal(t, `$R$ T\[R\] \begin{equation}R\end{equation} $\text{T}$`, got)
	assert.Zero(t, tr.Len())
}

func TestExpand_InFlightRedefinitionKeepsOldBody(t *testing.T) {
	got, tr, _ := expand(t, `\newcommand{\x}{A\renewcommand{\x}{B}\x}\x\x`, Config{})
	assert.Equal(t, "ABB", got)
	assert.Zero(t, tr.Len())
}

func TestExpand_LastDefinitionWins(t *testing.T) {
	got, _, _ := expand(t, `\newcommand{\x}{1}{\renewcommand{\x}{2}}\x`, Config{})
	assert.Equal(t, "{}2", got)
}

func TestExpand_EdefAndLet(t *testing.T) {
	got, _, _ := expand(t, `\def\a{X}\edef\b{\a\a}\def\a{Y}\b`, Config{})
	assert.Equal(t, "XX", got)

	got, _, _ = expand(t, `\newcommand{\a}{1}\let\b\a\renewcommand{\a}{2}\b\a`, Config{})
	assert.Equal(t, "12", got)

	got, _, _ = expand(t, `\let\B=\textbf\B{x}`, Config{})
	assert.Equal(t, `\textbf{x}`, got)
}

func TestExpand_ProvideCommandKeepsExisting(t *testing.T) {
	got, _, _ := expand(t, `\newcommand{\a}{1}\providecommand{\a}{2}\providecommand{\b}{3}\a\b`, Config{})
	assert.Equal(t, "13", got)

	got, _, _ = expand(t, `\providecommand{\alpha}{x}$\alpha$`, Config{})
	assert.Equal(t, `$\alpha$`, got)
}

func TestExpand_RecursionYieldsOneLoss(t *testing.T) {
	tests := []struct {
		name string
		src  string
		keep string
	}{
		{"direct", `\newcommand{\a}{\a}\a`, `\a`},
		{"indirect", `\def\a{\b x}\def\b{\a y}\a`, `\a`},
		{"with argument", `\newcommand{\f}[1]{\f{#1#1}}\f{z} after`, `\f{z}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tr, out := expand(t, tt.src, Config{MaxDepth: 16})
			require.Equal(t, 1, tr.Len())
			rec, _ := tr.Get(1)
			assert.Equal(t, loss.MacroRecursionLimit, rec.Kind)
			assert.True(t, strings.HasPrefix(got, tt.keep), "got %q", got)
			assert.Equal(t, 1, out[0].LossID)
		})
	}
}

func TestExpand_RecursionDiscardsPendingLosses(t *testing.T) {
	_, tr, _ := expand(t, `\newcommand{\a}{\nosuch\a}\a`, Config{MaxDepth: 8})
	require.Equal(t, 1, tr.Len())
	assert.Equal(t, map[loss.Kind]int{loss.MacroRecursionLimit: 1}, tr.CountByKind())
}

func TestExpand_TokenBudget(t *testing.T) {
	src := `\newcommand{\b}{xxxxxxxx}\newcommand{\a}{\b\b\b\b}\a`
	got, tr, _ := expand(t, src, Config{MaxTokens: 20})
	assert.Equal(t, `\a`, got)
	require.Equal(t, 1, tr.Len())
	rec, _ := tr.Get(1)
	assert.Contains(t, rec.Message, "token budget")
}

func TestExpand_ExpansionContinuesAfterAbort(t *testing.T) {
	got, tr, _ := expand(t, `\newcommand{\a}{\a}\newcommand{\ok}{fine}\a \ok`, Config{MaxDepth: 4})
	assert.Equal(t, `\a fine`, got)
	assert.Equal(t, 1, tr.Len())
}

func TestExpand_UnknownCommand(t *testing.T) {
	_, tr, out := expand(t, `$\unknowncmd{a}$`, Config{})
	require.Equal(t, 1, tr.Len())
	rec, _ := tr.Get(1)
	assert.Equal(t, loss.UnknownCommand, rec.Kind)
	assert.Equal(t, `\unknowncmd`, rec.Name)
	assert.Equal(t, `\unknowncmd{a}`, rec.Snippet)
	assert.Equal(t, "math", rec.Context)

	var flagged int
	for _, tok := range out {
		if tok.Is("unknowncmd") {
			flagged = tok.LossID
		}
	}
	assert.Equal(t, 1, flagged)
}

func TestExpand_UnknownInsideMacroGetsRealID(t *testing.T) {
	_, tr, out := expand(t, `\newcommand{\w}{\weird}\w`, Config{})
	require.Equal(t, 1, tr.Len())
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].LossID)
}

func TestExpand_DrawingCodeIsNotUnknown(t *testing.T) {
	src := `\newcommand{\pt}{(0,0)}\begin{tikzpicture}\draw \pt -- (1,1); \node at (0,0) {x};\end{tikzpicture}`
	got, tr, _ := expand(t, src, Config{})
	assert.Zero(t, tr.Len())
	assert.Contains(t, got, `(0,0)-- (1,1);`)
	assert.NotContains(t, got, `\pt`)
}

func TestExpand_ArgMismatch(t *testing.T) {
	got, tr, _ := expand(t, `\newcommand{\f}[2]{(#1,#2)}{\f{a}}`, Config{})
	assert.Equal(t, `{(a,)}`, got)
	require.Equal(t, 1, tr.Len())
	rec, _ := tr.Get(1)
	assert.Equal(t, loss.MacroArgMismatch, rec.Kind)
	assert.Equal(t, `\f`, rec.Name)
}

func TestExpand_UndecidableConditional(t *testing.T) {
	got, tr, out := expand(t, `a\ifx\x\y yes\else no\fi b`, Config{})
	require.Equal(t, 1, tr.Len())
	rec, _ := tr.Get(1)
	assert.Equal(t, loss.UnresolvedConditional, rec.Kind)
	assert.Equal(t, `a\ifx\x\y yes\else no\fi b`, got)

	var found bool
	for _, tok := range out {
		if tok.Kind == latex.Verbatim && tok.Name == "if" {
			found = true
			assert.Equal(t, 1, tok.LossID)
		}
	}
	assert.True(t, found)
}

func TestExpand_DelimitedDefIsUnsupported(t *testing.T) {
	_, tr, _ := expand(t, `\def\foo#1.{x}`, Config{})
	require.Equal(t, 1, tr.Len())
	rec, _ := tr.Get(1)
	assert.Equal(t, loss.UnsupportedFeature, rec.Kind)
}

func TestExpand_Deterministic(t *testing.T) {
	src := `\newcommand{\v}[1]{\vec{#1}}\def\a{\b}\def\b{\a}$\v{x} + \nope$ \a`
	first, tr1, _ := expand(t, src, Config{MaxDepth: 10})
	for i := 0; i < 5; i++ {
		got, tr, _ := expand(t, src, Config{MaxDepth: 10})
		assert.Equal(t, first, got)
		assert.Equal(t, tr1.Records(), tr.Records())
	}
}

func TestTable(t *testing.T) {
	tbl := NewTable()
	tbl.Define(&Definition{Name: "a"})
	tbl.DefineEnv(&EnvDefinition{Name: "e"})
	tbl.NewIf("draft")

	_, ok := tbl.Lookup("a")
	assert.True(t, ok)
	_, ok = tbl.LookupEnv("e")
	assert.True(t, ok)
	v, ok := tbl.flag("ifdraft")
	assert.True(t, ok)
	assert.False(t, v)
	_, ok = tbl.flag("ifx")
	assert.False(t, ok)
	assert.Equal(t, 2, tbl.Len())
}
