package latex

import (
	"testing"
)

// kinds returns the token kinds as a compact string for comparison.
func kinds(toks []Token) string {
	names := map[Kind]string{
		Char: "c", Command: "\\", BeginGroup: "{", EndGroup: "}", MathShift: "$",
		AlignTab: "&", Param: "#", Superscript: "^", Subscript: "_", Active: "~",
		Space: " ", ParBreak: "P", Verbatim: "V",
	}
	s := ""
	for _, t := range toks {
		s += names[t.Kind]
	}
	return s
}

func TestTokenize_Kinds(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"plain text", "ab", "cc"},
		{"command skips space", `\alpha x`, `\c`},
		{"control symbol keeps space", `\, x`, `\ c`},
		{"group", "{a}", "{c}"},
		{"inline math", "$x^2_i$", "$c^c_c$"},
		{"display dollars", "$$x$$", "$c$"},
		{"align tab", "a&b", "c&c"},
		{"param", "#1", "#"},
		{"bare hash", "# ", "c "},
		{"tilde", "a~b", "c~c"},
		{"paragraph break", "a\n\nb", "cPc"},
		{"single newline is space", "a\nb", "c c"},
		{"comment dropped", "a% note\n  b", "cc"},
		{"comment at eof", "a%", "c"},
		{"trailing backslash", `a\`, "cc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kinds(Tokenize(tt.src))
			if got != tt.want {
				t.Errorf("Tokenize(%q) kinds = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestTokenize_CommandNames(t *testing.T) {
	toks := Tokenize(`\frac{1}{2}\\\%`)
	if !toks[0].Is("frac") {
		t.Fatalf("expected \\frac, got %+v", toks[0])
	}
	last := toks[len(toks)-1]
	if !last.Is("%") {
		t.Errorf("expected \\%%, got %+v", last)
	}
	if !toks[len(toks)-2].Is(`\`) {
		t.Errorf("expected \\\\, got %+v", toks[len(toks)-2])
	}
}

func TestTokenize_ParBreakAfterCommand(t *testing.T) {
	toks := Tokenize("\\par\n\nnext")
	if got := kinds(toks); got != `\Pcccc` {
		t.Errorf("kinds = %q", got)
	}
}

func TestTokenize_Verbatim(t *testing.T) {
	src := "before \\begin{lstlisting}[language=Go]\nx := {1}\n\\end{lstlisting} after"
	toks := Tokenize(src)

	var v *Token
	for i := range toks {
		if toks[i].Kind == Verbatim {
			v = &toks[i]
		}
	}
	if v == nil {
		t.Fatal("no verbatim token")
	}
	if v.Name != "lstlisting" {
		t.Errorf("Name = %q", v.Name)
	}
	if v.Opt != "[language=Go]" {
		t.Errorf("Opt = %q", v.Opt)
	}
	if v.Text != "x := {1}\n" {
		t.Errorf("Text = %q", v.Text)
	}
}

func TestTokenize_Verb(t *testing.T) {
	toks := Tokenize(`\verb|a{b}|c`)
	if toks[0].Kind != Verbatim || toks[0].Text != "a{b}" || toks[0].Opt != "|" {
		t.Fatalf("unexpected token %+v", toks[0])
	}
	if !toks[1].IsChar("c") {
		t.Errorf("expected c after verb, got %+v", toks[1])
	}
}

func TestTokenize_UnterminatedVerbatim(t *testing.T) {
	toks := Tokenize(`\begin{verbatim} x`)
	if !toks[0].Is("begin") {
		t.Errorf("expected plain \\begin, got %+v", toks[0])
	}
}

func TestDetokenize_RoundTrip(t *testing.T) {
	tests := []string{
		`\frac{1}{2}+\alpha`,
		`\newcommand{\R}[1]{\mathbb{#1}}`,
		`a & b \\ c`,
		`\verb|x|`,
		"\\begin{verbatim}\nraw\n\\end{verbatim}",
	}
	for _, src := range tests {
		once := Detokenize(Tokenize(src))
		twice := Detokenize(Tokenize(once))
		if once != twice {
			t.Errorf("not stable: %q -> %q -> %q", src, once, twice)
		}
	}
}

func TestDetokenize_SeparatesWords(t *testing.T) {
	toks := []Token{{Kind: Command, Text: "alpha"}, {Kind: Char, Text: "x"}}
	if got := Detokenize(toks); got != `\alpha x` {
		t.Errorf("got %q", got)
	}
}

func TestPosition(t *testing.T) {
	src := "ab\ncd\nef"
	tests := []struct {
		pos       int
		line, col int
	}{
		{0, 1, 1},
		{1, 1, 2},
		{3, 2, 1},
		{7, 3, 2},
	}
	for _, tt := range tests {
		line, col := Position(src, tt.pos)
		if line != tt.line || col != tt.col {
			t.Errorf("Position(%d) = %d:%d, want %d:%d", tt.pos, line, col, tt.line, tt.col)
		}
	}
}
