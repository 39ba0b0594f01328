package latex

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind classifies a token.
type Kind int

const (
	Char       Kind = iota // one ordinary character
	Command                // control word or control symbol; Text is the name
	BeginGroup             // {
	EndGroup               // }
	MathShift              // $ or $$ (Text holds which)
	AlignTab               // &
	Param                  // #n inside a definition body; Num is n
	Superscript            // ^
	Subscript              // _
	Active                 // ~
	Space                  // whitespace within a paragraph
	ParBreak               // one or more blank lines
	Verbatim               // verbatim environment or \verb; Text is the body, Name the env
)

// Token is one lexical unit. Pos is the byte offset in the source. LossID is
// set by later stages when a loss has been recorded against this token.
type Token struct {
	Kind   Kind
	Text   string
	Name   string
	Opt    string
	Num    int
	Pos    int
	LossID int
}

// Is reports whether t is the control sequence \name.
func (t Token) Is(name string) bool {
	return t.Kind == Command && t.Text == name
}

// IsChar reports whether t is the ordinary character c.
func (t Token) IsChar(c string) bool {
	return t.Kind == Char && t.Text == c
}

func isLetter(r rune) bool {
	return r < utf8.RuneSelf && unicode.IsLetter(r)
}

// Detokenize renders tokens back to LaTeX source.
func Detokenize(toks []Token) string {
	var sb strings.Builder
	for i, t := range toks {
		switch t.Kind {
		case Command:
			sb.WriteByte('\\')
			sb.WriteString(t.Text)
			if isWord(t.Text) && i+1 < len(toks) {
				next := toks[i+1]
				if next.Kind == Char && startsWithLetter(next.Text) {
					sb.WriteByte(' ')
				}
			}
		case BeginGroup:
			sb.WriteByte('{')
		case EndGroup:
			sb.WriteByte('}')
		case MathShift:
			sb.WriteString(t.Text)
		case AlignTab:
			sb.WriteByte('&')
		case Param:
			sb.WriteByte('#')
			sb.WriteByte(byte('0' + t.Num))
		case Superscript:
			sb.WriteByte('^')
		case Subscript:
			sb.WriteByte('_')
		case Active:
			sb.WriteByte('~')
		case Space:
			sb.WriteString(t.Text)
		case ParBreak:
			sb.WriteString("\n\n")
		case Verbatim:
			src := verbatimSource(t)
			sb.WriteString(src)
			if endsWithWord(src) && i+1 < len(toks) && toks[i+1].Kind == Char && startsWithLetter(toks[i+1].Text) {
				sb.WriteByte(' ')
			}
		default:
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

func verbatimSource(t Token) string {
	switch t.Name {
	case "if", "def":
		return t.Text
	case "verb":
		delim := t.Opt
		if delim == "" {
			delim = "|"
		}
		return `\verb` + delim + t.Text + delim
	}
	return `\begin{` + t.Name + `}` + t.Opt + t.Text + `\end{` + t.Name + `}`
}

// endsWithWord reports whether s ends in a control word such as \fi.
func endsWithWord(s string) bool {
	i := len(s)
	for i > 0 && isLetter(rune(s[i-1])) {
		i--
	}
	return i < len(s) && i > 0 && s[i-1] == '\\'
}

func isWord(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return isLetter(r)
}

func startsWithLetter(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return isLetter(r)
}
