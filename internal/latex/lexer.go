// Package latex tokenizes, parses and writes LaTeX. The parser is tolerant:
// it never fails, and anything it does not understand becomes a Command,
// Environment or Opaque node for later stages to account for.
package latex

import (
	"strings"
	"unicode/utf8"
)

// verbatimEnvs are environments whose body is not tokenized.
var verbatimEnvs = map[string]bool{
	"verbatim":   true,
	"verbatim*":  true,
	"Verbatim":   true,
	"lstlisting": true,
	"minted":     true,
	"comment":    true,
}

// Tokenize splits src into tokens.
func Tokenize(src string) []Token {
	lx := &lexer{src: src}
	lx.run()
	return lx.toks
}

type lexer struct {
	src  string
	pos  int
	toks []Token
}

func (lx *lexer) emit(kind Kind, text string, pos int) {
	lx.toks = append(lx.toks, Token{Kind: kind, Text: text, Pos: pos})
}

func (lx *lexer) run() {
	for lx.pos < len(lx.src) {
		start := lx.pos
		c := lx.src[lx.pos]
		switch c {
		case '\\':
			lx.command()
		case '%':
			lx.comment()
		case '{':
			lx.pos++
			lx.emit(BeginGroup, "{", start)
		case '}':
			lx.pos++
			lx.emit(EndGroup, "}", start)
		case '$':
			if strings.HasPrefix(lx.src[lx.pos:], "$$") {
				lx.pos += 2
				lx.emit(MathShift, "$$", start)
			} else {
				lx.pos++
				lx.emit(MathShift, "$", start)
			}
		case '&':
			lx.pos++
			lx.emit(AlignTab, "&", start)
		case '#':
			lx.pos++
			if lx.pos < len(lx.src) && lx.src[lx.pos] >= '1' && lx.src[lx.pos] <= '9' {
				lx.toks = append(lx.toks, Token{Kind: Param, Text: "#" + lx.src[lx.pos:lx.pos+1], Num: int(lx.src[lx.pos] - '0'), Pos: start})
				lx.pos++
			} else {
				lx.emit(Char, "#", start)
			}
		case '^':
			lx.pos++
			lx.emit(Superscript, "^", start)
		case '_':
			lx.pos++
			lx.emit(Subscript, "_", start)
		case '~':
			lx.pos++
			lx.emit(Active, "~", start)
		case ' ', '\t', '\r', '\n':
			lx.whitespace()
		default:
			r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
			lx.pos += size
			lx.emit(Char, string(r), start)
		}
	}
}

func (lx *lexer) whitespace() {
	start := lx.pos
	newlines := 0
	for lx.pos < len(lx.src) {
		switch lx.src[lx.pos] {
		case '\n':
			newlines++
		case ' ', '\t', '\r':
		default:
			goto done
		}
		lx.pos++
	}
done:
	if newlines >= 2 {
		lx.emit(ParBreak, "\n\n", start)
		return
	}
	lx.emit(Space, " ", start)
}

// comment skips to the end of the line and the next line's indentation.
func (lx *lexer) comment() {
	end := strings.IndexByte(lx.src[lx.pos:], '\n')
	if end < 0 {
		lx.pos = len(lx.src)
		return
	}
	lx.pos += end + 1
	for lx.pos < len(lx.src) && (lx.src[lx.pos] == ' ' || lx.src[lx.pos] == '\t') {
		lx.pos++
	}
}

func (lx *lexer) command() {
	start := lx.pos
	lx.pos++ // backslash
	if lx.pos >= len(lx.src) {
		lx.emit(Char, "\\", start)
		return
	}

	r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
	if !isLetter(r) {
		lx.pos += size
		name := string(r)
		if r == '\n' || r == '\t' || r == '\r' {
			name = " "
		}
		lx.emit(Command, name, start)
		return
	}

	nameStart := lx.pos
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if !isLetter(r) {
			break
		}
		lx.pos += size
	}
	name := lx.src[nameStart:lx.pos]

	switch name {
	case "verb":
		if lx.verb(start) {
			return
		}
	case "begin":
		if lx.verbatimEnv(start) {
			return
		}
	}

	lx.emit(Command, name, start)
	lx.skipSpacesAfterWord()
}

// skipSpacesAfterWord drops the blanks that follow a control word, including
// a single line break, but not a paragraph break.
func (lx *lexer) skipSpacesAfterWord() {
	p := lx.pos
	for p < len(lx.src) && (lx.src[p] == ' ' || lx.src[p] == '\t') {
		p++
	}
	if p < len(lx.src) && lx.src[p] == '\n' {
		q := p + 1
		for q < len(lx.src) && (lx.src[q] == ' ' || lx.src[q] == '\t' || lx.src[q] == '\r') {
			q++
		}
		if q < len(lx.src) && lx.src[q] == '\n' {
			lx.pos = p
			return
		}
		p = q
	}
	lx.pos = p
}

func (lx *lexer) verb(start int) bool {
	rest := lx.src[lx.pos:]
	if strings.HasPrefix(rest, "*") {
		rest = rest[1:]
	}
	if rest == "" {
		return false
	}
	delim, size := utf8.DecodeRuneInString(rest)
	if isLetter(delim) || delim == ' ' || delim == '\n' {
		return false
	}
	body := rest[size:]
	end := strings.IndexRune(body, delim)
	if end < 0 || strings.Contains(body[:end], "\n") {
		return false
	}
	lx.toks = append(lx.toks, Token{Kind: Verbatim, Name: "verb", Text: body[:end], Opt: string(delim), Pos: start})
	lx.pos = len(lx.src) - len(body) + end + size
	return true
}

func (lx *lexer) verbatimEnv(start int) bool {
	rest := lx.src[lx.pos:]
	if !strings.HasPrefix(rest, "{") {
		return false
	}
	close := strings.IndexByte(rest, '}')
	if close < 0 {
		return false
	}
	env := rest[1:close]
	if !verbatimEnvs[env] {
		return false
	}
	endTag := `\end{` + env + `}`
	bodyStart := lx.pos + close + 1
	end := strings.Index(lx.src[bodyStart:], endTag)
	if end < 0 {
		return false
	}
	body := lx.src[bodyStart : bodyStart+end]

	opt := leadingArgs(body)
	body = body[len(opt):]
	body = strings.TrimPrefix(body, "\r")
	body = strings.TrimPrefix(body, "\n")

	lx.toks = append(lx.toks, Token{Kind: Verbatim, Name: env, Text: body, Opt: opt, Pos: start})
	lx.pos = bodyStart + end + len(endTag)
	return true
}

// leadingArgs returns the [..] and {..} groups that directly follow a
// verbatim \begin, such as lstlisting options or the minted language.
func leadingArgs(body string) string {
	i := 0
	for i < len(body) && (body[i] == '[' || body[i] == '{') {
		closer := byte(']')
		if body[i] == '{' {
			closer = '}'
		}
		j := strings.IndexByte(body[i:], closer)
		if j < 0 || strings.Contains(body[i:i+j], "\n") {
			break
		}
		i += j + 1
	}
	return body[:i]
}

// Position converts a byte offset to a 1-based line and column.
func Position(src string, pos int) (line, col int) {
	if pos < 0 || pos > len(src) {
		return 1, 1
	}
	line = 1 + strings.Count(src[:pos], "\n")
	col = pos - strings.LastIndexByte(src[:pos], '\n')
	return line, col
}
