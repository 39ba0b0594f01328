// Package validator checks LaTeX and Typst text for syntax errors: unmatched
// delimiters, unclosed environments, strings, raw blocks and comments.
//
// It is the parse-error source for the pipeline. Source text with errors is
// rejected, and the repair gate counts errors on candidate output.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"texbridge/internal/logger"
	"texbridge/internal/types"
)

// verbatimEnvironments have bodies that are not LaTeX.
var verbatimEnvironments = []string{"verbatim", "verbatim*", "Verbatim", "lstlisting", "minted", "comment"}

// Validate checks text written in lang. An unknown language yields a single
// error of type "language".
func Validate(lang types.Lang, content string) *types.ValidationResult {
	logger.Debug("validating syntax", logger.String("lang", string(lang)), logger.Int("contentLength", len(content)))

	var errors []types.SyntaxError
	switch lang {
	case types.LangLaTeX:
		masked := maskLaTeX(content)
		errors = append(errors, checkUnmatchedBraces(masked)...)
		errors = append(errors, checkUnmatchedMathDelimiters(masked)...)
		errors = append(errors, checkUnmatchedEnvironments(masked)...)
	case types.LangTypst:
		errors = checkTypst(content)
	default:
		errors = append(errors, types.SyntaxError{Line: 1, Column: 1, Message: fmt.Sprintf("unknown language %q", lang), Type: "language"})
	}

	if len(errors) > 0 {
		logger.Debug("syntax errors found", logger.Int("errorCount", len(errors)))
		for _, err := range errors {
			logger.Debug("syntax error", logger.Int("line", err.Line), logger.Int("column", err.Column), logger.String("message", err.Message))
		}
	}

	if errors == nil {
		errors = []types.SyntaxError{}
	}
	return &types.ValidationResult{
		IsValid: len(errors) == 0,
		Errors:  errors,
	}
}

// CountErrors is Validate reduced to the number of errors.
func CountErrors(lang types.Lang, content string) int {
	return len(Validate(lang, content).Errors)
}

// =============================================================================
// LaTeX
// =============================================================================

// maskLaTeX blanks out comments, escaped characters and verbatim material.
// Newlines are kept so positions in the result match the input.
func maskLaTeX(content string) string {
	b := []byte(content)
	for i := 0; i < len(b); i++ {
		switch b[i] {
		case '%':
			for ; i < len(b) && b[i] != '\n'; i++ {
				b[i] = ' '
			}
		case '\\':
			if i+1 >= len(b) {
				continue
			}
			if strings.IndexByte(`{}$%&#_\ `, b[i+1]) >= 0 {
				b[i], b[i+1] = ' ', ' '
				i++
				continue
			}
			rest := string(b[i:])
			if strings.HasPrefix(rest, `\verb`) && len(rest) > 6 && !isLetter(rest[5]) {
				start := 5
				if rest[start] == '*' {
					start++
				}
				if start >= len(rest) {
					continue
				}
				delim := rest[start]
				end := strings.IndexByte(rest[start+1:], delim)
				nl := strings.IndexByte(rest[start+1:], '\n')
				if end < 0 || (nl >= 0 && nl < end) {
					continue
				}
				blank(b, i, i+start+2+end)
				i += start + 1 + end
				continue
			}
			for _, env := range verbatimEnvironments {
				open := `\begin{` + env + `}`
				if !strings.HasPrefix(rest, open) {
					continue
				}
				body := i + len(open)
				end := strings.Index(string(b[body:]), `\end{`+env+`}`)
				if end < 0 {
					break
				}
				blank(b, body, body+end)
				i = body + end - 1
				break
			}
		}
	}
	return string(b)
}

func blank(b []byte, from, to int) {
	for i := from; i < to && i < len(b); i++ {
		if b[i] != '\n' {
			b[i] = ' '
		}
	}
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// checkUnmatchedBraces checks for unmatched curly braces { }.
func checkUnmatchedBraces(content string) []types.SyntaxError {
	var errors []types.SyntaxError
	var stack []int

	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '{':
			stack = append(stack, i)
		case '}':
			if len(stack) == 0 {
				line, col := getLineAndColumn(content, i)
				errors = append(errors, types.SyntaxError{
					Line:    line,
					Column:  col,
					Message: "unmatched closing brace '}'",
					Type:    "brace",
				})
				continue
			}
			stack = stack[:len(stack)-1]
		}
	}

	for _, pos := range stack {
		line, col := getLineAndColumn(content, pos)
		errors = append(errors, types.SyntaxError{
			Line:    line,
			Column:  col,
			Message: "unmatched opening brace '{'",
			Type:    "brace",
		})
	}
	return errors
}

// checkUnmatchedMathDelimiters pairs $, $$, \( \) and \[ \] in one pass.
// Math delimiters do not nest, so a delimiter seen while math is open
// must close it.
func checkUnmatchedMathDelimiters(content string) []types.SyntaxError {
	var errors []types.SyntaxError
	open := ""
	openAt := 0

	fail := func(pos int, msg string) {
		line, col := getLineAndColumn(content, pos)
		errors = append(errors, types.SyntaxError{Line: line, Column: col, Message: msg, Type: "math"})
	}

	for i := 0; i < len(content); i++ {
		var tok string
		switch {
		case strings.HasPrefix(content[i:], "$$"):
			tok = "$$"
		case content[i] == '$':
			tok = "$"
		case strings.HasPrefix(content[i:], `\(`), strings.HasPrefix(content[i:], `\)`),
			strings.HasPrefix(content[i:], `\[`), strings.HasPrefix(content[i:], `\]`):
			tok = content[i : i+2]
		case content[i] == '\\':
			// skip the command name so \\[ style sequences stay intact
			i++
			continue
		default:
			continue
		}

		switch {
		case open == "" && (tok == `\)` || tok == `\]`):
			fail(i, fmt.Sprintf("unmatched closing math delimiter '%s'", tok))
		case open == "":
			open, openAt = tok, i
		case closes(open, tok):
			open = ""
		default:
			fail(i, fmt.Sprintf("math delimiter '%s' inside math opened with '%s'", tok, open))
		}
		i += len(tok) - 1
	}

	if open != "" {
		kind := "inline"
		if open == "$$" || open == `\[` {
			kind = "display"
		}
		fail(openAt, fmt.Sprintf("unmatched %s math delimiter '%s'", kind, open))
	}
	return errors
}

func closes(open, tok string) bool {
	switch open {
	case `\(`:
		return tok == `\)`
	case `\[`:
		return tok == `\]`
	}
	return open == tok
}

var envPattern = regexp.MustCompile(`\\(begin|end)\{([^}]+)\}`)

// checkUnmatchedEnvironments checks for unmatched \begin{} and \end{} pairs.
func checkUnmatchedEnvironments(content string) []types.SyntaxError {
	var errors []types.SyntaxError

	type envInfo struct {
		name string
		pos  int
	}
	var stack []envInfo

	for _, m := range envPattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[4]:m[5]]
		if content[m[2]:m[3]] == "begin" {
			stack = append(stack, envInfo{name: name, pos: m[0]})
			continue
		}

		found := false
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].name == name {
				// everything opened after the match is left unclosed
				for _, env := range stack[i+1:] {
					errors = append(errors, unclosedEnvironment(content, env.name, env.pos))
				}
				stack = stack[:i]
				found = true
				break
			}
		}
		if !found {
			line, col := getLineAndColumn(content, m[0])
			errors = append(errors, types.SyntaxError{
				Line:    line,
				Column:  col,
				Message: fmt.Sprintf("unmatched \\end{%s} without corresponding \\begin{%s}", name, name),
				Type:    "environment",
			})
		}
	}

	for _, env := range stack {
		errors = append(errors, unclosedEnvironment(content, env.name, env.pos))
	}
	return errors
}

func unclosedEnvironment(content, name string, pos int) types.SyntaxError {
	line, col := getLineAndColumn(content, pos)
	return types.SyntaxError{
		Line:    line,
		Column:  col,
		Message: fmt.Sprintf("unmatched \\begin{%s} without corresponding \\end{%s}", name, name),
		Type:    "environment",
	}
}

// =============================================================================
// Typst
// =============================================================================

type frame struct {
	ch  byte
	pos int
}

var typstClosers = map[byte]byte{')': '(', ']': '[', '}': '{'}

// checkTypst walks the three Typst modes. Markup only balances content
// brackets, code balances all brackets, math only tracks its closing $.
func checkTypst(content string) []types.SyntaxError {
	var errors []types.SyntaxError
	var stack []frame

	fail := func(pos int, typ, msg string) {
		line, col := getLineAndColumn(content, pos)
		errors = append(errors, types.SyntaxError{Line: line, Column: col, Message: msg, Type: typ})
	}
	mode := func() byte {
		if len(stack) == 0 {
			return '['
		}
		return stack[len(stack)-1].ch
	}

	for i := 0; i < len(content); i++ {
		c := content[i]
		m := mode()
		code := m == '{' || m == '('

		switch {
		case c == '/' && strings.HasPrefix(content[i:], "//") && !(m == '[' && i > 0 && content[i-1] == ':'):
			for i < len(content) && content[i] != '\n' {
				i++
			}
			continue
		case c == '/' && strings.HasPrefix(content[i:], "/*"):
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				fail(i, "comment", "unclosed block comment")
				return errors
			}
			i += end + 3
			continue
		case c == '`' && m != '$':
			n := 0
			for i+n < len(content) && content[i+n] == '`' {
				n++
			}
			if n == 2 {
				i++
				continue
			}
			end := strings.Index(content[i+n:], strings.Repeat("`", n))
			if end < 0 {
				fail(i, "raw", "unclosed raw text")
				return errors
			}
			i += n + end + n - 1
			continue
		case c == '"' && m != '[':
			end, ok := stringEnd(content, i+1)
			if !ok {
				fail(i, "string", "unclosed string")
				return errors
			}
			i = end
			continue
		case c == '\\' && !code:
			i++
			continue
		case c == '$':
			if m == '$' {
				stack = stack[:len(stack)-1]
			} else {
				stack = append(stack, frame{ch: '$', pos: i})
			}
			continue
		case c == '#' && !code:
			j := i + 1
			for j < len(content) && isIdent(content[j]) {
				j++
			}
			if j < len(content) && strings.IndexByte("([{", content[j]) >= 0 {
				stack = append(stack, frame{ch: content[j], pos: j})
				i = j
			}
			continue
		}

		switch {
		case c == '[' && m != '$', (c == '(' || c == '{') && code:
			stack = append(stack, frame{ch: c, pos: i})
		case c == ']' && m != '$', (c == ')' || c == '}') && code:
			if len(stack) > 0 && m == typstClosers[c] {
				stack = stack[:len(stack)-1]
				continue
			}
			fail(i, "bracket", fmt.Sprintf("unmatched closing delimiter '%c'", c))
		}
	}

	for _, f := range stack {
		if f.ch == '$' {
			fail(f.pos, "math", "unclosed math delimiter '$'")
			continue
		}
		fail(f.pos, "bracket", fmt.Sprintf("unclosed delimiter '%c'", f.ch))
	}
	return errors
}

// stringEnd returns the index of the closing quote of a string starting at
// from.
func stringEnd(content string, from int) (int, bool) {
	for i := from; i < len(content); i++ {
		switch content[i] {
		case '\\':
			i++
		case '"':
			return i, true
		case '\n':
			return 0, false
		}
	}
	return 0, false
}

func isIdent(c byte) bool {
	return isLetter(c) || c >= '0' && c <= '9' || c == '_' || c == '-' || c == '.'
}

// =============================================================================
// Utility Functions
// =============================================================================

// getLineAndColumn converts a byte position to line and column numbers.
func getLineAndColumn(content string, pos int) (int, int) {
	if pos < 0 || pos > len(content) {
		return 1, 1
	}

	line := 1
	lastNewline := -1
	for i := 0; i < pos; i++ {
		if content[i] == '\n' {
			line++
			lastNewline = i
		}
	}
	return line, pos - lastNewline
}
