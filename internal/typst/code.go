package typst

import (
	"strconv"
	"strings"

	"texbridge/internal/ast"
)

// embedded reads a #-expression in markup, pos on the '#'. It returns nil
// when the '#' does not start code.
func (p *parser) embedded() ast.Node {
	start := p.pos
	p.pos++
	atLine := p.lineStart(start)

	var n ast.Node
	switch word := p.peekIdent(); word {
	case "let":
		p.pos += len(word)
		n = p.letBinding(start)
	case "set":
		p.pos += len(word)
		n = p.setRule(start)
	case "show":
		p.pos += len(word)
		n = p.showRule(start)
	case "import", "include":
		p.pos += len(word)
		p.lineRest()
		n = &ast.Interp{Keyword: word, Expr: &ast.BadExpr{Source: p.src[start:p.pos]}, Source: p.src[start:p.pos]}
	case "for":
		p.pos += len(word)
		n = p.forLoop(start)
	case "if":
		p.pos += len(word)
		n = p.conditional(start)
	case "while", "context", "return", "break", "continue":
		p.lineRest()
		n = &ast.Interp{Expr: &ast.CodeExpr{Source: p.src[start+1 : p.pos]}, Source: p.src[start:p.pos]}
	case "":
		switch p.peek() {
		case '(', '[', '{', '"':
		default:
			return nil
		}
		fallthrough
	default:
		x := p.postfix(p.primary(), start+1)
		n = &ast.Interp{Expr: x, Source: p.src[start:p.pos]}
	}
	if p.peek() == ';' {
		p.pos++
	}

	block := atLine && p.restBlank()
	switch n := n.(type) {
	case *ast.Interp:
		n.Block = block
	case *ast.ForLoop:
		n.Block = block
	case *ast.Conditional:
		n.Block = block
	}
	return n
}

func (p *parser) peekIdent() string {
	if !isIdentStart(p.peek()) {
		return ""
	}
	i := p.pos
	for i < len(p.src) && isIdentChar(p.src[i]) {
		i++
	}
	return p.src[p.pos:i]
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '-'
}

// ident reads an identifier. A hyphen continues it only before a letter.
func (p *parser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == '-' && !isIdentStart(p.peekAt(1)) {
			break
		}
		if !isIdentChar(c) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

// skipTrivia skips blanks and comments, and newlines inside parentheses.
func (p *parser) skipTrivia() {
	for !p.eof() {
		switch c := p.peek(); {
		case c == ' ' || c == '\t' || c == '\r':
			p.pos++
		case c == '\n' && p.nl > 0:
			p.pos++
		case p.hasPrefix("//") || p.hasPrefix("/*"):
			p.comment()
		default:
			return
		}
	}
}

func (p *parser) keyword(w string) bool {
	save := p.pos
	p.skipTrivia()
	if p.hasPrefix(w) && !isIdentChar(p.peekAt(len(w))) {
		p.pos += len(w)
		return true
	}
	p.pos = save
	return false
}

func (p *parser) operator(ops ...string) (string, bool) {
	save := p.pos
	p.skipTrivia()
	for _, op := range ops {
		if !p.hasPrefix(op) {
			continue
		}
		// "+=" and friends are assignments
		if len(op) == 1 && p.peekAt(1) == '=' {
			continue
		}
		p.pos += len(op)
		return op, true
	}
	p.pos = save
	return "", false
}

func (p *parser) letBinding(start int) ast.Node {
	p.skipTrivia()
	if p.peek() == '(' {
		// destructuring is outside the evaluated subset
		p.parenExpr()
		p.skipTrivia()
		if p.peek() == '=' {
			p.pos++
			p.expr()
		}
		return &ast.Interp{Expr: &ast.CodeExpr{Source: p.src[start+1 : p.pos]}, Source: p.src[start:p.pos]}
	}

	lb := &ast.LetBinding{Name: p.ident()}
	if p.peek() == '(' {
		lb.Params = []string{}
		p.pos++
		p.nl++
		for {
			p.skipTrivia()
			if p.eof() || p.peek() == ')' {
				break
			}
			if p.hasPrefix("..") {
				p.pos += 2
			}
			name := p.ident()
			if name == "" {
				p.pos++
				continue
			}
			lb.Params = append(lb.Params, name)
			p.skipTrivia()
			if p.peek() == ':' {
				p.pos++
				p.expr()
				p.skipTrivia()
			}
			if p.peek() == ',' {
				p.pos++
			}
		}
		p.nl--
		if p.peek() == ')' {
			p.pos++
		}
	}
	save := p.pos
	p.skipTrivia()
	if p.peek() == '=' && p.peekAt(1) != '=' {
		p.pos++
		lb.Value = p.expr()
	} else {
		p.pos = save
		lb.Value = &ast.NoneLit{}
	}
	lb.Source = p.src[start:p.pos]
	return lb
}

func (p *parser) setRule(start int) ast.Node {
	p.skipTrivia()
	at := p.pos
	target := p.postfix(p.primary(), at)
	if p.keyword("if") {
		p.expr()
		return &ast.Interp{Keyword: "set", Expr: &ast.BadExpr{Source: p.src[start:p.pos]}, Source: p.src[start:p.pos]}
	}
	return &ast.Interp{Keyword: "set", Expr: target, Source: p.src[start:p.pos]}
}

// showRule keeps the transform of an everything rule, #show: f, as an
// expression. Rules with a selector stay source text.
func (p *parser) showRule(start int) ast.Node {
	save := p.pos
	p.skipTrivia()
	if p.peek() == ':' {
		p.pos++
		p.skipTrivia()
		at := p.pos
		x := p.postfix(p.primary(), at)
		return &ast.Interp{Keyword: "show", Expr: x, Source: p.src[start:p.pos]}
	}
	p.pos = save
	p.lineRest()
	return &ast.Interp{Keyword: "show", Expr: &ast.BadExpr{Source: p.src[start:p.pos]}, Source: p.src[start:p.pos]}
}

func (p *parser) forLoop(start int) ast.Node {
	fl := &ast.ForLoop{}
	p.skipTrivia()
	if p.peek() == '(' {
		p.pos++
		for !p.eof() && p.peek() != ')' {
			p.skipTrivia()
			if name := p.ident(); name != "" {
				fl.Pattern = append(fl.Pattern, name)
			} else if p.peek() != ')' {
				p.pos++
			}
			p.skipTrivia()
			if p.peek() == ',' {
				p.pos++
			}
		}
		p.pos++
	} else if name := p.ident(); name != "" {
		fl.Pattern = []string{name}
	}
	if !p.keyword("in") {
		fl.Iter = &ast.BadExpr{Source: p.src[start:p.pos]}
	} else {
		fl.Iter = p.expr()
	}
	fl.Body = p.body()
	fl.Source = p.src[start:p.pos]
	return fl
}

func (p *parser) conditional(start int) ast.Node {
	c := &ast.Conditional{}
	for {
		cond := p.expr()
		c.Branches = append(c.Branches, ast.Branch{Cond: cond, Body: p.body()})
		if !p.keyword("else") {
			break
		}
		if p.keyword("if") {
			continue
		}
		c.Else = p.body()
		break
	}
	c.Source = p.src[start:p.pos]
	return c
}

// body reads the [content] or {code} body of a loop or conditional.
func (p *parser) body() ast.Expr {
	p.skipTrivia()
	switch p.peek() {
	case '[':
		return p.contentBlock()
	case '{':
		return p.codeBlock()
	}
	return &ast.BadExpr{}
}

// ParseExpr reads one embedded expression as written after '#'.
func ParseExpr(src string) ast.Expr {
	p := &parser{src: src}
	return p.postfix(p.primary(), 0)
}

// expr reads a full code expression.
func (p *parser) expr() ast.Expr { return p.orExpr() }

func (p *parser) orExpr() ast.Expr {
	x := p.andExpr()
	for p.keyword("or") {
		x = &ast.BinaryExpr{Op: "or", Left: x, Right: p.andExpr()}
	}
	return x
}

func (p *parser) andExpr() ast.Expr {
	x := p.notExpr()
	for p.keyword("and") {
		x = &ast.BinaryExpr{Op: "and", Left: x, Right: p.notExpr()}
	}
	return x
}

func (p *parser) notExpr() ast.Expr {
	if p.keyword("not") {
		return &ast.UnaryExpr{Op: "not", X: p.notExpr()}
	}
	return p.cmpExpr()
}

func (p *parser) cmpExpr() ast.Expr {
	x := p.addExpr()
	for {
		if op, ok := p.operator("==", "!=", "<=", ">=", "<", ">"); ok {
			x = &ast.BinaryExpr{Op: op, Left: x, Right: p.addExpr()}
			continue
		}
		if p.keyword("in") {
			x = &ast.BinaryExpr{Op: "in", Left: x, Right: p.addExpr()}
			continue
		}
		save := p.pos
		if p.keyword("not") && p.keyword("in") {
			x = &ast.BinaryExpr{Op: "not in", Left: x, Right: p.addExpr()}
			continue
		}
		p.pos = save
		return x
	}
}

func (p *parser) addExpr() ast.Expr {
	x := p.mulExpr()
	for {
		op, ok := p.operator("+", "-")
		if !ok {
			return x
		}
		x = &ast.BinaryExpr{Op: op, Left: x, Right: p.mulExpr()}
	}
}

func (p *parser) mulExpr() ast.Expr {
	x := p.unary()
	for {
		op, ok := p.operator("*", "/", "%")
		if !ok {
			return x
		}
		x = &ast.BinaryExpr{Op: op, Left: x, Right: p.unary()}
	}
}

func (p *parser) unary() ast.Expr {
	if op, ok := p.operator("-", "+"); ok {
		return &ast.UnaryExpr{Op: op, X: p.unary()}
	}
	p.skipTrivia()
	start := p.pos
	return p.postfix(p.primary(), start)
}

// postfix applies calls, trailing content blocks and field access. Each
// must directly follow the expression.
func (p *parser) postfix(x ast.Expr, start int) ast.Expr {
	for !p.eof() {
		switch c := p.peek(); {
		case c == '(':
			args := p.args()
			x = &ast.CallExpr{Callee: x, Args: args, Source: p.src[start:p.pos]}
		case c == '[':
			block := p.contentBlock()
			if call, ok := x.(*ast.CallExpr); ok {
				call.Args = append(call.Args, ast.Arg{Value: block})
				call.Source = p.src[start:p.pos]
			} else {
				x = &ast.CallExpr{Callee: x, Args: []ast.Arg{{Value: block}}, Source: p.src[start:p.pos]}
			}
		case c == '.' && isIdentStart(p.peekAt(1)):
			p.pos++
			x = &ast.FieldExpr{X: x, Field: p.ident()}
		default:
			return x
		}
	}
	return x
}

func (p *parser) primary() ast.Expr {
	start := p.pos
	c := p.peek()
	switch {
	case c == '(':
		x := p.parenExpr()
		if params, ok := closureParams(x); ok && p.arrowAhead() {
			p.expr()
			return &ast.ClosureExpr{Params: params, Source: p.src[start:p.pos]}
		}
		return x
	case c == '[':
		return p.contentBlock()
	case c == '{':
		return p.codeBlock()
	case c == '"':
		return &ast.StringLit{Value: p.stringLit()}
	case c >= '0' && c <= '9' || c == '.' && p.peekAt(1) >= '0' && p.peekAt(1) <= '9':
		return p.number()
	case c == '.' && p.peekAt(1) == '.':
		p.pos += 2
		x := p.unary()
		return &ast.SpreadExpr{X: x, Source: p.src[start:p.pos]}
	case c == '<':
		if key, ok := p.label(); ok {
			return &ast.LabelExpr{Key: key}
		}
	case c == '$':
		m := p.math()
		return &ast.ContentExpr{Nodes: []ast.Node{m}, Source: p.src[start:p.pos]}
	case isIdentStart(c):
		name := p.ident()
		if p.arrowAhead() {
			p.expr()
			return &ast.ClosureExpr{Params: []string{name}, Source: p.src[start:p.pos]}
		}
		switch name {
		case "none":
			return &ast.NoneLit{}
		case "true":
			return &ast.BoolLit{Value: true}
		case "false":
			return &ast.BoolLit{Value: false}
		}
		return &ast.Ident{Name: name}
	}
	if !p.eof() {
		p.pos++
	}
	return &ast.BadExpr{Source: p.src[start:p.pos]}
}

// arrowAhead consumes "=>" when it follows.
func (p *parser) arrowAhead() bool {
	save := p.pos
	p.skipTrivia()
	if p.hasPrefix("=>") {
		p.pos += 2
		return true
	}
	p.pos = save
	return false
}

func closureParams(x ast.Expr) ([]string, bool) {
	switch x := x.(type) {
	case *ast.Ident:
		return []string{x.Name}, true
	case *ast.ArrayExpr:
		var names []string
		for _, it := range x.Items {
			id, ok := it.(*ast.Ident)
			if !ok {
				return nil, false
			}
			names = append(names, id.Name)
		}
		return names, true
	}
	return nil, false
}

// args reads a parenthesized argument list.
func (p *parser) args() []ast.Arg {
	var out []ast.Arg
	p.pos++
	p.nl++
	defer func() { p.nl-- }()
	for {
		p.skipTrivia()
		if p.eof() {
			return out
		}
		if p.peek() == ')' {
			p.pos++
			return out
		}
		var arg ast.Arg
		save := p.pos
		if name := p.ident(); name != "" {
			p.skipTrivia()
			if p.peek() == ':' {
				p.pos++
				arg.Name = name
			} else {
				p.pos = save
			}
		}
		arg.Value = p.expr()
		out = append(out, arg)
		p.skipTrivia()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
		default:
			p.skipTo(",)")
			if p.peek() == ',' {
				p.pos++
			}
		}
	}
}

// parenExpr reads a parenthesized expression, an array or a dict.
func (p *parser) parenExpr() ast.Expr {
	p.pos++
	p.nl++
	defer func() { p.nl-- }()

	p.skipTrivia()
	if p.hasPrefix(":)") {
		p.pos += 2
		return &ast.DictExpr{}
	}
	var (
		items  []ast.Expr
		keys   []string
		named  bool
		commas int
	)
	for {
		p.skipTrivia()
		if p.eof() {
			break
		}
		if p.peek() == ')' {
			p.pos++
			break
		}
		key, hasKey := p.dictKey()
		v := p.expr()
		if hasKey {
			named = true
		}
		keys = append(keys, key)
		items = append(items, v)
		p.skipTrivia()
		switch p.peek() {
		case ',':
			p.pos++
			commas++
		case ')':
		default:
			p.skipTo(",)")
		}
	}
	if named {
		d := &ast.DictExpr{}
		for i, k := range keys {
			if k == "" {
				continue
			}
			d.Keys = append(d.Keys, k)
			d.Values = append(d.Values, items[i])
		}
		return d
	}
	if len(items) == 1 && commas == 0 {
		return items[0]
	}
	return &ast.ArrayExpr{Items: items}
}

// dictKey reads `name:` or `"name":` when it follows.
func (p *parser) dictKey() (string, bool) {
	save := p.pos
	var key string
	switch {
	case p.peek() == '"':
		key = p.stringLit()
	case isIdentStart(p.peek()):
		key = p.ident()
	default:
		return "", false
	}
	p.skipTrivia()
	if p.peek() == ':' {
		p.pos++
		return key, true
	}
	p.pos = save
	return "", false
}

// skipTo advances to the next top-level stop character.
func (p *parser) skipTo(stops string) {
	depth := 0
	for !p.eof() {
		c := p.peek()
		if depth == 0 && strings.IndexByte(stops, c) >= 0 {
			return
		}
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return
			}
		case '"':
			p.stringLit()
			continue
		}
		p.pos++
	}
}

// codeBlock reads {code}. A block holding exactly one expression yields
// that expression; anything else stays source.
func (p *parser) codeBlock() ast.Expr {
	start := p.pos
	p.pos++
	p.skipTo("}")
	if p.peek() == '}' {
		p.pos++
	}
	src := p.src[start:p.pos]
	inner := strings.TrimSuffix(strings.TrimPrefix(src, "{"), "}")
	sub := &parser{src: inner, nl: 1}
	sub.skipTrivia()
	if sub.eof() {
		return &ast.NoneLit{}
	}
	x := sub.expr()
	sub.skipTrivia()
	if sub.eof() && !hasBad(x) {
		return x
	}
	return &ast.CodeExpr{Source: src}
}

func hasBad(x ast.Expr) bool {
	switch x := x.(type) {
	case *ast.BadExpr:
		return true
	case *ast.BinaryExpr:
		return hasBad(x.Left) || hasBad(x.Right)
	case *ast.UnaryExpr:
		return hasBad(x.X)
	case *ast.FieldExpr:
		return hasBad(x.X)
	case *ast.CallExpr:
		if hasBad(x.Callee) {
			return true
		}
		for _, a := range x.Args {
			if hasBad(a.Value) {
				return true
			}
		}
	case *ast.ArrayExpr:
		for _, it := range x.Items {
			if hasBad(it) {
				return true
			}
		}
	case *ast.DictExpr:
		for _, v := range x.Values {
			if hasBad(v) {
				return true
			}
		}
	}
	return false
}

func (p *parser) stringLit() string {
	var sb strings.Builder
	p.pos++
	for !p.eof() && p.peek() != '"' {
		c := p.peek()
		if c != '\\' {
			sb.WriteByte(c)
			p.pos++
			continue
		}
		p.pos++
		switch e := p.peek(); e {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'u':
			if p.peekAt(1) == '{' {
				if end := strings.IndexByte(p.src[p.pos:], '}'); end > 0 {
					if r, ok := hexRune(p.src[p.pos+2 : p.pos+end]); ok {
						sb.WriteRune(r)
						p.pos += end + 1
						continue
					}
				}
			}
			sb.WriteByte(e)
		default:
			sb.WriteByte(e)
		}
		p.pos++
	}
	if p.peek() == '"' {
		p.pos++
	}
	return sb.String()
}

var units = []string{"pt", "mm", "cm", "in", "em", "fr", "deg", "rad", "%"}

func (p *parser) number() ast.Expr {
	start := p.pos
	isInt := true
	for !p.eof() && (p.peek() >= '0' && p.peek() <= '9') {
		p.pos++
	}
	if p.peek() == '.' && p.peekAt(1) >= '0' && p.peekAt(1) <= '9' {
		isInt = false
		p.pos++
		for !p.eof() && (p.peek() >= '0' && p.peek() <= '9') {
			p.pos++
		}
	}
	if (p.peek() == 'e' || p.peek() == 'E') && (p.peekAt(1) >= '0' && p.peekAt(1) <= '9' || (p.peekAt(1) == '-' || p.peekAt(1) == '+') && p.peekAt(2) >= '0' && p.peekAt(2) <= '9') {
		isInt = false
		p.pos += 2
		for !p.eof() && (p.peek() >= '0' && p.peek() <= '9') {
			p.pos++
		}
	}
	digits := p.src[start:p.pos]
	unit := ""
	for _, u := range units {
		if p.hasPrefix(u) && (u == "%" || !isIdentChar(p.peekAt(len(u)))) {
			unit = u
			p.pos += len(u)
			break
		}
	}
	v, _ := strconv.ParseFloat(digits, 64)
	return &ast.NumberLit{Value: v, Int: isInt && unit == "", Unit: unit, Text: p.src[start:p.pos]}
}
