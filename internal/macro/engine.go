package macro

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"texbridge/internal/latex"
	"texbridge/internal/logger"
	"texbridge/internal/loss"
	"texbridge/internal/symbols"
)

const (
	DefaultMaxDepth  = 64
	DefaultMaxTokens = 1 << 20
)

var (
	errDepth  = errors.New("expansion depth limit exceeded")
	errBudget = errors.New("expansion token budget exceeded")
)

// conditionals are TeX primitives whose branch cannot be chosen statically,
// apart from the ones decided by the engine.
var conditionals = map[string]bool{
	"if": true, "ifx": true, "ifnum": true, "ifdim": true, "ifodd": true, "ifcase": true,
	"ifcat": true, "ifvmode": true, "ifhmode": true, "ifinner": true, "ifdefined": true,
	"ifcsname": true, "ifeof": true, "ifvoid": true, "ifhbox": true, "ifvbox": true,
	"ifmmode": true, "iftrue": true, "iffalse": true,
}

// Config bounds expansion. Known reports names that are not macros but must
// not be reported as unknown; nil means symbols and parser built-ins.
type Config struct {
	MaxDepth  int
	MaxTokens int
	Known     func(name string) bool
}

// Engine expands macros for one run. It is not safe for concurrent use.
type Engine struct {
	table      *Table
	tracker    *loss.Tracker
	cfg        Config
	expansions int
}

// NewEngine returns an engine that records into tracker.
func NewEngine(table *Table, tracker *loss.Tracker, cfg Config) *Engine {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Known == nil {
		syms := symbols.Default()
		cfg.Known = func(name string) bool {
			return latex.IsStructural(name) || syms.KnownLaTeX(name)
		}
	}
	if table == nil {
		table = NewTable()
	}
	return &Engine{table: table, tracker: tracker, cfg: cfg}
}

// Table returns the engine's macro table.
func (e *Engine) Table() *Table { return e.table }

// Expand returns toks with every user macro expanded.
func (e *Engine) Expand(toks []latex.Token) []latex.Token {
	x := &expansion{e: e, r: newReader(toks)}
	out := x.run()
	logger.Debug("macro expansion finished",
		logger.Int("tokensIn", len(toks)),
		logger.Int("tokensOut", len(out)),
		logger.Int("definitions", e.table.Len()),
		logger.Int("expansions", e.expansions))
	return out
}

func (e *Engine) known(name string) bool {
	if _, ok := e.table.Lookup(name); ok {
		return true
	}
	return e.cfg.Known(name)
}

type pendingLoss struct {
	kind    loss.Kind
	name    string
	message string
	snippet string
	context string
}

// invocation is a macro call read from the input itself, with everything it
// expands to. Losses found while it runs stay pending until it completes, so
// an aborted invocation leaves no records behind but its own.
type invocation struct {
	name   string
	start  int
	argEnd int
	outLen int
	tokens int
	mode   modeTracker
}

type expansion struct {
	e       *Engine
	r       *reader
	out     []latex.Token
	mode    modeTracker
	inv     *invocation
	pending []pendingLoss
}

func (x *expansion) run() []latex.Token {
	for {
		if x.inv != nil && x.r.atBase() {
			x.commit()
		}
		t, depth, ok := x.r.next()
		if !ok {
			break
		}
		if t.Kind != latex.Command {
			x.emit(t)
			continue
		}
		if err := x.command(t, depth); err != nil {
			x.abort(err)
		}
	}
	if x.inv != nil {
		x.commit()
	}
	return x.out
}

func (x *expansion) emit(t latex.Token) {
	x.mode.observe(t)
	x.out = append(x.out, t)
}

// flag records a loss, deferring it while an invocation is in flight. The
// returned id is negative for deferred records.
func (x *expansion) flag(kind loss.Kind, name, message, snippet string) int {
	if x.inv == nil {
		return x.e.tracker.Record(kind, name, message, snippet, x.mode.context())
	}
	x.pending = append(x.pending, pendingLoss{kind, name, message, snippet, x.mode.context()})
	return -len(x.pending)
}

func (x *expansion) commit() {
	ids := make([]int, len(x.pending))
	for i, p := range x.pending {
		ids[i] = x.e.tracker.Record(p.kind, p.name, p.message, p.snippet, p.context)
	}
	for i := x.inv.outLen; i < len(x.out); i++ {
		if id := x.out[i].LossID; id < 0 {
			x.out[i].LossID = ids[-id-1]
		}
	}
	x.pending = x.pending[:0]
	x.inv = nil
}

// abort rolls back the in-flight invocation and emits it unexpanded.
func (x *expansion) abort(err error) {
	inv := x.inv
	if inv == nil {
		return
	}
	x.out = x.out[:inv.outLen]
	x.pending = x.pending[:0]
	x.mode = inv.mode
	x.inv = nil

	x.r.frames = x.r.frames[:1]
	base := x.r.base()
	src := append([]latex.Token(nil), base.toks[inv.start:inv.argEnd]...)
	base.pos = inv.argEnd

	limit := x.e.cfg.MaxDepth
	if errors.Is(err, errBudget) {
		limit = x.e.cfg.MaxTokens
	}
	id := x.e.tracker.Record(loss.MacroRecursionLimit, `\`+inv.name,
		fmt.Sprintf("%v (limit %d); invocation kept unexpanded", err, limit),
		latex.Detokenize(src), x.mode.context())
	logger.Debug("macro expansion aborted", logger.String("macro", inv.name), logger.Err(err))

	for i, t := range src {
		if i == 0 {
			t.LossID = id
		}
		x.emit(t)
	}
}

// begin starts tracking an invocation read from the input. start is the
// base position of its first token.
func (x *expansion) begin(depth int, name string, start int) {
	if depth == 0 && x.inv == nil {
		x.inv = &invocation{name: name, start: start, outLen: len(x.out), mode: x.mode.snapshot()}
	}
}

// push schedules toks for expansion one level below depth.
func (x *expansion) push(toks []latex.Token, depth int) error {
	if depth == 0 && x.inv != nil {
		x.inv.argEnd = x.r.base().pos
	}
	if depth+1 > x.e.cfg.MaxDepth {
		return errDepth
	}
	if x.inv != nil {
		x.inv.tokens += len(toks)
		if x.inv.tokens > x.e.cfg.MaxTokens {
			return errBudget
		}
	}
	x.e.expansions++
	x.r.push(toks, depth+1)
	return nil
}

func (x *expansion) command(t latex.Token, depth int) error {
	start := x.r.base().pos - 1
	name := t.Text

	switch name {
	case "newcommand", "renewcommand", "providecommand", "DeclareRobustCommand":
		x.defineCommand(t, name == "providecommand")
		return nil
	case "def", "gdef", "edef", "xdef":
		x.defineDef(t, name == "edef" || name == "xdef")
		return nil
	case "let":
		x.defineLet()
		return nil
	case "DeclareMathOperator":
		x.defineOperator(t)
		return nil
	case "newenvironment", "renewenvironment":
		x.defineEnvironment(t)
		return nil
	case "newif":
		x.defineIf()
		return nil
	case "begin":
		return x.beginEnv(t, depth, start)
	case "end":
		return x.endEnv(t, depth, start)
	}

	if s, ok := x.e.table.setters[name]; ok {
		x.e.table.flags[s.flag] = s.value
		return nil
	}
	if d, ok := x.e.table.Lookup(name); ok {
		x.begin(depth, name, start)
		args := x.readArgs(d.Name, d.Params, d.HasDefault, d.Default)
		return x.push(substitute(d.Body, args), depth)
	}
	if x.isConditional(name) {
		return x.conditional(t, depth, start)
	}

	if x.mode.raw == 0 && !x.e.known(name) {
		t.LossID = x.flag(loss.UnknownCommand, `\`+name, "no macro definition or symbol mapping", x.snippet(t))
	}
	x.emit(t)
	return nil
}

// readArgs binds macro arguments. Missing arguments are substituted as empty
// with a single loss.
func (x *expansion) readArgs(name string, params int, hasDefault bool, def []latex.Token) [][]latex.Token {
	args := make([][]latex.Token, params)
	i, missing := 0, 0
	if hasDefault && params > 0 {
		if opt, ok := x.r.optional(); ok {
			args[0] = opt
		} else {
			args[0] = def
		}
		i = 1
	}
	for ; i < params; i++ {
		a, ok := x.r.arg()
		if !ok {
			missing++
		}
		args[i] = a
	}
	if missing > 0 {
		x.flag(loss.MacroArgMismatch, `\`+name,
			fmt.Sprintf("expected %d arguments, %d missing; substituted empty", params, missing), `\`+name)
	}
	return args
}

// substitute replaces #n with the bound arguments. ## collapses to # so that
// nested definitions keep their own parameters.
func substitute(body []latex.Token, args [][]latex.Token) []latex.Token {
	out := make([]latex.Token, 0, len(body))
	for i := 0; i < len(body); i++ {
		t := body[i]
		if t.IsChar("#") && i+1 < len(body) && body[i+1].Kind == latex.Param {
			out = append(out, body[i+1])
			i++
			continue
		}
		if t.Kind == latex.Param && t.Num >= 1 && t.Num <= len(args) {
			out = append(out, args[t.Num-1]...)
			continue
		}
		out = append(out, t)
	}
	return out
}

func (x *expansion) isConditional(name string) bool {
	if conditionals[name] {
		return true
	}
	_, ok := x.e.table.flag(name)
	return ok
}

func (x *expansion) conditional(t latex.Token, depth, start int) error {
	var value, decided bool
	switch t.Text {
	case "ifmmode":
		value, decided = x.mode.math, true
	case "iftrue":
		value, decided = true, true
	case "iffalse":
		value, decided = false, true
	default:
		value, decided = x.e.table.flag(t.Text)
	}

	if decided {
		x.begin(depth, t.Text, start)
	}
	thenToks, elseToks, body := x.readConditional()

	if !decided {
		src := latex.Detokenize(append([]latex.Token{t}, body...))
		id := x.flag(loss.UnresolvedConditional, `\`+t.Text, "condition cannot be decided statically", src)
		x.emit(latex.Token{Kind: latex.Verbatim, Name: "if", Text: src, Pos: t.Pos, LossID: id})
		return nil
	}
	if value {
		return x.push(thenToks, depth)
	}
	return x.push(elseToks, depth)
}

// readConditional reads raw tokens through the matching \fi.
func (x *expansion) readConditional() (thenToks, elseToks, body []latex.Token) {
	nest := 0
	inElse := false
	for {
		t, _, ok := x.r.next()
		if !ok {
			return thenToks, elseToks, body
		}
		body = append(body, t)
		if t.Kind == latex.Command {
			switch {
			case x.isConditional(t.Text):
				nest++
			case t.Text == "fi":
				if nest == 0 {
					return thenToks, elseToks, body
				}
				nest--
			case t.Text == "else" && nest == 0:
				inElse = true
				continue
			}
		}
		if inElse {
			elseToks = append(elseToks, t)
		} else {
			thenToks = append(thenToks, t)
		}
	}
}

func (x *expansion) beginEnv(t latex.Token, depth, start int) error {
	nameToks, ok := x.r.arg()
	if !ok {
		x.emit(t)
		return nil
	}
	name := plainName(nameToks)
	if d, ok := x.e.table.LookupEnv(name); ok {
		x.begin(depth, "begin{"+name+"}", start)
		args := x.readArgs(name, d.Params, d.HasDefault, d.Default)
		return x.push(substitute(d.Begin, args), depth)
	}
	x.emitEnvTag(t, nameToks)
	x.mode.beginEnv(name)
	return nil
}

func (x *expansion) endEnv(t latex.Token, depth, start int) error {
	nameToks, ok := x.r.arg()
	if !ok {
		x.emit(t)
		return nil
	}
	name := plainName(nameToks)
	if d, ok := x.e.table.LookupEnv(name); ok {
		x.begin(depth, "end{"+name+"}", start)
		return x.push(d.End, depth)
	}
	x.emitEnvTag(t, nameToks)
	x.mode.endEnv(name)
	return nil
}

func (x *expansion) emitEnvTag(t latex.Token, name []latex.Token) {
	x.emit(t)
	x.emit(latex.Token{Kind: latex.BeginGroup, Text: "{", Pos: t.Pos})
	for _, n := range name {
		x.emit(n)
	}
	x.emit(latex.Token{Kind: latex.EndGroup, Text: "}", Pos: t.Pos})
}

func (x *expansion) defineCommand(t latex.Token, provide bool) {
	x.r.star()
	name, ok := x.readDefName()
	if !ok {
		x.malformed(t)
		return
	}
	d := &Definition{Name: name}
	if opt, ok := x.r.optional(); ok {
		d.Params = paramCount(opt)
	}
	if opt, ok := x.r.optional(); ok {
		d.HasDefault = true
		d.Default = opt
	}
	body, ok := x.r.arg()
	if !ok {
		x.malformed(t)
		return
	}
	d.Body = body
	if provide && x.e.known(name) {
		return
	}
	x.e.table.Define(d)
}

func (x *expansion) defineDef(t latex.Token, expand bool) {
	x.r.skipSpaces()
	cs, _, ok := x.r.next()
	if !ok || cs.Kind != latex.Command {
		x.malformed(t)
		return
	}
	var params []latex.Token
	for {
		p, ok := x.r.peek()
		if !ok {
			x.malformed(t)
			return
		}
		if p.Kind == latex.BeginGroup {
			break
		}
		x.r.next()
		params = append(params, p)
	}
	x.r.next()
	body, _ := x.r.balanced()

	n, undelimited := defParams(params)
	if !undelimited {
		src := []latex.Token{t, cs}
		src = append(src, params...)
		src = append(src, latex.Token{Kind: latex.BeginGroup, Text: "{"})
		src = append(src, body...)
		src = append(src, latex.Token{Kind: latex.EndGroup, Text: "}"})
		text := latex.Detokenize(src)
		id := x.flag(loss.UnsupportedFeature, `\`+cs.Text, "delimited macro parameters are not supported", text)
		x.emit(latex.Token{Kind: latex.Verbatim, Name: "def", Text: text, Pos: t.Pos, LossID: id})
		return
	}
	if expand {
		sub := &expansion{e: x.e, r: newReader(body), mode: x.mode.snapshot()}
		body = sub.run()
	}
	x.e.table.Define(&Definition{Name: cs.Text, Params: n, Body: body})
}

// defParams accepts only #1#2...#n.
func defParams(params []latex.Token) (int, bool) {
	for i, p := range params {
		if p.Kind != latex.Param || p.Num != i+1 {
			return 0, false
		}
	}
	return len(params), true
}

func (x *expansion) defineLet() {
	x.r.skipSpaces()
	a, _, ok := x.r.next()
	if !ok || a.Kind != latex.Command {
		return
	}
	x.r.skipSpaces()
	if p, ok := x.r.peek(); ok && p.IsChar("=") {
		x.r.next()
		if p, ok := x.r.peek(); ok && p.Kind == latex.Space {
			x.r.next()
		}
	}
	b, _, ok := x.r.next()
	if !ok {
		return
	}
	if b.Kind == latex.Command {
		if d, ok := x.e.table.Lookup(b.Text); ok {
			alias := *d
			alias.Name = a.Text
			x.e.table.Define(&alias)
			return
		}
	}
	x.e.table.Define(&Definition{Name: a.Text, Body: []latex.Token{b}})
}

func (x *expansion) defineOperator(t latex.Token) {
	star := x.r.star()
	name, ok := x.readDefName()
	if !ok {
		x.malformed(t)
		return
	}
	text, ok := x.r.arg()
	if !ok {
		x.malformed(t)
		return
	}
	body := []latex.Token{{Kind: latex.Command, Text: "operatorname", Pos: t.Pos}}
	if star {
		body = append(body, latex.Token{Kind: latex.Char, Text: "*", Pos: t.Pos})
	}
	body = append(body, latex.Token{Kind: latex.BeginGroup, Text: "{", Pos: t.Pos})
	body = append(body, text...)
	body = append(body, latex.Token{Kind: latex.EndGroup, Text: "}", Pos: t.Pos})
	x.e.table.Define(&Definition{Name: name, Body: body})
}

func (x *expansion) defineEnvironment(t latex.Token) {
	x.r.star()
	nameToks, ok := x.r.arg()
	if !ok {
		x.malformed(t)
		return
	}
	d := &EnvDefinition{Name: plainName(nameToks)}
	if opt, ok := x.r.optional(); ok {
		d.Params = paramCount(opt)
	}
	if opt, ok := x.r.optional(); ok {
		d.HasDefault = true
		d.Default = opt
	}
	begin, ok1 := x.r.arg()
	end, ok2 := x.r.arg()
	if !ok1 || !ok2 || d.Name == "" {
		x.malformed(t)
		return
	}
	d.Begin, d.End = begin, end
	x.e.table.DefineEnv(d)
}

func (x *expansion) defineIf() {
	x.r.skipSpaces()
	cs, _, ok := x.r.next()
	if ok && cs.Kind == latex.Command && strings.HasPrefix(cs.Text, "if") && len(cs.Text) > 2 {
		x.e.table.NewIf(cs.Text[2:])
	}
}

// readDefName reads \name or {\name}.
func (x *expansion) readDefName() (string, bool) {
	x.r.skipSpaces()
	t, _, ok := x.r.next()
	if !ok {
		return "", false
	}
	switch t.Kind {
	case latex.Command:
		return t.Text, true
	case latex.BeginGroup:
		inner, _ := x.r.balanced()
		for _, it := range inner {
			if it.Kind == latex.Command {
				return it.Text, true
			}
		}
	}
	return "", false
}

// malformed records a definition that could not be read.
func (x *expansion) malformed(t latex.Token) {
	id := x.flag(loss.UnsupportedFeature, `\`+t.Text, "malformed definition ignored", `\`+t.Text)
	x.emit(latex.Token{Kind: latex.Verbatim, Name: "def", Text: `\` + t.Text, Pos: t.Pos, LossID: id})
}

// snippet renders t with the brace group that directly follows it.
func (x *expansion) snippet(t latex.Token) string {
	src := []latex.Token{t}
	x.r.settle()
	if next, ok := x.r.peek(); ok && next.Kind == latex.BeginGroup {
		f := x.r.frames[len(x.r.frames)-1]
		depth := 0
		for p := f.pos; p < len(f.toks) && p-f.pos < 64; p++ {
			tok := f.toks[p]
			src = append(src, tok)
			if tok.Kind == latex.BeginGroup {
				depth++
			} else if tok.Kind == latex.EndGroup {
				depth--
				if depth == 0 {
					break
				}
			}
		}
	}
	return latex.Detokenize(src)
}

func plainName(toks []latex.Token) string {
	var sb strings.Builder
	for _, t := range toks {
		if t.Kind != latex.Space {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

func paramCount(toks []latex.Token) int {
	n, err := strconv.Atoi(strings.TrimSpace(latex.Detokenize(toks)))
	if err != nil || n < 0 {
		return 0
	}
	if n > 9 {
		n = 9
	}
	return n
}
