package eval

import (
	"math"
	"strings"

	"texbridge/internal/ast"
	"texbridge/internal/types"
)

// Lengths, ratios and angles are kept as their source text. Builders read
// them back; everywhere else they are unresolved values.
const reasonLength = "length with unit"

// cetzCanvas is drawn by the graphics layer rather than evaluated.
const cetzCanvas = "cetz.canvas"

// Args is an evaluated argument list.
type Args struct {
	Pos    []Value
	names  []string
	named  map[string]Value
	Source string
}

func (a *Args) setNamed(name string, v Value) {
	if a.named == nil {
		a.named = make(map[string]Value)
	}
	if _, ok := a.named[name]; !ok {
		a.names = append(a.names, name)
	}
	a.named[name] = v
}

// Named returns a named argument.
func (a *Args) Named(name string) (Value, bool) {
	v, ok := a.named[name]
	return v, ok
}

// Names lists named arguments in source order.
func (a *Args) Names() []string { return append([]string(nil), a.names...) }

func (a *Args) positional(i int) (Value, bool) {
	if i >= 0 && i < len(a.Pos) {
		return a.Pos[i], true
	}
	return nil, false
}

func (e *Evaluator) eval(x ast.Expr) Value {
	switch x := x.(type) {
	case nil:
		return None{}
	case *ast.NoneLit:
		return None{}
	case *ast.BoolLit:
		return Bool(x.Value)
	case *ast.StringLit:
		return String(x.Value)
	case *ast.NumberLit:
		if x.Unit != "" {
			return &Unresolved{Kind: OpaqueValue, Source: x.Text, Reason: reasonLength}
		}
		return Number{F: x.Value, Int: x.Int}
	case *ast.LabelExpr:
		return Label(x.Key)
	case *ast.Ident:
		if v, ok := e.scope.Lookup(x.Name); ok {
			return v
		}
		return builtinValue(x.Name)
	case *ast.ArrayExpr:
		var arr Array
		for _, it := range x.Items {
			if sp, ok := it.(*ast.SpreadExpr); ok {
				return &Unresolved{Kind: OpaqueSpread, Source: sp.Source, Reason: "spread"}
			}
			arr = append(arr, e.eval(it))
		}
		return arr
	case *ast.DictExpr:
		d := NewDict()
		for i, k := range x.Keys {
			d.Set(k, e.eval(x.Values[i]))
		}
		return d
	case *ast.BinaryExpr:
		return e.binary(x)
	case *ast.UnaryExpr:
		return e.unary(x)
	case *ast.FieldExpr:
		return e.field(x)
	case *ast.CallExpr:
		return e.call(x)
	case *ast.ContentExpr:
		return Content(e.block(x.Nodes))
	case *ast.CodeExpr:
		return &Unresolved{Kind: OpaqueCode, Source: x.Source, Reason: "code block"}
	case *ast.ClosureExpr:
		return &Unresolved{Kind: OpaqueClosure, Source: x.Source, Reason: "closure"}
	case *ast.SpreadExpr:
		return &Unresolved{Kind: OpaqueSpread, Source: x.Source, Reason: "spread"}
	case *ast.BadExpr:
		return &Unresolved{Kind: OpaqueValue, Source: x.Source, Reason: "unreadable expression"}
	}
	return &Unresolved{Kind: OpaqueValue, Reason: "unsupported expression"}
}

// Symbol is a built-in keyword value such as an alignment or auto.
type Symbol string

func (Symbol) typeName() string { return "symbol" }

var symbols = map[string]bool{
	"auto": true, "left": true, "right": true, "center": true, "start": true,
	"end": true, "top": true, "bottom": true, "horizon": true,
}

// builtinValue resolves a free identifier. Element functions resolve to
// themselves so they can be passed around and called later.
func builtinValue(name string) Value {
	if symbols[name] {
		return Symbol(name)
	}
	if _, ok := builders[name]; ok {
		return &Element{Name: name}
	}
	return &Unresolved{Kind: OpaqueValue, Source: name, Reason: "unknown name " + name}
}

func (e *Evaluator) binary(x *ast.BinaryExpr) Value {
	l := e.eval(x.Left)
	switch x.Op {
	case "and", "or":
		lb, ok := l.(Bool)
		if !ok {
			return e.undecided(x, l, nil)
		}
		if x.Op == "and" && !bool(lb) || x.Op == "or" && bool(lb) {
			return lb
		}
		r := e.eval(x.Right)
		if _, ok := r.(Bool); !ok {
			return e.undecided(x, l, r)
		}
		return r
	}
	r := e.eval(x.Right)
	if u, ok := unresolved(l, r); ok {
		return &Unresolved{Kind: u.Kind, Source: exprSource(x), Reason: u.Reason}
	}

	switch x.Op {
	case "==":
		return Bool(Equal(l, r))
	case "!=":
		return Bool(!Equal(l, r))
	case "in":
		return contains(r, l, exprSource(x))
	case "not in":
		v := contains(r, l, exprSource(x))
		if b, ok := v.(Bool); ok {
			return !b
		}
		return v
	case "<", "<=", ">", ">=":
		return compare(x.Op, l, r, exprSource(x))
	}
	return arith(x.Op, l, r, exprSource(x))
}

func (e *Evaluator) undecided(x *ast.BinaryExpr, l, r Value) Value {
	if u, ok := unresolved(l, r); ok {
		return &Unresolved{Kind: u.Kind, Source: exprSource(x), Reason: u.Reason}
	}
	return &Unresolved{Kind: OpaqueValue, Source: exprSource(x), Reason: "operand of " + x.Op + " is not a bool"}
}

func contains(coll, item Value, src string) Value {
	switch c := coll.(type) {
	case Range:
		n, ok := item.(Number)
		if !ok || n.F != math.Trunc(n.F) {
			return Bool(false)
		}
		off := int64(n.F) - c.Start
		if off%c.Step != 0 {
			return Bool(false)
		}
		i := off / c.Step
		return Bool(i >= 0 && i < int64(c.Len()))
	case Array:
		for _, it := range c {
			if Equal(it, item) {
				return Bool(true)
			}
		}
		return Bool(false)
	case String:
		s, ok := item.(String)
		if !ok {
			break
		}
		return Bool(strings.Contains(string(c), string(s)))
	case *Dict:
		s, ok := item.(String)
		if !ok {
			break
		}
		_, found := c.Get(string(s))
		return Bool(found)
	}
	return &Unresolved{Kind: OpaqueValue, Source: src, Reason: "cannot search " + coll.typeName()}
}

func compare(op string, l, r Value, src string) Value {
	var cmp int
	switch l := l.(type) {
	case Number:
		rn, ok := r.(Number)
		if !ok {
			return &Unresolved{Kind: OpaqueValue, Source: src, Reason: "cannot compare number with " + r.typeName()}
		}
		switch {
		case l.F < rn.F:
			cmp = -1
		case l.F > rn.F:
			cmp = 1
		}
	case String:
		rs, ok := r.(String)
		if !ok {
			return &Unresolved{Kind: OpaqueValue, Source: src, Reason: "cannot compare string with " + r.typeName()}
		}
		cmp = strings.Compare(string(l), string(rs))
	default:
		return &Unresolved{Kind: OpaqueValue, Source: src, Reason: "cannot compare " + l.typeName()}
	}
	switch op {
	case "<":
		return Bool(cmp < 0)
	case "<=":
		return Bool(cmp <= 0)
	case ">":
		return Bool(cmp > 0)
	}
	return Bool(cmp >= 0)
}

func arith(op string, l, r Value, src string) Value {
	fail := func() Value {
		return &Unresolved{Kind: OpaqueValue, Source: src,
			Reason: "cannot apply " + op + " to " + l.typeName() + " and " + r.typeName()}
	}
	switch l := l.(type) {
	case Number:
		rn, ok := r.(Number)
		if !ok {
			if op == "*" {
				return repeat(r, l, fail)
			}
			return fail()
		}
		isInt := l.Int && rn.Int
		switch op {
		case "+":
			return Number{F: l.F + rn.F, Int: isInt}
		case "-":
			return Number{F: l.F - rn.F, Int: isInt}
		case "*":
			return Number{F: l.F * rn.F, Int: isInt}
		case "/":
			if rn.F == 0 {
				return &Unresolved{Kind: OpaqueValue, Source: src, Reason: "division by zero"}
			}
			q := l.F / rn.F
			return Number{F: q, Int: isInt && q == math.Trunc(q)}
		case "%":
			if rn.F == 0 {
				return &Unresolved{Kind: OpaqueValue, Source: src, Reason: "division by zero"}
			}
			return Number{F: math.Mod(l.F, rn.F), Int: isInt}
		}
	case String:
		switch r := r.(type) {
		case String:
			if op == "+" {
				return l + r
			}
		case Number:
			if op == "*" {
				return repeat(l, r, fail)
			}
		}
	case Array:
		switch r := r.(type) {
		case Array:
			if op == "+" {
				return append(append(Array{}, l...), r...)
			}
		case Number:
			if op == "*" {
				return repeat(l, r, fail)
			}
		}
	case Content:
		if op == "+" {
			switch r := r.(type) {
			case Content:
				return append(append(Content{}, l...), r...)
			case String:
				return append(append(Content{}, l...), &ast.Text{Value: string(r)})
			}
		}
	case *Dict:
		if rd, ok := r.(*Dict); ok && op == "+" {
			d := NewDict()
			for _, k := range l.Keys() {
				v, _ := l.Get(k)
				d.Set(k, v)
			}
			for _, k := range rd.Keys() {
				v, _ := rd.Get(k)
				d.Set(k, v)
			}
			return d
		}
	case Symbol:
		if rs, ok := r.(Symbol); ok && op == "+" {
			return Symbol(string(l) + " + " + string(rs))
		}
	case None:
		if op == "+" {
			return r
		}
	}
	if _, ok := r.(None); ok && op == "+" {
		return l
	}
	return fail()
}

func repeat(v Value, n Number, fail func() Value) Value {
	if !n.Int || n.F < 0 {
		return fail()
	}
	count := int(n.F)
	switch v := v.(type) {
	case String:
		return String(strings.Repeat(string(v), count))
	case Array:
		var out Array
		for i := 0; i < count; i++ {
			out = append(out, v...)
		}
		return out
	}
	return fail()
}

func (e *Evaluator) unary(x *ast.UnaryExpr) Value {
	v := e.eval(x.X)
	if u, ok := v.(*Unresolved); ok {
		return &Unresolved{Kind: u.Kind, Source: exprSource(x), Reason: u.Reason}
	}
	switch x.Op {
	case "not":
		if b, ok := v.(Bool); ok {
			return !b
		}
	case "-":
		if n, ok := v.(Number); ok {
			return Number{F: -n.F, Int: n.Int}
		}
	case "+":
		if n, ok := v.(Number); ok {
			return n
		}
	}
	return &Unresolved{Kind: OpaqueValue, Source: exprSource(x), Reason: "cannot apply " + x.Op + " to " + v.typeName()}
}

// builtinField reports whether x names a function of a built-in module,
// such as calc.pow or table.cell, that no binding shadows.
func (e *Evaluator) builtinField(x *ast.FieldExpr) bool {
	id, ok := x.X.(*ast.Ident)
	if !ok {
		return false
	}
	if _, bound := e.scope.Lookup(id.Name); bound {
		return false
	}
	if id.Name == "calc" {
		return true
	}
	_, ok = builders[id.Name+"."+x.Field]
	return ok
}

func (e *Evaluator) field(x *ast.FieldExpr) Value {
	if e.builtinField(x) {
		name := exprSource(x)
		if _, ok := builders[name]; ok {
			return &Element{Name: name}
		}
		return &Unresolved{Kind: OpaqueCalc, Source: name, Reason: name}
	}
	v := e.eval(x.X)
	if u, ok := v.(*Unresolved); ok {
		return &Unresolved{Kind: u.Kind, Source: exprSource(x), Reason: u.Reason}
	}
	if d, ok := v.(*Dict); ok {
		if fv, ok := d.Get(x.Field); ok {
			return fv
		}
		return &Unresolved{Kind: OpaqueValue, Source: exprSource(x), Reason: "dictionary has no key " + x.Field}
	}
	return &Unresolved{Kind: OpaqueValue, Source: exprSource(x), Reason: v.typeName() + " has no field " + x.Field}
}

func (e *Evaluator) call(c *ast.CallExpr) Value {
	if exprSource(c.Callee) == cetzCanvas {
		if _, bound := e.scope.Lookup("cetz"); !bound {
			return Content{&ast.Graphic{Lang: types.LangTypst, Source: "#" + c.Source}}
		}
	}
	if fe, ok := c.Callee.(*ast.FieldExpr); ok && !e.builtinField(fe) {
		return e.method(e.eval(fe.X), fe.Field, c)
	}
	callee := e.eval(c.Callee)
	switch f := callee.(type) {
	case *Func:
		return e.apply(f, c)
	case *Element:
		args := e.args(c)
		if u, ok := args.spread(); ok {
			return u
		}
		return e.build(f.Name, args)
	case *Unresolved:
		if id, ok := c.Callee.(*ast.Ident); ok {
			switch id.Name {
			case "range":
				return e.rangeOf(e.args(c))
			case "str":
				return e.str(e.args(c))
			case "place":
				return &Unresolved{Kind: OpaquePlace, Source: c.Source, Reason: "absolute placement"}
			case "counter":
				return e.counter(e.args(c))
			}
			if ast.IsTheorem(id.Name) {
				return e.theorem(id.Name, e.args(c))
			}
		}
		return &Unresolved{Kind: f.Kind, Source: c.Source, Reason: f.Reason}
	}
	return &Unresolved{Kind: OpaqueValue, Source: c.Source, Reason: callee.typeName() + " is not callable"}
}

// args evaluates a call's arguments. A spread argument is kept as an
// unresolved positional value and reported by spread.
func (e *Evaluator) args(c *ast.CallExpr) *Args {
	a := &Args{Source: c.Source}
	for _, arg := range c.Args {
		v := e.eval(arg.Value)
		if arg.Name != "" {
			a.setNamed(arg.Name, v)
			continue
		}
		a.Pos = append(a.Pos, v)
	}
	return a
}

func (a *Args) spread() (*Unresolved, bool) {
	for _, v := range a.Pos {
		if u, ok := v.(*Unresolved); ok && u.Kind == OpaqueSpread {
			return &Unresolved{Kind: OpaqueSpread, Source: a.Source, Reason: "spread argument"}, true
		}
	}
	return nil, false
}

// apply calls a user function. Arguments bind in a frame over the scope
// captured at the definition.
func (e *Evaluator) apply(f *Func, c *ast.CallExpr) Value {
	if e.depth >= maxCallDepth {
		return &Unresolved{Kind: OpaqueValue, Source: c.Source, Reason: "call depth exceeded in " + f.Name}
	}
	args := e.args(c)
	if u, ok := args.spread(); ok {
		return u
	}
	var result Value
	e.depth++
	defer func() { e.depth-- }()
	e.scope.withFrames(f.Scope, func() {
		for i, p := range f.Params {
			if v, ok := args.positional(i); ok {
				e.scope.Define(p, v)
			} else if v, ok := args.Named(p); ok {
				e.scope.Define(p, v)
			} else {
				e.scope.Define(p, None{})
			}
		}
		saved := e.st
		result = e.eval(f.Body)
		e.st = saved
	})
	return result
}

func (e *Evaluator) method(recv Value, name string, c *ast.CallExpr) Value {
	if u, ok := recv.(*Unresolved); ok {
		return &Unresolved{Kind: u.Kind, Source: c.Source, Reason: u.Reason}
	}
	switch name {
	case "map", "filter", "fold", "reduce", "join", "sum", "zip", "sorted", "find", "any", "all":
		return &Unresolved{Kind: OpaqueMethod, Source: c.Source, Reason: "collection method " + name}
	}
	args := e.args(c)
	switch name {
	case "len":
		switch r := recv.(type) {
		case Array:
			return Int(len(r))
		case String:
			return Int(len([]rune(string(r))))
		case *Dict:
			return Int(r.Len())
		case Range:
			return Int(r.Len())
		}
	case "at":
		return at(recv, args, c.Source)
	case "first", "last":
		if arr, ok := recv.(Array); ok && len(arr) > 0 {
			if name == "first" {
				return arr[0]
			}
			return arr[len(arr)-1]
		}
	case "contains":
		if v, ok := args.positional(0); ok {
			return contains(recv, v, c.Source)
		}
	case "keys", "values":
		if d, ok := recv.(*Dict); ok {
			var out Array
			for _, k := range d.Keys() {
				if name == "keys" {
					out = append(out, String(k))
				} else {
					v, _ := d.Get(k)
					out = append(out, v)
				}
			}
			return out
		}
	case "rev":
		if arr, ok := recv.(Array); ok {
			out := make(Array, len(arr))
			for i, v := range arr {
				out[len(arr)-1-i] = v
			}
			return out
		}
	case "step":
		if d, ok := recv.(*Dict); ok && isCounter(d) {
			return None{}
		}
	case "display":
		if d, ok := recv.(*Dict); ok && isCounter(d) {
			return &Unresolved{Kind: OpaqueCounter, Source: c.Source, Reason: "counter value depends on layout"}
		}
	}
	if d, ok := recv.(*Dict); ok && isCounter(d) {
		return &Unresolved{Kind: OpaqueCounter, Source: c.Source, Reason: "counter." + name}
	}
	return &Unresolved{Kind: OpaqueMethod, Source: c.Source, Reason: recv.typeName() + "." + name}
}

func at(recv Value, args *Args, src string) Value {
	idx, _ := args.positional(0)
	switch r := recv.(type) {
	case Array:
		n, ok := idx.(Number)
		if !ok || !n.Int {
			break
		}
		i := int(n.F)
		if i < 0 {
			i += len(r)
		}
		if i >= 0 && i < len(r) {
			return r[i]
		}
	case *Dict:
		k, ok := idx.(String)
		if !ok {
			break
		}
		if v, found := r.Get(string(k)); found {
			return v
		}
	}
	if def, ok := args.Named("default"); ok {
		return def
	}
	return &Unresolved{Kind: OpaqueValue, Source: src, Reason: "index out of range"}
}

// counter values are dicts tagged with their key. Only step and display
// are understood.
func (e *Evaluator) counter(args *Args) Value {
	d := NewDict()
	d.Set("counter", Bool(true))
	if v, ok := args.positional(0); ok {
		d.Set("key", v)
	}
	return d
}

func isCounter(d *Dict) bool {
	v, ok := d.Get("counter")
	return ok && v == Bool(true) && d.Len() <= 2
}

func (e *Evaluator) rangeOf(args *Args) Value {
	var start, end, step int64 = 0, 0, 1
	ints := make([]int64, 0, 2)
	for _, v := range args.Pos {
		n, ok := v.(Number)
		if !ok || !n.Int {
			return &Unresolved{Kind: OpaqueValue, Source: args.Source, Reason: "range bound is " + v.typeName()}
		}
		ints = append(ints, int64(n.F))
	}
	switch len(ints) {
	case 1:
		end = ints[0]
	case 2:
		start, end = ints[0], ints[1]
	default:
		return &Unresolved{Kind: OpaqueValue, Source: args.Source, Reason: "range takes one or two bounds"}
	}
	if v, ok := args.Named("step"); ok {
		n, isNum := v.(Number)
		if !isNum || !n.Int || n.F == 0 {
			return &Unresolved{Kind: OpaqueValue, Source: args.Source, Reason: "range step must be a non-zero integer"}
		}
		step = int64(n.F)
	}
	return Range{Start: start, End: end, Step: step}
}

func (e *Evaluator) str(args *Args) Value {
	v, ok := args.positional(0)
	if !ok {
		return &Unresolved{Kind: OpaqueValue, Source: args.Source, Reason: "str needs an argument"}
	}
	switch v := v.(type) {
	case Number, String, Label:
		return String(Display(v))
	case Bool:
		return String(Display(v))
	case *Unresolved:
		return v
	}
	return &Unresolved{Kind: OpaqueValue, Source: args.Source, Reason: "cannot convert " + v.typeName() + " to string"}
}

// Range is a lazy integer range, so a large bound costs nothing beyond the
// iterations that are unrolled.
type Range struct {
	Start, End, Step int64
}

func (Range) typeName() string { return "array" }

func (r Range) Len() int {
	if r.Step > 0 && r.End > r.Start {
		return int((r.End - r.Start + r.Step - 1) / r.Step)
	}
	if r.Step < 0 && r.End < r.Start {
		return int((r.Start - r.End - r.Step - 1) / -r.Step)
	}
	return 0
}

// sequence is an iterable value seen one item at a time.
type sequence interface {
	Len() int
	At(i int) []Value
}

type arraySeq Array

func (a arraySeq) Len() int         { return len(a) }
func (a arraySeq) At(i int) []Value { return destructure(a[i]) }

type rangeSeq Range

func (r rangeSeq) Len() int         { return Range(r).Len() }
func (r rangeSeq) At(i int) []Value { return []Value{Int(int(r.Start + int64(i)*r.Step))} }

type dictSeq struct{ d *Dict }

func (s dictSeq) Len() int { return s.d.Len() }
func (s dictSeq) At(i int) []Value {
	k := s.d.keys[i]
	return []Value{String(k), s.d.vals[k]}
}

type stringSeq []rune

func (s stringSeq) Len() int         { return len(s) }
func (s stringSeq) At(i int) []Value { return []Value{String(string(s[i]))} }

// destructure spreads an array item over a (a, b) pattern.
func destructure(v Value) []Value {
	if arr, ok := v.(Array); ok {
		return []Value(arr)
	}
	return []Value{v}
}

// iterate returns the iteration sequence of v for a pattern of n names.
// A dict yields (key, value) pairs, or its pairs as arrays for one name.
func iterate(v Value, n int) (sequence, bool) {
	switch v := v.(type) {
	case Array:
		if n <= 1 {
			return singleSeq{arraySeq(v)}, true
		}
		return arraySeq(v), true
	case Range:
		return rangeSeq(v), true
	case *Dict:
		if n <= 1 {
			return pairSeq{dictSeq{v}}, true
		}
		return dictSeq{v}, true
	case String:
		return stringSeq([]rune(string(v))), true
	}
	return nil, false
}

// singleSeq yields each item whole for a one-name pattern.
type singleSeq struct{ arraySeq }

func (s singleSeq) At(i int) []Value { return []Value{s.arraySeq[i]} }

type pairSeq struct{ dictSeq }

func (s pairSeq) At(i int) []Value { return []Value{Array(s.dictSeq.At(i))} }

// exprSource reconstructs code text for an expression.
func exprSource(x ast.Expr) string {
	switch x := x.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.NoneLit:
		return "none"
	case *ast.BoolLit:
		if x.Value {
			return "true"
		}
		return "false"
	case *ast.NumberLit:
		return x.Text
	case *ast.StringLit:
		return Repr(String(x.Value))
	case *ast.LabelExpr:
		return "<" + x.Key + ">"
	case *ast.BinaryExpr:
		return exprSource(x.Left) + " " + x.Op + " " + exprSource(x.Right)
	case *ast.UnaryExpr:
		if x.Op == "not" {
			return "not " + exprSource(x.X)
		}
		return x.Op + exprSource(x.X)
	case *ast.FieldExpr:
		return exprSource(x.X) + "." + x.Field
	case *ast.CallExpr:
		return x.Source
	case *ast.ContentExpr:
		return x.Source
	case *ast.CodeExpr:
		return x.Source
	case *ast.ClosureExpr:
		return x.Source
	case *ast.SpreadExpr:
		return x.Source
	case *ast.BadExpr:
		return x.Source
	case *ast.ArrayExpr:
		parts := make([]string, len(x.Items))
		for i, it := range x.Items {
			parts[i] = exprSource(it)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *ast.DictExpr:
		if len(x.Keys) == 0 {
			return "(:)"
		}
		parts := make([]string, len(x.Keys))
		for i, k := range x.Keys {
			parts[i] = k + ": " + exprSource(x.Values[i])
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return ""
}
