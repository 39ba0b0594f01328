package eval

import (
	"fmt"
	"strconv"
	"strings"

	"texbridge/internal/ast"
)

// Value is a resolved script value or an Unresolved marker. Unresolved is
// never coerced into a guessed value; it travels up to the node that
// interpolates it and becomes an opaque passthrough there.
type Value interface{ typeName() string }

type (
	None   struct{}
	Bool   bool
	String string
	Array  []Value
	Label  string

	// Number keeps the integral flag so ranges and indexing stay exact.
	Number struct {
		F   float64
		Int bool
	}

	// Content is resolved markup.
	Content []ast.Node

	// Func is a user function bound by #let f(x) = body. Scope is the
	// snapshot of visible bindings at the definition.
	Func struct {
		Name   string
		Params []string
		Body   ast.Expr
		Scope  *frame
	}

	// Element is a built-in element that only makes sense inside another
	// one, such as table.cell inside table.
	Element struct {
		Name string
		Args *Args
	}

	// Unresolved stands for anything the evaluator does not compute.
	// Kind names the construct (see the Opaque* constants), Source the
	// expression text when it is known.
	Unresolved struct {
		Kind   string
		Source string
		Reason string
	}
)

func (None) typeName() string        { return "none" }
func (Bool) typeName() string        { return "bool" }
func (String) typeName() string      { return "string" }
func (Array) typeName() string       { return "array" }
func (Label) typeName() string       { return "label" }
func (Number) typeName() string      { return "number" }
func (Content) typeName() string     { return "content" }
func (*Dict) typeName() string       { return "dictionary" }
func (*Func) typeName() string       { return "function" }
func (*Element) typeName() string    { return "element" }
func (*Unresolved) typeName() string { return "unresolved" }

// Dict is an insertion-ordered dictionary.
type Dict struct {
	keys []string
	vals map[string]Value
}

func NewDict() *Dict { return &Dict{vals: make(map[string]Value)} }

func (d *Dict) Set(k string, v Value) {
	if _, ok := d.vals[k]; !ok {
		d.keys = append(d.keys, k)
	}
	d.vals[k] = v
}

func (d *Dict) Get(k string) (Value, bool) {
	v, ok := d.vals[k]
	return v, ok
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string { return append([]string(nil), d.keys...) }

func (d *Dict) Len() int { return len(d.keys) }

func Int(n int) Number { return Number{F: float64(n), Int: true} }

// unresolved returns the first Unresolved among vs.
func unresolved(vs ...Value) (*Unresolved, bool) {
	for _, v := range vs {
		if u, ok := v.(*Unresolved); ok {
			return u, true
		}
	}
	return nil, false
}

// Equal compares two resolved values structurally. Content compares by its
// plain text.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case None:
		_, ok := b.(None)
		return ok
	case Bool:
		b, ok := b.(Bool)
		return ok && a == b
	case Number:
		b, ok := b.(Number)
		return ok && a.F == b.F
	case String:
		b, ok := b.(String)
		return ok && a == b
	case Label:
		b, ok := b.(Label)
		return ok && a == b
	case Array:
		b, ok := b.(Array)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !Equal(a[i], b[i]) {
				return false
			}
		}
		return true
	case *Dict:
		b, ok := b.(*Dict)
		if !ok || a.Len() != b.Len() {
			return false
		}
		for _, k := range a.keys {
			bv, ok := b.vals[k]
			if !ok || !Equal(a.vals[k], bv) {
				return false
			}
		}
		return true
	case Content:
		b, ok := b.(Content)
		return ok && ast.PlainText(a) == ast.PlainText(b)
	}
	return false
}

// Display renders a value the way interpolation shows it as text.
func Display(v Value) string {
	switch v := v.(type) {
	case None:
		return ""
	case Bool:
		return strconv.FormatBool(bool(v))
	case Number:
		return formatNumber(v)
	case String:
		return string(v)
	case Label:
		return "<" + string(v) + ">"
	case Content:
		return ast.PlainText(v)
	case Symbol:
		return string(v)
	}
	return Repr(v)
}

// Repr renders a value as code.
func Repr(v Value) string {
	switch v := v.(type) {
	case None:
		return "none"
	case String:
		return strconv.Quote(string(v))
	case Array:
		parts := make([]string, len(v))
		for i, it := range v {
			parts[i] = Repr(it)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *Dict:
		if v.Len() == 0 {
			return "(:)"
		}
		parts := make([]string, 0, v.Len())
		for _, k := range v.keys {
			parts = append(parts, k+": "+Repr(v.vals[k]))
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case Content:
		return "[" + ast.PlainText(v) + "]"
	case *Func:
		return v.Name
	case *Element:
		return v.Name
	case *Unresolved:
		return v.Source
	case Range:
		if v.Step != 1 {
			return fmt.Sprintf("range(%d, %d, step: %d)", v.Start, v.End, v.Step)
		}
		return fmt.Sprintf("range(%d, %d)", v.Start, v.End)
	case Bool, Number, Label, Symbol:
		return Display(v)
	}
	return v.typeName()
}

func formatNumber(n Number) string {
	if n.Int {
		return strconv.FormatInt(int64(n.F), 10)
	}
	return strconv.FormatFloat(n.F, 'f', -1, 64)
}
