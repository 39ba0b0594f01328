// Package macro expands user-defined LaTeX macros into a macro-free token
// stream ahead of structural parsing.
package macro

import "texbridge/internal/latex"

// Definition is a user macro. Body holds Param tokens for #1..#9. When
// HasDefault is set the first parameter is optional and Default is used
// when the caller omits it.
type Definition struct {
	Name       string
	Params     int
	HasDefault bool
	Default    []latex.Token
	Body       []latex.Token
}

// EnvDefinition is a user environment from \newenvironment. Only Begin may
// reference parameters.
type EnvDefinition struct {
	Name       string
	Params     int
	HasDefault bool
	Default    []latex.Token
	Begin      []latex.Token
	End        []latex.Token
}

// Table is the macro state of one expansion run. Scoping is flat: a later
// definition of a name replaces the earlier one, and groups do not scope.
type Table struct {
	macros  map[string]*Definition
	envs    map[string]*EnvDefinition
	flags   map[string]bool   // \newif switches by name without the "if" prefix
	setters map[string]setter // \footrue, \foofalse
}

type setter struct {
	flag  string
	value bool
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		macros:  make(map[string]*Definition),
		envs:    make(map[string]*EnvDefinition),
		flags:   make(map[string]bool),
		setters: make(map[string]setter),
	}
}

// Define adds or replaces a macro.
func (t *Table) Define(d *Definition) {
	t.macros[d.Name] = d
}

// Lookup returns the current definition of name.
func (t *Table) Lookup(name string) (*Definition, bool) {
	d, ok := t.macros[name]
	return d, ok
}

// DefineEnv adds or replaces an environment.
func (t *Table) DefineEnv(d *EnvDefinition) {
	t.envs[d.Name] = d
}

// LookupEnv returns the current definition of environment name.
func (t *Table) LookupEnv(name string) (*EnvDefinition, bool) {
	d, ok := t.envs[name]
	return d, ok
}

// NewIf declares the switch \if<name> with its setters, initially false.
func (t *Table) NewIf(name string) {
	t.flags[name] = false
	t.setters[name+"true"] = setter{flag: name, value: true}
	t.setters[name+"false"] = setter{flag: name, value: false}
}

// Len returns the number of macros and environments defined.
func (t *Table) Len() int {
	return len(t.macros) + len(t.envs)
}

func (t *Table) flag(cs string) (value, ok bool) {
	if len(cs) < 3 || cs[:2] != "if" {
		return false, false
	}
	value, ok = t.flags[cs[2:]]
	return value, ok
}
