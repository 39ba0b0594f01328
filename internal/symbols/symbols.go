// Package symbols holds the bidirectional mapping between LaTeX math
// commands and Typst math names. The data ships embedded as YAML and is
// immutable once loaded, so one Table may be shared by concurrent runs.
package symbols

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"texbridge/internal/logger"
)

//go:embed symbols.yaml
var defaultData []byte

// Strategy is how an entry's arguments map across languages.
type Strategy string

const (
	Direct  Strategy = "direct"
	Reorder Strategy = "reorder"
	Custom  Strategy = "custom"
)

// Direction restrictions for an entry.
const (
	DirBoth    = ""
	DirToTypst = "to-typst"
	DirToLaTeX = "to-latex"
)

// Entry maps one LaTeX command to one Typst name.
type Entry struct {
	LaTeX    string   `yaml:"latex"`
	Typst    string   `yaml:"typst"`
	Kind     string   `yaml:"kind"`
	Arity    int      `yaml:"arity"`
	Optional bool     `yaml:"optional"`
	Strategy Strategy `yaml:"strategy"`
	// Order lists, for each Typst argument position, the LaTeX argument index it takes.
	Order []int `yaml:"order"`
	// Names holds the Typst argument names per position, "" for positional.
	Names  []string `yaml:"names"`
	Custom string   `yaml:"custom"`
	Open   string   `yaml:"open"`
	Close  string   `yaml:"close"`
	Dir    string   `yaml:"dir"`
}

type tableFile struct {
	Math []Entry           `yaml:"math"`
	Text map[string]string `yaml:"text"`
}

// Table is a loaded symbol table.
type Table struct {
	entries []Entry
	byLaTeX map[string]*Entry
	byTypst map[string][]*Entry
	text    map[string]string
}

// Load parses a YAML symbol table.
func Load(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse symbol table: %w", err)
	}

	t := &Table{
		entries: f.Math,
		byLaTeX: make(map[string]*Entry, len(f.Math)),
		byTypst: make(map[string][]*Entry, len(f.Math)),
		text:    f.Text,
	}
	if t.text == nil {
		t.text = map[string]string{}
	}

	for i := range t.entries {
		e := &t.entries[i]
		if e.LaTeX == "" || e.Typst == "" {
			return nil, fmt.Errorf("symbol entry %d: latex and typst names are required", i)
		}
		if e.Strategy == "" {
			e.Strategy = Direct
		}
		if e.Strategy == Reorder && len(e.Order) != e.Arity {
			return nil, fmt.Errorf("symbol entry %q: reorder needs %d order indices", e.LaTeX, e.Arity)
		}
		if e.Dir != DirToLaTeX {
			if _, dup := t.byLaTeX[e.LaTeX]; !dup {
				t.byLaTeX[e.LaTeX] = e
			}
		}
		if e.Dir != DirToTypst {
			t.byTypst[e.Typst] = append(t.byTypst[e.Typst], e)
		}
	}

	logger.Debug("symbol table loaded", logger.Int("entries", len(t.entries)), logger.Int("textSymbols", len(t.text)))
	return t, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded table. It panics if the embedded data is
// malformed, which is a build defect.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Load(defaultData)
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}

// FromLaTeX looks up the entry used when converting LaTeX command name to Typst.
func (t *Table) FromLaTeX(name string) (*Entry, bool) {
	e, ok := t.byLaTeX[name]
	return e, ok
}

// FromTypst looks up the preferred entry for a Typst math name.
func (t *Table) FromTypst(name string) (*Entry, bool) {
	es := t.byTypst[name]
	if len(es) == 0 {
		return nil, false
	}
	return es[0], true
}

// AllFromTypst returns every entry for a Typst name, in table order.
func (t *Table) AllFromTypst(name string) []*Entry {
	return t.byTypst[name]
}

// Arity reports the argument count of a LaTeX command and whether it takes
// a leading optional argument.
func (t *Table) Arity(name string) (arity int, optional bool, ok bool) {
	e, ok := t.byLaTeX[name]
	if !ok {
		return 0, false, false
	}
	return e.Arity, e.Optional, true
}

// TextSymbol maps a text-mode LaTeX command to its literal text.
func (t *Table) TextSymbol(name string) (string, bool) {
	s, ok := t.text[name]
	return s, ok
}

// KnownLaTeX reports whether name is a math or text-mode command in the table.
func (t *Table) KnownLaTeX(name string) bool {
	if _, ok := t.byLaTeX[name]; ok {
		return true
	}
	_, ok := t.text[name]
	return ok
}

// Len returns the number of math entries.
func (t *Table) Len() int { return len(t.entries) }
