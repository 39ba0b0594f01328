// Package loss records every place where a conversion could not be faithful.
// A Tracker is owned by a single conversion run; ids are assigned in
// creation order starting at 1.
package loss

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"texbridge/internal/types"
)

// Kind is the closed taxonomy of loss causes.
type Kind string

const (
	UnknownCommand        Kind = "unknown-command"
	UnknownEnvironment    Kind = "unknown-environment"
	ParseError            Kind = "parse-error"
	UnsupportedFeature    Kind = "unsupported-feature"
	MacroArgMismatch      Kind = "macro-arg-mismatch"
	MacroRecursionLimit   Kind = "macro-recursion-limit"
	LoopBoundExceeded     Kind = "loop-bound-exceeded"
	UnresolvedConditional Kind = "unresolved-conditional"
	UnsupportedValue      Kind = "unsupported-value"
	CodeBlock             Kind = "code-block"
	GraphicsPrimitive     Kind = "graphics-primitive"
	TableApproximation    Kind = "table-approximation"
	Other                 Kind = "other"
)

// Kinds lists every Kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		UnknownCommand, UnknownEnvironment, ParseError, UnsupportedFeature,
		MacroArgMismatch, MacroRecursionLimit, LoopBoundExceeded,
		UnresolvedConditional, UnsupportedValue, CodeBlock, GraphicsPrimitive,
		TableApproximation, Other,
	}
}

// maxSnippet bounds the snippet stored with a record, in runes.
const maxSnippet = 120

// Record is one loss. Records are immutable once created.
type Record struct {
	ID      int    `json:"id"`
	Kind    Kind   `json:"kind"`
	Name    string `json:"name"`
	Message string `json:"message"`
	Snippet string `json:"snippet"`
	Context string `json:"context"`
}

// Tracker aggregates loss records and warnings for one run.
type Tracker struct {
	records  []Record
	warnings []string
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Record appends a new loss and returns its id.
func (t *Tracker) Record(kind Kind, name, message, snippet, context string) int {
	id := len(t.records) + 1
	t.records = append(t.records, Record{
		ID:      id,
		Kind:    kind,
		Name:    name,
		Message: message,
		Snippet: truncate(snippet),
		Context: context,
	})
	return id
}

// Warn adds a non-loss note to the report.
func (t *Tracker) Warn(format string, args ...interface{}) {
	t.warnings = append(t.warnings, fmt.Sprintf(format, args...))
}

// Get returns the record with the given id.
func (t *Tracker) Get(id int) (Record, bool) {
	if id < 1 || id > len(t.records) {
		return Record{}, false
	}
	return t.records[id-1], true
}

func (t *Tracker) Len() int { return len(t.records) }

// Records returns a copy of all records in creation order.
func (t *Tracker) Records() []Record {
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// CountByKind tallies records per kind.
func (t *Tracker) CountByKind() map[Kind]int {
	counts := make(map[Kind]int)
	for _, r := range t.records {
		counts[r.Kind]++
	}
	return counts
}

// Report is the serialized form of a run's losses.
type Report struct {
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
	Losses     []Record `json:"losses"`
	Warnings   []string `json:"warnings"`
}

// Report snapshots the tracker. Slices are never nil so they encode as [].
func (t *Tracker) Report(source, target types.Lang) Report {
	warnings := make([]string, len(t.warnings))
	copy(warnings, t.warnings)
	return Report{
		SourceLang: string(source),
		TargetLang: string(target),
		Losses:     t.Records(),
		Warnings:   warnings,
	}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxSnippet {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxSnippet]) + "..."
}
