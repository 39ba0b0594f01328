package loss

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texbridge/internal/types"
)

func TestTrackerAssignsMonotonicIDs(t *testing.T) {
	tr := NewTracker()
	a := tr.Record(UnknownCommand, `\foo`, "no mapping", `\foo{x}`, "math")
	b := tr.Record(CodeBlock, "code", "opaque", "{ 1 }", "markup")

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 2, tr.Len())

	r, ok := tr.Get(2)
	require.True(t, ok)
	assert.Equal(t, CodeBlock, r.Kind)

	_, ok = tr.Get(3)
	assert.False(t, ok)
}

func TestRecordsIsACopy(t *testing.T) {
	tr := NewTracker()
	tr.Record(Other, "x", "m", "s", "c")
	recs := tr.Records()
	recs[0].Name = "mutated"

	r, _ := tr.Get(1)
	assert.Equal(t, "x", r.Name)
}

func TestSnippetTruncation(t *testing.T) {
	tr := NewTracker()
	tr.Record(Other, "x", "m", strings.Repeat("é", 500), "c")
	r, _ := tr.Get(1)
	assert.True(t, strings.HasSuffix(r.Snippet, "..."))
	assert.Equal(t, maxSnippet+3, len([]rune(r.Snippet)))
}

func TestReportJSONShape(t *testing.T) {
	tr := NewTracker()
	tr.Record(LoopBoundExceeded, "for", "truncated after 100 iterations", "#for i in range(1000) [x]", "typst")
	tr.Warn("repair skipped: %s", "no repairer")

	data, err := json.Marshal(tr.Report(types.LangTypst, types.LangLaTeX))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "typst", decoded["source_lang"])
	assert.Equal(t, "latex", decoded["target_lang"])

	losses := decoded["losses"].([]interface{})
	require.Len(t, losses, 1)
	rec := losses[0].(map[string]interface{})
	for _, key := range []string{"id", "kind", "name", "message", "snippet", "context"} {
		assert.Contains(t, rec, key)
	}
	assert.Equal(t, []interface{}{"repair skipped: no repairer"}, decoded["warnings"])
}

func TestEmptyReportEncodesEmptyArrays(t *testing.T) {
	data, err := json.Marshal(NewTracker().Report(types.LangLaTeX, types.LangTypst))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"losses":[]`)
	assert.Contains(t, string(data), `"warnings":[]`)
}

func TestMarkers(t *testing.T) {
	r := Record{ID: 7, Kind: UnknownCommand, Name: `\weird*/`}
	text := MarkerText(r)
	assert.Equal(t, `texbridge:loss:7 unknown-command \weird* /`, text)
	assert.Equal(t, 2, CountMarkers("/* "+text+" */ x /* "+MarkerText(Record{ID: 8, Kind: Other})+" */"))
}

func TestReconcileMarkers(t *testing.T) {
	tr := NewTracker()
	tr.Record(UnknownCommand, `\foo`, "", "", "")
	tr.Record(MacroArgMismatch, `\two`, "", "", "")
	tr.Record(Other, "", "", "", "")
	records := tr.Records()

	m1 := "/* " + MarkerText(records[0]) + " */"
	m3 := "/* " + MarkerText(records[2]) + " */"
	text := "a " + m1 + " b\n\nc " + m1 + " d " + m3
	got := Reconcile(text, records, types.LangTypst)

	assert.Equal(t, "a "+m1+" b\n\nc d "+m3+"\n/* texbridge:loss:2 macro-arg-mismatch \\two */\n", got)
	assert.Equal(t, len(records), CountMarkers(got))

	latex := Reconcile(`\section{A}`, records[1:2], types.LangLaTeX)
	assert.Equal(t, "\\section{A}\n% texbridge:loss:2 macro-arg-mismatch \\two\n", latex)

	assert.Equal(t, "plain\n", Reconcile("plain\n", nil, types.LangTypst))
}

func TestMetricsDecreases(t *testing.T) {
	base := Metrics{Headings: 2, Equations: 1, ListItems: 3}
	cand := Metrics{Headings: 2, Equations: 0, ListItems: 4}

	assert.Equal(t, []string{"equations"}, cand.Decreases(base))
	assert.False(t, cand.AtLeast(base))
	assert.True(t, base.AtLeast(base))
}

func TestCountByKind(t *testing.T) {
	tr := NewTracker()
	tr.Record(CodeBlock, "", "", "", "")
	tr.Record(CodeBlock, "", "", "", "")
	tr.Record(Other, "", "", "", "")
	assert.Equal(t, map[Kind]int{CodeBlock: 2, Other: 1}, tr.CountByKind())
}
