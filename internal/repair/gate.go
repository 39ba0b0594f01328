package repair

import (
	"fmt"
	"strings"

	"texbridge/internal/analysis"
	"texbridge/internal/loss"
	"texbridge/internal/types"
)

// Gate accepts a candidate only when it adds no parse errors, loses no
// structure and removes at least one loss marker. A baseline without
// markers therefore rejects every candidate. AllowNoGain drops the marker
// requirement.
type Gate struct {
	Lang        types.Lang
	AllowNoGain bool
}

// Verdict is the gate's decision on one candidate.
type Verdict struct {
	Accepted bool
	Reason   string
	Metrics  loss.Metrics
}

// Check measures candidate and compares it against base, the metrics of
// the output it would replace.
func (g Gate) Check(base loss.Metrics, candidate string) Verdict {
	m := analysis.Measure(g.Lang, candidate)
	v := Verdict{Metrics: m}

	switch {
	case strings.TrimSpace(candidate) == "":
		v.Reason = "empty candidate"
	case m.ParseErrors > base.ParseErrors:
		v.Reason = fmt.Sprintf("parse errors increased from %d to %d", base.ParseErrors, m.ParseErrors)
	case !m.AtLeast(base):
		v.Reason = "structural metrics decreased: " + strings.Join(m.Decreases(base), ", ")
	case !g.AllowNoGain && m.LossMarkers >= base.LossMarkers:
		v.Reason = fmt.Sprintf("loss markers did not decrease (%d -> %d)", base.LossMarkers, m.LossMarkers)
	default:
		v.Accepted = true
	}
	return v
}
