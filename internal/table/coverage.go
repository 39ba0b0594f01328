package table

import (
	"sort"
)

// Feature is a table feature tracked by the coverage record.
type Feature string

const (
	FeatureSpan   Feature = "span"
	FeatureFill   Feature = "fill"
	FeatureRule   Feature = "rule"
	FeatureStroke Feature = "stroke"
	FeatureAlign  Feature = "align"
)

// Count tallies how often a feature was carried across faithfully.
type Count struct {
	Mapped       int `json:"mapped"`
	Approximated int `json:"approximated"`
}

// Coverage is the per-document record of table feature fidelity.
type Coverage struct {
	Tables   int               `json:"tables"`
	Features map[Feature]Count `json:"features"`
}

// NewCoverage returns an empty record.
func NewCoverage() *Coverage {
	return &Coverage{Features: make(map[Feature]Count)}
}

// Mapped counts one faithful use of f.
func (c *Coverage) Mapped(f Feature) {
	n := c.Features[f]
	n.Mapped++
	c.Features[f] = n
}

// Approximated counts one lossy use of f.
func (c *Coverage) Approximated(f Feature) {
	n := c.Features[f]
	n.Approximated++
	c.Features[f] = n
}

// Get returns the tally for f.
func (c *Coverage) Get(f Feature) Count {
	return c.Features[f]
}

// Confidence is the share of feature uses that were mapped, 1 when there
// were none.
func (c *Coverage) Confidence() float64 {
	var mapped, total int
	for _, n := range c.Features {
		mapped += n.Mapped
		total += n.Mapped + n.Approximated
	}
	if total == 0 {
		return 1
	}
	return float64(mapped) / float64(total)
}

// Merge adds o into c.
func (c *Coverage) Merge(o *Coverage) {
	if o == nil {
		return
	}
	c.Tables += o.Tables
	for f, n := range o.Features {
		m := c.Features[f]
		m.Mapped += n.Mapped
		m.Approximated += n.Approximated
		c.Features[f] = m
	}
}

// FeatureNames lists the features present, sorted.
func (c *Coverage) FeatureNames() []Feature {
	names := make([]Feature, 0, len(c.Features))
	for f := range c.Features {
		names = append(names, f)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
