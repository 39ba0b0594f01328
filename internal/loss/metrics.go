package loss

// Metrics are the structural counters of a conversion output.
type Metrics struct {
	Headings    int `json:"headings"`
	Equations   int `json:"equations"`
	Figures     int `json:"figures"`
	Tables      int `json:"tables"`
	Cites       int `json:"cites"`
	Refs        int `json:"refs"`
	Labels      int `json:"labels"`
	ListItems   int `json:"list_items"`
	LossMarkers int `json:"loss_markers"`
	ParseErrors int `json:"parse_errors"`
}

// Counter is a named structural counter value.
type Counter struct {
	Name  string
	Value int
}

// Structural returns the eight structural counters in a fixed order.
func (m Metrics) Structural() []Counter {
	return []Counter{
		{"headings", m.Headings},
		{"equations", m.Equations},
		{"figures", m.Figures},
		{"tables", m.Tables},
		{"cites", m.Cites},
		{"refs", m.Refs},
		{"labels", m.Labels},
		{"list_items", m.ListItems},
	}
}

// Decreases returns the names of structural counters that are lower in m
// than in base.
func (m Metrics) Decreases(base Metrics) []string {
	var names []string
	cur := m.Structural()
	for i, b := range base.Structural() {
		if cur[i].Value < b.Value {
			names = append(names, b.Name)
		}
	}
	return names
}

// AtLeast reports whether no structural counter of m is below base.
func (m Metrics) AtLeast(base Metrics) bool {
	return len(m.Decreases(base)) == 0
}
