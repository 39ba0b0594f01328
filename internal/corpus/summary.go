package corpus

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"texbridge/internal/loss"
	"texbridge/internal/table"
	"texbridge/internal/types"
)

// Drift is an output change against the previous run of the same document.
type Drift struct {
	Path        string `json:"path"`
	PreviousRun string `json:"previous_run"`
	PreviousSHA string `json:"previous_sha256"`
	SHA         string `json:"sha256"`
	// Decreased names the structural metrics that went down.
	Decreased []string `json:"decreased,omitempty"`
	LossDelta int      `json:"loss_delta"`
}

// Regression reports whether the drift lost structure or added losses.
func (d Drift) Regression() bool {
	return len(d.Decreased) > 0 || d.LossDelta > 0
}

// Summary aggregates one run.
type Summary struct {
	Run        *Run              `json:"run"`
	Documents  []*Document       `json:"documents"`
	Drift      []Drift           `json:"drift"`
	LossKinds  map[loss.Kind]int `json:"loss_kinds"`
	Coverage   *table.Coverage   `json:"coverage"`
	Confidence float64           `json:"confidence"`
}

// Report rebuilds the summary of a stored run. An empty runID selects the
// latest run.
func Report(store *Store, runID string) (*Summary, error) {
	var (
		run *Run
		err error
	)
	if runID == "" {
		run, err = store.LatestRun()
		if err == nil && run == nil {
			return nil, types.NewAppError(types.ErrInvalidInput, "corpus index has no runs", nil)
		}
	} else {
		run, err = store.GetRun(runID)
	}
	if err != nil {
		return nil, err
	}

	docs, err := store.Documents(run.ID)
	if err != nil {
		return nil, err
	}
	return summarize(store, run, docs)
}

func summarize(store *Store, run *Run, docs []*Document) (*Summary, error) {
	s := &Summary{
		Run:       run,
		Documents: docs,
		Drift:     []Drift{},
		LossKinds: map[loss.Kind]int{},
		Coverage:  table.NewCoverage(),
	}
	for _, d := range docs {
		for k, n := range d.Losses {
			s.LossKinds[k] += n
		}
		s.Coverage.Merge(d.Coverage)

		drift, err := detectDrift(store, d)
		if err != nil {
			return nil, err
		}
		if drift != nil {
			s.Drift = append(s.Drift, *drift)
		}
	}
	s.Confidence = s.Coverage.Confidence()
	return s, nil
}

// detectDrift compares doc with the latest earlier successful result for
// the same path.
func detectDrift(store *Store, doc *Document) (*Drift, error) {
	if doc.Status != StatusOK {
		return nil, nil
	}
	prev, err := store.PreviousDocument(doc.Path, doc.RunID)
	if err != nil || prev == nil {
		return nil, err
	}
	if prev.OutputSHA256 == doc.OutputSHA256 {
		return nil, nil
	}
	return &Drift{
		Path:        doc.Path,
		PreviousRun: prev.RunID,
		PreviousSHA: prev.OutputSHA256,
		SHA:         doc.OutputSHA256,
		Decreased:   doc.Metrics.Decreases(prev.Metrics),
		LossDelta:   doc.LossCount() - prev.LossCount(),
	}, nil
}

func shortSHA(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// WriteSummary prints a human-readable summary.
func WriteSummary(w io.Writer, s *Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "run %s  root %s\n", s.Run.ID, s.Run.Root)
	fmt.Fprintf(tw, "options: %s\n", s.Run.Options)
	fmt.Fprintf(tw, "documents: %d  failures: %d  drift: %d\n\n", s.Run.Documents, s.Run.Failures, len(s.Drift))

	fmt.Fprintln(tw, "PATH\tDIRECTION\tSTATUS\tLOSSES\tMARKERS\tPARSE ERRORS\tTABLE CONFIDENCE")
	for _, d := range s.Documents {
		status := string(d.Status)
		if d.Error != "" {
			status += ": " + d.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.2f\n",
			d.Path, d.Direction, status, d.LossCount(), d.Metrics.LossMarkers, d.Metrics.ParseErrors, d.Coverage.Confidence())
	}

	if len(s.LossKinds) > 0 {
		fmt.Fprintln(tw, "\nLOSS KIND\tCOUNT")
		kinds := make([]string, 0, len(s.LossKinds))
		for k := range s.LossKinds {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(tw, "%s\t%d\n", k, s.LossKinds[loss.Kind(k)])
		}
	}

	fmt.Fprintf(tw, "\ntables: %d  confidence: %.2f\n", s.Coverage.Tables, s.Confidence)
	for _, f := range s.Coverage.FeatureNames() {
		c := s.Coverage.Get(f)
		fmt.Fprintf(tw, "  %s\tmapped %d\tapproximated %d\n", f, c.Mapped, c.Approximated)
	}

	if len(s.Drift) > 0 {
		fmt.Fprintln(tw, "\nDRIFT\tPREVIOUS\tCURRENT\tNOTE")
		for _, d := range s.Drift {
			note := fmt.Sprintf("losses %+d", d.LossDelta)
			if len(d.Decreased) > 0 {
				note += "; decreased: " + strings.Join(d.Decreased, ", ")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Path, shortSHA(d.PreviousSHA), shortSHA(d.SHA), note)
		}
	}
	return tw.Flush()
}
