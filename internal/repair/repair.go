// Package repair is the boundary to external repair strategies. A strategy
// receives the source, the best-effort output, the loss report and the
// output metrics, and may propose replacement output. The acceptance gate
// decides whether the proposal is kept.
package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"texbridge/internal/logger"
	"texbridge/internal/loss"
)

// Request is the payload a strategy works on. Its JSON form is the stdin
// contract of repair processes.
type Request struct {
	Input   string       `json:"input"`
	Output  string       `json:"output"`
	Report  loss.Report  `json:"report"`
	Metrics loss.Metrics `json:"metrics"`
}

// Marshal encodes the request.
func (r *Request) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Repairer proposes replacement output for a request. The returned text is
// in the request's target language.
type Repairer interface {
	Repair(ctx context.Context, req *Request) (string, error)
}

// Outcome records what happened to one repair attempt.
type Outcome struct {
	Strategy string        `json:"strategy"`
	Accepted bool          `json:"accepted"`
	Reason   string        `json:"reason"`
	Before   loss.Metrics  `json:"before"`
	After    *loss.Metrics `json:"after,omitempty"`
	Duration time.Duration `json:"-"`
}

// Name returns a strategy's display name.
func Name(r Repairer) string {
	if n, ok := r.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", r)
}

// Apply runs r under timeout and checks its candidate with gate. It returns
// the candidate when accepted and req.Output otherwise.
func Apply(ctx context.Context, r Repairer, req *Request, gate Gate, timeout time.Duration) (string, *Outcome) {
	out := &Outcome{Strategy: Name(r), Before: req.Metrics}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Debug("repair started", logger.String("strategy", out.Strategy), logger.Int("losses", len(req.Report.Losses)))
	start := time.Now()
	candidate, err := r.Repair(ctx, req)
	out.Duration = time.Since(start)
	if err != nil {
		out.Reason = "repair failed: " + err.Error()
		logger.Warn("repair failed", logger.String("strategy", out.Strategy), logger.Err(err))
		return req.Output, out
	}

	v := gate.Check(req.Metrics, candidate)
	out.After = &v.Metrics
	if !v.Accepted {
		out.Reason = "repair candidate rejected: " + v.Reason
		logger.Warn("repair candidate rejected", logger.String("strategy", out.Strategy), logger.String("reason", v.Reason))
		return req.Output, out
	}

	out.Accepted = true
	out.Reason = "accepted"
	logger.Info("repair candidate accepted",
		logger.String("strategy", out.Strategy),
		logger.Int("markersBefore", req.Metrics.LossMarkers),
		logger.Int("markersAfter", v.Metrics.LossMarkers),
		logger.Duration("duration", out.Duration))
	return candidate, out
}
