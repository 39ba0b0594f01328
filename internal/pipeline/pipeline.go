// Package pipeline runs one conversion end to end: source validation,
// front end (macro expansion or static evaluation), structural conversion,
// target writing, metrics and the optional repair step.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"texbridge/internal/analysis"
	"texbridge/internal/ast"
	"texbridge/internal/convert"
	"texbridge/internal/eval"
	"texbridge/internal/latex"
	"texbridge/internal/logger"
	"texbridge/internal/loss"
	"texbridge/internal/macro"
	"texbridge/internal/repair"
	"texbridge/internal/symbols"
	"texbridge/internal/table"
	"texbridge/internal/types"
	"texbridge/internal/typst"
	"texbridge/internal/validator"
)

// DefaultRepairTimeout bounds one repair attempt when Options leaves it unset.
const DefaultRepairTimeout = 60 * time.Second

// Options configures one conversion.
type Options struct {
	// MaxMacroDepth caps nested macro expansion. Zero uses the engine default.
	MaxMacroDepth int
	// MaxLoopIterations caps loop unrolling in the evaluator. Zero uses the
	// evaluator default.
	MaxLoopIterations int
	Features          convert.Features
	// AllowNoGain lets the repair gate accept a candidate that removes no
	// loss marker.
	AllowNoGain bool
	// MathOnly reads the input as one formula and writes bare target math.
	MathOnly bool
	// Fragment omits the LaTeX document wrapper.
	Fragment     bool
	LossComments bool
	// Repairer is the external repair strategy. Nil disables repair.
	Repairer      repair.Repairer
	RepairTimeout time.Duration
	// Symbols overrides the built-in symbol table.
	Symbols *symbols.Table
}

// DefaultOptions enables every feature and inline loss markers.
func DefaultOptions() Options {
	return Options{
		Features:      convert.AllFeatures(),
		LossComments:  true,
		RepairTimeout: DefaultRepairTimeout,
	}
}

// Result is everything one conversion produced.
type Result struct {
	Output   string          `json:"output"`
	Report   loss.Report     `json:"report"`
	Metrics  loss.Metrics    `json:"metrics"`
	Coverage *table.Coverage `json:"coverage"`
	Repair   *repair.Outcome `json:"repair,omitempty"`
	RunID    string          `json:"run_id"`
}

// Convert translates src in direction dir. Conversion is total: losses are
// recorded in the report and never returned as errors. Errors are returned
// only for invalid input, source parse errors and broken trees.
func Convert(ctx context.Context, src string, dir types.Direction, opts Options) (*Result, error) {
	if !dir.Valid() {
		return nil, types.NewAppError(types.ErrInvalidInput, "unknown conversion direction: "+string(dir), nil)
	}
	runID := uuid.NewString()
	start := time.Now()
	log := logger.WithFields(logger.GetLogger(), logger.String("run_id", runID), logger.String("direction", string(dir)))

	source, target := dir.Source(), dir.Target()
	if res := validator.Validate(source, src); !res.IsValid {
		first := res.Errors[0]
		log.Debug("source failed validation", logger.Int("errors", len(res.Errors)))
		return nil, types.NewAppErrorWithDetails(types.ErrParse,
			"failed to parse "+string(source)+" source", first.String(), nil)
	}

	tracker := loss.NewTracker()
	syms := opts.Symbols
	if syms == nil {
		syms = symbols.Default()
	}

	doc := parse(src, dir, opts, syms, tracker)
	log.Debug("front end finished", logger.Int("blocks", len(doc.Children)), logger.Int("losses", tracker.Len()))

	markers := opts.LossComments || opts.Repairer != nil
	conv := convert.New(syms, tracker, convert.Options{
		Direction:    dir,
		Features:     opts.Features,
		LossComments: markers,
	})
	out, err := conv.Convert(doc)
	if err != nil {
		if errors.Is(err, convert.ErrInvalidTree) {
			return nil, types.NewAppError(types.ErrInternal, "conversion produced an invalid tree", err)
		}
		return nil, types.NewAppError(types.ErrInternal, "conversion failed", err)
	}
	log.Debug("conversion finished", logger.Int("losses", tracker.Len()))

	output := write(out, target, opts)
	if markers {
		output = loss.Reconcile(output, tracker.Records(), target)
	}
	metrics := analysis.Measure(target, output)

	res := &Result{
		Coverage: conv.Coverage(),
		RunID:    runID,
	}

	if opts.Repairer != nil && tracker.Len() > 0 {
		timeout := opts.RepairTimeout
		if timeout <= 0 {
			timeout = DefaultRepairTimeout
		}
		req := &repair.Request{
			Input:   src,
			Output:  output,
			Report:  tracker.Report(source, target),
			Metrics: metrics,
		}
		gate := repair.Gate{Lang: target, AllowNoGain: opts.AllowNoGain}
		repaired, outcome := repair.Apply(ctx, opts.Repairer, req, gate, timeout)
		if outcome.Accepted {
			output = repaired
			metrics = *outcome.After
		} else {
			tracker.Warn("%s", outcome.Reason)
		}
		res.Repair = outcome
	}

	res.Output = output
	res.Metrics = metrics
	res.Report = tracker.Report(source, target)

	log.Info("document converted",
		logger.Int("losses", len(res.Report.Losses)),
		logger.Int("warnings", len(res.Report.Warnings)),
		logger.Int("lossMarkers", metrics.LossMarkers),
		logger.Float64("tableConfidence", res.Coverage.Confidence()),
		logger.Duration("duration", time.Since(start)))
	return res, nil
}

// parse runs the source front end. LaTeX is macro-expanded before parsing;
// Typst scripting is resolved after it.
func parse(src string, dir types.Direction, opts Options, syms *symbols.Table, tracker *loss.Tracker) *ast.Document {
	if dir == types.LaTeXToTypst {
		engine := macro.NewEngine(nil, tracker, macro.Config{
			MaxDepth: opts.MaxMacroDepth,
			Known: func(name string) bool {
				return latex.IsStructural(name) || syms.KnownLaTeX(name)
			},
		})
		toks := engine.Expand(latex.Tokenize(src))
		return latex.Parse(toks, latex.ParseOptions{Symbols: syms, MathOnly: opts.MathOnly, Source: src})
	}
	doc := typst.Parse(src, typst.ParseOptions{MathOnly: opts.MathOnly})
	return eval.New(tracker, eval.Config{MaxIterations: opts.MaxLoopIterations}).Resolve(doc)
}

func write(doc *ast.Document, target types.Lang, opts Options) string {
	if target == types.LangTypst {
		return typst.Write(doc, typst.WriteOptions{MathOnly: opts.MathOnly})
	}
	return latex.Write(doc, latex.WriteOptions{Fragment: opts.Fragment, MathOnly: opts.MathOnly})
}
