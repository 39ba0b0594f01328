// Package corpus converts every template under a directory and keeps a
// SQLite index of the results, so that one run can be compared with the
// previous run of the same documents.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"texbridge/internal/logger"
	"texbridge/internal/loss"
	"texbridge/internal/pipeline"
	"texbridge/internal/repair"
	"texbridge/internal/source"
	"texbridge/internal/table"
	"texbridge/internal/types"
)

// DefaultConcurrency is the worker count when none is given.
const DefaultConcurrency = 4

// Runner converts a corpus with a bounded pool of workers.
type Runner struct {
	store       *Store
	opts        pipeline.Options
	concurrency int
}

// NewRunner returns a runner that stores results in store.
func NewRunner(store *Store, opts pipeline.Options, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Runner{store: store, opts: opts, concurrency: concurrency}
}

// Discover lists the .tex and .typ files under root as slash-separated
// paths relative to root, sorted. Hidden directories are skipped.
func Discover(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := DirectionFor(path); !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrIO, "failed to scan corpus directory", err)
	}
	sort.Strings(files)
	return files, nil
}

// DirectionFor picks the conversion direction from a file extension.
func DirectionFor(path string) (types.Direction, bool) {
	lang, err := types.ParseLang(strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return "", false
	}
	if lang == types.LangTypst {
		return types.TypstToLaTeX, true
	}
	return types.LaTeXToTypst, true
}

// Run converts every document under root. Conversion failures are stored
// per document; only discovery and storage failures end the run.
func (r *Runner) Run(ctx context.Context, root string) (*Summary, error) {
	files, err := Discover(root)
	if err != nil {
		return nil, err
	}
	return r.RunFiles(ctx, root, files)
}

// RunFiles converts the given slash-separated paths under root as one run.
func (r *Runner) RunFiles(ctx context.Context, root string, files []string) (*Summary, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Root:      root,
		StartedAt: time.Now(),
		Options:   describeOptions(r.opts),
	}
	if err := r.store.BeginRun(run); err != nil {
		return nil, err
	}
	logger.Info("corpus run started",
		logger.String("run_id", run.ID),
		logger.String("root", root),
		logger.Int("documents", len(files)),
		logger.Int("concurrency", r.concurrency))

	docs := make([]*Document, len(files))
	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, r.concurrency)

schedule:
	for i, rel := range files {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break schedule
		}
		if ctx.Err() != nil {
			<-sem
			break
		}
		wg.Add(1)
		go func(i int, rel string) {
			defer wg.Done()
			defer func() { <-sem }()

			doc := r.convertOne(ctx, run.ID, root, rel)
			if err := r.store.SaveDocument(doc); err != nil {
				logger.Error("failed to store corpus result", err, logger.String("path", rel))
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			docs[i] = doc
		}(i, rel)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	run.FinishedAt = time.Now()
	for _, d := range docs {
		if d == nil {
			continue
		}
		run.Documents++
		if d.Status != StatusOK {
			run.Failures++
		}
	}
	if err := ctx.Err(); err != nil {
		run.Cancelled = true
		if serr := r.store.FinishRun(run); serr != nil {
			logger.Error("failed to mark corpus run cancelled", serr, logger.String("run_id", run.ID))
		}
		logger.Warn("corpus run cancelled",
			logger.String("run_id", run.ID),
			logger.Int("documents", run.Documents),
			logger.Int("scheduled", len(files)))
		return nil, types.NewAppError(types.ErrInternal, "corpus run cancelled", err)
	}
	if err := r.store.FinishRun(run); err != nil {
		return nil, err
	}

	summary, err := summarize(r.store, run, docs)
	if err != nil {
		return nil, err
	}
	logger.Info("corpus run finished",
		logger.String("run_id", run.ID),
		logger.Int("documents", run.Documents),
		logger.Int("failures", run.Failures),
		logger.Int("drift", len(summary.Drift)),
		logger.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))
	return summary, nil
}

// convertOne runs the pipeline on one file. Each call builds its own
// pipeline state; only the read-only options are shared.
func (r *Runner) convertOne(ctx context.Context, runID, root, rel string) *Document {
	dir, _ := DirectionFor(rel)
	doc := &Document{
		RunID:     runID,
		Path:      rel,
		Direction: dir,
		Status:    StatusOK,
		Losses:    map[loss.Kind]int{},
		Coverage:  table.NewCoverage(),
	}
	start := time.Now()
	defer func() { doc.Duration = time.Since(start) }()

	text, enc, err := source.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		doc.Status, doc.Error = StatusError, err.Error()
		return doc
	}
	logger.Debug("converting corpus document", logger.String("path", rel), logger.String("encoding", string(enc)))

	res, err := pipeline.Convert(ctx, text, dir, r.opts)
	if err != nil {
		doc.Status, doc.Error = StatusError, err.Error()
		logger.Warn("corpus document failed", logger.String("path", rel), logger.Err(err))
		return doc
	}

	sum := sha256.Sum256([]byte(res.Output))
	doc.OutputSHA256 = hex.EncodeToString(sum[:])
	doc.Metrics = res.Metrics
	doc.Warnings = len(res.Report.Warnings)
	for _, rec := range res.Report.Losses {
		doc.Losses[rec.Kind]++
	}
	if res.Coverage != nil {
		doc.Coverage = res.Coverage
	}
	return doc
}

func describeOptions(o pipeline.Options) string {
	var features []string
	if o.Features.Tables {
		features = append(features, "tables")
	}
	if o.Features.Graphics {
		features = append(features, "graphics")
	}
	if o.Features.References {
		features = append(features, "references")
	}
	strategy := "none"
	if o.Repairer != nil {
		strategy = repair.Name(o.Repairer)
	}
	return fmt.Sprintf("features=%s loss_comments=%t max_macro_depth=%d max_loop_iterations=%d repair=%s",
		strings.Join(features, ","), o.LossComments, o.MaxMacroDepth, o.MaxLoopIterations, strategy)
}
