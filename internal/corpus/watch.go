package corpus

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"texbridge/internal/logger"
	"texbridge/internal/types"
)

// DefaultDebounce is how long a file must stay quiet before it is converted.
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-converts documents under a corpus root when they change. Each
// batch of settled changes is stored as its own run.
type Watcher struct {
	runner   *Runner
	root     string
	debounce time.Duration
	onRun    func(*Summary)

	fs      *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]time.Time
}

// NewWatcher starts watching every non-hidden directory under root. onRun,
// when set, receives the summary of each batch.
func NewWatcher(runner *Runner, root string, debounce time.Duration, onRun func(*Summary)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, types.NewAppError(types.ErrIO, "failed to create file watcher", err)
	}
	w := &Watcher{
		runner:   runner,
		root:     root,
		debounce: debounce,
		onRun:    onRun,
		fs:       fsw,
		pending:  make(map[string]time.Time),
	}

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, types.NewAppError(types.ErrIO, "failed to watch corpus directory", err)
	}
	logger.Info("watching corpus", logger.String("root", root), logger.Duration("debounce", debounce))
	return w, nil
}

// Run handles events until ctx is done, then closes the watcher. Storage
// failures end the loop; conversion failures are stored per document.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	ticker := time.NewTicker(w.debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", logger.Err(err))
		case <-ticker.C:
			files := w.settled(time.Now())
			if len(files) == 0 {
				continue
			}
			summary, err := w.runner.RunFiles(ctx, w.root, files)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if w.onRun != nil {
				w.onRun(summary)
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(event.Name), ".") {
				_ = w.fs.Add(event.Name)
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if _, ok := DirectionFor(event.Name); !ok {
		return
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.pending[filepath.ToSlash(rel)] = time.Now()
	w.mu.Unlock()
}

// settled removes and returns the pending files that have been quiet for
// the debounce interval and still exist.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var files []string
	for rel, at := range w.pending {
		if now.Sub(at) < w.debounce {
			continue
		}
		delete(w.pending, rel)
		if _, err := os.Stat(filepath.Join(w.root, filepath.FromSlash(rel))); err == nil {
			files = append(files, rel)
		}
	}
	sort.Strings(files)
	return files
}
