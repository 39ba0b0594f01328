package corpus

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"texbridge/internal/loss"
	"texbridge/internal/table"
	"texbridge/internal/types"
)

// Status is the outcome of converting one document.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Run is one pass of the runner over a directory.
type Run struct {
	ID         string    `json:"id"`
	Root       string    `json:"root"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Documents  int       `json:"documents"`
	Failures   int       `json:"failures"`
	// Options is a description of the conversion options used.
	Options string `json:"options"`
	// Cancelled runs stopped before every document was converted.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Document is the stored result of one conversion.
type Document struct {
	RunID        string            `json:"run_id"`
	Path         string            `json:"path"`
	Direction    types.Direction   `json:"direction"`
	Status       Status            `json:"status"`
	Error        string            `json:"error,omitempty"`
	OutputSHA256 string            `json:"output_sha256"`
	Metrics      loss.Metrics      `json:"metrics"`
	Losses       map[loss.Kind]int `json:"losses"`
	Warnings     int               `json:"warnings"`
	Coverage     *table.Coverage   `json:"coverage"`
	Duration     time.Duration     `json:"duration"`
}

// LossCount sums losses over all kinds.
func (d *Document) LossCount() int {
	n := 0
	for _, c := range d.Losses {
		n += c
	}
	return n
}

// Store is the SQLite index of corpus runs. Writes are serialized.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens or creates the index at dbPath. The parent directory is
// created if it doesn't exist.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, types.NewAppError(types.ErrIO, "create database directory", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "open database", err)
	}
	// 单连接，写入由 mu 串行化
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, types.NewAppError(types.ErrStorage, "ping database", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, types.NewAppError(types.ErrStorage, "migrate database", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			root TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0,
			documents INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			options TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS documents (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			direction TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			output_sha256 TEXT NOT NULL DEFAULT '',
			metrics TEXT NOT NULL,
			losses TEXT NOT NULL,
			loss_count INTEGER NOT NULL DEFAULT 0,
			warnings INTEGER NOT NULL DEFAULT 0,
			coverage TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, path)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return s.addColumn("runs", "cancelled", "INTEGER NOT NULL DEFAULT 0")
}

// addColumn adds a column to indexes created before it existed.
func (s *Store) addColumn(table, column, def string) error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("reading %s columns: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + def); err != nil {
		return fmt.Errorf("adding %s.%s: %w", table, column, err)
	}
	return nil
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO runs (id, root, started_at, options) VALUES (?, ?, ?, ?)`,
		run.ID, run.Root, run.StartedAt.UnixNano(), run.Options)
	if err != nil {
		return types.NewAppError(types.ErrStorage, "save run", err)
	}
	return nil
}

// FinishRun stores the final counts of a run and whether it was cancelled.
func (s *Store) FinishRun(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE runs SET finished_at = ?, documents = ?, failures = ?, cancelled = ? WHERE id = ?`,
		run.FinishedAt.UnixNano(), run.Documents, run.Failures, run.Cancelled, run.ID)
	if err != nil {
		return types.NewAppError(types.ErrStorage, "finish run", err)
	}
	return nil
}

// SaveDocument stores one conversion result.
func (s *Store) SaveDocument(doc *Document) error {
	metrics, err := json.Marshal(doc.Metrics)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "encode metrics", err)
	}
	losses := doc.Losses
	if losses == nil {
		losses = map[loss.Kind]int{}
	}
	lossJSON, err := json.Marshal(losses)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "encode losses", err)
	}
	cov := doc.Coverage
	if cov == nil {
		cov = table.NewCoverage()
	}
	covJSON, err := json.Marshal(cov)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "encode coverage", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
	INSERT INTO documents (run_id, path, direction, status, error, output_sha256, metrics, losses,
		loss_count, warnings, coverage, confidence, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, path) DO UPDATE SET
		status = excluded.status,
		error = excluded.error,
		output_sha256 = excluded.output_sha256,
		metrics = excluded.metrics,
		losses = excluded.losses,
		loss_count = excluded.loss_count,
		warnings = excluded.warnings,
		coverage = excluded.coverage,
		confidence = excluded.confidence,
		duration_ms = excluded.duration_ms`,
		doc.RunID, doc.Path, string(doc.Direction), string(doc.Status), doc.Error, doc.OutputSHA256,
		string(metrics), string(lossJSON), doc.LossCount(), doc.Warnings, string(covJSON),
		cov.Confidence(), doc.Duration.Milliseconds())
	if err != nil {
		return types.NewAppError(types.ErrStorage, "save document", err)
	}
	return nil
}

const documentColumns = `d.run_id, d.path, d.direction, d.status, COALESCE(d.error, ''), d.output_sha256,
	d.metrics, d.losses, d.warnings, d.coverage, d.duration_ms`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc                     Document
		direction, status       string
		metrics, losses, covStr string
		durationMS              int64
	)
	if err := row.Scan(&doc.RunID, &doc.Path, &direction, &status, &doc.Error, &doc.OutputSHA256,
		&metrics, &losses, &doc.Warnings, &covStr, &durationMS); err != nil {
		return nil, err
	}
	doc.Direction = types.Direction(direction)
	doc.Status = Status(status)
	doc.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(metrics), &doc.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(losses), &doc.Losses); err != nil {
		return nil, fmt.Errorf("decode losses: %w", err)
	}
	doc.Coverage = table.NewCoverage()
	if err := json.Unmarshal([]byte(covStr), doc.Coverage); err != nil {
		return nil, fmt.Errorf("decode coverage: %w", err)
	}
	if doc.Coverage.Features == nil {
		doc.Coverage.Features = map[table.Feature]table.Count{}
	}
	return &doc, nil
}

// Documents lists the results of a run, ordered by path.
func (s *Store) Documents(runID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+documentColumns+` FROM documents d WHERE d.run_id = ? ORDER BY d.path`, runID)
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "list documents", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrStorage, "scan document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrStorage, "list documents", err)
	}
	return docs, nil
}

// PreviousDocument returns the latest successful result for path from a run
// that started before runID. It returns nil when there is none.
func (s *Store) PreviousDocument(path, runID string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
	SELECT `+documentColumns+`
	FROM documents d JOIN runs r ON r.id = d.run_id
	WHERE d.path = ? AND d.status = ? AND d.run_id != ?
		AND r.started_at <= (SELECT started_at FROM runs WHERE id = ?)
	ORDER BY r.started_at DESC
	LIMIT 1`, path, string(StatusOK), runID, runID)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "load previous document", err)
	}
	return doc, nil
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run               Run
		started, finished int64
	)
	if err := row.Scan(&run.ID, &run.Root, &started, &finished, &run.Documents, &run.Failures, &run.Options, &run.Cancelled); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, started)
	if finished != 0 {
		run.FinishedAt = time.Unix(0, finished)
	}
	return &run, nil
}

const runColumns = `id, root, started_at, finished_at, documents, failures, options, cancelled`

// GetRun loads a run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewAppError(types.ErrInvalidInput, "run not found: "+id, err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "load run", err)
	}
	return run, nil
}

// ListRuns returns runs, newest first. limit <= 0 means all.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrStorage, "list runs", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrStorage, "scan run", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run, or nil for an empty index.
func (s *Store) LatestRun() (*Run, error) {
	runs, err := s.ListRuns(1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}
