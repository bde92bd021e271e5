// Package catalog records ingestion runs and their output shards in a
// local SQLite database. The catalog is the source of truth for what was
// ingested when, and what verify checks shard files against.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"caselake/internal/logging"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Run is one recorded pipeline run.
type Run struct {
	ID         string
	Layer      string // bronze, silver
	Source     string // registry key, may be empty for raw URLs
	URL        string
	OutDir     string
	Status     string
	Rows       int64
	Bytes      int64
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Shard is one recorded output shard.
type Shard struct {
	RunID  string
	Index  int
	Path   string
	Rows   int64
	Bytes  int64
	SHA256 string
}

// Catalog wraps the SQLite database.
type Catalog struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open initializes the SQLite catalog at the given path, creating the
// schema when needed.
func Open(path string) (*Catalog, error) {
	timer := logging.StartTimer(logging.CategoryCatalog, "catalog.Open")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("catalog: create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.CatalogDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.CatalogDebug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.CatalogDebug("failed to set synchronous=NORMAL: %v", err)
	}

	c := &Catalog{db: db, path: path}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Catalog("catalog ready at %s", path)
	return c, nil
}

func (c *Catalog) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		layer TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		out_dir TEXT NOT NULL,
		status TEXT NOT NULL,
		rows INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_runs_layer ON runs(layer);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

	CREATE TABLE IF NOT EXISTS shards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		idx INTEGER NOT NULL,
		path TEXT NOT NULL,
		rows INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		sha256 TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, idx)
	);
	CREATE INDEX IF NOT EXISTS idx_shards_run ON shards(run_id);
	CREATE INDEX IF NOT EXISTS idx_shards_path ON shards(path);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("catalog: initialize schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// BeginRun records a new run in the running state and returns it.
func (c *Catalog) BeginRun(layer, source, url, outDir string) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := &Run{
		ID:        uuid.NewString(),
		Layer:     layer,
		Source:    source,
		URL:       url,
		OutDir:    outDir,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := c.db.Exec(
		`INSERT INTO runs (id, layer, source, url, out_dir, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Layer, run.Source, run.URL, run.OutDir, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin run: %w", err)
	}
	logging.Catalog("run %s started: layer=%s out_dir=%s", run.ID, layer, outDir)
	return run, nil
}

// RecordShard records one output shard for a run.
func (c *Catalog) RecordShard(runID string, s Shard) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		`INSERT INTO shards (run_id, idx, path, rows, bytes, sha256)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, s.Index, s.Path, s.Rows, s.Bytes, s.SHA256,
	)
	if err != nil {
		return fmt.Errorf("catalog: record shard %d: %w", s.Index, err)
	}
	return nil
}

// FinishRun marks a run done with its final row and byte totals.
func (c *Catalog) FinishRun(runID string, rows, bytes int64) error {
	return c.endRun(runID, StatusDone, rows, bytes, "")
}

// FailRun marks a run failed with the error message.
func (c *Catalog) FailRun(runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return c.endRun(runID, StatusFailed, 0, 0, msg)
}

func (c *Catalog) endRun(runID, status string, rows, bytes int64, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec(
		`UPDATE runs SET status = ?, rows = ?, bytes = ?, error = ?, finished_at = ?
		 WHERE id = ? AND status = ?`,
		status, rows, bytes, msg, time.Now().UTC(), runID, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("catalog: end run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("catalog: run %s is not running", runID)
	}
	logging.Catalog("run %s finished: status=%s rows=%d", runID, status, rows)
	return nil
}

// GetRun fetches a run by id.
func (c *Catalog) GetRun(runID string) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRow(
		`SELECT id, layer, source, url, out_dir, status, rows, bytes, error, started_at, finished_at
		 FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

// Runs lists the most recent runs, newest first.
func (c *Catalog) Runs(limit int) ([]Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.Query(
		`SELECT id, layer, source, url, out_dir, status, rows, bytes, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// RunShards lists the shards of a run in index order.
func (c *Catalog) RunShards(runID string) ([]Shard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryShards(`SELECT run_id, idx, path, rows, bytes, sha256
		FROM shards WHERE run_id = ? ORDER BY idx`, runID)
}

// ShardsUnder lists every recorded shard whose path lies under dir.
func (c *Catalog) ShardsUnder(dir string) ([]Shard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := strings.TrimSuffix(filepath.Clean(dir), string(filepath.Separator))
	return c.queryShards(`SELECT run_id, idx, path, rows, bytes, sha256
		FROM shards WHERE path LIKE ? ORDER BY path`, prefix+string(filepath.Separator)+"%")
}

func (c *Catalog) queryShards(query string, args ...interface{}) ([]Shard, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list shards: %w", err)
	}
	defer rows.Close()

	var out []Shard
	for rows.Next() {
		var s Shard
		if err := rows.Scan(&s.RunID, &s.Index, &s.Path, &s.Rows, &s.Bytes, &s.SHA256); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Totals aggregates catalog-wide counts for one layer.
type Totals struct {
	Runs   int64
	Shards int64
	Rows   int64
	Bytes  int64
}

// LayerTotals aggregates done-run totals per layer.
func (c *Catalog) LayerTotals() (map[string]Totals, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(`
		SELECT r.layer,
		       COUNT(DISTINCT r.id),
		       COUNT(s.id),
		       COALESCE(SUM(s.rows), 0),
		       COALESCE(SUM(s.bytes), 0)
		FROM runs r
		LEFT JOIN shards s ON s.run_id = r.id
		WHERE r.status = ?
		GROUP BY r.layer`, StatusDone)
	if err != nil {
		return nil, fmt.Errorf("catalog: layer totals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Totals)
	for rows.Next() {
		var layer string
		var t Totals
		if err := rows.Scan(&layer, &t.Runs, &t.Shards, &t.Rows, &t.Bytes); err != nil {
			return nil, err
		}
		out[layer] = t
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Layer, &r.Source, &r.URL, &r.OutDir, &r.Status,
		&r.Rows, &r.Bytes, &r.Error, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("catalog: run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: scan run: %w", err)
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return &r, nil
}
