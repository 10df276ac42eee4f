package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	seed            INTEGER NOT NULL,
	particles       INTEGER NOT NULL,
	dim             INTEGER NOT NULL,
	dt              REAL NOT NULL,
	steps           INTEGER NOT NULL,
	report_interval INTEGER NOT NULL,
	integrator      TEXT NOT NULL,
	launch          TEXT NOT NULL,
	status          TEXT NOT NULL,
	error           TEXT NOT NULL,
	metrics         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
`

// ErrDuplicateRun is returned when a run ID is recorded twice.
var ErrDuplicateRun = errors.New("storage: run already recorded")

// Catalog indexes finished runs in SQLite so they can be queried without
// walking the run directories.
type Catalog struct {
	db *sql.DB
}

func toMillis(t time.Time) int64   { return t.UTC().UnixMilli() }
func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func OpenCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Catalog) Record(ctx context.Context, meta RunMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	metrics, err := json.Marshal(meta.Metrics)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO runs (
		   id, name, created_at, seed, particles, dim, dt, steps,
		   report_interval, integrator, launch, status, error, metrics
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID,
		meta.Name,
		toMillis(meta.Timestamp),
		int64(meta.Seed),
		meta.Particles,
		meta.Dim,
		meta.Dt,
		meta.Steps,
		meta.ReportInterval,
		meta.Integrator,
		meta.Launch,
		meta.Status,
		meta.Error,
		string(metrics),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, meta.ID)
	}
	if err != nil {
		return fmt.Errorf("record run %s: %w", meta.ID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Query returns recorded runs, newest first. An empty name matches every
// run; limit <= 0 means no limit.
func (c *Catalog) Query(ctx context.Context, name string, limit int) ([]RunMetadata, error) {
	q := `SELECT id, name, created_at, seed, particles, dim, dt, steps,
	             report_interval, integrator, launch, status, error, metrics
	      FROM runs`
	var args []any
	if name != "" {
		q += ` WHERE name = ?`
		args = append(args, name)
	}
	q += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunMetadata
	for rows.Next() {
		var (
			meta    RunMetadata
			created int64
			seed    int64
			metrics string
		)
		if err := rows.Scan(&meta.ID, &meta.Name, &created, &seed, &meta.Particles, &meta.Dim, &meta.Dt,
			&meta.Steps, &meta.ReportInterval, &meta.Integrator, &meta.Launch, &meta.Status, &meta.Error, &metrics); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		meta.Timestamp = fromMillis(created)
		meta.Seed = uint64(seed)
		if err := json.Unmarshal([]byte(metrics), &meta.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics of %s: %w", meta.ID, err)
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}
