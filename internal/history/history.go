// Package history persists scenario runs to a local SQLite database so past
// results can be listed and compared without rerunning anything. Recording is
// best effort: a broken database must never fail a dispatch.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Store persists run records. Storage location: .pyrstest/history.db by
// default.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	log    *zap.Logger
}

// Run is one recorded dispatch.
type Run struct {
	ID          int64
	RunID       string
	Profile     string
	Token       string
	Code        string
	Summary     string
	CommandLine string

	// BuildSkipped marks runs launched with --no-build.
	BuildSkipped bool

	// NoOp marks tokens that are recognized but have no command bound.
	NoOp bool

	ExitCode   int
	Killed     bool
	KillReason string

	// Error holds an infrastructure failure, e.g. a missing interpreter.
	Error string

	DurationMs int64
	StartedAt  time.Time

	StdoutTail string
	StderrTail string
}

// Passed reports whether the recorded run completed with exit status 0.
func (r *Run) Passed() bool {
	return r.Error == "" && !r.Killed && r.ExitCode == 0
}

// Stats summarizes the recorded runs.
type Stats struct {
	TotalRuns int
	Passed    int
	Failed    int
	Killed    int
	ByToken   map[string]int
}

// Open opens (creating if needed) the history database at dbPath.
func Open(dbPath string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath, log: log}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("history store opened", zap.String("path", dbPath))
	return store, nil
}

// initialize creates the database schema.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT UNIQUE NOT NULL,
		profile TEXT NOT NULL,
		token TEXT NOT NULL,
		code TEXT NOT NULL,
		summary TEXT,
		command_line TEXT,
		build_skipped INTEGER NOT NULL DEFAULT 0,
		no_op INTEGER NOT NULL DEFAULT 0,
		exit_code INTEGER NOT NULL,
		killed INTEGER NOT NULL DEFAULT 0,
		kill_reason TEXT,
		error TEXT,
		duration_ms INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		stdout_tail TEXT,
		stderr_tail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_token ON runs(token);
	CREATE INDEX IF NOT EXISTS idx_runs_exit ON runs(exit_code);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.dbPath
}

// Record persists one run.
func (s *Store) Record(run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO runs
		(run_id, profile, token, code, summary, command_line, build_skipped,
		 no_op, exit_code, killed, kill_reason, error, duration_ms, started_at,
		 stdout_tail, stderr_tail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Profile, run.Token, run.Code, run.Summary,
		run.CommandLine, boolInt(run.BuildSkipped), boolInt(run.NoOp),
		run.ExitCode, boolInt(run.Killed), run.KillReason, run.Error,
		run.DurationMs, run.StartedAt.UnixMilli(), run.StdoutTail, run.StderrTail,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	s.log.Debug("run recorded",
		zap.String("run_id", run.RunID),
		zap.String("token", run.Token),
		zap.Int("exit_code", run.ExitCode))
	return nil
}

const selectColumns = `
	id, run_id, profile, token, code, summary, command_line, build_skipped,
	no_op, exit_code, killed, kill_reason, error, duration_ms, started_at,
	stdout_tail, stderr_tail`

// Recent returns the N most recent runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+selectColumns+`
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// RecentByToken returns the N most recent runs dispatched with token.
func (s *Store) RecentByToken(token string, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+selectColumns+`
		FROM runs WHERE token = ? ORDER BY started_at DESC, id DESC LIMIT ?`, token, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// Failed returns the N most recent runs that did not pass.
func (s *Store) Failed(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+selectColumns+`
		FROM runs
		WHERE exit_code != 0 OR killed != 0 OR error != ''
		ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// GetStats summarizes everything recorded.
func (s *Store) GetStats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ByToken: make(map[string]int)}

	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN exit_code = 0 AND killed = 0 AND error = '' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN killed != 0 THEN 1 ELSE 0 END), 0)
		FROM runs`)
	if err := row.Scan(&stats.TotalRuns, &stats.Passed, &stats.Killed); err != nil {
		return nil, fmt.Errorf("failed to read history stats: %w", err)
	}
	stats.Failed = stats.TotalRuns - stats.Passed

	rows, err := s.db.Query(`SELECT token, COUNT(*) FROM runs GROUP BY token`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var token string
		var n int
		if err := rows.Scan(&token, &n); err != nil {
			return nil, err
		}
		stats.ByToken[token] = n
	}
	return stats, rows.Err()
}

// Prune deletes the oldest runs beyond keep, returning how many were removed.
func (s *Store) Prune(keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	res, err := s.db.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug("history pruned", zap.Int64("removed", n), zap.Int("kept", keep))
	}
	return n, nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var r Run
		var buildSkipped, noOp, killed int
		var startedMs int64
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.Profile, &r.Token, &r.Code, &r.Summary,
			&r.CommandLine, &buildSkipped, &noOp, &r.ExitCode, &killed,
			&r.KillReason, &r.Error, &r.DurationMs, &startedMs,
			&r.StdoutTail, &r.StderrTail,
		); err != nil {
			return nil, err
		}
		r.BuildSkipped = buildSkipped != 0
		r.NoOp = noOp != 0
		r.Killed = killed != 0
		r.StartedAt = time.UnixMilli(startedMs)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
