// Package journal keeps a local history of per-account action outcomes.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/moonapp-tools/mooncoin-cli/internal/model"
)

// lockTimeout bounds how long Record waits for another process's write.
const lockTimeout = 5 * time.Second

type Store struct {
	db       *sql.DB
	lock     *flock.Flock
	lockWait time.Duration
	now      func() time.Time
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if strings.TrimSpace(lockPath) == "" {
		lockPath = path + ".lock"
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			account INTEGER NOT NULL,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_outcomes_action_created ON outcomes(action, created_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath), lockWait: lockTimeout, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends outcomes of one run in a single transaction.
func (s *Store) Record(ctx context.Context, runID string, outcomes ...model.Outcome) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("record outcomes: missing run id")
	}
	if len(outcomes) == 0 {
		return nil
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock journal: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal write: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO outcomes (run_id, account, action, status, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer stmt.Close()

	created := s.now().UTC().UnixMilli()
	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx, runID, o.Account, o.Action, string(o.Status), o.Detail, created); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record outcome: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal write: %w", err)
	}
	return nil
}

// List returns the newest entries first, optionally filtered by action.
func (s *Store) List(action string, limit int) ([]model.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	const cols = "SELECT id, run_id, account, action, status, detail, created_at FROM outcomes"
	if strings.TrimSpace(action) == "" {
		rows, err = s.db.Query(cols+" ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query(cols+" WHERE action = ? ORDER BY created_at DESC, id DESC LIMIT ?", action, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	entries := make([]model.JournalEntry, 0)
	for rows.Next() {
		var (
			e       model.JournalEntry
			status  string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Account, &e.Action, &status, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Status = model.OutcomeStatus(status)
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return entries, nil
}
