// Package checkpoint implements the per-work-item checkpoint store (C4):
// single-row-per-work-item persistence enabling resume after crash, plus
// the context-local scope binding the history pipeline uses to find the
// currently executing work item.
package checkpoint

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/autopoiesis-dev/agentcore/internal/log"
)

// CurrentVersion is bumped whenever the on-disk history encoding changes;
// rows written under an older version are treated as absent on load.
const CurrentVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	work_item_id      TEXT PRIMARY KEY,
	checkpoint_version INTEGER NOT NULL,
	history_json      TEXT NOT NULL,
	round_count       INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);
`

// Open opens (and migrates) the sqlite-backed checkpoint store at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: migrate store: %w", err)
	}
	return db, nil
}

// Store is the sqlite-backed checkpoint store for one agent.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger interface {
		Info(msg string, args ...interface{})
	}
}

// NewStore wraps an already-open, already-migrated *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }, logger: log.For("checkpoint")}
}

// Save upserts the checkpoint row for workItemID with updated_at=now and
// checkpoint_version=CurrentVersion.
func (s *Store) Save(workItemID, historyJSON string, roundCount int) error {
	_, err := s.db.Exec(
		`INSERT INTO checkpoints (work_item_id, checkpoint_version, history_json, round_count, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(work_item_id) DO UPDATE SET
		   checkpoint_version=excluded.checkpoint_version,
		   history_json=excluded.history_json,
		   round_count=excluded.round_count,
		   updated_at=excluded.updated_at`,
		workItemID, CurrentVersion, historyJSON, roundCount, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("checkpoint: save: %w", err)
	}
	return nil
}

// Load returns the history_json for workItemID, or ("", false) if no
// current-version row exists (rows from an older checkpoint_version are
// treated as absent).
func (s *Store) Load(workItemID string) (string, bool, error) {
	var version int
	var historyJSON string
	err := s.db.QueryRow(
		`SELECT checkpoint_version, history_json FROM checkpoints WHERE work_item_id = ?`,
		workItemID,
	).Scan(&version, &historyJSON)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("checkpoint: load: %w", err)
	}
	if version != CurrentVersion {
		return "", false, nil
	}
	return historyJSON, true, nil
}

// Clear deletes the checkpoint for workItemID. Safe to call when absent.
func (s *Store) Clear(workItemID string) error {
	_, err := s.db.Exec(`DELETE FROM checkpoints WHERE work_item_id = ?`, workItemID)
	if err != nil {
		return fmt.Errorf("checkpoint: clear: %w", err)
	}
	return nil
}

// CleanupStale deletes rows whose updated_at predates now - maxAge.
func (s *Store) CleanupStale(maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).Unix()
	res, err := s.db.Exec(`DELETE FROM checkpoints WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: cleanup_stale: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
