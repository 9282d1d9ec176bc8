package approval

import (
	"database/sql"
	"fmt"

	// blank-imported sqlite3 driver, same pattern as kadirpekel-hector's
	// v2/session/store.go registering mysql/pq/sqlite3 drivers for
	// database/sql.
	_ "github.com/mattn/go-sqlite3"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS approval_envelopes (
	envelope_id         TEXT PRIMARY KEY,
	nonce               TEXT NOT NULL UNIQUE,
	scope_json          TEXT NOT NULL,
	tool_calls_json     TEXT NOT NULL,
	plan_hash           TEXT NOT NULL,
	key_id              TEXT,
	signed_object_json  TEXT,
	signature_hex       TEXT,
	state               TEXT NOT NULL,
	issued_at           INTEGER NOT NULL,
	expires_at          INTEGER NOT NULL,
	consumed_at         INTEGER
);
CREATE INDEX IF NOT EXISTS idx_approval_envelopes_nonce ON approval_envelopes(nonce);
CREATE INDEX IF NOT EXISTS idx_approval_envelopes_state ON approval_envelopes(state);
`

// Open opens (and migrates) the sqlite-backed envelope store at path. Pass
// ":memory:" for tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("approval: open store: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer per agent; avoids sqlite lock contention
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("approval: migrate store: %w", err)
	}
	return db, nil
}
