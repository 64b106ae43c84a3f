// Package store provides SQLite-backed persistence for the receipt and
// challenge logs. The orchestrator only appends; reads happen through the
// receipt-existence predicate and the operator API.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS receipts (
	id            TEXT PRIMARY KEY,
	challenge_id  TEXT NOT NULL,
	address       TEXT NOT NULL,
	nonce         TEXT NOT NULL,
	token         TEXT NOT NULL DEFAULT '',
	fee           INTEGER NOT NULL DEFAULT 0,
	outcome       TEXT NOT NULL DEFAULT 'accepted',
	created_at    INTEGER NOT NULL,
	UNIQUE(challenge_id, address)
);
CREATE INDEX IF NOT EXISTS idx_receipts_challenge ON receipts(challenge_id);

CREATE TABLE IF NOT EXISTS challenge_log (
	challenge_id  TEXT PRIMARY KEY,
	difficulty    TEXT NOT NULL DEFAULT '',
	started_at    INTEGER NOT NULL,
	completed_at  INTEGER NOT NULL DEFAULT 0,
	solved_count  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS miner_events (
	seq_no        INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type    TEXT NOT NULL,
	challenge_id  TEXT NOT NULL DEFAULT '',
	address       TEXT NOT NULL DEFAULT '',
	fee           INTEGER NOT NULL DEFAULT 0,
	message       TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_miner_events_challenge ON miner_events(challenge_id);

CREATE TABLE IF NOT EXISTS stats_history (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	challenge_id     TEXT NOT NULL DEFAULT '',
	total_hashes     INTEGER NOT NULL DEFAULT 0,
	solutions_found  INTEGER NOT NULL DEFAULT 0,
	hash_rate        INTEGER NOT NULL DEFAULT 0,
	mining_active    INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL
);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
