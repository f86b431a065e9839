// Package store provides the SQLite-backed shared record store for claims,
// votes, reputation records and cached trust scores.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS claims (
	id          TEXT PRIMARY KEY,
	content     TEXT NOT NULL,
	public_key  TEXT NOT NULL,
	user_handle TEXT NOT NULL DEFAULT '',
	parent_id   TEXT REFERENCES claims(id),
	pow_hash    TEXT NOT NULL,
	pow_nonce   INTEGER NOT NULL,
	created_at  DATETIME NOT NULL,
	deleted_at  DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_pow ON claims(pow_hash);
CREATE INDEX IF NOT EXISTS idx_claims_parent ON claims(parent_id);
CREATE INDEX IF NOT EXISTS idx_claims_created ON claims(created_at);

CREATE TABLE IF NOT EXISTS votes (
	id                TEXT PRIMARY KEY,
	rumor_id          TEXT NOT NULL REFERENCES claims(id),
	public_key        TEXT NOT NULL,
	user_handle       TEXT NOT NULL DEFAULT '',
	verification_type TEXT NOT NULL CHECK (verification_type IN ('verify', 'dispute')),
	pow_hash          TEXT NOT NULL,
	pow_nonce         INTEGER NOT NULL,
	outcome           INTEGER,
	created_at        DATETIME NOT NULL,
	UNIQUE(rumor_id, public_key)
);

CREATE INDEX IF NOT EXISTS idx_votes_rumor ON votes(rumor_id);

CREATE TABLE IF NOT EXISTS user_reputation (
	public_key               TEXT PRIMARY KEY,
	reputation_factor        REAL NOT NULL DEFAULT 1.0 CHECK (reputation_factor > 0),
	total_verifications      INTEGER NOT NULL DEFAULT 0,
	successful_verifications INTEGER NOT NULL DEFAULT 0,
	failed_verifications     INTEGER NOT NULL DEFAULT 0,
	updated_at               DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trust_scores (
	rumor_id         TEXT PRIMARY KEY REFERENCES claims(id),
	verify_count     INTEGER NOT NULL DEFAULT 0,
	dispute_count    INTEGER NOT NULL DEFAULT 0,
	trust_score      REAL NOT NULL DEFAULT 0,
	trust_percentage REAL NOT NULL DEFAULT 50,
	updated_at       DATETIME NOT NULL
);
`

// DB wraps a sql.DB with record store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Transactions take the write lock at BEGIN so read-modify-write sequences
// on one key cannot interleave.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
