package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/hearsay/internal/apperr"
	"github.com/starford/hearsay/internal/models"
)

const reputationColumns = `public_key, reputation_factor, total_verifications, successful_verifications, failed_verifications, updated_at`

func scanReputation(s rowScanner) (models.ReputationRecord, error) {
	var (
		r                        models.ReputationRecord
		total, success, failures int64
	)
	if err := s.Scan(&r.PublicKey, &r.Factor, &total, &success, &failures, &r.UpdatedAt); err != nil {
		return models.ReputationRecord{}, err
	}
	r.TotalVotes = uint64(total)
	r.SuccessfulVotes = uint64(success)
	r.FailedVotes = uint64(failures)
	return r, nil
}

// EnsureReputation inserts rec unless a record for its key already exists.
func (db *DB) EnsureReputation(ctx context.Context, rec models.ReputationRecord) error {
	return ensureReputation(ctx, db.conn, rec)
}

func ensureReputation(ctx context.Context, q querier, rec models.ReputationRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO user_reputation (public_key, reputation_factor, total_verifications, successful_verifications, failed_verifications, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(public_key) DO NOTHING
	`, rec.PublicKey, rec.Factor, int64(rec.TotalVotes), int64(rec.SuccessfulVotes), int64(rec.FailedVotes), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: ensure reputation: %w", err)
	}
	return nil
}

// GetReputation returns the record for publicKey, or nil when none exists.
func (db *DB) GetReputation(ctx context.Context, publicKey string) (*models.ReputationRecord, error) {
	r, err := scanReputation(db.conn.QueryRowContext(ctx,
		`SELECT `+reputationColumns+` FROM user_reputation WHERE public_key = ?`, publicKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get reputation: %w", err)
	}
	return &r, nil
}

// Reputations returns the records that exist among publicKeys.
func (db *DB) Reputations(ctx context.Context, publicKeys []string) (map[string]models.ReputationRecord, error) {
	out := make(map[string]models.ReputationRecord, len(publicKeys))
	if len(publicKeys) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(publicKeys)), ",")
	args := make([]any, len(publicKeys))
	for i, k := range publicKeys {
		args[i] = k
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+reputationColumns+` FROM user_reputation WHERE public_key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: reputations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanReputation(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan reputation: %w", err)
		}
		out[r.PublicKey] = r
	}
	return out, rows.Err()
}

// updateReputation runs fn on the record for publicKey and writes the result
// back. q is expected to be an immediate transaction.
func updateReputation(ctx context.Context, q querier, publicKey string, fn func(*models.ReputationRecord) error) error {
	rec, err := scanReputation(q.QueryRowContext(ctx,
		`SELECT `+reputationColumns+` FROM user_reputation WHERE public_key = ?`, publicKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("store: read reputation: %w", err)
	}
	if err := fn(&rec); err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		UPDATE user_reputation SET
			reputation_factor        = ?,
			total_verifications      = ?,
			successful_verifications = ?,
			failed_verifications     = ?,
			updated_at               = ?
		WHERE public_key = ?
	`, rec.Factor, int64(rec.TotalVotes), int64(rec.SuccessfulVotes), int64(rec.FailedVotes), rec.UpdatedAt.UTC(), publicKey)
	if err != nil {
		return fmt.Errorf("store: update reputation: %w", err)
	}
	return nil
}
