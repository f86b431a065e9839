package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/hearsay/internal/apperr"
	"github.com/starford/hearsay/internal/models"
	"github.com/starford/hearsay/internal/reputation"
)

const voteColumns = `id, rumor_id, public_key, user_handle, verification_type, pow_hash, pow_nonce, outcome, created_at`

func scanVote(s rowScanner) (models.Vote, error) {
	var (
		v       models.Vote
		kind    string
		nonce   int64
		outcome sql.NullBool
	)
	if err := s.Scan(&v.ID, &v.ClaimID, &v.VoterPublicKey, &v.VoterHandle, &kind,
		&v.PowHash, &nonce, &outcome, &v.CreatedAt); err != nil {
		return models.Vote{}, err
	}
	v.Kind = models.VoteKind(kind)
	v.PowNonce = uint64(nonce)
	if outcome.Valid {
		o := outcome.Bool
		v.Outcome = &o
	}
	return v, nil
}

// InsertVote stores a vote. A second vote for the same (claim, voter) pair
// returns apperr.ErrConflict and leaves the first in place.
func (db *DB) InsertVote(ctx context.Context, v models.Vote) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO votes (id, rumor_id, public_key, user_handle, verification_type, pow_hash, pow_nonce, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.ClaimID, v.VoterPublicKey, v.VoterHandle, string(v.Kind), v.PowHash, int64(v.PowNonce), v.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrConflict
		}
		return fmt.Errorf("store: insert vote: %w", err)
	}
	return nil
}

// GetVote returns the vote cast by voterPublicKey on claimID.
func (db *DB) GetVote(ctx context.Context, claimID, voterPublicKey string) (*models.Vote, error) {
	v, err := scanVote(db.conn.QueryRowContext(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE rumor_id = ? AND public_key = ?`, claimID, voterPublicKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("store: get vote: %w", err)
	}
	return &v, nil
}

// GetVoteByID returns a vote by id.
func (db *DB) GetVoteByID(ctx context.Context, id string) (*models.Vote, error) {
	v, err := scanVote(db.conn.QueryRowContext(ctx, `SELECT `+voteColumns+` FROM votes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("store: get vote: %w", err)
	}
	return &v, nil
}

// VotesForClaim returns every vote on claimID, oldest first.
func (db *DB) VotesForClaim(ctx context.Context, claimID string) ([]models.Vote, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE rumor_id = ? ORDER BY created_at ASC, id ASC`, claimID)
	if err != nil {
		return nil, fmt.Errorf("store: votes for claim: %w", err)
	}
	defer rows.Close()

	var out []models.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan vote: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ResolveVote records the judgment of a vote and runs fn on the voter's
// reputation record in the same transaction. A vote is judged at most once;
// judging it again returns apperr.ErrConflict. When fn fails nothing is
// written and the vote stays open.
func (db *DB) ResolveVote(ctx context.Context, voteID string, correct bool, fn func(*models.ReputationRecord) error) (*models.Vote, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	v, err := scanVote(tx.QueryRowContext(ctx, `SELECT `+voteColumns+` FROM votes WHERE id = ?`, voteID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("store: get vote: %w", err)
	}
	if v.Outcome != nil {
		return nil, apperr.ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `UPDATE votes SET outcome = ? WHERE id = ?`, correct, voteID); err != nil {
		return nil, fmt.Errorf("store: mark outcome: %w", err)
	}
	if err := ensureReputation(ctx, tx, reputation.NewRecord(v.VoterPublicKey, time.Now())); err != nil {
		return nil, err
	}
	if err := updateReputation(ctx, tx, v.VoterPublicKey, fn); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	v.Outcome = &correct
	return &v, nil
}
