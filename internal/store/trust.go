package store

import (
	"context"
	"fmt"

	"github.com/starford/hearsay/internal/models"
)

// UpsertTrustScore replaces the cached score of a claim.
func (db *DB) UpsertTrustScore(ctx context.Context, ts models.TrustScore) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO trust_scores (rumor_id, verify_count, dispute_count, trust_score, trust_percentage, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(rumor_id) DO UPDATE SET
			verify_count     = excluded.verify_count,
			dispute_count    = excluded.dispute_count,
			trust_score      = excluded.trust_score,
			trust_percentage = excluded.trust_percentage,
			updated_at       = excluded.updated_at
	`, ts.ClaimID, ts.VerifyCount, ts.DisputeCount, ts.Score, ts.Percentage, ts.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert trust score: %w", err)
	}
	return nil
}

// TrustScores returns every cached score of a live claim.
func (db *DB) TrustScores(ctx context.Context) ([]models.TrustScore, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT t.rumor_id, t.verify_count, t.dispute_count, t.trust_score, t.trust_percentage, t.updated_at
		FROM trust_scores t JOIN claims c ON c.id = t.rumor_id
		WHERE c.deleted_at IS NULL
		ORDER BY t.rumor_id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: trust scores: %w", err)
	}
	defer rows.Close()

	out := []models.TrustScore{}
	for rows.Next() {
		var ts models.TrustScore
		if err := rows.Scan(&ts.ClaimID, &ts.VerifyCount, &ts.DisputeCount, &ts.Score, &ts.Percentage, &ts.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan trust score: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}
