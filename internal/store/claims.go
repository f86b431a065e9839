package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/starford/hearsay/internal/apperr"
	"github.com/starford/hearsay/internal/models"
)

var claimColumns = []string{
	"id", "content", "public_key", "user_handle", "parent_id",
	"pow_hash", "pow_nonce", "created_at", "deleted_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(s rowScanner) (models.Claim, error) {
	var (
		c        models.Claim
		parentID sql.NullString
		nonce    int64
		deleted  sql.NullTime
	)
	if err := s.Scan(&c.ID, &c.Content, &c.AuthorPublicKey, &c.AuthorHandle, &parentID,
		&c.PowHash, &nonce, &c.CreatedAt, &deleted); err != nil {
		return models.Claim{}, err
	}
	if parentID.Valid {
		p := parentID.String
		c.ParentID = &p
	}
	c.PowNonce = uint64(nonce)
	if deleted.Valid {
		d := deleted.Time
		c.DeletedAt = &d
	}
	return c, nil
}

// InsertClaim stores a new claim. A duplicate id is apperr.ErrAlreadyExists.
func (db *DB) InsertClaim(ctx context.Context, c models.Claim) error {
	var parent any
	if c.ParentID != nil {
		parent = *c.ParentID
	}
	query, args, err := sq.Insert("claims").
		Columns("id", "content", "public_key", "user_handle", "parent_id", "pow_hash", "pow_nonce", "created_at").
		Values(c.ID, c.Content, c.AuthorPublicKey, c.AuthorHandle, parent, c.PowHash, int64(c.PowNonce), c.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build insert claim: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrAlreadyExists
		}
		return fmt.Errorf("store: insert claim: %w", err)
	}
	return nil
}

// GetClaim returns a live claim by id.
func (db *DB) GetClaim(ctx context.Context, id string) (*models.Claim, error) {
	query, args, err := sq.Select(claimColumns...).From("claims").
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build get claim: %w", err)
	}
	c, err := scanClaim(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("store: get claim: %w", err)
	}
	return &c, nil
}

// ListClaims returns live claims ordered by creation time.
func (db *DB) ListClaims(ctx context.Context, opts ListOptions) ([]models.Claim, error) {
	b := sq.Select(claimColumns...).From("claims").Where(sq.Eq{"deleted_at": nil})
	if opts.ParentID != nil {
		b = b.Where(sq.Eq{"parent_id": *opts.ParentID})
	}
	if opts.Author != "" {
		b = b.Where(sq.Eq{"public_key": opts.Author})
	}
	if opts.Order == OrderOldest {
		b = b.OrderBy("created_at ASC", "id ASC")
	} else {
		b = b.OrderBy("created_at DESC", "id DESC")
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build list claims: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list claims: %w", err)
	}
	defer rows.Close()

	out := []models.Claim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountChildren counts live claims whose parent is parentID.
func (db *DB) CountChildren(ctx context.Context, parentID string) (int, error) {
	query, args, err := sq.Select("count(*)").From("claims").
		Where(sq.Eq{"parent_id": parentID, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build count children: %w", err)
	}
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count children: %w", err)
	}
	return n, nil
}

// SoftDeleteClaim marks a live claim deleted. Descendants are untouched.
func (db *DB) SoftDeleteClaim(ctx context.Context, id string, at time.Time) error {
	query, args, err := sq.Update("claims").
		Set("deleted_at", at.UTC()).
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build soft delete: %w", err)
	}
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: soft delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
