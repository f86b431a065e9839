package store

import (
	"context"
	"time"

	"github.com/starford/hearsay/internal/models"
	"github.com/starford/hearsay/internal/reputation"
)

// Order is the creation-time ordering of a claim listing.
type Order string

const (
	OrderNewest Order = "newest"
	OrderOldest Order = "oldest"
)

// ListOptions narrows a claim listing. Zero value lists every live claim,
// newest first.
type ListOptions struct {
	ParentID *string
	Author   string
	Order    Order
}

// RecordStore defines the record store operations the service depends on.
// Soft-deleted claims are invisible to every read.
type RecordStore interface {
	reputation.Repository

	InsertClaim(ctx context.Context, c models.Claim) error
	GetClaim(ctx context.Context, id string) (*models.Claim, error)
	ListClaims(ctx context.Context, opts ListOptions) ([]models.Claim, error)
	CountChildren(ctx context.Context, parentID string) (int, error)
	SoftDeleteClaim(ctx context.Context, id string, at time.Time) error

	InsertVote(ctx context.Context, v models.Vote) error
	GetVote(ctx context.Context, claimID, voterPublicKey string) (*models.Vote, error)
	GetVoteByID(ctx context.Context, id string) (*models.Vote, error)
	VotesForClaim(ctx context.Context, claimID string) ([]models.Vote, error)

	UpsertTrustScore(ctx context.Context, ts models.TrustScore) error
	TrustScores(ctx context.Context) ([]models.TrustScore, error)

	Ping(ctx context.Context) error
	Close() error
}

// Verify *DB satisfies RecordStore at compile time.
var _ RecordStore = (*DB)(nil)
