// Package client runs the installation side of Hearsay: it owns the local
// identity, rejects invalid writes before mining, mines proofs and talks to
// the shared store. Store read failures degrade to empty results.
package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/hearsay/internal/apperr"
	"github.com/starford/hearsay/internal/identity"
	"github.com/starford/hearsay/internal/models"
	"github.com/starford/hearsay/internal/pow"
	"github.com/starford/hearsay/internal/remote"
)

// Store is the subset of the store API the installation uses.
type Store interface {
	Difficulty(ctx context.Context) (uint, error)
	ListClaims(ctx context.Context, q remote.FeedQuery) ([]models.ClaimView, error)
	PostClaim(ctx context.Context, sub models.ClaimSubmission) (*models.Claim, error)
	DeleteClaim(ctx context.Context, req models.DeleteRequest) error
	UserVote(ctx context.Context, claimID, publicKey string) (*models.Vote, error)
	CastVote(ctx context.Context, sub models.VoteSubmission) (*models.Vote, error)
	ResolveVote(ctx context.Context, voteID string, correct bool) (models.ReputationRecord, error)
	Reputation(ctx context.Context, publicKey string) (models.ReputationRecord, error)
}

var _ Store = (*remote.Client)(nil)

// Client is one installation.
type Client struct {
	store      Store
	identities *identity.Manager
	difficulty uint
	logger     *slog.Logger
	progress   pow.ProgressFunc
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithDifficulty sets the minimum difficulty this installation mines at.
func WithDifficulty(d uint) Option {
	return func(c *Client) {
		c.difficulty = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithProgress receives mining progress.
func WithProgress(fn pow.ProgressFunc) Option {
	return func(c *Client) {
		c.progress = fn
	}
}

// WithClock overrides time.Now for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates an installation client.
func New(store Store, identities *identity.Manager, opts ...Option) *Client {
	c := &Client{
		store:      store,
		identities: identities,
		difficulty: pow.DefaultDifficulty,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identity returns the installation identity, creating it on first use.
func (c *Client) Identity() (*identity.Identity, error) {
	return c.identities.GetOrCreate()
}

// Post publishes a claim, optionally as a reply to parentID.
func (c *Client) Post(ctx context.Context, content string, parentID *string) (*models.Claim, error) {
	if err := models.ValidateContent(content); err != nil {
		return nil, err
	}
	id, err := c.Identity()
	if err != nil {
		return nil, err
	}

	difficulty := c.requiredDifficulty(ctx)
	start := time.Now()
	sub, err := NewClaimSubmission(ctx, id, content, parentID, pow.Timestamp(c.now()), difficulty, c.mineOptions()...)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("claim mined",
		slog.Uint64("nonce", sub.Nonce),
		slog.Int("difficulty", int(difficulty)),
		slog.Duration("took", time.Since(start)),
	)
	return c.store.PostClaim(ctx, sub)
}

// Vote verifies or disputes a claim. A claim this identity already voted on
// is rejected with apperr.ErrAlreadyVoted before any mining.
func (c *Client) Vote(ctx context.Context, claimID string, kind models.VoteKind) (*models.Vote, error) {
	if err := models.ValidateKind(kind); err != nil {
		return nil, err
	}
	id, err := c.Identity()
	if err != nil {
		return nil, err
	}
	if prior := c.MyVote(ctx, claimID); prior != nil {
		return nil, apperr.ErrAlreadyVoted
	}

	sub, err := NewVoteSubmission(ctx, id, claimID, kind, pow.Timestamp(c.now()), c.requiredDifficulty(ctx), c.mineOptions()...)
	if err != nil {
		return nil, err
	}
	v, err := c.store.CastVote(ctx, sub)
	if err != nil {
		return nil, err
	}
	// The store keeps the first vote when two race.
	if v.Kind != kind || v.PowHash != sub.Hash {
		return v, apperr.ErrAlreadyVoted
	}
	return v, nil
}

// MyVote returns the vote this identity cast on claimID, or nil when it has
// not voted or the store cannot tell.
func (c *Client) MyVote(ctx context.Context, claimID string) *models.Vote {
	id, err := c.Identity()
	if err != nil {
		c.logger.Error("identity unavailable", slog.String("error", err.Error()))
		return nil
	}
	v, err := c.store.UserVote(ctx, claimID, id.PublicKeyHex())
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			c.logger.Error("vote lookup failed",
				slog.String("claim", claimID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	return v
}

// Feed lists claims as seen by this identity; q.Viewer is overwritten.
// A failing store yields an empty feed.
func (c *Client) Feed(ctx context.Context, q remote.FeedQuery) []models.ClaimView {
	q.Viewer = ""
	if id, err := c.Identity(); err == nil {
		q.Viewer = id.PublicKeyHex()
	}
	claims, err := c.store.ListClaims(ctx, q)
	if err != nil {
		c.logger.Error("feed unavailable", slog.String("error", err.Error()))
		return []models.ClaimView{}
	}
	return claims
}

// Delete retracts a claim this identity authored.
func (c *Client) Delete(ctx context.Context, claimID string) error {
	id, err := c.Identity()
	if err != nil {
		return err
	}
	return c.store.DeleteClaim(ctx, NewDeleteRequest(id, claimID, pow.Timestamp(c.now())))
}

// Resolve reports the judged outcome of a vote.
func (c *Client) Resolve(ctx context.Context, voteID string, correct bool) (models.ReputationRecord, error) {
	return c.store.ResolveVote(ctx, voteID, correct)
}

// Reputation returns this identity's reputation record.
func (c *Client) Reputation(ctx context.Context) (models.ReputationRecord, error) {
	id, err := c.Identity()
	if err != nil {
		return models.ReputationRecord{}, err
	}
	return c.store.Reputation(ctx, id.PublicKeyHex())
}

// requiredDifficulty is the larger of the local minimum and the store's
// advertised difficulty.
func (c *Client) requiredDifficulty(ctx context.Context) uint {
	server, err := c.store.Difficulty(ctx)
	if err != nil {
		c.logger.Warn("store difficulty unavailable, using local",
			slog.Int("difficulty", int(c.difficulty)),
			slog.String("error", err.Error()),
		)
		return c.difficulty
	}
	return max(c.difficulty, server)
}

func (c *Client) mineOptions() []pow.MineOption {
	if c.progress == nil {
		return nil
	}
	return []pow.MineOption{pow.WithProgress(c.progress)}
}
