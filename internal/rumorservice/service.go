// Package rumorservice is the server side of the claim store: it gates every
// write on a signature and a proof of work, enforces one vote per identity
// per claim, and recomputes trust scores when claims are read.
package rumorservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/starford/hearsay/internal/apperr"
	"github.com/starford/hearsay/internal/identity"
	"github.com/starford/hearsay/internal/models"
	"github.com/starford/hearsay/internal/pow"
	"github.com/starford/hearsay/internal/reputation"
	"github.com/starford/hearsay/internal/store"
	"github.com/starford/hearsay/internal/trust"
)

// Event kinds passed to an EventSink.
const (
	EventClaimCreated = "claim.created"
	EventClaimDeleted = "claim.deleted"
	EventVoteCast     = "vote.cast"
)

// EventSink receives notifications about accepted writes.
type EventSink interface {
	PublishClaimEvent(kind, claimID string)
}

// FeedOptions selects and orders a feed. Offset and Limit page the filtered,
// sorted result; a zero Limit returns everything after Offset.
type FeedOptions struct {
	Filter   models.FeedFilter
	Sort     models.FeedSort
	Viewer   string
	ParentID *string
	Author   string
	Offset   int
	Limit    int
}

// Service coordinates the record store, the reputation ledger and trust
// aggregation.
type Service struct {
	db     store.RecordStore
	ledger *reputation.Ledger
	logger *slog.Logger
	events EventSink

	difficulty atomic.Uint32
	trustTTL   time.Duration
	cache      *gocache.Cache
	flight     singleflight.Group
	claimLocks stripedLock
	// repGen counts reputation changes. A recompute that straddles one
	// does not memoise its result.
	repGen atomic.Uint64

	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithDifficulty sets the required proof-of-work difficulty.
func WithDifficulty(d uint) Option {
	return func(s *Service) {
		s.difficulty.Store(uint32(d))
	}
}

// WithPolicy sets the reputation adjustment rule.
func WithPolicy(p reputation.Policy) Option {
	return func(s *Service) {
		s.ledger = reputation.NewLedger(s.db, p)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithEvents sets the sink notified of accepted writes.
func WithEvents(sink EventSink) Option {
	return func(s *Service) {
		s.events = sink
	}
}

// WithTrustCacheTTL sets how long a computed trust score is reused.
// Zero disables the memo.
func WithTrustCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		s.trustTTL = d
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a service over db.
func NewService(db store.RecordStore, opts ...Option) *Service {
	s := &Service{
		db:       db,
		logger:   slog.Default(),
		trustTTL: 30 * time.Second,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	s.difficulty.Store(pow.DefaultDifficulty)
	s.ledger = reputation.NewLedger(db, reputation.DefaultPolicy())
	for _, opt := range opts {
		opt(s)
	}
	s.cache = gocache.New(s.trustTTL, 2*s.trustTTL+time.Minute)
	return s
}

// Difficulty returns the proof-of-work difficulty currently required.
func (s *Service) Difficulty() uint {
	return uint(s.difficulty.Load())
}

// SetDifficulty changes the difficulty required of new submissions.
func (s *Service) SetDifficulty(d uint) {
	if old := s.difficulty.Swap(uint32(d)); old != uint32(d) {
		s.logger.Info("pow difficulty changed", slog.Int("from", int(old)), slog.Int("to", int(d)))
	}
}

// Ping checks the record store.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// PostClaim validates and stores a claim submission.
func (s *Service) PostClaim(ctx context.Context, sub models.ClaimSubmission) (*models.Claim, error) {
	if err := models.ValidateContent(sub.Content); err != nil {
		return nil, err
	}
	if err := models.ValidatePublicKey(sub.PublicKey); err != nil {
		return nil, err
	}
	if sub.ParentID != nil {
		if _, err := s.db.GetClaim(ctx, *sub.ParentID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, apperr.Invalid("parent rumor not found")
			}
			return nil, err
		}
	}

	payload := pow.ClaimPayload{
		Content:   sub.Content,
		PublicKey: sub.PublicKey,
		ParentID:  sub.ParentID,
		Timestamp: sub.Timestamp,
	}.Bytes()
	if err := s.checkProof(payload, sub.PublicKey, sub.Nonce, sub.Hash, sub.Signature); err != nil {
		return nil, err
	}

	c := models.Claim{
		ID:              s.newID(),
		Content:         sub.Content,
		AuthorPublicKey: sub.PublicKey,
		AuthorHandle:    identity.DeriveHandle(sub.PublicKey),
		ParentID:        sub.ParentID,
		PowHash:         sub.Hash,
		PowNonce:        sub.Nonce,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.db.InsertClaim(ctx, c); err != nil {
		return nil, err
	}
	s.publish(EventClaimCreated, c.ID)
	return &c, nil
}

// CastVote validates and stores a vote. When the voter already has a vote on
// the claim, the surviving vote is returned with created == false.
func (s *Service) CastVote(ctx context.Context, sub models.VoteSubmission) (v *models.Vote, created bool, err error) {
	if err := models.ValidateKind(sub.Kind); err != nil {
		return nil, false, err
	}
	if err := models.ValidatePublicKey(sub.PublicKey); err != nil {
		return nil, false, err
	}
	if _, err := s.db.GetClaim(ctx, sub.ClaimID); err != nil {
		return nil, false, err
	}

	payload := pow.VotePayload{
		ClaimID:   sub.ClaimID,
		PublicKey: sub.PublicKey,
		Kind:      sub.Kind,
		Timestamp: sub.Timestamp,
	}.Bytes()
	if err := s.checkProof(payload, sub.PublicKey, sub.Nonce, sub.Hash, sub.Signature); err != nil {
		return nil, false, err
	}

	if err := s.ledger.Ensure(ctx, sub.PublicKey); err != nil {
		return nil, false, err
	}

	vote := models.Vote{
		ID:             s.newID(),
		ClaimID:        sub.ClaimID,
		VoterPublicKey: sub.PublicKey,
		VoterHandle:    identity.DeriveHandle(sub.PublicKey),
		Kind:           sub.Kind,
		PowHash:        sub.Hash,
		PowNonce:       sub.Nonce,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.db.InsertVote(ctx, vote); err != nil {
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, false, err
		}
		existing, getErr := s.db.GetVote(ctx, sub.ClaimID, sub.PublicKey)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}

	s.invalidate(sub.ClaimID)
	s.publish(EventVoteCast, sub.ClaimID)
	return &vote, true, nil
}

// DeleteClaim soft-deletes a claim on behalf of its author.
func (s *Service) DeleteClaim(ctx context.Context, req models.DeleteRequest) error {
	if err := models.ValidatePublicKey(req.PublicKey); err != nil {
		return err
	}
	if !identity.VerifySignature(req.PublicKey, models.DeleteMessage(req.ClaimID, req.Timestamp), req.Signature) {
		return apperr.ErrInvalidSignature
	}
	c, err := s.db.GetClaim(ctx, req.ClaimID)
	if err != nil {
		return err
	}
	if c.AuthorPublicKey != req.PublicKey {
		return apperr.ErrForbidden
	}
	if err := s.db.SoftDeleteClaim(ctx, req.ClaimID, s.now()); err != nil {
		return err
	}
	s.invalidate(req.ClaimID)
	s.publish(EventClaimDeleted, req.ClaimID)
	return nil
}

// UserVote returns the vote voterPublicKey cast on claimID.
func (s *Service) UserVote(ctx context.Context, claimID, voterPublicKey string) (*models.Vote, error) {
	return s.db.GetVote(ctx, claimID, voterPublicKey)
}

// ResolveVote applies an external judgment of a vote to its voter's
// reputation. A vote can be judged once.
func (s *Service) ResolveVote(ctx context.Context, voteID string, correct bool) (models.ReputationRecord, error) {
	_, rec, err := s.ledger.ResolveVote(ctx, voteID, correct)
	if err != nil {
		return models.ReputationRecord{}, err
	}
	// A factor change reweights every claim the voter touched.
	s.repGen.Add(1)
	s.cache.Flush()
	return rec, nil
}

// Reputation returns the record of publicKey, defaulted when absent.
func (s *Service) Reputation(ctx context.Context, publicKey string) (models.ReputationRecord, error) {
	return s.ledger.Get(ctx, publicKey)
}

// TrustScores returns the cached scores of all live claims.
func (s *Service) TrustScores(ctx context.Context) ([]models.TrustScore, error) {
	return s.db.TrustScores(ctx)
}

// GetClaim returns one live claim with fresh trust.
func (s *Service) GetClaim(ctx context.Context, id, viewer string) (*models.ClaimView, error) {
	c, err := s.db.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := s.view(ctx, *c, viewer)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ListClaims returns live claims with recomputed trust, filtered and sorted.
func (s *Service) ListClaims(ctx context.Context, opts FeedOptions) ([]models.ClaimView, error) {
	order := store.OrderNewest
	if opts.Sort == models.SortOldest {
		order = store.OrderOldest
	}
	claims, err := s.db.ListClaims(ctx, store.ListOptions{ParentID: opts.ParentID, Author: opts.Author, Order: order})
	if err != nil {
		return nil, err
	}

	out := make([]models.ClaimView, 0, len(claims))
	for _, c := range claims {
		view, err := s.view(ctx, c, opts.Viewer)
		if err != nil {
			return nil, err
		}
		switch opts.Filter {
		case models.FilterVerified:
			if view.Trust.VerifyCount == 0 {
				continue
			}
		case models.FilterUnverified:
			if view.Trust.VerifyCount > 0 {
				continue
			}
		}
		out = append(out, view)
	}

	if opts.Sort == models.SortHottest {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Trust.Score > out[j].Trust.Score
		})
	}
	return page(out, opts.Offset, opts.Limit), nil
}

func page(views []models.ClaimView, offset, limit int) []models.ClaimView {
	if offset >= len(views) {
		return []models.ClaimView{}
	}
	if offset > 0 {
		views = views[offset:]
	}
	if limit > 0 && limit < len(views) {
		views = views[:limit]
	}
	return views
}

// Trust returns the trust score of claimID, recomputing it from the full
// vote set unless a fresh memo exists.
func (s *Service) Trust(ctx context.Context, claimID string) (models.TrustScore, error) {
	if v, ok := s.cache.Get(claimID); ok {
		return v.(models.TrustScore), nil
	}
	v, err, _ := s.flight.Do(claimID, func() (any, error) {
		return s.recompute(ctx, claimID)
	})
	if err != nil {
		return models.TrustScore{}, err
	}
	return v.(models.TrustScore), nil
}

func (s *Service) recompute(ctx context.Context, claimID string) (models.TrustScore, error) {
	unlock := s.claimLocks.lock(claimID)
	defer unlock()
	gen := s.repGen.Load()

	votes, err := s.db.VotesForClaim(ctx, claimID)
	if err != nil {
		return models.TrustScore{}, err
	}
	keys := make([]string, 0, len(votes))
	for _, v := range votes {
		keys = append(keys, v.VoterPublicKey)
	}
	reps, err := s.ledger.Records(ctx, keys)
	if err != nil {
		return models.TrustScore{}, err
	}

	ts := trust.Compute(claimID, votes, reps, s.now().UTC())
	if err := s.db.UpsertTrustScore(ctx, ts); err != nil {
		return models.TrustScore{}, err
	}
	if s.trustTTL > 0 && s.repGen.Load() == gen {
		s.cache.Set(claimID, ts, s.trustTTL)
	}
	return ts, nil
}

func (s *Service) view(ctx context.Context, c models.Claim, viewer string) (models.ClaimView, error) {
	ts, err := s.Trust(ctx, c.ID)
	if err != nil {
		return models.ClaimView{}, fmt.Errorf("rumorservice: trust for %s: %w", c.ID, err)
	}
	children, err := s.db.CountChildren(ctx, c.ID)
	if err != nil {
		return models.ClaimView{}, err
	}
	view := models.ClaimView{
		Claim:         c,
		Trust:         ts,
		Band:          string(trust.BandOf(ts.Percentage)),
		Anomaly:       trust.Anomalous(ts.Percentage),
		ChildrenCount: children,
	}
	if viewer != "" {
		v, err := s.db.GetVote(ctx, c.ID, viewer)
		switch {
		case err == nil:
			kind := v.Kind
			view.ViewerVote = &kind
		case !errors.Is(err, apperr.ErrNotFound):
			return models.ClaimView{}, err
		}
	}
	return view, nil
}

// invalidate drops the memo for claimID. It waits for an in-flight
// recompute of the same claim so a stale result cannot outlive the write.
func (s *Service) invalidate(claimID string) {
	unlock := s.claimLocks.lock(claimID)
	s.cache.Delete(claimID)
	unlock()
}

func (s *Service) checkProof(payload []byte, publicKey string, nonce uint64, hash, signature string) error {
	if !identity.VerifySignature(publicKey, payload, signature) {
		return apperr.ErrInvalidSignature
	}
	if !pow.Verify(pow.Proof{Payload: payload, Nonce: nonce, Hash: hash}, s.Difficulty()) {
		return apperr.ErrInvalidProof
	}
	return nil
}

func (s *Service) publish(kind, claimID string) {
	if s.events != nil {
		s.events.PublishClaimEvent(kind, claimID)
	}
}

// Policy returns the reputation adjustment rule in force.
func (s *Service) Policy() reputation.Policy {
	return s.ledger.Policy()
}
