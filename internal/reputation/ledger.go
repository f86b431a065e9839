// Package reputation tracks the vote weight of each identity.
//
// Records are created lazily with factor 1.0 on first vote and adjusted
// by a bounded step whenever an external judge rules on one of the
// identity's votes.
package reputation

import (
	"context"
	"fmt"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/hearsay/internal/models"
)

// Defaults for Policy.
const (
	DefaultFactor = 1.0
	DefaultDelta  = 0.05
	DefaultMin    = 0.1
	DefaultMax    = 5.0
)

// Policy is the bounded adjustment rule applied to a factor.
type Policy struct {
	Delta float64 `yaml:"delta"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
}

// DefaultPolicy returns delta 0.05 bounded to [0.1, 5.0].
func DefaultPolicy() Policy {
	return Policy{Delta: DefaultDelta, Min: DefaultMin, Max: DefaultMax}
}

// Validate checks 0 < Min <= 1 <= Max and Delta > 0.
func (p *Policy) Validate() error {
	if err := validation.ValidateStruct(p,
		validation.Field(&p.Delta, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&p.Min, validation.Required, validation.Min(0.0).Exclusive(), validation.Max(DefaultFactor)),
		validation.Field(&p.Max, validation.Required, validation.Min(DefaultFactor)),
	); err != nil {
		return fmt.Errorf("reputation: %w", err)
	}
	return nil
}

// Apply returns rec updated for one judged vote. The factor never leaves
// [Min, Max].
func (p Policy) Apply(rec models.ReputationRecord, wasCorrect bool, now time.Time) models.ReputationRecord {
	rec.TotalVotes++
	step := p.Delta
	if wasCorrect {
		rec.SuccessfulVotes++
	} else {
		rec.FailedVotes++
		step = -step
	}
	rec.Factor = p.clamp(rec.Factor + step)
	rec.UpdatedAt = now
	return rec
}

func (p Policy) clamp(f float64) float64 {
	if math.IsNaN(f) {
		return DefaultFactor
	}
	return math.Max(p.Min, math.Min(p.Max, f))
}

// NewRecord returns the initial record for publicKey.
func NewRecord(publicKey string, now time.Time) models.ReputationRecord {
	return models.ReputationRecord{PublicKey: publicKey, Factor: DefaultFactor, UpdatedAt: now}
}

// Repository is the storage contract of the ledger.
//
// ResolveVote must mark the vote judged and run fn on its voter's record in
// one read-modify-write that is atomic with respect to other writers of the
// same key. The record passed to fn exists. When fn fails the vote stays
// unjudged.
type Repository interface {
	EnsureReputation(ctx context.Context, rec models.ReputationRecord) error
	GetReputation(ctx context.Context, publicKey string) (*models.ReputationRecord, error)
	Reputations(ctx context.Context, publicKeys []string) (map[string]models.ReputationRecord, error)
	ResolveVote(ctx context.Context, voteID string, correct bool, fn func(*models.ReputationRecord) error) (*models.Vote, error)
}

// Ledger applies Policy to records kept in a Repository.
type Ledger struct {
	repo   Repository
	policy Policy
	now    func() time.Time
}

// NewLedger creates a ledger.
func NewLedger(repo Repository, policy Policy) *Ledger {
	return &Ledger{repo: repo, policy: policy, now: time.Now}
}

// Policy returns the active adjustment rule.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// Ensure creates the default record for publicKey if none exists. It is
// idempotent and safe under concurrent calls for the same key.
func (l *Ledger) Ensure(ctx context.Context, publicKey string) error {
	if err := l.repo.EnsureReputation(ctx, NewRecord(publicKey, l.now())); err != nil {
		return fmt.Errorf("reputation: ensure: %w", err)
	}
	return nil
}

// Get returns the record for publicKey, or a default record when none exists.
func (l *Ledger) Get(ctx context.Context, publicKey string) (models.ReputationRecord, error) {
	rec, err := l.repo.GetReputation(ctx, publicKey)
	if err != nil {
		return models.ReputationRecord{}, fmt.Errorf("reputation: get: %w", err)
	}
	if rec == nil {
		return NewRecord(publicKey, l.now()), nil
	}
	return *rec, nil
}

// Records returns the existing records for publicKeys.
func (l *Ledger) Records(ctx context.Context, publicKeys []string) (map[string]models.ReputationRecord, error) {
	if len(publicKeys) == 0 {
		return map[string]models.ReputationRecord{}, nil
	}
	recs, err := l.repo.Reputations(ctx, publicKeys)
	if err != nil {
		return nil, fmt.Errorf("reputation: records: %w", err)
	}
	return recs, nil
}

// ResolveVote judges voteID and applies the outcome to its voter's record.
// The judgment and the adjustment commit together.
func (l *Ledger) ResolveVote(ctx context.Context, voteID string, correct bool) (*models.Vote, models.ReputationRecord, error) {
	var out models.ReputationRecord
	v, err := l.repo.ResolveVote(ctx, voteID, correct, func(rec *models.ReputationRecord) error {
		*rec = l.policy.Apply(*rec, correct, l.now())
		out = *rec
		return nil
	})
	if err != nil {
		return nil, models.ReputationRecord{}, fmt.Errorf("reputation: resolve vote: %w", err)
	}
	return v, out, nil
}
