// Package trust turns reputation weighted votes into a bounded trust signal.
package trust

import (
	"math"
	"time"

	"github.com/starford/hearsay/internal/models"
)

// NeutralPercentage is the trust of a claim without votes.
const NeutralPercentage = 50.0

// DefaultFactor is the weight of a voter without a reputation record.
const DefaultFactor = 1.0

// Band is the presentation bucket of a trust percentage.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// Band thresholds.
const (
	HighThreshold   = 70.0
	MediumThreshold = 40.0
)

// Compute aggregates the votes on claimID into a TrustScore.
//
// Votes for other claims are ignored. Each vote weighs the voter's
// reputation factor, or DefaultFactor when the voter has no record yet.
// percentage = clamp(50 + 50*score/(weightedVerify+weightedDispute), 0, 100).
func Compute(claimID string, votes []models.Vote, reputations map[string]models.ReputationRecord, now time.Time) models.TrustScore {
	ts := models.TrustScore{ClaimID: claimID, Percentage: NeutralPercentage, UpdatedAt: now}

	var weightedVerify, weightedDispute float64
	for _, v := range votes {
		if v.ClaimID != claimID {
			continue
		}
		w := factor(reputations, v.VoterPublicKey)
		switch v.Kind {
		case models.VoteVerify:
			ts.VerifyCount++
			weightedVerify += w
		case models.VoteDispute:
			ts.DisputeCount++
			weightedDispute += w
		}
	}

	ts.Score = weightedVerify - weightedDispute
	total := weightedVerify + weightedDispute
	if ts.VerifyCount+ts.DisputeCount == 0 || total <= 0 {
		return ts
	}
	ts.Percentage = clamp(NeutralPercentage+NeutralPercentage*ts.Score/total, 0, 100)
	return ts
}

// BandOf returns the presentation band of a percentage.
func BandOf(percentage float64) Band {
	switch {
	case percentage >= HighThreshold:
		return BandHigh
	case percentage >= MediumThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// Anomalous reports whether a percentage falls in the low band.
func Anomalous(percentage float64) bool {
	return BandOf(percentage) == BandLow
}

func factor(reputations map[string]models.ReputationRecord, publicKey string) float64 {
	rec, ok := reputations[publicKey]
	if !ok || rec.Factor <= 0 || math.IsNaN(rec.Factor) {
		return DefaultFactor
	}
	return rec.Factor
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
