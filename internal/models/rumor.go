// Package models defines the domain types for Hearsay.
package models

import "time"

// VoteKind is the direction of a vote on a claim.
type VoteKind string

const (
	VoteVerify  VoteKind = "verify"
	VoteDispute VoteKind = "dispute"
)

// Valid reports whether k is a known vote kind.
func (k VoteKind) Valid() bool {
	return k == VoteVerify || k == VoteDispute
}

// Claim is an anonymous rumor. Claims form a forest through ParentID.
type Claim struct {
	ID              string     `json:"id"`
	Content         string     `json:"content"`
	AuthorPublicKey string     `json:"public_key"`
	AuthorHandle    string     `json:"user_handle"`
	ParentID        *string    `json:"parent_id"`
	PowHash         string     `json:"pow_hash"`
	PowNonce        uint64     `json:"pow_nonce"`
	CreatedAt       time.Time  `json:"created_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Vote is a verification or dispute of a claim. At most one vote exists
// per (ClaimID, VoterPublicKey).
type Vote struct {
	ID             string    `json:"id"`
	ClaimID        string    `json:"rumor_id"`
	VoterPublicKey string    `json:"public_key"`
	VoterHandle    string    `json:"user_handle"`
	Kind           VoteKind  `json:"verification_type"`
	PowHash        string    `json:"pow_hash"`
	PowNonce       uint64    `json:"pow_nonce"`
	Outcome        *bool     `json:"outcome,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReputationRecord holds the vote weight of one identity.
type ReputationRecord struct {
	PublicKey       string    `json:"public_key"`
	Factor          float64   `json:"reputation_factor"`
	TotalVotes      uint64    `json:"total_verifications"`
	SuccessfulVotes uint64    `json:"successful_verifications"`
	FailedVotes     uint64    `json:"failed_verifications"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TrustScore is the cached aggregate of all votes on a claim.
type TrustScore struct {
	ClaimID      string    `json:"rumor_id"`
	VerifyCount  int       `json:"verify_count"`
	DisputeCount int       `json:"dispute_count"`
	Score        float64   `json:"trust_score"`
	Percentage   float64   `json:"trust_percentage"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ClaimView is a claim enriched for feed rendering.
type ClaimView struct {
	Claim
	Trust         TrustScore `json:"trust"`
	Band          string     `json:"trust_band"`
	Anomaly       bool       `json:"anomaly"`
	ChildrenCount int        `json:"children_count"`
	ViewerVote    *VoteKind  `json:"viewer_vote,omitempty"`
}
