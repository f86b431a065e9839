package client

import (
	"context"
	"fmt"

	"github.com/starford/hearsay/internal/identity"
	"github.com/starford/hearsay/internal/models"
	"github.com/starford/hearsay/internal/pow"
)

// NewClaimSubmission signs and mines a claim at the given difficulty.
func NewClaimSubmission(ctx context.Context, id *identity.Identity, content string, parentID *string, ts int64, difficulty uint, opts ...pow.MineOption) (models.ClaimSubmission, error) {
	payload := pow.ClaimPayload{
		Content:   content,
		PublicKey: id.PublicKeyHex(),
		ParentID:  parentID,
		Timestamp: ts,
	}.Bytes()
	proof, err := pow.Mine(ctx, payload, difficulty, opts...)
	if err != nil {
		return models.ClaimSubmission{}, fmt.Errorf("mine claim: %w", err)
	}
	return models.ClaimSubmission{
		Content:   content,
		PublicKey: id.PublicKeyHex(),
		ParentID:  parentID,
		Timestamp: ts,
		Nonce:     proof.Nonce,
		Hash:      proof.Hash,
		Signature: id.Sign(payload),
	}, nil
}

// NewVoteSubmission signs and mines a vote at the given difficulty.
func NewVoteSubmission(ctx context.Context, id *identity.Identity, claimID string, kind models.VoteKind, ts int64, difficulty uint, opts ...pow.MineOption) (models.VoteSubmission, error) {
	payload := pow.VotePayload{
		ClaimID:   claimID,
		PublicKey: id.PublicKeyHex(),
		Kind:      kind,
		Timestamp: ts,
	}.Bytes()
	proof, err := pow.Mine(ctx, payload, difficulty, opts...)
	if err != nil {
		return models.VoteSubmission{}, fmt.Errorf("mine vote: %w", err)
	}
	return models.VoteSubmission{
		ClaimID:   claimID,
		PublicKey: id.PublicKeyHex(),
		Kind:      kind,
		Timestamp: ts,
		Nonce:     proof.Nonce,
		Hash:      proof.Hash,
		Signature: id.Sign(payload),
	}, nil
}

// NewDeleteRequest signs a soft delete of claimID.
func NewDeleteRequest(id *identity.Identity, claimID string, ts int64) models.DeleteRequest {
	return models.DeleteRequest{
		ClaimID:   claimID,
		PublicKey: id.PublicKeyHex(),
		Timestamp: ts,
		Signature: id.Sign(models.DeleteMessage(claimID, ts)),
	}
}
