package api

import "github.com/starford/hearsay/internal/models"

// ClaimListResponse wraps a feed.
type ClaimListResponse struct {
	Claims []models.ClaimView `json:"claims" validate:"required"`
}

// TrustListResponse wraps cached trust scores.
type TrustListResponse struct {
	Scores []models.TrustScore `json:"scores" validate:"required"`
}

// PowResponse advertises the difficulty new submissions must meet.
type PowResponse struct {
	Difficulty uint `json:"difficulty" example:"3"`
}

// OutcomeRequest is the body of a vote resolution.
type OutcomeRequest struct {
	Correct *bool `json:"correct" validate:"required"`
}
