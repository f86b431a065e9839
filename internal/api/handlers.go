package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/hearsay/internal/apperr"
	"github.com/starford/hearsay/internal/models"
	"github.com/starford/hearsay/internal/rumorservice"
)

// MaxPageSize bounds the limit query parameter of feed listings.
const MaxPageSize = 200

// Handler holds API route handlers.
type Handler struct {
	svc *rumorservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *rumorservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListClaims handles GET /api/claims.
//
//	@Summary		List live claims with trust scores
//	@Tags			claims
//	@Produce		json
//	@Param			filter	query		string	false	"Verification filter"	Enums(all, verified, unverified)
//	@Param			sort	query		string	false	"Ordering"	Enums(newest, oldest, hottest)
//	@Param			viewer	query		string	false	"Viewer public key"
//	@Param			parent	query		string	false	"Only replies to this claim"
//	@Param			author	query		string	false	"Only claims by this public key"
//	@Param			offset	query		int		false	"Skip this many claims"
//	@Param			limit	query		int		false	"Return at most this many claims"
//	@Success		200		{object}	ClaimListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/claims [get]
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := rumorservice.FeedOptions{
		Filter: models.ParseFeedFilter(q.Get("filter")),
		Sort:   models.ParseFeedSort(q.Get("sort")),
		Viewer: q.Get("viewer"),
		Author: q.Get("author"),
	}
	if parent := q.Get("parent"); parent != "" {
		opts.ParentID = &parent
	}
	var err error
	if opts.Offset, opts.Limit, err = parsePaging(q); err != nil {
		writeError(w, "list claims", err)
		return
	}

	claims, err := h.svc.ListClaims(r.Context(), opts)
	if err != nil {
		writeError(w, "list claims", err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimListResponse{Claims: claims})
}

func parsePaging(q url.Values) (offset, limit int, err error) {
	for _, p := range []struct {
		name  string
		dst   *int
		rules []validation.Rule
	}{
		{"offset", &offset, []validation.Rule{validation.Min(0)}},
		{"limit", &limit, []validation.Rule{validation.Min(0), validation.Max(MaxPageSize)}},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, 0, apperr.Invalid(p.name + ": must be an integer")
		}
		if vErr := validation.Validate(n, p.rules...); vErr != nil {
			return 0, 0, apperr.Invalid(p.name + ": " + vErr.Error())
		}
		*p.dst = n
	}
	return offset, limit, nil
}

// GetClaim handles GET /api/claims/{id}.
//
//	@Summary		Get one claim with fresh trust
//	@Tags			claims
//	@Produce		json
//	@Param			id		path		string	true	"Claim id"
//	@Param			viewer	query		string	false	"Viewer public key"
//	@Success		200		{object}	models.ClaimView
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/claims/{id} [get]
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetClaim(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("viewer"))
	if err != nil {
		writeError(w, "get claim", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CreateClaim handles POST /api/claims.
//
//	@Summary		Publish a signed, mined claim
//	@Tags			claims
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.ClaimSubmission	true	"Claim submission"
//	@Success		201		{object}	models.Claim
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/claims [post]
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	var sub models.ClaimSubmission
	if !decodeJSON(w, r, &sub) {
		return
	}
	c, err := h.svc.PostClaim(r.Context(), sub)
	if err != nil {
		writeError(w, "create claim", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// DeleteClaim handles DELETE /api/claims/{id}.
//
//	@Summary		Soft-delete a claim as its author
//	@Tags			claims
//	@Accept			json
//	@Param			id		path	string					true	"Claim id"
//	@Param			body	body	models.DeleteRequest	true	"Signed delete"
//	@Success		204		"Claim deleted"
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/claims/{id} [delete]
func (h *Handler) DeleteClaim(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ClaimID = chi.URLParam(r, "id")
	if err := h.svc.DeleteClaim(r.Context(), req); err != nil {
		writeError(w, "delete claim", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUserVote handles GET /api/claims/{id}/votes/{publicKey}.
//
//	@Summary		Get the vote an identity cast on a claim
//	@Tags			votes
//	@Produce		json
//	@Param			id			path		string	true	"Claim id"
//	@Param			publicKey	path		string	true	"Voter public key"
//	@Success		200			{object}	models.Vote
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/claims/{id}/votes/{publicKey} [get]
func (h *Handler) GetUserVote(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.UserVote(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "publicKey"))
	if err != nil {
		writeError(w, "get vote", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// CastVote handles POST /api/claims/{id}/votes.
//
//	@Summary		Verify or dispute a claim
//	@Description	A second vote by the same identity is a no-op and returns the surviving vote with 200.
//	@Tags			votes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Claim id"
//	@Param			body	body		models.VoteSubmission	true	"Vote submission"
//	@Success		201		{object}	models.Vote
//	@Success		200		{object}	models.Vote
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/claims/{id}/votes [post]
func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	var sub models.VoteSubmission
	if !decodeJSON(w, r, &sub) {
		return
	}
	sub.ClaimID = chi.URLParam(r, "id")
	v, created, err := h.svc.CastVote(r.Context(), sub)
	if err != nil {
		writeError(w, "cast vote", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, v)
}

// ResolveVote handles POST /api/votes/{id}/outcome. Only the moderator
// token is accepted.
//
//	@Summary		Record whether a vote turned out correct
//	@Tags			votes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Vote id"
//	@Param			body	body		OutcomeRequest	true	"Outcome"
//	@Success		200		{object}	models.ReputationRecord
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		ModeratorAuth
//	@Router			/votes/{id}/outcome [post]
func (h *Handler) ResolveVote(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Correct == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("correct is required"))
		return
	}
	rec, err := h.svc.ResolveVote(r.Context(), chi.URLParam(r, "id"), *req.Correct)
	if err != nil {
		writeError(w, "resolve vote", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetReputation handles GET /api/reputation/{publicKey}.
//
//	@Summary		Get the reputation record of an identity
//	@Tags			reputation
//	@Produce		json
//	@Param			publicKey	path		string	true	"Public key"
//	@Success		200			{object}	models.ReputationRecord
//	@Security		BearerAuth
//	@Router			/reputation/{publicKey} [get]
func (h *Handler) GetReputation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Reputation(r.Context(), chi.URLParam(r, "publicKey"))
	if err != nil {
		writeError(w, "get reputation", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListTrust handles GET /api/trust.
//
//	@Summary		List cached trust scores of live claims
//	@Tags			trust
//	@Produce		json
//	@Success		200	{object}	TrustListResponse
//	@Security		BearerAuth
//	@Router			/trust [get]
func (h *Handler) ListTrust(w http.ResponseWriter, r *http.Request) {
	scores, err := h.svc.TrustScores(r.Context())
	if err != nil {
		writeError(w, "list trust", err)
		return
	}
	if scores == nil {
		scores = []models.TrustScore{}
	}
	writeJSON(w, http.StatusOK, TrustListResponse{Scores: scores})
}

// GetPow handles GET /api/pow.
//
//	@Summary		Get the proof-of-work difficulty in force
//	@Tags			pow
//	@Produce		json
//	@Success		200	{object}	PowResponse
//	@Security		BearerAuth
//	@Router			/pow [get]
func (h *Handler) GetPow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PowResponse{Difficulty: h.svc.Difficulty()})
}
