// Package remote is the HTTP client of the shared record store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/starford/hearsay/internal/apperr"
	"github.com/starford/hearsay/internal/models"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// APIError is a non-2xx response from the store.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("store api error (%d): %s", e.StatusCode, e.Message)
}

// Unwrap maps the status onto the apperr sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return apperr.ErrValidation
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusConflict:
		return apperr.ErrConflict
	case http.StatusForbidden, http.StatusUnauthorized:
		return apperr.ErrForbidden
	case http.StatusUnprocessableEntity:
		return apperr.ErrInvalidProof
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway:
		return apperr.ErrUnavailable
	}
	return nil
}

// FeedQuery selects a feed page. Zero fields are omitted.
type FeedQuery struct {
	Filter   models.FeedFilter
	Sort     models.FeedSort
	Viewer   string
	ParentID string
	Author   string
	Offset   int
	Limit    int
}

// Client talks to the store REST API under <baseURL>/api.
type Client struct {
	baseURL        *url.URL
	token          string
	moderatorToken string
	httpClient     *http.Client
}

// NewClient creates a client for rawURL using token as the bearer credential.
// When httpClient is nil a client with DefaultHTTPTimeout is used.
func NewClient(rawURL, token string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("remote: invalid store url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, token: token, httpClient: httpClient}, nil
}

// SetModeratorToken sets the credential presented when judging votes.
func (c *Client) SetModeratorToken(token string) {
	c.moderatorToken = token
}

// Difficulty returns the proof-of-work difficulty the store requires.
func (c *Client) Difficulty(ctx context.Context) (uint, error) {
	var out struct {
		Difficulty uint `json:"difficulty"`
	}
	if err := c.call(ctx, http.MethodGet, "/pow", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Difficulty, nil
}

// ListClaims fetches a feed.
func (c *Client) ListClaims(ctx context.Context, q FeedQuery) ([]models.ClaimView, error) {
	params := url.Values{}
	if q.Filter != "" {
		params.Set("filter", string(q.Filter))
	}
	if q.Sort != "" {
		params.Set("sort", string(q.Sort))
	}
	if q.Viewer != "" {
		params.Set("viewer", q.Viewer)
	}
	if q.ParentID != "" {
		params.Set("parent", q.ParentID)
	}
	if q.Author != "" {
		params.Set("author", q.Author)
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	var out struct {
		Claims []models.ClaimView `json:"claims"`
	}
	if err := c.call(ctx, http.MethodGet, "/claims", params, nil, &out); err != nil {
		return nil, err
	}
	return out.Claims, nil
}

// GetClaim fetches one claim.
func (c *Client) GetClaim(ctx context.Context, id, viewer string) (*models.ClaimView, error) {
	params := url.Values{}
	if viewer != "" {
		params.Set("viewer", viewer)
	}
	var out models.ClaimView
	if err := c.call(ctx, http.MethodGet, "/claims/"+id, params, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PostClaim submits a mined claim.
func (c *Client) PostClaim(ctx context.Context, sub models.ClaimSubmission) (*models.Claim, error) {
	var out models.Claim
	if err := c.call(ctx, http.MethodPost, "/claims", nil, sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteClaim submits a signed soft delete.
func (c *Client) DeleteClaim(ctx context.Context, req models.DeleteRequest) error {
	return c.call(ctx, http.MethodDelete, "/claims/"+req.ClaimID, nil, req, nil)
}

// UserVote returns the vote publicKey cast on claimID.
func (c *Client) UserVote(ctx context.Context, claimID, publicKey string) (*models.Vote, error) {
	var out models.Vote
	endpoint := "/claims/" + claimID + "/votes/" + publicKey
	if err := c.call(ctx, http.MethodGet, endpoint, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CastVote submits a mined vote. Both a fresh and a surviving vote are
// returned as success.
func (c *Client) CastVote(ctx context.Context, sub models.VoteSubmission) (*models.Vote, error) {
	var out models.Vote
	if err := c.call(ctx, http.MethodPost, "/claims/"+sub.ClaimID+"/votes", nil, sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveVote records the judged outcome of a vote. It authenticates with
// the moderator token.
func (c *Client) ResolveVote(ctx context.Context, voteID string, correct bool) (models.ReputationRecord, error) {
	var out models.ReputationRecord
	body := map[string]bool{"correct": correct}
	if err := c.callAs(ctx, c.moderatorToken, http.MethodPost, "/votes/"+voteID+"/outcome", nil, body, &out); err != nil {
		return models.ReputationRecord{}, err
	}
	return out, nil
}

// Reputation fetches the record of publicKey.
func (c *Client) Reputation(ctx context.Context, publicKey string) (models.ReputationRecord, error) {
	var out models.ReputationRecord
	if err := c.call(ctx, http.MethodGet, "/reputation/"+publicKey, nil, nil, &out); err != nil {
		return models.ReputationRecord{}, err
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method, endpoint string, params url.Values, payload, out any) error {
	return c.callAs(ctx, c.token, method, endpoint, params, payload, out)
}

func (c *Client) callAs(ctx context.Context, token, method, endpoint string, params url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("remote: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, "/api", endpoint)
	u.RawPath = ""
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("remote: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("remote: %s %s: %w: %v", req.Method, req.URL.Path, apperr.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return fmt.Errorf("remote: read error response: %w", err)
		}
		if len(data) > 0 && json.Unmarshal(data, apiErr) != nil {
			apiErr.Message = string(data)
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode response: %w", err)
	}
	return nil
}
