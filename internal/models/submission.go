package models

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/hearsay/internal/apperr"
)

// Content length bounds, in characters.
const (
	MinContentLength = 10
	MaxContentLength = 5000
)

// FeedFilter selects claims by verification state.
type FeedFilter string

const (
	FilterAll        FeedFilter = "all"
	FilterVerified   FeedFilter = "verified"
	FilterUnverified FeedFilter = "unverified"
)

// FeedSort orders a feed.
type FeedSort string

const (
	SortNewest  FeedSort = "newest"
	SortOldest  FeedSort = "oldest"
	SortHottest FeedSort = "hottest"
)

// ClaimSubmission is a proof-carrying request to publish a claim.
type ClaimSubmission struct {
	Content   string  `json:"content"`
	PublicKey string  `json:"publicKey"`
	ParentID  *string `json:"parentId,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Nonce     uint64  `json:"nonce"`
	Hash      string  `json:"hash"`
	Signature string  `json:"signature"`
}

// VoteSubmission is a proof-carrying request to vote on a claim.
type VoteSubmission struct {
	ClaimID   string   `json:"rumorId"`
	PublicKey string   `json:"publicKey"`
	Kind      VoteKind `json:"type"`
	Timestamp int64    `json:"timestamp"`
	Nonce     uint64   `json:"nonce"`
	Hash      string   `json:"hash"`
	Signature string   `json:"signature"`
}

// DeleteRequest is an author-signed soft delete.
type DeleteRequest struct {
	ClaimID   string `json:"-"`
	PublicKey string `json:"publicKey"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// DeleteMessage is the byte string an author signs to delete a claim.
func DeleteMessage(claimID string, timestamp int64) []byte {
	return []byte("delete:" + claimID + ":" + strconv.FormatInt(timestamp, 10))
}

// ValidateContent rejects claims shorter than MinContentLength once trimmed
// or longer than MaxContentLength.
func ValidateContent(content string) error {
	if utf8.RuneCountInString(strings.TrimSpace(content)) < MinContentLength {
		return apperr.Invalid("rumor must be at least 10 characters long")
	}
	if err := validation.Validate(content, validation.RuneLength(0, MaxContentLength)); err != nil {
		return apperr.Invalid("rumor must be less than 5000 characters")
	}
	return nil
}

// publicKeyPattern is the only accepted spelling of a key. Keys are compared
// as text, so a second case variant would be a second voter.
var publicKeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidatePublicKey checks the textual encoding of an Ed25519 public key.
func ValidatePublicKey(publicKey string) error {
	err := validation.Validate(publicKey,
		validation.Required,
		validation.Match(publicKeyPattern).Error("must be 64 lowercase hex characters"),
	)
	if err != nil {
		return apperr.Invalid("publicKey: " + err.Error())
	}
	return nil
}

// ValidateKind checks a vote kind.
func ValidateKind(kind VoteKind) error {
	err := validation.Validate(string(kind), validation.Required, validation.In(string(VoteVerify), string(VoteDispute)))
	if err != nil {
		return apperr.Invalid("type: " + err.Error())
	}
	return nil
}

// ParseFeedFilter maps an empty or unknown value to FilterAll.
func ParseFeedFilter(s string) FeedFilter {
	switch FeedFilter(s) {
	case FilterVerified, FilterUnverified:
		return FeedFilter(s)
	default:
		return FilterAll
	}
}

// ParseFeedSort maps an empty or unknown value to SortNewest.
func ParseFeedSort(s string) FeedSort {
	switch FeedSort(s) {
	case SortOldest, SortHottest:
		return FeedSort(s)
	default:
		return SortNewest
	}
}
