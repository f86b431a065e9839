package pow

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/starford/hearsay/internal/models"
)

// ClaimPayload is the canonical content mined for a new claim.
// Field order is part of the wire contract.
type ClaimPayload struct {
	Content   string  `json:"content"`
	PublicKey string  `json:"publicKey"`
	ParentID  *string `json:"parentId"`
	Timestamp int64   `json:"timestamp"`
}

// VotePayload is the canonical content mined for a vote.
type VotePayload struct {
	ClaimID   string          `json:"rumorId"`
	PublicKey string          `json:"publicKey"`
	Kind      models.VoteKind `json:"type"`
	Timestamp int64           `json:"timestamp"`
}

// Bytes serializes the payload deterministically.
func (p ClaimPayload) Bytes() []byte {
	return canonical(p)
}

// Bytes serializes the payload deterministically.
func (p VotePayload) Bytes() []byte {
	return canonical(p)
}

// Timestamp converts t to the millisecond timestamp used in payloads.
func Timestamp(t time.Time) int64 {
	return t.UnixMilli()
}

func canonical(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Both payload types contain only strings, ints and a nullable string.
	_ = enc.Encode(v)
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}
