// Package pow implements the proof-of-work gate required before any write.
//
// A proof is a nonce such that the lowercase hex SHA-256 of
// payload + ":" + decimal(nonce) starts with a number of '0' characters
// equal to the difficulty.
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"runtime"
	"strconv"
	"strings"
)

// DefaultDifficulty is the number of leading zero hex digits required by default.
const DefaultDifficulty = 3

// MaxDifficulty is the length of a hex SHA-256 digest.
const MaxDifficulty = sha256.Size * 2

// ErrUnsatisfiable is returned by Mine when difficulty exceeds MaxDifficulty.
var ErrUnsatisfiable = errors.New("pow: difficulty exceeds digest length")

const (
	yieldEvery    = 100
	progressEvery = 1000
)

// Proof is a mined nonce together with the payload it was mined for.
type Proof struct {
	Payload []byte `json:"data"`
	Nonce   uint64 `json:"nonce"`
	Hash    string `json:"hash"`
}

// ProgressFunc receives the number of attempts made so far.
type ProgressFunc func(attempts uint64)

type mineOptions struct {
	progress ProgressFunc
}

// MineOption configures Mine.
type MineOption func(*mineOptions)

// WithProgress reports coarse progress every 1000 attempts.
func WithProgress(fn ProgressFunc) MineOption {
	return func(o *mineOptions) {
		o.progress = fn
	}
}

// Digest returns hex(sha256(payload || ":" || decimal(nonce))).
func Digest(payload []byte, nonce uint64) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte{':'})
	h.Write(strconv.AppendUint(nil, nonce, 10))
	return hex.EncodeToString(h.Sum(nil))
}

// Meets reports whether hash starts with difficulty '0' characters.
func Meets(hash string, difficulty uint) bool {
	if uint(len(hash)) < difficulty {
		return false
	}
	return strings.Count(hash[:difficulty], "0") == int(difficulty)
}

// Mine searches for the smallest nonce satisfying difficulty. It yields to the
// Go scheduler and checks ctx every 100 attempts; if ctx is done it returns
// ctx.Err() and no proof.
func Mine(ctx context.Context, payload []byte, difficulty uint, opts ...MineOption) (Proof, error) {
	var o mineOptions
	for _, opt := range opts {
		opt(&o)
	}
	if difficulty > MaxDifficulty {
		return Proof{}, ErrUnsatisfiable
	}

	data := append([]byte(nil), payload...)
	buf := make([]byte, 0, len(data)+21)
	buf = append(buf, data...)
	buf = append(buf, ':')
	prefixLen := len(buf)

	var sum [sha256.Size]byte
	var hexSum [sha256.Size * 2]byte
	for nonce := uint64(0); ; nonce++ {
		buf = strconv.AppendUint(buf[:prefixLen], nonce, 10)
		sum = sha256.Sum256(buf)
		hex.Encode(hexSum[:], sum[:])
		if Meets(string(hexSum[:difficulty]), difficulty) {
			return Proof{Payload: data, Nonce: nonce, Hash: string(hexSum[:])}, nil
		}

		attempts := nonce + 1
		if o.progress != nil && attempts%progressEvery == 0 {
			o.progress(attempts)
		}
		if attempts%yieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Proof{}, err
			}
			runtime.Gosched()
		}
	}
}

// Verify recomputes the digest from payload and nonce. It never trusts
// p.Hash on its own.
func Verify(p Proof, difficulty uint) bool {
	hash := Digest(p.Payload, p.Nonce)
	return hash == p.Hash && Meets(hash, difficulty)
}
