package mcpserver

import (
	"fmt"

	"github.com/starford/hearsay/internal/reputation"
)

// TrustPolicy describes how trust percentages and reputation factors are
// derived, for LLM consumers interpreting tool output.
func TrustPolicy(p reputation.Policy, difficulty uint) string {
	return fmt.Sprintf(`# Hearsay Trust Policy

Rumors are anonymous claims. Every claim and vote carries an Ed25519
signature and a proof of work: the lowercase hex SHA-256 of
payload + ":" + nonce starts with %d zero digits.

## Trust percentage

- Each vote weighs its voter's reputation factor (1.0 until judged).
- score = weighted verifies - weighted disputes
- percentage = clamp(50 + 50 * score / (weighted verifies + weighted disputes), 0, 100)
- No votes: 50.

## Bands

- high: percentage >= 70
- medium: 40 to 69
- low: below 40, flagged as an anomaly

## Reputation

Each judged vote moves the voter's factor by %.2f, bounded to [%.2f, %.2f].
One vote per identity per claim; later attempts are ignored.
`, difficulty, p.Delta, p.Min, p.Max)
}
