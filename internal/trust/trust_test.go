package trust

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/starford/hearsay/internal/models"
)

func votes(claimID string, kind models.VoteKind, n int, prefix string) []models.Vote {
	out := make([]models.Vote, n)
	for i := range out {
		out[i] = models.Vote{
			ID:             fmt.Sprintf("%s-%d", prefix, i),
			ClaimID:        claimID,
			VoterPublicKey: fmt.Sprintf("%s-key-%d", prefix, i),
			Kind:           kind,
		}
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeNoVotesIsNeutral(t *testing.T) {
	ts := Compute("c1", nil, nil, time.Now())
	if ts.Percentage != 50 {
		t.Errorf("percentage = %v, want 50", ts.Percentage)
	}
	if ts.VerifyCount != 0 || ts.DisputeCount != 0 || ts.Score != 0 {
		t.Errorf("unexpected counts: %+v", ts)
	}
}

func TestComputeVerifyOnly(t *testing.T) {
	for _, n := range []int{1, 2, 17} {
		ts := Compute("c1", votes("c1", models.VoteVerify, n, "v"), nil, time.Now())
		if ts.Percentage != 100 {
			t.Errorf("n=%d: percentage = %v, want 100", n, ts.Percentage)
		}
		if ts.VerifyCount != n {
			t.Errorf("n=%d: verify count = %d", n, ts.VerifyCount)
		}
	}
}

func TestComputeDisputeOnly(t *testing.T) {
	ts := Compute("c1", votes("c1", models.VoteDispute, 4, "d"), nil, time.Now())
	if ts.Percentage != 0 {
		t.Errorf("percentage = %v, want 0", ts.Percentage)
	}
	if ts.Score != -4 {
		t.Errorf("score = %v, want -4", ts.Score)
	}
}

func TestComputeReputationWeighted(t *testing.T) {
	vs := append(votes("c1", models.VoteVerify, 3, "v"), votes("c1", models.VoteDispute, 1, "d")...)
	reps := map[string]models.ReputationRecord{
		"v-key-0": {PublicKey: "v-key-0", Factor: 1.0},
		"v-key-1": {PublicKey: "v-key-1", Factor: 1.0},
		"v-key-2": {PublicKey: "v-key-2", Factor: 1.0},
		"d-key-0": {PublicKey: "d-key-0", Factor: 3.0},
	}
	ts := Compute("c1", vs, reps, time.Now())
	if ts.VerifyCount != 3 || ts.DisputeCount != 1 {
		t.Errorf("counts = %d/%d", ts.VerifyCount, ts.DisputeCount)
	}
	if ts.Score != 0 {
		t.Errorf("score = %v, want 0", ts.Score)
	}
	if ts.Percentage != 50 {
		t.Errorf("percentage = %v, want 50", ts.Percentage)
	}
}

func TestComputeHighReputationDisputeOutweighs(t *testing.T) {
	vs := append(votes("c1", models.VoteVerify, 5, "v"), votes("c1", models.VoteDispute, 2, "d")...)
	reps := map[string]models.ReputationRecord{
		"d-key-0": {Factor: 5.0},
		"d-key-1": {Factor: 5.0},
	}
	for i := 0; i < 5; i++ {
		reps[fmt.Sprintf("v-key-%d", i)] = models.ReputationRecord{Factor: 0.1}
	}
	ts := Compute("c1", vs, reps, time.Now())
	// verify weight 0.5, dispute weight 10.
	want := 50 + 50*(0.5-10)/10.5
	if !almostEqual(ts.Percentage, want) {
		t.Errorf("percentage = %v, want %v", ts.Percentage, want)
	}
	if BandOf(ts.Percentage) != BandLow {
		t.Errorf("band = %v", BandOf(ts.Percentage))
	}
}

func TestComputeIgnoresOtherClaims(t *testing.T) {
	vs := append(votes("c1", models.VoteVerify, 2, "v"), votes("c2", models.VoteDispute, 5, "d")...)
	ts := Compute("c1", vs, nil, time.Now())
	if ts.DisputeCount != 0 || ts.Percentage != 100 {
		t.Errorf("foreign votes counted: %+v", ts)
	}
}

func TestComputeNonPositiveFactorFallsBack(t *testing.T) {
	vs := votes("c1", models.VoteDispute, 1, "d")
	reps := map[string]models.ReputationRecord{"d-key-0": {Factor: 0}}
	ts := Compute("c1", vs, reps, time.Now())
	if ts.Percentage != 0 || ts.Score != -1 {
		t.Errorf("unexpected: %+v", ts)
	}
}

func TestComputePercentageBounded(t *testing.T) {
	vs := append(votes("c1", models.VoteVerify, 7, "v"), votes("c1", models.VoteDispute, 3, "d")...)
	reps := map[string]models.ReputationRecord{}
	for i, v := range vs {
		reps[v.VoterPublicKey] = models.ReputationRecord{Factor: 0.1 + float64(i)*0.49}
	}
	ts := Compute("c1", vs, reps, time.Now())
	if ts.Percentage < 0 || ts.Percentage > 100 {
		t.Errorf("percentage out of range: %v", ts.Percentage)
	}
}

func TestBandOf(t *testing.T) {
	cases := []struct {
		p    float64
		want Band
	}{
		{100, BandHigh},
		{70, BandHigh},
		{69.99, BandMedium},
		{40, BandMedium},
		{39.99, BandLow},
		{0, BandLow},
	}
	for _, tc := range cases {
		if got := BandOf(tc.p); got != tc.want {
			t.Errorf("BandOf(%v) = %v, want %v", tc.p, got, tc.want)
		}
	}
	if !Anomalous(10) || Anomalous(50) {
		t.Error("anomaly flag wrong")
	}
}
