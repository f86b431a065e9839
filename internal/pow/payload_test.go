package pow

import (
	"bytes"
	"testing"
)

func TestClaimPayloadCanonical(t *testing.T) {
	parent := "p-1"
	p := ClaimPayload{Content: "a <tag> & b", PublicKey: "ab12", ParentID: &parent, Timestamp: 42}
	want := `{"content":"a <tag> & b","publicKey":"ab12","parentId":"p-1","timestamp":42}`
	if got := string(p.Bytes()); got != want {
		t.Errorf("payload = %s\nwant      %s", got, want)
	}
	if !bytes.Equal(p.Bytes(), p.Bytes()) {
		t.Error("serialization not deterministic")
	}
}

func TestClaimPayloadNullParent(t *testing.T) {
	p := ClaimPayload{Content: "c", PublicKey: "k", Timestamp: 1}
	want := `{"content":"c","publicKey":"k","parentId":null,"timestamp":1}`
	if got := string(p.Bytes()); got != want {
		t.Errorf("payload = %s", got)
	}
}

func TestVotePayloadCanonical(t *testing.T) {
	p := VotePayload{ClaimID: "r1", PublicKey: "k", Kind: "dispute", Timestamp: 1700000000000}
	want := `{"rumorId":"r1","publicKey":"k","type":"dispute","timestamp":1700000000000}`
	if got := string(p.Bytes()); got != want {
		t.Errorf("payload = %s", got)
	}
}
