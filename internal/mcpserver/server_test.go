package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/hearsay/internal/client"
	"github.com/starford/hearsay/internal/models"
	"github.com/starford/hearsay/internal/rumorservice"
	"github.com/starford/hearsay/internal/testutil"
)

func testServer(t *testing.T) (*Server, *rumorservice.Service) {
	t.Helper()
	svc := rumorservice.NewService(testutil.TestDB(t),
		rumorservice.WithDifficulty(1),
		rumorservice.WithLogger(testutil.Logger()),
	)
	return New(svc, "test"), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_rumors":
		result, err = srv.listRumors(ctx, req)
	case "get_trust":
		result, err = srv.getTrust(ctx, req)
	case "get_reputation":
		result, err = srv.getReputation(ctx, req)
	case "get_trust_policy":
		result, err = srv.getTrustPolicy(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func seed(t *testing.T, svc *rumorservice.Service, content string) *models.Claim {
	t.Helper()
	sub, err := client.NewClaimSubmission(context.Background(), testutil.TestIdentity(t), content, nil, time.Now().UnixMilli(), svc.Difficulty())
	if err != nil {
		t.Fatal(err)
	}
	c, err := svc.PostClaim(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestListRumors(t *testing.T) {
	srv, svc := testServer(t)

	if got := resultText(callTool(t, srv, "list_rumors", map[string]any{})); got != "no rumors found" {
		t.Errorf("empty list = %q", got)
	}

	seed(t, svc, "the elevator on level three is haunted")
	r := callTool(t, srv, "list_rumors", map[string]any{"sort": "hottest"})
	var views []models.ClaimView
	if err := json.Unmarshal([]byte(resultText(r)), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].Band != "medium" {
		t.Errorf("views = %+v", views)
	}

	r = callTool(t, srv, "list_rumors", map[string]any{"filter": "verified"})
	if got := resultText(r); got != "no rumors found" {
		t.Errorf("verified list = %q", got)
	}
}

func TestGetTrust(t *testing.T) {
	srv, svc := testServer(t)
	c := seed(t, svc, "the pool reopens after the break")

	r := callTool(t, srv, "get_trust", map[string]any{"id": c.ID})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"trust_percentage": 50`) {
		t.Errorf("trust = %s", resultText(r))
	}

	r = callTool(t, srv, "get_trust", map[string]any{"id": "missing"})
	if !r.IsError {
		t.Error("expected error for missing rumor")
	}
}

func TestGetReputation(t *testing.T) {
	srv, _ := testServer(t)
	id := testutil.TestIdentity(t)

	r := callTool(t, srv, "get_reputation", map[string]any{"public_key": id.PublicKeyHex()})
	var rec models.ReputationRecord
	if err := json.Unmarshal([]byte(resultText(r)), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Factor != 1.0 || rec.TotalVotes != 0 {
		t.Errorf("record = %+v", rec)
	}

	if r := callTool(t, srv, "get_reputation", map[string]any{"public_key": "xyz"}); !r.IsError {
		t.Error("expected error for malformed key")
	}
}

func TestTrustPolicyReflectsConfig(t *testing.T) {
	srv, svc := testServer(t)
	svc.SetDifficulty(2)
	text := resultText(callTool(t, srv, "get_trust_policy", nil))
	for _, want := range []string{"starts with 2 zero digits", "0.05", "[0.10, 5.00]"} {
		if !strings.Contains(text, want) {
			t.Errorf("policy missing %q", want)
		}
	}
}
