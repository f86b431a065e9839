// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only Hearsay tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/hearsay/internal/apperr"
	"github.com/starford/hearsay/internal/models"
	"github.com/starford/hearsay/internal/rumorservice"
)

const trustPolicyURI = "hearsay://trust-policy"

// Server wraps the MCP server with Hearsay tools.
type Server struct {
	mcp *server.MCPServer
	svc *rumorservice.Service
}

// New creates a new MCP server with all Hearsay tools registered.
func New(svc *rumorservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Hearsay",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_rumors",
		mcp.WithDescription("List live rumors with their trust percentage, band and reply count."),
		mcp.WithString("filter", mcp.Description("all, verified or unverified"), mcp.Enum("all", "verified", "unverified")),
		mcp.WithString("sort", mcp.Description("newest, oldest or hottest"), mcp.Enum("newest", "oldest", "hottest")),
		mcp.WithString("parent_id", mcp.Description("Only list replies to this rumor")),
	), s.listRumors)

	s.mcp.AddTool(mcp.NewTool("get_trust",
		mcp.WithDescription("Recompute and return the trust score of one rumor."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Rumor id")),
	), s.getTrust)

	s.mcp.AddTool(mcp.NewTool("get_reputation",
		mcp.WithDescription("Return the reputation record of an identity."),
		mcp.WithString("public_key", mcp.Required(), mcp.Description("Hex Ed25519 public key")),
	), s.getReputation)

	s.mcp.AddTool(mcp.NewTool("get_trust_policy",
		mcp.WithDescription("Explains how trust percentages, bands and reputation factors are computed. "+
			"Read this before interpreting scores."),
	), s.getTrustPolicy)

	s.mcp.AddResource(
		mcp.NewResource(trustPolicyURI, "Trust Policy",
			mcp.WithResourceDescription("How Hearsay derives trust and reputation."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTrustPolicyResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listRumors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := rumorservice.FeedOptions{
		Filter: models.ParseFeedFilter(optionalString(req, "filter")),
		Sort:   models.ParseFeedSort(optionalString(req, "sort")),
	}
	if parent := optionalString(req, "parent_id"); parent != "" {
		opts.ParentID = &parent
	}
	claims, err := s.svc.ListClaims(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(claims) == 0 {
		return mcp.NewToolResultText("no rumors found"), nil
	}
	return jsonResult(claims)
}

func (s *Server) getTrust(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := s.svc.GetClaim(ctx, id, "")
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"trust":   view.Trust,
		"band":    view.Band,
		"anomaly": view.Anomaly,
	})
}

func (s *Server) getReputation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pk, err := req.RequireString("public_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := models.ValidatePublicKey(pk); err != nil {
		return mcp.NewToolResultError("public_key must be 64 hex characters"), nil
	}
	rec, err := s.svc.Reputation(ctx, pk)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}

func (s *Server) getTrustPolicy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TrustPolicy(s.svc.Policy(), s.svc.Difficulty())), nil
}

func (s *Server) readTrustPolicyResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      trustPolicyURI,
			MIMEType: "text/markdown",
			Text:     TrustPolicy(s.svc.Policy(), s.svc.Difficulty()),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func optionalString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}
