package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	statusResourceURI   = "unifind://status"
	accountsResourceURI = "unifind://accounts"
)

// registerResources registers the read-only status and accounts resources.
func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "status",
			URI:         statusResourceURI,
			Description: "Indexing progress and entry counts for the current user",
			MIMEType:    "application/json",
		},
		s.makeJSONHandler(statusResourceURI, func(ctx context.Context) (any, error) {
			return s.handleGetStatus(ctx, GetStatusInput{})
		}),
	)
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "accounts",
			URI:         accountsResourceURI,
			Description: "Cloud accounts linked by the current user",
			MIMEType:    "application/json",
		},
		s.makeJSONHandler(accountsResourceURI, func(ctx context.Context) (any, error) {
			return s.handleListAccounts(ctx, ListAccountsInput{})
		}),
	)
}

// makeJSONHandler creates a handler that renders fn's result as JSON.
func (s *Server) makeJSONHandler(uri string, fn func(context.Context) (any, error)) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		text, err := s.readJSONResource(ctx, fn)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     text,
				},
			},
		}, nil
	}
}

func (s *Server) readJSONResource(ctx context.Context, fn func(context.Context) (any, error)) (string, error) {
	v, err := fn(ctx)
	if err != nil {
		return "", MapError(err)
	}
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode resource: %w", err)
	}
	return string(content), nil
}

// ReadResource returns the JSON text of a registered resource.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case statusResourceURI:
		return s.readJSONResource(ctx, func(ctx context.Context) (any, error) {
			return s.handleGetStatus(ctx, GetStatusInput{})
		})
	case accountsResourceURI:
		return s.readJSONResource(ctx, func(ctx context.Context) (any, error) {
			return s.handleListAccounts(ctx, ListAccountsInput{})
		})
	default:
		return "", NewInvalidParamsError(fmt.Sprintf("unknown resource: %s", uri))
	}
}
