// Package docmcp exposes the document catalogue as MCP tools.
package docmcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/comigor/cryptosec-go/internal/documents"
	"github.com/comigor/cryptosec-go/internal/logger"
)

// Tool pairs an MCP tool definition with its handler.
type Tool struct {
	Definition mcp.Tool
	Handler    server.ToolHandlerFunc
}

// Name returns the name of the tool
func (t Tool) Name() string { return t.Definition.Name }

// Tools returns the catalogue tools backed by repo.
func Tools(repo documents.Repository) []Tool {
	return []Tool{
		{
			Definition: mcp.NewTool("list_documents",
				mcp.WithDescription("Lists every document in the cryptography and network security catalogue."),
				mcp.WithString("type", mcp.Description("Optional document type filter: pdf, ppt or json.")),
			),
			Handler: listHandler(repo),
		},
		{
			Definition: mcp.NewTool("search_documents",
				mcp.WithDescription("Searches the catalogue by case-insensitive substring over titles and tags."),
				mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for, e.g. 'TLS' or 'PKI'.")),
			),
			Handler: searchHandler(repo),
		},
		{
			Definition: mcp.NewTool("get_document",
				mcp.WithDescription("Returns one catalogue entry by id."),
				mcp.WithString("id", mcp.Required(), mcp.Description("Document id.")),
			),
			Handler: getHandler(repo),
		},
	}
}

// NewServer builds an MCP server with the catalogue tools registered.
func NewServer(repo documents.Repository, version string) *server.MCPServer {
	s := server.NewMCPServer("cryptosec-documents", version, server.WithToolCapabilities(false))
	for _, t := range Tools(repo) {
		s.AddTool(t.Definition, t.Handler)
		logger.L.Info("Registered document tool", "tool", t.Name())
	}
	return s
}

func listHandler(repo documents.Repository) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := repo.List(ctx)
		if err != nil {
			return nil, err
		}
		return jsonResult(documents.ByType(docs, stringArg(request, "type")))
	}
}

func searchHandler(repo documents.Repository) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := stringArg(request, "query")
		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		docs, err := repo.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		return jsonResult(docs)
	}
}

func getHandler(repo documents.Repository) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := stringArg(request, "id")
		doc, err := repo.Get(ctx, id)
		if errors.Is(err, documents.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("document %q not found", id)), nil
		}
		if err != nil {
			return nil, err
		}
		return jsonResult(doc)
	}
}

func stringArg(request mcp.CallToolRequest, name string) string {
	v, _ := request.GetArguments()[name].(string)
	return v
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
