// Command cryptosec-docs-mcp serves the document catalogue over MCP stdio.
package main

import (
	"context"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/comigor/cryptosec-go/internal/docmcp"
	"github.com/comigor/cryptosec-go/internal/documents"
	"github.com/comigor/cryptosec-go/internal/logger"
)

const version = "0.1.0"

func main() {
	// stdout carries the MCP protocol.
	logger.SetOutput(os.Stderr)
	logger.SetLevel(os.Getenv("LOG_LEVEL"))

	path := os.Getenv("DOCUMENTS_DB_PATH")
	if path == "" {
		path = "documents.db"
	}
	docs := documents.Open(context.Background(), path)
	if c, ok := docs.(io.Closer); ok {
		defer c.Close()
	}

	if err := server.ServeStdio(docmcp.NewServer(docs, version)); err != nil {
		logger.L.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
