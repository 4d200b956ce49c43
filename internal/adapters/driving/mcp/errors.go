// Package mcp provides an MCP (Model Context Protocol) server adapter for
// Ancora. It lets AI assistants like Claude ask grounded questions over the
// indexed policy corpus.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")

// ErrMissingDocumentService is returned by handlers that need the document
// registry when it was not provided.
var ErrMissingDocumentService = errors.New("mcp: document service is not configured")
