package mcp

import (
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Query answers questions and runs retrieval over the corpus.
	Query driving.QueryService

	// Document provides read access to the document registry.
	Document driving.DocumentService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	// Document is optional; the stats tool and resources report it missing.
	return nil
}
