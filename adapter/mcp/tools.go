// Package mcp registers the operator tools, resources and prompts served
// over the Model Context Protocol.
package mcp

import (
	"errors"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	"github.com/felixgeelhaar/mcp-go"
)

// ToolDependencies provides handlers and context for MCP tools.
type ToolDependencies struct {
	App *cli.App
}

// RegisterTools registers the ledger and conversation tools.
func RegisterTools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}

	if err := registerLedgerTools(srv, deps); err != nil {
		return err
	}
	if err := registerConversationTools(srv, deps); err != nil {
		return err
	}
	return nil
}
