// Package mcp exposes workflow enforcement as an MCP stdio server, so
// an agent runtime can claim tasks, check tools, and request phase
// transitions without linking the engine in-process.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/phasegate/internal/guard"
)

// Server wraps the MCP SDK server around a guard engine.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *guard.Engine
	lg        *zap.Logger
}

// New creates an MCP server over an already constructed engine. The
// engine's lifecycle (audit log, reloader) stays with the caller.
func New(engine *guard.Engine, lg *zap.Logger) *Server {
	if lg == nil {
		lg = zap.NewNop()
	}
	s := &Server{engine: engine, lg: lg}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "phasegate",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all phasegate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "phasegate_claim",
		Description: "Claim a task into the workflow's first phase and receive its phase token.",
	}, s.handleClaim)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "phasegate_check_tool",
		Description: "Check whether the current phase token permits a tool. Denials return the reason; call this before every tool invocation.",
	}, s.handleCheckTool)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "phasegate_transition",
		Description: "Request a phase transition with the required artifacts. Blocked transitions list every failed gate item.",
	}, s.handleTransition)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "phasegate_status",
		Description: "Report a task's current phase, status, and the tools its phase allows.",
	}, s.handleStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "phasegate_abandon",
		Description: "Abandon a task. Abandoned tasks accept no further transitions.",
	}, s.handleAbandon)
}
