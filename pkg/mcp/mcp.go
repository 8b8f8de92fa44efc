// Package mcp exposes the workflow engine as Model Context Protocol tools
// over stdio, so MCP-capable clients can look up contacts, run workflows,
// and fetch workflow graphs.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cadenlabs/agentbench/pkg/workflow"
)

// Server wraps an MCP stdio server over the engine.
type Server struct {
	engine    *workflow.Engine
	contacts  workflow.ContactFinder
	mcpServer *server.MCPServer
}

// New creates the MCP server and registers its tools.
func New(engine *workflow.Engine, contacts workflow.ContactFinder, version string) *Server {
	s := &Server{
		engine:   engine,
		contacts: contacts,
		mcpServer: server.NewMCPServer(
			"agentbench",
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// Serve blocks serving the stdio transport.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("contact_lookup",
		mcp.WithDescription("Look up contacts in the directory by name. Returns zero, one, or many matches."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name or name fragment to search for"),
		),
	), s.handleContactLookup)

	s.mcpServer.AddTool(mcp.NewTool("run_workflow",
		mcp.WithDescription("Execute an agent workflow to completion and return its result. Workflow types: adaptive, rigid, multi_agent, recursive."),
		mcp.WithString("workflow_type",
			mcp.Required(),
			mcp.Description("One of: adaptive, rigid, multi_agent, recursive"),
		),
		mcp.WithString("instruction",
			mcp.Required(),
			mcp.Description("The task instruction, e.g. an email topic or a question"),
		),
		mcp.WithString("target_name",
			mcp.Description("Target contact name for contact-oriented workflows"),
		),
	), s.handleRunWorkflow)

	s.mcpServer.AddTool(mcp.NewTool("workflow_graph",
		mcp.WithDescription("Return the Mermaid state graph of a workflow type."),
		mcp.WithString("workflow_type",
			mcp.Required(),
			mcp.Description("One of: adaptive, rigid, multi_agent, recursive"),
		),
	), s.handleWorkflowGraph)
}

func (s *Server) handleContactLookup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	matches, err := s.contacts.FindContaining(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("directory lookup failed: %v", err)), nil
	}

	data, err := json.MarshalIndent(matches, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleRunWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeName, err := request.RequireString("workflow_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	instruction, err := request.RequireString("instruction")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	typ, err := workflow.ParseType(typeName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task := workflow.Task{
		Instruction: instruction,
		TargetName:  request.GetString("target_name", ""),
	}

	id, err := s.engine.Start(typ, task, workflow.Parameters{})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("starting run: %v", err)), nil
	}
	res, err := s.engine.Wait(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("waiting for run: %v", err)), nil
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleWorkflowGraph(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeName, err := request.RequireString("workflow_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ, err := workflow.ParseType(typeName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mermaid, err := s.engine.Describe(typ)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(mermaid), nil
}
