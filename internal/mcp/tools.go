package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/insightshq/nl2sql-processor/internal/llm"
)

const requestStatusTool = "get_request_status"

// registerTools publishes every toolbox tool with the schema the agent's
// model sees, plus the request status lookup when a store is attached.
func (s *MCPServer) registerTools(srv *server.MCPServer) {
	for _, def := range s.toolbox.Definitions() {
		schema, err := json.Marshal(def.Parameters)
		if err != nil {
			s.logger.Error("skipping tool with unencodable schema", "tool", def.Name, "error", err)
			continue
		}
		tool := mcp.NewToolWithRawSchema(def.Name, def.Description, schema)
		tool.Annotations = readOnlyAnnotation()
		srv.AddTool(tool, s.toolHandler(def.Name))
	}

	if s.store == nil {
		return
	}
	srv.AddTool(
		mcp.NewTool(requestStatusTool,
			mcp.WithDescription(
				"Get the status and, once finished, the answer of a question "+
					"submitted to the processing queue.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("request_id",
				mcp.Required(),
				mcp.Description("The request id returned on submission"),
			),
		),
		s.handleRequestStatus,
	)
}

// toolHandler forwards a call to the toolbox. Toolbox failures come back as
// text starting with "Error" and are flagged so the client can tell.
func (s *MCPServer) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := encodeArguments(request)
		if err != nil {
			return toolError("invalid arguments for %s: %v", name, err)
		}
		out := s.toolbox.Call(ctx, llm.ToolCall{ID: name, Name: name, Arguments: args})
		if strings.HasPrefix(out, "Error") {
			return mcp.NewToolResultError(out), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

func (s *MCPServer) handleRequestStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(request, "request_id")
	if err != nil {
		return toolError("%v", err)
	}
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return toolError("failed to load request %s: %v", id, err)
	}
	return successJSON(req)
}
