// Package tools implements the thin MCP tool handlers that sit above the
// dispatch engine: argument marshaling and a single dispatch call each,
// per the engine's contract that tool handlers carry no non-trivial
// engineering of their own.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tonimelisma/graph-dispatch-mcp/internal/dispatch"
)

// Register attaches the msgraph_request, azure_request, and
// dispatch_health tools to s, each delegating to engine.
func Register(s *server.MCPServer, engine *dispatch.Engine) {
	s.AddTool(requestTool("msgraph_request", dispatch.AudienceGraph,
		"Call a Microsoft Graph endpoint, with optional automatic pagination."), requestHandler(engine, dispatch.AudienceGraph))

	s.AddTool(requestTool("azure_request", dispatch.AudienceAzure,
		"Call an Azure Resource Manager endpoint. apiVersion is required."), requestHandler(engine, dispatch.AudienceAzure))

	s.AddTool(mcp.NewTool("dispatch_health",
		mcp.WithDescription("Report whether the dispatch engine has credentials configured and which audiences currently hold a cached token."),
	), healthHandler(engine))
}

func requestTool(name string, audience dispatch.Audience, description string) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("path", mcp.Description("Server-relative request path, e.g. /users or /subscriptions"), mcp.Required()),
		mcp.WithString("method", mcp.Description("HTTP method"), mcp.DefaultString("GET")),
		mcp.WithBoolean("fetchAll", mcp.Description("Follow @odata.nextLink pagination; method must be GET"), mcp.DefaultBool(false)),
		mcp.WithNumber("batchSize", mcp.Description("Page size applied as $top (GET only)")),
		mcp.WithString("select", mcp.Description("Comma-separated $select fields (GET only)")),
		mcp.WithString("expand", mcp.Description("Comma-separated $expand fields (GET only)")),
		mcp.WithString("body", mcp.Description("Request body as a JSON string")),
		mcp.WithString("responseFormat", mcp.Description("full, raw, or minimal"), mcp.DefaultString("full")),
	}
	if audience == dispatch.AudienceAzure {
		opts = append(opts, mcp.WithString("apiVersion", mcp.Description("Azure api-version query parameter"), mcp.Required()))
	} else {
		opts = append(opts, mcp.WithString("apiVersion", mcp.Description("Graph API version: v1.0 (default) or beta")))
	}
	return mcp.NewTool(name, opts...)
}

func requestHandler(engine *dispatch.Engine, audience dispatch.Audience) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		req := dispatch.Request{
			Audience:       audience,
			Path:           path,
			Method:         dispatch.Method(stringArg(request, "method", "GET")),
			APIVersion:     stringArg(request, "apiVersion", ""),
			FetchAll:       boolArg(request, "fetchAll", false),
			BatchSize:      intArg(request, "batchSize", 0),
			ResponseFormat: dispatch.ResponseFormat(stringArg(request, "responseFormat", "full")),
		}

		if sel := stringArg(request, "select", ""); sel != "" {
			req.SelectFields = splitCSV(sel)
		}
		if exp := stringArg(request, "expand", ""); exp != "" {
			req.ExpandFields = splitCSV(exp)
		}
		if body := stringArg(request, "body", ""); body != "" {
			if !json.Valid([]byte(body)) {
				return mcp.NewToolResultError(fmt.Sprintf("body is not valid JSON: %s", body)), nil
			}
			req.Body = json.RawMessage(body)
		}

		resp, err := engine.Dispatch(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(resp.Value)), nil
	}
}

func healthHandler(engine *dispatch.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := engine.HealthStatus()
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

func stringArg(r mcp.CallToolRequest, key, def string) string {
	if v, ok := r.GetArguments()[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func boolArg(r mcp.CallToolRequest, key string, def bool) bool {
	if v, ok := r.GetArguments()[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func intArg(r mcp.CallToolRequest, key string, def int) int {
	if v, ok := r.GetArguments()[key]; ok {
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, field := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
