// Package mcpserver exposes research runs and report history as MCP tools
// over stdio, so editor agents can call the pipeline directly.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pltanton/insightloop/internal/history"
	"github.com/pltanton/insightloop/internal/logger"
	"github.com/pltanton/insightloop/internal/report"
	"github.com/pltanton/insightloop/internal/research"
)

const ServerName = "insightloop"

// ServerVersion is reported to MCP clients; cmd overrides it with the build.
var ServerVersion = "dev"

// Runner runs one research query.
type Runner interface {
	Run(ctx context.Context, query string) (*research.Result, error)
}

type Tools struct {
	runner Runner
	store  history.Store
	log    *slog.Logger
}

// NewTools binds tool handlers. store may be nil; runs are then not saved
// and history_search reports an error.
func NewTools(runner Runner, store history.Store, log *slog.Logger) *Tools {
	if log == nil {
		log = logger.Default()
	}
	return &Tools{runner: runner, store: store, log: log}
}

// NewServer builds an MCP server with the research and history_search tools.
func NewServer(t *Tools) *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(true))

	s.AddTool(mcp.NewTool("research",
		mcp.WithDescription("Search the web for a query, read the top pages and return key insights, a comparison table and sources as a Markdown report."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to research, e.g. 'Compare Dropbox vs Box pricing'")),
		mcp.WithBoolean("save", mcp.Description("Store the report in history (default true)")),
	), t.Research)

	s.AddTool(mcp.NewTool("history_search",
		mcp.WithDescription("List recent research queries, optionally filtered by a substring, or fetch the stored report for an exact query."),
		mcp.WithString("filter", mcp.Description("Case-sensitive substring to filter queries by")),
		mcp.WithString("query", mcp.Description("Exact query whose latest report should be returned")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of queries to list (default 10)")),
	), t.HistorySearch)

	return s
}

// ServeStdio blocks serving MCP on stdin/stdout.
func ServeStdio(t *Tools) error {
	return server.ServeStdio(NewServer(t))
}

func (t *Tools) Research(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, _ := req.Params.Arguments["query"].(string)
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	if t.runner == nil {
		return mcp.NewToolResultError("research pipeline is not configured"), nil
	}

	res, err := t.runner.Run(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("research failed: %v", err)), nil
	}

	save := true
	if v, ok := req.Params.Arguments["save"].(bool); ok {
		save = v
	}
	if save && t.store != nil {
		if _, err := t.store.Save(ctx, history.ParamsFromResult(res, 0)); err != nil {
			t.log.Warn("mcp: save report failed", "query", res.Query, "error", err)
		}
	}

	return mcp.NewToolResultText(report.Markdown(report.FromResult(res))), nil
}

func (t *Tools) HistorySearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.store == nil {
		return mcp.NewToolResultError("history is not configured"), nil
	}

	if query, _ := req.Params.Arguments["query"].(string); query != "" {
		rep, err := t.store.GetByQuery(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("history lookup failed: %v", err)), nil
		}
		if rep == nil {
			return mcp.NewToolResultError(fmt.Sprintf("no report stored for %q", query)), nil
		}
		return mcp.NewToolResultText(report.Markdown(report.FromReport(rep))), nil
	}

	limit := history.DefaultListLimit
	if l, ok := req.Params.Arguments["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	filter, _ := req.Params.Arguments["filter"].(string)

	queries, err := t.store.ListRecent(ctx, limit, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history list failed: %v", err)), nil
	}
	if len(queries) == 0 {
		return mcp.NewToolResultText("No research history yet."), nil
	}

	var sb strings.Builder
	for i, q := range queries {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
