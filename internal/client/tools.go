package client

import (
	"context"
	"log/slog"

	"github.com/jamesprial/discordcore/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StatsReport is the response shape returned by discord_cache_stats.
type StatsReport struct {
	Caches      []CacheSize `json:"caches"`
	LeasesInUse int         `json:"leases_in_use"`
	LeaseCap    int         `json:"lease_cap"`
	Policy      string      `json:"policy"`
}

// ClientTools returns the tool registrations that inspect the client itself.
func ClientTools(c *Client, logger *slog.Logger) []tools.Registration {
	logger = tools.DefaultLogger(logger)
	return []tools.Registration{
		toolCacheStats(c, logger),
	}
}

func toolCacheStats(c *Client, logger *slog.Logger) tools.Registration {
	const toolName = "discord_cache_stats"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Report how many entries each local cache holds and how busy the request pool is."),
	)

	handler := func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report := StatsReport{
			Caches:      c.Stats(),
			LeasesInUse: c.Pool.InUse(),
			LeaseCap:    c.Pool.Cap(),
			Policy:      c.Engine.Policy().String(),
		}
		logger.Debug("cache stats", "leases", report.LeasesInUse)
		return tools.JSONResult(report), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
