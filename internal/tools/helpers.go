// Package tools provides shared helper utilities for MCP tool handlers.
package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jamesprial/discordcore/internal/resolve"
	"github.com/jamesprial/discordcore/internal/resource"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Registration pairs an MCP tool definition with its handler.
type Registration struct {
	Tool    mcp.Tool
	Handler server.ToolHandlerFunc
}

// RegisterAll adds every registration in each group to s.
func RegisterAll(s *server.MCPServer, groups ...[]Registration) int {
	n := 0
	for _, regs := range groups {
		for _, r := range regs {
			s.AddTool(r.Tool, r.Handler)
			n++
		}
	}
	return n
}

// JSONResult marshals v to indented JSON and returns an mcp.CallToolResult.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error marshaling result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// ErrorResult returns an mcp.CallToolResult that describes an error condition.
func ErrorResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("error: %s", msg))
}

// FailureResult logs err for toolName and converts it into an error result
// whose text starts with the failure kind, e.g. "error: not_found: ...".
func FailureResult(logger *slog.Logger, toolName string, err error) *mcp.CallToolResult {
	kind := resource.KindOf(err)
	DefaultLogger(logger).Debug("tool failed", "tool", toolName, "kind", kind.String(), "error", err)
	return ErrorResult(kind.String() + ": " + err.Error())
}

// DefaultLogger returns l if non-nil, otherwise slog.Default().
func DefaultLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Refresh reports whether the request asked to bypass the cache.
func Refresh(req mcp.CallToolRequest) bool {
	return req.GetBool("refresh", false)
}

// WithRefresh is the tool option shared by every tool that can answer from
// the cache.
func WithRefresh() mcp.ToolOption {
	return mcp.WithBoolean("refresh",
		mcp.Description("Bypass the local cache and fetch from Discord"),
	)
}

// ResolveChannel resolves a channel parameter to an ID and name. On failure it
// returns a non-nil errResult that should be returned to the caller.
func ResolveChannel(
	r resolve.ChannelResolver,
	logger *slog.Logger,
	channel string,
) (channelID string, channelName string, errResult *mcp.CallToolResult) {
	channelID, err := resolve.ResolveChannelParam(r, channel)
	if err != nil {
		return "", "", ErrorResult(err.Error())
	}
	DefaultLogger(logger).Debug("resolved channel", "input", channel, "channelID", channelID)
	return channelID, r.ChannelName(channelID), nil
}
