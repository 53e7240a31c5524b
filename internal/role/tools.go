package role

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RoleSummary is the response shape for a single role.
type RoleSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Position    int    `json:"position"`
	Color       int    `json:"color"`
	Permissions string `json:"permissions"`
	Managed     bool   `json:"managed"`
}

// RoleTools returns all tool registrations for Discord role operations.
func RoleTools(m *Manager, defaultGuildID string, logger *slog.Logger) []tools.Registration {
	logger = tools.DefaultLogger(logger)
	return []tools.Registration{
		toolListRoles(m, defaultGuildID, logger),
	}
}

func toolListRoles(m *Manager, defaultGuildID string, logger *slog.Logger) tools.Registration {
	const toolName = "discord_list_roles"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("List the roles of a Discord guild, highest first."),
		mcp.WithString("guild_id",
			mcp.Description("Guild (server) ID (optional, uses default guild if omitted)"),
		),
		tools.WithRefresh(),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		guildID := req.GetString("guild_id", defaultGuildID)

		var (
			roles []*discordgo.Role
			err   error
		)
		if !tools.Refresh(req) {
			roles, err = m.GuildRoles(ctx, guildID)
		}
		if len(roles) == 0 {
			roles, err = m.FetchGuildRoles(ctx, guildID)
		}
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}

		summaries := make([]RoleSummary, 0, len(roles))
		for _, r := range roles {
			summaries = append(summaries, RoleSummary{
				ID:          r.ID,
				Name:        r.Name,
				Position:    r.Position,
				Color:       r.Color,
				Permissions: strconv.FormatInt(r.Permissions, 10),
				Managed:     r.Managed,
			})
		}
		sort.Slice(summaries, func(i, j int) bool { return summaries[i].Position > summaries[j].Position })
		return tools.JSONResult(summaries), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
