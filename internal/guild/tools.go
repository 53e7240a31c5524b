package guild

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GuildSummary is the response shape returned by discord_get_guild.
type GuildSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
	OwnerID     string `json:"owner_id"`
	Description string `json:"description,omitempty"`
}

// GuildTools returns all tool registrations for Discord guild operations.
func GuildTools(m *Manager, defaultGuildID string, logger *slog.Logger) []tools.Registration {
	logger = tools.DefaultLogger(logger)
	return []tools.Registration{
		toolGetGuild(m, defaultGuildID, logger),
	}
}

func toolGetGuild(m *Manager, defaultGuildID string, logger *slog.Logger) tools.Registration {
	const toolName = "discord_get_guild"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Retrieve information about a Discord guild (server)."),
		mcp.WithString("guild_id",
			mcp.Description("Guild (server) ID (optional, uses default guild if omitted)"),
		),
		tools.WithRefresh(),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		guildID := req.GetString("guild_id", "")
		if guildID == "" {
			guildID = defaultGuildID
		}

		logger.Debug("fetching guild info", "guildID", guildID)

		var (
			g   *discordgo.Guild
			err error
		)
		if !tools.Refresh(req) {
			g, err = m.Get(ctx, guildID)
		}
		if g == nil {
			g, err = m.Fetch(ctx, guildID)
		}
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}

		memberCount := g.MemberCount
		if memberCount == 0 {
			memberCount = g.ApproximateMemberCount
		}
		return tools.JSONResult(GuildSummary{
			ID:          g.ID,
			Name:        g.Name,
			MemberCount: memberCount,
			OwnerID:     g.OwnerID,
			Description: g.Description,
		}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
