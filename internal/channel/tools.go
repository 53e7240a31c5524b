package channel

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/resolve"
	"github.com/jamesprial/discordcore/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ChannelSummary is the response shape for a single Discord channel entry.
type ChannelSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Topic    string `json:"topic,omitempty"`
	Category string `json:"category,omitempty"`
	Position int    `json:"position"`
	Type     int    `json:"type"`
}

func summarize(ch *discordgo.Channel) ChannelSummary {
	return ChannelSummary{
		ID:       ch.ID,
		Name:     ch.Name,
		Topic:    ch.Topic,
		Category: ch.ParentID,
		Position: ch.Position,
		Type:     int(ch.Type),
	}
}

// ChannelTools returns all tool registrations for Discord channel operations.
func ChannelTools(m *Manager, r resolve.ChannelResolver, defaultGuildID string, logger *slog.Logger) []tools.Registration {
	logger = tools.DefaultLogger(logger)
	return []tools.Registration{
		toolGetChannels(m, defaultGuildID, logger),
		toolGetChannel(m, r, logger),
		toolOpenDM(m, logger),
	}
}

func toolGetChannels(m *Manager, defaultGuildID string, logger *slog.Logger) tools.Registration {
	const toolName = "discord_get_channels"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("List text channels in a Discord guild."),
		mcp.WithString("guild_id",
			mcp.Description("Guild (server) ID (optional, uses default guild if omitted)"),
		),
		tools.WithRefresh(),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		guildID := req.GetString("guild_id", defaultGuildID)

		var (
			chans []*discordgo.Channel
			err   error
		)
		if tools.Refresh(req) {
			chans, err = m.FetchGuildChannels(ctx, guildID)
		} else if chans, err = m.GuildChannels(ctx, guildID); err == nil && len(chans) == 0 {
			chans, err = m.FetchGuildChannels(ctx, guildID)
		}
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}

		summaries := make([]ChannelSummary, 0, len(chans))
		for _, ch := range chans {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			summaries = append(summaries, summarize(ch))
		}
		return tools.JSONResult(summaries), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolGetChannel(m *Manager, r resolve.ChannelResolver, logger *slog.Logger) tools.Registration {
	const toolName = "discord_get_channel"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Get a Discord channel by name or ID. Answers from the cache unless refresh is set."),
		mcp.WithString("channel",
			mcp.Required(),
			mcp.Description("Channel name or ID"),
		),
		tools.WithRefresh(),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		channelID, _, errResult := tools.ResolveChannel(r, logger, req.GetString("channel", ""))
		if errResult != nil {
			return errResult, nil
		}

		ch, err := get(ctx, m, channelID, tools.Refresh(req))
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}
		return tools.JSONResult(summarize(ch)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolOpenDM(m *Manager, logger *slog.Logger) tools.Registration {
	const toolName = "discord_open_dm"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Open a direct-message channel with a user and return its ID."),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User ID"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := req.GetString("user_id", "")
		if userID == "" {
			return tools.ErrorResult("user_id is required"), nil
		}

		ch, err := m.CreateDM(ctx, userID)
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}
		return tools.JSONResult(summarize(ch)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// get answers from the cache and falls back to the API on a miss.
func get(ctx context.Context, m *Manager, id string, refresh bool) (*discordgo.Channel, error) {
	if !refresh {
		if ch, err := m.Get(ctx, id); err == nil {
			return ch, nil
		}
	}
	return m.Fetch(ctx, id)
}
