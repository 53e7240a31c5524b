package reaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jamesprial/discordcore/internal/resolve"
	"github.com/jamesprial/discordcore/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ReactionTools returns all tool registrations for Discord reaction operations.
func ReactionTools(m *Manager, r resolve.ChannelResolver, logger *slog.Logger) []tools.Registration {
	logger = tools.DefaultLogger(logger)
	return []tools.Registration{
		toolAddReaction(m, r, logger),
		toolRemoveReaction(m, r, logger),
	}
}

type target struct {
	channelID string
	messageID string
	emoji     string
}

// parseTarget reads the channel, message_id and emoji parameters shared by
// both reaction tools.
func parseTarget(r resolve.ChannelResolver, logger *slog.Logger, req mcp.CallToolRequest) (target, *mcp.CallToolResult) {
	channelID, _, errResult := tools.ResolveChannel(r, logger, req.GetString("channel", ""))
	if errResult != nil {
		return target{}, errResult
	}
	t := target{
		channelID: channelID,
		messageID: req.GetString("message_id", ""),
		emoji:     req.GetString("emoji", ""),
	}
	if t.messageID == "" {
		return target{}, tools.ErrorResult("message_id is required")
	}
	if t.emoji == "" {
		return target{}, tools.ErrorResult("emoji is required")
	}
	return t, nil
}

func toolAddReaction(m *Manager, r resolve.ChannelResolver, logger *slog.Logger) tools.Registration {
	const toolName = "discord_add_reaction"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Add a reaction emoji to a Discord message."),
		mcp.WithString("channel",
			mcp.Required(),
			mcp.Description("Channel name or ID"),
		),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("ID of the message to react to"),
		),
		mcp.WithString("emoji",
			mcp.Required(),
			mcp.Description("Emoji to add as a reaction (e.g. '👍' or 'custom_emoji:123456')"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, errResult := parseTarget(r, logger, req)
		if errResult != nil {
			return errResult, nil
		}
		if _, err := m.Create(ctx, t.channelID, t.messageID, t.emoji); err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Reaction %q added successfully", t.emoji)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolRemoveReaction(m *Manager, r resolve.ChannelResolver, logger *slog.Logger) tools.Registration {
	const toolName = "discord_remove_reaction"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Remove a reaction from a Discord message: the bot's own, one user's, or every reaction with the emoji."),
		mcp.WithString("channel",
			mcp.Required(),
			mcp.Description("Channel name or ID"),
		),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("ID of the message to remove the reaction from"),
		),
		mcp.WithString("emoji",
			mcp.Required(),
			mcp.Description("Emoji to remove (e.g. '👍' or 'custom_emoji:123456')"),
		),
		mcp.WithString("user_id",
			mcp.Description("Remove this user's reaction instead of the bot's (optional)"),
		),
		mcp.WithBoolean("all",
			mcp.Description("Remove every reaction with this emoji"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, errResult := parseTarget(r, logger, req)
		if errResult != nil {
			return errResult, nil
		}

		var err error
		switch userID := req.GetString("user_id", ""); {
		case req.GetBool("all", false):
			err = m.DeleteByEmoji(ctx, t.channelID, t.messageID, t.emoji)
		case userID != "":
			err = m.DeleteUser(ctx, Key{ChannelID: t.channelID, MessageID: t.messageID, UserID: userID, Emoji: t.emoji})
		default:
			err = m.DeleteOwn(ctx, t.channelID, t.messageID, t.emoji)
		}
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Reaction %q removed successfully", t.emoji)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
