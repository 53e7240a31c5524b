package message

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/queue"
	"github.com/jamesprial/discordcore/internal/resolve"
	"github.com/jamesprial/discordcore/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MessageSummary is the response shape for a single message.
type MessageSummary struct {
	ID             string    `json:"id"`
	ChannelID      string    `json:"channel_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	ReplyTo        string    `json:"reply_to,omitempty"`
	Pinned         bool      `json:"pinned,omitempty"`
}

func summarize(msg *discordgo.Message) MessageSummary {
	s := MessageSummary{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		Pinned:    msg.Pinned,
	}
	if msg.Author != nil {
		s.AuthorID = msg.Author.ID
		s.AuthorUsername = msg.Author.Username
	}
	if msg.MessageReference != nil {
		s.ReplyTo = msg.MessageReference.MessageID
	}
	return s
}

// MessageTools returns all tool registrations for Discord message operations.
// q is the queue the gateway fills with incoming guild messages.
func MessageTools(m *Manager, q *queue.Queue[queue.QueuedMessage], r resolve.ChannelResolver, logger *slog.Logger) []tools.Registration {
	logger = tools.DefaultLogger(logger)
	return []tools.Registration{
		toolPollMessages(q, r, logger),
		toolSendMessage(m, r, logger),
		toolGetMessage(m, r, logger),
		toolGetMessages(m, r, logger),
		toolEditMessage(m, r, logger),
		toolDeleteMessage(m, r, logger),
	}
}

func toolPollMessages(q *queue.Queue[queue.QueuedMessage], r resolve.ChannelResolver, logger *slog.Logger) tools.Registration {
	const toolName = "discord_poll_messages"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Long-poll the message queue for incoming Discord messages."),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Seconds to wait for messages (default: 30, max: 300)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to return (default: 50)"),
		),
		mcp.WithString("channel",
			mcp.Description("Channel name or ID to filter messages (optional)"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		timeoutSec := req.GetInt("timeout_seconds", 30)
		if timeoutSec <= 0 {
			timeoutSec = 30
		}
		if timeoutSec > 300 {
			timeoutSec = 300
		}

		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}

		var match func(queue.QueuedMessage) bool
		if channel := req.GetString("channel", ""); channel != "" {
			channelID, _, errResult := tools.ResolveChannel(r, logger, channel)
			if errResult != nil {
				return errResult, nil
			}
			match = queue.InChannel(channelID)
		}

		msgs := q.Poll(ctx, time.Duration(timeoutSec)*time.Second, limit, match)
		if len(msgs) == 0 {
			return mcp.NewToolResultText("No new messages"), nil
		}
		return tools.JSONResult(msgs), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolSendMessage(m *Manager, r resolve.ChannelResolver, logger *slog.Logger) tools.Registration {
	const toolName = "discord_send_message"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Send a message to a Discord channel, or to a user by direct message."),
		mcp.WithString("channel",
			mcp.Description("Channel name or ID (required unless user_id is set)"),
		),
		mcp.WithString("user_id",
			mcp.Description("Send as a direct message to this user instead of a channel"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Message content to send"),
		),
		mcp.WithString("reply_to",
			mcp.Description("Message ID to reply to (optional)"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content := req.GetString("content", "")
		if content == "" {
			return tools.ErrorResult("content is required"), nil
		}
		send := &discordgo.MessageSend{Content: content}

		var (
			msg *discordgo.Message
			err error
		)
		if userID := req.GetString("user_id", ""); userID != "" {
			msg, err = m.SendDM(ctx, userID, send)
		} else {
			channelID, _, errResult := tools.ResolveChannel(r, logger, req.GetString("channel", ""))
			if errResult != nil {
				return errResult, nil
			}
			if replyTo := req.GetString("reply_to", ""); replyTo != "" {
				msg, err = m.Reply(ctx, Key{ChannelID: channelID, MessageID: replyTo}, send)
			} else {
				msg, err = m.Create(ctx, channelID, send)
			}
		}
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Message sent (ID: %s)", msg.ID)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolGetMessage(m *Manager, r resolve.ChannelResolver, logger *slog.Logger) tools.Registration {
	const toolName = "discord_get_message"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Get a single Discord message. Answers from the cache unless refresh is set."),
		mcp.WithString("channel",
			mcp.Required(),
			mcp.Description("Channel name or ID"),
		),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("Message ID"),
		),
		tools.WithRefresh(),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		channelID, _, errResult := tools.ResolveChannel(r, logger, req.GetString("channel", ""))
		if errResult != nil {
			return errResult, nil
		}
		messageID := req.GetString("message_id", "")
		if messageID == "" {
			return tools.ErrorResult("message_id is required"), nil
		}

		k := Key{ChannelID: channelID, MessageID: messageID}
		var (
			msg *discordgo.Message
			err error
		)
		if !tools.Refresh(req) {
			msg, err = m.Get(ctx, k)
		}
		if msg == nil {
			msg, err = m.Fetch(ctx, k)
		}
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}
		return tools.JSONResult(summarize(msg)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolGetMessages(m *Manager, r resolve.ChannelResolver, logger *slog.Logger) tools.Registration {
	const toolName = "discord_get_messages"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Retrieve recent message history from a Discord channel."),
		mcp.WithString("channel",
			mcp.Required(),
			mcp.Description("Channel name or ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of messages to retrieve (default: 50, max: 100)"),
		),
		mcp.WithString("before",
			mcp.Description("Only messages before this message ID"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		channelID, _, errResult := tools.ResolveChannel(r, logger, req.GetString("channel", ""))
		if errResult != nil {
			return errResult, nil
		}

		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}
		if limit > 100 {
			limit = 100
		}

		msgs, err := m.FetchMessages(ctx, channelID, Query{Limit: limit, Before: req.GetString("before", "")})
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}

		// Oldest first reads naturally in a transcript.
		summaries := make([]MessageSummary, 0, len(msgs))
		for i := len(msgs) - 1; i >= 0; i-- {
			summaries = append(summaries, summarize(msgs[i]))
		}
		return tools.JSONResult(summaries), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolEditMessage(m *Manager, r resolve.ChannelResolver, logger *slog.Logger) tools.Registration {
	const toolName = "discord_edit_message"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Edit the content of a message previously sent by the bot."),
		mcp.WithString("channel",
			mcp.Required(),
			mcp.Description("Channel name or ID"),
		),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("ID of the message to edit"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("New message content"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		channelID, _, errResult := tools.ResolveChannel(r, logger, req.GetString("channel", ""))
		if errResult != nil {
			return errResult, nil
		}
		messageID := req.GetString("message_id", "")
		if messageID == "" {
			return tools.ErrorResult("message_id is required"), nil
		}

		content := req.GetString("content", "")
		msg, err := m.Edit(ctx, Key{ChannelID: channelID, MessageID: messageID}, &discordgo.MessageEdit{Content: &content})
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Message edited (ID: %s)", msg.ID)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolDeleteMessage(m *Manager, r resolve.ChannelResolver, logger *slog.Logger) tools.Registration {
	const toolName = "discord_delete_message"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Delete a Discord message, now or after a delay."),
		mcp.WithString("channel",
			mcp.Required(),
			mcp.Description("Channel name or ID"),
		),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("ID of the message to delete"),
		),
		mcp.WithNumber("delay_seconds",
			mcp.Description("Delete after this many seconds (optional)"),
		),
		mcp.WithString("reason",
			mcp.Description("Reason recorded in the audit log (optional)"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		channelID, _, errResult := tools.ResolveChannel(r, logger, req.GetString("channel", ""))
		if errResult != nil {
			return errResult, nil
		}
		messageID := req.GetString("message_id", "")
		if messageID == "" {
			return tools.ErrorResult("message_id is required"), nil
		}

		opts := DeleteOptions{
			Delay:  time.Duration(req.GetInt("delay_seconds", 0)) * time.Second,
			Reason: req.GetString("reason", ""),
		}
		if err := m.Delete(ctx, Key{ChannelID: channelID, MessageID: messageID}, opts); err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}
		if opts.Delay > 0 {
			return mcp.NewToolResultText(fmt.Sprintf("Message deletion scheduled in %s", opts.Delay)), nil
		}
		return mcp.NewToolResultText("Message deleted successfully"), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
