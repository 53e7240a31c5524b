package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ResponseResult is returned by discord_respond_interaction.
type ResponseResult struct {
	InteractionID string `json:"interaction_id"`
	Status        string `json:"status"`
	MessageID     string `json:"message_id,omitempty"`
}

// InteractionTools returns the tool registrations for answering interactions
// received through the gateway.
func InteractionTools(m *Manager, logger *slog.Logger) []tools.Registration {
	logger = tools.DefaultLogger(logger)
	return []tools.Registration{
		toolListInteractions(m, logger),
		toolRespondInteraction(m, logger),
	}
}

func toolListInteractions(m *Manager, logger *slog.Logger) tools.Registration {
	tool := mcp.NewTool("discord_list_interactions",
		mcp.WithDescription("List slash commands, button clicks and modal submits that can still be answered."),
	)

	handler := func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pending := m.PendingInteractions(time.Now())
		logger.Debug("listing interactions", "count", len(pending))
		if pending == nil {
			pending = []Pending{}
		}
		return tools.JSONResult(pending), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolRespondInteraction(m *Manager, logger *slog.Logger) tools.Registration {
	const toolName = "discord_respond_interaction"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Answer a pending interaction. Once answered, further calls post follow-up messages."),
		mcp.WithString("interaction_id",
			mcp.Required(),
			mcp.Description("ID of the interaction, as listed by discord_list_interactions"),
		),
		mcp.WithString("content",
			mcp.Description("Message text (required unless defer is set)"),
		),
		mcp.WithBoolean("ephemeral",
			mcp.Description("Only show the message to the invoking user"),
		),
		mcp.WithBoolean("defer",
			mcp.Description("Acknowledge now and answer later"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("interaction_id", "")
		if id == "" {
			return tools.ErrorResult("interaction_id is required"), nil
		}
		p, ok := m.PendingInteraction(id, time.Now())
		if !ok {
			return tools.ErrorResult(fmt.Sprintf("interaction %q is not pending", id)), nil
		}

		if req.GetBool("defer", false) {
			if p.Answered {
				return tools.ErrorResult(fmt.Sprintf("interaction %q was already answered", id)), nil
			}
			if err := m.CreateDeferredResponse(ctx, p.Target); err != nil {
				return tools.FailureResult(logger, toolName, err), nil
			}
			return tools.JSONResult(ResponseResult{InteractionID: id, Status: "deferred"}), nil
		}

		content := req.GetString("content", "")
		if content == "" {
			return tools.ErrorResult("content is required"), nil
		}
		var flags discordgo.MessageFlags
		if req.GetBool("ephemeral", false) {
			flags = discordgo.MessageFlagsEphemeral
		}

		logger.Debug("answering interaction", "interactionID", id, "followUp", p.Answered)

		if p.Answered {
			msg, err := m.CreateFollowUp(ctx, p.Target, &discordgo.WebhookParams{Content: content, Flags: flags})
			if err != nil {
				return tools.FailureResult(logger, toolName, err), nil
			}
			return tools.JSONResult(ResponseResult{InteractionID: id, Status: "follow_up", MessageID: msg.ID}), nil
		}

		msg, err := m.CreateResponse(ctx, p.Target, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: content, Flags: flags},
		})
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}
		res := ResponseResult{InteractionID: id, Status: "responded"}
		if msg != nil {
			res.MessageID = msg.ID
		}
		return tools.JSONResult(res), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
