// Package user provides the MCP tool for looking up Discord users.
package user

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/member"
	"github.com/jamesprial/discordcore/internal/resource"
	"github.com/jamesprial/discordcore/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// UserSummary is the response shape returned by discord_get_user.
type UserSummary struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	GlobalName    string `json:"global_name,omitempty"`
	Discriminator string `json:"discriminator"`
	Bot           bool   `json:"bot"`
	AvatarURL     string `json:"avatar_url"`
	Source        string `json:"source"`
}

// Fetch reads a user from the API. Users are not cached on their own; the
// member cache holds the users the client has seen.
func Fetch(ctx context.Context, e *resource.Engine, userID string) (*discordgo.User, error) {
	return resource.Run(ctx, e, "users.fetch", resource.ReadPass[discordgo.User](e, dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetUser,
		Path:  "/users/" + userID,
	}))
}

// UserTools returns all tool registrations for Discord user operations.
func UserTools(members *member.Manager, e *resource.Engine, defaultGuildID string, logger *slog.Logger) []tools.Registration {
	logger = tools.DefaultLogger(logger)
	return []tools.Registration{
		toolGetUser(members, e, defaultGuildID, logger),
	}
}

func toolGetUser(members *member.Manager, e *resource.Engine, defaultGuildID string, logger *slog.Logger) tools.Registration {
	const toolName = "discord_get_user"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Retrieve information about a Discord user by their ID."),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Discord user ID"),
		),
		tools.WithRefresh(),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := req.GetString("user_id", "")
		if userID == "" {
			return tools.ErrorResult("user_id is required"), nil
		}

		var u *discordgo.User
		source := "cache"
		if !tools.Refresh(req) && defaultGuildID != "" {
			if mem, err := members.Get(ctx, member.Key{GuildID: defaultGuildID, UserID: userID}); err == nil {
				u = mem.User
			}
		}
		if u == nil {
			var err error
			source = "api"
			u, err = Fetch(ctx, e, userID)
			if err != nil {
				return tools.FailureResult(logger, toolName, err), nil
			}
		}
		logger.Debug("user lookup", "userID", userID, "source", source)

		return tools.JSONResult(UserSummary{
			ID:            u.ID,
			Username:      u.Username,
			GlobalName:    u.GlobalName,
			Discriminator: u.Discriminator,
			Bot:           u.Bot,
			AvatarURL:     u.AvatarURL(""),
			Source:        source,
		}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
