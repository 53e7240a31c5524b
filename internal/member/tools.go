package member

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MemberSummary is the response shape returned by discord_get_member.
type MemberSummary struct {
	UserID    string   `json:"user_id"`
	Username  string   `json:"username"`
	Nick      string   `json:"nick,omitempty"`
	Bot       bool     `json:"bot"`
	AvatarURL string   `json:"avatar_url"`
	Roles     []string `json:"roles"`
	JoinedAt  string   `json:"joined_at,omitempty"`
}

func summarize(k Key, m *discordgo.Member) MemberSummary {
	s := MemberSummary{UserID: k.UserID, Nick: m.Nick, Roles: m.Roles}
	if s.Roles == nil {
		s.Roles = []string{}
	}
	if m.User != nil {
		s.Username = m.User.Username
		s.Bot = m.User.Bot
		s.AvatarURL = m.User.AvatarURL("")
	}
	if !m.JoinedAt.IsZero() {
		s.JoinedAt = m.JoinedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return s
}

// MemberTools returns all tool registrations for Discord member operations.
func MemberTools(m *Manager, defaultGuildID string, logger *slog.Logger) []tools.Registration {
	logger = tools.DefaultLogger(logger)
	return []tools.Registration{
		toolGetMember(m, defaultGuildID, logger),
	}
}

func toolGetMember(m *Manager, defaultGuildID string, logger *slog.Logger) tools.Registration {
	const toolName = "discord_get_member"

	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Retrieve a member of a Discord guild by user ID."),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Discord user ID"),
		),
		mcp.WithString("guild_id",
			mcp.Description("Guild (server) ID (optional, uses default guild if omitted)"),
		),
		tools.WithRefresh(),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		k := Key{
			GuildID: req.GetString("guild_id", defaultGuildID),
			UserID:  req.GetString("user_id", ""),
		}
		if k.UserID == "" {
			return tools.ErrorResult("user_id is required"), nil
		}

		var (
			mem *discordgo.Member
			err error
		)
		if !tools.Refresh(req) {
			mem, err = m.Get(ctx, k)
		}
		if mem == nil {
			mem, err = m.Fetch(ctx, k)
		}
		if err != nil {
			return tools.FailureResult(logger, toolName, err), nil
		}
		return tools.JSONResult(summarize(k, mem)), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
