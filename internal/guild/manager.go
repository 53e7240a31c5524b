// Package guild manages Discord guilds: a cache of every guild seen plus the
// guild-scoped reads (invites, audit log) and moderation calls.
package guild

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/cache"
	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/resource"
)

// BanParams configures CreateBan.
type BanParams struct {
	// DeleteMessageSeconds removes the user's messages from the last n
	// seconds (0 to 604800).
	DeleteMessageSeconds int
	Reason               string
}

// AuditLogParams filters FetchAuditLog. Zero values are omitted.
type AuditLogParams struct {
	UserID     string
	Before     string
	ActionType discordgo.AuditLogAction
	Limit      int
}

func (p AuditLogParams) query() url.Values {
	q := url.Values{}
	if p.UserID != "" {
		q.Set("user_id", p.UserID)
	}
	if p.Before != "" {
		q.Set("before", p.Before)
	}
	if p.ActionType != 0 {
		q.Set("action_type", strconv.Itoa(int(p.ActionType)))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}

// Manager caches guilds by ID.
type Manager struct {
	f *resource.Family[string, discordgo.Guild]
}

func keyOf(g *discordgo.Guild) (string, bool) { return g.ID, g.ID != "" }

// NewManager constructs a Manager running on e.
func NewManager(e *resource.Engine, opts ...cache.Option) *Manager {
	return &Manager{f: resource.NewFamily(e, "guilds", keyOf, opts...)}
}

// Get returns the cached guild, or resource.ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*discordgo.Guild, error) {
	return m.f.Get(ctx, id)
}

// Fetch retrieves the guild (with approximate counts) and replaces the
// cached copy.
func (m *Manager) Fetch(ctx context.Context, id string) (*discordgo.Guild, error) {
	return m.f.Fetch(ctx, id, dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetGuild,
		Path:  "/guilds/" + id,
		Query: url.Values{"with_counts": {"true"}},
	})
}

// All returns every cached guild.
func (m *Manager) All(ctx context.Context) ([]*discordgo.Guild, error) {
	return m.f.Select(ctx, nil)
}

// CreateBan bans a user. Nothing is cached whatever the response.
func (m *Manager) CreateBan(ctx context.Context, guildID, userID string, p BanParams) error {
	body, err := json.Marshal(struct {
		DeleteMessageSeconds int `json:"delete_message_seconds,omitempty"`
	}{p.DeleteMessageSeconds})
	if err != nil {
		return fmt.Errorf("guild: encode ban: %w", err)
	}
	return m.f.Exec(ctx, dispatch.Workload{
		Class:  dispatch.Put,
		Type:   dispatch.PutGuildBan,
		Path:   "/guilds/" + guildID + "/bans/" + userID,
		Body:   body,
		Reason: p.Reason,
	})
}

// Leave removes the bot from the guild and evicts the cached guild once the
// API confirms. Channels, members and roles of the guild are left to the
// caller; see client.Client.LeaveGuild.
func (m *Manager) Leave(ctx context.Context, guildID string) error {
	return m.f.Delete(ctx, dispatch.Workload{
		Class: dispatch.Delete,
		Type:  dispatch.DeleteLeaveGuild,
		Path:  "/users/@me/guilds/" + guildID,
	}, guildID)
}

// FetchInvites lists the guild's active invites.
func (m *Manager) FetchInvites(ctx context.Context, guildID string) ([]*discordgo.Invite, error) {
	invites, err := resource.Run(ctx, m.f.Engine(), "guilds.invites", resource.ReadPass[[]*discordgo.Invite](m.f.Engine(), dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetInvites,
		Path:  "/guilds/" + guildID + "/invites",
	}))
	if err != nil {
		return nil, err
	}
	return *invites, nil
}

// FetchInvite resolves an invite code.
func (m *Manager) FetchInvite(ctx context.Context, code string) (*discordgo.Invite, error) {
	return resource.Run(ctx, m.f.Engine(), "guilds.invite", resource.ReadPass[discordgo.Invite](m.f.Engine(), dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetInvite,
		Path:  "/invites/" + url.PathEscape(code),
		Query: url.Values{"with_counts": {"true"}},
	}))
}

// FetchVanityInvite returns the guild's vanity invite. Only Code and Uses are
// set.
func (m *Manager) FetchVanityInvite(ctx context.Context, guildID string) (*discordgo.Invite, error) {
	return resource.Run(ctx, m.f.Engine(), "guilds.vanity", resource.ReadPass[discordgo.Invite](m.f.Engine(), dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetVanityInvite,
		Path:  "/guilds/" + guildID + "/vanity-url",
	}))
}

// FetchAuditLog reads the guild's audit log.
func (m *Manager) FetchAuditLog(ctx context.Context, guildID string, p AuditLogParams) (*discordgo.GuildAuditLog, error) {
	return resource.Run(ctx, m.f.Engine(), "guilds.audit_log", resource.ReadPass[discordgo.GuildAuditLog](m.f.Engine(), dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetAuditLog,
		Path:  "/guilds/" + guildID + "/audit-logs",
		Query: p.query(),
	}))
}

// Insert caches g.
func (m *Manager) Insert(ctx context.Context, g *discordgo.Guild) error {
	return m.f.Insert(ctx, g)
}

// Remove evicts the guild and reports whether it was cached.
func (m *Manager) Remove(ctx context.Context, id string) (bool, error) {
	return m.f.Remove(ctx, id)
}

// BulkInsert caches every guild in one step.
func (m *Manager) BulkInsert(ctx context.Context, guilds []*discordgo.Guild) (int, error) {
	return m.f.BulkInsert(ctx, guilds)
}

// Len returns the number of cached guilds.
func (m *Manager) Len() int { return m.f.Store().Len() }
