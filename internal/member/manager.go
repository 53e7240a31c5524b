// Package member manages guild members, cached per guild and user.
package member

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/cache"
	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/resource"
)

// Key identifies a member of a guild.
type Key struct {
	GuildID string
	UserID  string
}

func (k Key) path() string { return "/guilds/" + k.GuildID + "/members/" + k.UserID }

// KeyOf returns the key of m. It reports false when the guild or user is
// unknown.
func KeyOf(m *discordgo.Member) (Key, bool) {
	if m.GuildID == "" || m.User == nil || m.User.ID == "" {
		return Key{}, false
	}
	return Key{GuildID: m.GuildID, UserID: m.User.ID}, true
}

// Params are the member fields Modify can change. Nil fields are left alone.
type Params struct {
	Nick      *string    `json:"nick,omitempty"`
	Roles     *[]string  `json:"roles,omitempty"`
	Mute      *bool      `json:"mute,omitempty"`
	Deaf      *bool      `json:"deaf,omitempty"`
	ChannelID *string    `json:"channel_id,omitempty"`
	TimeoutTo *time.Time `json:"communication_disabled_until,omitempty"`
}

// Manager caches members by Key.
type Manager struct {
	f *resource.Family[Key, discordgo.Member]
}

// NewManager constructs a Manager running on e.
func NewManager(e *resource.Engine, opts ...cache.Option) *Manager {
	return &Manager{f: resource.NewFamily(e, "members", KeyOf, opts...)}
}

// Get returns the cached member, or resource.ErrNotFound.
func (m *Manager) Get(ctx context.Context, k Key) (*discordgo.Member, error) {
	return m.f.Get(ctx, k)
}

// Fetch retrieves the member and replaces the cached copy. What a failed
// response does to the cache depends on the engine's policy.
func (m *Manager) Fetch(ctx context.Context, k Key) (*discordgo.Member, error) {
	return m.f.Fetch(ctx, k, dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetGuildMember,
		Path:  k.path(),
	})
}

// Modify edits the member and caches the result under k. The API omits the
// guild ID from the returned member.
func (m *Manager) Modify(ctx context.Context, k Key, params Params) (*discordgo.Member, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("member: encode params: %w", err)
	}
	return m.f.WriteAt(ctx, k, dispatch.Workload{
		Class: dispatch.Patch,
		Type:  dispatch.PatchGuildMember,
		Path:  k.path(),
		Body:  body,
	})
}

// Insert caches mem under guildID.
func (m *Manager) Insert(ctx context.Context, guildID string, mem *discordgo.Member) error {
	if mem != nil && mem.GuildID == "" {
		mem.GuildID = guildID
	}
	return m.f.Insert(ctx, mem)
}

// Remove evicts the member and reports whether it was cached.
func (m *Manager) Remove(ctx context.Context, k Key) (bool, error) {
	return m.f.Remove(ctx, k)
}

// BulkInsert caches every member of a guild in one step, e.g. from a guild
// members chunk.
func (m *Manager) BulkInsert(ctx context.Context, guildID string, members []*discordgo.Member) (int, error) {
	for _, mem := range members {
		if mem != nil && mem.GuildID == "" {
			mem.GuildID = guildID
		}
	}
	return m.f.BulkInsert(ctx, members)
}

// GuildMembers returns the cached members of a guild.
func (m *Manager) GuildMembers(ctx context.Context, guildID string) ([]*discordgo.Member, error) {
	return m.f.Select(ctx, func(k Key, _ *discordgo.Member) bool { return k.GuildID == guildID })
}

// RemoveGuild evicts every cached member of a guild and returns how many were
// removed.
func (m *Manager) RemoveGuild(guildID string) int {
	return m.f.Store().DeleteFunc(func(k Key, _ *discordgo.Member) bool { return k.GuildID == guildID })
}

// Len returns the number of cached members.
func (m *Manager) Len() int { return m.f.Store().Len() }
