// Package channel manages Discord channels: a cache of every channel seen and
// the REST operations that read or change them.
package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/cache"
	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/resource"
)

// Manager caches channels by ID.
type Manager struct {
	f *resource.Family[string, discordgo.Channel]
}

func keyOf(c *discordgo.Channel) (string, bool) { return c.ID, c.ID != "" }

// NewManager constructs a Manager running on e.
func NewManager(e *resource.Engine, opts ...cache.Option) *Manager {
	return &Manager{f: resource.NewFamily(e, "channels", keyOf, opts...)}
}

// Get returns the cached channel, or resource.ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*discordgo.Channel, error) {
	return m.f.Get(ctx, id)
}

// Fetch retrieves the channel from the API and replaces the cached copy.
func (m *Manager) Fetch(ctx context.Context, id string) (*discordgo.Channel, error) {
	return m.f.Fetch(ctx, id, dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetChannel,
		Path:  "/channels/" + id,
	})
}

// FetchGuildChannels retrieves every channel of a guild and caches them all.
func (m *Manager) FetchGuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	e := m.f.Engine()
	w := dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetGuildChannels,
		Path:  "/guilds/" + guildID + "/channels",
	}
	return resource.RunShared(ctx, e, w.Type.String()+" "+w.Path, "channels.fetch_guild",
		func(ctx context.Context, emit func([]*discordgo.Channel)) error {
			resp, err := e.Call(ctx, w)
			if err != nil {
				return err
			}
			var chans []*discordgo.Channel
			if err := json.Unmarshal(resp.Body, &chans); err != nil {
				return fmt.Errorf("channel: decode guild channels: %w", err)
			}
			entries := make(map[string]*discordgo.Channel, len(chans))
			for _, c := range chans {
				if c.GuildID == "" {
					c.GuildID = guildID
				}
				entries[c.ID] = c
			}
			m.f.Store().Merge(entries)
			emit(chans)
			return nil
		})
}

// CreateDM opens (or returns the existing) direct-message channel with a user.
func (m *Manager) CreateDM(ctx context.Context, userID string) (*discordgo.Channel, error) {
	body, err := json.Marshal(struct {
		RecipientID string `json:"recipient_id"`
	}{userID})
	if err != nil {
		return nil, fmt.Errorf("channel: encode dm request: %w", err)
	}
	return m.f.Write(ctx, dispatch.Workload{
		Class: dispatch.Post,
		Type:  dispatch.PostUserDM,
		Path:  "/users/@me/channels",
		Body:  body,
	})
}

// EditPermissionOverwrite creates or replaces the permission overwrite for a
// role or member on a channel. ow.ID is ignored; targetID names the target.
// The cached channel is not modified.
func (m *Manager) EditPermissionOverwrite(ctx context.Context, channelID, targetID string, ow *discordgo.PermissionOverwrite) error {
	body, err := json.Marshal(struct {
		Type  discordgo.PermissionOverwriteType `json:"type"`
		Allow int64                             `json:"allow,string"`
		Deny  int64                             `json:"deny,string"`
	}{ow.Type, ow.Allow, ow.Deny})
	if err != nil {
		return fmt.Errorf("channel: encode overwrite: %w", err)
	}
	return m.f.Exec(ctx, dispatch.Workload{
		Class: dispatch.Put,
		Type:  dispatch.PutChannelPermissionOverwrites,
		Path:  "/channels/" + channelID + "/permissions/" + targetID,
		Body:  body,
	})
}

// DeletePermissionOverwrite removes a permission overwrite. The cached
// channel is not modified.
func (m *Manager) DeletePermissionOverwrite(ctx context.Context, channelID, targetID string) error {
	return m.f.Exec(ctx, dispatch.Workload{
		Class: dispatch.Delete,
		Type:  dispatch.DeleteChannelPermissionOverwrites,
		Path:  "/channels/" + channelID + "/permissions/" + targetID,
	})
}

// Insert caches c.
func (m *Manager) Insert(ctx context.Context, c *discordgo.Channel) error {
	return m.f.Insert(ctx, c)
}

// Remove evicts the channel and reports whether it was cached.
func (m *Manager) Remove(ctx context.Context, id string) (bool, error) {
	return m.f.Remove(ctx, id)
}

// BulkInsert caches every channel in one step.
func (m *Manager) BulkInsert(ctx context.Context, chans []*discordgo.Channel) (int, error) {
	return m.f.BulkInsert(ctx, chans)
}

// GuildChannels returns the cached channels of a guild.
func (m *Manager) GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	return m.f.Select(ctx, func(_ string, c *discordgo.Channel) bool { return c.GuildID == guildID })
}

// RemoveGuild evicts every cached channel of a guild and returns how many were
// removed.
func (m *Manager) RemoveGuild(guildID string) int {
	return m.f.Store().DeleteFunc(func(_ string, c *discordgo.Channel) bool { return c.GuildID == guildID })
}

// Len returns the number of cached channels.
func (m *Manager) Len() int { return m.f.Store().Len() }
