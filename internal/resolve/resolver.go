// Package resolve provides a channel name ↔ ID index for a single Discord
// guild.
package resolve

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// ChannelSource lists the channels of a guild. The channel manager satisfies
// it, so every refresh also lands in the channel cache.
type ChannelSource interface {
	FetchGuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
}

// Resolver maintains an in-memory bidirectional index of the text channel IDs
// and names of one guild. It is safe for concurrent use.
type Resolver struct {
	src     ChannelSource
	guildID string
	mu      sync.RWMutex
	byID    map[string]string // channel ID -> name
	byName  map[string]string // channel name -> ID
}

// New constructs a Resolver for the given guild. The index is empty until
// Refresh is called or channels are observed.
func New(src ChannelSource, guildID string) *Resolver {
	return &Resolver{
		src:     src,
		guildID: guildID,
		byID:    make(map[string]string),
		byName:  make(map[string]string),
	}
}

// GuildID returns the guild ID this Resolver was constructed with.
func (r *Resolver) GuildID() string {
	return r.guildID
}

// ChannelName returns the human-readable name for the channel with the given
// ID. If the ID is not indexed, the ID itself is returned so callers always
// receive a non-empty, printable value.
func (r *Resolver) ChannelName(id string) string {
	r.mu.RLock()
	name, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return id
	}
	return name
}

// ChannelID returns the ID for the channel with the given name. A leading "#"
// is stripped before the lookup. An unknown name is an error.
func (r *Resolver) ChannelID(name string) (string, error) {
	name = strings.TrimPrefix(name, "#")

	r.mu.RLock()
	id, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("resolve: channel %q not found", name)
	}
	return id, nil
}

// Refresh lists the guild's channels and replaces the index. Only text
// channels are indexed. The write lock is held only for the map swap, so
// lookups are not blocked during the request.
func (r *Resolver) Refresh(ctx context.Context) error {
	channels, err := r.src.FetchGuildChannels(ctx, r.guildID)
	if err != nil {
		return fmt.Errorf("resolve: fetch guild channels: %w", err)
	}

	newByID := make(map[string]string, len(channels))
	newByName := make(map[string]string, len(channels))

	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		newByID[ch.ID] = ch.Name
		newByName[ch.Name] = ch.ID
	}

	r.mu.Lock()
	r.byID = newByID
	r.byName = newByName
	r.mu.Unlock()

	return nil
}

// Observe indexes a created or renamed channel of the guild. Channels of
// other guilds and non-text channels are ignored.
func (r *Resolver) Observe(ch *discordgo.Channel) {
	if ch == nil || ch.GuildID != r.guildID || ch.Type != discordgo.ChannelTypeGuildText {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[ch.ID]; ok && r.byName[old] == ch.ID {
		delete(r.byName, old)
	}
	r.byID[ch.ID] = ch.Name
	r.byName[ch.Name] = ch.ID
}

// Forget drops a deleted channel from the index.
func (r *Resolver) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.byID[id]; ok {
		delete(r.byID, id)
		if r.byName[name] == id {
			delete(r.byName, name)
		}
	}
}

// ResolveChannelParam resolves a channel parameter that may be a name or ID.
// All-digit strings are treated as IDs, otherwise looked up via the resolver.
// A leading "#" is stripped from names.
func ResolveChannelParam(r ChannelResolver, channel string) (string, error) {
	channel = strings.TrimPrefix(channel, "#")

	// All-digit strings are already IDs.
	allDigits := len(channel) > 0
	for _, c := range channel {
		if c < '0' || c > '9' {
			allDigits = false
			break
		}
	}
	if allDigits {
		return channel, nil
	}

	return r.ChannelID(channel)
}
