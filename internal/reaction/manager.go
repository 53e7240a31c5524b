// Package reaction manages message reactions, cached per channel, message,
// user and emoji.
package reaction

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/cache"
	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/resource"
)

// Key identifies one user's reaction with one emoji on a message. Emoji is
// the API name: the unicode character, or "name:id" for a custom emoji.
type Key struct {
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

// EmojiName returns the API name of e.
func EmojiName(e discordgo.Emoji) string {
	if e.ID != "" {
		return e.Name + ":" + e.ID
	}
	return e.Name
}

// KeyOf returns the key of r. It reports false when any part is unknown.
func KeyOf(r *discordgo.MessageReaction) (Key, bool) {
	k := Key{ChannelID: r.ChannelID, MessageID: r.MessageID, UserID: r.UserID, Emoji: EmojiName(r.Emoji)}
	if k.ChannelID == "" || k.MessageID == "" || k.UserID == "" || k.Emoji == "" {
		return Key{}, false
	}
	return k, true
}

func reactionsPath(channelID, messageID string) string {
	return "/channels/" + channelID + "/messages/" + messageID + "/reactions"
}

func emojiPath(channelID, messageID, emoji string) string {
	return reactionsPath(channelID, messageID) + "/" + url.PathEscape(emoji)
}

// Manager caches reactions by Key.
type Manager struct {
	f    *resource.Family[Key, discordgo.MessageReaction]
	self atomic.Pointer[string]
}

// NewManager constructs a Manager running on e.
func NewManager(e *resource.Engine, opts ...cache.Option) *Manager {
	return &Manager{f: resource.NewFamily(e, "reactions", KeyOf, opts...)}
}

// SetSelf records the bot's own user ID, used to key the reactions it adds.
// Until it is set, Create and DeleteOwn leave the cache alone.
func (m *Manager) SetSelf(userID string) { m.self.Store(&userID) }

func (m *Manager) selfID() string {
	if p := m.self.Load(); p != nil {
		return *p
	}
	return ""
}

// Get returns the cached reaction, or resource.ErrNotFound.
func (m *Manager) Get(ctx context.Context, k Key) (*discordgo.MessageReaction, error) {
	return m.f.Get(ctx, k)
}

// Create adds the bot's reaction to a message.
func (m *Manager) Create(ctx context.Context, channelID, messageID, emoji string) (*discordgo.MessageReaction, error) {
	w := dispatch.Workload{
		Class: dispatch.Put,
		Type:  dispatch.PutReaction,
		Path:  emojiPath(channelID, messageID, emoji) + "/@me",
	}
	if err := m.f.Exec(ctx, w); err != nil {
		return nil, err
	}
	r := &discordgo.MessageReaction{
		ChannelID: channelID,
		MessageID: messageID,
		UserID:    m.selfID(),
		Emoji:     parseEmoji(emoji),
	}
	if r.UserID != "" {
		if err := m.f.Insert(ctx, r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// parseEmoji splits an API emoji name back into name and ID. The "a:" prefix
// of an animated custom emoji is dropped so the result keys like the gateway's
// copy of the same emoji.
func parseEmoji(s string) discordgo.Emoji {
	if rest, ok := strings.CutPrefix(s, "a:"); ok && strings.Contains(rest, ":") {
		s = rest
	}
	for i := len(s) - 1; i > 0; i-- {
		if s[i] == ':' {
			return discordgo.Emoji{Name: s[:i], ID: s[i+1:]}
		}
	}
	return discordgo.Emoji{Name: s}
}

// DeleteOwn removes the bot's reaction.
func (m *Manager) DeleteOwn(ctx context.Context, channelID, messageID, emoji string) error {
	return m.f.Delete(ctx, dispatch.Workload{
		Class: dispatch.Delete,
		Type:  dispatch.DeleteOwnReaction,
		Path:  emojiPath(channelID, messageID, emoji) + "/@me",
	}, Key{ChannelID: channelID, MessageID: messageID, UserID: m.selfID(), Emoji: EmojiName(parseEmoji(emoji))})
}

// DeleteUser removes another user's reaction.
func (m *Manager) DeleteUser(ctx context.Context, k Key) error {
	w := dispatch.Workload{
		Class: dispatch.Delete,
		Type:  dispatch.DeleteUserReaction,
		Path:  emojiPath(k.ChannelID, k.MessageID, k.Emoji) + "/" + k.UserID,
	}
	k.Emoji = EmojiName(parseEmoji(k.Emoji))
	return m.f.Delete(ctx, w, k)
}

// DeleteByEmoji removes every reaction with one emoji from a message.
func (m *Manager) DeleteByEmoji(ctx context.Context, channelID, messageID, emoji string) error {
	w := dispatch.Workload{
		Class: dispatch.Delete,
		Type:  dispatch.DeleteReactionsByEmoji,
		Path:  emojiPath(channelID, messageID, emoji),
	}
	name := EmojiName(parseEmoji(emoji))
	return m.deleteMatching(ctx, w, "reactions.delete_emoji", func(k Key) bool {
		return k.ChannelID == channelID && k.MessageID == messageID && k.Emoji == name
	})
}

// DeleteAll removes every reaction from a message.
func (m *Manager) DeleteAll(ctx context.Context, channelID, messageID string) error {
	w := dispatch.Workload{
		Class: dispatch.Delete,
		Type:  dispatch.DeleteAllReactions,
		Path:  reactionsPath(channelID, messageID),
	}
	return m.deleteMatching(ctx, w, "reactions.delete_all", func(k Key) bool {
		return k.ChannelID == channelID && k.MessageID == messageID
	})
}

func (m *Manager) deleteMatching(ctx context.Context, w dispatch.Workload, op string, match func(Key) bool) error {
	evict := func() {
		m.f.Store().DeleteFunc(func(k Key, _ *discordgo.MessageReaction) bool { return match(k) })
	}
	_, err := resource.Run(ctx, m.f.Engine(), op, resource.DeletePass(m.f.Engine(), w, evict))
	return err
}

// Insert caches r under its key.
func (m *Manager) Insert(ctx context.Context, r *discordgo.MessageReaction) error {
	return m.f.Insert(ctx, r)
}

// Remove evicts the reaction and reports whether it was cached.
func (m *Manager) Remove(ctx context.Context, k Key) (bool, error) {
	return m.f.Remove(ctx, k)
}

// BulkInsert caches every keyable reaction in one step.
func (m *Manager) BulkInsert(ctx context.Context, rs []*discordgo.MessageReaction) (int, error) {
	return m.f.BulkInsert(ctx, rs)
}

// RemoveMessage evicts every cached reaction on a message.
func (m *Manager) RemoveMessage(channelID, messageID string) int {
	return m.f.Store().DeleteFunc(func(k Key, _ *discordgo.MessageReaction) bool {
		return k.ChannelID == channelID && k.MessageID == messageID
	})
}

// MessageReactions returns the cached reactions on a message.
func (m *Manager) MessageReactions(ctx context.Context, channelID, messageID string) ([]*discordgo.MessageReaction, error) {
	return m.f.Select(ctx, func(k Key, _ *discordgo.MessageReaction) bool {
		return k.ChannelID == channelID && k.MessageID == messageID
	})
}

// Len returns the number of cached reactions.
func (m *Manager) Len() int { return m.f.Store().Len() }
