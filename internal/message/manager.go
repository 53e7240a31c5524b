// Package message manages channel messages: a cache keyed by channel and
// message ID, the REST operations on messages and the MCP tools built on them.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/cache"
	"github.com/jamesprial/discordcore/internal/channel"
	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/resource"
)

// OldMessageAge is the age past which a message is deleted through the
// slower old-message route.
const OldMessageAge = 14 * 24 * time.Hour

// MaxBulkDelete is the most messages one bulk delete may name.
const MaxBulkDelete = 100

// Key identifies a message within a channel.
type Key struct {
	ChannelID string
	MessageID string
}

func (k Key) path() string { return "/channels/" + k.ChannelID + "/messages/" + k.MessageID }

// KeyOf returns the key of msg. It reports false when the channel or message
// ID is unknown.
func KeyOf(msg *discordgo.Message) (Key, bool) {
	if msg.ChannelID == "" || msg.ID == "" {
		return Key{}, false
	}
	return Key{ChannelID: msg.ChannelID, MessageID: msg.ID}, true
}

// Query narrows FetchMessages. At most one of Before, After and Around is
// honoured by the API.
type Query struct {
	Limit  int
	Before string
	After  string
	Around string
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Before != "" {
		v.Set("before", q.Before)
	}
	if q.After != "" {
		v.Set("after", q.After)
	}
	if q.Around != "" {
		v.Set("around", q.Around)
	}
	return v
}

// DeleteOptions controls Delete.
type DeleteOptions = resource.DeleteOptions

// Manager caches messages by Key.
type Manager struct {
	f        *resource.Family[Key, discordgo.Message]
	channels *channel.Manager
}

// NewManager constructs a Manager running on e. channels is used to open DM
// channels for SendDM.
func NewManager(e *resource.Engine, channels *channel.Manager, opts ...cache.Option) *Manager {
	return &Manager{
		f:        resource.NewFamily(e, "messages", KeyOf, opts...),
		channels: channels,
	}
}

// Get returns the cached message, or resource.ErrNotFound.
func (m *Manager) Get(ctx context.Context, k Key) (*discordgo.Message, error) {
	return m.f.Get(ctx, k)
}

// Fetch retrieves the message and replaces the cached copy.
func (m *Manager) Fetch(ctx context.Context, k Key) (*discordgo.Message, error) {
	return m.f.Fetch(ctx, k, dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetMessage,
		Path:  k.path(),
	})
}

// FetchMessages retrieves a page of channel history, newest first, and caches
// every message in it.
func (m *Manager) FetchMessages(ctx context.Context, channelID string, q Query) ([]*discordgo.Message, error) {
	e := m.f.Engine()
	w := dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetMessages,
		Path:  "/channels/" + channelID + "/messages",
		Query: q.values(),
	}
	key := w.Type.String() + " " + w.Path + "?" + w.Query.Encode()
	return resource.RunShared(ctx, e, key, "messages.fetch_many",
		func(ctx context.Context, emit func([]*discordgo.Message)) error {
			resp, err := e.Call(ctx, w)
			if err != nil {
				return err
			}
			var msgs []*discordgo.Message
			if err := json.Unmarshal(resp.Body, &msgs); err != nil {
				return fmt.Errorf("message: decode history: %w", err)
			}
			m.merge(channelID, msgs)
			emit(msgs)
			return nil
		})
}

func (m *Manager) merge(channelID string, msgs []*discordgo.Message) {
	entries := make(map[Key]*discordgo.Message, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if msg.ChannelID == "" {
			msg.ChannelID = channelID
		}
		if k, ok := KeyOf(msg); ok {
			entries[k] = msg
		}
	}
	m.f.Store().Merge(entries)
}

// FetchPinned lists the pinned messages of a channel. The listing is not
// cached.
func (m *Manager) FetchPinned(ctx context.Context, channelID string) ([]*discordgo.Message, error) {
	msgs, err := resource.Run(ctx, m.f.Engine(), "messages.fetch_pinned",
		resource.ReadPass[[]*discordgo.Message](m.f.Engine(), dispatch.Workload{
			Class: dispatch.Get,
			Type:  dispatch.GetPinnedMessages,
			Path:  "/channels/" + channelID + "/pins",
		}))
	if msgs == nil {
		return nil, err
	}
	return *msgs, err
}

// Create posts a message to a channel and caches it.
func (m *Manager) Create(ctx context.Context, channelID string, send *discordgo.MessageSend) (*discordgo.Message, error) {
	body, err := json.Marshal(send)
	if err != nil {
		return nil, fmt.Errorf("message: encode message: %w", err)
	}
	return m.f.Write(ctx, dispatch.Workload{
		Class: dispatch.Post,
		Type:  dispatch.PostMessage,
		Path:  "/channels/" + channelID + "/messages",
		Body:  body,
	})
}

// Reply posts send as a reply to the message under k.
func (m *Manager) Reply(ctx context.Context, k Key, send *discordgo.MessageSend) (*discordgo.Message, error) {
	if send == nil {
		return nil, errors.New("message: nil send")
	}
	reply := *send
	reply.Reference = &discordgo.MessageReference{MessageID: k.MessageID, ChannelID: k.ChannelID}
	return m.Create(ctx, k.ChannelID, &reply)
}

// SendDM opens the direct-message channel with a user and posts send to it.
func (m *Manager) SendDM(ctx context.Context, userID string, send *discordgo.MessageSend) (*discordgo.Message, error) {
	dm, err := m.channels.CreateDM(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("message: open dm with %s: %w", userID, err)
	}
	return m.Create(ctx, dm.ID, send)
}

// Edit changes a message and caches the edited copy.
func (m *Manager) Edit(ctx context.Context, k Key, edit *discordgo.MessageEdit) (*discordgo.Message, error) {
	body, err := json.Marshal(edit)
	if err != nil {
		return nil, fmt.Errorf("message: encode edit: %w", err)
	}
	return m.f.Write(ctx, dispatch.Workload{
		Class: dispatch.Patch,
		Type:  dispatch.PatchMessage,
		Path:  k.path(),
		Body:  body,
	})
}

// Delete deletes the message under k and evicts it once the API confirms.
// Messages older than OldMessageAge are sent through the old-message route.
// A positive opts.Delay schedules the delete instead.
func (m *Manager) Delete(ctx context.Context, k Key, opts DeleteOptions) error {
	w := dispatch.Workload{
		Class:  dispatch.Delete,
		Type:   deleteType(k.MessageID, time.Now()),
		Path:   k.path(),
		Reason: opts.Reason,
	}
	return m.f.DeleteLater(ctx, opts.Delay, w, k)
}

// deleteType picks the delete route from the message's snowflake timestamp.
// IDs that do not parse take the regular route.
func deleteType(messageID string, now time.Time) dispatch.Type {
	ts, err := discordgo.SnowflakeTimestamp(messageID)
	if err == nil && now.Sub(ts) > OldMessageAge {
		return dispatch.DeleteMessageOld
	}
	return dispatch.DeleteMessage
}

// DeleteBulk deletes several messages of one channel and evicts them on
// success. A single ID is deleted individually; more than MaxBulkDelete is
// rejected.
func (m *Manager) DeleteBulk(ctx context.Context, channelID string, ids []string, reason string) error {
	switch {
	case len(ids) == 0:
		return nil
	case len(ids) == 1:
		return m.Delete(ctx, Key{ChannelID: channelID, MessageID: ids[0]}, DeleteOptions{Reason: reason})
	case len(ids) > MaxBulkDelete:
		return fmt.Errorf("message: bulk delete of %d messages exceeds %d", len(ids), MaxBulkDelete)
	}

	body, err := json.Marshal(struct {
		Messages []string `json:"messages"`
	}{ids})
	if err != nil {
		return fmt.Errorf("message: encode bulk delete: %w", err)
	}
	w := dispatch.Workload{
		Class:  dispatch.Post,
		Type:   dispatch.DeleteMessagesBulk,
		Path:   "/channels/" + channelID + "/messages/bulk-delete",
		Body:   body,
		Reason: reason,
	}
	evict := func() {
		store := m.f.Store()
		for _, id := range ids {
			store.Delete(Key{ChannelID: channelID, MessageID: id})
		}
	}
	_, err = resource.Run(ctx, m.f.Engine(), "messages.delete_bulk", resource.DeletePass(m.f.Engine(), w, evict))
	return err
}

// Pin pins the message under k. A cached copy is marked pinned.
func (m *Manager) Pin(ctx context.Context, k Key) error {
	err := m.f.Exec(ctx, dispatch.Workload{
		Class: dispatch.Put,
		Type:  dispatch.PutPinMessage,
		Path:  "/channels/" + k.ChannelID + "/pins/" + k.MessageID,
	})
	if err != nil {
		return err
	}
	m.f.Store().Update(k, func(old *discordgo.Message, ok bool) (*discordgo.Message, bool) {
		if !ok {
			return nil, false
		}
		pinned := *old
		pinned.Pinned = true
		return &pinned, true
	})
	return nil
}

// Insert caches msg under its key.
func (m *Manager) Insert(ctx context.Context, msg *discordgo.Message) error {
	return m.f.Insert(ctx, msg)
}

// Remove evicts the message and reports whether it was cached.
func (m *Manager) Remove(ctx context.Context, k Key) (bool, error) {
	return m.f.Remove(ctx, k)
}

// BulkInsert caches every keyable message in one step.
func (m *Manager) BulkInsert(ctx context.Context, msgs []*discordgo.Message) (int, error) {
	return m.f.BulkInsert(ctx, msgs)
}

// ChannelMessages returns the cached messages of a channel, oldest first.
func (m *Manager) ChannelMessages(ctx context.Context, channelID string) ([]*discordgo.Message, error) {
	msgs, err := m.f.Select(ctx, func(k Key, _ *discordgo.Message) bool { return k.ChannelID == channelID })
	if err != nil {
		return nil, err
	}
	sortByID(msgs)
	return msgs, nil
}

// RemoveChannel evicts every cached message of a channel.
func (m *Manager) RemoveChannel(channelID string) int {
	return m.f.Store().DeleteFunc(func(k Key, _ *discordgo.Message) bool { return k.ChannelID == channelID })
}

// Len returns the number of cached messages.
func (m *Manager) Len() int { return m.f.Store().Len() }

// sortByID orders messages by snowflake, which is creation order.
func sortByID(msgs []*discordgo.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		a, b := msgs[i].ID, msgs[j].ID
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
}
