// Package interaction manages responses to application interactions: the
// initial response and its follow-up messages, cached per application, token
// and message.
package interaction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/cache"
	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/resource"
)

// Original is the message ID the API uses for the initial response.
const Original = "@original"

// TokenLifetime is how long an interaction token accepts responses.
const TokenLifetime = 15 * time.Minute

// Key identifies a response message of one interaction.
type Key struct {
	ApplicationID string
	Token         string
	MessageID     string
}

// Target identifies the interaction being answered.
type Target struct {
	ApplicationID string
	InteractionID string
	Token         string
}

// TargetOf returns the Target of an incoming interaction.
func TargetOf(i *discordgo.Interaction) Target {
	return Target{ApplicationID: i.AppID, InteractionID: i.ID, Token: i.Token}
}

func (t Target) key(messageID string) Key {
	return Key{ApplicationID: t.ApplicationID, Token: t.Token, MessageID: messageID}
}

func (t Target) webhookPath() string { return "/webhooks/" + t.ApplicationID + "/" + t.Token }

func (t Target) messagePath(messageID string) string {
	return t.webhookPath() + "/messages/" + messageID
}

// DeleteOptions controls the delete operations.
type DeleteOptions = resource.DeleteOptions

// Pending is an interaction received from the gateway whose token is still
// valid.
type Pending struct {
	Target     Target    `json:"-"`
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Command    string    `json:"command,omitempty"`
	CustomID   string    `json:"custom_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	ChannelID  string    `json:"channel_id,omitempty"`
	GuildID    string    `json:"guild_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Answered   bool      `json:"answered"`
}

// Manager caches interaction responses by Key and tracks the interactions
// that can still be answered.
type Manager struct {
	f       *resource.Family[Key, discordgo.Message]
	pending *cache.Store[string, Pending]
}

// Messages do not carry the interaction token, so the family cannot key them
// itself; every write names its key.
func noKey(*discordgo.Message) (Key, bool) { return Key{}, false }

// NewManager constructs a Manager running on e.
func NewManager(e *resource.Engine, opts ...cache.Option) *Manager {
	return &Manager{
		f:       resource.NewFamily(e, "interactions", noKey, opts...),
		pending: cache.New[string, Pending]("pending_interactions"),
	}
}

// Record tracks an incoming interaction until its token expires.
func (m *Manager) Record(i *discordgo.Interaction, now time.Time) {
	if i == nil || i.ID == "" || i.Token == "" {
		return
	}
	p := Pending{
		Target:     TargetOf(i),
		ID:         i.ID,
		Kind:       i.Type.String(),
		ChannelID:  i.ChannelID,
		GuildID:    i.GuildID,
		ReceivedAt: now,
	}
	switch d := i.Data.(type) {
	case discordgo.ApplicationCommandInteractionData:
		p.Command = d.Name
	case discordgo.MessageComponentInteractionData:
		p.CustomID = d.CustomID
	case discordgo.ModalSubmitInteractionData:
		p.CustomID = d.CustomID
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		p.UserID = i.Member.User.ID
	case i.User != nil:
		p.UserID = i.User.ID
	}
	m.pending.Put(i.ID, p)
}

// PendingInteractions drops expired interactions and returns the rest, oldest
// first.
func (m *Manager) PendingInteractions(now time.Time) []Pending {
	m.pending.DeleteFunc(func(_ string, p Pending) bool { return now.Sub(p.ReceivedAt) > TokenLifetime })
	out := m.pending.Values(nil)
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}

// PendingInteraction returns the tracked interaction with the given ID when
// its token has not expired.
func (m *Manager) PendingInteraction(id string, now time.Time) (Pending, bool) {
	p, ok := m.pending.Get(id)
	if !ok || now.Sub(p.ReceivedAt) > TokenLifetime {
		return Pending{}, false
	}
	return p, true
}

// carriesMessage reports whether an interaction response of type t creates or
// replaces a message that can be fetched afterwards.
func carriesMessage(t discordgo.InteractionResponseType) bool {
	switch t {
	case discordgo.InteractionResponseChannelMessageWithSource,
		discordgo.InteractionResponseUpdateMessage:
		return true
	}
	return false
}

// CreateResponse answers the interaction. When the response carries a
// message, the resulting original message is fetched and cached; otherwise
// CreateResponse returns a nil message.
func (m *Manager) CreateResponse(ctx context.Context, t Target, resp *discordgo.InteractionResponse) (*discordgo.Message, error) {
	if err := m.callback(ctx, t, resp, dispatch.PostInteractionResponse); err != nil {
		return nil, err
	}
	if !carriesMessage(resp.Type) {
		return nil, nil
	}
	return m.FetchResponse(ctx, t)
}

// CreateDeferredResponse acknowledges the interaction now; the message is
// supplied later with EditResponse.
func (m *Manager) CreateDeferredResponse(ctx context.Context, t Target) error {
	return m.callback(ctx, t, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, dispatch.PostDeferredInteractionResponse)
}

func (m *Manager) callback(ctx context.Context, t Target, resp *discordgo.InteractionResponse, typ dispatch.Type) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("interaction: encode response: %w", err)
	}
	err = m.f.Exec(ctx, dispatch.Workload{
		Class: dispatch.Post,
		Type:  typ,
		Path:  "/interactions/" + t.InteractionID + "/" + t.Token + "/callback",
		Body:  body,
	})
	if err == nil {
		m.pending.Update(t.InteractionID, func(p Pending, ok bool) (Pending, bool) {
			p.Answered = true
			return p, ok
		})
	}
	return err
}

// GetResponse returns a cached response message, or resource.ErrNotFound.
func (m *Manager) GetResponse(ctx context.Context, k Key) (*discordgo.Message, error) {
	return m.f.Get(ctx, k)
}

// FetchResponse retrieves the original response and replaces the cached copy.
func (m *Manager) FetchResponse(ctx context.Context, t Target) (*discordgo.Message, error) {
	return m.f.Fetch(ctx, t.key(Original), dispatch.Workload{
		Class: dispatch.Get,
		Type:  dispatch.GetInteractionResponse,
		Path:  t.messagePath(Original),
	})
}

// EditResponse edits the original response and caches the result.
func (m *Manager) EditResponse(ctx context.Context, t Target, edit *discordgo.WebhookEdit) (*discordgo.Message, error) {
	return m.edit(ctx, t, Original, edit, dispatch.PatchInteractionResponse)
}

// DeleteResponse deletes the original response and evicts it.
func (m *Manager) DeleteResponse(ctx context.Context, t Target, opts DeleteOptions) error {
	return m.delete(ctx, t, Original, opts, dispatch.DeleteInteractionResponse)
}

// CreateFollowUp posts a follow-up message and caches it under its ID.
func (m *Manager) CreateFollowUp(ctx context.Context, t Target, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("interaction: encode follow-up: %w", err)
	}
	w := dispatch.Workload{
		Class: dispatch.Post,
		Type:  dispatch.PostFollowUpMessage,
		Path:  t.webhookPath(),
		Query: url.Values{"wait": {"true"}},
		Body:  body,
	}
	keyOf := func(msg *discordgo.Message) (Key, bool) { return t.key(msg.ID), msg.ID != "" }
	e := m.f.Engine()
	return resource.Run(ctx, e, "interactions.follow_up", resource.WritePass(e, m.f.Store(), w, keyOf))
}

// EditFollowUp edits a follow-up message and caches the result.
func (m *Manager) EditFollowUp(ctx context.Context, t Target, messageID string, edit *discordgo.WebhookEdit) (*discordgo.Message, error) {
	return m.edit(ctx, t, messageID, edit, dispatch.PatchFollowUpMessage)
}

// DeleteFollowUp deletes a follow-up message and evicts it.
func (m *Manager) DeleteFollowUp(ctx context.Context, t Target, messageID string, opts DeleteOptions) error {
	return m.delete(ctx, t, messageID, opts, dispatch.DeleteFollowUpMessage)
}

func (m *Manager) edit(ctx context.Context, t Target, messageID string, edit *discordgo.WebhookEdit, typ dispatch.Type) (*discordgo.Message, error) {
	body, err := json.Marshal(edit)
	if err != nil {
		return nil, fmt.Errorf("interaction: encode edit: %w", err)
	}
	return m.f.WriteAt(ctx, t.key(messageID), dispatch.Workload{
		Class: dispatch.Patch,
		Type:  typ,
		Path:  t.messagePath(messageID),
		Body:  body,
	})
}

func (m *Manager) delete(ctx context.Context, t Target, messageID string, opts DeleteOptions, typ dispatch.Type) error {
	return m.f.DeleteLater(ctx, opts.Delay, dispatch.Workload{
		Class:  dispatch.Delete,
		Type:   typ,
		Path:   t.messagePath(messageID),
		Reason: opts.Reason,
	}, t.key(messageID))
}

// Insert caches msg under k.
func (m *Manager) Insert(ctx context.Context, k Key, msg *discordgo.Message) error {
	if msg == nil {
		return fmt.Errorf("interaction: insert nil message")
	}
	return m.f.InsertAt(ctx, k, msg)
}

// Remove evicts the response and reports whether it was cached.
func (m *Manager) Remove(ctx context.Context, k Key) (bool, error) {
	return m.f.Remove(ctx, k)
}

// Len returns the number of cached responses.
func (m *Manager) Len() int { return m.f.Store().Len() }
