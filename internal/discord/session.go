// Package discord connects a discordgo gateway session to the client's
// caches. Event handlers never touch a cache directly: they enqueue pending
// inserts and removals, and Run applies them in order on one worker.
package discord

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/client"
	"github.com/jamesprial/discordcore/internal/member"
	"github.com/jamesprial/discordcore/internal/message"
	"github.com/jamesprial/discordcore/internal/queue"
	"github.com/jamesprial/discordcore/internal/reaction"
	"github.com/jamesprial/discordcore/internal/resolve"
)

// Intents are the gateway intents the handlers need.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildMessages |
	discordgo.IntentGuildMessageReactions |
	discordgo.IntentDirectMessages |
	discordgo.IntentMessageContent

// event is one pending cache change. Message creates carry msg so that
// consecutive creates are merged into one BulkInsert; everything else runs
// apply.
type event struct {
	name  string
	msg   *discordgo.Message
	apply func(ctx context.Context) error
}

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithLogger sets the logger. A nil logger defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPendingSize bounds the pending-change queue.
func WithPendingSize(n int) Option {
	return func(s *Session) { s.pendingSize = n }
}

// WithBatchSize caps how many pending changes Run applies per wakeup.
func WithBatchSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithPollTimeout sets how long Run waits for pending changes before checking
// for shutdown.
func WithPollTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollTimeout = d
		}
	}
}

// Session wraps a discordgo.Session. Guild messages from non-bot authors in the
// configured guild are also pushed onto the inbox for the poll tool.
type Session struct {
	dg       *discordgo.Session
	c        *client.Client
	resolver *resolve.Resolver
	inbox    *queue.Queue[queue.QueuedMessage]
	pending  *queue.Queue[event]
	guildID  string

	pendingSize int
	batchSize   int
	pollTimeout time.Duration
	logger      *slog.Logger
}

// New wraps dg, registers the event handlers and sets the gateway intents. The
// guild ID is read from the resolver.
func New(
	dg *discordgo.Session,
	c *client.Client,
	r *resolve.Resolver,
	inbox *queue.Queue[queue.QueuedMessage],
	opts ...Option,
) *Session {
	s := &Session{
		dg:          dg,
		c:           c,
		resolver:    r,
		inbox:       inbox,
		guildID:     r.GuildID(),
		batchSize:   100,
		pollTimeout: 500 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pending = queue.New[event](queue.WithMaxSize(s.pendingSize))

	dg.Identify.Intents = Intents

	dg.AddHandler(s.onReady)
	dg.AddHandler(s.onGuildCreate)
	dg.AddHandler(s.onGuildUpdate)
	dg.AddHandler(s.onGuildDelete)
	dg.AddHandler(s.onGuildMembersChunk)
	dg.AddHandler(s.onChannelCreate)
	dg.AddHandler(s.onChannelUpdate)
	dg.AddHandler(s.onChannelDelete)
	dg.AddHandler(s.onGuildMemberAdd)
	dg.AddHandler(s.onGuildMemberUpdate)
	dg.AddHandler(s.onGuildMemberRemove)
	dg.AddHandler(s.onGuildRoleCreate)
	dg.AddHandler(s.onGuildRoleUpdate)
	dg.AddHandler(s.onGuildRoleDelete)
	dg.AddHandler(s.onMessageCreate)
	dg.AddHandler(s.onMessageUpdate)
	dg.AddHandler(s.onMessageDelete)
	dg.AddHandler(s.onMessageDeleteBulk)
	dg.AddHandler(s.onMessageReactionAdd)
	dg.AddHandler(s.onMessageReactionRemove)
	dg.AddHandler(s.onMessageReactionRemoveAll)
	dg.AddHandler(s.onInteractionCreate)

	return s
}

// Open establishes the WebSocket connection to the Discord gateway.
func (s *Session) Open() error {
	return s.dg.Open()
}

// Close closes the WebSocket connection to the Discord gateway.
func (s *Session) Close() error {
	return s.dg.Close()
}

// DiscordSession returns the underlying *discordgo.Session.
func (s *Session) DiscordSession() *discordgo.Session {
	return s.dg
}

// Pending returns the number of changes waiting to be applied.
func (s *Session) Pending() int {
	return s.pending.Len()
}

// Run applies pending changes until ctx is cancelled, then applies whatever
// is still queued and returns. Changes already taken from the queue are
// applied even after cancellation.
func (s *Session) Run(ctx context.Context) {
	work := context.WithoutCancel(ctx)
	var dropped uint64
	for {
		batch := s.pending.Poll(ctx, s.pollTimeout, s.batchSize, nil)
		s.apply(work, batch)

		if d := s.pending.Dropped(); d != dropped {
			s.logger.Warn("pending cache changes dropped", "total", d, "new", d-dropped)
			dropped = d
		}
		if ctx.Err() != nil {
			s.apply(work, s.pending.Drain(0))
			return
		}
	}
}

func (s *Session) apply(ctx context.Context, batch []event) {
	var msgs []*discordgo.Message
	flush := func() {
		if len(msgs) == 0 {
			return
		}
		n, err := s.c.Messages.BulkInsert(ctx, msgs)
		if err != nil {
			s.logger.Warn("message ingest failed", "count", len(msgs), "error", err)
		} else {
			s.logger.Debug("messages ingested", "count", n)
		}
		msgs = nil
	}

	for _, ev := range batch {
		if ev.msg != nil {
			msgs = append(msgs, ev.msg)
			continue
		}
		flush()
		if err := ev.apply(ctx); err != nil {
			s.logger.Warn("gateway event not applied", "event", ev.name, "error", err)
		}
	}
	flush()
}

func (s *Session) push(name string, apply func(ctx context.Context) error) {
	s.pending.Enqueue(event{name: name, apply: apply})
}

func (s *Session) onReady(_ *discordgo.Session, ev *discordgo.Ready) {
	if ev.User != nil {
		s.logger.Info("discord connected", "username", ev.User.Username, "userID", ev.User.ID)
		s.c.Reactions.SetSelf(ev.User.ID)
	}
	s.push("READY", func(ctx context.Context) error {
		return s.resolver.Refresh(ctx)
	})
}

func (s *Session) onGuildCreate(_ *discordgo.Session, ev *discordgo.GuildCreate) {
	g := ev.Guild
	if g == nil {
		return
	}
	s.push("GUILD_CREATE", func(ctx context.Context) error {
		for _, ch := range g.Channels {
			if ch.GuildID == "" {
				ch.GuildID = g.ID
			}
			s.resolver.Observe(ch)
		}
		if _, err := s.c.Channels.BulkInsert(ctx, g.Channels); err != nil {
			return err
		}
		if _, err := s.c.Roles.BulkInsert(ctx, g.ID, g.Roles); err != nil {
			return err
		}
		if _, err := s.c.Members.BulkInsert(ctx, g.ID, g.Members); err != nil {
			return err
		}
		return s.c.Guilds.Insert(ctx, g)
	})
}

func (s *Session) onGuildUpdate(_ *discordgo.Session, ev *discordgo.GuildUpdate) {
	g := ev.Guild
	if g == nil {
		return
	}
	s.push("GUILD_UPDATE", func(ctx context.Context) error {
		return s.c.Guilds.Insert(ctx, g)
	})
}

func (s *Session) onGuildDelete(_ *discordgo.Session, ev *discordgo.GuildDelete) {
	if ev.Guild == nil {
		return
	}
	id := ev.ID
	s.push("GUILD_DELETE", func(ctx context.Context) error {
		channels, members, roles := s.c.ForgetGuild(id)
		s.logger.Debug("guild evicted", "guildID", id, "channels", channels, "members", members, "roles", roles)
		_, err := s.c.Guilds.Remove(ctx, id)
		return err
	})
}

func (s *Session) onGuildMembersChunk(_ *discordgo.Session, ev *discordgo.GuildMembersChunk) {
	guildID, members := ev.GuildID, ev.Members
	s.push("GUILD_MEMBERS_CHUNK", func(ctx context.Context) error {
		_, err := s.c.Members.BulkInsert(ctx, guildID, members)
		return err
	})
}

func (s *Session) onChannelCreate(_ *discordgo.Session, ev *discordgo.ChannelCreate) {
	s.upsertChannel("CHANNEL_CREATE", ev.Channel)
}

func (s *Session) onChannelUpdate(_ *discordgo.Session, ev *discordgo.ChannelUpdate) {
	s.upsertChannel("CHANNEL_UPDATE", ev.Channel)
}

func (s *Session) upsertChannel(name string, ch *discordgo.Channel) {
	if ch == nil {
		return
	}
	s.push(name, func(ctx context.Context) error {
		s.resolver.Observe(ch)
		return s.c.Channels.Insert(ctx, ch)
	})
}

func (s *Session) onChannelDelete(_ *discordgo.Session, ev *discordgo.ChannelDelete) {
	if ev.Channel == nil {
		return
	}
	id := ev.ID
	s.push("CHANNEL_DELETE", func(ctx context.Context) error {
		s.resolver.Forget(id)
		s.c.Messages.RemoveChannel(id)
		_, err := s.c.Channels.Remove(ctx, id)
		return err
	})
}

func (s *Session) onGuildMemberAdd(_ *discordgo.Session, ev *discordgo.GuildMemberAdd) {
	s.upsertMember("GUILD_MEMBER_ADD", ev.Member)
}

func (s *Session) onGuildMemberUpdate(_ *discordgo.Session, ev *discordgo.GuildMemberUpdate) {
	s.upsertMember("GUILD_MEMBER_UPDATE", ev.Member)
}

func (s *Session) upsertMember(name string, m *discordgo.Member) {
	if m == nil {
		return
	}
	s.push(name, func(ctx context.Context) error {
		return s.c.Members.Insert(ctx, m.GuildID, m)
	})
}

func (s *Session) onGuildMemberRemove(_ *discordgo.Session, ev *discordgo.GuildMemberRemove) {
	if ev.Member == nil {
		return
	}
	k, ok := member.KeyOf(ev.Member)
	if !ok {
		return
	}
	s.push("GUILD_MEMBER_REMOVE", func(ctx context.Context) error {
		_, err := s.c.Members.Remove(ctx, k)
		return err
	})
}

func (s *Session) onGuildRoleCreate(_ *discordgo.Session, ev *discordgo.GuildRoleCreate) {
	s.upsertRole("GUILD_ROLE_CREATE", ev.GuildRole)
}

func (s *Session) onGuildRoleUpdate(_ *discordgo.Session, ev *discordgo.GuildRoleUpdate) {
	s.upsertRole("GUILD_ROLE_UPDATE", ev.GuildRole)
}

func (s *Session) upsertRole(name string, gr *discordgo.GuildRole) {
	if gr == nil || gr.Role == nil {
		return
	}
	s.push(name, func(ctx context.Context) error {
		return s.c.Roles.Insert(ctx, gr.GuildID, gr.Role)
	})
}

func (s *Session) onGuildRoleDelete(_ *discordgo.Session, ev *discordgo.GuildRoleDelete) {
	id := ev.RoleID
	s.push("GUILD_ROLE_DELETE", func(ctx context.Context) error {
		_, err := s.c.Roles.Remove(ctx, id)
		return err
	})
}

// onMessageCreate caches every message and forwards human messages of the
// configured guild to the inbox.
func (s *Session) onMessageCreate(_ *discordgo.Session, ev *discordgo.MessageCreate) {
	if ev.Message == nil {
		return
	}
	s.pending.Enqueue(event{name: "MESSAGE_CREATE", msg: ev.Message})

	if ev.Author == nil || ev.Author.Bot || ev.GuildID != s.guildID {
		return
	}

	channelName := s.resolver.ChannelName(ev.ChannelID)
	var msgRef string
	if ev.MessageReference != nil {
		msgRef = ev.MessageReference.MessageID
	}

	s.inbox.Enqueue(queue.QueuedMessage{
		ID:               ev.ID,
		ChannelID:        ev.ChannelID,
		ChannelName:      channelName,
		AuthorID:         ev.Author.ID,
		AuthorUsername:   ev.Author.Username,
		Content:          ev.Content,
		Timestamp:        ev.Timestamp,
		MessageReference: msgRef,
	})
	s.logger.Debug("message enqueued", "id", ev.ID, "channel", channelName, "author", ev.Author.Username)
}

func (s *Session) onMessageUpdate(_ *discordgo.Session, ev *discordgo.MessageUpdate) {
	msg := ev.Message
	if msg == nil {
		return
	}
	s.push("MESSAGE_UPDATE", func(ctx context.Context) error {
		return s.c.Messages.Insert(ctx, msg)
	})
}

func (s *Session) onMessageDelete(_ *discordgo.Session, ev *discordgo.MessageDelete) {
	if ev.Message == nil {
		return
	}
	k := message.Key{ChannelID: ev.ChannelID, MessageID: ev.ID}
	s.push("MESSAGE_DELETE", func(ctx context.Context) error {
		s.c.Reactions.RemoveMessage(k.ChannelID, k.MessageID)
		_, err := s.c.Messages.Remove(ctx, k)
		return err
	})
}

func (s *Session) onMessageDeleteBulk(_ *discordgo.Session, ev *discordgo.MessageDeleteBulk) {
	channelID, ids := ev.ChannelID, ev.Messages
	s.push("MESSAGE_DELETE_BULK", func(ctx context.Context) error {
		for _, id := range ids {
			s.c.Reactions.RemoveMessage(channelID, id)
			if _, err := s.c.Messages.Remove(ctx, message.Key{ChannelID: channelID, MessageID: id}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Session) onMessageReactionAdd(_ *discordgo.Session, ev *discordgo.MessageReactionAdd) {
	r := ev.MessageReaction
	if r == nil {
		return
	}
	s.push("MESSAGE_REACTION_ADD", func(ctx context.Context) error {
		return s.c.Reactions.Insert(ctx, r)
	})
}

func (s *Session) onMessageReactionRemove(_ *discordgo.Session, ev *discordgo.MessageReactionRemove) {
	if ev.MessageReaction == nil {
		return
	}
	k, ok := reaction.KeyOf(ev.MessageReaction)
	if !ok {
		return
	}
	s.push("MESSAGE_REACTION_REMOVE", func(ctx context.Context) error {
		_, err := s.c.Reactions.Remove(ctx, k)
		return err
	})
}

func (s *Session) onMessageReactionRemoveAll(_ *discordgo.Session, ev *discordgo.MessageReactionRemoveAll) {
	if ev.MessageReaction == nil {
		return
	}
	channelID, messageID := ev.ChannelID, ev.MessageID
	s.push("MESSAGE_REACTION_REMOVE_ALL", func(context.Context) error {
		s.c.Reactions.RemoveMessage(channelID, messageID)
		return nil
	})
}

// Interactions must be acknowledged within seconds, so they are recorded
// directly rather than through the pending queue.
func (s *Session) onInteractionCreate(_ *discordgo.Session, ev *discordgo.InteractionCreate) {
	if ev.Interaction == nil {
		return
	}
	s.c.Interactions.Record(ev.Interaction, time.Now())
	s.logger.Debug("interaction recorded", "id", ev.ID, "type", ev.Type.String())
}
