// Package client assembles every resource manager around one dispatcher, one
// lease pool and one engine.
package client

import (
	"context"
	"log/slog"
	"sort"

	"github.com/jamesprial/discordcore/internal/cache"
	"github.com/jamesprial/discordcore/internal/channel"
	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/guild"
	"github.com/jamesprial/discordcore/internal/interaction"
	"github.com/jamesprial/discordcore/internal/member"
	"github.com/jamesprial/discordcore/internal/message"
	"github.com/jamesprial/discordcore/internal/metrics"
	"github.com/jamesprial/discordcore/internal/reaction"
	"github.com/jamesprial/discordcore/internal/resource"
	"github.com/jamesprial/discordcore/internal/role"
	"github.com/jamesprial/discordcore/internal/sched"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	metrics   metrics.Recorder
	policy    resource.Policy
	maxLeases int
}

// WithLogger sets the logger shared by the pool, the engine and the managers.
// A nil logger defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics reports lease usage and cache activity to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) { o.metrics = metrics.OrNop(r) }
}

// WithPolicy selects what failed responses do to the caches.
func WithPolicy(p resource.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithMaxLeases caps concurrent work across all managers.
func WithMaxLeases(n int) Option {
	return func(o *options) { o.maxLeases = n }
}

// Client owns the managers of every resource family. The zero value is not
// usable; construct with New and release with Close.
type Client struct {
	Pool   *sched.Pool
	Engine *resource.Engine

	Channels     *channel.Manager
	Guilds       *guild.Manager
	Members      *member.Manager
	Roles        *role.Manager
	Messages     *message.Manager
	Reactions    *reaction.Manager
	Interactions *interaction.Manager
}

// New builds a Client dispatching through d.
func New(d dispatch.Dispatcher, opts ...Option) *Client {
	o := options{logger: slog.Default(), metrics: metrics.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	pool := sched.New(
		sched.WithMaxLeases(o.maxLeases),
		sched.WithLogger(o.logger),
		sched.WithMetrics(o.metrics),
	)
	e := resource.NewEngine(d, pool,
		resource.WithLogger(o.logger),
		resource.WithPolicy(o.policy),
	)
	co := cache.WithMetrics(o.metrics)

	channels := channel.NewManager(e, co)
	return &Client{
		Pool:         pool,
		Engine:       e,
		Channels:     channels,
		Guilds:       guild.NewManager(e, co),
		Members:      member.NewManager(e, co),
		Roles:        role.NewManager(e, co),
		Messages:     message.NewManager(e, channels, co),
		Reactions:    reaction.NewManager(e, co),
		Interactions: interaction.NewManager(e, co),
	}
}

// Close stops the pool. In-flight work and scheduled deletes finish first.
func (c *Client) Close() {
	c.Pool.Close()
}

// LeaveGuild leaves the guild and, once the API confirms, evicts it together
// with its cached channels, members and roles.
func (c *Client) LeaveGuild(ctx context.Context, guildID string) error {
	if err := c.Guilds.Leave(ctx, guildID); err != nil {
		return err
	}
	c.ForgetGuild(guildID)
	return nil
}

// ForgetGuild evicts the cached channels, members and roles of a guild and
// reports how many of each were removed. The guild entry itself is kept.
func (c *Client) ForgetGuild(guildID string) (channels, members, roles int) {
	return c.Channels.RemoveGuild(guildID), c.Members.RemoveGuild(guildID), c.Roles.RemoveGuild(guildID)
}

// CacheSize is the number of cached entries of one family.
type CacheSize struct {
	Family  string `json:"family"`
	Entries int    `json:"entries"`
}

// Stats reports the size of every cache, sorted by family name.
func (c *Client) Stats() []CacheSize {
	sizes := []CacheSize{
		{Family: "channels", Entries: c.Channels.Len()},
		{Family: "guilds", Entries: c.Guilds.Len()},
		{Family: "members", Entries: c.Members.Len()},
		{Family: "roles", Entries: c.Roles.Len()},
		{Family: "messages", Entries: c.Messages.Len()},
		{Family: "reactions", Entries: c.Reactions.Len()},
		{Family: "interactions", Entries: c.Interactions.Len()},
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i].Family < sizes[j].Family })
	return sizes
}
