package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/client"
	"github.com/jamesprial/discordcore/internal/member"
	"github.com/jamesprial/discordcore/internal/message"
	"github.com/jamesprial/discordcore/internal/metrics"
	"github.com/jamesprial/discordcore/internal/resource"
	"github.com/jamesprial/discordcore/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, opts ...client.Option) (*client.Client, *testutil.MockDiscord) {
	t.Helper()
	md := testutil.NewMockDiscord(t)
	c := client.New(md.Dispatcher, opts...)
	t.Cleanup(c.Close)
	return c, md
}

func Test_New_WiresEveryManager(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, client.WithMaxLeases(3))

	assert.NotNil(t, c.Channels)
	assert.NotNil(t, c.Guilds)
	assert.NotNil(t, c.Members)
	assert.NotNil(t, c.Roles)
	assert.NotNil(t, c.Messages)
	assert.NotNil(t, c.Reactions)
	assert.NotNil(t, c.Interactions)
	assert.Equal(t, 3, c.Pool.Cap())
	assert.Equal(t, resource.PolicyCacheSuccess, c.Engine.Policy())
}

func Test_New_PolicyReachesManagers(t *testing.T) {
	t.Parallel()

	c, md := newClient(t, client.WithPolicy(resource.PolicyCacheAlways))
	md.Respond(http.MethodGet, "/guilds/g9/members/u9", http.StatusNotFound, nil)

	_, err := c.Members.Fetch(context.Background(), member.Key{GuildID: "g9", UserID: "u9"})
	require.Error(t, err)
	assert.Equal(t, "always", c.Engine.Policy().String())
}

func Test_Client_MessagesShareChannelManager(t *testing.T) {
	t.Parallel()

	c, md := newClient(t)
	md.Respond(http.MethodPost, "/users/@me/channels", http.StatusOK, []byte(`{"id":"dm-1","type":1}`))
	md.Respond(http.MethodPost, "/channels/dm-1/messages", http.StatusOK, []byte(`{"id":"m1","channel_id":"dm-1","content":"hi"}`))
	ctx := context.Background()

	_, err := c.Messages.SendDM(ctx, "u1", &discordgo.MessageSend{Content: "hi"})
	require.NoError(t, err)

	dm, err := c.Channels.Get(ctx, "dm-1")
	require.NoError(t, err)
	assert.Equal(t, discordgo.ChannelTypeDM, dm.Type)
}

func Test_Client_Stats(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t)
	ctx := context.Background()
	_, err := c.Channels.FetchGuildChannels(ctx, "guild-1")
	require.NoError(t, err)
	require.NoError(t, c.Guilds.Insert(ctx, &discordgo.Guild{ID: "guild-1"}))

	stats := c.Stats()
	require.Len(t, stats, 7)
	assert.Equal(t, "channels", stats[0].Family)
	assert.Equal(t, 2, stats[0].Entries)
	for i := 1; i < len(stats); i++ {
		assert.Less(t, stats[i-1].Family, stats[i].Family)
	}
	byName := make(map[string]int, len(stats))
	for _, s := range stats {
		byName[s.Family] = s.Entries
	}
	assert.Equal(t, 1, byName["guilds"])
	assert.Equal(t, 0, byName["messages"])
}

func Test_Client_PrometheusMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, _ := newClient(t, client.WithMetrics(metrics.NewPrometheus(reg)))
	ctx := context.Background()

	_, err := c.Channels.Fetch(ctx, "ch-001")
	require.NoError(t, err)
	_, err = c.Channels.Get(ctx, "ch-001")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["discordcore_sched_leases_in_use"], "lease metrics missing: %v", names)
	assert.True(t, names["discordcore_cache_lookups_total"], "cache metrics missing: %v", names)
}

func Test_ClientTools_CacheStats(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, client.WithMaxLeases(5))
	require.NoError(t, c.Roles.Insert(context.Background(), "guild-1", &discordgo.Role{ID: "r1", Name: "mods"}))
	regs := client.ClientTools(c, nil)
	testutil.AssertRegistrations(t, regs, []string{"discord_cache_stats"})

	result := testutil.CallTool(t, regs, "discord_cache_stats", nil)
	testutil.AssertNotError(t, result)

	var report client.StatsReport
	require.NoError(t, json.Unmarshal([]byte(testutil.ExtractText(t, result)), &report))
	assert.Equal(t, 5, report.LeaseCap)
	assert.Equal(t, "success", report.Policy)
	for _, s := range report.Caches {
		if s.Family == "roles" {
			assert.Equal(t, 1, s.Entries)
		}
	}
}

func Test_Client_CloseRunsPendingDelayedDeletes(t *testing.T) {
	t.Parallel()

	c, md := newClient(t)
	md.Respond(http.MethodDelete, "/channels/c1/messages/m1", http.StatusNoContent, nil)
	ctx := context.Background()
	k := message.Key{ChannelID: "c1", MessageID: "m1"}
	require.NoError(t, c.Messages.Insert(ctx, &discordgo.Message{ID: "m1", ChannelID: "c1"}))

	require.NoError(t, c.Messages.Delete(ctx, k, message.DeleteOptions{Delay: 30 * time.Millisecond}))
	c.Close()

	var deletes int
	for _, r := range md.Requests() {
		if r.Method == http.MethodDelete {
			deletes++
		}
	}
	assert.Equal(t, 1, deletes)
	assert.Equal(t, 0, c.Messages.Len())

	// New work is refused once closed.
	_, err := c.Channels.Fetch(ctx, "ch-001")
	require.Error(t, err)
}

func Test_Client_LeaveGuildEvictsChildren(t *testing.T) {
	t.Parallel()

	c, md := newClient(t)
	md.Respond(http.MethodDelete, "/users/@me/guilds/guild-1", http.StatusNoContent, nil)
	ctx := context.Background()
	_, err := c.Channels.FetchGuildChannels(ctx, "guild-1")
	require.NoError(t, err)
	require.NoError(t, c.Guilds.Insert(ctx, &discordgo.Guild{ID: "guild-1"}))
	require.NoError(t, c.Roles.Insert(ctx, "guild-1", &discordgo.Role{ID: "r1"}))
	require.NoError(t, c.Members.Insert(ctx, "guild-1", &discordgo.Member{User: &discordgo.User{ID: "u1"}}))
	require.NoError(t, c.Channels.Insert(ctx, &discordgo.Channel{ID: "other", GuildID: "guild-2"}))

	require.NoError(t, c.LeaveGuild(ctx, "guild-1"))

	assert.Equal(t, 0, c.Guilds.Len())
	assert.Equal(t, 0, c.Roles.Len())
	assert.Equal(t, 0, c.Members.Len())
	assert.Equal(t, 1, c.Channels.Len())
}
