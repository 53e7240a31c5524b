package channel_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/channel"
	"github.com/jamesprial/discordcore/internal/resource"
	"github.com/jamesprial/discordcore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*channel.Manager, *testutil.MockDiscord) {
	t.Helper()
	md := testutil.NewMockDiscord(t)
	return channel.NewManager(md.Engine(t)), md
}

func Test_Manager_FetchThenGet(t *testing.T) {
	t.Parallel()

	m, md := newManager(t)
	md.Respond(http.MethodGet, "/channels/123", http.StatusOK, []byte(`{"id":"123","name":"general"}`))
	ctx := context.Background()

	ch, err := m.Fetch(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, "123", ch.ID)
	assert.Equal(t, "general", ch.Name)

	cached, err := m.Get(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, ch, cached)
}

func Test_Manager_GetMiss(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ch, err := m.Get(context.Background(), "nope")
	require.ErrorIs(t, err, resource.ErrNotFound)
	assert.Nil(t, ch)
	assert.Equal(t, discordgo.Channel{}, *resource.OrEmpty(ch, err))
}

func Test_Manager_DeletePermissionOverwriteLeavesCache(t *testing.T) {
	t.Parallel()

	m, md := newManager(t)
	md.Respond(http.MethodGet, "/channels/123", http.StatusOK, []byte(`{"id":"123","name":"general"}`))
	md.Respond(http.MethodDelete, "/channels/123/permissions/456", http.StatusNoContent, nil)
	ctx := context.Background()

	before, err := m.Fetch(ctx, "123")
	require.NoError(t, err)
	snapshot, err := json.Marshal(before)
	require.NoError(t, err)

	require.NoError(t, m.DeletePermissionOverwrite(ctx, "123", "456"))

	after, err := m.Get(ctx, "123")
	require.NoError(t, err)
	assert.Same(t, before, after)
	got, err := json.Marshal(after)
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)

	req, ok := md.LastRequest()
	require.True(t, ok)
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/channels/123/permissions/456", req.Path)
}

func Test_Manager_EditPermissionOverwrite(t *testing.T) {
	t.Parallel()

	m, md := newManager(t)
	md.Respond(http.MethodPut, "/channels/123/permissions/456", http.StatusNoContent, nil)

	err := m.EditPermissionOverwrite(context.Background(), "123", "456", &discordgo.PermissionOverwrite{
		Type:  discordgo.PermissionOverwriteTypeRole,
		Allow: discordgo.PermissionViewChannel,
		Deny:  discordgo.PermissionSendMessages,
	})
	require.NoError(t, err)

	req, _ := md.LastRequest()
	var body map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, fmt.Sprint(discordgo.PermissionViewChannel), body["allow"])
	assert.Equal(t, fmt.Sprint(discordgo.PermissionSendMessages), body["deny"])
	assert.Equal(t, 0, m.Len())
}

func Test_Manager_FetchGuildChannels(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	chans, err := m.FetchGuildChannels(ctx, "guild-1")
	require.NoError(t, err)
	require.Len(t, chans, 2)

	cached, err := m.GuildChannels(ctx, "guild-1")
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	none, err := m.GuildChannels(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func Test_Manager_CreateDM(t *testing.T) {
	t.Parallel()

	m, md := newManager(t)
	md.RespondJSON(http.MethodPost, "/users/@me/channels", http.StatusOK, &discordgo.Channel{
		ID:   "dm-1",
		Type: discordgo.ChannelTypeDM,
	})
	ctx := context.Background()

	ch, err := m.CreateDM(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "dm-1", ch.ID)

	req, _ := md.LastRequest()
	assert.JSONEq(t, `{"recipient_id":"user-1"}`, string(req.Body))

	_, err = m.Get(ctx, "dm-1")
	require.NoError(t, err)
}

func Test_Manager_FetchFailureKinds(t *testing.T) {
	t.Parallel()

	m, md := newManager(t)
	md.Respond(http.MethodGet, "/channels/secret", http.StatusForbidden, []byte(`{"message":"Missing Access","code":50001}`))
	ctx := context.Background()

	_, err := m.Fetch(ctx, "missing")
	assert.Equal(t, resource.NotFound, resource.KindOf(err))

	_, err = m.Fetch(ctx, "secret")
	assert.Equal(t, resource.Application, resource.KindOf(err))
	assert.Equal(t, http.StatusForbidden, resource.StatusCode(err))
	assert.Equal(t, 0, m.Len())
}

func Test_Manager_InsertRemove(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Insert(ctx, &discordgo.Channel{ID: "1", Name: "a"}))
	require.Error(t, m.Insert(ctx, &discordgo.Channel{}))

	removed, err := m.Remove(ctx, "1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = m.Get(ctx, "1")
	require.ErrorIs(t, err, resource.ErrNotFound)

	removed, err = m.Remove(ctx, "1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func Test_Manager_ConcurrentInsertsNeverLost(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.Insert(ctx, &discordgo.Channel{ID: fmt.Sprint(i)}))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, m.Len())
}

func Test_Manager_BulkInsert(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	n, err := m.BulkInsert(context.Background(), []*discordgo.Channel{
		{ID: "1", GuildID: "g"},
		{ID: "2", GuildID: "g"},
		nil,
		{},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, m.Len())
}

func Test_Manager_RemoveGuild(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()
	_, err := m.BulkInsert(ctx, []*discordgo.Channel{
		{ID: "a", GuildID: "g1"},
		{ID: "b", GuildID: "g1"},
		{ID: "c", GuildID: "g2"},
		{ID: "dm", Type: discordgo.ChannelTypeDM},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, m.RemoveGuild("g1"))
	assert.Equal(t, 2, m.Len())
	_, err = m.Get(ctx, "c")
	assert.NoError(t, err)
}
