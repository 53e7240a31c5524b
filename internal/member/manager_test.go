package member_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/member"
	"github.com/jamesprial/discordcore/internal/resource"
	"github.com/jamesprial/discordcore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, opts ...resource.EngineOption) (*member.Manager, *testutil.MockDiscord) {
	t.Helper()
	md := testutil.NewMockDiscord(t)
	return member.NewManager(md.Engine(t, opts...)), md
}

func mem(userID, nick string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: userID}, Nick: nick}
}

func Test_Manager_SequentialInsertsBothRetrievable(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Insert(ctx, "G", mem("M1", "one")))
	require.NoError(t, m.Insert(ctx, "G", mem("M2", "two")))

	a, err := m.Get(ctx, member.Key{GuildID: "G", UserID: "M1"})
	require.NoError(t, err)
	assert.Equal(t, "one", a.Nick)

	b, err := m.Get(ctx, member.Key{GuildID: "G", UserID: "M2"})
	require.NoError(t, err)
	assert.Equal(t, "two", b.Nick)
}

func Test_Manager_Fetch404_PolicyCacheSuccess(t *testing.T) {
	t.Parallel()

	m, md := newManager(t)
	md.Respond(http.MethodGet, "/guilds/G/members/M", http.StatusNotFound, nil)
	ctx := context.Background()
	k := member.Key{GuildID: "G", UserID: "M"}
	require.NoError(t, m.Insert(ctx, "G", mem("M", "prior")))

	got, err := m.Fetch(ctx, k)
	require.ErrorIs(t, err, resource.ErrNotFound)
	assert.Equal(t, resource.NotFound, resource.KindOf(err))
	assert.Nil(t, got)

	cached, err := m.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "prior", cached.Nick)
}

func Test_Manager_Fetch404_PolicyCacheAlways(t *testing.T) {
	t.Parallel()

	m, md := newManager(t, resource.WithPolicy(resource.PolicyCacheAlways))
	md.Respond(http.MethodGet, "/guilds/G/members/M", http.StatusNotFound, nil)
	ctx := context.Background()
	k := member.Key{GuildID: "G", UserID: "M"}
	require.NoError(t, m.Insert(ctx, "G", mem("M", "prior")))

	got, err := m.Fetch(ctx, k)
	require.ErrorIs(t, err, resource.ErrNotFound)
	require.NotNil(t, got)
	assert.Equal(t, discordgo.Member{}, *got)

	cached, err := m.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, discordgo.Member{}, *cached)
}

func Test_Manager_FetchOK(t *testing.T) {
	t.Parallel()

	m, md := newManager(t)
	md.Respond(http.MethodGet, "/guilds/G/members/M", http.StatusOK, []byte(`{"user":{"id":"M","username":"mia"},"nick":"Mia","roles":["r1"]}`))
	ctx := context.Background()
	k := member.Key{GuildID: "G", UserID: "M"}

	got, err := m.Fetch(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "Mia", got.Nick)
	assert.Equal(t, []string{"r1"}, got.Roles)

	cached, err := m.Get(ctx, k)
	require.NoError(t, err)
	assert.Same(t, got, cached)
}

func Test_Manager_Modify(t *testing.T) {
	t.Parallel()

	m, md := newManager(t)
	md.Respond(http.MethodPatch, "/guilds/G/members/M", http.StatusOK, []byte(`{"user":{"id":"M"},"nick":"renamed"}`))
	ctx := context.Background()
	k := member.Key{GuildID: "G", UserID: "M"}

	nick := "renamed"
	got, err := m.Modify(ctx, k, member.Params{Nick: &nick})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Nick)

	req, _ := md.LastRequest()
	assert.JSONEq(t, `{"nick":"renamed"}`, string(req.Body))

	cached, err := m.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "renamed", cached.Nick)
}

func Test_Manager_CompositeKeysDoNotCollide(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Insert(ctx, "12", mem("34", "first")))
	require.NoError(t, m.Insert(ctx, "1", mem("234", "second")))

	a, err := m.Get(ctx, member.Key{GuildID: "12", UserID: "34"})
	require.NoError(t, err)
	b, err := m.Get(ctx, member.Key{GuildID: "1", UserID: "234"})
	require.NoError(t, err)
	assert.Equal(t, "first", a.Nick)
	assert.Equal(t, "second", b.Nick)
}

func Test_Manager_RemoveThenMiss(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()
	k := member.Key{GuildID: "G", UserID: "M"}

	require.NoError(t, m.Insert(ctx, "G", mem("M", "")))
	removed, err := m.Remove(ctx, k)
	require.NoError(t, err)
	assert.True(t, removed)

	got, err := m.Get(ctx, k)
	require.ErrorIs(t, err, resource.ErrNotFound)
	assert.Equal(t, discordgo.Member{}, *resource.OrEmpty(got, err))
}

func Test_Manager_InsertWithoutUserFails(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	require.Error(t, m.Insert(context.Background(), "G", &discordgo.Member{}))
	require.Error(t, m.Insert(context.Background(), "G", nil))
}

func Test_Manager_BulkInsertAndGuildMembers(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	n, err := m.BulkInsert(ctx, "G", []*discordgo.Member{mem("a", ""), mem("b", ""), mem("c", "")})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, m.Insert(ctx, "H", mem("a", "")))

	g, err := m.GuildMembers(ctx, "G")
	require.NoError(t, err)
	assert.Len(t, g, 3)

	assert.Equal(t, 3, m.RemoveGuild("G"))
	assert.Equal(t, 1, m.Len())
}

func Test_Manager_ConcurrentInsertsDisjointKeys(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.Insert(ctx, "G", mem(fmt.Sprintf("u%d", i), "")))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 40; i++ {
		_, err := m.Get(ctx, member.Key{GuildID: "G", UserID: fmt.Sprintf("u%d", i)})
		assert.NoError(t, err)
	}
}
