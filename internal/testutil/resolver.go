package testutil

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/resolve"
)

// GuildID is the guild every default mock route belongs to.
const GuildID = "guild-1"

// GuildChannels returns the text channels NewMockDiscord serves for
// GET /guilds/guild-1/channels: ch-001 "general" and ch-002 "random".
func GuildChannels() []*discordgo.Channel {
	return []*discordgo.Channel{
		{ID: "ch-001", GuildID: GuildID, Name: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: "ch-002", GuildID: GuildID, Name: "random", Type: discordgo.ChannelTypeGuildText},
	}
}

type fixtureChannels struct{}

func (fixtureChannels) FetchGuildChannels(_ context.Context, guildID string) ([]*discordgo.Channel, error) {
	if guildID != GuildID {
		return nil, nil
	}
	return GuildChannels(), nil
}

// NewResolver returns a resolver for GuildID refreshed from GuildChannels.
func NewResolver(t *testing.T) *resolve.Resolver {
	t.Helper()
	r := resolve.New(fixtureChannels{}, GuildID)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("testutil: refresh resolver: %v", err)
	}
	return r
}
