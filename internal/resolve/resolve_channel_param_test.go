package resolve_test

import (
	"context"
	"testing"

	"github.com/jamesprial/discordcore/internal/channel"
	"github.com/jamesprial/discordcore/internal/resolve"
	"github.com/jamesprial/discordcore/internal/testutil"
)

// ---------------------------------------------------------------------------
// ResolveChannelParam (exported helper in resolve package)
// ---------------------------------------------------------------------------

func Test_ResolveChannelParam_Cases(t *testing.T) {
	t.Parallel()

	md := testutil.NewMockDiscord(t)
	channels := channel.NewManager(md.Engine(t))

	r := resolve.New(channels, "guild-1")
	// Refresh to populate the index from mock (returns general and random).
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	tests := []struct {
		name    string
		input   string
		wantID  string
		wantErr bool
	}{
		{
			name:    "all digits treated as ID",
			input:   "123456789012345678",
			wantID:  "123456789012345678",
			wantErr: false,
		},
		{
			name:    "channel name resolved to ID",
			input:   "general",
			wantID:  "ch-001",
			wantErr: false,
		},
		{
			name:    "hash-prefixed channel name",
			input:   "#general",
			wantID:  "ch-001",
			wantErr: false,
		},
		{
			name:    "empty input returns error",
			input:   "",
			wantID:  "",
			wantErr: true,
		},
		{
			name:    "unknown channel name returns error",
			input:   "nonexistent",
			wantID:  "",
			wantErr: true,
		},
		{
			name:    "mixed alphanumeric treated as name lookup",
			input:   "dev-chat",
			wantID:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, err := resolve.ResolveChannelParam(r, tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ResolveChannelParam(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && id != tt.wantID {
				t.Errorf("ResolveChannelParam(%q) = %q, want %q", tt.input, id, tt.wantID)
			}
		})
	}
}

func Test_Refresh_FillsChannelCache(t *testing.T) {
	t.Parallel()

	md := testutil.NewMockDiscord(t)
	channels := channel.NewManager(md.Engine(t))
	r := resolve.New(channels, "guild-1")

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := channels.Len(); got != 2 {
		t.Errorf("channel cache Len() = %d, want 2", got)
	}
	if _, err := channels.Get(context.Background(), "ch-002"); err != nil {
		t.Errorf("Get(ch-002) after refresh: %v", err)
	}
}

func Test_Refresh_MatchesFixtureResolver(t *testing.T) {
	t.Parallel()

	md := testutil.NewMockDiscord(t)
	live := resolve.New(channel.NewManager(md.Engine(t)), testutil.GuildID)
	if err := live.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	fixture := testutil.NewResolver(t)

	for _, ch := range testutil.GuildChannels() {
		if got, want := live.ChannelName(ch.ID), fixture.ChannelName(ch.ID); got != want || got != ch.Name {
			t.Errorf("ChannelName(%q) = %q, fixture %q, want %q", ch.ID, got, want, ch.Name)
		}
		id, err := live.ChannelID("#" + ch.Name)
		if err != nil || id != ch.ID {
			t.Errorf("ChannelID(%q) = %q, %v; want %q", ch.Name, id, err, ch.ID)
		}
	}
}
