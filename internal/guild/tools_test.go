package guild_test

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/guild"
	"github.com/jamesprial/discordcore/internal/testutil"
)

// ---------------------------------------------------------------------------
// Tool Registration
// ---------------------------------------------------------------------------

func Test_GuildTools_Registration(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)

	regs := guild.GuildTools(m, "guild-1", nil)
	testutil.AssertRegistrations(t, regs, []string{"discord_get_guild"})
}

// ---------------------------------------------------------------------------
// discord_get_guild handler
// ---------------------------------------------------------------------------

func Test_GetGuild_Valid(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	regs := guild.GuildTools(m, "guild-1", nil)

	result := testutil.CallTool(t, regs, "discord_get_guild", map[string]any{})
	testutil.AssertNotError(t, result)

	text := testutil.ExtractText(t, result)
	if !strings.Contains(text, "Test Guild") {
		t.Errorf("expected result to contain guild name 'Test Guild', got: %s", text)
	}
	if !strings.Contains(text, "guild-1") {
		t.Errorf("expected result to contain guild ID 'guild-1', got: %s", text)
	}
	// Mock guild has MemberCount=42.
	if !strings.Contains(text, "42") {
		t.Errorf("expected result to contain member count '42', got: %s", text)
	}
}

func Test_GetGuild_PrefersCache(t *testing.T) {
	t.Parallel()
	m, md := newManager(t)
	if err := m.Insert(context.Background(), &discordgo.Guild{ID: "guild-1", Name: "Cached Guild"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	regs := guild.GuildTools(m, "guild-1", nil)

	result := testutil.CallTool(t, regs, "discord_get_guild", map[string]any{})
	testutil.AssertTextContains(t, result, "Cached Guild")
	if n := len(md.Requests()); n != 0 {
		t.Errorf("expected no API requests, got %d", n)
	}

	result = testutil.CallTool(t, regs, "discord_get_guild", map[string]any{"refresh": true})
	testutil.AssertTextContains(t, result, "Test Guild")
}

func Test_GetGuild_Unknown(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	regs := guild.GuildTools(m, "guild-1", nil)

	result := testutil.CallTool(t, regs, "discord_get_guild", map[string]any{"guild_id": "nope"})
	if !result.IsError {
		t.Fatalf("expected error result, got: %s", testutil.ExtractText(t, result))
	}
	testutil.AssertTextContains(t, result, "not_found")
}
