package interaction_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jamesprial/discordcore/internal/interaction"
	"github.com/jamesprial/discordcore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_InteractionTools_Registration(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)

	testutil.AssertRegistrations(t, interaction.InteractionTools(m, nil), []string{
		"discord_list_interactions",
		"discord_respond_interaction",
	})
}

func Test_ListInteractions(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	regs := interaction.InteractionTools(m, nil)

	result := testutil.CallTool(t, regs, "discord_list_interactions", nil)
	testutil.AssertNotError(t, result)
	assert.Equal(t, "[]", testutil.ExtractText(t, result))

	m.Record(incoming(), time.Now())
	result = testutil.CallTool(t, regs, "discord_list_interactions", nil)
	testutil.AssertTextContains(t, result, `"command": "ping"`)
	testutil.AssertTextContains(t, result, `"answered": false`)
}

func Test_RespondInteraction_ThenFollowUp(t *testing.T) {
	t.Parallel()
	m, md := newManager(t)
	md.Respond(http.MethodPost, callbackPath, http.StatusNoContent, nil)
	md.Respond(http.MethodGet, originalPath, http.StatusOK, []byte(`{"id":"m1","content":"pong"}`))
	md.Respond(http.MethodPost, "/webhooks/app/tok", http.StatusOK, []byte(`{"id":"m2","content":"more"}`))
	m.Record(incoming(), time.Now())
	regs := interaction.InteractionTools(m, nil)

	result := testutil.CallTool(t, regs, "discord_respond_interaction", map[string]any{
		"interaction_id": "i1", "content": "pong",
	})
	testutil.AssertNotError(t, result)
	testutil.AssertTextContains(t, result, `"status": "responded"`)
	testutil.AssertTextContains(t, result, `"message_id": "m1"`)

	result = testutil.CallTool(t, regs, "discord_respond_interaction", map[string]any{
		"interaction_id": "i1", "content": "more", "ephemeral": true,
	})
	testutil.AssertNotError(t, result)
	testutil.AssertTextContains(t, result, `"status": "follow_up"`)

	req, ok := md.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "wait=true", req.Query)
	assert.Contains(t, string(req.Body), `"flags":64`)

	_, err := m.GetResponse(context.Background(), interaction.Key{ApplicationID: "app", Token: "tok", MessageID: "m2"})
	require.NoError(t, err)
}

func Test_RespondInteraction_Deferred(t *testing.T) {
	t.Parallel()
	m, md := newManager(t)
	md.Respond(http.MethodPost, callbackPath, http.StatusNoContent, nil)
	m.Record(incoming(), time.Now())
	regs := interaction.InteractionTools(m, nil)

	result := testutil.CallTool(t, regs, "discord_respond_interaction", map[string]any{"interaction_id": "i1", "defer": true})
	testutil.AssertTextContains(t, result, `"status": "deferred"`)
	sent := decodeCallback(t, md.Requests()[0].Body)
	assert.Equal(t, 5, sent.Type)

	result = testutil.CallTool(t, regs, "discord_respond_interaction", map[string]any{"interaction_id": "i1", "defer": true})
	require.True(t, result.IsError)
	testutil.AssertTextContains(t, result, "already answered")
}

func Test_RespondInteraction_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		args         map[string]any
		wantContains string
	}{
		{name: "missing id", args: map[string]any{"content": "x"}, wantContains: "interaction_id is required"},
		{name: "unknown id", args: map[string]any{"interaction_id": "nope", "content": "x"}, wantContains: "not pending"},
		{name: "missing content", args: map[string]any{"interaction_id": "i1"}, wantContains: "content is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _ := newManager(t)
			m.Record(incoming(), time.Now())

			result := testutil.CallTool(t, interaction.InteractionTools(m, nil), "discord_respond_interaction", tt.args)
			require.True(t, result.IsError)
			testutil.AssertTextContains(t, result, tt.wantContains)
		})
	}
}
