package message_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/message"
	"github.com/jamesprial/discordcore/internal/queue"
	"github.com/jamesprial/discordcore/internal/testutil"
	"github.com/jamesprial/discordcore/internal/tools"
)

func setupTools(t *testing.T) ([]tools.Registration, *message.Manager, *queue.Queue[queue.QueuedMessage], *testutil.MockDiscord) {
	t.Helper()
	m, md := newManager(t)
	q := queue.New[queue.QueuedMessage]()
	regs := message.MessageTools(m, q, testutil.NewResolver(t), nil)
	return regs, m, q, md
}

// ---------------------------------------------------------------------------
// Tool Registration
// ---------------------------------------------------------------------------

func Test_MessageTools_Registration(t *testing.T) {
	t.Parallel()
	regs, _, _, _ := setupTools(t)

	testutil.AssertRegistrations(t, regs, []string{
		"discord_poll_messages",
		"discord_send_message",
		"discord_get_message",
		"discord_get_messages",
		"discord_edit_message",
		"discord_delete_message",
	})
}

// ---------------------------------------------------------------------------
// discord_poll_messages handler
// ---------------------------------------------------------------------------

func Test_PollMessages_EmptyQueue_ShortTimeout(t *testing.T) {
	t.Parallel()
	regs, _, _, _ := setupTools(t)
	handler := testutil.FindHandler(t, regs, "discord_poll_messages")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := handler(ctx, testutil.NewCallToolRequest("discord_poll_messages", map[string]any{
		"timeout_seconds": float64(1),
	}))
	if err != nil {
		t.Fatalf("handler returned unexpected error: %v", err)
	}
	testutil.AssertTextContains(t, result, "No new messages")
}

func Test_PollMessages_QueueHasMessages(t *testing.T) {
	t.Parallel()
	regs, _, q, _ := setupTools(t)

	q.Enqueue(queue.QueuedMessage{
		ID:             "msg-1",
		ChannelID:      "ch-001",
		ChannelName:    "general",
		AuthorID:       "user-1",
		AuthorUsername: "alice",
		Content:        "hello world",
		Timestamp:      time.Now(),
	})

	result := testutil.CallTool(t, regs, "discord_poll_messages", map[string]any{"timeout_seconds": float64(1)})
	testutil.AssertTextContains(t, result, "hello world")
	testutil.AssertTextContains(t, result, "alice")
}

func Test_PollMessages_ChannelFilter(t *testing.T) {
	t.Parallel()
	regs, _, q, _ := setupTools(t)

	q.Enqueue(queue.QueuedMessage{ID: "1", ChannelID: "ch-002", Content: "in random"})
	q.Enqueue(queue.QueuedMessage{ID: "2", ChannelID: "ch-001", Content: "in general"})

	result := testutil.CallTool(t, regs, "discord_poll_messages", map[string]any{
		"timeout_seconds": float64(1),
		"channel":         "general",
	})
	testutil.AssertTextContains(t, result, "in general")
	testutil.AssertTextNotContains(t, result, "in random")
	if q.Len() != 1 {
		t.Errorf("queue Len() = %d, want 1 (non-matching message stays)", q.Len())
	}
}

func Test_PollMessages_UnknownChannel(t *testing.T) {
	t.Parallel()
	regs, _, _, _ := setupTools(t)

	result := testutil.CallTool(t, regs, "discord_poll_messages", map[string]any{"channel": "nowhere"})
	if !result.IsError {
		t.Fatalf("expected error for unknown channel, got: %s", testutil.ExtractText(t, result))
	}
}

func Test_PollMessages_TimeoutClamping(t *testing.T) {
	t.Parallel()
	regs, _, _, _ := setupTools(t)
	handler := testutil.FindHandler(t, regs, "discord_poll_messages")

	tests := []struct {
		name           string
		timeoutSeconds float64
	}{
		{name: "zero normalized to default (30)", timeoutSeconds: 0},
		{name: "very large capped at 300", timeoutSeconds: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Use a short context to prevent actually waiting the full duration.
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			_, err := handler(ctx, testutil.NewCallToolRequest("discord_poll_messages", map[string]any{
				"timeout_seconds": tt.timeoutSeconds,
			}))
			if err != nil {
				t.Fatalf("handler error: %v", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// discord_send_message handler
// ---------------------------------------------------------------------------

func Test_SendMessage_ByName(t *testing.T) {
	t.Parallel()
	regs, _, _, md := setupTools(t)
	md.Respond(http.MethodPost, "/channels/ch-001/messages", http.StatusOK,
		[]byte(`{"id":"mock-msg-001","channel_id":"ch-001","content":"test message"}`))

	result := testutil.CallTool(t, regs, "discord_send_message", map[string]any{
		"channel": "general",
		"content": "test message",
	})
	testutil.AssertNotError(t, result)
	testutil.AssertTextContains(t, result, "mock-msg-001")
}

func Test_SendMessage_WithReplyTo(t *testing.T) {
	t.Parallel()
	regs, _, _, md := setupTools(t)
	md.Respond(http.MethodPost, "/channels/123456789012345678/messages", http.StatusOK,
		[]byte(`{"id":"m2","channel_id":"123456789012345678"}`))

	result := testutil.CallTool(t, regs, "discord_send_message", map[string]any{
		"channel":  "123456789012345678",
		"content":  "replying to something",
		"reply_to": "987",
	})
	testutil.AssertNotError(t, result)

	req, ok := md.LastRequest()
	if !ok {
		t.Fatal("no request recorded")
	}
	if !strings.Contains(string(req.Body), `"message_id":"987"`) {
		t.Errorf("expected message_reference in body, got: %s", req.Body)
	}
}

func Test_SendMessage_DirectMessage(t *testing.T) {
	t.Parallel()
	regs, _, _, md := setupTools(t)
	md.Respond(http.MethodPost, "/users/@me/channels", http.StatusOK, []byte(`{"id":"dm-7","type":1}`))
	md.Respond(http.MethodPost, "/channels/dm-7/messages", http.StatusOK, []byte(`{"id":"m7","channel_id":"dm-7"}`))

	result := testutil.CallTool(t, regs, "discord_send_message", map[string]any{
		"user_id": "u1",
		"content": "psst",
	})
	testutil.AssertNotError(t, result)
	testutil.AssertTextContains(t, result, "m7")
}

func Test_SendMessage_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		args         map[string]any
		wantContains string
	}{
		{name: "missing content", args: map[string]any{"channel": "general"}, wantContains: "content is required"},
		{name: "unknown channel", args: map[string]any{"channel": "nowhere", "content": "x"}, wantContains: "not found"},
		{name: "api rejects", args: map[string]any{"channel": "random", "content": "x"}, wantContains: "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			regs, _, _, _ := setupTools(t)
			result := testutil.CallTool(t, regs, "discord_send_message", tt.args)
			if !result.IsError {
				t.Fatalf("expected error result, got: %s", testutil.ExtractText(t, result))
			}
			testutil.AssertTextContains(t, result, tt.wantContains)
		})
	}
}

// ---------------------------------------------------------------------------
// discord_get_message / discord_get_messages handlers
// ---------------------------------------------------------------------------

func Test_GetMessage_CacheThenRefresh(t *testing.T) {
	t.Parallel()
	regs, m, _, md := setupTools(t)
	md.Respond(http.MethodGet, "/channels/ch-001/messages/m1", http.StatusOK,
		[]byte(`{"id":"m1","channel_id":"ch-001","content":"from api"}`))
	if err := m.Insert(context.Background(), &discordgo.Message{ID: "m1", ChannelID: "ch-001", Content: "from cache"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	result := testutil.CallTool(t, regs, "discord_get_message", map[string]any{"channel": "general", "message_id": "m1"})
	testutil.AssertTextContains(t, result, "from cache")
	if n := len(md.Requests()); n != 0 {
		t.Errorf("expected no API requests, got %d", n)
	}

	result = testutil.CallTool(t, regs, "discord_get_message", map[string]any{"channel": "general", "message_id": "m1", "refresh": true})
	testutil.AssertTextContains(t, result, "from api")
}

func Test_GetMessage_MissFallsBackToFetch(t *testing.T) {
	t.Parallel()
	regs, _, _, md := setupTools(t)
	md.Respond(http.MethodGet, "/channels/ch-002/messages/m5", http.StatusOK,
		[]byte(`{"id":"m5","channel_id":"ch-002","content":"fetched","author":{"id":"u1","username":"bob"}}`))

	result := testutil.CallTool(t, regs, "discord_get_message", map[string]any{"channel": "random", "message_id": "m5"})
	testutil.AssertNotError(t, result)

	var got message.MessageSummary
	if err := json.Unmarshal([]byte(testutil.ExtractText(t, result)), &got); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if got.AuthorUsername != "bob" || got.Content != "fetched" {
		t.Errorf("summary = %+v", got)
	}
}

func Test_GetMessages_OldestFirst(t *testing.T) {
	t.Parallel()
	regs, _, _, md := setupTools(t)
	md.Respond(http.MethodGet, "/channels/ch-001/messages", http.StatusOK,
		[]byte(`[{"id":"2","content":"second"},{"id":"1","content":"first"}]`))

	result := testutil.CallTool(t, regs, "discord_get_messages", map[string]any{"channel": "general", "limit": float64(500)})
	testutil.AssertNotError(t, result)

	text := testutil.ExtractText(t, result)
	if strings.Index(text, "first") > strings.Index(text, "second") {
		t.Errorf("expected oldest message first, got: %s", text)
	}
	req, _ := md.LastRequest()
	if req.Query != "limit=100" {
		t.Errorf("query = %q, want limit clamped to 100", req.Query)
	}
}

// ---------------------------------------------------------------------------
// discord_edit_message / discord_delete_message handlers
// ---------------------------------------------------------------------------

func Test_EditMessage_Valid(t *testing.T) {
	t.Parallel()
	regs, _, _, md := setupTools(t)
	md.Respond(http.MethodPatch, "/channels/ch-001/messages/msg-100", http.StatusOK,
		[]byte(`{"id":"msg-100","channel_id":"ch-001","content":"updated text"}`))

	result := testutil.CallTool(t, regs, "discord_edit_message", map[string]any{
		"channel":    "general",
		"message_id": "msg-100",
		"content":    "updated text",
	})
	testutil.AssertNotError(t, result)
	testutil.AssertTextContains(t, result, "msg-100")
}

func Test_DeleteMessage_NowAndScheduled(t *testing.T) {
	t.Parallel()
	regs, _, _, md := setupTools(t)
	md.Respond(http.MethodDelete, "/channels/ch-001/messages/m1", http.StatusNoContent, nil)

	result := testutil.CallTool(t, regs, "discord_delete_message", map[string]any{"channel": "general", "message_id": "m1"})
	testutil.AssertNotError(t, result)
	testutil.AssertTextContains(t, result, "deleted")

	result = testutil.CallTool(t, regs, "discord_delete_message", map[string]any{
		"channel":       "general",
		"message_id":    "m1",
		"delay_seconds": float64(1),
	})
	testutil.AssertNotError(t, result)
	testutil.AssertTextContains(t, result, "scheduled")
}

func Test_DeleteMessage_Missing(t *testing.T) {
	t.Parallel()
	regs, _, _, _ := setupTools(t)

	result := testutil.CallTool(t, regs, "discord_delete_message", map[string]any{"channel": "general", "message_id": "m404"})
	if !result.IsError {
		t.Fatalf("expected error, got: %s", testutil.ExtractText(t, result))
	}
	testutil.AssertTextContains(t, result, "not_found")
}
