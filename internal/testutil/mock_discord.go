// Package testutil provides shared test infrastructure for discordcore tests.
//
// The primary helper is NewMockDiscord, which starts an httptest.Server that
// answers Discord REST routes with canned responses and returns a dispatcher
// and engine pointed at it.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/resource"
	"github.com/jamesprial/discordcore/internal/sched"
)

// Request is one request the mock server received.
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

type canned struct {
	status int
	body   []byte
}

// MockDiscord bundles the test server with a session and dispatcher pointed at
// it. Routes are matched on method and unescaped path, e.g.
// "GET /channels/123".
type MockDiscord struct {
	Server     *httptest.Server
	Session    *discordgo.Session
	Dispatcher *dispatch.Client

	mu       sync.Mutex
	routes   map[string]canned
	requests []Request
}

// NewMockDiscord starts the server with the default routes registered. The
// server is closed through t.Cleanup.
//
// Default routes:
//
//	GET /guilds/guild-1            Test Guild
//	GET /guilds/guild-1/channels   ch-001 "general", ch-002 "random"
//	GET /channels/ch-001           general
func NewMockDiscord(t *testing.T) *MockDiscord {
	t.Helper()

	m := &MockDiscord{routes: make(map[string]canned)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Server.Close)

	dg, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("testutil: discordgo.New failed: %v", err)
	}
	dg.MaxRestRetries = 1
	m.Session = dg
	m.Dispatcher = dispatch.New(dg, dispatch.WithBaseURL(m.Server.URL))

	channels := GuildChannels()
	m.RespondJSON(http.MethodGet, "/guilds/"+GuildID, http.StatusOK, &discordgo.Guild{
		ID:          GuildID,
		Name:        "Test Guild",
		MemberCount: 42,
	})
	m.RespondJSON(http.MethodGet, "/guilds/"+GuildID+"/channels", http.StatusOK, channels)
	m.RespondJSON(http.MethodGet, "/channels/"+channels[0].ID, http.StatusOK, channels[0])
	return m
}

// Respond registers a raw canned response. A nil body sends no body.
func (m *MockDiscord) Respond(method, path string, status int, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[method+" "+path] = canned{status: status, body: body}
}

// RespondJSON registers a canned response with v marshalled as its body.
func (m *MockDiscord) RespondJSON(method, path string, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic("testutil: marshal canned body: " + err.Error())
	}
	m.Respond(method, path, status, data)
}

// Requests returns a copy of every request received so far.
func (m *MockDiscord) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// LastRequest returns the most recent request. ok is false when none arrived.
func (m *MockDiscord) LastRequest() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return Request{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// Engine returns a resource engine using the mock's dispatcher and a private
// pool closed through t.Cleanup.
func (m *MockDiscord) Engine(t *testing.T, opts ...resource.EngineOption) *resource.Engine {
	t.Helper()
	pool := sched.New(sched.WithMaxLeases(8))
	t.Cleanup(pool.Close)
	return resource.NewEngine(m.Dispatcher, pool, opts...)
}

func (m *MockDiscord) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.requests = append(m.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	c, ok := m.routes[r.Method+" "+r.URL.Path]
	m.mu.Unlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "404: Not Found", "code": 0}`))
		return
	}
	if len(c.body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(c.status)
	_, _ = w.Write(c.body)
}
