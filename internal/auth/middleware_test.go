package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if called != nil {
			*called = true
		}
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func Test_Middleware_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		token      string
		authHeader string
		wantStatus int
	}{
		{name: "correct token", token: "correct-token", authHeader: "Bearer correct-token", wantStatus: http.StatusOK},
		{name: "missing header", token: "correct-token", wantStatus: http.StatusUnauthorized},
		{name: "wrong token", token: "correct-token", authHeader: "Bearer wrong-token", wantStatus: http.StatusUnauthorized},
		{name: "token prefix only", token: "correct-token", authHeader: "Bearer correct", wantStatus: http.StatusUnauthorized},
		{name: "non-Bearer scheme", token: "correct-token", authHeader: "Basic correct-token", wantStatus: http.StatusUnauthorized},
		{name: "auth disabled without header", token: "", wantStatus: http.StatusOK},
		{name: "auth disabled with header", token: "", authHeader: "Bearer anything", wantStatus: http.StatusOK},
		{name: "Bearer prefix only", token: "correct-token", authHeader: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "lowercase bearer", token: "correct-token", authHeader: "bearer correct-token", wantStatus: http.StatusUnauthorized},
		{name: "double space", token: "correct-token", authHeader: "Bearer  correct-token", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serve(Middleware(tt.token)(okHandler(nil)), "/mcp", tt.authHeader)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func Test_Middleware_CallsInnerOnlyWhenAuthorized(t *testing.T) {
	t.Parallel()

	var called bool
	h := Middleware("my-token")(okHandler(&called))

	serve(h, "/mcp", "Bearer wrong")
	assert.False(t, called, "inner handler ran despite invalid auth")

	serve(h, "/mcp", "Bearer my-token")
	assert.True(t, called, "inner handler did not run on valid auth")
}

func Test_Middleware_OpenPaths(t *testing.T) {
	t.Parallel()

	h := Middleware("my-token", WithOpenPaths("/metrics"), WithLogger(nil))(okHandler(nil))

	assert.Equal(t, http.StatusOK, serve(h, "/metrics", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "/metrics/extra", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "/mcp", "").Code)
}
