// Package auth guards the HTTP transport with a static bearer token.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// Option configures the middleware.
type Option func(*options)

type options struct {
	logger *slog.Logger
	open   map[string]bool
}

// WithLogger sets the logger for rejected requests. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOpenPaths lets requests for the exact paths through without a token,
// e.g. a metrics scrape endpoint.
func WithOpenPaths(paths ...string) Option {
	return func(o *options) {
		for _, p := range paths {
			o.open[p] = true
		}
	}
}

// Middleware returns HTTP middleware that requires
//
//	Authorization: Bearer <token>
//
// on every request. The scheme is case-sensitive and separated from the token
// by one space. An empty token disables the check. Rejected requests get 401
// with a WWW-Authenticate challenge and never reach next.
func Middleware(token string, opts ...Option) func(http.Handler) http.Handler {
	o := options{logger: slog.Default(), open: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}
	want := []byte(token)

	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			provided, ok := strings.CutPrefix(header, bearerPrefix)
			if !ok || provided == "" {
				reject(w, o.logger, r, "missing or malformed authorization header")
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), want) != 1 {
				reject(w, o.logger, r, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, logger *slog.Logger, r *http.Request, reason string) {
	logger.Debug("auth rejected", "reason", reason, "remote", r.RemoteAddr, "path", r.URL.Path)
	w.Header().Set("WWW-Authenticate", `Bearer realm="discordcore"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
