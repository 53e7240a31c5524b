package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/metrics"
)

// Dispatcher executes one Workload. Implementations return a Response for
// every exchange that reached the server, whatever its status code, and an
// error only when no response could be obtained.
type Dispatcher interface {
	Dispatch(ctx context.Context, w Workload) (Response, error)
}

// Compile-time assertion: *Client satisfies Dispatcher.
var _ Dispatcher = (*Client)(nil)

// TransportError reports a failure to obtain any response for a Workload.
type TransportError struct {
	Op  Type
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dispatch: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. The default is
// discordgo.EndpointAPI at construction time.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/") + "/"
		}
	}
}

// WithTimeout bounds each HTTP exchange. Zero or less leaves exchanges bounded
// only by the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets how many times a rate-limited (429) request is retried.
// Negative values are ignored.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithLogger sets the logger. A nil logger defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = metrics.OrNop(r)
	}
}

// Client dispatches Workloads using a discordgo session's credentials, HTTP
// client and rate limiter. It is safe for concurrent use.
type Client struct {
	session    *discordgo.Session
	baseURL    string
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
	metrics    metrics.Recorder
}

// New constructs a Client around session. The session does not need an open
// gateway connection; only its Token, Client, UserAgent and Ratelimiter are
// used.
func New(session *discordgo.Session, opts ...Option) *Client {
	c := &Client{
		session:    session,
		baseURL:    discordgo.EndpointAPI,
		maxRetries: session.MaxRestRetries,
		logger:     slog.Default(),
		metrics:    metrics.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch sends w and returns the server's response. A 429 response is
// retried after the advertised delay, up to the configured retry count; any
// other status is returned to the caller unchanged.
func (c *Client) Dispatch(ctx context.Context, w Workload) (Response, error) {
	url := c.baseURL + strings.TrimPrefix(w.Path, "/")
	if len(w.Query) > 0 {
		url += "?" + w.Query.Encode()
	}
	// Bucket per route, as discordgo does: the URL without its query string.
	bucketID := c.baseURL + strings.TrimPrefix(w.Path, "/")

	for attempt := 0; ; attempt++ {
		resp, err := c.do(ctx, w, url, bucketID)
		if err != nil {
			return Response{}, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= c.maxRetries {
			return resp, nil
		}

		var rl discordgo.TooManyRequests
		if err := json.Unmarshal(resp.Body, &rl); err != nil {
			c.logger.Warn("rate limit body unreadable", "op", w.Type.String(), "error", err)
			return resp, nil
		}
		c.logger.Info("rate limited", "op", w.Type.String(), "retry_after", rl.RetryAfter, "attempt", attempt+1)

		timer := time.NewTimer(rl.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Response{}, &TransportError{Op: w.Type, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

func (c *Client) do(ctx context.Context, w Workload, url, bucketID string) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if len(w.Body) > 0 {
		body = bytes.NewReader(w.Body)
	}
	req, err := http.NewRequestWithContext(ctx, w.Class.Method(), url, body)
	if err != nil {
		return Response{}, &TransportError{Op: w.Type, Err: err}
	}
	if c.session.Token != "" {
		req.Header.Set("Authorization", c.session.Token)
	}
	req.Header.Set("User-Agent", c.session.UserAgent)
	if len(w.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if w.Reason != "" {
		req.Header.Set("X-Audit-Log-Reason", w.Reason)
	}

	bucket := c.session.Ratelimiter.LockBucket(bucketID)
	start := time.Now()

	resp, err := c.session.Client.Do(req)
	if err != nil {
		_ = bucket.Release(nil)
		c.metrics.ObserveDispatch(w.Type.String(), 0, time.Since(start))
		c.logger.Warn("request failed", "op", w.Type.String(), "path", w.Path, "error", err)
		return Response{}, &TransportError{Op: w.Type, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if relErr := bucket.Release(resp.Header); relErr != nil {
		c.logger.Debug("rate limit headers unreadable", "op", w.Type.String(), "error", relErr)
	}
	c.metrics.ObserveDispatch(w.Type.String(), resp.StatusCode, time.Since(start))
	if err != nil {
		return Response{}, &TransportError{Op: w.Type, Err: fmt.Errorf("read body: %w", err)}
	}

	out := Response{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}
	if out.OK() {
		c.logger.Debug("request ok", "op", w.Type.String(), "path", w.Path, "status", resp.StatusCode)
	} else {
		c.logger.Warn("request rejected", "op", w.Type.String(), "path", w.Path, "status", resp.StatusCode, "body", truncate(data, 256))
	}
	return out, nil
}

// IsTransport reports whether err is a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
