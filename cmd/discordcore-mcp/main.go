// Command discordcore-mcp serves the discordcore resource managers as MCP
// tools over stdio or streamable HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jamesprial/discordcore/internal/auth"
	"github.com/jamesprial/discordcore/internal/channel"
	"github.com/jamesprial/discordcore/internal/client"
	"github.com/jamesprial/discordcore/internal/config"
	"github.com/jamesprial/discordcore/internal/discord"
	"github.com/jamesprial/discordcore/internal/dispatch"
	"github.com/jamesprial/discordcore/internal/guild"
	"github.com/jamesprial/discordcore/internal/interaction"
	"github.com/jamesprial/discordcore/internal/member"
	"github.com/jamesprial/discordcore/internal/message"
	"github.com/jamesprial/discordcore/internal/metrics"
	"github.com/jamesprial/discordcore/internal/queue"
	"github.com/jamesprial/discordcore/internal/reaction"
	"github.com/jamesprial/discordcore/internal/resolve"
	"github.com/jamesprial/discordcore/internal/resource"
	"github.com/jamesprial/discordcore/internal/role"
	"github.com/jamesprial/discordcore/internal/tools"
	"github.com/jamesprial/discordcore/internal/user"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

const (
	defaultConfigPath = "config.yaml"
	serverName        = "discordcore-mcp"
	serverVersion     = "1.0.0"
)

func main() {
	stdio := pflag.Bool("stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	configPath := pflag.String("config", "", "path to the YAML config (default $DISCORDCORE_CONFIG_PATH or config.yaml)")
	pflag.Parse()

	cfg, loadErr := loadConfig(*configPath)
	logger := newLogger(cfg.Logging.Level)
	if loadErr != nil {
		logger.Warn("config not loaded, using defaults", "error", loadErr)
	}

	if err := run(cfg, *stdio, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, stdio bool, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, err := resource.ParsePolicy(cfg.Cache.Policy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	rec := metrics.Nop()
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec = metrics.NewPrometheus(reg)
	}

	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}

	d := dispatch.New(dg,
		dispatch.WithBaseURL(cfg.Dispatch.BaseURL),
		dispatch.WithTimeout(cfg.Dispatch.Timeout()),
		dispatch.WithMaxRetries(cfg.Dispatch.MaxRetries),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(rec),
	)
	c := client.New(d,
		client.WithLogger(logger),
		client.WithMetrics(rec),
		client.WithPolicy(policy),
		client.WithMaxLeases(cfg.Scheduler.MaxLeases),
	)
	defer c.Close()

	resolver := resolve.New(c.Channels, cfg.Discord.GuildID)
	inbox := queue.New[queue.QueuedMessage](queue.WithMaxSize(cfg.Ingest.QueueSize))

	gateway := discord.New(dg, c, resolver, inbox,
		discord.WithLogger(logger),
		discord.WithPendingSize(cfg.Ingest.QueueSize),
		discord.WithBatchSize(cfg.Ingest.BatchSize),
		discord.WithPollTimeout(cfg.Ingest.PollTimeout()),
	)
	ingestDone := make(chan struct{})
	ingestCtx, stopIngest := context.WithCancel(ctx)
	go func() {
		defer close(ingestDone)
		gateway.Run(ingestCtx)
	}()
	defer func() {
		stopIngest()
		<-ingestDone
	}()

	if err := gateway.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer func() {
		if err := gateway.Close(); err != nil {
			logger.Warn("discord close failed", "error", err)
		}
	}()

	mcpServer := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))
	n := registerTools(mcpServer, c, resolver, inbox, cfg.Discord.GuildID, logger)
	logger.Info("tools registered", "count", n, "policy", policy.String(), "maxLeases", c.Pool.Cap())

	if stdio {
		logger.Info("starting in stdio mode")
		return server.ServeStdio(mcpServer,
			server.WithErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
		)
	}
	return serveHTTP(ctx, cfg, newHTTPHandler(mcpServer, cfg, reg, logger), logger)
}

// registerTools adds every tool group to s and returns how many tools were
// registered.
func registerTools(
	s *server.MCPServer,
	c *client.Client,
	r resolve.ChannelResolver,
	inbox *queue.Queue[queue.QueuedMessage],
	guildID string,
	logger *slog.Logger,
) int {
	return tools.RegisterAll(s,
		message.MessageTools(c.Messages, inbox, r, logger),
		reaction.ReactionTools(c.Reactions, r, logger),
		channel.ChannelTools(c.Channels, r, guildID, logger),
		guild.GuildTools(c.Guilds, guildID, logger),
		member.MemberTools(c.Members, guildID, logger),
		role.RoleTools(c.Roles, guildID, logger),
		user.UserTools(c.Members, c.Engine, guildID, logger),
		interaction.InteractionTools(c.Interactions, logger),
		client.ClientTools(c, logger),
	)
}

// newHTTPHandler mounts the MCP endpoint behind bearer auth and, when enabled,
// the Prometheus endpoint without it.
func newHTTPHandler(s *server.MCPServer, cfg *config.Config, reg *prometheus.Registry, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	var open []string
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		open = append(open, cfg.Metrics.Path)
	}
	mux.Handle("/", server.NewStreamableHTTPServer(s))

	return auth.Middleware(cfg.Server.AuthToken,
		auth.WithLogger(logger),
		auth.WithOpenPaths(open...),
	)(mux)
}

func serveHTTP(ctx context.Context, cfg *config.Config, h http.Handler, logger *slog.Logger) error {
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// loadConfig reads the config from path, $DISCORDCORE_CONFIG_PATH or the
// default "config.yaml", in that order, and applies environment overrides. If
// the file cannot be read, DefaultConfig is used and the error is returned
// alongside it.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("DISCORDCORE_CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	config.ApplyEnvOverrides(cfg)
	return cfg, err
}

// newLogger builds a text logger on stderr. stdout is reserved for the stdio
// transport.
func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
