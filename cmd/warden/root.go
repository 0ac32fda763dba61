package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/xraph/warden"
	redisstore "github.com/xraph/warden/store/redis"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	redisAddr  string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "warden",
		Short:         "Redis-backed coordination for job workers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("WARDEN_CONFIG"), "YAML config file")
	root.PersistentFlags().StringVar(&g.redisAddr, "redis", "", "Redis address (overrides config)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", os.Getenv("WARDEN_LOG_LEVEL"), "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", os.Getenv("WARDEN_LOG_FORMAT"), "Log format: text|json (default text)")

	root.AddCommand(
		newWorkerCmd(g),
		newPushCmd(g),
		newPauseCmd(g, true),
		newPauseCmd(g, false),
		newLeaderCmd(g),
		newProcessesCmd(g),
		newOrphansCmd(g),
		newPushbackCmd(g),
	)
	return root
}

// newLogger builds a text or JSON slog handler on w. Unknown levels fall
// back to info.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil || level == "" {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// env bundles what every subcommand needs.
type env struct {
	cfg    warden.Config
	logger *slog.Logger
	store  *redisstore.Store
	client goredis.UniversalClient
}

func (e *env) Close() {
	_ = e.client.Close() //nolint:errcheck // best-effort on exit
}

// setup loads the config, builds the logger and connects to Redis.
func (g *globals) setup(ctx context.Context, cmd *cobra.Command) (*env, error) {
	cfg, err := warden.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.redisAddr != "" {
		cfg.Redis.Addr = g.redisAddr
	}

	logger := newLogger(cmd.ErrOrStderr(), g.logLevel, g.logFormat)
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	st := redisstore.New(client, redisstore.WithLogger(logger))
	if err := st.Ping(ctx); err != nil {
		_ = client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("connect %s: %w", cfg.Redis.Addr, err)
	}
	return &env{cfg: cfg, logger: logger, store: st, client: client}, nil
}
