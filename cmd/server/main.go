package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/config"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/feed"
	"github.com/boboshow2025/TaiwanETF-Tracker/pkg/logger"
)

type flags struct {
	configPath string
	addr       string
	feedURL    string
	staticDir  string
	rangeToken string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("etf tracker failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	serve := serveCmd(f)

	root := &cobra.Command{
		Use:           "etf-tracker",
		Short:         "Taiwan ETF leaderboards backed by a periodically refreshed feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", os.Getenv("ETF_CONFIG"), "YAML config file")
	root.PersistentFlags().StringVar(&f.feedURL, "feed-url", "", "snapshot feed url (overrides config)")
	root.PersistentFlags().StringVar(&f.addr, "addr", "", "server listen address (overrides config)")
	root.PersistentFlags().StringVar(&f.staticDir, "static", "", "directory of a built frontend to serve")

	root.AddCommand(serve, snapshotCmd(f))
	return root
}

func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.feedURL != "" {
		cfg.Feed.URL = f.feedURL
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := logger.New(logger.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	logger.SetGlobalLogger(l)
	return cfg, nil
}

func newFeedClient(cfg *config.Config) (*feed.Client, error) {
	return feed.NewClient(cfg.Feed.URL,
		feed.WithLogger(log.Logger),
		feed.WithHTTPClient(&http.Client{Timeout: cfg.Feed.Timeout}),
		feed.WithMinInterval(cfg.Feed.MinInterval),
		feed.WithMaxBodyBytes(cfg.Feed.MaxBodyBytes),
		feed.WithBreaker(cfg.Feed.BreakerFailures, cfg.Feed.BreakerTimeout),
	)
}
