package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/api"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/feed"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/metrics"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/realtime"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/refresh"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/scheduler"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/selection"
)

func serveCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the leaderboard API and the periodic feed refresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			client, err := newFeedClient(cfg)
			if err != nil {
				return err
			}

			reg := metrics.New()
			opts := []refresh.Option{
				refresh.WithLogger(log.Logger),
				refresh.WithObserver(reg),
			}
			if cfg.Refresh.HoldingsDiff {
				opts = append(opts, refresh.WithTransform(feed.AnnotateSnapshot))
			}
			controller := refresh.New(client, opts...)
			defer controller.Close()

			hub := realtime.NewHub(log.Logger)
			apiServer := api.NewServer(controller, selection.New(controller), hub, reg, log.Logger,
				api.WithRefreshLimit(cfg.Server.ManualRefreshPerMinute),
				api.WithStaticDir(f.staticDir),
			)

			updates, unsubscribe := controller.Subscribe(16)
			defer unsubscribe()
			go hub.Forward(ctx, updates, apiServer.StateView)

			sched := scheduler.New(log.Logger)
			job := scheduler.NewRefreshJob(controller, cfg.Feed.Timeout*2)
			if cfg.Refresh.Schedule != "" {
				if err := sched.AddJob(cfg.Refresh.Schedule, job); err != nil {
					return err
				}
			}
			sched.Start()
			defer func() {
				controller.Close()
				sched.Stop()
			}()

			if cfg.Refresh.OnStart {
				go func() {
					if err := sched.RunNow(ctx, job); err != nil {
						log.Warn().Err(err).Msg("Initial refresh failed")
					}
				}()
			}

			httpServer := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           apiServer.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
				defer shutdownCancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Shutdown error")
				}
			}()

			log.Info().Str("addr", cfg.Server.Addr).Str("feed", cfg.Feed.URL).Msg("ETF tracker listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
