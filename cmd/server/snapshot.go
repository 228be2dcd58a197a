package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/ranking"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/refresh"
)

func snapshotCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the feed once and print both leaderboards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			metric, err := ranking.SelectMetric(f.rangeToken)
			if err != nil {
				return err
			}
			client, err := newFeedClient(cfg)
			if err != nil {
				return err
			}

			controller := refresh.New(client, refresh.WithLogger(log.Logger))
			defer controller.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Feed.Timeout*2)
			defer cancel()

			controller.Request()
			st, err := controller.Wait(ctx)
			if err != nil {
				return err
			}
			if st.Status != refresh.StatusReady {
				return fmt.Errorf("refresh failed: %s", st.Reason)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fetched %s, %d records\n\n", st.FetchedAt.Format("2006-01-02 15:04:05"), len(st.Snapshot))
			for i, category := range models.Categories {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printBoard(out, ranking.BuildDefault(st.Board(category), category, metric))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.rangeToken, "range", ranking.RangeYear, "ranking range: year or week")
	return cmd
}

func printBoard(out io.Writer, view ranking.LeaderboardView) {
	fmt.Fprintf(out, "%s by %s\n", view.Category, view.Metric.Label)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTICKER\tNAME\tRETURN\tNAV")
	for _, e := range view.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Rank, e.Fund.Ticker, e.Fund.Name, e.Display, e.Fund.LatestNAV.StringFixed(2))
	}
	_ = tw.Flush()
}
