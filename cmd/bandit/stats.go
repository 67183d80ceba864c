package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aretw0/bandit/internal/cli"
	"github.com/aretw0/bandit/pkg/domain"
)

var statsCmd = &cobra.Command{
	Use:   "stats <site>",
	Short: "Print exposures and conversions per variant",
	Long:  `Reads the SQLite event store configured by metrics.events_path.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Metrics.EventsPath == "" {
			return errors.New("stats needs metrics.events_path (or BANDIT_METRICS_EVENTS_PATH)")
		}
		ctx := cmd.Context()

		app, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		experiment, _ := cmd.Flags().GetString("experiment")
		if experiment == "" {
			site, err := app.Bandit.Fetch(ctx, args[0])
			if err != nil {
				return err
			}
			experiment = site.Experiment.ID
		}

		stats, err := app.Events.Stats(ctx, args[0], experiment)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VARIANT\tSESSIONS\tEXPOSURES\tCONVERSIONS\tRATE")
		for _, s := range stats {
			exposures := s.Counts[domain.EventExposures]
			conversions := s.Counts[domain.EventConversions]
			rate := 0.0
			if exposures > 0 {
				rate = float64(conversions) / float64(exposures)
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.2f%%\n", s.Variant, s.Sessions, exposures, conversions, rate*100)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringP("experiment", "e", "", "Experiment id (defaults to the site's current experiment)")
}
