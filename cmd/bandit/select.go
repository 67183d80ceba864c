package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/bandit"
	"github.com/aretw0/bandit/internal/cli"
)

var selectCmd = &cobra.Command{
	Use:   "select [site]",
	Short: "Resolve the variant of a session for a site",
	Long: `Loads the site, resolves a variant for the session and persists it.
Without a site argument the configured site is used. Without --session a new
session id is generated. The resulting snapshot is printed as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		sessionID, _ := flags.GetString("session")
		variant, _ := flags.GetString("variant")
		siteName := cfg.SiteName
		if len(args) == 1 {
			siteName = args[0]
		}

		ctx := cmd.Context()
		app, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		// Timeout, defer and fallback variant come from the config defaults.
		opts := []bandit.MountOption{
			bandit.WithSite(siteName),
			bandit.WithVariant(variant),
		}
		if flags.Changed("timeout") {
			timeout, _ := flags.GetDuration("timeout")
			opts = append(opts, bandit.WithTimeout(timeout))
		}

		inst := app.Bandit.Mount(sessionID, opts...)
		defer inst.Close(context.Background())
		inst.Start(ctx)

		snap, err := inst.Wait(ctx)
		if err != nil {
			return err
		}
		if err := inst.Err(); err != nil {
			logger.Warn("served fallback", "site", siteName, "err", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	rootCmd.AddCommand(selectCmd)
	selectCmd.Flags().StringP("session", "s", "", "Session id (generated when empty)")
	selectCmd.Flags().String("variant", "", "Request a variant by name")
	selectCmd.Flags().Duration("timeout", time.Duration(0), "Load timeout (0 uses the default, -1ns disables)")
}
