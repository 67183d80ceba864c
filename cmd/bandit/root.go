package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/bandit/internal/cli"
	"github.com/aretw0/bandit/internal/config"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bandit",
	Short: "bandit assigns sticky A/B/n variants to sessions",
	Long: `bandit serves site experiments, assigns variants to sessions and keeps
them sticky across visits. Sites are YAML, JSON or Markdown frontmatter
documents in a directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}

		logger, err = cli.NewLogger(loaded)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to a bandit.yaml config file")
	flags.String("sites", "", "Directory (or server URL) holding the site definitions")
	flags.String("storage", "", "Session backend: memory, file or redis")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
}

// applyFlags lets explicit flags win over the file and the environment.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("sites") {
		c.SitesDir, _ = flags.GetString("sites")
	}
	if flags.Changed("storage") {
		c.Storage.Backend, _ = flags.GetString("storage")
	}
	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}
}
