package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/bandit/internal/validator"
	loamAdapter "github.com/aretw0/bandit/pkg/adapters/loam"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check the site definitions",
	Long: `Loads every site file of the sites directory and reports broken
definitions, plus warnings for variants that can never be drawn.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.SitesDir
		if len(args) > 0 {
			dir = args[0]
		}

		warnings, err := validator.ValidateSites(cmd.Context(), loamAdapter.NewProvider(dir))
		for _, w := range warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
		}
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Sites are valid.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
