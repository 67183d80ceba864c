package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/bandit"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of bandit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bandit version %s\n", strings.TrimSpace(bandit.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
