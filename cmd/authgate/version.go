package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/authgate"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of authgate",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "authgate version %s\n", strings.TrimSpace(authgate.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
