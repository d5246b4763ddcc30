package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "incentctl",
	Short: "CLI for the MON incentive dashboard",
	Long: `incentctl works with the incentive dashboard service.

Build incentive reports from local pool data, trigger a snapshot
refresh, or inspect the snapshot the server is currently serving.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
