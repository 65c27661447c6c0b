package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "queryengine",
	Short: "Natural-language business intelligence query engine",
	Long: `queryengine turns natural-language questions into validated, guardrailed
SQL and analytics, backed by a self-healing generation pipeline and an
anomaly sentry.`,
}

func main() {
	rootCmd.AddCommand(serveCmd, indexSchemasCmd, runSentryCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the queryengine version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("queryengine %s\n", Version)
	},
}
