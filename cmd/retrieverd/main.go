// Retrieverd is a multi-tenant retrieval-augmented answering daemon.
//
// It serves an HTTP API for ingesting per-tenant knowledge documents and
// answering natural-language queries grounded in them, with a semantic
// answer cache in front of the retrieve-and-generate pipeline.
//
// Configuration is loaded from a YAML file and RETRIEVERD_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	retrieverd
//
//	# Start with a config file
//	retrieverd --config /etc/retrieverd/config.yaml
//
//	# Override via environment
//	RETRIEVERD_SERVER_PORT=9090 retrieverd
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "retrieverd",
	Short: "Multi-tenant retrieval-augmented answering daemon",
	Long: `retrieverd serves per-tenant document ingestion and grounded
question answering over HTTP, backed by an exact cosine-similarity vector
store and a TTL-bounded semantic answer cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the retrieverd server (same as running with no command)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("retrieverd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
