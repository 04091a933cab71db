// Dictctl queries and administers a dictserver over its web API.
//
// It lists dictionaries, prints their configuration and logged data, adds,
// changes and removes dictionaries and keys, and finds servers on the local
// network over mDNS.
//
// Usage:
//
//	dictctl [command] [flags]
//
// The target server comes from --server, else from the profile written by
// 'dictctl scan'. See 'dictctl --help' for available commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	if !errors.Is(err, errReported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// Global flags
var (
	serverFlag  string
	profilePath string
	timeout     time.Duration
	quiet       bool
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "dictctl",
	Short: "Dictionary server client",
	Long: `A command line client for dictserver.

Reads dictionaries and logged data through the /api/v1/dictionary web API and,
when the server allows it, adds, changes and removes dictionaries and keys.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeFromEnv()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&serverFlag, "server", "s", "", "Server URL, host:port or a name found by scan")
	pf.StringVar(&profilePath, "profile", "", "Profile file (default is the user config directory)")
	pf.DurationVar(&timeout, "timeout", 0, "Request timeout (default from the profile)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Print only data, no banners or result boxes")
	pf.BoolVar(&jsonOutput, "json", false, "Print raw JSON")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dictctl %s\n", version.Full())
	},
}
