// Dictserver serves device dictionaries over HTTP and WebSocket.
//
// It loads every .dpc dictionary file from the configured directory, keeps
// them in sync with the device layer, logs value changes to SQLite and
// exposes the /api/v1/dictionary web API next to a static document root.
//
// Usage:
//
//	dictserver server [flags]
//
// See 'dictserver server --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/dictserver/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dictserver",
	Short: "Device dictionary server",
	Long: `A small HTTP and WebSocket server for device dictionaries.

Dictionaries are described by .dpc files. The server keeps each dictionary's
configured keys on the device, writes changed values back to the file, and
records logged keys in a per-dictionary SQLite database.

Use the separate 'dictctl' utility to query and administer a running server.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dictserver %s\n", version.Full())
	},
}
