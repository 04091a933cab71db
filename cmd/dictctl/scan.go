package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/dictserver/internal/discovery"
)

var (
	scanTimeout time.Duration
	scanNoSave  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find dictionary servers on the local network",
	Long: `Browse mDNS for servers announcing ` + discovery.ServiceType + `.

Found servers are remembered in the profile by instance name, so they can be
passed to --server. When exactly one server is found it also becomes the
default server.`,
	Example: `  # Scan for 5 seconds (default)
  dictctl scan

  # Longer scan for busy networks
  dictctl scan --timeout 15s

  # Then use a server by name
  dictctl list --server "kitchen Dictionary Server"`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "How long to listen for announcements")
	scanCmd.Flags().BoolVar(&scanNoSave, "no-save", false, "Do not record the results in the profile")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	p := printer(cmd)
	p.Header("scan", "dictctl scan", map[string]string{
		"Service": discovery.ServiceType,
		"Timeout": scanTimeout.String(),
	})

	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout
	services, err := scanner.Scan(cmd.Context())
	if err != nil {
		return report(p, "Scan failed", err)
	}

	if len(services) == 0 {
		p.Warning("No servers found", map[string]string{
			"Hint": "Check that the server runs with [server.publish] enabled",
		})
		return nil
	}

	rows := make([][]string, 0, len(services))
	for _, s := range services {
		rows = append(rows, []string{s.Instance, s.Hostname, s.IP, strconv.Itoa(s.Port), s.BaseURL()})
	}
	p.Table([]string{"INSTANCE", "HOST", "ADDRESS", "PORT", "URL"}, rows)

	if scanNoSave {
		return nil
	}
	prof, err := loadProfile()
	if err != nil {
		return err
	}
	for _, s := range services {
		prof.Known[s.Instance] = s.BaseURL()
	}
	if len(services) == 1 {
		prof.Server = services[0].BaseURL()
	}
	if err := saveProfile(prof); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	p.Success(fmt.Sprintf("Found %d server(s)", len(services)), map[string]string{
		"Default": prof.Server,
	})
	return nil
}
