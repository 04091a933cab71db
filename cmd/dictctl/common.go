package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/dictserver/internal/client"
	"github.com/muurk/dictserver/internal/config"
	"github.com/muurk/dictserver/internal/discovery"
	"github.com/muurk/dictserver/internal/ui"
)

// errReported is returned after a failure box has been printed.
var errReported = errors.New("error already reported")

func loadProfile() (*config.Profile, error) {
	if profilePath != "" {
		return config.LoadProfileFrom(profilePath)
	}
	return config.LoadProfile()
}

func saveProfile(p *config.Profile) error {
	if profilePath != "" {
		return p.SaveTo(profilePath)
	}
	return p.Save()
}

// quickScan browses for servers when nothing else names one.
var quickScan = discovery.QuickScan

// resolveServer picks the server URL: --server (a URL or a name from the
// profile's scan results), else the profile's last server, else the only
// server a quick mDNS scan finds.
func resolveServer(ctx context.Context, p *config.Profile) (string, error) {
	if serverFlag != "" {
		if u, ok := p.Known[serverFlag]; ok {
			return u, nil
		}
		return serverFlag, nil
	}
	if p.Server != "" {
		return p.Server, nil
	}

	services, err := quickScan(ctx)
	if err != nil {
		return "", fmt.Errorf("no server given and discovery failed: %w", err)
	}
	switch len(services) {
	case 0:
		return "", errors.New("no server given and none found: use --server or run 'dictctl scan'")
	case 1:
		return services[0].BaseURL(), nil
	default:
		return "", fmt.Errorf("no server given and %d found: use --server or run 'dictctl scan'", len(services))
	}
}

// newClient builds a client for the resolved server.
func newClient(ctx context.Context) (*client.Client, string, error) {
	p, err := loadProfile()
	if err != nil {
		return nil, "", err
	}
	server, err := resolveServer(ctx, p)
	if err != nil {
		return nil, "", err
	}

	c := client.New(server)
	switch {
	case timeout > 0:
		c.SetTimeout(timeout)
	case p.Timeout > 0:
		c.SetTimeout(p.Timeout.Duration())
	}
	return c, c.BaseURL, nil
}

func printer(cmd *cobra.Command) *ui.Printer {
	p := ui.NewPrinter(quiet || jsonOutput)
	p.Out = cmd.OutOrStdout()
	p.Err = cmd.ErrOrStderr()
	return p
}

// report prints a failure box for err and returns errReported.
func report(p *ui.Printer, title string, err error) error {
	p.Failure(title, errors.New(client.GetShortErrorMessage(err)), hints(err)...)
	return errReported
}

// hints turns the client's troubleshooting text into bullet items.
func hints(err error) []string {
	var out []string
	for _, line := range strings.Split(client.GetTroubleshootingHint(err), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "•"))
		if line == "" || line == "Troubleshooting:" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func parseSerial(arg string) (int, error) {
	sn, err := strconv.Atoi(arg)
	if err != nil || sn <= 0 {
		return 0, fmt.Errorf("invalid serial number %q", arg)
	}
	return sn, nil
}
