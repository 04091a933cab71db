package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/dictserver/internal/config"
	"github.com/muurk/dictserver/internal/device"
	"github.com/muurk/dictserver/internal/discovery"
	"github.com/muurk/dictserver/internal/logging"
	"github.com/muurk/dictserver/internal/server"
	"github.com/muurk/dictserver/internal/store"
)

// DefaultConfigPath is read when --config is not given.
const DefaultConfigPath = "/etc/phidgets/dictserver.toml"

const (
	eventBuffer  = 256
	closeTimeout = 15 * time.Second
)

// Server command and flags
var (
	configPath string
	host       string
	port       int
	docRoot    string
	logLevel   string
	publish    bool
	webAPI     bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the dictionary server",
	Long: `Start the dictionary server.

Settings are read from a TOML file (default ` + DefaultConfigPath + `); a missing
file means built-in defaults. Flags given on the command line override the
file, and DICTSERVER_* environment variables override both defaults and file.

The dictionary directory is created if needed and every *.dpc file in it is
installed before the listener opens. A file that fails to install aborts
startup.`,
	Example: `  # Start with the system configuration
  dictserver server

  # Serve a local docroot with the web API on a custom port
  dictserver server --config ./dictserver.toml --docroot ./www --webapi --port 8080

  # Announce the server over mDNS
  dictserver server --publish --log-level debug`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringVar(&configPath, "config", DefaultConfigPath, "Path to the TOML configuration file")
	serverCmd.Flags().StringVar(&host, "host", "", "Listen address (empty = all interfaces)")
	serverCmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides the configuration)")
	serverCmd.Flags().StringVar(&docRoot, "docroot", "", "Static document root (overrides the configuration)")
	serverCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	serverCmd.Flags().BoolVar(&publish, "publish", false, "Announce the server over mDNS")
	serverCmd.Flags().BoolVar(&webAPI, "webapi", false, "Enable the dictionary web API")
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = host
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("docroot") {
		cfg.WWW.DocRoot = docRoot
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("publish") {
		cfg.Server.Publish.Enabled = publish
	}
	if flags.Changed("webapi") {
		cfg.Dictionary.WebAPI.Enabled = webAPI
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Logging.Level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.Sync()

	access, err := logging.NewAccessLog(cfg.WWW.AccessLog)
	if err != nil {
		return err
	}
	defer access.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := device.NewLoopback(eventBuffer)
	defer bridge.Close()

	st := store.New(store.Options{
		ConfigDir:    cfg.Dictionary.Directory,
		DatabaseDir:  cfg.Dictionary.DatabaseDirectory,
		SyncInterval: cfg.Dictionary.Sync.Duration(),
		Bridge:       bridge,
	})
	if err := st.LoadDir(ctx); err != nil {
		return fmt.Errorf("failed to load dictionaries: %w", err)
	}
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dictionary sync: %w", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := st.Close(cctx); err != nil {
			logging.Error("Final dictionary sync failed", zap.Error(err))
		}
	}()

	logging.Info("Dictionaries loaded",
		zap.String("directory", cfg.Dictionary.Directory),
		zap.Int("count", len(st.Dictionaries())),
	)

	srv, err := server.New(cfg, st, bridge, access)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if cfg.Server.Publish.Enabled {
		pub, err := discovery.Publish(cfg.Server.Name, cfg.Server.Port)
		if err != nil {
			// The server is still reachable by address.
			logging.Warn("mDNS publication failed", zap.Error(err))
		} else {
			defer pub.Shutdown()
		}
	}

	return srv.Start(ctx)
}
