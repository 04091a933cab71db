package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/muurk/dictserver/internal/device"
	"github.com/muurk/dictserver/internal/store"
	"github.com/muurk/dictserver/internal/ui"
)

var errCheckFailed = errors.New("dictionary check failed")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and every dictionary file",
	Long: `Load the configuration and install each .dpc file into a scratch store
without starting the server. Every file is tried, so one run reports all
broken dictionaries. Log databases are opened in a temporary directory and
the live databases are not touched.`,
	Example: `  dictserver check --config /etc/phidgets/dictserver.toml`,
	Args:    cobra.NoArgs,
	RunE:    runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&configPath, "config", DefaultConfigPath, "Path to the TOML configuration file")
	rootCmd.AddCommand(checkCmd)
}

// checkResult is the outcome for one dictionary file.
type checkResult struct {
	File string
	Err  error
}

// checkDir installs every .dpc file in dir into a scratch store.
func checkDir(ctx context.Context, dir string) ([]checkResult, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("dictionary directory: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.dpc"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	scratch, err := os.MkdirTemp("", "dictserver-check-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratch)

	bridge := device.NewLoopback(eventBuffer)
	defer bridge.Close()
	st := store.New(store.Options{ConfigDir: dir, DatabaseDir: scratch, Bridge: bridge})

	results := make([]checkResult, 0, len(files))
	for _, f := range files {
		results = append(results, checkResult{File: filepath.Base(f), Err: st.InstallFile(ctx, f)})
	}

	// Nothing was changed after install, so the final sync writes no files.
	if err := st.Close(ctx); err != nil {
		return results, err
	}
	return results, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(false)
	p.Out, p.Err = cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := loadConfig(cmd)
	if err != nil {
		p.Failure("Configuration invalid", err)
		return err
	}
	p.Header("check", "dictserver check", map[string]string{
		"Config":       configPath,
		"Dictionaries": cfg.Dictionary.Directory,
	})

	results, err := checkDir(cmd.Context(), cfg.Dictionary.Directory)
	if err != nil {
		p.Failure("Cannot read dictionaries", err)
		return err
	}

	failed := 0
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		state, detail := ui.SuccessMarker, ""
		if r.Err != nil {
			failed++
			state, detail = ui.FailureMarker, r.Err.Error()
		}
		rows = append(rows, []string{state, r.File, detail})
	}
	if len(rows) > 0 {
		p.Table([]string{"", "FILE", "ERROR"}, rows)
	}

	if failed > 0 {
		p.Failure(fmt.Sprintf("%d of %d dictionaries failed", failed, len(results)), errCheckFailed)
		return errCheckFailed
	}
	p.Success("Configuration valid", map[string]string{"Dictionaries": fmt.Sprint(len(results))})
	return nil
}
