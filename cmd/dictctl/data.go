package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/dictserver/internal/client"
	"github.com/muurk/dictserver/internal/ui"
)

// Data query flags
var (
	dataGen      string
	dataStartID  int64
	dataEndID    int64
	dataStart    string
	dataEnd      string
	dataKey      string
	dataInterval int
	dataCSV      bool
)

var dataCmd = &cobra.Command{
	Use:   "data <sn>",
	Short: "Print logged values of a dictionary",
	Long: `Query the change log of a dictionary.

Rows can be filtered by generation, id range, date range and key. With
--interval the server keeps at most one row per key for every interval
seconds. Dates use the server's format, e.g. "2026-01-31 12:00:00".`,
	Example: `  # Everything logged for dictionary 7
  dictctl data 7

  # One key, thinned to a row per minute, as CSV
  dictctl data 7 --key temperature --interval 60 --csv > temp.csv

  # Rows after id 1000
  dictctl data 7 --start-id 1000 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runData,
}

func addQueryFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&dataGen, "gen", "", "Only rows of this generation")
	f.Int64Var(&dataStartID, "start-id", 0, "Only rows with id >= start-id")
	f.Int64Var(&dataEndID, "end-id", 0, "Only rows with id <= end-id")
	f.StringVar(&dataStart, "start", "", "Only rows at or after this time")
	f.StringVar(&dataEnd, "end", "", "Only rows at or before this time")
	f.StringVar(&dataKey, "key", "", "Only rows of this key")
	f.IntVar(&dataInterval, "interval", 0, "Minimum seconds between rows of a key")
}

func init() {
	addQueryFlags(dataCmd)
	dataCmd.Flags().BoolVar(&dataCSV, "csv", false, "Print CSV as produced by the server")
	rootCmd.AddCommand(dataCmd)
}

// buildQuery maps the flags that were set onto a client query.
func buildQuery(cmd *cobra.Command) client.Query {
	q := client.Query{
		Gen:       dataGen,
		StartDate: dataStart,
		EndDate:   dataEnd,
		Key:       dataKey,
		Interval:  dataInterval,
	}
	if cmd.Flags().Changed("start-id") {
		q.StartID = &dataStartID
	}
	if cmd.Flags().Changed("end-id") {
		q.EndID = &dataEndID
	}
	return q
}

func rowCells(r client.Row) []string {
	return []string{strconv.FormatInt(r.ID, 10), r.Gen, r.Time, r.Key, r.Val}
}

var rowColumns = []string{"ID", "GEN", "TIME", "KEY", "VALUE"}

func runData(cmd *cobra.Command, args []string) error {
	sn, err := parseSerial(args[0])
	if err != nil {
		return err
	}
	c, server, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	q := buildQuery(cmd)
	ctx := cmd.Context()

	if dataCSV {
		if err := c.DataCSV(ctx, sn, q, cmd.OutOrStdout()); err != nil {
			return report(printer(cmd), "Data query failed", err)
		}
		return nil
	}

	p := printer(cmd)
	params := map[string]string{"Server": server}
	if q.Key != "" {
		params["Key"] = q.Key
	}
	if q.Interval > 0 {
		params["Interval"] = fmt.Sprintf("%ds", q.Interval)
	}
	p.Header("data", fmt.Sprintf("dictctl data %d", sn), params)

	res, err := c.Data(ctx, sn, q)
	if err != nil {
		return report(p, "Data query failed", err)
	}
	if jsonOutput {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		p.Raw(string(out))
		return nil
	}

	rows := make([][]string, 0, len(res.Data))
	for _, r := range res.Data {
		rows = append(rows, rowCells(r))
	}
	p.Table(rowColumns, rows)
	p.Success(fmt.Sprintf("%d record(s)", res.Records), nil)
	return nil
}

// Watch flags
var (
	watchEvery time.Duration
	watchRows  int
)

var watchCmd = &cobra.Command{
	Use:   "watch [sn]",
	Short: "Follow dictionaries or logged data in a live view",
	Long: `Open a terminal dashboard that refreshes on an interval.

Without an argument the dashboard lists the server's dictionaries. With a
serial number it shows the newest logged rows of that dictionary. The data
flags of 'dictctl data' narrow the rows.`,
	Example: `  dictctl watch
  dictctl watch 7 --key temperature --every 2s`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	addQueryFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchEvery, "every", 2*time.Second, "Refresh interval")
	watchCmd.Flags().IntVar(&watchRows, "rows", 50, "Newest rows to keep in view")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, _, err := newClient(cmd.Context())
	if err != nil {
		return err
	}

	var model ui.WatchModel
	if len(args) == 0 {
		model = ui.NewWatchModel("dictionaries", watchEvery, dictionariesSource(c))
	} else {
		sn, err := parseSerial(args[0])
		if err != nil {
			return err
		}
		model = ui.NewWatchModel(fmt.Sprintf("dictionary %d", sn), watchEvery, dataSource(c, sn, buildQuery(cmd), watchRows))
	}
	return ui.RunWatch(cmd.Context(), model)
}

func dictionariesSource(c *client.Client) ui.FetchFunc {
	return func(ctx context.Context) (ui.Snapshot, error) {
		dicts, err := c.Dictionaries(ctx)
		if err != nil {
			return ui.Snapshot{}, fmt.Errorf("%s", client.GetShortErrorMessage(err))
		}
		snap := ui.Snapshot{Columns: []string{"SN", "LABEL", "GENERATION"}}
		for _, d := range dicts {
			snap.Rows = append(snap.Rows, []string{strconv.Itoa(d.Serial), d.Label, d.Generation})
		}
		return snap, nil
	}
}

// dataSource fetches only rows newer than the last one seen and keeps the
// newest limit rows, newest first.
func dataSource(c *client.Client, sn int, q client.Query, limit int) ui.FetchFunc {
	var kept []client.Row
	return func(ctx context.Context) (ui.Snapshot, error) {
		next := q
		if len(kept) > 0 {
			after := kept[0].ID + 1
			next.StartID = &after
		}
		res, err := c.Data(ctx, sn, next)
		if err != nil {
			return ui.Snapshot{}, fmt.Errorf("%s", client.GetShortErrorMessage(err))
		}
		kept = mergeNewest(kept, res.Data, limit)

		snap := ui.Snapshot{Columns: rowColumns}
		for _, r := range kept {
			snap.Rows = append(snap.Rows, rowCells(r))
		}
		return snap, nil
	}
}

// mergeNewest prepends fresh (ascending by id) to kept (descending) and
// truncates to limit.
func mergeNewest(kept, fresh []client.Row, limit int) []client.Row {
	out := make([]client.Row, 0, len(kept)+len(fresh))
	for i := len(fresh) - 1; i >= 0; i-- {
		out = append(out, fresh[i])
	}
	out = append(out, kept...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
