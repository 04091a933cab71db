package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the server's dictionaries",
	Example: `  dictctl list
  dictctl list --json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var showCmd = &cobra.Command{
	Use:   "show <sn>",
	Short: "Show a dictionary's configuration",
	Long: `Print the configuration document of one dictionary as JSON: its label,
generation, config keys with their values and layout, and log keys.`,
	Example: `  dictctl show 7`,
	Args:    cobra.ExactArgs(1),
	RunE:    runShow,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	c, server, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	p := printer(cmd)
	p.Header("dictionaries", "dictctl list", map[string]string{"Server": server})

	dicts, err := c.Dictionaries(cmd.Context())
	if err != nil {
		return report(p, "Failed to list dictionaries", err)
	}

	if jsonOutput {
		out, err := json.MarshalIndent(dicts, "", "  ")
		if err != nil {
			return err
		}
		p.Raw(string(out))
		return nil
	}
	if len(dicts) == 0 {
		p.Warning("No dictionaries", map[string]string{"Server": server})
		return nil
	}

	rows := make([][]string, 0, len(dicts))
	for _, d := range dicts {
		rows = append(rows, []string{strconv.Itoa(d.Serial), d.Label, d.Generation})
	}
	p.Table([]string{"SN", "LABEL", "GENERATION"}, rows)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	sn, err := parseSerial(args[0])
	if err != nil {
		return err
	}
	c, server, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	p := printer(cmd)
	p.Header("dictionary", fmt.Sprintf("dictctl show %d", sn), map[string]string{"Server": server})

	doc, err := c.Dictionary(cmd.Context(), sn)
	if err != nil {
		return report(p, fmt.Sprintf("Failed to read dictionary %d", sn), err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		p.Raw(string(doc))
		return nil
	}
	p.Raw(buf.String())
	return nil
}
