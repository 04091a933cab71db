package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/dictserver/internal/client"
	"github.com/muurk/dictserver/internal/ui"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a dictionary or a key",
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change a dictionary or a key",
}

var removeCmd = &cobra.Command{
	Use:     "remove",
	Aliases: []string{"rm"},
	Short:   "Remove a dictionary or a key",
}

// Add dictionary flags
var (
	addSerial    int
	addGen       string
	addDisabled  bool
	addConfigAdd bool
)

var addDictionaryCmd = &cobra.Command{
	Use:   "dictionary <label>",
	Short: "Create a dictionary",
	Long: `Create a dictionary and its .dpc file on the server. Without --sn the
server assigns the next free serial number.`,
	Example: `  dictctl add dictionary Kitchen
  dictctl add dictionary Garage --sn 12 --gen v2 --configadd`,
	Args: cobra.ExactArgs(1),
	RunE: runAddDictionary,
}

var addKeyCmd = &cobra.Command{
	Use:     "key <sn> <key> <value>",
	Short:   "Add a config key",
	Example: `  dictctl add key 7 mode manual`,
	Args:    cobra.ExactArgs(3),
	RunE:    runAddKey,
}

// Update flags. Only flags given on the command line are sent.
var (
	updEnabled   bool
	updLabel     string
	updGen       string
	updConfigAdd bool

	updValue    string
	updUpdate   bool
	updRemove   bool
	updType     string
	updReadonly bool
	updOrder    int
	updDest     string
	updClass    string
	updKeyLabel string
)

var updateDictionaryCmd = &cobra.Command{
	Use:     "dictionary <sn>",
	Short:   "Change dictionary settings",
	Example: `  dictctl update dictionary 7 --label "Back kitchen" --enabled=false`,
	Args:    cobra.ExactArgs(1),
	RunE:    runUpdateDictionary,
}

var updateKeyCmd = &cobra.Command{
	Use:   "key <sn> <key>",
	Short: "Change a config key",
	Long: `Change a config key's value, its sync flags or its layout.

A layout update replaces the whole layout block, so give every --type,
--readonly, --order, --dest, --class and --layout-label value the key should
keep. An update without --type removes the layout.`,
	Example: `  dictctl update key 7 mode --value auto
  dictctl update key 7 mode --remove=true
  dictctl update key 7 mode --value auto --type select --order 2 --layout-label Mode`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdateKey,
}

var removeYes bool

var removeDictionaryCmd = &cobra.Command{
	Use:     "dictionary <sn>",
	Short:   "Remove a dictionary",
	Example: `  dictctl remove dictionary 7 --yes`,
	Args:    cobra.ExactArgs(1),
	RunE:    runRemoveDictionary,
}

var removeKeyCmd = &cobra.Command{
	Use:     "key <sn> <key>",
	Short:   "Remove a config key",
	Example: `  dictctl remove key 7 mode`,
	Args:    cobra.ExactArgs(2),
	RunE:    runRemoveKey,
}

func init() {
	f := addDictionaryCmd.Flags()
	f.IntVar(&addSerial, "sn", 0, "Serial number (default: next free)")
	f.StringVar(&addGen, "gen", "", "Generation (default: server default)")
	f.BoolVar(&addDisabled, "disabled", false, "Create the dictionary disabled")
	f.BoolVar(&addConfigAdd, "configadd", false, "Add keys created on the device to the config file")

	f = updateDictionaryCmd.Flags()
	f.BoolVar(&updEnabled, "enabled", true, "Enable or disable the dictionary")
	f.StringVar(&updLabel, "label", "", "New label")
	f.StringVar(&updGen, "gen", "", "New generation")
	f.BoolVar(&updConfigAdd, "configadd", false, "Add keys created on the device to the config file")

	f = updateKeyCmd.Flags()
	f.StringVar(&updValue, "value", "", "New value")
	f.BoolVar(&updUpdate, "update", true, "Write device changes of this key back to the file")
	f.BoolVar(&updRemove, "remove", false, "Drop the key from the file when the device removes it")
	f.StringVar(&updType, "type", "", "Layout type")
	f.BoolVar(&updReadonly, "readonly", false, "Layout read-only flag")
	f.IntVar(&updOrder, "order", 0, "Layout order")
	f.StringVar(&updDest, "dest", "", "Layout destination")
	f.StringVar(&updClass, "class", "", "Layout class")
	f.StringVar(&updKeyLabel, "layout-label", "", "Layout label")

	removeDictionaryCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "Do not ask for confirmation")

	addCmd.AddCommand(addDictionaryCmd, addKeyCmd)
	updateCmd.AddCommand(updateDictionaryCmd, updateKeyCmd)
	removeCmd.AddCommand(removeDictionaryCmd, removeKeyCmd)
	rootCmd.AddCommand(addCmd, updateCmd, removeCmd)
}

func runAddDictionary(cmd *cobra.Command, args []string) error {
	c, server, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	p := printer(cmd)
	nd := client.NewDictionary{
		Serial:     addSerial,
		Label:      args[0],
		Generation: addGen,
		Disabled:   addDisabled,
		ConfigAdd:  addConfigAdd,
	}
	if err := c.AddDictionary(cmd.Context(), nd); err != nil {
		return report(p, "Failed to create dictionary", err)
	}

	details := map[string]string{"Label": nd.Label, "Server": server}
	if nd.Serial > 0 {
		details["Serial"] = strconv.Itoa(nd.Serial)
	} else if sn, ok := findSerial(cmd, c, nd.Label); ok {
		details["Serial"] = strconv.Itoa(sn)
	}
	p.Success("Dictionary created", details)
	return nil
}

// findSerial looks up the serial assigned to the newest dictionary with
// label. The web API does not echo it.
func findSerial(cmd *cobra.Command, c *client.Client, label string) (int, bool) {
	dicts, err := c.Dictionaries(cmd.Context())
	if err != nil {
		return 0, false
	}
	best := 0
	for _, d := range dicts {
		if d.Label == label && d.Serial > best {
			best = d.Serial
		}
	}
	return best, best > 0
}

func runAddKey(cmd *cobra.Command, args []string) error {
	sn, err := parseSerial(args[0])
	if err != nil {
		return err
	}
	c, _, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	p := printer(cmd)
	if err := c.AddKey(cmd.Context(), sn, args[1], args[2]); err != nil {
		return report(p, "Failed to add key", err)
	}
	p.Success("Key added", map[string]string{
		"Dictionary": strconv.Itoa(sn),
		"Key":        args[1],
		"Value":      args[2],
	})
	return nil
}

// changed collects the flags set on the command line into form fields.
func changed(cmd *cobra.Command, fields map[string]string) url.Values {
	v := url.Values{}
	for flag, field := range fields {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			v.Set(field, f.Value.String())
		}
	}
	return v
}

func runUpdateDictionary(cmd *cobra.Command, args []string) error {
	sn, err := parseSerial(args[0])
	if err != nil {
		return err
	}
	fields := changed(cmd, map[string]string{
		"enabled":   "enabled",
		"label":     "label",
		"gen":       "generation",
		"configadd": "configadd",
	})
	if len(fields) == 0 {
		return fmt.Errorf("nothing to change: give at least one of --enabled, --label, --gen, --configadd")
	}

	c, _, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	p := printer(cmd)
	if err := c.UpdateDictionary(cmd.Context(), sn, fields); err != nil {
		return report(p, "Failed to update dictionary", err)
	}
	p.Success("Dictionary updated", summary(fields, "Dictionary", strconv.Itoa(sn)))
	return nil
}

func runUpdateKey(cmd *cobra.Command, args []string) error {
	sn, err := parseSerial(args[0])
	if err != nil {
		return err
	}
	fields := changed(cmd, map[string]string{
		"value":        "value",
		"update":       "update",
		"remove":       "remove",
		"type":         "cfg_type",
		"readonly":     "cfg_readonly",
		"order":        "cfg_order",
		"dest":         "cfg_dest",
		"class":        "cfg_class",
		"layout-label": "cfg_label",
	})
	if len(fields) == 0 {
		return fmt.Errorf("nothing to change: give --value, a sync flag or layout flags")
	}

	c, _, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	p := printer(cmd)
	if err := c.UpdateKey(cmd.Context(), sn, args[1], fields); err != nil {
		return report(p, "Failed to update key", err)
	}
	p.Success("Key updated", summary(fields, "Key", args[1]))
	return nil
}

func summary(fields url.Values, name, value string) map[string]string {
	out := map[string]string{name: value}
	for k := range fields {
		out[k] = fields.Get(k)
	}
	return out
}

func runRemoveDictionary(cmd *cobra.Command, args []string) error {
	sn, err := parseSerial(args[0])
	if err != nil {
		return err
	}
	c, _, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	p := printer(cmd)

	if !removeYes {
		label := ""
		if dicts, err := c.Dictionaries(cmd.Context()); err == nil {
			for _, d := range dicts {
				if d.Serial == sn {
					label = d.Label
				}
			}
		}
		if !ui.ConfirmRemoveDictionary(cmd.InOrStdin(), cmd.ErrOrStderr(), int64(sn), label) {
			return nil
		}
	}

	if err := c.RemoveDictionary(cmd.Context(), sn); err != nil {
		return report(p, "Failed to remove dictionary", err)
	}
	p.Success("Dictionary removed", map[string]string{"Dictionary": strconv.Itoa(sn)})
	return nil
}

func runRemoveKey(cmd *cobra.Command, args []string) error {
	sn, err := parseSerial(args[0])
	if err != nil {
		return err
	}
	c, _, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	p := printer(cmd)
	if err := c.RemoveKey(cmd.Context(), sn, args[1]); err != nil {
		return report(p, "Failed to remove key", err)
	}
	p.Success("Key removed", map[string]string{
		"Dictionary": strconv.Itoa(sn),
		"Key":        args[1],
	})
	return nil
}
