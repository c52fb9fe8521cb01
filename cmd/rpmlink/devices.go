package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/rpmlink/internal/registry"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List supported devices",
	Long: `List the supported device table: catalog id, advertised name, category,
the read sequence sent after connecting and the command that powers the device off.

With --patterns, show the name-matching table instead, in evaluation order.
Configured aliases appear after the built-in names.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var (
	devicesFormat   string
	devicesPatterns bool
)

func init() {
	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "Output format (table, json)")
	devicesCmd.Flags().BoolVar(&devicesPatterns, "patterns", false, "Show the name-matching table")
}

func runDevices(cmd *cobra.Command, _ []string) error {
	if err := validateChoice("format", devicesFormat, "table", "json"); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "", cfg)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	reg := registry.New(cfg.RegistryOptions(logger))
	out := cmd.OutOrStdout()
	if devicesPatterns {
		return displayPatterns(out, reg.Entries(), devicesFormat)
	}
	return displayProfiles(out, reg.Profiles(), devicesFormat)
}

type profileJSON struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Category string   `json:"category"`
	Reads    []string `json:"reads"`
	Stop     string   `json:"stop"`
}

func readNames(p *registry.Profile) []string {
	names := make([]string, len(p.Reads))
	for i, c := range p.Reads {
		names[i] = c.Name
	}
	return names
}

func displayProfiles(out io.Writer, profiles []*registry.Profile, format string) error {
	if format == "json" {
		list := make([]profileJSON, 0, len(profiles))
		for _, p := range profiles {
			list = append(list, profileJSON{
				ID:       p.ID,
				Name:     p.Name,
				Label:    p.Label,
				Category: p.Category.String(),
				Reads:    readNames(p),
				Stop:     p.Stop.Name,
			})
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(list)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tCATEGORY\tREADS\tSTOP")
	for _, p := range profiles {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, p.Label, p.Category, strings.Join(readNames(p), ", "), p.Stop.Name)
	}
	return w.Flush()
}

func displayPatterns(out io.Writer, entries []registry.Entry, format string) error {
	if format == "json" {
		type patternJSON struct {
			Pattern  string `json:"pattern"`
			Device   string `json:"device"`
			Category string `json:"category"`
		}
		list := make([]patternJSON, 0, len(entries))
		for _, e := range entries {
			list = append(list, patternJSON{Pattern: e.Pattern, Device: e.Profile.Name, Category: e.Profile.Category.String()})
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(list)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATTERN\tDEVICE\tCATEGORY")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Pattern, e.Profile.Name, e.Profile.Category)
	}
	return w.Flush()
}
