package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/rpmlink/internal/journal"
	"github.com/srg/rpmlink/internal/protocol"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show journaled readings",
	Long: `Show readings stored in the measurement journal written by monitor.

--since and --until accept an RFC 3339 timestamp or a duration counted back
from now (24h, 90m).`,
	Example: `  rpmlink history --journal readings.cbor
  rpmlink history --category weight-scale --since 168h --format json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	historyJournal  string
	historyDevice   string
	historyCategory string
	historySession  string
	historySince    string
	historyUntil    string
	historyFormat   string
)

// nowFunc is the clock relative --since/--until values count back from
var nowFunc = time.Now

func init() {
	historyCmd.Flags().StringVarP(&historyJournal, "journal", "j", "", "Journal file (defaults to journal_path)")
	historyCmd.Flags().StringVar(&historyDevice, "device", "", "Only readings from devices whose name contains this")
	historyCmd.Flags().StringVar(&historyCategory, "category", "", "Only readings of this category")
	historyCmd.Flags().StringVar(&historySession, "session", "", "Only readings from this session id")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only readings received at or after this time")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "Only readings received before this time")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "table", "Output format (table, json)")
}

// parseWhen accepts RFC 3339 or a duration before now.
func parseWhen(flag, value string, now time.Time) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: want an RFC 3339 time or a duration", flag, value)
	}
	t := now.Add(-d)
	return &t, nil
}

func historyFilter(now time.Time) (journal.Filter, error) {
	f := journal.Filter{Device: historyDevice, SessionID: historySession}
	if historyCategory != "" {
		cat, err := protocol.ParseCategory(historyCategory)
		if err != nil {
			return f, err
		}
		f.Category = &cat
	}
	var err error
	if f.Since, err = parseWhen("since", historySince, now); err != nil {
		return f, err
	}
	if f.Until, err = parseWhen("until", historyUntil, now); err != nil {
		return f, err
	}
	return f, nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if err := validateChoice("format", historyFormat, "table", "json"); err != nil {
		return err
	}
	filter, err := historyFilter(nowFunc())
	if err != nil {
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

	path := historyJournal
	if path == "" {
		path = cfg.JournalPath
	}
	if path == "" {
		return errors.New("no journal configured: pass --journal or set journal_path")
	}
	cmd.SilenceUsage = true

	records, readErr := journal.ReadAll(path, filter)
	if readErr != nil && len(records) == 0 {
		return readErr
	}
	if readErr != nil {
		logger.WithError(readErr).Warn("Journal is damaged, showing readable records only")
	}

	out := cmd.OutOrStdout()
	if historyFormat == "json" {
		measurements := make([]protocol.Measurement, len(records))
		for i, r := range records {
			measurements[i] = r.Measurement
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(measurements); err != nil {
			return err
		}
		return readErr
	}
	if err := displayRecordsTable(out, records); err != nil {
		return err
	}
	return readErr
}

func displayRecordsTable(out io.Writer, records []journal.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No readings found")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECEIVED\tDEVICE\tCATEGORY\tREADING")
	for _, r := range records {
		m := r.Measurement
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			m.ReceivedAt.Local().Format("2006-01-02 15:04:05"), m.Device, m.Category, strings.Join(m.Summary(), ", "))
	}
	return w.Flush()
}
