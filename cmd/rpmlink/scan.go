package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/rpmlink/internal/registry"
	"github.com/srg/rpmlink/internal/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for Bluetooth Low Energy peripherals in the vicinity and show which
of them are supported. Supported devices are listed first, strongest signal first.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanSupported bool
	scanAllowList []string
	scanBlockList []string
	scanWatch     bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanSupported, "supported", false, "Only show supported devices")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Print devices as they are discovered")
	scanCmd.Flags().Bool("verbose", false, "Enable debug logging")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if err := validateChoice("format", scanFormat, "table", "json"); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	transport := newTransport(logger)
	defer closeTransport(transport, logger)
	s := scanner.New(transport, registry.New(cfg.RegistryOptions(logger)), logger)

	opts := &scanner.Options{
		Duration:      scanDuration,
		SupportedOnly: scanSupported,
		AllowList:     scanAllowList,
		BlockList:     scanBlockList,
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nCtrl+C pressed, cancelling scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	out := cmd.OutOrStdout()
	stopWatch := func() {}
	if scanWatch {
		var watchers sync.WaitGroup
		watchCtx, cancelWatch := context.WithCancel(ctx)
		watchers.Add(1)
		go func() {
			defer watchers.Done()
			watchDiscoveries(watchCtx, s, out)
		}()
		stopWatch = func() {
			cancelWatch()
			watchers.Wait()
		}
	}

	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", scanDuration, "Processing results")
	if !scanWatch {
		progress.Start()
	}
	defer progress.Stop()

	entries, err := s.Scan(ctx, opts, progress.Callback())
	stopWatch()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}
	progress.Stop()

	if scanFormat == "json" {
		return displayEntriesJSON(out, entries)
	}
	return displayEntriesTable(out, entries, time.Now())
}

// watchDiscoveries prints one line per newly discovered peripheral until ctx is
// done, then flushes whatever is still buffered.
func watchDiscoveries(ctx context.Context, s *scanner.Scanner, out io.Writer) {
	show := func(ev scanner.Event) {
		if ev.Type == scanner.EventNew {
			fmt.Fprintf(out, "+ %s  %s  %d dBm  %s\n", displayName(ev.Entry.Name), ev.Entry.Address, ev.Entry.RSSI, entryKind(ev.Entry))
		}
	}
	for {
		select {
		case ev := <-s.Events():
			show(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-s.Events():
					show(ev)
				default:
					return
				}
			}
		}
	}
}

func displayName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	if len(name) > 20 {
		return name[:17] + "..."
	}
	return name
}

func entryKind(e scanner.Entry) string {
	if !e.Supported() {
		return "-"
	}
	return e.Profile.Category.String()
}

func displayEntriesTable(out io.Writer, entries []scanner.Entry, now time.Time) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No devices discovered")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tCATEGORY\tSEEN\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%d\t%s ago\n",
			displayName(e.Name), e.Address, e.RSSI, entryKind(e), e.Seen, now.Sub(e.LastSeen).Truncate(time.Second))
	}
	return w.Flush()
}

type entryJSON struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	RSSI      int       `json:"rssi"`
	Seen      int       `json:"seen"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Supported bool      `json:"supported"`
	Device    string    `json:"device,omitempty"`
	Category  string    `json:"category,omitempty"`
}

func displayEntriesJSON(out io.Writer, entries []scanner.Entry) error {
	list := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		j := entryJSON{
			Address:   e.Address,
			Name:      e.Name,
			RSSI:      e.RSSI,
			Seen:      e.Seen,
			FirstSeen: e.FirstSeen,
			LastSeen:  e.LastSeen,
			Supported: e.Supported(),
		}
		if e.Profile != nil {
			j.Device = e.Profile.Name
			j.Category = e.Profile.Category.String()
		}
		list = append(list, j)
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}
