package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/rpmlink/internal/device"
	"github.com/srg/rpmlink/internal/journal"
	"github.com/srg/rpmlink/internal/registry"
	"github.com/srg/rpmlink/internal/ringchan"
	"github.com/srg/rpmlink/internal/session"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Collect readings from supported devices",
	Long: `Scan for supported medical peripherals, connect to the first one found,
read its measurement, power it off and start scanning again.

Each finalized reading is printed and, when a journal is configured, appended
to it. Press Ctrl+C to stop.`,
	Example: `  rpmlink monitor
  rpmlink monitor --once --timeout 2m
  rpmlink monitor --journal readings.cbor --format json`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

const monitorEventBuffer = 64

var (
	monitorOnce    bool
	monitorTimeout time.Duration
	monitorJournal string
	monitorFormat  string
	monitorColor   string
)

func init() {
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "Exit after the first reading")
	monitorCmd.Flags().DurationVarP(&monitorTimeout, "timeout", "t", 0, "Give up after this long (0 waits forever)")
	monitorCmd.Flags().StringVarP(&monitorJournal, "journal", "j", "", "Append readings to this journal file (overrides journal_path)")
	monitorCmd.Flags().StringVarP(&monitorFormat, "format", "f", "text", "Output format (text, json)")
	monitorCmd.Flags().StringVar(&monitorColor, "color", "auto", "Colorize output (auto, always, never)")
	monitorCmd.Flags().Bool("verbose", false, "Enable debug logging")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	if err := validateChoice("format", monitorFormat, "text", "json"); err != nil {
		return err
	}
	if err := validateChoice("color", monitorColor, "auto", "always", "never"); err != nil {
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

	journalPath := cfg.JournalPath
	if monitorJournal != "" {
		journalPath = monitorJournal
	}
	var jw *journal.Writer
	if journalPath != "" {
		jw, err = journal.NewWriter(journalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer jw.Close()
	}

	transport := newTransport(logger)
	defer closeTransport(transport, logger)

	events := ringchan.New[session.Event](monitorEventBuffer)
	defer events.Close()

	sess, err := session.New(session.Options{
		Transport: transport,
		Registry:  registry.New(cfg.RegistryOptions(logger)),
		Listener: session.ListenerFunc(func(ev session.Event) {
			if events.Send(ev) {
				logger.Warn("Event consumer is behind, oldest event dropped")
			}
		}),
		Decoder:           cfg.Decoder(),
		Logger:            logger,
		PreconditionRetry: cfg.PreconditionRetry,
		RescanInterval:    cfg.RescanInterval,
		FinalizeLinger:    cfg.FinalizeLinger,
		ConnectTimeout:    cfg.ConnectTimeout,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if monitorTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, monitorTimeout)
		defer cancelTimeout()
	}

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nCtrl+C pressed, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	m := &monitor{
		printer: newEventPrinter(cmd.OutOrStdout(), monitorFormat, monitorColor),
		journal: jw,
		logger:  logger,
		once:    monitorOnce,
		done:    cancel,
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()
	sess.Start()

	for {
		select {
		case ev := <-events.C():
			if err := m.handle(ev); err != nil {
				cancel()
				<-runErr
				return err
			}
		case err := <-runErr:
			for {
				ev, ok := events.TryReceive()
				if !ok {
					break
				}
				if err := m.handle(ev); err != nil {
					return err
				}
			}
			return m.result(err)
		}
	}
}

// monitor consumes session events on the command goroutine
type monitor struct {
	printer  *eventPrinter
	journal  *journal.Writer
	logger   *logrus.Logger
	once     bool
	done     context.CancelFunc
	received int
}

func (m *monitor) handle(ev session.Event) error {
	if err := m.printer.Print(ev); err != nil {
		return err
	}
	switch ev.Type {
	case session.EventDataReceived:
		if ev.Measurement == nil {
			return nil
		}
		m.received++
		if m.journal != nil {
			rec := journal.Record{Address: ev.Address, Measurement: *ev.Measurement}
			if err := m.journal.Append(rec); err != nil {
				m.logger.WithError(err).Error("Failed to append reading to journal")
			}
		}
	case session.EventDisconnected:
		// The stop command has been written by now; the device can power off.
		if m.once && m.received > 0 {
			m.done()
		}
	}
	return nil
}

func (m *monitor) result(runErr error) error {
	switch {
	case m.once && m.received > 0:
		return nil
	case errors.Is(runErr, context.DeadlineExceeded):
		if m.received > 0 {
			return nil
		}
		return fmt.Errorf("%w: no reading within %s", device.ErrTimeout, monitorTimeout)
	default:
		return runErr
	}
}
