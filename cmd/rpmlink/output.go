package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/srg/rpmlink/internal/protocol"
	"github.com/srg/rpmlink/internal/session"
)

const eventTimeFormat = "15:04:05"

// validateChoice fails when value is not one of choices.
func validateChoice(flag, value string, choices ...string) error {
	for _, c := range choices {
		if value == c {
			return nil
		}
	}
	return fmt.Errorf("invalid %s '%s': must be one of %v", flag, value, choices)
}

// eventPrinter renders session events as text lines or JSON lines
type eventPrinter struct {
	out     io.Writer
	asJSON  bool
	muted   *color.Color
	status  *color.Color
	warning *color.Color
	reading *color.Color
}

// newEventPrinter creates a printer. colorMode is auto, always or never; auto
// colors only when out is a terminal.
func newEventPrinter(out io.Writer, format, colorMode string) *eventPrinter {
	p := &eventPrinter{
		out:     out,
		asJSON:  format == "json",
		muted:   color.New(color.Faint),
		status:  color.New(color.FgCyan),
		warning: color.New(color.FgYellow, color.Bold),
		reading: color.New(color.FgGreen, color.Bold),
	}
	enabled := colorMode == "always" || (colorMode == "auto" && isTerminal(out))
	for _, c := range []*color.Color{p.muted, p.status, p.warning, p.reading} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

type eventJSON struct {
	Time        time.Time             `json:"time"`
	Event       string                `json:"event"`
	Device      string                `json:"device,omitempty"`
	Address     string                `json:"address,omitempty"`
	Category    *protocol.Category    `json:"category,omitempty"`
	SessionID   string                `json:"session_id,omitempty"`
	Measurement *protocol.Measurement `json:"measurement,omitempty"`
}

// Print writes one event.
func (p *eventPrinter) Print(ev session.Event) error {
	if p.asJSON {
		out := eventJSON{
			Time:        ev.Time,
			Event:       ev.Type.String(),
			Device:      ev.Device,
			Address:     ev.Address,
			SessionID:   ev.SessionID,
			Measurement: ev.Measurement,
		}
		if ev.Category != protocol.CategoryUnknown {
			cat := ev.Category
			out.Category = &cat
		}
		return json.NewEncoder(p.out).Encode(out)
	}

	stamp := p.muted.Sprint(ev.Time.Format(eventTimeFormat))
	switch ev.Type {
	case session.EventBluetoothEnableRequested:
		_, err := fmt.Fprintf(p.out, "%s %s\n", stamp, p.warning.Sprint("Bluetooth is off, waiting for it to be turned on"))
		return err
	case session.EventPermissionRequested:
		_, err := fmt.Fprintf(p.out, "%s %s\n", stamp, p.warning.Sprint("Bluetooth access denied, waiting for permission"))
		return err
	case session.EventDataReceived:
		if _, err := fmt.Fprintf(p.out, "%s %s %s\n", stamp, p.reading.Sprint(ev.Type), describeDevice(ev)); err != nil {
			return err
		}
		if ev.Measurement == nil {
			return nil
		}
		for _, line := range ev.Measurement.Summary() {
			if _, err := fmt.Fprintf(p.out, "    %s\n", line); err != nil {
				return err
			}
		}
		return nil
	default:
		line := fmt.Sprintf("%s %s", stamp, p.status.Sprint(ev.Type))
		if d := describeDevice(ev); d != "" {
			line += " " + d
		}
		_, err := fmt.Fprintln(p.out, line)
		return err
	}
}

func describeDevice(ev session.Event) string {
	if ev.Device == "" && ev.Address == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(ev.Device)
	if ev.Address != "" {
		fmt.Fprintf(&b, " (%s)", ev.Address)
	}
	if ev.Category != protocol.CategoryUnknown {
		fmt.Fprintf(&b, " %s", ev.Category)
	}
	return strings.TrimSpace(b.String())
}
