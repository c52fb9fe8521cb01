package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/rpmlink/internal/device"
	"github.com/srg/rpmlink/internal/protocol"
	"github.com/srg/rpmlink/internal/session"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"nil", nil, ""},
		{"bluetooth off", fmt.Errorf("scan: %w", device.ErrBluetoothOff), "Bluetooth is turned off"},
		{"access denied with detail", &device.ConnectionError{State: device.AccessDenied, Msg: "have=3"}, "Bluetooth access was denied"},
		{"unsupported platform", fmt.Errorf("%w: linux", device.ErrUnsupported), "not supported on this platform"},
		{"timeout", fmt.Errorf("%w: no reading within 1m0s", device.ErrTimeout), "Timed out: timeout: no reading within 1m0s"},
		{"missing file", &fs.PathError{Op: "open", Path: "readings.cbor", Err: fs.ErrNotExist}, "File not found"},
		{"passthrough", errors.New("unknown device \"toaster\""), "unknown device \"toaster\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatUserError(tt.err)
			if tt.contains == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.contains)
		})
	}
}

func TestValidateChoice(t *testing.T) {
	assert.NoError(t, validateChoice("format", "json", "table", "json"))
	err := validateChoice("format", "xml", "table", "json")
	require.Error(t, err)
	assert.Equal(t, "invalid format 'xml': must be one of [table json]", err.Error())
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)

	got, err := parseWhen("since", "", now)
	require.NoError(t, err)
	assert.Nil(t, got, "empty value MUST mean no bound")

	got, err = parseWhen("since", "2025-01-01T08:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC), *got)

	got, err = parseWhen("since", "90m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-90*time.Minute), *got)

	_, err = parseWhen("until", "yesterday", now)
	assert.ErrorContains(t, err, `invalid --until "yesterday"`)
}

func TestProgressPrinter_Seconds(t *testing.T) {
	countdown := NewCountdownProgressPrinter(&bytes.Buffer{}, "Scanning", "Scanning", 10*time.Second)
	assert.Equal(t, 7, countdown.seconds(3300*time.Millisecond))
	assert.Equal(t, 6, countdown.seconds(3700*time.Millisecond))
	assert.Equal(t, 0, countdown.seconds(11*time.Second), "countdown MUST stop at zero")

	countUp := NewCountdownProgressPrinter(&bytes.Buffer{}, "Scanning", "Scanning", 0)
	assert.Equal(t, 3, countUp.seconds(3700*time.Millisecond))
}

func TestProgressPrinter_SilentWithoutTerminal(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewCountdownProgressPrinter(buf, "Scanning", "Scanning", time.Second, "Done")
	p.Start()
	p.Callback()("Done")
	p.Stop()
	assert.Empty(t, buf.String(), "nothing MUST be drawn on a non-terminal writer")
	assert.Panics(t, p.Start, "a printer MUST NOT be restarted")
}

func TestEventPrinter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	p := newEventPrinter(buf, "text", "never")
	at := time.Date(2025, 1, 1, 8, 30, 5, 0, time.UTC)
	spo2, pulse := 97, 75

	require.NoError(t, p.Print(session.Event{Type: session.EventScanStarted, Time: at}))
	require.NoError(t, p.Print(session.Event{Type: session.EventPermissionRequested, Time: at}))
	require.NoError(t, p.Print(session.Event{
		Type:     session.EventDataReceived,
		Device:   "TNG SPO2",
		Address:  "AA:BB:CC:DD:EE:01",
		Category: protocol.PulseOximeter,
		Time:     at,
		Measurement: &protocol.Measurement{
			Category: protocol.PulseOximeter,
			SpO2:     &spo2,
			Pulse:    &pulse,
		},
	}))

	assert.Equal(t, "08:30:05 scan-started\n"+
		"08:30:05 Bluetooth access denied, waiting for permission\n"+
		"08:30:05 data-received TNG SPO2 (AA:BB:CC:DD:EE:01) PULSE_OXIMETER\n"+
		"    SpO2: 97%\n"+
		"    Pulse: 75 bpm\n", buf.String())
}

func TestEventPrinter_ForcedColor(t *testing.T) {
	buf := &bytes.Buffer{}
	p := newEventPrinter(buf, "text", "always")
	require.NoError(t, p.Print(session.Event{Type: session.EventConnecting, Time: time.Unix(0, 0).UTC()}))
	assert.Contains(t, buf.String(), "\x1b[", "--color always MUST emit escape sequences")
	assert.Contains(t, buf.String(), "connecting")
}
