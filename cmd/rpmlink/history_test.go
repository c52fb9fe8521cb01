//go:build test

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/rpmlink/internal/journal"
	"github.com/srg/rpmlink/internal/protocol"
	"github.com/srg/rpmlink/internal/testutils"
)

// HistorySuite covers reading the measurement journal
type HistorySuite struct {
	CommandTestSuite
	path        string
	originalNow func() time.Time
}

func TestHistorySuite(t *testing.T) {
	suite.Run(t, new(HistorySuite))
}

func (s *HistorySuite) SetupTest() {
	s.CommandTestSuite.SetupTest()
	s.originalNow = nowFunc
	nowFunc = func() time.Time { return time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC) }

	s.path = filepath.Join(s.T().TempDir(), "readings.cbor")
	w, err := journal.NewWriter(s.path)
	s.Require().NoError(err, "journal MUST open")
	defer w.Close()

	spo2, pulse := 97, 75
	weight, bmi := 71.5, 23.0
	sys, dia, bpPulse := 120.0, 80.0, 72
	for _, rec := range []journal.Record{
		{Address: "AA:BB:CC:DD:EE:01", Measurement: protocol.Measurement{
			Device: "TNG SPO2", Category: protocol.PulseOximeter, SessionID: "s-1",
			ReceivedAt: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC), SpO2: &spo2, Pulse: &pulse,
		}},
		{Address: "AA:BB:CC:DD:EE:03", Measurement: protocol.Measurement{
			Device: "TNG SCALE", Category: protocol.WeightScale, SessionID: "s-2",
			ReceivedAt: time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC), Weight: &weight, BMI: &bmi,
		}},
		{Address: "AA:BB:CC:DD:EE:04", Measurement: protocol.Measurement{
			Device: "FORA P20", Category: protocol.BPMonitor, SessionID: "s-3",
			ReceivedAt: time.Date(2025, 1, 3, 8, 0, 0, 0, time.UTC), Systolic: &sys, Diastolic: &dia, Pulse: &bpPulse,
		}},
	} {
		s.Require().NoError(w.Append(rec), "append MUST succeed")
	}
}

func (s *HistorySuite) TearDownTest() {
	nowFunc = s.originalNow
	s.CommandTestSuite.TearDownTest()
}

// GOAL: Verify the table shows every reading with its summary
//
// TEST SCENARIO: No filter → three rows in journal order
func (s *HistorySuite) TestHistory_Table() {
	out, err := s.ExecuteCommand("history", "--journal", s.path)
	s.Require().NoError(err)

	s.Contains(out, "RECEIVED")
	s.Contains(out, "TNG SPO2")
	s.Contains(out, "SpO2: 97%, Pulse: 75 bpm")
	s.Contains(out, "Weight: 71.5 kg, BMI: 23")
	s.Contains(out, "Systolic: 120 mmHg, Diastolic: 80 mmHg, Pulse: 72 bpm")
}

// GOAL: Verify filters narrow the result
//
// TEST SCENARIO: Each filter flag → only the matching readings, as JSON
func (s *HistorySuite) TestHistory_Filters() {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{
			name:     "category",
			args:     []string{"--category", "weight-scale"},
			expected: `[{"device": "TNG SCALE", "category": "WEIGHT_SCALE", "weight_kg": 71.5, "bmi": 23}]`,
		},
		{
			name:     "device substring and absolute since",
			args:     []string{"--device", "tng", "--since", "2025-01-01T12:00:00Z"},
			expected: `[{"device": "TNG SCALE"}]`,
		},
		{
			name:     "relative since",
			args:     []string{"--since", "36h"},
			expected: `[{"device": "TNG SCALE"}, {"device": "FORA P20"}]`,
		},
		{
			name:     "until is exclusive",
			args:     []string{"--until", "2025-01-02T08:00:00Z"},
			expected: `[{"device": "TNG SPO2", "spo2": 97, "pulse": 75}]`,
		},
		{
			name:     "session",
			args:     []string{"--session", "s-3"},
			expected: `[{"device": "FORA P20", "session_id": "s-3", "systolic": 120}]`,
		},
		{
			name:     "no match",
			args:     []string{"--device", "glucose"},
			expected: `[]`,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resetFlags(rootCmd)
			args := append([]string{"history", "--journal", s.path, "--format", "json"}, tt.args...)
			out, err := s.ExecuteCommand(args...)
			s.Require().NoError(err)
			testutils.NewJSONAsserter(s.T()).Assert(out, tt.expected)
		})
	}
}

// GOAL: Verify the journal path falls back to the config file
//
// TEST SCENARIO: journal_path in config, no --journal → readings shown
func (s *HistorySuite) TestHistory_JournalFromConfig() {
	cfg := s.WriteFile("rpmlink.yaml", "journal_path: "+s.path+"\n")

	out, err := s.ExecuteCommand("history", "--config", cfg, "--category", "bp-monitor")
	s.Require().NoError(err)
	s.Contains(out, "FORA P20")
	s.NotContains(out, "TNG SPO2")
}

// GOAL: Verify a damaged tail keeps the readable records visible
//
// TEST SCENARIO: Garbage appended after valid records → rows printed AND error returned
func (s *HistorySuite) TestHistory_DamagedJournal() {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	s.Require().NoError(err)
	_, err = f.Write([]byte{0xff, 0x00, 0x13})
	s.Require().NoError(err)
	s.Require().NoError(f.Close())

	out, err := s.ExecuteCommand("history", "--journal", s.path)
	s.Error(err, "corruption MUST be reported")
	s.Contains(out, "FORA P20", "records before the damage MUST still be shown")
}

// GOAL: Verify argument errors
//
// TEST SCENARIO: No journal, bad category, bad time, missing file → errors
func (s *HistorySuite) TestHistory_InvalidInput() {
	_, err := s.ExecuteCommand("history")
	s.Require().Error(err)
	s.Contains(err.Error(), "no journal configured")

	resetFlags(rootCmd)
	_, err = s.ExecuteCommand("history", "--journal", s.path, "--category", "thermometer")
	s.Require().Error(err)
	s.Contains(err.Error(), "unknown device category")

	resetFlags(rootCmd)
	_, err = s.ExecuteCommand("history", "--journal", s.path, "--since", "last week")
	s.Require().Error(err)
	s.Contains(err.Error(), `invalid --since "last week"`)

	resetFlags(rootCmd)
	_, err = s.ExecuteCommand("history", "--journal", filepath.Join(s.T().TempDir(), "missing.cbor"))
	s.Require().Error(err)
	s.ErrorIs(err, os.ErrNotExist)
}
