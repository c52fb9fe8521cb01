//go:build test

package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/srg/rpmlink/internal/device"
	"github.com/srg/rpmlink/internal/testutils"
)

// Test device addresses for consistent fake peripheral identification
const (
	TestDeviceAddress1 = "AA:BB:CC:DD:EE:01"
	TestDeviceAddress2 = "AA:BB:CC:DD:EE:02"
)

// CommandTestSuite extends FakeTransportSuite with command testing utilities.
// All cmd/rpmlink test suites should embed this instead of FakeTransportSuite.
type CommandTestSuite struct {
	testutils.FakeTransportSuite

	originalTransport func(*logrus.Logger) device.Transport
	lastStderr        string
}

// SetupTest points every command at the scripted transport and resets flags.
func (s *CommandTestSuite) SetupTest() {
	s.FakeTransportSuite.SetupTest()
	s.originalTransport = newTransport
	newTransport = func(*logrus.Logger) device.Transport { return s.Transport }
	resetFlags(rootCmd)
}

// TearDownTest restores the real transport factory.
func (s *CommandTestSuite) TearDownTest() {
	newTransport = s.originalTransport
	s.FakeTransportSuite.TearDownTest()
}

// resetFlags returns every flag of cmd and its children to its default value,
// so one test's flags never leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// ExecuteCommand runs rootCmd with args, returns stdout and error. Log output
// and interrupt notices are kept in lastStderr.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	s.lastStderr = errOut.String()
	return out.String(), err
}

// WriteFile creates a file with content in a per-test temp dir and returns its path.
func (s *CommandTestSuite) WriteFile(name, content string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644), "test file MUST be written")
	return path
}
