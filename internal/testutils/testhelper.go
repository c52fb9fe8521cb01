package testutils

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/rpmlink/internal/protocol"
)

// TestHelper bundles the per-test logger and clock shared by fakes.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Clock  *ManualScheduler

	logs *bytes.Buffer
}

// NewTestHelper creates a helper whose logger writes into an in-memory buffer at
// debug level, so failing tests can dump the execution trace.
func NewTestHelper(t *testing.T) *TestHelper {
	logs := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(logs)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	h := &TestHelper{
		T:      t,
		Logger: logger,
		Clock:  NewManualScheduler(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)),
		logs:   logs,
	}
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("captured log:\n%s", h.logs.String())
		}
	})
	return h
}

// Logs returns everything logged so far.
func (h *TestHelper) Logs() string {
	return h.logs.String()
}

// MustHex parses a hex string into bytes and fails the test on error.
func (h *TestHelper) MustHex(s string) []byte {
	h.T.Helper()
	b, err := protocol.ParseHex(s)
	if err != nil {
		h.T.Fatalf("invalid hex %q: %v", s, err)
	}
	return b
}
