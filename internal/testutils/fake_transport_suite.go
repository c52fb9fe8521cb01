//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// FakeTransportSuite provides a reusable testify suite with a scripted transport
// and a virtual clock.
//
// Basic usage:
//
//	type MonitorSuite struct {
//	    testutils.FakeTransportSuite
//	}
//
//	func (s *MonitorSuite) SetupTest() {
//	    s.FakeTransportSuite.SetupTest()
//	    s.AddPeripheral(testutils.NewPeripheralBuilder().
//	        WithName("TNG SPO2").WithAddress("AA:BB:CC:DD:EE:01").
//	        WithVendorService().
//	        OnWrite(protocol.OpReadStatus, statusFrame))
//	}
//
// The transport, helper and clock are recreated before every test.
type FakeTransportSuite struct {
	suite.Suite

	Helper    *TestHelper
	Logger    *logrus.Logger
	Clock     *ManualScheduler
	Transport *FakeTransport

	// Timeout bounds Eventually-style waits for goroutine-delivered events.
	Timeout time.Duration
}

// SetupTest creates a fresh transport and clock for each test.
func (s *FakeTransportSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Clock = s.Helper.Clock
	s.Transport = NewFakeTransport()
	if s.Timeout == 0 {
		s.Timeout = 2 * time.Second
	}
	s.Logger.Debug("Fake transport ready")
}

// AddPeripheral builds b and registers it with the transport.
func (s *FakeTransportSuite) AddPeripheral(b *PeripheralBuilder) *FakePeripheral {
	p := b.Build()
	s.Transport.AddPeripheral(p)
	return p
}

// TearDownTest drops every link still up so watcher goroutines exit.
func (s *FakeTransportSuite) TearDownTest() {
	for _, l := range s.Transport.Links() {
		l.Drop()
	}
}
