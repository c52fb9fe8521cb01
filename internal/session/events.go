package session

import (
	"time"

	"github.com/srg/rpmlink/internal/protocol"
)

// EventType enumerates the lifecycle notifications delivered to a Listener
type EventType int

const (
	EventScanStarted EventType = iota + 1
	EventDeviceFound
	EventConnecting
	EventConnected
	EventDataReceived
	EventDisconnected
	EventScanStopped
	EventUserCancelled
	EventBluetoothEnableRequested
	EventPermissionRequested
)

func (t EventType) String() string {
	switch t {
	case EventScanStarted:
		return "scan-started"
	case EventDeviceFound:
		return "device-found"
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventDataReceived:
		return "data-received"
	case EventDisconnected:
		return "disconnected"
	case EventScanStopped:
		return "scan-stopped"
	case EventUserCancelled:
		return "user-cancelled"
	case EventBluetoothEnableRequested:
		return "bluetooth-enable-requested"
	case EventPermissionRequested:
		return "permission-requested"
	default:
		return "unknown"
	}
}

// Event is a single lifecycle notification. Device fields are empty until a
// peripheral has been matched; Measurement is set only for EventDataReceived and
// is a private copy owned by the receiver.
type Event struct {
	Type        EventType
	Device      string
	Address     string
	Category    protocol.Category
	SessionID   string
	Measurement *protocol.Measurement
	Time        time.Time
}

// Listener receives session events. OnEvent runs on the session's dispatch
// goroutine and must not block.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(Event)

// OnEvent calls f(e).
func (f ListenerFunc) OnEvent(e Event) { f(e) }

type nopListener struct{}

func (nopListener) OnEvent(Event) {}
