package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is not found on the peripheral
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	parentResource := "service"
	if e.Resource == "descriptor" {
		parentResource = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parentResource, e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth_off"
	AccessDenied     ConnectionState = "access_denied"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
	ErrAccessDenied     = &ConnectionError{State: AccessDenied}
)

// Operation errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// IsPrecondition reports whether err means the radio cannot be used right now
// (adapter powered off or access not granted). Such failures are retried later
// and never surface to the listener as errors.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrBluetoothOff) || errors.Is(err, ErrAccessDenied)
}

// Property is the GATT characteristic property bit mask (Core Spec Vol 3, Part G, 3.3.1.1).
type Property uint8

const (
	PropBroadcast Property = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

// Has reports whether all bits of q are set.
func (p Property) Has(q Property) bool {
	return p&q == q
}

// String renders the set bits as a comma separated list, e.g. "write,notify".
func (p Property) String() string {
	if p == 0 {
		return "none"
	}
	parts := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p&pn.p != 0 {
			parts = append(parts, pn.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseProperties parses a comma separated property list ("read,notify").
// Unknown names are reported as an error.
func ParseProperties(s string) (Property, error) {
	var p Property
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		found := false
		for _, pn := range propertyNames {
			if pn.name == part {
				p |= pn.p
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown characteristic property %q", part)
		}
	}
	return p, nil
}

// Advertisement is the subset of a scan result the session needs
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
}

// CharacteristicInfo describes a discovered characteristic
type CharacteristicInfo struct {
	Service    string
	UUID       string
	Properties Property
}

// Transport is the radio capability the session depends on. Implementations
// may block in any method; callers run them off the dispatch goroutine.
type Transport interface {
	// Ready checks the environmental preconditions (radio enabled, access granted).
	// It returns ErrBluetoothOff or ErrAccessDenied when scanning is impossible.
	Ready() error

	// Scan reports advertisements to handler until ctx is done.
	Scan(ctx context.Context, handler func(Advertisement)) error

	// Connect establishes a link to the peripheral at address.
	Connect(ctx context.Context, address string) (Link, error)
}

// Link is an established connection to a single peripheral
type Link interface {
	Address() string

	// Characteristics discovers the peripheral's GATT characteristics.
	Characteristics(ctx context.Context) ([]CharacteristicInfo, error)

	// Subscribe writes the Client Characteristic Configuration Descriptor enabling
	// notifications and routes notification payloads to handler. A nil error is the
	// descriptor-write acknowledgement.
	Subscribe(ctx context.Context, char CharacteristicInfo, handler func([]byte)) error

	// Write sends data to the characteristic.
	Write(ctx context.Context, char CharacteristicInfo, data []byte, withResponse bool) error

	// Disconnected is closed when the link goes down for any reason.
	Disconnected() <-chan struct{}

	// Disconnect releases the link. Calling it more than once is safe.
	Disconnect() error
}
