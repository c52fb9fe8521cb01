package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/srg/rpmlink/internal/device"
	"github.com/srg/rpmlink/internal/journal"
)

// FormatUserError turns transport and command errors into actionable messages.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case device.IsConnectionState(err, device.BluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case device.IsConnectionState(err, device.AccessDenied):
		return "Bluetooth access was denied. Allow this terminal to use Bluetooth in the system privacy settings."
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("Bluetooth is not supported on this platform (%v)", err)
	case errors.Is(err, device.ErrTimeout):
		return fmt.Sprintf("Timed out: %v", err)
	case errors.Is(err, journal.ErrClosed):
		return "The measurement journal was closed while writing"
	case errors.Is(err, os.ErrNotExist):
		return fmt.Sprintf("File not found: %v", err)
	default:
		return err.Error()
	}
}
