package goble

import (
	"fmt"
	"strings"

	"github.com/srg/rpmlink/internal/device"
)

// NormalizeError maps known go-ble error strings to ConnectionError sentinels.
// The original error is wrapped so its message survives in logs.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	// CoreBluetooth: CBManagerStatePoweredOff = 4, CBManagerStateUnauthorized = 3
	case strings.Contains(msg, "have=4"), strings.Contains(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case strings.Contains(msg, "have=3"), strings.Contains(msg, "unauthorized"):
		return fmt.Errorf("%w: %v", device.ErrAccessDenied, err)
	case strings.Contains(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	case strings.Contains(msg, "device not connected"), strings.Contains(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	default:
		return err
	}
}
