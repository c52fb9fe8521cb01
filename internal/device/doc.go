// Package device defines the radio capability the monitoring session depends on.
//
// The package is deliberately small:
//   - Transport and Link abstract scan, connect, characteristic discovery,
//     notification subscription (CCCD write), writes and disconnect
//   - ConnectionError and its sentinels classify failures so callers can tell
//     precondition problems (radio off, access denied) from link failures
//   - Property mirrors the GATT characteristic property bit mask
//
// The go-ble binding lives in the go-ble subpackage; tests use the scripted
// transport from internal/testutils.
package device
