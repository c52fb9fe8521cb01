package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/rpmlink/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDefaultDevice

// Transport implements device.Transport on top of go-ble. The host device is
// created lazily by Ready, so a radio that is switched on later is picked up by
// the next precondition check.
type Transport struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

var _ device.Transport = (*Transport)(nil)

// NewTransport creates a transport; no radio access happens until Ready.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

// Ready implements device.Transport.
func (t *Transport) Ready() error {
	_, err := t.device()
	return err
}

func (t *Transport) device() (ble.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		return t.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		err = NormalizeError(err)
		t.logger.WithError(err).Debug("BLE host device unavailable")
		return nil, err
	}
	t.dev = dev
	t.logger.Debug("BLE host device created")
	return dev, nil
}

// Scan implements device.Transport. Duplicates are reported so a peripheral that
// re-advertises after a failed attempt is seen again.
func (t *Transport) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	dev, err := t.device()
	if err != nil {
		return err
	}
	err = dev.Scan(ctx, true, func(adv ble.Advertisement) {
		handler(newAdvertisement(adv))
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return NormalizeError(err)
	}
	return nil
}

// Connect implements device.Transport.
func (t *Transport) Connect(ctx context.Context, address string) (device.Link, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	dev, err := t.device()
	if err != nil {
		return nil, err
	}

	t.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}
	t.logger.WithField("address", address).Info("BLE device connected")
	return newLink(client, address, t.logger), nil
}

// Close stops the host device.
func (t *Transport) Close() error {
	t.mu.Lock()
	dev := t.dev
	t.dev = nil
	t.mu.Unlock()
	if dev == nil {
		return nil
	}
	return dev.Stop()
}
