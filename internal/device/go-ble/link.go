package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/rpmlink/internal/device"
	"github.com/srg/rpmlink/internal/groutine"
)

// link is a device.Link backed by a go-ble client
type link struct {
	client  ble.Client
	address string
	logger  *logrus.Logger

	mu    sync.Mutex
	chars map[string]*ble.Characteristic // keyed by service/char normalized UUIDs

	down     chan struct{}
	downOnce sync.Once
}

func newLink(client ble.Client, address string, logger *logrus.Logger) *link {
	l := &link{
		client:  client,
		address: address,
		logger:  logger,
		chars:   make(map[string]*ble.Characteristic),
		down:    make(chan struct{}),
	}

	// CoreBluetooth reports link loss through the client's Disconnected channel.
	if watched, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		if ch := watched.Disconnected(); ch != nil {
			groutine.Go(context.Background(), "ble-link-monitor", func(context.Context) {
				select {
				case <-ch:
					l.logger.WithField("address", address).Debug("BLE stack reported disconnection")
					l.markDown()
				case <-l.down:
				}
			})
		}
	}
	return l
}

var _ device.Link = (*link)(nil)

func charKey(service, uuid string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(uuid)
}

func (l *link) Address() string { return l.address }

func (l *link) Characteristics(ctx context.Context) ([]device.CharacteristicInfo, error) {
	var profile *ble.Profile
	err := call(ctx, "ble-discover-profile", func() (err error) {
		profile, err = l.client.DiscoverProfile(true)
		return err
	})
	if err != nil {
		return nil, NormalizeError(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	var out []device.CharacteristicInfo
	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			info := device.CharacteristicInfo{
				Service:    device.NormalizeUUID(svc.UUID.String()),
				UUID:       device.NormalizeUUID(c.UUID.String()),
				Properties: convertProperties(c.Property),
			}
			l.chars[charKey(info.Service, info.UUID)] = c
			out = append(out, info)
		}
	}
	l.logger.WithFields(logrus.Fields{
		"address":         l.address,
		"services":        len(profile.Services),
		"characteristics": len(out),
	}).Debug("Profile discovered")
	return out, nil
}

func (l *link) lookup(char device.CharacteristicInfo) (*ble.Characteristic, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.chars[charKey(char.Service, char.UUID)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{char.Service, char.UUID}}
	}
	return c, nil
}

// Subscribe enables notifications; go-ble writes the CCCD and returns once it is acknowledged.
func (l *link) Subscribe(ctx context.Context, char device.CharacteristicInfo, handler func([]byte)) error {
	c, err := l.lookup(char)
	if err != nil {
		return err
	}
	if c.CCCD == nil {
		return &device.NotFoundError{Resource: "descriptor", UUIDs: []string{char.UUID, device.CCCDUUID}}
	}
	return NormalizeError(call(ctx, "ble-subscribe", func() error {
		return l.client.Subscribe(c, false, func(data []byte) {
			handler(data)
		})
	}))
}

func (l *link) Write(ctx context.Context, char device.CharacteristicInfo, data []byte, withResponse bool) error {
	c, err := l.lookup(char)
	if err != nil {
		return err
	}
	return NormalizeError(call(ctx, "ble-write", func() error {
		return l.client.WriteCharacteristic(c, data, !withResponse)
	}))
}

func (l *link) Disconnected() <-chan struct{} {
	return l.down
}

func (l *link) Disconnect() error {
	select {
	case <-l.down:
		return nil
	default:
	}
	err := l.client.CancelConnection()
	l.markDown()
	if err != nil {
		l.logger.WithError(err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	l.logger.WithField("address", l.address).Info("BLE device disconnected")
	return nil
}

func (l *link) markDown() {
	l.downOnce.Do(func() { close(l.down) })
}

// call runs a go-ble operation that takes no context and gives up when ctx is
// done. The operation itself keeps running until the stack returns.
func call(ctx context.Context, name string, fn func() error) error {
	done := make(chan error, 1)
	groutine.Go(ctx, name, func(context.Context) {
		done <- fn()
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
