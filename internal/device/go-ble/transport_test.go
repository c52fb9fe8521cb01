package goble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/srg/rpmlink/internal/device"
)

// mockDevice implements the parts of ble.Device the transport uses
type mockDevice struct {
	ble.Device
	mock.Mock
}

func (m *mockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

func (m *mockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a.String())
	c, _ := args.Get(0).(ble.Client)
	return c, args.Error(1)
}

func (m *mockDevice) Stop() error {
	return m.Called().Error(0)
}

// mockClient implements the parts of ble.Client the link uses
type mockClient struct {
	ble.Client
	mock.Mock
	down chan struct{}
}

func (m *mockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	args := m.Called(c.UUID.String(), ind)
	if args.Error(0) == nil {
		h([]byte{0x51, 0x49})
	}
	return args.Error(0)
}

func (m *mockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c.UUID.String(), value, noRsp).Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockClient) Disconnected() <-chan struct{} {
	return m.down
}

// MockAdvertisement implements ble.Advertisement for testing
type MockAdvertisement struct {
	ble.Advertisement
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string { return m.Called().String(0) }
func (m *MockAdvertisement) RSSI() int         { return m.Called().Int(0) }
func (m *MockAdvertisement) Addr() ble.Addr    { return m.Called().Get(0).(ble.Addr) }

func withFactory(t *testing.T, f func() (ble.Device, error)) {
	t.Helper()
	orig := DeviceFactory
	DeviceFactory = f
	t.Cleanup(func() { DeviceFactory = orig })
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func vendorProfile() *ble.Profile {
	return &ble.Profile{Services: []*ble.Service{
		{
			UUID: ble.UUID16(0x1808),
			Characteristics: []*ble.Characteristic{
				{UUID: ble.UUID16(0x2a18), Property: ble.CharWrite | ble.CharNotify, CCCD: &ble.Descriptor{UUID: ble.UUID16(0x2902)}},
				{UUID: ble.UUID16(0x2a19), Property: ble.CharRead},
			},
		},
	}}
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"powered off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), device.ErrBluetoothOff},
		{"unauthorized", errors.New("central manager has invalid state: have=3 want=5"), device.ErrAccessDenied},
		{"already connected", errors.New("device already connected"), device.ErrAlreadyConnected},
		{"link lost", errors.New("peripheral disconnected"), device.ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.Contains(t, got.Error(), tt.err.Error(), "original message MUST be preserved")
		})
	}

	assert.NoError(t, NormalizeError(nil))
	other := errors.New("att: insufficient authentication")
	assert.Same(t, other, NormalizeError(other))
}

func TestTransport_ReadyRetriesFactory(t *testing.T) {
	dev := &mockDevice{}
	calls := 0
	withFactory(t, func() (ble.Device, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
		}
		return dev, nil
	})

	tr := NewTransport(quietLogger())
	assert.ErrorIs(t, tr.Ready(), device.ErrBluetoothOff)
	require.NoError(t, tr.Ready(), "second check MUST succeed once the radio is on")
	require.NoError(t, tr.Ready())
	assert.Equal(t, 2, calls, "host device MUST be cached after creation")
}

func TestTransport_ScanAdaptsAdvertisements(t *testing.T) {
	adv := &MockAdvertisement{}
	adv.On("LocalName").Return("TNG SPO2")
	adv.On("RSSI").Return(-48)
	adv.On("Addr").Return(ble.NewAddr("aa:bb:cc:dd:ee:01"))

	dev := &mockDevice{}
	dev.On("Scan", mock.Anything, true, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(2).(ble.AdvHandler)(adv)
		}).
		Return(context.Canceled)
	withFactory(t, func() (ble.Device, error) { return dev, nil })

	var seen []device.Advertisement
	err := NewTransport(quietLogger()).Scan(context.Background(), func(a device.Advertisement) {
		seen = append(seen, a)
	})
	require.NoError(t, err, "cancelled scan MUST end cleanly")
	require.Len(t, seen, 1)
	assert.Equal(t, "TNG SPO2", seen[0].LocalName())
	assert.Equal(t, -48, seen[0].RSSI())
	assert.Equal(t, "aa:bb:cc:dd:ee:01", seen[0].Addr())
	dev.AssertExpectations(t)
}

func TestTransport_ConnectAndLink(t *testing.T) {
	client := &mockClient{down: make(chan struct{})}
	client.On("DiscoverProfile", true).Return(vendorProfile(), nil)
	client.On("Subscribe", "2a18", false).Return(nil)
	client.On("WriteCharacteristic", "2a18", []byte{0x51, 0x49, 0, 0, 0, 0, 0xA3, 0x3D}, true).Return(nil)
	client.On("CancelConnection").Return(nil).Once()

	dev := &mockDevice{}
	dev.On("Dial", mock.Anything, "aa:bb:cc:dd:ee:01").Return(client, nil)
	withFactory(t, func() (ble.Device, error) { return dev, nil })

	ctx := context.Background()
	link, err := NewTransport(quietLogger()).Connect(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", link.Address())

	chars, err := link.Characteristics(ctx)
	require.NoError(t, err)
	require.Len(t, chars, 2)
	assert.Equal(t, device.CharacteristicInfo{Service: "1808", UUID: "2a18", Properties: device.PropWrite | device.PropNotify}, chars[0])
	assert.Equal(t, device.PropRead, chars[1].Properties)

	var got [][]byte
	require.NoError(t, link.Subscribe(ctx, chars[0], func(b []byte) { got = append(got, b) }))
	assert.Equal(t, [][]byte{{0x51, 0x49}}, got)

	err = link.Subscribe(ctx, chars[1], func([]byte) {})
	var nf *device.NotFoundError
	require.ErrorAs(t, err, &nf, "characteristic without CCCD MUST be rejected")
	assert.Equal(t, "descriptor", nf.Resource)

	require.NoError(t, link.Write(ctx, chars[0], []byte{0x51, 0x49, 0, 0, 0, 0, 0xA3, 0x3D}, false))

	err = link.Write(ctx, device.CharacteristicInfo{Service: "180f", UUID: "2a19"}, []byte{1}, false)
	assert.ErrorAs(t, err, &nf, "unknown characteristic MUST be reported")

	require.NoError(t, link.Disconnect())
	require.NoError(t, link.Disconnect(), "second disconnect MUST be a no-op")
	select {
	case <-link.Disconnected():
	default:
		t.Fatal("Disconnected MUST be closed after Disconnect")
	}
	client.AssertExpectations(t)
}

func TestLink_StackDisconnectionClosesChannel(t *testing.T) {
	client := &mockClient{down: make(chan struct{})}
	l := newLink(client, "aa:01", quietLogger())

	close(client.down)
	select {
	case <-l.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("stack disconnection MUST propagate")
	}
}

func TestTransport_ConnectFailure(t *testing.T) {
	dev := &mockDevice{}
	dev.On("Dial", mock.Anything, "aa:02").Return(nil, errors.New("connection timeout"))
	withFactory(t, func() (ble.Device, error) { return dev, nil })

	_, err := NewTransport(quietLogger()).Connect(context.Background(), "aa:02")
	assert.ErrorContains(t, err, "aa:02")

	_, err = NewTransport(quietLogger()).Connect(context.Background(), " ")
	assert.ErrorContains(t, err, "empty")
}

func TestCall_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	cancel()
	err := call(ctx, "blocked", func() error {
		<-release
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvertProperties(t *testing.T) {
	assert.Equal(t, device.Property(0x18), convertProperties(ble.CharWrite|ble.CharNotify))
	assert.Equal(t, device.PropRead|device.PropIndicate, convertProperties(ble.CharRead|ble.CharIndicate))
	assert.Equal(t, device.Property(0), convertProperties(0))
}
