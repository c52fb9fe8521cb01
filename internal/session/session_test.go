package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/rpmlink/internal/device"
	"github.com/srg/rpmlink/internal/protocol"
	"github.com/srg/rpmlink/internal/registry"
	"github.com/srg/rpmlink/internal/testutils"
)

func TestNew_RequiresTransportAndRegistry(t *testing.T) {
	_, err := New(Options{Registry: registry.Default()})
	assert.ErrorContains(t, err, "transport is required")

	_, err = New(Options{Transport: testutils.NewFakeTransport()})
	assert.ErrorContains(t, err, "registry is required")

	s, err := New(Options{Transport: testutils.NewFakeTransport(), Registry: registry.Default()})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, DefaultFinalizeLinger, s.finalizeLinger)
	assert.Equal(t, protocol.DefaultDecoder, s.decoder)
}

func TestSelectNotifyCharacteristic(t *testing.T) {
	tests := []struct {
		name   string
		chars  []device.CharacteristicInfo
		want   string
		wantOK bool
	}{
		{
			name:  "vendor mask 0x18",
			chars: []device.CharacteristicInfo{{UUID: "2a18", Properties: 0x18}},
			want:  "2a18", wantOK: true,
		},
		{
			name: "first qualifying wins",
			chars: []device.CharacteristicInfo{
				{UUID: "2a19", Properties: device.PropRead | device.PropNotify},
				{UUID: "fff1", Properties: device.PropWriteWithoutResponse | device.PropNotify},
				{UUID: "fff2", Properties: device.PropWrite | device.PropNotify},
			},
			want: "fff1", wantOK: true,
		},
		{
			name:  "notify only",
			chars: []device.CharacteristicInfo{{UUID: "2a37", Properties: device.PropNotify}},
		},
		{
			name: "empty table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectNotifyCharacteristic(tt.chars)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got.UUID)
		})
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := newQueue()
	var order []int
	for i := 0; i < 3; i++ {
		q.push(func() { order = append(order, i) })
	}

	select {
	case <-q.ready():
	default:
		t.Fatal("push MUST signal the consumer")
	}
	assert.Equal(t, 3, q.len())
	for fn, ok := q.pop(); ok; fn, ok = q.pop() {
		fn()
	}
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "bluetooth-enable-requested", EventBluetoothEnableRequested.String())
	assert.Equal(t, "data-received", EventDataReceived.String())
	assert.Equal(t, "unknown", EventType(0).String())
	assert.Equal(t, "AWAITING_NOTIFY_ACK", StateAwaitingNotifyAck.String())
}

func TestRun_CancelReleasesLink(t *testing.T) {
	h := testutils.NewTestHelper(t)
	tr := testutils.NewFakeTransport(testutils.NewPeripheralBuilder().
		WithName("TNG SPO2").
		WithAddress("AA:BB:CC:DD:EE:01").
		WithVendorService().
		AdvertiseOnce().
		Build())

	var mu sync.Mutex
	var events []EventType
	s, err := New(Options{
		Transport: tr,
		Registry:  registry.Default(),
		Logger:    h.Logger,
		Listener: ListenerFunc(func(e Event) {
			mu.Lock()
			events = append(events, e.Type)
			mu.Unlock()
		}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Start()
	require.Eventually(t, func() bool { return s.State() == StateAwaitingResponse }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run MUST return after cancellation")
	}

	assert.Equal(t, StateIdle, s.State())
	assert.Contains(t, tr.Calls(), "disconnect AA:BB:CC:DD:EE:01")
	assert.True(t, tr.LastLink().IsDown())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{EventUserCancelled, EventDisconnected}, events[len(events)-2:])
}
