package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/rpmlink/internal/device"
	"github.com/srg/rpmlink/internal/protocol"
)

// FakeTransport is a scripted device.Transport. Scan reports every registered
// peripheral once, in registration order, and returns; writes are answered from
// the peripheral's script on the writer's goroutine. Every transport call is
// recorded so tests can assert exact call sequences.
type FakeTransport struct {
	mu          sync.Mutex
	readyErrs   []error
	readyCalls  int
	peripherals []*FakePeripheral
	links       []*FakeLink
	calls       []string
}

// NewFakeTransport creates a ready transport advertising peripherals.
func NewFakeTransport(peripherals ...*FakePeripheral) *FakeTransport {
	return &FakeTransport{peripherals: peripherals}
}

// AddPeripheral registers another advertised peripheral.
func (t *FakeTransport) AddPeripheral(p *FakePeripheral) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peripherals = append(t.peripherals, p)
}

// SetReady scripts the results of successive Ready calls; the last one sticks.
// SetReady() with no arguments makes the transport ready.
func (t *FakeTransport) SetReady(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readyErrs = errs
}

// Ready implements device.Transport.
func (t *FakeTransport) Ready() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readyCalls++
	if len(t.readyErrs) == 0 {
		return nil
	}
	err := t.readyErrs[0]
	if len(t.readyErrs) > 1 {
		t.readyErrs = t.readyErrs[1:]
	}
	return err
}

// ReadyCalls returns how many precondition checks were made.
func (t *FakeTransport) ReadyCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readyCalls
}

// Scan implements device.Transport.
func (t *FakeTransport) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	t.mu.Lock()
	t.record("scan")
	peripherals := append([]*FakePeripheral(nil), t.peripherals...)
	t.mu.Unlock()

	for _, p := range peripherals {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.advertise() {
			handler(p.adv)
		}
	}
	return nil
}

// Connect implements device.Transport.
func (t *FakeTransport) Connect(_ context.Context, address string) (device.Link, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("connect " + address)

	for _, p := range t.peripherals {
		if p.adv.Address != address {
			continue
		}
		if p.connectErr != nil {
			return nil, p.connectErr
		}
		link := &FakeLink{
			transport: t,
			p:         p,
			down:      make(chan struct{}),
		}
		t.links = append(t.links, link)
		return link, nil
	}
	return nil, fmt.Errorf("no peripheral at %s", address)
}

// Calls returns the recorded transport calls.
func (t *FakeTransport) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

// Links returns every link handed out, oldest first.
func (t *FakeTransport) Links() []*FakeLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*FakeLink(nil), t.links...)
}

// LastLink returns the most recent link or nil.
func (t *FakeTransport) LastLink() *FakeLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.links) == 0 {
		return nil
	}
	return t.links[len(t.links)-1]
}

// record must be called with mu held.
func (t *FakeTransport) record(call string) {
	t.calls = append(t.calls, call)
}

func (t *FakeTransport) recordLocked(call string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(call)
}

// FakeLink is the device.Link handed out by FakeTransport
type FakeLink struct {
	transport *FakeTransport
	p         *FakePeripheral

	mu      sync.Mutex
	handler func([]byte)
	writes  [][]byte
	down    chan struct{}
	once    sync.Once
}

var _ device.Link = (*FakeLink)(nil)

// Address implements device.Link.
func (l *FakeLink) Address() string {
	return l.p.adv.Address
}

// Characteristics implements device.Link.
func (l *FakeLink) Characteristics(context.Context) ([]device.CharacteristicInfo, error) {
	l.transport.recordLocked("discover")
	if l.p.discoverErr != nil {
		return nil, l.p.discoverErr
	}
	return l.p.Characteristics(), nil
}

// Subscribe implements device.Link.
func (l *FakeLink) Subscribe(_ context.Context, char device.CharacteristicInfo, handler func([]byte)) error {
	l.transport.recordLocked("subscribe " + char.UUID)
	if l.p.subscribeErr != nil {
		return l.p.subscribeErr
	}
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
	return nil
}

// Write implements device.Link. Scripted replies are delivered before it returns.
func (l *FakeLink) Write(_ context.Context, _ device.CharacteristicInfo, data []byte, _ bool) error {
	l.transport.recordLocked("write " + protocol.HexString(data))
	if l.p.writeErr != nil {
		return l.p.writeErr
	}

	op := protocol.Frame(data).Opcode()
	l.mu.Lock()
	l.writes = append(l.writes, append([]byte(nil), data...))
	handler := l.handler
	l.mu.Unlock()

	frames := l.p.nextReply(op)

	if handler != nil {
		for _, f := range frames {
			handler(f)
		}
	}
	if l.p.dropOnWrite[op] {
		l.Drop()
	}
	return nil
}

// Disconnected implements device.Link.
func (l *FakeLink) Disconnected() <-chan struct{} {
	return l.down
}

// Disconnect implements device.Link.
func (l *FakeLink) Disconnect() error {
	l.transport.recordLocked("disconnect " + l.p.adv.Address)
	l.Drop()
	return nil
}

// Drop simulates the peripheral going away.
func (l *FakeLink) Drop() {
	l.once.Do(func() { close(l.down) })
}

// IsDown reports whether the link was dropped.
func (l *FakeLink) IsDown() bool {
	select {
	case <-l.down:
		return true
	default:
		return false
	}
}

// Notify injects an unsolicited notification.
func (l *FakeLink) Notify(frame []byte) {
	l.mu.Lock()
	handler := l.handler
	l.mu.Unlock()
	if handler != nil {
		handler(frame)
	}
}

// Writes returns the frames written so far.
func (l *FakeLink) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.writes...)
}
