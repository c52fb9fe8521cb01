package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/rpmlink/internal/device"
	"github.com/srg/rpmlink/internal/groutine"
	"github.com/srg/rpmlink/internal/protocol"
	"github.com/srg/rpmlink/internal/registry"
)

// Default timings
const (
	DefaultPreconditionRetry = 2 * time.Second
	DefaultRescanInterval    = 2 * time.Second
	DefaultFinalizeLinger    = 3 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	shutdownGrace            = 5 * time.Second
)

var errNoNotifyCharacteristic = errors.New("no characteristic supports notify with write")

// Options configure a Session
type Options struct {
	Transport device.Transport
	Registry  *registry.Registry
	Listener  Listener
	Scheduler Scheduler
	Decoder   protocol.Decoder
	Logger    *logrus.Logger

	PreconditionRetry time.Duration
	RescanInterval    time.Duration // restart delay when a scan window closes without a match
	FinalizeLinger    time.Duration // how long a finalized link may stay up before the session drops it
	ConnectTimeout    time.Duration

	Now   func() time.Time
	NewID func() string
}

// Session drives one peripheral at a time through scan, connect, subscribe,
// read and finalize, then rescans. All state lives on a single dispatch goroutine
// fed by a FIFO queue; transport callbacks and timers post closures to it.
//
// Every posted closure captures the generation current when it was created.
// Teardown and Stop bump the generation, so callbacks belonging to a superseded
// attempt are dropped without touching state.
type Session struct {
	transport device.Transport
	registry  *registry.Registry
	listener  Listener
	scheduler Scheduler
	decoder   protocol.Decoder
	logger    *logrus.Logger
	now       func() time.Time
	newID     func() string

	preconditionRetry time.Duration
	rescanInterval    time.Duration
	finalizeLinger    time.Duration
	connectTimeout    time.Duration

	q        *queue
	gen      atomic.Uint64
	snapshot atomic.Int32
	inflight sync.WaitGroup

	// Everything below is owned by the dispatch goroutine.
	running       bool
	state         State
	lastBlocked   device.ConnectionState
	timers        []func() bool
	scanCancel    context.CancelFunc
	attemptCtx    context.Context
	cancelAttempt context.CancelFunc
	profile       *registry.Profile
	deviceName    string
	address       string
	sessionID     string
	link          device.Link
	char          device.CharacteristicInfo
	current       protocol.Command
	acc           protocol.Measurement
}

// New creates an idle session. Call Run to start the dispatch loop and Start to arm scanning.
func New(opts Options) (*Session, error) {
	if opts.Transport == nil {
		return nil, errors.New("session: transport is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("session: registry is required")
	}

	s := &Session{
		transport:         opts.Transport,
		registry:          opts.Registry,
		listener:          opts.Listener,
		scheduler:         opts.Scheduler,
		decoder:           opts.Decoder,
		logger:            opts.Logger,
		now:               opts.Now,
		newID:             opts.NewID,
		preconditionRetry: opts.PreconditionRetry,
		rescanInterval:    opts.RescanInterval,
		finalizeLinger:    opts.FinalizeLinger,
		connectTimeout:    opts.ConnectTimeout,
		q:                 newQueue(),
	}
	if s.listener == nil {
		s.listener = nopListener{}
	}
	if s.scheduler == nil {
		s.scheduler = SystemScheduler{}
	}
	if s.decoder == (protocol.Decoder{}) {
		s.decoder = protocol.DefaultDecoder
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.preconditionRetry <= 0 {
		s.preconditionRetry = DefaultPreconditionRetry
	}
	if s.rescanInterval <= 0 {
		s.rescanInterval = DefaultRescanInterval
	}
	if s.finalizeLinger <= 0 {
		s.finalizeLinger = DefaultFinalizeLinger
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = DefaultConnectTimeout
	}
	return s, nil
}

// Start arms scanning. Calling Start on a running session has no effect.
func (s *Session) Start() {
	s.q.push(s.handleStart)
}

// Stop tears down any active link, cancels every pending timer and returns to IDLE.
// Callbacks already queued for the running attempt are invalidated immediately.
func (s *Session) Stop() {
	s.gen.Add(1)
	s.q.push(s.handleStop)
}

// State returns a snapshot of the current state; safe from any goroutine.
func (s *Session) State() State {
	return State(s.snapshot.Load())
}

// Run executes the dispatch loop until ctx is done, then stops the session and
// waits briefly for the link to be released.
func (s *Session) Run(ctx context.Context) error {
	for {
		s.dispatchPending()
		select {
		case <-ctx.Done():
			s.gen.Add(1)
			s.handleStop()
			s.waitInflight(shutdownGrace)
			return ctx.Err()
		case <-s.q.ready():
		}
	}
}

func (s *Session) dispatchPending() {
	for {
		fn, ok := s.q.pop()
		if !ok {
			return
		}
		fn()
	}
}

func (s *Session) waitInflight(limit time.Duration) {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(limit):
		s.logger.Warn("Timed out waiting for transport calls to finish")
	}
}

// post queues fn behind a generation check.
func (s *Session) post(gen uint64, fn func()) {
	s.q.push(func() {
		if gen != s.gen.Load() {
			s.logger.WithField("generation", gen).Trace("Stale callback dropped")
			return
		}
		fn()
	})
}

// schedule posts fn after d; the timer is cancelled on teardown.
func (s *Session) schedule(d time.Duration, fn func()) {
	gen := s.gen.Load()
	if d <= 0 {
		s.post(gen, fn)
		return
	}
	s.timers = append(s.timers, s.scheduler.AfterFunc(d, func() {
		s.post(gen, fn)
	}))
}

func (s *Session) cancelTimers() {
	for _, stop := range s.timers {
		stop()
	}
	s.timers = nil
}

// spawn runs a blocking transport call off the dispatch goroutine.
func (s *Session) spawn(ctx context.Context, name string, fn func(ctx context.Context)) {
	s.inflight.Add(1)
	groutine.Go(ctx, name, func(ctx context.Context) {
		defer s.inflight.Done()
		fn(ctx)
	})
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"from":   s.state,
		"to":     st,
		"device": s.deviceName,
	}).Debug("Session state transition")
	s.state = st
	s.snapshot.Store(int32(st))
}

func (s *Session) emit(t EventType) {
	s.emitEvent(Event{Type: t})
}

func (s *Session) emitEvent(e Event) {
	e.Device = s.deviceName
	e.Address = s.address
	e.SessionID = s.sessionID
	e.Time = s.now()
	if s.profile != nil {
		e.Category = s.profile.Category
	}
	s.logger.WithFields(logrus.Fields{
		"event":  e.Type,
		"device": e.Device,
	}).Debug("Session event")
	s.listener.OnEvent(e)
}

func (s *Session) handleStart() {
	if s.running {
		s.logger.Debug("Session already started")
		return
	}
	s.running = true
	s.lastBlocked = ""
	s.tryScan()
}

func (s *Session) tryScan() {
	if !s.running {
		return
	}
	if err := s.transport.Ready(); err != nil {
		s.blocked(err)
		return
	}
	s.lastBlocked = ""

	ctx, cancel := context.WithCancel(context.Background())
	s.scanCancel = cancel
	s.setState(StateScanning)
	s.emit(EventScanStarted)

	gen := s.gen.Load()
	s.spawn(ctx, "session-scan", func(ctx context.Context) {
		err := s.transport.Scan(ctx, func(adv device.Advertisement) {
			s.post(gen, func() { s.onAdvertisement(adv) })
		})
		s.post(gen, func() { s.onScanEnded(err) })
	})
}

// blocked handles a failed precondition check: stay IDLE and retry later. The
// listener hears about each distinct failure kind once.
func (s *Session) blocked(err error) {
	s.setState(StateIdle)

	var kind device.ConnectionState
	var event EventType
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		kind, event = device.BluetoothOff, EventBluetoothEnableRequested
	case errors.Is(err, device.ErrAccessDenied):
		kind, event = device.AccessDenied, EventPermissionRequested
	}

	entry := s.logger.WithFields(logrus.Fields{
		"error": err,
		"retry": s.preconditionRetry,
	})
	if kind == "" {
		entry.Warn("Transport not ready, will retry")
	} else {
		entry.Debug("Scan precondition failed, will retry")
	}
	if kind != "" && kind != s.lastBlocked {
		s.lastBlocked = kind
		s.emit(event)
	}
	s.schedule(s.preconditionRetry, s.tryScan)
}

func (s *Session) stopScan() {
	if s.scanCancel != nil {
		s.scanCancel()
		s.scanCancel = nil
	}
}

func (s *Session) onAdvertisement(adv device.Advertisement) {
	if s.state != StateScanning {
		return
	}
	name := adv.LocalName()
	p, ok := s.registry.Match(name)
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"name":    name,
			"address": adv.Addr(),
		}).Trace("Ignoring unsupported advertisement")
		return
	}

	s.stopScan()
	s.profile = p
	s.deviceName = name
	s.address = adv.Addr()
	s.sessionID = s.newID()
	s.acc = protocol.Measurement{Device: name, Category: p.Category, SessionID: s.sessionID}

	s.logger.WithFields(logrus.Fields{
		"device":   name,
		"address":  s.address,
		"category": p.Category,
		"rssi":     adv.RSSI(),
	}).Info("Supported device found")

	s.emit(EventScanStopped)
	s.emit(EventDeviceFound)
	s.connect()
}

func (s *Session) onScanEnded(err error) {
	if s.state != StateScanning {
		return
	}
	s.stopScan()
	if err != nil && device.IsPrecondition(err) {
		s.emit(EventScanStopped)
		s.blocked(err)
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WithError(err).Warn("Scan failed")
	}
	s.schedule(s.rescanInterval, func() {
		if s.state == StateScanning {
			s.tryScan()
		}
	})
}

// guard re-checks the transport preconditions before a link operation. On
// failure the attempt is torn down and the rescan path takes over.
func (s *Session) guard(op string) bool {
	err := s.transport.Ready()
	if err == nil {
		return true
	}
	s.abort(fmt.Errorf("%s: %w", op, err))
	return false
}

func (s *Session) connect() {
	if !s.guard("connect") {
		return
	}
	s.setState(StateConnecting)
	s.emit(EventConnecting)

	s.attemptCtx, s.cancelAttempt = context.WithCancel(context.Background())
	gen := s.gen.Load()
	addr := s.address
	s.spawn(s.attemptCtx, "session-connect", func(ctx context.Context) {
		cctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
		defer cancel()
		link, err := s.transport.Connect(cctx, addr)
		s.q.push(func() {
			if gen != s.gen.Load() {
				if link != nil {
					s.release(link)
				}
				return
			}
			s.onConnected(link, err)
		})
	})
}

func (s *Session) onConnected(link device.Link, err error) {
	if s.state != StateConnecting {
		if link != nil {
			s.release(link)
		}
		return
	}
	if err != nil {
		s.abort(fmt.Errorf("connect %s: %w", s.address, err))
		return
	}

	s.link = link
	s.emit(EventConnected)

	gen := s.gen.Load()
	groutine.Go(s.attemptCtx, "session-link-watch", func(ctx context.Context) {
		select {
		case <-link.Disconnected():
			s.post(gen, s.onLinkDown)
		case <-ctx.Done():
		}
	})

	s.setState(StateDiscoveringServices)
	s.spawn(s.attemptCtx, "session-discover", func(ctx context.Context) {
		chars, err := link.Characteristics(ctx)
		s.post(gen, func() { s.onCharacteristics(chars, err) })
	})
}

// SelectNotifyCharacteristic picks the first characteristic that can notify and
// accept writes (observed hardware exposes property mask 0x18).
func SelectNotifyCharacteristic(chars []device.CharacteristicInfo) (device.CharacteristicInfo, bool) {
	for _, c := range chars {
		if c.Properties.Has(device.PropNotify) &&
			(c.Properties.Has(device.PropWrite) || c.Properties.Has(device.PropWriteWithoutResponse)) {
			return c, true
		}
	}
	return device.CharacteristicInfo{}, false
}

func (s *Session) onCharacteristics(chars []device.CharacteristicInfo, err error) {
	if s.state != StateDiscoveringServices {
		return
	}
	if err != nil {
		s.abort(fmt.Errorf("discover: %w", err))
		return
	}
	char, ok := SelectNotifyCharacteristic(chars)
	if !ok {
		s.abort(errNoNotifyCharacteristic)
		return
	}
	s.char = char
	if !s.guard("subscribe") {
		return
	}
	s.setState(StateAwaitingNotifyAck)

	gen := s.gen.Load()
	link := s.link
	s.spawn(s.attemptCtx, "session-subscribe", func(ctx context.Context) {
		err := link.Subscribe(ctx, char, func(data []byte) {
			frame := append([]byte(nil), data...)
			s.post(gen, func() { s.onNotification(frame) })
		})
		s.post(gen, func() { s.onNotifyAck(err) })
	})
}

func (s *Session) onNotifyAck(err error) {
	if s.state != StateAwaitingNotifyAck {
		return
	}
	if err != nil {
		s.abort(fmt.Errorf("subscribe %s: %w", s.char.UUID, err))
		return
	}
	s.current = s.profile.FirstRead()
	s.setState(StateAwaitingResponse)
	s.write(s.current)
}

func (s *Session) write(cmd protocol.Command) {
	if !s.guard("write") {
		return
	}
	frame := cmd.Build()
	s.logger.WithFields(logrus.Fields{
		"device":  s.deviceName,
		"command": cmd.Name,
		"frame":   frame,
	}).Debug("Writing command")

	gen := s.gen.Load()
	link, char := s.link, s.char
	s.spawn(s.attemptCtx, "session-write", func(ctx context.Context) {
		if err := link.Write(ctx, char, frame, false); err != nil {
			s.post(gen, func() { s.abort(fmt.Errorf("write %s: %w", cmd.Name, err)) })
		}
	})
}

func (s *Session) onNotification(frame []byte) {
	if s.state != StateAwaitingResponse {
		s.logger.WithFields(logrus.Fields{
			"state": s.state,
			"frame": protocol.HexString(frame),
		}).Debug("Notification outside response window ignored")
		return
	}

	res := s.profile.Decode(s.decoder, frame)
	entry := s.logger.WithFields(logrus.Fields{
		"device":    s.deviceName,
		"opcode":    res.Opcode,
		"frame":     protocol.HexString(frame),
		"directive": res.Directive,
	})
	if !res.Recognized {
		entry.Warn("Unrecognized opcode ignored")
		return
	}
	entry.Debug("Response decoded")
	s.acc.Merge(res.Partial)

	switch res.Directive.Action {
	case protocol.Continue:
	case protocol.RetryRead:
		next := s.current
		if !res.Short {
			next = s.profile.NextRead(s.current, res.Opcode)
		}
		s.schedule(res.Directive.Delay, func() {
			if s.state != StateAwaitingResponse {
				return
			}
			s.current = next
			s.write(next)
		})
	case protocol.Finalize:
		s.finalize()
	}
}

func (s *Session) finalize() {
	s.setState(StateFinalizing)

	m := s.acc.Clone()
	m.ReceivedAt = s.now()
	s.emitEvent(Event{Type: EventDataReceived, Measurement: &m})

	s.write(s.profile.Stop)
	if s.state != StateFinalizing {
		return
	}
	s.schedule(s.finalizeLinger, func() {
		if s.state != StateFinalizing {
			return
		}
		s.logger.WithField("device", s.deviceName).Debug("Peripheral kept the link after stop, disconnecting")
		s.teardown()
	})
}

func (s *Session) onLinkDown() {
	if s.link == nil {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"device": s.deviceName,
		"state":  s.state,
	}).Info("Link down")
	s.teardown()
}

// abort ends the current attempt after a transport failure.
func (s *Session) abort(err error) {
	s.logger.WithFields(logrus.Fields{
		"device": s.deviceName,
		"state":  s.state,
		"error":  err,
	}).Warn("Session attempt aborted")
	s.teardown()
}

// teardown releases the link, discards the accumulator and rescans immediately.
func (s *Session) teardown() {
	s.gen.Add(1)
	s.cancelTimers()
	s.stopScan()
	s.releaseAttempt()

	s.setState(StateDisconnected)
	s.emit(EventDisconnected)
	s.resetAttempt()

	if s.running {
		s.post(s.gen.Load(), s.tryScan)
	}
}

func (s *Session) handleStop() {
	if !s.running {
		s.logger.Trace("Session already stopped")
		return
	}
	s.running = false
	s.cancelTimers()

	wasScanning := s.state == StateScanning
	inCycle := s.profile != nil
	s.stopScan()
	s.releaseAttempt()
	s.setState(StateIdle)

	if wasScanning {
		s.emit(EventScanStopped)
	}
	s.emit(EventUserCancelled)
	if inCycle {
		s.emit(EventDisconnected)
	}
	s.resetAttempt()
	s.lastBlocked = ""
}

func (s *Session) releaseAttempt() {
	if s.cancelAttempt != nil {
		s.cancelAttempt()
		s.cancelAttempt = nil
	}
	if s.link != nil {
		s.release(s.link)
		s.link = nil
	}
}

func (s *Session) release(link device.Link) {
	s.spawn(context.Background(), "session-disconnect", func(context.Context) {
		if err := link.Disconnect(); err != nil {
			s.logger.WithError(err).Debug("Disconnect failed")
		}
	})
}

func (s *Session) resetAttempt() {
	s.profile = nil
	s.deviceName = ""
	s.address = ""
	s.sessionID = ""
	s.char = device.CharacteristicInfo{}
	s.current = protocol.Command{}
	s.acc = protocol.Measurement{}
	s.attemptCtx = nil
}
