// Package scanner runs a one-shot discovery survey: every advertising
// peripheral is recorded once per address and tagged with the registry profile
// its name matches, if any.
package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/rpmlink/internal/device"
	"github.com/srg/rpmlink/internal/registry"
	"github.com/srg/rpmlink/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// EventType marks if the device was newly discovered or updated
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
)

// Event reports a discovered or re-advertised peripheral
type Event struct {
	Type  EventType
	Entry Entry
}

// Entry is what the survey knows about one peripheral
type Entry struct {
	Address   string
	Name      string
	RSSI      int
	Seen      int
	FirstSeen time.Time
	LastSeen  time.Time
	Profile   *registry.Profile // nil when the name matches no supported device
}

// Supported reports whether the peripheral matched a registry profile.
func (e Entry) Supported() bool { return e.Profile != nil }

// Options configures a survey
type Options struct {
	Duration      time.Duration
	SupportedOnly bool
	AllowList     []string
	BlockList     []string
}

// DefaultOptions returns default survey options
func DefaultOptions() *Options {
	return &Options{Duration: 10 * time.Second}
}

type record struct {
	mu    sync.Mutex
	entry Entry
}

// Scanner performs discovery surveys over a device.Transport
type Scanner struct {
	transport device.Transport
	registry  *registry.Registry
	logger    *logrus.Logger
	now       func() time.Time

	devices *hashmap.Map[string, *record]
	events  *ringchan.RingChannel[Event]

	// order holds addresses in discovery order; hashmap Range does not visit
	// every key reliably.
	orderMu sync.Mutex
	order   []string
}

// New creates a scanner. A nil registry means registry.Default().
func New(transport device.Transport, reg *registry.Registry, logger *logrus.Logger) *Scanner {
	if reg == nil {
		reg = registry.Default()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		transport: transport,
		registry:  reg,
		logger:    logger,
		now:       time.Now,
		events:    ringchan.New[Event](100),
	}
}

// Scan surveys for opts.Duration (or until ctx is done) and returns the
// entries sorted supported-first, then by signal strength.
func (s *Scanner) Scan(ctx context.Context, opts *Options, progress ProgressCallback) ([]Entry, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if progress == nil {
		progress = func(string) {}
	}
	s.devices = hashmap.New[string, *record]()
	s.orderMu.Lock()
	s.order = nil
	s.orderMu.Unlock()

	if err := s.transport.Ready(); err != nil {
		return nil, err
	}

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE survey...")
	progress("Scanning")

	err := s.transport.Scan(ctx, func(adv device.Advertisement) {
		s.handleAdvertisement(adv, opts)
	})
	if err != nil {
		return nil, err
	}

	progress("Processing results")
	entries := s.entries()
	s.logger.WithField("device_count", len(entries)).Info("BLE survey completed")
	return entries, nil
}

// Events returns discovery events as they happen. Old events are overwritten
// when the consumer falls behind.
func (s *Scanner) Events() <-chan Event {
	return s.events.C()
}

func (s *Scanner) handleAdvertisement(adv device.Advertisement, opts *Options) {
	addr := adv.Addr()
	now := s.now()

	rec, existing := s.devices.Get(addr)
	if !existing {
		if !s.include(adv, opts) {
			return
		}
		p, _ := s.registry.Match(adv.LocalName())
		rec, existing = s.devices.GetOrInsert(addr, &record{entry: Entry{
			Address:   addr,
			Name:      adv.LocalName(),
			RSSI:      adv.RSSI(),
			Seen:      1,
			FirstSeen: now,
			LastSeen:  now,
			Profile:   p,
		}})
		if !existing {
			s.orderMu.Lock()
			s.order = append(s.order, addr)
			s.orderMu.Unlock()
		}
	}

	rec.mu.Lock()
	if existing {
		rec.entry.Seen++
		rec.entry.RSSI = adv.RSSI()
		rec.entry.LastSeen = now
		if rec.entry.Name == "" && adv.LocalName() != "" {
			rec.entry.Name = adv.LocalName()
			rec.entry.Profile, _ = s.registry.Match(adv.LocalName())
		}
	}
	ev := Event{Type: EventUpdated, Entry: rec.entry}
	rec.mu.Unlock()

	if !existing {
		ev.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"device":    ev.Entry.Name,
			"address":   addr,
			"rssi":      ev.Entry.RSSI,
			"supported": ev.Entry.Supported(),
		}).Info("Discovered new device")
	}
	s.events.Send(ev)
}

func (s *Scanner) include(adv device.Advertisement, opts *Options) bool {
	addr := adv.Addr()
	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return false
		}
	}
	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	if opts.SupportedOnly {
		if _, ok := s.registry.Match(adv.LocalName()); !ok {
			return false
		}
	}
	return true
}

func (s *Scanner) entries() []Entry {
	s.orderMu.Lock()
	order := append([]string(nil), s.order...)
	s.orderMu.Unlock()

	out := make([]Entry, 0, len(order))
	for _, addr := range order {
		rec, ok := s.devices.Get(addr)
		if !ok {
			continue
		}
		rec.mu.Lock()
		out = append(out, rec.entry)
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Supported() != out[j].Supported() {
			return out[i].Supported()
		}
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}
