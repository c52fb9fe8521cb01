package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/rpmlink/internal/protocol"
)

// Profile describes how to talk to one supported peripheral model
type Profile struct {
	ID       int
	Name     string // canonical advertised name
	Label    string // human-readable kind, e.g. "Pulse Oximeter"
	Category protocol.Category

	// Reads is the ordered read sequence; optional pre-reads come first and the
	// command that yields the final reading is always last.
	Reads []protocol.Command
	Stop  protocol.Command
}

// FirstRead returns the command written once notifications are armed.
func (p *Profile) FirstRead() protocol.Command {
	return p.Reads[0]
}

// NextRead returns the read to issue after a response with opcode last arrived.
// A response answering a pre-read advances the sequence; anything else repeats current.
func (p *Profile) NextRead(current protocol.Command, last protocol.Opcode) protocol.Command {
	for i, c := range p.Reads {
		if c.Opcode == last && c.Name == current.Name && i+1 < len(p.Reads) {
			return p.Reads[i+1]
		}
	}
	return current
}

// Decode runs d against a notification from this profile's peripheral.
func (p *Profile) Decode(d protocol.Decoder, frame []byte) protocol.Result {
	return d.Decode(p.Category, frame)
}

func (p *Profile) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Category)
}

// Options tune the built-in profiles
type Options struct {
	ReadSerialFirst      bool
	ReadGlucoseTimeFirst bool
	// Aliases appends extra name substrings per category; they match after the built-in names.
	Aliases map[protocol.Category][]string
	Logger  *logrus.Logger
}

// Registry is an ordered table of name substrings. Matching is case-insensitive
// substring containment and the first entry in insertion order wins.
type Registry struct {
	entries  *orderedmap.OrderedMap[string, *Profile]
	profiles []*Profile
	logger   *logrus.Logger
}

// New builds the registry holding the supported peripheral catalog.
func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	r := &Registry{
		entries: orderedmap.New[string, *Profile](),
		logger:  logger,
	}

	for _, p := range catalog(opts) {
		r.add(p.Name, p)
		r.profiles = append(r.profiles, p)
	}

	for _, cat := range protocol.Categories {
		p := r.byCategory(cat)
		for _, alias := range opts.Aliases[cat] {
			if p == nil || strings.TrimSpace(alias) == "" {
				continue
			}
			r.add(alias, p)
		}
	}
	return r
}

// Default returns the registry with default options.
func Default() *Registry {
	return New(Options{})
}

func (r *Registry) add(pattern string, p *Profile) {
	key := strings.ToLower(strings.TrimSpace(pattern))
	if _, exists := r.entries.Get(key); exists {
		r.logger.WithFields(logrus.Fields{
			"pattern": pattern,
			"profile": p.Name,
		}).Debug("Duplicate registry pattern ignored")
		return
	}
	r.entries.Set(key, p)
}

func catalog(opts Options) []*Profile {
	pulseReads := []protocol.Command{mustCommand("read-status")}
	if opts.ReadSerialFirst {
		pulseReads = append([]protocol.Command{mustCommand("read-serial")}, pulseReads...)
	}
	glucoseReads := []protocol.Command{mustCommand("read-glucose-result")}
	if opts.ReadGlucoseTimeFirst {
		glucoseReads = append([]protocol.Command{mustCommand("read-glucose-time")}, glucoseReads...)
	}

	return []*Profile{
		{
			ID:       1,
			Name:     "FORA P20",
			Label:    "Blood Pressure Monitor",
			Category: protocol.BPMonitor,
			Reads:    []protocol.Command{mustCommand("read-bp-result")},
			Stop:     mustCommand("stop-bp"),
		},
		{
			ID:       2,
			Name:     "TNG SPO2",
			Label:    "Pulse Oximeter",
			Category: protocol.PulseOximeter,
			Reads:    pulseReads,
			Stop:     mustCommand("stop-generic"),
		},
		{
			ID:       3,
			Name:     "TNG SCALE",
			Label:    "Weight Machine",
			Category: protocol.WeightScale,
			Reads:    []protocol.Command{mustCommand("read-weight-machine")},
			Stop:     mustCommand("stop-weight-machine"),
		},
		{
			ID:       4,
			Name:     "FORA PREMIUM V10",
			Label:    "Glucose Meter",
			Category: protocol.GlucoseMeter,
			Reads:    glucoseReads,
			Stop:     mustCommand("stop-glucose"),
		},
	}
}

func mustCommand(name string) protocol.Command {
	c, err := protocol.LookupCommand(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Match returns the profile of the first pattern contained in name.
func (r *Registry) Match(name string) (*Profile, bool) {
	if name == "" {
		return nil, false
	}
	lower := strings.ToLower(name)
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		if strings.Contains(lower, pair.Key) {
			return pair.Value, true
		}
	}
	return nil, false
}

// Lookup resolves user input: a numeric catalog id, an exact name, input that
// contains a registered name or alias, or a category name. Fragments of a name
// do not resolve.
func (r *Registry) Lookup(input string) (*Profile, error) {
	input = strings.TrimSpace(input)
	if id, err := strconv.Atoi(input); err == nil {
		for _, p := range r.profiles {
			if p.ID == id {
				return p, nil
			}
		}
		return nil, fmt.Errorf("no device with id %d", id)
	}
	for _, p := range r.profiles {
		if strings.EqualFold(p.Name, input) {
			return p, nil
		}
	}
	if p, ok := r.Match(input); ok {
		return p, nil
	}
	if cat, err := protocol.ParseCategory(input); err == nil {
		if p := r.byCategory(cat); p != nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown device %q", input)
}

func (r *Registry) byCategory(cat protocol.Category) *Profile {
	for _, p := range r.profiles {
		if p.Category == cat {
			return p
		}
	}
	return nil
}

// Profiles returns the catalog in id order.
func (r *Registry) Profiles() []*Profile {
	out := make([]*Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Entry is one pattern of the match table
type Entry struct {
	Pattern string
	Profile *Profile
}

// Entries returns the match table in evaluation order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, r.entries.Len())
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Entry{Pattern: pair.Key, Profile: pair.Value})
	}
	return out
}
