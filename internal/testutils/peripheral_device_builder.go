package testutils

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/srg/rpmlink/internal/device"
	"github.com/srg/rpmlink/internal/protocol"
)

// CharacteristicConfig represents a characteristic of a fake peripheral
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "write,notify"
}

// ServiceConfig represents a GATT service of a fake peripheral
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralConfig is the JSON shape accepted by PeripheralBuilder.FromJSON.
// Responses maps a command opcode in hex ("49") to the notification frames the
// peripheral emits each time that command is written; repeated keys are not
// possible in JSON, so use OnWrite for multi-step scripts.
type PeripheralConfig struct {
	Name      string              `json:"name"`
	Address   string              `json:"address"`
	RSSI      int                 `json:"rssi,omitempty"`
	Services  []ServiceConfig     `json:"services"`
	Responses map[string][]string `json:"responses,omitempty"`
}

// FakePeripheral is the scripted behavior of one advertised device
type FakePeripheral struct {
	adv          Advertisement
	chars        []device.CharacteristicInfo
	replies      map[protocol.Opcode][][][]byte
	dropOnWrite  map[protocol.Opcode]bool
	connectErr   error
	discoverErr  error
	subscribeErr error
	writeErr     error

	// advertiseLimit caps how many scans report the peripheral; 0 means always.
	advertiseLimit int

	mu         sync.Mutex
	advertised int
	steps      map[protocol.Opcode]int
}

// nextReply returns the frames for the next write of op. Steps advance per
// peripheral, so a reconnect continues the script where the last link stopped.
func (p *FakePeripheral) nextReply(op protocol.Opcode) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	steps := p.replies[op]
	if len(steps) == 0 {
		return nil
	}
	i := p.steps[op]
	if i >= len(steps) {
		i = len(steps) - 1
	}
	p.steps[op]++
	return steps[i]
}

func (p *FakePeripheral) advertise() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.advertiseLimit > 0 && p.advertised >= p.advertiseLimit {
		return false
	}
	p.advertised++
	return true
}

// Advertisement returns what the peripheral advertises.
func (p *FakePeripheral) Advertisement() Advertisement {
	return p.adv
}

// Characteristics returns the GATT table the peripheral exposes.
func (p *FakePeripheral) Characteristics() []device.CharacteristicInfo {
	out := make([]device.CharacteristicInfo, len(p.chars))
	copy(out, p.chars)
	return out
}

// PeripheralBuilder builds fake peripherals with a fluent API
type PeripheralBuilder struct {
	p        *FakePeripheral
	services []ServiceConfig
}

// NewPeripheralBuilder creates a builder for a peripheral without services.
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{p: &FakePeripheral{
		adv:         Advertisement{Rssi: -60},
		replies:     map[protocol.Opcode][][][]byte{},
		dropOnWrite: map[protocol.Opcode]bool{},
		steps:       map[protocol.Opcode]int{},
	}}
}

// WithName sets the advertised name.
func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.p.adv.Name = name
	return b
}

// WithAddress sets the advertised address.
func (b *PeripheralBuilder) WithAddress(addr string) *PeripheralBuilder {
	b.p.adv.Address = addr
	return b
}

// WithRSSI sets the advertised signal strength.
func (b *PeripheralBuilder) WithRSSI(rssi int) *PeripheralBuilder {
	b.p.adv.Rssi = rssi
	return b
}

// WithService adds a service to the GATT table.
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.services = append(b.services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string) *PeripheralBuilder {
	if len(b.services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := len(b.services) - 1
	b.services[last].Characteristics = append(b.services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
	})
	return b
}

// WithVendorService adds the vendor service layout seen on supported devices: one
// characteristic that notifies and accepts writes (mask 0x18).
func (b *PeripheralBuilder) WithVendorService() *PeripheralBuilder {
	return b.WithService("1808").WithCharacteristic("2a18", "write,notify")
}

// OnWrite scripts the notifications emitted for one write of a command with
// opcode op. Each call adds a step; once steps run out the last one repeats.
func (b *PeripheralBuilder) OnWrite(op protocol.Opcode, frames ...[]byte) *PeripheralBuilder {
	b.p.replies[op] = append(b.p.replies[op], frames)
	return b
}

// DropOnWrite makes the peripheral drop the link after a write with opcode op,
// the way devices power off after the stop command.
func (b *PeripheralBuilder) DropOnWrite(op protocol.Opcode) *PeripheralBuilder {
	b.p.dropOnWrite[op] = true
	return b
}

// AdvertiseTimes limits how many scans report the peripheral.
func (b *PeripheralBuilder) AdvertiseTimes(n int) *PeripheralBuilder {
	b.p.advertiseLimit = n
	return b
}

// AdvertiseOnce makes the peripheral visible to the first scan only.
func (b *PeripheralBuilder) AdvertiseOnce() *PeripheralBuilder {
	return b.AdvertiseTimes(1)
}

// WithConnectError makes Connect fail.
func (b *PeripheralBuilder) WithConnectError(err error) *PeripheralBuilder {
	b.p.connectErr = err
	return b
}

// WithDiscoverError makes characteristic discovery fail.
func (b *PeripheralBuilder) WithDiscoverError(err error) *PeripheralBuilder {
	b.p.discoverErr = err
	return b
}

// WithSubscribeError makes the CCCD write fail.
func (b *PeripheralBuilder) WithSubscribeError(err error) *PeripheralBuilder {
	b.p.subscribeErr = err
	return b
}

// WithWriteError makes every command write fail.
func (b *PeripheralBuilder) WithWriteError(err error) *PeripheralBuilder {
	b.p.writeErr = err
	return b
}

// FromJSON fills the peripheral from JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config PeripheralConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.p.adv = Advertisement{Name: config.Name, Address: config.Address, Rssi: config.RSSI}
	b.services = config.Services
	for key, hexFrames := range config.Responses {
		op, err := strconv.ParseUint(key, 16, 8)
		if err != nil {
			panic(fmt.Sprintf("PeripheralBuilder.FromJSON: bad opcode %q: %v", key, err))
		}
		frames := make([][]byte, 0, len(hexFrames))
		for _, h := range hexFrames {
			f, err := protocol.ParseHex(h)
			if err != nil {
				panic(fmt.Sprintf("PeripheralBuilder.FromJSON: %v", err))
			}
			frames = append(frames, f)
		}
		b.OnWrite(protocol.Opcode(op), frames...)
	}
	return b
}

// Build materializes the peripheral
func (b *PeripheralBuilder) Build() *FakePeripheral {
	b.p.chars = nil
	for _, svc := range b.services {
		for _, c := range svc.Characteristics {
			props, err := device.ParseProperties(c.Properties)
			if err != nil {
				panic(fmt.Sprintf("PeripheralBuilder.Build: %v", err))
			}
			b.p.chars = append(b.p.chars, device.CharacteristicInfo{
				Service:    device.NormalizeUUID(svc.UUID),
				UUID:       device.NormalizeUUID(c.UUID),
				Properties: props,
			})
		}
	}
	return b.p
}

// GetServices returns the configured service table.
func (b *PeripheralBuilder) GetServices() []ServiceConfig {
	return b.services
}
