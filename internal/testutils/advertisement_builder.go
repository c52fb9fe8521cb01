package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/rpmlink/internal/device"
)

// Advertisement is a static device.Advertisement
type Advertisement struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Rssi    int    `json:"rssi"`
}

func (a Advertisement) LocalName() string { return a.Name }
func (a Advertisement) Addr() string      { return a.Address }
func (a Advertisement) RSSI() int         { return a.Rssi }

var _ device.Advertisement = Advertisement{}

// AdvertisementBuilder builds advertisements with a fluent API.
type AdvertisementBuilder struct {
	adv Advertisement
}

// NewAdvertisementBuilder starts with RSSI -60 and an empty name.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: Advertisement{Rssi: -60}}
}

// WithName sets the advertised local name.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

// WithAddress sets the device address.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

// WithRSSI sets the signal strength.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

// FromJSON fills the advertisement from JSON
//
//	{"name": "TNG SPO2", "address": "AA:BB:CC:DD:EE:01", "rssi": -48}
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)
	if err := json.Unmarshal([]byte(jsonStr), &b.adv); err != nil {
		panic(fmt.Sprintf("AdvertisementBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	return b
}

// Build returns the advertisement.
func (b *AdvertisementBuilder) Build() Advertisement {
	return b.adv
}
