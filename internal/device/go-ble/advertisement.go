package goble

import (
	"github.com/go-ble/ble"

	"github.com/srg/rpmlink/internal/device"
)

// advertisement wraps ble.Advertisement to implement device.Advertisement
type advertisement struct {
	adv ble.Advertisement
}

func newAdvertisement(adv ble.Advertisement) device.Advertisement {
	return advertisement{adv: adv}
}

func (a advertisement) LocalName() string { return a.adv.LocalName() }
func (a advertisement) RSSI() int         { return a.adv.RSSI() }

func (a advertisement) Addr() string {
	if a.adv.Addr() == nil {
		return ""
	}
	return a.adv.Addr().String()
}
