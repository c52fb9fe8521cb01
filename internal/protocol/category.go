package protocol

import (
	"fmt"
	"strings"
)

// Category is the closed set of supported peripheral kinds
type Category int

const (
	CategoryUnknown Category = iota
	BPMonitor
	PulseOximeter
	WeightScale
	GlucoseMeter
)

// Categories lists every known category in declaration order
var Categories = []Category{BPMonitor, PulseOximeter, WeightScale, GlucoseMeter}

func (c Category) String() string {
	switch c {
	case BPMonitor:
		return "BP_MONITOR"
	case PulseOximeter:
		return "PULSE_OXIMETER"
	case WeightScale:
		return "WEIGHT_SCALE"
	case GlucoseMeter:
		return "GLUCOSE_METER"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory accepts the canonical name ("GLUCOSE_METER") or a lower/dashed
// variant ("glucose-meter").
func ParseCategory(s string) (Category, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, c := range Categories {
		if c.String() == norm {
			return c, nil
		}
	}
	return CategoryUnknown, fmt.Errorf("unknown device category %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
