package protocol

import (
	"fmt"
	"strconv"
	"time"
)

// Measurement accumulates the fields decoded during one session. Optional fields are
// nil until a response carrying them arrives.
type Measurement struct {
	Device     string    `json:"device" cbor:"1,keyasint"`
	Category   Category  `json:"category" cbor:"2,keyasint"`
	SessionID  string    `json:"session_id,omitempty" cbor:"3,keyasint,omitempty"`
	ReceivedAt time.Time `json:"received_at" cbor:"4,keyasint"`

	SpO2        *int       `json:"spo2,omitempty" cbor:"10,keyasint,omitempty"`
	Pulse       *int       `json:"pulse,omitempty" cbor:"11,keyasint,omitempty"`
	Systolic    *float64   `json:"systolic,omitempty" cbor:"12,keyasint,omitempty"`
	Diastolic   *float64   `json:"diastolic,omitempty" cbor:"13,keyasint,omitempty"`
	Weight      *float64   `json:"weight_kg,omitempty" cbor:"14,keyasint,omitempty"`
	BMI         *float64   `json:"bmi,omitempty" cbor:"15,keyasint,omitempty"`
	Glucose     *float64   `json:"glucose_mg_dl,omitempty" cbor:"16,keyasint,omitempty"`
	Battery     *int       `json:"battery,omitempty" cbor:"17,keyasint,omitempty"`
	Firmware    *string    `json:"firmware,omitempty" cbor:"18,keyasint,omitempty"`
	Serial      *string    `json:"serial,omitempty" cbor:"19,keyasint,omitempty"`
	RecordIndex *int       `json:"record_index,omitempty" cbor:"20,keyasint,omitempty"`
	RecordedAt  *time.Time `json:"recorded_at,omitempty" cbor:"21,keyasint,omitempty"`
}

func ptr[T any](v T) *T { return &v }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Merge copies every field set in partial into m. Identity fields (device,
// category, session) are left untouched.
func (m *Measurement) Merge(partial Measurement) {
	if partial.SpO2 != nil {
		m.SpO2 = clonePtr(partial.SpO2)
	}
	if partial.Pulse != nil {
		m.Pulse = clonePtr(partial.Pulse)
	}
	if partial.Systolic != nil {
		m.Systolic = clonePtr(partial.Systolic)
	}
	if partial.Diastolic != nil {
		m.Diastolic = clonePtr(partial.Diastolic)
	}
	if partial.Weight != nil {
		m.Weight = clonePtr(partial.Weight)
	}
	if partial.BMI != nil {
		m.BMI = clonePtr(partial.BMI)
	}
	if partial.Glucose != nil {
		m.Glucose = clonePtr(partial.Glucose)
	}
	if partial.Battery != nil {
		m.Battery = clonePtr(partial.Battery)
	}
	if partial.Firmware != nil {
		m.Firmware = clonePtr(partial.Firmware)
	}
	if partial.Serial != nil {
		m.Serial = clonePtr(partial.Serial)
	}
	if partial.RecordIndex != nil {
		m.RecordIndex = clonePtr(partial.RecordIndex)
	}
	if partial.RecordedAt != nil {
		m.RecordedAt = clonePtr(partial.RecordedAt)
	}
}

// Clone returns a deep copy; the copy shares no memory with m.
func (m Measurement) Clone() Measurement {
	out := Measurement{
		Device:     m.Device,
		Category:   m.Category,
		SessionID:  m.SessionID,
		ReceivedAt: m.ReceivedAt,
	}
	out.Merge(m)
	return out
}

// Empty reports whether no reading field has been set.
func (m Measurement) Empty() bool {
	return m.SpO2 == nil && m.Pulse == nil && m.Systolic == nil && m.Diastolic == nil &&
		m.Weight == nil && m.BMI == nil && m.Glucose == nil && m.Battery == nil &&
		m.Firmware == nil && m.Serial == nil && m.RecordIndex == nil && m.RecordedAt == nil
}

// Summary renders one human-readable line per populated field, in the order a
// clinician reads them for the measurement's category.
func (m Measurement) Summary() []string {
	var lines []string
	add := func(label, value string) {
		lines = append(lines, fmt.Sprintf("%s: %s", label, value))
	}
	num := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

	if m.Serial != nil {
		add("Serial No", *m.Serial)
	}
	switch m.Category {
	case BPMonitor:
		if m.Systolic != nil {
			add("Systolic", num(*m.Systolic)+" mmHg")
		}
		if m.Diastolic != nil {
			add("Diastolic", num(*m.Diastolic)+" mmHg")
		}
	case GlucoseMeter:
		if m.Glucose != nil {
			add("Glucose", num(*m.Glucose)+" mg/dL")
		}
	case WeightScale:
		if m.Weight != nil {
			add("Weight", num(*m.Weight)+" kg")
		}
		if m.BMI != nil {
			add("BMI", num(*m.BMI))
		}
	case PulseOximeter:
		if m.SpO2 != nil {
			add("SpO2", fmt.Sprintf("%d%%", *m.SpO2))
		}
	}
	if m.Pulse != nil && m.Category != GlucoseMeter {
		add("Pulse", fmt.Sprintf("%d bpm", *m.Pulse))
	}
	if m.Battery != nil {
		add("Battery", fmt.Sprintf("%d%%", *m.Battery))
	}
	if m.Firmware != nil {
		add("Firmware", *m.Firmware)
	}
	if m.RecordIndex != nil {
		add("Record", strconv.Itoa(*m.RecordIndex))
	}
	if m.RecordedAt != nil {
		add("Recorded", m.RecordedAt.Format("2006-01-02 15:04"))
	}
	return lines
}
