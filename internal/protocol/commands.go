package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// ReadStatus reads the device status (pulse oximeter SpO2/pulse).
func ReadStatus() Frame { return Build(OpReadStatus, [4]byte{}) }

// ReadGlucoseTime reads the packed timestamp of the latest glucose record.
func ReadGlucoseTime() Frame { return Build(OpReadGlucoseTime, [4]byte{}) }

// ReadGlucoseResult reads the latest glucose record.
func ReadGlucoseResult() Frame { return Build(OpReadResult, [4]byte{}) }

// ReadBPResult reads the latest blood pressure record.
func ReadBPResult() Frame { return Build(OpReadResult, [4]byte{}) }

// ReadSerial reads the device serial number.
func ReadSerial() Frame { return Build(OpReadSerial, [4]byte{}) }

// ClearMemory asks the device to clear its record memory.
func ClearMemory() Frame { return Build(OpClearMemory, [4]byte{}) }

// StopDevice powers the device off.
func StopDevice() Frame { return Build(OpStopDevice, [4]byte{}) }

// StopBP powers the blood pressure monitor off.
func StopBP() Frame { return Build(OpStopDevice, [4]byte{}) }

// StopGlucose powers the glucose meter off.
func StopGlucose() Frame { return Build(OpStopDevice, [4]byte{}) }

// StopWeightScale powers the weight scale off. Unlike the scale's 7-byte read, the
// stop command is the 8-byte frame with the checksum in byte 7; the firmware
// ignores a 7-byte stop.
func StopWeightScale() Frame { return Build(OpStopDevice, [4]byte{}) }

// ReadWeightRecord reads the latest weight record. The scale firmware uses the
// 7-byte command family: 51 71 02 01 00 A3 checksum(bytes[0..5]).
func ReadWeightRecord() Frame { return BuildShort(OpReadWeightRecord, [3]byte{0x02, 0x01, 0x00}) }

// Command describes a catalog entry
type Command struct {
	Name   string
	Opcode Opcode
	Family Family
	Build  func() Frame
}

var catalog = []Command{
	{"read-status", OpReadStatus, FamilyLong, ReadStatus},
	{"read-glucose-time", OpReadGlucoseTime, FamilyLong, ReadGlucoseTime},
	{"read-glucose-result", OpReadResult, FamilyLong, ReadGlucoseResult},
	{"read-bp-result", OpReadResult, FamilyLong, ReadBPResult},
	{"read-serial", OpReadSerial, FamilyLong, ReadSerial},
	{"clear-memory", OpClearMemory, FamilyLong, ClearMemory},
	{"stop-generic", OpStopDevice, FamilyLong, StopDevice},
	{"stop-bp", OpStopDevice, FamilyLong, StopBP},
	{"stop-glucose", OpStopDevice, FamilyLong, StopGlucose},
	{"stop-weight-machine", OpStopDevice, FamilyLong, StopWeightScale},
	{"read-weight-machine", OpReadWeightRecord, FamilyShort, ReadWeightRecord},
}

// Commands returns the command catalog sorted by name.
func Commands() []Command {
	out := make([]Command, len(catalog))
	copy(out, catalog)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupCommand finds a catalog entry by name (case-insensitive).
func LookupCommand(name string) (Command, error) {
	for _, c := range catalog {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return Command{}, fmt.Errorf("unknown command %q", name)
}
