package protocol

import (
	"fmt"
	"strconv"
	"time"
)

// Action tells the session what to do after a response frame was decoded
type Action int

const (
	// Continue keeps waiting for the next notification.
	Continue Action = iota
	// RetryRead re-issues the next read command after Directive.Delay.
	RetryRead
	// Finalize sends the stop command and hands the measurement to the listener.
	Finalize
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "CONTINUE"
	case RetryRead:
		return "RETRY_READ"
	case Finalize:
		return "FINALIZE"
	default:
		return "UNKNOWN"
	}
}

// Directive is the decoder's instruction to the session
type Directive struct {
	Action Action
	Delay  time.Duration
}

func (d Directive) String() string {
	if d.Action == RetryRead {
		return fmt.Sprintf("%s(%dms)", d.Action, d.Delay.Milliseconds())
	}
	return d.Action.String()
}

// Settle delays the peripheral firmware needs before it honors the next read.
const (
	DefaultSettleDelay       = 700 * time.Millisecond
	DefaultSerialSettleDelay = 2000 * time.Millisecond
	MinSettleDelay           = 600 * time.Millisecond
)

// Frame length limits for responses
const (
	MinResponseLen       = 8
	MinWeightResponseLen = 14
	WeightRecordLen      = 21
)

// Result is the outcome of decoding a single notification
type Result struct {
	Opcode     Opcode
	Partial    Measurement
	Directive  Directive
	Recognized bool // false for unknown opcodes; the session ignores those
	Short      bool // frame was shorter than the category minimum
}

// Decoder turns raw notification frames into partial measurements. Decoders never fail:
// short frames become retry directives and unknown opcodes are reported as unrecognized.
type Decoder struct {
	SettleDelay       time.Duration
	SerialSettleDelay time.Duration
}

// DefaultDecoder uses the settle delays observed on real hardware
var DefaultDecoder = Decoder{
	SettleDelay:       DefaultSettleDelay,
	SerialSettleDelay: DefaultSerialSettleDelay,
}

// Decode decodes frame with DefaultDecoder.
func Decode(cat Category, frame []byte) Result {
	return DefaultDecoder.Decode(cat, frame)
}

// Decode dispatches on category, then on the opcode at offset 1.
func (d Decoder) Decode(cat Category, frame []byte) Result {
	switch cat {
	case PulseOximeter:
		return d.decodePulseOximeter(frame)
	case BPMonitor:
		return d.decodeBPMonitor(frame)
	case GlucoseMeter:
		return d.decodeGlucose(frame)
	case WeightScale:
		return d.decodeWeight(frame)
	default:
		return Result{Opcode: opcodeOf(frame), Directive: Directive{Action: Continue}}
	}
}

func opcodeOf(frame []byte) Opcode {
	return Frame(frame).Opcode()
}

func (d Decoder) retry(delay time.Duration) Directive {
	return Directive{Action: RetryRead, Delay: delay}
}

func (d Decoder) short(frame []byte, delay time.Duration) Result {
	return Result{Opcode: opcodeOf(frame), Directive: d.retry(delay), Recognized: true, Short: true}
}

func (d Decoder) clearMemoryAck() Result {
	return Result{Opcode: OpClearMemory, Directive: d.retry(d.SettleDelay), Recognized: true}
}

func unrecognized(frame []byte) Result {
	return Result{Opcode: opcodeOf(frame), Directive: Directive{Action: Continue}}
}

func (d Decoder) decodePulseOximeter(frame []byte) Result {
	if len(frame) < MinResponseLen {
		return d.short(frame, d.SettleDelay)
	}
	switch Opcode(frame[1]) {
	case OpClearMemory:
		return d.clearMemoryAck()
	case OpReadSerial:
		serial := fmt.Sprintf("%02X%02X%02X%02X", frame[2], frame[3], frame[4], frame[5])
		return Result{
			Opcode:     OpReadSerial,
			Partial:    Measurement{Serial: &serial},
			Directive:  d.retry(d.SerialSettleDelay),
			Recognized: true,
		}
	case OpReadStatus:
		return Result{
			Opcode:     OpReadStatus,
			Partial:    Measurement{SpO2: ptr(int(frame[2])), Pulse: ptr(int(frame[5]))},
			Directive:  Directive{Action: Finalize},
			Recognized: true,
		}
	case OpBatteryStatus:
		return Result{
			Opcode: OpBatteryStatus,
			Partial: Measurement{
				Battery:  ptr(int(frame[2])),
				Firmware: ptr(strconv.Itoa(int(frame[4]))),
			},
			Directive:  Directive{Action: Continue},
			Recognized: true,
		}
	}
	return unrecognized(frame)
}

func (d Decoder) decodeBPMonitor(frame []byte) Result {
	if len(frame) < MinResponseLen {
		return d.short(frame, d.SettleDelay)
	}
	switch op := Opcode(frame[1]); op {
	case OpClearMemory:
		return d.clearMemoryAck()
	case OpReadBPResultAlt, OpReadResult:
		return Result{
			Opcode: op,
			Partial: Measurement{
				Systolic:  ptr(float64(frame[2])),
				Diastolic: ptr(float64(frame[4])),
				Pulse:     ptr(int(frame[5])),
			},
			Directive:  Directive{Action: Finalize},
			Recognized: true,
		}
	}
	return unrecognized(frame)
}

func (d Decoder) decodeGlucose(frame []byte) Result {
	if len(frame) < MinResponseLen {
		return d.short(frame, d.SettleDelay)
	}
	switch Opcode(frame[1]) {
	case OpClearMemory:
		return d.clearMemoryAck()
	case OpReadGlucoseTime:
		res := Result{Opcode: OpReadGlucoseTime, Directive: d.retry(d.SettleDelay), Recognized: true}
		if ts, ok := UnpackGlucoseTime([4]byte{frame[2], frame[3], frame[4], frame[5]}); ok {
			res.Partial.RecordedAt = &ts
		}
		return res
	case OpReadResult:
		return Result{
			Opcode: OpReadResult,
			Partial: Measurement{
				Glucose: ptr(float64(frame[2])),
				Pulse:   ptr(int(frame[5])),
			},
			Directive:  Directive{Action: Finalize},
			Recognized: true,
		}
	}
	return unrecognized(frame)
}

func (d Decoder) decodeWeight(frame []byte) Result {
	if len(frame) < MinWeightResponseLen {
		// A clear-memory ack still needs the firmware settle time before the next read.
		if len(frame) >= 2 && Opcode(frame[1]) == OpClearMemory {
			return d.short(frame, d.SettleDelay)
		}
		return d.short(frame, 0)
	}
	switch Opcode(frame[1]) {
	case OpClearMemory:
		return d.clearMemoryAck()
	case OpReadWeightRecord:
		if len(frame) < WeightRecordLen {
			return d.short(frame, d.SettleDelay)
		}
		raw := int(frame[16])<<8 | int(frame[17])
		m := Measurement{
			RecordIndex: ptr(int(frame[4])<<8 | int(frame[3])),
			Weight:      ptr(float64(raw) / 10.0),
			BMI:         ptr(float64(frame[20])),
		}
		if ts, ok := recordTime(2000+int(frame[5]), int(frame[6]), int(frame[7]), int(frame[8]), int(frame[9])); ok {
			m.RecordedAt = &ts
		}
		return Result{
			Opcode:     OpReadWeightRecord,
			Partial:    m,
			Directive:  Directive{Action: Finalize},
			Recognized: true,
		}
	}
	return unrecognized(frame)
}

// UnpackGlucoseTime decodes the bit-packed glucose record time from the 4-byte payload:
// year = (b1>>1)+2000, month = (b1&1)<<3 | b0>>5, day = b0&0x1F, minute = b2&0x3F, hour = b3&0x1F.
func UnpackGlucoseTime(p [4]byte) (time.Time, bool) {
	year := int(p[1]>>1) + 2000
	month := int(p[1]&0x01)<<3 | int(p[0]>>5)
	day := int(p[0] & 0x1F)
	minute := int(p[2] & 0x3F)
	hour := int(p[3] & 0x1F)
	return recordTime(year, month, day, hour, minute)
}

// PackGlucoseTime is the inverse of UnpackGlucoseTime.
func PackGlucoseTime(t time.Time) [4]byte {
	y := byte(t.Year() - 2000)
	m := byte(t.Month())
	return [4]byte{
		(m&0x07)<<5 | byte(t.Day())&0x1F,
		y<<1 | (m>>3)&0x01,
		byte(t.Minute()) & 0x3F,
		byte(t.Hour()) & 0x1F,
	}
}

func recordTime(year, month, day, hour, minute int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC), true
}
