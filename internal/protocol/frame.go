package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Frame delimiters shared by every command family
const (
	StartByte byte = 0x51
	StopByte  byte = 0xA3
)

// Opcode is the second byte of a frame
type Opcode byte

const (
	OpReadGlucoseTime  Opcode = 0x23
	OpReadBPResultAlt  Opcode = 0x25
	OpReadResult       Opcode = 0x26
	OpReadSerial       Opcode = 0x27
	OpReadStatus       Opcode = 0x49
	OpBatteryStatus    Opcode = 0x4F
	OpStopDevice       Opcode = 0x50
	OpClearMemory      Opcode = 0x52
	OpReadWeightRecord Opcode = 0x71
)

func (o Opcode) String() string {
	return fmt.Sprintf("0x%02X", byte(o))
}

// Family identifies the fixed frame length a firmware command family uses.
// The checksum covers every byte before it, so the family decides the checksum width.
type Family int

const (
	// FamilyLong frames are 8 bytes: start|opcode|4 data|stop|checksum(bytes[0..6]).
	FamilyLong Family = iota
	// FamilyShort frames are 7 bytes: start|opcode|3 data|stop|checksum(bytes[0..5]).
	FamilyShort
)

// Len returns the frame length of the family
func (f Family) Len() int {
	if f == FamilyShort {
		return 7
	}
	return 8
}

func (f Family) String() string {
	if f == FamilyShort {
		return "6-then-checksum"
	}
	return "7-then-checksum"
}

// Frame verification errors
var (
	ErrFrameTooShort = errors.New("frame too short")
	ErrBadStartByte  = errors.New("bad start byte")
	ErrBadStopByte   = errors.New("bad stop byte")
)

// ChecksumError reports a checksum mismatch
type ChecksumError struct {
	Want byte
	Got  byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: want 0x%02X, got 0x%02X", e.Want, e.Got)
}

// Frame is a command frame ready for transmission. The checksum byte is always last
// and is computed once when the frame is built.
type Frame []byte

// Opcode returns the frame's opcode, or zero for frames shorter than two bytes.
func (f Frame) Opcode() Opcode {
	if len(f) < 2 {
		return 0
	}
	return Opcode(f[1])
}

// String renders the frame as space separated upper-case hex ("51 49 00 ...").
func (f Frame) String() string {
	return HexString(f)
}

// Checksum returns the low byte of the sum of every byte except the last one.
func Checksum(frame []byte) byte {
	var sum byte
	if len(frame) == 0 {
		return 0
	}
	for _, b := range frame[:len(frame)-1] {
		sum += b
	}
	return sum
}

// Build assembles an 8-byte frame with a checksum over the first seven bytes.
func Build(op Opcode, data [4]byte) Frame {
	f := Frame{StartByte, byte(op), data[0], data[1], data[2], data[3], StopByte, 0}
	f[7] = Checksum(f)
	return f
}

// BuildShort assembles a 7-byte frame with a checksum over the first six bytes.
func BuildShort(op Opcode, data [3]byte) Frame {
	f := Frame{StartByte, byte(op), data[0], data[1], data[2], StopByte, 0}
	f[6] = Checksum(f)
	return f
}

// Verify checks the delimiters and the checksum of a command frame.
func Verify(frame []byte) error {
	if len(frame) < FamilyShort.Len() {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	if frame[0] != StartByte {
		return fmt.Errorf("%w: 0x%02X", ErrBadStartByte, frame[0])
	}
	if frame[len(frame)-2] != StopByte {
		return fmt.Errorf("%w: 0x%02X", ErrBadStopByte, frame[len(frame)-2])
	}
	if want, got := Checksum(frame), frame[len(frame)-1]; want != got {
		return &ChecksumError{Want: want, Got: got}
	}
	return nil
}

// HexString renders bytes as space separated upper-case hex
func HexString(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, " ")
}

// ParseHex parses "51 49 00", "51:49:00", "0x51,0x49" or "514900" into bytes.
func ParseHex(s string) ([]byte, error) {
	r := strings.NewReplacer(" ", "", ":", "", ",", "", "-", "", "0x", "", "0X", "")
	clean := r.Replace(strings.TrimSpace(s))
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}
