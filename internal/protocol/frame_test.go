package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  byte
	}{
		{"empty", nil, 0},
		{"single byte", []byte{0x42}, 0},
		{"read status", []byte{0x51, 0x49, 0, 0, 0, 0, 0xA3, 0}, 0x3D},
		{"wraps modulo 256", []byte{0xFF, 0xFF, 0x03, 0}, 0x01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Checksum(tt.frame))
		})
	}
}

func TestCatalog_EveryCommandVerifies(t *testing.T) {
	for _, cmd := range Commands() {
		t.Run(cmd.Name, func(t *testing.T) {
			f := cmd.Build()

			require.Len(t, f, cmd.Family.Len(), "frame MUST have the family length")
			assert.Equal(t, StartByte, f[0])
			assert.Equal(t, cmd.Opcode, f.Opcode())
			assert.Equal(t, StopByte, f[len(f)-2], "stop byte MUST precede the checksum")
			assert.Equal(t, Checksum(f), f[len(f)-1])
			assert.NoError(t, Verify(f))
		})
	}
}

func TestReadWeightRecord_UsesShortFamily(t *testing.T) {
	f := ReadWeightRecord()

	assert.Equal(t, "51 71 02 01 00 A3 68", f.String())
	assert.Equal(t, byte(0x68), f[6], "checksum MUST cover bytes[0..5]")
}

func TestStopWeightScale_UsesLongFamily(t *testing.T) {
	assert.Equal(t, "51 50 00 00 00 00 A3 44", StopWeightScale().String())
}

func TestVerify(t *testing.T) {
	good := ReadStatus()

	corrupt := func(i int, v byte) []byte {
		b := append([]byte(nil), good...)
		b[i] = v
		return b
	}

	tests := []struct {
		name    string
		frame   []byte
		wantErr error
	}{
		{"valid", good, nil},
		{"too short", good[:5], ErrFrameTooShort},
		{"bad start", corrupt(0, 0x50), ErrBadStartByte},
		{"bad stop", corrupt(6, 0xA2), ErrBadStopByte},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.frame)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("bad checksum", func(t *testing.T) {
		err := Verify(corrupt(7, 0x00))

		var csErr *ChecksumError
		require.True(t, errors.As(err, &csErr))
		assert.Equal(t, good[7], csErr.Want)
		assert.Equal(t, byte(0x00), csErr.Got)
	})
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{"51 49 00", []byte{0x51, 0x49, 0x00}, false},
		{"51:49:00", []byte{0x51, 0x49, 0x00}, false},
		{"0x51,0x49", []byte{0x51, 0x49}, false},
		{"514900", []byte{0x51, 0x49, 0x00}, false},
		{"5", nil, true},
		{"zz", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHex(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupCommand(t *testing.T) {
	cmd, err := LookupCommand("READ-Serial")
	require.NoError(t, err)
	assert.Equal(t, OpReadSerial, cmd.Opcode)

	_, err = LookupCommand("self-destruct")
	assert.Error(t, err)
}

func TestParseCategory(t *testing.T) {
	for _, c := range Categories {
		got, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseCategory("glucose-meter")
	require.NoError(t, err)
	assert.Equal(t, GlucoseMeter, got)

	_, err = ParseCategory("thermometer")
	assert.Error(t, err)
}
