package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/rpmlink/internal/protocol"
)

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }
func timePtr(t time.Time) *time.Time { return &t }

var base = time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

func records() []Record {
	return []Record{
		{
			Address: "AA:BB:CC:DD:EE:01",
			Measurement: protocol.Measurement{
				Device: "TNG SPO2", Category: protocol.PulseOximeter, SessionID: "s-1",
				ReceivedAt: base, SpO2: intPtr(97), Pulse: intPtr(75),
			},
		},
		{
			Address: "AA:BB:CC:DD:EE:03",
			Measurement: protocol.Measurement{
				Device: "TNG SCALE", Category: protocol.WeightScale, SessionID: "s-2",
				ReceivedAt: base.Add(time.Hour), Weight: floatPtr(71), BMI: floatPtr(23),
				RecordIndex: intPtr(5), RecordedAt: timePtr(base.Add(-time.Minute)),
			},
		},
		{
			Measurement: protocol.Measurement{
				Device: "TNG SPO2 #2", Category: protocol.PulseOximeter, SessionID: "s-3",
				ReceivedAt: base.Add(2 * time.Hour), SpO2: intPtr(95), Pulse: intPtr(80),
			},
		},
	}
}

func writeJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "measurements.cbor")

	w, err := NewWriter(path)
	require.NoError(t, err)
	for _, r := range records()[:2] {
		require.NoError(t, w.Append(r))
	}
	require.NoError(t, w.Close())

	// reopening appends rather than truncating
	w, err = NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(records()[2]))
	require.NoError(t, w.Close())
	return path
}

func TestJournal_AppendAndRead(t *testing.T) {
	path := writeJournal(t)

	got, err := ReadAll(path, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	scale := got[1]
	assert.Equal(t, "AA:BB:CC:DD:EE:03", scale.Address)
	assert.Equal(t, protocol.WeightScale, scale.Measurement.Category)
	assert.InDelta(t, 71.0, *scale.Measurement.Weight, 1e-9)
	assert.Equal(t, 5, *scale.Measurement.RecordIndex)
	assert.True(t, base.Add(-time.Minute).Equal(*scale.Measurement.RecordedAt))
	assert.True(t, base.Add(time.Hour).Equal(scale.Measurement.ReceivedAt))
	assert.Nil(t, scale.Measurement.SpO2, "absent fields MUST stay absent")
}

func TestJournal_Filter(t *testing.T) {
	path := writeJournal(t)
	pulse := protocol.PulseOximeter
	since := base.Add(30 * time.Minute)
	until := base.Add(90 * time.Minute)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"by device substring", Filter{Device: "spo2"}, []string{"s-1", "s-3"}},
		{"by category", Filter{Category: &pulse}, []string{"s-1", "s-3"}},
		{"by session", Filter{SessionID: "s-2"}, []string{"s-2"}},
		{"since", Filter{Since: &since}, []string{"s-2", "s-3"}},
		{"window", Filter{Since: &since, Until: &until}, []string{"s-2"}},
		{"until is exclusive", Filter{Until: &base}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := ReadAll(path, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, r := range recs {
				ids = append(ids, r.Measurement.SessionID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "j.cbor"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Append(records()[0]), ErrClosed)
}

func TestReadAll_Errors(t *testing.T) {
	_, err := ReadAll(filepath.Join(t.TempDir(), "missing.cbor"), Filter{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	corrupt := filepath.Join(t.TempDir(), "corrupt.cbor")
	data, err := Encode(records()[0])
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(corrupt, append(data, 0xBF, 0x01), 0o644))

	recs, err := ReadAll(corrupt, Filter{})
	assert.Error(t, err, "truncated trailing record MUST be reported")
	assert.Len(t, recs, 1, "records before the damage MUST be returned")
}

func TestEncodeDecode_IntegerKeys(t *testing.T) {
	data, err := Encode(records()[0])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "spo2", "records MUST use integer keys")

	rec, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 97, *rec.Measurement.SpO2)
}
