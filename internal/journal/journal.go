// Package journal keeps an append-only file of finalized measurements as a
// stream of CBOR records.
package journal

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/srg/rpmlink/internal/protocol"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("journal closed")

// Record is one journal entry
type Record struct {
	Address     string               `cbor:"1,keyasint,omitempty"`
	Measurement protocol.Measurement `cbor:"2,keyasint"`
}

// Writer appends records to a journal file. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
}

// NewWriter opens path for appending, creating it with 0644 permissions.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{file: f, encoder: newEncoder(f)}, nil
}

// Append writes r to the journal.
func (w *Writer) Append(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.encoder.Encode(r)
}

// Close closes the file. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	Device    string // case-insensitive substring of the device name
	Category  *protocol.Category
	SessionID string
	Since     *time.Time // received at or after
	Until     *time.Time // received before
}

func (f *Filter) matches(r Record) bool {
	m := r.Measurement
	if f.Device != "" && !strings.Contains(strings.ToLower(m.Device), strings.ToLower(f.Device)) {
		return false
	}
	if f.Category != nil && m.Category != *f.Category {
		return false
	}
	if f.SessionID != "" && m.SessionID != f.SessionID {
		return false
	}
	if f.Since != nil && m.ReceivedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !m.ReceivedAt.Before(*f.Until) {
		return false
	}
	return true
}

// Reader iterates over a journal file
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens path and yields every record.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path and yields records matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: newDecoder(f), filter: filter}, nil
}

// Next returns the next matching record or io.EOF.
func (r *Reader) Next() (Record, error) {
	for {
		var rec Record
		if err := r.decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, err
		}
		if r.filter.matches(rec) {
			return rec, nil
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll returns every record in path matching filter.
func ReadAll(path string, filter Filter) ([]Record, error) {
	r, err := NewFilteredReader(path, filter)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
