// Package capture walks PCAP and PCAPNG containers held in memory and yields
// one Record per captured frame.
package capture

import (
	"fmt"
	"time"
)

// Record is one captured frame as stored in the container.
type Record struct {
	LinkType       uint32
	InterfaceID    int
	Timestamp      float64
	CapturedLength int
	OriginalLength int
	Data           []byte
}

// Interface describes a PCAPNG Interface Description Block.
type Interface struct {
	ID                  int    `json:"id"`
	LinkType            uint32 `json:"linkType"`
	SnapLen             uint32 `json:"snapLen"`
	TimestampResolution int    `json:"timestampResolution"`
	TimestampBase2      bool   `json:"timestampBase2,omitempty"`
	Name                string `json:"name,omitempty"`
}

type walker interface {
	next() (Record, bool)
}

// Reader iterates the records of an in-memory capture buffer.
type Reader struct {
	format Format
	w      walker
	ng     *ngWalker

	// InterfaceTime accumulates time spent decoding interface blocks.
	InterfaceTime time.Duration
}

// NewReader detects the container format of buf and prepares iteration.
// Unknown formats and truncated file headers are reported as errors; the
// caller treats both as an empty capture.
func NewReader(buf []byte) (*Reader, error) {
	format := Detect(buf)
	r := &Reader{format: format}
	switch format {
	case Pcap, PcapNano:
		pw, err := newPcapWalker(buf, format == PcapNano)
		if err != nil {
			return r, err
		}
		r.w = pw
	case PcapNg:
		r.ng = newNgWalker(buf, &r.InterfaceTime)
		r.w = r.ng
	default:
		return r, fmt.Errorf("detect %d-byte buffer: %w", len(buf), ErrUnrecognizedFormat)
	}
	return r, nil
}

// Format returns the detected container format.
func (r *Reader) Format() Format { return r.format }

// Next returns the next record. It returns false once the buffer is
// exhausted or the remaining bytes cannot hold another record.
func (r *Reader) Next() (Record, bool) {
	if r.w == nil {
		return Record{}, false
	}
	return r.w.next()
}

// Interfaces returns every interface seen so far, in discovery order across
// all sections. Classic PCAP files report none.
func (r *Reader) Interfaces() []Interface {
	if r.ng == nil {
		return nil
	}
	out := make([]Interface, len(r.ng.seen))
	copy(out, r.ng.seen)
	return out
}
