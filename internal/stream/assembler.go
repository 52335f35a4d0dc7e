// Package stream reassembles TCP byte streams from individual segments.
package stream

import (
	"sort"

	"pcapscope/internal/models"
)

// DefaultMaxBuffer caps the bytes kept per stream direction.
const DefaultMaxBuffer = 256 * 1024

type segment struct {
	seq     uint32
	payload []byte
}

// direction is the reassembly state of one side of a stream.
type direction struct {
	next    uint32
	started bool
	gaps    []segment
	data    []byte
	length  int
}

type dirKey struct {
	stream int
	dir    string
}

// Reassembler rebuilds in-order byte streams per stream and direction.
// It is not safe for concurrent use.
type Reassembler struct {
	dirs      map[dirKey]*direction
	maxBuffer int
}

// NewReassembler creates a reassembler keeping at most maxBuffer bytes
// per direction. A non-positive value selects DefaultMaxBuffer.
func NewReassembler(maxBuffer int) *Reassembler {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	return &Reassembler{dirs: make(map[dirKey]*direction), maxBuffer: maxBuffer}
}

// seqDiff compares sequence numbers with wraparound.
func seqDiff(a, b uint32) int32 {
	return int32(a - b)
}

// Add feeds one segment and returns the direction's reassembled length.
//
// The first segment seeds the expected sequence number at seq plus its
// length, or seq+1 for an empty segment such as a SYN. A segment at the
// expected number is appended and any buffered segments it unblocks are
// drained. A segment ahead of it is buffered in sequence order, and one
// behind it is dropped.
func (r *Reassembler) Add(streamID int, dir string, seq uint32, payload []byte) int {
	d := r.direction(streamID, dir)

	if !d.started {
		d.started = true
		d.append(payload, r.maxBuffer)
		adv := uint32(len(payload))
		if adv == 0 {
			adv = 1
		}
		d.next = seq + adv
		return d.length
	}

	switch diff := seqDiff(seq, d.next); {
	case diff == 0:
		d.append(payload, r.maxBuffer)
		d.next += uint32(len(payload))
		d.drain(r.maxBuffer)
	case diff > 0:
		if len(payload) > 0 {
			d.buffer(seq, payload)
		}
	}
	return d.length
}

func (r *Reassembler) direction(streamID int, dir string) *direction {
	k := dirKey{streamID, dir}
	d, ok := r.dirs[k]
	if !ok {
		d = &direction{}
		r.dirs[k] = d
	}
	return d
}

func (d *direction) append(payload []byte, max int) {
	d.length += len(payload)
	d.data = appendCapped(d.data, payload, max)
}

// buffer inserts a segment keeping the gap list sorted. A second segment
// with the same sequence number is ignored.
func (d *direction) buffer(seq uint32, payload []byte) {
	i := sort.Search(len(d.gaps), func(i int) bool { return seqDiff(d.gaps[i].seq, seq) >= 0 })
	if i < len(d.gaps) && d.gaps[i].seq == seq {
		return
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	d.gaps = append(d.gaps, segment{})
	copy(d.gaps[i+1:], d.gaps[i:])
	d.gaps[i] = segment{seq: seq, payload: cp}
}

// drain applies buffered segments for as long as the head of the gap list
// is the next expected one. Segments left behind by the advance are
// discarded.
func (d *direction) drain(max int) {
	for len(d.gaps) > 0 {
		head := d.gaps[0]
		diff := seqDiff(head.seq, d.next)
		if diff > 0 {
			return
		}
		d.gaps = d.gaps[1:]
		if diff == 0 {
			d.append(head.payload, max)
			d.next += uint32(len(head.payload))
		}
	}
}

// Len returns the reassembled length of one direction.
func (r *Reassembler) Len(streamID int, dir string) int {
	if d, ok := r.dirs[dirKey{streamID, dir}]; ok {
		return d.length
	}
	return 0
}

// Data returns the reassembled bytes of one direction, capped at the
// reassembler's buffer size.
func (r *Reassembler) Data(streamID int, dir string) []byte {
	if d, ok := r.dirs[dirKey{streamID, dir}]; ok {
		return d.data
	}
	return nil
}

// Buffered reports how many out-of-order segments wait in one direction.
func (r *Reassembler) Buffered(streamID int, dir string) int {
	if d, ok := r.dirs[dirKey{streamID, dir}]; ok {
		return len(d.gaps)
	}
	return 0
}

// Summary describes a segment's stream as of now.
func (r *Reassembler) Summary(s *models.Stream, dir string) *models.StreamSummary {
	return &models.StreamSummary{
		StreamID:          s.ID,
		Direction:         dir,
		RelatedPackets:    len(s.PacketIDs),
		ReassembledLength: r.Len(s.ID, dir),
	}
}

func appendCapped(buf, data []byte, cap int) []byte {
	remaining := cap - len(buf)
	if remaining <= 0 {
		return buf
	}
	if len(data) > remaining {
		data = data[:remaining]
	}
	return append(buf, data...)
}
