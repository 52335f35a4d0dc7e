package capture

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/google/gopacket/layers"

	"pcapscope/internal/wire"
)

const (
	blockSectionHeader  = 0x0a0d0d0a
	blockInterface      = 0x00000001
	blockPacketObsolete = 0x00000002
	blockSimplePacket   = 0x00000003
	blockEnhancedPacket = 0x00000006

	byteOrderMagic = 0x1a2b3c4d

	minBlockLen = 12

	optEndOfOpt  = 0
	optIfName    = 2
	optIfTsresol = 9

	defaultTsResolution = 6
)

// ngWalker iterates PCAPNG blocks. Malformed blocks never abort the walk:
// the walker steps past the 8-byte block header and then probes aligned
// offsets until a self-consistent block shows up again.
type ngWalker struct {
	cur       *wire.Cursor
	order     binary.ByteOrder
	pos       int
	resyncing bool

	section []int // section-local interface id -> index into seen
	seen    []Interface

	ifaceTime *time.Duration
}

func newNgWalker(buf []byte, ifaceTime *time.Duration) *ngWalker {
	return &ngWalker{
		cur:       wire.NewCursor(buf),
		order:     binary.LittleEndian,
		ifaceTime: ifaceTime,
	}
}

func (w *ngWalker) next() (Record, bool) {
	for w.cur.Has(w.pos, minBlockLen) {
		blockType, _ := w.cur.Uint32(w.order, w.pos)
		if blockType == blockSectionHeader && !w.adoptByteOrder() {
			w.skipMalformed()
			continue
		}
		total, _ := w.cur.Uint32(w.order, w.pos+4)
		if !w.wellFormed(total) {
			w.skipMalformed()
			continue
		}
		w.resyncing = false
		start, size := w.pos, int(total)
		w.pos += size

		switch blockType {
		case blockSectionHeader:
			w.section = w.section[:0]
		case blockInterface:
			begin := time.Now()
			w.readInterface(start, size)
			if w.ifaceTime != nil {
				*w.ifaceTime += time.Since(begin)
			}
		case blockEnhancedPacket:
			if rec, ok := w.readEnhanced(start, size); ok {
				return rec, true
			}
		case blockPacketObsolete:
			if rec, ok := w.readObsolete(start, size); ok {
				return rec, true
			}
		case blockSimplePacket:
			if rec, ok := w.readSimple(start, size); ok {
				return rec, true
			}
		}
	}
	return Record{}, false
}

// adoptByteOrder reads the byte-order magic of a Section Header Block.
func (w *ngWalker) adoptByteOrder() bool {
	bom, ok := w.cur.Uint32LE(w.pos + 8)
	if !ok {
		return false
	}
	switch bom {
	case byteOrderMagic:
		w.order = binary.LittleEndian
	case 0x4d3c2b1a:
		w.order = binary.BigEndian
	default:
		return false
	}
	return true
}

func (w *ngWalker) wellFormed(total uint32) bool {
	if total < minBlockLen || !w.cur.Has(w.pos, int(total)) {
		return false
	}
	if w.resyncing && total%4 != 0 {
		return false
	}
	trailer, ok := w.cur.Uint32(w.order, w.pos+int(total)-4)
	return ok && trailer == total
}

func (w *ngWalker) skipMalformed() {
	if w.resyncing {
		w.pos += 4
		return
	}
	w.resyncing = true
	w.pos += 8
}

func (w *ngWalker) readInterface(start, size int) {
	lt, _ := w.cur.Uint16(w.order, start+8)
	snap, _ := w.cur.Uint32(w.order, start+12)
	iface := Interface{
		ID:                  len(w.seen),
		LinkType:            uint32(lt),
		SnapLen:             snap,
		TimestampResolution: defaultTsResolution,
	}

	end := start + size - 4
	for off := start + 16; off+4 <= end; {
		code, _ := w.cur.Uint16(w.order, off)
		length, _ := w.cur.Uint16(w.order, off+2)
		if code == optEndOfOpt {
			break
		}
		value, ok := w.cur.Slice(off+4, int(length))
		if !ok || off+4+int(length) > end {
			break
		}
		switch code {
		case optIfTsresol:
			if len(value) >= 1 {
				if value[0]&0x80 != 0 {
					iface.TimestampBase2 = true
					iface.TimestampResolution = int(value[0] & 0x7f)
				} else {
					iface.TimestampResolution = int(value[0])
				}
			}
		case optIfName:
			iface.Name = string(value)
		}
		off += 4 + (int(length)+3)&^3
	}

	w.section = append(w.section, len(w.seen))
	w.seen = append(w.seen, iface)
}

func (w *ngWalker) lookup(localID uint32) Interface {
	if int(localID) < len(w.section) {
		return w.seen[w.section[localID]]
	}
	return Interface{
		ID:                  -1,
		LinkType:            uint32(layers.LinkTypeEthernet),
		TimestampResolution: defaultTsResolution,
	}
}

func (w *ngWalker) readEnhanced(start, size int) (Record, bool) {
	localID, _ := w.cur.Uint32(w.order, start+8)
	return w.packetRecord(w.lookup(localID), start, size)
}

func (w *ngWalker) readObsolete(start, size int) (Record, bool) {
	localID, _ := w.cur.Uint16(w.order, start+8)
	return w.packetRecord(w.lookup(uint32(localID)), start, size)
}

// packetRecord decodes the layout shared by Enhanced and obsolete Packet
// Blocks: timestamp words at 12 and 16, lengths at 20 and 24, data at 28.
func (w *ngWalker) packetRecord(iface Interface, start, size int) (Record, bool) {
	high, ok1 := w.cur.Uint32(w.order, start+12)
	low, ok2 := w.cur.Uint32(w.order, start+16)
	capLen, ok3 := w.cur.Uint32(w.order, start+20)
	origLen, ok4 := w.cur.Uint32(w.order, start+24)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Record{}, false
	}
	room := size - 32
	if room < 0 {
		return Record{}, false
	}
	n := int(capLen)
	if uint64(capLen) > uint64(room) {
		n = room
	}
	data, _ := w.cur.Slice(start+28, n)

	raw := uint64(high)<<32 | uint64(low)
	return Record{
		LinkType:       iface.LinkType,
		InterfaceID:    iface.ID,
		Timestamp:      timestampSeconds(raw, iface),
		CapturedLength: n,
		OriginalLength: int(origLen),
		Data:           data,
	}, true
}

func (w *ngWalker) readSimple(start, size int) (Record, bool) {
	origLen, ok := w.cur.Uint32(w.order, start+8)
	if !ok {
		return Record{}, false
	}
	iface := w.lookup(0)
	room := size - 16
	if room < 0 {
		return Record{}, false
	}
	n := int(origLen)
	if uint64(origLen) > uint64(room) {
		n = room
	}
	data, _ := w.cur.Slice(start+12, n)
	return Record{
		LinkType:       iface.LinkType,
		InterfaceID:    iface.ID,
		CapturedLength: n,
		OriginalLength: int(origLen),
		Data:           data,
	}, true
}

// timestampSeconds converts a raw 64-bit PCAPNG timestamp. Some writers
// declare microsecond resolution while storing nanoseconds; a date past the
// year 3000 is taken as that mistake and the value is reread at 10^-9.
func timestampSeconds(raw uint64, iface Interface) float64 {
	if iface.TimestampBase2 {
		return float64(raw) / math.Pow(2, float64(iface.TimestampResolution))
	}
	secs := float64(raw) / math.Pow10(iface.TimestampResolution)
	if iface.TimestampResolution == 6 && secs < math.MaxInt64 &&
		time.Unix(int64(secs), 0).UTC().Year() > 3000 {
		secs = float64(raw) / 1e9
	}
	return secs
}
