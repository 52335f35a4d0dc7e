package capture

import (
	"encoding/binary"
	"fmt"

	"pcapscope/internal/wire"
)

const (
	pcapHeaderLen = 24
	pcapRecordLen = 16
)

// pcapWalker iterates classic libpcap records.
type pcapWalker struct {
	cur      *wire.Cursor
	order    binary.ByteOrder
	nano     bool
	linkType uint32
	pos      int
}

func newPcapWalker(buf []byte, nano bool) (*pcapWalker, error) {
	if len(buf) < pcapHeaderLen {
		return nil, fmt.Errorf("pcap global header is %d bytes: %w", len(buf), ErrShortHeader)
	}
	// The two magic numbers mirror each other, so the first two bytes are
	// enough to tell which byte order wrote the file.
	var order binary.ByteOrder = binary.BigEndian
	if (buf[0] == 0xd4 && buf[1] == 0xc3) || (buf[0] == 0x4d && buf[1] == 0x3c) {
		order = binary.LittleEndian
	}
	cur := wire.NewCursor(buf)
	network, _ := cur.Uint32(order, 20)
	return &pcapWalker{
		cur:      cur,
		order:    order,
		nano:     nano,
		linkType: network,
		pos:      pcapHeaderLen,
	}, nil
}

func (w *pcapWalker) next() (Record, bool) {
	if !w.cur.Has(w.pos, pcapRecordLen) {
		return Record{}, false
	}
	tsSec, _ := w.cur.Uint32(w.order, w.pos)
	tsFrac, _ := w.cur.Uint32(w.order, w.pos+4)
	inclLen, _ := w.cur.Uint32(w.order, w.pos+8)
	origLen, _ := w.cur.Uint32(w.order, w.pos+12)

	dataStart := w.pos + pcapRecordLen
	if uint64(inclLen) > uint64(w.cur.Len()-dataStart) {
		return Record{}, false
	}
	data, _ := w.cur.Slice(dataStart, int(inclLen))
	w.pos = dataStart + int(inclLen)

	divisor := 1e6
	if w.nano {
		divisor = 1e9
	}
	return Record{
		LinkType:       w.linkType,
		Timestamp:      float64(tsSec) + float64(tsFrac)/divisor,
		CapturedLength: int(inclLen),
		OriginalLength: int(origLen),
		Data:           data,
	}, true
}
