package capture

import (
	"encoding/binary"
	"errors"
)

// Format identifies the container a capture buffer uses.
type Format int

const (
	Unrecognized Format = iota
	Pcap
	PcapNano
	PcapNg
)

func (f Format) String() string {
	switch f {
	case Pcap:
		return "pcap"
	case PcapNano:
		return "pcap-ns"
	case PcapNg:
		return "pcapng"
	default:
		return "unrecognized"
	}
}

const (
	magicPcap     = 0xa1b2c3d4
	magicPcapSwap = 0xd4c3b2a1
	magicNano     = 0xa1b23c4d
	magicNanoSwap = 0x4d3cb2a1
	magicPcapNg   = 0x0a0d0d0a
)

var (
	// ErrUnrecognizedFormat is returned for buffers with no known magic number.
	ErrUnrecognizedFormat = errors.New("capture: unrecognized file format")
	// ErrShortHeader is returned when the file header itself is truncated.
	ErrShortHeader = errors.New("capture: file header too short")
)

// Detect inspects the first four bytes of buf, read in both byte orders.
func Detect(buf []byte) Format {
	if len(buf) < 4 {
		return Unrecognized
	}
	le := binary.LittleEndian.Uint32(buf)
	be := binary.BigEndian.Uint32(buf)
	for _, m := range []uint32{le, be} {
		switch m {
		case magicPcap, magicPcapSwap:
			return Pcap
		case magicNano, magicNanoSwap:
			return PcapNano
		case magicPcapNg:
			return PcapNg
		}
	}
	return Unrecognized
}
