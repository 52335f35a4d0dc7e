// Package parser classifies captured frames and runs the layer dissection
// pipeline: link, network, transport, then application.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/gopacket"

	"pcapscope/internal/ble"
	"pcapscope/internal/models"
)

// Segment is the part of a TCP packet that stream reassembly needs.
type Segment struct {
	Seq     uint32
	Payload []byte
}

// Dissection is the pipeline output for one frame.
type Dissection struct {
	Class       Classification
	Layers      models.Layers
	Protocol    string
	Source      string
	Destination string
	Info        string

	// Segment is set for TCP packets.
	Segment *Segment
	// Fragment is set for BLE data PDUs and HCI ACL packets that carry
	// L2CAP traffic.
	Fragment *ble.Fragment
	// AppTime is the time spent in application-layer dissection.
	AppTime time.Duration
}

// Parse runs the whole pipeline over one frame. It never panics on
// malformed input: a stage that cannot make sense of its bytes leaves an
// Unknown record and the chain stops there.
func Parse(data []byte, linkType uint32) *Dissection {
	d := &Dissection{Class: Classify(data, linkType)}

	switch d.Class.Kind {
	case KindEthernet, KindEthernetOther:
		d.ethernet(data)
	case KindLinuxSLL:
		d.linuxSLL(data)
	case KindLoopback:
		d.loopback(data)
	case KindRawIP:
		d.Layers.Link = &models.RawLink{LinkType: linkType}
		d.ip(data)
	case KindIPSearch:
		off := d.Class.Offset
		d.Layers.Link = &models.UnknownLayer{
			Reason: fmt.Sprintf("IP header found at offset %d", off),
			Length: off,
		}
		d.ip(data[off:])
	case KindBareARP:
		d.arp(bareARPHeader(data, d.Class.Offset))
	case KindUSBPcap:
		d.usbPcap(data)
	case KindUSBLinux:
		d.usbLinux(data, linkType)
	case KindBLE:
		d.bleLinkLayer(data, d.Class.Encapsulation)
	case KindHCI:
		d.hciH4(data, d.Class.Encapsulation)
	default:
		d.Layers.Link = &models.UnknownLayer{Reason: "unrecognized link layer", Length: len(data)}
	}

	d.summarize()
	return d
}

// decoder is the part of gopacket.DecodingLayer the pipeline needs.
// layers.USB implements only this half.
type decoder interface {
	DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error
}

// decode runs a gopacket decoder, turning a panic on hostile input into an
// error.
func decode(l decoder, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode %T: %v", l, r)
		}
	}()
	return l.DecodeFromBytes(data, gopacket.NilDecodeFeedback)
}

// HexDump renders data as offset, hex and ASCII columns.
func HexDump(data []byte) string {
	var sb strings.Builder
	for offset := 0; offset < len(data); offset += 16 {
		sb.WriteString(fmt.Sprintf("%04x  ", offset))

		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		for i := offset; i < offset+16; i++ {
			if i < end {
				sb.WriteString(fmt.Sprintf("%02x ", data[i]))
			} else {
				sb.WriteString("   ")
			}
			if i == offset+7 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(" |")

		for i := offset; i < end; i++ {
			b := data[i]
			if b >= 0x20 && b <= 0x7e {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('|')
		sb.WriteByte('\n')
	}
	return sb.String()
}

// RawHex renders data as one lowercase hex string.
func RawHex(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		sb.WriteString(fmt.Sprintf("%02x", b))
	}
	return sb.String()
}
