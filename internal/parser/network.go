package parser

import (
	"encoding/hex"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"pcapscope/internal/models"
	"pcapscope/internal/wire"
)

// arp decodes an ARP body field by field so that a frame cut short still
// reports what it has.
func (d *Dissection) arp(data []byte) {
	c := wire.NewCursor(data)
	rec := &models.ARP{}
	d.Layers.Network = rec

	rec.HardwareType, _ = c.Uint16BE(0)
	rec.ProtocolType, _ = c.Uint16BE(2)
	hlen, ok1 := c.Uint8(4)
	plen, ok2 := c.Uint8(5)
	op, ok3 := c.Uint16BE(6)
	if !ok1 || !ok2 || !ok3 {
		rec.Truncated = true
		return
	}
	rec.Operation = op

	hl, pl := int(hlen), int(plen)
	fields := []struct {
		off, n int
		dst    *string
		hw     bool
	}{
		{8, hl, &rec.SenderMAC, true},
		{8 + hl, pl, &rec.SenderIP, false},
		{8 + hl + pl, hl, &rec.TargetMAC, true},
		{8 + 2*hl + pl, pl, &rec.TargetIP, false},
	}
	for _, f := range fields {
		b, ok := c.Slice(f.off, f.n)
		if !ok {
			rec.Truncated = true
			return
		}
		*f.dst = arpAddress(b, f.hw)
	}
}

// bareARPHeader lines a bare ARP frame up on its header, restoring the
// fixed bytes lost from the front.
func bareARPHeader(data []byte, opcodeAt int) []byte {
	if opcodeAt >= len(arpPrefix) {
		return data[opcodeAt-len(arpPrefix):]
	}
	head := append([]byte{}, arpPrefix[:len(arpPrefix)-opcodeAt]...)
	return append(head, data...)
}

func arpAddress(b []byte, hw bool) string {
	switch {
	case hw && len(b) == 6:
		return wire.FormatMAC(b)
	case !hw && len(b) == 4:
		return wire.FormatIPv4(b)
	case !hw && len(b) == 16:
		return wire.FormatIPv6(b)
	}
	return hex.EncodeToString(b)
}

func (d *Dissection) ipv4(data []byte) {
	var ip layers.IPv4
	if err := decode(&ip, data); err != nil {
		d.Layers.Network = &models.UnknownLayer{Reason: err.Error(), Length: len(data)}
		return
	}
	rec := &models.IPv4{
		Version:        ip.Version,
		HeaderLength:   int(ip.IHL) * 4,
		TOS:            ip.TOS,
		TotalLength:    ip.Length,
		ID:             ip.Id,
		Flags:          ip.Flags.String(),
		FragmentOffset: ip.FragOffset,
		TTL:            ip.TTL,
		Protocol:       uint8(ip.Protocol),
		ProtocolName:   ip.Protocol.String(),
		Checksum:       ip.Checksum,
		Source:         wire.FormatIPv4(ip.SrcIP),
		Destination:    wire.FormatIPv4(ip.DstIP),
	}
	d.Layers.Network = rec

	// Only the first fragment carries the transport header.
	if ip.FragOffset != 0 {
		return
	}
	d.transport(uint8(ip.Protocol), ip.Payload)
}

// IPv6 extension headers walked before the transport header.
const (
	ip6HopByHop    = 0
	ip6Routing     = 43
	ip6Fragment    = 44
	ip6DestOptions = 60
	maxExtHeaders  = 8
)

func (d *Dissection) ipv6(data []byte) {
	var ip layers.IPv6
	if err := decode(&ip, data); err != nil {
		d.Layers.Network = &models.UnknownLayer{Reason: err.Error(), Length: len(data)}
		return
	}
	rec := &models.IPv6{
		Version:        ip.Version,
		TrafficClass:   ip.TrafficClass,
		FlowLabel:      ip.FlowLabel,
		PayloadLength:  ip.Length,
		NextHeader:     uint8(ip.NextHeader),
		NextHeaderName: ip.NextHeader.String(),
		HopLimit:       ip.HopLimit,
		Source:         wire.FormatIPv6(ip.SrcIP),
		Destination:    wire.FormatIPv6(ip.DstIP),
	}
	d.Layers.Network = rec

	next, payload := uint8(ip.NextHeader), ip.Payload
	for i := 0; i < maxExtHeaders; i++ {
		c := wire.NewCursor(payload)
		switch next {
		case ip6HopByHop, ip6Routing, ip6DestOptions:
			n, ok := c.Uint8(1)
			size := (int(n) + 1) * 8
			if !ok || size > len(payload) {
				return
			}
			next, payload = payload[0], payload[size:]
		case ip6Fragment:
			fo, ok := c.Uint16BE(2)
			if !ok || len(payload) < 8 {
				return
			}
			next, payload = payload[0], payload[8:]
			if fo>>3 != 0 {
				return
			}
		default:
			d.transport(next, payload)
			return
		}
	}
}

func (d *Dissection) lldp(data []byte) {
	// LLDP has no DecodingLayer form in gopacket, so it goes through a packet.
	pkt := gopacket.NewPacket(data, layers.LayerTypeLinkLayerDiscovery, gopacket.NoCopy)
	l, ok := pkt.Layer(layers.LayerTypeLinkLayerDiscovery).(*layers.LinkLayerDiscovery)
	if !ok {
		reason := "malformed LLDP"
		if e := pkt.ErrorLayer(); e != nil {
			reason = e.Error().Error()
		}
		d.Layers.Network = &models.UnknownLayer{Reason: reason, Length: len(data)}
		return
	}
	rec := &models.LLDP{
		ChassisID: lldpID(l.ChassisID.ID),
		PortID:    lldpID(l.PortID.ID),
		TTL:       l.TTL,
	}
	for _, v := range l.Values {
		switch v.Type {
		case layers.LLDPTLVEnd:
		case layers.LLDPTLVSysName:
			rec.SystemName = string(v.Value)
		default:
			rec.Other = append(rec.Other, models.RawTLV{Type: uint8(v.Type), Value: hex.EncodeToString(v.Value)})
		}
	}
	d.Layers.Network = rec
}

func lldpID(b []byte) string {
	if len(b) == 6 {
		return wire.FormatMAC(b)
	}
	if s := wire.Printable(b); len(s) == len(b) {
		return s
	}
	return hex.EncodeToString(b)
}
