package parser

import (
	"github.com/google/gopacket/layers"

	"pcapscope/internal/models"
	"pcapscope/internal/wire"
)

const (
	protoICMP   = 1
	protoIGMP   = 2
	protoTCP    = 6
	protoUDP    = 17
	protoICMPv6 = 58
)

// TCP flag bits as they appear in the header.
const (
	flagFIN = 1 << iota
	flagSYN
	flagRST
	flagPSH
	flagACK
	flagURG
	flagECE
	flagCWR
)

var tcpFlagNames = []struct {
	bit  uint16
	name string
}{
	{flagFIN, "FIN"},
	{flagSYN, "SYN"},
	{flagRST, "RST"},
	{flagPSH, "PSH"},
	{flagACK, "ACK"},
	{flagURG, "URG"},
	{flagECE, "ECE"},
	{flagCWR, "CWR"},
}

// FlagNames lists the names of the bits set in a TCP flag mask.
func FlagNames(flags uint16) []string {
	names := []string{}
	for _, f := range tcpFlagNames {
		if flags&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return names
}

func (d *Dissection) transport(proto uint8, payload []byte) {
	switch proto {
	case protoTCP:
		d.tcp(payload)
	case protoUDP:
		d.udp(payload)
	case protoICMP:
		d.icmp(payload)
	case protoICMPv6:
		d.icmpv6(payload)
	case protoIGMP:
		d.igmp(payload)
	}
}

func clampDataOffset(off uint8) int {
	switch {
	case off < 5:
		return 5
	case off > 15:
		return 15
	}
	return int(off)
}

func (d *Dissection) tcp(data []byte) {
	rec, ok := tcpFromGopacket(data)
	if !ok {
		rec, ok = tcpFromCursor(data)
	}
	if !ok {
		d.Layers.Transport = &models.UnknownLayer{Reason: "short TCP header", Length: len(data)}
		return
	}
	rec.FlagNames = FlagNames(rec.Flags)

	var payload []byte
	if hl := clampDataOffset(rec.DataOffset) * 4; hl < len(data) {
		payload = data[hl:]
	}
	rec.PayloadLength = len(payload)
	d.Layers.Transport = rec
	d.Segment = &Segment{Seq: rec.Seq, Payload: payload}

	d.application("TCP", rec.SourcePort, rec.DestinationPort, payload)
}

func tcpFromGopacket(data []byte) (*models.TCP, bool) {
	var tcp layers.TCP
	if err := decode(&tcp, data); err != nil {
		return nil, false
	}
	var flags uint16
	for bit, set := range map[uint16]bool{
		flagFIN: tcp.FIN, flagSYN: tcp.SYN, flagRST: tcp.RST, flagPSH: tcp.PSH,
		flagACK: tcp.ACK, flagURG: tcp.URG, flagECE: tcp.ECE, flagCWR: tcp.CWR,
	} {
		if set {
			flags |= bit
		}
	}
	return &models.TCP{
		SourcePort:      uint16(tcp.SrcPort),
		DestinationPort: uint16(tcp.DstPort),
		Seq:             tcp.Seq,
		Ack:             tcp.Ack,
		DataOffset:      tcp.DataOffset,
		Flags:           flags,
		Window:          tcp.Window,
		Checksum:        tcp.Checksum,
		Urgent:          tcp.Urgent,
	}, true
}

// tcpFromCursor reads the fixed 20-byte header when gopacket rejects the
// segment, usually over a bad data offset or malformed options.
func tcpFromCursor(data []byte) (*models.TCP, bool) {
	c := wire.NewCursor(data)
	if !c.Has(0, 20) {
		return nil, false
	}
	rec := &models.TCP{}
	rec.SourcePort, _ = c.Uint16BE(0)
	rec.DestinationPort, _ = c.Uint16BE(2)
	rec.Seq, _ = c.Uint32BE(4)
	rec.Ack, _ = c.Uint32BE(8)
	rec.DataOffset = data[12] >> 4
	rec.Flags = uint16(data[13])
	rec.Window, _ = c.Uint16BE(14)
	rec.Checksum, _ = c.Uint16BE(16)
	rec.Urgent, _ = c.Uint16BE(18)
	return rec, true
}

func (d *Dissection) udp(data []byte) {
	var udp layers.UDP
	if err := decode(&udp, data); err != nil {
		d.Layers.Transport = &models.UnknownLayer{Reason: err.Error(), Length: len(data)}
		return
	}
	d.Layers.Transport = &models.UDP{
		SourcePort:      uint16(udp.SrcPort),
		DestinationPort: uint16(udp.DstPort),
		Length:          udp.Length,
		Checksum:        udp.Checksum,
	}
	d.application("UDP", uint16(udp.SrcPort), uint16(udp.DstPort), udp.Payload)
}

func (d *Dissection) icmp(data []byte) {
	var icmp layers.ICMPv4
	if err := decode(&icmp, data); err != nil {
		d.Layers.Transport = &models.UnknownLayer{Reason: err.Error(), Length: len(data)}
		return
	}
	rec := &models.ICMP{
		Type:     icmp.TypeCode.Type(),
		Code:     icmp.TypeCode.Code(),
		TypeName: icmp.TypeCode.String(),
		Checksum: icmp.Checksum,
	}
	switch rec.Type {
	case layers.ICMPv4TypeEchoReply, layers.ICMPv4TypeEchoRequest:
		id, seq := icmp.Id, icmp.Seq
		rec.ID, rec.Seq = &id, &seq
	}
	d.Layers.Transport = rec
}

func (d *Dissection) icmpv6(data []byte) {
	var icmp layers.ICMPv6
	if err := decode(&icmp, data); err != nil {
		d.Layers.Transport = &models.UnknownLayer{Reason: err.Error(), Length: len(data)}
		return
	}
	rec := &models.ICMPv6{
		Type:     icmp.TypeCode.Type(),
		Code:     icmp.TypeCode.Code(),
		TypeName: icmp.TypeCode.String(),
		Checksum: icmp.Checksum,
	}
	switch rec.Type {
	case layers.ICMPv6TypeEchoRequest, layers.ICMPv6TypeEchoReply:
		var echo layers.ICMPv6Echo
		if decode(&echo, icmp.Payload) == nil {
			id, seq := echo.Identifier, echo.SeqNumber
			rec.ID, rec.Seq = &id, &seq
		}
	}
	d.Layers.Transport = rec
}

var igmpTypeNames = map[uint8]string{
	0x11: "Membership Query",
	0x12: "Membership Report v1",
	0x16: "Membership Report v2",
	0x17: "Leave Group",
	0x22: "Membership Report v3",
}

func (d *Dissection) igmp(data []byte) {
	c := wire.NewCursor(data)
	if !c.Has(0, 8) {
		d.Layers.Transport = &models.UnknownLayer{Reason: "short IGMP message", Length: len(data)}
		return
	}
	rec := &models.IGMP{Type: data[0], MaxResponse: data[1]}
	rec.Checksum, _ = c.Uint16BE(2)
	rec.GroupAddress = wire.FormatIPv4(data[4:8])
	rec.TypeName = igmpTypeNames[rec.Type]
	if rec.TypeName == "" {
		rec.TypeName = "Unknown"
	}
	d.Layers.Transport = rec
}
