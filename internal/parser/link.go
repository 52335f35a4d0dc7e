package parser

import (
	"github.com/google/gopacket/layers"

	"pcapscope/internal/models"
)

func (d *Dissection) ethernet(data []byte) {
	var eth layers.Ethernet
	if err := decode(&eth, data); err != nil {
		d.Layers.Link = &models.UnknownLayer{Reason: err.Error(), Length: len(data)}
		return
	}
	rec := &models.Ethernet{
		Source:      eth.SrcMAC.String(),
		Destination: eth.DstMAC.String(),
	}
	d.Layers.Link = rec

	et, payload := eth.EthernetType, eth.Payload
	for et == layers.EthernetTypeDot1Q {
		var tag layers.Dot1Q
		if err := decode(&tag, payload); err != nil {
			break
		}
		rec.VLANs = append(rec.VLANs, tag.VLANIdentifier)
		et, payload = tag.Type, tag.Payload
	}
	rec.EtherType = uint16(et)
	rec.EtherTypeName = et.String()

	if d.Class.Kind == KindEthernetOther {
		return
	}
	d.network(uint16(et), payload)
}

func (d *Dissection) linuxSLL(data []byte) {
	var sll layers.LinuxSLL
	if err := decode(&sll, data); err != nil {
		d.Layers.Link = &models.UnknownLayer{Reason: err.Error(), Length: len(data)}
		return
	}
	d.Layers.Link = &models.LinuxSLL{
		PacketType:  sll.PacketType.String(),
		AddressType: sll.AddrType,
		Address:     sll.Addr.String(),
		EtherType:   uint16(sll.EthernetType),
	}
	d.network(uint16(sll.EthernetType), sll.Payload)
}

func (d *Dissection) loopback(data []byte) {
	var lb layers.Loopback
	if err := decode(&lb, data); err != nil {
		d.Layers.Link = &models.UnknownLayer{Reason: err.Error(), Length: len(data)}
		return
	}
	d.Layers.Link = &models.Loopback{Family: uint32(lb.Family)}
	d.ip(lb.Payload)
}

// network dispatches on ethertype.
func (d *Dissection) network(etherType uint16, payload []byte) {
	switch etherType {
	case etherTypeIPv4, etherTypeIPv6:
		d.ip(payload)
	case etherTypeARP:
		d.arp(payload)
	case etherTypeLLDP:
		d.lldp(payload)
	}
}

// ip dispatches on the version nibble.
func (d *Dissection) ip(data []byte) {
	if len(data) == 0 {
		return
	}
	switch data[0] >> 4 {
	case 4:
		d.ipv4(data)
	case 6:
		d.ipv6(data)
	default:
		d.Layers.Network = &models.UnknownLayer{Reason: "bad IP version", Length: len(data)}
	}
}
