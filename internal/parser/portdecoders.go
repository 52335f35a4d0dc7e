package parser

import (
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"

	"pcapscope/internal/models"
	"pcapscope/internal/wire"
)

// portDecoder is a well-known-port decoder tried after the content
// catalogue. Decode returns nil when the payload does not parse.
type portDecoder struct {
	Transport string
	Ports     []uint16
	Decode    func(payload []byte, transport string) models.ApplicationLayer
}

var portDecoders = []portDecoder{
	{Transport: "UDP", Ports: []uint16{53, 5353, 5355}, Decode: decodeDNS},
	{Transport: "TCP", Ports: []uint16{53}, Decode: decodeDNS},
	{Transport: "UDP", Ports: []uint16{67, 68}, Decode: decodeDHCP},
	{Transport: "UDP", Ports: []uint16{123}, Decode: decodeNTP},
}

func decodeDNS(payload []byte, transport string) models.ApplicationLayer {
	// DNS over TCP prefixes each message with its length.
	if transport == "TCP" {
		if len(payload) < 2 {
			return nil
		}
		payload = payload[2:]
	}
	var dns layers.DNS
	if err := decode(&dns, payload); err != nil {
		return nil
	}
	rec := &models.DNS{
		ID:        dns.ID,
		Response:  dns.QR,
		Opcode:    uint8(dns.OpCode),
		RCode:     dns.ResponseCode.String(),
		Questions: []models.DNSRecord{},
	}
	for _, q := range dns.Questions {
		rec.Questions = append(rec.Questions, models.DNSRecord{
			Name:  string(q.Name),
			Type:  q.Type.String(),
			Class: q.Class.String(),
		})
	}
	for _, a := range dns.Answers {
		rec.Answers = append(rec.Answers, models.DNSRecord{
			Name:  string(a.Name),
			Type:  a.Type.String(),
			Class: a.Class.String(),
			TTL:   a.TTL,
			Data:  dnsAnswerData(a),
		})
	}
	return rec
}

func dnsAnswerData(a layers.DNSResourceRecord) string {
	switch a.Type {
	case layers.DNSTypeA:
		return wire.FormatIPv4(a.IP)
	case layers.DNSTypeAAAA:
		return wire.FormatIPv6(a.IP)
	case layers.DNSTypeCNAME:
		return string(a.CNAME)
	case layers.DNSTypeNS:
		return string(a.NS)
	case layers.DNSTypePTR:
		return string(a.PTR)
	case layers.DNSTypeMX:
		return fmt.Sprintf("%d %s", a.MX.Preference, a.MX.Name)
	case layers.DNSTypeTXT:
		parts := make([]string, 0, len(a.TXTs))
		for _, t := range a.TXTs {
			parts = append(parts, string(t))
		}
		return strings.Join(parts, " ")
	}
	return fmt.Sprintf("%d bytes", len(a.Data))
}

func decodeDHCP(payload []byte, _ string) models.ApplicationLayer {
	var dhcp layers.DHCPv4
	if err := decode(&dhcp, payload); err != nil {
		return nil
	}
	fields := []models.LayerField{
		field("Operation", dhcp.Operation.String()),
		field("Transaction ID", fmt.Sprintf("0x%08x", dhcp.Xid)),
		field("Client IP", wire.FormatIPv4(dhcp.ClientIP)),
		field("Your IP", wire.FormatIPv4(dhcp.YourClientIP)),
		field("Client MAC", dhcp.ClientHWAddr.String()),
	}
	for _, opt := range dhcp.Options {
		switch opt.Type {
		case layers.DHCPOptPad, layers.DHCPOptEnd:
			continue
		case layers.DHCPOptMessageType:
			if len(opt.Data) == 1 {
				fields = append(fields, field("Message Type", layers.DHCPMsgType(opt.Data[0]).String()))
				continue
			}
		case layers.DHCPOptHostname:
			fields = append(fields, field("Hostname", string(opt.Data)))
			continue
		case layers.DHCPOptRequestIP, layers.DHCPOptServerID, layers.DHCPOptRouter, layers.DHCPOptSubnetMask:
			if len(opt.Data) == 4 {
				fields = append(fields, field(opt.Type.String(), wire.FormatIPv4(opt.Data)))
				continue
			}
		}
		fields = append(fields, field(opt.Type.String(), fmt.Sprintf("%x", opt.Data)))
	}
	return &models.AppData{Name: "DHCP", Fields: fields}
}

var ntpModes = []string{"reserved", "symmetric active", "symmetric passive", "client", "server", "broadcast", "control", "private"}

func decodeNTP(payload []byte, _ string) models.ApplicationLayer {
	var ntp layers.NTP
	if err := decode(&ntp, payload); err != nil {
		return nil
	}
	mode := "unknown"
	if int(ntp.Mode) < len(ntpModes) {
		mode = ntpModes[ntp.Mode]
	}
	return &models.AppData{Name: "NTP", Fields: []models.LayerField{
		field("Version", fmt.Sprintf("%d", ntp.Version)),
		field("Mode", mode),
		field("Stratum", fmt.Sprintf("%d", ntp.Stratum)),
		field("Poll", fmt.Sprintf("%d", ntp.Poll)),
		field("Precision", fmt.Sprintf("%d", ntp.Precision)),
		field("Reference ID", fmt.Sprintf("0x%08x", uint32(ntp.ReferenceID))),
		field("Transmit Timestamp", fmt.Sprintf("0x%016x", uint64(ntp.TransmitTimestamp))),
	}}
}
