package parser

import (
	"pcapscope/internal/flow"
	"pcapscope/internal/models"
)

// FlowTuple holds the extracted 5-tuple + TCP flags from a packet.
type FlowTuple struct {
	SrcIP    string
	DstIP    string
	SrcPort  uint16
	DstPort  uint16
	Protocol string
	Flags    flow.TCPFlags
	Valid    bool
}

// ExtractFlowTuple reads the flow 5-tuple and TCP flags from dissected
// layers. Valid is set only for TCP over IPv4 or IPv6.
func ExtractFlowTuple(ls models.Layers) FlowTuple {
	var t FlowTuple

	switch ip := ls.Network.(type) {
	case *models.IPv4:
		t.SrcIP, t.DstIP, t.Protocol = ip.Source, ip.Destination, ip.ProtocolName
	case *models.IPv6:
		t.SrcIP, t.DstIP, t.Protocol = ip.Source, ip.Destination, ip.NextHeaderName
	default:
		return t
	}

	switch tr := ls.Transport.(type) {
	case *models.TCP:
		t.SrcPort, t.DstPort = tr.SourcePort, tr.DestinationPort
		t.Protocol = "TCP"
		t.Flags = flow.TCPFlags{
			SYN: tr.Flags&flagSYN != 0,
			ACK: tr.Flags&flagACK != 0,
			FIN: tr.Flags&flagFIN != 0,
			RST: tr.Flags&flagRST != 0,
			PSH: tr.Flags&flagPSH != 0,
		}
		t.Valid = true
	case *models.UDP:
		t.SrcPort, t.DstPort = tr.SourcePort, tr.DestinationPort
		t.Protocol = "UDP"
	}
	return t
}
