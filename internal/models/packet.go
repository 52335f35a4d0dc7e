package models

import "encoding/json"

// Packet is one decoded capture record.
type Packet struct {
	ID             int     `json:"id"`
	Timestamp      float64 `json:"timestamp"`
	CapturedLength int     `json:"capturedLength"`
	OriginalLength int     `json:"originalLength"`
	InterfaceID    int     `json:"interfaceId"`
	LinkType       uint32  `json:"linkType"`
	Protocol       string  `json:"protocol"`
	Source         string  `json:"source"`
	Destination    string  `json:"destination"`
	Info           string  `json:"info"`
	Layers         Layers  `json:"layers"`
	Data           []byte  `json:"-"`
}

// Layers holds at most one record per protocol layer.
type Layers struct {
	Link        LinkLayer
	Network     NetworkLayer
	Transport   TransportLayer
	Application ApplicationLayer
}

// Layer is implemented by every layer variant.
type Layer interface {
	LayerName() string
}

// LinkLayer is one of Ethernet, LinuxSLL, Loopback, RawLink, USB, BLELink,
// BluetoothHCI or UnknownLayer.
type LinkLayer interface {
	Layer
	linkLayer()
}

// NetworkLayer is one of ARP, IPv4, IPv6, LLDP or UnknownLayer.
type NetworkLayer interface {
	Layer
	networkLayer()
}

// TransportLayer is one of TCP, UDP, ICMP, ICMPv6, IGMP or UnknownLayer.
type TransportLayer interface {
	Layer
	transportLayer()
}

// ApplicationLayer is one of HTTP, DNS, TLS, L2CAP, BLEAdvertising or AppData.
type ApplicationLayer interface {
	Layer
	applicationLayer()
}

// Stack returns the present layers from link to application.
func (l Layers) Stack() []Layer {
	out := make([]Layer, 0, 4)
	if l.Link != nil {
		out = append(out, l.Link)
	}
	if l.Network != nil {
		out = append(out, l.Network)
	}
	if l.Transport != nil {
		out = append(out, l.Transport)
	}
	if l.Application != nil {
		out = append(out, l.Application)
	}
	return out
}

type layerEnvelope struct {
	Protocol string `json:"protocol"`
	Fields   Layer  `json:"fields"`
}

func envelope(l Layer) *layerEnvelope {
	if l == nil {
		return nil
	}
	return &layerEnvelope{Protocol: l.LayerName(), Fields: l}
}

// MarshalJSON tags every present layer with its protocol name.
func (l Layers) MarshalJSON() ([]byte, error) {
	out := struct {
		Link        *layerEnvelope `json:"link,omitempty"`
		Network     *layerEnvelope `json:"network,omitempty"`
		Transport   *layerEnvelope `json:"transport,omitempty"`
		Application *layerEnvelope `json:"application,omitempty"`
	}{}
	if l.Link != nil {
		out.Link = envelope(l.Link)
	}
	if l.Network != nil {
		out.Network = envelope(l.Network)
	}
	if l.Transport != nil {
		out.Transport = envelope(l.Transport)
	}
	if l.Application != nil {
		out.Application = envelope(l.Application)
	}
	return json.Marshal(out)
}

// PacketDetail is the expanded view of one packet sent to clients.
type PacketDetail struct {
	Packet  *Packet       `json:"packet"`
	Details []LayerDetail `json:"details"`
	HexDump string        `json:"hexDump"`
	RawHex  string        `json:"rawHex"`
}

// LayerDetail represents one protocol layer in the packet.
type LayerDetail struct {
	Name   string       `json:"name"`
	Fields []LayerField `json:"fields"`
}

// LayerField represents a single field within a protocol layer.
type LayerField struct {
	Name     string       `json:"name"`
	Value    string       `json:"value"`
	Children []LayerField `json:"children,omitempty"`
}
