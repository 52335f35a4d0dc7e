package models

// ==================== Link ====================

// Ethernet is an Ethernet II header, including any 802.1Q tags.
type Ethernet struct {
	Source        string   `json:"source"`
	Destination   string   `json:"destination"`
	EtherType     uint16   `json:"etherType"`
	EtherTypeName string   `json:"etherTypeName"`
	VLANs         []uint16 `json:"vlans,omitempty"`
}

// LinuxSLL is a Linux "cooked" capture header.
type LinuxSLL struct {
	PacketType  string `json:"packetType"`
	AddressType uint16 `json:"addressType"`
	Address     string `json:"address"`
	EtherType   uint16 `json:"etherType"`
}

// Loopback is a BSD null/loopback header.
type Loopback struct {
	Family uint32 `json:"family"`
}

// RawLink marks frames that start directly with an IP header.
type RawLink struct {
	LinkType uint32 `json:"linkType"`
}

// USB is a USBPcap or Linux usbmon pseudo-header.
type USB struct {
	Source       string `json:"source"`
	IRPID        uint64 `json:"irpId,omitempty"`
	Status       int32  `json:"status"`
	Function     uint16 `json:"function,omitempty"`
	Bus          uint16 `json:"bus"`
	Device       uint16 `json:"device"`
	Endpoint     uint8  `json:"endpoint"`
	Direction    string `json:"direction"`
	TransferType string `json:"transferType"`
	DataLength   uint32 `json:"dataLength"`
	HeaderLength int    `json:"headerLength"`
}

// BLELink is a Bluetooth LE link-layer PDU, with any sniffer header fields.
type BLELink struct {
	Encapsulation string `json:"encapsulation"`
	AccessAddress uint32 `json:"accessAddress"`
	Advertising   bool   `json:"advertising"`
	Channel       int    `json:"channel,omitempty"`
	RSSI          int    `json:"rssi,omitempty"`
	EventCounter  int    `json:"eventCounter,omitempty"`
	LLID          uint8  `json:"llid,omitempty"`
	NESN          bool   `json:"nesn,omitempty"`
	SN            bool   `json:"sn,omitempty"`
	MD            bool   `json:"md,omitempty"`
	PDUType       uint8  `json:"pduType,omitempty"`
	PDULength     int    `json:"pduLength"`
	CRC           uint32 `json:"crc,omitempty"`
}

// BluetoothHCI is an H4 HCI packet with its ACL header when present.
type BluetoothHCI struct {
	PacketType     uint8  `json:"packetType"`
	PacketTypeName string `json:"packetTypeName"`
	Direction      string `json:"direction,omitempty"`
	Handle         uint16 `json:"handle,omitempty"`
	PBFlag         uint8  `json:"pbFlag,omitempty"`
	BCFlag         uint8  `json:"bcFlag,omitempty"`
	DataLength     uint16 `json:"dataLength,omitempty"`
}

// ==================== Network ====================

// ARP is an ARP request or reply. Truncated is set when the frame ended
// before the address fields.
type ARP struct {
	HardwareType uint16 `json:"hardwareType"`
	ProtocolType uint16 `json:"protocolType"`
	Operation    uint16 `json:"operation"`
	SenderMAC    string `json:"senderMac,omitempty"`
	SenderIP     string `json:"senderIp,omitempty"`
	TargetMAC    string `json:"targetMac,omitempty"`
	TargetIP     string `json:"targetIp,omitempty"`
	Truncated    bool   `json:"truncated,omitempty"`
}

// IPv4 header fields.
type IPv4 struct {
	Version        uint8  `json:"version"`
	HeaderLength   int    `json:"headerLength"`
	TOS            uint8  `json:"tos"`
	TotalLength    uint16 `json:"totalLength"`
	ID             uint16 `json:"id"`
	Flags          string `json:"flags"`
	FragmentOffset uint16 `json:"fragmentOffset"`
	TTL            uint8  `json:"ttl"`
	Protocol       uint8  `json:"protocol"`
	ProtocolName   string `json:"protocolName"`
	Checksum       uint16 `json:"checksum"`
	Source         string `json:"source"`
	Destination    string `json:"destination"`
}

// IPv6 header fields.
type IPv6 struct {
	Version        uint8  `json:"version"`
	TrafficClass   uint8  `json:"trafficClass"`
	FlowLabel      uint32 `json:"flowLabel"`
	PayloadLength  uint16 `json:"payloadLength"`
	NextHeader     uint8  `json:"nextHeader"`
	NextHeaderName string `json:"nextHeaderName"`
	HopLimit       uint8  `json:"hopLimit"`
	Source         string `json:"source"`
	Destination    string `json:"destination"`
}

// LLDP carries the mandatory TLVs; anything else is kept raw.
type LLDP struct {
	ChassisID  string   `json:"chassisId"`
	PortID     string   `json:"portId"`
	TTL        uint16   `json:"ttl"`
	SystemName string   `json:"systemName,omitempty"`
	Other      []RawTLV `json:"other,omitempty"`
}

// RawTLV is a TLV this module does not interpret.
type RawTLV struct {
	Type  uint8  `json:"type"`
	Value string `json:"value"`
}

// ==================== Transport ====================

// TCP header fields. Stream is attached once the segment is tracked.
type TCP struct {
	SourcePort      uint16         `json:"sourcePort"`
	DestinationPort uint16         `json:"destinationPort"`
	Seq             uint32         `json:"seq"`
	Ack             uint32         `json:"ack"`
	DataOffset      uint8          `json:"dataOffset"`
	Flags           uint16         `json:"flags"`
	FlagNames       []string       `json:"flagNames"`
	Window          uint16         `json:"window"`
	Checksum        uint16         `json:"checksum"`
	Urgent          uint16         `json:"urgent"`
	PayloadLength   int            `json:"payloadLength"`
	Stream          *StreamSummary `json:"stream,omitempty"`
}

// StreamSummary ties a TCP segment to its reassembled stream.
type StreamSummary struct {
	StreamID          int    `json:"streamId"`
	Direction         string `json:"direction"`
	RelatedPackets    int    `json:"relatedPackets"`
	ReassembledLength int    `json:"reassembledLength"`
}

// UDP header fields.
type UDP struct {
	SourcePort      uint16 `json:"sourcePort"`
	DestinationPort uint16 `json:"destinationPort"`
	Length          uint16 `json:"length"`
	Checksum        uint16 `json:"checksum"`
}

// ICMP is an ICMPv4 message. ID and Seq are set for echo messages.
type ICMP struct {
	Type     uint8   `json:"type"`
	Code     uint8   `json:"code"`
	TypeName string  `json:"typeName"`
	Checksum uint16  `json:"checksum"`
	ID       *uint16 `json:"id,omitempty"`
	Seq      *uint16 `json:"seq,omitempty"`
}

// ICMPv6 message fields. ID and Seq are set for echo messages.
type ICMPv6 struct {
	Type     uint8   `json:"type"`
	Code     uint8   `json:"code"`
	TypeName string  `json:"typeName"`
	Checksum uint16  `json:"checksum"`
	ID       *uint16 `json:"id,omitempty"`
	Seq      *uint16 `json:"seq,omitempty"`
}

// IGMP message fields.
type IGMP struct {
	Type         uint8  `json:"type"`
	TypeName     string `json:"typeName"`
	MaxResponse  uint8  `json:"maxResponse"`
	Checksum     uint16 `json:"checksum"`
	GroupAddress string `json:"groupAddress"`
}

// ==================== Application ====================

// HTTP is a request or response found at the start of a segment.
type HTTP struct {
	Info HTTPInfo `json:"httpInfo"`
}

// HTTPInfo is the structured form of one HTTP message.
type HTTPInfo struct {
	IsRequest  bool              `json:"isRequest"`
	Method     string            `json:"method,omitempty"`
	Path       string            `json:"path,omitempty"`
	Version    string            `json:"version"`
	StatusCode int               `json:"statusCode,omitempty"`
	StatusText string            `json:"statusText,omitempty"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body,omitempty"`
}

// DNS message summary.
type DNS struct {
	ID        uint16      `json:"id"`
	Response  bool        `json:"response"`
	Opcode    uint8       `json:"opcode"`
	RCode     string      `json:"rcode"`
	Questions []DNSRecord `json:"questions"`
	Answers   []DNSRecord `json:"answers,omitempty"`
}

// DNSRecord is a question or resource record.
type DNSRecord struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Class string `json:"class,omitempty"`
	TTL   uint32 `json:"ttl,omitempty"`
	Data  string `json:"data,omitempty"`
}

// TLS record header plus ClientHello fingerprint data when present.
type TLS struct {
	ContentType   string   `json:"contentType"`
	Version       string   `json:"version"`
	RecordLength  uint16   `json:"recordLength"`
	HandshakeType string   `json:"handshakeType,omitempty"`
	ServerName    string   `json:"serverName,omitempty"`
	ClientVersion string   `json:"clientVersion,omitempty"`
	CipherSuites  []string `json:"cipherSuites,omitempty"`
	Extensions    []uint16 `json:"extensions,omitempty"`
	JA3           string   `json:"ja3,omitempty"`
	JA3Hash       string   `json:"ja3Hash,omitempty"`
}

// L2CAP is a BLE L2CAP frame or a continuation fragment of one.
type L2CAP struct {
	Length       uint16        `json:"length,omitempty"`
	ChannelID    uint16        `json:"channelId,omitempty"`
	ChannelName  string        `json:"channelName,omitempty"`
	Continuation bool          `json:"continuation,omitempty"`
	Payload      string        `json:"payload"`
	Fragment     *FragmentInfo `json:"fragment,omitempty"`
}

// FragmentInfo describes a packet's part in BLE reassembly.
type FragmentInfo struct {
	IsFragment        bool       `json:"isFragment"`
	IsReassembled     bool       `json:"isReassembled"`
	InProgress        bool       `json:"inProgress,omitempty"`
	FragmentCount     int        `json:"fragmentCount"`
	Members           []int      `json:"members"`
	ReassembledLength int        `json:"reassembledLength,omitempty"`
	Reassembled       string     `json:"reassembled,omitempty"`
	Checksums         *Checksums `json:"checksums,omitempty"`
}

// Checksums over a reassembled payload.
type Checksums struct {
	Sum  uint8 `json:"sum"`
	XOR  uint8 `json:"xor"`
	CRC8 uint8 `json:"crc8"`
}

// BLEAdvertising is an advertising-channel PDU.
type BLEAdvertising struct {
	PDUType     uint8         `json:"pduType"`
	PDUTypeName string        `json:"pduTypeName"`
	TxAdd       bool          `json:"txAdd"`
	RxAdd       bool          `json:"rxAdd"`
	Address     string        `json:"address,omitempty"`
	LocalName   string        `json:"localName,omitempty"`
	Structures  []ADStructure `json:"structures,omitempty"`
}

// ADStructure is one advertising data element.
type ADStructure struct {
	Type     uint8  `json:"type"`
	TypeName string `json:"typeName"`
	Value    string `json:"value"`
}

// AppData is the generic record produced by catalogue sub-dissectors.
type AppData struct {
	Name   string       `json:"name"`
	Fields []LayerField `json:"fields"`
}

// ==================== Fallback ====================

// UnknownLayer is the best-effort record for bytes no dissector accepted.
type UnknownLayer struct {
	Reason string `json:"reason,omitempty"`
	Length int    `json:"length"`
}

func (*Ethernet) LayerName() string       { return "Ethernet" }
func (*LinuxSLL) LayerName() string       { return "Linux SLL" }
func (*Loopback) LayerName() string       { return "Loopback" }
func (*RawLink) LayerName() string        { return "Raw IP" }
func (*USB) LayerName() string            { return "USB" }
func (*BLELink) LayerName() string        { return "BLE LL" }
func (*BluetoothHCI) LayerName() string   { return "HCI" }
func (*ARP) LayerName() string            { return "ARP" }
func (*IPv4) LayerName() string           { return "IPv4" }
func (*IPv6) LayerName() string           { return "IPv6" }
func (*LLDP) LayerName() string           { return "LLDP" }
func (*TCP) LayerName() string            { return "TCP" }
func (*UDP) LayerName() string            { return "UDP" }
func (*ICMP) LayerName() string           { return "ICMP" }
func (*ICMPv6) LayerName() string         { return "ICMPv6" }
func (*IGMP) LayerName() string           { return "IGMP" }
func (*HTTP) LayerName() string           { return "HTTP" }
func (*DNS) LayerName() string            { return "DNS" }
func (*TLS) LayerName() string            { return "TLS" }
func (*L2CAP) LayerName() string          { return "L2CAP" }
func (*BLEAdvertising) LayerName() string { return "BLE ADV" }
func (a *AppData) LayerName() string      { return a.Name }
func (*UnknownLayer) LayerName() string   { return "Unknown" }

func (*Ethernet) linkLayer()     {}
func (*LinuxSLL) linkLayer()     {}
func (*Loopback) linkLayer()     {}
func (*RawLink) linkLayer()      {}
func (*USB) linkLayer()          {}
func (*BLELink) linkLayer()      {}
func (*BluetoothHCI) linkLayer() {}
func (*UnknownLayer) linkLayer() {}

func (*ARP) networkLayer()          {}
func (*IPv4) networkLayer()         {}
func (*IPv6) networkLayer()         {}
func (*LLDP) networkLayer()         {}
func (*UnknownLayer) networkLayer() {}

func (*TCP) transportLayer()          {}
func (*UDP) transportLayer()          {}
func (*ICMP) transportLayer()         {}
func (*ICMPv6) transportLayer()       {}
func (*IGMP) transportLayer()         {}
func (*UnknownLayer) transportLayer() {}

func (*HTTP) applicationLayer()           {}
func (*DNS) applicationLayer()            {}
func (*TLS) applicationLayer()            {}
func (*L2CAP) applicationLayer()          {}
func (*BLEAdvertising) applicationLayer() {}
func (*AppData) applicationLayer()         {}
