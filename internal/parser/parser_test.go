package parser

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"net"
	"strings"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"pcapscope/internal/models"
)

func TestParseHTTPRequestOnNonstandardPort(t *testing.T) {
	payload := []byte("POST /api/login HTTP/1.1\r\nHost: example.com\r\nContent-Type: application/json\r\n\r\n{\"u\":1}")
	d := Parse(tcpPacket(t, 40000, 8080, payload), 1)

	assert.Equal(t, KindEthernet, d.Class.Kind)
	assert.Equal(t, "HTTP", d.Protocol)
	assert.Equal(t, "10.0.0.1:40000", d.Source)
	assert.Equal(t, "10.0.0.2:8080", d.Destination)
	assert.Equal(t, "POST /api/login HTTP/1.1", d.Info)

	h, ok := d.Layers.Application.(*models.HTTP)
	require.True(t, ok)
	assert.True(t, h.Info.IsRequest)
	assert.Equal(t, "/api/login", h.Info.Path)
	assert.Equal(t, "application/json", h.Info.Headers["Content-Type"])
	assert.Equal(t, `{"u":1}`, h.Info.Body)

	require.NotNil(t, d.Segment)
	assert.Equal(t, uint32(1000), d.Segment.Seq)
	assert.Equal(t, payload, d.Segment.Payload)

	tcp := d.Layers.Transport.(*models.TCP)
	assert.Equal(t, []string{"PSH", "ACK"}, tcp.FlagNames)
	assert.Equal(t, len(payload), tcp.PayloadLength)
}

func TestParsePort80WithoutHTTPIsNotHTTP(t *testing.T) {
	d := Parse(tcpPacket(t, 51000, 80, []byte("\x00\x01binary junk")), 1)
	assert.Equal(t, "TCP", d.Protocol)
	assert.Nil(t, d.Layers.Application)
	assert.True(t, strings.HasPrefix(d.Info, "51000 -> 80 [PSH,ACK]"), d.Info)
}

func TestParseHTTPResponse(t *testing.T) {
	d := Parse(tcpPacket(t, 80, 40000, []byte("HTTP/1.1 404 Not Found\r\nServer: x\r\n\r\n")), 1)
	assert.Equal(t, "HTTP", d.Protocol)
	assert.Equal(t, "HTTP/1.1 404 Not Found", d.Info)
	h := d.Layers.Application.(*models.HTTP)
	assert.Equal(t, 404, h.Info.StatusCode)
	assert.False(t, h.Info.IsRequest)
}

func TestParseBareARP(t *testing.T) {
	d := Parse(bareARP(), 1)
	assert.Equal(t, "ARP", d.Protocol)
	assert.Equal(t, "Who has 192.168.1.1? Tell 192.168.1.10", d.Info)
	assert.Equal(t, "192.168.1.10", d.Source)
	arp := d.Layers.Network.(*models.ARP)
	assert.Equal(t, "02:00:00:00:11:22", arp.SenderMAC)
	assert.False(t, arp.Truncated)
	assert.Nil(t, d.Layers.Link)
}

func TestParseBareARPCutAtFront(t *testing.T) {
	d := Parse(bareARP()[4:], 1)
	assert.Equal(t, "ARP", d.Protocol)
	assert.Equal(t, "Who has 192.168.1.1? Tell 192.168.1.10", d.Info)
	arp := d.Layers.Network.(*models.ARP)
	assert.Equal(t, uint16(1), arp.HardwareType)
	assert.False(t, arp.Truncated)

	d = Parse(bareARP()[:12], 1)
	assert.Equal(t, "ARP", d.Protocol)
	assert.True(t, d.Layers.Network.(*models.ARP).Truncated)
}

func TestParseEthernetWithEmptyARPBody(t *testing.T) {
	d := Parse(etherHeader(layers.EthernetTypeARP), 1)
	assert.Equal(t, "ARP", d.Protocol)
	assert.Equal(t, "Truncated ARP", d.Info)
	assert.True(t, d.Layers.Network.(*models.ARP).Truncated)
}

func TestParseTruncatedIPIsUnknown(t *testing.T) {
	frame := append(etherHeader(layers.EthernetTypeIPv4), 0x45, 0x00, 0x00)
	d := Parse(frame, 1)
	assert.Equal(t, "Unknown", d.Protocol)
	_, ok := d.Layers.Network.(*models.UnknownLayer)
	assert.True(t, ok)
	assert.Nil(t, d.Segment)
}

func TestParseDNSQuery(t *testing.T) {
	dns := &layers.DNS{
		ID:      0x1234,
		RD:      true,
		QDCount: 1,
		Questions: []layers.DNSQuestion{
			{Name: []byte("example.com"), Type: layers.DNSTypeA, Class: layers.DNSClassIN},
		},
	}
	d := Parse(udpPacket(t, 53000, 53, dns), 1)
	assert.Equal(t, "DNS", d.Protocol)
	assert.Equal(t, "Standard query 0x1234 A example.com", d.Info)
	rec := d.Layers.Application.(*models.DNS)
	require.Len(t, rec.Questions, 1)
	assert.Equal(t, "example.com", rec.Questions[0].Name)
	assert.Nil(t, d.Segment)
}

func TestParseDNSResponseAnswers(t *testing.T) {
	dns := &layers.DNS{
		ID: 7, QR: true, ResponseCode: layers.DNSResponseCodeNoErr,
		Questions: []layers.DNSQuestion{{Name: []byte("a.test"), Type: layers.DNSTypeAAAA, Class: layers.DNSClassIN}},
		Answers: []layers.DNSResourceRecord{{
			Name: []byte("a.test"), Type: layers.DNSTypeAAAA, Class: layers.DNSClassIN, TTL: 60,
			IP: net.ParseIP("2001:db8::5"),
		}},
	}
	d := Parse(udpPacket(t, 53, 53000, dns), 1)
	rec := d.Layers.Application.(*models.DNS)
	assert.True(t, rec.Response)
	require.Len(t, rec.Answers, 1)
	assert.Equal(t, "2001:db8::5", rec.Answers[0].Data)
	assert.Equal(t, uint32(60), rec.Answers[0].TTL)
}

func TestParseICMPv6Echo(t *testing.T) {
	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolICMPv6,
		HopLimit:   64,
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8::2"),
	}
	icmp := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoRequest, 0)}
	require.NoError(t, icmp.SetNetworkLayerForChecksum(ip))
	echo := &layers.ICMPv6Echo{Identifier: 7, SeqNumber: 3}
	d := Parse(serialize(t, ethernet(layers.EthernetTypeIPv6), ip, icmp, echo), 1)

	assert.Equal(t, "ICMPv6", d.Protocol)
	assert.Equal(t, "2001:db8::1", d.Source)
	rec := d.Layers.Transport.(*models.ICMPv6)
	require.NotNil(t, rec.ID)
	assert.Equal(t, uint16(7), *rec.ID)
	assert.Equal(t, uint16(3), *rec.Seq)
	assert.Contains(t, d.Info, "seq=3")
}

func TestParseIPv6TCPUsesBracketedEndpoints(t *testing.T) {
	ip := &layers.IPv6{
		Version: 6, NextHeader: layers.IPProtocolTCP, HopLimit: 64,
		SrcIP: net.ParseIP("fe80::1"), DstIP: net.ParseIP("::1"),
	}
	tcp := &layers.TCP{SrcPort: 1234, DstPort: 22, SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	d := Parse(serialize(t, ethernet(layers.EthernetTypeIPv6), ip, tcp), 1)

	assert.Equal(t, "TCP", d.Protocol)
	assert.Equal(t, "[fe80::1]:1234", d.Source)
	assert.Equal(t, "[::1]:22", d.Destination)

	tuple := ExtractFlowTuple(d.Layers)
	assert.True(t, tuple.Valid)
	assert.True(t, tuple.Flags.SYN)
	assert.Equal(t, "::1", tuple.DstIP)
}

func TestExtractFlowTupleIgnoresUDP(t *testing.T) {
	d := Parse(udpPacket(t, 1, 2, gopacket.Payload("z")), 1)
	tuple := ExtractFlowTuple(d.Layers)
	assert.False(t, tuple.Valid)
	assert.Equal(t, "UDP", tuple.Protocol)
}

func TestTCPDataOffsetIsClamped(t *testing.T) {
	raw := make([]byte, 20)
	binary.BigEndian.PutUint16(raw[0:], 1234)
	binary.BigEndian.PutUint16(raw[2:], 5678)
	binary.BigEndian.PutUint32(raw[4:], 1)
	raw[12] = 2 << 4 // below the minimum of 5 words
	raw[13] = flagPSH | flagACK
	raw = append(raw, "abc"...)

	ip := ipv4(layers.IPProtocolTCP)
	d := Parse(serialize(t, ip, gopacket.Payload(raw)), 101)

	tcp, ok := d.Layers.Transport.(*models.TCP)
	require.True(t, ok)
	assert.Equal(t, uint8(2), tcp.DataOffset)
	assert.Equal(t, 3, tcp.PayloadLength)
	assert.Equal(t, []string{"PSH", "ACK"}, tcp.FlagNames)
	require.NotNil(t, d.Segment)
	assert.Equal(t, []byte("abc"), d.Segment.Payload)
	_, isRaw := d.Layers.Link.(*models.RawLink)
	assert.True(t, isRaw)
}

func TestIPSearchOffset(t *testing.T) {
	ip := udpPacket(t, 5000, 6000, gopacket.Payload("hello"))[14:]
	d := Parse(append([]byte{0xaa, 0xaa, 0xaa}, ip...), 147)
	assert.Equal(t, KindIPSearch, d.Class.Kind)
	assert.Equal(t, "UDP", d.Protocol)
	assert.Equal(t, "10.0.0.1:5000", d.Source)
}

func clientHelloRecord(sni string) []byte {
	var ext bytes.Buffer
	name := []byte(sni)
	// server_name extension holding one host_name entry
	binary.Write(&ext, binary.BigEndian, uint16(0))
	binary.Write(&ext, binary.BigEndian, uint16(len(name)+5))
	binary.Write(&ext, binary.BigEndian, uint16(len(name)+3))
	ext.WriteByte(0)
	binary.Write(&ext, binary.BigEndian, uint16(len(name)))
	ext.Write(name)

	var body bytes.Buffer
	body.Write([]byte{0x03, 0x03})
	body.Write(make([]byte, 32))
	body.WriteByte(0)
	body.Write([]byte{0x00, 0x04, 0x13, 0x01, 0xc0, 0x2b})
	body.Write([]byte{0x01, 0x00})
	binary.Write(&body, binary.BigEndian, uint16(ext.Len()))
	body.Write(ext.Bytes())

	hs := []byte{0x01, 0, byte(body.Len() >> 8), byte(body.Len())}
	hs = append(hs, body.Bytes()...)
	rec := []byte{0x16, 0x03, 0x01, byte(len(hs) >> 8), byte(len(hs))}
	return append(rec, hs...)
}

func TestParseTLSClientHello(t *testing.T) {
	d := Parse(tcpPacket(t, 50000, 443, clientHelloRecord("example.com")), 1)
	assert.Equal(t, "TLS", d.Protocol)
	assert.Equal(t, "Client Hello SNI=example.com", d.Info)

	rec := d.Layers.Application.(*models.TLS)
	assert.Equal(t, "Handshake", rec.ContentType)
	assert.Equal(t, "TLS 1.0", rec.Version)
	assert.Equal(t, "TLS 1.2", rec.ClientVersion)
	assert.Equal(t, []string{"TLS_AES_128_GCM_SHA256", "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"}, rec.CipherSuites)
	assert.Equal(t, "771,4865-49195,0,,", rec.JA3)
	assert.Len(t, rec.JA3Hash, 32)
}

func TestParseSSHBanner(t *testing.T) {
	d := Parse(tcpPacket(t, 22, 60000, []byte("SSH-2.0-OpenSSH_8.9\r\n")), 1)
	assert.Equal(t, "SSH", d.Protocol)
	app := d.Layers.Application.(*models.AppData)
	assert.Equal(t, "Version String", app.Fields[0].Name)
	assert.Equal(t, "SSH-2.0-OpenSSH_8.9", app.Fields[0].Value)
}

func TestParseHTTP2Preface(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(http2.ClientPreface)
	fr := http2.NewFramer(&buf, nil)
	require.NoError(t, fr.WriteSettings(http2.Setting{ID: http2.SettingMaxConcurrentStreams, Val: 100}))

	var hb bytes.Buffer
	enc := hpack.NewEncoder(&hb)
	require.NoError(t, enc.WriteField(hpack.HeaderField{Name: ":method", Value: "GET"}))
	require.NoError(t, enc.WriteField(hpack.HeaderField{Name: ":path", Value: "/"}))
	require.NoError(t, fr.WriteHeaders(http2.HeadersFrameParam{StreamID: 1, BlockFragment: hb.Bytes(), EndHeaders: true, EndStream: true}))

	d := Parse(tcpPacket(t, 40000, 8080, buf.Bytes()), 1)
	assert.Equal(t, "HTTP2", d.Protocol)
	app := d.Layers.Application.(*models.AppData)
	require.Len(t, app.Fields, 3)
	assert.Equal(t, "SETTINGS", app.Fields[1].Name)
	assert.Contains(t, app.Fields[1].Children, models.LayerField{Name: "MAX_CONCURRENT_STREAMS", Value: "100"})
	assert.Equal(t, "HEADERS", app.Fields[2].Name)
	assert.Equal(t, "stream 1", app.Fields[2].Value)
	assert.Contains(t, app.Fields[2].Children, models.LayerField{Name: ":method", Value: "GET"})
}

func TestParsePortLabel(t *testing.T) {
	d := Parse(tcpPacket(t, 3306, 41000, []byte{0x4a, 0x00, 0x00, 0x00, 0x0a}), 1)
	assert.Equal(t, "MySQL", d.Protocol)
	assert.Equal(t, "Payload Length: 5", d.Info)
}

func TestParseBLEAdvertising(t *testing.T) {
	pdu := []byte{0x66, 0x55, 0x44, 0x33, 0x22, 0x11} // AdvA, LSB first
	pdu = append(pdu, 0x02, 0x01, 0x06)
	pdu = append(pdu, 0x05, 0x09, 'T', 'e', 's', 't')
	frame := []byte{0xd6, 0xbe, 0x89, 0x8e, 0x00, byte(len(pdu))}
	frame = append(frame, pdu...)
	frame = append(frame, 0x01, 0x02, 0x03)

	d := Parse(frame, 251)
	assert.Equal(t, "BLE ADV", d.Protocol)
	assert.Equal(t, "11:22:33:44:55:66", d.Source)
	assert.Equal(t, "broadcast", d.Destination)
	assert.Equal(t, `ADV_IND 11:22:33:44:55:66 "Test"`, d.Info)

	link := d.Layers.Link.(*models.BLELink)
	assert.True(t, link.Advertising)
	assert.Equal(t, uint32(0x030201), link.CRC)
	adv := d.Layers.Application.(*models.BLEAdvertising)
	require.Len(t, adv.Structures, 2)
	assert.Equal(t, "Test", adv.LocalName)
	assert.Nil(t, d.Fragment)
}

func TestParseBLEDataPDUStartsFragment(t *testing.T) {
	pdu := []byte{0x0a, 0x00, 0x04, 0x00, 0x0b, 0x01, 0x02, 0x03, 0x04, 0x05}
	frame := []byte{0x8b, 0x4a, 0x65, 0x50, 0x02 | 0x10, byte(len(pdu))}
	frame = append(frame, pdu...)
	frame = append(frame, 0, 0, 0)

	d := Parse(frame, 251)
	assert.Equal(t, "L2CAP", d.Protocol)
	assert.Equal(t, "CID 0x0004 (ATT) Len=10", d.Info)
	link := d.Layers.Link.(*models.BLELink)
	assert.Equal(t, uint8(2), link.LLID)
	assert.True(t, link.MD)

	require.NotNil(t, d.Fragment)
	assert.Equal(t, "aa:50654a8b", d.Fragment.Key)
	assert.Equal(t, 14, d.Fragment.Declared)
	assert.True(t, d.Fragment.MoreData)

	l := d.Layers.Application.(*models.L2CAP)
	assert.Equal(t, "0b0102030405", l.Payload)
}

func TestParseBLEEmptyAndControlPDUs(t *testing.T) {
	empty := []byte{0x8b, 0x4a, 0x65, 0x50, 0x01, 0x00, 0, 0, 0}
	d := Parse(empty, 251)
	assert.Equal(t, "BLE LL", d.Protocol)
	assert.Equal(t, "Empty PDU", d.Info)
	assert.Nil(t, d.Fragment)

	control := []byte{0x8b, 0x4a, 0x65, 0x50, 0x03, 0x01, 0x02, 0, 0, 0}
	d = Parse(control, 251)
	assert.Equal(t, "LL Control", d.Protocol)
	assert.Nil(t, d.Fragment)
}

func TestParseHCIEventAndACL(t *testing.T) {
	d := Parse([]byte{0x00, 0x00, 0x00, 0x01, 0x04, 0x0e, 0x04, 0x01, 0x03, 0x0c, 0x00}, 201)
	assert.Equal(t, "HCI Event", d.Protocol)
	assert.Equal(t, "controller", d.Source)
	hci := d.Layers.Link.(*models.BluetoothHCI)
	assert.Equal(t, "received", hci.Direction)

	acl := []byte{0x02, 0x40, 0x20, 0x08, 0x00, 0x04, 0x00, 0x04, 0x00, 0x0a, 0x0b, 0x0c, 0x0d}
	d = Parse(acl, 187)
	assert.Equal(t, "L2CAP", d.Protocol)
	require.NotNil(t, d.Fragment)
	assert.Equal(t, "hci:64", d.Fragment.Key)
	assert.Equal(t, 8, d.Fragment.Declared)
}

func TestParseUSBPcap(t *testing.T) {
	hdr := make([]byte, 27)
	binary.LittleEndian.PutUint16(hdr[0:], 27)
	binary.LittleEndian.PutUint64(hdr[2:], 0xdead)
	binary.LittleEndian.PutUint16(hdr[14:], 9)
	hdr[16] = 0x01
	binary.LittleEndian.PutUint16(hdr[17:], 1)
	binary.LittleEndian.PutUint16(hdr[19:], 5)
	hdr[21] = 0x81
	hdr[22] = 3
	binary.LittleEndian.PutUint32(hdr[23:], 4)
	data := append(hdr, 1, 2, 3, 4)

	d := Parse(data, 249)
	assert.Equal(t, "USB", d.Protocol)
	assert.Equal(t, "1.5.129", d.Source)
	assert.Equal(t, "host", d.Destination)
	assert.Equal(t, "IN Bulk transfer, 4 bytes", d.Info)
	usb := d.Layers.Link.(*models.USB)
	assert.Equal(t, uint64(0xdead), usb.IRPID)

	d = Parse([]byte{0x05, 0x00, 0x00}, 249)
	assert.Equal(t, "Unknown", d.Layers.Link.(*models.USB).Direction)
}

func TestParseNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	linkTypes := []uint32{0, 1, 101, 113, 187, 189, 201, 220, 249, 251, 256, 272, 147}
	seeds := [][]byte{
		tcpPacket(t, 1, 443, clientHelloRecord("x.test")),
		udpPacket(t, 53, 53, gopacket.Payload(bytes.Repeat([]byte{0xff}, 40))),
		bareARP(),
	}
	for i := 0; i < 2000; i++ {
		var data []byte
		if i%2 == 0 {
			data = make([]byte, rng.Intn(120))
			rng.Read(data)
		} else {
			seed := seeds[rng.Intn(len(seeds))]
			data = append([]byte(nil), seed[:rng.Intn(len(seed)+1)]...)
			if len(data) > 0 {
				data[rng.Intn(len(data))] ^= byte(rng.Intn(256))
			}
		}
		lt := linkTypes[rng.Intn(len(linkTypes))]
		require.NotPanics(t, func() { Parse(data, lt) }, "iteration %d", i)
	}
}

func TestDescribeListsLayersInOrder(t *testing.T) {
	d := Parse(tcpPacket(t, 40000, 8080, []byte("GET / HTTP/1.1\r\nB: 2\r\nA: 1\r\n\r\n")), 1)
	details := Describe(d.Layers)
	var names []string
	for _, ld := range details {
		names = append(names, ld.Name)
		assert.NotEmpty(t, ld.Fields, ld.Name)
	}
	assert.Equal(t, []string{"Ethernet", "IPv4", "TCP", "HTTP"}, names)
	assert.Equal(t, "Source", details[0].Fields[0].Name)
	assert.Equal(t, "02:00:00:00:00:01", details[0].Fields[0].Value)
}

func TestHexDumpAndRawHex(t *testing.T) {
	dump := HexDump([]byte("ABCDEFGHIJKLMNOPQ"))
	lines := strings.Split(strings.TrimSuffix(dump, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "0000  41 42 43 44 45 46 47 48  49 4a 4b 4c 4d 4e 4f 50  |ABCDEFGHIJKLMNOP|", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0010  51 "))
	assert.True(t, strings.HasSuffix(lines[1], "|Q|"))

	assert.Equal(t, "00ff10", RawHex([]byte{0x00, 0xff, 0x10}))
	assert.Empty(t, HexDump(nil))
}

func TestFlagNames(t *testing.T) {
	assert.Equal(t, []string{"SYN", "ACK"}, FlagNames(flagSYN|flagACK))
	assert.Equal(t, []string{"FIN", "RST", "URG", "ECE", "CWR"}, FlagNames(flagFIN|flagRST|flagURG|flagECE|flagCWR))
	assert.Empty(t, FlagNames(0))
}

func TestParseLLDP(t *testing.T) {
	lldp := []byte{
		0x02, 0x07, 0x04, 0x02, 0x00, 0x00, 0x00, 0x00, 0x09, // chassis id, MAC subtype
		0x04, 0x04, 0x07, 'g', 'e', '1', // port id, local subtype
		0x06, 0x02, 0x00, 0x78, // ttl
		0x0a, 0x03, 's', 'w', '1', // system name
		0x00, 0x00,
	}
	frame := append(etherHeader(layers.EthernetTypeLinkLayerDiscovery), lldp...)
	d := Parse(frame, 1)

	assert.Equal(t, "LLDP", d.Protocol)
	rec, ok := d.Layers.Network.(*models.LLDP)
	require.True(t, ok)
	assert.Equal(t, "02:00:00:00:00:09", rec.ChassisID)
	assert.Equal(t, "ge1", rec.PortID)
	assert.Equal(t, uint16(120), rec.TTL)
	assert.Equal(t, "sw1", rec.SystemName)
	assert.Equal(t, "Chassis 02:00:00:00:00:09 Port ge1 TTL 120", d.Info)

	d = Parse(append(etherHeader(layers.EthernetTypeLinkLayerDiscovery), 0x02, 0x07, 0x04), 1)
	assert.Equal(t, "Unknown", d.Protocol)
}
