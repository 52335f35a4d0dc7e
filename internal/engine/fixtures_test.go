package engine

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"
)

type tcpSeg struct {
	src, dst       string
	sport, dport   uint16
	seq, ack       uint32
	syn, ackf, psh bool
	payload        string
}

func tcpFrame(t *testing.T, s tcpSeg) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(s.src).To4(),
		DstIP:    net.ParseIP(s.dst).To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.sport),
		DstPort: layers.TCPPort(s.dport),
		Seq:     s.seq,
		Ack:     s.ack,
		SYN:     s.syn,
		ACK:     s.ackf,
		PSH:     s.psh,
		Window:  65535,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(s.payload)))
	return buf.Bytes()
}

// writePcap wraps frames in a classic PCAP file, one second apart.
func writePcap(t *testing.T, linkType layers.LinkType, frames ...[]byte) []byte {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65536, linkType))
	base := time.Unix(1700000000, 0)
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			CaptureLength: len(f),
			Length:        len(f),
		}
		require.NoError(t, w.WritePacket(ci, f))
	}
	return out.Bytes()
}

const (
	httpRequest  = "GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"
	httpResponse = "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 2\r\n\r\nok"
)

// httpConversation is a handshake followed by one request and response.
func httpConversation(t *testing.T) []byte {
	c, s := "10.0.0.1", "10.0.0.2"
	return writePcap(t, layers.LinkTypeEthernet,
		tcpFrame(t, tcpSeg{src: c, dst: s, sport: 40000, dport: 80, seq: 100, syn: true}),
		tcpFrame(t, tcpSeg{src: s, dst: c, sport: 80, dport: 40000, seq: 5000, ack: 101, syn: true, ackf: true}),
		tcpFrame(t, tcpSeg{src: c, dst: s, sport: 40000, dport: 80, seq: 101, ack: 5001, ackf: true, psh: true, payload: httpRequest}),
		tcpFrame(t, tcpSeg{src: s, dst: c, sport: 80, dport: 40000, seq: 5001, ack: 101 + uint32(len(httpRequest)), ackf: true, psh: true, payload: httpResponse}),
	)
}

// hciACL builds an H4 ACL data packet.
func hciACL(handle uint16, pb uint8, acl []byte) []byte {
	hw := handle | uint16(pb)<<12
	out := []byte{0x02, byte(hw), byte(hw >> 8), byte(len(acl)), byte(len(acl) >> 8)}
	return append(out, acl...)
}
