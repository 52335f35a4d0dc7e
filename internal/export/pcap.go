package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"pcapscope/internal/models"
)

const (
	exportSnapLen = 262144
	// gopacket models link types as a single byte.
	maxLinkType = 0xff
)

var errNoPackets = errors.New("no packets to export")

// WritePCAP writes packets as a classic microsecond PCAP file. All packets
// must share one link type.
func WritePCAP(w io.Writer, packets []*models.Packet) error {
	if len(packets) == 0 {
		return errNoPackets
	}
	linkType := packets[0].LinkType
	if linkType > maxLinkType {
		return fmt.Errorf("link type %d cannot be written", linkType)
	}

	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(exportSnapLen, layers.LinkType(linkType)); err != nil {
		return fmt.Errorf("write pcap header: %w", err)
	}
	for _, p := range packets {
		if p.LinkType != linkType {
			return fmt.Errorf("packet %d: link type %d differs from %d", p.ID, p.LinkType, linkType)
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     toTime(p.Timestamp),
			CaptureLength: len(p.Data),
			Length:        max(p.OriginalLength, len(p.Data)),
		}
		if err := pw.WritePacket(ci, p.Data); err != nil {
			return fmt.Errorf("write packet %d: %w", p.ID, err)
		}
	}
	return nil
}

// StreamPackets returns the packets of one TCP stream in capture order.
func StreamPackets(res *models.ParseResult, streamID int) ([]*models.Packet, error) {
	st, ok := res.Streams[streamID]
	if !ok {
		return nil, fmt.Errorf("stream %d not found", streamID)
	}
	out := make([]*models.Packet, 0, len(st.PacketIDs))
	for _, id := range st.PacketIDs {
		if id < 1 || id > len(res.Packets) {
			continue
		}
		out = append(out, res.Packets[id-1])
	}
	return out, nil
}
