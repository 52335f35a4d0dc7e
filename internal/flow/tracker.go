package flow

import (
	"fmt"
	"net"
	"sort"
	"strconv"

	"pcapscope/internal/models"
)

// TCPState represents the state of a TCP connection.
type TCPState string

const (
	TCPStateNew         TCPState = "NEW"
	TCPStateSynSent     TCPState = "SYN_SENT"
	TCPStateSynReceived TCPState = "SYN_RECEIVED"
	TCPStateEstablished TCPState = "ESTABLISHED"
	TCPStateFinWait     TCPState = "FIN_WAIT"
	TCPStateClosed      TCPState = "CLOSED"
)

// FlowKey is the unordered pair of endpoints. Both directions map to the
// same key.
type FlowKey struct {
	A string
	B string
}

// Endpoint renders ip and port the way net.JoinHostPort does.
func Endpoint(ip string, port uint16) string {
	return net.JoinHostPort(ip, strconv.Itoa(int(port)))
}

func MakeFlowKey(srcIP, dstIP string, srcPort, dstPort uint16) FlowKey {
	a, b := Endpoint(srcIP, srcPort), Endpoint(dstIP, dstPort)
	if b < a {
		a, b = b, a
	}
	return FlowKey{A: a, B: b}
}

// TCPFlags holds parsed TCP flag bits.
type TCPFlags struct {
	SYN bool
	ACK bool
	FIN bool
	RST bool
	PSH bool
}

// Segment is what the tracker needs to know about one TCP packet.
type Segment struct {
	PacketID  int
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
	Length    int
	Timestamp float64
	Flags     TCPFlags
}

// Tracker maintains the stream table of one parse. It is not safe for
// concurrent use.
type Tracker struct {
	streams map[FlowKey]*models.Stream
	byID    map[int]*models.Stream
	nextID  int
}

// NewTracker creates a new flow tracker. Stream ids start at 1.
func NewTracker() *Tracker {
	return &Tracker{
		streams: make(map[FlowKey]*models.Stream),
		byID:    make(map[int]*models.Stream),
		nextID:  1,
	}
}

// Track records a segment and returns its stream and direction. The first
// packet seen fixes which side is the client.
func (t *Tracker) Track(seg Segment) (*models.Stream, string) {
	key := MakeFlowKey(seg.SrcIP, seg.DstIP, seg.SrcPort, seg.DstPort)

	s, exists := t.streams[key]
	if !exists {
		s = &models.Stream{
			ID:         t.nextID,
			SrcIP:      seg.SrcIP,
			SrcPort:    seg.SrcPort,
			DstIP:      seg.DstIP,
			DstPort:    seg.DstPort,
			State:      string(TCPStateNew),
			PacketIDs:  []int{},
			Transcript: []models.TranscriptEntry{},
			FirstSeen:  seg.Timestamp,
		}
		t.nextID++
		t.streams[key] = s
		t.byID[s.ID] = s
	}

	s.PacketIDs = append(s.PacketIDs, seg.PacketID)
	s.LastSeen = seg.Timestamp

	dir := models.ServerToClient
	if seg.SrcIP == s.SrcIP && seg.SrcPort == s.SrcPort {
		dir = models.ClientToServer
		s.FwdPackets++
		s.FwdBytes += int64(seg.Length)
	} else {
		s.RevPackets++
		s.RevBytes += int64(seg.Length)
	}

	s.State = string(advanceTCPState(TCPState(s.State), seg.Flags))
	return s, dir
}

// Stream returns the stream with the given id.
func (t *Tracker) Stream(id int) (*models.Stream, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// Streams returns every stream ordered by id.
func (t *Tracker) Streams() []*models.Stream {
	out := make([]*models.Stream, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len is the number of streams seen.
func (t *Tracker) Len() int { return len(t.byID) }

func advanceTCPState(current TCPState, flags TCPFlags) TCPState {
	if flags.RST {
		return TCPStateClosed
	}

	switch current {
	case TCPStateNew:
		if flags.SYN && !flags.ACK {
			return TCPStateSynSent
		}
	case TCPStateSynSent:
		if flags.SYN && flags.ACK {
			return TCPStateSynReceived
		}
	case TCPStateSynReceived:
		if flags.ACK && !flags.SYN {
			return TCPStateEstablished
		}
	case TCPStateEstablished:
		if flags.FIN {
			return TCPStateFinWait
		}
	case TCPStateFinWait:
		if flags.FIN || flags.ACK {
			return TCPStateClosed
		}
	}
	return current
}

// Describe returns a human-readable description of a stream.
func Describe(s *models.Stream) string {
	return fmt.Sprintf("Stream#%d %s <-> %s [%s] pkts=%d bytes=%d",
		s.ID, Endpoint(s.SrcIP, s.SrcPort), Endpoint(s.DstIP, s.DstPort), s.State,
		s.FwdPackets+s.RevPackets, s.FwdBytes+s.RevBytes)
}
