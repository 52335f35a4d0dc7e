package engine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"pcapscope/internal/ble"
	"pcapscope/internal/capture"
	"pcapscope/internal/flow"
	"pcapscope/internal/models"
	"pcapscope/internal/parser"
	"pcapscope/internal/stream"
)

// ErrParseFailed wraps a panic recovered while parsing a capture.
var ErrParseFailed = errors.New("engine: parse failed")

// Options tunes one parse.
type Options struct {
	// Timing attaches the per-phase breakdown to the result.
	Timing bool
	// MaxStreamBuffer caps the reassembled bytes kept per stream direction.
	MaxStreamBuffer int
}

type segmentRef struct {
	stream  int
	dir     string
	payload []byte
}

type phaseTimes struct {
	format    time.Duration
	packets   time.Duration
	branches  map[string]time.Duration
	protocols time.Duration
	streams   time.Duration
	ble       time.Duration
}

// Session owns all mutable state of one parse: stream table, both
// reassemblers and running statistics. A Session parses exactly one
// buffer and must not be shared between goroutines while parsing.
type Session struct {
	opts    Options
	result  *models.ParseResult
	tracker *flow.Tracker
	tcp     *stream.Reassembler
	frags   *ble.Reassembler

	segments map[int]segmentRef
	times    phaseTimes
	used     bool
}

// NewSession prepares a fresh session.
func NewSession(opts Options) *Session {
	return &Session{
		opts:     opts,
		result:   models.NewParseResult(),
		tracker:  flow.NewTracker(),
		tcp:      stream.NewReassembler(opts.MaxStreamBuffer),
		frags:    ble.NewReassembler(),
		segments: make(map[int]segmentRef),
		times:    phaseTimes{branches: make(map[string]time.Duration)},
	}
}

// Parse decodes a whole capture buffer with a new session.
func Parse(buf []byte, opts Options) (*models.ParseResult, error) {
	return NewSession(opts).Parse(buf)
}

// Parse decodes buf. Unrecognized or truncated containers and recovered
// panics return the empty result alongside the error.
func (s *Session) Parse(buf []byte) (res *models.ParseResult, err error) {
	if s.used {
		return models.NewParseResult(), errors.New("engine: session already used")
	}
	s.used = true

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Parse panic after %d packets: %v", len(s.result.Packets), r)
			res, err = models.NewParseResult(), fmt.Errorf("%w: %v", ErrParseFailed, r)
		}
	}()

	start := time.Now()
	reader, err := capture.NewReader(buf)
	s.times.format = time.Since(start)
	if err != nil {
		log.Printf("Parse: %v", err)
		return models.NewParseResult(), err
	}
	s.result.Format = reader.Format().String()

	for {
		rec, ok := reader.Next()
		if !ok {
			break
		}
		s.add(rec)
	}

	for _, iface := range reader.Interfaces() {
		s.result.Interfaces = append(s.result.Interfaces, models.InterfaceInfo{
			ID:                  iface.ID,
			LinkType:            iface.LinkType,
			LinkTypeName:        parser.LinkTypeName(iface.LinkType),
			SnapLen:             iface.SnapLen,
			TimestampResolution: iface.TimestampResolution,
			Name:                iface.Name,
		})
	}

	s.finish()
	s.computeStats()
	if s.opts.Timing {
		s.result.Timing = s.timing(reader.InterfaceTime, time.Since(start))
	}
	return s.result, nil
}

func (s *Session) add(rec capture.Record) {
	id := len(s.result.Packets) + 1

	start := time.Now()
	d := parser.Parse(rec.Data, rec.LinkType)
	elapsed := time.Since(start)
	s.times.packets += elapsed
	s.times.branches[d.Class.Kind.String()] += elapsed
	s.times.protocols += d.AppTime

	pkt := &models.Packet{
		ID:             id,
		Timestamp:      rec.Timestamp,
		CapturedLength: rec.CapturedLength,
		OriginalLength: rec.OriginalLength,
		InterfaceID:    rec.InterfaceID,
		LinkType:       rec.LinkType,
		Protocol:       d.Protocol,
		Source:         d.Source,
		Destination:    d.Destination,
		Info:           d.Info,
		Layers:         d.Layers,
		Data:           rec.Data,
	}
	s.result.Packets = append(s.result.Packets, pkt)

	if d.Segment != nil {
		start = time.Now()
		s.trackSegment(pkt, d.Segment)
		s.times.streams += time.Since(start)
	}
	if d.Fragment != nil {
		start = time.Now()
		d.Fragment.PacketID = id
		if done := s.frags.Add(d.Fragment); done != nil {
			s.stampReassembled(done)
		}
		s.times.ble += time.Since(start)
	}
}

func (s *Session) trackSegment(pkt *models.Packet, seg *parser.Segment) {
	tuple := parser.ExtractFlowTuple(pkt.Layers)
	if !tuple.Valid {
		return
	}
	st, dir := s.tracker.Track(flow.Segment{
		PacketID:  pkt.ID,
		SrcIP:     tuple.SrcIP,
		DstIP:     tuple.DstIP,
		SrcPort:   tuple.SrcPort,
		DstPort:   tuple.DstPort,
		Length:    pkt.CapturedLength,
		Timestamp: pkt.Timestamp,
		Flags:     tuple.Flags,
	})
	s.tcp.Add(st.ID, dir, seg.Seq, seg.Payload)
	s.segments[pkt.ID] = segmentRef{stream: st.ID, dir: dir, payload: seg.Payload}

	if tcp, ok := pkt.Layers.Transport.(*models.TCP); ok {
		tcp.Stream = s.tcp.Summary(st, dir)
	}
}

// packet returns the packet with the given 1-based id.
func (s *Session) packet(id int) *models.Packet {
	return s.result.Packets[id-1]
}

func l2capOf(pkt *models.Packet) *models.L2CAP {
	l, _ := pkt.Layers.Application.(*models.L2CAP)
	return l
}

func (s *Session) stampReassembled(done *ble.Completion) {
	reassembled := hex.EncodeToString(done.Payload)
	for _, id := range done.Members {
		l := l2capOf(s.packet(id))
		if l == nil {
			continue
		}
		cs := done.Checksums
		l.Fragment = &models.FragmentInfo{
			IsFragment:        true,
			IsReassembled:     true,
			FragmentCount:     len(done.Members),
			Members:           done.Members,
			ReassembledLength: len(done.Payload),
			Reassembled:       reassembled,
			Checksums:         &cs,
		}
	}
}

// finish is the single pass run after every record has been read.
func (s *Session) finish() {
	start := time.Now()
	for id, ref := range s.segments {
		tcp, ok := s.packet(id).Layers.Transport.(*models.TCP)
		if !ok {
			continue
		}
		st, _ := s.tracker.Stream(ref.stream)
		tcp.Stream = s.tcp.Summary(st, ref.dir)
	}

	for _, st := range s.tracker.Streams() {
		st.ClientLen = s.tcp.Len(st.ID, models.ClientToServer)
		st.ServerLen = s.tcp.Len(st.ID, models.ServerToClient)
		if tx, err := stream.ParseHTTP(s.StreamBytes(st.ID)); err == nil {
			st.HTTP = tx
		}
		for _, id := range st.PacketIDs {
			ref := s.segments[id]
			if len(ref.payload) == 0 {
				continue
			}
			pkt := s.packet(id)
			st.Transcript = append(st.Transcript,
				stream.TranscriptEntry(id, ref.dir, pkt.Protocol, pkt.Info, ref.payload))
		}
		s.result.Streams[st.ID] = st
	}
	if gaps := s.unfilledSegments(); gaps > 0 {
		log.Printf("Parse: %d streams, %d out-of-order segments never filled", s.tracker.Len(), gaps)
	}
	s.times.streams += time.Since(start)

	start = time.Now()
	for _, p := range s.frags.Pending() {
		for _, id := range p.Members {
			l := l2capOf(s.packet(id))
			if l == nil || l.Fragment != nil {
				continue
			}
			l.Fragment = &models.FragmentInfo{
				IsFragment:    true,
				InProgress:    true,
				FragmentCount: len(p.Members),
				Members:       p.Members,
			}
		}
	}
	s.times.ble += time.Since(start)
}

// unfilledSegments counts buffered segments whose gap never closed.
func (s *Session) unfilledSegments() int {
	n := 0
	for _, st := range s.tracker.Streams() {
		n += s.tcp.Buffered(st.ID, models.ClientToServer) + s.tcp.Buffered(st.ID, models.ServerToClient)
	}
	return n
}

func (s *Session) computeStats() {
	pkts := s.result.Packets
	st := models.Stats{PacketCount: len(pkts)}
	if len(pkts) == 0 {
		s.result.Stats = st
		return
	}
	for _, p := range pkts {
		st.TotalBytes += int64(p.CapturedLength)
	}
	st.FirstTimestamp = pkts[0].Timestamp
	st.LastTimestamp = pkts[len(pkts)-1].Timestamp
	st.Duration = st.LastTimestamp - st.FirstTimestamp
	st.AverageSize = float64(st.TotalBytes) / float64(len(pkts))
	s.result.Stats = st
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (s *Session) timing(ifaces, total time.Duration) *models.Timing {
	t := &models.Timing{
		FormatDetection:  ms(s.times.format),
		InterfaceParsing: ms(ifaces),
		PacketParsing:    ms(s.times.packets),
		LinkBranches:     make(map[string]float64, len(s.times.branches)),
		ProtocolAnalysis: ms(s.times.protocols),
		StreamProcessing: ms(s.times.streams),
		BLEReassembly:    ms(s.times.ble),
		Total:            ms(total),
	}
	for k, v := range s.times.branches {
		t.LinkBranches[k] = ms(v)
	}
	return t
}

// StreamBytes returns the reassembled client and server bytes of a stream.
func (s *Session) StreamBytes(id int) (client, server []byte) {
	return s.tcp.Data(id, models.ClientToServer), s.tcp.Data(id, models.ServerToClient)
}

// Result is the result of the session's parse.
func (s *Session) Result() *models.ParseResult {
	return s.result
}
