package engine

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pcapscope/internal/export"
	"pcapscope/internal/models"
	"pcapscope/internal/parser"
)

var (
	// ErrNoCapture is returned by queries made before any capture was loaded.
	ErrNoCapture = errors.New("no capture loaded")
	// ErrNotFound is returned for unknown packet or stream ids.
	ErrNotFound = errors.New("not found")
)

const defaultPacketBatch = 200

// Client represents a connected WebSocket client that receives packets.
type Client interface {
	SendMessage(msg models.WSMessage) error
}

// Config wires an Engine.
type Config struct {
	Parse Options
	// PacketBatch is how many packets are broadcast before yielding.
	PacketBatch int
	Sinks       []export.Sink
}

// Engine parses uploaded captures, keeps the latest result and broadcasts
// it to clients.
type Engine struct {
	mu      sync.Mutex
	clients map[Client]bool
	cfg     Config
	summary *models.ParseSummary
	session *Session
	loadMu  sync.Mutex
}

// New creates a new Engine.
func New(cfg Config) *Engine {
	if cfg.PacketBatch <= 0 {
		cfg.PacketBatch = defaultPacketBatch
	}
	return &Engine{
		clients: make(map[Client]bool),
		cfg:     cfg,
	}
}

// RegisterClient adds a client to receive packet broadcasts.
func (e *Engine) RegisterClient(c Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clients[c] = true
}

// UnregisterClient removes a client.
func (e *Engine) UnregisterClient(c Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.clients, c)
}

// LoadPcapFile reads a capture file from disk and loads it.
func (e *Engine) LoadPcapFile(path string) (*models.ParseSummary, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return e.LoadPcapBytes(filepath.Base(path), buf)
}

// LoadPcapBytes parses a capture buffer, replaces the current result and
// streams its packets to all clients with pacing. Loads are serialized.
func (e *Engine) LoadPcapBytes(name string, buf []byte) (*models.ParseSummary, error) {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.broadcastJSON(models.MsgParseStarted, map[string]interface{}{"name": name, "size": len(buf)})

	s := NewSession(e.cfg.Parse)
	res, err := s.Parse(buf)
	if err != nil {
		e.broadcastJSON(models.MsgError, models.ErrorPayload{Message: fmt.Sprintf("%s: %v", name, err)})
		return nil, err
	}

	batch := 0
	for _, pkt := range res.Packets {
		e.broadcastJSON(models.MsgPacket, pkt)

		// Pace: yield every batch so the client can breathe
		batch++
		if batch >= e.cfg.PacketBatch {
			batch = 0
			time.Sleep(5 * time.Millisecond)
		}
	}

	summary := &models.ParseSummary{
		Name:        name,
		Format:      res.Format,
		Stats:       res.Stats,
		StreamCount: len(res.Streams),
		Timing:      res.Timing,
	}
	e.mu.Lock()
	e.summary = summary
	e.session = s
	e.mu.Unlock()

	e.broadcastJSON(models.MsgParseComplete, summary)
	log.Printf("Loaded %s: %s, %d packets, %d streams", name, res.Format, res.Stats.PacketCount, len(res.Streams))

	for _, sink := range e.cfg.Sinks {
		if err := sink.Publish(name, res); err != nil {
			log.Printf("Export %s: %v", name, err)
		}
	}
	return summary, nil
}

func (e *Engine) current() (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, ErrNoCapture
	}
	return e.session, nil
}

// Result returns the latest parse result.
func (e *Engine) Result() (*models.ParseResult, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	return s.Result(), nil
}

// Summary describes the latest loaded capture.
func (e *Engine) Summary() (*models.ParseSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.summary == nil {
		return nil, ErrNoCapture
	}
	return e.summary, nil
}

// PacketDetail returns the expanded view of one packet.
func (e *Engine) PacketDetail(id int) (*models.PacketDetail, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	pkts := s.Result().Packets
	if id < 1 || id > len(pkts) {
		return nil, fmt.Errorf("packet %d: %w", id, ErrNotFound)
	}
	pkt := pkts[id-1]
	return &models.PacketDetail{
		Packet:  pkt,
		Details: parser.Describe(pkt.Layers),
		HexDump: parser.HexDump(pkt.Data),
		RawHex:  parser.RawHex(pkt.Data),
	}, nil
}

// StreamData returns the reassembled bytes of a TCP stream.
func (e *Engine) StreamData(id int) (*models.StreamData, error) {
	s, err := e.current()
	if err != nil {
		return nil, err
	}
	st, ok := s.Result().Streams[id]
	if !ok {
		return nil, fmt.Errorf("stream %d: %w", id, ErrNotFound)
	}
	client, server := s.StreamBytes(id)
	return &models.StreamData{
		StreamID:   id,
		ClientData: base64.StdEncoding.EncodeToString(client),
		ServerData: base64.StdEncoding.EncodeToString(server),
		HTTPInfo:   st.HTTP,
	}, nil
}

// WriteStreamPCAP writes the packets of one stream as a PCAP file.
func (e *Engine) WriteStreamPCAP(w io.Writer, id int) error {
	res, err := e.Result()
	if err != nil {
		return err
	}
	pkts, err := export.StreamPackets(res, id)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	return export.WritePCAP(w, pkts)
}

// Close releases the sinks.
func (e *Engine) Close() {
	for _, sink := range e.cfg.Sinks {
		sink.Close()
	}
}

func (e *Engine) broadcastJSON(typ string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Marshal %s: %v", typ, err)
		return
	}
	e.broadcast(models.WSMessage{Type: typ, Payload: payload})
}

func (e *Engine) broadcast(msg models.WSMessage) {
	e.mu.Lock()
	clients := make([]Client, 0, len(e.clients))
	for c := range e.clients {
		clients = append(clients, c)
	}
	e.mu.Unlock()

	for _, c := range clients {
		c.SendMessage(msg)
	}
}
