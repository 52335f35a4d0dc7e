package export

import (
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"pcapscope/internal/config"
	"pcapscope/internal/models"
)

// NATSPublisher publishes one protobuf message per packet to a NATS subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher connects to the configured NATS server.
func NewNATSPublisher(cfg config.NATSConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &NATSPublisher{nc: nc, subject: cfg.Subject}, nil
}

// EncodeSummary serializes a packet summary as a protobuf Struct.
func EncodeSummary(s PacketSummary) ([]byte, error) {
	ts := timestamppb.New(s.Timestamp)
	msg, err := structpb.NewStruct(map[string]interface{}{
		"capture":  s.Capture,
		"packetId": s.PacketID,
		"timestamp": map[string]interface{}{
			"seconds": ts.Seconds,
			"nanos":   ts.Nanos,
		},
		"protocol":       s.Protocol,
		"source":         s.Source,
		"destination":    s.Destination,
		"info":           s.Info,
		"capturedLength": s.CapturedLength,
		"originalLength": s.OriginalLength,
		"streamId":       s.StreamID,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

// Publish sends every packet of the result, then flushes the connection.
func (p *NATSPublisher) Publish(name string, res *models.ParseResult) error {
	for _, s := range Summaries(name, res) {
		data, err := EncodeSummary(s)
		if err != nil {
			return fmt.Errorf("encode packet %d: %w", s.PacketID, err)
		}
		if err := p.nc.Publish(p.subject, data); err != nil {
			return fmt.Errorf("publish packet %d: %w", s.PacketID, err)
		}
	}
	return p.nc.Flush()
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
