// Package export hands parse results to systems outside the process.
package export

import (
	"math"
	"time"

	"pcapscope/internal/config"
	"pcapscope/internal/models"
)

// Sink receives every finished parse.
type Sink interface {
	Publish(name string, res *models.ParseResult) error
	Close()
}

// PacketSummary is the flat per-packet record written to the sinks.
type PacketSummary struct {
	Capture        string
	PacketID       int
	Timestamp      time.Time
	Protocol       string
	Source         string
	Destination    string
	Info           string
	CapturedLength int
	OriginalLength int
	StreamID       int
}

// Summaries flattens the packets of a result. Packets outside any TCP
// stream carry StreamID 0.
func Summaries(name string, res *models.ParseResult) []PacketSummary {
	out := make([]PacketSummary, 0, len(res.Packets))
	for _, p := range res.Packets {
		row := PacketSummary{
			Capture:        name,
			PacketID:       p.ID,
			Timestamp:      toTime(p.Timestamp),
			Protocol:       p.Protocol,
			Source:         p.Source,
			Destination:    p.Destination,
			Info:           p.Info,
			CapturedLength: p.CapturedLength,
			OriginalLength: p.OriginalLength,
		}
		if tcp, ok := p.Layers.Transport.(*models.TCP); ok && tcp.Stream != nil {
			row.StreamID = tcp.Stream.StreamID
		}
		out = append(out, row)
	}
	return out
}

// Open builds the sinks enabled in cfg. Sinks opened before a failure are
// closed again.
func Open(cfg config.ExportConfig) ([]Sink, error) {
	var sinks []Sink
	fail := func(err error) ([]Sink, error) {
		for _, s := range sinks {
			s.Close()
		}
		return nil, err
	}
	if cfg.NATS.Enabled {
		p, err := NewNATSPublisher(cfg.NATS)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, p)
	}
	if cfg.ClickHouse.Enabled {
		w, err := NewClickHouseWriter(cfg.ClickHouse)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, w)
	}
	return sinks, nil
}

func toTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
