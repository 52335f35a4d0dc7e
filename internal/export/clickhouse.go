package export

import (
	"context"
	"fmt"
	"log"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pcapscope/internal/config"
	"pcapscope/internal/models"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS packet_summaries (
    Capture        String,
    PacketID       UInt32,
    Timestamp      DateTime64(9),
    Protocol       LowCardinality(String),
    Source         String,
    Destination    String,
    Info           String,
    CapturedLength UInt32,
    OriginalLength UInt32,
    StreamID       UInt32
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Capture, PacketID);
`

// ClickHouseWriter stores packet summaries in the packet_summaries table.
type ClickHouseWriter struct {
	conn driver.Conn
}

// NewClickHouseWriter connects and makes sure the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &ClickHouseWriter{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Publish inserts one row per packet in a single batch.
func (w *ClickHouseWriter) Publish(name string, res *models.ParseResult) error {
	rows := Summaries(name, res)
	if len(rows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO packet_summaries")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, r := range rows {
		err = batch.Append(
			r.Capture,
			uint32(r.PacketID),
			r.Timestamp,
			r.Protocol,
			r.Source,
			r.Destination,
			r.Info,
			uint32(r.CapturedLength),
			uint32(r.OriginalLength),
			uint32(r.StreamID),
		)
		if err != nil {
			return fmt.Errorf("failed to append packet %d to batch: %w", r.PacketID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d packets to ClickHouse for capture '%s'", len(rows), name)
	return nil
}

// Close releases the connection.
func (w *ClickHouseWriter) Close() {
	if err := w.conn.Close(); err != nil {
		log.Printf("ClickHouse close: %v", err)
	}
}
