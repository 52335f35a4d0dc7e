package models

import "encoding/json"

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message types pushed to clients.
const (
	MsgParseStarted  = "parse_started"
	MsgPacket        = "packet"
	MsgParseComplete = "parse_complete"
	MsgPacketDetail  = "packet_detail"
	MsgStreamData    = "stream_data"
	MsgError         = "error"
)

// PacketDetailRequest asks for the expanded view of one packet.
type PacketDetailRequest struct {
	ID int `json:"id"`
}

// StreamDataRequest asks for the reassembled bytes of one stream.
type StreamDataRequest struct {
	StreamID int `json:"streamId"`
}

// ParseSummary is broadcast when a parse finishes.
type ParseSummary struct {
	Name        string  `json:"name"`
	Format      string  `json:"format"`
	Stats       Stats   `json:"stats"`
	StreamCount int     `json:"streamCount"`
	Timing      *Timing `json:"timing,omitempty"`
}

// ErrorPayload describes an error sent to the client.
type ErrorPayload struct {
	Message string `json:"message"`
}
