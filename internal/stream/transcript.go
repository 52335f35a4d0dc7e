package stream

import (
	"pcapscope/internal/models"
	"pcapscope/internal/wire"
)

// Arrow returns the transcript arrow for a direction.
func Arrow(dir string) string {
	if dir == models.ClientToServer {
		return "→"
	}
	return "←"
}

// TranscriptEntry records one application-layer turn. Text keeps the
// payload's printable ASCII with line breaks.
func TranscriptEntry(packetID int, dir, protocol, info string, payload []byte) models.TranscriptEntry {
	return models.TranscriptEntry{
		PacketID:  packetID,
		Direction: dir,
		Arrow:     Arrow(dir),
		Protocol:  protocol,
		Info:      info,
		Text:      wire.Printable(payload),
	}
}
