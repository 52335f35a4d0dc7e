package models

// Direction labels relative to the endpoints of a stream's first packet.
const (
	ClientToServer = "clientToServer"
	ServerToClient = "serverToClient"
)

// Stream is one bidirectional TCP conversation.
type Stream struct {
	ID         int               `json:"id"`
	SrcIP      string            `json:"srcIp"`
	SrcPort    uint16            `json:"srcPort"`
	DstIP      string            `json:"dstIp"`
	DstPort    uint16            `json:"dstPort"`
	State      string            `json:"state"`
	PacketIDs  []int             `json:"packetIds"`
	FwdPackets int               `json:"fwdPackets"`
	FwdBytes   int64             `json:"fwdBytes"`
	RevPackets int               `json:"revPackets"`
	RevBytes   int64             `json:"revBytes"`
	FirstSeen  float64           `json:"firstSeen"`
	LastSeen   float64           `json:"lastSeen"`
	ClientLen  int               `json:"clientReassembled"`
	ServerLen  int               `json:"serverReassembled"`
	Transcript []TranscriptEntry `json:"transcript"`
	HTTP       *HTTPTransaction  `json:"http,omitempty"`
}

// TranscriptEntry is one application-layer turn in a conversation.
type TranscriptEntry struct {
	PacketID  int    `json:"packetId"`
	Direction string `json:"direction"`
	Arrow     string `json:"arrow"`
	Protocol  string `json:"protocol"`
	Info      string `json:"info"`
	Text      string `json:"text"`
}

// HTTPTransaction holds the request/response pair parsed from a stream's
// reassembled bytes.
type HTTPTransaction struct {
	Method      string            `json:"method,omitempty"`
	URL         string            `json:"url,omitempty"`
	StatusCode  int               `json:"statusCode,omitempty"`
	StatusText  string            `json:"statusText,omitempty"`
	ReqHeaders  map[string]string `json:"reqHeaders,omitempty"`
	RespHeaders map[string]string `json:"respHeaders,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	BodyPreview string            `json:"bodyPreview,omitempty"`
}

// StreamData is the reassembled payload of a stream, as served to clients.
type StreamData struct {
	StreamID   int              `json:"streamId"`
	ClientData string           `json:"clientData"` // base64
	ServerData string           `json:"serverData"` // base64
	HTTPInfo   *HTTPTransaction `json:"httpInfo,omitempty"`
}
