package models

// ParseResult is everything one parse of a capture buffer produces.
type ParseResult struct {
	Format     string          `json:"format"`
	Interfaces []InterfaceInfo `json:"interfaces,omitempty"`
	Packets    []*Packet       `json:"packets"`
	Streams    map[int]*Stream `json:"streams"`
	Stats      Stats           `json:"stats"`
	Timing     *Timing         `json:"timing,omitempty"`
}

// Stats summarizes the packets of a parse.
type Stats struct {
	PacketCount    int     `json:"packetCount"`
	TotalBytes     int64   `json:"totalBytes"`
	FirstTimestamp float64 `json:"firstTimestamp"`
	LastTimestamp  float64 `json:"lastTimestamp"`
	Duration       float64 `json:"duration"`
	AverageSize    float64 `json:"averageSize"`
}

// Timing is a per-phase breakdown in milliseconds.
type Timing struct {
	FormatDetection  float64            `json:"formatDetection"`
	InterfaceParsing float64            `json:"interfaceParsing"`
	PacketParsing    float64            `json:"packetParsing"`
	LinkBranches     map[string]float64 `json:"linkBranches"`
	ProtocolAnalysis float64            `json:"protocolAnalysis"`
	StreamProcessing float64            `json:"streamProcessing"`
	BLEReassembly    float64            `json:"bleReassembly"`
	Total            float64            `json:"total"`
}

// InterfaceInfo describes a capture interface found in the file.
type InterfaceInfo struct {
	ID                  int    `json:"id"`
	LinkType            uint32 `json:"linkType"`
	LinkTypeName        string `json:"linkTypeName"`
	SnapLen             uint32 `json:"snapLen"`
	TimestampResolution int    `json:"timestampResolution"`
	Name                string `json:"name,omitempty"`
}

// NewParseResult returns the empty result shape.
func NewParseResult() *ParseResult {
	return &ParseResult{
		Format:  "unrecognized",
		Packets: []*Packet{},
		Streams: map[int]*Stream{},
	}
}
