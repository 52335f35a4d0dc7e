package parser

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"pcapscope/internal/models"
)

// appDissector is one entry of the content-signature catalogue. Ports, when
// set, must match the source or destination port before Match is tried.
type appDissector struct {
	Name      string
	Transport string
	Ports     []uint16
	Match     func([]byte) bool
	Decode    func([]byte) models.ApplicationLayer
}

var catalogue = []appDissector{
	{Name: "TLS", Transport: "TCP", Match: isTLSRecord, Decode: decodeTLS},
	{Name: "SSH", Transport: "TCP", Match: isSSH, Decode: parseSSH},
	{Name: "HTTP2", Transport: "TCP", Match: isHTTP2Preface, Decode: decodeHTTP2},
	{Name: "MQTT", Transport: "TCP", Ports: []uint16{1883, 8883}, Match: isMQTT, Decode: parseMQTT},
	{Name: "SIP", Ports: []uint16{5060, 5061}, Match: isSIP, Decode: parseSIP},
	{Name: "Modbus", Transport: "TCP", Ports: []uint16{502}, Match: isModbus, Decode: parseModbus},
	{Name: "RDP", Transport: "TCP", Ports: []uint16{3389}, Match: isRDP, Decode: parseRDP},
	{Name: "QUIC", Transport: "UDP", Ports: []uint16{443}, Match: isQUIC, Decode: parseQUIC},
}

func field(name, value string) models.LayerField {
	return models.LayerField{Name: name, Value: value}
}

func firstLine(data []byte) string {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return strings.TrimRight(string(data), "\r")
}

// ==================== SSH Detection ====================

func isSSH(data []byte) bool {
	return bytes.HasPrefix(data, []byte("SSH-"))
}

func parseSSH(data []byte) models.ApplicationLayer {
	version := firstLine(data)
	fields := []models.LayerField{field("Version String", version)}

	// "SSH-2.0-OpenSSH_8.9"
	parts := strings.SplitN(version, "-", 3)
	if len(parts) >= 3 {
		fields = append(fields,
			field("Protocol Version", parts[0]+"-"+parts[1]),
			field("Software", parts[2]))
	}
	return &models.AppData{Name: "SSH", Fields: fields}
}

// ==================== QUIC Detection ====================

func isQUIC(data []byte) bool {
	// Long header form bit plus the fixed bit.
	return len(data) >= 6 && data[0]&0xc0 == 0xc0
}

func quicVersionString(v uint32) string {
	switch v {
	case 0x00000001:
		return "1 (RFC 9000)"
	case 0x6b3343cf:
		return "2 (RFC 9369)"
	case 0x00000000:
		return "Version Negotiation"
	}
	if v&0xffffff00 == 0xff000000 {
		return fmt.Sprintf("draft-%d", v&0xff)
	}
	return fmt.Sprintf("0x%08x", v)
}

func parseQUIC(data []byte) models.ApplicationLayer {
	fields := []models.LayerField{
		field("Header Form", "Long Header"),
		field("Version", quicVersionString(binary.BigEndian.Uint32(data[1:5]))),
	}
	dcidLen := int(data[5])
	fields = append(fields, field("DCID Length", fmt.Sprintf("%d", dcidLen)))
	if dcidLen > 0 && len(data) >= 6+dcidLen {
		fields = append(fields, field("Destination CID", hex.EncodeToString(data[6:6+dcidLen])))
	}
	return &models.AppData{Name: "QUIC", Fields: fields}
}

// ==================== MQTT Detection ====================

func isMQTT(data []byte) bool {
	// CONNECT with the protocol name in the variable header.
	return len(data) >= 10 && data[0] == 0x10 && bytes.Contains(data[:10], []byte("MQTT"))
}

func parseMQTT(data []byte) models.ApplicationLayer {
	fields := []models.LayerField{field("Packet Type", "CONNECT")}

	idx := bytes.Index(data, []byte("MQTT"))
	if idx >= 0 && idx+5 < len(data) {
		fields = append(fields, field("Protocol Level", fmt.Sprintf("%d", data[idx+4])))
		flags := data[idx+5]
		var names []string
		for _, f := range []struct {
			bit  byte
			name string
		}{{0x80, "Username"}, {0x40, "Password"}, {0x04, "Will"}, {0x02, "Clean Session"}} {
			if flags&f.bit != 0 {
				names = append(names, f.name)
			}
		}
		fields = append(fields, field("Connect Flags", fmt.Sprintf("0x%02x [%s]", flags, strings.Join(names, ", "))))
	}
	return &models.AppData{Name: "MQTT", Fields: fields}
}

// ==================== SIP Detection ====================

var sipPrefixes = []string{
	"SIP/", "INVITE ", "REGISTER ", "ACK ", "BYE ", "CANCEL ", "OPTIONS ", "PRACK ",
	"NOTIFY ", "PUBLISH ", "INFO ", "REFER ", "MESSAGE ", "UPDATE ", "SUBSCRIBE ",
}

func isSIP(data []byte) bool {
	for _, p := range sipPrefixes {
		if bytes.HasPrefix(data, []byte(p)) {
			return true
		}
	}
	return false
}

func sipMethod(data []byte) string {
	line := firstLine(data)
	if strings.HasPrefix(line, "SIP/") {
		return "Response"
	}
	method, _, _ := strings.Cut(line, " ")
	return method
}

// sipHeader returns the value of the first header called name.
func sipHeader(data []byte, name string) string {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		k, v, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func parseSIP(data []byte) models.ApplicationLayer {
	fields := []models.LayerField{
		field("Request/Status Line", firstLine(data)),
		field("Method", sipMethod(data)),
	}

	callID := sipHeader(data, "Call-ID")
	if callID == "" {
		callID = sipHeader(data, "i")
	}
	for _, h := range []struct{ name, value string }{
		{"Call-ID", callID},
		{"From", sipHeader(data, "From")},
		{"To", sipHeader(data, "To")},
	} {
		if h.value != "" {
			fields = append(fields, field(h.name, h.value))
		}
	}
	return &models.AppData{Name: "SIP", Fields: fields}
}

// ==================== Modbus Detection ====================

func isModbus(data []byte) bool {
	// MBAP header with protocol identifier 0.
	return len(data) >= 8 && data[2] == 0 && data[3] == 0
}

var modbusFunctions = map[byte]string{
	1:  "Read Coils",
	2:  "Read Discrete Inputs",
	3:  "Read Holding Registers",
	4:  "Read Input Registers",
	5:  "Write Single Coil",
	6:  "Write Single Register",
	15: "Write Multiple Coils",
	16: "Write Multiple Registers",
}

func parseModbus(data []byte) models.ApplicationLayer {
	fc := data[7]
	name, ok := modbusFunctions[fc&0x7f]
	if !ok {
		name = "Unknown"
	}
	if fc&0x80 != 0 {
		name += " (exception)"
	}
	return &models.AppData{Name: "Modbus", Fields: []models.LayerField{
		field("Transaction ID", fmt.Sprintf("0x%04x", binary.BigEndian.Uint16(data[0:2]))),
		field("Protocol ID", fmt.Sprintf("0x%04x", binary.BigEndian.Uint16(data[2:4]))),
		field("Length", fmt.Sprintf("%d", binary.BigEndian.Uint16(data[4:6]))),
		field("Unit ID", fmt.Sprintf("%d", data[6])),
		field("Function Code", fmt.Sprintf("%d (%s)", fc, name)),
	}}
}

// ==================== RDP Detection ====================

func isRDP(data []byte) bool {
	// TPKT version 3, reserved 0.
	return len(data) >= 4 && data[0] == 3 && data[1] == 0
}

func parseRDP(data []byte) models.ApplicationLayer {
	fields := []models.LayerField{
		field("TPKT Version", fmt.Sprintf("%d", data[0])),
		field("TPKT Length", fmt.Sprintf("%d", binary.BigEndian.Uint16(data[2:4]))),
	}
	if len(data) >= 5 {
		fields = append(fields, field("X.224 Length", fmt.Sprintf("%d", data[4])))
	}
	if len(data) >= 6 {
		var pduType string
		switch data[5] & 0xf0 {
		case 0xe0:
			pduType = "Connection Request"
		case 0xd0:
			pduType = "Connection Confirm"
		case 0x80:
			pduType = "Disconnect Request"
		case 0xf0:
			pduType = "Data Transfer"
		default:
			pduType = fmt.Sprintf("0x%02x", data[5])
		}
		fields = append(fields, field("X.224 PDU Type", pduType))
	}
	return &models.AppData{Name: "RDP", Fields: fields}
}
