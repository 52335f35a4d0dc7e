package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"pcapscope/internal/models"
)

// ==================== Summary ====================

// summarize determines the highest-level protocol and builds address/info
// strings.
func (d *Dissection) summarize() {
	d.Protocol = "Unknown"
	for _, l := range d.Layers.Stack() {
		d.Protocol = l.LayerName()
		if info := layerInfo(l); info != "" {
			d.Info = info
		}
	}
	d.Source, d.Destination = addresses(d.Layers)
}

func addresses(ls models.Layers) (src, dst string) {
	switch n := ls.Network.(type) {
	case *models.IPv4:
		src, dst = n.Source, n.Destination
	case *models.IPv6:
		src, dst = n.Source, n.Destination
	case *models.ARP:
		return n.SenderIP, n.TargetIP
	}
	if src != "" {
		if sp, dp, ok := ports(ls.Transport); ok {
			return addPort(src, sp), addPort(dst, dp)
		}
		return src, dst
	}

	switch l := ls.Link.(type) {
	case *models.Ethernet:
		return l.Source, l.Destination
	case *models.LinuxSLL:
		return l.Address, ""
	case *models.BLELink:
		if adv, ok := ls.Application.(*models.BLEAdvertising); ok && adv.Address != "" {
			return adv.Address, "broadcast"
		}
		return fmt.Sprintf("0x%08x", l.AccessAddress), ""
	case *models.BluetoothHCI:
		if l.Direction == "received" {
			return "controller", "host"
		}
		return "host", "controller"
	case *models.USB:
		dev := fmt.Sprintf("%d.%d.%d", l.Bus, l.Device, l.Endpoint)
		if l.Direction == "IN" {
			return dev, "host"
		}
		return "host", dev
	}
	return "", ""
}

func ports(t models.TransportLayer) (uint16, uint16, bool) {
	switch t := t.(type) {
	case *models.TCP:
		return t.SourcePort, t.DestinationPort, true
	case *models.UDP:
		return t.SourcePort, t.DestinationPort, true
	}
	return 0, 0, false
}

func addPort(ip string, port uint16) string {
	if strings.Contains(ip, ":") {
		return "[" + ip + "]:" + strconv.Itoa(int(port))
	}
	return ip + ":" + strconv.Itoa(int(port))
}

// layerInfo is the one-line description shown in the packet list.
func layerInfo(l models.Layer) string {
	switch l := l.(type) {
	case *models.Ethernet:
		return l.EtherTypeName
	case *models.USB:
		return fmt.Sprintf("%s %s transfer, %d bytes", l.Direction, l.TransferType, l.DataLength)
	case *models.BLELink:
		if l.Advertising {
			return "Advertising"
		}
		if l.PDULength == 0 {
			return "Empty PDU"
		}
		return fmt.Sprintf("Data PDU LLID=%d Len=%d", l.LLID, l.PDULength)
	case *models.BluetoothHCI:
		if l.PacketType == 2 {
			return fmt.Sprintf("ACL Data handle=0x%03x PB=%d Len=%d", l.Handle, l.PBFlag, l.DataLength)
		}
		return l.PacketTypeName
	case *models.ARP:
		switch {
		case l.Truncated && l.SenderIP == "":
			return "Truncated ARP"
		case l.Operation == 1:
			return fmt.Sprintf("Who has %s? Tell %s", l.TargetIP, l.SenderIP)
		case l.Operation == 2:
			return fmt.Sprintf("%s is at %s", l.SenderIP, l.SenderMAC)
		}
		return fmt.Sprintf("Operation %d", l.Operation)
	case *models.IPv4:
		return l.ProtocolName
	case *models.IPv6:
		return l.NextHeaderName
	case *models.LLDP:
		return fmt.Sprintf("Chassis %s Port %s TTL %d", l.ChassisID, l.PortID, l.TTL)
	case *models.TCP:
		return fmt.Sprintf("%d -> %d [%s] Seq=%d Ack=%d Win=%d Len=%d",
			l.SourcePort, l.DestinationPort, strings.Join(l.FlagNames, ","),
			l.Seq, l.Ack, l.Window, l.PayloadLength)
	case *models.UDP:
		return fmt.Sprintf("%d -> %d Len=%d", l.SourcePort, l.DestinationPort, l.Length)
	case *models.ICMP:
		return echoInfo(l.TypeName, l.ID, l.Seq)
	case *models.ICMPv6:
		return echoInfo(l.TypeName, l.ID, l.Seq)
	case *models.IGMP:
		return fmt.Sprintf("%s %s", l.TypeName, l.GroupAddress)
	case *models.HTTP:
		if l.Info.IsRequest {
			return fmt.Sprintf("%s %s %s", l.Info.Method, l.Info.Path, l.Info.Version)
		}
		return strings.TrimSpace(fmt.Sprintf("%s %d %s", l.Info.Version, l.Info.StatusCode, l.Info.StatusText))
	case *models.DNS:
		info := "Standard query"
		if l.Response {
			info = "Standard query response"
		}
		info += fmt.Sprintf(" 0x%04x", l.ID)
		for _, q := range l.Questions {
			info += " " + q.Type + " " + q.Name
		}
		return info
	case *models.TLS:
		info := l.ContentType
		if l.HandshakeType != "" {
			info = l.HandshakeType
		}
		if l.ServerName != "" {
			info += " SNI=" + l.ServerName
		}
		return info
	case *models.L2CAP:
		if l.Continuation {
			return fmt.Sprintf("Continuation fragment, %d bytes", len(l.Payload)/2)
		}
		return fmt.Sprintf("CID 0x%04x (%s) Len=%d", l.ChannelID, l.ChannelName, l.Length)
	case *models.BLEAdvertising:
		info := l.PDUTypeName
		if l.Address != "" {
			info += " " + l.Address
		}
		if l.LocalName != "" {
			info += " \"" + l.LocalName + "\""
		}
		return info
	case *models.AppData:
		if len(l.Fields) > 0 {
			return l.Fields[0].Name + ": " + l.Fields[0].Value
		}
	case *models.UnknownLayer:
		return l.Reason
	}
	return ""
}

func echoInfo(name string, id, seq *uint16) string {
	if id == nil || seq == nil {
		return name
	}
	return fmt.Sprintf("%s id=0x%04x seq=%d", name, *id, *seq)
}

// ==================== Detail View ====================

// Describe renders a packet's layers as named field lists for the detail
// pane.
func Describe(ls models.Layers) []models.LayerDetail {
	var out []models.LayerDetail
	for _, l := range ls.Stack() {
		out = append(out, models.LayerDetail{Name: l.LayerName(), Fields: describeLayer(l)})
	}
	return out
}

func fieldf(name, format string, args ...any) models.LayerField {
	return models.LayerField{Name: name, Value: fmt.Sprintf(format, args...)}
}

func describeLayer(l models.Layer) []models.LayerField {
	switch l := l.(type) {
	case *models.Ethernet:
		fields := []models.LayerField{
			fieldf("Source", "%s", l.Source),
			fieldf("Destination", "%s", l.Destination),
			fieldf("Type", "%s (0x%04x)", l.EtherTypeName, l.EtherType),
		}
		for _, v := range l.VLANs {
			fields = append(fields, fieldf("802.1Q VLAN", "%d", v))
		}
		return fields
	case *models.LinuxSLL:
		return []models.LayerField{
			fieldf("Packet Type", "%s", l.PacketType),
			fieldf("Address Type", "%d", l.AddressType),
			fieldf("Address", "%s", l.Address),
			fieldf("Protocol", "0x%04x", l.EtherType),
		}
	case *models.Loopback:
		return []models.LayerField{fieldf("Family", "%d", l.Family)}
	case *models.RawLink:
		return []models.LayerField{fieldf("Link Type", "%s (%d)", LinkTypeName(l.LinkType), l.LinkType)}
	case *models.USB:
		return []models.LayerField{
			fieldf("Source", "%s", l.Source),
			fieldf("IRP ID", "0x%016x", l.IRPID),
			fieldf("Status", "%d", l.Status),
			fieldf("Function", "0x%04x", l.Function),
			fieldf("Bus", "%d", l.Bus),
			fieldf("Device", "%d", l.Device),
			fieldf("Endpoint", "0x%02x", l.Endpoint),
			fieldf("Direction", "%s", l.Direction),
			fieldf("Transfer Type", "%s", l.TransferType),
			fieldf("Data Length", "%d", l.DataLength),
			fieldf("Header Length", "%d", l.HeaderLength),
		}
	case *models.BLELink:
		fields := []models.LayerField{
			fieldf("Encapsulation", "%s", l.Encapsulation),
			fieldf("Access Address", "0x%08x", l.AccessAddress),
		}
		if l.Channel != 0 || l.RSSI != 0 {
			fields = append(fields, fieldf("Channel", "%d", l.Channel), fieldf("RSSI", "%d dBm", l.RSSI))
		}
		if l.Encapsulation == "nordic" {
			fields = append(fields, fieldf("Event Counter", "%d", l.EventCounter))
		}
		if l.Advertising {
			fields = append(fields, fieldf("PDU Type", "%d", l.PDUType))
		} else {
			fields = append(fields,
				fieldf("LLID", "%d", l.LLID),
				fieldf("NESN", "%t", l.NESN),
				fieldf("SN", "%t", l.SN),
				fieldf("MD", "%t", l.MD))
		}
		return append(fields, fieldf("Length", "%d", l.PDULength), fieldf("CRC", "0x%06x", l.CRC))
	case *models.BluetoothHCI:
		fields := []models.LayerField{fieldf("Packet Type", "%s (%d)", l.PacketTypeName, l.PacketType)}
		if l.Direction != "" {
			fields = append(fields, fieldf("Direction", "%s", l.Direction))
		}
		if l.PacketType == 2 {
			fields = append(fields,
				fieldf("Connection Handle", "0x%03x", l.Handle),
				fieldf("PB Flag", "%d", l.PBFlag),
				fieldf("BC Flag", "%d", l.BCFlag),
				fieldf("Data Length", "%d", l.DataLength))
		}
		return fields
	case *models.ARP:
		fields := []models.LayerField{
			fieldf("Hardware Type", "%d", l.HardwareType),
			fieldf("Protocol Type", "0x%04x", l.ProtocolType),
			fieldf("Operation", "%s", arpOperation(l.Operation)),
			fieldf("Sender MAC", "%s", l.SenderMAC),
			fieldf("Sender IP", "%s", l.SenderIP),
			fieldf("Target MAC", "%s", l.TargetMAC),
			fieldf("Target IP", "%s", l.TargetIP),
		}
		if l.Truncated {
			fields = append(fields, fieldf("Truncated", "true"))
		}
		return fields
	case *models.IPv4:
		return []models.LayerField{
			fieldf("Version", "%d", l.Version),
			fieldf("Header Length", "%d bytes", l.HeaderLength),
			fieldf("Type of Service", "0x%02x", l.TOS),
			fieldf("Total Length", "%d", l.TotalLength),
			fieldf("Identification", "0x%04x (%d)", l.ID, l.ID),
			fieldf("Flags", "%s", l.Flags),
			fieldf("Fragment Offset", "%d", l.FragmentOffset),
			fieldf("TTL", "%d", l.TTL),
			fieldf("Protocol", "%s (%d)", l.ProtocolName, l.Protocol),
			fieldf("Checksum", "0x%04x", l.Checksum),
			fieldf("Source", "%s", l.Source),
			fieldf("Destination", "%s", l.Destination),
		}
	case *models.IPv6:
		return []models.LayerField{
			fieldf("Version", "%d", l.Version),
			fieldf("Traffic Class", "0x%02x", l.TrafficClass),
			fieldf("Flow Label", "0x%05x", l.FlowLabel),
			fieldf("Payload Length", "%d", l.PayloadLength),
			fieldf("Next Header", "%s (%d)", l.NextHeaderName, l.NextHeader),
			fieldf("Hop Limit", "%d", l.HopLimit),
			fieldf("Source", "%s", l.Source),
			fieldf("Destination", "%s", l.Destination),
		}
	case *models.LLDP:
		fields := []models.LayerField{
			fieldf("Chassis ID", "%s", l.ChassisID),
			fieldf("Port ID", "%s", l.PortID),
			fieldf("TTL", "%d", l.TTL),
		}
		if l.SystemName != "" {
			fields = append(fields, fieldf("System Name", "%s", l.SystemName))
		}
		for _, t := range l.Other {
			fields = append(fields, fieldf(fmt.Sprintf("TLV %d", t.Type), "%s", t.Value))
		}
		return fields
	case *models.TCP:
		fields := []models.LayerField{
			fieldf("Source Port", "%d", l.SourcePort),
			fieldf("Destination Port", "%d", l.DestinationPort),
			fieldf("Sequence Number", "%d", l.Seq),
			fieldf("Acknowledgment Number", "%d", l.Ack),
			fieldf("Data Offset", "%d bytes", int(l.DataOffset)*4),
			fieldf("Flags", "[%s]", strings.Join(l.FlagNames, ", ")),
			fieldf("Window Size", "%d", l.Window),
			fieldf("Checksum", "0x%04x", l.Checksum),
			fieldf("Urgent Pointer", "%d", l.Urgent),
			fieldf("Payload Length", "%d", l.PayloadLength),
		}
		if s := l.Stream; s != nil {
			fields = append(fields, models.LayerField{
				Name:  "Stream",
				Value: fmt.Sprintf("%d", s.StreamID),
				Children: []models.LayerField{
					fieldf("Direction", "%s", s.Direction),
					fieldf("Related Packets", "%d", s.RelatedPackets),
					fieldf("Reassembled Length", "%d", s.ReassembledLength),
				},
			})
		}
		return fields
	case *models.UDP:
		return []models.LayerField{
			fieldf("Source Port", "%d", l.SourcePort),
			fieldf("Destination Port", "%d", l.DestinationPort),
			fieldf("Length", "%d", l.Length),
			fieldf("Checksum", "0x%04x", l.Checksum),
		}
	case *models.ICMP:
		return icmpFields(l.Type, l.Code, l.TypeName, l.Checksum, l.ID, l.Seq)
	case *models.ICMPv6:
		return icmpFields(l.Type, l.Code, l.TypeName, l.Checksum, l.ID, l.Seq)
	case *models.IGMP:
		return []models.LayerField{
			fieldf("Type", "0x%02x (%s)", l.Type, l.TypeName),
			fieldf("Max Response", "%d", l.MaxResponse),
			fieldf("Checksum", "0x%04x", l.Checksum),
			fieldf("Group Address", "%s", l.GroupAddress),
		}
	case *models.HTTP:
		return httpFields(l.Info)
	case *models.DNS:
		fields := []models.LayerField{
			fieldf("Transaction ID", "0x%04x", l.ID),
			fieldf("QR", "%s", boolToStr(l.Response, "Response", "Query")),
			fieldf("Opcode", "%d", l.Opcode),
			fieldf("Response Code", "%s", l.RCode),
		}
		for _, q := range l.Questions {
			fields = append(fields, fieldf("Query", "%s %s %s", q.Name, q.Type, q.Class))
		}
		for _, a := range l.Answers {
			fields = append(fields, fieldf("Answer", "%s %s %s (TTL: %d)", a.Name, a.Type, a.Data, a.TTL))
		}
		return fields
	case *models.TLS:
		fields := []models.LayerField{
			fieldf("Content Type", "%s", l.ContentType),
			fieldf("Version", "%s", l.Version),
			fieldf("Length", "%d", l.RecordLength),
		}
		if l.HandshakeType != "" {
			fields = append(fields, fieldf("Handshake Type", "%s", l.HandshakeType))
		}
		if l.ClientVersion != "" {
			fields = append(fields, fieldf("Client Version", "%s", l.ClientVersion))
		}
		if l.ServerName != "" {
			fields = append(fields, fieldf("Server Name", "%s", l.ServerName))
		}
		if len(l.CipherSuites) > 0 {
			suites := models.LayerField{Name: "Cipher Suites", Value: fmt.Sprintf("%d suites", len(l.CipherSuites))}
			for _, cs := range l.CipherSuites {
				suites.Children = append(suites.Children, fieldf("Suite", "%s", cs))
			}
			fields = append(fields, suites)
		}
		if l.JA3Hash != "" {
			fields = append(fields, fieldf("JA3", "%s", l.JA3), fieldf("JA3 Hash", "%s", l.JA3Hash))
		}
		return fields
	case *models.L2CAP:
		var fields []models.LayerField
		if l.Continuation {
			fields = append(fields, fieldf("Continuation", "true"))
		} else {
			fields = append(fields,
				fieldf("Length", "%d", l.Length),
				fieldf("Channel ID", "0x%04x (%s)", l.ChannelID, l.ChannelName))
		}
		fields = append(fields, fieldf("Payload", "%s", l.Payload))
		if fr := l.Fragment; fr != nil {
			fields = append(fields, fragmentField(fr))
		}
		return fields
	case *models.BLEAdvertising:
		fields := []models.LayerField{
			fieldf("PDU Type", "%s (%d)", l.PDUTypeName, l.PDUType),
			fieldf("TxAdd", "%s", boolToStr(l.TxAdd, "random", "public")),
			fieldf("RxAdd", "%s", boolToStr(l.RxAdd, "random", "public")),
		}
		if l.Address != "" {
			fields = append(fields, fieldf("Address", "%s", l.Address))
		}
		for _, s := range l.Structures {
			fields = append(fields, fieldf(s.TypeName, "%s", s.Value))
		}
		return fields
	case *models.AppData:
		return l.Fields
	case *models.UnknownLayer:
		return []models.LayerField{fieldf("Reason", "%s", l.Reason), fieldf("Length", "%d", l.Length)}
	}
	return nil
}

func fragmentField(fr *models.FragmentInfo) models.LayerField {
	members := make([]string, len(fr.Members))
	for i, m := range fr.Members {
		members[i] = strconv.Itoa(m)
	}
	field := models.LayerField{Name: "Reassembly", Value: "in progress"}
	if fr.IsReassembled {
		field.Value = fmt.Sprintf("%d fragments, %d bytes", fr.FragmentCount, fr.ReassembledLength)
	}
	field.Children = []models.LayerField{fieldf("Members", "%s", strings.Join(members, ", "))}
	if cs := fr.Checksums; cs != nil {
		field.Children = append(field.Children,
			fieldf("Sum", "0x%02x", cs.Sum),
			fieldf("XOR", "0x%02x", cs.XOR),
			fieldf("CRC-8", "0x%02x", cs.CRC8))
	}
	return field
}

func icmpFields(typ, code uint8, name string, checksum uint16, id, seq *uint16) []models.LayerField {
	fields := []models.LayerField{
		fieldf("Type", "%d (%s)", typ, name),
		fieldf("Code", "%d", code),
		fieldf("Checksum", "0x%04x", checksum),
	}
	if id != nil && seq != nil {
		fields = append(fields, fieldf("Identifier", "0x%04x", *id), fieldf("Sequence", "%d", *seq))
	}
	return fields
}

func httpFields(info models.HTTPInfo) []models.LayerField {
	var fields []models.LayerField
	if info.IsRequest {
		fields = append(fields, fieldf("Request Line", "%s %s %s", info.Method, info.Path, info.Version))
	} else {
		fields = append(fields, fieldf("Status Line", "%s %d %s", info.Version, info.StatusCode, info.StatusText))
	}
	names := make([]string, 0, len(info.Headers))
	for name := range info.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fields = append(fields, fieldf(name, "%s", info.Headers[name]))
	}
	if info.Body != "" {
		fields = append(fields, fieldf("Body", "%d bytes", len(info.Body)))
	}
	return fields
}

func arpOperation(op uint16) string {
	switch op {
	case 1:
		return "Request (1)"
	case 2:
		return "Reply (2)"
	}
	return fmt.Sprintf("Unknown (%d)", op)
}

func boolToStr(b bool, t, f string) string {
	if b {
		return t
	}
	return f
}
