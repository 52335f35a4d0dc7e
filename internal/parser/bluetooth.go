package parser

import (
	"encoding/hex"
	"fmt"

	"pcapscope/internal/ble"
	"pcapscope/internal/models"
	"pcapscope/internal/wire"
)

const (
	bleLinkHeaderLen = 6 // access address + PDU header
	bleCRCLen        = 3
	blePhdrLen       = 10
)

var bleEncapsulationNames = map[int]string{
	bleRaw:    "raw",
	blePhdr:   "phdr",
	bleNordic: "nordic",
}

// ==================== BLE Link Layer ====================

func (d *Dissection) bleLinkLayer(data []byte, enc int) {
	rec := &models.BLELink{Encapsulation: bleEncapsulationNames[enc]}
	off := 0

	switch enc {
	case bleNordic:
		if len(data) < 8 {
			d.Layers.Link = &models.UnknownLayer{Reason: "short Nordic sniffer header", Length: len(data)}
			return
		}
		off = 7 + int(data[7])
		c := wire.NewCursor(data)
		if ch, ok := c.Uint8(9); ok {
			rec.Channel = int(ch)
		}
		if rssi, ok := c.Uint8(10); ok {
			rec.RSSI = -int(rssi)
		}
		if ec, ok := c.Uint16LE(11); ok {
			rec.EventCounter = int(ec)
		}
	case blePhdr:
		if len(data) < blePhdrLen {
			d.Layers.Link = &models.UnknownLayer{Reason: "short BLE pseudo-header", Length: len(data)}
			return
		}
		rec.Channel = int(data[0])
		rec.RSSI = int(int8(data[1]))
		off = blePhdrLen
	}

	c := wire.NewCursor(data)
	if !c.Has(off, bleLinkHeaderLen) {
		d.Layers.Link = &models.UnknownLayer{Reason: "short BLE link-layer header", Length: len(data)}
		return
	}
	aa, _ := c.Uint32LE(off)
	if be, _ := c.Uint32BE(off); aa != advAccessAddress && be == advAccessAddress {
		aa = be
	}
	rec.AccessAddress = aa
	rec.Advertising = aa == advAccessAddress

	h0, h1 := data[off+4], data[off+5]
	rec.PDULength = int(h1)
	start := off + bleLinkHeaderLen
	end := start + int(h1)
	if end > len(data) {
		end = len(data)
	}
	pdu := data[start:end]
	if crc, ok := c.Slice(end, bleCRCLen); ok && end-start == int(h1) {
		rec.CRC = uint32(crc[0]) | uint32(crc[1])<<8 | uint32(crc[2])<<16
	}
	d.Layers.Link = rec

	if rec.Advertising {
		rec.PDUType = h0 & 0x0f
		d.Layers.Application = advertising(h0, pdu)
		return
	}

	rec.LLID = h0 & 0x03
	rec.NESN = h0&0x04 != 0
	rec.SN = h0&0x08 != 0
	rec.MD = h0&0x10 != 0

	switch {
	case len(pdu) == 0:
		return
	case rec.LLID == ble.LLIDControl:
		d.Layers.Application = llControl(pdu)
		return
	}
	if f, ok := ble.FromLinkLayer(aa, rec.LLID, rec.MD, pdu); ok {
		d.Fragment = f
		d.Layers.Application = l2capRecord(f)
	}
}

func l2capRecord(f *ble.Fragment) *models.L2CAP {
	rec := &models.L2CAP{Continuation: f.PB == ble.PBContinue}
	body := f.Payload
	if f.HasHeader {
		rec.Length = uint16(f.Declared - 4)
		rec.ChannelID = f.ChannelID
		rec.ChannelName = ble.ChannelName(f.ChannelID)
		body = body[4:]
	}
	rec.Payload = hex.EncodeToString(body)
	return rec
}

var llControlOpcodes = map[uint8]string{
	0x00: "LL_CONNECTION_UPDATE_IND",
	0x01: "LL_CHANNEL_MAP_IND",
	0x02: "LL_TERMINATE_IND",
	0x03: "LL_ENC_REQ",
	0x04: "LL_ENC_RSP",
	0x05: "LL_START_ENC_REQ",
	0x06: "LL_START_ENC_RSP",
	0x07: "LL_UNKNOWN_RSP",
	0x08: "LL_FEATURE_REQ",
	0x09: "LL_FEATURE_RSP",
	0x0c: "LL_VERSION_IND",
	0x0d: "LL_REJECT_IND",
	0x12: "LL_PING_REQ",
	0x13: "LL_PING_RSP",
	0x14: "LL_LENGTH_REQ",
	0x15: "LL_LENGTH_RSP",
	0x16: "LL_PHY_REQ",
	0x17: "LL_PHY_RSP",
}

func llControl(pdu []byte) models.ApplicationLayer {
	name, ok := llControlOpcodes[pdu[0]]
	if !ok {
		name = "Unknown"
	}
	return &models.AppData{Name: "LL Control", Fields: []models.LayerField{
		field("Opcode", fmt.Sprintf("0x%02x (%s)", pdu[0], name)),
		field("CtrData", hex.EncodeToString(pdu[1:])),
	}}
}

// ==================== BLE Advertising ====================

var advPDUTypes = map[uint8]string{
	0: "ADV_IND",
	1: "ADV_DIRECT_IND",
	2: "ADV_NONCONN_IND",
	3: "SCAN_REQ",
	4: "SCAN_RSP",
	5: "CONNECT_IND",
	6: "ADV_SCAN_IND",
	7: "ADV_EXT_IND",
}

var adTypeNames = map[uint8]string{
	0x01: "Flags",
	0x02: "Incomplete 16-bit UUIDs",
	0x03: "Complete 16-bit UUIDs",
	0x06: "Incomplete 128-bit UUIDs",
	0x07: "Complete 128-bit UUIDs",
	0x08: "Shortened Local Name",
	0x09: "Complete Local Name",
	0x0a: "Tx Power Level",
	0x16: "Service Data",
	0x19: "Appearance",
	0xff: "Manufacturer Specific Data",
}

// PDU types whose payload is AdvA followed by AD structures.
var advCarriesData = map[uint8]bool{0: true, 2: true, 4: true, 6: true}

func advertising(h0 uint8, pdu []byte) *models.BLEAdvertising {
	rec := &models.BLEAdvertising{
		PDUType: h0 & 0x0f,
		TxAdd:   h0&0x40 != 0,
		RxAdd:   h0&0x80 != 0,
	}
	rec.PDUTypeName = advPDUTypes[rec.PDUType]
	if rec.PDUTypeName == "" {
		rec.PDUTypeName = "Reserved"
	}
	if len(pdu) < 6 {
		return rec
	}
	// Device addresses are transmitted least significant byte first.
	addr := make([]byte, 6)
	for i := range addr {
		addr[i] = pdu[5-i]
	}
	rec.Address = wire.FormatMAC(addr)

	if !advCarriesData[rec.PDUType] {
		return rec
	}
	ad := pdu[6:]
	for len(ad) >= 2 {
		n := int(ad[0])
		if n == 0 || n+1 > len(ad) {
			break
		}
		typ, value := ad[1], ad[2:n+1]
		s := models.ADStructure{Type: typ, TypeName: adTypeNames[typ]}
		if s.TypeName == "" {
			s.TypeName = fmt.Sprintf("0x%02x", typ)
		}
		switch typ {
		case 0x08, 0x09:
			s.Value = string(value)
			rec.LocalName = s.Value
		default:
			s.Value = hex.EncodeToString(value)
		}
		rec.Structures = append(rec.Structures, s)
		ad = ad[n+1:]
	}
	return rec
}

// ==================== HCI H4 ====================

var hciPacketTypes = map[uint8]string{
	1: "Command",
	2: "ACL Data",
	3: "SCO Data",
	4: "Event",
	5: "ISO Data",
}

var hciEventNames = map[uint8]string{
	0x05: "Disconnection Complete",
	0x08: "Encryption Change",
	0x0e: "Command Complete",
	0x0f: "Command Status",
	0x13: "Number of Completed Packets",
	0x3e: "LE Meta",
}

func (d *Dissection) hciH4(data []byte, enc int) {
	rec := &models.BluetoothHCI{}
	off := 0
	c := wire.NewCursor(data)
	if enc == blePhdr {
		dir, ok := c.Uint32BE(0)
		if !ok {
			d.Layers.Link = &models.UnknownLayer{Reason: "short HCI pseudo-header", Length: len(data)}
			return
		}
		rec.Direction = "sent"
		if dir&1 != 0 {
			rec.Direction = "received"
		}
		off = 4
	}
	typ, ok := c.Uint8(off)
	if !ok {
		d.Layers.Link = &models.UnknownLayer{Reason: "empty HCI packet", Length: len(data)}
		return
	}
	rec.PacketType = typ
	rec.PacketTypeName = hciPacketTypes[typ]
	if rec.PacketTypeName == "" {
		rec.PacketTypeName = "Unknown"
	}
	d.Layers.Link = rec
	body := c.Tail(off + 1)

	switch typ {
	case 1:
		bc := wire.NewCursor(body)
		opcode, ok1 := bc.Uint16LE(0)
		plen, ok2 := bc.Uint8(2)
		if !ok1 || !ok2 {
			return
		}
		d.Layers.Application = &models.AppData{Name: "HCI Command", Fields: []models.LayerField{
			field("Opcode", fmt.Sprintf("0x%04x", opcode)),
			field("OGF", fmt.Sprintf("0x%02x", opcode>>10)),
			field("OCF", fmt.Sprintf("0x%03x", opcode&0x03ff)),
			field("Parameter Length", fmt.Sprintf("%d", plen)),
		}}
	case 2:
		bc := wire.NewCursor(body)
		hw, ok1 := bc.Uint16LE(0)
		length, ok2 := bc.Uint16LE(2)
		if !ok1 || !ok2 {
			return
		}
		rec.Handle = hw & 0x0fff
		rec.PBFlag = uint8(hw>>12) & 0x03
		rec.BCFlag = uint8(hw>>14) & 0x03
		rec.DataLength = length
		acl := bc.Tail(4)
		if len(acl) > int(length) {
			acl = acl[:length]
		}
		if f, ok := ble.FromHCI(rec.Handle, rec.PBFlag, acl); ok {
			d.Fragment = f
			d.Layers.Application = l2capRecord(f)
		}
	case 4:
		if len(body) < 2 {
			return
		}
		name := hciEventNames[body[0]]
		if name == "" {
			name = "Unknown"
		}
		d.Layers.Application = &models.AppData{Name: "HCI Event", Fields: []models.LayerField{
			field("Event Code", fmt.Sprintf("0x%02x (%s)", body[0], name)),
			field("Parameter Length", fmt.Sprintf("%d", body[1])),
		}}
	}
}
