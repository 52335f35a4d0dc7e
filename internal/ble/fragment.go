// Package ble reassembles L2CAP messages that were split across several
// Bluetooth LE link-layer or HCI ACL packets.
package ble

import (
	"fmt"

	"pcapscope/internal/wire"
)

// Packet boundary flag values.
const (
	PBContinue uint8 = 1
	PBStart    uint8 = 2
)

// LLID values of a data channel PDU header.
const (
	LLIDContinue = 1
	LLIDStart    = 2
	LLIDControl  = 3
)

const (
	aclHeaderLen   = 4
	l2capHeaderLen = 4
)

// Fragment is one reassembly input: a single packet's share of an L2CAP
// message.
type Fragment struct {
	PacketID int
	Key      string
	PB       uint8
	MoreData bool
	// Payload starts at the L2CAP header on start fragments.
	Payload []byte
	// Declared is the full message size, L2CAP header included, when the
	// fragment carries a parseable L2CAP header.
	Declared  int
	ChannelID uint16
	HasHeader bool
	Handle    uint16
	HasHandle bool
}

// L2CAPHeader is the basic L2CAP header found on a start fragment.
type L2CAPHeader struct {
	Length    uint16
	ChannelID uint16
}

// ChannelName names the fixed LE channels.
func ChannelName(cid uint16) string {
	switch cid {
	case 0x0004:
		return "ATT"
	case 0x0005:
		return "LE Signaling"
	case 0x0006:
		return "SMP"
	}
	if cid >= 0x0040 && cid <= 0x007f {
		return "Dynamic"
	}
	return fmt.Sprintf("0x%04x", cid)
}

func plausibleChannel(cid uint16) bool {
	return cid == 0x0004 || cid == 0x0005 || cid == 0x0006 || (cid >= 0x0040 && cid <= 0x007f)
}

// readL2CAP reads a header at off. The declared length must cover at
// least the bytes present after the header.
func readL2CAP(data []byte, off int) (L2CAPHeader, bool) {
	c := wire.NewCursor(data)
	length, ok1 := c.Uint16LE(off)
	cid, ok2 := c.Uint16LE(off + 2)
	if !ok1 || !ok2 || !plausibleChannel(cid) || length == 0 {
		return L2CAPHeader{}, false
	}
	if int(length) < len(data)-off-l2capHeaderLen {
		return L2CAPHeader{}, false
	}
	return L2CAPHeader{Length: length, ChannelID: cid}, true
}

// FindL2CAP looks for an L2CAP header at offset 0, then scans forward for
// the first offset that holds a plausible channel id and length.
func FindL2CAP(data []byte) (L2CAPHeader, int, bool) {
	for off := 0; off+l2capHeaderLen <= len(data); off++ {
		if h, ok := readL2CAP(data, off); ok {
			return h, off, true
		}
	}
	return L2CAPHeader{}, 0, false
}

// aclHeader reads an ACL-like sub-header at the front of a data PDU
// payload. It is accepted only when the PB value is a start or
// continuation and the data length matches what follows.
func aclHeader(pdu []byte) (handle uint16, pb uint8, ok bool) {
	c := wire.NewCursor(pdu)
	hw, ok1 := c.Uint16LE(0)
	length, ok2 := c.Uint16LE(2)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	pb = uint8(hw>>12) & 0x03
	if pb != PBStart && pb != PBContinue {
		return 0, 0, false
	}
	if length == 0 || int(length) != len(pdu)-aclHeaderLen {
		return 0, 0, false
	}
	return hw & 0x0fff, pb, true
}

// FromLinkLayer builds a fragment from a BLE data channel PDU payload.
// When the payload opens with an ACL-like sub-header its handle and PB
// flag are used; otherwise the LLID decides start or continuation and the
// key is scoped to the access address alone.
func FromLinkLayer(aa uint32, llid uint8, md bool, pdu []byte) (*Fragment, bool) {
	if len(pdu) == 0 || llid == LLIDControl {
		return nil, false
	}
	f := &Fragment{MoreData: md}
	if handle, pb, ok := aclHeader(pdu); ok {
		f.Key = fmt.Sprintf("%08x:%d", aa, handle)
		f.Handle, f.HasHandle = handle, true
		f.PB = pb
		f.Payload = pdu[aclHeaderLen:]
	} else {
		f.Key = fmt.Sprintf("aa:%08x", aa)
		f.PB = PBContinue
		if llid == LLIDStart {
			f.PB = PBStart
		}
		f.Payload = pdu
	}
	f.attachHeader()
	return f, true
}

// FromHCI builds a fragment from an HCI ACL data packet. HCI carries no
// more-data bit, so completion relies on the declared L2CAP length.
func FromHCI(handle uint16, pb uint8, acl []byte) (*Fragment, bool) {
	if len(acl) == 0 {
		return nil, false
	}
	// Non-flushable starts (0) and complete PDUs (3) both open a message.
	if pb == 0 || pb == 3 {
		pb = PBStart
	}
	f := &Fragment{
		Key:       fmt.Sprintf("hci:%d", handle),
		PB:        pb,
		MoreData:  true,
		Payload:   acl,
		Handle:    handle,
		HasHandle: true,
	}
	f.attachHeader()
	return f, true
}

func (f *Fragment) attachHeader() {
	if f.PB != PBStart {
		return
	}
	h, off, ok := FindL2CAP(f.Payload)
	if !ok {
		return
	}
	f.Payload = f.Payload[off:]
	f.HasHeader = true
	f.ChannelID = h.ChannelID
	f.Declared = int(h.Length) + l2capHeaderLen
}
