package parser

import (
	"bytes"
	"fmt"

	"github.com/google/gopacket/layers"

	"pcapscope/internal/wire"
)

// Link types outside gopacket's 8-bit LinkType range, plus the Bluetooth
// and USB ones this package dissects itself.
const (
	linkTypeNull            = 0
	linkTypeEthernet        = 1
	linkTypeRaw             = 101
	linkTypeLoop            = 108
	linkTypeLinuxSLL        = 113
	linkTypeUSB             = 186
	linkTypeBluetoothH4     = 187
	linkTypeUSBLinux        = 189
	linkTypeBluetoothH4Phdr = 201
	linkTypeUSBLinuxMmapped = 220
	linkTypeIPv4            = 228
	linkTypeIPv6            = 229
	linkTypeUSBPcap         = 249
	linkTypeBluetoothLE     = 251
	linkTypeBluetoothLEPhdr = 256
	linkTypeNordicBLE       = 272
)

var linkTypeNames = map[uint32]string{
	linkTypeUSB:             "USB",
	linkTypeBluetoothH4:     "BLUETOOTH_HCI_H4",
	linkTypeUSBLinux:        "USB_LINUX",
	linkTypeBluetoothH4Phdr: "BLUETOOTH_HCI_H4_WITH_PHDR",
	linkTypeUSBLinuxMmapped: "USB_LINUX_MMAPPED",
	linkTypeIPv4:            "IPV4",
	linkTypeIPv6:            "IPV6",
	linkTypeUSBPcap:         "USBPCAP",
	linkTypeBluetoothLE:     "BLUETOOTH_LE_LL",
	linkTypeBluetoothLEPhdr: "BLUETOOTH_LE_LL_WITH_PHDR",
	linkTypeNordicBLE:       "NORDIC_BLE",
}

// LinkTypeName returns a display name for a numeric link type.
func LinkTypeName(lt uint32) string {
	if name, ok := linkTypeNames[lt]; ok {
		return name
	}
	if lt < 256 {
		return layers.LinkType(lt).String()
	}
	return fmt.Sprintf("LINKTYPE_%d", lt)
}

// LinkKind is the dissector branch chosen for a frame.
type LinkKind int

const (
	KindUnknown LinkKind = iota
	KindUSBPcap
	KindUSBLinux
	KindBLE
	KindHCI
	KindBareARP
	KindLinuxSLL
	KindLoopback
	KindRawIP
	KindEthernet
	KindIPSearch
	KindEthernetOther
)

var kindNames = map[LinkKind]string{
	KindUnknown:       "unknown",
	KindUSBPcap:       "usbpcap",
	KindUSBLinux:      "usbmon",
	KindBLE:           "ble",
	KindHCI:           "hci",
	KindBareARP:       "bare-arp",
	KindLinuxSLL:      "linux-sll",
	KindLoopback:      "loopback",
	KindRawIP:         "raw-ip",
	KindEthernet:      "ethernet",
	KindIPSearch:      "ip-search",
	KindEthernetOther: "ethernet-other",
}

func (k LinkKind) String() string { return kindNames[k] }

// BLE encapsulations.
const (
	bleRaw = iota
	blePhdr
	bleNordic
)

// Classification is the classifier's verdict for one frame.
type Classification struct {
	Kind LinkKind
	// Encapsulation distinguishes BLE and HCI header variants.
	Encapsulation int
	// Offset is where the IP header starts for KindIPSearch and where the
	// opcode sits for KindBareARP.
	Offset int
}

type classifier func(data []byte, declared uint32) (Classification, bool)

// classifiers run in precedence order. Declared link types are often wrong
// in the captures this module targets, so content checks can override them.
var classifiers = []classifier{
	classifyUSB,
	classifyBLE,
	classifyBareARP,
	classifyDeclaredFraming,
	classifyEthernet,
	classifyIPSearch,
	classifyDeclaredEthernet,
}

// Classify picks the link dissector for a frame.
func Classify(data []byte, declared uint32) Classification {
	for _, c := range classifiers {
		if res, ok := c(data, declared); ok {
			return res
		}
	}
	return Classification{Kind: KindUnknown}
}

const (
	etherTypeIPv4 = 0x0800
	etherTypeARP  = 0x0806
	etherTypeVLAN = 0x8100
	etherTypeIPv6 = 0x86dd
	etherTypeLLDP = 0x88cc
)

func knownEtherType(et uint16) bool {
	switch et {
	case etherTypeIPv4, etherTypeIPv6, etherTypeARP, etherTypeLLDP, etherTypeVLAN:
		return true
	}
	return false
}

// looksEthernet reports whether data carries a common ethertype at 12.
func looksEthernet(data []byte) bool {
	et, ok := wire.NewCursor(data).Uint16BE(12)
	return ok && knownEtherType(et)
}

func classifyUSB(data []byte, declared uint32) (Classification, bool) {
	switch declared {
	case linkTypeUSBLinux, linkTypeUSBLinuxMmapped:
		return Classification{Kind: KindUSBLinux}, true
	case linkTypeUSB, linkTypeUSBPcap:
		return Classification{Kind: KindUSBPcap}, true
	}
	// USBPcap pseudo-headers are 27 bytes, or 28 for control transfers.
	if len(data) >= 27 && (data[0] == 0x1b || data[0] == 0x1c) && data[1] == 0x00 && !looksEthernet(data) {
		return Classification{Kind: KindUSBPcap}, true
	}
	return Classification{}, false
}

const advAccessAddress = 0x8e89bed6

func nordicSignature(data []byte) bool {
	return len(data) >= 17+6 && data[3] >= 1 && data[3] <= 3 && data[6] == 0x06 && data[7] == 10
}

func advAddressAtStart(data []byte) bool {
	c := wire.NewCursor(data)
	le, ok := c.Uint32LE(0)
	if !ok {
		return false
	}
	be, _ := c.Uint32BE(0)
	return le == advAccessAddress || be == advAccessAddress
}

func classifyBLE(data []byte, declared uint32) (Classification, bool) {
	switch declared {
	case linkTypeBluetoothLE:
		return Classification{Kind: KindBLE, Encapsulation: bleRaw}, true
	case linkTypeBluetoothLEPhdr:
		return Classification{Kind: KindBLE, Encapsulation: blePhdr}, true
	case linkTypeNordicBLE:
		return Classification{Kind: KindBLE, Encapsulation: bleNordic}, true
	case linkTypeBluetoothH4:
		return Classification{Kind: KindHCI}, true
	case linkTypeBluetoothH4Phdr:
		return Classification{Kind: KindHCI, Encapsulation: blePhdr}, true
	}
	if looksEthernet(data) {
		return Classification{}, false
	}
	if nordicSignature(data) {
		return Classification{Kind: KindBLE, Encapsulation: bleNordic}, true
	}
	if len(data) >= 6 && advAddressAtStart(data) {
		return Classification{Kind: KindBLE, Encapsulation: bleRaw}, true
	}
	return Classification{}, false
}

// arpPrefix is the fixed Ethernet/IPv4 ARP header ahead of the opcode.
var arpPrefix = []byte{0x00, 0x01, 0x08, 0x00, 0x06, 0x04}

const maxARPScan = 16

// bareARPOpcode scans the start of a frame for an ARP request or reply
// opcode. Header bytes ahead of it may be cut off, but the ones present
// must match arpPrefix and at least the address lengths must be there.
func bareARPOpcode(data []byte) (int, bool) {
	c := wire.NewCursor(data)
	for at := 2; at <= maxARPScan; at++ {
		op, ok := c.Uint16BE(at)
		if !ok {
			return 0, false
		}
		if op != 1 && op != 2 {
			continue
		}
		start := at - len(arpPrefix)
		if start < 0 && bytes.Equal(data[:at], arpPrefix[-start:]) {
			return at, true
		}
		if start >= 0 && bytes.Equal(data[start:at], arpPrefix) {
			return at, true
		}
	}
	return 0, false
}

func classifyBareARP(data []byte, _ uint32) (Classification, bool) {
	if looksEthernet(data) {
		return Classification{}, false
	}
	if at, ok := bareARPOpcode(data); ok {
		return Classification{Kind: KindBareARP, Offset: at}, true
	}
	return Classification{}, false
}

func classifyDeclaredFraming(_ []byte, declared uint32) (Classification, bool) {
	switch declared {
	case linkTypeLinuxSLL:
		return Classification{Kind: KindLinuxSLL}, true
	case linkTypeNull, linkTypeLoop:
		return Classification{Kind: KindLoopback}, true
	case linkTypeRaw, linkTypeIPv4, linkTypeIPv6, 12, 14:
		return Classification{Kind: KindRawIP}, true
	}
	return Classification{}, false
}

func classifyEthernet(data []byte, _ uint32) (Classification, bool) {
	if len(data) >= 14 && looksEthernet(data) {
		return Classification{Kind: KindEthernet}, true
	}
	return Classification{}, false
}

func classifyIPSearch(data []byte, _ uint32) (Classification, bool) {
	if off, ok := findIPHeader(data); ok {
		return Classification{Kind: KindIPSearch, Offset: off}, true
	}
	return Classification{}, false
}

func classifyDeclaredEthernet(data []byte, declared uint32) (Classification, bool) {
	if declared == linkTypeEthernet && len(data) >= 14 {
		return Classification{Kind: KindEthernetOther}, true
	}
	return Classification{}, false
}

var searchIPv4Protocols = map[uint8]bool{1: true, 2: true, 6: true, 17: true, 47: true, 50: true, 89: true, 132: true}

var searchIPv6NextHeaders = map[uint8]bool{0: true, 6: true, 17: true, 43: true, 44: true, 58: true, 59: true, 60: true}

// findIPHeader scans every offset for something shaped like an IPv4 or
// IPv6 header.
func findIPHeader(data []byte) (int, bool) {
	c := wire.NewCursor(data)
	for off := 0; off+20 <= len(data); off++ {
		b := data[off]
		switch b >> 4 {
		case 4:
			ihl := int(b & 0x0f)
			if ihl < 5 {
				continue
			}
			total, _ := c.Uint16BE(off + 2)
			if int(total) < ihl*4 {
				continue
			}
			if searchIPv4Protocols[data[off+9]] {
				return off, true
			}
		case 6:
			if off+40 <= len(data) && searchIPv6NextHeaders[data[off+6]] {
				return off, true
			}
		}
	}
	return 0, false
}
