package parser

import (
	"github.com/google/gopacket/layers"

	"pcapscope/internal/models"
	"pcapscope/internal/wire"
)

var usbTransferNames = map[uint8]string{
	0: "Isochronous",
	1: "Interrupt",
	2: "Control",
	3: "Bulk",
}

func usbTransferName(t uint8) string {
	if name, ok := usbTransferNames[t&0x03]; ok {
		return name
	}
	return "Unknown"
}

func usbDirection(in bool) string {
	if in {
		return "IN"
	}
	return "OUT"
}

// usbPcap reads the Windows USBPcap pseudo-header:
//
//	headerLen u16, irpId u64, status u32, function u16, info u8,
//	bus u16, device u16, endpoint u8, transfer u8, dataLength u32
func (d *Dissection) usbPcap(data []byte) {
	c := wire.NewCursor(data)
	hl, ok := c.Uint16LE(0)
	if !ok || (hl != 27 && hl != 28) || !c.Has(0, int(hl)) {
		d.Layers.Link = &models.USB{Source: "USB", Direction: "Unknown", TransferType: "Unknown"}
		return
	}
	rec := &models.USB{Source: "USBPcap", HeaderLength: int(hl)}
	rec.IRPID, _ = c.Uint64LE(2)
	status, _ := c.Uint32LE(10)
	rec.Status = int32(status)
	rec.Function, _ = c.Uint16LE(14)
	rec.Direction = usbDirection(data[16]&0x01 != 0)
	rec.Bus, _ = c.Uint16LE(17)
	rec.Device, _ = c.Uint16LE(19)
	rec.Endpoint = data[21]
	rec.TransferType = usbTransferName(data[22])
	rec.DataLength, _ = c.Uint32LE(23)
	d.Layers.Link = rec
}

// usbLinux decodes the Linux usbmon header through gopacket. The header
// is 48 bytes, or 64 for the memory-mapped variant.
func (d *Dissection) usbLinux(data []byte, linkType uint32) {
	hl := 48
	if linkType == linkTypeUSBLinuxMmapped {
		hl = 64
	}
	if len(data) < hl {
		d.Layers.Link = &models.UnknownLayer{Reason: "short usbmon header", Length: len(data)}
		return
	}
	var usb layers.USB
	if err := decode(&usb, data); err != nil {
		d.Layers.Link = &models.UnknownLayer{Reason: err.Error(), Length: len(data)}
		return
	}
	d.Layers.Link = &models.USB{
		Source:       "usbmon",
		IRPID:        usb.ID,
		Status:       usb.Status,
		Bus:          usb.BusID,
		Device:       uint16(usb.DeviceAddress),
		Endpoint:     usb.EndpointNumber,
		Direction:    usbDirection(data[10]&0x80 != 0),
		TransferType: usbTransferName(data[9]),
		DataLength:   usb.UrbDataLength,
		HeaderLength: hl,
	}
}
