package parser

import (
	"crypto/md5"
	"crypto/tls"
	"encoding/hex"
	"strconv"
	"strings"

	"pcapscope/internal/models"
	"pcapscope/internal/wire"
)

// gopacket stops at the TLS record layer, so ClientHello internals are read
// by hand.

const (
	tlsRecordHeaderLen    = 5
	tlsHandshakeHeaderLen = 4
	tlsRandomLen          = 32

	tlsRecordHandshake = 0x16
	tlsClientHello     = 0x01

	extServerName      = 0x0000
	extSupportedGroups = 0x000a
	extPointFormats    = 0x000b
)

var tlsContentTypes = map[byte]string{
	0x14: "Change Cipher Spec",
	0x15: "Alert",
	0x16: "Handshake",
	0x17: "Application Data",
}

var tlsHandshakeTypes = map[byte]string{
	0x01: "Client Hello",
	0x02: "Server Hello",
	0x04: "New Session Ticket",
	0x0b: "Certificate",
	0x0c: "Server Key Exchange",
	0x0d: "Certificate Request",
	0x0e: "Server Hello Done",
	0x10: "Client Key Exchange",
	0x14: "Finished",
}

// isTLSRecord matches a TLS record header: known content type, major
// version 3, minor version at most 4.
func isTLSRecord(data []byte) bool {
	if len(data) < tlsRecordHeaderLen {
		return false
	}
	_, known := tlsContentTypes[data[0]]
	return known && data[1] == 3 && data[2] <= 4
}

func decodeTLS(data []byte) models.ApplicationLayer {
	c := wire.NewCursor(data)
	version, _ := c.Uint16BE(1)
	length, _ := c.Uint16BE(3)
	rec := &models.TLS{
		ContentType:  tlsContentTypes[data[0]],
		Version:      tls.VersionName(version),
		RecordLength: length,
	}
	hs, ok := c.Uint8(tlsRecordHeaderLen)
	if data[0] != tlsRecordHandshake || !ok {
		return rec
	}
	rec.HandshakeType = tlsHandshakeTypes[hs]
	if rec.HandshakeType == "" {
		// Encrypted handshake messages look like garbage types.
		rec.HandshakeType = "Encrypted Handshake Message"
	}

	hello, ok := readClientHello(data)
	if !ok {
		return rec
	}
	rec.ServerName = hello.serverName
	rec.ClientVersion = tls.VersionName(hello.version)
	for _, cs := range hello.ciphers {
		if !isGREASE(cs) {
			rec.CipherSuites = append(rec.CipherSuites, tls.CipherSuiteName(cs))
		}
	}
	for _, ext := range hello.extensions {
		if !isGREASE(ext) {
			rec.Extensions = append(rec.Extensions, ext)
		}
	}
	rec.JA3, rec.JA3Hash = hello.ja3()
	return rec
}

// ==================== ClientHello ====================

type clientHello struct {
	version      uint16
	serverName   string
	ciphers      []uint16
	extensions   []uint16
	groups       []uint16
	pointFormats []uint8
}

// readClientHello parses the ClientHello opening a handshake record.
// A hello cut short by the segment keeps the fields read so far.
func readClientHello(record []byte) (*clientHello, bool) {
	c := wire.NewCursor(record)
	if hs, ok := c.Uint8(tlsRecordHeaderLen); !ok || hs != tlsClientHello {
		return nil, false
	}
	c.Seek(tlsRecordHeaderLen + tlsHandshakeHeaderLen)

	h := &clientHello{}
	var ok bool
	if h.version, ok = c.ReadUint16BE(); !ok {
		return nil, false
	}
	if !c.Skip(tlsRandomLen) {
		return h, true
	}
	sid, ok := c.ReadUint8()
	if !ok || !c.Skip(int(sid)) {
		return h, true
	}
	n, ok := c.ReadUint16BE()
	if !ok {
		return h, true
	}
	h.ciphers = uint16List(upTo(c, int(n)))
	comp, ok := c.ReadUint8()
	if !ok || !c.Skip(int(comp)) {
		return h, true
	}
	if n, ok = c.ReadUint16BE(); ok {
		h.readExtensions(upTo(c, int(n)))
	}
	return h, true
}

func (h *clientHello) readExtensions(b []byte) {
	c := wire.NewCursor(b)
	for c.Remaining() >= 4 {
		typ, _ := c.ReadUint16BE()
		n, _ := c.ReadUint16BE()
		body, ok := c.ReadBytes(int(n))
		if !ok {
			return
		}
		h.extensions = append(h.extensions, typ)

		bc := wire.NewCursor(body)
		switch typ {
		case extServerName:
			// list length, name type, then one length-prefixed host name
			if l, ok := bc.Uint16BE(3); ok {
				if name, ok := bc.Slice(5, int(l)); ok {
					h.serverName = string(name)
				}
			}
		case extSupportedGroups:
			if l, ok := bc.ReadUint16BE(); ok {
				h.groups = uint16List(upTo(bc, int(l)))
			}
		case extPointFormats:
			if l, ok := bc.ReadUint8(); ok {
				h.pointFormats = append([]uint8(nil), upTo(bc, int(l))...)
			}
		}
	}
}

// ja3 returns "version,ciphers,extensions,groups,formats" with GREASE
// values removed, and its MD5 in hex.
func (h *clientHello) ja3() (string, string) {
	s := strings.Join([]string{
		strconv.Itoa(int(h.version)),
		joinValues(h.ciphers, true),
		joinValues(h.extensions, true),
		joinValues(h.groups, true),
		joinValues(h.pointFormats, false),
	}, ",")
	sum := md5.Sum([]byte(s))
	return s, hex.EncodeToString(sum[:])
}

func joinValues[T uint8 | uint16](vals []T, skipGREASE bool) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		if skipGREASE && isGREASE(uint16(v)) {
			continue
		}
		parts = append(parts, strconv.Itoa(int(v)))
	}
	return strings.Join(parts, "-")
}

// isGREASE matches the reserved 0x?a?a values of RFC 8701.
func isGREASE(v uint16) bool {
	return v&0x0f0f == 0x0a0a && v>>8 == v&0xff
}

// upTo reads at most n bytes, fewer when the buffer ends first.
func upTo(c *wire.Cursor, n int) []byte {
	n = min(n, c.Remaining())
	b, _ := c.ReadBytes(n)
	return b
}

func uint16List(b []byte) []uint16 {
	out := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		out = append(out, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return out
}
