package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatIPv4 renders four bytes in dotted-quad form. Short input yields "".
func FormatIPv4(b []byte) string {
	if len(b) < 4 {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

// FormatIPv6 renders sixteen bytes as lowercase hex groups, replacing the
// longest run of two or more zero groups with "::". IPv4-mapped addresses
// stay in hex form.
func FormatIPv6(b []byte) string {
	if len(b) < 16 {
		return ""
	}
	var groups [8]uint16
	allZero := true
	for i := range groups {
		groups[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
		if groups[i] != 0 {
			allZero = false
		}
	}
	if allZero {
		return "::"
	}
	loopback := groups[7] == 1
	for i := 0; i < 7 && loopback; i++ {
		loopback = groups[i] == 0
	}
	if loopback {
		return "::1"
	}

	bestStart, bestLen := -1, 0
	for i := 0; i < 8; {
		if groups[i] != 0 {
			i++
			continue
		}
		j := i
		for j < 8 && groups[j] == 0 {
			j++
		}
		if j-i > bestLen {
			bestStart, bestLen = i, j-i
		}
		i = j
	}
	if bestLen < 2 {
		bestStart = -1
	}

	var sb strings.Builder
	for i := 0; i < 8; i++ {
		if i == bestStart {
			sb.WriteString("::")
			i += bestLen - 1
			continue
		}
		if i > 0 && i != bestStart+bestLen {
			sb.WriteByte(':')
		}
		sb.WriteString(strconv.FormatUint(uint64(groups[i]), 16))
	}
	return sb.String()
}

// FormatMAC renders a hardware address as colon separated hex.
func FormatMAC(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, ":")
}

// Printable keeps printable ASCII plus CR and LF and drops every other byte.
func Printable(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if (c >= 0x20 && c < 0x7f) || c == '\r' || c == '\n' {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
