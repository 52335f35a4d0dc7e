package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"pcapscope/internal/models"
)

var (
	httpRequestLine  = regexp.MustCompile(`^(GET|POST|PUT|DELETE|HEAD|OPTIONS|PATCH|CONNECT|TRACE) (\S+) (HTTP/\d\.\d)`)
	httpResponseLine = regexp.MustCompile(`^(HTTP/\d\.\d) (\d{3})(?: ([^\r\n]*))?`)
)

// application picks the application-layer record for a transport payload.
// Content signatures win over ports: HTTP is only ever recognized by its
// request or status line.
func (d *Dissection) application(transport string, srcPort, dstPort uint16, payload []byte) {
	if len(payload) == 0 {
		return
	}
	start := time.Now()
	defer func() { d.AppTime += time.Since(start) }()

	if transport == "TCP" {
		if h, ok := parseHTTPMessage(payload); ok {
			d.Layers.Application = h
			return
		}
	}

	ctx := appContext{Transport: transport, SrcPort: srcPort, DstPort: dstPort}
	for _, dis := range catalogue {
		if dis.Transport != "" && dis.Transport != transport {
			continue
		}
		if len(dis.Ports) > 0 && !ctx.anyPort(dis.Ports...) {
			continue
		}
		if dis.Match(payload) {
			if rec := dis.Decode(payload); rec != nil {
				d.Layers.Application = rec
				return
			}
		}
	}

	for _, pd := range portDecoders {
		if pd.Transport != transport || !ctx.anyPort(pd.Ports...) {
			continue
		}
		if rec := pd.Decode(payload, transport); rec != nil {
			d.Layers.Application = rec
			return
		}
	}

	if label, ok := portLabel(srcPort, dstPort); ok {
		d.Layers.Application = &models.AppData{
			Name:   label,
			Fields: []models.LayerField{{Name: "Payload Length", Value: strconv.Itoa(len(payload))}},
		}
	}
}

type appContext struct {
	Transport string
	SrcPort   uint16
	DstPort   uint16
}

func (c appContext) anyPort(ports ...uint16) bool {
	for _, p := range ports {
		if c.SrcPort == p || c.DstPort == p {
			return true
		}
	}
	return false
}

// parseHTTPMessage recognizes an HTTP/1.x request or response at the start
// of a segment.
func parseHTTPMessage(payload []byte) (*models.HTTP, bool) {
	text := string(payload)
	info := models.HTTPInfo{Headers: map[string]string{}}

	if m := httpRequestLine.FindStringSubmatch(text); m != nil {
		info.IsRequest = true
		info.Method, info.Path, info.Version = m[1], m[2], m[3]
	} else if m := httpResponseLine.FindStringSubmatch(text); m != nil {
		info.Version = m[1]
		info.StatusCode, _ = strconv.Atoi(m[2])
		info.StatusText = strings.TrimSpace(m[3])
	} else {
		return nil, false
	}

	head, body := text, ""
	if i := strings.Index(text, "\r\n\r\n"); i >= 0 {
		head, body = text[:i], text[i+4:]
	} else if i := strings.Index(text, "\n\n"); i >= 0 {
		head, body = text[:i], text[i+2:]
	}
	lines := strings.Split(strings.ReplaceAll(head, "\r\n", "\n"), "\n")
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if prev, dup := info.Headers[name]; dup {
			value = prev + ", " + value
		}
		info.Headers[name] = value
	}
	info.Body = body
	return &models.HTTP{Info: info}, true
}

// portLabels names well-known services that have no decoder here. HTTP is
// deliberately absent: it is only labeled from content.
var portLabels = map[uint16]string{
	20:    "FTP-DATA",
	21:    "FTP",
	23:    "Telnet",
	25:    "SMTP",
	110:   "POP3",
	119:   "NNTP",
	137:   "NetBIOS-NS",
	139:   "NetBIOS-SSN",
	143:   "IMAP",
	161:   "SNMP",
	162:   "SNMP-Trap",
	389:   "LDAP",
	445:   "SMB",
	465:   "SMTPS",
	514:   "Syslog",
	587:   "SMTP",
	636:   "LDAPS",
	993:   "IMAPS",
	995:   "POP3S",
	1900:  "SSDP",
	3306:  "MySQL",
	5432:  "PostgreSQL",
	5672:  "AMQP",
	6379:  "Redis",
	9092:  "Kafka",
	11211: "Memcached",
	27017: "MongoDB",
}

func portLabel(src, dst uint16) (string, bool) {
	lo, hi := src, dst
	if hi < lo {
		lo, hi = hi, lo
	}
	if l, ok := portLabels[lo]; ok {
		return l, true
	}
	l, ok := portLabels[hi]
	return l, ok
}
