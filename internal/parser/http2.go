package parser

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"pcapscope/internal/models"
)

const (
	maxHTTP2Frames     = 16
	hpackTableSize     = 4096
	maxHTTP2HeaderList = 64 << 10
)

func isHTTP2Preface(data []byte) bool {
	return bytes.HasPrefix(data, []byte(http2.ClientPreface))
}

// decodeHTTP2 lists the frames that follow a client connection preface.
// Header blocks are decoded with a fresh HPACK table, which is exact for
// the first request on a connection.
func decodeHTTP2(data []byte) models.ApplicationLayer {
	rec := &models.AppData{
		Name:   "HTTP2",
		Fields: []models.LayerField{field("Connection Preface", "PRI * HTTP/2.0")},
	}

	fr := http2.NewFramer(io.Discard, bytes.NewReader(data[len(http2.ClientPreface):]))
	fr.ReadMetaHeaders = hpack.NewDecoder(hpackTableSize, nil)
	fr.MaxHeaderListSize = maxHTTP2HeaderList

	for i := 0; i < maxHTTP2Frames; i++ {
		f, err := fr.ReadFrame()
		if err != nil {
			break
		}
		h := f.Header()
		children := []models.LayerField{
			field("Length", fmt.Sprintf("%d", h.Length)),
			field("Flags", fmt.Sprintf("0x%02x", uint8(h.Flags))),
		}

		switch f := f.(type) {
		case *http2.SettingsFrame:
			_ = f.ForeachSetting(func(s http2.Setting) error {
				children = append(children, field(s.ID.String(), fmt.Sprintf("%d", s.Val)))
				return nil
			})
		case *http2.MetaHeadersFrame:
			for _, hf := range f.Fields {
				children = append(children, field(hf.Name, hf.Value))
			}
		case *http2.WindowUpdateFrame:
			children = append(children, field("Increment", fmt.Sprintf("%d", f.Increment)))
		case *http2.DataFrame:
			children = append(children, field("Data Length", fmt.Sprintf("%d", len(f.Data()))))
		case *http2.GoAwayFrame:
			children = append(children, field("Error Code", f.ErrCode.String()))
		case *http2.RSTStreamFrame:
			children = append(children, field("Error Code", f.ErrCode.String()))
		}

		rec.Fields = append(rec.Fields, models.LayerField{
			Name:     h.Type.String(),
			Value:    fmt.Sprintf("stream %d", h.StreamID),
			Children: children,
		})
	}
	return rec
}
