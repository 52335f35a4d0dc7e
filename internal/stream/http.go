package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"pcapscope/internal/models"
	"pcapscope/internal/wire"
)

const bodyPreviewLen = 512

var (
	errNotHTTP       = errors.New("not HTTP")
	errUnparseable   = errors.New("could not parse HTTP")
	httpMethodStarts = []string{"GET ", "POST", "PUT ", "DELE", "HEAD", "PATC", "OPTI", "CONN", "TRAC"}
)

// ParseHTTP extracts the first request from the client bytes of a stream
// and the first response from the server bytes.
func ParseHTTP(clientData, serverData []byte) (*models.HTTPTransaction, error) {
	if !looksLikeRequest(clientData) {
		return nil, errNotHTTP
	}

	tx := &models.HTTPTransaction{
		ReqHeaders:  make(map[string]string),
		RespHeaders: make(map[string]string),
	}
	parseRequest(tx, clientData)
	if len(serverData) >= 12 {
		parseResponse(tx, serverData)
	}

	if tx.Method == "" && tx.StatusCode == 0 {
		return nil, errUnparseable
	}
	return tx, nil
}

func looksLikeRequest(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	for _, m := range httpMethodStarts {
		if string(data[:4]) == m {
			return true
		}
	}
	return false
}

func joinHeaders(dst map[string]string, h http.Header) {
	for k, v := range h {
		dst[k] = strings.Join(v, ", ")
	}
}

func parseRequest(tx *models.HTTPTransaction, data []byte) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		return
	}
	defer req.Body.Close()
	tx.Method = req.Method
	tx.URL = req.URL.String()
	joinHeaders(tx.ReqHeaders, req.Header)
	tx.ContentType = req.Header.Get("Content-Type")
}

func parseResponse(tx *models.HTTPTransaction, data []byte) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	tx.StatusCode = resp.StatusCode
	tx.StatusText = resp.Status
	joinHeaders(tx.RespHeaders, resp.Header)
	if tx.ContentType == "" {
		tx.ContentType = resp.Header.Get("Content-Type")
	}

	buf := make([]byte, bodyPreviewLen)
	if n, _ := io.ReadAtLeast(resp.Body, buf, 1); n > 0 {
		tx.BodyPreview = wire.Printable(buf[:n])
	}
}
