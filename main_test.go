package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcapscope/internal/engine"
)

func TestDumpFile(t *testing.T) {
	buf := []byte{
		0xd4, 0xc3, 0xb2, 0xa1, 0x02, 0x00, 0x04, 0x00,
		0, 0, 0, 0, 0, 0, 0, 0,
		0xff, 0xff, 0, 0, 0x01, 0, 0, 0,
		// one record: ts 0, incl_len 14, orig_len 14
		0, 0, 0, 0, 0, 0, 0, 0, 14, 0, 0, 0, 14, 0, 0, 0,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02, 0, 0, 0, 0, 1, 0x08, 0x06,
	}
	path := filepath.Join(t.TempDir(), "arp.pcap")
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	var out bytes.Buffer
	require.NoError(t, dumpFile(&out, path, engine.Options{}))
	assert.Contains(t, out.String(), "ARP")
	assert.Contains(t, out.String(), "pcap: 1 packets, 14 bytes")

	assert.Error(t, dumpFile(&out, filepath.Join(t.TempDir(), "none.pcap"), engine.Options{}))
}
