package engine

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcapscope/internal/capture"
	"pcapscope/internal/export"
	"pcapscope/internal/models"
)

type recordingClient struct {
	mu   sync.Mutex
	msgs []models.WSMessage
}

func (c *recordingClient) SendMessage(msg models.WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingClient) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.Type
	}
	return out
}

type recordingSink struct {
	names  []string
	counts []int
	err    error
	closed bool
}

func (s *recordingSink) Publish(name string, res *models.ParseResult) error {
	s.names = append(s.names, name)
	s.counts = append(s.counts, len(res.Packets))
	return s.err
}

func (s *recordingSink) Close() { s.closed = true }

func TestQueriesBeforeLoad(t *testing.T) {
	e := New(Config{})
	_, err := e.Result()
	assert.ErrorIs(t, err, ErrNoCapture)
	_, err = e.PacketDetail(1)
	assert.ErrorIs(t, err, ErrNoCapture)
	_, err = e.StreamData(1)
	assert.ErrorIs(t, err, ErrNoCapture)
	_, err = e.Summary()
	assert.ErrorIs(t, err, ErrNoCapture)
}

func TestLoadPcapBytesBroadcastsAndPublishes(t *testing.T) {
	good := &recordingSink{}
	failing := &recordingSink{err: errors.New("unreachable")}
	e := New(Config{Parse: Options{Timing: true}, PacketBatch: 2, Sinks: []export.Sink{good, failing}})
	client := &recordingClient{}
	e.RegisterClient(client)

	summary, err := e.LoadPcapBytes("http.pcap", httpConversation(t))
	require.NoError(t, err)
	assert.Equal(t, "http.pcap", summary.Name)
	assert.Equal(t, "pcap", summary.Format)
	assert.Equal(t, 4, summary.Stats.PacketCount)
	assert.Equal(t, 1, summary.StreamCount)
	assert.NotNil(t, summary.Timing)

	assert.Equal(t, []string{
		models.MsgParseStarted,
		models.MsgPacket, models.MsgPacket, models.MsgPacket, models.MsgPacket,
		models.MsgParseComplete,
	}, client.types())

	var pkt map[string]interface{}
	require.NoError(t, json.Unmarshal(client.msgs[3].Payload, &pkt))
	assert.Equal(t, float64(3), pkt["id"])
	assert.Equal(t, "HTTP", pkt["protocol"])

	assert.Equal(t, []string{"http.pcap"}, good.names)
	assert.Equal(t, []int{4}, good.counts)
	assert.Equal(t, []string{"http.pcap"}, failing.names, "a failing sink does not stop the load")

	got, err := e.Summary()
	require.NoError(t, err)
	assert.Same(t, summary, got)

	e.UnregisterClient(client)
	e.Close()
	assert.True(t, good.closed)
	assert.True(t, failing.closed)
}

func TestLoadPcapBytesKeepsPreviousResultOnError(t *testing.T) {
	e := New(Config{})
	client := &recordingClient{}
	e.RegisterClient(client)

	_, err := e.LoadPcapBytes("http.pcap", httpConversation(t))
	require.NoError(t, err)

	_, err = e.LoadPcapBytes("junk.bin", []byte("junk junk junk"))
	assert.ErrorIs(t, err, capture.ErrUnrecognizedFormat)

	types := client.types()
	assert.Equal(t, models.MsgError, types[len(types)-1])

	res, err := e.Result()
	require.NoError(t, err)
	assert.Len(t, res.Packets, 4)
}

func TestPacketDetailAndStreamData(t *testing.T) {
	e := New(Config{})
	_, err := e.LoadPcapBytes("http.pcap", httpConversation(t))
	require.NoError(t, err)

	d, err := e.PacketDetail(3)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Packet.ID)
	require.NotEmpty(t, d.Details)
	assert.Equal(t, "Ethernet", d.Details[0].Name)
	assert.Equal(t, "HTTP", d.Details[len(d.Details)-1].Name)
	assert.Contains(t, d.HexDump, "0000  02 00 00 00 00 02")
	assert.Len(t, d.RawHex, 2*len(d.Packet.Data))

	_, err = e.PacketDetail(0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.PacketDetail(5)
	assert.ErrorIs(t, err, ErrNotFound)

	sd, err := e.StreamData(1)
	require.NoError(t, err)
	client, err := base64.StdEncoding.DecodeString(sd.ClientData)
	require.NoError(t, err)
	assert.Equal(t, httpRequest, string(client))
	server, err := base64.StdEncoding.DecodeString(sd.ServerData)
	require.NoError(t, err)
	assert.Equal(t, httpResponse, string(server))
	require.NotNil(t, sd.HTTPInfo)
	assert.Equal(t, 200, sd.HTTPInfo.StatusCode)

	_, err = e.StreamData(7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteStreamPCAP(t *testing.T) {
	e := New(Config{})
	_, err := e.LoadPcapBytes("http.pcap", httpConversation(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, e.WriteStreamPCAP(&buf, 1))

	res, err := Parse(buf.Bytes(), Options{})
	require.NoError(t, err)
	assert.Len(t, res.Packets, 4)
	assert.Len(t, res.Streams, 1)

	assert.ErrorIs(t, e.WriteStreamPCAP(&buf, 9), ErrNotFound)
}

func TestLoadPcapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.pcap")
	require.NoError(t, os.WriteFile(path, httpConversation(t), 0o644))

	e := New(Config{})
	summary, err := e.LoadPcapFile(path)
	require.NoError(t, err)
	assert.Equal(t, "capture.pcap", summary.Name)

	_, err = e.LoadPcapFile(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)
}
