package ble

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC8CheckValue(t *testing.T) {
	assert.Equal(t, uint8(0xf4), CRC8([]byte("123456789")))
	assert.Equal(t, uint8(0), CRC8(nil))
}

func TestSumAndXOR(t *testing.T) {
	data := []byte{0xff, 0x02, 0x10}
	assert.Equal(t, uint8(0x11), Sum(data))
	assert.Equal(t, uint8(0xed), XOR(data))

	cs := Checksums(data)
	assert.Equal(t, Sum(data), cs.Sum)
	assert.Equal(t, XOR(data), cs.XOR)
	assert.Equal(t, CRC8(data), cs.CRC8)
}

// l2capStart is an L2CAP header declaring length bytes on channel cid,
// followed by body.
func l2capStart(length int, cid uint16, body []byte) []byte {
	out := []byte{byte(length), byte(length >> 8), byte(cid), byte(cid >> 8)}
	return append(out, body...)
}

func frag(id int, pb uint8, md bool, payload []byte) *Fragment {
	f := &Fragment{PacketID: id, Key: "k", PB: pb, MoreData: md, Payload: payload}
	f.attachHeader()
	return f
}

func TestCompletesWhenRunningReachesDeclared(t *testing.T) {
	r := NewReassembler()

	// 4-byte header + 20 declared bytes across three packets.
	first := l2capStart(20, 0x0004, bytes.Repeat([]byte{0xa1}, 6))
	assert.Nil(t, r.Add(frag(1, PBStart, true, first)))
	assert.Nil(t, r.Add(frag(2, PBContinue, true, bytes.Repeat([]byte{0xa2}, 7))))
	done := r.Add(frag(3, PBContinue, true, bytes.Repeat([]byte{0xa3}, 7)))

	require.NotNil(t, done)
	assert.Equal(t, []int{1, 2, 3}, done.Members)
	assert.Equal(t, uint16(0x0004), done.ChannelID)
	assert.Len(t, done.Payload, 24)
	assert.Equal(t, Checksums(done.Payload), done.Checksums)
	assert.Empty(t, r.Pending(), "completed run leaves the cache")
}

func TestShortOfDeclaredDoesNotComplete(t *testing.T) {
	r := NewReassembler()

	first := l2capStart(40, 0x0004, bytes.Repeat([]byte{1}, 6))
	assert.Nil(t, r.Add(frag(1, PBStart, true, first)))
	assert.Nil(t, r.Add(frag(2, PBContinue, true, bytes.Repeat([]byte{2}, 7))))
	assert.Nil(t, r.Add(frag(3, PBContinue, true, bytes.Repeat([]byte{3}, 7))))

	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, []int{1, 2, 3}, pending[0].Members)
}

func TestMoreDataClearCompletesContinuation(t *testing.T) {
	r := NewReassembler()

	assert.Nil(t, r.Add(frag(5, PBStart, true, []byte{0xde, 0xad})))
	done := r.Add(frag(6, PBContinue, false, []byte{0xbe, 0xef}))

	require.NotNil(t, done)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, done.Payload)
}

func TestInvalidSequenceNeverCompletes(t *testing.T) {
	r := NewReassembler()

	// Continuations with no start are buffered but cannot complete.
	assert.Nil(t, r.Add(frag(1, PBContinue, true, []byte{1})))
	assert.Nil(t, r.Add(frag(2, PBContinue, false, []byte{2})))

	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, []int{1, 2}, pending[0].Members)
}

func TestStartReplacesOpenRun(t *testing.T) {
	r := NewReassembler()

	assert.Nil(t, r.Add(frag(1, PBStart, true, l2capStart(50, 0x0004, []byte{1, 2}))))
	assert.Nil(t, r.Add(frag(2, PBStart, true, l2capStart(4, 0x0006, []byte{9}))))
	done := r.Add(frag(3, PBContinue, true, []byte{9, 9, 9}))

	require.NotNil(t, done)
	assert.Equal(t, []int{2, 3}, done.Members)
	assert.Equal(t, uint16(0x0006), done.ChannelID)

	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, []int{1}, pending[0].Members)
}

func TestSinglePacketMessageClosesQuietly(t *testing.T) {
	r := NewReassembler()
	assert.Nil(t, r.Add(frag(1, PBStart, false, l2capStart(3, 0x0004, []byte{0x0a, 0x01, 0x00}))))
	assert.Empty(t, r.Pending())
}

func TestStartWithMoreDataClearClosesBeforeDeclared(t *testing.T) {
	r := NewReassembler()

	// Declares 44 bytes but carries 10 and says nothing follows.
	first := l2capStart(44, 0x0004, bytes.Repeat([]byte{1}, 6))
	assert.Nil(t, r.Add(frag(1, PBStart, false, first)))
	assert.Empty(t, r.Pending())

	// A stray continuation opens a run with no start.
	assert.Nil(t, r.Add(frag(2, PBContinue, false, []byte{2, 2})))
	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, []int{2}, pending[0].Members)
}

func TestPayloadConcatenatedInPacketOrder(t *testing.T) {
	ctx := &context{key: "k", declared: 0}
	ctx.fragments = []*Fragment{
		{PacketID: 9, Payload: []byte{3}},
		{PacketID: 4, Payload: []byte{1}},
		{PacketID: 7, Payload: []byte{2}},
	}
	done := assemble(ctx)
	assert.Equal(t, []byte{1, 2, 3}, done.Payload)
	assert.Equal(t, []int{4, 7, 9}, done.Members)
}

func TestFromLinkLayerWithACLHeader(t *testing.T) {
	l2 := l2capStart(10, 0x0004, []byte{0x52, 0x03, 0x00})
	// handle 0x040, PB start, length of what follows.
	pdu := append([]byte{0x40, 0x20, byte(len(l2)), 0x00}, l2...)

	f, ok := FromLinkLayer(0x50654a8b, LLIDStart, true, pdu)
	require.True(t, ok)
	assert.Equal(t, "50654a8b:64", f.Key)
	assert.Equal(t, PBStart, f.PB)
	assert.True(t, f.HasHandle)
	assert.True(t, f.HasHeader)
	assert.Equal(t, 14, f.Declared)
	assert.Equal(t, l2, f.Payload)
}

func TestFromLinkLayerFallsBackToLLID(t *testing.T) {
	f, ok := FromLinkLayer(0x12345678, LLIDContinue, false, []byte{0x99, 0x98, 0x97})
	require.True(t, ok)
	assert.Equal(t, "aa:12345678", f.Key)
	assert.Equal(t, PBContinue, f.PB)
	assert.False(t, f.HasHeader)

	_, ok = FromLinkLayer(0x12345678, LLIDControl, false, []byte{0x0c, 0x08})
	assert.False(t, ok)
	_, ok = FromLinkLayer(0x12345678, LLIDStart, false, nil)
	assert.False(t, ok)
}

func TestFindL2CAPScansForChannel(t *testing.T) {
	data := append([]byte{0xff, 0xee}, l2capStart(0x20, 0x0006, []byte{1, 2, 3})...)
	h, off, ok := FindL2CAP(data)
	require.True(t, ok)
	assert.Equal(t, 2, off)
	assert.Equal(t, uint16(0x0006), h.ChannelID)
	assert.Equal(t, uint16(0x20), h.Length)

	_, _, ok = FindL2CAP([]byte{0x01, 0x00, 0x99, 0x99})
	assert.False(t, ok)
}

func TestFromHCINormalizesStartFlags(t *testing.T) {
	acl := l2capStart(7, 0x0004, []byte{0x0b, 0x00})
	f, ok := FromHCI(0x002a, 0, acl)
	require.True(t, ok)
	assert.Equal(t, "hci:42", f.Key)
	assert.Equal(t, PBStart, f.PB)
	assert.True(t, f.MoreData)
	assert.Equal(t, 11, f.Declared)

	f, ok = FromHCI(0x002a, 1, []byte{1, 2, 3, 4, 5})
	require.True(t, ok)
	assert.Equal(t, PBContinue, f.PB)
	assert.False(t, f.HasHeader)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "ATT", ChannelName(4))
	assert.Equal(t, "SMP", ChannelName(6))
	assert.Equal(t, "Dynamic", ChannelName(0x41))
	assert.Equal(t, "0x0099", ChannelName(0x99))
}
