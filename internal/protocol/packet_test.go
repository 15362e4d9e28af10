package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa4h1h/tftpd/internal/protocol"
)

func TestRequestRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []*protocol.Request{
		{Direction: protocol.DirectionRead, Filename: "small.txt", Mode: protocol.ModeOctet, Options: protocol.Options{}},
		{
			Direction: protocol.DirectionWrite, Filename: "odd.bin", Mode: protocol.ModeOctet,
			Options: protocol.Options{protocol.OptTsize: "1026"},
		},
		{
			Direction: protocol.DirectionRead, Filename: "opts.bin", Mode: protocol.ModeNetAscii,
			Options: protocol.Options{protocol.OptBlksize: "1024", protocol.OptTimeout: "3"},
		},
	}

	for _, want := range cases {
		raw, err := want.Encode()
		require.NoError(t, err)

		got, err := protocol.Decode(raw)
		require.NoError(t, err)

		gotReq, ok := got.(*protocol.Request)
		require.True(t, ok)

		assert.Equal(t, want.Direction, gotReq.Direction)
		assert.Equal(t, want.Filename, gotReq.Filename)
		assert.Equal(t, want.Mode, gotReq.Mode)
		assert.Equal(t, want.Options, gotReq.Options)
	}
}

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 511, 512} {
		d := &protocol.Data{Block: 7, Payload: make([]byte, n)}
		for i := range d.Payload {
			d.Payload[i] = byte(i)
		}

		raw, err := d.Encode()
		require.NoError(t, err)

		got, err := protocol.Decode(raw)
		require.NoError(t, err)

		gotData, ok := got.(*protocol.Data)
		require.True(t, ok)
		assert.Equal(t, d.Block, gotData.Block)
		assert.Equal(t, d.Payload, gotData.Payload)
	}
}

func TestDataEncodeRejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	d := &protocol.Data{Block: 1, Payload: make([]byte, 513)}
	_, err := d.Encode()
	assert.Error(t, err)
}

func TestAckRoundTrip(t *testing.T) {
	t.Parallel()

	a := &protocol.Ack{Block: 42}

	raw, err := a.Encode()
	require.NoError(t, err)
	assert.Len(t, raw, 4)

	got, err := protocol.Decode(raw)
	require.NoError(t, err)

	gotAck, ok := got.(*protocol.Ack)
	require.True(t, ok)
	assert.Equal(t, a.Block, gotAck.Block)
}

func TestErrorRoundTrip(t *testing.T) {
	t.Parallel()

	for _, msg := range []string{"", "file not found"} {
		e := &protocol.Error{Code: protocol.ErrFileNotFound, Message: msg}

		raw, err := e.Encode()
		require.NoError(t, err)

		got, err := protocol.Decode(raw)
		require.NoError(t, err)

		gotErr, ok := got.(*protocol.Error)
		require.True(t, ok)
		assert.Equal(t, e.Code, gotErr.Code)
		assert.Equal(t, e.Message, gotErr.Message)
	}
}

func TestOAckRoundTrip(t *testing.T) {
	t.Parallel()

	o := &protocol.OAck{Options: protocol.Options{protocol.OptBlksize: "1024", protocol.OptTsize: "0"}}

	raw, err := o.Encode()
	require.NoError(t, err)

	got, err := protocol.Decode(raw)
	require.NoError(t, err)

	gotOAck, ok := got.(*protocol.OAck)
	require.True(t, ok)
	assert.Equal(t, o.Options, gotOAck.Options)
}

func TestDecodeRejectsBadLengths(t *testing.T) {
	t.Parallel()

	_, err := protocol.Decode([]byte{0, 4})
	assert.Error(t, err, "shorter than MinPacketSize")

	oversized := make([]byte, protocol.MaxPacketSize+1)
	_, err = protocol.Decode(oversized)
	assert.Error(t, err, "longer than MaxPacketSize")
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	t.Parallel()

	_, err := protocol.Decode([]byte{0, 9, 0, 0})
	assert.Error(t, err)
}

func TestDecodeRejectsAckWithWrongLength(t *testing.T) {
	t.Parallel()

	_, err := protocol.Decode([]byte{0, 4, 0, 1, 0})
	assert.Error(t, err)
}

func TestDecodeRejectsOversizedDataPayload(t *testing.T) {
	t.Parallel()

	raw := make([]byte, protocol.MaxPacketSize+1)
	raw = raw[:4+513]
	raw[1] = 3 // DATA opcode
	_, err := protocol.Decode(raw)
	assert.Error(t, err)
}

func TestDecodeRejectsUnterminatedFilename(t *testing.T) {
	t.Parallel()

	raw := append([]byte{0, 2}, make([]byte, 300)...)
	for i := range raw[2:] {
		raw[2+i] = 'a'
	}

	_, err := protocol.Decode(raw)
	assert.Error(t, err)
}

func TestDecodeRejectsTooManyOptions(t *testing.T) {
	t.Parallel()

	raw := []byte{0, 1}
	raw = append(raw, 'f', 0, 'o', 'c', 't', 'e', 't', 0)

	for i := 0; i <= protocol.MaxOptionsCount; i++ {
		raw = append(raw, 'o', byte('0'+i%10), 0, 'v', 0)
	}

	_, err := protocol.Decode(raw)
	assert.Error(t, err)
}

func TestDecodeRejectsMaxFilenameLenPlusOne(t *testing.T) {
	t.Parallel()

	name := make([]byte, protocol.MaxFilenameLen+1)
	for i := range name {
		name[i] = 'a'
	}

	raw := []byte{0, 1}
	raw = append(raw, name...)
	raw = append(raw, 0, 'o', 'c', 't', 'e', 't', 0)

	_, err := protocol.Decode(raw)
	assert.Error(t, err)
}

func TestDecodeAcceptsMaxFilenameLen(t *testing.T) {
	t.Parallel()

	name := make([]byte, protocol.MaxFilenameLen)
	for i := range name {
		name[i] = 'a'
	}

	raw := []byte{0, 1}
	raw = append(raw, name...)
	raw = append(raw, 0, 'o', 'c', 't', 'e', 't', 0)

	got, err := protocol.Decode(raw)
	require.NoError(t, err)

	req, ok := got.(*protocol.Request)
	require.True(t, ok)
	assert.Len(t, req.Filename, protocol.MaxFilenameLen)
}

// TestDecodeNeverPanics is a lightweight fuzz-style property test: for any
// byte sequence in the legal length range, Decode either returns an error
// or a value that re-encodes and re-decodes to the same packet.
func TestDecodeNeverPanics(t *testing.T) {
	t.Parallel()

	seed := uint64(1)
	nextByte := func() byte {
		seed = seed*6364136223846793005 + 1442695040888963407
		return byte(seed >> 33)
	}

	for trial := 0; trial < 2000; trial++ {
		n := protocol.MinPacketSize + int(nextByte())%(protocol.MaxPacketSize-protocol.MinPacketSize+1)
		raw := make([]byte, n)

		for i := range raw {
			raw[i] = nextByte()
		}

		pkt, err := protocol.Decode(raw)
		if err != nil {
			continue
		}

		require.NotNil(t, pkt)

		reEncoded, err := pkt.Encode()
		require.NoError(t, err)

		pkt2, err := protocol.Decode(reEncoded)
		require.NoError(t, err)
		assert.Equal(t, pkt, pkt2)
	}
}
