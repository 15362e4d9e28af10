package dispatcher_test

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa4h1h/tftpd/internal/dispatcher"
	"github.com/wa4h1h/tftpd/internal/logging"
	"github.com/wa4h1h/tftpd/internal/protocol"
	"github.com/wa4h1h/tftpd/internal/storage"
)

// testRoot normalizes t.TempDir() through EvalSymlinks so it matches the
// canonical path the dispatcher's path-safety pass will compute (on macOS
// /tmp is itself a symlink).
func testRoot(t *testing.T) string {
	t.Helper()

	resolved, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	return resolved
}

func newTestDispatcher(t *testing.T, root string, secure bool) (*dispatcher.Dispatcher, *storage.Memory) {
	t.Helper()

	st := storage.NewMemory()

	snap := func() dispatcher.Snapshot {
		return dispatcher.Snapshot{
			RootDir:         root,
			SecureMode:      secure,
			MaxTransferSize: 10 * 1024 * 1024,
			PerBlockTimeout: 200 * time.Millisecond,
			Storage:         st,
		}
	}

	d, err := dispatcher.New(logging.Noop(), "127.0.0.1", 0, 2, snap)
	require.NoError(t, err)

	go d.Serve()
	t.Cleanup(d.Stop)

	return d, st
}

func sendAndRead(t *testing.T, client net.PacketConn, to net.Addr, raw []byte) protocol.Packet {
	t.Helper()

	_, err := client.WriteTo(raw, to)
	require.NoError(t, err)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, protocol.MaxPacketSize)
	n, _, err := client.ReadFrom(buf)
	require.NoError(t, err)

	pkt, err := protocol.Decode(buf[:n])
	require.NoError(t, err)

	return pkt
}

func TestDispatcherAcceptsReadRequestAndSpawnsSession(t *testing.T) {
	t.Parallel()

	root := testRoot(t)
	d, st := newTestDispatcher(t, root, true)
	st.Seed(root+"/greeting.txt", []byte("hello world"))

	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	req, err := (&protocol.Request{Direction: protocol.DirectionRead, Filename: "greeting.txt", Mode: protocol.ModeOctet}).Encode()
	require.NoError(t, err)

	pkt := sendAndRead(t, client, d.LocalAddr(), req)
	data, ok := pkt.(*protocol.Data)
	require.True(t, ok, "expected a DATA packet, got %T", pkt)
	assert.Equal(t, uint16(1), data.Block)
	assert.Equal(t, "hello world", string(data.Payload))
}

func TestDispatcherRejectsNonRequestInitialPacket(t *testing.T) {
	t.Parallel()

	root := testRoot(t)
	d, _ := newTestDispatcher(t, root, true)

	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	raw, err := (&protocol.Ack{Block: 0}).Encode()
	require.NoError(t, err)

	pkt := sendAndRead(t, client, d.LocalAddr(), raw)
	errPkt, ok := pkt.(*protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.ErrIllegalOperation, errPkt.Code)
}

func TestDispatcherRejectsPathTraversalInSecureMode(t *testing.T) {
	t.Parallel()

	root := testRoot(t)
	d, _ := newTestDispatcher(t, root, true)

	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	req, err := (&protocol.Request{Direction: protocol.DirectionRead, Filename: "../../etc/passwd", Mode: protocol.ModeOctet}).Encode()
	require.NoError(t, err)

	pkt := sendAndRead(t, client, d.LocalAddr(), req)
	errPkt, ok := pkt.(*protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.ErrAccessViolation, errPkt.Code)
}

func TestDispatcherStopIsIdempotentAndDrainsInFlightSessions(t *testing.T) {
	t.Parallel()

	root := testRoot(t)
	d, st := newTestDispatcher(t, root, true)
	st.Seed(root+"/f.bin", []byte("x"))

	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	req, err := (&protocol.Request{Direction: protocol.DirectionRead, Filename: "f.bin", Mode: protocol.ModeOctet}).Encode()
	require.NoError(t, err)

	pkt := sendAndRead(t, client, d.LocalAddr(), req)
	_, ok := pkt.(*protocol.Data)
	require.True(t, ok)

	d.Stop()
}
