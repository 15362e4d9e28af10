// Package endpoint wraps a UDP kernel socket as the "datagram endpoint"
// capability the session engine and dispatcher build on: bind, send-to,
// receive-from-with-timeout, and a deterministic, idempotent close.
//
// Endpoints are deliberately unconnected net.PacketConns rather than
// net.Conns dialed to a peer: a session's ephemeral socket must still be
// able to *observe* datagrams arriving from an unexpected transfer ID so it
// can answer them with ErrUnknownTransferId, which a connected socket's
// kernel-side source filtering would silently drop.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// ErrTimedOut is returned by ReceiveFrom when no datagram arrives within
// the requested deadline.
var ErrTimedOut = errors.New("tftp: endpoint: receive timed out")

// ErrClosed is returned by SendTo/ReceiveFrom after Close.
var ErrClosed = net.ErrClosed

// Endpoint owns one kernel UDP socket exclusively. There is no shared
// send/receive mutex: each session owns its endpoint outright, and the
// dispatcher's well-known endpoint is read by exactly one goroutine (the
// dispatcher loop).
type Endpoint struct {
	conn    net.PacketConn
	closeMu sync.Mutex
	closed  bool
}

// Bind opens a UDP socket at localAddr (e.g. ":69" or ":0" for an ephemeral
// port). When reuseAddr is set, SO_REUSEPORT is requested before binding on
// platforms that support it; elsewhere the option is a documented no-op.
func Bind(localAddr string, reuseAddr bool) (*Endpoint, error) {
	lc := net.ListenConfig{}
	if reuseAddr {
		lc.Control = reusePortControl
	}

	conn, err := lc.ListenPacket(context.Background(), "udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("tftp: endpoint: bind %s: %w", localAddr, err)
	}

	return &Endpoint{conn: conn}, nil
}

// LocalAddr returns the endpoint's bound local address.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// SendTo writes data to remote. A short write is treated as a failure, not
// silently ignored, since UDP datagrams are all-or-nothing at the syscall
// boundary.
func (e *Endpoint) SendTo(data []byte, remote net.Addr) (int, error) {
	n, err := e.conn.WriteTo(data, remote)
	if err != nil {
		return n, fmt.Errorf("tftp: endpoint: send to %s: %w", remote, err)
	}

	if n != len(data) {
		return n, fmt.Errorf("tftp: endpoint: short write to %s: wrote %d of %d bytes", remote, n, len(data))
	}

	return n, nil
}

// ReceiveFrom blocks for up to timeout waiting for one datagram. On timeout
// it returns ErrTimedOut. buf must be large enough for the largest legal
// packet; a datagram larger than len(buf) is truncated by the kernel like
// any other PacketConn read.
func (e *Endpoint) ReceiveFrom(buf []byte, timeout time.Duration) (int, net.Addr, error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, nil, fmt.Errorf("tftp: endpoint: set read deadline: %w", err)
	}

	n, addr, err := e.conn.ReadFrom(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil, ErrTimedOut
		}

		if errors.Is(err, net.ErrClosed) {
			return 0, nil, ErrClosed
		}

		return 0, nil, fmt.Errorf("tftp: endpoint: receive: %w", err)
	}

	return n, addr, nil
}

// Close releases the underlying socket. Idempotent.
func (e *Endpoint) Close() error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()

	if e.closed {
		return nil
	}

	e.closed = true

	if err := e.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("tftp: endpoint: close: %w", err)
	}

	return nil
}
