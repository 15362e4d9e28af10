// Package client is a minimal TFTP client: an external collaborator of the
// engine, not part of the core the rest of this module implements, present
// so the engine can be exercised end-to-end without a third-party client.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/wa4h1h/tftpd/internal/endpoint"
	"github.com/wa4h1h/tftpd/internal/protocol"
)

const defaultTimeout = 5 * time.Second

// Connector is the minimal surface an embedder needs to fetch or push one
// file from/to a TFTP server.
type Connector interface {
	Connect(addr string) error
	Get(ctx context.Context, filename string) ([]byte, error)
	Put(ctx context.Context, filename string, data []byte) error
	SetTimeout(timeout time.Duration)
	SetTrace(enabled bool)
	Close() error
}

// Client is a single-file, stop-and-wait TFTP client over octet mode.
type Client struct {
	logger  *zap.SugaredLogger
	ep      *endpoint.Endpoint
	server  net.Addr
	timeout time.Duration
	trace   bool
}

// NewClient constructs a Client that has not yet connected to a server.
func NewClient(logger *zap.SugaredLogger) *Client {
	return &Client{logger: logger, timeout: defaultTimeout}
}

// SetTrace toggles verbose per-packet logging at info level, for
// interactive debugging from the CLI's `trace` command.
func (c *Client) SetTrace(enabled bool) {
	c.trace = enabled
}

func (c *Client) tracef(format string, args ...any) {
	if c.trace {
		c.logger.Infof(format, args...)
	}
}

// SetTimeout overrides how long Get and Put wait for each reply. The client
// does not retransmit: a wait that times out ends the transfer with an
// error.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Connect resolves addr (host:port) and binds a local ephemeral endpoint.
// TFTP has no handshake; Connect only prepares the socket.
func (c *Client) Connect(addr string) error {
	resolved, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("tftp: client: resolve %s: %w", addr, err)
	}

	ep, err := endpoint.Bind(":0", false)
	if err != nil {
		return fmt.Errorf("tftp: client: %w", err)
	}

	c.ep = ep
	c.server = resolved

	return nil
}

// Close releases the client's local endpoint.
func (c *Client) Close() error {
	if c.ep == nil {
		return nil
	}

	return c.ep.Close()
}

// Get downloads filename and returns its full contents.
func (c *Client) Get(ctx context.Context, filename string) ([]byte, error) {
	if c.ep == nil {
		return nil, errors.New("tftp: client: not connected")
	}

	req := &protocol.Request{Direction: protocol.DirectionRead, Filename: filename, Mode: protocol.ModeOctet}
	raw, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("tftp: client: encode request: %w", err)
	}

	c.tracef("-> RRQ %s", filename)

	if _, err := c.ep.SendTo(raw, c.server); err != nil {
		return nil, fmt.Errorf("tftp: client: send request: %w", err)
	}

	var out []byte

	expected := uint16(1)
	from := c.server

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		buf := endpoint.GetBuffer()

		n, peer, err := c.ep.ReceiveFrom(buf, c.timeout)
		if err != nil {
			endpoint.PutBuffer(buf)

			return nil, fmt.Errorf("tftp: client: receive: %w", err)
		}

		from = peer

		pkt, err := protocol.Decode(buf[:n])
		endpoint.PutBuffer(buf)

		if err != nil {
			return nil, fmt.Errorf("tftp: client: decode: %w", err)
		}

		switch p := pkt.(type) {
		case *protocol.Data:
			if p.Block != expected {
				continue
			}

			c.tracef("<- DATA block=%d len=%d", p.Block, len(p.Payload))

			out = append(out, p.Payload...)

			ack, err := (&protocol.Ack{Block: p.Block}).Encode()
			if err != nil {
				return nil, fmt.Errorf("tftp: client: encode ack: %w", err)
			}

			if _, err := c.ep.SendTo(ack, from); err != nil {
				return nil, fmt.Errorf("tftp: client: send ack: %w", err)
			}

			if len(p.Payload) < protocol.MaxDataSize {
				return out, nil
			}

			expected++
		case *protocol.Error:
			return nil, fmt.Errorf("tftp: client: server error %s: %s", p.Code, p.Message)
		default:
			return nil, fmt.Errorf("tftp: client: unexpected packet type %T", p)
		}
	}
}

// Put uploads data as filename.
func (c *Client) Put(ctx context.Context, filename string, data []byte) error {
	if c.ep == nil {
		return errors.New("tftp: client: not connected")
	}

	req := &protocol.Request{Direction: protocol.DirectionWrite, Filename: filename, Mode: protocol.ModeOctet}
	raw, err := req.Encode()
	if err != nil {
		return fmt.Errorf("tftp: client: encode request: %w", err)
	}

	c.tracef("-> WRQ %s", filename)

	if _, err := c.ep.SendTo(raw, c.server); err != nil {
		return fmt.Errorf("tftp: client: send request: %w", err)
	}

	from, err := c.awaitAck(ctx, 0)
	if err != nil {
		return err
	}

	block := uint16(1)

	for offset := 0; ; {
		end := offset + protocol.MaxDataSize
		if end > len(data) {
			end = len(data)
		}

		payload := data[offset:end]

		raw, err := (&protocol.Data{Block: block, Payload: payload}).Encode()
		if err != nil {
			return fmt.Errorf("tftp: client: encode data: %w", err)
		}

		c.tracef("-> DATA block=%d len=%d", block, len(payload))

		if _, err := c.ep.SendTo(raw, from); err != nil {
			return fmt.Errorf("tftp: client: send data: %w", err)
		}

		if _, err := c.awaitAck(ctx, block); err != nil {
			return err
		}

		offset = end

		if len(payload) < protocol.MaxDataSize {
			return nil
		}

		block++
	}
}

func (c *Client) awaitAck(ctx context.Context, expected uint16) (net.Addr, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		buf := endpoint.GetBuffer()

		n, from, err := c.ep.ReceiveFrom(buf, c.timeout)
		if err != nil {
			endpoint.PutBuffer(buf)

			return nil, fmt.Errorf("tftp: client: receive: %w", err)
		}

		pkt, err := protocol.Decode(buf[:n])
		endpoint.PutBuffer(buf)

		if err != nil {
			return nil, fmt.Errorf("tftp: client: decode: %w", err)
		}

		switch p := pkt.(type) {
		case *protocol.Ack:
			if p.Block == expected {
				return from, nil
			}
		case *protocol.Error:
			return nil, fmt.Errorf("tftp: client: server error %s: %s", p.Code, p.Message)
		}
	}
}
