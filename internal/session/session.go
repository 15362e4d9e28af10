// Package session runs one TFTP transfer end-to-end: option negotiation,
// the stop-and-wait block loop, retransmission, duplicate-ACK suppression,
// and fatal-error surfacing. A Session owns its own ephemeral endpoint and
// talks to exactly one client transfer ID for its whole lifetime.
package session

import (
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/wa4h1h/tftpd/internal/endpoint"
	"github.com/wa4h1h/tftpd/internal/protocol"
	"github.com/wa4h1h/tftpd/internal/storage"
)

const (
	blockSize       = protocol.MaxDataSize
	defaultMaxRetries = 5
	defaultRetryDelay = time.Second
)

// Config carries the server-wide policy a Session is built with.
type Config struct {
	MaxTransferSize int64
	PerBlockTimeout time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}

	if c.RetryDelay == 0 {
		c.RetryDelay = defaultRetryDelay
	}

	if c.PerBlockTimeout == 0 {
		c.PerBlockTimeout = 5 * time.Second
	}

	return c
}

// Session is one active transfer, owned end-to-end by a single worker
// goroutine.
type Session struct {
	logger    *zap.SugaredLogger
	ep        *endpoint.Endpoint
	clientTID net.Addr
	storage   storage.Storage
	cfg       Config

	request       *protocol.Request
	canonicalPath string

	currentBlock     uint16
	bytesTransferred int64
	expectedTsize    *int64
}

// New constructs a Session. ep is the already-bound ephemeral endpoint
// dedicated to this transfer; clientTID is fixed from the source address of
// the initial request and never changes for the session's lifetime.
func New(
	logger *zap.SugaredLogger,
	ep *endpoint.Endpoint,
	clientTID net.Addr,
	req *protocol.Request,
	canonicalPath string,
	st storage.Storage,
	cfg Config,
) *Session {
	return &Session{
		logger:        logger.With("client", clientTID.String(), "file", canonicalPath, "direction", directionLabel(req.Direction)),
		ep:            ep,
		clientTID:     clientTID,
		storage:       st,
		cfg:           cfg.withDefaults(),
		request:       req,
		canonicalPath: canonicalPath,
	}
}

func directionLabel(d protocol.Direction) string {
	if d == protocol.DirectionWrite {
		return "WRQ"
	}

	return "RRQ"
}

// Run drives the session to completion and releases its endpoint. It never
// panics and never returns an error: every failure mode is either a TFTP
// error packet sent to the peer or a logged termination.
func (s *Session) Run() {
	defer func() {
		if err := s.ep.Close(); err != nil {
			s.logger.Warnw("error while closing session endpoint", "error", err)
		}
	}()

	switch s.request.Direction {
	case protocol.DirectionRead:
		s.runRead()
	case protocol.DirectionWrite:
		s.runWrite()
	}
}

// send encodes and transmits pkt to the session's client TID.
func (s *Session) send(pkt protocol.Packet) error {
	raw, err := pkt.Encode()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if _, err := s.ep.SendTo(raw, s.clientTID); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	return nil
}

// sendError best-effort sends an ERROR packet to the client TID; failures
// are logged, not propagated, since the peer is likely gone by then.
func (s *Session) sendError(code protocol.ErrorKind, message string) {
	if err := s.send(&protocol.Error{Code: code, Message: message}); err != nil {
		s.logger.Debugw("error while sending error packet", "code", code, "error", err)
	}
}

// sendErrorTo sends an ERROR packet to an address other than the session's
// client TID, used when a stray packet arrives from an unexpected peer.
func (s *Session) sendErrorTo(to net.Addr, code protocol.ErrorKind, message string) {
	raw, err := (&protocol.Error{Code: code, Message: message}).Encode()
	if err != nil {
		return
	}

	if _, err := s.ep.SendTo(raw, to); err != nil {
		s.logger.Debugw("error while sending error packet to stranger TID", "to", to.String(), "error", err)
	}
}

// inbound is one received-and-decoded datagram.
type inbound struct {
	pkt  protocol.Packet
	from net.Addr
}

// receive blocks for up to the session's per-block timeout for one
// datagram. If a packet arrives from a TID other than the client's, it
// replies UnknownTransferId to that stranger and keeps waiting out the
// remainder of the caller's retry budget (the state machine does not
// change state because of a stranger).
func (s *Session) receive() (*inbound, error) {
	buf := endpoint.GetBuffer()
	defer endpoint.PutBuffer(buf)

	n, from, err := s.ep.ReceiveFrom(buf, s.cfg.PerBlockTimeout)
	if err != nil {
		return nil, err
	}

	if !sameTID(from, s.clientTID) {
		s.sendErrorTo(from, protocol.ErrUnknownTransferID, "unknown transfer id")

		return &inbound{from: from}, errStrangerTID
	}

	pkt, err := protocol.Decode(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	return &inbound{pkt: pkt, from: from}, nil
}

var errStrangerTID = errors.New("tftp: session: packet from unexpected transfer id")

func sameTID(a, b net.Addr) bool {
	ua, aok := a.(*net.UDPAddr)
	ub, bok := b.(*net.UDPAddr)

	if aok && bok {
		return ua.IP.Equal(ub.IP) && ua.Port == ub.Port
	}

	return a.String() == b.String()
}
