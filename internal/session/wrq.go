package session

import (
	"errors"
	"time"

	"github.com/wa4h1h/tftpd/internal/endpoint"
	"github.com/wa4h1h/tftpd/internal/protocol"
)

// runWrite drives the server-receives-data sub-state machine: acknowledge
// the request (OACK if options were negotiated, else ACK(0)), then
// accumulate DATA blocks until one shorter than blockSize arrives, then
// commit the buffer to storage.
func (s *Session) runWrite() {
	accepted, tsize := negotiate(s.request.Options)
	s.expectedTsize = tsize

	var ackPkt protocol.Packet
	if len(accepted) > 0 {
		ackPkt = &protocol.OAck{Options: accepted}
	} else {
		ackPkt = &protocol.Ack{Block: 0}
	}

	if err := s.send(ackPkt); err != nil {
		s.logger.Infow("write transfer terminated", "reason", "send_failure", "error", err)

		return
	}

	var buf []byte

	block := uint16(1)

	for {
		data, ok := s.awaitData(ackPkt, block)
		if !ok {
			return
		}

		tentative := s.bytesTransferred + int64(len(data.Payload))
		if tentative > s.cfg.MaxTransferSize {
			s.sendError(protocol.ErrDiskFull, "transfer exceeds maximum size")
			s.logger.Infow("write transfer terminated", "reason", "transfer_too_large", "bytes", tentative)

			return
		}

		buf = append(buf, data.Payload...)
		s.bytesTransferred = tentative
		s.currentBlock = block

		ack := &protocol.Ack{Block: block}
		if err := s.send(ack); err != nil {
			s.logger.Infow("write transfer terminated", "reason", "send_failure", "error", err)

			return
		}

		if len(data.Payload) < blockSize {
			if err := s.storage.Write(s.canonicalPath, buf); err != nil {
				s.sendError(protocol.ErrAccessViolation, "File write failed")
				s.logger.Infow("write transfer terminated", "reason", "storage_write_failed", "error", err)

				return
			}

			s.logger.Infow("write transfer completed", "bytes", s.bytesTransferred, "blocks", block)

			return
		}

		ackPkt = ack
		block++
	}
}

// awaitData waits for DATA(expectedBlock) from the client TID, resending
// resend on every timeout up to the configured retry budget. An ERROR from
// the peer aborts the session without a reply. Any other non-DATA packet is
// an illegal operation: it is answered with Error(IllegalOperation) and the
// session aborts immediately (not retried).
func (s *Session) awaitData(resend protocol.Packet, expectedBlock uint16) (*protocol.Data, bool) {
	attempts := s.cfg.MaxRetries

	for {
	waitForData:
		for {
			in, err := s.receive()
			switch {
			case err == nil:
			case errors.Is(err, errStrangerTID):
				continue waitForData
			case errors.Is(err, endpoint.ErrTimedOut):
				break waitForData
			default:
				s.logger.Infow("write transfer terminated", "reason", "decode_error", "error", err)

				return nil, false
			}

			switch p := in.pkt.(type) {
			case *protocol.Data:
				if p.Block == expectedBlock {
					return p, true
				}
				// duplicate/stale data from the same TID: ignore and keep
				// waiting without consuming retry budget.
				continue waitForData
			case *protocol.Error:
				s.logger.Infow("write transfer terminated", "reason", "peer_error", "code", p.Code.String())

				return nil, false
			default:
				s.sendError(protocol.ErrIllegalOperation, "unexpected packet during write transfer")
				s.logger.Infow("write transfer terminated", "reason", "illegal_operation")

				return nil, false
			}
		}

		attempts--
		if attempts <= 0 {
			s.logger.Infow("write transfer terminated", "reason", "retries_exhausted")

			return nil, false
		}

		time.Sleep(s.cfg.RetryDelay)

		if err := s.send(resend); err != nil {
			s.logger.Infow("write transfer terminated", "reason", "send_failure", "error", err)

			return nil, false
		}
	}
}
