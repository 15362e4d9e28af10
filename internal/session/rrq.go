package session

import (
	"errors"
	"time"

	"github.com/wa4h1h/tftpd/internal/endpoint"
	"github.com/wa4h1h/tftpd/internal/protocol"
	"github.com/wa4h1h/tftpd/internal/storage"
)

// runRead drives the server-sends-data sub-state machine: read the whole
// file via storage, negotiate options, then walk the stop-and-wait block
// loop until a DATA shorter than blockSize has been both sent and
// acknowledged.
func (s *Session) runRead() {
	data, err := s.storage.Read(s.canonicalPath)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.sendError(protocol.ErrFileNotFound, "file not found")
		default:
			s.sendError(protocol.ErrAccessViolation, "access denied")
		}

		s.logger.Infow("read transfer terminated", "reason", "storage_error", "error", err)

		return
	}

	if int64(len(data)) > s.cfg.MaxTransferSize {
		s.sendError(protocol.ErrDiskFull, "file exceeds maximum transfer size")
		s.logger.Infow("read transfer terminated", "reason", "file_too_large", "size", len(data))

		return
	}

	accepted, tsize := negotiate(s.request.Options)
	s.expectedTsize = tsize

	if len(accepted) > 0 {
		oack := &protocol.OAck{Options: accepted}
		if !s.sendAwaitAck(oack, 0) {
			return
		}
	}

	s.currentBlock = 1

	for offset := 0; ; {
		end := offset + blockSize
		if end > len(data) {
			end = len(data)
		}

		payload := data[offset:end]

		ok := s.sendDataAwaitAck(s.currentBlock, payload)
		if !ok {
			return
		}

		s.bytesTransferred += int64(len(payload))
		offset = end

		if len(payload) < blockSize {
			s.logger.Infow("read transfer completed", "bytes", s.bytesTransferred, "blocks", s.currentBlock)

			return
		}

		s.currentBlock++
	}
}

// sendDataAwaitAck sends DATA(block, payload) and waits for the matching
// ACK, retransmitting on timeout up to the configured retry budget.
// Returns false if the session should terminate (retries exhausted, send
// failure, malformed peer packet, or an Error from the peer).
func (s *Session) sendDataAwaitAck(block uint16, payload []byte) bool {
	return s.sendAwaitAck(&protocol.Data{Block: block, Payload: payload}, block)
}

// sendAwaitAck sends pkt (a DATA or an OACK) and waits for the matching
// ACK, retransmitting pkt on every timeout up to the configured retry
// budget.
func (s *Session) sendAwaitAck(pkt protocol.Packet, expectedBlock uint16) bool {
	attempts := s.cfg.MaxRetries

	for {
		if err := s.send(pkt); err != nil {
			s.logger.Infow("read transfer terminated", "reason", "send_failure", "error", err)

			return false
		}

	waitForAck:
		for {
			in, err := s.receive()
			switch {
			case err == nil:
				// fallthrough to packet handling below
			case errors.Is(err, errStrangerTID):
				continue waitForAck
			case errors.Is(err, endpoint.ErrTimedOut):
				break waitForAck
			default:
				s.logger.Infow("read transfer terminated", "reason", "decode_error", "error", err)

				return false
			}

			switch p := in.pkt.(type) {
			case *protocol.Ack:
				if p.Block == expectedBlock {
					return true
				}
				// duplicate/stale ack from the same TID: ignore and keep
				// waiting without consuming retry budget.
				continue waitForAck
			case *protocol.Error:
				s.logger.Infow("read transfer terminated", "reason", "peer_error", "code", p.Code.String())

				return false
			default:
				continue waitForAck
			}
		}

		attempts--
		if attempts <= 0 {
			s.logger.Infow("read transfer terminated", "reason", "retries_exhausted")

			return false
		}

		time.Sleep(s.cfg.RetryDelay)
	}
}
