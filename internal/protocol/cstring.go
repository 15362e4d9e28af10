package protocol

import (
	"bytes"
	"fmt"
)

// errDecode is returned for any malformed wire input. decode() never
// returns a partially populated Packet; on error the caller's packet value
// is left untouched.
type errDecode struct {
	reason string
}

func (e *errDecode) Error() string { return "tftp: decode error: " + e.reason }

func decodeErrorf(format string, args ...any) error {
	return &errDecode{reason: fmt.Sprintf(format, args...)}
}

// readCString consumes bytes from r up to and including a terminating 0x00,
// enforcing maxLen on the content before the terminator. A string that
// reaches maxLen without finding a terminator is a fatal decode error.
// Empty content is rejected unless allowEmpty is set.
func readCString(r *bytes.Reader, maxLen int, allowEmpty bool) (string, error) {
	var buf bytes.Buffer

	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", decodeErrorf("unterminated string")
		}

		if b == 0 {
			break
		}

		if buf.Len() >= maxLen {
			return "", decodeErrorf("string exceeds maximum length %d", maxLen)
		}

		buf.WriteByte(b)
	}

	if buf.Len() == 0 && !allowEmpty {
		return "", decodeErrorf("empty string not permitted")
	}

	return buf.String(), nil
}

// writeCString appends s followed by a single 0x00 terminator. It never
// truncates; a caller passing a string longer than the wire allows is a
// programmer error and is rejected instead of silently cut.
func writeCString(b *bytes.Buffer, s string, maxLen int) error {
	if len(s) > maxLen {
		return fmt.Errorf("tftp: encode error: string %q exceeds maximum length %d", s, maxLen)
	}

	b.WriteString(s)

	return b.WriteByte(0)
}
