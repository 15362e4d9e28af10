package session

import (
	"strconv"

	"github.com/wa4h1h/tftpd/internal/protocol"
)

const (
	minBlksize = 8
	maxBlksize = 65464

	minOptTimeout = 1
	maxOptTimeout = 255

	defaultBlksizeEcho = "512"
	defaultTimeoutEcho = "6"
)

// negotiate builds the subset of requested options the server accepts, with
// values clamped to server policy. Unrecognized option names are dropped
// per RFC 2347 §4. The returned tsize, if present, is the client's advisory
// value, recorded but never used to terminate a transfer.
func negotiate(requested protocol.Options) (accepted protocol.Options, tsize *int64) {
	accepted = make(protocol.Options)

	if v, ok := requested[protocol.OptBlksize]; ok {
		accepted[protocol.OptBlksize] = clampedEcho(v, minBlksize, maxBlksize, defaultBlksizeEcho)
	}

	if v, ok := requested[protocol.OptTimeout]; ok {
		accepted[protocol.OptTimeout] = clampedEcho(v, minOptTimeout, maxOptTimeout, defaultTimeoutEcho)
	}

	if v, ok := requested[protocol.OptTsize]; ok {
		accepted[protocol.OptTsize] = v

		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			tsize = &n
		}
	}

	return accepted, tsize
}

// clampedEcho echoes raw if it parses as an integer within [lo,hi];
// otherwise it substitutes fallback.
func clampedEcho(raw string, lo, hi int, fallback string) string {
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return fallback
	}

	return raw
}
