package protocol

import "strings"

// TransferMode is the RRQ/WRQ mode string, compared case-insensitively on
// the wire per RFC 1350.
type TransferMode string

const (
	ModeNetAscii TransferMode = "netascii"
	ModeOctet    TransferMode = "octet"
	ModeMail     TransferMode = "mail"
)

// ParseMode normalizes a wire mode string. Mail is accepted syntactically
// but has no session semantics distinct from Octet (spec §9 Open Question
// 4); callers that want to reject it explicitly may compare against
// ModeMail themselves.
func ParseMode(s string) (TransferMode, bool) {
	switch strings.ToLower(s) {
	case string(ModeNetAscii):
		return ModeNetAscii, true
	case string(ModeOctet):
		return ModeOctet, true
	case string(ModeMail):
		return ModeMail, true
	default:
		return "", false
	}
}
