// Package validation checks public-API argument sanity (ports, timeouts,
// sizes, hostnames, root dir, filenames) before the engine runs, returning
// sentinel errors rather than panicking or throwing.
package validation

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"regexp"
	"strings"

	"github.com/wa4h1h/tftpd/internal/pathsafety"
)

const (
	MinTimeoutSeconds = 1
	MaxTimeoutSeconds = 3600

	MinPort = 1
	MaxPort = 65535

	MinTransferSize = 512
	MaxTransferSize = 1024 * 1024 * 1024 // 1 GiB ceiling on a configured max transfer size

	MaxRootDirLen  = 4096
	MaxHostnameLen = 253

	wellKnownPortCeiling = 1024
)

var (
	ErrEmptyRootDir     = errors.New("tftp: validation: root directory must not be empty")
	ErrRootDirTooLong   = fmt.Errorf("tftp: validation: root directory exceeds %d bytes", MaxRootDirLen)
	ErrRootDirTraversal = errors.New("tftp: validation: root directory must not contain a .. component")
	ErrRootDirNullByte  = errors.New("tftp: validation: root directory must not contain a null byte")

	ErrPortOutOfRange = fmt.Errorf("tftp: validation: port must be in [%d,%d]", MinPort, MaxPort)

	ErrTimeoutOutOfRange = fmt.Errorf("tftp: validation: timeout must be in [%d,%d] seconds", MinTimeoutSeconds, MaxTimeoutSeconds)

	ErrTransferSizeOutOfRange = fmt.Errorf("tftp: validation: transfer size must be in [%d,%d] bytes", MinTransferSize, MaxTransferSize)

	ErrEmptyHost     = errors.New("tftp: validation: host must not be empty")
	ErrHostTooLong   = fmt.Errorf("tftp: validation: host exceeds %d bytes", MaxHostnameLen)
	ErrHostMalformed = errors.New("tftp: validation: host is neither a dotted-quad IPv4 address nor a DNS hostname")

	ErrNilCallback = errors.New("tftp: validation: callback must not be nil")
)

var dnsLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// RootDir validates a configured root directory string (not whether it
// exists on disk; that is the server's problem at Start()).
func RootDir(root string) error {
	if root == "" {
		return ErrEmptyRootDir
	}

	if len(root) > MaxRootDirLen {
		return ErrRootDirTooLong
	}

	if strings.Contains(root, "\x00") {
		return ErrRootDirNullByte
	}

	for _, part := range strings.Split(strings.ReplaceAll(root, "\\", "/"), "/") {
		if part == ".." {
			return ErrRootDirTraversal
		}
	}

	return nil
}

// Port validates a UDP port number. Ports below 1024 are legal but the
// caller should log a warning (the well-known TFTP port 69 among them).
func Port(port int) error {
	if port < MinPort || port > MaxPort {
		return ErrPortOutOfRange
	}

	return nil
}

// IsPrivilegedPort reports whether port is conventionally reserved
// (< 1024), for callers that want to log a warning without rejecting it.
func IsPrivilegedPort(port int) bool {
	return port < wellKnownPortCeiling
}

// TimeoutSeconds validates a per-block timeout.
func TimeoutSeconds(seconds int) error {
	if seconds < MinTimeoutSeconds || seconds > MaxTimeoutSeconds {
		return ErrTimeoutOutOfRange
	}

	return nil
}

// TransferSize validates a maximum-transfer-size setting.
func TransferSize(size int64) error {
	if size < MinTransferSize || size > MaxTransferSize {
		return ErrTransferSizeOutOfRange
	}

	return nil
}

// Host validates a hostname or IPv4 dotted-quad address.
func Host(host string) error {
	if host == "" {
		return ErrEmptyHost
	}

	if len(host) > MaxHostnameLen {
		return ErrHostTooLong
	}

	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return nil
	}

	for _, label := range strings.Split(host, ".") {
		if !dnsLabel.MatchString(label) {
			return ErrHostMalformed
		}
	}

	return nil
}

// Filename validates a client-facing filename using the same lexical rules
// as internal/pathsafety, without requiring a root directory to check
// containment against.
func Filename(name string) error {
	if !pathsafety.PassesLexicalChecks(name) {
		return fmt.Errorf("tftp: validation: filename %q fails lexical safety checks", name)
	}

	return nil
}

// CallbackNotNil validates that a user-supplied callback function value is
// non-nil, generalizing the original source's
// ValidateCallback<T>(std::function<T>) template via a Go generic
// function-type parameter.
func CallbackNotNil[T any](cb T) error {
	v := reflect.ValueOf(cb)

	switch v.Kind() {
	case reflect.Func, reflect.Ptr, reflect.Chan, reflect.Map, reflect.Slice, reflect.Interface:
		if v.IsNil() {
			return ErrNilCallback
		}
	default:
	}

	return nil
}
