//go:build unix

package endpoint

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePortControl sets SO_REUSEPORT on the listening socket before bind,
// via golang.org/x/sys/unix constants instead of the bare syscall package.
func reusePortControl(_, _ string, c syscall.RawConn) error {
	var opErr error

	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}

	return opErr
}
