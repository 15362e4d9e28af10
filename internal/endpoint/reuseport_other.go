//go:build !unix

package endpoint

import "syscall"

// reusePortControl is a documented no-op on platforms without SO_REUSEPORT
// (e.g. Windows): address reuse simply isn't requested there.
func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
