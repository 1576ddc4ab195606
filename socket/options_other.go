//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package socket

import "syscall"

// control is a no-op where golang.org/x/sys/unix socket options are not
// available; the Go runtime's own defaults apply.
func control(reuseAddr, reusePort, broadcast bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
