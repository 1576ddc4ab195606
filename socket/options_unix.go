//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package socket

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// control returns a net.ListenConfig control hook that applies the requested
// options to the raw descriptor before bind.
func control(reuseAddr, reusePort, broadcast bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if reuseAddr {
				if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); opErr != nil {
					opErr = fmt.Errorf("set SO_REUSEADDR: %w", opErr)
					return
				}
			}

			if reusePort {
				if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); opErr != nil {
					opErr = fmt.Errorf("set SO_REUSEPORT: %w", opErr)
					return
				}
			}

			if broadcast {
				if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); opErr != nil {
					opErr = fmt.Errorf("set SO_BROADCAST: %w", opErr)
				}
			}
		})
		if err != nil {
			return err
		}

		return opErr
	}
}
