package socket

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/cyberinferno/musen/address"
)

// UDPSocket is a connectionless datagram socket. It is opened either
// unbound with Connect (enough for sending) or bound with Bind (for
// receiving). The same handle may be reused for any number of sends.
type UDPSocket struct {
	config Config
	conn   *net.UDPConn
	bound  *address.Address
	target *address.Address
}

var _ Socket = (*UDPSocket)(nil)

// NewUDPSocket creates a UDPSocket. No OS resource is opened until Connect
// or Bind is called.
//
// Parameters:
//   - config: Socket options (e.g. from DefaultConfig)
//
// Returns:
//   - A new, disconnected *UDPSocket
func NewUDPSocket(config Config) *UDPSocket {
	return &UDPSocket{config: config}
}

// Connect opens an unbound IPv4 datagram handle on an ephemeral port. It is
// a no-op if the socket is already open.
//
// Returns:
//   - An error if the OS refuses to create the handle
func (s *UDPSocket) Connect() error {
	if s.conn != nil {
		return nil
	}

	conn, err := s.listen("udp4", "0.0.0.0:0", false)
	if err != nil {
		return fmt.Errorf("udp connect: %w", err)
	}

	s.conn = conn
	return nil
}

// Bind opens a handle bound to addr so datagrams sent to it can be
// received. The previous handle, if any, is released only once the new one
// is bound, so a failed Bind leaves the socket as it was. Rebinding the
// exact address already held releases it first. The bind is exclusive
// unless Config.ReusePort is set; a conflicting bind fails with an error
// wrapping syscall.EADDRINUSE.
//
// Parameters:
//   - addr: The local address to bind; port 0 picks an ephemeral port
//
// Returns:
//   - An error if the address is invalid or the bind fails
func (s *UDPSocket) Bind(addr address.Address) error {
	ap, err := addr.AddrPort()
	if err != nil {
		return fmt.Errorf("udp bind: %w", err)
	}

	ap = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	network := "udp4"
	if ap.Addr().Is6() {
		network = "udp6"
	}

	if s.bound != nil && ap.Port() != 0 && *s.bound == address.New(ap.Addr().String(), ap.Port()) {
		if err := s.Disconnect(); err != nil {
			return fmt.Errorf("udp bind %s: %w", addr, err)
		}
	}

	conn, err := s.listen(network, ap.String(), s.config.ReusePort)
	if err != nil {
		return fmt.Errorf("udp bind %s: %w", addr, err)
	}

	if err := s.Disconnect(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("udp bind %s: %w", addr, err)
	}

	local := address.FromNetAddr(conn.LocalAddr())
	s.conn = conn
	s.bound = &local
	return nil
}

func (s *UDPSocket) listen(network, addr string, reusePort bool) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: control(false, reusePort, s.config.Broadcast)}
	pc, err := lc.ListenPacket(context.Background(), network, addr)
	if err != nil {
		return nil, err
	}

	return pc.(*net.UDPConn), nil
}

// Disconnect releases the handle and forgets the bound address. It is safe
// to call on a socket that is not open.
//
// Returns:
//   - An error if closing the handle failed
func (s *UDPSocket) Disconnect() error {
	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	s.bound = nil
	return err
}

// IsConnected reports whether the socket holds an open handle.
func (s *UDPSocket) IsConnected() bool {
	return s.conn != nil
}

// BoundAddress returns the address set by Bind, with the ephemeral port
// resolved, or false if the socket is not bound.
func (s *UDPSocket) BoundAddress() (address.Address, bool) {
	if s.bound == nil {
		return address.Address{}, false
	}

	return *s.bound, true
}

// LocalAddress returns the local endpoint of the open handle.
func (s *UDPSocket) LocalAddress() (address.Address, bool) {
	if s.conn == nil {
		return address.Address{}, false
	}

	return address.FromNetAddr(s.conn.LocalAddr()), true
}

// SetTarget sets the destination used by Send.
func (s *UDPSocket) SetTarget(addr address.Address) {
	s.target = &addr
}

// Send transmits data to the address given to SetTarget.
//
// Returns:
//   - The number of bytes sent
//   - ErrNoTarget if no target was set, or the error from SendTo
func (s *UDPSocket) Send(data []byte) (int, error) {
	if s.target == nil {
		return 0, ErrNoTarget
	}

	return s.SendTo(*s.target, data)
}

// SendTo transmits data as one datagram to addr. The payload is not split
// or retried; datagrams larger than the path allows are lost.
//
// Parameters:
//   - addr: The destination
//   - data: The payload
//
// Returns:
//   - The number of bytes sent
//   - ErrNotConnected if the socket is not open, or the OS error
func (s *UDPSocket) SendTo(addr address.Address, data []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}

	ap, err := addr.AddrPort()
	if err != nil {
		return 0, fmt.Errorf("udp send: %w", err)
	}

	if err := s.conn.SetWriteDeadline(writeDeadline(s.config)); err != nil {
		return 0, fmt.Errorf("udp send %s: %w", addr, err)
	}

	n, err := s.conn.WriteToUDPAddrPort(data, ap)
	if err != nil {
		return n, fmt.Errorf("udp send %s: %w", addr, err)
	}

	return n, nil
}

// Receive reads at most one datagram into buf. See Socket.
func (s *UDPSocket) Receive(buf []byte) int {
	n, _, _ := s.ReceiveFrom(buf)
	return n
}

// ReceiveFrom reads at most one datagram into buf and reports its sender.
// Datagrams longer than buf are truncated by the OS.
//
// Parameters:
//   - buf: The destination buffer; its length is the maximum read size
//
// Returns:
//   - The number of bytes read (0 when the socket is closed, buf is empty or
//     nothing arrived within the poll timeout)
//   - The sender address, valid when n > 0
//   - A non-nil error only for read failures other than the poll timeout
func (s *UDPSocket) ReceiveFrom(buf []byte) (int, address.Address, error) {
	if s.conn == nil || len(buf) <= 0 {
		return 0, address.Address{}, nil
	}

	if err := s.conn.SetReadDeadline(pollDeadline(s.config)); err != nil {
		return 0, address.Address{}, err
	}

	n, from, err := s.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		if isTimeout(err) {
			return 0, address.Address{}, nil
		}

		return 0, address.Address{}, err
	}

	return max(n, 0), address.New(from.Addr().Unmap().String(), from.Port()), nil
}
