package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"

	"github.com/cyberinferno/musen/address"
)

// Role is what a TCPSocket's handle is currently used for.
type Role int

const (
	RoleUnconnected Role = iota // No handle
	RoleListening               // Bound and accepting connections
	RoleConnected               // One end of an established stream
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleUnconnected:
		return "Unconnected"
	case RoleListening:
		return "Listening"
	case RoleConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// TCPSocket is a stream socket that is either a listener producing accepted
// connections or one end of a connection. An accepted connection is always a
// new TCPSocket with its own handle; the listener is unaffected.
type TCPSocket struct {
	config   Config
	role     Role
	listener *net.TCPListener
	conn     *net.TCPConn
	remote   *address.Address
	port     uint16
}

var _ Socket = (*TCPSocket)(nil)

// NewTCPSocket creates an unconnected TCPSocket.
//
// Parameters:
//   - config: Socket options (e.g. from DefaultConfig)
//
// Returns:
//   - A new *TCPSocket in RoleUnconnected
func NewTCPSocket(config Config) *TCPSocket {
	return &TCPSocket{config: config}
}

// Role returns the socket's current role.
func (s *TCPSocket) Role() Role {
	return s.role
}

// IsConnected reports whether the socket is listening or connected.
func (s *TCPSocket) IsConnected() bool {
	return s.role != RoleUnconnected
}

// Port returns the port a listening socket is bound to, with an ephemeral
// port resolved, or 0 otherwise.
func (s *TCPSocket) Port() uint16 {
	return s.port
}

// Listen binds addr and starts listening. SO_REUSEADDR is set first when
// Config.ReuseAddr is enabled, so a restart does not trip over connections
// left in TIME_WAIT; an address held by a live listener still fails with an
// error wrapping syscall.EADDRINUSE.
//
// Parameters:
//   - addr: The local address; port 0 picks an ephemeral port
//
// Returns:
//   - ErrAlreadyConnected if the socket already has a handle
//   - An error if the address is invalid or bind/listen fails
func (s *TCPSocket) Listen(addr address.Address) error {
	if s.role != RoleUnconnected {
		return ErrAlreadyConnected
	}

	ap, err := addr.AddrPort()
	if err != nil {
		return fmt.Errorf("tcp listen: %w", err)
	}

	ap = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	network := "tcp4"
	if ap.Addr().Is6() {
		network = "tcp6"
	}

	lc := net.ListenConfig{Control: control(s.config.ReuseAddr, s.config.ReusePort, false)}
	ln, err := lc.Listen(context.Background(), network, ap.String())
	if err != nil {
		return fmt.Errorf("tcp listen %s: %w", addr, err)
	}

	s.listener = ln.(*net.TCPListener)
	s.port = address.FromNetAddr(ln.Addr()).Port
	s.role = RoleListening
	return nil
}

// AcceptOne takes one pending connection if there is one. It waits at most
// Config.PollTimeout and never blocks indefinitely.
//
// Returns:
//   - A new *TCPSocket in RoleConnected, or nil if nothing was pending
//   - ErrNotListening if the socket is not a listener, or an accept error
func (s *TCPSocket) AcceptOne() (*TCPSocket, error) {
	if s.role != RoleListening {
		return nil, ErrNotListening
	}

	if err := s.listener.SetDeadline(pollDeadline(s.config)); err != nil {
		return nil, fmt.Errorf("tcp accept: %w", err)
	}

	conn, err := s.listener.AcceptTCP()
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("tcp accept: %w", err)
	}

	remote := address.FromNetAddr(conn.RemoteAddr())
	return &TCPSocket{
		config: s.config,
		role:   RoleConnected,
		conn:   conn,
		remote: &remote,
	}, nil
}

// ConnectTo remembers addr and connects to it.
//
// Parameters:
//   - addr: The remote listener
//
// Returns:
//   - An error wrapping the OS error (e.g. syscall.ECONNREFUSED) on failure
func (s *TCPSocket) ConnectTo(addr address.Address) error {
	if s.role != RoleUnconnected {
		return ErrAlreadyConnected
	}

	s.remote = &addr
	return s.Connect()
}

// Connect dials the remembered remote address and blocks until the connect
// completes, fails or Config.DialTimeout elapses.
//
// Returns:
//   - ErrAlreadyConnected if the socket already has a handle
//   - ErrNoTarget if no remote address was given
//   - An error wrapping the OS error on failure
func (s *TCPSocket) Connect() error {
	if s.role != RoleUnconnected {
		return ErrAlreadyConnected
	}

	if s.remote == nil {
		return ErrNoTarget
	}

	ap, err := s.remote.AddrPort()
	if err != nil {
		return fmt.Errorf("tcp connect: %w", err)
	}

	dialer := net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.Dial("tcp", ap.String())
	if err != nil {
		return fmt.Errorf("tcp connect %s: %w", s.remote, err)
	}

	s.conn = conn.(*net.TCPConn)
	s.role = RoleConnected
	return nil
}

// RemoteAddress returns the peer of a connected socket.
func (s *TCPSocket) RemoteAddress() (address.Address, bool) {
	if s.role != RoleConnected || s.remote == nil {
		return address.Address{}, false
	}

	return *s.remote, true
}

// Disconnect closes the listener or connection and returns the socket to
// RoleUnconnected. It is safe to call repeatedly.
//
// Returns:
//   - An error if closing the handle failed
func (s *TCPSocket) Disconnect() error {
	var err error
	switch s.role {
	case RoleListening:
		err = s.listener.Close()
		s.listener = nil
		s.port = 0
	case RoleConnected:
		err = s.conn.Close()
		s.conn = nil
	}

	s.role = RoleUnconnected
	return err
}

// Send writes data to the connection in one call. The write is bounded by
// Config.WriteTimeout when set.
//
// Parameters:
//   - data: The bytes to send
//
// Returns:
//   - The number of bytes written
//   - ErrNotConnected if the socket is not connected, or the OS error
func (s *TCPSocket) Send(data []byte) (int, error) {
	if s.role != RoleConnected {
		return 0, ErrNotConnected
	}

	if err := s.conn.SetWriteDeadline(writeDeadline(s.config)); err != nil {
		return 0, fmt.Errorf("tcp send: %w", err)
	}

	n, err := s.conn.Write(data)
	if err != nil {
		return n, fmt.Errorf("tcp send: %w", err)
	}

	return n, nil
}

// Receive performs one read into buf. See Socket.
func (s *TCPSocket) Receive(buf []byte) int {
	n, _ := s.TryReceive(buf)
	return n
}

// TryReceive performs one read into buf bounded by Config.PollTimeout.
//
// Parameters:
//   - buf: The destination buffer; its length is the maximum read size
//
// Returns:
//   - The number of bytes read
//   - nil when data arrived or nothing arrived yet; io.EOF when the peer
//     closed the stream; any other read error otherwise
func (s *TCPSocket) TryReceive(buf []byte) (int, error) {
	if s.role != RoleConnected || len(buf) <= 0 {
		return 0, nil
	}

	if err := s.conn.SetReadDeadline(pollDeadline(s.config)); err != nil {
		return 0, err
	}

	n, err := s.conn.Read(buf)
	if n > 0 {
		return n, nil
	}

	if err == nil || isTimeout(err) {
		return 0, nil
	}

	if errors.Is(err, io.EOF) {
		return 0, io.EOF
	}

	return 0, err
}
