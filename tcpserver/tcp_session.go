package tcpserver

import (
	"errors"
	"io"

	"github.com/cyberinferno/musen/address"
	"github.com/cyberinferno/musen/logger"
	"github.com/cyberinferno/musen/message"
	"github.com/cyberinferno/musen/socket"
)

// Session is the server side of one accepted connection. It exclusively
// owns the accepted socket. Sessions are not safe for concurrent use.
//
// Message boundaries follow the fixed-buffer convention: one receive call is
// taken as one message. TCP may coalesce or split writes, so peers must not
// send faster than the other side consumes.
type Session struct {
	id         uint32
	socket     *socket.TCPSocket
	remote     address.Address
	logger     logger.Logger
	peerClosed bool
}

func newSession(id uint32, s *socket.TCPSocket, log logger.Logger) *Session {
	remote, _ := s.RemoteAddress()
	return &Session{
		id:     id,
		socket: s,
		remote: remote,
		logger: log,
	}
}

// ID returns the session's identifier, unique per Server and increasing in
// accept order.
func (s *Session) ID() uint32 {
	return s.id
}

// RemoteAddress returns the peer's address.
func (s *Session) RemoteAddress() address.Address {
	return s.remote
}

// IsConnected reports whether the session still owns an open connection.
func (s *Session) IsConnected() bool {
	return s.socket.IsConnected()
}

// PeerClosed reports whether a receive observed the peer closing or
// resetting the connection. Such sessions only ever receive nothing and
// should be released.
func (s *Session) PeerClosed() bool {
	return s.peerClosed
}

// Send writes data to the peer in one call.
func (s *Session) Send(data []byte) (int, error) {
	return s.socket.Send(data)
}

// Receive performs one read into buf. See socket.Socket.
func (s *Session) Receive(buf []byte) int {
	n, err := s.socket.TryReceive(buf)
	if err != nil && !s.peerClosed {
		s.peerClosed = true
		if errors.Is(err, io.EOF) {
			s.logger.Info("peer closed session")
		} else {
			s.logger.Warn("session receive failed", logger.Field{Key: "error", Value: err})
		}
	}

	return n
}

// SendString sends msg as raw UTF-8 with no terminator.
//
// Parameters:
//   - msg: The message to send
//
// Returns:
//   - The number of bytes written
//   - socket.ErrNotConnected after Disconnect, or the write error
func (s *Session) SendString(msg string) (int, error) {
	return s.Send(message.Encode(msg))
}

// ReceiveString reads once into a buffer of length bytes and decodes it up
// to the first NUL byte. length must exceed the largest expected message.
//
// Parameters:
//   - length: The receive buffer size
//
// Returns:
//   - The message, or "" when nothing arrived
func (s *Session) ReceiveString(length int) string {
	if length <= 0 {
		return ""
	}

	buf := make([]byte, length)
	n := s.Receive(buf)
	return message.Decode(buf[:n])
}

// Disconnect closes the connection. Safe to call repeatedly.
func (s *Session) Disconnect() error {
	if !s.socket.IsConnected() {
		return nil
	}

	s.logger.Debug("session released")
	return s.socket.Disconnect()
}
