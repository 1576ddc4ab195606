// Package socket wraps OS datagram and stream sockets behind a small
// connect/bind/disconnect/send/receive contract. Each wrapper owns exactly
// one OS handle; handles are never shared between wrappers and releasing one
// is idempotent.
//
// Receive operations are single attempts bounded by Config.PollTimeout. They
// report "no data yet" and "receive error" alike as zero bytes, so callers
// treat zero as "try again later". UDPSocket.ReceiveFrom and
// TCPSocket.TryReceive expose the distinction where it is needed.
//
// Wrappers are not safe for concurrent use; callers serialize access to a
// handle themselves.
package socket

import (
	"errors"
	"os"
	"time"
)

var (
	ErrNotConnected     = errors.New("socket: not connected")
	ErrAlreadyConnected = errors.New("socket: already connected")
	ErrNotListening     = errors.New("socket: not listening")
	ErrNoTarget         = errors.New("socket: no target address")
)

// Socket is the behavior shared by UDPSocket and TCPSocket.
type Socket interface {
	// Connect opens the socket. For UDP this creates an unbound datagram
	// handle; for TCP it dials the remembered remote address and blocks
	// until the OS connect completes or fails.
	Connect() error

	// Disconnect releases the OS handle. Calling it on a socket that is
	// already disconnected is a no-op that returns nil.
	Disconnect() error

	// Send transmits data in a single call and returns the bytes written.
	Send(data []byte) (int, error)

	// Receive performs at most one read into buf and returns the number of
	// bytes read. It returns 0 without touching the OS when the socket is
	// not connected or buf is empty, and 0 when nothing arrived or the read
	// failed.
	Receive(buf []byte) int

	// IsConnected reports whether the socket currently owns an open handle
	// in a usable state.
	IsConnected() bool
}

// Config holds socket options applied when a handle is opened.
type Config struct {
	// ReuseAddr sets SO_REUSEADDR on TCP listeners so a restarted server can
	// rebind while old connections linger. A live listener still holds its
	// address exclusively. Datagram sockets ignore it: on UDP it would let
	// two sockets share a unicast port.
	ReuseAddr bool
	// ReusePort sets SO_REUSEPORT, letting several sockets bind the same
	// address at once.
	ReusePort bool
	// Broadcast sets SO_BROADCAST on datagram handles.
	Broadcast bool
	// PollTimeout bounds each receive and accept attempt.
	PollTimeout time.Duration
	// DialTimeout bounds a TCP connect; 0 leaves it to the OS.
	DialTimeout time.Duration
	// WriteTimeout bounds a single send; 0 means no deadline.
	WriteTimeout time.Duration
}

// DefaultPollTimeout is used when Config.PollTimeout is not positive.
const DefaultPollTimeout = time.Millisecond

// DefaultConfig returns a Config with ReuseAddr enabled, a 1ms poll timeout,
// a 10s dial timeout and no write deadline.
func DefaultConfig() Config {
	return Config{
		ReuseAddr:   true,
		PollTimeout: DefaultPollTimeout,
		DialTimeout: 10 * time.Second,
	}
}

func (c Config) pollTimeout() time.Duration {
	if c.PollTimeout <= 0 {
		return DefaultPollTimeout
	}

	return c.PollTimeout
}

func pollDeadline(c Config) time.Time {
	return time.Now().Add(c.pollTimeout())
}

func writeDeadline(c Config) time.Time {
	if c.WriteTimeout <= 0 {
		return time.Time{}
	}

	return time.Now().Add(c.WriteTimeout)
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
