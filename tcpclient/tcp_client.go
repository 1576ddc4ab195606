// Package tcpclient provides the client side of a musen TCP session: a
// connection to a tcpserver.Server exchanging fixed-buffer string messages.
// There is no automatic reconnection; a Client whose connection is lost is
// disconnected and replaced by the caller.
package tcpclient

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cyberinferno/musen/address"
	"github.com/cyberinferno/musen/logger"
	"github.com/cyberinferno/musen/message"
	"github.com/cyberinferno/musen/socket"
)

// ConnectionState represents the current state of the client connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Released, or the peer went away
	Connected                           // Connected to the server
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Config holds configuration for a Client.
type Config struct {
	// Address is the server to connect to.
	Address address.Address
	// ConnectionTimeout is the max duration for establishing the connection.
	ConnectionTimeout time.Duration
	// PollTimeout bounds each receive attempt.
	PollTimeout time.Duration
	// WriteTimeout is the max duration for a single write; 0 means no timeout.
	WriteTimeout time.Duration
	// Logger receives lifecycle and failure events; nil disables logging.
	Logger logger.Logger
}

// DefaultConfig returns a Config for the given server address.
//
// Parameters:
//   - addr: The server address
//
// Returns:
//   - A Config with defaults: ConnectionTimeout 10s, PollTimeout 1ms,
//     WriteTimeout 10s.
func DefaultConfig(addr address.Address) Config {
	return Config{
		Address:           addr,
		ConnectionTimeout: 10 * time.Second,
		PollTimeout:       socket.DefaultPollTimeout,
		WriteTimeout:      10 * time.Second,
	}
}

// Client is a connected TCP socket talking to a Server. It is not safe for
// concurrent use.
type Client struct {
	config     Config
	socket     *socket.TCPSocket
	logger     logger.Logger
	peerClosed bool
}

// NewClient connects to config.Address and blocks until the connection is
// established or fails. No Client is returned on failure.
//
// Parameters:
//   - config: Server address and timeouts (e.g. from DefaultConfig)
//
// Returns:
//   - The connected *Client
//   - An error wrapping the OS error (e.g. syscall.ECONNREFUSED) on failure
func NewClient(config Config) (*Client, error) {
	log := logger.OrNop(config.Logger).With(logger.Field{Key: "server", Value: config.Address.String()})

	sockCfg := socket.DefaultConfig()
	sockCfg.DialTimeout = config.ConnectionTimeout
	sockCfg.PollTimeout = config.PollTimeout
	sockCfg.WriteTimeout = config.WriteTimeout

	s := socket.NewTCPSocket(sockCfg)
	if err := s.ConnectTo(config.Address); err != nil {
		log.Error("client failed to connect", logger.Field{Key: "error", Value: err})
		return nil, fmt.Errorf("client connect: %w", err)
	}

	log.Info("client connected")
	return &Client{
		config: config,
		socket: s,
		logger: log,
	}, nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	if c.IsConnected() {
		return Connected
	}

	return Disconnected
}

// IsConnected reports whether the client holds an open connection that the
// server has not closed.
func (c *Client) IsConnected() bool {
	return c.socket.IsConnected() && !c.peerClosed
}

// Address returns the server address.
func (c *Client) Address() address.Address {
	return c.config.Address
}

// Send writes data to the server in one call.
func (c *Client) Send(data []byte) (int, error) {
	return c.socket.Send(data)
}

// Receive performs one read into buf. See socket.Socket.
func (c *Client) Receive(buf []byte) int {
	n, err := c.socket.TryReceive(buf)
	if err != nil && !c.peerClosed {
		c.peerClosed = true
		if errors.Is(err, io.EOF) {
			c.logger.Info("server closed connection")
		} else {
			c.logger.Warn("client receive failed", logger.Field{Key: "error", Value: err})
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
func (c *Client) SendString(msg string) (int, error) {
	return c.Send(message.Encode(msg))
}

// ReceiveString reads once into a buffer of length bytes and decodes it up
// to the first NUL byte. length must exceed the largest expected message.
//
// Parameters:
//   - length: The receive buffer size
//
// Returns:
//   - The message, or "" when nothing arrived
func (c *Client) ReceiveString(length int) string {
	if length <= 0 {
		return ""
	}

	buf := make([]byte, length)
	n := c.Receive(buf)
	return message.Decode(buf[:n])
}

// Disconnect closes the connection. Safe to call when already disconnected;
// returns nil in that case.
func (c *Client) Disconnect() error {
	if !c.socket.IsConnected() {
		return nil
	}

	err := c.socket.Disconnect()
	c.logger.Info("client disconnected")
	return err
}
