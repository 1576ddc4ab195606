// Package tcpserver provides a TCP server that admits connections one at a
// time without blocking, wrapping each in a Session. The server does not keep
// track of its sessions: the caller owns them, usually in a Pool, and decides
// when to service, prune and release them.
package tcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/cyberinferno/musen/address"
	"github.com/cyberinferno/musen/idgenerator"
	"github.com/cyberinferno/musen/logger"
	"github.com/cyberinferno/musen/socket"
)

// Config holds configuration for a Server.
type Config struct {
	// Name identifies the server in log entries.
	Name string
	// Address is the local address to listen on; port 0 picks an ephemeral
	// port, reported by Server.Address.
	Address address.Address
	// Socket holds options for the listener and every accepted session.
	Socket socket.Config
	// Logger receives lifecycle and failure events; nil disables logging.
	Logger logger.Logger
}

// DefaultConfig returns a Config listening on all IPv4 interfaces at port.
func DefaultConfig(port uint16) Config {
	return Config{
		Name:    "musen",
		Address: address.New("", port),
		Socket:  socket.DefaultConfig(),
	}
}

// Server owns one listening TCP socket. It is created listening and stays
// listening until Close.
type Server struct {
	name     string
	logger   logger.Logger
	listener *socket.TCPSocket
	addr     address.Address
	ids      *idgenerator.IdGenerator
}

// NewServer binds and listens on config.Address. If binding or listening
// fails no Server is returned.
//
// Parameters:
//   - config: Listen address and options (e.g. from DefaultConfig)
//
// Returns:
//   - The listening *Server
//   - An error wrapping the OS error (e.g. syscall.EADDRINUSE) on failure
func NewServer(config Config) (*Server, error) {
	log := logger.OrNop(config.Logger).With(logger.Field{Key: "server", Value: config.Name})

	ln := socket.NewTCPSocket(config.Socket)
	if err := ln.Listen(config.Address); err != nil {
		log.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return nil, fmt.Errorf("server %s failed to start: %w", config.Name, err)
	}

	s := &Server{
		name:     config.Name,
		logger:   log,
		listener: ln,
		addr:     address.New(config.Address.IP, ln.Port()),
		ids:      idgenerator.NewIdGenerator(0),
	}

	s.logger.Info(fmt.Sprintf("%s server started", s.name), logger.Field{Key: "addr", Value: s.addr.String()})
	return s, nil
}

// Address returns the address the server listens on, with an ephemeral port
// resolved.
func (s *Server) Address() address.Address {
	return s.addr
}

// IsListening reports whether the server has not been closed.
func (s *Server) IsListening() bool {
	return s.listener.IsConnected()
}

// Accept admits one pending connection as a new Session. It waits at most
// the socket poll timeout. The returned Session belongs to the caller.
//
// Returns:
//   - A new *Session, or nil when no connection was pending
//   - An error if the server is closed or the accept failed
func (s *Server) Accept() (*Session, error) {
	peer, err := s.listener.AcceptOne()
	if err != nil {
		return nil, fmt.Errorf("%s server accept: %w", s.name, err)
	}

	if peer == nil {
		return nil, nil
	}

	id := s.ids.Id()
	remote, _ := peer.RemoteAddress()
	session := newSession(id, peer, s.logger.With(
		logger.Field{Key: "session", Value: id},
		logger.Field{Key: "remote", Value: remote.String()},
	))

	session.logger.Info("session accepted")
	return session, nil
}

// Close releases the listening socket. Sessions already accepted stay open;
// they are released by their owner. Safe to call repeatedly.
func (s *Server) Close() error {
	if !s.listener.IsConnected() {
		return nil
	}

	err := s.listener.Disconnect()
	s.logger.Info(fmt.Sprintf("%s server stopped", s.name))
	return err
}

// HandlerFunc processes one message received on a session.
type HandlerFunc func(session *Session, msg string)

// EchoHandler sends every message back to the session it came from.
func EchoHandler(session *Session, msg string) {
	if _, err := session.SendString(msg); err != nil {
		session.logger.Warn("echo failed", logger.Field{Key: "error", Value: err})
	}
}

// Serve runs the accept and service loop until ctx is done: each iteration
// admits at most one new session into pool, then gives every session in pool
// one receive attempt of length bytes, passing non-empty messages to handler,
// and finally prunes sessions whose peer went away. pool stays owned by the
// caller and is not closed when Serve returns.
//
// Parameters:
//   - ctx: Stops the loop when done
//   - pool: The caller's session collection
//   - length: The receive buffer size per message
//   - handler: Called for each received message
//
// Returns:
//   - ctx.Err() once the context is done
func (s *Server) Serve(ctx context.Context, pool *Pool, length int, handler HandlerFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		session, err := s.Accept()
		if err != nil {
			if !s.IsListening() {
				return fmt.Errorf("%s server closed: %w", s.name, err)
			}

			s.logger.Error(fmt.Sprintf("%s server accept error", s.name), logger.Field{Key: "error", Value: err})
			time.Sleep(10 * time.Millisecond)
		}

		if session != nil {
			pool.Add(session)
		}

		for _, session := range pool.Sessions() {
			if msg := session.ReceiveString(length); msg != "" {
				handler(session, msg)
			}
		}

		if n := pool.Prune(); n > 0 {
			s.logger.Debug("pruned sessions", logger.Field{Key: "count", Value: n})
		}
	}
}
