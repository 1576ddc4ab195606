package udp

import (
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cyberinferno/musen/address"
	"github.com/cyberinferno/musen/logger"
	"github.com/cyberinferno/musen/message"
	"github.com/cyberinferno/musen/socket"
)

// ListenerConfig holds configuration for a Listener.
type ListenerConfig struct {
	// IP is the local address to bind; "" binds all IPv4 interfaces.
	IP string
	// Port is the port to bind; 0 picks an ephemeral port.
	Port uint16
	// SenderTTL is how long a sender stays in RecentSenders after its last
	// datagram.
	SenderTTL time.Duration
	// Socket holds the underlying socket options.
	Socket socket.Config
	// Logger receives lifecycle and failure events; nil disables logging.
	Logger logger.Logger
}

// DefaultListenerConfig returns a ListenerConfig binding all interfaces on
// port with SO_REUSEPORT enabled, so several listeners on one host can share
// the port.
func DefaultListenerConfig(port uint16) ListenerConfig {
	sockCfg := socket.DefaultConfig()
	sockCfg.ReusePort = true

	return ListenerConfig{
		Port:      port,
		SenderTTL: time.Minute,
		Socket:    sockCfg,
	}
}

// Listener binds a UDP port and receives string messages from any sender.
// It is not safe for concurrent use.
type Listener struct {
	socket  *socket.UDPSocket
	addr    address.Address
	logger  logger.Logger
	senders *cache.Cache
}

// NewListener creates a Listener. Call Connect to bind.
//
// Parameters:
//   - config: Bind address and options (e.g. from DefaultListenerConfig)
//
// Returns:
//   - A new, unbound *Listener
func NewListener(config ListenerConfig) *Listener {
	ttl := config.SenderTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Listener{
		socket:  socket.NewUDPSocket(config.Socket),
		addr:    address.New(config.IP, config.Port),
		logger:  logger.OrNop(config.Logger).With(logger.Field{Key: "component", Value: "listener"}),
		senders: cache.New(ttl, 2*ttl),
	}
}

// Connect binds the configured address.
//
// Returns:
//   - An error wrapping the OS error (e.g. syscall.EADDRINUSE) on failure
func (l *Listener) Connect() error {
	if err := l.socket.Bind(l.addr); err != nil {
		l.logger.Error("listener bind failed", logger.Field{Key: "error", Value: err})
		return err
	}

	bound, _ := l.socket.BoundAddress()
	l.logger.Info("listener bound", logger.Field{Key: "addr", Value: bound.String()})
	return nil
}

// Disconnect releases the socket. Safe to call repeatedly.
func (l *Listener) Disconnect() error {
	return l.socket.Disconnect()
}

// IsConnected reports whether the listener is bound.
func (l *Listener) IsConnected() bool {
	return l.socket.IsConnected()
}

// Address returns the bound address with an ephemeral port resolved, or
// the configured address when not bound.
func (l *Listener) Address() address.Address {
	if bound, ok := l.socket.BoundAddress(); ok {
		return bound
	}

	return l.addr
}

// Receive reads one datagram into a buffer of length bytes and decodes it up
// to the first NUL byte. length must exceed the largest expected message or
// the message is silently truncated.
//
// Parameters:
//   - length: The receive buffer size
//
// Returns:
//   - The message, or "" when nothing arrived
func (l *Listener) Receive(length int) string {
	msg, _, _ := l.ReceiveFrom(length)
	return msg
}

// ReceiveStrings receives one datagram and splits it on delimiter, undoing
// Broadcaster.SendStrings.
//
// Returns:
//   - The messages, or nil when nothing arrived
func (l *Listener) ReceiveStrings(length int, delimiter string) []string {
	return message.Split(l.Receive(length), delimiter)
}

// ReceiveFrom is Receive that also reports the sender.
//
// Returns:
//   - The message
//   - The sender address
//   - true if a datagram was received
func (l *Listener) ReceiveFrom(length int) (string, address.Address, bool) {
	if length <= 0 {
		return "", address.Address{}, false
	}

	buf := make([]byte, length)
	n, from, err := l.socket.ReceiveFrom(buf)
	if err != nil {
		l.logger.Debug("listener receive failed", logger.Field{Key: "error", Value: err})
	}

	if n <= 0 {
		return "", address.Address{}, false
	}

	l.senders.SetDefault(from.String(), from)
	return message.Decode(buf[:n]), from, true
}

// RecentSenders lists the senders seen within the configured SenderTTL,
// ordered by address string.
func (l *Listener) RecentSenders() []address.Address {
	items := l.senders.Items()
	out := make([]address.Address, 0, len(items))
	for _, item := range items {
		if a, ok := item.Object.(address.Address); ok {
			out = append(out, a)
		}
	}

	slices.SortFunc(out, func(a, b address.Address) int {
		return strings.Compare(a.String(), b.String())
	})

	return out
}
