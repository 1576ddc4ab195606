// Package udp provides connectionless string messaging: a Broadcaster that
// sends strings (or delimiter-joined batches of strings) as single
// datagrams, and a Listener that binds a port and receives them from any
// sender.
//
// There is no framing beyond the datagram itself. A message longer than the
// Listener's receive length, or than the path MTU, is truncated or lost.
package udp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync/atomic"

	"github.com/cyberinferno/musen/address"
	"github.com/cyberinferno/musen/logger"
	"github.com/cyberinferno/musen/message"
	"github.com/cyberinferno/musen/safeset"
	"github.com/cyberinferno/musen/socket"
)

// BroadcasterConfig holds configuration for a Broadcaster.
type BroadcasterConfig struct {
	// Target is the default destination; its IP, if set, must be IPv4.
	// Additional hosts added with AddTargetHost share its port.
	Target address.Address
	// Broadcast also sends every message to the directed broadcast address
	// of each IPv4 interface.
	Broadcast bool
	// Socket holds the underlying socket options.
	Socket socket.Config
	// Logger receives lifecycle and failure events; nil disables logging.
	Logger logger.Logger
}

// DefaultBroadcasterConfig returns a BroadcasterConfig sending to target with
// default socket options and broadcasting disabled.
func DefaultBroadcasterConfig(target address.Address) BroadcasterConfig {
	return BroadcasterConfig{
		Target: target,
		Socket: socket.DefaultConfig(),
	}
}

// Broadcaster sends string messages over a UDP socket to a set of IPv4
// target hosts on a fixed port. The target set may be changed from other
// goroutines; sends themselves must not run concurrently.
type Broadcaster struct {
	socket    *socket.UDPSocket
	port      uint16
	logger    logger.Logger
	broadcast atomic.Bool
	hosts     *safeset.SafeSet[string]
}

// NewBroadcaster creates a Broadcaster. Call Connect before sending.
//
// Parameters:
//   - config: Target address and options (e.g. from DefaultBroadcasterConfig)
//
// Returns:
//   - A new, disconnected *Broadcaster
//   - An error if Target.IP is set but is not a literal IPv4 address
func NewBroadcaster(config BroadcasterConfig) (*Broadcaster, error) {
	sockCfg := config.Socket
	// EnableBroadcast may be toggled after Connect.
	sockCfg.Broadcast = true

	b := &Broadcaster{
		socket: socket.NewUDPSocket(sockCfg),
		port:   config.Target.Port,
		logger: logger.OrNop(config.Logger).With(logger.Field{Key: "component", Value: "broadcaster"}),
		hosts:  safeset.NewSafeSet[string](),
	}
	b.broadcast.Store(config.Broadcast)

	if config.Target.IP != "" {
		if err := b.AddTargetHost(config.Target.IP); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Connect opens the underlying datagram socket.
func (b *Broadcaster) Connect() error {
	if err := b.socket.Connect(); err != nil {
		b.logger.Error("broadcaster connect failed", logger.Field{Key: "error", Value: err})
		return err
	}

	b.logger.Debug("broadcaster connected", logger.Field{Key: "port", Value: b.port})
	return nil
}

// Disconnect releases the underlying socket. Safe to call repeatedly.
func (b *Broadcaster) Disconnect() error {
	return b.socket.Disconnect()
}

// IsConnected reports whether the underlying socket is open.
func (b *Broadcaster) IsConnected() bool {
	return b.socket.IsConnected()
}

// Port returns the destination port shared by all target hosts.
func (b *Broadcaster) Port() uint16 {
	return b.port
}

// AddTargetHost adds a literal IPv4 address to the set of hosts every
// message is sent to. The datagram handle is IPv4, so IPv6 hosts are
// rejected.
//
// Parameters:
//   - ip: A literal IPv4 address, e.g. "192.168.1.20"
//
// Returns:
//   - An error if ip is not a literal IPv4 address
func (b *Broadcaster) AddTargetHost(ip string) error {
	host, ok := ipv4Host(ip)
	if !ok {
		return fmt.Errorf("broadcaster: invalid target host %q: not an IPv4 address", ip)
	}

	b.hosts.Add(host)
	return nil
}

// RemoveTargetHost removes ip from the target set.
func (b *Broadcaster) RemoveTargetHost(ip string) {
	if host, ok := ipv4Host(ip); ok {
		b.hosts.Remove(host)
	}
}

// ipv4Host returns ip in dotted-quad form; IPv4-mapped IPv6 is unmapped.
func ipv4Host(ip string) (string, bool) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Unmap().Is4() {
		return "", false
	}

	return addr.Unmap().String(), true
}

// TargetHosts returns the explicit target hosts in sorted order.
func (b *Broadcaster) TargetHosts() []string {
	return b.hosts.Sorted()
}

// EnableBroadcast toggles sending to interface broadcast addresses in
// addition to the explicit target hosts.
func (b *Broadcaster) EnableBroadcast(enable bool) {
	b.broadcast.Store(enable)
}

// Send transmits msg as one datagram to every target.
//
// Parameters:
//   - msg: The string to send, encoded as raw UTF-8
//
// Returns:
//   - The total number of bytes sent across targets
//   - An error joining every per-target failure, if any
func (b *Broadcaster) Send(msg string) (int, error) {
	return b.SendRaw(message.Encode(msg))
}

// SendStrings joins messages with delimiter and sends the result as one
// datagram to every target. An empty delimiter means
// message.DefaultDelimiter.
//
// Parameters:
//   - messages: The messages to batch
//   - delimiter: The separator placed between messages
//
// Returns:
//   - The total number of bytes sent across targets
//   - An error joining every per-target failure, if any
func (b *Broadcaster) SendStrings(messages []string, delimiter string) (int, error) {
	return b.Send(message.Join(messages, delimiter))
}

// SendTo transmits msg as one datagram to addr only, regardless of the
// target set.
func (b *Broadcaster) SendTo(addr address.Address, msg string) (int, error) {
	return b.socket.SendTo(addr, message.Encode(msg))
}

// SendRaw transmits data as one datagram to every target.
func (b *Broadcaster) SendRaw(data []byte) (int, error) {
	if !b.socket.IsConnected() {
		return 0, socket.ErrNotConnected
	}

	targets := b.targets()
	if len(targets) == 0 {
		return 0, socket.ErrNoTarget
	}

	var (
		total int
		errs  []error
	)
	for _, target := range targets {
		n, err := b.socket.SendTo(target, data)
		if err != nil {
			b.logger.Warn("broadcaster send failed",
				logger.Field{Key: "target", Value: target.String()},
				logger.Field{Key: "error", Value: err})
			errs = append(errs, err)
			continue
		}

		total += n
	}

	return total, errors.Join(errs...)
}

func (b *Broadcaster) targets() []address.Address {
	hosts := b.TargetHosts()

	if b.broadcast.Load() {
		for _, ip := range broadcastAddresses() {
			if !slices.Contains(hosts, ip) {
				hosts = append(hosts, ip)
			}
		}
	}

	targets := make([]address.Address, 0, len(hosts))
	for _, h := range hosts {
		targets = append(targets, address.New(h, b.port))
	}

	return targets
}

// broadcastAddresses returns the directed broadcast address of every up,
// broadcast-capable IPv4 interface.
func broadcastAddresses() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagBroadcast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}

			ip4 := ipnet.IP.To4()
			if ip4 == nil || len(ipnet.Mask) != net.IPv4len {
				continue
			}

			bcast := make(net.IP, net.IPv4len)
			for i := range ip4 {
				bcast[i] = ip4[i] | ^ipnet.Mask[i]
			}

			out = append(out, bcast.String())
		}
	}

	return out
}
