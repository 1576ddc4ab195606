// Package address provides the endpoint value type shared by the UDP and TCP
// layers. Addresses are literal: no DNS resolution is ever performed.
package address

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// Address identifies a socket endpoint by literal IP and port. The zero
// value's empty IP means the unspecified IPv4 address (0.0.0.0).
type Address struct {
	IP   string
	Port uint16
}

// New returns an Address for the given ip and port.
//
// Parameters:
//   - ip: A literal IPv4 or IPv6 address, or "" for any
//   - port: The port number; 0 asks the OS for an ephemeral port on bind
//
// Returns:
//   - The Address value
func New(ip string, port uint16) Address {
	return Address{IP: ip, Port: port}
}

// Parse parses an "ip:port" string. The host part must be a literal address
// or empty.
//
// Parameters:
//   - s: The string to parse (e.g. "127.0.0.1:5000", "[::1]:80", ":9000")
//
// Returns:
//   - The parsed Address
//   - An error if the string is malformed or the host is not a literal IP
func Parse(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: invalid port: %w", s, err)
	}

	if host != "" {
		if _, err := netip.ParseAddr(host); err != nil {
			return Address{}, fmt.Errorf("parse address %q: %w", s, err)
		}
	}

	return Address{IP: host, Port: uint16(port)}, nil
}

// FromNetAddr converts a *net.UDPAddr or *net.TCPAddr into an Address. Any
// other net.Addr yields the zero Address.
func FromNetAddr(a net.Addr) Address {
	switch v := a.(type) {
	case *net.UDPAddr:
		return fromAddrPort(v.AddrPort())
	case *net.TCPAddr:
		return fromAddrPort(v.AddrPort())
	default:
		return Address{}
	}
}

func fromAddrPort(ap netip.AddrPort) Address {
	return Address{IP: ap.Addr().Unmap().String(), Port: ap.Port()}
}

// AddrPort converts the Address into a netip.AddrPort without resolving names.
//
// Returns:
//   - The netip.AddrPort
//   - An error if IP is not a literal address
func (a Address) AddrPort() (netip.AddrPort, error) {
	if a.IP == "" {
		return netip.AddrPortFrom(netip.IPv4Unspecified(), a.Port), nil
	}

	ip, err := netip.ParseAddr(a.IP)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("address %s: %w", a, err)
	}

	return netip.AddrPortFrom(ip, a.Port), nil
}

// String returns the address in "ip:port" form.
func (a Address) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(int(a.Port)))
}
