// Package config loads the musen command configuration from a YAML file and
// converts it into the library configs of each component.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cyberinferno/musen/address"
	"github.com/cyberinferno/musen/logger"
	"github.com/cyberinferno/musen/message"
	"github.com/cyberinferno/musen/tcpclient"
	"github.com/cyberinferno/musen/tcpserver"
	"github.com/cyberinferno/musen/udp"
)

// Config holds the musen command configuration.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Server   ServerConfig `yaml:"server"`
	Client   ClientConfig `yaml:"client"`
	UDP      UDPConfig    `yaml:"udp"`
}

// ServerConfig configures the TCP echo server.
type ServerConfig struct {
	Name         string        `yaml:"name"`
	IP           string        `yaml:"ip"`
	Port         uint16        `yaml:"port"`
	BufferLength int           `yaml:"buffer_length"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
}

// ClientConfig configures the TCP client.
type ClientConfig struct {
	IP                string        `yaml:"ip"`
	Port              uint16        `yaml:"port"`
	BufferLength      int           `yaml:"buffer_length"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	PollTimeout       time.Duration `yaml:"poll_timeout"`
	// Rounds bounds how many receive attempts wait for each reply.
	Rounds int `yaml:"rounds"`
}

// UDPConfig configures the broadcaster and the listener. Both use Port.
type UDPConfig struct {
	IP           string        `yaml:"ip"`
	Port         uint16        `yaml:"port"`
	Hosts        []string      `yaml:"hosts"`
	Broadcast    bool          `yaml:"broadcast"`
	Delimiter    string        `yaml:"delimiter"`
	BufferLength int           `yaml:"buffer_length"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	SenderTTL    time.Duration `yaml:"sender_ttl"`
}

// DefaultPath returns the default config file path: ~/.musen/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".musen", "config.yaml")
	}
	return filepath.Join(home, ".musen", "config.yaml")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Name:         "musen",
			Port:         5000,
			BufferLength: 1024,
			PollTimeout:  time.Millisecond,
		},
		Client: ClientConfig{
			IP:                "127.0.0.1",
			Port:              5000,
			BufferLength:      1024,
			ConnectionTimeout: 10 * time.Second,
			PollTimeout:       100 * time.Millisecond,
			Rounds:            30,
		},
		UDP: UDPConfig{
			Port:         5001,
			Hosts:        []string{"127.0.0.1"},
			Delimiter:    message.DefaultDelimiter,
			BufferLength: 1024,
			PollTimeout:  100 * time.Millisecond,
			SenderTTL:    time.Minute,
		},
	}
}

// Load reads the configuration from the given YAML file path. Keys missing
// from the file keep their defaults. If the file does not exist, it returns
// the default Config with no error.
//
// Parameters:
//   - path: The YAML file to read
//
// Returns:
//   - The loaded *Config
//   - An error if the file cannot be read, parsed or fails validation
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that addresses are literal IPs, UDP hosts are IPv4 and
// buffer sizes are usable. Every problem found is reported in the joined
// error.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	for key, ip := range map[string]string{
		"server.ip": c.Server.IP,
		"client.ip": c.Client.IP,
		"udp.ip":    c.UDP.IP,
	} {
		if err := checkIP(ip); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	for _, host := range c.UDP.Hosts {
		if host == "" {
			errs = append(errs, errors.New("udp.hosts: empty host"))
			continue
		}
		addr, err := netip.ParseAddr(host)
		if err != nil {
			errs = append(errs, fmt.Errorf("udp.hosts: %w", err))
			continue
		}
		if !addr.Unmap().Is4() {
			errs = append(errs, fmt.Errorf("udp.hosts: %s is not an IPv4 address", host))
		}
	}

	for key, n := range map[string]int{
		"server.buffer_length": c.Server.BufferLength,
		"client.buffer_length": c.Client.BufferLength,
		"udp.buffer_length":    c.UDP.BufferLength,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, n))
		}
	}

	if c.Client.Port == 0 {
		errs = append(errs, errors.New("client.port must be set"))
	}

	return errors.Join(errs...)
}

func checkIP(ip string) error {
	if ip == "" {
		return nil
	}
	if _, err := netip.ParseAddr(ip); err != nil {
		return err
	}
	return nil
}

// TCPServer returns the tcpserver.Config for this server section.
func (s ServerConfig) TCPServer(log logger.Logger) tcpserver.Config {
	cfg := tcpserver.DefaultConfig(s.Port)
	if s.Name != "" {
		cfg.Name = s.Name
	}
	cfg.Address = address.New(s.IP, s.Port)
	if s.PollTimeout > 0 {
		cfg.Socket.PollTimeout = s.PollTimeout
	}
	cfg.Logger = log
	return cfg
}

// TCPClient returns the tcpclient.Config for this client section.
func (c ClientConfig) TCPClient(log logger.Logger) tcpclient.Config {
	cfg := tcpclient.DefaultConfig(address.New(c.IP, c.Port))
	if c.ConnectionTimeout > 0 {
		cfg.ConnectionTimeout = c.ConnectionTimeout
	}
	if c.PollTimeout > 0 {
		cfg.PollTimeout = c.PollTimeout
	}
	cfg.Logger = log
	return cfg
}

// Broadcaster returns the udp.BroadcasterConfig for this section. The first
// host is the target; the others are added by the caller with
// udp.Broadcaster.AddTargetHost.
func (u UDPConfig) Broadcaster(log logger.Logger) udp.BroadcasterConfig {
	var ip string
	if len(u.Hosts) > 0 {
		ip = u.Hosts[0]
	}

	cfg := udp.DefaultBroadcasterConfig(address.New(ip, u.Port))
	cfg.Broadcast = u.Broadcast
	cfg.Logger = log
	return cfg
}

// Listener returns the udp.ListenerConfig for this section.
func (u UDPConfig) Listener(log logger.Logger) udp.ListenerConfig {
	cfg := udp.DefaultListenerConfig(u.Port)
	cfg.IP = u.IP
	if u.SenderTTL > 0 {
		cfg.SenderTTL = u.SenderTTL
	}
	if u.PollTimeout > 0 {
		cfg.Socket.PollTimeout = u.PollTimeout
	}
	cfg.Logger = log
	return cfg
}
