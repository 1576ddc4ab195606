package udp

import (
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/musen/address"
	"github.com/cyberinferno/musen/socket"
)

func newTestListener(t *testing.T) *Listener {
	t.Helper()
	cfg := DefaultListenerConfig(0)
	cfg.IP = "127.0.0.1"
	cfg.Socket.PollTimeout = 50 * time.Millisecond

	l := NewListener(cfg)
	require.NoError(t, l.Connect())
	t.Cleanup(func() { _ = l.Disconnect() })
	require.NotZero(t, l.Address().Port)
	return l
}

func newTestBroadcaster(t *testing.T, target address.Address) *Broadcaster {
	t.Helper()
	b, err := NewBroadcaster(DefaultBroadcasterConfig(target))
	require.NoError(t, err)
	require.NoError(t, b.Connect())
	t.Cleanup(func() { _ = b.Disconnect() })
	return b
}

func receiveUntil(l *Listener, length int) string {
	for i := 0; i < 20; i++ {
		if msg := l.Receive(length); msg != "" {
			return msg
		}
	}
	return ""
}

func TestBroadcasterListener_Send(t *testing.T) {
	l := newTestListener(t)
	b := newTestBroadcaster(t, l.Address())

	t.Run("single message", func(t *testing.T) {
		n, err := b.Send("Hello World! 0")
		require.NoError(t, err)
		assert.Equal(t, len("Hello World! 0"), n)
		assert.Equal(t, "Hello World! 0", receiveUntil(l, 32))
	})

	t.Run("batch is joined with delimiter", func(t *testing.T) {
		n, err := b.SendStrings([]string{"a", "b", "c"}, ",")
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "a,b,c", receiveUntil(l, 32))
	})

	t.Run("batch round trips through ReceiveStrings", func(t *testing.T) {
		_, err := b.SendStrings([]string{"x", "y"}, ";")
		require.NoError(t, err)

		var got []string
		for i := 0; i < 20 && got == nil; i++ {
			got = l.ReceiveStrings(32, ";")
		}
		assert.Equal(t, []string{"x", "y"}, got)
	})

	t.Run("message longer than buffer is truncated", func(t *testing.T) {
		_, err := b.Send("0123456789")
		require.NoError(t, err)
		assert.Equal(t, "0123", receiveUntil(l, 4))
	})

	t.Run("message stops at embedded null byte", func(t *testing.T) {
		_, err := b.SendRaw([]byte{'o', 'k', 0, 'x'})
		require.NoError(t, err)
		assert.Equal(t, "ok", receiveUntil(l, 32))
	})

	t.Run("send to explicit address", func(t *testing.T) {
		_, err := b.SendTo(l.Address(), "direct")
		require.NoError(t, err)
		assert.Equal(t, "direct", receiveUntil(l, 32))
	})
}

func TestListener_ReceiveNothing(t *testing.T) {
	t.Run("unbound listener", func(t *testing.T) {
		l := NewListener(DefaultListenerConfig(0))
		assert.False(t, l.IsConnected())
		assert.Equal(t, "", l.Receive(32))
	})

	t.Run("bound listener with nothing pending", func(t *testing.T) {
		l := newTestListener(t)
		assert.Equal(t, "", l.Receive(32))
		assert.Nil(t, l.ReceiveStrings(32, ","))
	})

	t.Run("non-positive length", func(t *testing.T) {
		l := newTestListener(t)
		assert.Equal(t, "", l.Receive(0))
		assert.Equal(t, "", l.Receive(-1))
	})
}

func TestListener_RecentSenders(t *testing.T) {
	l := newTestListener(t)
	b := newTestBroadcaster(t, l.Address())

	assert.Empty(t, l.RecentSenders())

	_, err := b.Send("hi")
	require.NoError(t, err)

	var from address.Address
	var ok bool
	for i := 0; i < 20 && !ok; i++ {
		_, from, ok = l.ReceiveFrom(32)
	}
	require.True(t, ok)

	senders := l.RecentSenders()
	require.Len(t, senders, 1)
	assert.Equal(t, from, senders[0])
	assert.Equal(t, "127.0.0.1", senders[0].IP)
}

func TestListener_Bind(t *testing.T) {
	t.Run("reuse port lets two listeners share a port", func(t *testing.T) {
		first := newTestListener(t)

		cfg := DefaultListenerConfig(first.Address().Port)
		cfg.IP = "127.0.0.1"
		second := NewListener(cfg)
		require.NoError(t, second.Connect())
		assert.NoError(t, second.Disconnect())
	})

	t.Run("exclusive listener conflicts", func(t *testing.T) {
		cfg := DefaultListenerConfig(0)
		cfg.IP = "127.0.0.1"
		cfg.Socket.ReusePort = false
		first := NewListener(cfg)
		require.NoError(t, first.Connect())
		defer first.Disconnect()

		cfg.Port = first.Address().Port
		second := NewListener(cfg)
		err := second.Connect()
		require.Error(t, err)
		assert.True(t, errors.Is(err, syscall.EADDRINUSE), "got %v", err)
	})

	t.Run("disconnect is idempotent", func(t *testing.T) {
		l := newTestListener(t)
		assert.NoError(t, l.Disconnect())
		assert.NoError(t, l.Disconnect())
		assert.False(t, l.IsConnected())
	})
}

func TestBroadcaster_Targets(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		b, err := NewBroadcaster(DefaultBroadcasterConfig(address.New("127.0.0.1", 9)))
		require.NoError(t, err)
		_, err = b.Send("x")
		assert.ErrorIs(t, err, socket.ErrNotConnected)
	})

	t.Run("no target", func(t *testing.T) {
		b := newTestBroadcaster(t, address.New("", 9))
		_, err := b.Send("x")
		assert.ErrorIs(t, err, socket.ErrNoTarget)
	})

	t.Run("add and remove hosts", func(t *testing.T) {
		b, err := NewBroadcaster(DefaultBroadcasterConfig(address.New("127.0.0.1", 9)))
		require.NoError(t, err)
		require.NoError(t, b.AddTargetHost("127.0.0.2"))
		assert.Error(t, b.AddTargetHost("robot.local"))
		assert.Equal(t, []string{"127.0.0.1", "127.0.0.2"}, b.TargetHosts())

		b.RemoveTargetHost("127.0.0.1")
		assert.Equal(t, []string{"127.0.0.2"}, b.TargetHosts())
		assert.Equal(t, uint16(9), b.Port())
	})

	t.Run("ipv6 hosts are rejected", func(t *testing.T) {
		b := newTestBroadcaster(t, address.New("127.0.0.1", 9))
		assert.Error(t, b.AddTargetHost("::1"))
		assert.Error(t, b.AddTargetHost("fe80::1"))
		assert.Equal(t, []string{"127.0.0.1"}, b.TargetHosts())

		require.NoError(t, b.AddTargetHost("::ffff:127.0.0.2"))
		assert.Equal(t, []string{"127.0.0.1", "127.0.0.2"}, b.TargetHosts())
		b.RemoveTargetHost("::ffff:127.0.0.2")
		assert.Equal(t, []string{"127.0.0.1"}, b.TargetHosts())

		b.RemoveTargetHost("127.0.0.1")
		_, err := b.Send("x")
		assert.ErrorIs(t, err, socket.ErrNoTarget)
	})

	t.Run("ipv6 config target fails construction", func(t *testing.T) {
		b, err := NewBroadcaster(DefaultBroadcasterConfig(address.New("::1", 9)))
		assert.Error(t, err)
		assert.Nil(t, b)
	})

	t.Run("duplicate target host is sent once", func(t *testing.T) {
		l := newTestListener(t)

		b := newTestBroadcaster(t, l.Address())
		require.NoError(t, b.AddTargetHost("127.0.0.1"))

		n, err := b.Send("fan")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, "fan", receiveUntil(l, 32))
	})

	t.Run("disconnect is idempotent", func(t *testing.T) {
		b := newTestBroadcaster(t, address.New("127.0.0.1", 9))
		assert.True(t, b.IsConnected())
		assert.NoError(t, b.Disconnect())
		assert.NoError(t, b.Disconnect())
		assert.False(t, b.IsConnected())
	})
}
