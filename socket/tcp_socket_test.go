package socket

import (
	"errors"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/musen/address"
)

func listenLoopback(t *testing.T) (*TCPSocket, address.Address) {
	t.Helper()
	ln := NewTCPSocket(testConfig())
	require.NoError(t, ln.Listen(address.New("127.0.0.1", 0)))
	t.Cleanup(func() { _ = ln.Disconnect() })
	require.NotZero(t, ln.Port())
	return ln, address.New("127.0.0.1", ln.Port())
}

func acceptUntil(t *testing.T, ln *TCPSocket) *TCPSocket {
	t.Helper()
	for i := 0; i < 20; i++ {
		peer, err := ln.AcceptOne()
		require.NoError(t, err)
		if peer != nil {
			return peer
		}
	}
	t.Fatal("no connection accepted")
	return nil
}

func TestRole_String(t *testing.T) {
	assert.Equal(t, "Unconnected", RoleUnconnected.String())
	assert.Equal(t, "Listening", RoleListening.String())
	assert.Equal(t, "Connected", RoleConnected.String())
	assert.Equal(t, "Unknown", Role(42).String())
}

func TestTCPSocket_Listen(t *testing.T) {
	t.Run("listening socket is connected", func(t *testing.T) {
		ln, _ := listenLoopback(t)
		assert.True(t, ln.IsConnected())
		assert.Equal(t, RoleListening, ln.Role())
	})

	t.Run("second listener on same address fails with address in use", func(t *testing.T) {
		_, addr := listenLoopback(t)

		other := NewTCPSocket(testConfig())
		err := other.Listen(addr)
		require.Error(t, err)
		assert.True(t, errors.Is(err, syscall.EADDRINUSE), "got %v", err)
		assert.False(t, other.IsConnected())
	})

	t.Run("rebind after release succeeds", func(t *testing.T) {
		ln := NewTCPSocket(testConfig())
		require.NoError(t, ln.Listen(address.New("127.0.0.1", 0)))
		addr := address.New("127.0.0.1", ln.Port())
		require.NoError(t, ln.Disconnect())

		again := NewTCPSocket(testConfig())
		require.NoError(t, again.Listen(addr))
		assert.NoError(t, again.Disconnect())
	})

	t.Run("listen twice on one socket", func(t *testing.T) {
		ln, _ := listenLoopback(t)
		assert.ErrorIs(t, ln.Listen(address.New("127.0.0.1", 0)), ErrAlreadyConnected)
	})
}

func TestTCPSocket_AcceptOne(t *testing.T) {
	t.Run("not listening", func(t *testing.T) {
		s := NewTCPSocket(testConfig())
		peer, err := s.AcceptOne()
		assert.Nil(t, peer)
		assert.ErrorIs(t, err, ErrNotListening)
	})

	t.Run("nothing pending returns nil without blocking", func(t *testing.T) {
		ln, _ := listenLoopback(t)

		start := time.Now()
		peer, err := ln.AcceptOne()
		assert.NoError(t, err)
		assert.Nil(t, peer)
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, RoleListening, ln.Role())
	})

	t.Run("pending connection yields a distinct connected socket", func(t *testing.T) {
		ln, addr := listenLoopback(t)

		client := NewTCPSocket(testConfig())
		require.NoError(t, client.ConnectTo(addr))
		defer client.Disconnect()

		peer := acceptUntil(t, ln)
		defer peer.Disconnect()

		assert.NotSame(t, ln, peer)
		assert.Equal(t, RoleConnected, peer.Role())
		assert.Equal(t, RoleListening, ln.Role())

		remote, ok := peer.RemoteAddress()
		require.True(t, ok)
		assert.Equal(t, "127.0.0.1", remote.IP)

		again, err := ln.AcceptOne()
		assert.NoError(t, err)
		assert.Nil(t, again)
	})
}

func TestTCPSocket_Connect(t *testing.T) {
	t.Run("refused", func(t *testing.T) {
		ln := NewTCPSocket(testConfig())
		require.NoError(t, ln.Listen(address.New("127.0.0.1", 0)))
		addr := address.New("127.0.0.1", ln.Port())
		require.NoError(t, ln.Disconnect())

		client := NewTCPSocket(testConfig())
		err := client.ConnectTo(addr)
		require.Error(t, err)
		assert.True(t, errors.Is(err, syscall.ECONNREFUSED), "got %v", err)
		assert.False(t, client.IsConnected())
	})

	t.Run("no target", func(t *testing.T) {
		assert.ErrorIs(t, NewTCPSocket(testConfig()).Connect(), ErrNoTarget)
	})

	t.Run("already connected", func(t *testing.T) {
		_, addr := listenLoopback(t)
		client := NewTCPSocket(testConfig())
		require.NoError(t, client.ConnectTo(addr))
		defer client.Disconnect()

		assert.ErrorIs(t, client.Connect(), ErrAlreadyConnected)
		assert.ErrorIs(t, client.ConnectTo(addr), ErrAlreadyConnected)
	})
}

func TestTCPSocket_SendReceive(t *testing.T) {
	ln, addr := listenLoopback(t)

	client := NewTCPSocket(testConfig())
	require.NoError(t, client.ConnectTo(addr))
	defer client.Disconnect()

	peer := acceptUntil(t, ln)
	defer peer.Disconnect()

	t.Run("client to peer", func(t *testing.T) {
		n, err := client.Send([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		buf := make([]byte, 32)
		got := receiveUntil(func() int { return peer.Receive(buf) })
		assert.Equal(t, "hello", string(buf[:got]))
	})

	t.Run("peer to client", func(t *testing.T) {
		_, err := peer.Send([]byte("world"))
		require.NoError(t, err)

		buf := make([]byte, 32)
		got := receiveUntil(func() int { return client.Receive(buf) })
		assert.Equal(t, "world", string(buf[:got]))
	})

	t.Run("nothing pending", func(t *testing.T) {
		n, err := peer.TryReceive(make([]byte, 8))
		assert.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("listener cannot send or receive", func(t *testing.T) {
		_, err := ln.Send([]byte("x"))
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Equal(t, 0, ln.Receive(make([]byte, 8)))
	})
}

func TestTCPSocket_PeerClosed(t *testing.T) {
	ln, addr := listenLoopback(t)

	client := NewTCPSocket(testConfig())
	require.NoError(t, client.ConnectTo(addr))
	peer := acceptUntil(t, ln)
	defer peer.Disconnect()

	require.NoError(t, client.Disconnect())

	var err error
	for i := 0; i < 20 && err == nil; i++ {
		_, err = peer.TryReceive(make([]byte, 8))
	}
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, peer.Receive(make([]byte, 8)))
}

func TestTCPSocket_Disconnect(t *testing.T) {
	t.Run("listener twice", func(t *testing.T) {
		ln := NewTCPSocket(testConfig())
		require.NoError(t, ln.Listen(address.New("127.0.0.1", 0)))
		assert.NoError(t, ln.Disconnect())
		assert.NoError(t, ln.Disconnect())
		assert.False(t, ln.IsConnected())
		assert.Zero(t, ln.Port())
	})

	t.Run("never connected", func(t *testing.T) {
		s := NewTCPSocket(testConfig())
		assert.NoError(t, s.Disconnect())
		assert.NoError(t, s.Disconnect())
		assert.False(t, s.IsConnected())
	})

	t.Run("receive after disconnect returns zero", func(t *testing.T) {
		s := NewTCPSocket(testConfig())
		assert.Equal(t, 0, s.Receive(make([]byte, 8)))
	})
}
