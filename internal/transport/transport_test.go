package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startUDPEcho(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			_, _ = conn.WriteToUDP(buf[:n], addr)
		}
	}()
	return conn.LocalAddr().String()
}

func TestUDPHandleSendRecv(t *testing.T) {
	addr := startUDPEcho(t)
	h, err := DialUDP(FamilyAny, "", addr, 0)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, Ready, h.Ready(100*time.Millisecond, nil))

	inProgress, err := h.Send([]byte("hello"))
	require.NoError(t, err)
	assert.False(t, inProgress)

	deadline := time.Now().Add(time.Second)
	buf := make([]byte, 64)
	var n int
	for time.Now().Before(deadline) {
		n, err = h.Recv(buf)
		if err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestUDPHandleRecvNoData(t *testing.T) {
	addr := startUDPEcho(t)
	h, err := DialUDP(FamilyAny, "", addr, 0)
	require.NoError(t, err)
	defer h.Close()

	buf := make([]byte, 64)
	_, err = h.Recv(buf)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSetRoundRobin(t *testing.T) {
	addr := startUDPEcho(t)
	h1, err := DialUDP(FamilyAny, "", addr, 0)
	require.NoError(t, err)
	h2, err := DialUDP(FamilyAny, "", addr, 0)
	require.NoError(t, err)

	set, err := NewSet([]Handle{h1, h2})
	require.NoError(t, err)
	defer set.Close()

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 0, set.Next())
	assert.Equal(t, 1, set.Next())
	assert.Equal(t, 0, set.Next())
}

func TestNewSetEmpty(t *testing.T) {
	_, err := NewSet(nil)
	assert.Error(t, err)
}

func TestStreamHandleConnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		_, _ = conn.Write(buf[:n])
	}()

	h, err := DialStream(context.Background(), ModeTCP, FamilyAny, "", ln.Addr().String(), nil)
	require.NoError(t, err)
	defer h.Close()

	deadline := time.Now().Add(time.Second)
	var readiness Readiness
	for time.Now().Before(deadline) {
		readiness = h.Ready(50*time.Millisecond, nil)
		if readiness == Ready {
			break
		}
	}
	assert.Equal(t, Ready, readiness)

	inProgress, err := h.Send([]byte("ping"))
	require.NoError(t, err)
	assert.False(t, inProgress)
}
