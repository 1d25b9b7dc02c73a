// Package transport provides the engine's Socket Set: a per-worker
// collection of UDP/TCP/TLS transport handles behind a uniform interface,
// selected round-robin with three-valued readiness probing, matching
// spec.md §4.4.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Mode selects the wire transport.
type Mode string

const (
	ModeUDP Mode = "udp"
	ModeTCP Mode = "tcp"
	ModeTLS Mode = "tls"
)

// Family restricts address resolution, per spec.md §6's "-f" flag.
type Family string

const (
	FamilyAny   Family = "any"
	FamilyInet  Family = "inet"
	FamilyInet6 Family = "inet6"
)

// Readiness is the three-valued result of a socket readiness probe
// (spec.md §4.4): a stream/TLS handle whose connect hasn't completed
// reports InProgress rather than blocking.
type Readiness int

const (
	Ready Readiness = iota
	TimedOut
	InProgress
)

// Handle is one transport socket the sender can pick via round-robin.
type Handle interface {
	// Ready probes whether the handle can currently send. wake, if
	// non-nil, unblocks the probe early on shutdown.
	Ready(timeout time.Duration, wake <-chan struct{}) Readiness
	// Send transmits b. inProgress is true when the underlying stream
	// accepted the write asynchronously (spec.md §4.2 step 8's
	// "in-progress" send outcome) and completion is not yet certain.
	Send(b []byte) (inProgress bool, err error)
	// Recv performs a non-blocking receive into buf, returning
	// (0, context.DeadlineExceeded wrapped) when nothing is pending (the
	// Go analogue of EAGAIN).
	Recv(buf []byte) (int, error)
	Close() error
}

func networkForFamily(base string, f Family) string {
	switch f {
	case FamilyInet:
		return base + "4"
	case FamilyInet6:
		return base + "6"
	default:
		return base
	}
}

// udpHandle wraps a *net.UDPConn. UDP has no connection handshake, so it
// is always Ready.
type udpHandle struct {
	conn *net.UDPConn
}

// DialUDP opens a UDP socket to raddr, optionally bound to laddr, with
// send/recv buffers sized bufKB (0 keeps the OS default).
func DialUDP(family Family, laddr, raddr string, bufKB int) (Handle, error) {
	network := networkForFamily("udp", family)
	ra, err := net.ResolveUDPAddr(network, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolving %q: %w", raddr, err)
	}
	var la *net.UDPAddr
	if laddr != "" {
		la, err = net.ResolveUDPAddr(network, laddr)
		if err != nil {
			return nil, fmt.Errorf("transport: resolving local addr %q: %w", laddr, err)
		}
	}
	conn, err := net.DialUDP(network, la, ra)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing udp %s: %w", raddr, err)
	}
	if bufKB > 0 {
		_ = conn.SetReadBuffer(bufKB * 1024)
		_ = conn.SetWriteBuffer(bufKB * 1024)
	}
	return &udpHandle{conn: conn}, nil
}

func (h *udpHandle) Ready(time.Duration, <-chan struct{}) Readiness { return Ready }

func (h *udpHandle) Send(b []byte) (bool, error) {
	_, err := h.conn.Write(b)
	return false, err
}

func (h *udpHandle) Recv(buf []byte) (int, error) {
	_ = h.conn.SetReadDeadline(time.Now())
	n, err := h.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, fmt.Errorf("transport: %w", context.DeadlineExceeded)
		}
		return 0, err
	}
	return n, nil
}

func (h *udpHandle) Close() error { return h.conn.Close() }

// streamHandle wraps a TCP or TLS-over-TCP connection dialed
// asynchronously: Ready reports InProgress until the dial goroutine
// finishes, matching the original tool's non-blocking connect model.
type streamHandle struct {
	mu      sync.Mutex
	conn    net.Conn
	dialErr error
	done    chan struct{}
}

// DialStream opens a TCP or TLS-over-TCP connection to raddr. The dial
// runs in the background; Ready() reports its progress rather than
// blocking the caller.
func DialStream(ctx context.Context, mode Mode, family Family, laddr, raddr string, tlsConfig *tls.Config) (Handle, error) {
	network := networkForFamily("tcp", family)
	d := &net.Dialer{}
	if laddr != "" {
		la, err := net.ResolveTCPAddr(network, laddr)
		if err != nil {
			return nil, fmt.Errorf("transport: resolving local addr %q: %w", laddr, err)
		}
		d.LocalAddr = la
	}

	h := &streamHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		conn, err := d.DialContext(ctx, network, raddr)
		if err != nil {
			h.mu.Lock()
			h.dialErr = fmt.Errorf("transport: dialing %s %s: %w", mode, raddr, err)
			h.mu.Unlock()
			return
		}
		if mode == ModeTLS {
			tlsConn := tls.Client(conn, tlsConfig)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				_ = conn.Close()
				h.mu.Lock()
				h.dialErr = fmt.Errorf("transport: TLS handshake to %s: %w", raddr, err)
				h.mu.Unlock()
				return
			}
			conn = tlsConn
		}
		h.mu.Lock()
		h.conn = conn
		h.mu.Unlock()
	}()
	return h, nil
}

func (h *streamHandle) Ready(timeout time.Duration, wake <-chan struct{}) Readiness {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.dialErr != nil || h.conn == nil {
			return TimedOut
		}
		return Ready
	case <-wake:
		return InProgress
	case <-time.After(timeout):
		return InProgress
	}
}

func (h *streamHandle) Send(b []byte) (bool, error) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return true, nil // dial still in progress; caller keeps it outstanding
	}
	_, err := conn.Write(b)
	if err != nil {
		if isEAgainLike(err) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (h *streamHandle) Recv(buf []byte) (int, error) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return 0, fmt.Errorf("transport: %w", context.DeadlineExceeded)
	}
	_ = conn.SetReadDeadline(time.Now())
	n, err := conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, fmt.Errorf("transport: %w", context.DeadlineExceeded)
		}
		return 0, err
	}
	return n, nil
}

func (h *streamHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil {
		return h.conn.Close()
	}
	return nil
}

func isEAgainLike(err error) bool {
	return err == syscall.EAGAIN || err == syscall.EWOULDBLOCK
}

// Set is the round-robin Socket Set described in spec.md §4.4: at most
// 256 handles, probed starting at an advancing cursor.
type Set struct {
	mu      sync.Mutex
	handles []Handle
	cursor  int
}

const MaxSockets = 256

// NewSet builds a Set from already-opened handles (at most MaxSockets).
func NewSet(handles []Handle) (*Set, error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("transport: socket set must have at least one handle")
	}
	if len(handles) > MaxSockets {
		return nil, fmt.Errorf("transport: socket set exceeds max of %d handles", MaxSockets)
	}
	return &Set{handles: handles}, nil
}

// Len reports the number of handles in the set.
func (s *Set) Len() int { return len(s.handles) }

// At returns the handle at index i.
func (s *Set) At(i int) Handle { return s.handles[i] }

// Next advances and returns the round-robin cursor (mod Len()).
func (s *Set) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.cursor
	s.cursor = (s.cursor + 1) % len(s.handles)
	return i
}

// Close closes every handle in the set, returning the first error (if
// any) after attempting all closes.
func (s *Set) Close() error {
	var first error
	for _, h := range s.handles {
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SetSocketBuffers applies send/recv buffer sizes to a raw file
// descriptor, grounded on the teacher's listenReusePort SO_REUSEPORT
// pattern for low-level socket option plumbing golang.org/x/sys/unix
// provides that net.Conn's SetReadBuffer/SetWriteBuffer cannot reach
// (e.g. SO_REUSEPORT itself, used when multiple workers each want
// independent kernel-level fan-out rather than one shared local port).
func SetSocketBuffers(rawConn syscall.RawConn, recvBytes, sendBytes int) error {
	var opErr error
	err := rawConn.Control(func(fd uintptr) {
		if recvBytes > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBytes); e != nil {
				opErr = e
			}
		}
		if sendBytes > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sendBytes); e != nil {
				opErr = e
			}
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// ListenReusePort binds a local UDP socket with SO_REUSEPORT set, so
// independent worker goroutines can each own a socket bound to the same
// local port with kernel-level fan-out, exactly as
// internal/server/udp_server.go's listenReusePort does for the DNS
// responder side.
func ListenReusePort(network, addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}
	pc, err := lc.ListenPacket(context.Background(), network, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listening with SO_REUSEPORT on %s: %w", addr, err)
	}
	return pc.(*net.UDPConn), nil
}
