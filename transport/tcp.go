package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// TCP adapts a net.Conn to fix.Transport. For an Initiator it dials lazily
// in Connect; for an Acceptor the caller hands it an already-accepted
// net.Conn via NewAccepted. Socket tuning (TCP_NODELAY) follows the
// syscall-level approach the example pack uses for low-latency sockets,
// rather than relying on any higher-level net package wrapper.
type TCP struct {
	addr        string
	dialTimeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	buf    []byte
	onRead func()
	closed bool
}

// NewInitiator returns a TCP transport that dials addr once Connect is called.
func NewInitiator(addr string, dialTimeout time.Duration) *TCP {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &TCP{addr: addr, dialTimeout: dialTimeout}
}

// NewAccepted wraps an already-established connection, typically handed to
// it by a net.Listener.Accept loop run by the embedder.
func NewAccepted(conn net.Conn) *TCP {
	return &TCP{conn: conn}
}

func (t *TCP) Connect(onReady func(error)) {
	if t.conn != nil {
		go t.readLoop()
		onReady(nil)
		return
	}
	go func() {
		conn, err := net.DialTimeout("tcp", t.addr, t.dialTimeout)
		if err != nil {
			onReady(fmt.Errorf("dial %s: %w", t.addr, err))
			return
		}
		if err := tuneNoDelay(conn); err != nil {
			conn.Close()
			onReady(fmt.Errorf("tune socket %s: %w", t.addr, err))
			return
		}
		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		onReady(nil)
		t.readLoop()
	}()
}

// tuneNoDelay disables Nagle's algorithm via a raw syscall on the
// connection's file descriptor, the same low-level path the example pack
// uses for socket tuning rather than net.TCPConn's own (platform-limited)
// SetNoDelay wrapper.
func tuneNoDelay(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func (t *TCP) readLoop() {
	tmp := make([]byte, 4096)
	for {
		t.mu.Lock()
		conn := t.conn
		closed := t.closed
		t.mu.Unlock()
		if closed || conn == nil {
			return
		}

		n, err := conn.Read(tmp)
		if n > 0 {
			t.mu.Lock()
			t.buf = append(t.buf, tmp[:n]...)
			cb := t.onRead
			t.onRead = nil
			t.mu.Unlock()
			if cb != nil {
				cb()
			}
		}
		if err != nil {
			t.mu.Lock()
			t.closed = true
			cb := t.onRead
			t.onRead = nil
			t.mu.Unlock()
			if cb != nil {
				cb()
			}
			return
		}
	}
}

func (t *TCP) View() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.buf...)
}

func (t *TCP) Consume(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n >= len(t.buf) {
		t.buf = t.buf[:0]
		return
	}
	t.buf = append(t.buf[:0], t.buf[n:]...)
}

func (t *TCP) Write(buf []byte) int {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return 0
	}
	n, err := conn.Write(buf)
	if err != nil {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
	}
	return n
}

func (t *TCP) OnRead(cb func()) {
	t.mu.Lock()
	if len(t.buf) > 0 {
		t.mu.Unlock()
		cb()
		return
	}
	t.onRead = cb
	t.mu.Unlock()
}

func (t *TCP) Close() error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
