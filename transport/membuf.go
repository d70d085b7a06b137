// Package transport provides concrete implementations of fix.Transport.
package transport

import "sync"

// MemBuf is an in-memory, loopback-style transport: two MemBufs created by
// NewMemBufPair deliver each other's Write calls directly into the peer's
// incoming buffer, synchronously, with no real I/O. It is grounded on the
// original engine's TestFixRemote/TestFixTransport pair, which used a
// single shared byte vector to stand in for a socket in unit tests; here
// each side gets its own buffer and Write pushes straight into the peer's.
type MemBuf struct {
	mu     sync.Mutex
	in     []byte
	onRead func()
	peer   *MemBuf
	closed bool
}

// NewMemBufPair returns two connected transports, each other's peer.
func NewMemBufPair() (a, b *MemBuf) {
	a = &MemBuf{}
	b = &MemBuf{}
	a.peer = b
	b.peer = a
	return a, b
}

// Connect is a no-op: a MemBuf is always already "open".
func (m *MemBuf) Connect(onReady func(error)) { onReady(nil) }

func (m *MemBuf) View() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.in...)
}

func (m *MemBuf) Consume(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n >= len(m.in) {
		m.in = m.in[:0]
		return
	}
	m.in = append(m.in[:0], m.in[n:]...)
}

func (m *MemBuf) Write(buf []byte) int {
	m.mu.Lock()
	closed := m.closed
	peer := m.peer
	m.mu.Unlock()
	if closed || peer == nil {
		return 0
	}
	peer.deliver(buf)
	return len(buf)
}

func (m *MemBuf) deliver(buf []byte) {
	m.mu.Lock()
	m.in = append(m.in, buf...)
	cb := m.onRead
	m.onRead = nil
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (m *MemBuf) OnRead(cb func()) {
	m.mu.Lock()
	hasData := len(m.in) > 0
	if hasData {
		m.mu.Unlock()
		cb()
		return
	}
	m.onRead = cb
	m.mu.Unlock()
}

func (m *MemBuf) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
