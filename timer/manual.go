package timer

import (
	"sync"
	"time"

	"github.com/glennswest/fixgw/fix"
)

// Manual is a fix.TimerFactory driven entirely by test code calling
// Advance; it never reads the wall clock. One connection uses at most one
// outstanding timer (the heartbeat timer), so Manual tracks a single slot;
// a second SetTimeout call cancels the first the way the real engine does
// when it rearms the heartbeat timer after a Logon.
type Manual struct {
	mu       sync.Mutex
	elapsed  time.Duration
	period   time.Duration
	callback func()
	canceled bool
}

// NewManual returns a timer factory with no timer armed yet.
func NewManual() *Manual { return &Manual{} }

func (m *Manual) SetTimeout(onTimeout func(), d time.Duration) fix.TimerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = onTimeout
	m.period = d
	m.elapsed = 0
	m.canceled = false
	return &manualHandle{m: m}
}

// Advance moves the mock clock forward by d, firing the callback once for
// every full period elapsed.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	period := m.period
	cb := m.callback
	canceled := m.canceled
	m.elapsed += d
	var fires int
	if !canceled && cb != nil && period > 0 {
		fires = int(m.elapsed / period)
		m.elapsed -= time.Duration(fires) * period
	}
	m.mu.Unlock()

	for i := 0; i < fires; i++ {
		cb()
	}
}

type manualHandle struct{ m *Manual }

func (h *manualHandle) Cancel() {
	h.m.mu.Lock()
	h.m.canceled = true
	h.m.mu.Unlock()
}
