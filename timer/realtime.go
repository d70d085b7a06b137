// Package timer provides concrete implementations of fix.TimerFactory.
package timer

import (
	"sync"
	"time"

	"github.com/glennswest/fixgw/fix"
)

// Realtime drives fix.TimerFactory off a real time.Ticker.
type Realtime struct{}

// NewRealtime returns the wall-clock timer factory used outside tests.
func NewRealtime() Realtime { return Realtime{} }

func (Realtime) SetTimeout(onTimeout func(), d time.Duration) fix.TimerHandle {
	ticker := time.NewTicker(d)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				onTimeout()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return &realtimeHandle{done: done}
}

type realtimeHandle struct {
	once sync.Once
	done chan struct{}
}

func (h *realtimeHandle) Cancel() {
	h.once.Do(func() { close(h.done) })
}
