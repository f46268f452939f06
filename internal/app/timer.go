package app

import (
	"sync"
	"time"
)

// timerHandle is a periodic timer explicitly owned by the engine. Handles are
// started on phase entry and stopped on every exit path, so no tick callback
// can fire into a session whose phase has already moved on.
type timerHandle struct {
	stop chan struct{}
	once sync.Once
}

// startTimer runs tick once per interval until tick returns false or the
// handle is stopped.
func startTimer(interval time.Duration, tick func() bool) *timerHandle {
	h := &timerHandle{
		stop: make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				if !tick() {
					return
				}
			}
		}
	}()
	return h
}

// Stop cancels the timer. Safe to call multiple times and from the tick
// callback itself.
func (h *timerHandle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
}
