package connection

import (
	"time"

	"github.com/benbjohnson/clock"
)

type timerPurpose string

const (
	timerQRExpiry    timerPurpose = "qr-expiry"
	timerInitTimeout timerPurpose = "init-timeout"
	timerRestart     timerPurpose = "restart"
)

// validIn reports whether a timer of this purpose may stay armed in state s.
func (p timerPurpose) validIn(s State) bool {
	switch p {
	case timerQRExpiry:
		return s == StateInitializing
	case timerInitTimeout:
		return s == StateInitializing || s == StateAuthenticated
	case timerRestart:
		return s == StateDisconnected || s == StateAuthFailed || s == StateError
	}
	return false
}

type scopedTimer struct {
	id    uint64
	timer *clock.Timer
}

// timerSet holds at most one timer per purpose. It is not safe for concurrent
// use; the manager guards it with its own mutex.
//
// A fired callback receives the id it was armed with. The owner calls
// claim before acting, which rejects fires from timers that were cancelled or
// replaced after the clock had already released them.
type timerSet struct {
	clock  clock.Clock
	nextID uint64
	timers map[timerPurpose]scopedTimer
}

func newTimerSet(clk clock.Clock) *timerSet {
	return &timerSet{clock: clk, timers: make(map[timerPurpose]scopedTimer)}
}

// set arms (or re-arms) the timer for p. fn runs on its own goroutine.
func (ts *timerSet) set(p timerPurpose, d time.Duration, fn func(id uint64)) {
	ts.cancel(p)
	ts.nextID++
	id := ts.nextID
	ts.timers[p] = scopedTimer{id: id, timer: ts.clock.AfterFunc(d, func() { fn(id) })}
}

// claim consumes the timer for p if id is still the armed one.
func (ts *timerSet) claim(p timerPurpose, id uint64) bool {
	t, ok := ts.timers[p]
	if !ok || t.id != id {
		return false
	}
	delete(ts.timers, p)
	return true
}

func (ts *timerSet) cancel(p timerPurpose) {
	if t, ok := ts.timers[p]; ok {
		t.timer.Stop()
		delete(ts.timers, p)
	}
}

// prune cancels every timer not valid in s.
func (ts *timerSet) prune(s State) {
	for p := range ts.timers {
		if !p.validIn(s) {
			ts.cancel(p)
		}
	}
}

func (ts *timerSet) cancelAll() {
	for p := range ts.timers {
		ts.cancel(p)
	}
}

func (ts *timerSet) pending(p timerPurpose) bool {
	_, ok := ts.timers[p]
	return ok
}

func (ts *timerSet) len() int { return len(ts.timers) }
