// Package event provides a waitable signal primitive with explicit
// deadline support. Events come in two flavors: sticky events stay
// signaled until [Event.Unsignal], auto-reset events release exactly
// one waiter per signal. Waiters must tolerate spurious wakeups and
// re-validate their condition after waking.
package event

import (
	"sync"
	"time"
)

type (
	// Event is a broadcast signal. The zero value is not usable;
	// construct with [New] or [NewAutoReset].
	Event struct {
		mu        sync.Mutex
		ch        chan struct{}
		signaled  bool
		autoReset bool
	}
)

// New returns an unsignaled sticky event.
func New() *Event {
	return &Event{ch: make(chan struct{})}
}

// NewAutoReset returns an unsignaled event that
// resets itself when a waiter consumes the signal.
func NewAutoReset() *Event {
	return &Event{ch: make(chan struct{}), autoReset: true}
}

// Signal marks the event signaled, waking all current waiters
// (sticky) or the next waiter (auto-reset). Signaling an already
// signaled event is a no-op.
func (e *Event) Signal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signaled {
		return
	}
	e.signaled = true
	close(e.ch)
}

// Unsignal clears the event. Future waiters block
// until the next [Event.Signal].
func (e *Event) Unsignal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.signaled {
		return
	}
	e.signaled = false
	e.ch = make(chan struct{})
}

// Signaled reports the current state without consuming it.
func (e *Event) Signaled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

// Wait blocks until the event is signaled.
func (e *Event) Wait() {
	for {
		e.mu.Lock()
		if e.consumeLocked() {
			e.mu.Unlock()
			return
		}
		ch := e.ch
		e.mu.Unlock()
		<-ch
	}
}

// WaitDeadline blocks until the event is signaled or the deadline
// passes, whichever is first. It returns false on timeout. A zero
// deadline waits forever.
func (e *Event) WaitDeadline(deadline time.Time) bool {
	if deadline.IsZero() {
		e.Wait()
		return true
	}
	var timer *time.Timer
	for {
		e.mu.Lock()
		if e.consumeLocked() {
			e.mu.Unlock()
			stopTimer(timer)
			return true
		}
		ch := e.ch
		e.mu.Unlock()
		remain := time.Until(deadline)
		if remain <= 0 {
			stopTimer(timer)
			return false
		}
		if timer == nil {
			timer = time.NewTimer(remain)
		} else {
			timer.Reset(remain)
		}
		select {
		case <-ch:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
			return false
		}
	}
}

// consumeLocked reports whether the event is signaled, resetting
// auto-reset events so only this waiter observes the signal.
func (e *Event) consumeLocked() bool {
	if !e.signaled {
		return false
	}
	if e.autoReset {
		e.signaled = false
		e.ch = make(chan struct{})
	}
	return true
}

func stopTimer(t *time.Timer) {
	if t != nil && !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
