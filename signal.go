package pagequeue

type (
	// pendingSignal names one deliverable side effect of a mutation
	// made under the queue lock.
	pendingSignal uint8
	// pendingSignals accumulates signals decided under the queue lock
	// so they can be fired after it is released. Signaling has
	// scheduling side effects that must not happen while the lock is
	// held, and duplicate accumulations of the same signal collapse to
	// exactly one delivery. The value is threaded explicitly: code
	// under the lock calls pend, the caller calls deliver once the
	// lock is dropped.
	pendingSignals struct {
		mask uint8
	}
)

const (
	// signalAgingToken returns the single-holder aging token,
	// unblocking a waiting aging thread or DisableAging caller.
	signalAgingToken pendingSignal = 1 << iota
	// signalActiveRatio wakes the aging scheduler because the
	// active/inactive ratio latched.
	signalActiveRatio
	// signalLruEvent wakes the LRU reclaimer.
	signalLruEvent
)

func (s *pendingSignals) pend(sig pendingSignal) {
	s.mask |= uint8(sig)
}

func (s *pendingSignals) has(sig pendingSignal) bool {
	return s.mask&uint8(sig) != 0
}

// deliver fires the accumulated signals exactly once each.
// Must be called without the queue lock held.
func (s *pendingSignals) deliver(pq *PageQueues) {
	if s.mask == 0 {
		return
	}
	if s.has(signalAgingToken) {
		pq.agingToken.Release(1)
	}
	if s.has(signalActiveRatio) {
		pq.activeRatioEvent.Signal()
	}
	if s.has(signalLruEvent) {
		pq.lruEvent.Signal()
	}
	s.mask = 0
}
