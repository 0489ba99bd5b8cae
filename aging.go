package pagequeue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartThreads launches the aging scheduler and the LRU reclaimer.
// It must be called at most once.
func (pq *PageQueues) StartThreads() {
	pq.mu.Lock()
	if pq.threadsStarted {
		pq.mu.Unlock()
		panic("pagequeue: threads already started")
	}
	pq.threadsStarted = true
	pq.mu.Unlock()
	pq.threads.Add(2)
	go func() {
		defer pq.threads.Done()
		pq.mruThread()
	}()
	go func() {
		defer pq.threads.Done()
		pq.lruThread()
	}()
}

// StopThreads signals shutdown and waits for both background threads
// to exit. Safe to call whether or not threads were started.
func (pq *PageQueues) StopThreads() {
	var dps pendingSignals
	pq.mu.Lock()
	pq.shutdown.Store(true)
	pq.shutdownEvent.Signal()
	if pq.agingDisabled.Swap(false) {
		dps.pend(signalAgingToken)
	}
	dps.pend(signalActiveRatio)
	dps.pend(signalLruEvent)
	started := pq.threadsStarted
	pq.threadsStarted = false
	pq.mu.Unlock()
	dps.deliver(pq)
	if started {
		pq.threads.Wait()
	}
}

// DisableAging acquires the pause token, blocking all future
// rotations until [PageQueues.EnableAging]. Acquisition waits for any
// in-flight rotation to finish first, so callers never observe a
// half-completed rotation. Calls must pair with EnableAging;
// mismatched pairs panic.
func (pq *PageQueues) DisableAging() {
	if pq.agingDisabled.Swap(true) {
		panic("pagequeue: mismatched DisableAging/EnableAging pair")
	}
	if err := pq.agingToken.Acquire(context.Background(), 1); err != nil {
		panic(err)
	}
}

// EnableAging returns the pause token, allowing the aging scheduler
// to proceed if it was waiting.
func (pq *PageQueues) EnableAging() {
	if !pq.agingDisabled.Swap(false) {
		panic("pagequeue: mismatched DisableAging/EnableAging pair")
	}
	var dps pendingSignals
	dps.pend(signalAgingToken)
	dps.deliver(pq)
}

// RotateReclaimQueues forces a rotation immediately, bypassing the
// interval and ratio triggers. Primarily for external evictors and
// tests; the rotation still consumes an MRU slot, so the window bound
// holds.
func (pq *PageQueues) RotateReclaimQueues() {
	pq.rotate(AgeReasonManual)
	pq.maybeTriggerLruProcessing()
}

// consumeAgeReason returns the pending age reason, consuming its
// trigger, or the deadline at which one will next be checked.
func (pq *PageQueues) consumeAgeReason() (AgeReason, time.Time, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	reason, deadline, ok := pq.ageReasonLocked()
	if ok {
		pq.noPendingAging.Unsignal()
		if reason == AgeReasonActiveRatio {
			pq.activeRatioTriggered = false
			pq.activeRatioEvent.Unsignal()
		}
	} else {
		pq.noPendingAging.Signal()
	}
	return reason, deadline, ok
}

// ageReasonLocked computes the current age reason, or the next
// deadline when no reason is valid yet. The minimum interval bounds
// ratio-triggered rotations below; the maximum bounds staleness above.
func (pq *PageQueues) ageReasonLocked() (AgeReason, time.Time, bool) {
	var (
		now  = time.Now()
		last = time.Unix(0, pq.lastAgeTime.Load())
	)
	if pq.activeRatioTriggered {
		minTimeout := last.Add(pq.minRotateInterval)
		if now.Before(minTimeout) {
			return 0, minTimeout, false
		}
		return AgeReasonActiveRatio, time.Time{}, true
	}
	maxTimeout := last.Add(pq.maxRotateInterval)
	if !maxTimeout.After(now) {
		return AgeReasonTimeout, time.Time{}, true
	}
	return 0, maxTimeout, false
}

// SynchronizeWithAging waits for any in-flight or pending rotation to
// complete, returning once no age reason is outstanding. A no-op when
// the background threads are not running.
func (pq *PageQueues) SynchronizeWithAging() {
	pq.mu.Lock()
	running := pq.threadsStarted
	pq.mu.Unlock()
	if !running {
		return
	}
	for {
		// Wait for in-progress aging. The event is sticky, so waiting
		// without the lock does not consume anyone else's signal.
		pq.noPendingAging.Wait()
		pq.mu.Lock()
		if _, _, ok := pq.ageReasonLocked(); !ok {
			// No reason outstanding, so no aging can be in progress.
			pq.mu.Unlock()
			return
		}
		// Raced with the aging thread: either it already consumed the
		// reason and cleared the signal, or it is still pending to be
		// scheduled. Clearing again is harmless in the first case, and
		// in the second lets us wait knowing the signal will arrive
		// once the rotation finishes. Holding the lock while a reason
		// exists excludes the signal being set, so none can be lost.
		pq.noPendingAging.Unsignal()
		pq.mu.Unlock()
	}
}

// mruThread runs the aging scheduler. Aging is mostly coordination:
// heavy on checks and signaling, holding the lock for the briefest of
// times, while the actual queue churn happens on the LRU side.
func (pq *PageQueues) mruThread() {
	// Pretend aging happened at startup to simplify the loop logic.
	pq.lastAgeTime.Store(time.Now().UnixNano())
	iterationsSinceAge := 0
	for !pq.shutdown.Load() {
		// Normally at most one retry happens per rotation: a ratio
		// trigger can wake the wait early, forcing a second pass to
		// sit out the minimum interval. Late deliveries of the ratio
		// signal can add spurious passes beyond that; they are
		// tolerated, counted, and worth a warning if they pile up.
		if iterationsSinceAge == 10 {
			pq.logger.Warn("aging scheduler looping without rotating, possible bug or overloaded system",
				zap.Int("iterations", iterationsSinceAge))
		}
		reason, deadline, ok := pq.consumeAgeReason()
		if !ok {
			timedOut := !pq.activeRatioEvent.WaitDeadline(deadline)
			// Re-check shutdown before the minimum-interval sleep so a
			// pending stop is not stalled behind it.
			if pq.shutdown.Load() {
				break
			}
			if !timedOut {
				// Woken early by a ratio trigger; sit out the rest of
				// the minimum rotation interval. If it already passed,
				// this is immediate.
				pq.sleepUntil(time.Unix(0, pq.lastAgeTime.Load()).Add(pq.minRotateInterval))
			}
			// Races decide whether an age reason exists now; go back
			// around and find out.
			iterationsSinceAge++
			continue
		}
		if iterationsSinceAge == 0 {
			// A reason was waiting before we ever slept: the minimum
			// interval had already elapsed, so aging is running behind.
			pq.counters.agingBeforeMinTimeout.Inc()
		} else if iterationsSinceAge > 1 {
			pq.counters.agingSpuriousWakeup.Add(int64(iterationsSinceAge - 1))
		}
		iterationsSinceAge = 0

		// Take the aging token, blocking while aging is disabled, and
		// make sure it is returned when the rotation is done.
		if err := pq.agingToken.Acquire(context.Background(), 1); err != nil {
			panic(err)
		}
		var dps pendingSignals
		dps.pend(signalAgingToken)
		if pq.shutdown.Load() {
			dps.deliver(pq)
			break
		}
		// Ensure accessed information was harvested since the last
		// rotation; aging on stale access data deliberately coarsens
		// the age information, wasting a generation.
		if wait := pq.waitForAccessedScan; wait != nil {
			wait(time.Unix(0, pq.lastAgeTime.Load()))
		}
		pq.rotate(reason)
		dps.deliver(pq)

		// The new mruGen may put the window at its bound.
		pq.maybeTriggerLruProcessing()
	}
}

// rotate advances the MRU generation. The caller-visible effects are
// ordered: the slot is taken first (backpressure), then the counter,
// stamp and tallies change atomically with respect to the queue lock.
func (pq *PageQueues) rotate(reason AgeReason) {
	// LRU processing should already have freed a slot; finding none is
	// worth counting, as happening regularly indicates a bug.
	if !pq.mruSemaphore.TryAcquire(1) {
		pq.counters.agingBlockedOnLru.Inc()
		pq.maybeTriggerLruProcessing()
		// The LRU thread may take arbitrarily long to be scheduled, so
		// no deadline is enforced. Start making noise once the wait
		// exceeds the maximum aging interval, since age fidelity is
		// degrading from here on.
		var stalls int64
		for {
			// Once shutdown is requested the LRU side may already have
			// exited, so no slot will ever be released; abandon the
			// rotation rather than wait on it.
			if pq.shutdown.Load() {
				return
			}
			if pq.acquireMruSlot(pq.maxRotateInterval) {
				break
			}
			stalls++
			pq.logger.Warn("aging stalled waiting for LRU processing",
				zap.Duration("waited", time.Duration(stalls)*pq.maxRotateInterval))
			pq.Dump()
		}
	}
	if mru, lru := pq.mruGen.Load(), pq.lruGen.Load(); mru-lru >= NumReclaim-1 {
		panic("pagequeue: generation window exceeded its bound")
	}
	var dps pendingSignals
	pq.mu.Lock()
	pq.mruGen.Add(1)
	pq.lastAgeTime.Store(time.Now().UnixNano())
	pq.lastAgeReason = reason
	// The window moved, so the active/inactive split did too. This
	// could be incremental, since exactly one bucket changed class,
	// but a recompute is cheap at NumReclaim buckets.
	pq.recalculateActiveInactiveLocked(&dps)
	pq.mu.Unlock()
	dps.deliver(pq)
	switch reason {
	case AgeReasonTimeout:
		pq.counters.agingReasonTimeout.Inc()
	case AgeReasonActiveRatio:
		pq.counters.agingReasonActiveRatio.Inc()
	case AgeReasonManual:
		pq.counters.agingReasonManual.Inc()
	default:
		panic("pagequeue: unknown age reason")
	}
}

func (pq *PageQueues) acquireMruSlot(wait time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return pq.mruSemaphore.Acquire(ctx, 1) == nil
}

// needsLruProcessing reports whether the window is at its bound and
// the MRU needs space. Reading without the lock is equivalently
// correct to taking it; callers needing the answer to stay true while
// they act must hold the lock across both.
func (pq *PageQueues) needsLruProcessing() bool {
	return pq.mruGen.Load()-pq.lruGen.Load() == NumReclaim-1
}

func (pq *PageQueues) maybeTriggerLruProcessing() {
	if pq.needsLruProcessing() {
		var dps pendingSignals
		dps.pend(signalLruEvent)
		dps.deliver(pq)
	}
}

// sleepUntil sleeps through until, tolerating an already passed
// deadline. Shutdown ends the sleep early; the caller's loop
// condition handles the rest.
func (pq *PageQueues) sleepUntil(until time.Time) {
	if time.Now().Before(until) {
		pq.shutdownEvent.WaitDeadline(until)
	}
}
