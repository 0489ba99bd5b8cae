package pagequeue

import (
	"go.uber.org/zap"

	"github.com/djdv/go-pagequeue/internal/list"
)

// lruThread runs the LRU reclaimer. Processing is expensive and
// happens under the queue lock, so it is performed in small units
// that regularly drop the lock to avoid starving unrelated mutators.
func (pq *PageQueues) lruThread() {
	for !pq.shutdown.Load() {
		pq.lruEvent.Wait()
		if pq.shutdown.Load() {
			break
		}
		// Take the lock to compute a race-free target generation.
		pq.mu.Lock()
		if !pq.needsLruProcessing() {
			pq.counters.lruSpuriousWakeup.Inc()
			pq.mu.Unlock()
			continue
		}
		target := pq.lruGen.Load() + 1
		pq.mu.Unlock()
		// Processing with the lock dropped is not racy: generations
		// are monotonic, so at worst someone else already processed
		// this target and the call is a no-op.
		pq.processDontNeedAndLruQueues(target, false)
	}
}

// PeekReclaim returns the oldest reclaim candidate at or below the
// given age (distance from the MRU; [NumActiveQueues] is the first
// inactive bucket), preferring the DontNeed bypass, without
// reclaiming it. The returned backlink is immediately stale: the
// caller must tolerate the page having moved or vanished by the time
// it acts. Requests inside the active window are clamped out of it.
// Returns nil when no candidate that old exists.
func (pq *PageQueues) PeekReclaim(lowestQueue uint64) *VmoBacklink {
	lowestQueue = max(lowestQueue, NumActiveQueues)
	// Evicting from age X means driving the LRU toward X+1, so the
	// target sits one generation above the requested queue.
	target := func() (uint64, bool) {
		mru := pq.mruGen.Load()
		if mru < lowestQueue-1 {
			// The window is still too young to hold pages that old.
			return 0, false
		}
		return mru - (lowestQueue - 1), true
	}
	gen, ok := target()
	if !ok {
		return nil
	}
	backlink := pq.processDontNeedAndLruQueues(gen, true)
	if backlink == nil {
		// A rotation may be mid-flight; settle it and retry once so
		// pressure-driven callers observe the freshest window.
		pq.SynchronizeWithAging()
		if gen, ok = target(); !ok {
			return nil
		}
		backlink = pq.processDontNeedAndLruQueues(gen, true)
	}
	return backlink
}

// processDontNeedAndLruQueues drains the DontNeed bypass and then
// advances the LRU generation toward target. In peek mode it stops at
// the first valid candidate and returns its backlink without
// reclaiming; otherwise it retires buckets through the isolation
// buffer until the target is reached.
func (pq *PageQueues) processDontNeedAndLruQueues(target uint64, peek bool) *VmoBacklink {
	// <= rather than <: retiring bucket X drives the LRU to X+1, so
	// the target may equal the first active generation, which retires
	// every inactive bucket while preserving NumActiveQueues.
	if mru := pq.mruGen.Load(); target > mru-(NumActiveQueues-1) {
		panic("pagequeue: LRU target would enter the active window")
	}

	if peek {
		// Prefer the staging list: its pages were moved to DontNeed
		// further in the past, making them the older candidates.
		if backlink := pq.processDontNeedList(&pq.dontNeedProcessing, true); backlink != nil {
			return backlink
		}
		if backlink := pq.processDontNeedList(&pq.queues[QueueReclaimDontNeed], true); backlink != nil {
			return backlink
		}
	} else {
		// A full drain stages the queue into the processing list, with
		// the sleeping drain mutex serializing whole drains. This is
		// the one reclaim path allowed to block; insert/remove/mark
		// fast paths only contend for the spinning queue lock within.
		pq.dontNeedProcessingMu.Lock()
		pq.mu.Lock()
		if !pq.dontNeedProcessing.Empty() {
			panic("pagequeue: DontNeed staging list not drained")
		}
		pq.queues[QueueReclaimDontNeed].MoveAllTo(&pq.dontNeedProcessing)
		pq.mu.Unlock()
		pq.processDontNeedList(&pq.dontNeedProcessing, false)
		pq.dontNeedProcessingMu.Unlock()
	}

	// Worst case, every reclaimable page needs handling across every
	// step to the target; the bound is diagnostic only.
	var (
		counts        = pq.ActiveInactive()
		maxIterations = counts.Active + counts.Inactive + NumReclaim
		iterations    uint64
		// Reused across iterations; entries never survive one.
		iso lruIsolate
	)
	for pq.lruGen.Load() < target {
		if iterations++; iterations == maxIterations {
			pq.logger.Warn("LRU processing exceeded expected iteration bound",
				zap.Uint64("max_iterations", maxIterations))
		}
		backlink := pq.processLruQueue(&iso, target, peek)
		if backlink != nil {
			// Flush anything staged before the candidate was found so
			// the borrowed owner references are released.
			iso.flush(pq)
			return backlink
		}
	}
	iso.flush(pq)
	return nil
}

// processLruQueue handles one bounded batch of the oldest bucket.
// The batch size caps lock-hold time; the bucket retires, advancing
// lruGen and returning an MRU slot, only once its list empties.
func (pq *PageQueues) processLruQueue(iso *lruIsolate, target uint64, peek bool) *VmoBacklink {
	// Only stage loan replacements when loaned frames are actually
	// available and borrowing is permitted here.
	sweep := pq.loanedAvailable != nil && pq.loanedAvailable()

	// Start each batch with the buffer empty; it cannot flush itself
	// once the lock is held.
	iso.flush(pq)

	pq.mu.Lock()
	var (
		mruQueue = pq.mruQueueLocked()
		lru      = pq.lruGen.Load()
	)
	// The policy is read under the lock, where it is stable.
	iso.setLruAction(pq.lruAction)
	if lru >= target {
		pq.mu.Unlock()
		return nil
	}
	var (
		workRemain = maxDeferredWork
		lruQueue   = genToQueue(lru)
		operating  = &pq.queues[lruQueue]
	)
	for !operating.Empty() && workRemain > 0 {
		workRemain--
		// Relative page age must be preserved where possible. Forced
		// moves from LRU to LRU+1 take from the head and append at the
		// tail, so genuinely colder pages stay behind those already in
		// LRU+1. Peeking instead wants the oldest page, the tail. For
		// mismatched pages either end is fine, as a racily relabeled
		// page has no meaningful relative order.
		var node *list.Node[*Page]
		if peek {
			node = operating.Tail()
		} else {
			node = operating.Head()
		}
		page := node.Value
		pageQueue := page.Queue()
		if debugging {
			assert(queueIsGenerational(pageQueue), "non-generational page in a reclaim bucket")
		}
		switch {
		case pageQueue != lruQueue && queueIsValid(pageQueue, lruQueue, mruQueue):
			// The recorded bucket disagrees but is still in the
			// window: a stale race with the accessed fast path.
			// Correct the placement; head position, since the page's
			// relative order within the corrected bucket is unknown.
			node.Unlink()
			pq.queues[pageQueue].PushHead(node)
			if sweep && !page.Loaned && queueIsActive(pageQueue, mruQueue) {
				iso.addLoanReplacement(page)
			}
		case peek:
			// A teardown race may be in flight; holding the lock the
			// backlink is valid in so far as the owner has not
			// finished destructing, making the upgrade safe to
			// attempt. An upgrade failure means the page is about to
			// leave the queues.
			backlink := &VmoBacklink{Page: page, Offset: page.offset}
			if owner, ok := page.owner.Upgrade(); ok {
				backlink.Owner = owner
			}
			pq.mu.Unlock()
			return backlink
		default:
			// An invalid recorded bucket means an accessed mark raced
			// so far behind that its generation already retired: the
			// page is actually very old, so forcibly age it along with
			// the rest of the bucket. Races with a concurrent access
			// are acceptable losses.
			newQueue := genToQueue(lru + 1)
			oldQueue := page.setQueue(newQueue)
			if debugging {
				assert(queueIsGenerational(oldQueue), "aging a non-generational page")
				assert(!queueIsActive(newQueue, mruQueue), "forced aging entered the active window")
			}
			pq.counts[oldQueue].Add(-1)
			pq.counts[newQueue].Add(1)
			node.Unlink()
			pq.queues[newQueue].PushTail(node)
			// Inactive to inactive, so no active/inactive change.
			iso.addReclaimable(page)
		}
	}
	if operating.Empty() {
		pq.lruGen.Store(lru + 1)
		pq.mruSemaphore.Release(1)
	}
	pq.mu.Unlock()
	return nil
}

// processDontNeedList relocates every page out of the given DontNeed
// list: back into the regular DontNeed queue if still hinted, or into
// its recorded bucket if an access re-aged it. Recently accessed
// pages are candidates for loaned-frame sweeping. In peek mode the
// first still-hinted page's backlink is returned instead.
func (pq *PageQueues) processDontNeedList(pages *list.List[*Page], peek bool) *VmoBacklink {
	var iso lruIsolate
	sweep := pq.loanedAvailable != nil && pq.loanedAvailable()

	// Without peeking this must be the staging list, or pages would be
	// taken out and placed straight back into the list being walked.
	if !peek && pages != &pq.dontNeedProcessing {
		panic("pagequeue: full DontNeed drain outside the staging list")
	}
	pq.mu.Lock()
	workDone := 0
	for !pages.Empty() {
		// The tail is the oldest entry, so peeked pages come back
		// oldest first.
		node := pages.Tail()
		page := node.Value
		node.Unlink()
		queue := page.Queue()
		if queue == QueueReclaimDontNeed {
			// Taken from the tail, placed at the head: overall
			// ordering is preserved.
			pq.queues[QueueReclaimDontNeed].PushHead(node)
			if peek {
				backlink := &VmoBacklink{Page: page, Offset: page.offset}
				if owner, ok := page.owner.Upgrade(); ok {
					backlink.Owner = owner
				}
				pq.mu.Unlock()
				iso.flush(pq)
				return backlink
			}
		} else {
			// A hinted page whose recorded bucket moved was recently
			// accessed, so it is active and a loan candidate. The
			// DontNeed queue is fully drained on every LRU change, so
			// the recorded bucket cannot have aged out. Its relative
			// age within that bucket is unknowable; the head is as
			// good a place as any.
			pq.queues[queue].PushHead(node)
			if sweep && !page.Loaned {
				iso.addLoanReplacement(page)
			}
		}
		if workDone++; workDone >= maxDeferredWork {
			// Drop the lock and act on the accumulated pages.
			pq.mu.Unlock()
			iso.flush(pq)
			pq.mu.Lock()
			workDone = 0
		}
	}
	pq.mu.Unlock()
	iso.flush(pq)
	return nil
}
