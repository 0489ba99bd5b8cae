package pagequeue

import (
	"time"

	"go.uber.org/zap"
)

type (
	// ActiveInactiveCounts is the tracker feeding the aging heuristic.
	// Cached means the values are a snapshot frozen for the duration
	// of an access-bit scan rather than live tallies.
	ActiveInactiveCounts struct {
		Active   uint64
		Inactive uint64
		Cached   bool
	}
	// Counts is a racy snapshot of every bucket's population.
	// Reclaim[0] is the newest generation.
	Counts struct {
		Reclaim           [NumReclaim]uint64
		ReclaimDontNeed   uint64
		PagerBackedDirty  uint64
		Anonymous         uint64
		AnonymousZeroFork uint64
		Wired             uint64
		FailedReclaim     uint64
		HighPriority      uint64
	}
	// ReclaimCounts groups the reclaimable population by eviction
	// eligibility: Newest covers the active generations, Oldest the
	// NumOldestQueues oldest plus the DontNeed bypass.
	ReclaimCounts struct {
		Total  uint64
		Newest uint64
		Oldest uint64
	}
)

// ActiveInactive returns the tracker state: live tallies normally,
// the frozen snapshot while an access scan is in progress.
func (pq *PageQueues) ActiveInactive() ActiveInactiveCounts {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.activeInactiveLocked()
}

func (pq *PageQueues) activeInactiveLocked() ActiveInactiveCounts {
	if pq.useCachedCounts.Load() {
		return ActiveInactiveCounts{
			Cached:   true,
			Active:   pq.cachedActive,
			Inactive: pq.cachedInactive,
		}
	}
	// Outside a scan any negative tally means bookkeeping corruption.
	if pq.activeCount < 0 || pq.inactiveCount < 0 {
		panic("pagequeue: active/inactive count underflow")
	}
	return ActiveInactiveCounts{
		Active:   uint64(pq.activeCount),
		Inactive: uint64(pq.inactiveCount),
	}
}

// QueueCounts returns a snapshot of every bucket's population. The
// lock excludes LRU processing while counting, but pages moved by
// concurrent accessed marking may still be momentarily double or
// under counted; callers must not treat the values as load bearing.
func (pq *PageQueues) QueueCounts() Counts {
	var counts Counts
	pq.mu.Lock()
	defer pq.mu.Unlock()
	var (
		lru = pq.lruGen.Load()
		mru = pq.mruGen.Load()
	)
	for gen := lru; gen <= mru; gen++ {
		counts.Reclaim[mru-gen] = uint64(pq.counts[genToQueue(gen)].Load())
	}
	counts.ReclaimDontNeed = uint64(pq.counts[QueueReclaimDontNeed].Load())
	counts.PagerBackedDirty = uint64(pq.counts[QueuePagerBackedDirty].Load())
	counts.Anonymous = uint64(pq.counts[QueueAnonymous].Load())
	counts.AnonymousZeroFork = uint64(pq.counts[QueueAnonymousZeroFork].Load())
	counts.Wired = uint64(pq.counts[QueueWired].Load())
	counts.FailedReclaim = uint64(pq.counts[QueueFailedReclaim].Load())
	counts.HighPriority = uint64(pq.counts[QueueHighPriority].Load())
	return counts
}

// ReclaimQueueCounts returns the reclaimable population grouped by
// age relative to the MRU, the same distance measure PeekReclaim uses.
func (pq *PageQueues) ReclaimQueueCounts() ReclaimCounts {
	var counts ReclaimCounts
	pq.mu.Lock()
	defer pq.mu.Unlock()
	var (
		lru = pq.lruGen.Load()
		mru = pq.mruGen.Load()
	)
	for gen := lru; gen <= mru; gen++ {
		count := uint64(pq.counts[genToQueue(gen)].Load())
		if gen+NumActiveQueues > mru {
			counts.Newest += count
		} else if gen+(NumReclaim-NumOldestQueues) <= mru {
			counts.Oldest += count
		}
		counts.Total += count
	}
	// DontNeed pages are eligible for reclaim first,
	// so they group with the oldest.
	dontNeed := uint64(pq.counts[QueueReclaimDontNeed].Load())
	counts.Oldest += dontNeed
	counts.Total += dontNeed
	return counts
}

// Generations returns the current window counters;
// mru-lru never exceeds NumReclaim-1.
func (pq *PageQueues) Generations() (mru, lru uint64) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.mruGen.Load(), pq.lruGen.Load()
}

// Dump logs a report of the window state and bucket populations.
func (pq *PageQueues) Dump() {
	var (
		reclaim       [NumReclaim]uint64
		activeCounts  ActiveInactiveCounts
		lastAgeReason AgeReason
	)
	pq.mu.Lock()
	var (
		mru           = pq.mruGen.Load()
		lru           = pq.lruGen.Load()
		dontNeed      = pq.counts[QueueReclaimDontNeed].Load()
		dirty         = pq.counts[QueuePagerBackedDirty].Load()
		failedReclaim = pq.counts[QueueFailedReclaim].Load()
		lastAgeTime   = time.Unix(0, pq.lastAgeTime.Load())
	)
	// Counts for all window positions, newest first. Positions past
	// the lru are outside the window and should always read zero.
	for i := uint64(0); i < NumReclaim; i++ {
		reclaim[i] = uint64(pq.counts[genToQueue(mru-i)].Load())
	}
	activeCounts = pq.activeInactiveLocked()
	lastAgeReason = pq.lastAgeReason
	pq.mu.Unlock()

	pq.logger.Info("page queue state",
		zap.Uint64("mru_gen", mru),
		zap.Uint64("lru_gen", lru),
		zap.Duration("since_last_age", time.Since(lastAgeTime)),
		zap.Stringer("last_age_reason", lastAgeReason),
		zap.Uint64s("reclaim_newest_first", reclaim[:]),
		zap.Int64("dont_need", dontNeed),
		zap.Int64("dirty", dirty),
		zap.Int64("failed_reclaim", failedReclaim),
		zap.Bool("counts_cached", activeCounts.Cached),
		zap.Uint64("active", activeCounts.Active),
		zap.Uint64("inactive", activeCounts.Inactive),
	)
}
