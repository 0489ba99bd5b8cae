package pagequeue

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/djdv/go-pagequeue/internal/event"
	"github.com/djdv/go-pagequeue/internal/list"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type (
	// Config parameterizes a [PageQueues] engine.
	// The zero value selects defaults for every field.
	Config struct {
		// Logger receives stall warnings, diagnostics and [PageQueues.Dump]
		// reports. Defaults to a no-op logger.
		Logger *zap.Logger
		// Compression supplies reclaim-time compressor sessions.
		// Leaving it nil restricts reclaim to eviction and discard.
		Compression Compression
		// FreePages returns reclaimed frames to the physical allocator.
		FreePages func(pages []*Page)
		// LoanedAvailable reports whether loaned frames are available
		// and borrowing is currently permitted. Leaving it nil disables
		// loaned-page sweeping.
		LoanedAvailable func() bool
		// WaitForAccessedScan, if set, blocks until accessed-bit
		// information has been harvested since lastAge. The aging
		// scheduler calls it before each rotation so a generation is
		// never wasted on stale access data.
		WaitForAccessedScan func(lastAge time.Time)
		// MinRotateInterval is the anti-thrash floor: rotations never
		// happen closer together than this, even when the active
		// ratio fires early.
		MinRotateInterval time.Duration
		// MaxRotateInterval is the bounded-staleness ceiling: a
		// rotation is forced once this much time passes with no
		// other trigger.
		MaxRotateInterval time.Duration
		// ActiveRatioMultiplier scales the active count in the aging
		// heuristic: aging is requested when active*multiplier
		// exceeds inactive.
		ActiveRatioMultiplier uint64
		// LruAction selects the reclaim policy.
		LruAction LruAction
	}
	// PageQueues is the physical-page reclamation and aging engine:
	// a multi-generation LRU over every page attached to an owning
	// object, rotated by a background aging scheduler and drained by
	// a background LRU reclaimer.
	//
	// Construct with [New]; exactly one live instance is expected per
	// system and it is passed by reference to all call sites.
	PageQueues struct {
		logger              *zap.Logger
		compression         Compression
		freePages           func([]*Page)
		loanedAvailable     func() bool
		waitForAccessedScan func(time.Time)

		// mu is the queue lock. It is held for small, bounded numbers
		// of operations only: code under it must never block, allocate,
		// or call into owner logic that might reenter the engine.
		// Anything needing to do so is staged through lruIsolate or
		// pendingSignals and performed after release.
		mu     sync.Mutex
		queues [NumQueues]list.List[*Page]
		counts [NumQueues]atomic.Int64

		mruGen        atomic.Uint64
		lruGen        atomic.Uint64
		lastAgeTime   atomic.Int64 // unix nanoseconds
		lastAgeReason AgeReason    // guarded by mu

		// Live active/inactive tallies, guarded by mu. They may go
		// transiently negative while an access scan races the
		// lock-free MarkAccessed path; the cached snapshot is served
		// instead for the scan's duration.
		activeCount     int64
		inactiveCount   int64
		cachedActive    uint64
		cachedInactive  uint64
		useCachedCounts atomic.Bool

		activeRatioMultiplier uint64 // guarded by mu
		activeRatioTriggered  bool   // guarded by mu, latches until consumed
		lruAction             LruAction
		anonymousReclaimable  bool
		zeroForkReclaimable   bool

		// mruSemaphore holds one slot per rotation the window can
		// still absorb; the LRU reclaimer returns a slot each time it
		// retires the oldest bucket. This is the backpressure bounding
		// mruGen-lruGen to NumReclaim-1.
		mruSemaphore *semaphore.Weighted
		// agingToken is the single-holder pause token. The aging
		// scheduler holds it across each rotation; DisableAging takes
		// it to block rotations entirely.
		agingToken       *semaphore.Weighted
		activeRatioEvent *event.Event
		lruEvent         *event.Event
		noPendingAging   *event.Event
		agingDisabled    atomic.Bool

		minRotateInterval time.Duration
		maxRotateInterval time.Duration

		// dontNeedProcessing stages the DontNeed queue during a drain.
		// List manipulation stays under mu; dontNeedProcessingMu is the
		// sleeping mutex serializing whole drains, the one reclaim path
		// allowed to block.
		dontNeedProcessing   list.List[*Page]
		dontNeedProcessingMu sync.Mutex

		shutdown atomic.Bool
		// shutdownEvent interrupts interval sleeps so a stop request
		// is never stalled behind one.
		shutdownEvent  *event.Event
		threadsStarted bool // guarded by mu
		threads        sync.WaitGroup

		counters diagCounters
	}
)

// Defaults applied by [New] for zero [Config] fields.
const (
	DefaultMinRotateInterval     = 10 * time.Second
	DefaultMaxRotateInterval     = 30 * time.Second
	DefaultActiveRatioMultiplier = 2
)

// Batching limits. Lock-hold times are bounded by processing at most
// this many pages per acquisition.
const (
	// maxDeferredWork caps LRU/DontNeed work per lock acquisition and
	// sizes the isolation buffer.
	maxDeferredWork = 16
	// maxRemoveBatch caps pages removed per lock acquisition in
	// [PageQueues.RemoveBatch].
	maxRemoveBatch = 64
)

// New creates an engine with the given configuration. Background
// threads are not started; call [PageQueues.StartThreads].
func New(cfg Config) (*PageQueues, error) {
	if cfg.MinRotateInterval == 0 {
		cfg.MinRotateInterval = DefaultMinRotateInterval
	}
	if cfg.MaxRotateInterval == 0 {
		cfg.MaxRotateInterval = DefaultMaxRotateInterval
	}
	if cfg.MinRotateInterval > cfg.MaxRotateInterval {
		return nil, rotationIntervalError(cfg.MinRotateInterval, cfg.MaxRotateInterval)
	}
	if cfg.ActiveRatioMultiplier == 0 {
		cfg.ActiveRatioMultiplier = DefaultActiveRatioMultiplier
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pq := &PageQueues{
		logger:                logger,
		compression:           cfg.Compression,
		freePages:             cfg.FreePages,
		loanedAvailable:       cfg.LoanedAvailable,
		waitForAccessedScan:   cfg.WaitForAccessedScan,
		minRotateInterval:     cfg.MinRotateInterval,
		maxRotateInterval:     cfg.MaxRotateInterval,
		activeRatioMultiplier: cfg.ActiveRatioMultiplier,
		lruAction:             cfg.LruAction,
		mruSemaphore:          semaphore.NewWeighted(NumReclaim - 1),
		agingToken:            semaphore.NewWeighted(1),
		activeRatioEvent:      event.NewAutoReset(),
		lruEvent:              event.NewAutoReset(),
		noPendingAging:        event.New(),
		shutdownEvent:         event.New(),
		counters:              newDiagCounters(),
	}
	for i := range pq.queues {
		pq.queues[i].Init()
	}
	pq.dontNeedProcessing.Init()
	pq.lastAgeTime.Store(time.Now().UnixNano())
	return pq, nil
}

// Close stops the background threads and verifies every page was
// removed before teardown; leftover pages indicate accounting
// corruption in the caller.
func (pq *PageQueues) Close() {
	pq.StopThreads()
	for i := range pq.queues {
		if !pq.queues[i].Empty() {
			panic("pagequeue: pages still queued at close")
		}
		if count := pq.counts[i].Load(); count != 0 {
			panic("pagequeue: non-zero queue count at close")
		}
	}
}

// SetLruAction reconfigures the reclaim policy.
func (pq *PageQueues) SetLruAction(action LruAction) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	pq.lruAction = action
}

// SetActiveRatioMultiplier reconfigures the aging heuristic. The new
// multiplier may itself make the ratio condition true, requesting
// aging immediately.
func (pq *PageQueues) SetActiveRatioMultiplier(multiplier uint64) {
	var dps pendingSignals
	pq.mu.Lock()
	pq.activeRatioMultiplier = multiplier
	pq.maybeSignalActiveRatioAgingLocked(&dps)
	pq.mu.Unlock()
	dps.deliver(pq)
}

// maybeSignalActiveRatioAgingLocked latches the ratio trigger and
// pends the aging wakeup. Once latched it does not re-signal until
// the aging scheduler consumes it.
func (pq *PageQueues) maybeSignalActiveRatioAgingLocked(dps *pendingSignals) {
	if pq.activeRatioTriggered {
		return
	}
	if pq.activeRatioTriggeringAgingLocked() {
		pq.activeRatioTriggered = true
		dps.pend(signalActiveRatio)
	}
}

func (pq *PageQueues) activeRatioTriggeringAgingLocked() bool {
	counts := pq.activeInactiveLocked()
	return counts.Active*pq.activeRatioMultiplier > counts.Inactive
}

// mruQueueLocked returns the bucket the current MRU generation maps to.
func (pq *PageQueues) mruQueueLocked() PageQueue {
	return genToQueue(pq.mruGen.Load())
}

// updateActiveInactiveLocked adjusts the live tallies for a page
// transition between buckets, and rechecks the ratio trigger. During
// an access scan the live values may be raced into garbage by the
// lock-free accessed path; that is tolerated since only the cached
// snapshot is observable until the scan ends and the tallies are
// recomputed.
func (pq *PageQueues) updateActiveInactiveLocked(oldQueue, newQueue PageQueue, dps *pendingSignals) {
	if !queueIsReclaim(oldQueue) && !queueIsReclaim(newQueue) {
		return
	}
	mru := pq.mruQueueLocked()
	if queueIsActive(oldQueue, mru) {
		pq.activeCount--
	} else if queueIsInactive(oldQueue, mru) {
		pq.inactiveCount--
	}
	if queueIsActive(newQueue, mru) {
		pq.activeCount++
	} else if queueIsInactive(newQueue, mru) {
		pq.inactiveCount++
	}
	pq.maybeSignalActiveRatioAgingLocked(dps)
}

// setQueueBacklinkLocked attaches a detached page to owner at offset
// and links it into queue.
func (pq *PageQueues) setQueueBacklinkLocked(
	page *Page, owner OwnerRef, offset uint64,
	queue PageQueue, dps *pendingSignals,
) {
	if debugging {
		assert(owner != nil, "attaching page without an owner")
		assert(!page.node.Linked(), "attaching page already in a bucket")
		assert(page.owner == nil, "attaching page with a stale backlink")
		assert(page.Queue() == QueueNone, "attaching page with a queue id")
	}
	if page.node.Value == nil {
		page.node.Value = page
	}
	page.owner = owner
	page.offset = offset
	page.queueRef.Store(uint32(queue))
	pq.queues[queue].PushHead(&page.node)
	pq.counts[queue].Add(1)
	pq.updateActiveInactiveLocked(QueueNone, queue, dps)
}

// moveToQueueLocked relocates an attached page to queue. The page's
// list node is unlinked from wherever it physically is, which may
// differ from its recorded bucket after an accessed-path race.
func (pq *PageQueues) moveToQueueLocked(page *Page, queue PageQueue, dps *pendingSignals) {
	if debugging {
		assert(page.node.Linked(), "moving page not in any bucket")
		assert(page.owner != nil, "moving page without a backlink")
	}
	oldQueue := page.setQueue(queue)
	if oldQueue == QueueNone {
		panic("pagequeue: moving detached page")
	}
	page.node.Unlink()
	pq.queues[queue].PushHead(&page.node)
	pq.counts[oldQueue].Add(-1)
	pq.counts[queue].Add(1)
	pq.updateActiveInactiveLocked(oldQueue, queue, dps)
}

// removeLocked detaches the page: queue id to the None sentinel,
// counts adjusted, backlink cleared, node unlinked.
func (pq *PageQueues) removeLocked(page *Page, dps *pendingSignals) {
	oldQueue := page.setQueue(QueueNone)
	if oldQueue == QueueNone {
		panic("pagequeue: double remove")
	}
	pq.counts[oldQueue].Add(-1)
	pq.updateActiveInactiveLocked(oldQueue, QueueNone, dps)
	page.owner = nil
	page.offset = 0
	page.node.Unlink()
}

// SetWired inserts a pinned page; wired pages are never aged or
// reclaimed.
func (pq *PageQueues) SetWired(page *Page, owner OwnerRef, offset uint64) {
	pq.set(page, owner, offset, QueueWired)
}

// MoveToWired reclassifies an attached page as wired.
func (pq *PageQueues) MoveToWired(page *Page) {
	pq.move(page, QueueWired)
}

// SetHighPriority inserts a page that should be reclaimed last.
func (pq *PageQueues) SetHighPriority(page *Page, owner OwnerRef, offset uint64) {
	pq.set(page, owner, offset, QueueHighPriority)
}

// MoveToHighPriority reclassifies an attached page as high priority.
func (pq *PageQueues) MoveToHighPriority(page *Page) {
	pq.move(page, QueueHighPriority)
}

// SetPagerBackedDirty inserts a dirty pager-backed page; dirty pages
// sit outside the aging window until written back.
func (pq *PageQueues) SetPagerBackedDirty(page *Page, owner OwnerRef, offset uint64) {
	pq.set(page, owner, offset, QueuePagerBackedDirty)
}

// MoveToPagerBackedDirty reclassifies an attached page as dirty.
func (pq *PageQueues) MoveToPagerBackedDirty(page *Page) {
	pq.move(page, QueuePagerBackedDirty)
}

// SetReclaim inserts a page into the newest reclaim bucket.
func (pq *PageQueues) SetReclaim(page *Page, owner OwnerRef, offset uint64) {
	var dps pendingSignals
	pq.mu.Lock()
	pq.setQueueBacklinkLocked(page, owner, offset, pq.mruQueueLocked(), &dps)
	pq.mu.Unlock()
	dps.deliver(pq)
}

// MoveToReclaim reclassifies an attached page into the newest reclaim
// bucket.
func (pq *PageQueues) MoveToReclaim(page *Page) {
	var dps pendingSignals
	pq.mu.Lock()
	pq.moveToQueueLocked(page, pq.mruQueueLocked(), &dps)
	pq.mu.Unlock()
	dps.deliver(pq)
}

// MoveToReclaimDontNeed moves an attached page into the hint bypass:
// it will be reclaimed ahead of the normal generational order.
func (pq *PageQueues) MoveToReclaimDontNeed(page *Page) {
	pq.move(page, QueueReclaimDontNeed)
}

// SetAnonymous inserts an anonymous page. Anonymous pages join the
// aging window only once [PageQueues.EnableAnonymousReclaim] has run.
func (pq *PageQueues) SetAnonymous(page *Page, owner OwnerRef, offset uint64) {
	var dps pendingSignals
	pq.mu.Lock()
	queue := QueueAnonymous
	if pq.anonymousReclaimable {
		queue = pq.mruQueueLocked()
	}
	pq.setQueueBacklinkLocked(page, owner, offset, queue, &dps)
	pq.mu.Unlock()
	dps.deliver(pq)
}

// MoveToAnonymous reclassifies an attached page as anonymous.
func (pq *PageQueues) MoveToAnonymous(page *Page) {
	var dps pendingSignals
	pq.mu.Lock()
	queue := QueueAnonymous
	if pq.anonymousReclaimable {
		queue = pq.mruQueueLocked()
	}
	pq.moveToQueueLocked(page, queue, &dps)
	pq.mu.Unlock()
	dps.deliver(pq)
}

// SetAnonymousZeroFork inserts a page forked from the zero page.
func (pq *PageQueues) SetAnonymousZeroFork(page *Page, owner OwnerRef, offset uint64) {
	var dps pendingSignals
	pq.mu.Lock()
	queue := QueueAnonymousZeroFork
	if pq.zeroForkReclaimable {
		queue = pq.mruQueueLocked()
	}
	pq.setQueueBacklinkLocked(page, owner, offset, queue, &dps)
	pq.mu.Unlock()
	dps.deliver(pq)
}

// MoveToAnonymousZeroFork reclassifies an attached page as a zero
// fork.
func (pq *PageQueues) MoveToAnonymousZeroFork(page *Page) {
	var dps pendingSignals
	pq.mu.Lock()
	// Common case: the page is already in a reclaim bucket and zero
	// forks are reclaimable, making the move a no-op.
	if pq.zeroForkReclaimable && queueIsReclaim(page.Queue()) {
		pq.mu.Unlock()
		return
	}
	queue := QueueAnonymousZeroFork
	if pq.zeroForkReclaimable {
		queue = pq.mruQueueLocked()
	}
	pq.moveToQueueLocked(page, queue, &dps)
	pq.mu.Unlock()
	dps.deliver(pq)
}

// CompressFailed quarantines a page whose reclamation persistently
// fails. The page leaves the aging window so it cannot stall LRU
// progress, and is excluded from candidate generation until the
// caller explicitly reclassifies it.
func (pq *PageQueues) CompressFailed(page *Page) {
	var dps pendingSignals
	pq.mu.Lock()
	if queueIsReclaim(page.Queue()) {
		pq.moveToQueueLocked(page, QueueFailedReclaim, &dps)
	}
	pq.mu.Unlock()
	dps.deliver(pq)
}

// EnableAnonymousReclaim makes anonymous pages (and, if zeroForks is
// set, zero-fork pages) subject to aging, migrating any already
// queued into the newest reclaim bucket.
func (pq *PageQueues) EnableAnonymousReclaim(zeroForks bool) {
	var dps pendingSignals
	pq.mu.Lock()
	pq.anonymousReclaimable = true
	pq.zeroForkReclaimable = zeroForks
	mruQueue := pq.mruQueueLocked()
	for !pq.queues[QueueAnonymous].Empty() {
		pq.moveToQueueLocked(pq.queues[QueueAnonymous].Head().Value, mruQueue, &dps)
	}
	for zeroForks && !pq.queues[QueueAnonymousZeroFork].Empty() {
		pq.moveToQueueLocked(pq.queues[QueueAnonymousZeroFork].Head().Value, mruQueue, &dps)
	}
	pq.mu.Unlock()
	dps.deliver(pq)
}

// ChangeObjectOffset rebinds an attached page's backlink, for owners
// splitting or merging their page ranges.
func (pq *PageQueues) ChangeObjectOffset(page *Page, owner OwnerRef, offset uint64) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if debugging {
		assert(owner != nil, "rebinding page without an owner")
		assert(page.node.Linked(), "rebinding page not in any bucket")
		assert(page.owner != nil, "rebinding detached page")
	}
	page.owner = owner
	page.offset = offset
}

// Remove detaches the page from the queues, clearing its backlink.
// Counts return to their values prior to the page's insertion.
func (pq *PageQueues) Remove(page *Page) {
	var dps pendingSignals
	pq.mu.Lock()
	pq.removeLocked(page, &dps)
	pq.mu.Unlock()
	dps.deliver(pq)
}

// RemoveBatch detaches many pages, bounding lock-hold time by
// processing a fixed batch per acquisition and yielding between
// batches so unrelated mutators can interleave.
func (pq *PageQueues) RemoveBatch(pages []*Page) {
	var dps pendingSignals
	for i := 0; i < len(pages); {
		end := min(i+maxRemoveBatch, len(pages))
		pq.mu.Lock()
		for ; i < end; i++ {
			pq.removeLocked(pages[i], &dps)
		}
		pq.mu.Unlock()
		if i < len(pages) {
			runtime.Gosched()
		}
	}
	dps.deliver(pq)
}

// MarkAccessed refreshes a page's recorded generation to the newest
// bucket. This is the fault-path fast path: it updates the queue id
// and counts only, leaving the page physically in its old bucket list
// for LRU processing to correct later. While an access scan is in
// progress it runs entirely lock free.
func (pq *PageQueues) MarkAccessed(page *Page) {
	if pq.useCachedCounts.Load() {
		pq.markAccessedDeferred(page)
		return
	}
	pq.counters.accessedNormal.Inc()
	var dps pendingSignals
	pq.mu.Lock()
	// Non-reclaimable pages have no age to refresh. Holding mu, the
	// only concurrent mutation is the deferred accessed path, which
	// moves pages between reclaim buckets only.
	if !queueIsReclaim(page.Queue()) {
		pq.mu.Unlock()
		return
	}
	queue := pq.mruQueueLocked()
	oldQueue := page.setQueue(queue)
	if debugging {
		assert(queueIsReclaim(oldQueue), "accessed page left the reclaim range")
	}
	if oldQueue != queue {
		pq.counts[oldQueue].Add(-1)
		pq.counts[queue].Add(1)
		pq.updateActiveInactiveLocked(oldQueue, queue, &dps)
	} else {
		pq.counters.accessedSameQueue.Inc()
	}
	pq.mu.Unlock()
	dps.deliver(pq)
}

// markAccessedDeferred is the scan-time accessed path: a lock-free
// CAS on the queue id plus count adjustments. Active/inactive tallies
// are deliberately skipped; they are recomputed when the scan ends.
func (pq *PageQueues) markAccessedDeferred(page *Page) {
	pq.counters.accessedDeferred.Inc()
	if debugging {
		assert(pq.useCachedCounts.Load(), "deferred accessed path outside a scan")
	}
	// The target bucket may be retired between reading mruGen and the
	// swap below. That requires the window to fully rotate past this
	// point mid-operation, which is vanishingly rare; LRU processing
	// notices the invalid id and corrects the page's age to the LRU.
	target := genToQueue(pq.mruGen.Load())
	oldQueue := page.Queue()
	if oldQueue == target {
		pq.counters.accessedDeferredSame.Inc()
		return
	}
	for {
		// A non-reclaim id means the page was racily removed from, or
		// never in, the aging window; nothing to mark.
		if !queueIsReclaim(oldQueue) {
			return
		}
		current, swapped := page.casQueue(oldQueue, target)
		if swapped {
			break
		}
		oldQueue = current
	}
	pq.counts[oldQueue].Add(-1)
	pq.counts[target].Add(1)
}

// BeginAccessScan freezes the observable active/inactive counts to a
// snapshot for the duration of a full access-bit scan, so a
// half-updated state is never observed.
func (pq *PageQueues) BeginAccessScan() {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if pq.useCachedCounts.Load() {
		panic("pagequeue: access scan already in progress")
	}
	counts := pq.activeInactiveLocked()
	pq.cachedActive = counts.Active
	pq.cachedInactive = counts.Inactive
	pq.useCachedCounts.Store(true)
}

// EndAccessScan unfreezes the counts, reconciling the live tallies
// from the per-bucket counts.
func (pq *PageQueues) EndAccessScan() {
	var dps pendingSignals
	pq.mu.Lock()
	if !pq.useCachedCounts.Load() {
		panic("pagequeue: no access scan in progress")
	}
	// The live tallies are garbage right now, but mu is held so
	// nobody can observe them before the recalculation below.
	pq.cachedActive = 0
	pq.cachedInactive = 0
	pq.useCachedCounts.Store(false)
	pq.recalculateActiveInactiveLocked(&dps)
	pq.mu.Unlock()
	dps.deliver(pq)
}

// recalculateActiveInactiveLocked rebuilds the live tallies from the
// per-bucket counts and rechecks the ratio trigger.
func (pq *PageQueues) recalculateActiveInactiveLocked(dps *pendingSignals) {
	var (
		active, inactive int64
		lru              = pq.lruGen.Load()
		mru              = pq.mruGen.Load()
		mruQueue         = genToQueue(mru)
	)
	for gen := lru; gen <= mru; gen++ {
		queue := genToQueue(gen)
		count := pq.counts[queue].Load()
		if queueIsActive(queue, mruQueue) {
			active += count
		} else {
			if debugging {
				assert(queueIsInactive(queue, mruQueue),
					"reclaim bucket neither active nor inactive")
			}
			inactive += count
		}
	}
	inactive += pq.counts[QueueReclaimDontNeed].Load()
	pq.activeCount = active
	pq.inactiveCount = inactive
	pq.maybeSignalActiveRatioAgingLocked(dps)
}

func (pq *PageQueues) set(page *Page, owner OwnerRef, offset uint64, queue PageQueue) {
	var dps pendingSignals
	pq.mu.Lock()
	pq.setQueueBacklinkLocked(page, owner, offset, queue, &dps)
	pq.mu.Unlock()
	dps.deliver(pq)
}

func (pq *PageQueues) move(page *Page, queue PageQueue) {
	var dps pendingSignals
	pq.mu.Lock()
	pq.moveToQueueLocked(page, queue, &dps)
	pq.mu.Unlock()
	dps.deliver(pq)
}

// PopAnonymousZeroFork removes the oldest zero-fork page from its
// dedicated bucket, reclassifying it as plain anonymous, and returns
// its backlink for the caller to deduplicate. Returns nil when the
// bucket is empty.
func (pq *PageQueues) PopAnonymousZeroFork() *VmoBacklink {
	var dps pendingSignals
	pq.mu.Lock()
	tail := pq.queues[QueueAnonymousZeroFork].Tail()
	if tail == nil {
		pq.mu.Unlock()
		return nil
	}
	var (
		page     = tail.Value
		owner    = page.owner
		offset   = page.offset
		backlink = &VmoBacklink{Page: page, Offset: offset}
	)
	pq.moveToQueueLocked(page, QueueAnonymous, &dps)
	if strong, ok := owner.Upgrade(); ok {
		backlink.Owner = strong
	}
	pq.mu.Unlock()
	dps.deliver(pq)
	return backlink
}
