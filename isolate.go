package pagequeue

type (
	isolateAction uint8
	isolateEntry  struct {
		// owner is a strong reference upgraded under the queue lock.
		// It is held untouched until flush so that releasing what may
		// be the final reference, and any owner teardown that implies,
		// happens outside the lock.
		owner  Owner
		page   *Page
		offset uint64
		action isolateAction
	}
	// lruIsolate is the deferred isolation buffer: a fixed-capacity
	// staging array decoupling candidate selection under the queue
	// lock from acting on candidates without it. Entries are only
	// added while the lock is held; flush requires it released, so
	// the buffer cannot flush itself when full. Capacity therefore
	// bounds the work done per lock acquisition.
	lruIsolate struct {
		list      [maxDeferredWork]isolateEntry
		items     int
		lruAction LruAction
	}
)

const (
	// isolateActionNone performs no action: the entry exists only to
	// carry the strong owner reference out of the critical section
	// before it is dropped.
	isolateActionNone isolateAction = iota
	// isolateActionReplaceWithLoaned attempts a best-effort swap for
	// an available loaned frame.
	isolateActionReplaceWithLoaned
	// isolateActionReclaim evicts, discards or compresses the page.
	isolateActionReclaim
)

// setLruAction caches the engine policy for candidate filtering.
// Construction happens without the queue lock; the policy is read
// under it, so it is filled in separately.
func (iso *lruIsolate) setLruAction(action LruAction) {
	iso.lruAction = action
}

// addLoanReplacement stages a page for a loaned-frame swap.
// Requires the queue lock.
func (iso *lruIsolate) addLoanReplacement(page *Page) {
	if debugging {
		assert(!page.Loaned, "loan replacement of an already loaned page")
	}
	owner, ok := page.owner.Upgrade()
	if !ok {
		// Owner mid-teardown; the page is about to leave the queues.
		return
	}
	iso.add(owner, page, isolateActionReplaceWithLoaned)
}

// addReclaimable stages a page for reclamation if the configured
// policy applies to it. Requires the queue lock. When the policy does
// not apply, the upgraded reference is still staged under None so it
// is released outside the lock.
func (iso *lruIsolate) addReclaimable(page *Page) {
	if iso.lruAction == LruActionNone {
		return
	}
	// The owner reference is needed before the policy check, as the
	// check consults the owner's capabilities.
	owner, ok := page.owner.Upgrade()
	if !ok {
		return
	}
	if iso.lruAction == LruActionEvictAndCompress ||
		(owner.CanEvict() || owner.IsDiscardable()) == (iso.lruAction == LruActionEvictOnly) {
		iso.add(owner, page, isolateActionReclaim)
	} else {
		iso.add(owner, page, isolateActionNone)
	}
}

func (iso *lruIsolate) add(owner Owner, page *Page, action isolateAction) {
	if debugging {
		assert(iso.items < len(iso.list), "isolation buffer overfilled")
	}
	iso.list[iso.items] = isolateEntry{
		owner:  owner,
		page:   page,
		offset: page.offset,
		action: action,
	}
	iso.items++
}

// flush performs the pending actions and releases the staged owner
// references. Requires the queue lock NOT be held. Compression state
// is instantiated lazily, only once a reclaim entry needs it.
func (iso *lruIsolate) flush(pq *PageQueues) {
	var (
		compressor      Compressor
		compressorKnown bool
	)
	for i := range iso.items {
		entry := &iso.list[i]
		switch entry.action {
		case isolateActionNone:
		case isolateActionReplaceWithLoaned:
			// The result is ignored: the page may have moved, become
			// pinned, or no loaned frames may remain. All normal.
			entry.owner.ReplacePageWithLoaned(entry.page, entry.offset)
		case isolateActionReclaim:
			// Reclaim entries are only staged when lruAction != None,
			// so checking for EvictOnly suffices to skip compression.
			if iso.lruAction != LruActionEvictOnly && !compressorKnown {
				compressorKnown = true
				if pq.compression != nil {
					compressor = pq.compression.AcquireCompressor()
				}
			}
			if compressor != nil {
				if err := compressor.Arm(); err != nil {
					// The candidate stays unretired; continue so the
					// remaining references still get released.
					pq.counters.compressorArmFailed.Inc()
					continue
				}
			}
			var freed []*Page
			count := entry.owner.ReclaimPage(entry.page, entry.offset, &freed, compressor)
			if count > 0 {
				switch {
				case entry.owner.CanEvict():
					pq.counters.lruPagesEvicted.Add(int64(count))
				case entry.owner.IsDiscardable():
					pq.counters.lruPagesDiscarded.Add(int64(count))
				default:
					pq.counters.lruPagesCompressed.Add(int64(count))
				}
				if pq.freePages != nil && len(freed) > 0 {
					pq.freePages(freed)
				}
			}
		}
		*entry = isolateEntry{}
	}
	iso.items = 0
}
