package pagequeue

type (
	// PageQueue identifies the bucket a page is currently linked into.
	// Values at or above [QueueReclaimBase] are generation-addressed
	// reclaim buckets; a generation g maps onto bucket
	// QueueReclaimBase + g%NumReclaim.
	PageQueue uint8
	// AgeReason records why an MRU generation rotation happened.
	AgeReason uint8
	// LruAction selects what reclaim does with candidate pages.
	LruAction uint8
)

// Bucket classes. Ordering is load bearing: everything at or above
// [QueueReclaimDontNeed] is subject to reclaim, everything below is not.
const (
	// QueueNone is the sentinel for pages not linked into any bucket.
	QueueNone PageQueue = iota
	QueueWired
	QueueHighPriority
	QueueAnonymous
	QueueAnonymousZeroFork
	QueuePagerBackedDirty
	// QueueFailedReclaim quarantines pages that persistently fail
	// reclamation so they cannot stall LRU progress.
	QueueFailedReclaim
	// QueueReclaimDontNeed is the hint bypass: pages explicitly marked
	// unneeded, reclaimed ahead of the generational order.
	QueueReclaimDontNeed
	// QueueReclaimBase is the first generation-addressed bucket.
	QueueReclaimBase
	queueReclaimLast = QueueReclaimBase + NumReclaim - 1
	// NumQueues is the total bucket count, including the sentinel.
	NumQueues = int(queueReclaimLast) + 1
)

const (
	// NumReclaim is the size of the generation window. At least 3
	// buckets are required for any aging signal to be meaningful.
	NumReclaim = 8
	// NumActiveQueues is how many generations below the MRU are
	// classified active. Pages in active buckets are never reclaimed.
	NumActiveQueues = 2
	// NumOldestQueues is how many of the oldest generations are
	// grouped into the "oldest" bucket of [ReclaimCounts].
	NumOldestQueues = 3
)

const (
	// AgeReasonManual is an externally forced rotation.
	AgeReasonManual AgeReason = iota
	// AgeReasonActiveRatio is a rotation triggered by the
	// active/inactive ratio heuristic.
	AgeReasonActiveRatio
	// AgeReasonTimeout is a rotation forced by the
	// maximum rotation interval elapsing.
	AgeReasonTimeout
)

func (r AgeReason) String() string {
	switch r {
	case AgeReasonManual:
		return "manual"
	case AgeReasonActiveRatio:
		return "active ratio"
	case AgeReasonTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

const (
	// LruActionNone disables reclamation; LRU processing only
	// reclassifies pages.
	LruActionNone LruAction = iota
	// LruActionEvictOnly reclaims only pages whose owner
	// can evict or discard them.
	LruActionEvictOnly
	// LruActionEvictAndCompress reclaims every candidate,
	// compressing those that cannot be evicted.
	LruActionEvictAndCompress
)

// genToQueue maps a generation counter onto its reclaim bucket.
func genToQueue(gen uint64) PageQueue {
	return QueueReclaimBase + PageQueue(gen%NumReclaim)
}

// queueIsReclaim reports whether q is subject
// to reclamation (DontNeed or generational).
func queueIsReclaim(q PageQueue) bool {
	return q >= QueueReclaimDontNeed
}

// queueIsGenerational reports whether q is a generation-addressed
// reclaim bucket (inside the aging window).
func queueIsGenerational(q PageQueue) bool {
	return q >= QueueReclaimBase && q <= queueReclaimLast
}

// queueAge returns the age of q relative to the MRU bucket:
// 0 for the MRU bucket itself, up to NumReclaim-1 for the oldest
// position the circular window can express.
func queueAge(q, mru PageQueue) uint64 {
	delta := int(mru) - int(q)
	if delta < 0 {
		delta += NumReclaim
	}
	return uint64(delta)
}

// queueIsValid reports whether generational bucket q lies within the
// circular window [lru, mru]. Buckets outside the window must be empty,
// so an invalid q means a racing access-mark recorded a generation the
// window has since retired.
func queueIsValid(q, lru, mru PageQueue) bool {
	if !queueIsGenerational(q) {
		return false
	}
	return queueAge(q, mru) <= queueAge(lru, mru)
}

// queueIsActive reports whether generational bucket q is within the
// first NumActiveQueues generations of the MRU bucket.
func queueIsActive(q, mru PageQueue) bool {
	if !queueIsGenerational(q) {
		return false
	}
	return queueAge(q, mru) < NumActiveQueues
}

// queueIsInactive reports whether q is reclaimable but not active.
// The DontNeed bypass always counts as inactive.
func queueIsInactive(q, mru PageQueue) bool {
	if q == QueueReclaimDontNeed {
		return true
	}
	return queueIsGenerational(q) && !queueIsActive(q, mru)
}
