package pagequeue

import (
	"sync/atomic"

	"github.com/djdv/go-pagequeue/internal/list"
)

type (
	// Page is the per-physical-frame descriptor tracked by the queues.
	// A page is created by the allocator in a detached state, attached
	// to an owning object with one of the Set* operations, relocated
	// between buckets by access marking, hinting and aging, and finally
	// detached with [PageQueues.Remove] when the owner releases it.
	//
	// queueRef is updated atomically so the MarkAccessed fast path can
	// run without the queue lock during access scans; every other field
	// is guarded by the queue lock.
	Page struct {
		// backlink to the owning object. Lookup only, never owning:
		// taking action on the owner requires a successful
		// [OwnerRef.Upgrade].
		owner  OwnerRef
		offset uint64
		node   list.Node[*Page]
		// queueRef holds the PageQueue the page believes it is in.
		// It may lag the true bucket after racing with aging; LRU
		// processing corrects the placement when it notices.
		queueRef atomic.Uint32
		// Loaned marks a frame borrowed from a contiguous-memory owner.
		Loaned bool
		// LoanCancelled marks a loaned frame whose owner wants it back.
		LoanCancelled bool
		// Pinned frames are never replaced with loaned frames.
		Pinned bool
	}
	// VmoBacklink is a transient strong reference to a reclaim
	// candidate, produced while enumerating candidates. It is only
	// valid immediately: by the time the caller acts, the page may
	// have moved queues or vanished entirely.
	VmoBacklink struct {
		// Owner is the upgraded owning object, or nil if the owner
		// was mid-teardown when the candidate was enumerated.
		Owner  Owner
		Page   *Page
		Offset uint64
	}
)

// NewPage returns a detached page descriptor.
func NewPage() *Page {
	p := &Page{}
	p.node.Value = p
	return p
}

// Queue returns the bucket the page currently believes it is in,
// [QueueNone] if detached. The result is immediately stale unless the
// caller excludes concurrent queue operations.
func (p *Page) Queue() PageQueue {
	return PageQueue(p.queueRef.Load())
}

// setQueue stores a new bucket id and returns the previous one.
func (p *Page) setQueue(q PageQueue) PageQueue {
	return PageQueue(p.queueRef.Swap(uint32(q)))
}

// casQueue atomically replaces old with new, returning the
// current value and whether the exchange happened.
func (p *Page) casQueue(old, new PageQueue) (PageQueue, bool) {
	if p.queueRef.CompareAndSwap(uint32(old), uint32(new)) {
		return new, true
	}
	return PageQueue(p.queueRef.Load()), false
}
