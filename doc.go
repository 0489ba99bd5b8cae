// Package pagequeue implements generation-based page aging and
// reclamation in the style of a kernel physical-memory manager.
//
// Every tracked page sits in exactly one queue. A small set of
// special-purpose queues hold pages that are not reclaim candidates
// (wired, high priority, dirty and awaiting writeback, or quarantined
// after a failed reclaim attempt), while reclaimable pages live in a
// circular window of generation buckets that approximates LRU at page
// granularity without per-access list manipulation.
//
// The following summarizes the model for maintainers.
//
// Glossary and invariants:
//
//   - Generation
//
//     A monotonically increasing counter value. Each reclaimable page
//     records the generation it was last accessed in; a page's age is
//     the distance between that generation and the newest one.
//
//   - MRU generation
//
//     The newest generation; pages are (re)inserted here. Advancing it
//     is a rotation, and rotations are what age pages: a page that is
//     never touched again simply falls further behind the MRU.
//
//   - LRU generation
//
//     The oldest generation still holding pages. The LRU reclaimer
//     advances it by emptying the oldest bucket.
//
//   - Window
//
//     The generations in [LRU, MRU]. Its width never exceeds
//     NumReclaim-1: each rotation consumes a slot from a counting
//     semaphore and each retired bucket returns one, so the MRU blocks
//     (backpressure on aging) rather than overrun the LRU.
//
//   - Bucket
//
//     The physical list for a generation, at index generation mod
//     NumReclaim. The window bound guarantees a bucket is empty before
//     its index is reused.
//
//   - Active / inactive
//
//     The NumActiveQueues newest generations are active (recently
//     used); everything older, plus the DontNeed queue, is inactive.
//     The active:inactive ratio drives early rotations.
//
//   - Accessed (fast path)
//
//     Marking a page accessed only rewrites its recorded generation
//     and the population tallies; the page is NOT moved between
//     physical lists. A page's recorded queue and its physical
//     location may therefore disagree until LRU processing corrects
//     the placement. Counts always follow the recorded queue.
//
//   - DontNeed
//
//     A hint queue for pages the owner expects not to need. It is
//     reclaimed from before any generation bucket, and fully drained
//     (through a staging list, under a separate sleeping mutex) before
//     buckets are processed.
//
//   - Isolation buffer
//
//     A fixed-size staging array carrying reclaim candidates, and the
//     strong owner references needed to act on them, out of the queue
//     lock. Its capacity bounds work per lock acquisition.
//
//   - Backlink
//
//     A page's route back to its owner: a weak owner reference plus
//     the page's offset within it. Peek operations upgrade the weak
//     reference and hand the result to the caller, who must tolerate
//     it being stale by the time they act.
//
// Operations:
//
//   - Rotation
//
//     Advance the MRU generation, aging every reclaimable page by one.
//     Triggered by a maximum staleness timeout, by the active:inactive
//     ratio (rate limited by a minimum interval), or manually.
//
//   - LRU processing
//
//     Empty the oldest bucket in bounded batches. Pages whose recorded
//     queue moved on are relocated there; pages genuinely that old are
//     force-aged forward and staged for reclamation per the configured
//     policy (evict, discard, or compress).
//
//   - Peek
//
//     Find the oldest reclaim candidate without reclaiming it,
//     preferring DontNeed pages, and return its backlink.
//
//   - Access scan
//
//     While a harvester walks hardware accessed bits, the
//     active/inactive tallies are frozen and accessed marking switches
//     to a lock-free path so the scan never contends on the queue
//     lock.
package pagequeue
