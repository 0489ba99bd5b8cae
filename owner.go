package pagequeue

type (
	// Owner is the capability set the engine holds over an owning
	// virtual-memory object. The engine never knows concrete object
	// types; it recovers an Owner through [OwnerRef.Upgrade] only for
	// the duration of a reclaim decision.
	Owner interface {
		// CanEvict reports whether the owner can drop the page and
		// refetch it on demand (pager backed).
		CanEvict() bool
		// IsDiscardable reports whether the owner allows the page's
		// contents to be discarded outright.
		IsDiscardable() bool
		// ReclaimPage evicts, discards or compresses the page at
		// offset, appending any freed frames to freed. A nil
		// compressor restricts reclaim to eviction/discard. It
		// returns the number of frames reclaimed; zero means the
		// page moved or could not be reclaimed.
		ReclaimPage(page *Page, offset uint64, freed *[]*Page, compressor Compressor) uint64
		// ReplacePageWithLoaned makes a best effort swap of the frame
		// at offset for an available loaned frame. Failure is normal:
		// the page may have moved, become pinned, or no loaned frames
		// may remain.
		ReplacePageWithLoaned(page *Page, offset uint64) bool
	}
	// OwnerRef is a weak handle from a page back to its owning object.
	// Upgrade fails once the owner is mid-teardown, at which point the
	// page is about to be removed from the queues by the owner's
	// destructor path.
	OwnerRef interface {
		Upgrade() (Owner, bool)
	}
	// Compression is the polymorphic compressor lifecycle. A session
	// is acquired lazily, only once LRU processing holds a candidate
	// that may need compression.
	Compression interface {
		AcquireCompressor() Compressor
	}
	// Compressor is one armed compression session. Arm must be called
	// between reclamations; an Arm failure leaves the candidate
	// unretired and processing continues with the next one.
	Compressor interface {
		Arm() error
	}
)
