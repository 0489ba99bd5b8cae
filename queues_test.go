package pagequeue_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pagequeue "github.com/djdv/go-pagequeue"
)

type (
	// fakeOwner is a page-owning object for tests. It upgrades to
	// itself, so a single value serves as both the weak backlink and
	// the strong reference.
	fakeOwner struct {
		queues      *pagequeue.PageQueues
		reclaimed   atomic.Int64
		replaced    atomic.Int64
		canEvict    bool
		discardable bool
		dead        bool
	}
	// fakeCompression hands out compressors whose Arm result is fixed.
	fakeCompression struct {
		armErr   error
		acquired atomic.Int64
	}
	fakeCompressor struct {
		armErr error
	}
)

func (o *fakeOwner) Upgrade() (pagequeue.Owner, bool) {
	if o.dead {
		return nil, false
	}
	return o, true
}

func (o *fakeOwner) CanEvict() bool      { return o.canEvict }
func (o *fakeOwner) IsDiscardable() bool { return o.discardable }

func (o *fakeOwner) ReclaimPage(
	page *pagequeue.Page, offset uint64,
	freed *[]*pagequeue.Page, _ pagequeue.Compressor,
) uint64 {
	// Owners detach the page as part of releasing its frame.
	o.queues.Remove(page)
	*freed = append(*freed, page)
	o.reclaimed.Add(1)
	return 1
}

func (o *fakeOwner) ReplacePageWithLoaned(*pagequeue.Page, uint64) bool {
	o.replaced.Add(1)
	return true
}

func (c *fakeCompression) AcquireCompressor() pagequeue.Compressor {
	c.acquired.Add(1)
	return &fakeCompressor{armErr: c.armErr}
}

func (c *fakeCompressor) Arm() error { return c.armErr }

func newEngine(tb testing.TB, cfg pagequeue.Config) *pagequeue.PageQueues {
	tb.Helper()
	pq, err := pagequeue.New(cfg)
	if err != nil {
		tb.Fatal(err)
	}
	return pq
}

// waitFor polls until cond holds, failing the test if it does not
// within a generous deadline. Used wherever the background threads
// must be given time to act.
func waitFor(tb testing.TB, cond func() bool, msg string) {
	tb.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatalf("condition never held: %s", msg)
		}
		time.Sleep(time.Millisecond)
	}
}

func checkGenerations(tb testing.TB, pq *pagequeue.PageQueues, wantMru, wantLru uint64) {
	tb.Helper()
	mru, lru := pq.Generations()
	if mru != wantMru || lru != wantLru {
		tb.Fatalf(
			"expected generation counters to match"+
				"\n\tgot: mru %d lru %d"+
				"\n\twant: mru %d lru %d",
			mru, lru, wantMru, wantLru)
	}
}

func reclaimTotal(counts pagequeue.Counts) uint64 {
	var total uint64
	for _, count := range counts.Reclaim {
		total += count
	}
	return total
}

func TestPageQueues(t *testing.T) {
	t.Run("invalid intervals", invalidIntervals)
	t.Run("insert and remove", insertAndRemove)
	t.Run("remove batch", removeBatch)
	t.Run("manual rotation", manualRotation)
	t.Run("window bound", windowBound)
	t.Run("old page peeked", oldPagePeeked)
	t.Run("accessed page survives", accessedPageSurvives)
	t.Run("dont need peeked first", dontNeedPeekedFirst)
	t.Run("young window peek", youngWindowPeek)
	t.Run("failed reclaim quarantine", failedReclaimQuarantine)
	t.Run("anonymous reclaim opt in", anonymousReclaimOptIn)
	t.Run("pop zero fork", popZeroFork)
	t.Run("change object offset", changeObjectOffset)
	t.Run("access scan freezes counts", accessScanFreezesCounts)
	t.Run("reclaim queue grouping", reclaimQueueGrouping)
	t.Run("concurrent churn", concurrentChurn)
}

func invalidIntervals(t *testing.T) {
	t.Parallel()
	pq, err := pagequeue.New(pagequeue.Config{
		MinRotateInterval: time.Minute,
		MaxRotateInterval: time.Second,
	})
	if pq != nil || err == nil {
		t.Fatal("expected an error for min interval above max")
	}
}

func insertAndRemove(t *testing.T) {
	t.Parallel()
	var (
		pq    = newEngine(t, pagequeue.Config{})
		owner = &fakeOwner{queues: pq}
		pages []*pagequeue.Page
		page  = func() *pagequeue.Page {
			p := pagequeue.NewPage()
			pages = append(pages, p)
			return p
		}
	)
	pq.SetWired(page(), owner, 0)
	pq.SetHighPriority(page(), owner, 1)
	pq.SetPagerBackedDirty(page(), owner, 2)
	pq.SetReclaim(page(), owner, 3)
	pq.SetAnonymous(page(), owner, 4)
	pq.SetAnonymousZeroFork(page(), owner, 5)

	counts := pq.QueueCounts()
	for _, check := range []struct {
		name string
		got  uint64
	}{
		{"wired", counts.Wired},
		{"high priority", counts.HighPriority},
		{"dirty", counts.PagerBackedDirty},
		{"newest reclaim", counts.Reclaim[0]},
		{"anonymous", counts.Anonymous},
		{"zero fork", counts.AnonymousZeroFork},
	} {
		if check.got != 1 {
			t.Errorf("expected one page in %s queue, got %d", check.name, check.got)
		}
	}
	for _, p := range pages {
		if p.Queue() == pagequeue.QueueNone {
			t.Error("inserted page reports no queue")
		}
		pq.Remove(p)
		if p.Queue() != pagequeue.QueueNone {
			t.Error("removed page still reports a queue")
		}
	}
	counts = pq.QueueCounts()
	if total := reclaimTotal(counts) + counts.Wired + counts.HighPriority +
		counts.PagerBackedDirty + counts.Anonymous + counts.AnonymousZeroFork; total != 0 {
		t.Fatalf("expected empty queues after removal, %d pages remain", total)
	}
	pq.Close()
}

func removeBatch(t *testing.T) {
	t.Parallel()
	const pageCount = 200 // spans multiple lock acquisitions
	var (
		pq    = newEngine(t, pagequeue.Config{})
		owner = &fakeOwner{queues: pq}
		pages = make([]*pagequeue.Page, pageCount)
	)
	for i := range pages {
		pages[i] = pagequeue.NewPage()
		pq.SetReclaim(pages[i], owner, uint64(i))
	}
	if got := reclaimTotal(pq.QueueCounts()); got != pageCount {
		t.Fatalf("expected %d reclaimable pages, got %d", pageCount, got)
	}
	pq.RemoveBatch(pages)
	if got := reclaimTotal(pq.QueueCounts()); got != 0 {
		t.Fatalf("expected empty reclaim queues, got %d", got)
	}
	pq.Close()
}

func manualRotation(t *testing.T) {
	t.Parallel()
	pq := newEngine(t, pagequeue.Config{})
	checkGenerations(t, pq, 0, 0)
	pq.RotateReclaimQueues()
	pq.RotateReclaimQueues()
	checkGenerations(t, pq, 2, 0)
	if got := pq.DiagCounters().AgingReasonManual; got != 2 {
		t.Errorf("expected 2 manual rotations counted, got %d", got)
	}
	pq.Close()
}

func windowBound(t *testing.T) {
	t.Parallel()
	pq := newEngine(t, pagequeue.Config{})
	// Rotating to the widest window is possible without any LRU
	// processing having happened.
	for range pagequeue.NumReclaim - 1 {
		pq.RotateReclaimQueues()
	}
	checkGenerations(t, pq, pagequeue.NumReclaim-1, 0)
	// Peeking past empty buckets retires them, advancing the LRU and
	// making room for further rotations.
	if backlink := pq.PeekReclaim(pagequeue.NumReclaim - 1); backlink != nil {
		t.Fatal("expected no candidate in an empty engine")
	}
	_, lru := pq.Generations()
	if lru == 0 {
		t.Fatal("expected empty buckets to retire during peek")
	}
	pq.RotateReclaimQueues()
	mru, lru := pq.Generations()
	if mru-lru > pagequeue.NumReclaim-1 {
		t.Fatalf("window width %d exceeds its bound", mru-lru)
	}
	pq.Close()
}

func oldPagePeeked(t *testing.T) {
	t.Parallel()
	const offset = 42
	var (
		pq    = newEngine(t, pagequeue.Config{})
		owner = &fakeOwner{queues: pq}
		page  = pagequeue.NewPage()
	)
	pq.SetReclaim(page, owner, offset)
	const rotations = 3
	for range rotations {
		pq.RotateReclaimQueues()
	}
	queueBefore := page.Queue()
	backlink := pq.PeekReclaim(rotations)
	if backlink == nil {
		t.Fatal("expected the aged page as a candidate")
	}
	if backlink.Page != page || backlink.Offset != offset {
		t.Fatalf(
			"backlink does not identify the aged page"+
				"\n\tgot: %p offset %d"+
				"\n\twant: %p offset %d",
			backlink.Page, backlink.Offset, page, uint64(offset))
	}
	if backlink.Owner != pagequeue.Owner(owner) {
		t.Error("backlink owner did not upgrade to the inserting owner")
	}
	// Peeking reports the candidate without claiming it: the page must
	// still sit in its original bucket with its accounting intact.
	if got := page.Queue(); got != queueBefore {
		t.Fatalf(
			"peek changed the page's bucket"+
				"\n\tgot: %d"+
				"\n\twant: %d",
			got, queueBefore)
	}
	if got := pq.QueueCounts().Reclaim[rotations]; got != 1 {
		t.Fatalf("expected the page still counted in its old bucket, got %d", got)
	}
	checkGenerations(t, pq, rotations, 0)
	pq.Remove(page)
	pq.Close()
}

func accessedPageSurvives(t *testing.T) {
	t.Parallel()
	var (
		pq    = newEngine(t, pagequeue.Config{})
		owner = &fakeOwner{queues: pq}
		page  = pagequeue.NewPage()
	)
	pq.SetReclaim(page, owner, 0)
	for range 3 {
		pq.RotateReclaimQueues()
	}
	// The page is physically still in its old bucket, but marking it
	// accessed re-records it under the newest generation.
	pq.MarkAccessed(page)
	if got := pq.QueueCounts().Reclaim[0]; got != 1 {
		t.Fatalf("expected accessed page counted in the newest bucket, got %d", got)
	}
	if backlink := pq.PeekReclaim(pagequeue.NumActiveQueues); backlink != nil {
		t.Fatal("active page offered as a reclaim candidate")
	}
	// Peek processing noticed the stale placement and corrected it;
	// the page remains accounted to the newest bucket.
	if got := pq.QueueCounts().Reclaim[0]; got != 1 {
		t.Fatalf("expected page to stay in the newest bucket, got %d", got)
	}
	pq.Remove(page)
	pq.Close()
}

func dontNeedPeekedFirst(t *testing.T) {
	t.Parallel()
	var (
		pq     = newEngine(t, pagequeue.Config{})
		owner  = &fakeOwner{queues: pq}
		old    = pagequeue.NewPage()
		hinted = pagequeue.NewPage()
	)
	pq.SetReclaim(old, owner, 0)
	pq.SetReclaim(hinted, owner, 1)
	for range 3 {
		pq.RotateReclaimQueues()
	}
	pq.MoveToReclaimDontNeed(hinted)
	counts := pq.QueueCounts()
	if counts.ReclaimDontNeed != 1 {
		t.Fatalf("expected one hinted page, got %d", counts.ReclaimDontNeed)
	}
	// Both pages are old enough, but the hint bypass wins.
	backlink := pq.PeekReclaim(pagequeue.NumActiveQueues)
	if backlink == nil || backlink.Page != hinted {
		t.Fatal("expected the hinted page as the first candidate")
	}
	pq.RemoveBatch([]*pagequeue.Page{old, hinted})
	pq.Close()
}

func youngWindowPeek(t *testing.T) {
	t.Parallel()
	var (
		pq    = newEngine(t, pagequeue.Config{})
		owner = &fakeOwner{queues: pq}
		page  = pagequeue.NewPage()
	)
	pq.SetReclaim(page, owner, 0)
	// No rotations have happened; nothing can be old enough yet, even
	// with a request below the active floor.
	if backlink := pq.PeekReclaim(0); backlink != nil {
		t.Fatal("freshly inserted page offered as a candidate")
	}
	pq.Remove(page)
	pq.Close()
}

func failedReclaimQuarantine(t *testing.T) {
	t.Parallel()
	var (
		pq    = newEngine(t, pagequeue.Config{})
		owner = &fakeOwner{queues: pq}
		page  = pagequeue.NewPage()
	)
	pq.SetReclaim(page, owner, 0)
	for range 3 {
		pq.RotateReclaimQueues()
	}
	pq.CompressFailed(page)
	counts := pq.QueueCounts()
	if counts.FailedReclaim != 1 {
		t.Fatalf("expected one quarantined page, got %d", counts.FailedReclaim)
	}
	if got := reclaimTotal(counts); got != 0 {
		t.Fatalf("quarantined page still counted reclaimable: %d", got)
	}
	if backlink := pq.PeekReclaim(pagequeue.NumActiveQueues); backlink != nil {
		t.Fatal("quarantined page offered as a candidate")
	}
	// Quarantine only applies to reclaimable pages.
	wired := pagequeue.NewPage()
	pq.SetWired(wired, owner, 1)
	pq.CompressFailed(wired)
	if got := pq.QueueCounts().FailedReclaim; got != 1 {
		t.Fatalf("non-reclaimable page entered quarantine, count %d", got)
	}
	pq.RemoveBatch([]*pagequeue.Page{page, wired})
	pq.Close()
}

func anonymousReclaimOptIn(t *testing.T) {
	t.Parallel()
	var (
		pq       = newEngine(t, pagequeue.Config{})
		owner    = &fakeOwner{queues: pq}
		anon     = pagequeue.NewPage()
		zeroFork = pagequeue.NewPage()
	)
	pq.SetAnonymous(anon, owner, 0)
	pq.SetAnonymousZeroFork(zeroFork, owner, 1)
	counts := pq.QueueCounts()
	if counts.Anonymous != 1 || counts.AnonymousZeroFork != 1 || reclaimTotal(counts) != 0 {
		t.Fatal("anonymous pages entered the aging window before opt in")
	}
	// Opting in without zero forks migrates only plain anonymous pages.
	pq.EnableAnonymousReclaim(false)
	counts = pq.QueueCounts()
	if counts.Anonymous != 0 || reclaimTotal(counts) != 1 {
		t.Fatal("anonymous page not migrated into the aging window")
	}
	if counts.AnonymousZeroFork != 1 {
		t.Fatal("zero-fork page migrated without opt in")
	}
	// New anonymous insertions now go straight to the newest bucket.
	late := pagequeue.NewPage()
	pq.SetAnonymous(late, owner, 2)
	if got := pq.QueueCounts().Reclaim[0]; got != 2 {
		t.Fatalf("expected late insertion in the newest bucket, got count %d", got)
	}
	pq.RemoveBatch([]*pagequeue.Page{anon, zeroFork, late})
	pq.Close()
}

func popZeroFork(t *testing.T) {
	t.Parallel()
	const offset = 7
	var (
		pq    = newEngine(t, pagequeue.Config{})
		owner = &fakeOwner{queues: pq}
		page  = pagequeue.NewPage()
	)
	if backlink := pq.PopAnonymousZeroFork(); backlink != nil {
		t.Fatal("pop returned a page from an empty bucket")
	}
	pq.SetAnonymousZeroFork(page, owner, offset)
	backlink := pq.PopAnonymousZeroFork()
	if backlink == nil || backlink.Page != page || backlink.Offset != offset {
		t.Fatal("pop did not return the queued zero-fork page")
	}
	counts := pq.QueueCounts()
	if counts.AnonymousZeroFork != 0 || counts.Anonymous != 1 {
		t.Fatal("popped page not reclassified as anonymous")
	}
	pq.Remove(page)
	pq.Close()
}

func changeObjectOffset(t *testing.T) {
	t.Parallel()
	var (
		pq       = newEngine(t, pagequeue.Config{})
		original = &fakeOwner{queues: pq}
		adopted  = &fakeOwner{queues: pq}
		page     = pagequeue.NewPage()
	)
	pq.SetReclaim(page, original, 1)
	for range 3 {
		pq.RotateReclaimQueues()
	}
	pq.ChangeObjectOffset(page, adopted, 9)
	backlink := pq.PeekReclaim(pagequeue.NumActiveQueues)
	if backlink == nil {
		t.Fatal("expected the aged page as a candidate")
	}
	if backlink.Owner != pagequeue.Owner(adopted) || backlink.Offset != 9 {
		t.Fatal("backlink does not reflect the rebinding")
	}
	pq.Remove(page)
	pq.Close()
}

func accessScanFreezesCounts(t *testing.T) {
	t.Parallel()
	var (
		pq    = newEngine(t, pagequeue.Config{})
		owner = &fakeOwner{queues: pq}
		page  = pagequeue.NewPage()
	)
	pq.SetReclaim(page, owner, 0)
	pq.RotateReclaimQueues()
	pq.RotateReclaimQueues()
	before := pq.ActiveInactive()
	if before.Cached || before.Active != 0 || before.Inactive != 1 {
		t.Fatalf("unexpected tracker state before scan: %+v", before)
	}
	pq.BeginAccessScan()
	// Marks taken during the scan go through the lock-free path and
	// must not disturb the frozen snapshot.
	pq.MarkAccessed(page)
	during := pq.ActiveInactive()
	if !during.Cached || during.Active != before.Active || during.Inactive != before.Inactive {
		t.Fatalf("snapshot changed during scan: %+v", during)
	}
	if got := pq.DiagCounters().AccessedDeferred; got != 1 {
		t.Errorf("expected 1 deferred access mark, got %d", got)
	}
	pq.EndAccessScan()
	after := pq.ActiveInactive()
	if after.Cached || after.Active != 1 || after.Inactive != 0 {
		t.Fatalf("tracker not reconciled after scan: %+v", after)
	}
	if got := pq.QueueCounts().Reclaim[0]; got != 1 {
		t.Fatalf("deferred mark did not recount the page, newest bucket %d", got)
	}
	pq.Remove(page)
	pq.Close()
}

func reclaimQueueGrouping(t *testing.T) {
	t.Parallel()
	var (
		pq    = newEngine(t, pagequeue.Config{})
		owner = &fakeOwner{queues: pq}
		old   = pagequeue.NewPage()
		fresh = pagequeue.NewPage()
	)
	pq.SetReclaim(old, owner, 0)
	for range pagequeue.NumReclaim - 1 {
		pq.RotateReclaimQueues()
	}
	pq.SetReclaim(fresh, owner, 1)
	counts := pq.ReclaimQueueCounts()
	if counts.Total != 2 {
		t.Fatalf("expected 2 reclaimable pages, got %d", counts.Total)
	}
	if counts.Newest != 1 {
		t.Fatalf("expected 1 page in the newest group, got %d", counts.Newest)
	}
	if counts.Oldest != 1 {
		t.Fatalf("expected 1 page in the oldest group, got %d", counts.Oldest)
	}
	hinted := pagequeue.NewPage()
	pq.SetReclaim(hinted, owner, 2)
	pq.MoveToReclaimDontNeed(hinted)
	if got := pq.ReclaimQueueCounts().Oldest; got != 2 {
		t.Fatalf("expected hinted page grouped with the oldest, got %d", got)
	}
	pq.RemoveBatch([]*pagequeue.Page{old, fresh, hinted})
	pq.Close()
}

// concurrentChurn exercises insertion, access marking and removal
// racing manual rotations; page accounting must be conserved
// throughout.
func concurrentChurn(t *testing.T) {
	t.Parallel()
	const (
		workers        = 4
		pagesPerWorker = 64
	)
	pq := newEngine(t, pagequeue.Config{
		// Intervals long enough that only manual rotations happen.
		MinRotateInterval: time.Hour,
		MaxRotateInterval: time.Hour,
	})
	pq.StartThreads()
	var (
		wg    sync.WaitGroup
		pages [workers][]*pagequeue.Page
	)
	wg.Add(workers + 1)
	go func() {
		defer wg.Done()
		for range 32 {
			pq.RotateReclaimQueues()
		}
	}()
	for worker := range workers {
		owner := &fakeOwner{queues: pq}
		go func() {
			defer wg.Done()
			for i := range pagesPerWorker {
				page := pagequeue.NewPage()
				pages[worker] = append(pages[worker], page)
				pq.SetReclaim(page, owner, uint64(i))
				pq.MarkAccessed(page)
			}
			// Churn the odd pages back out immediately.
			for i := 1; i < pagesPerWorker; i += 2 {
				pq.Remove(pages[worker][i])
			}
		}()
	}
	wg.Wait()
	pq.StopThreads()
	const wantLive = workers * pagesPerWorker / 2
	if got := reclaimTotal(pq.QueueCounts()); got != wantLive {
		t.Fatalf(
			"page accounting not conserved"+
				"\n\tgot: %d"+
				"\n\twant: %d",
			got, wantLive)
	}
	if mru, lru := pq.Generations(); mru-lru > pagequeue.NumReclaim-1 {
		t.Fatalf("window width %d exceeds its bound", mru-lru)
	}
	for worker := range workers {
		for i := 0; i < pagesPerWorker; i += 2 {
			pq.Remove(pages[worker][i])
		}
	}
	pq.Close()
}
