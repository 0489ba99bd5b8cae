package pagequeue

import "github.com/puzpuzpuz/xsync/v3"

type (
	// diagCounters are striped event counters mirroring the engine's
	// interesting-but-not-load-bearing occurrences. They are written
	// from hot paths, so each is internally sharded.
	diagCounters struct {
		agingReasonTimeout     *xsync.Counter
		agingReasonActiveRatio *xsync.Counter
		agingReasonManual      *xsync.Counter
		agingBeforeMinTimeout  *xsync.Counter
		agingSpuriousWakeup    *xsync.Counter
		agingBlockedOnLru      *xsync.Counter
		lruSpuriousWakeup      *xsync.Counter
		lruPagesEvicted        *xsync.Counter
		lruPagesDiscarded      *xsync.Counter
		lruPagesCompressed     *xsync.Counter
		compressorArmFailed    *xsync.Counter
		accessedNormal         *xsync.Counter
		accessedSameQueue      *xsync.Counter
		accessedDeferred       *xsync.Counter
		accessedDeferredSame   *xsync.Counter
	}
	// DiagCounts is a point-in-time snapshot of the diagnostic
	// counters, for inspection and test assertions.
	DiagCounts struct {
		AgingReasonTimeout     int64
		AgingReasonActiveRatio int64
		AgingReasonManual      int64
		AgingBeforeMinTimeout  int64
		AgingSpuriousWakeup    int64
		AgingBlockedOnLru      int64
		LruSpuriousWakeup      int64
		LruPagesEvicted        int64
		LruPagesDiscarded      int64
		LruPagesCompressed     int64
		CompressorArmFailed    int64
		AccessedNormal         int64
		AccessedSameQueue      int64
		AccessedDeferred       int64
		AccessedDeferredSame   int64
	}
)

func newDiagCounters() diagCounters {
	return diagCounters{
		agingReasonTimeout:     xsync.NewCounter(),
		agingReasonActiveRatio: xsync.NewCounter(),
		agingReasonManual:      xsync.NewCounter(),
		agingBeforeMinTimeout:  xsync.NewCounter(),
		agingSpuriousWakeup:    xsync.NewCounter(),
		agingBlockedOnLru:      xsync.NewCounter(),
		lruSpuriousWakeup:      xsync.NewCounter(),
		lruPagesEvicted:        xsync.NewCounter(),
		lruPagesDiscarded:      xsync.NewCounter(),
		lruPagesCompressed:     xsync.NewCounter(),
		compressorArmFailed:    xsync.NewCounter(),
		accessedNormal:         xsync.NewCounter(),
		accessedSameQueue:      xsync.NewCounter(),
		accessedDeferred:       xsync.NewCounter(),
		accessedDeferredSame:   xsync.NewCounter(),
	}
}

// DiagCounters returns a snapshot of the engine's diagnostic counters.
func (pq *PageQueues) DiagCounters() DiagCounts {
	counters := &pq.counters
	return DiagCounts{
		AgingReasonTimeout:     counters.agingReasonTimeout.Value(),
		AgingReasonActiveRatio: counters.agingReasonActiveRatio.Value(),
		AgingReasonManual:      counters.agingReasonManual.Value(),
		AgingBeforeMinTimeout:  counters.agingBeforeMinTimeout.Value(),
		AgingSpuriousWakeup:    counters.agingSpuriousWakeup.Value(),
		AgingBlockedOnLru:      counters.agingBlockedOnLru.Value(),
		LruSpuriousWakeup:      counters.lruSpuriousWakeup.Value(),
		LruPagesEvicted:        counters.lruPagesEvicted.Value(),
		LruPagesDiscarded:      counters.lruPagesDiscarded.Value(),
		LruPagesCompressed:     counters.lruPagesCompressed.Value(),
		CompressorArmFailed:    counters.compressorArmFailed.Value(),
		AccessedNormal:         counters.accessedNormal.Value(),
		AccessedSameQueue:      counters.accessedSameQueue.Value(),
		AccessedDeferred:       counters.accessedDeferred.Value(),
		AccessedDeferredSame:   counters.accessedDeferredSame.Value(),
	}
}
