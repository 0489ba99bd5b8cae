package pagequeue

import (
	"fmt"
	"testing"
)

func TestGenerations(t *testing.T) {
	t.Run("bucket mapping", bucketMapping)
	t.Run("bucket mapping wraps", bucketMappingWraps)
	t.Run("queue age", testQueueAge)
	t.Run("window validity", windowValidity)
	t.Run("active classification", activeClassification)
	t.Run("inactive classification", inactiveClassification)
	t.Run("pending signals collapse", pendingSignalsCollapse)
}

func bucketMapping(t *testing.T) {
	t.Parallel()
	for gen := uint64(0); gen < NumReclaim*2; gen++ {
		var (
			got  = genToQueue(gen)
			want = QueueReclaimBase + PageQueue(gen%NumReclaim)
		)
		if got != want {
			t.Errorf(
				"generation %d mapped to wrong bucket"+
					"\n\tgot: %d"+
					"\n\twant: %d",
				gen, got, want)
		}
	}
}

func bucketMappingWraps(t *testing.T) {
	t.Parallel()
	// Relative bucket positions are computed by subtracting from the
	// MRU generation, which underflows for small counters. The counter
	// space is a multiple of the bucket count, so the wrapped value
	// still lands on the right bucket.
	for _, test := range []struct {
		mru, age uint64
	}{
		{0, 1},
		{0, NumReclaim - 1},
		{3, 5},
	} {
		t.Run(fmt.Sprintf("mru%d age%d", test.mru, test.age), func(t *testing.T) {
			var (
				got  = genToQueue(test.mru - test.age)
				want = genToQueue(test.mru + NumReclaim - test.age)
			)
			if got != want {
				t.Errorf(
					"underflowed generation mapped to wrong bucket"+
						"\n\tgot: %d"+
						"\n\twant: %d",
					got, want)
			}
		})
	}
}

func testQueueAge(t *testing.T) {
	t.Parallel()
	mru := genToQueue(NumReclaim + 2)
	for age := uint64(0); age < NumReclaim; age++ {
		q := genToQueue(NumReclaim + 2 - age)
		if got := queueAge(q, mru); got != age {
			t.Errorf(
				"expected bucket %d generations behind the MRU to have that age"+
					"\n\tgot: %d"+
					"\n\twant: %d",
				age, got, age)
		}
	}
}

func windowValidity(t *testing.T) {
	t.Parallel()
	const (
		lruGen = uint64(3)
		mruGen = lruGen + NumReclaim - 1 // widest window
	)
	var (
		lru = genToQueue(lruGen)
		mru = genToQueue(mruGen)
	)
	for gen := lruGen; gen <= mruGen; gen++ {
		if !queueIsValid(genToQueue(gen), lru, mru) {
			t.Errorf("generation %d inside [%d, %d] reported invalid", gen, lruGen, mruGen)
		}
	}
	// With a narrower window the retired bucket positions are invalid.
	narrowLru := genToQueue(lruGen + 2)
	for gen := lruGen; gen < lruGen+2; gen++ {
		if queueIsValid(genToQueue(gen), narrowLru, mru) {
			t.Errorf("retired generation %d reported valid", gen)
		}
	}
	for _, q := range []PageQueue{QueueNone, QueueWired, QueueReclaimDontNeed} {
		if queueIsValid(q, lru, mru) {
			t.Errorf("non-generational bucket %d reported valid", q)
		}
	}
}

func activeClassification(t *testing.T) {
	t.Parallel()
	const mruGen = uint64(NumReclaim + 5)
	mru := genToQueue(mruGen)
	for age := uint64(0); age < NumReclaim; age++ {
		var (
			q    = genToQueue(mruGen - age)
			want = age < NumActiveQueues
		)
		if got := queueIsActive(q, mru); got != want {
			t.Errorf(
				"bucket at age %d misclassified"+
					"\n\tgot active: %t"+
					"\n\twant active: %t",
				age, got, want)
		}
	}
	if queueIsActive(QueueReclaimDontNeed, mru) {
		t.Error("DontNeed bucket classified active")
	}
}

func inactiveClassification(t *testing.T) {
	t.Parallel()
	mru := genToQueue(0)
	if !queueIsInactive(QueueReclaimDontNeed, mru) {
		t.Error("DontNeed bucket not classified inactive")
	}
	if queueIsInactive(QueueWired, mru) {
		t.Error("wired bucket classified inactive")
	}
	if queueIsInactive(mru, mru) {
		t.Error("MRU bucket classified inactive")
	}
}

func pendingSignalsCollapse(t *testing.T) {
	t.Parallel()
	var dps pendingSignals
	if dps.has(signalLruEvent) {
		t.Error("zero value has pending signals")
	}
	dps.pend(signalLruEvent)
	dps.pend(signalLruEvent) // duplicates collapse
	dps.pend(signalActiveRatio)
	for _, signal := range []pendingSignal{signalLruEvent, signalActiveRatio} {
		if !dps.has(signal) {
			t.Errorf("pended signal %d not recorded", signal)
		}
	}
	if dps.has(signalAgingToken) {
		t.Error("unpended signal recorded")
	}
}
