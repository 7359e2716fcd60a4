// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Garbage collector: collection policy and the host control surface.
//
// A collection is triggered by an empty freelist in the allocation slow
// path, by byte pressure from the tracked allocator, by stress mode, or
// explicitly by the host. Marking always runs to completion before the
// first page of the cycle is swept.

package objspace

import "sync/atomic"

// garbageCollect runs a full mark and an eager sweep. It reports false
// when there is no heap to collect.
func (sp *ObjectSpace) garbageCollect() (bool, error) {
	if sp.heap.pages == 0 {
		return false, nil
	}
	ready, err := sp.readyToGC()
	if err != nil {
		return false, err
	}
	if !ready {
		return true, nil
	}

	sp.profTimerStart()

	if err := sp.restSweep(); err != nil {
		return false, err
	}

	var gct1 uint64
	if sp.flags.gcStatistics {
		sp.stats.gcTimeAccumulatorBeforeGC = sp.gcTimeAccumulator
		sp.gcCollections++
		gct1 = nowMicros()
	}

	sp.flags.duringGC = true
	sp.profMarkTimerStart()
	sp.gcMarks()
	sp.profMarkTimerStop()

	if sp.flags.gcStatistics {
		sp.gcTimeAccumulator += nowMicros() - gct1
	}

	sp.profSweepTimerStart()
	if err := sp.gcSweep(); err != nil {
		return false, err
	}
	sp.profSweepTimerStop()

	sp.profTimerStop(true)
	return true, nil
}

// Start forces a full collection, then drains deferred finalizers and
// releases any pages they emptied.
func (sp *ObjectSpace) Start() error {
	if _, err := sp.garbageCollect(); err != nil {
		return err
	}
	if atomic.LoadInt32(&sp.flags.finalizing) == 0 {
		sp.finalizeDeferred()
	}
	sp.freeUnusedPages()
	return nil
}

// Enable permits collection again, reporting whether it was disabled.
func (sp *ObjectSpace) Enable() bool {
	old := sp.flags.dontGC
	sp.flags.dontGC = false
	return old
}

// Disable suppresses collection, reporting whether it was already
// disabled. While disabled the allocation slow path grows the heap
// directly.
func (sp *ObjectSpace) Disable() bool {
	old := sp.flags.dontGC
	sp.flags.dontGC = true
	return old
}

// Stress reports whether stress mode is on.
func (sp *ObjectSpace) Stress() bool { return sp.gcStress }

// SetStress toggles collection on every allocation, for shaking out
// missing mark calls.
func (sp *ObjectSpace) SetStress(flag bool) { sp.gcStress = flag }

// Count reports how many collection cycles have run.
func (sp *ObjectSpace) Count() uintptr { return sp.count }

// Stats is the counter snapshot returned by Stat.
type Stats struct {
	Count          uintptr
	PagesUsed      uintptr
	PagesLength    uintptr
	PagesIncrement uintptr
	LiveNum        uintptr
	FreeNum        uintptr
	FinalNum       uintptr
}

// Stat finishes any in-progress sweep and snapshots the collector
// counters.
func (sp *ObjectSpace) Stat() (Stats, error) {
	if err := sp.restSweep(); err != nil {
		return Stats{}, err
	}
	return Stats{
		Count:          sp.count,
		PagesUsed:      sp.heap.used,
		PagesLength:    sp.heap.length,
		PagesIncrement: sp.heap.increment,
		LiveNum:        sp.heap.liveNum,
		FreeNum:        sp.heap.freeNum,
		FinalNum:       sp.heap.finalNum,
	}, nil
}
