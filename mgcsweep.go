// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Garbage collector: sweeping.
//
// Sweeping is per-page and lazy: the allocation slow path sweeps pages
// until it finds a free cell or the sweep list runs dry. Unmarked live
// cells either go back to their page's freelist or, when finalizable or
// deferred by their free handler, are retagged Zombie and chained onto
// the deferred finalizer list. A page whose every non-final cell came
// free may be released, within the per-collection budget and never
// below the configured heap floor.

package objspace

import "sync/atomic"

// addPageLocalFreelist recycles one cell onto its own page's freelist.
func (sp *ObjectSpace) addPageLocalFreelist(p uintptr) *pageControl {
	c := cellAt(p)
	c.flags = 0
	ctl := controlOf(p)
	c.s1 = ctl.freelist
	ctl.freelist = p
	return ctl
}

// isLazySweeping reports whether a sweep phase is still in progress.
func (sp *ObjectSpace) isLazySweeping() bool { return sp.heap.sweepPages != 0 }

func makeDeferred(c *cell) {
	c.flags = c.flags&^VALUE(tMask) | tZombie
}

// makeIODeferred turns a file cell into a zombie that releases its io
// state through the interned io finalize handle.
func (sp *ObjectSpace) makeIODeferred(v VALUE) {
	fptr := fileOf(v).fptr
	makeDeferred(cellVal(v))
	d := dataOf(v)
	d.dfree = uintptr(sp.ioFreeHandle)
	d.data = fptr
}

// objFree releases everything a dead cell owns outside its page.
// Reports true when the release is deferred and the cell must become a
// zombie.
func (sp *ObjectSpace) objFree(obj VALUE) bool {
	c := cellVal(obj)
	switch c.kind() {
	case tNil, tFixnum, tTrue, tFalse:
		throw("objFree called for broken object")
	}

	if c.test(flExivar) {
		if sp.hooks.FreeGenericIvars != nil {
			sp.hooks.FreeGenericIvars(sp, obj)
		}
		c.flags &^= flExivar
	}

	switch c.kind() {
	case tObject:
		if !c.test(objEmbed) && objectOf(obj).ivptr != 0 {
			sp.Xfree(objectOf(obj).ivptr)
		}

	case tModule, tClass:
		if t := tableAt(classOf(obj).m); t != nil {
			t.free(sp)
		}
		if ext := classExtOf(obj); ext != nil {
			if t := tableAt(ext.ivTbl); t != nil {
				t.free(sp)
			}
			if t := tableAt(ext.constTbl); t != nil {
				t.free(sp)
			}
			sp.Xfree(classOf(obj).ext)
		}

	case tString:
		if c.test(strNoEmbed) && !c.test(eltsShared) && stringOf(obj).ptr != 0 {
			sp.Xfree(stringOf(obj).ptr)
		}

	case tArray:
		if !c.test(aryEmbed) && !c.test(eltsShared) && arrayOf(obj).ptr != 0 {
			sp.Xfree(arrayOf(obj).ptr)
		}

	case tHash:
		if t := hashTbl(obj); t != nil {
			t.free(sp)
		}

	case tRegexp:
		if regexpOf(obj).ptr != 0 {
			sp.Xfree(regexpOf(obj).ptr)
		}

	case tData:
		if dataPtr(obj) != 0 {
			if typedDataP(obj) {
				// The vtable's free handle replaces the typed flag; the
				// registered type outlives every instance.
				dataOf(obj).dfree = sp.dataType(typedDataOf(obj).typ).freeHandle
			}
			switch dataOf(obj).dfree {
			case 0:
				// nothing to release
			case dfreeDefault:
				sp.Xfree(dataPtr(obj))
			default:
				makeDeferred(c)
				return true
			}
		}

	case tMatch:
		if p := matchOf(obj).rmatch; p != 0 {
			m := (*matchState)(ptrAt(p))
			if m.regs != 0 {
				sp.Xfree(m.regs)
			}
			if m.charOffset != 0 {
				sp.Xfree(m.charOffset)
			}
			sp.Xfree(p)
		}

	case tFile:
		if fileOf(obj).fptr != 0 {
			sp.makeIODeferred(obj)
			return true
		}

	case tRational, tComplex, tIClass, tFloat:
		// nothing owned outside the cell

	case tBignum:
		if !c.test(bignumEmbed) && bignumOf(obj).digits != 0 {
			sp.Xfree(bignumOf(obj).digits)
		}

	case tNode:
		switch nodeOf(obj).nodeType() {
		case nodeScope:
			if nodeOf(obj).u1 != 0 {
				sp.Xfree(nodeOf(obj).u1)
			}
		case nodeAlloca:
			sp.Xfree(nodeOf(obj).u1)
		}

	case tStruct:
		if uintptr(c.flags)&structEmbedLenMask == 0 && structOf(obj).ptr != 0 {
			sp.Xfree(structOf(obj).ptr)
		}

	default:
		throw("gcSweep: unknown data type")
	}
	return false
}

// slotSweep reclaims one page: unmarked cells go to the freelist or the
// deferred finalizer list, the bitmap is cleared, and the page is
// either released (budget and floor permitting) or relinked as a free
// page.
func (sp *ObjectSpace) slotSweep(ctl *pageControl) {
	var freeNum, finalNum uintptr
	final := sp.final.deferred
	doStats := sp.flags.gcStatistics && sp.flags.verboseGCStats

	var t1 uint64
	if sp.flags.gcStatistics {
		t1 = nowMicros()
	}

	header := ctl.header()
	for p := header.start; p < header.end; p += cellSize {
		c := cellAt(p)
		switch {
		case !markedInBitmap(p) && c.kind() != tZombie:
			if c.flags != 0 {
				if doStats {
					sp.stats.freeCounts[c.kind()]++
				}
				deferred := sp.objFree(VALUE(p))
				if deferred || c.test(flFinalize) {
					if !deferred {
						c.flags = c.flags&^VALUE(tMask) | tZombie
						dataOf(VALUE(p)).dfree = 0
					}
					c.s1 = sp.final.deferred
					sp.final.deferred = p
					finalNum++
				} else {
					c.flags = 0
					c.s1 = ctl.freelist
					ctl.freelist = p
					freeNum++
				}
			} else {
				if doStats {
					sp.stats.freelistSize++
				}
				freeNum++
			}
		case c.kind() == tZombie:
			// awaiting finalization; stays put
			if doStats {
				sp.stats.zombies++
			}
		default:
			if doStats {
				sp.stats.liveCounts[uintptr(c.flags)&tMask]++
			}
		}
		sp.stats.processed++
	}
	sp.stats.freedObjects += uint64(freeNum)

	clearPageBits(ctl)

	if sp.heap.freedBlocks < sp.heap.maxBlocksToFree &&
		finalNum+freeNum == header.limit &&
		sp.heap.freeNum > sp.heap.doHeapFree {
		// Release the page. Its zombies get the freeing-page sentinel
		// so finalize completion skips the freelist push and only
		// drops the page's limit.
		for pp := sp.final.deferred; pp != final; pp = cellAt(pp).s1 {
			dataOf(VALUE(pp)).dmark = 0
			cellAt(pp).flags |= flSingleton
		}
		header.limit = finalNum
		sp.unlinkPage(ctl)
		sp.heap.freedBlocks++
		sp.heapSize -= finalNum + freeNum
	} else {
		if freeNum > 0 {
			sp.linkFreePage(ctl)
		} else {
			ctl.freeNext = 0
		}
		sp.heap.freeNum += freeNum
	}
	sp.heap.finalNum += finalNum

	if sp.final.deferred != 0 && atomic.LoadInt32(&sp.flags.finalizing) == 0 {
		if sp.hooks.FinalizerInterrupt != nil {
			sp.hooks.FinalizerInterrupt()
		}
	}

	if sp.flags.gcStatistics {
		sp.gcTimeAccumulator += nowMicros() - t1
	}
}

// readyToGC reports whether a collection may start. When collection is
// suppressed the heap grows directly instead.
func (sp *ObjectSpace) readyToGC() (bool, error) {
	if sp.flags.dontGC || sp.flags.duringGC {
		if !sp.hasFreeCell() {
			ok, err := sp.heapsIncrement()
			if err != nil {
				return false, err
			}
			if !ok {
				if err := sp.setHeapsIncrement(); err != nil {
					return false, err
				}
				if _, err := sp.heapsIncrement(); err != nil {
					return false, err
				}
			}
		}
		return false, nil
	}
	return true, nil
}

// beforeGcSweep establishes the sweep plan for this cycle: the release
// budget, the do-not-free surplus threshold, the free-cell goal, and
// the sweep cursor.
func (sp *ObjectSpace) beforeGcSweep() {
	if sp.flags.gcStatistics && sp.flags.verboseGCStats {
		sp.stats.freedObjects = 0
		sp.stats.processed = 0
		sp.stats.zombies = 0
		sp.stats.freelistSize = 0
		sp.stats.freeCounts = [tMask + 1]uint64{}
		sp.stats.liveCounts = [tMask + 1]uint64{}
	}

	floor := sp.initialHeapMinSlots / heapObjLimit
	if sp.heap.used > floor {
		sp.heap.maxBlocksToFree = sp.heap.used - floor
	} else {
		sp.heap.maxBlocksToFree = 0
	}
	sp.heap.freedBlocks = 0

	total := sp.heap.used * heapObjLimit
	sp.heap.doHeapFree = total * 65 / 100
	sp.heap.freeMin = total * 20 / 100
	if sp.heap.freeMin < sp.initialFreeMin {
		sp.heap.freeMin = sp.initialFreeMin
	}
	sp.heap.sweepPages = sp.heap.pages
	sp.heap.freeNum = 0
	sp.heap.freePages = 0

	if sp.hooks.SweepMethodEntries != nil {
		sp.hooks.SweepMethodEntries(sp)
	}
}

// afterGcSweep finishes the sweep phase: grow if the cycle freed too
// little, recompute the malloc limit from the live ratio, and release
// pages emptied during sweep.
func (sp *ObjectSpace) afterGcSweep() error {
	sp.profSetMallocInfo()

	var t1 uint64
	if sp.flags.gcStatistics {
		t1 = nowMicros()
	}

	if sp.heap.freeNum < sp.heap.freeMin {
		if err := sp.setHeapsIncrement(); err != nil {
			return err
		}
		if _, err := sp.heapsIncrement(); err != nil {
			return err
		}
	}

	if sp.mallocParams.increase > sp.mallocParams.limit {
		total := sp.heap.used * heapObjLimit
		if total > 0 {
			sp.mallocParams.limit += uintptr(
				float64(sp.mallocParams.increase-sp.mallocParams.limit) *
					float64(sp.heap.liveNum) / float64(total))
		}
		if sp.mallocParams.limit < sp.initialMallocLimit {
			sp.mallocParams.limit = sp.initialMallocLimit
		}
	}
	sp.mallocParams.increase = 0

	sp.freeUnusedPages()

	if sp.flags.gcStatistics {
		sp.gcTimeAccumulator += nowMicros() - t1
		if sp.flags.verboseGCStats {
			sp.logSweepReport()
		}
	}
	return nil
}

// lazySweep advances the sweep cursor until a free cell appears or the
// cycle's pages run out.
func (sp *ObjectSpace) lazySweep() (bool, error) {
	if _, err := sp.heapsIncrement(); err != nil {
		return false, err
	}
	for sp.heap.sweepPages != 0 {
		ctl := pageControlAt(sp.heap.sweepPages)
		next := ctl.next
		sp.slotSweep(ctl)
		sp.heap.sweepPages = next
		if sp.hasFreeCell() {
			sp.flags.duringGC = false
			return true, nil
		}
	}
	return false, nil
}

// restSweep finishes any sweep phase left in progress.
func (sp *ObjectSpace) restSweep() error {
	if !sp.isLazySweeping() {
		return nil
	}
	for sp.heap.sweepPages != 0 {
		if _, err := sp.lazySweep(); err != nil {
			return err
		}
	}
	return sp.afterGcSweep()
}

// gcSweep sweeps the whole heap eagerly, for full collections.
func (sp *ObjectSpace) gcSweep() error {
	sp.beforeGcSweep()
	for sp.heap.sweepPages != 0 {
		ctl := pageControlAt(sp.heap.sweepPages)
		next := ctl.next
		sp.slotSweep(ctl)
		sp.heap.sweepPages = next
	}
	if err := sp.afterGcSweep(); err != nil {
		return err
	}
	sp.flags.duringGC = false
	return nil
}

// gcLazySweep is the allocation slow path: sweep a little; if the
// current cycle is exhausted, mark, then sweep again; grow as a last
// resort. Reports whether a free cell is available.
func (sp *ObjectSpace) gcLazySweep() (bool, error) {
	if sp.flags.dontLazySweep {
		return sp.garbageCollect()
	}

	ready, err := sp.readyToGC()
	if err != nil {
		return false, err
	}
	if !ready {
		return true, nil
	}

	sp.flags.duringGC = true
	sp.profTimerStart()
	sp.profSweepTimerStart()

	if sp.heap.sweepPages != 0 {
		res, err := sp.lazySweep()
		if err != nil {
			return false, err
		}
		if res {
			sp.profSweepTimerStop()
			sp.profSetMallocInfo()
			sp.profTimerStop(false)
			return true, nil
		}
	} else {
		ok, err := sp.heapsIncrement()
		if err != nil {
			return false, err
		}
		if ok {
			sp.flags.duringGC = false
			return true, nil
		}
	}
	if err := sp.afterGcSweep(); err != nil {
		return false, err
	}

	var gct1 uint64
	if sp.flags.gcStatistics {
		sp.stats.gcTimeAccumulatorBeforeGC = sp.gcTimeAccumulator
		sp.gcCollections++
		gct1 = nowMicros()
	}

	sp.profMarkTimerStart()
	sp.gcMarks()
	sp.profMarkTimerStop()

	sp.beforeGcSweep()
	if sp.heap.freeMin > sp.heap.used*heapObjLimit-sp.heap.liveNum {
		if err := sp.setHeapsIncrement(); err != nil {
			return false, err
		}
	}

	if sp.flags.gcStatistics {
		sp.gcTimeAccumulator += nowMicros() - gct1
	}

	sp.profSweepTimerStart()
	res, err := sp.lazySweep()
	if err != nil {
		return false, err
	}
	if !res {
		if err := sp.afterGcSweep(); err != nil {
			return false, err
		}
		if sp.hasFreeCell() {
			res = true
			sp.flags.duringGC = false
		}
	}
	sp.profSweepTimerStop()
	sp.profTimerStop(true)

	return res, nil
}

// ForceRecycle reclaims a cell immediately; the caller asserts it holds
// the last reference.
func (sp *ObjectSpace) ForceRecycle(v VALUE) {
	p := uintptr(v)
	if markedInBitmap(p) {
		sp.addPageLocalFreelist(p)
	} else {
		sp.heap.liveNum--
		ctl := sp.addPageLocalFreelist(p)
		if ctl.freeNext == 0 {
			sp.linkFreePage(ctl)
		}
	}
}
