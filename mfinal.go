// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Garbage collector: finalizers.
//
// Sweep turns finalizable cells into zombies on the deferred list; the
// drain runs outside the collector's critical section, invoking each
// callable under a protection wrapper so one failure cannot stop the
// rest. The deferred head is swapped atomically so finalizers
// registered during a drain queue for the next one.

package objspace

import "sync/atomic"

func nonspecialObjID(obj VALUE) VALUE { return obj | fixnumFlag }

// Finalizable reports whether a finalizer may be attached to obj.
func (sp *ObjectSpace) Finalizable(obj VALUE) bool {
	return !specialConst(obj) && basicOf(obj).flags&tMask != tNode
}

// DefineFinalizer schedules fn to run after obj becomes unreachable.
// Finalizers on the same object run in registration order.
func (sp *ObjectSpace) DefineFinalizer(obj VALUE, fn Finalizer) error {
	if !sp.Finalizable(obj) {
		return RangeError("cannot define finalizer for this object")
	}
	level := 0
	if sp.hooks.SafeLevel != nil {
		level = sp.hooks.SafeLevel()
	}
	basicOf(obj).flags |= flFinalize
	if sp.final.table == nil {
		sp.final.table = make(map[VALUE][]finalizerEntry)
	}
	sp.final.table[obj] = append(sp.final.table[obj], finalizerEntry{level: level, fn: fn})
	return nil
}

// UndefineFinalizer removes all finalizers for obj.
func (sp *ObjectSpace) UndefineFinalizer(obj VALUE) {
	delete(sp.final.table, obj)
	basicOf(obj).flags &^= flFinalize
}

// CopyFinalizer propagates obj's finalizer list to dest.
func (sp *ObjectSpace) CopyFinalizer(dest, obj VALUE) {
	if basicOf(obj).flags&flFinalize == 0 {
		return
	}
	if table, ok := sp.final.table[obj]; ok {
		sp.final.table[dest] = table
	}
	basicOf(dest).flags |= flFinalize
}

// tryCall invokes one finalizer under protection: a panic is swallowed
// and the next finalizer still runs.
func tryCall(fn Finalizer, objid VALUE) {
	defer func() {
		_ = recover()
	}()
	fn(objid)
}

func (sp *ObjectSpace) runFinalizer(obj VALUE, table []finalizerEntry) {
	objid := nonspecialObjID(obj)
	for _, entry := range table {
		tryCall(entry.fn, objid)
	}
}

// runFinal releases a zombie's payload through its free handle, then
// runs its registered finalizers.
func (sp *ObjectSpace) runFinal(obj VALUE) {
	sp.heap.finalNum--

	basicOf(obj).klass = 0

	var freeHandle uintptr
	if typedDataP(obj) {
		freeHandle = sp.dataType(typedDataOf(obj).typ).freeHandle
	} else {
		freeHandle = dataOf(obj).dfree
	}
	if freeHandle == dfreeDefault {
		sp.Xfree(dataPtr(obj))
	} else if f := sp.freeFunc(freeHandle); f != nil {
		f(sp, dataPtr(obj))
	}

	if table, ok := sp.final.table[obj]; ok {
		delete(sp.final.table, obj)
		sp.runFinalizer(obj, table)
	}
}

// finalizeList walks a chain of zombies, finalizing each and returning
// its cell to the page freelist, unless the page was released during
// sweep, in which case only the page's limit drops.
func (sp *ObjectSpace) finalizeList(p uintptr) {
	for p != 0 {
		tmp := cellAt(p).s1
		sp.runFinal(VALUE(p))
		if !cellAt(p).test(flSingleton) {
			sp.addPageLocalFreelist(p)
			if !sp.isLazySweeping() {
				sp.heap.liveNum--
			}
		} else {
			headerOf(p).limit--
		}
		p = tmp
	}
}

func (sp *ObjectSpace) finalizeDeferred() {
	for {
		p := atomic.SwapUintptr(&sp.final.deferred, 0)
		if p == 0 {
			return
		}
		sp.finalizeList(p)
	}
}

// FinalizeDeferred drains the deferred finalizer list. At most one
// drain runs at a time; zombies produced during the drain queue for the
// next one.
func (sp *ObjectSpace) FinalizeDeferred() {
	if atomic.SwapInt32(&sp.flags.finalizing, 1) != 0 {
		return
	}
	sp.finalizeDeferred()
	atomic.StoreInt32(&sp.flags.finalizing, 0)
}

// CallFinalizerAtExit drains deferred finalizers, forces every
// remaining registration to run, then releases the io and data state of
// unfinalized cells, skipping payloads the host declares exempt.
func (sp *ObjectSpace) CallFinalizerAtExit() error {
	if err := sp.restSweep(); err != nil {
		return err
	}

	sp.finalizeDeferred()

	if atomic.SwapInt32(&sp.flags.finalizing, 1) != 0 {
		return nil
	}

	// Force remaining registrations, including any added by a running
	// finalizer.
	for len(sp.final.table) > 0 {
		type forced struct {
			obj   VALUE
			table []finalizerEntry
		}
		list := make([]forced, 0, len(sp.final.table))
		for obj, table := range sp.final.table {
			list = append(list, forced{obj, table})
		}
		for _, f := range list {
			sp.runFinalizer(f.obj, f.table)
			delete(sp.final.table, f.obj)
		}
	}

	// Free handlers are part of collection.
	sp.flags.duringGC = true

	var finalList uintptr
	chain := func(p uintptr) {
		cellAt(p).s1 = finalList
		finalList = p
	}
	for _, membase := range sp.heap.sorted {
		header := pageHeaderAt(membase)
		for p := header.start; p < header.end; p += cellSize {
			c := cellAt(p)
			v := VALUE(p)
			switch {
			case c.kind() == tData && dataPtr(v) != 0 && dataOf(v).dfree != 0 &&
				(sp.hooks.IsExemptData == nil || !sp.hooks.IsExemptData(v)):
				typed := typedDataOf(v).typedFlag == typedFlagValue
				c.flags = 0
				if typed {
					dataOf(v).dfree = sp.dataType(typedDataOf(v).typ).freeHandle
				}
				if dataOf(v).dfree == dfreeDefault {
					sp.Xfree(dataPtr(v))
				} else if dataOf(v).dfree != 0 {
					makeDeferred(c)
					chain(p)
				}
			case c.kind() == tFile && fileOf(v).fptr != 0:
				sp.makeIODeferred(v)
				chain(p)
			}
		}
	}
	sp.flags.duringGC = false

	if finalList != 0 {
		sp.finalizeList(finalList)
	}

	sp.final.table = nil
	atomic.StoreInt32(&sp.flags.finalizing, 0)
	return nil
}
