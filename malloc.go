// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Cell allocation fast path and the tracked general allocator.
//
// NewCell pops from the current free page's freelist. An empty freelist
// drives one unit of lazy sweep; if the sweep produces nothing, a full
// mark runs and sweeping restarts; if the heap is still full, it grows.
// The tracked allocator wraps raw OS allocation so that byte pressure
// from ordinary host allocations feeds the collection trigger.

package objspace

import "unsafe"

// NewCell hands out one zeroed free cell. The returned value has zero
// flags; the caller must install the kind tag and payload before the
// next allocation can trigger a collection.
func (sp *ObjectSpace) NewCell() (VALUE, error) {
	if sp.flags.duringGC {
		sp.flags.dontGC = true
		sp.flags.duringGC = false
		throw("object allocation during garbage collection phase")
	}

	if sp.gcStress {
		if ok, err := sp.garbageCollect(); err != nil {
			return 0, err
		} else if !ok {
			sp.flags.duringGC = false
			return 0, ErrNoMemory
		}
	}

	if !sp.hasFreeCell() {
		ok, err := sp.gcLazySweep()
		if err != nil {
			return 0, err
		}
		if !ok {
			sp.flags.duringGC = false
			return 0, ErrNoMemory
		}
	}

	ctl := pageControlAt(sp.heap.freePages)
	obj := ctl.freelist
	ctl.freelist = cellAt(obj).s1
	if ctl.freelist == 0 {
		sp.unlinkFreePage(ctl)
	}

	memclr(obj, cellSize)
	sp.liveObjects++
	sp.allocatedObjects++
	sp.heap.liveNum++

	return VALUE(obj), nil
}

// NewNode allocates an AST node of the given sub-kind with its three
// union slots.
func (sp *ObjectSpace) NewNode(ntype uintptr, a0, a1, a2 uintptr) (VALUE, error) {
	v, err := sp.NewCell()
	if err != nil {
		return 0, err
	}
	n := nodeOf(v)
	n.flags |= tNode
	n.setNodeType(ntype)
	n.u1 = a0
	n.u2 = a1
	n.u3 = a2
	return v, nil
}

// NewData allocates a data object whose payload is marked and released
// through the given handles.
func (sp *ObjectSpace) NewData(klass VALUE, payload uintptr, dmark MarkHandle, dfree FreeHandle) (VALUE, error) {
	v, err := sp.NewCell()
	if err != nil {
		return 0, err
	}
	d := dataOf(v)
	d.basic.flags = tData
	d.basic.klass = klass
	d.dmark = uintptr(dmark)
	d.dfree = uintptr(dfree)
	d.data = payload
	return v, nil
}

// NewTypedData allocates a data object bound to a registered vtable.
func (sp *ObjectSpace) NewTypedData(klass VALUE, payload uintptr, typ TypeHandle) (VALUE, error) {
	if sp.dataType(uintptr(typ)) == nil {
		throw("unregistered data type")
	}
	v, err := sp.NewCell()
	if err != nil {
		return 0, err
	}
	d := typedDataOf(v)
	d.basic.flags = tData
	d.basic.klass = klass
	d.typ = uintptr(typ)
	d.typedFlag = typedFlagValue
	d.data = payload
	return v, nil
}

// mallocPrepare validates the size and runs the pressure-triggered
// collection before the allocation happens.
func (sp *ObjectSpace) mallocPrepare(size uintptr) (uintptr, error) {
	if int(size) < 0 {
		return 0, ErrAllocSize
	}
	if size == 0 {
		size = 1
	}
	if sp.gcStress || sp.mallocParams.increase+size > sp.mallocParams.limit {
		if _, err := sp.garbageCollect(); err != nil {
			return 0, err
		}
	}
	return size, nil
}

// mallocFixup charges the allocation to the pressure counter.
func (sp *ObjectSpace) mallocFixup(mem uintptr, size uintptr) uintptr {
	sp.mallocParams.increase += size
	sp.mallocParams.allocatedSize += uint64(size)
	sp.mallocParams.allocations++
	if sp.flags.gcStatistics {
		sp.gcAllocatedSize += uint64(size)
		sp.gcNumAllocations++
	}
	return mem
}

// tryWithGC attempts an allocation, rescuing a failure with one
// collection before giving up.
func (sp *ObjectSpace) tryWithGC(size uintptr) (uintptr, error) {
	mem := sp.sysAlloc(size)
	if mem == 0 {
		if ok, err := sp.garbageCollect(); err != nil {
			return 0, err
		} else if ok {
			mem = sp.sysAlloc(size)
		}
		if mem == 0 {
			return 0, ErrNoMemory
		}
	}
	return mem, nil
}

// Xmalloc obtains size bytes of zeroed tracked memory.
func (sp *ObjectSpace) Xmalloc(size uintptr) (uintptr, error) {
	size, err := sp.mallocPrepare(size)
	if err != nil {
		return 0, err
	}
	mem, err := sp.tryWithGC(size)
	if err != nil {
		return 0, err
	}
	return sp.mallocFixup(mem, size), nil
}

// Xcalloc obtains count*elsize bytes of zeroed tracked memory, checking
// the product for overflow.
func (sp *ObjectSpace) Xcalloc(count, elsize uintptr) (uintptr, error) {
	size, err := xmallocSize(count, elsize)
	if err != nil {
		return 0, err
	}
	return sp.Xmalloc(size)
}

// Xmalloc2 obtains n*size bytes, checking the product for overflow.
func (sp *ObjectSpace) Xmalloc2(n, size uintptr) (uintptr, error) {
	total, err := xmallocSize(n, size)
	if err != nil {
		return 0, err
	}
	return sp.Xmalloc(total)
}

func xmallocSize(n, size uintptr) (uintptr, error) {
	total := n * size
	if n != 0 && size != total/n {
		return 0, ErrAllocSize
	}
	return total, nil
}

// Xrealloc resizes a tracked allocation, preserving contents up to the
// smaller of the two sizes.
func (sp *ObjectSpace) Xrealloc(ptr uintptr, size uintptr) (uintptr, error) {
	if int(size) < 0 {
		return 0, ErrAllocSize
	}
	if ptr == 0 {
		return sp.Xmalloc(size)
	}
	if size == 0 {
		sp.Xfree(ptr)
		return 0, nil
	}
	if sp.gcStress {
		if _, err := sp.garbageCollect(); err != nil {
			return 0, err
		}
	}
	mem, err := sp.tryWithGC(size)
	if err != nil {
		return 0, err
	}
	old := sp.regionSize(ptr)
	n := old
	if size < n {
		n = size
	}
	memmoveWords(mem, ptr, n&^(ptrSize-1))
	if rem := n & (ptrSize - 1); rem != 0 {
		for i := n &^ (ptrSize - 1); i < n; i++ {
			*(*byte)(ptrAt(mem + i)) = *(*byte)(ptrAt(ptr + i))
		}
	}
	sp.sysFree(ptr)
	sp.mallocParams.increase += size
	return mem, nil
}

// Xfree returns tracked memory.
func (sp *ObjectSpace) Xfree(ptr uintptr) {
	if ptr == 0 {
		return
	}
	size := sp.regionSize(ptr)
	sp.mallocParams.allocatedSize -= uint64(size)
	sp.mallocParams.allocations--
	sp.sysFree(ptr)
}

// xvalues allocates a tracked buffer of n VALUEs.
func (sp *ObjectSpace) xvalues(n uintptr) (uintptr, error) {
	return sp.Xmalloc2(n, unsafe.Sizeof(VALUE(0)))
}
