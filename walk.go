// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Object-space introspection: the heap iterator, the per-kind census,
// and object identity.

package objspace

import "fmt"

// An EachObjectFunc receives one run of cells: the first live cell of a
// page, the end of the page's cell range, and the cell stride. A true
// result stops the iteration.
type EachObjectFunc func(start, end, stride uintptr) bool

// EachObject walks every page in registry order. Any sweep in progress
// is finished first and lazy sweeping is held off for the duration, so
// the callback never observes a half-swept page.
func (sp *ObjectSpace) EachObject(callback EachObjectFunc) error {
	if err := sp.restSweep(); err != nil {
		return err
	}
	sp.flags.dontLazySweep = true
	defer func() { sp.flags.dontLazySweep = false }()

	// Pages may be released by the callback; track position by address
	// rather than index.
	var membase uintptr
	i := 0
	for i < len(sp.heap.sorted) {
		for i > 0 && membase < sp.heap.sorted[i-1] {
			i--
		}
		for i < len(sp.heap.sorted) && sp.heap.sorted[i] <= membase {
			i++
		}
		if i >= len(sp.heap.sorted) {
			break
		}
		membase = sp.heap.sorted[i]

		header := pageHeaderAt(membase)
		pstart, pend := header.start, header.end
		for ; pstart != pend; pstart += cellSize {
			if cellAt(pstart).flags != 0 {
				break
			}
		}
		if pstart != pend {
			if callback(pstart, pend, cellSize) {
				break
			}
		}
	}
	return nil
}

// CountObjects censuses the heap: total cells, free cells, and one
// count per kind tag.
func (sp *ObjectSpace) CountObjects() (total, free uintptr, counts [tMask + 1]uintptr) {
	for _, membase := range sp.heap.sorted {
		header := pageHeaderAt(membase)
		for p := header.start; p < header.end; p += cellSize {
			if c := cellAt(p); c.flags != 0 {
				counts[c.kind()]++
			} else {
				free++
			}
		}
		total += header.limit
	}
	return total, free, counts
}

// ObjectID returns the stable identifier for obj: address-derived for
// heap objects, tagged encodings for immediates and symbols.
func (sp *ObjectSpace) ObjectID(obj VALUE) VALUE {
	if symbolP(obj) {
		return VALUE(symbolID(obj)*cellSize+(4<<2)) | fixnumFlag
	}
	if specialConst(obj) {
		return obj
	}
	return nonspecialObjID(obj)
}

func objIDToRef(objid VALUE) uintptr { return uintptr(objid &^ fixnumFlag) }

func (sp *ObjectSpace) isIDValue(ptr uintptr) bool {
	if !sp.isPointerToHeap(ptr) {
		return false
	}
	t := uintptr(basicOf(VALUE(ptr)).flags) & tMask
	if t > tFixnum || t == tIClass {
		return false
	}
	return true
}

// isDeadObject reports cells that lost the last mark phase but have not
// been swept yet.
func (sp *ObjectSpace) isDeadObject(ptr uintptr) bool {
	if !sp.isLazySweeping() || markedInBitmap(ptr) {
		return false
	}
	for s := sp.heap.sweepPages; s != 0; s = pageControlAt(s).next {
		h := pageControlAt(s).header()
		if h.start <= ptr && ptr < h.end {
			return true
		}
	}
	return false
}

func (sp *ObjectSpace) isLiveObject(ptr uintptr) bool {
	if basicOf(VALUE(ptr)).flags&tMask == tNone {
		return false
	}
	if basicOf(VALUE(ptr)).klass == 0 {
		return false
	}
	return !sp.isDeadObject(ptr)
}

// IDToRef converts an object id back to a reference. It reports a
// RangeError for ids that never named an object and for recycled
// objects.
func (sp *ObjectSpace) IDToRef(objid VALUE) (VALUE, error) {
	switch objid {
	case Qtrue, Qfalse, Qnil:
		return objid, nil
	}
	if !fixnumP(objid) {
		return 0, RangeError(fmt.Sprintf("%#x is not id value", objid))
	}
	ref := objIDToRef(objid)

	if ref%cellSize == 4<<2 {
		id := ref / cellSize
		if sp.hooks.SymbolName == nil || sp.hooks.SymbolName(id) == "" {
			return 0, RangeError(fmt.Sprintf("%#x is not symbol id value", objid))
		}
		return makeSymbol(id), nil
	}

	if sp.isIDValue(ref) {
		if !sp.isLiveObject(ref) {
			return 0, RangeError(fmt.Sprintf("%#x is recycled object", objid))
		}
		return VALUE(ref), nil
	}

	// The id of an immediate integer is the integer itself.
	return objid, nil
}
