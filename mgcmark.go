// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Garbage collector: marking.
//
// The root set is the VM object graph, the machine context of the
// mutator thread, the host's interned tables, the pin list and the
// globally marked array. The finalizer table adds no roots. Everything found
// goes through Mark, which tests and sets the bitmap and defers child
// enumeration to the gray stack. Child enumeration follows the last
// child of each object inline so linear chains do not grow the stack.

package objspace

import "unsafe"

// Mark propagates reachability to v. It is the entry point for user
// mark callbacks as well as the collector's own root scan.
func (sp *ObjectSpace) Mark(v VALUE) { sp.gcMark(v) }

// MarkMaybe marks v only if it points into the heap. Roots that may
// hold arbitrary words go through here.
func (sp *ObjectSpace) MarkMaybe(v VALUE) {
	if sp.isPointerToHeap(uintptr(v)) {
		sp.gcMark(v)
	}
}

// MarkLocations conservatively scans the half-open range of machine
// words [start, end).
func (sp *ObjectSpace) MarkLocations(start, end unsafe.Pointer) {
	sp.markLocations(uintptr(start), uintptr(end))
}

func (sp *ObjectSpace) gcMarkPtr(ptr VALUE) bool {
	p := uintptr(ptr)
	if markedInBitmap(p) {
		return false
	}
	markInBitmap(p)
	sp.heap.liveNum++
	return true
}

func (sp *ObjectSpace) gcMark(ptr VALUE) {
	if specialConst(ptr) {
		return // immediates are not heap cells
	}
	if basicOf(ptr).flags == 0 {
		return // free cell
	}
	if !sp.gcMarkPtr(ptr) {
		return // already marked
	}
	sp.markStack.push(ptr)
}

func (sp *ObjectSpace) gcMarkStackedObjects() {
	if sp.markStack.index == 0 {
		return
	}
	for {
		obj, ok := sp.markStack.pop()
		if !ok {
			break
		}
		sp.gcMarkChildren(obj)
	}
	sp.markStack.shrinkCache()
}

func (sp *ObjectSpace) markLocationsArray(x uintptr, n uintptr) {
	for ; n > 0; n-- {
		v := *(*VALUE)(ptrAt(x))
		if sp.isPointerToHeap(uintptr(v)) {
			sp.gcMark(v)
		}
		x += ptrSize
	}
}

func (sp *ObjectSpace) markLocations(start, end uintptr) {
	if end <= start {
		return
	}
	sp.markLocationsArray(start, (end-start)/ptrSize)
}

func (sp *ObjectSpace) markTableValues(t *valueTable) {
	if t == nil || t.numEntries == 0 {
		return
	}
	t.foreach(func(_, value VALUE) bool {
		sp.gcMark(value)
		return true
	})
}

func (sp *ObjectSpace) markTableKeys(t *valueTable) {
	if t == nil {
		return
	}
	t.foreach(func(key, _ VALUE) bool {
		sp.gcMark(key)
		return true
	})
}

func (sp *ObjectSpace) markTableKeyValue(t *valueTable) {
	if t == nil {
		return
	}
	t.foreach(func(key, value VALUE) bool {
		sp.gcMark(key)
		sp.gcMark(value)
		return true
	})
}

const regSaveSlots = 32

// flushRegisters is the portable stand-in for the register-window flush
// plus setjmp save: the non-inlined call boundary forces every live
// register of the frames above into their stack save areas, where the
// conservative scan below will visit them. The buffer doubles as the
// stack-top anchor and is scanned in case the compiler spilled anything
// into it.
//
//go:noinline
func flushRegisters(buf *[regSaveSlots]uintptr) {
}

// markCurrentMachineContext scans the saved-register area and the
// machine stack between the current top and the base seeded by
// InitStack, orientation chosen by growth direction.
func (sp *ObjectSpace) markCurrentMachineContext() {
	var save [regSaveSlots]uintptr
	flushRegisters(&save)

	stackEnd := uintptr(unsafe.Pointer(&save[0]))
	sp.markLocationsArray(stackEnd, regSaveSlots)

	if sp.stackStart == 0 {
		return
	}
	start, end := stackEnd, sp.stackStart
	if start > end {
		// Upward-growing stack: scan from the base through the top,
		// including the word at the top.
		start, end = end, start+ptrSize
	}
	sp.markLocations(start, end)
}

// gcMarks runs the stop-the-world mark phase: reset the live count,
// scan every root in order, then drain the gray stack.
func (sp *ObjectSpace) gcMarks() {
	sp.heap.liveNum = 0
	sp.count++
	sp.liveObjects = 0

	if sp.hooks.MarkVM != nil {
		sp.hooks.MarkVM(sp)
	}

	// Finalizer callables are host-side values kept alive by the
	// registration table itself; a finalizable object that dies is
	// retained as a zombie until its drain, so the table contributes no
	// cell roots.

	sp.markCurrentMachineContext()

	if sp.hooks.MarkSymbols != nil {
		sp.hooks.MarkSymbols(sp)
	}
	if sp.hooks.MarkEncodings != nil {
		sp.hooks.MarkEncodings(sp)
	}

	for list := sp.globalList; list != nil; list = list.next {
		sp.MarkMaybe(*list.varptr)
	}

	if sp.hooks.MarkEndProcs != nil {
		sp.hooks.MarkEndProcs(sp)
	}
	if sp.hooks.MarkGlobalTbl != nil {
		sp.hooks.MarkGlobalTbl(sp)
	}
	if sp.hooks.MarkClassTbl != nil {
		sp.hooks.MarkClassTbl(sp)
	}
	if sp.hooks.MarkGenericIvarTbl != nil {
		sp.hooks.MarkGenericIvarTbl(sp)
	}
	if sp.hooks.MarkParser != nil {
		sp.hooks.MarkParser(sp)
	}
	if sp.hooks.MarkMethodEntries != nil {
		sp.hooks.MarkMethodEntries(sp)
	}

	for _, v := range sp.markObjects {
		sp.gcMark(v)
	}

	sp.gcMarkStackedObjects()

	sp.stats.liveAfterLastMarkPhase = sp.heap.liveNum
	sp.liveObjects = uint64(sp.heap.liveNum)
}

// gcMarkChildren enumerates the children of ptr by kind and feeds them
// back through the marker. The last child of each object is followed
// inline rather than pushed.
func (sp *ObjectSpace) gcMarkChildren(ptr VALUE) {
	for tail := false; ; {
		if tail {
			if specialConst(ptr) {
				return
			}
			if basicOf(ptr).flags == 0 {
				return
			}
			if !sp.gcMarkPtr(ptr) {
				return
			}
		}
		tail = true

		obj := basicOf(ptr)
		if obj.flags&flExivar != 0 && sp.hooks.MarkGenericIvars != nil {
			sp.hooks.MarkGenericIvars(sp, ptr)
		}

		switch uintptr(obj.flags) & tMask {
		case tNil, tFixnum:
			throw("gcMarkChildren called for broken object")

		case tNode:
			n := nodeOf(ptr)
			switch n.nodeType() {
			case nodeIf, nodeFor, nodeIter, nodeWhen, nodeMasgn, nodeRescue,
				nodeResbody, nodeClass, nodeBlockPass:
				// slots 1, 2, 3
				sp.gcMark(VALUE(n.u2))
				sp.gcMark(VALUE(n.u1))
				ptr = VALUE(n.u3)
				continue

			case nodeBlock, nodeOptblock, nodeArray, nodeDstr, nodeDxstr,
				nodeDregx, nodeDregxOnce, nodeEnsure, nodeCall, nodeDefs,
				nodeOpAsgn1, nodeArgs:
				// slots 1, 3
				sp.gcMark(VALUE(n.u1))
				ptr = VALUE(n.u3)
				continue

			case nodeSuper, nodeFcall, nodeDefn, nodeArgsAux:
				// slot 3
				ptr = VALUE(n.u3)
				continue

			case nodeWhile, nodeUntil, nodeAnd, nodeOr, nodeCase, nodeSclass,
				nodeDot2, nodeDot3, nodeFlip2, nodeFlip3, nodeMatch2,
				nodeMatch3, nodeOpAsgnOr, nodeOpAsgnAnd, nodeModule,
				nodeAlias, nodeValias, nodeArgscat:
				// slots 1, 2
				sp.gcMark(VALUE(n.u1))
				ptr = VALUE(n.u2)
				continue

			case nodeGasgn, nodeLasgn, nodeDasgn, nodeDasgnCurr, nodeIasgn,
				nodeIasgn2, nodeCvasgn, nodeColon3, nodeOptN, nodeEvstr,
				nodeUndef, nodePostexe:
				// slot 2
				ptr = VALUE(n.u2)
				continue

			case nodeHash, nodeLit, nodeStr, nodeXstr, nodeDefined, nodeMatch,
				nodeReturn, nodeBreak, nodeNext, nodeYield, nodeColon2,
				nodeSplat, nodeToAry:
				// slot 1
				ptr = VALUE(n.u1)
				continue

			case nodeScope, nodeCdecl, nodeOptArg:
				// slots 2, 3
				sp.gcMark(VALUE(n.u3))
				ptr = VALUE(n.u2)
				continue

			case nodeZarray, nodeZsuper, nodeVcall, nodeGvar, nodeLvar,
				nodeDvar, nodeIvar, nodeCvar, nodeNthRef, nodeBackRef,
				nodeRedo, nodeRetry, nodeSelf, nodeNil, nodeTrue, nodeFalse,
				nodeErrinfo, nodeBlockArg:
				return

			case nodeAlloca:
				// An embedded word array, scanned conservatively.
				sp.markLocationsArray(n.u1, n.u3)
				ptr = VALUE(n.u2)
				continue

			default:
				// Unlisted sub-kind: treat every slot as a maybe-child.
				sp.MarkMaybe(VALUE(n.u1))
				sp.MarkMaybe(VALUE(n.u2))
				sp.MarkMaybe(VALUE(n.u3))
				return
			}
		}

		sp.gcMark(obj.klass)

		switch uintptr(obj.flags) & tMask {
		case tIClass, tClass, tModule:
			sp.markTableValues(tableAt(classOf(ptr).m))
			ext := classExtOf(ptr)
			if ext == nil {
				return
			}
			sp.markTableValues(tableAt(ext.ivTbl))
			sp.markTableValues(tableAt(ext.constTbl))
			ptr = ext.super
			continue

		case tArray:
			if obj.flags&eltsShared != 0 {
				ptr = arrayOf(ptr).aux
				continue
			}
			buf := arrayPtr(ptr)
			for i, n := uintptr(0), arrayLen(ptr); i < n; i++ {
				sp.gcMark(valueSlot(buf, i))
			}
			return

		case tHash:
			sp.markTableKeyValue(hashTbl(ptr))
			ptr = hashOf(ptr).ifnone
			continue

		case tString:
			if obj.flags&strNoEmbed != 0 && obj.flags&(eltsShared|strAssoc) != 0 {
				ptr = stringOf(ptr).aux
				continue
			}
			return

		case tData:
			if typedDataP(ptr) {
				if t := sp.dataType(typedDataOf(ptr).typ); t != nil && t.Mark != nil {
					t.Mark(sp, dataPtr(ptr))
				}
			} else if f := sp.markFunc(dataOf(ptr).dmark); f != nil {
				f(sp, dataPtr(ptr))
			}
			return

		case tObject:
			buf := objectIVPtr(ptr)
			for i, n := uintptr(0), objectNumIV(ptr); i < n; i++ {
				sp.gcMark(valueSlot(buf, i))
			}
			return

		case tFile:
			if fptr := fileStateOf(ptr); fptr != nil {
				sp.gcMark(fptr.pathv)
				sp.gcMark(fptr.tiedIOForWriting)
				sp.gcMark(fptr.writeconvAsciicompat)
				sp.gcMark(fptr.writeconvPreEcopts)
				sp.gcMark(fptr.ecopts)
				sp.gcMark(fptr.writeLock)
			}
			return

		case tRegexp:
			ptr = regexpOf(ptr).src
			continue

		case tFloat, tBignum, tZombie:
			return

		case tMatch:
			m := matchOf(ptr)
			sp.gcMark(m.regexp)
			if m.str != 0 {
				ptr = m.str
				continue
			}
			return

		case tRational:
			sp.gcMark(rationalOf(ptr).num)
			ptr = rationalOf(ptr).den
			continue

		case tComplex:
			sp.gcMark(complexOf(ptr).real)
			ptr = complexOf(ptr).imag
			continue

		case tStruct:
			buf := structPtr(ptr)
			for i, n := uintptr(0), structLen(ptr); i < n; i++ {
				sp.gcMark(valueSlot(buf, i))
			}
			return

		default:
			throw("gcMarkChildren: unknown data type")
		}
	}
}

func tableAt(p uintptr) *valueTable {
	if p == 0 {
		return nil
	}
	return (*valueTable)(unsafe.Pointer(p))
}
