// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package objspace implements the object-space memory manager and
// garbage collector for a dynamic object-oriented language runtime.
//
// Objects live in fixed-size cells carved out of page-aligned regions.
// Collection is conservative mark-and-sweep: marking is stop-the-world
// and scans the machine stack and saved registers for anything that
// looks like a cell pointer; sweeping is lazy, advancing one page at a
// time from the allocation slow path. A byte counter over the tracked
// general allocator provides a secondary collection trigger.
//
// The object space is owned by the host runtime and is not safe for
// concurrent use: every entry point must be called under the host's
// global lock.
package objspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"unsafe"
)

var (
	// ErrNoMemory is reported when a cell or tracked allocation cannot
	// be satisfied even after a rescue collection.
	ErrNoMemory = errors.New("failed to allocate memory")

	// ErrAllocSize is reported for negative or overflowing allocation
	// sizes before the heap is touched.
	ErrAllocSize = errors.New("negative allocation size (or too big)")
)

// A RangeError is reported for object ids that do not name a live
// object.
type RangeError string

func (e RangeError) Error() string { return string(e) }

// throw reports a structural bug. The heap cannot be trusted past this
// point, so the process is taken down the way the host runtime would.
func throw(msg string) {
	panic("objspace: " + msg)
}

func ptrAt(p uintptr) unsafe.Pointer { return unsafe.Pointer(p) }

// A DataFunc operates on the payload of a data object. Mark functions
// propagate reachability with Mark/MarkMaybe; free functions release
// payload memory.
type DataFunc func(sp *ObjectSpace, data uintptr)

// Handles stand in for function values inside cells: raw cells cannot
// hold Go functions, so mark/free behavior is interned once and
// referenced by index, which also keeps every vtable alive for as long
// as objects may refer to it.
type (
	MarkHandle uintptr
	FreeHandle uintptr
	TypeHandle uintptr
)

const (
	// NoFree leaves the payload alone at sweep.
	NoFree FreeHandle = 0
	// DefaultFree releases the payload with Xfree at sweep.
	DefaultFree FreeHandle = ^FreeHandle(0)

	dfreeDefault = ^uintptr(0)

	// Handles below handleBase are reserved: the typed-data flag
	// occupies the dfree slot with the constant 1.
	handleBase = 8
)

// A DataType describes a typed data object: the vtable of spec'd
// callbacks shared by every instance of the kind. Registered types are
// never released; the dfree slot of a swept typed object is rewritten to
// the type's free handle, which must outlive the object.
type DataType struct {
	Name        string
	Mark        DataFunc
	Free        DataFunc
	FreeDefault bool // release the payload with Xfree instead of Free
	Memsize     func(data uintptr) uintptr

	freeHandle uintptr
}

// A Finalizer is a user callback run after its object becomes
// unreachable. It receives the object's id, never the object itself.
type Finalizer func(objid VALUE)

type finalizerEntry struct {
	level int
	fn    Finalizer
}

// Hooks are the narrow contracts to the surrounding runtime. Every hook
// is optional; a nil hook contributes no roots and no behavior.
type Hooks struct {
	// MarkVM marks the top-level VM object graph.
	MarkVM func(sp *ObjectSpace)
	// Root tables owned by the VM, scanned in gcMarks order.
	MarkSymbols       func(sp *ObjectSpace)
	MarkEncodings     func(sp *ObjectSpace)
	MarkEndProcs      func(sp *ObjectSpace)
	MarkGlobalTbl     func(sp *ObjectSpace)
	MarkClassTbl      func(sp *ObjectSpace)
	MarkGenericIvarTbl func(sp *ObjectSpace)
	MarkParser        func(sp *ObjectSpace)
	MarkMethodEntries func(sp *ObjectSpace)

	// Per-object generic instance variables, for cells carrying the
	// external-ivar flag.
	MarkGenericIvars func(sp *ObjectSpace, obj VALUE)
	FreeGenericIvars func(sp *ObjectSpace, obj VALUE)

	// SymbolName resolves a symbol id for IDToRef, empty if unknown.
	SymbolName func(id uintptr) string

	// SafeLevel is recorded with each finalizer at registration time.
	SafeLevel func() int

	// IsExemptData reports payloads whose free handler must not run at
	// exit (threads, mutexes, fibers).
	IsExemptData func(obj VALUE) bool

	// FinalizerInterrupt is raised when sweep queues deferred
	// finalizers, so the host can schedule a drain.
	FinalizerInterrupt func()

	// SweepMethodEntries releases unlinked method entries at the start
	// of each sweep phase.
	SweepMethodEntries func(sp *ObjectSpace)

	// FinalizeIO releases a file's io state (closing descriptors as
	// needed). When nil, the state buffer is returned to the tracked
	// allocator.
	FinalizeIO func(sp *ObjectSpace, fptr uintptr)
}

// ObjectSpace is the process-wide object heap and its collector state.
type ObjectSpace struct {
	mallocParams struct {
		limit         uintptr
		increase      uintptr
		allocatedSize uint64
		allocations   uint64
	}

	heap struct {
		increment    uintptr
		pages        uintptr // *pageControl: global page list
		sweepPages   uintptr // pages still to sweep this cycle
		freePages    uintptr // pages with free cells
		reservePages uintptr // spare page controls
		sorted       []uintptr // *pageHeader, ascending address
		length       uintptr
		used         uintptr
		lomem, himem uintptr
		freed        uintptr // lowest released page, kept for reuse
		liveNum      uintptr
		freeNum      uintptr
		freeMin      uintptr
		finalNum     uintptr
		doHeapFree   uintptr
		maxBlocksToFree uintptr
		freedBlocks     uintptr
	}

	stats struct {
		processed     uint64
		freedObjects  uint64
		freelistSize  uint64
		zombies       uint64
		freeCounts    [tMask + 1]uint64
		liveCounts    [tMask + 1]uint64
		gcTimeAccumulatorBeforeGC uint64
		liveAfterLastMarkPhase    uintptr
	}

	flags struct {
		dontGC        bool
		dontLazySweep bool
		duringGC      bool
		gcStatistics  bool
		verboseGCStats bool
		finalizing    int32 // atomic
	}

	final struct {
		table    map[VALUE][]finalizerEntry
		deferred uintptr // atomic head of the zombie chain
	}

	markStack markStack
	profile   gcProfile

	globalList *gcList

	count             uintptr
	gcStress          bool
	heapSize          uintptr
	gcTimeAccumulator uint64
	dataFile          io.Writer
	gcCollections     uint64
	gcAllocatedSize   uint64
	gcNumAllocations  uint64
	liveObjects       uint64
	allocatedObjects  uint64

	initialMallocLimit  uintptr
	initialHeapMinSlots uintptr
	initialFreeMin      uintptr
	slotsIncrement      uintptr // pages per linear growth step
	growthFactor        float64

	stackStart uintptr

	regions     map[uintptr]memRegion
	markFuncs   []DataFunc
	freeFuncs   []DataFunc
	dataTypes   []*DataType
	markObjects []VALUE

	ioFreeHandle FreeHandle

	hooks Hooks
}

// gcList is one entry of the root pin list.
type gcList struct {
	varptr *VALUE
	next   *gcList
}

// Collection-policy defaults, overridable through the environment.
const (
	gcMallocLimit = 8000000
	heapMinSlots  = 10000
	freeMinDefault = 4096
)

// New creates an empty object space. The caller seeds the machine stack
// with InitStack, applies the environment with ReadParams, and
// materializes the first pages with InitHeap.
func New(hooks Hooks) *ObjectSpace {
	sp := &ObjectSpace{
		hooks:   hooks,
		regions: make(map[uintptr]memRegion),
	}
	sp.mallocParams.limit = gcMallocLimit
	sp.initialMallocLimit = gcMallocLimit
	sp.initialHeapMinSlots = heapMinSlots
	sp.initialFreeMin = freeMinDefault
	sp.slotsIncrement = heapMinSlots / heapObjLimit
	sp.growthFactor = 1.8
	sp.dataFile = os.Stderr
	sp.final.table = make(map[VALUE][]finalizerEntry)
	sp.ioFreeHandle = sp.RegisterFreeFunc(func(sp *ObjectSpace, fptr uintptr) {
		if sp.hooks.FinalizeIO != nil {
			sp.hooks.FinalizeIO(sp, fptr)
			return
		}
		sp.Xfree(fptr)
	})
	return sp
}

// InitStack records the base of the mutator's machine stack. The
// address must live in the host's outermost frame on the mutator
// thread; conservative scanning covers everything between it and the
// stack top at mark time.
func (sp *ObjectSpace) InitStack(addr unsafe.Pointer) {
	sp.stackStart = uintptr(addr)
}

// InitHeap materializes the minimum heap and the mark-stack chunk
// cache. Call once, after ReadParams.
func (sp *ObjectSpace) InitHeap() error {
	if err := sp.addPages(sp.initialHeapMinSlots / heapObjLimit); err != nil {
		return err
	}
	sp.markStack.init(sp)
	sp.profile.invokeTime = nowSeconds()
	return nil
}

// ReadParams applies the GC_* environment variables, then scrubs them
// from the environment so child processes do not inherit them.
func (sp *ObjectSpace) ReadParams() {
	if v, ok := envTake("GC_DATA_FILE"); ok {
		f, err := os.Create(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "can't open gc log file %s for writing, using default\n", v)
		} else {
			sp.dataFile = f
		}
	}

	if v, ok := envTake("GC_STATS"); ok {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			sp.flags.verboseGCStats = true
			fmt.Fprintf(sp.dataFile, "GC_STATS=%d\n", i)
		}
	}

	if v, ok := envTake("GC_MALLOC_LIMIT"); ok {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			if sp.flags.verboseGCStats {
				fmt.Fprintf(sp.dataFile, "GC_MALLOC_LIMIT=%s\n", v)
			}
			sp.initialMallocLimit = uintptr(i)
			sp.mallocParams.limit = sp.initialMallocLimit
		}
	}

	if v, ok := envTake("GC_HEAP_MIN_SLOTS"); ok {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			if sp.flags.verboseGCStats {
				fmt.Fprintf(sp.dataFile, "GC_HEAP_MIN_SLOTS=%s\n", v)
			}
			sp.initialHeapMinSlots = uintptr(i)
			if sp.heap.used > 0 {
				// The heap exists already: expand it now.
				if err := sp.initialExpandHeap(); err != nil {
					fmt.Fprintf(os.Stderr, "objspace: heap expansion failed: %v\n", err)
				}
			}
		}
	}

	v, ok := envTake("FREE_MIN")
	if v2, ok2 := envTake("GC_HEAP_FREE_MIN"); !ok {
		v, ok = v2, ok2
	}
	if ok {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			if sp.flags.verboseGCStats {
				fmt.Fprintf(sp.dataFile, "GC_HEAP_FREE_MIN=%s\n", v)
			}
			sp.initialFreeMin = uintptr(i)
		}
	}

	if v, ok := envTake("GC_HEAP_SLOTS_INCREMENT"); ok {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			if sp.flags.verboseGCStats {
				fmt.Fprintf(sp.dataFile, "GC_HEAP_SLOTS_INCREMENT=%s\n", v)
			}
			sp.slotsIncrement = uintptr(i) / heapObjLimit
		}
	}

	if v, ok := envTake("GC_HEAP_SLOTS_GROWTH_FACTOR"); ok {
		if d, err := strconv.ParseFloat(v, 64); err == nil && d > 0 {
			if sp.flags.verboseGCStats {
				fmt.Fprintf(sp.dataFile, "GC_HEAP_SLOTS_GROWTH_FACTOR=%s\n", v)
			}
			sp.growthFactor = d
		}
	}
}

func envTake(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if ok {
		os.Unsetenv(name)
	}
	return v, ok
}

// RegisterAddress adds the variable at addr to the root pin list: the
// value it holds survives collection regardless of other reachability.
func (sp *ObjectSpace) RegisterAddress(addr *VALUE) {
	sp.globalList = &gcList{varptr: addr, next: sp.globalList}
}

// UnregisterAddress removes the first pin-list entry for addr, if any.
// A doubly registered address stays registered until unregistered as
// many times.
func (sp *ObjectSpace) UnregisterAddress(addr *VALUE) {
	tmp := sp.globalList
	if tmp == nil {
		return
	}
	if tmp.varptr == addr {
		sp.globalList = tmp.next
		return
	}
	for tmp.next != nil {
		if tmp.next.varptr == addr {
			tmp.next = tmp.next.next
			return
		}
		tmp = tmp.next
	}
}

// RegisterMarkObject pins obj in the globally marked array.
func (sp *ObjectSpace) RegisterMarkObject(obj VALUE) {
	sp.markObjects = append(sp.markObjects, obj)
}

// RegisterMarkFunc interns a payload mark function.
func (sp *ObjectSpace) RegisterMarkFunc(f DataFunc) MarkHandle {
	sp.markFuncs = append(sp.markFuncs, f)
	return MarkHandle(handleBase + len(sp.markFuncs) - 1)
}

// RegisterFreeFunc interns a payload free function.
func (sp *ObjectSpace) RegisterFreeFunc(f DataFunc) FreeHandle {
	sp.freeFuncs = append(sp.freeFuncs, f)
	return FreeHandle(handleBase + len(sp.freeFuncs) - 1)
}

// RegisterDataType interns a typed-data vtable. The returned handle is
// valid for the life of the process.
func (sp *ObjectSpace) RegisterDataType(t *DataType) TypeHandle {
	if t.Free != nil {
		t.freeHandle = uintptr(sp.RegisterFreeFunc(t.Free))
	} else if t.FreeDefault {
		t.freeHandle = dfreeDefault
	}
	sp.dataTypes = append(sp.dataTypes, t)
	return TypeHandle(len(sp.dataTypes))
}

func (sp *ObjectSpace) markFunc(h uintptr) DataFunc {
	if h < handleBase || int(h-handleBase) >= len(sp.markFuncs) {
		return nil
	}
	return sp.markFuncs[h-handleBase]
}

func (sp *ObjectSpace) freeFunc(h uintptr) DataFunc {
	if h < handleBase || int(h-handleBase) >= len(sp.freeFuncs) {
		return nil
	}
	return sp.freeFuncs[h-handleBase]
}

func (sp *ObjectSpace) dataType(h uintptr) *DataType {
	if h == 0 || int(h) > len(sp.dataTypes) {
		return nil
	}
	return sp.dataTypes[h-1]
}

// DataTypeName reports the registered type name of a typed data object,
// empty otherwise.
func (sp *ObjectSpace) DataTypeName(obj VALUE) string {
	if !typedDataP(obj) {
		return ""
	}
	if t := sp.dataType(typedDataOf(obj).typ); t != nil {
		return t.Name
	}
	return ""
}

// DataTypeMemsize reports the bytes attributed to a typed data payload.
func (sp *ObjectSpace) DataTypeMemsize(obj VALUE) uintptr {
	if !typedDataP(obj) {
		return 0
	}
	if t := sp.dataType(typedDataOf(obj).typ); t != nil && t.Memsize != nil {
		return t.Memsize(dataPtr(obj))
	}
	return 0
}

// DuringGC reports whether the collector is inside its critical section.
func (sp *ObjectSpace) DuringGC() bool { return sp.flags.duringGC }

// Free tears the object space down, returning every page, control,
// mark-stack chunk and tracked allocation to the operating system. The
// space is unusable afterwards.
func (sp *ObjectSpace) Free() error {
	if err := sp.restSweep(); err != nil {
		return err
	}
	sp.profile.records = nil
	sp.globalList = nil

	for p := sp.heap.reservePages; p != 0; {
		next := pageControlAt(p).freeNext
		sp.sysFree(p)
		p = next
	}
	sp.heap.reservePages = 0

	if sp.heap.freed != 0 {
		sp.alignedFree(sp.heap.freed)
		sp.heap.freed = 0
	}
	for _, membase := range sp.heap.sorted {
		sp.sysFree(pageHeaderAt(membase).base)
		sp.alignedFree(membase)
	}
	sp.heap.sorted = nil
	sp.heap.pages, sp.heap.freePages, sp.heap.sweepPages = 0, 0, 0
	sp.heap.used, sp.heap.length, sp.heap.increment = 0, 0, 0
	sp.heap.lomem, sp.heap.himem = 0, 0

	sp.markStack.freeChunks()

	// Whatever the host leaked through the tracked allocator goes back
	// with the space.
	for p, r := range sp.regions {
		delete(sp.regions, p)
		osFree(r)
	}
	return nil
}
