// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Export guts for testing.

package objspace

const (
	CellSize        = cellSize
	HeapObjLimit    = heapObjLimit
	HeapAlign       = heapAlign
	HeapAlignMask   = heapAlignMask
	HeapBitmapLimit = heapBitmapLimit
	StackChunkSize  = stackChunkSize

	TObject = tObject
	TClass  = tClass
	TString = tString
	TArray  = tArray
	THash   = tHash
	TData   = tData
	TFloat  = tFloat
	TZombie = tZombie
	TMask   = tMask

	FlFinalize  = flFinalize
	FlSingleton = flSingleton
	AryEmbed    = aryEmbed

	DfreeDefault = dfreeDefault
)

func (sp *ObjectSpace) HasFreeCell() bool       { return sp.hasFreeCell() }
func (sp *ObjectSpace) PagesUsed() uintptr      { return sp.heap.used }
func (sp *ObjectSpace) FreeNum() uintptr        { return sp.heap.freeNum }
func (sp *ObjectSpace) LiveNum() uintptr        { return sp.heap.liveNum }
func (sp *ObjectSpace) FinalNum() uintptr       { return sp.heap.finalNum }
func (sp *ObjectSpace) Increment() uintptr      { return sp.heap.increment }
func (sp *ObjectSpace) Lomem() uintptr          { return sp.heap.lomem }
func (sp *ObjectSpace) Himem() uintptr          { return sp.heap.himem }
func (sp *ObjectSpace) SortedPages() []uintptr  { return sp.heap.sorted }
func (sp *ObjectSpace) LazySweeping() bool      { return sp.isLazySweeping() }
func (sp *ObjectSpace) GrowthFactor() float64   { return sp.growthFactor }
func (sp *ObjectSpace) SlotsIncrement() uintptr { return sp.slotsIncrement }
func (sp *ObjectSpace) InitialMinSlots() uintptr { return sp.initialHeapMinSlots }

func (sp *ObjectSpace) PointerToHeap(p uintptr) bool { return sp.isPointerToHeap(p) }
func (sp *ObjectSpace) GarbageCollect() (bool, error) { return sp.garbageCollect() }
func (sp *ObjectSpace) LazySweepStep() (bool, error)  { return sp.gcLazySweep() }
func (sp *ObjectSpace) RestSweep() error              { return sp.restSweep() }
func (sp *ObjectSpace) DeferredList() uintptr         { return sp.final.deferred }
func (sp *ObjectSpace) FinalizerTableLen() int        { return len(sp.final.table) }

func (sp *ObjectSpace) FreedObjects() uint64 { return sp.stats.freedObjects }
func (sp *ObjectSpace) VerboseEnabled() bool { return sp.flags.verboseGCStats }

func (sp *ObjectSpace) SetMallocLimit(n uintptr) {
	sp.mallocParams.limit = n
	sp.initialMallocLimit = n
}

func (sp *ObjectSpace) SetInitialFreeMin(n uintptr) { sp.initialFreeMin = n }

func IsMarked(v VALUE) bool { return markedInBitmap(uintptr(v)) }

func KindOf(v VALUE) uintptr { return uintptr(basicOf(v).flags) & tMask }

func FlagsOf(v VALUE) VALUE { return basicOf(v).flags }

func PageHeaderFor(v VALUE) (start, end, limit uintptr) {
	h := headerOf(uintptr(v))
	return h.start, h.end, h.limit
}

// FreelistContains reports whether v's page freelist carries v.
func FreelistContains(v VALUE) bool {
	ctl := controlOf(uintptr(v))
	for p := ctl.freelist; p != 0; p = cellAt(p).s1 {
		if p == uintptr(v) {
			return true
		}
	}
	return false
}

// FreelistLen counts the freelist of v's page.
func FreelistLen(v VALUE) int {
	ctl := controlOf(uintptr(v))
	n := 0
	for p := ctl.freelist; p != 0; p = cellAt(p).s1 {
		n++
	}
	return n
}

// Test object constructors: the kind handlers live outside the
// collector in production; tests build cells directly.

// NewTestObject allocates a plain object with embedded ivar slots.
func (sp *ObjectSpace) NewTestObject(klass VALUE) (VALUE, error) {
	v, err := sp.NewCell()
	if err != nil {
		return 0, err
	}
	basicOf(v).flags = tObject | objEmbed
	basicOf(v).klass = klass
	return v, nil
}

// SetTestIvar stores a reference in an embedded ivar slot.
func SetTestIvar(obj VALUE, i int, val VALUE) {
	objectEmbedOf(obj).ary[i] = val
}

// NewTestArray allocates an array with a tracked element buffer.
func (sp *ObjectSpace) NewTestArray(elems []VALUE) (VALUE, error) {
	v, err := sp.NewCell()
	if err != nil {
		return 0, err
	}
	basicOf(v).flags = tArray
	buf, err := sp.xvalues(uintptr(len(elems)))
	if err != nil {
		return 0, err
	}
	for i, e := range elems {
		setValueSlot(buf, uintptr(i), e)
	}
	a := arrayOf(v)
	a.len = uintptr(len(elems))
	a.ptr = buf
	a.aux = VALUE(len(elems))
	return v, nil
}

// NewTestString allocates a string with a tracked byte buffer.
func (sp *ObjectSpace) NewTestString(s string) (VALUE, error) {
	v, err := sp.NewCell()
	if err != nil {
		return 0, err
	}
	basicOf(v).flags = tString | strNoEmbed
	buf, err := sp.Xmalloc(uintptr(len(s)) + 1)
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(s); i++ {
		*(*byte)(ptrAt(buf + uintptr(i))) = s[i]
	}
	st := stringOf(v)
	st.len = uintptr(len(s))
	st.ptr = buf
	st.aux = 0
	return v, nil
}

// stringBytesForTest reads a test string's payload back.
func stringBytesForTest(v VALUE) string {
	st := stringOf(v)
	b := make([]byte, st.len)
	for i := uintptr(0); i < st.len; i++ {
		b[i] = *(*byte)(ptrAt(st.ptr + i))
	}
	return string(b)
}

// NewTestHash allocates a hash with an empty table.
func (sp *ObjectSpace) NewTestHash() (VALUE, error) {
	v, err := sp.NewCell()
	if err != nil {
		return 0, err
	}
	basicOf(v).flags = tHash
	t, err := sp.newValueTable()
	if err != nil {
		return 0, err
	}
	h := hashOf(v)
	h.ntbl = t.addr()
	h.ifnone = Qnil
	return v, nil
}

// TestHashSet inserts a pair into a test hash.
func (sp *ObjectSpace) TestHashSet(h, k, val VALUE) error {
	return hashTbl(h).insert(sp, k, val)
}

// NewValueTable exposes table construction.
func (sp *ObjectSpace) NewValueTable() (*valueTable, error) { return sp.newValueTable() }

func (t *valueTable) Insert(sp *ObjectSpace, k, v VALUE) error { return t.insert(sp, k, v) }
func (t *valueTable) Lookup(k VALUE) (VALUE, bool)             { return t.lookup(k) }
func (t *valueTable) Delete(sp *ObjectSpace, k VALUE) (VALUE, bool) {
	return t.delete(sp, k)
}
func (t *valueTable) NumEntries() uintptr { return t.numEntries }
func (t *valueTable) Foreach(f func(k, v VALUE) bool) { t.foreach(f) }
func (t *valueTable) Free(sp *ObjectSpace)            { t.free(sp) }

// Mark-stack access for tests.
type MarkStack = markStack

func (sp *ObjectSpace) TestMarkStack() *markStack { return &sp.markStack }

func (s *markStack) Push(v VALUE)        { s.push(v) }
func (s *markStack) Pop() (VALUE, bool)  { return s.pop() }
func (s *markStack) Empty() bool         { return s.empty() }
func (s *markStack) CacheSize() uintptr  { return s.cacheSize }
func (s *markStack) ShrinkCache()        { s.shrinkCache() }

func NewTestSpace() *ObjectSpace {
	sp := New(Hooks{})
	if err := sp.InitHeap(); err != nil {
		panic(err)
	}
	return sp
}

func NewTestSpaceMin(slots uintptr) *ObjectSpace {
	sp := New(Hooks{})
	sp.initialHeapMinSlots = slots
	if err := sp.InitHeap(); err != nil {
		panic(err)
	}
	return sp
}

func (sp *ObjectSpace) SetVerbose(w interface{ Write([]byte) (int, error) }) {
	sp.dataFile = w
	sp.flags.gcStatistics = true
	sp.flags.verboseGCStats = true
}
