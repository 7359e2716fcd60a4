// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Statistics, the data-file log, and the verbose per-cycle report.

package objspace

import (
	"fmt"
	"io"
	"os"
)

// kindName names a kind tag for census output.
func kindName(t uintptr) string {
	switch t {
	case tNone:
		return "NONE"
	case tNil:
		return "NIL"
	case tObject:
		return "OBJECT"
	case tClass:
		return "CLASS"
	case tIClass:
		return "ICLASS"
	case tModule:
		return "MODULE"
	case tFloat:
		return "FLOAT"
	case tComplex:
		return "COMPLEX"
	case tRational:
		return "RATIONAL"
	case tString:
		return "STRING"
	case tRegexp:
		return "REGEXP"
	case tArray:
		return "ARRAY"
	case tFixnum:
		return "FIXNUM"
	case tHash:
		return "HASH"
	case tStruct:
		return "STRUCT"
	case tBignum:
		return "BIGNUM"
	case tFile:
		return "FILE"
	case tTrue:
		return "TRUE"
	case tFalse:
		return "FALSE"
	case tData:
		return "DATA"
	case tMatch:
		return "MATCH"
	case tSymbol:
		return "SYMBOL"
	case tZombie:
		return "ZOMBIE"
	case tUndef:
		return "UNDEF"
	case tNode:
		return "NODE"
	default:
		return "____"
	}
}

// EnableStats turns on time and allocation accounting, reporting the
// previous state.
func (sp *ObjectSpace) EnableStats() bool {
	old := sp.flags.gcStatistics
	sp.flags.gcStatistics = true
	return old
}

// DisableStats turns accounting off, reporting the previous state.
func (sp *ObjectSpace) DisableStats() bool {
	old := sp.flags.gcStatistics
	sp.flags.gcStatistics = false
	return old
}

// StatsEnabled reports whether accounting is on.
func (sp *ObjectSpace) StatsEnabled() bool { return sp.flags.gcStatistics }

// ClearStats resets the accumulated accounting counters.
func (sp *ObjectSpace) ClearStats() {
	sp.gcCollections = 0
	sp.gcTimeAccumulator = 0
	sp.gcAllocatedSize = 0
	sp.gcNumAllocations = 0
}

// AllocatedSize reports bytes charged to the tracked allocator while
// accounting was on.
func (sp *ObjectSpace) AllocatedSize() uint64 { return sp.gcAllocatedSize }

// NumAllocations reports tracked allocations made while accounting was
// on.
func (sp *ObjectSpace) NumAllocations() uint64 { return sp.gcNumAllocations }

// Collections reports collection cycles counted by accounting.
func (sp *ObjectSpace) Collections() uint64 { return sp.gcCollections }

// Time reports accumulated collector time in microseconds.
func (sp *ObjectSpace) Time() uint64 { return sp.gcTimeAccumulator }

// HeapSlots reports the total cell capacity of the heap.
func (sp *ObjectSpace) HeapSlots() uintptr { return sp.heapSize }

// FreeSlots reports cells not occupied by live objects.
func (sp *ObjectSpace) FreeSlots() uintptr {
	return sp.heap.used*heapObjLimit - sp.heap.liveNum
}

// LiveAfterLastMark reports the live count measured by the most recent
// mark phase.
func (sp *ObjectSpace) LiveAfterLastMark() uintptr {
	return sp.stats.liveAfterLastMarkPhase
}

// LiveObjects reports objects currently allocated; it goes down as the
// collector runs.
func (sp *ObjectSpace) LiveObjects() uint64 { return sp.liveObjects }

// AllocatedObjects reports objects allocated since the space was
// created; it only increases.
func (sp *ObjectSpace) AllocatedObjects() uint64 { return sp.allocatedObjects }

// MallocGrowth reports bytes charged since the last collection.
func (sp *ObjectSpace) MallocGrowth() uintptr { return sp.mallocParams.increase }

// MallocLimit reports the current pressure threshold.
func (sp *ObjectSpace) MallocLimit() uintptr { return sp.mallocParams.limit }

// Log writes one line to the collector's data file.
func (sp *ObjectSpace) Log(msg string) {
	fmt.Fprintln(sp.dataFile, msg)
}

// LogFile redirects the data file, closing a previously opened one.
// With an empty path the data file reverts to standard error.
func (sp *ObjectSpace) LogFile(path string) error {
	if c, ok := sp.dataFile.(io.Closer); ok && sp.dataFile != os.Stderr {
		c.Close()
	}
	if path == "" {
		sp.dataFile = os.Stderr
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		sp.dataFile = os.Stderr
		return err
	}
	sp.dataFile = f
	return nil
}

// logSweepReport writes the verbose after-sweep report.
func (sp *ObjectSpace) logSweepReport() {
	w := sp.dataFile
	fmt.Fprintf(w, "GC time: %d musec\n", sp.gcTimeAccumulator-sp.stats.gcTimeAccumulatorBeforeGC)
	fmt.Fprintf(w, "heap size        : %7d\n", sp.heap.used*heapObjLimit)
	fmt.Fprintf(w, "objects processed: %7d\n", sp.stats.processed)
	fmt.Fprintf(w, "live objects     : %7d\n", sp.stats.liveAfterLastMarkPhase)
	fmt.Fprintf(w, "freelist objects : %7d\n", sp.stats.freelistSize)
	fmt.Fprintf(w, "freed objects    : %7d\n", sp.stats.freedObjects)
	fmt.Fprintf(w, "zombies          : %7d\n", sp.stats.zombies)
	for i := uintptr(0); i < tMask; i++ {
		if sp.stats.freeCounts[i] > 0 || sp.stats.liveCounts[i] > 0 {
			fmt.Fprintf(w, "kept %7d / freed %7d objects of type %s\n",
				sp.stats.liveCounts[i], sp.stats.freeCounts[i], kindName(i))
		}
	}
}
