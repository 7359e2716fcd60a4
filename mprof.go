// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The GC profiler: optional per-cycle timing and heap records.

package objspace

import (
	"fmt"
	"io"
	"time"
)

func nowSeconds() float64 { return float64(time.Now().UnixNano()) / 1e9 }
func nowMicros() uint64   { return uint64(time.Now().UnixNano()) / 1000 }

// A GCProfileRecord captures one collection cycle.
type GCProfileRecord struct {
	GCTime           float64 // seconds spent in this cycle
	GCInvokeTime     float64 // seconds since InitHeap (or since the first ProfilerEnable without InitHeap)
	GCMarkTime       float64
	GCSweepTime      float64
	AllocateIncrease uintptr
	AllocateLimit    uintptr
	HeapUseSlots     uintptr
	HeapLiveObjects  uintptr
	HeapFreeObjects  uintptr
	HeapTotalObjects uintptr
	HeapUseSize      uintptr
	HeapTotalSize    uintptr
	HaveFinalize     bool
	IsMarked         bool
}

type gcProfile struct {
	run        bool
	records    []GCProfileRecord
	invokeTime float64

	cur       GCProfileRecord
	curActive bool
	t0        float64
	markT0    float64
	sweepT0   float64
}

func (sp *ObjectSpace) profTimerStart() {
	p := &sp.profile
	if !p.run {
		return
	}
	p.cur = GCProfileRecord{GCInvokeTime: nowSeconds() - p.invokeTime}
	p.curActive = true
	p.t0 = nowSeconds()
}

func (sp *ObjectSpace) profTimerStop(marked bool) {
	p := &sp.profile
	if !p.run || !p.curActive {
		return
	}
	p.cur.GCTime = nowSeconds() - p.t0
	p.cur.IsMarked = marked

	live := sp.heap.liveNum
	total := sp.heap.used * heapObjLimit
	p.cur.HeapUseSlots = sp.heap.used
	p.cur.HeapLiveObjects = live
	p.cur.HeapFreeObjects = total - live
	p.cur.HeapTotalObjects = total
	p.cur.HeapUseSize = live * cellSize
	p.cur.HeapTotalSize = total * cellSize
	p.cur.HaveFinalize = sp.final.deferred != 0

	p.records = append(p.records, p.cur)
	p.curActive = false
}

func (sp *ObjectSpace) profMarkTimerStart() {
	if sp.profile.run && sp.profile.curActive {
		sp.profile.markT0 = nowSeconds()
	}
}

func (sp *ObjectSpace) profMarkTimerStop() {
	if sp.profile.run && sp.profile.curActive {
		sp.profile.cur.GCMarkTime += nowSeconds() - sp.profile.markT0
	}
}

func (sp *ObjectSpace) profSweepTimerStart() {
	if sp.profile.run && sp.profile.curActive {
		sp.profile.sweepT0 = nowSeconds()
	}
}

func (sp *ObjectSpace) profSweepTimerStop() {
	if sp.profile.run && sp.profile.curActive {
		sp.profile.cur.GCSweepTime += nowSeconds() - sp.profile.sweepT0
	}
}

func (sp *ObjectSpace) profSetMallocInfo() {
	if sp.profile.run && sp.profile.curActive {
		sp.profile.cur.AllocateIncrease = sp.mallocParams.increase
		sp.profile.cur.AllocateLimit = sp.mallocParams.limit
	}
}

// ProfilerEnable starts recording collection cycles.
func (sp *ObjectSpace) ProfilerEnable() {
	sp.profile.run = true
	if sp.profile.invokeTime == 0 {
		sp.profile.invokeTime = nowSeconds()
	}
}

// ProfilerDisable stops recording. Existing records are kept.
func (sp *ObjectSpace) ProfilerDisable() {
	sp.profile.run = false
}

// ProfilerEnabled reports whether recording is on.
func (sp *ObjectSpace) ProfilerEnabled() bool { return sp.profile.run }

// ProfilerClear discards the recorded cycles.
func (sp *ObjectSpace) ProfilerClear() {
	sp.profile.records = nil
}

// ProfilerRawData returns a copy of the recorded cycles, nil when the
// profiler is off and holds no records.
func (sp *ObjectSpace) ProfilerRawData() []GCProfileRecord {
	if !sp.profile.run && sp.profile.records == nil {
		return nil
	}
	out := make([]GCProfileRecord, len(sp.profile.records))
	copy(out, sp.profile.records)
	return out
}

// ProfilerTotalTime sums the recorded cycle times, in seconds.
func (sp *ObjectSpace) ProfilerTotalTime() float64 {
	var total float64
	for i := range sp.profile.records {
		total += sp.profile.records[i].GCTime
	}
	return total
}

// ProfilerResult formats the recorded cycles as a report.
func (sp *ObjectSpace) ProfilerResult() string {
	p := &sp.profile
	if len(p.records) == 0 {
		return ""
	}
	out := fmt.Sprintf("GC %d invokes.\n", sp.count)
	out += "Index    Invoke Time(sec)       Use Size(byte)     Total Size(byte)         Total Object                    GC Time(ms)\n"
	index := 1
	for i := range p.records {
		r := &p.records[i]
		if !r.IsMarked {
			continue
		}
		out += fmt.Sprintf("%5d %19.3f %20d %20d %20d %30.20f\n",
			index, r.GCInvokeTime, r.HeapUseSize, r.HeapTotalSize,
			r.HeapTotalObjects, r.GCTime*1000)
		index++
	}
	return out
}

// ProfilerReport writes the result to w.
func (sp *ObjectSpace) ProfilerReport(w io.Writer) error {
	_, err := io.WriteString(w, sp.ProfilerResult())
	return err
}
