// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objspace

import (
	"strings"
	"testing"
)

func TestProfilerRecordsCycles(t *testing.T) {
	sp := NewTestSpace()
	if sp.ProfilerEnabled() {
		t.Fatal("profiler on by default")
	}
	sp.ProfilerEnable()

	for i := 0; i < 100; i++ {
		sp.NewTestObject(0)
	}
	if _, err := sp.GarbageCollect(); err != nil {
		t.Fatal(err)
	}

	records := sp.ProfilerRawData()
	if len(records) == 0 {
		t.Fatal("no profile records after a collection")
	}
	last := records[len(records)-1]
	if !last.IsMarked {
		t.Fatal("full collection not recorded as marked")
	}
	if last.HeapTotalObjects != sp.PagesUsed()*HeapObjLimit {
		t.Fatalf("recorded total objects = %d, want %d",
			last.HeapTotalObjects, sp.PagesUsed()*HeapObjLimit)
	}
	if last.GCTime < 0 || last.GCMarkTime < 0 || last.GCSweepTime < 0 {
		t.Fatal("negative phase time recorded")
	}
	if sp.ProfilerTotalTime() < last.GCTime {
		t.Fatal("total time smaller than one cycle")
	}
}

func TestProfilerResultFormat(t *testing.T) {
	sp := NewTestSpace()
	sp.ProfilerEnable()
	if _, err := sp.GarbageCollect(); err != nil {
		t.Fatal(err)
	}

	result := sp.ProfilerResult()
	if !strings.Contains(result, "GC ") || !strings.Contains(result, "Invoke Time") {
		t.Fatalf("result header missing: %q", result)
	}

	var buf strings.Builder
	if err := sp.ProfilerReport(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != result {
		t.Fatal("report output differs from result")
	}
}

func TestProfilerClearAndDisable(t *testing.T) {
	sp := NewTestSpace()
	sp.ProfilerEnable()
	if _, err := sp.GarbageCollect(); err != nil {
		t.Fatal(err)
	}
	sp.ProfilerClear()
	if len(sp.ProfilerRawData()) != 0 {
		t.Fatal("records survived clear")
	}
	sp.ProfilerDisable()
	if _, err := sp.GarbageCollect(); err != nil {
		t.Fatal(err)
	}
	if len(sp.ProfilerRawData()) != 0 {
		t.Fatal("disabled profiler still recording")
	}
}
