// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadParams(t *testing.T) {
	t.Setenv("GC_MALLOC_LIMIT", "12345678")
	t.Setenv("GC_HEAP_FREE_MIN", "777")
	t.Setenv("GC_HEAP_SLOTS_GROWTH_FACTOR", "2.5")
	t.Setenv("GC_HEAP_SLOTS_INCREMENT", "4070")

	sp := New(Hooks{})
	sp.ReadParams()

	if sp.MallocLimit() != 12345678 {
		t.Fatalf("malloc limit = %d", sp.MallocLimit())
	}
	if sp.GrowthFactor() != 2.5 {
		t.Fatalf("growth factor = %v", sp.GrowthFactor())
	}
	if sp.SlotsIncrement() != 4070/HeapObjLimit {
		t.Fatalf("slots increment = %d", sp.SlotsIncrement())
	}

	// The variables must not leak into child processes.
	for _, name := range []string{
		"GC_MALLOC_LIMIT", "GC_HEAP_FREE_MIN",
		"GC_HEAP_SLOTS_GROWTH_FACTOR", "GC_HEAP_SLOTS_INCREMENT",
	} {
		if _, ok := os.LookupEnv(name); ok {
			t.Fatalf("%s still set after ReadParams", name)
		}
	}
}

func TestReadParamsFreeMinAlias(t *testing.T) {
	t.Setenv("FREE_MIN", "999")
	sp := New(Hooks{})
	sp.ReadParams()
	if sp.initialFreeMin != 999 {
		t.Fatalf("free min = %d, want 999", sp.initialFreeMin)
	}
}

func TestReadParamsMinSlotsExpandsHeap(t *testing.T) {
	t.Setenv("GC_HEAP_MIN_SLOTS", "20000")
	sp := NewTestSpace()
	sp.ReadParams()
	if got := sp.PagesUsed() * HeapObjLimit; got < 19000 {
		t.Fatalf("heap after GC_HEAP_MIN_SLOTS = %d cells", got)
	}
}

func TestDataFileEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gc.log")
	t.Setenv("GC_DATA_FILE", path)
	t.Setenv("GC_STATS", "1")

	sp := New(Hooks{})
	sp.ReadParams()
	if !sp.VerboseEnabled() {
		t.Fatal("GC_STATS did not enable verbose logging")
	}
	sp.Log("hello from the collector")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello from the collector") {
		t.Fatalf("log file contents: %q", data)
	}
}

func TestDataFileOpenFailure(t *testing.T) {
	t.Setenv("GC_DATA_FILE", filepath.Join(t.TempDir(), "no", "such", "dir", "gc.log"))
	sp := New(Hooks{})
	sp.ReadParams() // must not panic; default target retained
	sp.Log("still works")
}

func TestRegisterUnregisterBalance(t *testing.T) {
	sp := NewTestSpace()
	var a, b VALUE
	sp.RegisterAddress(&a)
	sp.RegisterAddress(&b)
	sp.UnregisterAddress(&a)
	sp.UnregisterAddress(&b)
	sp.UnregisterAddress(&a) // extra removals are harmless
	if sp.globalList != nil {
		t.Fatal("pin list not empty after balanced unregister")
	}
}

func TestObjectSpaceFree(t *testing.T) {
	sp := NewTestSpace()
	for i := 0; i < 100; i++ {
		sp.NewTestObject(0)
	}
	if err := sp.Free(); err != nil {
		t.Fatal(err)
	}
	if len(sp.regions) != 0 {
		t.Fatalf("%d regions leaked after Free", len(sp.regions))
	}
	if sp.PagesUsed() != 0 {
		t.Fatalf("pages used = %d after Free", sp.PagesUsed())
	}
}
