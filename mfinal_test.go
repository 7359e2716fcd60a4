// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objspace

import "testing"

func TestFinalizerOrdering(t *testing.T) {
	sp := NewTestSpace()
	obj, err := sp.NewTestObject(0)
	if err != nil {
		t.Fatal(err)
	}

	var order []string
	for _, name := range []string{"A", "B", "C"} {
		name := name
		if err := sp.DefineFinalizer(obj, func(id VALUE) {
			order = append(order, name)
		}); err != nil {
			t.Fatal(err)
		}
	}
	if FlagsOf(obj)&FlFinalize == 0 {
		t.Fatal("finalize flag not set")
	}

	if err := sp.Start(); err != nil {
		t.Fatal(err)
	}

	if len(order) != 3 || order[0] != "A" || order[1] != "B" || order[2] != "C" {
		t.Fatalf("finalizer order = %v, want [A B C]", order)
	}
	if !FreelistContains(obj) {
		t.Fatal("finalized cell not returned to its page freelist")
	}
	if sp.FinalizerTableLen() != 0 {
		t.Fatalf("finalizer table still has %d entries", sp.FinalizerTableLen())
	}
	if sp.DeferredList() != 0 {
		t.Fatal("deferred list not drained")
	}
}

func TestFinalizerReceivesObjectID(t *testing.T) {
	sp := NewTestSpace()
	obj, err := sp.NewTestObject(0)
	if err != nil {
		t.Fatal(err)
	}
	want := sp.ObjectID(obj)

	var got VALUE
	sp.DefineFinalizer(obj, func(id VALUE) { got = id })
	if err := sp.Start(); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("finalizer got id %#x, want %#x", got, want)
	}
}

func TestUndefineFinalizer(t *testing.T) {
	sp := NewTestSpace()
	obj, err := sp.NewTestObject(0)
	if err != nil {
		t.Fatal(err)
	}
	ran := false
	sp.DefineFinalizer(obj, func(id VALUE) { ran = true })
	sp.UndefineFinalizer(obj)
	if FlagsOf(obj)&FlFinalize != 0 {
		t.Fatal("finalize flag survived undefine")
	}
	if err := sp.Start(); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Fatal("undefined finalizer ran")
	}
}

func TestFinalizerPanicIsolated(t *testing.T) {
	sp := NewTestSpace()
	obj, err := sp.NewTestObject(0)
	if err != nil {
		t.Fatal(err)
	}
	ran := false
	sp.DefineFinalizer(obj, func(id VALUE) { panic("finalizer failure") })
	sp.DefineFinalizer(obj, func(id VALUE) { ran = true })

	if err := sp.Start(); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("finalizer after a panicking one did not run")
	}
}

func TestFinalizerMayAllocate(t *testing.T) {
	sp := NewTestSpace()
	obj, err := sp.NewTestObject(0)
	if err != nil {
		t.Fatal(err)
	}
	var allocated VALUE
	sp.DefineFinalizer(obj, func(id VALUE) {
		v, err := sp.NewTestObject(0)
		if err != nil {
			t.Errorf("allocation inside finalizer: %v", err)
			return
		}
		allocated = v
	})
	if err := sp.Start(); err != nil {
		t.Fatal(err)
	}
	if allocated == 0 {
		t.Fatal("finalizer did not allocate")
	}
	if FlagsOf(allocated) == 0 {
		t.Fatal("cell allocated by finalizer was reclaimed in the same drain")
	}
}

func TestCopyFinalizer(t *testing.T) {
	sp := NewTestSpace()
	a, _ := sp.NewTestObject(0)
	b, _ := sp.NewTestObject(0)

	runs := 0
	sp.DefineFinalizer(a, func(id VALUE) { runs++ })
	sp.CopyFinalizer(b, a)
	if FlagsOf(b)&FlFinalize == 0 {
		t.Fatal("copy did not set the finalize flag")
	}
	if err := sp.Start(); err != nil {
		t.Fatal(err)
	}
	if runs != 2 {
		t.Fatalf("finalizer ran %d times across original and copy, want 2", runs)
	}
}

func TestDataFreeHandle(t *testing.T) {
	sp := NewTestSpace()
	payload, err := sp.Xmalloc(64)
	if err != nil {
		t.Fatal(err)
	}
	freedWith := uintptr(0)
	free := sp.RegisterFreeFunc(func(sp *ObjectSpace, data uintptr) {
		freedWith = data
		sp.Xfree(data)
	})
	if _, err := sp.NewData(0, payload, 0, free); err != nil {
		t.Fatal(err)
	}

	if err := sp.Start(); err != nil {
		t.Fatal(err)
	}
	if freedWith != payload {
		t.Fatalf("free handler got %#x, want %#x", freedWith, payload)
	}
}

func TestTypedDataLifecycle(t *testing.T) {
	sp := NewTestSpace()

	marks := 0
	frees := 0
	typ := sp.RegisterDataType(&DataType{
		Name: "testpayload",
		Mark: func(sp *ObjectSpace, data uintptr) { marks++ },
		Free: func(sp *ObjectSpace, data uintptr) {
			frees++
			sp.Xfree(data)
		},
		Memsize: func(data uintptr) uintptr { return 64 },
	})

	payload, err := sp.Xmalloc(64)
	if err != nil {
		t.Fatal(err)
	}
	v, err := sp.NewTypedData(0, payload, typ)
	if err != nil {
		t.Fatal(err)
	}
	if got := sp.DataTypeName(v); got != "testpayload" {
		t.Fatalf("type name = %q", got)
	}
	if got := sp.DataTypeMemsize(v); got != 64 {
		t.Fatalf("memsize = %d", got)
	}

	var slot VALUE = v
	sp.RegisterAddress(&slot)
	if err := sp.Start(); err != nil {
		t.Fatal(err)
	}
	if marks == 0 {
		t.Fatal("typed mark function never ran for a live object")
	}
	if frees != 0 {
		t.Fatal("typed free function ran for a live object")
	}

	sp.UnregisterAddress(&slot)
	slot = Qnil
	if err := sp.Start(); err != nil {
		t.Fatal(err)
	}
	if frees != 1 {
		t.Fatalf("typed free ran %d times, want 1", frees)
	}
}

func TestCallFinalizerAtExit(t *testing.T) {
	sp := NewTestSpace()

	// A live object with a finalizer: forced to run at exit.
	obj, _ := sp.NewTestObject(0)
	var slot VALUE = obj
	sp.RegisterAddress(&slot)
	forced := false
	sp.DefineFinalizer(obj, func(id VALUE) { forced = true })

	// A live data object: its free handler runs at exit.
	payload, err := sp.Xmalloc(32)
	if err != nil {
		t.Fatal(err)
	}
	freed := false
	free := sp.RegisterFreeFunc(func(sp *ObjectSpace, data uintptr) {
		freed = true
		sp.Xfree(data)
	})
	d, err := sp.NewData(0, payload, 0, free)
	if err != nil {
		t.Fatal(err)
	}
	var dslot VALUE = d
	sp.RegisterAddress(&dslot)

	if err := sp.CallFinalizerAtExit(); err != nil {
		t.Fatal(err)
	}
	if !forced {
		t.Fatal("registered finalizer not forced at exit")
	}
	if !freed {
		t.Fatal("data free handler not run at exit")
	}
}
