// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package objspace

import "golang.org/x/sys/windows"

// osAlloc reserves and commits n bytes. VirtualAlloc hands back memory
// on the allocation granularity, which already satisfies page alignment.
func osAlloc(n uintptr) (memRegion, bool) {
	p, err := windows.VirtualAlloc(0, n, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return memRegion{}, false
	}
	return memRegion{base: p, size: n}, true
}

func osFree(r memRegion) {
	if err := windows.VirtualFree(r.base, 0, windows.MEM_RELEASE); err != nil {
		throw("VirtualFree failed")
	}
}
