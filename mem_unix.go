// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package objspace

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// osAlloc maps n bytes of zeroed anonymous memory.
func osAlloc(n uintptr) (memRegion, bool) {
	buf, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return memRegion{}, false
	}
	return memRegion{
		buf:  buf,
		base: uintptr(unsafe.Pointer(&buf[0])),
		size: n,
	}, true
}

func osFree(r memRegion) {
	if err := unix.Munmap(r.buf); err != nil {
		throw("munmap failed")
	}
}
