// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objspace

import "unsafe"

const ptrSize = 4 << (^uintptr(0) >> 63)

// A cell is the unit of managed allocation: five machine words, sized to
// the largest kind overlay below. The first word is the flags word; zero
// flags means the cell is free and the second word chains it into its
// page's freelist.
type cell struct {
	flags VALUE
	s1    uintptr
	s2    uintptr
	s3    uintptr
	s4    uintptr
}

const cellSize = unsafe.Sizeof(cell{})

func cellAt(p uintptr) *cell   { return (*cell)(unsafe.Pointer(p)) }
func cellVal(v VALUE) *cell    { return (*cell)(unsafe.Pointer(uintptr(v))) }
func (c *cell) addr() uintptr  { return uintptr(unsafe.Pointer(c)) }
func (c *cell) value() VALUE   { return VALUE(c.addr()) }
func (c *cell) kind() uintptr  { return uintptr(c.flags) & tMask }
func (c *cell) test(fl VALUE) bool { return c.flags&fl != 0 }

// freeNext is the freelist link, valid only while flags == 0.
func (c *cell) freeNext() *cell {
	if c.s1 == 0 {
		return nil
	}
	return cellAt(c.s1)
}

func (c *cell) setFreeNext(n *cell) {
	if n == nil {
		c.s1 = 0
	} else {
		c.s1 = n.addr()
	}
}

// Kind overlays. Each view reinterprets a cell the way the original
// tagged union does; a view is only meaningful while the kind tag
// matches.

type rbasic struct {
	flags VALUE
	klass VALUE
}

func basicOf(v VALUE) *rbasic { return (*rbasic)(unsafe.Pointer(uintptr(v))) }

// robject: instance-variable slots, embedded (three words in the cell)
// or in a heap buffer of VALUEs.
type robject struct {
	basic  rbasic
	numiv  uintptr
	ivptr  uintptr // heap buffer of numiv VALUEs
	ividx  uintptr // shape table, opaque to the collector
}

type robjectEmbed struct {
	basic rbasic
	ary   [3]VALUE
}

const objectEmbedLenMax = 3

func objectOf(v VALUE) *robject           { return (*robject)(unsafe.Pointer(uintptr(v))) }
func objectEmbedOf(v VALUE) *robjectEmbed { return (*robjectEmbed)(unsafe.Pointer(uintptr(v))) }

// objectNumIV and objectIVPtr resolve the embedded/heap split.
func objectNumIV(v VALUE) uintptr {
	if basicOf(v).flags&objEmbed != 0 {
		return objectEmbedLenMax
	}
	return objectOf(v).numiv
}

func objectIVPtr(v VALUE) uintptr {
	if basicOf(v).flags&objEmbed != 0 {
		return uintptr(unsafe.Pointer(&objectEmbedOf(v).ary[0]))
	}
	return objectOf(v).ivptr
}

// rclass: the class extension holds everything that does not fit in the
// cell. It is a raw struct owned by the class cell.
type rclass struct {
	basic rbasic
	ext   uintptr // *classExt
	m     uintptr // *valueTable: method table
	ividx uintptr // shape table, opaque to the collector
}

type classExt struct {
	super    VALUE
	ivTbl    uintptr // *valueTable
	constTbl uintptr // *valueTable
}

func classOf(v VALUE) *rclass { return (*rclass)(unsafe.Pointer(uintptr(v))) }

func classExtOf(v VALUE) *classExt {
	p := classOf(v).ext
	if p == 0 {
		return nil
	}
	return (*classExt)(unsafe.Pointer(p))
}

type rfloat struct {
	basic rbasic
	value float64
}

func floatOf(v VALUE) *rfloat { return (*rfloat)(unsafe.Pointer(uintptr(v))) }

// rstring: heap form. Embedded strings keep their bytes in the three
// payload words and carry their length in the flags word.
type rstring struct {
	basic rbasic
	len   uintptr
	ptr   uintptr // byte buffer
	aux   VALUE   // capacity, or shared/assoc backing string
}

func stringOf(v VALUE) *rstring { return (*rstring)(unsafe.Pointer(uintptr(v))) }

// rarray: heap form; aux is capacity for owned backing, or the shared
// array when eltsShared is set.
type rarray struct {
	basic rbasic
	len   uintptr
	aux   VALUE
	ptr   uintptr // buffer of len VALUEs
}

type rarrayEmbed struct {
	basic rbasic
	ary   [3]VALUE
}

const arrayEmbedLenMax = 3

func arrayOf(v VALUE) *rarray           { return (*rarray)(unsafe.Pointer(uintptr(v))) }
func arrayEmbedOf(v VALUE) *rarrayEmbed { return (*rarrayEmbed)(unsafe.Pointer(uintptr(v))) }

func arrayLen(v VALUE) uintptr {
	if basicOf(v).flags&aryEmbed != 0 {
		return (uintptr(basicOf(v).flags) & aryEmbedLenMask) >> aryEmbedLenShift
	}
	return arrayOf(v).len
}

func arrayPtr(v VALUE) uintptr {
	if basicOf(v).flags&aryEmbed != 0 {
		return uintptr(unsafe.Pointer(&arrayEmbedOf(v).ary[0]))
	}
	return arrayOf(v).ptr
}

type rhash struct {
	basic   rbasic
	ntbl    uintptr // *valueTable
	iterLev uintptr
	ifnone  VALUE
}

func hashOf(v VALUE) *rhash { return (*rhash)(unsafe.Pointer(uintptr(v))) }

func hashTbl(v VALUE) *valueTable {
	p := hashOf(v).ntbl
	if p == 0 {
		return nil
	}
	return (*valueTable)(unsafe.Pointer(p))
}

// rdata: a payload owned by the host, with mark/free behavior referenced
// by handle (cells cannot hold Go function values).
type rdata struct {
	basic rbasic
	dmark uintptr // mark handle, 0 for none
	dfree uintptr // free handle, 0 none, dfreeDefault plain release
	data  uintptr
}

// rtypedData shares the rdata layout: the dfree slot holds the constant
// 1 while the object is typed, and the dmark slot holds the vtable
// handle. objFree resolves the vtable and overwrites the dfree slot
// with the real free handle, after which the object reads as plain data.
type rtypedData struct {
	basic     rbasic
	typ       uintptr // data-type handle
	typedFlag uintptr // 1 while typed
	data      uintptr
}

const typedFlagValue = 1

func dataOf(v VALUE) *rdata           { return (*rdata)(unsafe.Pointer(uintptr(v))) }
func typedDataOf(v VALUE) *rtypedData { return (*rtypedData)(unsafe.Pointer(uintptr(v))) }

func typedDataP(v VALUE) bool {
	return basicOf(v).flags&tMask == tData && typedDataOf(v).typedFlag == typedFlagValue
}

func dataPtr(v VALUE) uintptr { return dataOf(v).data }

type rregexp struct {
	basic  rbasic
	ptr    uintptr // compiled pattern, owned raw memory
	src    VALUE
	usecnt uintptr
}

func regexpOf(v VALUE) *rregexp { return (*rregexp)(unsafe.Pointer(uintptr(v))) }

// rfile: the retained io state lives outside the cell.
type rfile struct {
	basic rbasic
	fptr  uintptr // *fileState
}

type fileState struct {
	fd                   uintptr
	pathv                VALUE
	tiedIOForWriting     VALUE
	writeconvAsciicompat VALUE
	writeconvPreEcopts   VALUE
	ecopts               VALUE
	writeLock            VALUE
}

func fileOf(v VALUE) *rfile { return (*rfile)(unsafe.Pointer(uintptr(v))) }

func fileStateOf(v VALUE) *fileState {
	p := fileOf(v).fptr
	if p == 0 {
		return nil
	}
	return (*fileState)(unsafe.Pointer(p))
}

type rmatch struct {
	basic  rbasic
	str    VALUE
	rmatch uintptr // *matchState
	regexp VALUE
}

type matchState struct {
	regs       uintptr // region buffer, owned raw memory
	charOffset uintptr // owned raw memory
}

func matchOf(v VALUE) *rmatch { return (*rmatch)(unsafe.Pointer(uintptr(v))) }

type rrational struct {
	basic rbasic
	num   VALUE
	den   VALUE
}

func rationalOf(v VALUE) *rrational { return (*rrational)(unsafe.Pointer(uintptr(v))) }

type rcomplex struct {
	basic rbasic
	real  VALUE
	imag  VALUE
}

func complexOf(v VALUE) *rcomplex { return (*rcomplex)(unsafe.Pointer(uintptr(v))) }

type rstruct struct {
	basic rbasic
	len   uintptr
	ptr   uintptr // buffer of len VALUEs
}

type rstructEmbed struct {
	basic rbasic
	ary   [3]VALUE
}

const structEmbedLenMax = 3

func structOf(v VALUE) *rstruct           { return (*rstruct)(unsafe.Pointer(uintptr(v))) }
func structEmbedOf(v VALUE) *rstructEmbed { return (*rstructEmbed)(unsafe.Pointer(uintptr(v))) }

func structLen(v VALUE) uintptr {
	if fl := uintptr(basicOf(v).flags) & structEmbedLenMask; fl != 0 {
		return fl >> structEmbedLenShift
	}
	return structOf(v).len
}

func structPtr(v VALUE) uintptr {
	if uintptr(basicOf(v).flags)&structEmbedLenMask != 0 {
		return uintptr(unsafe.Pointer(&structEmbedOf(v).ary[0]))
	}
	return structOf(v).ptr
}

type rbignum struct {
	basic  rbasic
	len    uintptr
	digits uintptr // buffer of len digit words
	_      uintptr
}

func bignumOf(v VALUE) *rbignum { return (*rbignum)(unsafe.Pointer(uintptr(v))) }

// rnode: AST node. The second word is reserved, not a class reference;
// the three union slots are interpreted per sub-kind by the marker.
type rnode struct {
	flags    VALUE
	reserved uintptr
	u1       uintptr
	u2       uintptr
	u3       uintptr
}

func nodeOf(v VALUE) *rnode { return (*rnode)(unsafe.Pointer(uintptr(v))) }

const (
	nodeTypeShift = 8
	nodeTypeMask  = 0x7f
)

func (n *rnode) nodeType() uintptr {
	return (uintptr(n.flags) >> nodeTypeShift) & nodeTypeMask
}

func (n *rnode) setNodeType(t uintptr) {
	n.flags = n.flags&^VALUE(nodeTypeMask<<nodeTypeShift) | VALUE(t&nodeTypeMask)<<nodeTypeShift
}

// valueSlot reads the i'th VALUE from a raw buffer of VALUEs.
func valueSlot(buf uintptr, i uintptr) VALUE {
	return *(*VALUE)(unsafe.Pointer(buf + i*ptrSize))
}

func setValueSlot(buf uintptr, i uintptr, v VALUE) {
	*(*VALUE)(unsafe.Pointer(buf + i*ptrSize)) = v
}
