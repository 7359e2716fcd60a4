// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Garbage collector: the gray work stack.
//
// References whose children still need enumeration are kept on a
// chunked LIFO. Chunks are raw allocations linked head-first; a small
// cache of recycled chunks avoids allocation churn between cycles, and
// is halved after any mark phase that left most of it unused.

package objspace

import "unsafe"

const stackChunkSize = 500

type stackChunk struct {
	data [stackChunkSize]VALUE
	next uintptr // *stackChunk
}

func stackChunkAt(p uintptr) *stackChunk { return (*stackChunk)(unsafe.Pointer(p)) }

type markStack struct {
	owner *ObjectSpace
	chunk uintptr // *stackChunk, current
	cache uintptr // *stackChunk, recycled
	index uintptr
	limit uintptr

	cacheSize       uintptr
	unusedCacheSize uintptr
}

func (s *markStack) chunkAlloc() uintptr {
	p := s.owner.sysAlloc(unsafe.Sizeof(stackChunk{}))
	if p == 0 {
		throw("out of memory allocating mark stack chunk")
	}
	return p
}

func (s *markStack) empty() bool { return s.chunk == 0 }

func (s *markStack) addChunkCache(p uintptr) {
	stackChunkAt(p).next = s.cache
	s.cache = p
	s.cacheSize++
}

// shrinkCache halves the chunk cache when the last mark phase left more
// than half of it untouched.
func (s *markStack) shrinkCache() {
	if s.unusedCacheSize > s.cacheSize/2 {
		for keep := s.cacheSize / 2; s.cacheSize > keep; {
			p := s.cache
			s.cache = stackChunkAt(p).next
			s.cacheSize--
			s.owner.sysFree(p)
		}
	}
	s.unusedCacheSize = s.cacheSize
}

func (s *markStack) pushChunk() {
	var next uintptr
	if s.cacheSize > 0 {
		next = s.cache
		s.cache = stackChunkAt(next).next
		s.cacheSize--
		if s.unusedCacheSize > s.cacheSize {
			s.unusedCacheSize = s.cacheSize
		}
	} else {
		next = s.chunkAlloc()
	}
	stackChunkAt(next).next = s.chunk
	s.chunk = next
	s.index = 0
}

func (s *markStack) popChunk() {
	prev := stackChunkAt(s.chunk).next
	s.addChunkCache(s.chunk)
	s.chunk = prev
	s.index = s.limit
}

func (s *markStack) push(data VALUE) {
	if s.index == s.limit {
		s.pushChunk()
	}
	stackChunkAt(s.chunk).data[s.index] = data
	s.index++
}

func (s *markStack) pop() (VALUE, bool) {
	if s.empty() {
		return 0, false
	}
	if s.index == 1 {
		s.index--
		data := stackChunkAt(s.chunk).data[0]
		s.popChunk()
		return data, true
	}
	s.index--
	return stackChunkAt(s.chunk).data[s.index], true
}

func (s *markStack) init(sp *ObjectSpace) {
	s.owner = sp
	s.pushChunk()
	s.limit = stackChunkSize
	for i := 0; i < 4; i++ {
		s.addChunkCache(s.chunkAlloc())
	}
	s.unusedCacheSize = s.cacheSize
}

// freeChunks releases every chunk, live and cached, at space teardown.
func (s *markStack) freeChunks() {
	for p := s.chunk; p != 0; {
		next := stackChunkAt(p).next
		s.owner.sysFree(p)
		p = next
	}
	for p := s.cache; p != 0; {
		next := stackChunkAt(p).next
		s.owner.sysFree(p)
		p = next
	}
	s.chunk, s.cache, s.cacheSize, s.unusedCacheSize = 0, 0, 0, 0
}
