/*
Copyright 2017 The Nuclio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package arena

import (
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// Allocator hands out per-invocation arenas, all backed by the same buffer pool
type Allocator struct {
	pool       bytebufferpool.Pool
	statistics Statistics
}

// Statistics holds allocator counters. Fields are accessed atomically
type Statistics struct {
	ArenasAcquired  uint64
	ArenasReleased  uint64
	PeakArenaBytes  uint64
	TotalAllocBytes uint64
}

// Outstanding returns the number of arenas acquired but not yet released
func (s *Statistics) Outstanding() uint64 {
	return atomic.LoadUint64(&s.ArenasAcquired) - atomic.LoadUint64(&s.ArenasReleased)
}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// Acquire returns a fresh arena. The caller must call Release on it exactly once it is done,
// after which no slice handed out by the arena may be used
func (al *Allocator) Acquire() *Arena {
	atomic.AddUint64(&al.statistics.ArenasAcquired, 1)

	return &Arena{
		allocator: al,
	}
}

// GetStatistics returns a pointer to the allocator statistics
func (al *Allocator) GetStatistics() *Statistics {
	return &al.statistics
}

func (al *Allocator) recordRelease(allocatedBytes int) {
	atomic.AddUint64(&al.statistics.ArenasReleased, 1)
	atomic.AddUint64(&al.statistics.TotalAllocBytes, uint64(allocatedBytes))

	for {
		peak := atomic.LoadUint64(&al.statistics.PeakArenaBytes)
		if uint64(allocatedBytes) <= peak {
			return
		}

		if atomic.CompareAndSwapUint64(&al.statistics.PeakArenaBytes, peak, uint64(allocatedBytes)) {
			return
		}
	}
}

// Arena is a scoped allocator owned by a single invocation. It is not safe for concurrent use
type Arena struct {
	allocator *Allocator
	buffers   []*bytebufferpool.ByteBuffer
	released  bool
}

// Alloc returns a zeroed slice of the given length, valid until Release
func (a *Arena) Alloc(size int) []byte {
	buffer := a.getBuffer()

	if cap(buffer.B) < size {
		buffer.B = make([]byte, size)
	} else {
		buffer.B = buffer.B[:size]
		for byteIdx := range buffer.B {
			buffer.B[byteIdx] = 0
		}
	}

	return buffer.B
}

// Copy returns a copy of data allocated from the arena
func (a *Arena) Copy(data []byte) []byte {
	copied := a.Alloc(len(data))
	copy(copied, data)

	return copied
}

// NewBuffer returns an empty growable buffer owned by the arena
func (a *Arena) NewBuffer() *bytebufferpool.ByteBuffer {
	return a.getBuffer()
}

// Allocated returns the number of bytes currently held by the arena, including bytes
// written to buffers returned by NewBuffer
func (a *Arena) Allocated() int {
	allocatedBytes := 0
	for _, buffer := range a.buffers {
		allocatedBytes += buffer.Len()
	}

	return allocatedBytes
}

// Release returns all buffers to the pool. Calling Release more than once is a no-op
func (a *Arena) Release() {
	if a.released {
		return
	}

	allocatedBytes := a.Allocated()
	a.released = true

	for _, buffer := range a.buffers {
		a.allocator.pool.Put(buffer)
	}

	a.buffers = nil
	a.allocator.recordRelease(allocatedBytes)
}

// Released returns whether Release was called
func (a *Arena) Released() bool {
	return a.released
}

func (a *Arena) getBuffer() *bytebufferpool.ByteBuffer {
	if a.released {
		panic("arena used after release")
	}

	buffer := a.allocator.pool.Get()
	buffer.Reset()

	a.buffers = append(a.buffers, buffer)

	return buffer
}
