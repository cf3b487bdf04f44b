// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package queue provides the double-buffered queues of active reads.
package queue

import (
	"fmt"
	"sync/atomic"
)

// View is a read-only window over the consumed side of a PingPong.
type View struct {
	data []uint32
}

// NewView wraps a slice as a View.
func NewView(data []uint32) View { return View{data: data} }

// Len returns the number of entries.
func (v View) Len() int { return len(v.data) }

// At returns the i-th entry.
func (v View) At(i int) uint32 { return v.data[i] }

// Slice returns the entries. Callers must not modify them.
func (v View) Slice() []uint32 { return v.data }

// PingPong is a pair of equal-capacity index buffers: one is consumed
// (the input, "current") while the other is produced (the output, "next").
// Swap exchanges the roles at the end of a pass.
type PingPong struct {
	bufA, bufB []uint32
	activeIsA  bool

	inSize  uint32
	outSize uint32 // atomically updated by producers
}

// New returns a PingPong with the given capacity.
func New(capacity int) *PingPong {
	q := &PingPong{activeIsA: true}
	q.Reserve(capacity)
	return q
}

// Reserve grows both buffers to at least capacity.
// It must only be called between batches.
func (q *PingPong) Reserve(capacity int) {
	if capacity <= len(q.bufA) {
		return
	}
	q.bufA = make([]uint32, capacity)
	q.bufB = make([]uint32, capacity)
	q.inSize, q.outSize = 0, 0
}

// Capacity returns the capacity of each side.
func (q *PingPong) Capacity() int { return len(q.bufA) }

func (q *PingPong) in() []uint32 {
	if q.activeIsA {
		return q.bufA
	}
	return q.bufB
}

func (q *PingPong) out() []uint32 {
	if q.activeIsA {
		return q.bufB
	}
	return q.bufA
}

// InSize returns the number of entries to consume.
func (q *PingPong) InSize() uint32 { return q.inSize }

// OutSize returns the number of entries produced so far.
// Read it only after a device barrier.
func (q *PingPong) OutSize() uint32 { return atomic.LoadUint32(&q.outSize) }

// Current returns the input side over [0, InSize).
func (q *PingPong) Current() View { return View{data: q.in()[:q.inSize]} }

// Produced returns the output side over [0, OutSize).
func (q *PingPong) Produced() View { return View{data: q.out()[:q.OutSize()]} }

// Push appends v to the output side and returns its slot.
// It is safe for concurrent producers.
func (q *PingPong) Push(v uint32) uint32 {
	slot := atomic.AddUint32(&q.outSize, 1) - 1
	out := q.out()
	if int(slot) >= len(out) {
		panic(fmt.Sprintf("queue: output overflow, capacity: %d", len(out)))
	}
	out[slot] = v
	return slot
}

// ClearOutput empties the output side before it is produced.
func (q *PingPong) ClearOutput() { atomic.StoreUint32(&q.outSize, 0) }

// Swap exchanges input and output roles and sizes.
func (q *PingPong) Swap() {
	q.activeIsA = !q.activeIsA
	q.inSize, q.outSize = q.OutSize(), q.inSize
}

// Fill sets the input side to the range 0..n and clears the output side.
func (q *PingPong) Fill(n int) {
	in := q.in()
	if n > len(in) {
		panic(fmt.Sprintf("queue: fill overflow, capacity: %d, n: %d", len(in), n))
	}
	for i := 0; i < n; i++ {
		in[i] = uint32(i)
	}
	q.inSize = uint32(n)
	q.ClearOutput()
}

// Load copies src into the input side, transforming each entry with f
// when f is not nil, and clears the output side.
func (q *PingPong) Load(src View, f func(uint32) uint32) {
	in := q.in()
	if src.Len() > len(in) {
		panic(fmt.Sprintf("queue: load overflow, capacity: %d, n: %d", len(in), src.Len()))
	}
	if f == nil {
		copy(in, src.data)
	} else {
		for i, v := range src.data {
			in[i] = f(v)
		}
	}
	q.inSize = uint32(src.Len())
	q.ClearOutput()
}
