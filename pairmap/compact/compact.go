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

// Package compact implements stable stream compaction of index ranges
// and typed indirect views built on top of it.
package compact

import (
	"github.com/shenwei356/PairMap/pairmap/device"
)

// Predicate decides whether index i survives a compaction.
type Predicate func(i uint32) bool

// Selection is a list of indices in strictly increasing order, i.e.,
// the output of a stable compaction. The zero value is empty.
//
// A Selection either wraps a compacted buffer or stands for the identity
// range [0, n), which replaces a nil index array.
type Selection struct {
	idx      []uint32
	identity bool
	n        int
}

// Range returns the identity selection over [0, n).
func Range(n int) Selection { return Selection{identity: true, n: n} }

// Len returns the number of selected indices.
func (s Selection) Len() int {
	if s.identity {
		return s.n
	}
	return len(s.idx)
}

// At returns the i-th selected index.
func (s Selection) At(i int) uint32 {
	if s.identity {
		return uint32(i)
	}
	return s.idx[i]
}

// IsRange tells whether s is an identity range.
func (s Selection) IsRange() bool { return s.identity }

// Indices returns the selected indices, nil for an identity range.
func (s Selection) Indices() []uint32 { return s.idx }

// Stable checks the defining property of a Selection.
func (s Selection) Stable() bool {
	for i := 1; i < len(s.idx); i++ {
		if s.idx[i] <= s.idx[i-1] {
			return false
		}
	}
	return true
}

// CopyIf writes the indices i in [0, n) satisfying pred into buf, keeping
// their relative order, and returns them after a device barrier.
//
// The work is split into one chunk per device worker: each chunk counts its
// survivors, a scan turns counts into offsets, then each chunk scatters.
func CopyIf(d *device.Device, name string, n int, pred Predicate, buf []uint32) (Selection, error) {
	if n <= 0 {
		return Selection{idx: buf[:0]}, nil
	}

	chunks := d.Workers()
	if chunks > n {
		chunks = n
	}
	size := (n + chunks - 1) / chunks
	chunks = (n + size - 1) / size

	offsets := make([]int, chunks+1)

	d.Launch(name+":count", chunks, func(c int) error {
		begin, end := c*size, (c+1)*size
		if end > n {
			end = n
		}
		var m int
		for i := begin; i < end; i++ {
			if pred(uint32(i)) {
				m++
			}
		}
		offsets[c+1] = m
		return nil
	})

	d.Task(name+":scan", func() error {
		for c := 1; c <= chunks; c++ {
			offsets[c] += offsets[c-1]
		}
		return nil
	})

	d.Launch(name+":scatter", chunks, func(c int) error {
		begin, end := c*size, (c+1)*size
		if end > n {
			end = n
		}
		j := offsets[c]
		for i := begin; i < end; i++ {
			if pred(uint32(i)) {
				buf[j] = uint32(i)
				j++
			}
		}
		return nil
	})

	m, err := device.AwaitCompletion(d, name, func() int { return offsets[chunks] })
	if err != nil {
		return Selection{}, err
	}
	return Selection{idx: buf[:m]}, nil
}

// IndirectView addresses a base array through a permutation:
// element i is Base[Perm[i]].
type IndirectView[T any] struct {
	base []T
	perm []uint32
}

// NewIndirectView returns a view of base through perm.
func NewIndirectView[T any](base []T, perm []uint32) IndirectView[T] {
	return IndirectView[T]{base: base, perm: perm}
}

// Len returns the length of the permutation.
func (v IndirectView[T]) Len() int { return len(v.perm) }

// Index returns the base index of element i.
func (v IndirectView[T]) Index(i int) uint32 { return v.perm[i] }

// At returns element i.
func (v IndirectView[T]) At(i int) T { return v.base[v.perm[i]] }

// Set overwrites element i.
func (v IndirectView[T]) Set(i int, x T) { v.base[v.perm[i]] = x }

// Through composes the view with a stable selection of its positions:
// element j of the result is Base[Perm[sel.At(j)]].
// Keeping the selection stable preserves the order of the permutation.
func (v IndirectView[T]) Through(sel Selection) IndirectView[T] {
	perm := make([]uint32, sel.Len())
	for j := range perm {
		perm[j] = v.perm[sel.At(j)]
	}
	return IndirectView[T]{base: v.base, perm: perm}
}
