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

package compact

import (
	"math/rand"
	"testing"

	"github.com/shenwei356/PairMap/pairmap/device"
)

func TestCopyIfStable(t *testing.T) {
	r := rand.New(rand.NewSource(11))

	for _, workers := range []int{1, 3, 8} {
		d := device.New(workers)
		for _, n := range []int{0, 1, 2, 7, 100, 1001} {
			mask := make([]bool, n)
			expected := make([]uint32, 0, n)
			for i := range mask {
				mask[i] = r.Intn(3) == 0
				if mask[i] {
					expected = append(expected, uint32(i))
				}
			}

			buf := make([]uint32, n)
			sel, err := CopyIf(d, "test", n, func(i uint32) bool { return mask[i] }, buf)
			if err != nil {
				t.Error(err)
				return
			}

			if sel.Len() != len(expected) {
				t.Errorf("[workers: %d, n: %d] unexpected count, expected: %d, returned: %d",
					workers, n, len(expected), sel.Len())
				return
			}
			for j, v := range expected {
				if sel.At(j) != v {
					t.Errorf("[workers: %d, n: %d] unequal index at %d, expected: %d, returned: %d",
						workers, n, j, v, sel.At(j))
					return
				}
			}
			if !sel.Stable() {
				t.Errorf("[workers: %d, n: %d] selection is not stable", workers, n)
			}
		}
	}
}

func TestCopyIfNone(t *testing.T) {
	d := device.New(4)
	buf := make([]uint32, 50)
	sel, err := CopyIf(d, "none", 50, func(uint32) bool { return false }, buf)
	if err != nil {
		t.Error(err)
		return
	}
	if sel.Len() != 0 {
		t.Errorf("nothing should survive: %d", sel.Len())
	}
}

func TestRange(t *testing.T) {
	s := Range(5)
	if !s.IsRange() || s.Len() != 5 || s.At(3) != 3 {
		t.Errorf("unexpected identity selection")
	}
	if s.Indices() != nil {
		t.Errorf("identity selection should not carry indices")
	}
}

func TestIndirectView(t *testing.T) {
	scores := []int32{10, 20, 30, 40, 50}
	idxQueue := []uint32{4, 2, 0, 3, 1} // sorted order used for scoring

	v := NewIndirectView(scores, idxQueue)
	if v.At(0) != 50 || v.At(4) != 20 {
		t.Errorf("unexpected gather: %d %d", v.At(0), v.At(4))
	}

	d := device.New(2)
	buf := make([]uint32, len(idxQueue))
	// keep positions of the sorted queue with a score > 25
	sel, err := CopyIf(d, "opposite", v.Len(), func(i uint32) bool { return v.At(int(i)) > 25 }, buf)
	if err != nil {
		t.Error(err)
		return
	}
	// positions into idxQueue, not base indices
	expected := []uint32{0, 1, 3}
	for j, p := range expected {
		if sel.At(j) != p {
			t.Errorf("[#%d] expected position %d, returned %d", j, p, sel.At(j))
		}
	}

	w := v.Through(sel)
	wanted := []int32{50, 30, 40}
	for j, s := range wanted {
		if w.At(j) != s {
			t.Errorf("[#%d] expected score %d, returned %d", j, s, w.At(j))
		}
	}

	w.Set(1, -1)
	if scores[2] != -1 {
		t.Errorf("Set should write through to the base array")
	}
}
