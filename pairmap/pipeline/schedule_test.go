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

package pipeline

import (
	"testing"
)

func TestPlan(t *testing.T) {
	const batch = 8192
	tests := []struct {
		active, maxExt, nExt uint32
		hits, window         uint32
	}{
		{10000, 10000, 0, 1, 8192},
		{4000, 10000, 0, 2, 4000},
		{500, 10000, 0, 16, 500},
		{50, 10000, 0, 163, 50},
		{5, 10000, 0, 1638, 5},
		{1, 10000, 0, MaxExtensionsPerRound, 1},
		{5, 20, 10, 10, 5}, // bounded by the extension budget
		{5, 20, 20, 1, 5},  // budget spent
		{5, 20, 30, 1, 5},  // overspent
		{4097, 10000, 0, 1, 4097},
		{0, 10000, 0, 0, 0},
	}
	for i, test := range tests {
		r := Plan(test.active, batch, test.maxExt, test.nExt)
		if r.HitsPerRead != test.hits || r.Window != test.window {
			t.Errorf("[#%d] active %d: expected (%d, %d), returned %s",
				i, test.active, test.hits, test.window, r)
		}
	}
}

func TestPlanBounds(t *testing.T) {
	for _, batch := range []uint32{2, 7, 100, 8192} {
		for active := uint32(1); active < 3*batch+10; active += 1 + active/7 {
			for _, nExt := range []uint32{0, 3, 50} {
				r := Plan(active, batch, 50, nExt)
				if r.HitsPerRead < 1 {
					t.Errorf("batch %d, active %d: no hits per read", batch, active)
				}
				if r.Window < 1 || r.Window > active {
					t.Errorf("batch %d, active %d: window %d out of range", batch, active, r.Window)
				}
				if uint64(r.Window)*uint64(r.HitsPerRead) > uint64(batch) {
					t.Errorf("batch %d, active %d: %s exceeds the batch", batch, active, r)
				}
				if r.HitsPerRead > MaxExtensionsPerRound {
					t.Errorf("batch %d, active %d: %s exceeds the ceiling", batch, active, r)
				}
			}
		}
	}
}

func TestHitsIndex(t *testing.T) {
	h := NewHitsIndex(4)
	h.Setup(3, 4)
	h.Set(2, 10, 3)
	h.Set(0, 0, 1)

	if first, n := h.Block(2); first != 10 || n != 3 {
		t.Errorf("unexpected block: %d, %d", first, n)
	}
	if _, n := h.Block(1); n != 0 {
		t.Errorf("unset slot should be empty")
	}
	if h.Stride() != 3 || h.Slots() != 4 {
		t.Errorf("unexpected layout: %d, %d", h.Stride(), h.Slots())
	}

	h.Setup(1, 4)
	if _, n := h.Block(2); n != 0 {
		t.Errorf("setup should empty every slot")
	}

	defer func() {
		if recover() == nil {
			t.Errorf("a block larger than the stride should panic")
		}
	}()
	h.Set(0, 0, 2)
}

func TestCandidateHits(t *testing.T) {
	h := NewCandidateHits(4)
	if first := h.Reserve(3); first != 0 {
		t.Errorf("unexpected first entry: %d", first)
	}
	h.Set(2, 7, 100, 5, true)
	if h.Size() != 3 || h.Read[2] != 7 || h.QueryPos[2] != 5 || !h.RC[2] {
		t.Errorf("unexpected entry")
	}

	defer func() {
		if recover() == nil {
			t.Errorf("overflow should panic")
		}
	}()
	h.Reserve(2)
}

func TestCheckParams(t *testing.T) {
	p := DefaultParams
	if err := CheckParams(&p); err != nil {
		t.Errorf("default params should be valid: %s", err)
	}

	p.MaxInsert, p.MinInsert = 100, 200
	if err := CheckParams(&p); err == nil {
		t.Errorf("insert size error expected")
	}

	p = DefaultParams
	p.PersistBatch = 0
	if err := CheckParams(&p); err == nil {
		t.Errorf("checkpoint file error expected")
	}

	if BandLength(15) != 31 {
		t.Errorf("unexpected band length")
	}
}
