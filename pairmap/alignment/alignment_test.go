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

package alignment

import "testing"

func TestPredicates(t *testing.T) {
	paired := Alignment{Pos: 10, Score: -1, Paired: true}
	unpaired := Alignment{Pos: 20, Score: 0}
	none := Unaligned(Mate2)

	type result struct {
		aligned, paired, unpaired, second, secondPaired, secondUnpaired bool
	}
	tests := []struct {
		b        BestAlignments
		expected result
	}{
		{BestAlignments{none, none}, result{}},
		{BestAlignments{paired, none}, result{aligned: true, paired: true}},
		{BestAlignments{unpaired, none}, result{aligned: true, unpaired: true}},
		{BestAlignments{paired, unpaired}, result{aligned: true, paired: true, second: true, secondUnpaired: true}},
		{BestAlignments{unpaired, paired}, result{aligned: true, unpaired: true, second: true, secondPaired: true}},
	}

	for i, test := range tests {
		b := test.b
		r := result{
			IsAligned(&b), IsPaired(&b), IsUnpaired(&b),
			HasSecond(&b), HasSecondPaired(&b), HasSecondUnpaired(&b),
		}
		if r != test.expected {
			t.Errorf("[#%d] unexpected predicates, expected: %+v, returned: %+v", i, test.expected, r)
		}

		// rank helpers
		if RankAligned(SecondBestScore)(&b) != r.second || RankPaired(BestScore)(&b) != r.paired {
			t.Errorf("[#%d] rank predicates disagree", i)
		}
	}
}

func TestReset(t *testing.T) {
	b := BestAlignments{Best: Alignment{Score: 3}}
	b.Reset(Mate2)
	if b.Best.IsAligned() || b.Second.IsAligned() || b.Best.Mate != Mate2 {
		t.Errorf("unexpected record after reset: %v, %v", b.Best, b.Second)
	}
}

func TestSameLocus(t *testing.T) {
	a := Alignment{Pos: 100, Score: 0, Mate: Mate1}
	if !a.SameLocus(Alignment{Pos: 102, Score: -2, Mate: Mate1}, 2) {
		t.Errorf("expected the same locus")
	}
	if a.SameLocus(Alignment{Pos: 103, Score: 0, Mate: Mate1}, 2) {
		t.Errorf("too far")
	}
	if a.SameLocus(Alignment{Pos: 100, Score: 0, Mate: Mate1, RC: true}, 2) {
		t.Errorf("different strands")
	}
}

func TestPackRead(t *testing.T) {
	for _, id := range []uint32{0, 1, 12345, 1<<31 - 1} {
		for _, top := range []bool{false, true} {
			_id, _top := UnpackRead(PackRead(id, top))
			if _id != id || _top != top {
				t.Errorf("unexpected unpacked read: %d %v, expected: %d %v", _id, _top, id, top)
			}
		}
	}
}
