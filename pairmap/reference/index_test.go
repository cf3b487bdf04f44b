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

package reference

import (
	"math/rand"
	"testing"

	"github.com/shenwei356/PairMap/pairmap/alignment"
)

func randomSeq(r *rand.Rand, n int) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = "ACGT"[r.Intn(4)]
	}
	return s
}

func TestIndex(t *testing.T) {
	if _, err := NewIndex(17); err == nil {
		t.Errorf("k-mer size error expected")
	}

	idx, err := NewIndex(8)
	if err != nil {
		t.Error(err)
		return
	}
	r := rand.New(rand.NewSource(1))
	s1, s2 := randomSeq(r, 1000), randomSeq(r, 501)
	if err = idx.AddSeq("s1", s1); err != nil {
		t.Error(err)
		return
	}
	if err = idx.AddSeq("s2", s2); err != nil {
		t.Error(err)
		return
	}
	idx.Build()

	if idx.Genome().Len() != 1501 {
		t.Errorf("unexpected genome size: %d", idx.Genome().Len())
	}

	for i, pos := range []int{0, 123, 992} {
		lo, hi, ok := idx.LookupSeq(s1[pos : pos+8])
		if !ok || hi <= lo {
			t.Errorf("[#%d] k-mer at %d not found", i, pos)
			continue
		}
		found := false
		for row := lo; row < hi; row++ {
			if idx.Pos(row) == uint32(pos) {
				found = true
			}
		}
		if !found {
			t.Errorf("[#%d] position %d not in range [%d, %d)", i, pos, lo, hi)
		}
	}

	// positions of the second sequence are offset by the first one
	lo, hi, _ := idx.LookupSeq(s2[10:18])
	found := false
	for row := lo; row < hi; row++ {
		if idx.Pos(row) == 1010 {
			found = true
		}
	}
	if !found {
		t.Errorf("position of the second sequence not found")
	}

	if _, _, ok := idx.LookupSeq([]byte("ACGTNACG")); ok {
		t.Errorf("k-mers with N should not be encoded")
	}
}

func TestSeedPositions(t *testing.T) {
	idx, _ := NewIndex(16)
	idx.AddSeq("s", randomSeq(rand.New(rand.NewSource(1)), 100))
	idx.Build()
	k, err := NewKernels(idx, &Options{SeedLen: 16, SeedInterval: 10})
	if err != nil {
		t.Error(err)
		return
	}

	tests := []struct {
		pass             uint32
		interval, offset int
	}{
		{0, 10, 0},
		{1, 5, 2},
		{2, 2, 1},
		{3, 1, 0},
		{6, 1, 0},
	}
	for i, test := range tests {
		interval, offset := k.SeedPositions(test.pass)
		if interval != test.interval || offset != test.offset {
			t.Errorf("[#%d] pass %d: expected (%d, %d), returned (%d, %d)",
				i, test.pass, test.interval, test.offset, interval, offset)
		}
	}

	if _, err = NewKernels(idx, &Options{SeedLen: 12, SeedInterval: 10}); err == nil {
		t.Errorf("mismatched seed length should be rejected")
	}
}

func TestPairs(t *testing.T) {
	a := alignment.Alignment{Pos: 100, Score: -1, Ed: 1, Mate: alignment.Mate1}
	o := alignment.Alignment{Pos: 300, Score: -2, Ed: 2, Mate: alignment.Mate2, RC: true, Paired: true}
	un := alignment.Unaligned(alignment.Mate2)

	if s := pairScore(a, o, 5); s != -3 {
		t.Errorf("unexpected paired score: %d", s)
	}
	if s := pairScore(a, un, 5); s != -7 {
		t.Errorf("unexpected unpaired score: %d", s)
	}
	if s := pairScore(alignment.Unaligned(alignment.Mate1), o, 5); s != alignment.WorstScore {
		t.Errorf("unaligned anchor should score worst: %d", s)
	}

	// the same pair seen from mate 2
	a2 := alignment.Alignment{Pos: 302, Score: -2, Mate: alignment.Mate2, RC: true}
	o2 := alignment.Alignment{Pos: 99, Score: -1, Mate: alignment.Mate1}
	if !samePair(a, o, a2, o2, 5) {
		t.Errorf("swapped pair should be the same")
	}
	o3 := o2
	o3.Pos = 200
	if samePair(a, o, a2, o3, 5) {
		t.Errorf("distant pairs should differ")
	}
	if !samePair(a, un, a, un, 5) {
		t.Errorf("unpaired anchors at the same locus should be the same")
	}

	if !concordant(100, 30, 300, 30, false, 0, 500) {
		t.Errorf("forward pair should be concordant")
	}
	if concordant(100, 30, 300, 30, false, 0, 200) {
		t.Errorf("insert size 230 exceeds 200")
	}
	if !concordant(300, 30, 100, 30, true, 200, 300) {
		t.Errorf("reverse pair should be concordant")
	}
}

func TestCigar(t *testing.T) {
	if n := RefLen("3M1D5M2I"); n != 9 {
		t.Errorf("unexpected reference length: %d", n)
	}

	ops := []uint64{OpM<<32 | 10, OpX<<32 | 2, OpI<<32 | 3, OpM<<32 | 5}
	penalty, ed := affineScore(ops)
	if penalty != 2*penaltyMismatch+penaltyGapOpen+3*penaltyGapExt || ed != 5 {
		t.Errorf("unexpected affine score: %d, ed: %d", penalty, ed)
	}
}

func TestRC(t *testing.T) {
	if s := string(revcom(nil, []byte("AACGTN"))); s != "NACGTT" {
		t.Errorf("unexpected reverse complement: %s", s)
	}
	if s := string(RC([]byte("acgX"))); s != "Xcgt" {
		t.Errorf("unexpected reverse complement: %s", s)
	}
}
