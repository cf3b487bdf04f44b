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
	"github.com/pkg/errors"
	"github.com/shenwei356/PairMap/pairmap/alignment"
	"github.com/shenwei356/PairMap/pairmap/compact"
	"github.com/shenwei356/PairMap/pairmap/pipeline"
	"github.com/shenwei356/PairMap/pairmap/reference/align"
	"github.com/shenwei356/wfa"
)

// penalties of the final gap-affine scoring
const (
	penaltyMismatch = 6
	penaltyGapOpen  = 5
	penaltyGapExt   = 3
)

// CIGAR operations of wfa results
const (
	OpM = uint64('M')
	OpD = uint64('D')
	OpI = uint64('I')
	OpX = uint64('X')
	OpH = uint64('H')
)

func newWFA() *wfa.Aligner {
	return wfa.New(
		&wfa.Penalties{
			Mismatch: penaltyMismatch,
			GapOpen:  penaltyGapOpen,
			GapExt:   penaltyGapExt,
		},
		&wfa.Options{
			GlobalAlignment: true,
		})
}

// affineScore returns the gap-affine penalty and the edit distance of
// wfa operations.
func affineScore(ops []uint64) (penalty int, ed int) {
	var n int
	for _, op := range ops {
		n = int(op & 4294967295)

		switch op >> 32 {
		case OpX:
			penalty += n * penaltyMismatch
			ed += n
		case OpI, OpD, OpH:
			penalty += penaltyGapOpen + n*penaltyGapExt
			ed += n
		}
	}
	return penalty, ed
}

// RefLen returns the number of target bases of a CIGAR.
func RefLen(cigar string) int {
	var n, l int
	for i := 0; i < len(cigar); i++ {
		c := cigar[i]
		if c >= '0' && c <= '9' {
			n = n*10 + int(c-'0')
			continue
		}
		if c == 'M' || c == 'D' || c == '=' || c == 'X' {
			l += n
		}
		n = 0
	}
	return l
}

// traceback aligns a query in a genome window and fills the output pools.
func (k *Kernels) traceback(t *pipeline.TracebackState, read uint32, sc *scratch, q []byte, start, end int64, band int) {
	sc.target = k.window(sc.target, start, end)
	sc.alg.Options.Band = band

	r := sc.alg.Align(q, sc.target)
	defer align.RecycleAlignResult(r)
	if r.Ed < 0 {
		return
	}

	pos := start + int64(r.TBegin)
	if pos < 0 {
		pos = 0
	}
	t.Cigars[read] = string(r.Cigar)
	t.MDs[read] = string(r.MD)
	t.FinalEds[read] = uint16(r.Ed)
	t.FinalScores[read] = int32(-r.Ed)
	t.FinalPos[read] = uint32(pos)
}

// BandedTraceback aligns the selected records within the DP band around
// their scored positions.
func (k *Kernels) BandedTraceback(t *pipeline.TracebackState, rank alignment.Rank, sel compact.Selection,
	best []alignment.BestAlignments, bandLen uint32) {
	band := int64(bandLen-1) >> 1

	t.Device.Launch("banded traceback", sel.Len(), func(i int) error {
		read := sel.At(i)
		rec := best[read].Get(rank)
		if !rec.IsAligned() {
			return nil
		}
		sc := k.getScratch()
		defer k.putScratch(sc)

		q := sc.strand(t.Reads(rec.Mate).Seqs[read], rec.RC)
		k.traceback(t, read, sc, q, int64(rec.Pos)-band, int64(rec.Pos)+int64(len(q))+band, int(band))
		return nil
	})
}

// OppositeTraceback aligns the selected opposite records in the insert
// window of their anchors with a full DP.
func (k *Kernels) OppositeTraceback(t *pipeline.TracebackState, rank alignment.Rank, sel compact.Selection,
	best []alignment.BestAlignments) {
	maxInsert := t.Params.MaxInsert

	t.Device.Launch("opposite traceback", sel.Len(), func(i int) error {
		read := sel.At(i)
		rec := best[read].Get(rank)
		anchor := t.BestAnchor[read].Get(rank)
		if !rec.IsAligned() || !anchor.IsAligned() {
			return nil
		}
		sc := k.getScratch()
		defer k.putScratch(sc)

		q := sc.strand(t.Reads(rec.Mate).Seqs[read], rec.RC)
		start, end := oppositeWindow(anchor.Pos, len(t.Reads(anchor.Mate).Seqs[read]), anchor.RC, maxInsert)
		k.traceback(t, read, sc, q, start, end, -1)
		return nil
	})
}

// FinishAlignment re-scores the traced alignments with gap-affine
// penalties.
func (k *Kernels) FinishAlignment(t *pipeline.TracebackState, rank alignment.Rank, sel compact.Selection,
	best []alignment.BestAlignments, bandLen uint32) {
	k.finish(t, "finish alignment", rank, sel, best)
}

// FinishOppositeAlignment re-scores the traced alignments of the opposite
// mates with gap-affine penalties.
func (k *Kernels) FinishOppositeAlignment(t *pipeline.TracebackState, rank alignment.Rank, sel compact.Selection,
	best []alignment.BestAlignments, bandLen uint32) {
	k.finish(t, "finish opposite alignment", rank, sel, best)
}

func (k *Kernels) finish(t *pipeline.TracebackState, name string, rank alignment.Rank, sel compact.Selection,
	best []alignment.BestAlignments) {
	t.Device.Launch(name, sel.Len(), func(i int) error {
		read := sel.At(i)
		if t.Cigars[read] == "" {
			return nil
		}
		rec := best[read].Get(rank)
		sc := k.getScratch()
		defer k.putScratch(sc)

		q := sc.strand(t.Reads(rec.Mate).Seqs[read], rec.RC)
		pos := int64(t.FinalPos[read])
		sc.target = k.window(sc.target, pos, pos+int64(RefLen(t.Cigars[read])))

		if sc.wfa == nil {
			sc.wfa = newWFA()
		}
		result, err := sc.wfa.Align(q, sc.target)
		if err != nil {
			return errors.Wrapf(err, "read %d", read)
		}
		penalty, ed := affineScore(result.Ops)
		wfa.RecycleAlignmentResult(result)

		t.FinalScores[read] = int32(-penalty)
		t.FinalEds[read] = uint16(ed)
		return nil
	})
}
