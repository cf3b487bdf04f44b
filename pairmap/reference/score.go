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
	"github.com/shenwei356/PairMap/pairmap/alignment"
	"github.com/shenwei356/PairMap/pairmap/pipeline"
)

// Locate converts the index rows of the hits into anchor diagonals,
// i.e., the genome position of the first base of the read.
func (k *Kernels) Locate(p *pipeline.ScoringPipeline) {
	hits := p.Hits
	idx := p.SortedHits()
	p.Device.Launch("locate", len(idx), func(i int) error {
		h := idx[i]
		pos := k.idx.Pos(hits.Loc[h])
		qpos := uint32(hits.QueryPos[h])
		if pos < qpos { // the read hangs over the start of the genome
			pos = qpos
		}
		hits.Loc[h] = pos - qpos
		return nil
	})
}

// AnchorScore scores the anchor of every hit with a banded edit-distance DP
// around its diagonal. The score is the negative edit distance, or
// WorstScore beyond MaxDist. Loc is refined to the start of the alignment.
func (k *Kernels) AnchorScore(p *pipeline.ScoringPipeline, bandLen uint32) {
	hits := p.Hits
	idx := p.SortedHits()
	maxDist := int(p.Params.MaxDist)
	band := int64(bandLen-1) >> 1

	p.Device.Launch("anchor score", len(idx), func(i int) error {
		h := idx[i]
		sc := k.getScratch()
		defer k.putScratch(sc)

		q := sc.strand(p.Reads.Seqs[hits.Read[h]], hits.RC[h])

		start := int64(hits.Loc[h]) - band
		sc.target = k.window(sc.target, start, int64(hits.Loc[h])+int64(len(q))+band)
		sc.alg.Options.Band = int(band)

		ed, end := sc.alg.Distance(q, sc.target)
		if ed < 0 || ed > maxDist {
			hits.Score[h] = alignment.WorstScore
			return nil
		}
		hits.Score[h] = int32(-ed)

		pos := start + int64(end) - int64(len(q))
		if pos < 0 {
			pos = 0
		}
		hits.Loc[h] = uint32(pos)
		return nil
	})
}

// oppositeWindow returns the genome range searched for the opposite mate of
// an anchor at pos on a strand. A forward anchor has its mate downstream,
// a reverse one upstream.
func oppositeWindow(pos uint32, anchorLen int, rc bool, maxInsert uint32) (int64, int64) {
	if !rc {
		return int64(pos), int64(pos) + int64(maxInsert)
	}
	end := int64(pos) + int64(anchorLen)
	return end - int64(maxInsert), end
}

// concordant tells whether the fragment spanned by an anchor and its
// opposite mate has an acceptable insert size.
func concordant(anchorPos uint32, anchorLen int, oppPos uint32, oppLen int, rc bool, min, max uint32) bool {
	var begin, end int64
	if !rc {
		begin, end = int64(anchorPos), int64(oppPos)+int64(oppLen)
	} else {
		begin, end = int64(oppPos), int64(anchorPos)+int64(anchorLen)
	}
	size := end - begin
	return size >= int64(min) && size <= int64(max)
}

// OppositeScore aligns the opposite mate of the aligned anchors in the
// insert window with a full semi-global DP.
func (k *Kernels) OppositeScore(p *pipeline.ScoringPipeline) {
	hits := p.Hits
	idx := p.SortedHits()
	sel := p.OppositeQueue
	maxDist := int(p.Params.MaxDist)
	maxInsert := p.Params.MaxInsert

	p.Device.Launch("opposite score", sel.Len(), func(i int) error {
		h := idx[sel.At(i)]
		read := hits.Read[h]
		sc := k.getScratch()
		defer k.putScratch(sc)

		// the opposite mate lies on the other strand
		q := sc.strand(p.OppositeReads.Seqs[read], !hits.RC[h])

		start, end := oppositeWindow(hits.Loc[h], len(p.Reads.Seqs[read]), hits.RC[h], maxInsert)
		sc.target = k.window(sc.target, start, end)
		sc.alg.Options.Band = -1

		ed, e := sc.alg.Distance(q, sc.target)
		if ed < 0 || ed > maxDist {
			hits.OppositeScore[h] = alignment.WorstScore
			return nil
		}
		pos := start + int64(e) - int64(len(q))
		if pos < 0 {
			pos = 0
		}
		hits.OppositeScore[h] = int32(-ed)
		hits.OppositeLoc[h] = uint32(pos)
		return nil
	})
}

// ScoreReduce folds the scored hits of every active read into its best and
// second-best pairs. Only strict improvements are kept, and a pair already
// recorded, possibly from the other anchor mate, is not recorded twice.
// The retry budget of a read is reset by an improvement and decremented
// otherwise.
func (k *Kernels) ScoreReduce(p *pipeline.ScoringPipeline, ctx pipeline.ReduceContext) {
	in := p.Active.Current()
	hits := p.Hits
	params := p.Params
	anchorMate := p.Anchor
	tol := params.MaxDist

	p.Device.Launch("score reduce", in.Len(), func(i int) error {
		read, _ := alignment.UnpackRead(in.At(i))
		first, n := p.HitsIndex.Block(uint32(i))
		ba, bo := &p.BestAnchor[read], &p.BestOpposite[read]
		anchorLen := len(p.Reads.Seqs[read])
		oppLen := len(p.OppositeReads.Seqs[read])

		var na, no alignment.Alignment
		var score, best, second int32
		var improved bool
		for h := first; h < first+n; h++ {
			improved = false
			if hits.Score[h] != alignment.WorstScore {
				na = alignment.Alignment{
					Pos:   hits.Loc[h],
					Score: hits.Score[h],
					Ed:    uint16(-hits.Score[h]),
					Mate:  anchorMate,
					RC:    hits.RC[h],
				}
				no = alignment.Unaligned(anchorMate.Opposite())
				if hits.OppositeScore[h] != alignment.WorstScore {
					no = alignment.Alignment{
						Pos:   hits.OppositeLoc[h],
						Score: hits.OppositeScore[h],
						Ed:    uint16(-hits.OppositeScore[h]),
						Mate:  anchorMate.Opposite(),
						RC:    !hits.RC[h],
					}
					if concordant(na.Pos, anchorLen, no.Pos, oppLen, na.RC, params.MinInsert, params.MaxInsert) {
						na.Paired, no.Paired = true, true
					}
				}

				score = pairScore(na, no, tol)
				best = pairScore(ba.Best, bo.Best, tol)
				second = pairScore(ba.Second, bo.Second, tol)

				if score > best {
					if !samePair(na, no, ba.Best, bo.Best, tol) {
						ba.Second, bo.Second = ba.Best, bo.Best
					}
					ba.Best, bo.Best = na, no
					improved = true
				} else if score > second && !samePair(na, no, ba.Best, bo.Best, tol) {
					ba.Second, bo.Second = na, no
					improved = true
				}
			}

			if improved {
				ctx.Trys[read] = params.MaxTrys
			} else if ctx.Trys[read] > 0 {
				ctx.Trys[read]--
			}
		}
		return nil
	})
}
