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
	"time"

	"github.com/shenwei356/PairMap/pairmap/alignment"
	"github.com/shenwei356/PairMap/pairmap/compact"
	"github.com/shenwei356/PairMap/pairmap/device"
	"github.com/shenwei356/PairMap/pairmap/stats"
)

// traceback runs the four traceback rounds of a batch:
// best anchor, best opposite, second-best anchor, second-best opposite.
// Each round ends with one output batch.
func (a *Aligner) traceback(s *Session) error {
	buf := a.buf
	count := s.Count
	t := &TracebackState{
		Device:     a.dev,
		Params:     a.params,
		Reads1:     s.Reads1,
		Reads2:     s.Reads2,
		BestAnchor: s.BestAnchor,

		Cigars:      buf.Cigars,
		MDs:         buf.MDs,
		FinalScores: buf.FinalScores,
		FinalEds:    buf.FinalEds,
		FinalPos:    buf.FinalPos,
	}

	if err := a.tracebackAnchor(s, t, alignment.BestScore, compact.Range(count)); err != nil {
		return err
	}
	if err := a.tracebackOpposite(s, t, alignment.BestScore); err != nil {
		return err
	}

	second, err := compact.CopyIf(a.dev, "compacting second-best", count,
		func(i uint32) bool { return alignment.HasSecond(&s.BestAnchor[i]) }, buf.Compacted)
	if err != nil {
		return err
	}
	a.debugf("batch %d: %d second-best alignments", s.Batch, second.Len())
	if err = a.tracebackAnchor(s, t, alignment.SecondBestScore, second); err != nil {
		return err
	}
	return a.tracebackOpposite(s, t, alignment.SecondBestScore)
}

// tracebackAnchor computes the alignments of the anchor records of sel.
// The best round runs on every read, unaligned records are skipped by
// the kernels.
func (a *Aligner) tracebackAnchor(s *Session, t *TracebackState, rank alignment.Rank, sel compact.Selection) error {
	bandLen := BandLength(a.params.MaxDist)
	timer := device.NewTimer(a.dev)
	t.Clear(s.Count)

	if sel.Len() > 0 {
		start := time.Now()
		timer.Start()
		a.kernels.BandedTraceback(t, rank, sel, s.BestAnchor, bandLen)
		if err := a.dev.CheckError("backtracking kernel"); err != nil {
			return err
		}
		timer.Stop()
		s.record(stats.Backtrack, uint64(sel.Len()), time.Since(start), timer)

		start = time.Now()
		timer.Start()
		a.kernels.FinishAlignment(t, rank, sel, s.BestAnchor, bandLen)
		if err := a.dev.CheckError("alignment kernel"); err != nil {
			return err
		}
		timer.Stop()
		s.record(stats.Finalize, uint64(sel.Len()), time.Since(start), timer)
	}

	return a.output(s, t, s.BestAnchor, alignment.Mate1, rank)
}

// tracebackOpposite computes the alignments of the opposite records:
// paired mates are re-aligned in their window with a full DP,
// unpaired ones within the band.
func (a *Aligner) tracebackOpposite(s *Session, t *TracebackState, rank alignment.Rank) error {
	buf := a.buf
	bandLen := BandLength(a.params.MaxDist)
	timer := device.NewTimer(a.dev)
	t.Clear(s.Count)

	start := time.Now()
	timer.Start()

	isPaired := alignment.RankPaired(rank)
	paired, err := compact.CopyIf(a.dev, "compacting paired", s.Count,
		func(i uint32) bool { return isPaired(&s.BestOpposite[i]) }, buf.Compacted)
	if err != nil {
		return err
	}
	if paired.Len() > 0 {
		a.kernels.OppositeTraceback(t, rank, paired, s.BestOpposite)
		if err = a.dev.CheckError("opposite backtracking kernel"); err != nil {
			return err
		}
	}

	isUnpaired := alignment.RankUnpaired(rank)
	unpaired, err := compact.CopyIf(a.dev, "compacting unpaired", s.Count,
		func(i uint32) bool { return isUnpaired(&s.BestOpposite[i]) }, buf.Compacted)
	if err != nil {
		return err
	}
	if unpaired.Len() > 0 {
		a.kernels.BandedTraceback(t, rank, unpaired, s.BestOpposite, bandLen)
		if err = a.dev.CheckError("opposite backtracking kernel"); err != nil {
			return err
		}
	}

	timer.Stop()
	s.record(stats.BacktrackOpposite, uint64(paired.Len()+unpaired.Len()), time.Since(start), timer)

	isAligned := alignment.RankAligned(rank)
	aligned, err := compact.CopyIf(a.dev, "compacting aligned", s.Count,
		func(i uint32) bool { return isAligned(&s.BestOpposite[i]) }, buf.Compacted)
	if err != nil {
		return err
	}
	if aligned.Len() > 0 {
		start = time.Now()
		timer.Start()
		a.kernels.FinishOppositeAlignment(t, rank, aligned, s.BestOpposite, bandLen)
		if err = a.dev.CheckError("opposite alignment kernel"); err != nil {
			return err
		}
		timer.Stop()
		s.record(stats.Finalize, uint64(aligned.Len()), time.Since(start), timer)
	}

	return a.output(s, t, s.BestOpposite, alignment.Mate2, rank)
}

// output sends the aligned records of a rank to the output writer.
func (a *Aligner) output(s *Session, t *TracebackState, best []alignment.BestAlignments, mate alignment.Mate, rank alignment.Rank) error {
	isAligned := alignment.RankAligned(rank)
	sel, err := compact.CopyIf(a.dev, "compacting output", s.Count,
		func(i uint32) bool { return isAligned(&best[i]) && t.Cigars[i] != "" }, a.buf.Compacted)
	if err != nil {
		return err
	}

	b := &OutputBatch{
		Batch:   s.Batch,
		Reads1:  s.Reads1,
		Reads2:  s.Reads2,
		Entries: make([]OutputEntry, sel.Len()),
	}
	for j := range b.Entries {
		i := sel.At(j)
		b.Entries[j] = OutputEntry{
			Read:      i,
			Alignment: best[i].Get(rank),
			Pos:       t.FinalPos[i],
			Score:     t.FinalScores[i],
			Ed:        t.FinalEds[i],
			Cigar:     t.Cigars[i],
			MD:        t.MDs[i],
		}
	}
	a.out.Process(b, mate, rank)
	return nil
}
