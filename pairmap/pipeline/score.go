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
	"github.com/shenwei356/PairMap/pairmap/persist"
	"github.com/shenwei356/PairMap/pairmap/stats"
	"github.com/twotwotwo/sorts/sortutil"
)

// scoreBestApprox runs the extension loop of one seeding pass: rounds of
// selection, locating, anchor scoring, opposite-mate scoring and reduction,
// until no read stays active.
func (a *Aligner) scoreBestApprox(s *Session, anchor alignment.Mate, reads, oppReads *ReadBatch, pass uint32) error {
	buf := a.buf
	globalStart := time.Now()
	globalTimer := device.NewTimer(a.dev)
	globalTimer.Start()

	p := &ScoringPipeline{
		Device:      a.dev,
		Params:      a.params,
		Batch:       s.Batch,
		Anchor:      anchor,
		SeedingPass: pass,

		Reads:         reads,
		OppositeReads: oppReads,

		SeedHits:  &buf.SeedHits,
		Active:    buf.ActiveReads,
		Reseed:    buf.SeedQueues,
		Hits:      buf.Hits,
		HitsIndex: buf.HitsIndex,
		IdxQueue:  buf.IdxQueue,

		BestAnchor:   buf.BestAnchor[:s.Count],
		BestOpposite: buf.BestOpposite[:s.Count],
		Trys:         buf.Trys[:s.Count],
		Extensions:   buf.Extensions[:s.Count],
	}

	// the reads of this seeding pass become active
	topSeed := a.params.TopSeed
	p.Active.Load(buf.SeedQueues.Current(), func(r uint32) uint32 {
		return alignment.PackRead(r, topSeed)
	})

	a.kernels.SelectInit(p)
	if err := a.dev.CheckError("selecting init kernel"); err != nil {
		return err
	}

	bandLen := BandLength(a.params.MaxDist)
	timer := device.NewTimer(a.dev)
	var nExt uint32
	var start time.Time
	var err error

	for ext := uint32(0); p.Active.InSize() > 0; ext++ {
		p.ExtensionPass = ext
		inSize := p.Active.InSize()

		round := Plan(inSize, a.params.BatchSize, a.params.MaxExt, nExt)
		p.HitsPerRead, p.Window = round.HitsPerRead, round.Window
		a.debugf("batch %d, anchor %s, pass %d, round %d: %d active reads, %s",
			s.Batch, anchor, pass, ext, inSize, round)

		// selection
		start = time.Now()
		timer.Start()

		p.Hits.Clear()
		p.Active.ClearOutput()
		p.HitsIndex.Setup(round.HitsPerRead, inSize)
		if round.Window < inSize {
			a.carry(p, round.Window, inSize)
		}
		a.kernels.Select(p)
		if err = a.dev.CheckError("selecting kernel"); err != nil {
			return err
		}

		timer.Stop()
		s.record(stats.Select, uint64(round.Window)*uint64(round.HitsPerRead), time.Since(start), timer)

		p.Active.Swap()
		s.Rounds[anchor]++

		// the active set is empty: this pass is over
		if p.Active.InSize() == 0 {
			break
		}

		p.HitsQueueSize, err = device.AwaitCompletion(a.dev, "selecting kernel", p.Hits.Size)
		if err != nil {
			return err
		}
		// only carried reads stayed active
		if p.HitsQueueSize == 0 {
			continue
		}

		if at, ok := s.persistAt(pass, int(ext)); ok {
			a.persister.Persist(at, "selection", uint32(anchor),
				persist.Uint32s("active", p.Active.Current().Slice()),
				persist.Uint32s("hits", p.Hits.Loc[:p.HitsQueueSize]))
		}

		// sort the hits by index row, then locate them
		start = time.Now()
		timer.Start()
		a.sortHits(p)
		timer.Stop()
		s.record(stats.Sort, uint64(p.HitsQueueSize), time.Since(start), timer)

		start = time.Now()
		timer.Start()
		a.kernels.Locate(p)
		if err = a.dev.CheckError("locating kernel"); err != nil {
			return err
		}
		timer.Stop()
		s.record(stats.Locate, uint64(p.HitsQueueSize), time.Since(start), timer)

		// sort the hits by diagonal, then score the anchor
		start = time.Now()
		timer.Start()
		a.sortHits(p)
		timer.Stop()
		s.record(stats.Sort, uint64(p.HitsQueueSize), time.Since(start), timer)

		start = time.Now()
		timer.Start()
		a.kernels.AnchorScore(p, bandLen)
		if err = a.dev.CheckError("score kernel"); err != nil {
			return err
		}
		timer.Stop()
		// recorded with the reduction
		scoreHost, scoreDev := time.Since(start), timer.Seconds()

		// score the opposite mate of the aligned anchors
		start = time.Now()
		timer.Start()

		scores := compact.NewIndirectView(p.Hits.Score, p.SortedHits())
		p.OppositeQueue, err = compact.CopyIf(a.dev, "compacting opposite queue", int(p.HitsQueueSize),
			func(i uint32) bool { return scores.At(int(i)) != alignment.WorstScore },
			buf.OppositeQueue)
		if err != nil {
			return err
		}

		hits := p.Hits
		a.dev.Launch("resetting opposite scores", int(p.HitsQueueSize), func(i int) error {
			hits.OppositeScore[i] = alignment.WorstScore
			return nil
		})

		if p.OppositeQueue.Len() > 0 {
			a.kernels.OppositeScore(p)

			if at, ok := s.persistAt(pass, int(ext)); ok {
				if err = a.dev.CheckError("opposite-score kernel"); err != nil {
					return err
				}
				opp := compact.NewIndirectView(p.Hits.OppositeScore, p.SortedHits()).Through(p.OppositeQueue)
				vs := make([]int32, opp.Len())
				for i := range vs {
					vs[i] = opp.At(i)
				}
				a.persister.Persist(at, "opposite-score", uint32(anchor), persist.Int32s("score", vs))
			}
		}
		if err = a.dev.CheckError("opposite-score kernel"); err != nil {
			return err
		}
		timer.Stop()
		s.record(stats.OppositeScore, uint64(p.OppositeQueue.Len()), time.Since(start), timer)

		// fold the scores into the best records
		start = time.Now()
		timer.Start()
		a.kernels.ScoreReduce(p, ReduceContext{Trys: p.Trys, NExt: nExt})
		if err = a.dev.CheckError("score-reduce kernel"); err != nil {
			return err
		}
		timer.Stop()
		s.add(stats.Score, uint64(p.HitsQueueSize),
			(scoreHost + time.Since(start)).Seconds(), scoreDev+timer.Seconds())

		nExt += round.HitsPerRead
	}

	globalTimer.Stop()
	s.record(stats.ScoringPipe, uint64(buf.SeedQueues.InSize()), time.Since(globalStart), globalTimer)
	return nil
}

// carry moves the active reads past the window of a round into the output
// queue unchanged. They select no hits this round.
func (a *Aligner) carry(p *ScoringPipeline, window, inSize uint32) {
	in := p.Active.Current().Slice()
	active := p.Active
	a.dev.Launch("carrying active reads", int(inSize-window), func(i int) error {
		active.Push(in[window+uint32(i)])
		return nil
	})
}

// sortHits orders the first HitsQueueSize hits by their location in IdxQueue.
// Equal locations keep the order of the hits.
func (a *Aligner) sortHits(p *ScoringPipeline) {
	n := int(p.HitsQueueSize)
	keys := a.buf.sortKeys[:n]
	loc := p.Hits.Loc
	idx := p.IdxQueue
	a.dev.Task("sorting hits", func() error {
		for i := range keys {
			keys[i] = uint64(loc[i])<<32 | uint64(i)
		}
		sortutil.Uint64s(keys)
		for i, k := range keys {
			idx[i] = uint32(k)
		}
		return nil
	})
}
