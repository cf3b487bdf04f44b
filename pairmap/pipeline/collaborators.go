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
	"github.com/shenwei356/PairMap/pairmap/alignment"
	"github.com/shenwei356/PairMap/pairmap/compact"
	"github.com/shenwei356/PairMap/pairmap/persist"
)

// Collaborators launch kernels on the device of their state and return
// immediately. Failures surface at the next barrier of the pipeline.

// SeedSearcher finds the seed ranges of the reads of a seeding pass.
type SeedSearcher interface {
	Map(r *MapRequest)
}

// HitSelector pops active reads, pulls up to HitsPerRead hits per read into
// the candidate arrays, and pushes the reads that stay active.
type HitSelector interface {
	// SelectInit prepares the per-read selection state of a scoring pipeline.
	SelectInit(p *ScoringPipeline)

	// Select processes the first Window reads of the active queue.
	// For each pushed read it links the output slot to its hits with
	// HitsIndex.Set. Reads dropped without a best alignment are pushed
	// to the re-seeding queue.
	Select(p *ScoringPipeline)
}

// Locator converts the index rows of the hits into genome diagonals.
type Locator interface {
	Locate(p *ScoringPipeline)
}

// Scorer scores the anchor and the opposite mate of the candidate hits.
type Scorer interface {
	// AnchorScore scores the anchor of every hit within a DP band.
	AnchorScore(p *ScoringPipeline, bandLen uint32)

	// OppositeScore scores the opposite mate of the hits in OppositeQueue.
	OppositeScore(p *ScoringPipeline)
}

// Reducer folds the scores of the hits into the best and second-best
// records of the reads, and updates the retry counters.
type Reducer interface {
	ScoreReduce(p *ScoringPipeline, ctx ReduceContext)
}

// Tracer computes CIGARs and final scores of the selected reads.
type Tracer interface {
	BandedTraceback(t *TracebackState, rank alignment.Rank, sel compact.Selection,
		best []alignment.BestAlignments, bandLen uint32)
	OppositeTraceback(t *TracebackState, rank alignment.Rank, sel compact.Selection,
		best []alignment.BestAlignments)

	FinishAlignment(t *TracebackState, rank alignment.Rank, sel compact.Selection,
		best []alignment.BestAlignments, bandLen uint32)
	FinishOppositeAlignment(t *TracebackState, rank alignment.Rank, sel compact.Selection,
		best []alignment.BestAlignments, bandLen uint32)
}

// Kernels groups all device collaborators.
type Kernels interface {
	SeedSearcher
	HitSelector
	Locator
	Scorer
	Reducer
	Tracer
}

// OutputWriter consumes the output of a traceback round.
// The batch is reused after Process returns.
type OutputWriter interface {
	Process(b *OutputBatch, mate alignment.Mate, rank alignment.Rank)
}

// Persister dumps intermediate state. *persist.Writer implements it.
type Persister interface {
	Persist(at persist.Coordinate, name string, anchor uint32, sections ...persist.Section)
}

// Logger receives debug messages, e.g., a *logging.Logger.
type Logger interface {
	Debugf(format string, args ...interface{})
}
