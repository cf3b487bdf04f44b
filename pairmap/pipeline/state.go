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
	"fmt"
	"sync/atomic"

	"github.com/shenwei356/PairMap/pairmap/alignment"
	"github.com/shenwei356/PairMap/pairmap/compact"
	"github.com/shenwei356/PairMap/pairmap/device"
	"github.com/shenwei356/PairMap/pairmap/queue"
)

// ReadBatch is one mate of a batch of read pairs.
type ReadBatch struct {
	IDs   []string
	Seqs  [][]byte
	Quals [][]byte // optional
}

// Len returns the number of reads.
func (b *ReadBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Seqs)
}

// Reset empties the batch, keeping the allocated slices.
func (b *ReadBatch) Reset() {
	b.IDs = b.IDs[:0]
	b.Seqs = b.Seqs[:0]
	b.Quals = b.Quals[:0]
}

// Append adds a read. The slices are stored, not copied.
func (b *ReadBatch) Append(id string, s, q []byte) {
	b.IDs = append(b.IDs, id)
	b.Seqs = append(b.Seqs, s)
	b.Quals = append(b.Quals, q)
}

// ------------------------------------------------------------------

// SeedRange is a block of index rows [Begin, End) matched by one seed.
type SeedRange struct {
	Begin, End uint32
	QueryPos   uint16 // seed offset on the read, on the matched strand
	RC         bool   // the seed matched the reverse complement of the read
}

// Size returns the number of hits of the range.
func (r SeedRange) Size() uint32 { return r.End - r.Begin }

// SeedHits holds the seed ranges of every read for the current seeding pass.
// Ranges of a read are written by one producer only.
type SeedHits struct {
	ranges [][]SeedRange
}

// Reserve grows the storage to n reads.
func (h *SeedHits) Reserve(n int) {
	if n <= len(h.ranges) {
		return
	}
	ranges := make([][]SeedRange, n)
	copy(ranges, h.ranges)
	h.ranges = ranges
}

// Clear drops the ranges of the first n reads.
func (h *SeedHits) Clear(n int) {
	for i := 0; i < n; i++ {
		h.ranges[i] = h.ranges[i][:0]
	}
}

// Ranges returns the ranges of a read.
func (h *SeedHits) Ranges(read uint32) []SeedRange { return h.ranges[read] }

// Set replaces the ranges of a read.
func (h *SeedHits) Set(read uint32, ranges []SeedRange) { h.ranges[read] = ranges }

// Append adds a range to a read.
func (h *SeedHits) Append(read uint32, r SeedRange) {
	h.ranges[read] = append(h.ranges[read], r)
}

// Hits returns the total number of hits of a read.
func (h *SeedHits) Hits(read uint32) uint64 {
	var n uint64
	for _, r := range h.ranges[read] {
		n += uint64(r.Size())
	}
	return n
}

// ------------------------------------------------------------------

// CandidateHits stores the candidate hits of one round as parallel arrays.
// It never holds more than its capacity (the batch size).
type CandidateHits struct {
	Read     []uint32 // read id
	Loc      []uint32 // index row after selection, anchor diagonal after locating
	QueryPos []uint16
	RC       []bool
	Score    []int32 // anchor score

	OppositeLoc   []uint32
	OppositeScore []int32

	size uint32
}

// NewCandidateHits returns CandidateHits of a capacity.
func NewCandidateHits(capacity int) *CandidateHits {
	return &CandidateHits{
		Read:          make([]uint32, capacity),
		Loc:           make([]uint32, capacity),
		QueryPos:      make([]uint16, capacity),
		RC:            make([]bool, capacity),
		Score:         make([]int32, capacity),
		OppositeLoc:   make([]uint32, capacity),
		OppositeScore: make([]int32, capacity),
	}
}

// Capacity returns the maximum number of hits.
func (h *CandidateHits) Capacity() int { return len(h.Read) }

// Size returns the number of hits appended. Read it after a barrier.
func (h *CandidateHits) Size() uint32 { return atomic.LoadUint32(&h.size) }

// Clear empties the arrays.
func (h *CandidateHits) Clear() { atomic.StoreUint32(&h.size, 0) }

// Reserve atomically allocates n contiguous entries and returns the first.
func (h *CandidateHits) Reserve(n uint32) uint32 {
	end := atomic.AddUint32(&h.size, n)
	if int(end) > len(h.Read) {
		panic(fmt.Sprintf("candidate hits: overflow, capacity: %d, requested: %d", len(h.Read), end))
	}
	return end - n
}

// Set writes an entry allocated by Reserve.
func (h *CandidateHits) Set(i, read, loc uint32, qpos uint16, rc bool) {
	h.Read[i] = read
	h.Loc[i] = loc
	h.QueryPos[i] = qpos
	h.RC[i] = rc
	h.Score[i] = alignment.WorstScore
	h.OppositeLoc[i] = 0
	h.OppositeScore[i] = alignment.WorstScore
}

// ------------------------------------------------------------------

// Buffers are the arrays reused across batches. They grow with the batch
// and the batch size, and never shrink.
type Buffers struct {
	SeedQueues  *queue.PingPong // reads to (re-)seed
	ActiveReads *queue.PingPong // reads of the extension loop
	SeedHits    SeedHits

	Hits      *CandidateHits
	HitsIndex *HitsIndex
	IdxQueue  []uint32 // sorted permutation of the hits
	sortKeys  []uint64

	OppositeQueue []uint32 // positions in IdxQueue with an aligned anchor
	Compacted     []uint32 // compaction buffer of the traceback rounds

	Trys       []uint32
	Extensions []uint32

	BestAnchor   []alignment.BestAlignments
	BestOpposite []alignment.BestAlignments

	Cigars      []string
	MDs         []string
	FinalScores []int32
	FinalEds    []uint16
	FinalPos    []uint32
}

// NewBuffers allocates the batch-size dependent arrays.
func NewBuffers(batchSize uint32) *Buffers {
	return &Buffers{
		SeedQueues:    queue.New(0),
		ActiveReads:   queue.New(0),
		Hits:          NewCandidateHits(int(batchSize)),
		HitsIndex:     NewHitsIndex(0),
		IdxQueue:      make([]uint32, batchSize),
		sortKeys:      make([]uint64, batchSize),
		OppositeQueue: make([]uint32, batchSize),
	}
}

// Reserve grows the read-indexed arrays to n reads.
func (b *Buffers) Reserve(n int) {
	b.SeedQueues.Reserve(n)
	b.ActiveReads.Reserve(n)
	b.SeedHits.Reserve(n)
	b.HitsIndex.Reserve(n)
	if n <= len(b.Trys) {
		return
	}
	b.Compacted = make([]uint32, n)
	b.Trys = make([]uint32, n)
	b.Extensions = make([]uint32, n)
	b.BestAnchor = make([]alignment.BestAlignments, n)
	b.BestOpposite = make([]alignment.BestAlignments, n)
	b.Cigars = make([]string, n)
	b.MDs = make([]string, n)
	b.FinalScores = make([]int32, n)
	b.FinalEds = make([]uint16, n)
	b.FinalPos = make([]uint32, n)
}

// ------------------------------------------------------------------

// MapRequest is the input of a seeding pass.
type MapRequest struct {
	Device      *device.Device
	Params      *Params
	Batch       uint32
	Anchor      alignment.Mate
	SeedingPass uint32
	Reads       *ReadBatch // anchor mates
	Queue       queue.View // reads to seed
	SeedHits    *SeedHits
}

// ScoringPipeline is the state shared by the kernels of one scoring pipeline,
// i.e., the extension loop of one seeding pass.
type ScoringPipeline struct {
	Device        *device.Device
	Params        *Params
	Batch         uint32
	Anchor        alignment.Mate
	SeedingPass   uint32
	ExtensionPass uint32

	Reads         *ReadBatch // anchor mates
	OppositeReads *ReadBatch

	SeedHits *SeedHits
	Active   *queue.PingPong // extension loop: selection pops from Current and pushes survivors
	Reseed   *queue.PingPong // seeding loop: selection pushes reads to re-seed

	Hits          *CandidateHits
	HitsIndex     *HitsIndex
	HitsPerRead   uint32
	Window        uint32
	HitsQueueSize uint32 // valid after selection

	IdxQueue      []uint32          // hits sorted by location
	OppositeQueue compact.Selection // positions in IdxQueue with an aligned anchor

	BestAnchor   []alignment.BestAlignments
	BestOpposite []alignment.BestAlignments

	Trys       []uint32
	Extensions []uint32 // per read, hits extended since the start of the pipeline
}

// SortedHits returns the hits in location order.
func (p *ScoringPipeline) SortedHits() []uint32 { return p.IdxQueue[:p.HitsQueueSize] }

// ReduceContext carries the scheduler state into the reduction.
type ReduceContext struct {
	Trys []uint32
	NExt uint32 // extensions spent before this round
}

// TracebackState is the state of one traceback round. The output pools are
// indexed by read id and cleared at the start of every round.
type TracebackState struct {
	Device *device.Device
	Params *Params

	Reads1, Reads2 *ReadBatch
	BestAnchor     []alignment.BestAlignments // anchor records, e.g., to place the opposite window

	Cigars      []string
	MDs         []string
	FinalScores []int32
	FinalEds    []uint16
	FinalPos    []uint32 // start of the final alignment on the genome
}

// Reads returns the reads of a mate.
func (t *TracebackState) Reads(m alignment.Mate) *ReadBatch {
	if m == alignment.Mate1 {
		return t.Reads1
	}
	return t.Reads2
}

// Clear empties the output pools of n reads.
func (t *TracebackState) Clear(n int) {
	for i := 0; i < n; i++ {
		t.Cigars[i] = ""
		t.MDs[i] = ""
		t.FinalScores[i] = alignment.WorstScore
		t.FinalEds[i] = 0
		t.FinalPos[i] = 0
	}
}

// OutputEntry is one finished alignment.
type OutputEntry struct {
	Read      uint32
	Alignment alignment.Alignment // rough alignment found by scoring
	Pos       uint32              // final start on the genome
	Score     int32               // final score
	Ed        uint16              // final edit distance
	Cigar     string
	MD        string
}

// OutputBatch is the output of one traceback round.
type OutputBatch struct {
	Batch   uint32
	Reads1  *ReadBatch
	Reads2  *ReadBatch
	Entries []OutputEntry // aligned reads only, in read order
}
