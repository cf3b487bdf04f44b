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

import "fmt"

// MaxExtensionsPerRound is the structural ceiling of hits selected per read
// in one round: the extension index of a candidate is a 12-bit field.
const MaxExtensionsPerRound = 4096

// Round is the work layout of one extension round.
type Round struct {
	HitsPerRead uint32 // candidate hits selected per active read
	Window      uint32 // active reads selecting hits; the rest are carried over
}

// Plan decides how many hits to pull per active read.
//
// When the active set alone fills half of the batch, one hit per read keeps
// the batch busy and lets reads stop early. Otherwise more hits per read are
// selected to saturate the batch, bounded by the remaining extension budget
// of the reads and by MaxExtensionsPerRound.
//
// HitsPerRead*Window never exceeds batchSize: when the active set is larger
// than the batch, only the first Window reads select hits in this round.
func Plan(activeSize, batchSize, maxExt, nExt uint32) Round {
	if activeSize == 0 {
		return Round{}
	}

	hits := uint32(1)
	if activeSize <= batchSize/2 {
		var remaining uint32
		if maxExt > nExt {
			remaining = maxExt - nExt
		}
		if remaining > MaxExtensionsPerRound {
			remaining = MaxExtensionsPerRound
		}

		hits = batchSize / activeSize
		if hits > remaining {
			hits = remaining
		}
		if hits == 0 { // the budget is spent, selection drops the reads
			hits = 1
		}
	}

	window := activeSize
	if uint64(window)*uint64(hits) > uint64(batchSize) {
		window = batchSize / hits
	}
	return Round{HitsPerRead: hits, Window: window}
}

func (r Round) String() string {
	return fmt.Sprintf("hits/read: %d, window: %d", r.HitsPerRead, r.Window)
}

// HitsIndex links every active slot of a round to its block of candidate
// hits. Blocks hold at most Stride hits.
type HitsIndex struct {
	stride uint32
	slots  uint32
	first  []uint32
	counts []uint32
}

// NewHitsIndex returns a HitsIndex for up to capacity active slots.
func NewHitsIndex(capacity int) *HitsIndex {
	h := &HitsIndex{}
	h.Reserve(capacity)
	return h
}

// Reserve grows the index to capacity slots; only between batches.
func (h *HitsIndex) Reserve(capacity int) {
	if capacity <= len(h.first) {
		return
	}
	h.first = make([]uint32, capacity)
	h.counts = make([]uint32, capacity)
}

// Setup configures the layout of a round and empties every slot.
func (h *HitsIndex) Setup(hitsPerRead uint32, slots uint32) {
	h.stride = hitsPerRead
	h.slots = slots
	for i := uint32(0); i < slots; i++ {
		h.counts[i] = 0
	}
}

// Stride returns the maximum number of hits of a slot.
func (h *HitsIndex) Stride() uint32 { return h.stride }

// Slots returns the number of configured slots.
func (h *HitsIndex) Slots() uint32 { return h.slots }

// Set links a slot to the hits [first, first+count).
// Only the producer of the slot may call it.
func (h *HitsIndex) Set(slot, first, count uint32) {
	if count > h.stride {
		panic(fmt.Sprintf("hits index: %d hits exceed the stride %d", count, h.stride))
	}
	h.first[slot] = first
	h.counts[slot] = count
}

// Block returns the first hit and the number of hits of a slot.
func (h *HitsIndex) Block(slot uint32) (uint32, uint32) {
	return h.first[slot], h.counts[slot]
}
