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
	"sort"

	"github.com/shenwei356/PairMap/pairmap/pipeline"
)

// SeedPositions returns the seed interval and the first seed offset of a
// seeding pass. Later passes use denser seeds, shifted by half an interval.
func (k *Kernels) SeedPositions(pass uint32) (interval, offset int) {
	interval = k.opt.SeedInterval >> pass
	if interval < 1 {
		interval = 1
	}
	if pass > 0 {
		offset = interval >> 1
	}
	return interval, offset
}

// Map finds the seed ranges of the queued reads on both strands.
// Ranges of a read are sorted by size, the smallest first.
func (k *Kernels) Map(r *pipeline.MapRequest) {
	interval, offset := k.SeedPositions(r.SeedingPass)
	K := k.idx.k
	queue := r.Queue
	hits := r.SeedHits

	r.Device.Launch("seed search", queue.Len(), func(i int) error {
		read := queue.At(i)
		s := r.Reads.Seqs[read]
		if len(s) < K || len(s) > 1<<16 {
			return nil
		}

		sc := k.getScratch()
		rc := sc.strand(s, true)

		ranges := hits.Ranges(read)[:0]
		var lo, hi uint32
		var ok bool
		for j := offset; j+K <= len(s); j += interval {
			if lo, hi, ok = k.idx.LookupSeq(s[j : j+K]); ok && hi > lo {
				ranges = append(ranges, pipeline.SeedRange{Begin: lo, End: hi, QueryPos: uint16(j)})
			}
			if lo, hi, ok = k.idx.LookupSeq(rc[j : j+K]); ok && hi > lo {
				ranges = append(ranges, pipeline.SeedRange{Begin: lo, End: hi, QueryPos: uint16(j), RC: true})
			}
		}
		k.putScratch(sc)

		sort.SliceStable(ranges, func(a, b int) bool { return ranges[a].Size() < ranges[b].Size() })
		hits.Set(read, ranges)
		return nil
	})
}
