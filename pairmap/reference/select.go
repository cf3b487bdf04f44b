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

// SelectInit resets the retry budgets, extension counters and selection
// cursors of all reads.
func (k *Kernels) SelectInit(p *pipeline.ScoringPipeline) {
	n := p.Reads.Len()
	if cap(k.cursors) < n {
		k.cursors = make([]cursor, n)
	}
	k.cursors = k.cursors[:n]
	cursors := k.cursors
	maxTrys := p.Params.MaxTrys

	p.Device.Launch("select init", n, func(i int) error {
		cursors[i] = cursor{}
		p.Trys[i] = maxTrys
		p.Extensions[i] = 0
		return nil
	})
}

// Select pulls up to HitsPerRead hits for each read of the window, walking
// the seed ranges from the smallest. Reads with hits stay active. Reads out
// of hits or budget are dropped, and queued for re-seeding when they have
// no alignment yet.
func (k *Kernels) Select(p *pipeline.ScoringPipeline) {
	in := p.Active.Current()
	cursors := k.cursors
	maxExt := p.Params.MaxExt
	hitsPerRead := p.HitsPerRead

	p.Device.Launch("select", int(p.Window), func(i int) error {
		packed := in.At(i)
		read, topSeed := alignment.UnpackRead(packed)

		ranges := p.SeedHits.Ranges(read)
		if topSeed && len(ranges) > 1 {
			ranges = ranges[:1]
		}

		var n uint32
		if p.Trys[read] > 0 && p.Extensions[read] < maxExt {
			n = hitsPerRead
			if left := maxExt - p.Extensions[read]; n > left {
				n = left
			}
			if avail := available(ranges, cursors[read]); n > avail {
				n = avail
			}
		}

		if n == 0 {
			if !p.BestAnchor[read].Best.IsAligned() {
				p.Reseed.Push(read)
			}
			return nil
		}

		first := p.Hits.Reserve(n)
		c := &cursors[read]
		var r pipeline.SeedRange
		for j := uint32(0); j < n; j++ {
			for c.off >= ranges[c.rng].Size() {
				c.rng++
				c.off = 0
			}
			r = ranges[c.rng]
			p.Hits.Set(first+j, read, r.Begin+c.off, r.QueryPos, r.RC)
			c.off++
		}
		p.Extensions[read] += n

		slot := p.Active.Push(packed)
		p.HitsIndex.Set(slot, first, n)
		return nil
	})
}

// available returns the number of hits left after the cursor.
func available(ranges []pipeline.SeedRange, c cursor) uint32 {
	if c.rng >= len(ranges) {
		return 0
	}
	n := ranges[c.rng].Size() - c.off
	for _, r := range ranges[c.rng+1:] {
		n += r.Size()
	}
	return n
}
