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

// Package reference implements the device kernels of the alignment pipeline
// on the CPU: k-mer seeding, hit selection, locating, edit-distance scoring,
// reduction of the best pairs, and traceback.
package reference

import (
	"fmt"
	"sync"

	"github.com/shenwei356/PairMap/pairmap/alignment"
	"github.com/shenwei356/PairMap/pairmap/pipeline"
	"github.com/shenwei356/PairMap/pairmap/reference/align"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/wfa"
)

// Kernels implements pipeline.Kernels. It keeps per-read selection cursors,
// so one Kernels serves one Aligner.
type Kernels struct {
	idx *Index
	opt *Options

	cursors []cursor
	pool    *sync.Pool
}

// cursor is the next hit to select of a read.
type cursor struct {
	rng int    // index of the range in the seed ranges of the read
	off uint32 // offset in the range
}

// NewKernels returns the reference kernels over a built index.
func NewKernels(idx *Index, opt *Options) (*Kernels, error) {
	if err := CheckOptions(opt); err != nil {
		return nil, err
	}
	if !idx.built {
		return nil, ErrNotBuilt
	}
	if idx.k != opt.SeedLen {
		return nil, fmt.Errorf("seed length (%d) does not match the k-mer size of the index (%d)", opt.SeedLen, idx.k)
	}
	return &Kernels{
		idx: idx,
		opt: opt,
		pool: &sync.Pool{New: func() interface{} {
			return &scratch{
				alg:    align.NewAligner(&align.AlignOptions{Band: -1}),
				query:  make([]byte, 0, 256),
				target: make([]byte, 0, 1024),
			}
		}},
	}, nil
}

// Index returns the index.
func (k *Kernels) Index() *Index { return k.idx }

// scratch is the reusable memory of one kernel item.
type scratch struct {
	alg    *align.Aligner
	wfa    *wfa.Aligner // created on first use
	query  []byte
	target []byte
}

func (k *Kernels) getScratch() *scratch {
	return k.pool.Get().(*scratch)
}

func (k *Kernels) putScratch(s *scratch) {
	k.pool.Put(s)
}

// revcom writes the reverse complement of s into buf.
func revcom(buf, s []byte) []byte {
	buf = append(buf[:0], s...)
	rs, err := seq.NewSeq(seq.DNAredundant, buf)
	if err != nil { // unknown letters, complement what we can
		RC(buf)
		return buf
	}
	rs.RevComInplace()
	return rs.Seq
}

// strand returns the read sequence on a strand. The reverse complement
// is written into the query buffer.
func (sc *scratch) strand(s []byte, rc bool) []byte {
	if !rc {
		return s
	}
	sc.query = revcom(sc.query, s)
	return sc.query
}

// window extracts the genome bases of [start, end), padding the parts out
// of the genome with N, which matches no read base.
func (k *Kernels) window(buf []byte, start, end int64) []byte {
	buf = buf[:0]
	g := k.idx.genome
	n := int64(g.Len())
	for i := start; i < end; i++ {
		if i < 0 || i >= n {
			buf = append(buf, 'N')
			continue
		}
		buf = append(buf, g.Base(int(i)))
	}
	return buf
}

// RC computes the reverse complement sequence in place.
func RC(s []byte) []byte {
	for i := range s {
		s[i] = rcTable[s[i]]
	}
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return s
}

var rcTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = byte(i)
	}
	for _, p := range [][2]byte{{'A', 'T'}, {'C', 'G'}, {'a', 't'}, {'c', 'g'}} {
		t[p[0]], t[p[1]] = p[1], p[0]
	}
	return t
}()

// pairScore is the score of a pair of records. A pair without a concordant
// opposite mate scores the anchor minus the worst acceptable edit distance.
func pairScore(anchor, opposite alignment.Alignment, maxDist uint32) int32 {
	if !anchor.IsAligned() {
		return alignment.WorstScore
	}
	if opposite.IsPaired() {
		return anchor.Score + opposite.Score
	}
	return anchor.Score - int32(maxDist) - 1
}

func sameSide(a, b alignment.Alignment, tol uint32) bool {
	if !a.IsAligned() && !b.IsAligned() {
		return a.Mate == b.Mate
	}
	return a.SameLocus(b, tol)
}

// samePair tells whether two pairs are the same, possibly found from
// different anchor mates.
func samePair(a1, o1, a2, o2 alignment.Alignment, tol uint32) bool {
	return (sameSide(a1, a2, tol) && sameSide(o1, o2, tol)) ||
		(sameSide(a1, o2, tol) && sameSide(o1, a2, tol))
}

var _ pipeline.Kernels = (*Kernels)(nil)
