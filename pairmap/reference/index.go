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
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/shenwei356/PairMap/pairmap/reference/twobit"
	"github.com/shenwei356/kmers"
	"github.com/shenwei356/lexichash/iterator"
	"github.com/twotwotwo/sorts/sortutil"
)

// MaxSeedLen is the maximum seed length: a k-mer code and a genome
// position are packed into one uint64.
const MaxSeedLen = 16

// ErrKOverflow means K < 1 or K > MaxSeedLen.
var ErrKOverflow = errors.New("reference: k-mer size out of range")

// ErrNotBuilt means the index is searched before Build.
var ErrNotBuilt = errors.New("reference: index not built")

// Index is a sorted table of all k-mers of the genome, the rows of a k-mer
// form a contiguous range, like the suffix-array interval of a seed.
type Index struct {
	k      int
	shift  uint
	genome *twobit.Genome

	rows  []uint64 // code<<32 | position
	built bool
}

// NewIndex returns an empty Index of k-mer size k.
func NewIndex(k int) (*Index, error) {
	if k < 1 || k > MaxSeedLen {
		return nil, errors.Wrapf(ErrKOverflow, "k: %d", k)
	}
	return &Index{
		k:      k,
		genome: twobit.NewGenome(),
		rows:   make([]uint64, 0, 1<<10),
	}, nil
}

// K returns the k-mer size.
func (idx *Index) K() int { return idx.k }

// Genome returns the indexed genome.
func (idx *Index) Genome() *twobit.Genome { return idx.genome }

// Rows returns the number of k-mers indexed.
func (idx *Index) Rows() int { return len(idx.rows) }

// AddSeq appends a sequence to the genome and collects its k-mers.
// K-mers of all A's or N's are skipped.
func (idx *Index) AddSeq(name string, s []byte) error {
	offset := uint64(idx.genome.Len())
	if err := idx.genome.Add(name, s); err != nil {
		return errors.Wrapf(err, "add seq %s", name)
	}
	if len(s) < idx.k {
		return nil
	}

	iter, err := iterator.NewKmerIterator(s, idx.k)
	if err != nil {
		return errors.Wrapf(err, "count kmer for %s", name)
	}
	var kmer uint64
	var ok bool
	for {
		kmer, _, ok, _ = iter.NextKmer()
		if !ok {
			break
		}
		if kmer == 0 {
			continue
		}
		idx.rows = append(idx.rows, kmer<<32|(offset+uint64(iter.Index())))
	}
	idx.built = false
	return nil
}

// Build sorts the k-mer table.
func (idx *Index) Build() {
	sortutil.Uint64s(idx.rows)
	idx.built = true
}

// Lookup returns the range of rows [lo, hi) of a k-mer.
func (idx *Index) Lookup(code uint64) (uint32, uint32) {
	if !idx.built {
		panic(ErrNotBuilt)
	}
	lo := sort.Search(len(idx.rows), func(i int) bool { return idx.rows[i]>>32 >= code })
	hi := lo + sort.Search(len(idx.rows)-lo, func(i int) bool { return idx.rows[lo+i]>>32 > code })
	return uint32(lo), uint32(hi)
}

// LookupSeq encodes a k-mer and returns its range of rows.
// ok is false for k-mers with bases other than ACGT.
func (idx *Index) LookupSeq(kmer []byte) (lo, hi uint32, ok bool) {
	code, err := kmers.Encode(kmer)
	if err != nil {
		return 0, 0, false
	}
	lo, hi = idx.Lookup(code)
	return lo, hi, true
}

// Pos returns the genome position of a row.
func (idx *Index) Pos(row uint32) uint32 {
	return uint32(idx.rows[row])
}

func (idx *Index) String() string {
	return fmt.Sprintf("k-mer index: k=%d, %d rows, %s", idx.k, len(idx.rows), idx.genome)
}
