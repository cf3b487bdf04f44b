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

package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/rdleal/intervalst/interval"
	"github.com/shenwei356/PairMap/pairmap/alignment"
	"github.com/shenwei356/PairMap/pairmap/pipeline"
	"github.com/shenwei356/PairMap/pairmap/reference"
	"github.com/shenwei356/PairMap/pairmap/reference/twobit"
)

var tsvHeader = []string{"read", "mate", "rank", "paired", "strand", "seqid", "pos",
	"score", "final_score", "ed", "cigar", "md"}

// tsvWriter writes finished alignments as tab-delimited lines, with
// positions converted to 1-based coordinates of the reference sequences.
type tsvWriter struct {
	w      *bufio.Writer
	genome *twobit.Genome

	// sequence junctions of the concatenated reference
	junctions *interval.SearchTree[int, int]

	Records  uint64
	Spanning uint64 // alignments across two reference sequences, skipped
	Aligned  uint64 // reads with a best anchor

	err error
}

func newTSVWriter(w *bufio.Writer, genome *twobit.Genome) (*tsvWriter, error) {
	cmpFn := func(x, y int) int { return x - y }
	tree := interval.NewSearchTree[int, int](cmpFn)

	var start int
	for i := 0; i < genome.NumSeqs(); i++ {
		if i > 0 {
			if err := tree.Insert(start, start, i); err != nil {
				return nil, err
			}
		}
		start += genome.SeqLen(i)
	}

	return &tsvWriter{w: w, genome: genome, junctions: tree}, nil
}

func (t *tsvWriter) WriteHeader() {
	t.w.WriteString(strings.Join(tsvHeader, "\t"))
	t.w.WriteByte('\n')
}

// spanning tells whether [pos, end) crosses a sequence junction.
func (t *tsvWriter) spanning(pos, end int) bool {
	if end-pos < 2 {
		return false
	}
	_, ok := t.junctions.AnyIntersection(pos+1, end-1)
	return ok
}

func rankName(r alignment.Rank) string {
	if r == alignment.BestScore {
		return "best"
	}
	return "second"
}

// Process writes one traceback round.
func (t *tsvWriter) Process(b *pipeline.OutputBatch, mate alignment.Mate, rank alignment.Rank) {
	if t.err != nil {
		return
	}
	if mate == alignment.Mate1 && rank == alignment.BestScore {
		t.Aligned += uint64(len(b.Entries))
	}

	var idx, offset int
	var strand, paired byte
	for _, e := range b.Entries {
		pos := int(e.Pos)
		if t.spanning(pos, pos+reference.RefLen(e.Cigar)) {
			t.Spanning++
			continue
		}
		idx, offset = t.genome.Locate(pos)

		strand = '+'
		if e.Alignment.RC {
			strand = '-'
		}
		paired = 'N'
		if e.Alignment.IsPaired() {
			paired = 'Y'
		}

		reads := b.Reads1
		if e.Alignment.Mate == alignment.Mate2 {
			reads = b.Reads2
		}

		_, t.err = fmt.Fprintf(t.w, "%s\t%d\t%s\t%c\t%c\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			reads.IDs[e.Read], e.Alignment.Mate+1, rankName(rank), paired, strand,
			t.genome.Name(idx), offset+1,
			e.Alignment.Score, e.Score, e.Ed, e.Cigar, e.MD)
		if t.err != nil {
			return
		}
		t.Records++
	}
}

// Err returns the first write error.
func (t *tsvWriter) Err() error { return t.err }
