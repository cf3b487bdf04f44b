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

// Package twobit holds reference sequences in memory, 2bit-packed
// and concatenated, for fast extraction of subsequences.
package twobit

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrEmptySeq means the sequence is empty
var ErrEmptySeq = errors.New("2bit genome: empty seq")

// ErrInvalidTwoBitData means the length of two bit seq slice does not match the number of bases
var ErrInvalidTwoBitData = errors.New("2bit genome: invalid two-bit data")

// ErrTooLong means the genome exceeds the 32-bit coordinate space.
var ErrTooLong = errors.New("2bit genome: more than 4G bases")

// Genome is a list of 2bit-packed sequences concatenated into one coordinate
// space. Bases other than ACGT are stored as A.
type Genome struct {
	data  []byte // 4 bases per byte, the first base in the highest bits
	bases int

	names  []string
	starts []int // start of each sequence in the concatenation
}

// NewGenome returns an empty Genome.
func NewGenome() *Genome {
	return &Genome{data: make([]byte, 0, 1<<10)}
}

// Add appends a sequence.
func (g *Genome) Add(name string, s []byte) error {
	if len(s) == 0 {
		return ErrEmptySeq
	}
	if uint64(g.bases)+uint64(len(s)) > 1<<32-1 {
		return ErrTooLong
	}

	g.names = append(g.names, name)
	g.starts = append(g.starts, g.bases)

	// the concatenation is byte-aligned, pack the whole sequence at once
	if g.bases&3 == 0 {
		b2 := Seq2TwoBit(s)
		g.data = append(g.data, *b2...)
		RecycleTwoBit(b2)
		g.bases += len(s)
		return nil
	}

	var j uint
	for _, b := range s {
		if g.bases&3 == 0 {
			g.data = append(g.data, 0)
		}
		j = uint(3-g.bases&3) << 1
		g.data[g.bases>>2] |= base2bit[b] << j
		g.bases++
	}
	return nil
}

// Len returns the total number of bases.
func (g *Genome) Len() int { return g.bases }

// NumSeqs returns the number of sequences.
func (g *Genome) NumSeqs() int { return len(g.names) }

// Name returns the name of a sequence.
func (g *Genome) Name(idx int) string { return g.names[idx] }

// SeqLen returns the length of a sequence.
func (g *Genome) SeqLen(idx int) int {
	if idx == len(g.starts)-1 {
		return g.bases - g.starts[idx]
	}
	return g.starts[idx+1] - g.starts[idx]
}

// Locate converts a position in the concatenation into the index of the
// sequence and the offset in it.
func (g *Genome) Locate(pos int) (int, int) {
	i := sort.Search(len(g.starts), func(i int) bool { return g.starts[i] > pos }) - 1
	if i < 0 {
		return 0, pos
	}
	return i, pos - g.starts[i]
}

// SeqBounds returns the range [start, end) of the sequence covering pos.
func (g *Genome) SeqBounds(pos int) (int, int) {
	i, _ := g.Locate(pos)
	return g.starts[i], g.starts[i] + g.SeqLen(i)
}

// Code returns the 2bit code of the base at pos.
func (g *Genome) Code(pos int) uint8 {
	return g.data[pos>>2] >> (uint(3-pos&3) << 1) & 3
}

// Base returns the base at pos.
func (g *Genome) Base(pos int) byte {
	return bit2base[g.Code(pos)]
}

// SubSeq appends the bases of [start, end) to buf and returns it.
// The range is clipped to the genome.
func (g *Genome) SubSeq(buf []byte, start, end int) []byte {
	if start < 0 {
		start = 0
	}
	if end > g.bases {
		end = g.bases
	}
	for i := start; i < end; i++ {
		buf = append(buf, bit2base[g.Code(i)])
	}
	return buf
}

func (g *Genome) String() string {
	return fmt.Sprintf("2bit genome: %d seqs, %d bases", len(g.names), g.bases)
}

// ------------------------------------------------------------------

var base2bit = [256]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 1, 1, 0, 0, 0, 2, 0, 0, 0, 2, 0, 0, 0, 0,
	0, 0, 0, 1, 3, 3, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0,
	0, 0, 1, 1, 0, 0, 0, 2, 0, 0, 0, 2, 0, 0, 0, 0,
	0, 0, 0, 1, 3, 3, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

var bit2base = [4]byte{'A', 'C', 'G', 'T'}

// RecycleTwoBit recycles the packed sequence returned by Seq2TwoBit.
func RecycleTwoBit(b2 *[]byte) {
	poolTwoBit.Put(b2)
}

var poolTwoBit = &sync.Pool{New: func() interface{} {
	tmp := make([]byte, 0, 1<<20)
	return &tmp
}}

// Seq2TwoBit converts a DNA sequence to 2bit-packed sequence.
func Seq2TwoBit(s []byte) *[]byte {
	if s == nil {
		return nil
	}
	if len(s) == 0 {
		return &[]byte{}
	}

	n := len(s) >> 2
	m := len(s) & 3

	codes := poolTwoBit.Get().(*[]byte)
	*codes = (*codes)[:0]

	var j int
	for i := 0; i < n; i++ {
		j = i << 2
		*codes = append(*codes, base2bit[s[j]]<<6+base2bit[s[j+1]]<<4+base2bit[s[j+2]]<<2+base2bit[s[j+3]])
	}

	j = n << 2
	switch m {
	case 3:
		*codes = append(*codes, base2bit[s[j]]<<6+base2bit[s[j+1]]<<4+base2bit[s[j+2]]<<2)
	case 2:
		*codes = append(*codes, base2bit[s[j]]<<6+base2bit[s[j+1]]<<4)
	case 1:
		*codes = append(*codes, base2bit[s[j]]<<6)
	}
	return codes
}

// TwoBit2Seq converts a 2bit-packed sequence to DNA.
func TwoBit2Seq(b2 []byte, bases int) ([]byte, error) {
	// possible bases for b2 of n bytes: [n*4-3, n*4]
	if bases < (len(b2)<<2)-3 || bases > len(b2)<<2 {
		return nil, ErrInvalidTwoBitData
	}

	s := make([]byte, bases)
	for i := range s {
		s[i] = bit2base[b2[i>>2]>>(uint(3-i&3)<<1)&3]
	}
	return s, nil
}
