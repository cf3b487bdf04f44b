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

package align

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"
)

// Pointer is for saving where the minimum distance of current position comes from.
type Pointer uint8

const (
	None Pointer = iota // No data, the first row.
	Top                 // insertion in the query
	Left                // deletion from the query
	Mismatch
	Match
)

func (p Pointer) String() string {
	switch p {
	case Match:
		return "↘︎"
	case Mismatch:
		return "⇘"
	case Top:
		return "↓"
	case Left:
		return "→"
	case None:
		return "×"
	}
	return "■"
}

// inf marks cells outside of the band.
const inf = 1 << 30

// Aligner computes semi-global edit-distance alignments: the query is
// aligned end to end, the ends of the target are free.
type Aligner struct {
	Options *AlignOptions

	// reusable variables
	scores   []int32   // score matrix
	pointers []Pointer // pointer matrix
	row0     []int32
	row1     []int32
	buf      bytes.Buffer // only for print the matrix
}

// AlignOptions contains all alignment options.
type AlignOptions struct {
	// Band limits the DP to cells whose diagonal is within [0, 2*Band]
	// of the target window, i.e., the window is expected to start Band
	// bases before the query. A negative Band means the full matrix.
	Band int

	// save matrix in the bytes buffer
	SaveMatrix bool
}

// DefaultAlignOptions is the default AlignOptions.
var DefaultAlignOptions = AlignOptions{
	Band:       -1,
	SaveMatrix: false,
}

// AlignResult holds the details of the alignment.
type AlignResult struct {
	Ed         int // edit distance, -1 if no alignment fits the band
	TBegin     int // 0-based start on the target
	TEnd       int // 0-based end (exclusive) on the target
	Matches    int
	Mismatches int
	Gaps       int

	Cigar []byte // M/I/D operations
	MD    []byte // SAM MD string

	ops []Pointer

	Matrix []byte // Matrix text, note that it's not thread-safe, only for debugging.
}

// Reset resets all the values.
func (r *AlignResult) Reset() {
	r.Ed = -1
	r.TBegin, r.TEnd = 0, 0
	r.Matches, r.Mismatches, r.Gaps = 0, 0, 0
	r.Cigar = r.Cigar[:0]
	r.MD = r.MD[:0]
	r.ops = r.ops[:0]
	r.Matrix = nil
}

var poolAlignResult = &sync.Pool{New: func() interface{} {
	r := &AlignResult{}
	r.Cigar = make([]byte, 0, 64)
	r.MD = make([]byte, 0, 64)
	r.ops = make([]Pointer, 0, 256)
	return r
}}

// RecycleAlignResult recycles an alignment result.
func RecycleAlignResult(r *AlignResult) {
	poolAlignResult.Put(r)
}

// NewAligner returns an aligner.
func NewAligner(options *AlignOptions) *Aligner {
	return &Aligner{
		Options: options,
	}
}

// inBand tells whether cell (i, j) is computed.
func (alg *Aligner) inBand(i, j int) bool {
	band := alg.Options.Band
	if band < 0 {
		return true
	}
	return j >= i && j <= i+band<<1
}

// Distance returns the minimum edit distance of the query q against the
// target t and the end (exclusive) of the leftmost best alignment on t.
// It keeps two rows only. ed is -1 if no alignment fits the band.
func (alg *Aligner) Distance(q, t []byte) (ed int, end int) {
	w := len(t) + 1
	if cap(alg.row0) < w {
		alg.row0 = make([]int32, w)
		alg.row1 = make([]int32, w)
	}
	prev, cur := alg.row0[:w], alg.row1[:w]

	var j int
	for j = 0; j < w; j++ {
		if alg.inBand(0, j) {
			prev[j] = 0
		} else {
			prev[j] = inf
		}
	}

	var best, s int32
	for i := 1; i <= len(q); i++ {
		cur[0] = inf
		if alg.inBand(i, 0) {
			cur[0] = int32(i)
		}
		for j = 1; j < w; j++ {
			if !alg.inBand(i, j) {
				cur[j] = inf
				continue
			}
			best = prev[j-1]
			if q[i-1] != t[j-1] {
				best++
			}
			if s = prev[j] + 1; s < best {
				best = s
			}
			if s = cur[j-1] + 1; s < best {
				best = s
			}
			cur[j] = best
		}
		prev, cur = cur, prev
	}

	ed, end = -1, 0
	for j = 0; j < w; j++ {
		if prev[j] >= inf {
			continue
		}
		if ed < 0 || int(prev[j]) < ed {
			ed, end = int(prev[j]), j
		}
	}
	return ed, end
}

// Align aligns the query q against the target t with traceback.
// Please remember to recycle the result after using
// by calling RecycleAlignResult.
func (alg *Aligner) Align(q, t []byte) *AlignResult {
	h := len(q) + 1 // height of the matrix
	w := len(t) + 1 // width of the matrix

	// ---------------------------------------------------
	// initialize

	var i, j, k int

	n := h * w
	if n > len(alg.scores) {
		alg.scores = make([]int32, n)
		alg.pointers = make([]Pointer, n)
	}
	scores := alg.scores[:n]
	pointers := alg.pointers[:n]

	// the first row: free start on the target
	for j = 0; j < w; j++ {
		pointers[j] = None
		scores[j] = 0
		if !alg.inBand(0, j) {
			scores[j] = inf
		}
	}
	// the first column
	for i = 1; i < h; i++ {
		k = idx(i, 0, w)
		scores[k] = int32(i)
		pointers[k] = Top
		if !alg.inBand(i, 0) {
			scores[k] = inf
		}
	}

	// ---------------------------------------------------
	// compute

	var min, sTop, sLeft int32
	var p Pointer
	for i = 1; i < h; i++ {
		for j = 1; j < w; j++ {
			k = idx(i, j, w)
			if !alg.inBand(i, j) {
				scores[k] = inf
				pointers[k] = None
				continue
			}

			min = scores[idx(i-1, j-1, w)]
			p = Match
			if q[i-1] != t[j-1] {
				min++
				p = Mismatch
			}
			sTop = scores[idx(i-1, j, w)] + 1
			sLeft = scores[idx(i, j-1, w)] + 1

			if sTop < min {
				min = sTop
				p = Top
			}
			if sLeft < min {
				min = sLeft
				p = Left
			}

			pointers[k] = p
			scores[k] = min
		}
	}

	// ---------------------------------------------------
	// traceback

	r := poolAlignResult.Get().(*AlignResult)
	r.Reset()

	if alg.Options.SaveMatrix {
		r.Matrix = alg.printMatrix(q, t, scores, pointers)
	}

	i = h - 1
	end := -1
	for j = 0; j < w; j++ {
		if scores[idx(i, j, w)] >= inf {
			continue
		}
		if end < 0 || scores[idx(i, j, w)] < scores[idx(i, end, w)] {
			end = j
		}
	}
	if end < 0 {
		return r
	}
	j = end
	r.Ed = int(scores[idx(i, j, w)])
	r.TEnd = end

	for i > 0 {
		p = pointers[idx(i, j, w)]
		r.ops = append(r.ops, p)

		switch p {
		case Mismatch:
			r.Mismatches++
			i--
			j--
		case Match:
			r.Matches++
			i--
			j--
		case Top:
			r.Gaps++
			i--
		case Left:
			r.Gaps++
			j--
		}
	}
	r.TBegin = j

	reverse(r.ops)
	r.Cigar = appendCigar(r.Cigar, r.ops)
	r.MD = appendMD(r.MD, r.ops, t[r.TBegin:r.TEnd])
	return r
}

// appendCigar run-length encodes the operations.
func appendCigar(cigar []byte, ops []Pointer) []byte {
	var last byte
	var n int
	var op byte
	for _, p := range ops {
		switch p {
		case Match, Mismatch:
			op = 'M'
		case Top:
			op = 'I'
		case Left:
			op = 'D'
		}
		if op != last && n > 0 {
			cigar = strconv.AppendInt(cigar, int64(n), 10)
			cigar = append(cigar, last)
			n = 0
		}
		last = op
		n++
	}
	if n > 0 {
		cigar = strconv.AppendInt(cigar, int64(n), 10)
		cigar = append(cigar, last)
	}
	return cigar
}

// appendMD builds the SAM MD string from the operations and the aligned
// part of the target.
func appendMD(md []byte, ops []Pointer, t []byte) []byte {
	var matches, j int
	var deleting bool
	for _, p := range ops {
		switch p {
		case Match:
			matches++
			j++
			deleting = false
		case Mismatch:
			md = strconv.AppendInt(md, int64(matches), 10)
			md = append(md, t[j])
			matches = 0
			j++
			deleting = false
		case Left:
			if !deleting {
				md = strconv.AppendInt(md, int64(matches), 10)
				md = append(md, '^')
				matches = 0
				deleting = true
			}
			md = append(md, t[j])
			j++
		case Top:
			// insertions are not part of MD
		}
	}
	return strconv.AppendInt(md, int64(matches), 10)
}

func (alg *Aligner) printMatrix(a, b []byte, scores []int32, pointers []Pointer) []byte {
	h := len(a) + 1
	w := len(b) + 1
	var i, j, k int
	buf := &alg.buf

	buf.Reset()

	// b
	buf.WriteString(fmt.Sprintf("%c  %s%-3s", ' ', " ", " "))
	for j = 0; j < len(b); j++ {
		buf.WriteString(fmt.Sprintf("  %s%3c", " ", b[j]))
	}
	buf.WriteByte('\n')

	for i = 0; i < h; i++ {
		if i == 0 {
			buf.WriteString(fmt.Sprintf("%c", ' '))
		} else {
			buf.WriteString(fmt.Sprintf("%c", a[i-1]))
		}

		for j = 0; j < w; j++ {
			k = idx(i, j, w)
			if scores[k] >= inf {
				buf.WriteString(fmt.Sprintf("  %s%3s", pointers[k], "-"))
				continue
			}
			buf.WriteString(fmt.Sprintf("  %s%3d", pointers[k], scores[k]))
		}
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}

func idx(i, j, w int) int {
	return (i * w) + j
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
