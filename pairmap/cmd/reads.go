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
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/shenwei356/PairMap/pairmap/pipeline"
	"github.com/shenwei356/bio/seqio/fastx"
)

// pairReader reads mates of read pairs from two files in lockstep.
type pairReader struct {
	file1, file2 string
	r1, r2       *fastx.Reader
	n            uint64
}

func newPairReader(file1, file2 string) (*pairReader, error) {
	r1, err := fastx.NewReader(nil, file1, "")
	if err != nil {
		return nil, errors.Wrap(err, file1)
	}
	r2, err := fastx.NewReader(nil, file2, "")
	if err != nil {
		r1.Close()
		return nil, errors.Wrap(err, file2)
	}
	return &pairReader{file1: file1, file2: file2, r1: r1, r2: r2}, nil
}

// mateName trims the mate suffix of a read ID.
func mateName(id []byte) []byte {
	n := len(id)
	if n > 2 && id[n-2] == '/' && (id[n-1] == '1' || id[n-1] == '2') {
		return id[:n-2]
	}
	return id
}

// Read fills the two batches with at most n pairs and returns the number
// of pairs. Zero means the end of both files.
func (p *pairReader) Read(reads1, reads2 *pipeline.ReadBatch, n int) (int, error) {
	reads1.Reset()
	reads2.Reset()

	var rec1, rec2 *fastx.Record
	var err1, err2 error
	for reads1.Len() < n {
		rec1, err1 = p.r1.Read()
		rec2, err2 = p.r2.Read()
		if err1 == io.EOF && err2 == io.EOF {
			break
		}
		if err1 == io.EOF || err2 == io.EOF {
			return 0, fmt.Errorf("unequal numbers of reads in %s and %s, %d pairs read", p.file1, p.file2, p.n)
		}
		if err1 != nil {
			return 0, errors.Wrap(err1, p.file1)
		}
		if err2 != nil {
			return 0, errors.Wrap(err2, p.file2)
		}

		id := mateName(rec1.ID)
		if !bytes.Equal(id, mateName(rec2.ID)) {
			return 0, fmt.Errorf("mate IDs do not match in pair %d: %s vs %s", p.n+1, rec1.ID, rec2.ID)
		}

		reads1.Append(string(id), bytes.ToUpper(rec1.Seq.Seq), qual(rec1))
		reads2.Append(string(id), bytes.ToUpper(rec2.Seq.Seq), qual(rec2))
		p.n++
	}
	return reads1.Len(), nil
}

func qual(r *fastx.Record) []byte {
	if len(r.Seq.Qual) == 0 {
		return nil
	}
	return append([]byte(nil), r.Seq.Qual...)
}

// Close closes both files.
func (p *pairReader) Close() error {
	p.r1.Close()
	p.r2.Close()
	return nil
}
