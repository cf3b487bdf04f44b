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
)

// Params contains the options of the best-approximate paired pipeline.
type Params struct {
	// seeding & extension
	MaxDist   uint32 // maximum edit distance, derives the DP band width
	MaxReseed uint32 // maximum number of re-seeding passes
	MaxExt    uint32 // maximum number of extensions per read
	MaxTrys   uint32 // maximum number of consecutive failed extensions per read
	TopSeed   bool   // only select hits of the top seed

	// paired-end
	MinInsert uint32 // minimum fragment length of a concordant pair
	MaxInsert uint32 // maximum fragment length of a concordant pair

	// BatchSize is the capacity of the candidate-hit arrays,
	// i.e., the number of DP extensions of one round.
	BatchSize uint32

	KeepStats bool // collect seed-hit statistics

	// checkpoint trigger, a negative PersistBatch disables it
	PersistBatch     int
	PersistSeeding   int
	PersistExtension int
	PersistFile      string
}

// DefaultBatchSize is the default capacity of the candidate-hit arrays.
const DefaultBatchSize = 1 << 16

// DefaultParams contains the default options.
var DefaultParams = Params{
	MaxDist:   15,
	MaxReseed: 2,
	MaxExt:    400,
	MaxTrys:   15,
	TopSeed:   false,

	MinInsert: 0,
	MaxInsert: 500,

	BatchSize: DefaultBatchSize,

	PersistBatch:     -1,
	PersistSeeding:   -1,
	PersistExtension: -1,
}

// CheckParams checks the options.
func CheckParams(p *Params) error {
	if p.BatchSize < 2 {
		return fmt.Errorf("invalid batch size: %d, should be >= 2", p.BatchSize)
	}
	if p.MaxExt < 1 {
		return fmt.Errorf("invalid maximum extensions: %d, should be >= 1", p.MaxExt)
	}
	if p.MaxTrys < 1 {
		return fmt.Errorf("invalid maximum trys: %d, should be >= 1", p.MaxTrys)
	}
	if p.MaxDist > 255 {
		return fmt.Errorf("invalid maximum edit distance: %d, valid range: [0, 255]", p.MaxDist)
	}
	if p.MaxInsert < p.MinInsert {
		return fmt.Errorf("maximum insert size (%d) should be >= minimum insert size (%d)", p.MaxInsert, p.MinInsert)
	}
	if p.PersistBatch >= 0 && p.PersistFile == "" {
		return fmt.Errorf("checkpoint file needed for persisting batch %d", p.PersistBatch)
	}
	return nil
}

// BandLength returns the width of the DP band for a maximum edit distance.
func BandLength(maxDist uint32) uint32 {
	return maxDist*2 + 1
}
