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

// Package alignment defines the per-read alignment records carried across
// the scoring passes, and the predicates used to route them at traceback.
package alignment

import (
	"fmt"
	"math"
)

// Mate identifies one read of a pair.
type Mate uint8

const (
	Mate1 Mate = iota
	Mate2
)

// Opposite returns the other mate.
func (m Mate) Opposite() Mate { return m ^ 1 }

func (m Mate) String() string {
	if m == Mate1 {
		return "1"
	}
	return "2"
}

// Rank tells whether a record is the best or the second-best one.
type Rank uint8

const (
	BestScore Rank = iota
	SecondBestScore
)

func (r Rank) String() string {
	if r == BestScore {
		return "best"
	}
	return "second"
}

// WorstScore marks an invalid or unscored alignment.
const WorstScore int32 = math.MinInt32

// Alignment is a rough alignment found during scoring:
// a position, a strand and a score, without CIGAR.
type Alignment struct {
	Pos    uint32 // 0-based start on the genome
	Score  int32  // WorstScore if not aligned
	Ed     uint16 // edit distance
	Mate   Mate
	RC     bool
	Paired bool
}

// Unaligned returns an empty record for a mate.
func Unaligned(mate Mate) Alignment {
	return Alignment{Score: WorstScore, Mate: mate}
}

// IsAligned tells whether the record holds an alignment.
func (a Alignment) IsAligned() bool { return a.Score != WorstScore }

// IsPaired tells whether the record is aligned as part of a concordant pair.
func (a Alignment) IsPaired() bool { return a.IsAligned() && a.Paired }

// IsUnpaired tells whether the record is aligned on its own.
func (a Alignment) IsUnpaired() bool { return a.IsAligned() && !a.Paired }

// SameLocus tells whether two alignments of the same mate are closer than
// tolerance on the same strand.
func (a Alignment) SameLocus(b Alignment, tolerance uint32) bool {
	if a.Mate != b.Mate || a.RC != b.RC || !a.IsAligned() || !b.IsAligned() {
		return false
	}
	if a.Pos > b.Pos {
		return a.Pos-b.Pos <= tolerance
	}
	return b.Pos-a.Pos <= tolerance
}

func (a Alignment) String() string {
	if !a.IsAligned() {
		return fmt.Sprintf("mate%s: unaligned", a.Mate)
	}
	strand := '+'
	if a.RC {
		strand = '-'
	}
	return fmt.Sprintf("mate%s: %d%c score:%d ed:%d paired:%v",
		a.Mate, a.Pos+1, strand, a.Score, a.Ed, a.Paired)
}

// BestAlignments holds the best and second-best records of one read
// for one side (anchor or opposite) of the pair.
type BestAlignments struct {
	Best   Alignment
	Second Alignment
}

// Reset clears both slots.
func (b *BestAlignments) Reset(mate Mate) {
	b.Best = Unaligned(mate)
	b.Second = Unaligned(mate)
}

// Get returns the record of a rank.
func (b *BestAlignments) Get(rank Rank) Alignment {
	if rank == BestScore {
		return b.Best
	}
	return b.Second
}

// Predicate is evaluated on a BestAlignments record.
type Predicate func(b *BestAlignments) bool

// IsAligned: the best record is aligned.
func IsAligned(b *BestAlignments) bool { return b.Best.IsAligned() }

// IsPaired: the best record is a paired alignment.
func IsPaired(b *BestAlignments) bool { return b.Best.IsPaired() }

// IsUnpaired: the best record is an unpaired alignment.
func IsUnpaired(b *BestAlignments) bool { return b.Best.IsUnpaired() }

// HasSecond: there is a second-best alignment.
func HasSecond(b *BestAlignments) bool { return b.Second.IsAligned() }

// HasSecondPaired: the second-best alignment is paired.
func HasSecondPaired(b *BestAlignments) bool { return b.Second.IsPaired() }

// HasSecondUnpaired: the second-best alignment is unpaired.
func HasSecondUnpaired(b *BestAlignments) bool { return b.Second.IsUnpaired() }

// RankAligned returns the "aligned" predicate of a rank.
func RankAligned(rank Rank) Predicate {
	if rank == BestScore {
		return IsAligned
	}
	return HasSecond
}

// RankPaired returns the "paired" predicate of a rank.
func RankPaired(rank Rank) Predicate {
	if rank == BestScore {
		return IsPaired
	}
	return HasSecondPaired
}

// RankUnpaired returns the "unpaired" predicate of a rank.
func RankUnpaired(rank Rank) Predicate {
	if rank == BestScore {
		return IsUnpaired
	}
	return HasSecondUnpaired
}

// ReadTopSeedFlag is the bit of a packed read marking top-seed-only selection.
const ReadTopSeedFlag uint32 = 1 << 31

// PackRead packs a read id and the top-seed flag into an active-queue entry.
func PackRead(id uint32, topSeed bool) uint32 {
	if topSeed {
		return id | ReadTopSeedFlag
	}
	return id
}

// UnpackRead returns the read id and the top-seed flag of a queue entry.
func UnpackRead(v uint32) (uint32, bool) {
	return v &^ ReadTopSeedFlag, v&ReadTopSeedFlag != 0
}
