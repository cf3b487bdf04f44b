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

package pipeline_test

import (
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shenwei356/PairMap/pairmap/alignment"
	"github.com/shenwei356/PairMap/pairmap/device"
	"github.com/shenwei356/PairMap/pairmap/persist"
	"github.com/shenwei356/PairMap/pairmap/pipeline"
	"github.com/shenwei356/PairMap/pairmap/reference"
	"github.com/shenwei356/PairMap/pairmap/stats"
)

const readLen = 30
const insert = 230

var positions = []int{1000, 3000, 5000, 7000}

type round struct {
	mate    alignment.Mate
	rank    alignment.Rank
	entries []pipeline.OutputEntry
}

type collector struct {
	rounds []round
}

func (c *collector) Process(b *pipeline.OutputBatch, mate alignment.Mate, rank alignment.Rank) {
	c.rounds = append(c.rounds, round{
		mate:    mate,
		rank:    rank,
		entries: append([]pipeline.OutputEntry(nil), b.Entries...),
	})
}

// randomGenome returns the genome the read pairs are sampled from.
func randomGenome() []byte {
	r := rand.New(rand.NewSource(11))
	genome := make([]byte, 10000)
	for i := range genome {
		genome[i] = "ACGT"[r.Intn(4)]
	}
	return genome
}

func newKernels(t *testing.T, genome []byte) *reference.Kernels {
	idx, err := reference.NewIndex(16)
	if err != nil {
		t.Fatal(err)
	}
	if err = idx.AddSeq("chr", genome); err != nil {
		t.Fatal(err)
	}
	idx.Build()

	k, err := reference.NewKernels(idx, &reference.Options{SeedLen: 16, SeedInterval: 20})
	if err != nil {
		t.Fatal(err)
	}
	return k
}

// samplePairs samples a pair at each position: mate 1 forward at the
// position, mate 2 reverse at position+200.
func samplePairs(genome []byte) (*pipeline.ReadBatch, *pipeline.ReadBatch) {
	reads1, reads2 := &pipeline.ReadBatch{}, &pipeline.ReadBatch{}
	for i, p := range positions {
		id := string(rune('a' + i))
		m1 := append([]byte(nil), genome[p:p+readLen]...)
		m2 := reference.RC(append([]byte(nil), genome[p+insert-readLen:p+insert]...))
		reads1.Append(id, m1, nil)
		reads2.Append(id, m2, nil)
	}
	return reads1, reads2
}

func testData(t *testing.T) (*reference.Kernels, *pipeline.ReadBatch, *pipeline.ReadBatch) {
	genome := randomGenome()
	reads1, reads2 := samplePairs(genome)
	return newKernels(t, genome), reads1, reads2
}

func testParams() *pipeline.Params {
	p := pipeline.DefaultParams
	p.MaxDist = 4
	p.MaxReseed = 1
	p.MaxExt = 4
	p.BatchSize = 8192
	return &p
}

func newAligner(t *testing.T, params *pipeline.Params, k pipeline.Kernels) (*pipeline.Aligner, *collector) {
	c := &collector{}
	a, err := pipeline.NewAligner(params, device.New(4), k, c)
	if err != nil {
		t.Fatal(err)
	}
	return a, c
}

// checkCounts checks the order of the output batches and their sizes.
func checkCounts(t *testing.T, c *collector, sizes ...int) {
	expected := []struct {
		mate alignment.Mate
		rank alignment.Rank
	}{
		{alignment.Mate1, alignment.BestScore},
		{alignment.Mate2, alignment.BestScore},
		{alignment.Mate1, alignment.SecondBestScore},
		{alignment.Mate2, alignment.SecondBestScore},
	}
	if len(c.rounds) != len(expected) {
		t.Fatalf("expected %d output batches, returned %d", len(expected), len(c.rounds))
	}
	for i, e := range expected {
		r := c.rounds[i]
		if r.mate != e.mate || r.rank != e.rank || len(r.entries) != sizes[i] {
			t.Fatalf("[#%d] expected (%s, %s, %d), returned (%s, %s, %d)",
				i, e.mate, e.rank, sizes[i], r.mate, r.rank, len(r.entries))
		}
	}
}

func checkRounds(t *testing.T, c *collector) {
	n := len(positions)
	checkCounts(t, c, n, n, 0, 0)

	for j, e := range c.rounds[0].entries {
		p := positions[e.Read]
		if e.Read != uint32(j) {
			t.Errorf("[#%d] entries should be in read order: %d", j, e.Read)
		}
		if e.Alignment.Mate != alignment.Mate1 || e.Alignment.RC || !e.Alignment.Paired ||
			e.Alignment.Pos != uint32(p) || e.Alignment.Score != 0 {
			t.Errorf("[#%d] unexpected anchor: %s", j, e.Alignment)
		}
		if e.Pos != uint32(p) || e.Cigar != "30M" || e.MD != "30" || e.Score != 0 || e.Ed != 0 {
			t.Errorf("[#%d] unexpected final anchor: %d %s %s %d", j, e.Pos, e.Cigar, e.MD, e.Score)
		}
	}
	for j, e := range c.rounds[1].entries {
		p := positions[e.Read] + insert - readLen
		if e.Alignment.Mate != alignment.Mate2 || !e.Alignment.RC || !e.Alignment.Paired ||
			e.Alignment.Pos != uint32(p) {
			t.Errorf("[#%d] unexpected opposite: %s", j, e.Alignment)
		}
		if e.Pos != uint32(p) || e.Cigar != "30M" || e.MD != "30" {
			t.Errorf("[#%d] unexpected final opposite: %d %s %s", j, e.Pos, e.Cigar, e.MD)
		}
	}
}

func TestBestApprox(t *testing.T) {
	k, reads1, reads2 := testData(t)
	a, c := newAligner(t, testParams(), k)

	s, err := a.BestApprox(reads1, reads2)
	if err != nil {
		t.Fatal(err)
	}

	if s.PassesUsed != [2]uint32{1, 1} {
		t.Errorf("unexpected seeding passes: %v", s.PassesUsed)
	}
	for i, n := range s.Extensions {
		if n != 1 {
			t.Errorf("[read %d] unexpected extensions: %d", i, n)
		}
	}
	for i := range s.BestAnchor {
		if s.BestAnchor[i].Second.IsAligned() || s.BestOpposite[i].Second.IsAligned() {
			t.Errorf("[read %d] no second-best alignment expected", i)
		}
	}
	checkRounds(t, c)

	if m := s.Stats.Stage(stats.Map); m.Calls != 2 || m.Items != 2*uint64(len(positions)) {
		t.Errorf("unexpected map stats: %+v", m)
	}
	// anchor scoring and reduction make one record per round
	if st := s.Stats.Stage(stats.Score); st.Calls != 2 || st.Items != 2*uint64(len(positions)) {
		t.Errorf("unexpected score stats: %+v", st)
	}
	if st := s.Stats.Stage(stats.ScoringPipe); st.Calls != 2 {
		t.Errorf("unexpected scoring pipeline stats: %+v", st)
	}
	if st := s.Stats.Stage(stats.Select); st.Calls == 0 {
		t.Errorf("selection should be recorded")
	}
	if a.Batches() != 1 || s.Batch != 0 {
		t.Errorf("unexpected batch counter: %d", a.Batches())
	}
}

func TestIdempotent(t *testing.T) {
	k, reads1, reads2 := testData(t)
	a, c := newAligner(t, testParams(), k)

	if _, err := a.BestApprox(reads1, reads2); err != nil {
		t.Fatal(err)
	}
	first := c.rounds
	c.rounds = nil
	s, err := a.BestApprox(reads1, reads2)
	if err != nil {
		t.Fatal(err)
	}
	if s.Batch != 1 || a.Batches() != 2 {
		t.Errorf("unexpected batch number: %d", s.Batch)
	}

	for i := range first {
		if len(first[i].entries) != len(c.rounds[i].entries) {
			t.Errorf("[#%d] different number of entries", i)
			continue
		}
		for j, e := range first[i].entries {
			if e != c.rounds[i].entries[j] {
				t.Errorf("[#%d-%d] %+v != %+v", i, j, e, c.rounds[i].entries[j])
			}
		}
	}
}

func TestCarry(t *testing.T) {
	// the active set is larger than the batch
	k, reads1, reads2 := testData(t)
	params := testParams()
	params.BatchSize = 2
	a, c := newAligner(t, params, k)

	s, err := a.BestApprox(reads1, reads2)
	if err != nil {
		t.Fatal(err)
	}
	for i, n := range s.Extensions {
		if n != 1 {
			t.Errorf("[read %d] unexpected extensions: %d", i, n)
		}
	}
	checkRounds(t, c)
}

func TestEmptyBatch(t *testing.T) {
	k, _, _ := testData(t)
	a, c := newAligner(t, testParams(), k)

	s, err := a.BestApprox(&pipeline.ReadBatch{}, &pipeline.ReadBatch{})
	if err != nil {
		t.Fatal(err)
	}
	if s.PassesUsed != [2]uint32{0, 0} {
		t.Errorf("no seeding pass expected: %v", s.PassesUsed)
	}
	if s.Stats.Stage(stats.Map).Calls != 0 || s.Stats.Stage(stats.Select).Calls != 0 {
		t.Errorf("no map or select stats expected")
	}
	if len(c.rounds) != 4 {
		t.Fatalf("four output batches expected, returned %d", len(c.rounds))
	}
	for i, r := range c.rounds {
		if len(r.entries) != 0 {
			t.Errorf("[#%d] empty output expected", i)
		}
	}
}

func TestMateCount(t *testing.T) {
	k, reads1, _ := testData(t)
	a, _ := newAligner(t, testParams(), k)
	if _, err := a.BestApprox(reads1, &pipeline.ReadBatch{}); !errors.Is(err, pipeline.ErrMateCount) {
		t.Errorf("mate count error expected, returned %v", err)
	}
}

type failingLocator struct {
	*reference.Kernels
}

func (f failingLocator) Locate(p *pipeline.ScoringPipeline) {
	p.Device.Launch("locate", 1, func(int) error { return errors.New("out of memory") })
}

func TestKernelFailure(t *testing.T) {
	k, reads1, reads2 := testData(t)
	a, c := newAligner(t, testParams(), failingLocator{k})

	_, err := a.BestApprox(reads1, reads2)
	if err == nil {
		t.Fatal("kernel error expected")
	}
	if !strings.Contains(err.Error(), "locating kernel") || !strings.Contains(err.Error(), "out of memory") {
		t.Errorf("unexpected error: %s", err)
	}
	if len(c.rounds) != 0 {
		t.Errorf("an aborted batch should not produce output")
	}
	if a.Batches() != 0 {
		t.Errorf("an aborted batch should not be counted")
	}
}

func TestPersist(t *testing.T) {
	// dumps of the extension loop are taken at round 0 only,
	// as every read is aligned by its first hit
	for _, ext := range []int{0, persist.Any} {
		k, reads1, reads2 := testData(t)
		params := testParams()
		params.PersistBatch, params.PersistSeeding, params.PersistExtension = 0, 0, ext
		params.PersistFile = filepath.Join(t.TempDir(), "checkpoint.txt")
		a, _ := newAligner(t, params, k)

		w := persist.NewWriter(params.PersistFile, persist.Trigger{Batch: 0, Seeding: 0, Extension: ext})
		a.SetPersister(w)
		if _, err := a.BestApprox(reads1, reads2); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}

		dumps, err := persist.ReadDumps(params.PersistFile)
		if err != nil {
			t.Fatal(err)
		}
		var names []string
		for _, d := range dumps {
			names = append(names, d.Name)
		}
		expected := "reads hits selection opposite-score reads hits selection opposite-score"
		if strings.Join(names, " ") != expected {
			t.Fatalf("[extension %d] unexpected dumps: %s", ext, strings.Join(names, " "))
		}
		if dumps[0].Anchor != 0 || dumps[4].Anchor != 1 {
			t.Errorf("[extension %d] unexpected anchors", ext)
		}
		if dumps[2].At.Extension != 0 || dumps[3].At.Extension != 0 {
			t.Errorf("[extension %d] unexpected coordinates: %s", ext, dumps[3].At)
		}
		if len(dumps[3].Sections) != 1 || len(dumps[3].Sections[0].Values) != len(positions) {
			t.Errorf("[extension %d] unexpected opposite scores: %+v", ext, dumps[3].Sections)
		}
	}
}

func TestStatsSink(t *testing.T) {
	k, reads1, reads2 := testData(t)
	a, _ := newAligner(t, testParams(), k)
	sink := stats.New()
	a.SetStatsSink(sink)

	s, err := a.BestApprox(reads1, reads2)
	if err != nil {
		t.Fatal(err)
	}
	if sink.Stage(stats.Map) != s.Stats.Stage(stats.Map) {
		t.Errorf("the sink should receive every record")
	}
}

func TestSecondBest(t *testing.T) {
	genome := randomGenome()
	// the fragment of the first pair occurs twice
	dup := 9000
	p0 := positions[0]
	copy(genome[dup:dup+insert], genome[p0:p0+insert])
	reads1, reads2 := samplePairs(genome)
	a, c := newAligner(t, testParams(), newKernels(t, genome))

	s, err := a.BestApprox(reads1, reads2)
	if err != nil {
		t.Fatal(err)
	}
	checkCounts(t, c, 4, 4, 1, 1)

	// both loci of mate 2 are extended as anchors
	if s.Extensions[0] != 2 || s.Extensions[1] != 1 {
		t.Errorf("unexpected extensions: %v", s.Extensions)
	}

	// equal scores: the first locus found is the best one
	ba, bo := s.BestAnchor[0], s.BestOpposite[0]
	if !ba.Best.IsPaired() || !ba.Second.IsPaired() || ba.Best.Score != 0 || ba.Second.Score != 0 {
		t.Fatalf("two perfect pairs expected: %s, %s", ba.Best, ba.Second)
	}
	loci := map[uint32]bool{ba.Best.Pos: true, ba.Second.Pos: true}
	if !loci[uint32(p0)] || !loci[uint32(dup)] {
		t.Errorf("unexpected loci: %s, %s", ba.Best, ba.Second)
	}
	if bo.Second.Pos != ba.Second.Pos+insert-readLen || !bo.Second.RC || !bo.Second.IsPaired() {
		t.Errorf("unexpected second opposite: %s", bo.Second)
	}

	e := c.rounds[2].entries[0]
	if e.Read != 0 || e.Alignment != ba.Second || e.Pos != ba.Second.Pos || e.Cigar != "30M" || e.MD != "30" {
		t.Errorf("unexpected second-best anchor: %+v", e)
	}
	e = c.rounds[3].entries[0]
	if e.Read != 0 || e.Alignment != bo.Second || e.Pos != bo.Second.Pos || e.Cigar != "30M" || e.MD != "30" {
		t.Errorf("unexpected second-best opposite: %+v", e)
	}

	for i := 1; i < len(positions); i++ {
		if s.BestAnchor[i].Second.IsAligned() {
			t.Errorf("[read %d] no second-best alignment expected", i)
		}
	}
}

func TestUnpaired(t *testing.T) {
	// the mates are found, but the fragments are too short
	k, reads1, reads2 := testData(t)
	params := testParams()
	params.MinInsert = insert + 1
	a, c := newAligner(t, params, k)

	s, err := a.BestApprox(reads1, reads2)
	if err != nil {
		t.Fatal(err)
	}
	n := len(positions)
	checkCounts(t, c, n, n, 0, 0)

	for j, e := range c.rounds[0].entries {
		if e.Alignment.Paired || e.Alignment.Pos != uint32(positions[e.Read]) || e.Alignment.Score != 0 {
			t.Errorf("[#%d] unexpected anchor: %s", j, e.Alignment)
		}
	}
	// unpaired opposite mates are traced back within the band
	for j, e := range c.rounds[1].entries {
		p := uint32(positions[e.Read] + insert - readLen)
		if e.Alignment.Mate != alignment.Mate2 || !e.Alignment.IsUnpaired() || !e.Alignment.RC {
			t.Errorf("[#%d] unexpected opposite: %s", j, e.Alignment)
		}
		if e.Pos != p || e.Cigar != "30M" || e.MD != "30" || e.Ed != 0 {
			t.Errorf("[#%d] unexpected final opposite: %d %s %s", j, e.Pos, e.Cigar, e.MD)
		}
	}
	if st := s.Stats.Stage(stats.BacktrackOpposite); st.Items != uint64(n) {
		t.Errorf("unexpected opposite traceback stats: %+v", st)
	}
}

func TestMateOutOfRange(t *testing.T) {
	// the opposite mates lie out of the insert window
	k, reads1, reads2 := testData(t)
	params := testParams()
	params.MaxInsert = 100
	a, c := newAligner(t, params, k)

	s, err := a.BestApprox(reads1, reads2)
	if err != nil {
		t.Fatal(err)
	}
	n := len(positions)
	checkCounts(t, c, n, 0, n, 0)

	for j, e := range c.rounds[0].entries {
		if e.Alignment.Mate != alignment.Mate1 || e.Alignment.Paired || e.Alignment.Pos != uint32(positions[e.Read]) {
			t.Errorf("[#%d] unexpected anchor: %s", j, e.Alignment)
		}
		if s.BestOpposite[e.Read].Best.IsAligned() {
			t.Errorf("[#%d] the opposite mate should not be aligned", j)
		}
	}
	// mate 2 as the anchor makes another pair of the same score
	for j, e := range c.rounds[2].entries {
		p := uint32(positions[e.Read] + insert - readLen)
		if e.Alignment.Mate != alignment.Mate2 || e.Alignment.Paired || !e.Alignment.RC || e.Alignment.Pos != p {
			t.Errorf("[#%d] unexpected second-best anchor: %s", j, e.Alignment)
		}
		if e.Pos != p || e.Cigar != "30M" || e.MD != "30" {
			t.Errorf("[#%d] unexpected final second-best anchor: %d %s %s", j, e.Pos, e.Cigar, e.MD)
		}
	}
}

func TestReseed(t *testing.T) {
	k, reads1, reads2 := testData(t)
	// a mismatch in the only seed of the first pass
	m := reads1.Seqs[0]
	m[4] = "ACGT"[(strings.IndexByte("ACGT", m[4])+1)%4]
	a, c := newAligner(t, testParams(), k)

	s, err := a.BestApprox(reads1, reads2)
	if err != nil {
		t.Fatal(err)
	}
	if s.PassesUsed != [2]uint32{2, 1} {
		t.Errorf("unexpected seeding passes: %v", s.PassesUsed)
	}
	if st := s.Stats.Stage(stats.Map); st.Calls != 3 || st.Items != 2*uint64(len(positions))+1 {
		t.Errorf("unexpected map stats: %+v", st)
	}

	n := len(positions)
	checkCounts(t, c, n, n, 0, 0)
	e := c.rounds[0].entries[0]
	if e.Read != 0 || e.Alignment.Pos != uint32(positions[0]) || e.Alignment.Score != -1 || !e.Alignment.Paired {
		t.Errorf("unexpected re-seeded anchor: %s", e.Alignment)
	}
	if e.Ed != 1 || e.MD == "30" {
		t.Errorf("unexpected final re-seeded anchor: %d %s %s", e.Ed, e.Cigar, e.MD)
	}
}
