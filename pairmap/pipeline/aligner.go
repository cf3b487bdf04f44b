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

// Package pipeline schedules the best-approximate alignment of read pairs:
// re-seeding, the adaptive extension loop and the traceback rounds.
// The heavy lifting is done by collaborator kernels on a device.
package pipeline

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/PairMap/pairmap/alignment"
	"github.com/shenwei356/PairMap/pairmap/device"
	"github.com/shenwei356/PairMap/pairmap/persist"
	"github.com/shenwei356/PairMap/pairmap/stats"
)

// ErrMateCount means the two mates of a batch differ in size.
var ErrMateCount = errors.New("pipeline: unequal number of reads in the two mates")

// Aligner aligns batches of read pairs. It is not safe for concurrent use:
// buffers and the batch counter are shared by the batches.
type Aligner struct {
	params  *Params
	dev     *device.Device
	kernels Kernels
	out     OutputWriter

	persister Persister
	sink      stats.Sink
	logger    Logger

	buf         *Buffers
	batchNumber uint32
}

// NewAligner creates an Aligner.
func NewAligner(params *Params, dev *device.Device, kernels Kernels, out OutputWriter) (*Aligner, error) {
	if err := CheckParams(params); err != nil {
		return nil, err
	}
	if dev == nil || kernels == nil || out == nil {
		return nil, fmt.Errorf("pipeline: device, kernels and output writer are needed")
	}
	return &Aligner{
		params:  params,
		dev:     dev,
		kernels: kernels,
		out:     out,
		buf:     NewBuffers(params.BatchSize),
	}, nil
}

// SetPersister sets the checkpoint writer.
func (a *Aligner) SetPersister(p Persister) { a.persister = p }

// SetStatsSink sets an extra receiver of stage timings, e.g., metrics.
func (a *Aligner) SetStatsSink(s stats.Sink) { a.sink = s }

// SetLogger enables debug messages.
func (a *Aligner) SetLogger(l Logger) { a.logger = l }

// Params returns the options.
func (a *Aligner) Params() *Params { return a.params }

// Batches returns the number of batches aligned.
func (a *Aligner) Batches() uint32 { return a.batchNumber }

// Session is the state of one batch. The record slices are views into the
// buffers of the Aligner, valid until the next batch.
type Session struct {
	Batch  uint32
	Count  int
	Reads1 *ReadBatch
	Reads2 *ReadBatch

	Stats      *stats.Stats
	PassesUsed [2]uint32 // seeding passes run per anchor mate
	Rounds     [2]uint32 // extension rounds run per anchor mate

	BestAnchor   []alignment.BestAlignments
	BestOpposite []alignment.BestAlignments
	Extensions   []uint32 // per read, hits extended by the last scoring pipeline

	a *Aligner
}

func (s *Session) record(stage string, items uint64, host time.Duration, dev *device.Timer) {
	var devSeconds float64
	if dev != nil {
		devSeconds = dev.Seconds()
	}
	s.add(stage, items, host.Seconds(), devSeconds)
}

func (s *Session) add(stage string, items uint64, host, dev float64) {
	s.Stats.Add(stage, items, host, dev)
	if s.a.sink != nil {
		s.a.sink.Add(stage, items, host, dev)
	}
}

// persistAt tells whether a dump at a coordinate is configured.
func (s *Session) persistAt(pass uint32, ext int) (persist.Coordinate, bool) {
	p := s.a.params
	at := persist.Coordinate{Batch: int(s.Batch), Seeding: int(pass), Extension: ext}
	if s.a.persister == nil || p.PersistBatch < 0 {
		return at, false
	}
	t := persist.Trigger{Batch: p.PersistBatch, Seeding: p.PersistSeeding, Extension: p.PersistExtension}
	if p.PersistExtension < 0 {
		t.Extension = persist.Any
	}
	return at, t.Matches(at)
}

func (a *Aligner) debugf(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Debugf(format, args...)
	}
}

// BestApprox aligns a batch of read pairs: two anchor iterations of
// re-seeding and extension, then four traceback rounds.
// Results are sent to the output writer; the returned Session holds
// the records and the stage timings.
func (a *Aligner) BestApprox(reads1, reads2 *ReadBatch) (*Session, error) {
	count := reads1.Len()
	if reads2.Len() != count {
		return nil, errors.Wrapf(ErrMateCount, "%d vs %d", count, reads2.Len())
	}

	buf := a.buf
	buf.Reserve(count)

	s := &Session{
		Batch:  a.batchNumber,
		Count:  count,
		Reads1: reads1,
		Reads2: reads2,
		Stats:  stats.New(),
		a:      a,

		BestAnchor:   buf.BestAnchor[:count],
		BestOpposite: buf.BestOpposite[:count],
		Extensions:   buf.Extensions[:count],
	}

	// the first anchor is mate 1, so the records start as mate 1 / mate 2
	a.dev.Launch("init alignments", count, func(i int) error {
		buf.BestAnchor[i].Reset(alignment.Mate1)
		buf.BestOpposite[i].Reset(alignment.Mate2)
		buf.Extensions[i] = 0
		return nil
	})
	if err := a.dev.CheckError("initializing alignments"); err != nil {
		return nil, err
	}

	for anchor := alignment.Mate1; anchor <= alignment.Mate2; anchor++ {
		if err := a.seedAndExtend(s, anchor); err != nil {
			return nil, err
		}
	}

	if err := a.traceback(s); err != nil {
		return nil, err
	}

	a.batchNumber++
	return s, nil
}

// seedAndExtend runs the re-seeding loop of one anchor mate.
func (a *Aligner) seedAndExtend(s *Session, anchor alignment.Mate) error {
	buf := a.buf
	reads, oppReads := s.Reads1, s.Reads2
	if anchor == alignment.Mate2 {
		reads, oppReads = s.Reads2, s.Reads1
	}

	// every read is seeded in the first pass
	seedQueues := buf.SeedQueues
	seedQueues.Fill(s.Count)

	timer := device.NewTimer(a.dev)
	for pass := uint32(0); pass <= a.params.MaxReseed; pass++ {
		if seedQueues.InSize() == 0 {
			break
		}
		seedQueues.ClearOutput()
		a.debugf("batch %d, anchor %s, seeding pass %d: %d reads", s.Batch, anchor, pass, seedQueues.InSize())

		if at, ok := s.persistAt(pass, persist.Any); ok {
			a.persister.Persist(at, "reads", uint32(anchor),
				persist.Uint32s("queue", seedQueues.Current().Slice()))
		}

		// seeding
		buf.SeedHits.Clear(s.Count)
		req := &MapRequest{
			Device:      a.dev,
			Params:      a.params,
			Batch:       s.Batch,
			Anchor:      anchor,
			SeedingPass: pass,
			Reads:       reads,
			Queue:       seedQueues.Current(),
			SeedHits:    &buf.SeedHits,
		}
		start := time.Now()
		timer.Start()
		a.kernels.Map(req)
		if err := a.dev.CheckError("mapping kernel"); err != nil {
			return err
		}
		timer.Stop()
		s.record(stats.Map, uint64(seedQueues.InSize()), time.Since(start), timer)

		if at, ok := s.persistAt(pass, persist.Any); ok {
			hits := make([]uint32, seedQueues.InSize())
			for i, r := range seedQueues.Current().Slice() {
				hits[i] = uint32(buf.SeedHits.Hits(r))
			}
			a.persister.Persist(at, "hits", uint32(anchor), persist.Uint32s("counts", hits))
		}

		s.PassesUsed[anchor]++

		if a.params.KeepStats && anchor == alignment.Mate1 && pass == 0 {
			a.keepStats(s, seedQueues.Current().Slice())
		}

		if err := a.scoreBestApprox(s, anchor, reads, oppReads, pass); err != nil {
			return err
		}

		seedQueues.Swap()
	}
	return nil
}

// keepStats summarizes the seed hits of the reads of the first pass.
func (a *Aligner) keepStats(s *Session, reads []uint32) {
	hits := make([]uint64, len(reads))
	ranges := make([]uint64, len(reads))
	tops := make([]uint64, 0, len(reads))
	for i, r := range reads {
		rs := a.buf.SeedHits.Ranges(r)
		hits[i] = a.buf.SeedHits.Hits(r)
		ranges[i] = uint64(len(rs))
		if len(rs) == 0 {
			continue
		}
		top := rs[0].Size()
		for _, x := range rs[1:] {
			if x.Size() < top {
				top = x.Size()
			}
		}
		tops = append(tops, uint64(top))
	}
	s.Stats.Hits = stats.Collect(hits, ranges, tops)
}
