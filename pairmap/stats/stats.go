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

// Package stats accumulates per-stage timings of the alignment pipeline.
package stats

import (
	"fmt"
	"io"
	"math/bits"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/stat"
)

// Stage names used by the pipeline.
const (
	Map               = "map"
	Select            = "select"
	Sort              = "sort"
	Locate            = "locate"
	Score             = "score"
	OppositeScore     = "opposite_score"
	ScoringPipe       = "scoring_pipe"
	Backtrack         = "backtrack"
	BacktrackOpposite = "backtrack_opposite"
	Finalize          = "finalize"
)

// Sink receives stage timings. It never feeds back into control flow.
type Sink interface {
	Add(stage string, items uint64, hostSeconds, deviceSeconds float64)
}

// Stage is the accumulated record of one stage.
type Stage struct {
	Name          string
	Calls         uint64
	Items         uint64
	HostSeconds   float64
	DeviceSeconds float64
}

// Throughput returns items per host second.
func (s Stage) Throughput() float64 {
	if s.HostSeconds == 0 {
		return 0
	}
	return float64(s.Items) / s.HostSeconds
}

// Stats maps stage names to accumulated counts and times.
// It is append-only within a batch and owned by one goroutine.
type Stats struct {
	stages map[string]*Stage
	order  []string

	Hits *HitStats // nil unless seed-hit statistics were collected
}

// New returns an empty Stats.
func New() *Stats {
	return &Stats{stages: make(map[string]*Stage, 16)}
}

// Add accumulates one call of a stage.
func (s *Stats) Add(stage string, items uint64, hostSeconds, deviceSeconds float64) {
	st := s.stage(stage)
	st.Calls++
	st.Items += items
	st.HostSeconds += hostSeconds
	st.DeviceSeconds += deviceSeconds
}

func (s *Stats) stage(name string) *Stage {
	st, ok := s.stages[name]
	if !ok {
		st = &Stage{Name: name}
		s.stages[name] = st
		s.order = append(s.order, name)
	}
	return st
}

// Stage returns the record of a stage; the zero Stage if never added.
func (s *Stats) Stage(name string) Stage {
	if st, ok := s.stages[name]; ok {
		return *st
	}
	return Stage{Name: name}
}

// Stages returns all records in the order they were first added.
func (s *Stats) Stages() []Stage {
	list := make([]Stage, len(s.order))
	for i, name := range s.order {
		list[i] = *s.stages[name]
	}
	return list
}

// Merge adds all records of o into s, e.g., to sum batches.
func (s *Stats) Merge(o *Stats) {
	for _, name := range o.order {
		st := o.stages[name]
		t := s.stage(name)
		t.Calls += st.Calls
		t.Items += st.Items
		t.HostSeconds += st.HostSeconds
		t.DeviceSeconds += st.DeviceSeconds
	}
	if o.Hits != nil {
		if s.Hits == nil {
			s.Hits = &HitStats{}
		}
		s.Hits.Merge(o.Hits)
	}
}

// Report writes a table of all stages.
func (s *Stats) Report(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "stage\tcalls\titems\thost(s)\tdevice(s)\titems/s\t")
	for _, st := range s.Stages() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%.3f\t%s\t\n",
			st.Name, humanize.Comma(int64(st.Calls)), humanize.Comma(int64(st.Items)),
			st.HostSeconds, st.DeviceSeconds, humanize.Comma(int64(st.Throughput())))
	}
	if s.Hits != nil && s.Hits.Reads > 0 {
		fmt.Fprintf(tw, "\n")
		fmt.Fprintf(tw, "seed hits per read: mean %.2f, stdev %.2f, top range %.2f\t\t\t\t\t\t\n",
			s.Hits.Mean, s.Hits.Stdev, s.Hits.MeanTopRange)
	}
	return tw.Flush()
}

// Tee forwards timings to several sinks.
type Tee []Sink

// Add forwards to every non-nil sink.
func (t Tee) Add(stage string, items uint64, hostSeconds, deviceSeconds float64) {
	for _, s := range t {
		if s != nil {
			s.Add(stage, items, hostSeconds, deviceSeconds)
		}
	}
}

// HitStatsBins is the number of log2 bins of the seed-hit histograms.
const HitStatsBins = 28

// HitStats summarizes the seed hits of the first seeding pass.
type HitStats struct {
	Reads uint64

	// log2 histograms: bin b counts reads with [2^(b-1), 2^b) items, bin 0 counts zeros.
	HitsHist   [HitStatsBins]uint64
	RangesHist [HitStatsBins]uint64

	Mean         float64 // mean number of hits per read
	Stdev        float64
	MeanTopRange float64 // mean size of the smallest SA range
}

func log2Bin(v uint64) int {
	b := bits.Len64(v)
	if b >= HitStatsBins {
		b = HitStatsBins - 1
	}
	return b
}

// Collect computes seed-hit statistics from per-read hit counts, range
// counts and top (smallest) range sizes.
func Collect(hits, ranges, topRanges []uint64) *HitStats {
	h := &HitStats{Reads: uint64(len(hits))}
	if len(hits) == 0 {
		return h
	}

	xs := make([]float64, len(hits))
	for i, v := range hits {
		xs[i] = float64(v)
		h.HitsHist[log2Bin(v)]++
	}
	for _, v := range ranges {
		h.RangesHist[log2Bin(v)]++
	}
	h.Mean, h.Stdev = stat.MeanStdDev(xs, nil)

	if len(topRanges) > 0 {
		ts := make([]float64, len(topRanges))
		for i, v := range topRanges {
			ts[i] = float64(v)
		}
		h.MeanTopRange = stat.Mean(ts, nil)
	}
	return h
}

// Merge adds the histograms of o and combines the means weighted by reads.
func (h *HitStats) Merge(o *HitStats) {
	n := h.Reads + o.Reads
	if n == 0 {
		return
	}
	w1, w2 := float64(h.Reads)/float64(n), float64(o.Reads)/float64(n)
	h.Mean = h.Mean*w1 + o.Mean*w2
	h.Stdev = h.Stdev*w1 + o.Stdev*w2 // approximate
	h.MeanTopRange = h.MeanTopRange*w1 + o.MeanTopRange*w2
	for i := range h.HitsHist {
		h.HitsHist[i] += o.HitsHist[i]
		h.RangesHist[i] += o.RangesHist[i]
	}
	h.Reads = n
}
