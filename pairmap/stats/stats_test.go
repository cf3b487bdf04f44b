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

package stats

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAdd(t *testing.T) {
	s := New()
	s.Add(Map, 100, 0.5, 0.25)
	s.Add(Select, 10, 0.1, 0.1)
	s.Add(Map, 50, 0.5, 0.25)

	m := s.Stage(Map)
	if m.Calls != 2 || m.Items != 150 || m.HostSeconds != 1 || m.DeviceSeconds != 0.5 {
		t.Errorf("unexpected record: %+v", m)
	}
	if m.Throughput() != 150 {
		t.Errorf("unexpected throughput: %f", m.Throughput())
	}

	if z := s.Stage(Locate); z.Calls != 0 || z.Items != 0 {
		t.Errorf("unused stage should be empty: %+v", z)
	}

	stages := s.Stages()
	if len(stages) != 2 || stages[0].Name != Map || stages[1].Name != Select {
		t.Errorf("unexpected stage order: %+v", stages)
	}
}

func TestMerge(t *testing.T) {
	a, b := New(), New()
	a.Add(Score, 1, 1, 1)
	b.Add(Score, 2, 1, 1)
	b.Add(Finalize, 3, 1, 1)
	a.Merge(b)

	if st := a.Stage(Score); st.Calls != 2 || st.Items != 3 {
		t.Errorf("unexpected merged record: %+v", st)
	}
	if st := a.Stage(Finalize); st.Calls != 1 || st.Items != 3 {
		t.Errorf("unexpected merged record: %+v", st)
	}
}

func TestCollect(t *testing.T) {
	h := Collect([]uint64{0, 1, 3, 4}, []uint64{0, 1, 2, 2}, []uint64{1, 3})
	if h.Reads != 4 {
		t.Errorf("unexpected reads: %d", h.Reads)
	}
	if h.Mean != 2 {
		t.Errorf("unexpected mean: %f", h.Mean)
	}
	if h.MeanTopRange != 2 {
		t.Errorf("unexpected mean top range: %f", h.MeanTopRange)
	}
	// 0 -> bin 0, 1 -> bin 1, 3 -> bin 2, 4 -> bin 3
	for b, n := range []uint64{1, 1, 1, 1} {
		if h.HitsHist[b] != n {
			t.Errorf("[bin %d] expected %d, returned %d", b, n, h.HitsHist[b])
		}
	}
	if math.IsNaN(h.Stdev) || h.Stdev <= 0 {
		t.Errorf("unexpected stdev: %f", h.Stdev)
	}
}

func TestReport(t *testing.T) {
	s := New()
	s.Add(Backtrack, 12345, 2, 1)
	var buf bytes.Buffer
	if err := s.Report(&buf); err != nil {
		t.Error(err)
		return
	}
	if !strings.Contains(buf.String(), "12,345") {
		t.Errorf("items should be humanized:\n%s", buf.String())
	}
}

type countSink struct{ n int }

func (c *countSink) Add(string, uint64, float64, float64) { c.n++ }

func TestTee(t *testing.T) {
	s := New()
	c := &countSink{}
	tee := Tee{s, nil, c}
	tee.Add(Map, 1, 0, 0)
	if c.n != 1 || s.Stage(Map).Calls != 1 {
		t.Errorf("tee should forward to every sink")
	}
}

func TestPrometheusSink(t *testing.T) {
	p := NewPrometheusSink("pairmap")
	p.Add(Map, 10, 0.1, 0.05)
	p.Add(Map, 20, 0.1, 0.05)

	file := filepath.Join(t.TempDir(), "metrics.prom")
	if err := p.WriteTextfile(file); err != nil {
		t.Error(err)
		return
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Error(err)
		return
	}
	if !strings.Contains(string(data), `pairmap_stage_items_total{stage="map"} 30`) {
		t.Errorf("unexpected metrics:\n%s", data)
	}
}
