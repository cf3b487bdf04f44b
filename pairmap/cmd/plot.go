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
	"fmt"

	"github.com/pkg/errors"
	"github.com/shenwei356/PairMap/pairmap/stats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// log2Labels returns the labels of the log2 bins, up to the last non-empty bin.
func log2Labels(n int) []string {
	labels := make([]string, n)
	for b := 0; b < n; b++ {
		switch b {
		case 0:
			labels[b] = "0"
		case 1:
			labels[b] = "1"
		default:
			labels[b] = fmt.Sprintf("%d-%d", 1<<(b-1), 1<<b-1)
		}
	}
	return labels
}

func lastBin(hist []uint64) int {
	n := 0
	for b, v := range hist {
		if v > 0 {
			n = b + 1
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}

// plotHitStats draws the histograms of seed hits and SA ranges per read.
// The image format is decided by the file extension.
func plotHitStats(h *stats.HitStats, file string) error {
	n := lastBin(h.HitsHist[:])
	if m := lastBin(h.RangesHist[:]); m > n {
		n = m
	}

	hits := make(plotter.Values, n)
	ranges := make(plotter.Values, n)
	for b := 0; b < n; b++ {
		hits[b] = float64(h.HitsHist[b])
		ranges[b] = float64(h.RangesHist[b])
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Seed hits of %d reads (mean: %.1f)", h.Reads, h.Mean)
	p.X.Label.Text = "Number per read"
	p.Y.Label.Text = "Reads"

	w := vg.Points(8)

	barsHits, err := plotter.NewBarChart(hits, w)
	if err != nil {
		return errors.Wrap(err, "plot seed hits")
	}
	barsHits.Offset = -w / 2
	barsHits.Color = plotter.DefaultLineStyle.Color

	barsRanges, err := plotter.NewBarChart(ranges, w)
	if err != nil {
		return errors.Wrap(err, "plot SA ranges")
	}
	barsRanges.Offset = w / 2
	barsRanges.LineStyle.Width = vg.Length(0)

	p.Add(barsHits, barsRanges)
	p.Legend.Add("hits", barsHits)
	p.Legend.Add("ranges", barsRanges)
	p.Legend.Top = true
	p.NominalX(log2Labels(n)...)

	if err = p.Save(vg.Length(n+4)*3*w, 4*vg.Inch, file); err != nil {
		return errors.Wrapf(err, "save plot %s", file)
	}
	return nil
}
