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

// Package device emulates a single data-parallel accelerator on the CPU.
//
// Kernels are launched asynchronously on one in-order stream: a kernel starts
// only after the previous one has finished, and the items of one kernel run
// in parallel with no ordering guarantee among them. The controlling
// goroutine never sees results before it passes a barrier
// (Synchronize or AwaitCompletion).
//
// A failing kernel makes the device sticky-failed: every later kernel is
// skipped and every later barrier reports the same error, like a CUDA
// context after an execution error.
package device

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Kernel is the body of a data-parallel operation, called once per item.
type Kernel func(i int) error

// Device is an in-order stream of data-parallel kernels.
type Device struct {
	workers int

	mu   sync.Mutex
	tail chan struct{} // closed when the last launched kernel finished
	err  error         // sticky error

	busy     int64 // nanoseconds spent executing kernels
	launched uint64
	syncs    uint64
}

// New creates a device running each kernel on up to workers goroutines.
// workers <= 0 means runtime.NumCPU().
func New(workers int) *Device {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Device{workers: workers}
}

// Workers returns the degree of parallelism of a kernel.
func (d *Device) Workers() int { return d.workers }

// Launch enqueues a kernel over n items and returns immediately.
// Launching zero items is a no-op.
func (d *Device) Launch(name string, n int, kernel Kernel) {
	if n <= 0 {
		return
	}

	d.mu.Lock()
	prev := d.tail
	done := make(chan struct{})
	d.tail = done
	d.mu.Unlock()

	atomic.AddUint64(&d.launched, 1)

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		if d.failed() {
			return
		}

		start := time.Now()
		err := d.run(n, kernel)
		atomic.AddInt64(&d.busy, int64(time.Since(start)))

		if err != nil {
			d.setErr(errors.Wrapf(err, "kernel %s", name))
		}
	}()
}

// Task enqueues a single-item kernel, e.g., a scan over a small array.
func (d *Device) Task(name string, task func() error) {
	d.Launch(name, 1, func(int) error { return task() })
}

// run splits [0, n) into contiguous chunks, one per worker.
func (d *Device) run(n int, kernel Kernel) error {
	chunk := (n + d.workers - 1) / d.workers

	var g errgroup.Group
	for start := 0; start < n; start += chunk {
		begin, end := start, start+chunk
		if end > n {
			end = n
		}
		g.Go(func() error {
			var err error
			for i := begin; i < end; i++ {
				if err = kernel(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Device) failed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err != nil
}

func (d *Device) setErr(err error) {
	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.mu.Unlock()
}

// Synchronize blocks until every launched kernel has finished,
// and returns the sticky error if any kernel failed.
func (d *Device) Synchronize() error {
	d.mu.Lock()
	tail := d.tail
	d.mu.Unlock()

	if tail != nil {
		<-tail
	}
	atomic.AddUint64(&d.syncs, 1)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// CheckError synchronizes and labels a failure with the stage that waited on it.
func (d *Device) CheckError(label string) error {
	if err := d.Synchronize(); err != nil {
		return errors.Wrap(err, label)
	}
	return nil
}

// AwaitCompletion is the explicit barrier before reading a device-computed
// value: it waits for every launched kernel and only then evaluates read.
func AwaitCompletion[T any](d *Device, label string, read func() T) (T, error) {
	if err := d.CheckError(label); err != nil {
		var zero T
		return zero, err
	}
	return read(), nil
}

// Busy returns the cumulative time spent executing kernels.
// Only meaningful after a barrier.
func (d *Device) Busy() time.Duration {
	return time.Duration(atomic.LoadInt64(&d.busy))
}

// Launched returns the number of non-empty kernels launched so far.
func (d *Device) Launched() uint64 { return atomic.LoadUint64(&d.launched) }

// Syncs returns the number of barriers passed so far.
func (d *Device) Syncs() uint64 { return atomic.LoadUint64(&d.syncs) }

// Reset waits for pending kernels and clears the sticky error.
func (d *Device) Reset() {
	d.Synchronize()
	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()
}

// Timer measures the device time spent between Start and Stop.
type Timer struct {
	d     *Device
	start time.Duration
	total time.Duration
}

// NewTimer returns a device timer.
func NewTimer(d *Device) *Timer { return &Timer{d: d} }

// Start records the current device busy time.
func (t *Timer) Start() { t.start = t.d.Busy() }

// Stop synchronizes the device and records the device time since Start.
func (t *Timer) Stop() {
	t.d.Synchronize()
	t.total = t.d.Busy() - t.start
}

// Seconds returns the measured device time in seconds.
func (t *Timer) Seconds() float64 { return t.total.Seconds() }
