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

package device

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestInOrderStream(t *testing.T) {
	d := New(4)

	n := 1000
	a := make([]int, n)
	b := make([]int, n)

	// the second kernel reads what the first one wrote
	d.Launch("write", n, func(i int) error {
		time.Sleep(time.Microsecond)
		a[i] = i * 2
		return nil
	})
	d.Launch("read", n, func(i int) error {
		b[i] = a[i] + 1
		return nil
	})

	if err := d.Synchronize(); err != nil {
		t.Error(err)
		return
	}
	for i := 0; i < n; i++ {
		if b[i] != i*2+1 {
			t.Errorf("[#%d] unexpected value, expected: %d, returned: %d", i, i*2+1, b[i])
			return
		}
	}
}

func TestAwaitCompletion(t *testing.T) {
	d := New(3)

	// mock a slow kernel producing a count
	var count uint32
	d.Launch("slow-count", 7, func(i int) error {
		time.Sleep(5 * time.Millisecond)
		atomic.AddUint32(&count, 1)
		return nil
	})

	v, err := AwaitCompletion(d, "count", func() uint32 { return atomic.LoadUint32(&count) })
	if err != nil {
		t.Error(err)
		return
	}
	if v != 7 {
		t.Errorf("count read before the barrier completed: %d", v)
	}
	if d.Busy() <= 0 {
		t.Errorf("device time should be positive")
	}
}

func TestStickyError(t *testing.T) {
	d := New(2)

	var ran bool
	d.Launch("fail", 10, func(i int) error {
		if i == 5 {
			return fmt.Errorf("boom")
		}
		return nil
	})
	d.Launch("after", 1, func(int) error {
		ran = true
		return nil
	})

	err := d.CheckError("score kernel")
	if err == nil {
		t.Errorf("error expected")
		return
	}
	if ran {
		t.Errorf("kernels after a failure should be skipped")
	}

	// still failing at the next barrier
	if _, err = AwaitCompletion(d, "again", func() int { return 1 }); err == nil {
		t.Errorf("sticky error expected")
	}

	d.Reset()
	if err = d.Synchronize(); err != nil {
		t.Errorf("unexpected error after reset: %s", err)
	}
}

func TestEmptyLaunch(t *testing.T) {
	d := New(2)
	d.Launch("nothing", 0, func(int) error {
		t.Errorf("kernel over zero items should not run")
		return nil
	})
	if err := d.Synchronize(); err != nil {
		t.Error(err)
	}
	if d.Launched() != 0 {
		t.Errorf("empty launches should not be counted")
	}
}
