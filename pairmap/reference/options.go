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

package reference

import (
	"fmt"
)

// Options contains the options of the reference kernels.
type Options struct {
	SeedLen      int // k-mer size of seeds
	SeedInterval int // distance between seeds of the first seeding pass
}

// DefaultOptions contains the default options.
var DefaultOptions = Options{
	SeedLen:      16,
	SeedInterval: 10,
}

// CheckOptions checks the options.
func CheckOptions(opt *Options) error {
	if opt.SeedLen < 4 || opt.SeedLen > MaxSeedLen {
		return fmt.Errorf("invalid seed length: %d, valid range: [4, %d]", opt.SeedLen, MaxSeedLen)
	}
	if opt.SeedInterval < 1 {
		return fmt.Errorf("invalid seed interval: %d, should be >= 1", opt.SeedInterval)
	}
	return nil
}
