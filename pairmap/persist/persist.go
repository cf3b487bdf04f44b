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

// Package persist dumps intermediate pipeline state at a configured
// (batch, seeding pass, extension pass) coordinate, for debugging and for
// comparing runs.
package persist

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	perrors "github.com/pkg/errors"
	"github.com/shenwei356/xopen"
	"github.com/zeebo/wyhash"
)

var le = binary.LittleEndian

// Magic is the first line of a checkpoint file.
var Magic = "#pairmap-checkpoint"

// MainVersion is use for checking compatibility
var MainVersion uint8 = 0

// MinorVersion is less important
var MinorVersion uint8 = 1

// ChecksumSeed seeds the section checksums.
var ChecksumSeed uint64 = 1

// ErrInvalidFormat means invalid file format.
var ErrInvalidFormat = errors.New("checkpoint: invalid format")

// ErrChecksumMismatch means a section is corrupted.
var ErrChecksumMismatch = errors.New("checkpoint: checksum mismatch")

// Any matches every extension pass.
const Any = -1

// Coordinate locates a dump in a run.
type Coordinate struct {
	Batch     int
	Seeding   int
	Extension int // Any for dumps taken outside the extension loop
}

func (c Coordinate) String() string {
	return fmt.Sprintf("batch=%d seeding=%d extension=%d", c.Batch, c.Seeding, c.Extension)
}

// Trigger is the configured coordinate. A negative Batch disables dumping,
// and an Extension of Any matches every extension pass.
type Trigger Coordinate

// Matches tells whether a dump taken at c should be written.
func (t Trigger) Matches(c Coordinate) bool {
	if t.Batch < 0 {
		return false
	}
	if t.Batch != c.Batch || t.Seeding != c.Seeding {
		return false
	}
	return c.Extension == Any || t.Extension == Any || t.Extension == c.Extension
}

// Section is one named array of a dump.
type Section struct {
	Name   string
	Values []int64
}

// Uint32s wraps a uint32 array as a Section.
func Uint32s(name string, vs []uint32) Section {
	s := Section{Name: name, Values: make([]int64, len(vs))}
	for i, v := range vs {
		s.Values[i] = int64(v)
	}
	return s
}

// Int32s wraps an int32 array as a Section.
func Int32s(name string, vs []int32) Section {
	s := Section{Name: name, Values: make([]int64, len(vs))}
	for i, v := range vs {
		s.Values[i] = int64(v)
	}
	return s
}

// Checksum returns the wyhash of the little-endian values.
func (s Section) Checksum() uint64 {
	buf := make([]byte, 8*len(s.Values))
	for i, v := range s.Values {
		le.PutUint64(buf[i<<3:], uint64(v))
	}
	return wyhash.Hash(buf, ChecksumSeed)
}

// Dump is a named group of sections taken at a coordinate.
type Dump struct {
	Name     string
	At       Coordinate
	Anchor   uint32
	Sections []Section
}

// Writer writes dumps matching its trigger to a (optionally gzipped) file.
// The file is created at the first matching dump.
type Writer struct {
	file    string
	trigger Trigger

	fh    *xopen.Writer
	w     *bufio.Writer
	err   error
	dumps int
}

// NewWriter returns a Writer. Nothing is created until a dump matches.
func NewWriter(file string, trigger Trigger) *Writer {
	return &Writer{file: file, trigger: trigger}
}

// Trigger returns the configured coordinate.
func (w *Writer) Trigger() Trigger { return w.trigger }

// Dumps returns the number of dumps written.
func (w *Writer) Dumps() int { return w.dumps }

// Persist writes a dump if at matches the trigger; it is a no-op otherwise.
// Write errors are kept and returned by Close.
func (w *Writer) Persist(at Coordinate, name string, anchor uint32, sections ...Section) {
	if w.err != nil || w.file == "" || !w.trigger.Matches(at) {
		return
	}

	if w.fh == nil {
		w.fh, w.err = xopen.Wopen(w.file)
		if w.err != nil {
			w.err = perrors.Wrapf(w.err, "create checkpoint file: %s", w.file)
			return
		}
		w.w = bufio.NewWriter(w.fh)
		fmt.Fprintf(w.w, "%s v%d.%d\n", Magic, MainVersion, MinorVersion)
	}

	fmt.Fprintf(w.w, "[%s] %s anchor=%d sections=%d\n", name, at, anchor, len(sections))
	for _, s := range sections {
		fmt.Fprintf(w.w, "%s n=%d crc=%016x\n", s.Name, len(s.Values), s.Checksum())
		for i, v := range s.Values {
			if i > 0 {
				w.w.WriteByte(' ')
			}
			w.w.WriteString(strconv.FormatInt(v, 10))
		}
		_, w.err = w.w.WriteString("\n")
		if w.err != nil {
			return
		}
	}
	w.dumps++
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	if w.fh == nil {
		return w.err
	}
	if err := w.w.Flush(); err != nil && w.err == nil {
		w.err = err
	}
	if err := w.fh.Close(); err != nil && w.err == nil {
		w.err = err
	}
	w.fh = nil
	return w.err
}

// ReadDumps reads all dumps of a checkpoint file and verifies the checksums.
func ReadDumps(file string) ([]Dump, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 1<<20), 1<<30)

	if !scanner.Scan() || !strings.HasPrefix(scanner.Text(), Magic) {
		return nil, ErrInvalidFormat
	}

	dumps := make([]Dump, 0, 8)
	var line string
	for scanner.Scan() {
		line = scanner.Text()
		if line == "" {
			continue
		}

		var d Dump
		var nSections int
		_, err = fmt.Sscanf(line, "[%s batch=%d seeding=%d extension=%d anchor=%d sections=%d",
			&d.Name, &d.At.Batch, &d.At.Seeding, &d.At.Extension, &d.Anchor, &nSections)
		if err != nil {
			return nil, perrors.Wrapf(ErrInvalidFormat, "dump header: %s", line)
		}
		d.Name = strings.TrimSuffix(d.Name, "]")

		for i := 0; i < nSections; i++ {
			var s Section
			var n int
			var crc uint64
			if !scanner.Scan() {
				return nil, ErrInvalidFormat
			}
			if _, err = fmt.Sscanf(scanner.Text(), "%s n=%d crc=%x", &s.Name, &n, &crc); err != nil {
				return nil, perrors.Wrapf(ErrInvalidFormat, "section header: %s", scanner.Text())
			}
			if !scanner.Scan() {
				return nil, ErrInvalidFormat
			}
			fields := strings.Fields(scanner.Text())
			if len(fields) != n {
				return nil, perrors.Wrapf(ErrInvalidFormat, "section %s: %d values, expected %d", s.Name, len(fields), n)
			}
			s.Values = make([]int64, n)
			for j, f := range fields {
				if s.Values[j], err = strconv.ParseInt(f, 10, 64); err != nil {
					return nil, perrors.Wrapf(ErrInvalidFormat, "section %s: %s", s.Name, f)
				}
			}
			if s.Checksum() != crc {
				return nil, perrors.Wrapf(ErrChecksumMismatch, "section %s of %s", s.Name, d.Name)
			}
			d.Sections = append(d.Sections, s)
		}
		dumps = append(dumps, d)
	}
	return dumps, scanner.Err()
}
