// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package leb128 implements sticky-error readers and writers of unsigned
// LEB128 variable length integers, little-endian floats and length prefixed
// byte strings.
//
// Once an operation fails all subsequent operations are no-ops, so a sequence
// of reads or writes only needs its error checked once at the end.
package leb128

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/apitrace/apitrace-sub000/core/fault"
)

const (
	// ErrOverflow is returned when a varint does not fit in 64 bits.
	ErrOverflow = fault.Const("Varint overflows 64 bits")
	// ErrTooLong is returned when a length prefix exceeds MaxLength.
	ErrTooLong = fault.Const("Length prefix too long")
)

// MaxLength is the largest length prefix a Reader will accept for a string or
// blob.
const MaxLength = 1 << 30

// Size returns the number of bytes needed to encode v.
func Size(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Append appends the encoding of v to buf.
func Append(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// Reader reads encoded values from an io.Reader.
type Reader struct {
	reader io.Reader
	tmp    [8]byte
	err    error
}

// NewReader returns a Reader that reads from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{reader: r}
}

// Error returns the first error encountered by the reader.
func (r *Reader) Error() error { return r.err }

// SetError sets the sticky error if one has not already been set.
func (r *Reader) SetError(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Data reads exactly len(p) bytes into p.
func (r *Reader) Data(p []byte) {
	if r.err != nil {
		return
	}
	_, r.err = io.ReadFull(r.reader, p)
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() uint8 {
	r.Data(r.tmp[:1])
	if r.err != nil {
		return 0
	}
	return r.tmp[0]
}

// Uint reads an unsigned LEB128 varint.
func (r *Reader) Uint() uint64 {
	v := uint64(0)
	for shift := uint(0); ; shift += 7 {
		b := r.Uint8()
		if r.err != nil {
			return 0
		}
		if shift == 63 && b > 1 {
			r.err = ErrOverflow
			return 0
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v
		}
	}
}

// Length reads a varint that prefixes a string, blob or element list.
func (r *Reader) Length() int {
	n := r.Uint()
	if n > MaxLength {
		r.SetError(ErrTooLong)
		return 0
	}
	return int(n)
}

// Float32 reads a little-endian IEEE 754 single.
func (r *Reader) Float32() float32 {
	r.Data(r.tmp[:4])
	if r.err != nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(r.tmp[:4]))
}

// Float64 reads a little-endian IEEE 754 double.
func (r *Reader) Float64() float64 {
	r.Data(r.tmp[:8])
	if r.err != nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(r.tmp[:8]))
}

// Bytes reads a length prefixed byte string.
func (r *Reader) Bytes() []byte {
	n := r.Length()
	if r.err != nil {
		return nil
	}
	out := make([]byte, n)
	r.Data(out)
	if r.err != nil {
		return nil
	}
	return out
}

// String reads a length prefixed string.
func (r *Reader) String() string {
	return string(r.Bytes())
}

// Writer writes encoded values to an io.Writer.
type Writer struct {
	writer io.Writer
	tmp    [10]byte
	err    error
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{writer: w}
}

// Error returns the first error encountered by the writer.
func (w *Writer) Error() error { return w.err }

// SetError sets the sticky error if one has not already been set.
func (w *Writer) SetError(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Data writes all of data.
func (w *Writer) Data(data []byte) {
	if w.err != nil {
		return
	}
	n, err := w.writer.Write(data)
	if err != nil {
		w.err = err
		return
	}
	if n != len(data) {
		w.err = io.ErrShortWrite
	}
}

// Uint8 writes a single byte.
func (w *Writer) Uint8(v uint8) {
	w.tmp[0] = v
	w.Data(w.tmp[:1])
}

// Uint writes v as an unsigned LEB128 varint.
func (w *Writer) Uint(v uint64) {
	w.Data(Append(w.tmp[:0], v))
}

// Float32 writes v as a little-endian IEEE 754 single.
func (w *Writer) Float32(v float32) {
	binary.LittleEndian.PutUint32(w.tmp[:4], math.Float32bits(v))
	w.Data(w.tmp[:4])
}

// Float64 writes v as a little-endian IEEE 754 double.
func (w *Writer) Float64(v float64) {
	binary.LittleEndian.PutUint64(w.tmp[:8], math.Float64bits(v))
	w.Data(w.tmp[:8])
}

// Bytes writes a length prefixed byte string.
func (w *Writer) Bytes(data []byte) {
	w.Uint(uint64(len(data)))
	w.Data(data)
}

// String writes a length prefixed string.
func (w *Writer) String(s string) {
	w.Uint(uint64(len(s)))
	if w.err == nil && len(s) > 0 {
		_, err := io.WriteString(w.writer, s)
		w.err = err
	}
}
